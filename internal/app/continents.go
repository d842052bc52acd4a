package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/specialistvlad/sosappend/internal/sosid"
)

// SelectContinent picks entry index of a continent file. The file is a JSON
// list of single-key objects mapping a continent code to its basins, e.g.
// [{"af": [11, 12]}, {"na": [71]}]; array jobs select their entry by index.
func SelectContinent(data []byte, index int) (string, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return "", fmt.Errorf("decode continent file: %w", err)
	}
	if index < 0 || index >= len(entries) {
		return "", fmt.Errorf("continent index %d out of range: file lists %d continents", index, len(entries))
	}
	entry := entries[index]
	if len(entry) != 1 {
		return "", fmt.Errorf("continent entry %d must have exactly one key, has %d", index, len(entry))
	}
	for code := range entry {
		return sosid.ParseContinent(code)
	}
	panic("unreachable")
}

// LoadContinent reads path and selects entry index.
func LoadContinent(path string, index int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read continent file: %w", err)
	}
	return SelectContinent(data, index)
}
