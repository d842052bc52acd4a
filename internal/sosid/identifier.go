package sosid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Identifier is a feature identifier. Upstream stages write reach ids either
// as JSON numbers or as strings, so both decode to the same value.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// UnmarshalJSON accepts `77449100071` and `"77449100071"` alike.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identifier(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or an integer: %w", err)
	}
	if strings.ContainsAny(n.String(), ".eE") {
		return fmt.Errorf("identifier %s is not an integer", n)
	}
	*id = Identifier(n.String())
	return nil
}

// continentRegex matches the two letter macro-region codes used in SoS file names.
var continentRegex = regexp.MustCompile(`^[a-z]{2}$`)

// ParseContinent normalizes and validates a continent code such as "na".
func ParseContinent(raw string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(raw))
	if !continentRegex.MatchString(c) {
		return "", fmt.Errorf("invalid continent code %q: expected two letters", raw)
	}
	return c, nil
}
