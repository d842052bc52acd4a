package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Pointer is the authoritative record of the latest committed version. The
// blob it names is only trusted when its checksum matches.
type Pointer struct {
	Version     uint64    `json:"version"`
	Key         string    `json:"key"`
	Checksum    string    `json:"checksum"`
	Size        int       `json:"size"`
	CommittedAt time.Time `json:"committed_at"`
	Writer      string    `json:"writer"`
	Modules     []string  `json:"modules,omitempty"`
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// verify reports whether data is the blob p names.
func (p *Pointer) verify(data []byte) error {
	if len(data) != p.Size {
		return fmt.Errorf("%w: %s is %d bytes, pointer records %d", ErrCorrupt, p.Key, len(data), p.Size)
	}
	if sum := checksum(data); sum != p.Checksum {
		return fmt.Errorf("%w: %s checksum %s, pointer records %s", ErrCorrupt, p.Key, sum, p.Checksum)
	}
	return nil
}

func decodePointer(key string, data []byte) (*Pointer, error) {
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: pointer %s: %v", ErrCorrupt, key, err)
	}
	if p.Version == 0 || p.Key == "" {
		return nil, fmt.Errorf("%w: pointer %s names no version", ErrCorrupt, key)
	}
	return &p, nil
}
