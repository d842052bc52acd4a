package module

import (
	"errors"
	"fmt"
	"strings"
)

// Name identifies one upstream stage.
type Name string

const (
	Hivdi          Name = "hivdi"
	Metroman       Name = "metroman"
	Moi            Name = "moi"
	Momma          Name = "momma"
	Neobam         Name = "neobam"
	Prediagnostics Name = "prediagnostics"
	Priors         Name = "priors"
	Sad            Name = "sad"
	Sic4dvar       Name = "sic4dvar"
	Swot           Name = "swot"
	Validation     Name = "validation"
	Offline        Name = "offline"
)

// all is the canonical ordering, which is also the group order of a serialized SoS.
var all = []Name{
	Neobam, Hivdi, Metroman, Moi, Momma, Offline,
	Prediagnostics, Priors, Sad, Sic4dvar, Swot, Validation,
}

// ErrUnknownModule is returned for a stage name outside the enumerated set.
var ErrUnknownModule = errors.New("unknown module")

// UnknownError reports which name was rejected.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown module %q", e.Name)
}

// Is makes errors.Is(err, ErrUnknownModule) hold.
func (e *UnknownError) Is(target error) bool {
	return target == ErrUnknownModule
}

// All returns every stage in canonical order.
func All() []Name {
	out := make([]Name, len(all))
	copy(out, all)
	return out
}

// Valid reports whether n is one of the enumerated stages.
func (n Name) Valid() bool {
	for _, m := range all {
		if m == n {
			return true
		}
	}
	return false
}

func (n Name) String() string {
	return string(n)
}

// Parse normalizes and validates a single stage name.
func Parse(raw string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(raw)))
	if !n.Valid() {
		return "", &UnknownError{Name: raw}
	}
	return n, nil
}

// ParseList parses an ordered list of stage names. Entries may themselves be
// comma separated, so both []string{"moi", "hivdi"} and []string{"moi,hivdi"}
// are accepted. Order and duplicates are preserved; deduplication is the
// merge plan's concern.
func ParseList(raw []string) ([]Name, error) {
	var out []Name
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			n, err := Parse(part)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}
