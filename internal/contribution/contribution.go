// Package contribution reads the per-stage results that feed a merge. A
// contribution is one stage's output for one continent and run type, keyed by
// identifier. Reading never writes to the module store.
package contribution

import (
	"errors"
	"sort"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sos"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

var (
	// ErrNotFound means the stage produced no output for the combination. It is
	// the expected "stage did not run" case, not a failure.
	ErrNotFound = errors.New("contribution not found")

	// ErrInvalid is returned for documents that cannot be interpreted.
	ErrInvalid = errors.New("invalid contribution")
)

// Record is the data of one identifier. Values holds, per variable, exactly
// the variable's width worth of cells.
type Record struct {
	Valid  bool
	Values map[string][]sos.Value
}

// Contribution is an immutable, validated stage result.
type Contribution struct {
	Module     module.Name
	Continent  string
	RunType    module.RunType
	Attributes map[string]string
	// Variables lists the baseline variables of the stage followed by any
	// extra variables the document declared.
	Variables []module.VariableSpec
	Records   map[sosid.Identifier]Record
	// Source is the key the contribution was read from.
	Source string
}

// IDs returns the identifiers carried by c in sorted order.
func (c *Contribution) IDs() []sosid.Identifier {
	ids := make([]sosid.Identifier, 0, len(c.Records))
	for id := range c.Records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
