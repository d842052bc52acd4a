package merge

import (
	"fmt"
	"maps"

	"github.com/specialistvlad/sosappend/internal/contribution"
	"github.com/specialistvlad/sosappend/internal/sos"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

// Merge builds the next version from previous and contributions, applied in
// order. Each contribution replaces its stage's group wholesale; stages
// without a contribution carry forward unchanged. When a stage appears more
// than once the later contribution wins.
//
// Merge is all-or-nothing: on any error no aggregate is returned. previous is
// never modified.
func Merge(previous *sos.Aggregate, contributions []*contribution.Contribution) (*sos.Aggregate, error) {
	next := sos.CloneForNextVersion(previous)
	for _, c := range contributions {
		g, err := align(next, c)
		if err != nil {
			return nil, fmt.Errorf("merge %s into %s/%s v%d: %w", c.Module, next.Continent, next.RunType, next.Version, err)
		}
		if err := next.SetGroup(g); err != nil {
			return nil, fmt.Errorf("merge %s into %s/%s v%d: %w", c.Module, next.Continent, next.RunType, next.Version, err)
		}
	}
	return next, nil
}

// align lays c out along a's index. Identifiers absent from c, or reported
// as not valid, stay missing.
func align(a *sos.Aggregate, c *contribution.Contribution) (*sos.Group, error) {
	if c.Continent != a.Continent {
		return nil, &sosid.MismatchError{
			Continent: a.Continent,
			Reason:    fmt.Sprintf("contribution %s is for continent %q", c.Source, c.Continent),
		}
	}
	if c.RunType != a.RunType {
		return nil, &sosid.MismatchError{
			Continent: a.Continent,
			Reason:    fmt.Sprintf("contribution %s is for run type %q, aggregate is %q", c.Source, c.RunType, a.RunType),
		}
	}
	if err := a.Index.Check(c.IDs()); err != nil {
		return nil, err
	}

	g := &sos.Group{
		Module:      c.Module,
		Contributed: true,
		Attributes:  maps.Clone(c.Attributes),
		Variables:   make([]*sos.Variable, 0, len(c.Variables)),
	}
	if g.Attributes == nil {
		g.Attributes = map[string]string{}
	}
	for _, spec := range c.Variables {
		v := a.EmptyVariable(spec)
		for i := 0; i < a.Index.Len(); i++ {
			rec, ok := c.Records[a.Index.At(i)]
			if !ok || !rec.Valid {
				continue
			}
			cells, ok := rec.Values[spec.Name]
			if !ok {
				continue
			}
			if len(cells) != v.Width {
				return nil, fmt.Errorf("%w: %s/%s of %s has %d values per identifier, want %d",
					sos.ErrShape, c.Module, spec.Name, a.Index.At(i), len(cells), v.Width)
			}
			copy(v.Row(i), cells)
		}
		g.Variables = append(g.Variables, v)
	}
	return g, nil
}
