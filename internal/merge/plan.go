// Package merge folds stage contributions into the next version of a SoS.
package merge

import (
	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

// Plan records which stages one invocation adds or overwrites. It lives only
// for the duration of that invocation.
type Plan struct {
	Continent string
	RunType   module.RunType
	// Modules is the requested order, duplicates included.
	Modules []module.Name
	// Duplicates lists stages requested more than once.
	Duplicates []module.Name
}

// NewPlan validates the invocation input. It performs no I/O, so an unknown
// stage or continent fails before anything is read.
func NewPlan(continent, runType string, names []string) (*Plan, error) {
	c, err := sosid.ParseContinent(continent)
	if err != nil {
		return nil, err
	}
	rt, err := module.ParseRunType(runType)
	if err != nil {
		return nil, err
	}
	mods, err := module.ParseList(names)
	if err != nil {
		return nil, err
	}

	p := &Plan{Continent: c, RunType: rt, Modules: mods}
	counts := make(map[module.Name]int, len(mods))
	for _, m := range mods {
		counts[m]++
		if counts[m] == 2 {
			p.Duplicates = append(p.Duplicates, m)
		}
	}
	return p, nil
}

// Effective returns the stages to read, each once, ordered by its last
// occurrence in the request. Folding Effective gives the same result as
// folding Modules under last-write-wins.
func (p *Plan) Effective() []module.Name {
	last := make(map[module.Name]int, len(p.Modules))
	for i, m := range p.Modules {
		last[m] = i
	}
	out := make([]module.Name, 0, len(last))
	for i, m := range p.Modules {
		if last[m] == i {
			out = append(out, m)
		}
	}
	return out
}
