package sos

import (
	"errors"
	"fmt"
	"maps"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

// ErrShape is returned when a group does not line up with the aggregate's
// identifier index or time dimension.
var ErrShape = errors.New("variable shape does not match index")

// Variable is one named array of a group, laid out identifier-major:
// Values[i*Width+t] is identifier i at step t.
type Variable struct {
	Name       string
	Type       module.DataType
	Width      int
	Attributes map[string]string
	Values     []Value
}

// At returns the value of identifier position i at step t.
func (v *Variable) At(i, t int) Value {
	return v.Values[i*v.Width+t]
}

// Row returns the values of identifier position i. The slice aliases v.
func (v *Variable) Row(i int) []Value {
	return v.Values[i*v.Width : (i+1)*v.Width]
}

// Clone returns a deep copy.
func (v *Variable) Clone() *Variable {
	out := *v
	out.Attributes = maps.Clone(v.Attributes)
	out.Values = make([]Value, len(v.Values))
	copy(out.Values, v.Values)
	return &out
}

// Group is the variable set of one stage.
type Group struct {
	Module module.Name
	// Contributed is false until a contribution of the stage was merged.
	Contributed bool
	Attributes  map[string]string
	Variables   []*Variable
}

// Variable finds a variable by name.
func (g *Group) Variable(name string) *Variable {
	for _, v := range g.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	out := &Group{
		Module:      g.Module,
		Contributed: g.Contributed,
		Attributes:  maps.Clone(g.Attributes),
		Variables:   make([]*Variable, len(g.Variables)),
	}
	for i, v := range g.Variables {
		out.Variables[i] = v.Clone()
	}
	return out
}

// Aggregate is one version of a continent's SoS.
type Aggregate struct {
	Continent  string
	RunType    module.RunType
	Version    uint64
	Index      *sosid.Index
	TimeSteps  int
	Attributes map[string]string
	Groups     map[module.Name]*Group
}

// Option customizes an empty aggregate.
type Option func(*Aggregate)

// WithAttributes sets global attributes of the aggregate.
func WithAttributes(attrs map[string]string) Option {
	return func(a *Aggregate) {
		a.Attributes = maps.Clone(attrs)
	}
}

// SeriesWidth is the width of a series variable for an index with timeSteps
// steps. An index without a time dimension stores one value per identifier.
func SeriesWidth(timeSteps int) int {
	if timeSteps < 1 {
		return 1
	}
	return timeSteps
}

// Width returns the width a variable declared by spec has in a.
func (a *Aggregate) Width(spec module.VariableSpec) int {
	if spec.Series {
		return SeriesWidth(a.TimeSteps)
	}
	return 1
}

// Empty returns version 0 of a continent: every stage has a group holding its
// baseline variables, all missing.
func Empty(continent string, runType module.RunType, index *sosid.Index, opts ...Option) *Aggregate {
	a := &Aggregate{
		Continent:  continent,
		RunType:    runType,
		Index:      index,
		TimeSteps:  index.TimeSteps(),
		Attributes: map[string]string{},
		Groups:     make(map[module.Name]*Group, len(module.All())),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, m := range module.All() {
		a.Groups[m] = a.EmptyGroup(m)
	}
	return a
}

// EmptyGroup returns an all-missing group of m shaped for a.
func (a *Aggregate) EmptyGroup(m module.Name) *Group {
	g := &Group{Module: m, Attributes: map[string]string{}}
	for _, spec := range module.Schema(m) {
		g.Variables = append(g.Variables, a.EmptyVariable(spec))
	}
	return g
}

// EmptyVariable returns an all-missing variable declared by spec.
func (a *Aggregate) EmptyVariable(spec module.VariableSpec) *Variable {
	width := a.Width(spec)
	return &Variable{
		Name:       spec.Name,
		Type:       spec.Type,
		Width:      width,
		Attributes: map[string]string{},
		Values:     make([]Value, a.Index.Len()*width),
	}
}

// Group returns the group of m.
func (a *Aggregate) Group(m module.Name) *Group {
	return a.Groups[m]
}

// CloneForNextVersion returns a deep copy of a at a.Version+1. The index is
// immutable and shared; everything else is copied.
func CloneForNextVersion(a *Aggregate) *Aggregate {
	next := a.clone()
	next.Version = a.Version + 1
	return next
}

func (a *Aggregate) clone() *Aggregate {
	out := &Aggregate{
		Continent:  a.Continent,
		RunType:    a.RunType,
		Version:    a.Version,
		Index:      a.Index,
		TimeSteps:  a.TimeSteps,
		Attributes: maps.Clone(a.Attributes),
		Groups:     make(map[module.Name]*Group, len(a.Groups)),
	}
	for m, g := range a.Groups {
		out.Groups[m] = g.Clone()
	}
	return out
}

// SetGroup replaces the whole group of g.Module. a takes ownership of g.
func (a *Aggregate) SetGroup(g *Group) error {
	if err := a.checkGroup(g); err != nil {
		return err
	}
	a.Groups[g.Module] = g
	return nil
}

// Validate checks that a holds exactly one well-shaped group per stage.
func (a *Aggregate) Validate() error {
	if a.Index == nil {
		return errors.New("aggregate has no identifier index")
	}
	if a.Index.Continent() != a.Continent {
		return fmt.Errorf("%w: index belongs to %q, aggregate to %q", ErrShape, a.Index.Continent(), a.Continent)
	}
	for _, m := range module.All() {
		g, ok := a.Groups[m]
		if !ok {
			return fmt.Errorf("aggregate is missing the %s group", m)
		}
		if err := a.checkGroup(g); err != nil {
			return err
		}
		if g.Module != m {
			return fmt.Errorf("group stored under %s names module %s", m, g.Module)
		}
	}
	if len(a.Groups) != len(module.All()) {
		return fmt.Errorf("aggregate holds %d groups, want %d", len(a.Groups), len(module.All()))
	}
	return nil
}

func (a *Aggregate) checkGroup(g *Group) error {
	if g == nil {
		return errors.New("nil group")
	}
	if !g.Module.Valid() {
		return &module.UnknownError{Name: string(g.Module)}
	}
	seen := make(map[string]struct{}, len(g.Variables))
	for _, v := range g.Variables {
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%s: duplicate variable %q", g.Module, v.Name)
		}
		seen[v.Name] = struct{}{}
		if v.Width < 1 {
			return fmt.Errorf("%w: %s/%s has width %d", ErrShape, g.Module, v.Name, v.Width)
		}
		if want := a.Index.Len() * v.Width; len(v.Values) != want {
			return fmt.Errorf("%w: %s/%s has %d values, want %d", ErrShape, g.Module, v.Name, len(v.Values), want)
		}
	}
	return nil
}

// VersionLabel renders a version number the way object keys and file names
// show it.
func VersionLabel(version uint64) string {
	return fmt.Sprintf("%04d", version)
}
