package sos

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"github.com/vmihailenco/msgpack/v5"
)

// Format tags the container layout written by Codec.
const Format = "sos-msgpack/1"

// ErrFormat is returned when a blob is not a container this package can read.
var ErrFormat = errors.New("unsupported sos container")

// Header is the envelope metadata of a stored container.
type Header struct {
	Format    string    `msgpack:"format"`
	WrittenAt time.Time `msgpack:"written_at"`
	Writer    string    `msgpack:"writer"`
}

type envelope struct {
	Header    `msgpack:",inline"`
	Aggregate wireAggregate `msgpack:"aggregate"`
}

type wireAggregate struct {
	Continent  string            `msgpack:"continent"`
	RunType    string            `msgpack:"run_type"`
	Version    uint64            `msgpack:"version"`
	ReachIDs   []string          `msgpack:"reach_ids"`
	TimeSteps  int               `msgpack:"time_steps"`
	Attributes map[string]string `msgpack:"attributes"`
	Groups     []wireGroup       `msgpack:"groups"`
}

type wireGroup struct {
	Module      string            `msgpack:"module"`
	Contributed bool              `msgpack:"contributed"`
	Attributes  map[string]string `msgpack:"attributes"`
	Variables   []wireVariable    `msgpack:"variables"`
}

// wireVariable stores values column-wise: a presence mask plus one payload
// array for the variable's type.
type wireVariable struct {
	Name       string            `msgpack:"name"`
	Type       string            `msgpack:"type"`
	Width      int               `msgpack:"width"`
	Attributes map[string]string `msgpack:"attributes"`
	Set        []bool            `msgpack:"set"`
	Num        []float64         `msgpack:"num,omitempty"`
	Text       []string          `msgpack:"text,omitempty"`
}

// Codec converts aggregates to and from the stored container.
type Codec struct {
	// Writer identifies the process in the envelope.
	Writer string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Encode serializes a. Groups are written in canonical stage order and map
// keys sorted, so equal aggregates encode to equal aggregate sections.
func (c Codec) Encode(a *Aggregate) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("encode version %d: %w", a.Version, err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	env := envelope{
		Header:    Header{Format: Format, WrittenAt: now().UTC(), Writer: c.Writer},
		Aggregate: toWire(a),
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&env); err != nil {
		return nil, fmt.Errorf("encode version %d: %w", a.Version, err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a container.
func (c Codec) Decode(data []byte) (*Aggregate, Header, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if env.Format != Format {
		return nil, env.Header, fmt.Errorf("%w: format %q", ErrFormat, env.Format)
	}
	a, err := fromWire(env.Aggregate)
	if err != nil {
		return nil, env.Header, err
	}
	return a, env.Header, nil
}

// DecodeHeader reads only the envelope metadata of a container.
func (c Codec) DecodeHeader(data []byte) (Header, error) {
	var h struct {
		Header `msgpack:",inline"`
	}
	if err := msgpack.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if h.Format != Format {
		return h.Header, fmt.Errorf("%w: format %q", ErrFormat, h.Format)
	}
	return h.Header, nil
}

func toWire(a *Aggregate) wireAggregate {
	w := wireAggregate{
		Continent:  a.Continent,
		RunType:    string(a.RunType),
		Version:    a.Version,
		ReachIDs:   make([]string, a.Index.Len()),
		TimeSteps:  a.TimeSteps,
		Attributes: a.Attributes,
	}
	for i := range w.ReachIDs {
		w.ReachIDs[i] = string(a.Index.At(i))
	}
	for _, m := range module.All() {
		g := a.Groups[m]
		wg := wireGroup{
			Module:      string(g.Module),
			Contributed: g.Contributed,
			Attributes:  g.Attributes,
			Variables:   make([]wireVariable, 0, len(g.Variables)),
		}
		for _, v := range g.Variables {
			wg.Variables = append(wg.Variables, variableToWire(v))
		}
		w.Groups = append(w.Groups, wg)
	}
	return w
}

func variableToWire(v *Variable) wireVariable {
	wv := wireVariable{
		Name:       v.Name,
		Type:       string(v.Type),
		Width:      v.Width,
		Attributes: v.Attributes,
		Set:        make([]bool, len(v.Values)),
	}
	if v.Type == module.Char {
		wv.Text = make([]string, len(v.Values))
	} else {
		wv.Num = make([]float64, len(v.Values))
	}
	for i, val := range v.Values {
		wv.Set[i] = val.Set
		if !val.Set {
			continue
		}
		if v.Type == module.Char {
			wv.Text[i] = val.Text
		} else {
			wv.Num[i] = val.Num
		}
	}
	return wv
}

func fromWire(w wireAggregate) (*Aggregate, error) {
	runType, err := module.ParseRunType(w.RunType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	ids := make([]sosid.Identifier, len(w.ReachIDs))
	for i, id := range w.ReachIDs {
		ids[i] = sosid.Identifier(id)
	}
	index, err := sosid.New(w.Continent, ids, sosid.WithTimeSteps(w.TimeSteps))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	a := &Aggregate{
		Continent:  w.Continent,
		RunType:    runType,
		Version:    w.Version,
		Index:      index,
		TimeSteps:  w.TimeSteps,
		Attributes: orEmpty(w.Attributes),
		Groups:     make(map[module.Name]*Group, len(module.All())),
	}
	for _, wg := range w.Groups {
		name, err := module.Parse(wg.Module)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if _, dup := a.Groups[name]; dup {
			return nil, fmt.Errorf("%w: duplicate %s group", ErrFormat, name)
		}
		g := &Group{
			Module:      name,
			Contributed: wg.Contributed,
			Attributes:  orEmpty(wg.Attributes),
			Variables:   make([]*Variable, 0, len(wg.Variables)),
		}
		for _, wv := range wg.Variables {
			v, err := variableFromWire(wv)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrFormat, name, err)
			}
			g.Variables = append(g.Variables, v)
		}
		a.Groups[name] = g
	}
	// Containers written before a stage joined the enumeration lack its group.
	for _, m := range module.All() {
		if _, ok := a.Groups[m]; !ok {
			a.Groups[m] = a.EmptyGroup(m)
		}
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return a, nil
}

func variableFromWire(wv wireVariable) (*Variable, error) {
	dt, err := module.ParseDataType(wv.Type)
	if err != nil {
		return nil, err
	}
	n := len(wv.Set)
	payload := len(wv.Num)
	if dt == module.Char {
		payload = len(wv.Text)
	}
	if payload != n {
		return nil, fmt.Errorf("variable %q has %d payload values for %d cells", wv.Name, payload, n)
	}
	v := &Variable{
		Name:       wv.Name,
		Type:       dt,
		Width:      wv.Width,
		Attributes: orEmpty(wv.Attributes),
		Values:     make([]Value, n),
	}
	for i, set := range wv.Set {
		if !set {
			continue
		}
		if dt == module.Char {
			v.Values[i] = Text(wv.Text[i])
		} else {
			v.Values[i] = Number(wv.Num[i])
		}
	}
	return v, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
