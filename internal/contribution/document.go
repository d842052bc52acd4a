package contribution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sos"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

// document is the JSON layout written by the upstream stages.
type document struct {
	Module     string            `json:"module"`
	Continent  string            `json:"continent"`
	RunType    string            `json:"run_type"`
	Attributes map[string]string `json:"attributes"`
	Variables  []declaration     `json:"variables"`
	Records    []record          `json:"records"`
}

type declaration struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Series bool   `json:"series"`
}

type record struct {
	ID     sosid.Identifier           `json:"id"`
	Valid  *bool                      `json:"valid"`
	Values map[string]json.RawMessage `json:"values"`
}

type request struct {
	module    module.Name
	continent string
	runType   module.RunType
	index     *sosid.Index
	source    string
}

// Decode parses a contribution document and validates it against the request
// and the continent index.
func Decode(data []byte, m module.Name, continent string, runType module.RunType, index *sosid.Index) (*Contribution, error) {
	return decode(data, request{module: m, continent: continent, runType: runType, index: index})
}

func decode(data []byte, req request) (*Contribution, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, req.source, err)
	}

	if doc.Module != "" && !strings.EqualFold(doc.Module, string(req.module)) {
		return nil, fmt.Errorf("%w: %s: document is for module %q", ErrInvalid, req.source, doc.Module)
	}
	if doc.RunType != "" && !strings.EqualFold(doc.RunType, string(req.runType)) {
		return nil, fmt.Errorf("%w: %s: document is for run type %q", ErrInvalid, req.source, doc.RunType)
	}
	if doc.Continent != "" && !strings.EqualFold(doc.Continent, req.continent) {
		return nil, &sosid.MismatchError{
			Continent: req.continent,
			Reason:    fmt.Sprintf("%s holds data for continent %q", req.source, doc.Continent),
		}
	}

	specs, err := declarations(req.module, doc.Variables)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, req.source, err)
	}

	ids := make([]sosid.Identifier, 0, len(doc.Records))
	seen := make(map[sosid.Identifier]struct{}, len(doc.Records))
	var dups []sosid.Identifier
	for _, rec := range doc.Records {
		if _, dup := seen[rec.ID]; dup {
			dups = append(dups, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		ids = append(ids, rec.ID)
	}
	if err := req.index.Check(ids); err != nil {
		return nil, err
	}
	if len(dups) > 0 {
		return nil, &sosid.MismatchError{Continent: req.continent, Reason: "identifiers reported more than once", Unknown: dups}
	}

	byName := make(map[string]module.VariableSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	seriesWidth := sos.SeriesWidth(req.index.TimeSteps())

	c := &Contribution{
		Module:     req.module,
		Continent:  req.continent,
		RunType:    req.runType,
		Attributes: doc.Attributes,
		Variables:  specs,
		Records:    make(map[sosid.Identifier]Record, len(doc.Records)),
		Source:     req.source,
	}
	if c.Attributes == nil {
		c.Attributes = map[string]string{}
	}
	for _, rec := range doc.Records {
		r := Record{Valid: rec.Valid == nil || *rec.Valid, Values: make(map[string][]sos.Value, len(rec.Values))}
		for name, raw := range rec.Values {
			spec, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s: identifier %s carries undeclared variable %q", ErrInvalid, req.source, rec.ID, name)
			}
			width := 1
			if spec.Series {
				width = seriesWidth
			}
			cells, err := parseCells(raw, spec.Type, width)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %s/%s: %v", ErrInvalid, req.source, rec.ID, name, err)
			}
			r.Values[name] = cells
		}
		c.Records[rec.ID] = r
	}
	return c, nil
}

// declarations merges the stage's baseline variables with the document's
// declarations. Extra variables are appended in document order.
func declarations(m module.Name, decls []declaration) ([]module.VariableSpec, error) {
	specs := module.Schema(m)
	declared := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return nil, fmt.Errorf("variable declaration without a name")
		}
		if _, dup := declared[d.Name]; dup {
			return nil, fmt.Errorf("variable %q declared twice", d.Name)
		}
		declared[d.Name] = struct{}{}

		dt := module.Float64
		if d.Type != "" {
			var err error
			if dt, err = module.ParseDataType(d.Type); err != nil {
				return nil, fmt.Errorf("variable %q: %w", d.Name, err)
			}
		}
		if base, ok := module.Lookup(m, d.Name); ok {
			if base.Type != dt || base.Series != d.Series {
				return nil, fmt.Errorf("variable %q declared as %s series=%t, %s stores %s series=%t",
					d.Name, dt, d.Series, m, base.Type, base.Series)
			}
			continue
		}
		specs = append(specs, module.VariableSpec{Name: d.Name, Type: dt, Series: d.Series})
	}
	return specs, nil
}

// parseCells reads a scalar or an array of width cells. null, NaN and the
// type's fill sentinel become missing.
func parseCells(raw json.RawMessage, dt module.DataType, width int) ([]sos.Value, error) {
	raw = bytes.TrimSpace(raw)
	var items []json.RawMessage
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
	} else {
		items = []json.RawMessage{raw}
	}
	if len(items) != width {
		return nil, fmt.Errorf("got %d values, want %d", len(items), width)
	}
	cells := make([]sos.Value, width)
	for i, item := range items {
		v, err := parseCell(item, dt)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		cells[i] = sos.Normalize(dt, v)
	}
	return cells, nil
}

func parseCell(raw json.RawMessage, dt module.DataType) (sos.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return sos.Missing(), nil
	}
	if dt == module.Char {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return sos.Value{}, fmt.Errorf("want a string: %w", err)
		}
		return sos.Text(s), nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return sos.Value{}, err
		}
		if strings.EqualFold(s, "nan") {
			return sos.Missing(), nil
		}
		return sos.Value{}, fmt.Errorf("want a number, got %q", s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return sos.Value{}, fmt.Errorf("want a number: %w", err)
	}
	if dt == module.Int32 && (f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32) {
		return sos.Value{}, fmt.Errorf("%v is not a 32-bit integer", f)
	}
	return sos.Number(f), nil
}
