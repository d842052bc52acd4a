package sosid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrIndexMismatch marks a data integrity violation between a contribution
// (or a stored SoS version) and the canonical index.
var ErrIndexMismatch = errors.New("identifier index mismatch")

// MismatchError describes why data failed to align with an index.
type MismatchError struct {
	Continent string
	Reason    string
	Unknown   []Identifier
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "identifier index mismatch for continent %q: %s", e.Continent, e.Reason)
	if len(e.Unknown) > 0 {
		shown := e.Unknown
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts := make([]string, len(shown))
		for i, id := range shown {
			parts[i] = string(id)
		}
		fmt.Fprintf(&b, " (%d unknown, e.g. %s)", len(e.Unknown), strings.Join(parts, ", "))
	}
	return b.String()
}

// Is makes errors.Is(err, ErrIndexMismatch) hold.
func (e *MismatchError) Is(target error) bool {
	return target == ErrIndexMismatch
}

// Index is the ordered identifier set of one continent. It is immutable once
// built and safe to share between goroutines and SoS versions.
type Index struct {
	continent string
	ids       []Identifier
	pos       map[Identifier]int
	timeSteps int
}

// Option customizes an Index during construction.
type Option func(*Index)

// WithTimeSteps records the length of the time dimension shared by every
// identifier of the continent.
func WithTimeSteps(n int) Option {
	return func(ix *Index) {
		ix.timeSteps = n
	}
}

// New builds an index. The slice is copied; order is preserved as given.
func New(continent string, ids []Identifier, opts ...Option) (*Index, error) {
	ix := &Index{
		continent: continent,
		ids:       make([]Identifier, len(ids)),
		pos:       make(map[Identifier]int, len(ids)),
	}
	copy(ix.ids, ids)

	var dups []Identifier
	for i, id := range ix.ids {
		if id == "" {
			return nil, &MismatchError{Continent: continent, Reason: fmt.Sprintf("empty identifier at position %d", i)}
		}
		if _, exists := ix.pos[id]; exists {
			dups = append(dups, id)
			continue
		}
		ix.pos[id] = i
	}
	if len(dups) > 0 {
		return nil, &MismatchError{Continent: continent, Reason: "duplicate identifiers", Unknown: dups}
	}

	for _, opt := range opts {
		opt(ix)
	}
	if ix.timeSteps < 0 {
		return nil, fmt.Errorf("index for %q: time steps must be >= 0, got %d", continent, ix.timeSteps)
	}
	return ix, nil
}

// Continent returns the continent code the index belongs to.
func (ix *Index) Continent() string { return ix.continent }

// Len returns the number of identifiers.
func (ix *Index) Len() int { return len(ix.ids) }

// TimeSteps returns the length of the time dimension, zero when unknown.
func (ix *Index) TimeSteps() int { return ix.timeSteps }

// At returns the identifier at position i.
func (ix *Index) At(i int) Identifier { return ix.ids[i] }

// IDs returns a copy of the ordered identifiers.
func (ix *Index) IDs() []Identifier {
	out := make([]Identifier, len(ix.ids))
	copy(out, ix.ids)
	return out
}

// Position returns the position of id and whether it is a member.
func (ix *Index) Position(id Identifier) (int, bool) {
	i, ok := ix.pos[id]
	return i, ok
}

// Contains reports membership.
func (ix *Index) Contains(id Identifier) bool {
	_, ok := ix.pos[id]
	return ok
}

// Equal reports whether both indexes name the same continent, identifiers
// and order. The time dimension is compared too since it shapes series data.
func (ix *Index) Equal(other *Index) bool {
	if ix == nil || other == nil {
		return ix == other
	}
	if ix.continent != other.continent || ix.timeSteps != other.timeSteps || len(ix.ids) != len(other.ids) {
		return false
	}
	for i, id := range ix.ids {
		if other.ids[i] != id {
			return false
		}
	}
	return true
}

// Check validates that ids is a subset of the index with no more entries
// than the index holds. Duplicates in ids count against the size check.
func (ix *Index) Check(ids []Identifier) error {
	if len(ids) > len(ix.ids) {
		return &MismatchError{
			Continent: ix.continent,
			Reason:    fmt.Sprintf("%d identifiers reported, index holds %d", len(ids), len(ix.ids)),
		}
	}
	var unknown []Identifier
	for _, id := range ids {
		if !ix.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
		return &MismatchError{Continent: ix.continent, Reason: "identifiers not in index", Unknown: unknown}
	}
	return nil
}
