package sosid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
)

// Builder produces the canonical index of a continent.
type Builder interface {
	Build(ctx context.Context, continent string) (*Index, error)
}

// ErrNoIndex is returned when no index document exists for a continent.
var ErrNoIndex = errors.New("no identifier index for continent")

// Document is the JSON form of an index as published next to the module outputs.
type Document struct {
	Continent string       `json:"continent"`
	ReachIDs  []Identifier `json:"reach_ids"`
	TimeSteps int          `json:"time_steps"`
}

// BlobBuilder reads index documents from a blob store.
type BlobBuilder struct {
	store blobstore.Store
	key   func(continent string) (string, error)
}

// NewBlobBuilder returns a builder that loads the document stored at key(continent).
func NewBlobBuilder(store blobstore.Store, key func(continent string) (string, error)) *BlobBuilder {
	return &BlobBuilder{store: store, key: key}
}

// Build implements Builder.
func (b *BlobBuilder) Build(ctx context.Context, continent string) (*Index, error) {
	key, err := b.key(continent)
	if err != nil {
		return nil, fmt.Errorf("render index key for %q: %w", continent, err)
	}
	logger := ctxlog.FromContext(ctx).With("index_key", key)

	obj, err := b.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			return nil, fmt.Errorf("%w %q at %s", ErrNoIndex, continent, key)
		}
		return nil, fmt.Errorf("load index for %q: %w", continent, err)
	}

	var doc Document
	if err := json.Unmarshal(obj.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode index document %s: %w", key, err)
	}
	if doc.Continent != "" && doc.Continent != continent {
		return nil, &MismatchError{
			Continent: continent,
			Reason:    fmt.Sprintf("index document %s belongs to continent %q", key, doc.Continent),
		}
	}

	ix, err := New(continent, doc.ReachIDs, WithTimeSteps(doc.TimeSteps))
	if err != nil {
		return nil, err
	}
	logger.Debug("Identifier index loaded.", "identifiers", ix.Len(), "time_steps", ix.TimeSteps())
	return ix, nil
}

// Static is a Builder over indexes known up front, keyed by continent.
type Static map[string]*Index

// Build implements Builder.
func (s Static) Build(_ context.Context, continent string) (*Index, error) {
	ix, ok := s[continent]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoIndex, continent)
	}
	return ix, nil
}
