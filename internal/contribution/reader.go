package contribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"golang.org/x/sync/errgroup"
)

// KeyFunc renders the module store key of a contribution.
type KeyFunc func(m module.Name, continent string, runType module.RunType) (string, error)

// DefaultKey lays contributions out as {module}/{run_type}/{continent}.json.
func DefaultKey(m module.Name, continent string, runType module.RunType) (string, error) {
	return strings.Join([]string{string(m), string(runType), continent + ".json"}, "/"), nil
}

// Reader loads contributions from the upstream module store.
type Reader struct {
	store blobstore.Store
	key   KeyFunc
	// limit bounds the number of concurrent reads in ReadAll; 0 is unbounded.
	limit int
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithConcurrency bounds parallel reads in ReadAll.
func WithConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		r.limit = n
	}
}

// NewReader returns a Reader over store. A nil key uses DefaultKey.
func NewReader(store blobstore.Store, key KeyFunc, opts ...ReaderOption) *Reader {
	if key == nil {
		key = DefaultKey
	}
	r := &Reader{store: store, key: key}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read loads the contribution of m. It returns ErrNotFound when the stage
// wrote nothing for the combination and an error matching
// sosid.ErrIndexMismatch when the contribution does not fit index.
func (r *Reader) Read(ctx context.Context, m module.Name, continent string, runType module.RunType, index *sosid.Index) (*Contribution, error) {
	key, err := r.key(m, continent, runType)
	if err != nil {
		return nil, fmt.Errorf("render contribution key for %s: %w", m, err)
	}
	logger := ctxlog.FromContext(ctx).With("module", m, "key", key)

	obj, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			logger.Debug("No contribution found.")
			return nil, fmt.Errorf("%w: %s %s/%s", ErrNotFound, m, continent, runType)
		}
		return nil, fmt.Errorf("read contribution %s: %w", key, err)
	}

	c, err := decode(obj.Data, request{module: m, continent: continent, runType: runType, index: index, source: key})
	if err != nil {
		return nil, err
	}
	logger.Debug("Contribution loaded.", "identifiers", len(c.Records), "variables", len(c.Variables))
	return c, nil
}

// ReadAll reads modules in parallel and returns the contributions found, in
// the order of modules. Stages without output are skipped; any other failure
// cancels the remaining reads and is returned.
func (r *Reader) ReadAll(ctx context.Context, modules []module.Name, continent string, runType module.RunType, index *sosid.Index) ([]*Contribution, error) {
	results := make([]*Contribution, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, m := range modules {
		g.Go(func() error {
			c, err := r.Read(gctx, m, continent, runType, index)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := results[:0]
	for _, c := range results {
		if c != nil {
			found = append(found, c)
		}
	}
	return found, nil
}
