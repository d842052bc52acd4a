package app

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/blobstore/boltstore"
	"github.com/specialistvlad/sosappend/internal/blobstore/gcsstore"
	"github.com/specialistvlad/sosappend/internal/blobstore/memstore"
	"github.com/specialistvlad/sosappend/internal/blobstore/s3store"
	"github.com/specialistvlad/sosappend/internal/config"
	"github.com/specialistvlad/sosappend/internal/contribution"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/specialistvlad/sosappend/internal/module"
)

// storeSet opens the configured stores and closes them together. A bbolt
// file named by both stores is opened once, as bbolt holds an exclusive lock.
type storeSet struct {
	bolts   map[string]*boltstore.Store
	closers []io.Closer
}

func newStoreSet() *storeSet {
	return &storeSet{bolts: make(map[string]*boltstore.Store)}
}

func (s *storeSet) open(ctx context.Context, cfg config.Store) (blobstore.Store, error) {
	logger := ctxlog.FromContext(ctx).With("store", cfg.Kind)
	switch cfg.Kind {
	case config.StoreMemory:
		logger.Warn("Using an in-memory store; nothing will outlive this process.")
		return memstore.New(), nil
	case config.StoreBolt:
		if st, ok := s.bolts[cfg.Path]; ok {
			return st, nil
		}
		st, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.bolts[cfg.Path] = st
		s.closers = append(s.closers, st)
		logger.Debug("Opened bbolt store.", "path", cfg.Path)
		return st, nil
	case config.StoreS3:
		st, err := s3store.New(s3store.Config{
			Endpoint: cfg.Endpoint,
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("Opened S3 store.", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
		return st, nil
	case config.StoreGCS:
		st, err := gcsstore.New(ctx, gcsstore.Config{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			Anonymous: cfg.Anonymous,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st)
		logger.Debug("Opened GCS store.", "bucket", cfg.Bucket)
		return st, nil
	}
	return nil, fmt.Errorf("unsupported store kind %q", cfg.Kind)
}

func (s *storeSet) Close() error {
	var result *multierror.Error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}

// contributionKey renders the job's contribution template under prefix.
func contributionKey(tpl config.Template, prefix string) contribution.KeyFunc {
	return func(m module.Name, continent string, runType module.RunType) (string, error) {
		key, err := tpl.Render(map[string]string{
			"module":    string(m),
			"continent": continent,
			"run_type":  string(runType),
		})
		if err != nil {
			return "", err
		}
		return path.Join(prefix, key), nil
	}
}

// indexKey renders the job's index template under prefix.
func indexKey(tpl config.Template, prefix string) func(string) (string, error) {
	return func(continent string) (string, error) {
		key, err := tpl.Render(map[string]string{"continent": continent})
		if err != nil {
			return "", err
		}
		return path.Join(prefix, key), nil
	}
}
