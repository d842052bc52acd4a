// Package gcsstore implements blobstore.Store on Google Cloud Storage. The
// object generation is the token; conditional writes use generation
// preconditions.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/specialistvlad/sosappend/internal/blobstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ blobstore.Store = (*Store)(nil)

// Config selects the bucket. Endpoint and Anonymous exist for emulators.
type Config struct {
	Bucket    string
	Endpoint  string
	Anonymous bool
}

// Store is a GCS-backed blobstore.Store.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// New creates a client using application default credentials unless
// cfg.Anonymous is set.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket)}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func classify(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return blobstore.ErrNotExist
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return blobstore.ErrNotExist
		case http.StatusPreconditionFailed:
			return blobstore.ErrPrecondition
		}
	}
	return blobstore.Unavailable(op, key, err)
}

func formatToken(generation int64) string {
	return strconv.FormatInt(generation, 10)
}

func parseToken(token string) (int64, error) {
	gen, err := strconv.ParseInt(token, 10, 64)
	if err != nil || gen <= 0 {
		return 0, fmt.Errorf("invalid generation token %q", token)
	}
	return gen, nil
}

// Get implements blobstore.Store.
func (s *Store) Get(ctx context.Context, key string) (blobstore.Object, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return blobstore.Object{}, classify("get", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return blobstore.Object{}, classify("get", key, err)
	}
	return blobstore.Object{Key: key, Data: data, Token: formatToken(r.Attrs.Generation)}, nil
}

func (s *Store) write(ctx context.Context, op, key string, cond storage.Conditions, data []byte) (string, error) {
	w := s.bucket.Object(key).If(cond).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", classify(op, key, err)
	}
	if err := w.Close(); err != nil {
		return "", classify(op, key, err)
	}
	return formatToken(w.Attrs().Generation), nil
}

// PutIfAbsent implements blobstore.Store.
func (s *Store) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	return s.write(ctx, "put_if_absent", key, storage.Conditions{DoesNotExist: true}, data)
}

// Swap implements blobstore.Store.
func (s *Store) Swap(ctx context.Context, key, expectToken string, data []byte) (string, error) {
	if expectToken == "" {
		return s.PutIfAbsent(ctx, key, data)
	}
	gen, err := parseToken(expectToken)
	if err != nil {
		return "", blobstore.ErrPrecondition
	}
	return s.write(ctx, "swap", key, storage.Conditions{GenerationMatch: gen}, data)
}

// List implements blobstore.Store. Results come back in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify("list", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
