// Package s3store implements blobstore.Store on an S3-compatible bucket using
// minio-go. Object ETags serve as tokens; conditional writes use If-Match and
// If-None-Match.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/specialistvlad/sosappend/internal/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

const (
	envRoleARN              = "AWS_ROLE_ARN"
	envWebIdentityTokenFile = "AWS_WEB_IDENTITY_TOKEN_FILE"
	envRegion               = "AWS_REGION"
	envDefaultRegion        = "AWS_DEFAULT_REGION"

	DefaultEndpoint = "s3.amazonaws.com"
)

// Config selects the bucket and endpoint.
type Config struct {
	Endpoint string
	Bucket   string
	Region   string
	UseSSL   bool
}

// Store is an S3-backed blobstore.Store.
type Store struct {
	client *minio.Client
	bucket string
}

// New builds a client from environment credentials. Web identity (IRSA)
// credentials are used when both AWS_ROLE_ARN and AWS_WEB_IDENTITY_TOKEN_FILE
// are set.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	region := cfg.Region
	if region == "" {
		region = os.Getenv(envRegion)
	}
	if region == "" {
		region = os.Getenv(envDefaultRegion)
	}
	creds := credentials.NewEnvAWS()
	if os.Getenv(envWebIdentityTokenFile) != "" && os.Getenv(envRoleARN) != "" {
		creds = credentials.NewIAM("")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Region: region,
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// classify maps S3 error responses onto blobstore sentinels.
func (s *Store) classify(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchBucket":
		// Not retryable, and never a missing contribution.
		return fmt.Errorf("s3 %s %q: bucket %q does not exist: %w", op, key, s.bucket, err)
	case resp.Code == "NoSuchKey" || (resp.Code == "" && resp.StatusCode == http.StatusNotFound):
		return blobstore.ErrNotExist
	case resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed:
		return blobstore.ErrPrecondition
	case resp.StatusCode == http.StatusConflict:
		// A concurrent conditional write to the same key is in flight.
		return blobstore.ErrPrecondition
	}
	return blobstore.Unavailable(op, key, err)
}

// Get implements blobstore.Store.
func (s *Store) Get(ctx context.Context, key string) (blobstore.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return blobstore.Object{}, s.classify("get", key, err)
	}
	defer obj.Close()

	// Read before Stat: a GET error body names the missing bucket or key,
	// a HEAD response does not.
	data, err := io.ReadAll(obj)
	if err != nil {
		return blobstore.Object{}, s.classify("get", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		return blobstore.Object{}, s.classify("get", key, err)
	}
	return blobstore.Object{Key: key, Data: data, Token: info.ETag}, nil
}

func (s *Store) put(ctx context.Context, op, key string, data []byte, opts minio.PutObjectOptions) (string, error) {
	if opts.ContentType == "" {
		opts.ContentType = contentType(key)
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", s.classify(op, key, err)
	}
	return info.ETag, nil
}

// PutIfAbsent implements blobstore.Store.
func (s *Store) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	opts := minio.PutObjectOptions{}
	opts.SetMatchETagExcept("*")
	return s.put(ctx, "put_if_absent", key, data, opts)
}

// Swap implements blobstore.Store.
func (s *Store) Swap(ctx context.Context, key, expectToken string, data []byte) (string, error) {
	if expectToken == "" {
		return s.PutIfAbsent(ctx, key, data)
	}
	opts := minio.PutObjectOptions{}
	opts.SetMatchETag(expectToken)
	return s.put(ctx, "swap", key, data, opts)
}

// List implements blobstore.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, s.classify("list", prefix, info.Err)
		}
		keys = append(keys, info.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
