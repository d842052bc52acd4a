// Package blobstore defines the durable key-value blob store that holds both
// the upstream module outputs and the versioned SoS.
//
// # Semantics
//
// Every object carries an opaque Token that changes on every write (an S3
// ETag, a GCS generation, a bbolt sequence). Writers use tokens for
// compare-and-swap:
//
//   - PutIfAbsent creates a key and fails with ErrPrecondition if it exists.
//   - Swap replaces a key only if its current token equals the expected one.
//     An empty expected token means "the key must not exist".
//
// These two primitives are all the version commit protocol needs; no store
// keeps locks across a write.
//
// # Errors
//
// Implementations map their native errors onto three sentinels so callers
// can decide on retries without knowing the backend:
//
//   - ErrNotExist: the key is absent.
//   - ErrPrecondition: a conditional write lost.
//   - ErrUnavailable: transport or service failure; safe to retry.
package blobstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotExist     = errors.New("blobstore: object does not exist")
	ErrPrecondition = errors.New("blobstore: precondition failed")
	ErrUnavailable  = errors.New("blobstore: store unavailable")
)

// Object is a blob together with the token of the write that produced it.
type Object struct {
	Key   string
	Data  []byte
	Token string
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) (Object, error)
	PutIfAbsent(ctx context.Context, key string, data []byte) (string, error)
	Swap(ctx context.Context, key, expectToken string, data []byte) (string, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Unavailable wraps a backend failure so that errors.Is(err, ErrUnavailable) holds
// while the original error stays reachable through errors.Unwrap chains.
func Unavailable(op, key string, err error) error {
	return &unavailableError{op: op, key: key, err: err}
}

type unavailableError struct {
	op  string
	key string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("blobstore: %s %q: %v", e.op, e.key, e.err)
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}
