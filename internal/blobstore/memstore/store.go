package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/sosappend/internal/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

// Op names a store operation for fault hooks.
type Op string

const (
	OpGet         Op = "get"
	OpPutIfAbsent Op = "put_if_absent"
	OpSwap        Op = "swap"
	OpList        Op = "list"
)

// FaultFunc returns a non-nil error to make an operation fail before it
// touches any state.
type FaultFunc func(op Op, key string) error

type entry struct {
	data  []byte
	token string
}

// Store is an in-memory blobstore.Store.
type Store struct {
	objects sync.Map // Key: object key, Value: *entry
	seq     atomic.Uint64
	mu      sync.RWMutex
	fault   FaultFunc
}

// Option customizes a Store during construction.
type Option func(*Store)

// WithFault installs a fault hook at construction time.
func WithFault(f FaultFunc) Option {
	return func(s *Store) {
		s.fault = f
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault replaces the fault hook; nil removes it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) check(op Op, key string) error {
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return nil
	}
	if err := f(op, key); err != nil {
		return blobstore.Unavailable(string(op), key, err)
	}
	return nil
}

func (s *Store) newEntry(data []byte) *entry {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &entry{data: buf, token: strconv.FormatUint(s.seq.Add(1), 10)}
}

// Get implements blobstore.Store.
func (s *Store) Get(ctx context.Context, key string) (blobstore.Object, error) {
	if err := s.check(OpGet, key); err != nil {
		return blobstore.Object{}, err
	}
	v, ok := s.objects.Load(key)
	if !ok {
		return blobstore.Object{}, blobstore.ErrNotExist
	}
	e := v.(*entry)
	buf := make([]byte, len(e.data))
	copy(buf, e.data)
	return blobstore.Object{Key: key, Data: buf, Token: e.token}, nil
}

// PutIfAbsent implements blobstore.Store.
func (s *Store) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.check(OpPutIfAbsent, key); err != nil {
		return "", err
	}
	return s.create(key, data)
}

func (s *Store) create(key string, data []byte) (string, error) {
	e := s.newEntry(data)
	if _, loaded := s.objects.LoadOrStore(key, e); loaded {
		return "", blobstore.ErrPrecondition
	}
	return e.token, nil
}

// Swap implements blobstore.Store.
func (s *Store) Swap(ctx context.Context, key, expectToken string, data []byte) (string, error) {
	if err := s.check(OpSwap, key); err != nil {
		return "", err
	}
	if expectToken == "" {
		return s.create(key, data)
	}
	v, ok := s.objects.Load(key)
	if !ok {
		return "", blobstore.ErrPrecondition
	}
	cur := v.(*entry)
	if cur.token != expectToken {
		return "", blobstore.ErrPrecondition
	}
	next := s.newEntry(data)
	if !s.objects.CompareAndSwap(key, cur, next) {
		return "", blobstore.ErrPrecondition
	}
	return next.token, nil
}

// List implements blobstore.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(OpList, prefix); err != nil {
		return nil, err
	}
	var keys []string
	s.objects.Range(func(k, _ any) bool {
		if key := k.(string); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a key unconditionally. Only tests and tooling use it; the
// commit protocol never deletes.
func (s *Store) Delete(key string) {
	s.objects.Delete(key)
}
