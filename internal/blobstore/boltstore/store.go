// Package boltstore implements blobstore.Store on a single bbolt file, giving
// local runs and tests a durable store with real transactional
// compare-and-swap.
//
// Each value is stored as an 8 byte big-endian write sequence followed by the
// blob; the sequence is the object's token.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/specialistvlad/sosappend/internal/blobstore"
	bolt "go.etcd.io/bbolt"
)

var _ blobstore.Store = (*Store)(nil)

var objectsBucket = []byte("objects")

const tokenLen = 8

// Store is a bbolt-backed blobstore.Store.
type Store struct {
	path string
	db   *bolt.DB
}

// Open opens (creating if needed) the bbolt file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %q: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket in %q: %w", path, err)
	}
	return &Store{path: path, db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(seq uint64, data []byte) []byte {
	buf := make([]byte, tokenLen+len(data))
	binary.BigEndian.PutUint64(buf, seq)
	copy(buf[tokenLen:], data)
	return buf
}

func decode(raw []byte) (string, []byte, error) {
	if len(raw) < tokenLen {
		return "", nil, fmt.Errorf("corrupt record of %d bytes", len(raw))
	}
	seq := binary.BigEndian.Uint64(raw[:tokenLen])
	data := make([]byte, len(raw)-tokenLen)
	copy(data, raw[tokenLen:])
	return strconv.FormatUint(seq, 10), data, nil
}

func (s *Store) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if err == blobstore.ErrNotExist || err == blobstore.ErrPrecondition {
		return err
	}
	return blobstore.Unavailable(op, key, err)
}

// Get implements blobstore.Store.
func (s *Store) Get(ctx context.Context, key string) (blobstore.Object, error) {
	obj := blobstore.Object{Key: key}
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(objectsBucket).Get([]byte(key))
		if raw == nil {
			return blobstore.ErrNotExist
		}
		token, data, err := decode(raw)
		if err != nil {
			return err
		}
		obj.Token, obj.Data = token, data
		return nil
	})
	if err != nil {
		return blobstore.Object{}, s.wrap("get", key, err)
	}
	return obj, nil
}

// PutIfAbsent implements blobstore.Store.
func (s *Store) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	return s.Swap(ctx, key, "", data)
}

// Swap implements blobstore.Store.
func (s *Store) Swap(ctx context.Context, key, expectToken string, data []byte) (string, error) {
	var token string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		raw := b.Get([]byte(key))
		switch {
		case expectToken == "" && raw != nil:
			return blobstore.ErrPrecondition
		case expectToken != "" && raw == nil:
			return blobstore.ErrPrecondition
		case expectToken != "":
			current, _, err := decode(raw)
			if err != nil {
				return err
			}
			if current != expectToken {
				return blobstore.ErrPrecondition
			}
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		token = strconv.FormatUint(seq, 10)
		return b.Put([]byte(key), encode(seq, data))
	})
	if err != nil {
		return "", s.wrap("swap", key, err)
	}
	return token, nil
}

// List implements blobstore.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("list", prefix, err)
	}
	return keys, nil
}
