package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutIfAbsentAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "na/constrained/v1")
	require.ErrorIs(t, err, blobstore.ErrNotExist)

	token, err := s.PutIfAbsent(ctx, "na/constrained/v1", []byte("one"))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = s.PutIfAbsent(ctx, "na/constrained/v1", []byte("two"))
	require.ErrorIs(t, err, blobstore.ErrPrecondition)

	obj, err := s.Get(ctx, "na/constrained/v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), obj.Data)
	assert.Equal(t, token, obj.Token)

	// Returned data must not alias stored data.
	obj.Data[0] = 'X'
	again, err := s.Get(ctx, "na/constrained/v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), again.Data)
}

func TestSwap(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.Swap(ctx, "latest", "", []byte("1"))
	require.NoError(t, err)

	_, err = s.Swap(ctx, "latest", "", []byte("1"))
	require.ErrorIs(t, err, blobstore.ErrPrecondition, "empty token requires absence")

	second, err := s.Swap(ctx, "latest", first, []byte("2"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = s.Swap(ctx, "latest", first, []byte("3"))
	require.ErrorIs(t, err, blobstore.ErrPrecondition, "stale token must lose")

	_, err = s.Swap(ctx, "missing", "7", []byte("x"))
	require.ErrorIs(t, err, blobstore.ErrPrecondition)
}

func TestList(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"na/constrained/v2", "na/constrained/v1", "eu/constrained/v1", "na/constrained/latest"} {
		_, err := s.PutIfAbsent(ctx, k, nil)
		require.NoError(t, err)
	}

	keys, err := s.List(ctx, "na/constrained/")
	require.NoError(t, err)
	assert.Equal(t, []string{"na/constrained/latest", "na/constrained/v1", "na/constrained/v2"}, keys)
}

func TestFault(t *testing.T) {
	boom := errors.New("boom")
	s := New(WithFault(func(op Op, key string) error {
		if op == OpSwap {
			return boom
		}
		return nil
	}))
	ctx := context.Background()

	_, err := s.PutIfAbsent(ctx, "k", []byte("v"))
	require.NoError(t, err)

	_, err = s.Swap(ctx, "latest", "", []byte("1"))
	require.ErrorIs(t, err, blobstore.ErrUnavailable)
	require.ErrorIs(t, err, boom)

	s.SetFault(nil)
	_, err = s.Swap(ctx, "latest", "", []byte("1"))
	require.NoError(t, err)
}

// TestSwap_ConcurrentWriters verifies that exactly one of many writers holding
// the same token wins the swap.
func TestSwap_ConcurrentWriters(t *testing.T) {
	s := New()
	ctx := context.Background()
	token, err := s.Swap(ctx, "latest", "", []byte("0"))
	require.NoError(t, err)

	const writers = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.Swap(ctx, "latest", token, []byte(fmt.Sprint(i)))
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, blobstore.ErrPrecondition)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
