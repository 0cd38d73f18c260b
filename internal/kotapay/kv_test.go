package kotapay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetOrFillCaches(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var fills int32
	fill := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&fills, 1)
		return "value", time.Minute, nil
	}

	v, err := s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)
	require.Equal(t, "value", v)

	v, err = s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)
	require.Equal(t, "value", v)
	require.Equal(t, int32(1), atomic.LoadInt32(&fills))
}

func TestMemoryStoreGetOrFillExpires(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var fills int32
	fill := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&fills, 1)
		return "value", 5 * time.Millisecond, nil
	}

	_, err := s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&fills))
}

func TestMemoryStoreGetOrFillSingleFlight(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var fills int32
	fill := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&fills, 1)
		time.Sleep(20 * time.Millisecond)
		return "shared", time.Minute, nil
	}

	const callers = 10
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.GetOrFill(ctx, "k", fill)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&fills))
	for _, v := range results {
		require.Equal(t, "shared", v)
	}
}

func TestMemoryStoreGetOrFillErrorNotCached(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var fills int32
	fill := func(ctx context.Context) (string, time.Duration, error) {
		if atomic.AddInt32(&fills, 1) == 1 {
			return "", 0, errors.New("upstream down")
		}
		return "recovered", time.Minute, nil
	}

	_, err := s.GetOrFill(ctx, "k", fill)
	require.Error(t, err)

	v, err := s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)
	require.Equal(t, "recovered", v)
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Increment("counter", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
}

func TestMemoryStoreIncrementResetsAfterTTL(t *testing.T) {
	s := NewMemoryStore()

	n, err := s.Increment("counter", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	time.Sleep(20 * time.Millisecond)

	n, err = s.Increment("counter", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var fills int32
	fill := func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&fills, 1)
		return "value", time.Minute, nil
	}

	_, err := s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)

	s.Delete("k")

	_, err = s.GetOrFill(ctx, "k", fill)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&fills))
}
