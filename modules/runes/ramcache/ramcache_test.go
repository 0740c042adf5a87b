package ramcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSet(t *testing.T) {
	cache := New[int](time.Minute)

	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Set("a", 42)
	value, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	cache.Delete("a")
	_, ok = cache.Get("a")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache := New[string](time.Millisecond)
	cache.Set("a", "value")
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestGetOrFetch(t *testing.T) {
	ctx := context.Background()
	cache := New[int](time.Minute)

	var calls atomic.Int32
	fetch := func(_ context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	}

	value, err := cache.GetOrFetch(ctx, "a", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, value)

	// second call is served from cache
	value, err = cache.GetOrFetch(ctx, "a", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetchError(t *testing.T) {
	ctx := context.Background()
	cache := New[int](time.Minute)

	wantErr := errors.New("fetch failed")
	_, err := cache.GetOrFetch(ctx, "a", func(_ context.Context) (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// errors are not cached
	value, err := cache.GetOrFetch(ctx, "a", func(_ context.Context) (int, error) {
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, value)
}

func TestGetOrFetchCollapsesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	cache := New[int](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(_ context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := cache.GetOrFetch(ctx, "a", fetch)
			assert.NoError(t, err)
			assert.Equal(t, 1, value)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
