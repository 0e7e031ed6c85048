package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ident(s string) string { return s }

func TestLoaderCache_MissThenHit(t *testing.T) {
	loads := atomic.Int32{}
	c := NewLoaderCache[string, string](10, time.Minute, ident)

	load := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		return key + "-loaded", nil
	}

	v, hit, err := c.GetWithStats(context.Background(), "a", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "a-loaded", v)

	v, hit, err = c.GetWithStats(context.Background(), "a", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "a-loaded", v)

	assert.Equal(t, int32(1), loads.Load())
}

func TestLoaderCache_LoadErrorNotCached(t *testing.T) {
	loads := atomic.Int32{}
	boom := errors.New("boom")
	c := NewLoaderCache[string, int](10, time.Minute, ident)

	_, err := c.Get(context.Background(), "k", func(context.Context, string) (int, error) {
		loads.Add(1)
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := c.Get(context.Background(), "k", func(context.Context, string) (int, error) {
		loads.Add(1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), loads.Load())
}

func TestLoaderCache_CoalescesConcurrentLoads(t *testing.T) {
	loads := atomic.Int32{}
	release := make(chan struct{})
	c := NewLoaderCache[string, string](10, time.Minute, ident)

	load := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		<-release
		return key, nil
	}

	const goroutines = 8

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := c.Get(context.Background(), "same", load)
			assert.NoError(t, err)
			assert.Equal(t, "same", v)
		}()
	}

	// Give all goroutines time to reach the singleflight group.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestLoaderCache_Invalidate(t *testing.T) {
	loads := atomic.Int32{}
	c := NewLoaderCache[string, string](10, time.Minute, ident)

	load := func(_ context.Context, key string) (string, error) {
		loads.Add(1)
		return key, nil
	}

	_, err := c.Get(context.Background(), "x", load)
	require.NoError(t, err)

	c.Invalidate("x")

	_, err = c.Get(context.Background(), "x", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}
