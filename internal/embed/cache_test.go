package embed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	err    error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.vector, c.err
}

func TestEmbed_NoCacheGoesUpstream(t *testing.T) {
	upstream := &countingEmbedder{vector: []float32{1, 2, 3}}
	cache := NewCache(upstream, nil, time.Hour, nil)

	vec, err := cache.Embed(context.Background(), "текст")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)

	_, err = cache.Embed(context.Background(), "текст")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls, "without redis every call goes upstream")
}

func TestEmbed_UpstreamErrorPropagates(t *testing.T) {
	upstream := &countingEmbedder{err: errors.New("embedding api down")}
	cache := NewCache(upstream, nil, time.Hour, nil)

	_, err := cache.Embed(context.Background(), "текст")
	assert.Error(t, err)
}

func TestCacheKey_Deterministic(t *testing.T) {
	assert.Equal(t, cacheKey("Концерт"), cacheKey("Концерт"))
	assert.NotEqual(t, cacheKey("Концерт"), cacheKey("Выставка"))
	assert.Contains(t, cacheKey("x"), keyPrefix)
}

func TestEmbed_ConcurrentCallsCollapsed(t *testing.T) {
	release := make(chan struct{})
	upstream := &blockingEmbedder{release: release, vector: []float32{1}}
	cache := NewCache(upstream, nil, time.Hour, nil)

	var wg sync.WaitGroup
	results := make([][]float32, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec, err := cache.Embed(context.Background(), "одинаковый текст")
			require.NoError(t, err)
			results[i] = vec
		}(i)
	}

	// let all goroutines pile onto the singleflight group before releasing
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, upstream.callCount(), "concurrent identical requests must share one upstream call")
	for _, vec := range results {
		assert.Equal(t, []float32{1}, vec)
	}
}

type blockingEmbedder struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	vector  []float32
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return b.vector, nil
}

func (b *blockingEmbedder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
