// Package embed caches embedding vectors in Redis in front of the embedding
// endpoint, so reprocessing or near-identical events never pay the API twice.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kazankay/eventpipe/internal/gateway"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/metrics"
	pkgredis "github.com/kazankay/eventpipe/pkg/redis"
)

const keyPrefix = "emb:"

// Cache is an Embedder that consults Redis before the upstream client.
// Cache failures degrade to the upstream call; they are never fatal.
type Cache struct {
	upstream gateway.Embedder
	client   *pkgredis.Client
	ttl      time.Duration
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewCache wraps upstream with a Redis cache. client may be nil, in which
// case every call goes upstream.
func NewCache(upstream gateway.Embedder, client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		upstream: upstream,
		client:   client,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.WithComponent("embedding-cache"),
	}
}

// Embed returns the cached vector for text, computing and storing it on a
// miss. Concurrent calls for the same text are collapsed to one upstream
// request.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if vector, ok := c.lookup(ctx, key); ok {
		c.count("hit")
		return vector, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		vector, err := c.upstream.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, vector)
		return vector, nil
	})
	if err != nil {
		c.count("error")
		return nil, err
	}
	c.count("miss")
	return result.([]float32), nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return vector, true
}

func (c *Cache) store(ctx context.Context, key string, vector []float32) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(vector)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) count(result string) {
	if c.metrics != nil {
		c.metrics.EmbeddingCacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(sum[:])
}
