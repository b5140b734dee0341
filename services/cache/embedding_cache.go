package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/upb/model-router/services/providers"
)

const keyPrefix = "router:embedding:"

// CachedEmbedder wraps an EmbeddingClient with a Redis cache. Cache failures
// are logged and the request falls through to the underlying client, so a
// Redis outage degrades latency but never availability.
type CachedEmbedder struct {
	inner  providers.EmbeddingClient
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedEmbedder creates a caching wrapper around an embedding client
func NewCachedEmbedder(inner providers.EmbeddingClient, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Name returns the underlying client name
func (c *CachedEmbedder) Name() string {
	return c.inner.Name()
}

// Embed returns the embedding for text, serving from Redis when possible
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.Name(), text)

	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.logger.Warn("Embedding cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) set(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

// cacheKey derives a stable key from the provider name and the normalized
// text. Hashing keeps arbitrary prompt text out of the keyspace.
func cacheKey(provider, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + provider + ":" + hex.EncodeToString(sum[:])
}
