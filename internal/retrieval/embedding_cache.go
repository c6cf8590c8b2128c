package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medibot/pkg/logging"
)

// CachedEmbedder memoises embeddings in Redis keyed by model and text.
// Cache failures fall through to the wrapped embedder.
type CachedEmbedder struct {
	next   Embedder
	redis  *redis.Client
	model  string
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedEmbedder(next Embedder, client *redis.Client, model string, ttl time.Duration, logger *logging.Logger) *CachedEmbedder {
	if next == nil {
		panic("retrieval: cached embedder requires an embedder")
	}
	if client == nil {
		panic("retrieval: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedEmbedder{next: next, redis: client, model: model, ttl: ttl, logger: logger}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jsonErr := json.Unmarshal(data, &vec); jsonErr == nil {
			return vec, nil
		}
		c.logger.Warn("embedding cache entry corrupt", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("embedding cache read failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return vec, nil
	}
	if payload, err := json.Marshal(vec); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}
