// Package embcache caches embedding service responses in a key-value store.
// The cache is purely an optimization: a hit returns a payload structurally
// identical to a fresh computation, and entries expire after a TTL so stale
// synonym data is never served.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/db"
	"github.com/prodreg/reestr/internal/domain"
)

const cacheKeyPrefix = "reestr:emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder is a caching decorator over a domain.Embedder.
//
// Keys hash the original text, the mode flags, the synonym dictionary version
// and the model identifier. The normalized/augmented text is a pure function
// of those inputs, so it is covered transitively; hashing it directly would
// require the upstream call the cache exists to avoid.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	ttl        time.Duration
	model      string
	synVersion string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// Config holds cache decorator settings.
type Config struct {
	TTL             time.Duration
	Model           string
	SynonymsVersion string
	CacheTotal      *prometheus.CounterVec // counter with label "result" ("hit"/"miss")
	Logger          *zap.Logger
}

// New creates a caching decorator.
func New(inner domain.Embedder, s store, cfg Config) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		ttl:        cfg.TTL,
		model:      cfg.Model,
		synVersion: cfg.SynonymsVersion,
		cacheTotal: cfg.CacheTotal,
		logger:     cfg.Logger,
	}
}

// Embed returns a cached result or calls the inner embedder and stores the
// response. Cache failures degrade to a miss, never to an error.
func (c *CachedEmbedder) Embed(ctx context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	key := c.cacheKey(req)

	if result, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return result, nil
	}
	c.incCache("miss")

	result, err := c.inner.Embed(ctx, req)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	c.putToCache(ctx, key, result)
	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

type keyMaterial struct {
	Original        string `json:"original"`
	Normalize       bool   `json:"normalize"`
	ApplySynonyms   bool   `json:"apply_synonyms"`
	SynonymsVersion string `json:"synonyms_version"`
	Model           string `json:"model"`
}

func (c *CachedEmbedder) cacheKey(req domain.EmbedRequest) string {
	material, _ := json.Marshal(keyMaterial{
		Original:        req.Text,
		Normalize:       req.Normalize,
		ApplySynonyms:   req.ApplySynonyms,
		SynonymsVersion: c.synVersion,
		Model:           c.model,
	})
	h := sha256.Sum256(material)
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) (domain.EmbeddingResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return domain.EmbeddingResult{}, false
	}
	if len(data) == 0 {
		return domain.EmbeddingResult{}, false
	}

	var result domain.EmbeddingResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return domain.EmbeddingResult{}, false
	}
	if len(result.Embedding) == 0 {
		return domain.EmbeddingResult{}, false
	}
	return result, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, result domain.EmbeddingResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to encode embedding for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

var _ domain.Embedder = (*CachedEmbedder)(nil)
