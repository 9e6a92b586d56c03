package classifier

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
)

const keyPrefix = "labels:"

// Store is the key-value backend of Cache; *redis.Client satisfies it.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cache memoises classifier output by model and feature matrix. Concurrent
// identical requests share one upstream call. Store failures degrade to a
// direct call.
type Cache struct {
	next    Classifier
	store   Store
	model   string
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCache(next Classifier, store Store, model string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		next:    next,
		store:   store,
		model:   model,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "label-cache", "model", model),
	}
}

func (c *Cache) Label(ctx context.Context, features string) (string, error) {
	key := Key(c.model, features)
	if out, ok := c.get(ctx, key); ok {
		return out, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if out, ok := c.get(ctx, key); ok {
			return out, nil
		}
		out, err := c.next.Label(ctx, features)
		if err != nil {
			return "", err
		}
		if !wellFormed(features, out) {
			c.logger.Warn("not caching malformed classifier output", "key", key)
			return out, nil
		}
		if err := c.store.Set(ctx, key, out, c.ttl); err != nil {
			c.logger.Error("cache set failed", "key", key, "error", err)
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) get(ctx context.Context, key string) (string, bool) {
	out, ok, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	c.metrics.ObserveCache(ok)
	return out, ok
}

// wellFormed reports whether out carries one tagged label per non-blank
// feature row. Anything else fails alignment downstream and must not be
// served again from the cache.
func wellFormed(features, out string) bool {
	labels := ParseOutput(out)
	if len(labels) != len(ParseOutput(features)) {
		return false
	}
	for _, raw := range labels {
		if tag, _ := label.SplitRaw(raw); tag == "" {
			return false
		}
	}
	return true
}

// Key derives the cache key of a feature matrix for model.
func Key(model, features string) string {
	sum := blake3.Sum256([]byte(model + "\x00" + features))
	return keyPrefix + model + ":" + hex.EncodeToString(sum[:16])
}
