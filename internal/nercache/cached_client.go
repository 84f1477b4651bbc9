package nercache

import (
	"context"
	"sync/atomic"

	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/metrics"
	"mcp-pii-proxy/internal/ner"
)

// CachedClient decorates an ner.Client with a Store, so repeated chunks
// (identical text + language under the same entity-type allowlist) skip
// the network round trip to the NER provider entirely. It implements
// ner.Client itself, so it drops into RedactText exactly where a bare
// provider client would. A single CachedClient is shared across concurrent
// tool invocations, so its hit/miss counters must be safe to update from
// multiple goroutines at once (spec.md §5).
type CachedClient struct {
	underlying           ner.Client
	store                Store
	allowlistFingerprint string
	metrics              *metrics.Metrics
	log                  *logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedClient wraps underlying with store. allowlistFingerprint should
// change whenever the caller's entity-type allowlist changes (e.g. per
// compliance profile), so cache entries are never served across a
// different allowlist — see profile.Profile.AllowlistFingerprint. m may be
// nil, in which case hits/misses are still tracked locally (see Stats) but
// not reported through /metrics.
func NewCachedClient(underlying ner.Client, store Store, allowlistFingerprint string, m *metrics.Metrics, log *logger.Logger) *CachedClient {
	return &CachedClient{
		underlying:           underlying,
		store:                store,
		allowlistFingerprint: allowlistFingerprint,
		metrics:              m,
		log:                  log,
	}
}

func (c *CachedClient) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHits.Add(1)
	}
}

func (c *CachedClient) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMisses.Add(1)
	}
}

func (c *CachedClient) ContainsPII(ctx context.Context, text, language string) ([]string, error) {
	key := Key(text, language, c.allowlistFingerprint)
	if result, ok := c.store.Get(key); ok && result.ContainsDone {
		c.recordHit()
		return result.Labels, nil
	}
	c.recordMiss()

	labels, err := c.underlying.ContainsPII(ctx, text, language)
	if err != nil {
		return nil, err
	}
	// Cache the negative result too (empty labels): a contains_pii=false
	// chunk should also short-circuit on the next identical request.
	c.store.SetContains(key, labels)
	return labels, nil
}

func (c *CachedClient) DetectPII(ctx context.Context, text, language string) ([]ner.Entity, error) {
	key := Key(text, language, c.allowlistFingerprint)
	if result, ok := c.store.Get(key); ok && result.DetectDone {
		c.recordHit()
		return result.Entities, nil
	}
	c.recordMiss()

	entities, err := c.underlying.DetectPII(ctx, text, language)
	if err != nil {
		return nil, err
	}
	c.store.SetDetect(key, entities)
	return entities, nil
}

// Stats returns the cumulative hit/miss counts since construction.
func (c *CachedClient) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the underlying store's resources (e.g. closes the bbolt
// database file).
func (c *CachedClient) Close() error {
	return c.store.Close()
}
