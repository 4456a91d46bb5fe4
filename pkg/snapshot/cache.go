package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by a Fetcher when the upstream store has no
// snapshot for the entity. The runtime recovers it with the default context.
var ErrNotFound = errors.New("snapshot not found")

// Source records where a resolved snapshot came from, for explanation trails
// and metrics.
type Source string

const (
	SourceHot      Source = "hot"      // process-local hot cache
	SourceUpstream Source = "upstream" // coalesced upstream fetch
	SourceFallback Source = "fallback" // last-known-good fallback after an upstream error
	SourceDefault  Source = "default"  // anonymous default context (cache miss)
	SourceIngest   Source = "ingest"   // written by the snapshot ingest boundary
)

// Fetcher retrieves a snapshot from the upstream context store. Fetch
// returns ErrNotFound when the entity has no snapshot and any other error on
// an upstream outage.
type Fetcher interface {
	Fetch(ctx context.Context, tenant, entityID string) (*Snapshot, error)
}

// Notifier receives asynchronous rehydration signals when the read path
// misses an entity. Implementations must not block.
type Notifier interface {
	Rehydrate(tenant, entityID string)
}

// CacheConfig configures the context cache.
type CacheConfig struct {
	// TTL is how long a hot entry serves reads before the next read
	// revalidates upstream. Entries ingested directly have the same TTL.
	// Default: 15 seconds (the write path's freshness SLO).
	TTL time.Duration

	// RehydrateInterval rate-limits rehydration signals per entity.
	// Default: 30 seconds.
	RehydrateInterval time.Duration
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:               15 * time.Second,
		RehydrateInterval: 30 * time.Second,
	}
}

// CacheMetrics receives cache observations. Implementations must be
// non-blocking; a nil-safe noop is used when unset.
type CacheMetrics interface {
	ObserveLookup(source Source)
}

type cacheEntry struct {
	snap    *Snapshot
	expires time.Time
}

// Cache is the read path's context cache. It is written through full-snapshot
// replacement only: by the ingest boundary (Put) and by coalesced upstream
// fetches. Reads never mutate entries.
type Cache struct {
	config   *CacheConfig
	fetcher  Fetcher // may be nil: ingest-only deployments
	notifier Notifier
	metrics  CacheMetrics
	logger   *slog.Logger

	mu       sync.RWMutex
	entries  map[string]cacheEntry
	fallback map[string]*Snapshot // last known good, no TTL

	group singleflight.Group

	signalMu sync.Mutex
	signaled map[string]time.Time
}

// NewCache creates a context cache. fetcher and notifier may be nil.
func NewCache(config *CacheConfig, fetcher Fetcher, notifier Notifier) *Cache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &Cache{
		config:   config,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   slog.Default().With("component", "snapshot.cache"),
		entries:  make(map[string]cacheEntry),
		fallback: make(map[string]*Snapshot),
		signaled: make(map[string]time.Time),
	}
}

// SetMetrics installs a metrics sink. Must be called before serving traffic.
func (c *Cache) SetMetrics(m CacheMetrics) {
	c.metrics = m
}

func cacheKey(tenant, entityID string) string {
	return tenant + "\x00" + entityID
}

// Get resolves the snapshot for (tenant, entityID).
//
// Resolution order: hot cache, coalesced upstream fetch, last-known-good
// fallback, default context. A plain miss (no snapshot anywhere, upstream
// reachable or absent) yields the default context plus an async rehydration
// signal. An upstream outage with an empty fallback returns an error so the
// caller can fail closed.
func (c *Cache) Get(ctx context.Context, tenant, entityID string) (*Snapshot, Source, error) {
	key := cacheKey(tenant, entityID)
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		c.observe(SourceHot)
		return entry.snap, SourceHot, nil
	}

	if c.fetcher == nil {
		// Ingest-only deployment: an expired entry is still the last
		// known good; a true miss is the default context.
		if ok {
			c.observe(SourceHot)
			return entry.snap, SourceHot, nil
		}
		c.signalRehydrate(tenant, entityID)
		c.observe(SourceDefault)
		return Default(tenant, entityID), SourceDefault, nil
	}

	// Coalesce: concurrent requests for the same key share one in-flight
	// fetch and all resume when it completes.
	v, err, _ := c.group.Do(key, func() (any, error) {
		snap, err := c.fetcher.Fetch(ctx, tenant, entityID)
		if err != nil {
			return nil, err
		}
		c.store(key, snap)
		return snap, nil
	})

	if err == nil {
		c.observe(SourceUpstream)
		return v.(*Snapshot), SourceUpstream, nil
	}

	if errors.Is(err, ErrNotFound) {
		c.signalRehydrate(tenant, entityID)
		c.observe(SourceDefault)
		return Default(tenant, entityID), SourceDefault, nil
	}

	// Upstream outage: degrade to the process-local last-known-good copy.
	c.mu.RLock()
	lkg, ok := c.fallback[key]
	c.mu.RUnlock()
	if ok {
		c.logger.Warn("upstream snapshot fetch failed, serving last known good",
			"tenant", tenant,
			"entity_id", entityID,
			"snapshot_age", lkg.Age(now).String(),
			"error", err,
		)
		c.observe(SourceFallback)
		return lkg, SourceFallback, nil
	}

	c.observe(SourceDefault)
	return nil, "", fmt.Errorf("snapshot fetch failed for %s/%s with no fallback: %w", tenant, entityID, err)
}

// Put replaces the cached snapshot for the snapshot's (tenant, entity) key.
// This is the ingest boundary's full-replacement write.
func (c *Cache) Put(snap *Snapshot) {
	c.store(cacheKey(snap.Tenant, snap.EntityID), snap)
}

func (c *Cache) store(key string, snap *Snapshot) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{snap: snap, expires: time.Now().Add(c.config.TTL)}
	c.fallback[key] = snap
	c.mu.Unlock()
}

// Len returns the number of hot entries (including expired ones).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// signalRehydrate asks the write path to (re)materialize the entity. Signals
// are best effort, non-blocking, and rate-limited per entity.
func (c *Cache) signalRehydrate(tenant, entityID string) {
	if c.notifier == nil {
		return
	}

	key := cacheKey(tenant, entityID)
	now := time.Now()

	c.signalMu.Lock()
	last, ok := c.signaled[key]
	if ok && now.Sub(last) < c.config.RehydrateInterval {
		c.signalMu.Unlock()
		return
	}
	c.signaled[key] = now
	c.signalMu.Unlock()

	go c.notifier.Rehydrate(tenant, entityID)
}

func (c *Cache) observe(source Source) {
	if c.metrics != nil {
		c.metrics.ObserveLookup(source)
	}
}
