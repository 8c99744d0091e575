// Package cache is the two-tier cache (C2): an in-memory LRU fronting a
// badger-backed disk tier, with a single-flight guarantee on getOrCompute
// and an hourly sweep that expires and, if the disk tier grows past a
// size budget, evicts the oldest entries by last access.
//
// Grounded on the dual-algorithm compression and tier-promotion shape of
// a compress-and-promote disk cache, plus a ticker-driven background
// cleanup worker for disk size enforcement.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by Get when no tier holds a live entry for the key.
var ErrMiss = fmt.Errorf("cache: miss")

// Stats are the hit/miss counters required for observability by §4.2.
type Stats struct {
	MemoryHits   int64
	DiskHits     int64
	Misses       int64
	DiskBytes    int64
	MemoryLen    int
}

// Config configures a Cache instance.
type Config struct {
	MemoryCapacity  int           // entry count, default 200
	DiskDir         string        // badger directory
	SweepInterval   time.Duration // default 1 hour
	DiskSizeBudget  int64         // bytes, default 100 MiB
	EvictFraction   float64       // default 0.25
	// LockBackend, when set, is acquired (keyed "cache:"+key) around
	// getOrCompute's load in addition to the in-process singleflight.Group.
	// A process that finds the lock already held does not wait for the
	// holder; it runs its own loader, so identical loads in different
	// processes are not collapsed into one.
	LockBackend DistributedLock
}

// DistributedLock is the minimal surface Cache needs from a cross-process
// lock backend (satisfied by internal/common/redis.Client).
type DistributedLock interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Cache is the C2 component. Safe for concurrent use.
type Cache struct {
	memory *memoryTier
	disk    *diskTier
	group   singleflight.Group
	lock    DistributedLock
	logger  *zap.Logger

	cfg Config

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = 200
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.DiskSizeBudget <= 0 {
		cfg.DiskSizeBudget = 100 * 1024 * 1024
	}
	if cfg.EvictFraction <= 0 {
		cfg.EvictFraction = 0.25
	}

	disk, err := openDiskTier(cfg.DiskDir, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		memory: newMemoryTier(cfg.MemoryCapacity),
		disk:   disk,
		lock:   cfg.LockBackend,
		logger: logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	c.startSweep()
	return c, nil
}

// Get returns the cached value for key, promoting a disk hit to memory.
func (c *Cache) Get(key string) ([]byte, error) {
	if v, ok := c.memory.get(key); ok {
		c.recordHit(true)
		return v, nil
	}
	if v, ok := c.disk.get(key); ok {
		c.recordHit(false)
		c.memory.put(key, v, time.Hour) // promoted entries default to a short memory TTL
		return v, nil
	}
	c.recordMiss()
	return nil, ErrMiss
}

// Put writes value to both tiers with the given TTL.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	c.memory.put(key, value, ttl)
	if err := c.disk.put(key, value, ttl); err != nil {
		// Disk is advisory: a write failure never fails the call, per §4.2.
		c.logger.Warn("disk cache write failed, serving from memory only", zap.String("key", key), zap.Error(err))
	}
}

// Loader computes a fresh value for a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// GetOrCompute returns the cached value for key, or computes it via loader
// if absent. Concurrent callers with the same key share one in-flight
// load; if the load fails, every waiter receives the same error.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	if v, err := c.Get(key); err == nil {
		return v, nil
	}

	if c.lock != nil {
		acquired, err := c.lock.AcquireLock(ctx, "cache:"+key, "1", ttl)
		if err == nil && !acquired {
			// Another process is already loading this key; fall through to
			// the in-process singleflight, which runs the loader here as
			// well, since there is no cross-process wait/notify channel.
		} else if err == nil {
			defer func() { _ = c.lock.ReleaseLock(ctx, "cache:"+key) }()
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, err := c.Get(key); err == nil {
			return v, nil
		}
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(key string) {
	c.memory.invalidate(key)
	_ = c.disk.invalidate(key)
}

// ClearExpired removes expired entries from the memory tier immediately
// (the disk tier relies on badger's own TTL plus the periodic sweep).
func (c *Cache) ClearExpired() int {
	return c.memory.clearExpired()
}

// Stats returns a snapshot of hit/miss counters and tier sizes.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	snapshot := c.stats
	c.mu.Unlock()
	snapshot.DiskBytes = c.disk.size()
	snapshot.MemoryLen = c.memory.len()
	return snapshot
}

// Close stops the sweep worker and closes the disk tier.
func (c *Cache) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.disk.close()
}

func (c *Cache) recordHit(memory bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if memory {
		c.stats.MemoryHits++
	} else {
		c.stats.DiskHits++
	}
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Misses++
}

func (c *Cache) startSweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.runSweep()
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

func (c *Cache) runSweep() {
	expired := c.memory.clearExpired()
	if expired > 0 {
		c.logger.Debug("memory tier sweep removed expired entries", zap.Int("count", expired))
	}

	size := c.disk.size()
	if size <= c.cfg.DiskSizeBudget {
		return
	}

	evicted, err := c.disk.evictOldest(c.cfg.EvictFraction)
	if err != nil {
		c.logger.Warn("disk tier eviction sweep failed", zap.Error(err))
		return
	}
	c.logger.Info("disk tier over budget, evicted oldest entries",
		zap.Int64("size_bytes", size),
		zap.Int64("budget_bytes", c.cfg.DiskSizeBudget),
		zap.Int("evicted", evicted))
}
