package lookup

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/metrics"
)

// LoadFunc fetches an artifact on a cache miss.
type LoadFunc func(ctx context.Context, key string) (*cube.Artifact, error)

// Cache holds artifacts for one session, keyed by canonical subset key.
//
// Readers are unlimited; concurrent misses on one key share a single load.
// Entries live until Invalidate, which a materialization run calls when it
// completes. Cached artifacts are shared and must not be modified.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cube.Artifact
	gen     uint64
	loads   singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cube.Artifact)}
}

// Get returns the cached artifact for key, calling load on a miss.
// Errors are not cached.
func (c *Cache) Get(ctx context.Context, key string, load LoadFunc) (*cube.Artifact, error) {
	c.mu.RLock()
	a, ok := c.entries[key]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		metrics.LookupCacheHits.Inc()
		return a, nil
	}
	metrics.LookupCacheMisses.Inc()

	// Loads started before an Invalidate never share with loads after it.
	// The shared load ignores this caller's cancellation; each caller stops
	// waiting on its own.
	ch := c.loads.DoChan(strconv.FormatUint(gen, 10)+"/"+key, func() (any, error) {
		a, err := load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = a
		}
		c.mu.Unlock()
		return a, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cube.Artifact), nil
	}
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cube.Artifact)
	c.gen++
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
