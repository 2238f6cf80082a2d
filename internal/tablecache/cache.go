// Package tablecache keeps the tables a dashboard session has already loaded.
//
// Each session owns a Cache, an explicit map from file path to table, reading
// through a store shared by all sessions. Loads of the same path are collapsed
// while in flight and failures are never stored, so a file that appears later
// is picked up on the next request.
package tablecache

import (
	"sync"
	"time"

	"enigh/internal/dataset"
	"enigh/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// Loader reads a table from a path.
type Loader func(path string) (*dataset.Table, error)

// Cache is a per-session read-through table cache. Safe for concurrent use.
type Cache struct {
	load    Loader
	metrics *metrics.Metrics

	mu     sync.RWMutex
	tables map[string]*dataset.Table
	group  singleflight.Group
}

// New creates a cache. A nil loader means dataset.ReadCSV; metrics may be nil.
func New(load Loader, m *metrics.Metrics) *Cache {
	if load == nil {
		load = dataset.ReadCSV
	}
	return &Cache{
		load:    load,
		metrics: m,
		tables:  make(map[string]*dataset.Table),
	}
}

// Get returns the table for path, loading it on first use.
func (c *Cache) Get(path string) (*dataset.Table, error) {
	c.mu.RLock()
	t, ok := c.tables[path]
	c.mu.RUnlock()
	if ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return t, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		c.mu.RLock()
		t, ok := c.tables[path]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}

		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
		start := time.Now()
		t, err := c.load(path)
		if c.metrics != nil {
			c.metrics.LoadDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if c.metrics != nil {
				c.metrics.CacheLoadErrors.Inc()
			}
			return nil, err
		}

		c.mu.Lock()
		c.tables[path] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dataset.Table), nil
}

// Len is the number of cached tables.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// Clear drops every table.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.tables = make(map[string]*dataset.Table)
	c.mu.Unlock()
}
