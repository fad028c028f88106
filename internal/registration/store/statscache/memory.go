package statscache

import (
	"context"
	"maps"
	"sync"
	"time"

	"feria/internal/registration/models"
)

// MemoryCache is the single-process counterpart of RedisCache, used when no
// Redis is configured and the store lives in the same process.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	generation int64
	summary    *models.Summary
	expires    time.Time
}

// NewMemory constructs an in-process summary cache.
func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

// Get returns a copy of the cached summary; ok is false on a miss or after expiry.
func (c *MemoryCache) Get(_ context.Context) (*models.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return cloneSummary(c.summary), true, nil
}

// Generation returns the invalidation counter.
func (c *MemoryCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

// Set stores summary unless an Invalidate ran after generation was read.
func (c *MemoryCache) Set(_ context.Context, summary *models.Summary, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return nil
	}
	c.summary = cloneSummary(summary)
	c.expires = c.now().Add(c.ttl)
	return nil
}

// Invalidate bumps the generation and drops the cached summary.
func (c *MemoryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.summary = nil
	return nil
}

func cloneSummary(s *models.Summary) *models.Summary {
	return &models.Summary{
		Total:    s.Total,
		ByState:  maps.Clone(s.ByState),
		BySector: maps.Clone(s.BySector),
	}
}
