package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"golang.org/x/sync/singleflight"
)

type categoryLister interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// CategoryCache shares the category list across all workspaces. Concurrent misses collapse
// into one request. When a refresh fails the previous list is served if there is one.
type CategoryCache struct {
	lister  categoryLister
	clock   clockwork.Clock
	ttl     time.Duration
	metrics *metrics.CacheMetrics
	group   singleflight.Group

	mu        sync.RWMutex
	cats      []domain.Category
	fetchedAt time.Time
	loaded    bool
}

func NewCategoryCache(lister categoryLister, clock clockwork.Clock, ttl time.Duration, m *metrics.CacheMetrics) *CategoryCache {
	return &CategoryCache{lister: lister, clock: clock, ttl: ttl, metrics: m}
}

func (c *CategoryCache) Get(ctx context.Context) ([]domain.Category, error) {
	c.mu.RLock()
	if c.loaded && c.clock.Since(c.fetchedAt) < c.ttl {
		cats := c.cats
		c.mu.RUnlock()
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return cats, nil
	}
	c.mu.RUnlock()
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}

	v, err, _ := c.group.Do("categories", func() (any, error) {
		cats, err := c.lister.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cats = cats
		c.fetchedAt = c.clock.Now()
		c.loaded = true
		c.mu.Unlock()
		return cats, nil
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.LoadErrors.Inc()
		}
		c.mu.RLock()
		stale, ok := c.cats, c.loaded
		c.mu.RUnlock()
		if ok {
			slog.WarnContext(ctx, "Category refresh failed, serving previous list", "error", err)
			return stale, nil
		}
		return nil, err
	}
	return v.([]domain.Category), nil
}

// Name resolves a category id against the cached list.
func (c *CategoryCache) Name(ctx context.Context, id int64) string {
	cats, err := c.Get(ctx)
	if err != nil {
		return ""
	}
	for _, cat := range cats {
		if cat.ID == id {
			return cat.Name
		}
	}
	return ""
}

// Invalidate forces the next Get to reload. The current list stays available as a fallback.
func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
