// Package collection implements an incrementally loaded, filterable list.
//
// A Controller holds the items fetched so far for one query. Page 1 replaces the list, later
// pages append. Every query change starts a new generation; a response from an older
// generation, or one that completes after the signed-in identity changed, is discarded.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
)

const DefaultPageSize = 10

var (
	// ErrStale is returned when a fetch completed but was superseded before it could be applied.
	ErrStale = errors.New("collection: response superseded")
	// ErrQueryMismatch is returned when a page beyond the first is requested for a query other
	// than the current one.
	ErrQueryMismatch = errors.New("collection: page requested for a query that is not current")
)

// Keyed items can be removed by id.
type Keyed interface {
	Key() int64
}

// Page is one fetched page. PageSize is the size the server actually used; zero means the
// requested size.
type Page[T any] struct {
	Items    []T
	Total    int
	PageSize int
}

// Fetcher loads one page (1-based) for a query.
type Fetcher[T Keyed, Q comparable] func(ctx context.Context, q Q, page, pageSize int) (Page[T], error)

// Snapshot is a consistent copy of the controller state for rendering.
type Snapshot[T any, Q comparable] struct {
	Items    []T
	Query    Q
	Page     int
	Total    int
	PageSize int
	HasMore  bool
	Loading  bool
	Err      error
}

type Controller[T Keyed, Q comparable] struct {
	fetch    Fetcher[T, Q]
	pageSize int
	epochFn  func() uint64
	metrics  *metrics.CollectionMetrics

	mu         sync.Mutex
	query      Q
	items      []T
	page       int
	total      int
	hasMore    bool
	inflight   int
	err        error
	generation uint64
}

type Option[T Keyed, Q comparable] func(*Controller[T, Q])

// WithPageSize overrides DefaultPageSize. Non-positive values are ignored.
func WithPageSize[T Keyed, Q comparable](n int) Option[T, Q] {
	return func(c *Controller[T, Q]) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSessionEpoch ties the controller to an identity epoch. A fetch whose epoch changed while
// it was in flight is not applied.
func WithSessionEpoch[T Keyed, Q comparable](fn func() uint64) Option[T, Q] {
	return func(c *Controller[T, Q]) { c.epochFn = fn }
}

func WithMetrics[T Keyed, Q comparable](m *metrics.CollectionMetrics) Option[T, Q] {
	return func(c *Controller[T, Q]) { c.metrics = m }
}

func New[T Keyed, Q comparable](fetch Fetcher[T, Q], opts ...Option[T, Q]) *Controller[T, Q] {
	c := &Controller[T, Q]{fetch: fetch, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ticket[Q comparable] struct {
	query      Q
	page       int
	generation uint64
	epoch      uint64
}

// FetchPage loads page of q. Page 1 replaces the list and supersedes anything in flight;
// later pages append and must be for the current query.
func (c *Controller[T, Q]) FetchPage(ctx context.Context, q Q, page int) error {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	t, err := c.beginLocked(q, page)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.run(ctx, t)
}

// LoadMore fetches the next page of the current query. It reports false without fetching
// while another fetch is in flight, when nothing has been loaded yet, or when the server
// has no more items.
func (c *Controller[T, Q]) LoadMore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.inflight > 0 || !c.hasMore || c.page == 0 {
		c.mu.Unlock()
		return false, nil
	}
	t, err := c.beginLocked(c.query, c.page+1)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	return true, c.run(ctx, t)
}

// SetQuery drops the loaded items and fetches page 1 of q.
func (c *Controller[T, Q]) SetQuery(ctx context.Context, q Q) error {
	c.mu.Lock()
	c.clearLocked()
	c.query = q
	c.mu.Unlock()
	return c.FetchPage(ctx, q, 1)
}

// beginLocked registers a fetch. c.mu must be held.
func (c *Controller[T, Q]) beginLocked(q Q, page int) (ticket[Q], error) {
	if page == 1 {
		c.generation++
	} else if q != c.query {
		return ticket[Q]{}, fmt.Errorf("%w: page %d", ErrQueryMismatch, page)
	}
	c.inflight++
	return ticket[Q]{query: q, page: page, generation: c.generation, epoch: c.epoch()}, nil
}

func (c *Controller[T, Q]) run(ctx context.Context, t ticket[Q]) error {
	res, fetchErr := c.fetch(ctx, t.query, t.page, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--

	if reason := c.staleReasonLocked(t); reason != "" {
		c.recordStale(reason)
		slog.DebugContext(ctx, "Discarding superseded page", "page", t.page, "reason", reason)
		if fetchErr != nil {
			return fmt.Errorf("%w: %w", ErrStale, fetchErr)
		}
		return ErrStale
	}

	kind := "first"
	if t.page > 1 {
		kind = "next"
	}
	if fetchErr != nil {
		c.err = fetchErr
		c.recordFetch(kind, "error")
		return fetchErr
	}

	if t.page == 1 {
		c.query = t.query
		c.items = append([]T(nil), res.Items...)
	} else {
		c.items = append(c.items, res.Items...)
	}
	c.page = t.page
	c.err = nil

	c.total = res.Total
	if c.total < len(c.items) {
		slog.WarnContext(ctx, "Server total below loaded item count", "total", res.Total, "loaded", len(c.items))
		c.total = len(c.items)
	}
	size := res.PageSize
	if size <= 0 {
		size = c.pageSize
	}
	c.hasMore = c.total > c.page*size

	c.recordFetch(kind, "applied")
	return nil
}

// staleReasonLocked reports why a finished fetch must not be applied, or "" if it may.
func (c *Controller[T, Q]) staleReasonLocked(t ticket[Q]) string {
	switch {
	case t.generation != c.generation:
		return "generation"
	case t.epoch != c.epoch():
		return "epoch"
	case t.page > 1 && t.page != c.page+1:
		return "page"
	default:
		return ""
	}
}

// InsertLocal prepends an item the server has confirmed creating.
func (c *Controller[T, Q]) InsertLocal(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T{item}, c.items...)
	c.total++
	c.recordMutation("insert")
}

// RemoveLocal drops the item with the given key after a confirmed remote delete.
func (c *Controller[T, Q]) RemoveLocal(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if it.Key() == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			if c.total > 0 {
				c.total--
			}
			c.recordMutation("remove")
			return true
		}
	}
	return false
}

// UpdateLocal replaces the loaded item with the same key after a confirmed remote update.
func (c *Controller[T, Q]) UpdateLocal(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if it.Key() == item.Key() {
			items := append([]T(nil), c.items...)
			items[i] = item
			c.items = items
			c.recordMutation("update")
			return true
		}
	}
	return false
}

// Reset drops everything and invalidates fetches in flight.
func (c *Controller[T, Q]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	var zero Q
	c.query = zero
}

func (c *Controller[T, Q]) clearLocked() {
	c.generation++
	c.items = nil
	c.page = 0
	c.total = 0
	c.hasMore = false
	c.err = nil
}

func (c *Controller[T, Q]) Snapshot() Snapshot[T, Q] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[T, Q]{
		Items:    append([]T(nil), c.items...),
		Query:    c.query,
		Page:     c.page,
		Total:    c.total,
		PageSize: c.pageSize,
		HasMore:  c.hasMore,
		Loading:  c.inflight > 0,
		Err:      c.err,
	}
}

// Query returns the query the loaded items belong to.
func (c *Controller[T, Q]) Query() Q {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Loaded reports whether at least one page has been applied since the last reset.
func (c *Controller[T, Q]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page > 0
}

func (c *Controller[T, Q]) epoch() uint64 {
	if c.epochFn == nil {
		return 0
	}
	return c.epochFn()
}

func (c *Controller[T, Q]) recordFetch(kind, result string) {
	if c.metrics != nil {
		c.metrics.Fetches.WithLabelValues(kind, result).Inc()
	}
}

func (c *Controller[T, Q]) recordStale(reason string) {
	if c.metrics != nil {
		c.metrics.StaleResponses.WithLabelValues(reason).Inc()
	}
}

func (c *Controller[T, Q]) recordMutation(op string) {
	if c.metrics != nil {
		c.metrics.LocalMutations.WithLabelValues(op).Inc()
	}
}
