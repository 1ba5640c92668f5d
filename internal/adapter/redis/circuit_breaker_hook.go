package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
)

// CircuitBreakerHook fails Redis calls fast while Redis is unhealthy. While open, GETs of
// keys read in the last cacheTTL are answered from memory so signed-in users keep their
// session; writes fail, and deletes still drop the key from memory so a logged-out token is
// never served. The cache holds at most maxCachedKeys live entries.
type CircuitBreakerHook struct {
	cb    circuitbreaker.CircuitBreaker[any]
	cache *cacheStore
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

type cacheStore struct {
	mu        sync.RWMutex
	values    map[string]cachedValue
	lastSweep time.Time
}

type cachedValue struct {
	data      string
	timestamp time.Time
}

const (
	cacheTTL      = 5 * time.Minute
	maxCachedKeys = 10_000
)

// NewCircuitBreakerHook trips at a 60% failure rate over at least 5 requests in a 10s window,
// probes again after 30s and closes after one good call. m may be nil.
func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	builder := circuitbreaker.Builder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1)
	return newCircuitBreakerHook(builder, m)
}

func newCircuitBreakerHook(builder circuitbreaker.CircuitBreakerBuilder[any], m *metrics.RedisMetrics) *CircuitBreakerHook {
	cb := builder.
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed", "component", "redis", "from", e.OldState.String(), "to", e.NewState.String())
			if m != nil {
				m.BreakerStateChanges.WithLabelValues(e.NewState.String()).Inc()
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{
		cb:    cb,
		cache: &cacheStore{values: make(map[string]cachedValue)},
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) record(err error) {
	if err == nil || errors.Is(err, goredis.Nil) {
		h.cb.RecordSuccess()
		return
	}
	h.cb.RecordError(err)
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("circuit breaker dial failed: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		if err != nil {
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.handleFallback(cmd)
		}

		err := next(ctx, cmd)
		h.record(err)

		if err == nil || errors.Is(err, goredis.Nil) {
			h.cacheResult(cmd)
			return err
		}
		return fmt.Errorf("circuit breaker process failed: %w", err)
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		h.record(err)
		if err != nil {
			return fmt.Errorf("circuit breaker pipeline failed: %w", err)
		}
		return nil
	}
}

func (h *CircuitBreakerHook) handleFallback(cmd goredis.Cmder) error {
	switch cmd.Name() {
	case "get":
		if result, ok := h.getFromCache(cmd); ok {
			if c, ok := cmd.(*goredis.StringCmd); ok {
				slog.Debug("Circuit breaker open, serving from cache", "command", "get")
				c.SetVal(result)
				return nil
			}
		}
		return fmt.Errorf("redis circuit breaker open and no cached value: %w", circuitbreaker.ErrOpen)

	case "del", "unlink":
		// The delete never reached Redis, but the cache must not hand the key out again.
		h.cache.forget(cmd.Args()[1:]...)
	}
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

// cacheResult mirrors successful reads and writes; deleted keys are forgotten.
func (h *CircuitBreakerHook) cacheResult(cmd goredis.Cmder) {
	args := cmd.Args()
	if len(args) < 2 {
		return
	}
	key := fmt.Sprintf("%v", args[1])

	switch cmd.Name() {
	case "get":
		c, ok := cmd.(*goredis.StringCmd)
		if !ok {
			return
		}
		if value, err := c.Result(); err == nil {
			h.cache.put(key, value, time.Now())
		} else {
			h.cache.forget(key)
		}

	case "set":
		if len(args) < 3 {
			return
		}
		h.cache.put(key, fmt.Sprintf("%v", args[2]), time.Now())

	case "del", "unlink":
		h.cache.forget(args[1:]...)
	}
}

func (h *CircuitBreakerHook) getFromCache(cmd goredis.Cmder) (string, bool) {
	args := cmd.Args()
	if len(args) < 2 {
		return "", false
	}
	return h.cache.get(fmt.Sprintf("%v", args[1]), time.Now())
}

func (c *cacheStore) get(key string, now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.values[key]
	if !ok || now.Sub(cached.timestamp) > cacheTTL {
		return "", false
	}
	return cached.data, true
}

// put stores value unless the cache is full of live entries. Expired entries are swept at
// most once per cacheTTL, or whenever the cache is full.
func (c *cacheStore) put(key, value string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; (!exists && len(c.values) >= maxCachedKeys) || now.Sub(c.lastSweep) > cacheTTL {
		c.sweepLocked(now)
	}
	if _, exists := c.values[key]; !exists && len(c.values) >= maxCachedKeys {
		return
	}
	c.values[key] = cachedValue{data: value, timestamp: now}
}

func (c *cacheStore) forget(keys ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, fmt.Sprintf("%v", k))
	}
}

func (c *cacheStore) sweepLocked(now time.Time) {
	for k, v := range c.values {
		if now.Sub(v.timestamp) > cacheTTL {
			delete(c.values, k)
		}
	}
	c.lastSweep = now
}

func (c *cacheStore) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// State returns the current breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

// Metrics returns the breaker's execution counters.
func (h *CircuitBreakerHook) Metrics() circuitbreaker.Metrics {
	return h.cb.Metrics()
}
