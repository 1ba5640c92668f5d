package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/clientstate"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/collection"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/session"
	"golang.org/x/sync/singleflight"
)

const (
	minSweepInterval = time.Minute
	// Bootstrap outlives the request that triggered it: an aborted page load must not be
	// mistaken for a rejected token.
	bootstrapTimeout = 15 * time.Second
)

// RegistryConfig carries the settings every workspace is built with.
type RegistryConfig struct {
	APIBaseURL string
	HTTPClient *http.Client
	UserAgent  string
	PageSize   int
	IdleTTL    time.Duration
}

// RegistryMetrics groups the collectors handed to each workspace.
type RegistryMetrics struct {
	Workspaces *metrics.WorkspaceMetrics
	API        *metrics.APIMetrics
	Session    *metrics.SessionMetrics
	Collection *metrics.CollectionMetrics
}

// sweeper is implemented by state providers that hold expired entries in memory.
type sweeper interface {
	Sweep() int
}

// Registry maps browser workspace ids to live workspaces. A workspace is bootstrapped once
// when it is created and evicted after it has been idle for IdleTTL. Eviction only drops
// memory: the persisted token survives, so the next request bootstraps it again.
type Registry struct {
	cfg      RegistryConfig
	provider clientstate.Provider
	clock    clockwork.Clock
	metrics  RegistryMetrics

	createGroup singleflight.Group

	mu         sync.Mutex
	workspaces map[string]*Workspace

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates the registry and starts its idle sweep.
func NewRegistry(cfg RegistryConfig, provider clientstate.Provider, clock clockwork.Clock, m RegistryMetrics) *Registry {
	if cfg.PageSize <= 0 {
		cfg.PageSize = collection.DefaultPageSize
	}
	r := &Registry{
		cfg:        cfg,
		provider:   provider,
		clock:      clock,
		metrics:    m,
		workspaces: make(map[string]*Workspace),
		stopCh:     make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		r.startSweep()
	}
	return r
}

// Acquire returns the workspace for id, creating and bootstrapping it if needed. An empty or
// malformed id gets a fresh workspace; the caller must store the returned id in the cookie.
func (r *Registry) Acquire(ctx context.Context, id string) (*Workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	if ws := r.lookup(id); ws != nil {
		return ws, nil
	}

	v, err, _ := r.createGroup.Do(id, func() (any, error) {
		if ws := r.lookup(id); ws != nil {
			return ws, nil
		}
		ws := r.build(id)
		bootCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bootstrapTimeout)
		defer cancel()
		if err := ws.Session.Bootstrap(bootCtx); err != nil {
			// Bootstrap failures leave an anonymous session; the workspace is still usable.
			slog.InfoContext(ctx, "Workspace started signed out", "workspace_id", id, "error", err)
		}
		ws.jobsEpoch = ws.Session.Epoch()
		ws.touch(r.clock.Now())

		r.mu.Lock()
		r.workspaces[id] = ws
		n := len(r.workspaces)
		r.mu.Unlock()

		if r.metrics.Workspaces != nil {
			r.metrics.Workspaces.Created.Inc()
			r.metrics.Workspaces.Active.Set(float64(n))
		}
		return ws, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return v.(*Workspace), nil
}

// Peek returns the workspace for id without creating one.
func (r *Registry) Peek(id string) (*Workspace, bool) {
	ws := r.lookup(id)
	return ws, ws != nil
}

func (r *Registry) lookup(id string) *Workspace {
	r.mu.Lock()
	ws := r.workspaces[id]
	r.mu.Unlock()
	if ws != nil {
		ws.touch(r.clock.Now())
	}
	return ws
}

func (r *Registry) build(id string) *Workspace {
	state := r.provider.For(id)

	opts := []api.Option{}
	if r.cfg.HTTPClient != nil {
		opts = append(opts, api.WithHTTPClient(r.cfg.HTTPClient))
	}
	if r.cfg.UserAgent != "" {
		opts = append(opts, api.WithUserAgent(r.cfg.UserAgent))
	}
	if r.metrics.API != nil {
		opts = append(opts, api.WithMetrics(r.metrics.API))
	}
	client := api.New(r.cfg.APIBaseURL, state, opts...)

	var sessOpts []session.Option
	if r.metrics.Session != nil {
		sessOpts = append(sessOpts, session.WithMetrics(r.metrics.Session))
	}
	sess := session.New(client, state, sessOpts...)

	collOpts := []collection.Option[domain.Job, domain.JobQuery]{
		collection.WithPageSize[domain.Job, domain.JobQuery](r.cfg.PageSize),
		collection.WithSessionEpoch[domain.Job, domain.JobQuery](sess.Epoch),
	}
	if r.metrics.Collection != nil {
		collOpts = append(collOpts, collection.WithMetrics[domain.Job, domain.JobQuery](r.metrics.Collection))
	}

	return &Workspace{
		ID:      id,
		API:     client,
		Session: sess,
		jobs:    collection.New(jobFetcher(client), collOpts...),
	}
}

// Discard drops the workspace for id right away. Its persisted state is left alone.
func (r *Registry) Discard(id string) {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	delete(r.workspaces, id)
	n := len(r.workspaces)
	r.mu.Unlock()
	if !ok {
		return
	}
	ws.close()
	if r.metrics.Workspaces != nil {
		r.metrics.Workspaces.Active.Set(float64(n))
	}
}

// EvictIdle drops workspaces that have not been used for IdleTTL and returns how many went.
func (r *Registry) EvictIdle() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var evicted []*Workspace
	for id, ws := range r.workspaces {
		if ws.idleSince().Before(cutoff) {
			evicted = append(evicted, ws)
			delete(r.workspaces, id)
		}
	}
	n := len(r.workspaces)
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.close()
	}

	if s, ok := r.provider.(sweeper); ok {
		if swept := s.Sweep(); swept > 0 {
			slog.Debug("Expired client state swept", "count", swept)
		}
	}

	if r.metrics.Workspaces != nil {
		r.metrics.Workspaces.Evictions.Add(float64(len(evicted)))
		r.metrics.Workspaces.Active.Set(float64(n))
	}
	if len(evicted) > 0 {
		slog.Info("Idle workspaces evicted", "count", len(evicted), "remaining", n)
	}
	return len(evicted)
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

func (r *Registry) startSweep() {
	interval := max(r.cfg.IdleTTL/2, minSweepInterval)
	ticker := r.clock.NewTicker(interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				r.EvictIdle()
			case <-r.stopCh:
				return
			}
		}
	}()
	slog.Info("Workspace sweep started", "interval", interval.String(), "idle_ttl", r.cfg.IdleTTL.String())
}

// Stop ends the sweep and closes all workspaces.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()
	for _, ws := range all {
		ws.close()
	}
}
