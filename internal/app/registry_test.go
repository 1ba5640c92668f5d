package app

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api/apitest"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/clientstate"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/collection"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIdleTTL = 30 * time.Minute
	wsID        = "6f1c2a4e-8d7b-4c1e-9a53-2f0e5b7d9c11"
)

type registryEnv struct {
	srv      *apitest.Server
	clock    *clockwork.FakeClock
	provider *clientstate.MemoryProvider
	reg      *Registry
	metrics  RegistryMetrics
}

func newRegistryEnv(t *testing.T) *registryEnv {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("ada@example.com", "ada", "secret")
	cat := srv.AddCategory("Engineering")
	srv.AddJobs("job", cat.ID, 12)

	clock := clockwork.NewFakeClock()
	provider := clientstate.NewMemoryProvider(clock, 0)
	reg := prometheus.NewRegistry()
	m := RegistryMetrics{
		Workspaces: metrics.NewWorkspaceMetrics(reg),
		API:        metrics.NewAPIMetrics(reg),
		Session:    metrics.NewSessionMetrics(reg),
		Collection: metrics.NewCollectionMetrics(reg),
	}
	r := NewRegistry(RegistryConfig{APIBaseURL: srv.URL, PageSize: 5, IdleTTL: testIdleTTL}, provider, clock, m)
	t.Cleanup(r.Stop)
	return &registryEnv{srv: srv, clock: clock, provider: provider, reg: r, metrics: m}
}

func (e *registryEnv) seedToken(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.provider.For(id).Set(context.Background(), domain.StateKeyToken, e.srv.IssueToken("ada@example.com")))
}

func TestAcquire_NewWorkspaceGetsFreshID(t *testing.T) {
	env := newRegistryEnv(t)

	ws, err := env.reg.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, ws.ID)
	assert.NotEqual(t, wsID, ws.ID)
	assert.Equal(t, session.Anonymous, ws.Session.State())
	assert.Equal(t, 1, env.reg.Len())

	again, err := env.reg.Acquire(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Same(t, ws, again)
	assert.InDelta(t, 1.0, testutil.ToFloat64(env.metrics.Workspaces.Created), 0.001)
}

func TestAcquire_MalformedIDReplaced(t *testing.T) {
	env := newRegistryEnv(t)

	ws, err := env.reg.Acquire(context.Background(), "../../etc/passwd")
	require.NoError(t, err)
	assert.NotEqual(t, "../../etc/passwd", ws.ID)
}

func TestAcquire_BootstrapsFromPersistedToken(t *testing.T) {
	env := newRegistryEnv(t)
	env.seedToken(t, wsID)

	ws, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)

	assert.Equal(t, wsID, ws.ID)
	snap := ws.Session.Snapshot()
	assert.Equal(t, session.Authenticated, snap.State)
	assert.Equal(t, "ada", snap.User.Username)
}

func TestAcquire_ConcurrentCallersShareOneWorkspace(t *testing.T) {
	env := newRegistryEnv(t)
	env.seedToken(t, wsID)

	var wg sync.WaitGroup
	got := make([]*Workspace, 10)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := env.reg.Acquire(context.Background(), wsID)
			assert.NoError(t, err)
			got[i] = ws
		}()
	}
	wg.Wait()

	for _, ws := range got {
		assert.Same(t, got[0], ws)
		assert.Equal(t, session.Authenticated, ws.Session.State(), "callers never see a half-bootstrapped workspace")
	}
	assert.Equal(t, 1, env.srv.Calls(http.MethodGet, "/users/me"))
}

func TestAcquire_AbortedRequestKeepsPersistedSession(t *testing.T) {
	env := newRegistryEnv(t)
	env.seedToken(t, wsID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ws, err := env.reg.Acquire(ctx, wsID)
	require.NoError(t, err)

	assert.Equal(t, session.Authenticated, ws.Session.State())
	_, err = env.provider.For(wsID).Get(context.Background(), domain.StateKeyToken)
	assert.NoError(t, err, "persisted token survives a cancelled page load")
}

func TestDiscard(t *testing.T) {
	env := newRegistryEnv(t)
	env.seedToken(t, wsID)
	ws, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)

	env.reg.Discard(wsID)
	env.reg.Discard(wsID)

	assert.Zero(t, env.reg.Len())
	_, ok := env.reg.Peek(wsID)
	assert.False(t, ok)
	assert.Zero(t, testutil.ToFloat64(env.metrics.Workspaces.Active))

	revived, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)
	assert.NotSame(t, ws, revived)
	assert.True(t, revived.Session.IsAuthenticated(), "discarding keeps persisted state")
}

func TestEvictIdle_PersistedTokenSurvives(t *testing.T) {
	env := newRegistryEnv(t)
	env.seedToken(t, wsID)
	ws, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)
	require.True(t, ws.Session.IsAuthenticated())

	env.clock.Advance(testIdleTTL + time.Minute)
	env.reg.EvictIdle()
	assert.Zero(t, env.reg.Len())
	_, ok := env.reg.Peek(wsID)
	assert.False(t, ok)
	assert.InDelta(t, 1.0, testutil.ToFloat64(env.metrics.Workspaces.Evictions), 0.001)

	revived, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)
	assert.NotSame(t, ws, revived)
	assert.True(t, revived.Session.IsAuthenticated())
}

func TestEvictIdle_RecentlyUsedWorkspaceKept(t *testing.T) {
	env := newRegistryEnv(t)
	ws, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)

	env.clock.Advance(testIdleTTL - time.Minute)
	_, ok := env.reg.Peek(ws.ID)
	require.True(t, ok)
	env.clock.Advance(2 * time.Minute)
	env.reg.EvictIdle()

	assert.Equal(t, 1, env.reg.Len())
}

func TestEvictIdle_SweepRunsOnTicker(t *testing.T) {
	env := newRegistryEnv(t)
	_, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)

	env.clock.Advance(testIdleTTL + time.Minute)
	require.Eventually(t, func() bool {
		env.clock.Advance(time.Minute)
		return env.reg.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkspace_JobsLoadThroughAPI(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()
	ws, err := env.reg.Acquire(ctx, wsID)
	require.NoError(t, err)
	_, err = ws.Session.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	jobs := ws.Jobs()
	require.NoError(t, jobs.SetQuery(ctx, domain.JobQuery{}))
	snap := jobs.Snapshot()
	assert.Len(t, snap.Items, 5)
	assert.Equal(t, 12, snap.Total)
	assert.True(t, snap.HasMore)

	fetched, err := jobs.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Len(t, jobs.Snapshot().Items, 10)
}

func TestWorkspace_LogoutDuringFetchDoesNotRepopulate(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()
	ws, err := env.reg.Acquire(ctx, wsID)
	require.NoError(t, err)
	_, err = ws.Session.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	release := env.srv.Hold()
	done := make(chan error, 1)
	go func() { done <- ws.Jobs().SetQuery(ctx, domain.JobQuery{}) }()
	require.Eventually(t, func() bool { return env.srv.Calls(http.MethodGet, "/jobs/") == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Logout(ctx))
	release()

	require.ErrorIs(t, <-done, collection.ErrStale)
	assert.Empty(t, ws.Jobs().Snapshot().Items)
	assert.Equal(t, session.Anonymous, ws.Session.State())
}

func TestWorkspace_ForcedLogoutDropsJobs(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()
	ws, err := env.reg.Acquire(ctx, wsID)
	require.NoError(t, err)
	_, err = ws.Session.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, ws.Jobs().SetQuery(ctx, domain.JobQuery{}))
	require.NotEmpty(t, ws.Jobs().Snapshot().Items)

	env.srv.RevokeAll()
	_, err = ws.Jobs().LoadMore(ctx)
	require.Error(t, err)

	assert.Equal(t, session.Anonymous, ws.Session.State())
	assert.Empty(t, ws.Jobs().Snapshot().Items)
}

func TestStop_ClosesWorkspaces(t *testing.T) {
	env := newRegistryEnv(t)
	_, err := env.reg.Acquire(context.Background(), wsID)
	require.NoError(t, err)

	env.reg.Stop()
	env.reg.Stop()

	assert.Zero(t, env.reg.Len())
}
