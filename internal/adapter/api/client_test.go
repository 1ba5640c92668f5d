package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api/apitest"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/clientstate"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *apitest.Server
	state  *clientstate.MemoryStore
	client *api.Client
	user   domain.User
	token  string
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	srv := apitest.New(t)
	user := srv.AddUser("ada@example.com", "ada", "secret")
	state := clientstate.NewMemoryStore()
	token := srv.IssueToken(user.Email)
	require.NoError(t, state.Set(context.Background(), domain.StateKeyToken, token))

	return &fixture{
		srv:    srv,
		state:  state,
		client: api.New(srv.URL, state, opts...),
		user:   user,
		token:  token,
	}
}

func TestDo_AttachesPersistedToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+f.token, f.srv.LastHeader(http.MethodGet, "/users/me", "Authorization"))
}

func TestDo_NoTokenMeansUnauthenticated(t *testing.T) {
	f := newFixture(t)
	client := api.New(f.srv.URL, clientstate.NewMemoryStore())

	var events atomic.Int32
	client.OnUnauthorized(func(string) { events.Add(1) })

	_, err := client.CurrentUser(context.Background())
	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Empty(t, f.srv.LastHeader(http.MethodGet, "/users/me", "Authorization"))
	assert.Equal(t, int32(0), events.Load(), "nothing to invalidate without a token")
}

func TestDo_NilStateStore(t *testing.T) {
	f := newFixture(t)
	f.srv.AddCategory("Engineering")
	client := api.New(f.srv.URL, nil)

	cats, err := client.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestDo_WithTokenOverridesPersisted(t *testing.T) {
	f := newFixture(t)
	other := f.srv.AddUser("bob@example.com", "bob", "pw")
	otherToken := f.srv.IssueToken(other.Email)

	u, err := f.client.CurrentUser(api.WithToken(context.Background(), otherToken))
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
}

func TestDo_UnauthorizedEmitsSentToken(t *testing.T) {
	f := newFixture(t)
	f.srv.Revoke(f.token)

	var got []string
	f.client.OnUnauthorized(func(tok string) { got = append(got, tok) })

	_, err := f.client.CurrentUser(context.Background())
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindAuthenticationFailed, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Could not validate credentials", apiErr.Message)
	assert.Equal(t, []string{f.token}, got, "exactly one event per failing call")
}

func TestDo_UnauthorizedWithOverrideIsSilent(t *testing.T) {
	f := newFixture(t)
	var events atomic.Int32
	f.client.OnUnauthorized(func(string) { events.Add(1) })

	_, err := f.client.CurrentUser(api.WithToken(context.Background(), "garbage"))
	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, int32(0), events.Load())
}

func TestOnUnauthorized_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	f.srv.RevokeAll()

	var a, b atomic.Int32
	unsubA := f.client.OnUnauthorized(func(string) { a.Add(1) })
	f.client.OnUnauthorized(func(string) { b.Add(1) })
	unsubA()

	_, _ = f.client.CurrentUser(context.Background())
	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestDo_ConcurrentUnauthorizedEachEmitOnce(t *testing.T) {
	f := newFixture(t)
	f.srv.RevokeAll()

	var events atomic.Int32
	f.client.OnUnauthorized(func(string) { events.Add(1) })

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.client.CurrentUser(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), events.Load(), "the adapter emits per call; de-duplication belongs to the subscriber")
}

func TestDo_ErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		detail   any
		kind     api.Kind
		sentinel error
		message  string
	}{
		{"bad request", http.StatusBadRequest, "Email already registered", api.KindValidationFailed, api.ErrValidation, "Email already registered"},
		{"conflict", http.StatusConflict, "Duplicate", api.KindValidationFailed, api.ErrValidation, "Duplicate"},
		{"unprocessable list", http.StatusUnprocessableEntity, []map[string]any{{"loc": []any{"body", "title"}, "msg": "too short"}}, api.KindValidationFailed, api.ErrValidation, "too short"},
		{"not found", http.StatusNotFound, "Job not found", api.KindNotFound, api.ErrNotFound, "Job not found"},
		{"server fault", http.StatusInternalServerError, "boom", api.KindServerFault, api.ErrServerFault, "boom"},
		{"bad gateway", http.StatusBadGateway, nil, api.KindServerFault, api.ErrServerFault, ""},
		{"teapot", http.StatusTeapot, "short and stout", api.KindUnexpected, nil, "short and stout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.srv.FailNext(http.MethodGet, "/jobs/1", tt.status, tt.detail)

			_, err := f.client.GetJob(context.Background(), 1)
			require.Error(t, err)

			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.NotErrorIs(t, err, api.ErrUnauthorized)
		})
	}
}

func TestDo_ValidationFields(t *testing.T) {
	f := newFixture(t)
	f.srv.AddCategory("Engineering")

	_, err := f.client.CreateJob(context.Background(), domain.JobInput{Title: "x", Company: "Acme", CategoryID: 1})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindValidationFailed, apiErr.Kind)
	assert.Equal(t, map[string]string{"title": "String should have at least 2 characters"}, apiErr.Fields)
}

func TestDo_NetworkUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client := api.New(url, clientstate.NewMemoryStore())
	_, err := client.ListCategories(context.Background())

	require.ErrorIs(t, err, api.ErrNetworkUnreachable)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.Status)
	assert.Error(t, errors.Unwrap(err))
}

func TestDo_NeverRetries(t *testing.T) {
	f := newFixture(t)
	f.srv.FailNext(http.MethodGet, "/categories/", http.StatusServiceUnavailable, "down")

	_, err := f.client.ListCategories(context.Background())
	require.ErrorIs(t, err, api.ErrServerFault)
	assert.Equal(t, 1, f.srv.Calls(http.MethodGet, "/categories/"))
}

func TestDo_ForwardsCorrelationAndUserAgent(t *testing.T) {
	f := newFixture(t, api.WithUserAgent("job-tracker-web/test"))

	ctx := correlation.WithID(context.Background(), "abc123")
	_, err := f.client.CurrentUser(ctx)
	require.NoError(t, err)

	assert.Equal(t, "abc123", f.srv.LastHeader(http.MethodGet, "/users/me", correlation.Header))
	assert.Equal(t, "job-tracker-web/test", f.srv.LastHeader(http.MethodGet, "/users/me", "User-Agent"))
}

func TestDo_StateStoreFailure(t *testing.T) {
	f := newFixture(t)
	client := api.New(f.srv.URL, brokenStore{})

	_, err := client.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read persisted token")
	assert.Equal(t, 0, f.srv.Calls(http.MethodGet, "/users/me"))
}

func TestDo_Metrics(t *testing.T) {
	m := metrics.NewAPIMetrics(prometheus.NewRegistry())
	f := newFixture(t, api.WithMetrics(m))
	f.srv.AddJobs("Job", 0, 1)
	f.srv.Revoke(f.token)

	_, _ = f.client.GetJob(context.Background(), 1)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/jobs/:id", "authentication_failed")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Unauthorized), 0.001)
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "Username already taken", api.Detail(&api.Error{Kind: api.KindValidationFailed, Message: "Username already taken"}, "fallback"))
	assert.Equal(t, "fallback", api.Detail(&api.Error{Kind: api.KindServerFault}, "fallback"))
	assert.Equal(t, "fallback", api.Detail(errors.New("plain"), "fallback"))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errors.New("redis down") }
func (brokenStore) Set(context.Context, string, string) error    { return errors.New("redis down") }
func (brokenStore) Delete(context.Context, ...string) error      { return errors.New("redis down") }
