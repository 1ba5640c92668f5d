package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api/apitest"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/clientstate"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "secret"
)

// --- Mock categorySource ---

type mockCategorySource struct {
	calls atomic.Int32
	getFn func(ctx context.Context) ([]domain.Category, error)
}

func (m *mockCategorySource) Get(ctx context.Context) ([]domain.Category, error) {
	m.calls.Add(1)
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return nil, nil
}

// --- Test fixture ---

type testEnv struct {
	api        *apitest.Server
	registry   *app.Registry
	categories *mockCategorySource
	category   domain.Category
	server     *Server
	http       *httptest.Server
}

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:         "test",
		Port:           "0",
		SessionSecret:  "test-session-secret-with-enough-bytes",
		SessionMaxAge:  time.Hour,
		PageSize:       5,
		LoginRateLimit: 100,
		LoginRateBurst: 100,
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	fake := apitest.New(t)
	fake.AddUser(testEmail, "ada", testPassword)
	cat := fake.AddCategory("Engineering")
	fake.AddJobs("job", cat.ID, 12)

	reg := prometheus.NewRegistry()
	workspaces := app.NewRegistry(
		app.RegistryConfig{APIBaseURL: fake.URL, PageSize: 5},
		clientstate.NewMemoryProvider(clockwork.NewRealClock(), 0),
		clockwork.NewRealClock(),
		app.RegistryMetrics{
			Workspaces: metrics.NewWorkspaceMetrics(reg),
			API:        metrics.NewAPIMetrics(reg),
			Session:    metrics.NewSessionMetrics(reg),
			Collection: metrics.NewCollectionMetrics(reg),
		},
	)
	t.Cleanup(workspaces.Stop)

	categories := &mockCategorySource{
		getFn: func(context.Context) ([]domain.Category, error) {
			return []domain.Category{cat}, nil
		},
	}

	srv, err := NewServer(newTestConfig(), workspaces, categories, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return &testEnv{
		api:        fake,
		registry:   workspaces,
		categories: categories,
		category:   cat,
		server:     srv,
		http:       ts,
	}
}

// --- Browser helper ---

// browser keeps cookies between requests and never follows redirects.
type browser struct {
	t      *testing.T
	base   *url.URL
	jar    *cookiejar.Jar
	client *http.Client
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse(e.http.URL)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		jar:  jar,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string, header ...string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base.String()+path, nil)
	require.NoError(b.t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return b.do(req)
}

// post submits form with the browser's CSRF token attached.
func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get("csrf_token") == "" {
		form.Set("csrf_token", b.csrfToken())
	}
	return b.postRaw(path, form)
}

func (b *browser) postRaw(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base.String()+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) csrfToken() string {
	b.t.Helper()
	if tok := b.cookie("csrf_token"); tok != "" {
		return tok
	}
	b.get("/login")
	tok := b.cookie("csrf_token")
	require.NotEmpty(b.t, tok, "csrf cookie not issued")
	return tok
}

func (b *browser) cookie(name string) string {
	for _, c := range b.jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) login() {
	b.t.Helper()
	resp, _ := b.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	require.Equal(b.t, "/dashboard", resp.Header.Get("Location"))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
