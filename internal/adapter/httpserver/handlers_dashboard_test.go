package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboard_FirstPage(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	resp, body := b.get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "job 5")
	assert.NotContains(t, body, "job 6")
	assert.Contains(t, body, "Load more")
	assert.Contains(t, body, "Engineering")
}

func TestDashboard_RevisitDoesNotRefetch(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()

	b.get("/dashboard")
	b.get("/dashboard")
	assert.Equal(t, 1, env.api.Calls(http.MethodGet, "/jobs/"))
}

func TestDashboard_LoadMore(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()
	b.get("/dashboard?sort_by=title&sort_order=asc")

	resp, _ := b.post("/dashboard/more", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard?sort_by=title&sort_order=asc", resp.Header.Get("Location"))

	_, body := b.get(resp.Header.Get("Location"))
	assert.Contains(t, body, "Showing 10 of 12 jobs")

	b.post("/dashboard/more", nil)
	_, body = b.get("/dashboard?sort_by=title&sort_order=asc")
	assert.Contains(t, body, "Showing 12 of 12 jobs")
	assert.NotContains(t, body, "Load more")

	b.post("/dashboard/more", nil)
	assert.Equal(t, 3, env.api.Calls(http.MethodGet, "/jobs/"), "load more past the end must not hit the API")
}

func TestDashboard_SearchResetsPaging(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()
	b.get("/dashboard")
	b.post("/dashboard/more", nil)

	_, body := b.get("/dashboard?search=job+1")
	assert.Contains(t, body, "Showing 4 of 4 jobs")
	assert.Contains(t, body, `value="job 1"`)
}

func TestDashboard_CategoryFilter(t *testing.T) {
	env := newTestEnv(t)
	other := env.api.AddCategory("Design")
	env.api.AddJobs("design", other.ID, 2)
	b := env.newBrowser(t)
	b.login()

	_, body := b.get("/dashboard?category_id=" + itoa(other.ID))
	assert.Contains(t, body, "Showing 2 of 2 jobs")
	assert.Contains(t, body, "design 1")
	assert.NotContains(t, body, "job 1")
}

func TestDashboard_ExpiredTokenSendsToLogin(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()
	env.api.RevokeAll()

	resp, _ := b.get("/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body := b.get("/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your session has expired. Please log in again.")
}

func TestDashboard_APIFailureShowsBanner(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)
	b.login()
	env.api.FailNext(http.MethodGet, "/jobs/", http.StatusInternalServerError, "db down")

	resp, body := b.get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Failed to load jobs.")
	assert.NotContains(t, body, "db down")
}

func TestDashboard_CategoriesUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.categories.getFn = func(context.Context) ([]domain.Category, error) {
		return nil, errors.New("categories offline")
	}
	b := env.newBrowser(t)
	b.login()

	resp, body := b.get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Categories are unavailable right now.")
	assert.Contains(t, body, "job 1")
}

func TestDashboardURL(t *testing.T) {
	tests := []struct {
		name string
		q    domain.JobQuery
		want string
	}{
		{name: "empty", q: domain.JobQuery{}, want: "/dashboard"},
		{name: "search", q: domain.JobQuery{Search: "go dev"}, want: "/dashboard?search=go+dev"},
		{
			name: "all fields",
			q:    domain.JobQuery{Search: "x", CategoryID: 2, SortBy: "title", SortOrder: domain.SortDesc},
			want: "/dashboard?category_id=2&search=x&sort_by=title&sort_order=desc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dashboardURL(tt.q))
		})
	}
}
