package httpserver

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/collection"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

func (s *Server) registerDashboardRoutes(pages *echo.Group) {
	pages.GET("/dashboard", s.handleDashboard, s.guard.Protect)
	pages.POST("/dashboard/more", s.handleLoadMore, s.guard.Protect)
}

type dashboardPage struct {
	CSRFToken  any
	Flashes    flashes
	User       *domain.User
	Jobs       collection.Snapshot[domain.Job, domain.JobQuery]
	Categories []domain.Category
	Statuses   []domain.JobStatus
	Error      string
	QueryURL   string
}

// parseJobQuery reads the dashboard filters from URL parameters.
func parseJobQuery(c echo.Context) domain.JobQuery {
	q := domain.JobQuery{
		Search:    c.QueryParam("search"),
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: domain.SortOrder(c.QueryParam("sort_order")),
	}
	if id, err := strconv.ParseInt(c.QueryParam("category_id"), 10, 64); err == nil {
		q.CategoryID = id
	}
	return q.Normalize()
}

// dashboardURL renders q back into a dashboard link.
func dashboardURL(q domain.JobQuery) string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.CategoryID > 0 {
		v.Set("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.SortBy != "" {
		v.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sort_order", string(q.SortOrder))
	}
	if len(v) == 0 {
		return "/dashboard"
	}
	return "/dashboard?" + v.Encode()
}

// ensureJobs loads page 1 of q unless the collection already holds it.
func ensureJobs(ctx context.Context, jobs *app.JobCollection, q domain.JobQuery) error {
	if jobs.Loaded() && jobs.Query() == q {
		return nil
	}
	err := jobs.SetQuery(ctx, q)
	if errors.Is(err, collection.ErrStale) {
		return nil
	}
	return err
}

func (s *Server) handleDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}

	q := parseJobQuery(c)
	jobs := ws.Jobs()
	if err := ensureJobs(ctx, jobs, q); errors.Is(err, api.ErrUnauthorized) || !ws.Session.IsAuthenticated() {
		return s.sessionExpired(c)
	}

	page := dashboardPage{
		CSRFToken: c.Get("csrf"),
		Flashes:   s.takeFlashes(c),
		User:      ws.Session.Snapshot().User,
		Jobs:      jobs.Snapshot(),
		Statuses:  selectableStatuses,
		QueryURL:  dashboardURL(q),
	}
	if page.Jobs.Err != nil {
		page.Error = fromAPIError(page.Jobs.Err, "Failed to load jobs.").Message
	}

	cats, err := s.categories.Get(ctx)
	if err != nil {
		logError(c, fromAPIError(err, "Failed to load categories."))
		if page.Error == "" {
			page.Error = "Categories are unavailable right now."
		}
	}
	page.Categories = cats

	return s.renderTemplate(c, "dashboard.html", page)
}

func (s *Server) handleLoadMore(c echo.Context) error {
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	jobs := ws.Jobs()
	back := dashboardURL(jobs.Query())

	_, err = jobs.LoadMore(c.Request().Context())
	if errors.Is(err, api.ErrUnauthorized) {
		return s.sessionExpired(c)
	}
	if err != nil && !errors.Is(err, collection.ErrStale) {
		return s.handleActionError(c, err, "Failed to load more jobs.", back)
	}
	return s.redirect(c, back)
}

var selectableStatuses = []domain.JobStatus{
	domain.StatusApplied,
	domain.StatusInterview,
	domain.StatusOffer,
	domain.StatusRejected,
	domain.StatusClosed,
}
