package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/collection"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	apperrors "github.com/sarah-ghe/Job-Tracker/internal/platform/errors"
)

func (s *Server) registerAPIRoutes(pages *echo.Group) {
	pages.GET("/api/jobs", s.handleJobsSnapshot, s.guard.Protect)
	pages.POST("/api/jobs/more", s.handleJobsLoadMore, s.guard.Protect)
}

type jobJSON struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Company     string           `json:"company"`
	Location    string           `json:"location,omitempty"`
	CategoryID  int64            `json:"category_id"`
	Category    string           `json:"category,omitempty"`
	Status      domain.JobStatus `json:"status"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type queryJSON struct {
	Search     string `json:"search,omitempty"`
	CategoryID int64  `json:"category_id,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
	SortOrder  string `json:"sort_order,omitempty"`
}

type jobsResponse struct {
	Jobs     []jobJSON `json:"jobs"`
	Query    queryJSON `json:"query"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
	Fetched  *bool     `json:"fetched,omitempty"`
}

func toJobsResponse(snap collection.Snapshot[domain.Job, domain.JobQuery]) jobsResponse {
	out := jobsResponse{
		Jobs: make([]jobJSON, 0, len(snap.Items)),
		Query: queryJSON{
			Search:     snap.Query.Search,
			CategoryID: snap.Query.CategoryID,
			SortBy:     snap.Query.SortBy,
			SortOrder:  string(snap.Query.SortOrder),
		},
		Page:     snap.Page,
		PageSize: snap.PageSize,
		Total:    snap.Total,
		HasMore:  snap.HasMore,
		Loading:  snap.Loading,
	}
	for _, j := range snap.Items {
		out.Jobs = append(out.Jobs, jobJSON{
			ID:          j.ID,
			Title:       j.Title,
			Company:     j.Company,
			Location:    j.Location,
			CategoryID:  j.CategoryID,
			Category:    j.CategoryName(),
			Status:      j.Status,
			Description: j.Description,
			CreatedAt:   j.CreatedAt,
		})
	}
	if snap.Err != nil {
		out.Error = fromAPIError(snap.Err, "failed to load jobs").Message
	}
	return out
}

func (s *Server) handleJobsSnapshot(c echo.Context) error {
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	jobs := ws.Jobs()

	q := jobs.Query()
	if len(c.QueryParams()) > 0 || !jobs.Loaded() {
		q = parseJobQuery(c)
	}
	if err := s.ensureJobsJSON(c, ws, jobs, q); err != nil {
		return err
	}
	return s.writeJSON(c, http.StatusOK, toJobsResponse(jobs.Snapshot()))
}

func (s *Server) handleJobsLoadMore(c echo.Context) error {
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	jobs := ws.Jobs()

	fetched, err := jobs.LoadMore(c.Request().Context())
	if errors.Is(err, api.ErrUnauthorized) || !ws.Session.IsAuthenticated() {
		return apperrors.UnauthorizedError("session expired")
	}
	if err != nil && !errors.Is(err, collection.ErrStale) {
		return fromAPIError(err, "failed to load more jobs")
	}

	resp := toJobsResponse(jobs.Snapshot())
	resp.Fetched = &fetched
	return s.writeJSON(c, http.StatusOK, resp)
}

func (s *Server) ensureJobsJSON(c echo.Context, ws *app.Workspace, jobs *app.JobCollection, q domain.JobQuery) error {
	err := ensureJobs(c.Request().Context(), jobs, q)
	if errors.Is(err, api.ErrUnauthorized) || !ws.Session.IsAuthenticated() {
		return apperrors.UnauthorizedError("session expired")
	}
	return nil
}
