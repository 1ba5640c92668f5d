package httpserver

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	apperrors "github.com/sarah-ghe/Job-Tracker/internal/platform/errors"
)

func (s *Server) registerJobRoutes(pages *echo.Group) {
	pages.POST("/jobs", s.handleCreateJob, s.guard.Protect)
	pages.GET("/jobs/:id", s.handleJobDetail, s.guard.Protect)
	pages.POST("/jobs/:id", s.handleUpdateJob, s.guard.Protect)
	pages.POST("/jobs/:id/delete", s.handleDeleteJob, s.guard.Protect)
}

type jobPage struct {
	CSRFToken  any
	Flashes    flashes
	Job        *domain.Job
	Categories []domain.Category
	Statuses   []domain.JobStatus
}

func jobIDParam(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid job id").WithField("id", raw)
	}
	return id, nil
}

func parseStatusField(raw string) (domain.JobStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.StatusApplied, nil
	}
	st, err := domain.ParseStatus(raw)
	if err != nil {
		return "", apperrors.ValidationError("unknown job status").WithField("status", raw)
	}
	return st, nil
}

func (s *Server) handleCreateJob(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	jobs := ws.Jobs()
	back := dashboardURL(jobs.Query())

	categoryID, err := strconv.ParseInt(c.FormValue("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		s.addFlash(c, flashError, "Please choose a category.")
		return s.redirect(c, back)
	}
	status, err := parseStatusField(c.FormValue("status"))
	if err != nil {
		s.addFlash(c, flashError, "Unknown job status.")
		return s.redirect(c, back)
	}

	in := domain.JobInput{
		Title:       strings.TrimSpace(c.FormValue("title")),
		Company:     strings.TrimSpace(c.FormValue("company")),
		CategoryID:  categoryID,
		Location:    strings.TrimSpace(c.FormValue("location")),
		Status:      status,
		Description: strings.TrimSpace(c.FormValue("description")),
	}

	job, err := ws.API.CreateJob(ctx, in)
	if err != nil {
		return s.handleActionError(c, err, "Failed to add job.", back)
	}
	jobs.InsertLocal(*job)

	slog.InfoContext(ctx, "Job created", "job_id", job.ID)
	s.addFlash(c, flashNotice, "Job added.")
	return s.redirect(c, back)
}

func (s *Server) handleJobDetail(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}

	job, err := ws.API.GetJob(ctx, id)
	if errors.Is(err, api.ErrUnauthorized) {
		return s.sessionExpired(c)
	}
	if err != nil {
		return fromAPIError(err, "Failed to load job.").WithField("job_id", id)
	}

	cats, err := s.categories.Get(ctx)
	if err != nil {
		logError(c, fromAPIError(err, "Failed to load categories."))
	}

	return s.renderTemplate(c, "job.html", jobPage{
		CSRFToken:  c.Get("csrf"),
		Flashes:    s.takeFlashes(c),
		Job:        job,
		Categories: cats,
		Statuses:   selectableStatuses,
	})
}

// jobPatchFromForm only sets the fields present in the submitted form.
func jobPatchFromForm(c echo.Context) (domain.JobPatch, error) {
	form, err := c.FormParams()
	if err != nil {
		return domain.JobPatch{}, apperrors.ValidationError("malformed form")
	}

	var patch domain.JobPatch
	text := func(name string) *string {
		if _, ok := form[name]; !ok {
			return nil
		}
		v := strings.TrimSpace(form.Get(name))
		return &v
	}
	patch.Title = text("title")
	patch.Company = text("company")
	patch.Location = text("location")
	patch.Description = text("description")

	if _, ok := form["category_id"]; ok {
		id, err := strconv.ParseInt(form.Get("category_id"), 10, 64)
		if err != nil || id <= 0 {
			return domain.JobPatch{}, apperrors.ValidationError("invalid category").WithField("category_id", form.Get("category_id"))
		}
		patch.CategoryID = &id
	}
	if _, ok := form["status"]; ok {
		st, err := parseStatusField(form.Get("status"))
		if err != nil {
			return domain.JobPatch{}, err
		}
		patch.Status = &st
	}
	return patch, nil
}

func (s *Server) handleUpdateJob(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	back := "/jobs/" + strconv.FormatInt(id, 10)

	patch, err := jobPatchFromForm(c)
	if err != nil {
		return s.handleActionError(c, err, "Invalid job update.", back)
	}

	job, err := ws.API.UpdateJob(ctx, id, patch)
	if err != nil {
		return s.handleActionError(c, err, "Failed to update job.", back)
	}
	ws.Jobs().UpdateLocal(*job)

	slog.InfoContext(ctx, "Job updated", "job_id", id)
	s.addFlash(c, flashNotice, "Job updated.")
	return s.redirect(c, back)
}

func (s *Server) handleDeleteJob(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	id, err := jobIDParam(c)
	if err != nil {
		return err
	}
	jobs := ws.Jobs()
	back := dashboardURL(jobs.Query())

	if err := ws.API.DeleteJob(ctx, id); err != nil {
		return s.handleActionError(c, err, "Failed to delete job.", back)
	}
	jobs.RemoveLocal(id)

	slog.InfoContext(ctx, "Job deleted", "job_id", id)
	s.addFlash(c, flashNotice, "Job deleted.")
	return s.redirect(c, back)
}
