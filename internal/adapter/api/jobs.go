package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

// ListJobs fetches one 1-based page. Both the page/limit and skip/limit conventions are sent
// so either server flavour returns the same slice.
func (c *Client) ListJobs(ctx context.Context, q domain.JobQuery, page, pageSize int) (*domain.JobPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("skip", strconv.Itoa((page-1)*pageSize))
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.CategoryID > 0 {
		params.Set("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.SortBy != "" {
		params.Set("sort_by", q.SortBy)
		if q.SortOrder != "" {
			params.Set("sort_order", string(q.SortOrder))
		}
	}

	var dto jobListDTO
	if err := c.Do(ctx, http.MethodGet, "/jobs/", nil, &dto, WithQuery(params)); err != nil {
		return nil, err
	}

	entries := dto.entries()
	jobs := make([]domain.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.toDomain())
	}
	size := pageSize
	if dto.Limit > 0 {
		size = dto.Limit
	}
	return &domain.JobPage{Jobs: jobs, Total: dto.Total, PageSize: size}, nil
}

func (c *Client) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	var dto jobDTO
	if err := c.Do(ctx, http.MethodGet, jobPath(id), nil, &dto); err != nil {
		return nil, err
	}
	job := dto.toDomain()
	return &job, nil
}

func (c *Client) CreateJob(ctx context.Context, in domain.JobInput) (*domain.Job, error) {
	var dto jobDTO
	if err := c.Do(ctx, http.MethodPost, "/jobs/", in, &dto); err != nil {
		return nil, err
	}
	job := dto.toDomain()
	return &job, nil
}

func (c *Client) UpdateJob(ctx context.Context, id int64, patch domain.JobPatch) (*domain.Job, error) {
	var dto jobDTO
	if err := c.Do(ctx, http.MethodPut, jobPath(id), patch, &dto); err != nil {
		return nil, err
	}
	job := dto.toDomain()
	return &job, nil
}

// DeleteJob accepts both 204 and a {message} body.
func (c *Client) DeleteJob(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, jobPath(id), nil, nil)
}

func jobPath(id int64) string {
	return "/jobs/" + strconv.FormatInt(id, 10)
}
