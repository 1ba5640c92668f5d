package app

import (
	"context"
	"sync"
	"time"

	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/collection"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/session"
)

// JobCollection is the dashboard list of one workspace.
type JobCollection = collection.Controller[domain.Job, domain.JobQuery]

// Workspace is everything one browser owns: its API client, session and job list.
type Workspace struct {
	ID      string
	API     *api.Client
	Session *session.Store

	jobs *JobCollection

	mu        sync.Mutex
	jobsEpoch uint64
	lastSeen  time.Time
}

// Jobs returns the job list, dropping it first if the signed-in identity changed since it
// was loaded.
func (w *Workspace) Jobs() *JobCollection {
	epoch := w.Session.Epoch()
	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.jobsEpoch {
		w.jobs.Reset()
		w.jobsEpoch = epoch
	}
	return w.jobs
}

// Logout signs the workspace out and drops the job list.
func (w *Workspace) Logout(ctx context.Context) error {
	err := w.Session.Logout(ctx)
	w.mu.Lock()
	w.jobs.Reset()
	w.jobsEpoch = w.Session.Epoch()
	w.mu.Unlock()
	return err
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

func (w *Workspace) close() {
	w.Session.Close()
	w.jobs.Reset()
}

// jobFetcher adapts the API job listing to the collection.
func jobFetcher(client *api.Client) collection.Fetcher[domain.Job, domain.JobQuery] {
	return func(ctx context.Context, q domain.JobQuery, page, pageSize int) (collection.Page[domain.Job], error) {
		res, err := client.ListJobs(ctx, q, page, pageSize)
		if err != nil {
			return collection.Page[domain.Job]{}, err
		}
		return collection.Page[domain.Job]{Items: res.Jobs, Total: res.Total, PageSize: res.PageSize}, nil
	}
}
