package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the application stage shown on the dashboard.
type JobStatus string

const (
	StatusApplied   JobStatus = "applied"
	StatusInterview JobStatus = "interview"
	StatusOffer     JobStatus = "offer"
	StatusRejected  JobStatus = "rejected"
	StatusClosed    JobStatus = "closed"
	StatusUnknown   JobStatus = "unknown"
)

// ParseStatus converts a raw API value into a JobStatus. Matching is case-insensitive.
func ParseStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusClosed, StatusUnknown:
		return st, nil
	}
	return StatusUnknown, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// NormalizeStatus is ParseStatus without the error: anything unrecognised is StatusUnknown.
func NormalizeStatus(s string) JobStatus {
	st, _ := ParseStatus(s)
	return st
}

// BadgeClass returns the CSS classes used to render the status pill.
func (s JobStatus) BadgeClass() string {
	switch s {
	case StatusApplied:
		return "bg-blue-100 text-blue-800"
	case StatusInterview:
		return "bg-yellow-100 text-yellow-800"
	case StatusOffer:
		return "bg-green-100 text-green-800"
	case StatusRejected:
		return "bg-red-100 text-red-800"
	default:
		return "bg-gray-100 text-gray-800"
	}
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Job is one tracked application. Identity is ID, unique within a collection.
type Job struct {
	ID          int64
	Title       string
	Company     string
	Location    string
	CategoryID  int64
	Category    *Category
	Status      JobStatus
	CreatedAt   time.Time
	Description string
}

// Key identifies the job inside a paginated collection.
func (j Job) Key() int64 { return j.ID }

// CategoryName returns the embedded category name, or "" when the API did not expand it.
func (j Job) CategoryName() string {
	if j.Category == nil {
		return ""
	}
	return j.Category.Name
}

// JobInput is the payload for creating or replacing a job.
type JobInput struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	CategoryID  int64     `json:"category_id"`
	Location    string    `json:"location,omitempty"`
	Status      JobStatus `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
}

// JobPatch is a partial job update. Nil fields are not sent.
type JobPatch struct {
	Title       *string    `json:"title,omitempty"`
	Company     *string    `json:"company,omitempty"`
	CategoryID  *int64     `json:"category_id,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Status      *JobStatus `json:"status,omitempty"`
	Description *string    `json:"description,omitempty"`
}
