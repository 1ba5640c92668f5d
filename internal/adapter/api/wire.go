package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

// timestamp accepts RFC 3339 and the zone-less ISO form Python emits for naive datetimes.
type timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

type userDTO struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Bio       *string   `json:"bio"`
	Location  *string   `json:"location"`
	IsActive  bool      `json:"is_active"`
	CreatedAt timestamp `json:"created_at"`
	UpdatedAt timestamp `json:"updated_at"`
}

func (d userDTO) toDomain() *domain.User {
	return &domain.User{
		ID:        d.ID,
		Username:  d.Username,
		Email:     d.Email,
		FirstName: deref(d.FirstName),
		LastName:  deref(d.LastName),
		Bio:       deref(d.Bio),
		Location:  deref(d.Location),
		IsActive:  d.IsActive,
		CreatedAt: time.Time(d.CreatedAt),
		UpdatedAt: time.Time(d.UpdatedAt),
	}
}

type jobDTO struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Company     string           `json:"company"`
	Location    *string          `json:"location"`
	CategoryID  int64            `json:"category_id"`
	Category    *domain.Category `json:"category"`
	Status      *string          `json:"status"`
	CreatedAt   timestamp        `json:"created_at"`
	Description *string          `json:"description"`
}

func (d jobDTO) toDomain() domain.Job {
	categoryID := d.CategoryID
	if categoryID == 0 && d.Category != nil {
		categoryID = d.Category.ID
	}
	status := domain.StatusUnknown
	if d.Status != nil {
		status = domain.NormalizeStatus(*d.Status)
	}
	return domain.Job{
		ID:          d.ID,
		Title:       d.Title,
		Company:     d.Company,
		Location:    deref(d.Location),
		CategoryID:  categoryID,
		Category:    d.Category,
		Status:      status,
		CreatedAt:   time.Time(d.CreatedAt),
		Description: deref(d.Description),
	}
}

// jobListDTO covers both list envelopes the API has shipped: {jobs,total} and {items,total,limit}.
type jobListDTO struct {
	Jobs  []jobDTO `json:"jobs"`
	Items []jobDTO `json:"items"`
	Total int      `json:"total"`
	Limit int      `json:"limit"`
}

func (d jobListDTO) entries() []jobDTO {
	if d.Jobs != nil {
		return d.Jobs
	}
	return d.Items
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
