package domain

import "strings"

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// JobQuery holds the dashboard filters. It is comparable so a change of any field can be detected
// with ==; a changed query always restarts paging at page 1.
type JobQuery struct {
	Search     string
	CategoryID int64
	SortBy     string
	SortOrder  SortOrder
}

var sortFields = map[string]bool{"id": true, "title": true, "company": true, "created_at": true}

// Normalize trims the search term and drops sort settings the API does not accept.
func (q JobQuery) Normalize() JobQuery {
	q.Search = strings.Join(strings.Fields(q.Search), " ")
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	if !sortFields[q.SortBy] {
		q.SortBy = ""
	}
	switch SortOrder(strings.ToLower(string(q.SortOrder))) {
	case SortAsc:
		q.SortOrder = SortAsc
	case SortDesc:
		q.SortOrder = SortDesc
	default:
		q.SortOrder = ""
	}
	if q.SortBy == "" {
		q.SortOrder = ""
	}
	if q.CategoryID < 0 {
		q.CategoryID = 0
	}
	return q
}

// JobPage is one page of jobs as returned by the API.
type JobPage struct {
	Jobs     []Job
	Total    int
	PageSize int
}
