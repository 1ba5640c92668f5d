package httpserver

import (
	"html/template"
	"strings"
	"time"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"statusLabel": func(s domain.JobStatus) string {
		if s == "" {
			return "Unknown"
		}
		return strings.ToUpper(string(s[:1])) + string(s[1:])
	},
	"categoryName": func(cats []domain.Category, id int64) string {
		for _, c := range cats {
			if c.ID == id {
				return c.Name
			}
		}
		return ""
	},
}
