package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_Layouts(t *testing.T) {
	tests := map[string]time.Time{
		`"2024-03-01T10:20:30Z"`:       time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		`"2024-03-01T12:20:30+02:00"`:  time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		`"2024-03-01T10:20:30.123456"`: time.Date(2024, 3, 1, 10, 20, 30, 123456000, time.UTC),
		`"2024-03-01T10:20:30"`:        time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		`"2024-03-01 10:20:30"`:        time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		`"2024-03-01"`:                 time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			var ts timestamp
			require.NoError(t, json.Unmarshal([]byte(in), &ts))
			assert.True(t, want.Equal(time.Time(ts)), "got %v", time.Time(ts))
		})
	}

	var ts timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, time.Time(ts).IsZero())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestJobDTO_ToDomain(t *testing.T) {
	var dto jobDTO
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 4, "title": "SRE", "company": "Acme", "status": "Ghosted",
		"category": {"id": 2, "name": "Ops"}, "created_at": "2024-01-02T03:04:05"
	}`), &dto))

	job := dto.toDomain()
	assert.Equal(t, int64(4), job.Key())
	assert.Equal(t, domain.StatusUnknown, job.Status)
	assert.Equal(t, int64(2), job.CategoryID, "category id falls back to the embedded category")
	assert.Equal(t, "Ops", job.CategoryName())
}

func TestJobListDTO_Envelopes(t *testing.T) {
	var a, b jobListDTO
	require.NoError(t, json.Unmarshal([]byte(`{"jobs":[{"id":1}],"total":1}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"items":[{"id":1},{"id":2}],"total":7,"limit":2}`), &b))

	assert.Len(t, a.entries(), 1)
	assert.Len(t, b.entries(), 2)
	assert.Equal(t, 2, b.Limit)
}

func TestParseDetail(t *testing.T) {
	msg, fields := parseDetail([]byte(`{"detail":"Nope"}`))
	assert.Equal(t, "Nope", msg)
	assert.Nil(t, fields)

	msg, fields = parseDetail([]byte(`{"detail":[{"loc":["body","email"],"msg":"bad email"},{"loc":["body","title"],"msg":"too short"}]}`))
	assert.Equal(t, "bad email; too short", msg)
	assert.Equal(t, map[string]string{"email": "bad email", "title": "too short"}, fields)

	msg, _ = parseDetail([]byte(`{"message":"Job deleted"}`))
	assert.Equal(t, "Job deleted", msg)

	msg, fields = parseDetail([]byte(`<html>502</html>`))
	assert.Empty(t, msg)
	assert.Nil(t, fields)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/jobs/:id", endpointLabel("/jobs/42"))
	assert.Equal(t, "/jobs/", endpointLabel("/jobs/"))
	assert.Equal(t, "/users/me", endpointLabel("/users/me"))
}
