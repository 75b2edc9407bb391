package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/sentinel/pkg/models"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func pypiServer(t *testing.T, bodies map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/pypi/"), "/json")
		body, ok := bodies[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	c.Now = func() time.Time { return fixedNow }
	return c
}

func upload(ts string) string {
	return fmt.Sprintf(`{"info":{"name":"x","version":"1"},"urls":[{"filename":"a.whl","upload_time_iso_8601":%q},{"filename":"b.tar.gz","upload_time_iso_8601":"2000-01-01T00:00:00Z"}]}`, ts)
}

func TestAge(t *testing.T) {
	c := pypiServer(t, map[string]string{
		"requests": upload("2025-06-04T11:59:59.123456Z"),
		"fresh":    upload("2026-10-13T13:00:00Z"),
	})

	result := c.Age(context.Background(), "requests")
	require.True(t, result.OK())
	assert.Equal(t, 501, result.Value)

	// 4 days 23 hours truncates to 4
	result = c.Age(context.Background(), "fresh")
	require.True(t, result.OK())
	assert.Equal(t, 4, result.Value)
}

func TestAgeUsesFirstListedArtifact(t *testing.T) {
	c := pypiServer(t, map[string]string{"pkg": upload("2026-10-08T12:00:00Z")})

	result := c.Age(context.Background(), "pkg")
	require.True(t, result.OK())
	// the older second file is ignored
	assert.Equal(t, 10, result.Value)
}

func TestAgeFailures(t *testing.T) {
	c := pypiServer(t, map[string]string{
		"no-files":     `{"info":{},"urls":[]}`,
		"no-timestamp": `{"urls":[{"filename":"a.whl"}]}`,
		"bad-time":     `{"urls":[{"upload_time_iso_8601":"yesterday"}]}`,
		"garbage":      `not json`,
	})

	tests := []struct {
		name string
		err  error
	}{
		{"unknown", ErrNotFound},
		{"no-files", ErrNoUploads},
		{"no-timestamp", ErrNoUploads},
		{"bad-time", nil},
		{"garbage", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Age(context.Background(), tt.name)
			assert.False(t, result.OK())
			if tt.err != nil {
				assert.ErrorIs(t, result.Err, tt.err)
			}
			assert.Equal(t, models.AgeResult{}, models.AgeFrom(result))
		})
	}
}

func TestAgeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := NewClient(srv.URL).Age(context.Background(), "requests")
	assert.ErrorIs(t, result.Err, ErrUnexpectedStatus)
}

func TestAgeAll(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, upload("2026-09-18T12:00:00Z"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Now = func() time.Time { return fixedNow }

	var done atomic.Int32
	c.OnDone = func(string, bool) { done.Add(1) }

	results := c.AgeAll(context.Background(), []string{"a", "b", "a", "missing"})

	require.Len(t, results, 3)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int32(3), done.Load())
	assert.Equal(t, models.KnownAge(30), models.AgeFrom(results["a"]))
	assert.False(t, results["missing"].OK())
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, DaysSince(fixedNow, fixedNow))
	assert.Equal(t, 1, DaysSince(fixedNow.Add(-47*time.Hour), fixedNow))
	assert.Equal(t, 0, DaysSince(fixedNow.Add(72*time.Hour), fixedNow), "clock skew never yields a negative age")
}
