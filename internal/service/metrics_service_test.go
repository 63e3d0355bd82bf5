package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceExposesDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/fyp", 200, 15*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordReview("proposal", "approved")
	m.RecordNotification("fyp.submission_reviewed", errors.New("smtp down"))
	m.RecordPromotions(map[string]int{"alumni": 2})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `fyp_submission_reviews_total{status="approved",type="proposal"} 1`))
	assert.True(t, strings.Contains(body, `notifications_total{event="fyp.submission_reviewed",outcome="failed"} 1`))
	assert.True(t, strings.Contains(body, `session_promotions_total{level="alumni"} 2`))
	assert.True(t, strings.Contains(body, `cache_lookups_total{result="hit"} 1`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordReview("proposal", "approved")
	m.RecordCacheOperation(false, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
