package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/middleware"
	"github.com/swebuk/portal-api/internal/models"
)

type fakeDashboardSrv struct {
	resp    *models.Dashboard
	hit     bool
	err     error
	lastFor string
}

func (f *fakeDashboardSrv) Summary(_ context.Context, actorID string) (*models.Dashboard, bool, error) {
	f.lastFor = actorID
	return f.resp, f.hit, f.err
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newTestContext(method, target string, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	if userID != "" {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID})
	}
	return c, rec
}

func TestDashboardHandlerRequiresUser(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{})
	c, rec := newTestContext(http.MethodGet, "/dashboard", "")

	handler.Summary(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerSuccess(t *testing.T) {
	service := &fakeDashboardSrv{
		resp: &models.Dashboard{UserID: "s1", Role: models.RoleStudent},
		hit:  true,
	}
	handler := NewDashboardHandler(service)
	c, rec := newTestContext(http.MethodGet, "/dashboard", "s1")

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", service.lastFor)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, "student", envelope.Data["role"])
}
