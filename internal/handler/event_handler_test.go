package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/middleware"
	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type fakeEventSrv struct {
	eventService
	guestResult *models.GuestRegistrationResult
	guestErr    error
	guestReq    service.GuestRegistrationRequest
	listActor   string
	listFilter  models.EventFilter
}

func (f *fakeEventSrv) RegisterGuest(_ context.Context, req service.GuestRegistrationRequest) (*models.GuestRegistrationResult, error) {
	f.guestReq = req
	return f.guestResult, f.guestErr
}

func (f *fakeEventSrv) List(_ context.Context, actorID string, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	f.listActor = actorID
	f.listFilter = filter
	return []models.Event{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
}

func guestRouter(svc eventService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/events/guest-register", NewEventHandler(svc).GuestRegister)
	return r
}

func postGuest(r http.Handler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodPost, "/api/events/guest-register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestGuestRegisterSuccessShape(t *testing.T) {
	svc := &fakeEventSrv{guestResult: &models.GuestRegistrationResult{HasAccount: false}}
	rec, body := postGuest(guestRouter(svc), `{"eventId":"X","fullName":"Jane Doe","email":"jane@test.com"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["hasAccount"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "data")
	assert.Equal(t, "X", svc.guestReq.EventID)
	assert.Equal(t, "Jane Doe", svc.guestReq.FullName)
	assert.Equal(t, "jane@test.com", svc.guestReq.Email)
}

func TestGuestRegisterErrorShapes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"duplicate", appErrors.Clone(appErrors.ErrValidation, "You are already registered for this event"), http.StatusBadRequest, "You are already registered for this event"},
		{"unknown event", appErrors.Clone(appErrors.ErrNotFound, "Event not found"), http.StatusNotFound, "Event not found"},
		{"internal", appErrors.Internal(errors.New("db down"), "Failed to register for event"), http.StatusInternalServerError, "Failed to register for event"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := postGuest(guestRouter(&fakeEventSrv{guestErr: tc.err}), `{"eventId":"X","fullName":"Jane","email":"jane@test.com"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, body["error"])
			assert.NotContains(t, body, "success")
		})
	}
}

func TestGuestRegisterMalformedBody(t *testing.T) {
	rec, body := postGuest(guestRouter(&fakeEventSrv{}), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", body["error"])
}

func TestEventListPassesFiltersAndOptionalUser(t *testing.T) {
	svc := &fakeEventSrv{}
	handler := NewEventHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/events?status=draft,%20Published&upcoming=true&page=2", "")
	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.listActor)
	assert.Equal(t, []models.EventStatus{models.EventDraft, models.EventPublished}, svc.listFilter.Statuses)
	assert.True(t, svc.listFilter.Upcoming)
	assert.Equal(t, 2, svc.listFilter.Page)

	c, _ = newTestContext(http.MethodGet, "/events", "staff-1")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
	handler.List(c)
	assert.Equal(t, "staff-1", svc.listActor)
}
