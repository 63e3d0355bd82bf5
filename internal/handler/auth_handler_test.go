package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type fakeAuthSrv struct {
	authService
	signup    models.SignupRequest
	logoutFor string
	logoutTok string
	changed   models.ChangePasswordRequest
}

func (f *fakeAuthSrv) Signup(_ context.Context, req models.SignupRequest) (*models.LoginResponse, error) {
	f.signup = req
	return &models.LoginResponse{AccessToken: "access", User: models.UserInfo{Email: req.Email, Role: models.RoleStudent}}, nil
}

func (f *fakeAuthSrv) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	if userID != "s1" {
		return nil, appErrors.ErrUnauthorized
	}
	level := models.Level400
	return &models.UserInfo{ID: "s1", Role: models.RoleStudent, AcademicLevel: &level}, nil
}

func (f *fakeAuthSrv) Logout(_ context.Context, token, userID, _, _ string) error {
	f.logoutFor, f.logoutTok = userID, token
	return nil
}

func (f *fakeAuthSrv) ChangePassword(_ context.Context, userID string, req models.ChangePasswordRequest) error {
	if req.OldPassword == "wrong" {
		return appErrors.ErrInvalidCredentials
	}
	f.changed = req
	return nil
}

func TestSignupCapturesClientMetadata(t *testing.T) {
	svc := &fakeAuthSrv{}
	c, rec := newTestContext(http.MethodPost, "/auth/signup", "")
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"new@swebuk.test","password":"secret123","full_name":"New Student"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("User-Agent", "portal-test")

	NewAuthHandler(svc).Signup(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "new@swebuk.test", svc.signup.Email)
	assert.Equal(t, "portal-test", svc.signup.UserAgent)
}

func TestMeReturnsStoredProfile(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})

	c, rec := newTestContext(http.MethodGet, "/auth/me", "s1")
	handler.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "level_400", envelope.Data["academic_level"])

	c, rec = newTestContext(http.MethodGet, "/auth/me", "")
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRequiresRefreshToken(t *testing.T) {
	svc := &fakeAuthSrv{}
	handler := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/auth/logout", "s1")
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Logout(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/auth/logout", "s1")
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"rt-1"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "s1", svc.logoutFor)
	assert.Equal(t, "rt-1", svc.logoutTok)
}

func TestChangePasswordReturnsNoContent(t *testing.T) {
	svc := &fakeAuthSrv{}
	handler := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/auth/change-password", "s1")
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(`{"old_password":"secret123","new_password":"longer-secret"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.ChangePassword(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "longer-secret", svc.changed.NewPassword)

	c, rec = newTestContext(http.MethodPost, "/auth/change-password", "s1")
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(`{"old_password":"wrong","new_password":"longer-secret"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.ChangePassword(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
