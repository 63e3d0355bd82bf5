package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

// stubSessions applies roll-forward to the shared profile stub from a
// snapshot taken before any update.
type stubSessions struct {
	profiles *stubProfiles
	sessions []models.AcademicSession
	rollErr  error
	rolledBy string
}

func (s *stubSessions) List(context.Context) ([]models.AcademicSession, error) {
	return s.sessions, nil
}

func (s *stubSessions) FindActive(context.Context) (*models.AcademicSession, error) {
	for i := range s.sessions {
		if s.sessions[i].IsActive {
			return &s.sessions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubSessions) Create(_ context.Context, session *models.AcademicSession) error {
	if session.IsActive {
		for i := range s.sessions {
			s.sessions[i].IsActive = false
		}
	}
	session.ID = "session-new"
	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *stubSessions) Activate(_ context.Context, id string) error {
	found := false
	for i := range s.sessions {
		s.sessions[i].IsActive = s.sessions[i].ID == id
		found = found || s.sessions[i].ID == id
	}
	if !found {
		return sql.ErrNoRows
	}
	return nil
}

func (s *stubSessions) RollForward(_ context.Context, actorID string, at time.Time) (*models.RollForwardResult, error) {
	if s.rollErr != nil {
		return nil, s.rollErr
	}
	s.rolledBy = actorID
	snapshot := map[string]models.AcademicLevel{}
	for id, p := range s.profiles.byID {
		if lvl, ok := models.ParseAcademicLevel(string(p.Level())); ok && p.AcademicLevel != nil {
			snapshot[id] = lvl
		}
	}
	result := &models.RollForwardResult{Transitions: map[models.AcademicLevel]int{}, ExecutedAt: at}
	for id, lvl := range snapshot {
		next, ok := lvl.Next()
		if !ok {
			continue
		}
		s.profiles.byID[id].AcademicLevel = levelPtr(next)
		result.Transitions[next]++
		result.Total++
	}
	result.Graduated = result.Transitions[models.LevelAlumni]
	for i := range s.sessions {
		if s.sessions[i].IsActive {
			s.sessions[i].IsActive = false
			id := s.sessions[i].ID
			result.DeactivatedSessionID = &id
		}
	}
	return result, nil
}

func newSessionFixture(profiles *stubProfiles) (*SessionService, *stubSessions, *stubInvalidator, *stubNotifier, *MetricsService) {
	repo := &stubSessions{profiles: profiles, sessions: []models.AcademicSession{{ID: "2025", Name: "2025/2026", IsActive: true}}}
	inv := &stubInvalidator{}
	notes := &stubNotifier{}
	metrics := NewMetricsService()
	return NewSessionService(repo, profiles, inv, notes, metrics, nil, nil), repo, inv, notes, metrics
}

func TestRollForwardPromotesFromSnapshot(t *testing.T) {
	const n, m = 4, 3
	profiles := newStubProfiles(member("staff-1", models.RoleStaff))
	for i := 0; i < n; i++ {
		p := student("junior-"+string(rune('a'+i)), models.Level300)
		profiles.byID[p.ID] = p
	}
	for i := 0; i < m; i++ {
		p := student("senior-"+string(rune('a'+i)), models.Level400)
		profiles.byID[p.ID] = p
	}
	svc, repo, inv, notes, metrics := newSessionFixture(profiles)

	result, err := svc.RollForward(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "staff-1", repo.rolledBy)
	assert.Equal(t, n, result.Transitions[models.Level400])
	assert.Equal(t, m, result.Graduated)
	assert.Equal(t, n+m, result.Total)
	require.NotNil(t, result.DeactivatedSessionID)
	assert.Equal(t, "2025", *result.DeactivatedSessionID)

	for id, p := range profiles.byID {
		switch {
		case len(id) > 6 && id[:6] == "junior":
			assert.Equal(t, models.Level400, p.Level(), id)
		case len(id) > 6 && id[:6] == "senior":
			assert.Equal(t, models.LevelAlumni, p.Level(), id)
		}
	}

	assert.Equal(t, []string{cache.DashboardPattern}, inv.patterns)
	assert.Equal(t, []string{EventSessionRolled}, notes.types())
	assert.Equal(t, float64(m), testutil.ToFloat64(metrics.promotions.WithLabelValues(string(models.LevelAlumni))))
}

func TestRollForwardRequiresStaffOrAdmin(t *testing.T) {
	profiles := newStubProfiles(student("s1", models.Level400), member("lead-1", models.RoleLead))
	svc, repo, _, notes, _ := newSessionFixture(profiles)

	for _, actor := range []string{"s1", "lead-1", "ghost"} {
		_, err := svc.RollForward(context.Background(), actor)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code, actor)
	}
	assert.Empty(t, repo.rolledBy)
	assert.Empty(t, notes.sent)
	assert.Equal(t, models.Level400, profiles.byID["s1"].Level())
}

func TestRollForwardFailureReportsNoChanges(t *testing.T) {
	profiles := newStubProfiles(member("admin-1", models.RoleAdmin))
	svc, repo, inv, notes, _ := newSessionFixture(profiles)
	repo.rollErr = errors.New("serialization failure")

	_, err := svc.RollForward(context.Background(), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, inv.patterns)
	assert.Empty(t, notes.sent)
}

func TestCreateAndActivateSession(t *testing.T) {
	profiles := newStubProfiles(member("admin-1", models.RoleAdmin), member("staff-1", models.RoleStaff))
	svc, repo, _, _, _ := newSessionFixture(profiles)
	ctx := context.Background()

	_, err := svc.Create(ctx, "staff-1", CreateSessionRequest{Name: "2026/2027", StartDate: "2026-09-01", EndDate: "2027-07-31"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, "admin-1", CreateSessionRequest{Name: "2026/2027", StartDate: "2027-09-01", EndDate: "2027-07-31"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(ctx, "admin-1", CreateSessionRequest{Name: "2026/2027", StartDate: "2026-09-01", EndDate: "2027-07-31", IsActive: true})
	require.NoError(t, err)
	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
	assert.Equal(t, 2026, active.StartDate.Year())

	require.NoError(t, svc.Activate(ctx, "admin-1", "2025"))
	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025", active.ID)

	err = svc.Activate(ctx, "admin-1", "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.sessions, 2)
}
