package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/repository"
)

// stubProfiles is an in-memory profile store shared by service tests.
type stubProfiles struct {
	byID          map[string]*models.Profile
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	findErr       error
	lastLogin     bool
	levelCounts   map[models.AcademicLevel]int
}

func newStubProfiles(profiles ...*models.Profile) *stubProfiles {
	s := &stubProfiles{byID: map[string]*models.Profile{}, refreshTokens: map[string]*models.RefreshToken{}}
	for _, p := range profiles {
		s.byID[p.ID] = p
	}
	return s
}

func levelPtr(l models.AcademicLevel) *models.AcademicLevel {
	return &l
}

func student(id string, l models.AcademicLevel) *models.Profile {
	return &models.Profile{ID: id, Email: id + "@swebuk.test", FullName: "Student " + id, Role: models.RoleStudent, AcademicLevel: levelPtr(l), Active: true}
}

func member(id string, role models.Role) *models.Profile {
	return &models.Profile{ID: id, Email: id + "@swebuk.test", FullName: "Member " + id, Role: role, Active: true}
}

func (s *stubProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *stubProfiles) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubProfiles) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *stubProfiles) Create(_ context.Context, profile *models.Profile) error {
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, profile.Email) {
			return repository.ErrDuplicate
		}
	}
	if profile.ID == "" {
		profile.ID = "p-" + profile.Email
	}
	s.byID[profile.ID] = profile
	return nil
}

func (s *stubProfiles) UpdateLastLogin(context.Context, string, time.Time) error {
	s.lastLogin = true
	return nil
}

func (s *stubProfiles) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	if p, ok := s.byID[id]; ok {
		p.PasswordHash = hash
	}
	return nil
}

func (s *stubProfiles) UpdateRole(_ context.Context, id string, role models.Role, audit *models.AuditLog) error {
	p, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Role = role
	s.auditLogs = append(s.auditLogs, audit)
	return nil
}

func (s *stubProfiles) UpdateLevel(_ context.Context, id string, l *models.AcademicLevel, audit *models.AuditLog) error {
	p, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.AcademicLevel = l
	s.auditLogs = append(s.auditLogs, audit)
	return nil
}

func (s *stubProfiles) List(_ context.Context, filter models.ProfileFilter) ([]models.Profile, int, error) {
	var out []models.Profile
	for _, p := range s.byID {
		if filter.Role != nil && p.Role != *filter.Role {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *stubProfiles) CountByLevel(context.Context) (map[models.AcademicLevel]int, error) {
	return s.levelCounts, nil
}

func (s *stubProfiles) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *stubProfiles) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *stubProfiles) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (s *stubProfiles) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	for _, t := range s.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &at
		}
	}
	return nil
}

func (s *stubProfiles) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.auditLogs = append(s.auditLogs, log)
	return nil
}

// stubInvalidator counts dashboard invalidations.
type stubInvalidator struct {
	patterns []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}
