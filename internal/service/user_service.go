package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	UpdateRole(ctx context.Context, id string, role models.Role, audit *models.AuditLog) error
	UpdateLevel(ctx context.Context, id string, level *models.AcademicLevel, audit *models.AuditLog) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// UserService manages profile roles and academic levels.
type UserService struct {
	repo   userRepository
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, cache cacheInvalidator, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, cache: cache, logger: logger}
}

// List returns a page of profiles for staff and admins.
func (s *UserService) List(ctx context.Context, actorID string, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error) {
	if err := s.authorize(ctx, actorID, policy.ActionUserList); err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// SetRole changes a profile's role. Admin only.
func (s *UserService) SetRole(ctx context.Context, actorID, profileID string, role models.Role) (*models.Profile, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if err := s.authorize(ctx, actorID, policy.ActionUserSetRole); err != nil {
		return nil, err
	}
	target, err := s.find(ctx, profileID)
	if err != nil {
		return nil, err
	}
	audit := changeAudit(actorID, profileID, models.AuditActionRoleChange, map[string]interface{}{"role": target.Role}, map[string]interface{}{"role": role})
	if err := s.repo.UpdateRole(ctx, profileID, role, audit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to update role")
	}
	s.invalidate(ctx)
	return s.find(ctx, profileID)
}

// SetLevel changes or clears a profile's academic level.
func (s *UserService) SetLevel(ctx context.Context, actorID, profileID string, raw *string) (*models.Profile, error) {
	var next *models.AcademicLevel
	if raw != nil && *raw != "" {
		parsed, ok := models.ParseAcademicLevel(*raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown academic level")
		}
		next = &parsed
	}
	if err := s.authorize(ctx, actorID, policy.ActionUserSetLevel); err != nil {
		return nil, err
	}
	target, err := s.find(ctx, profileID)
	if err != nil {
		return nil, err
	}
	audit := changeAudit(actorID, profileID, models.AuditActionLevelChange, map[string]interface{}{"academic_level": target.AcademicLevel}, map[string]interface{}{"academic_level": next})
	if err := s.repo.UpdateLevel(ctx, profileID, next, audit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to update academic level")
	}
	s.invalidate(ctx)
	return s.find(ctx, profileID)
}

func (s *UserService) authorize(ctx context.Context, actorID string, action policy.Action) error {
	subject, err := loadSubject(ctx, s.repo, actorID)
	if err != nil {
		return err
	}
	return policy.Authorize(subject, action)
}

func (s *UserService) find(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return profile, nil
}

func (s *UserService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}

func changeAudit(actorID, resourceID, action string, oldValues, newValues map[string]interface{}) *models.AuditLog {
	oldJSON, _ := json.Marshal(oldValues)
	newJSON, _ := json.Marshal(newValues)
	return &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "profile",
		ResourceID: &resourceID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
		IPAddress:  "system",
		UserAgent:  "user-service",
	}
}
