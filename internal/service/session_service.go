package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/messaging"
)

type sessionRepository interface {
	List(ctx context.Context) ([]models.AcademicSession, error)
	FindActive(ctx context.Context) (*models.AcademicSession, error)
	Create(ctx context.Context, session *models.AcademicSession) error
	Activate(ctx context.Context, id string) error
	RollForward(ctx context.Context, actorID string, at time.Time) (*models.RollForwardResult, error)
}

// CreateSessionRequest describes a new academic session.
type CreateSessionRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsActive  bool   `json:"is_active"`
}

// SessionService manages academic sessions and the yearly level roll-forward.
type SessionService struct {
	repo      sessionRepository
	profiles  profileFinder
	cache     cacheInvalidator
	notifier  notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, profiles profileFinder, cache cacheInvalidator, notifier notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:      repo,
		profiles:  profiles,
		cache:     cache,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns every session, newest first.
func (s *SessionService) List(ctx context.Context) ([]models.AcademicSession, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	return sessions, nil
}

// Active returns the current session.
func (s *SessionService) Active(ctx context.Context) (*models.AcademicSession, error) {
	session, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active academic session")
		}
		return nil, appErrors.Internal(err, "failed to load active session")
	}
	return session, nil
}

// Create adds a session. Creating an active session deactivates the current one.
func (s *SessionService) Create(ctx context.Context, actorID string, req CreateSessionRequest) (*models.AcademicSession, error) {
	if err := s.authorize(ctx, actorID, policy.ActionSessionManage); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name and start/end dates (YYYY-MM-DD) are required")
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	session := &models.AcademicSession{Name: req.Name, StartDate: start, EndDate: end, IsActive: req.IsActive}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Internal(err, "failed to create session")
	}
	return session, nil
}

// Activate makes the session the only active one.
func (s *SessionService) Activate(ctx context.Context, actorID, id string) error {
	if err := s.authorize(ctx, actorID, policy.ActionSessionManage); err != nil {
		return err
	}
	if err := s.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Internal(err, "failed to activate session")
	}
	return nil
}

// RollForward promotes every student one level, graduates level 400 to
// alumni and closes the active session, all in one transaction.
func (s *SessionService) RollForward(ctx context.Context, actorID string) (*models.RollForwardResult, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionSessionRollForward); err != nil {
		return nil, err
	}

	result, err := s.repo.RollForward(ctx, subject.ID, s.now().UTC())
	if err != nil {
		return nil, appErrors.Internal(err, "session roll-forward failed; no levels were changed")
	}

	counts := make(map[string]int, len(result.Transitions))
	for level, n := range result.Transitions {
		counts[string(level)] = n
	}
	s.metrics.RecordPromotions(counts)
	s.logger.Info("session rolled forward",
		zap.String("actor_id", subject.ID),
		zap.Int("total", result.Total),
		zap.Int("graduated", result.Graduated),
	)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
			s.logger.Warn("dashboard invalidation failed", zap.Error(err))
		}
	}
	if s.notifier != nil {
		key := "roll-forward"
		if result.DeactivatedSessionID != nil {
			key = *result.DeactivatedSessionID
		}
		s.notifier.Notify(ctx, Notification{Event: messaging.Event{
			Type: EventSessionRolled,
			Key:  key,
			Data: map[string]interface{}{"transitions": result.Transitions, "total": result.Total},
		}})
	}
	return result, nil
}

func (s *SessionService) authorize(ctx context.Context, actorID string, action policy.Action) error {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return err
	}
	return policy.Authorize(subject, action)
}
