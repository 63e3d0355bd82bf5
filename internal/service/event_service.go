package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/internal/repository"
	"github.com/swebuk/portal-api/internal/workflow"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/export"
	pkgmail "github.com/swebuk/portal-api/pkg/mail"
	"github.com/swebuk/portal-api/pkg/messaging"
)

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.EventStatus) error
	Register(ctx context.Context, reg *models.EventRegistration) error
	CancelRegistration(ctx context.Context, eventID, userID string) error
	ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error)
}

type accountLookup interface {
	profileFinder
	EmailExists(ctx context.Context, email string) (bool, error)
}

// EventRequest creates an event.
type EventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Location    string    `json:"location" validate:"max=200"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Capacity    int       `json:"capacity" validate:"min=0"`
}

// GuestRegistrationRequest is the public sign-up body. Keys stay camelCase for
// existing public clients.
type GuestRegistrationRequest struct {
	EventID  string `json:"eventId"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// EventService manages events and registrations.
type EventService struct {
	repo         eventRepository
	profiles     accountLookup
	exporter     *export.Renderer
	cache        cacheInvalidator
	notifier     notifier
	validator    *validator.Validate
	logger       *zap.Logger
	guestEnabled bool
	now          func() time.Time
}

// EventServiceParams groups constructor dependencies.
type EventServiceParams struct {
	Events                   eventRepository
	Profiles                 accountLookup
	Exporter                 *export.Renderer
	Cache                    cacheInvalidator
	Notifier                 notifier
	Validator                *validator.Validate
	Logger                   *zap.Logger
	GuestRegistrationEnabled bool
}

// NewEventService constructs an EventService.
func NewEventService(params EventServiceParams) *EventService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exporter := params.Exporter
	if exporter == nil {
		exporter = export.NewRenderer()
	}
	return &EventService{
		repo:         params.Events,
		profiles:     params.Profiles,
		exporter:     exporter,
		cache:        params.Cache,
		notifier:     params.Notifier,
		validator:    validate,
		logger:       logger,
		guestEnabled: params.GuestRegistrationEnabled,
		now:          time.Now,
	}
}

// Create drafts an event organised by the caller.
func (s *EventService) Create(ctx context.Context, actorID string, req EventRequest) (*models.Event, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionEventCreate); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title, start and an end after the start are required")
	}
	event := &models.Event{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Capacity:    req.Capacity,
		OrganizerID: subject.ID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Internal(err, "failed to create event")
	}
	return event, nil
}

// List returns events. Anonymous callers and regular members see published
// events only; staff and admins may filter by any status.
func (s *EventService) List(ctx context.Context, actorID string, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !policy.Can(subject, policy.ActionEventManageAny) {
		filter.Statuses = []models.EventStatus{models.EventPublished}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list events")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an event. Unpublished events are visible to their managers only.
func (s *EventService) Get(ctx context.Context, actorID, id string) (*models.Event, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventPublished || event.Status == models.EventCompleted {
		return event, nil
	}
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageEvent(subject, event) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

// SetStatus moves an event along its lifecycle.
func (s *EventService) SetStatus(ctx context.Context, actorID, id, status string) (*models.Event, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageEvent(subject, event) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the organizer, staff or admins can change this event")
	}
	target := models.EventStatus(status)
	if err := workflow.EventLifecycle.Transition(event.Status, target); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, event.Status, target); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "event status changed concurrently, reload and retry")
		}
		return nil, appErrors.Internal(err, "failed to update event status")
	}
	event.Status = target
	s.invalidate(ctx)
	return event, nil
}

// Register holds a seat for the caller.
func (s *EventService) Register(ctx context.Context, actorID, eventID string) (*models.EventRegistration, error) {
	profile, err := s.profiles.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Internal(err, "failed to load profile")
	}
	reg := &models.EventRegistration{EventID: eventID, UserID: &profile.ID, FullName: profile.FullName, Email: profile.Email}
	if err := s.register(ctx, reg); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return reg, nil
}

// CancelRegistration releases the caller's seat.
func (s *EventService) CancelRegistration(ctx context.Context, actorID, eventID string) error {
	if err := s.repo.CancelRegistration(ctx, eventID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "you are not registered for this event")
		}
		return appErrors.Internal(err, "failed to cancel registration")
	}
	s.invalidate(ctx)
	return nil
}

// RegisterGuest signs up an anonymous attendee by email. Every rejection is a
// 400 except an unknown or unpublished event, which is a 404.
func (s *EventService) RegisterGuest(ctx context.Context, req GuestRegistrationRequest) (*models.GuestRegistrationResult, error) {
	if !s.guestEnabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Guest registration is not available")
	}
	eventID := strings.TrimSpace(req.EventID)
	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if eventID == "" || fullName == "" || email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing required fields")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid email address")
	}

	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Event not found")
		}
		return nil, appErrors.Internal(err, "Failed to register for event")
	}

	reg := &models.EventRegistration{EventID: eventID, FullName: fullName, Email: email, IsGuest: true}
	if err := s.register(ctx, reg); err != nil {
		return nil, err
	}

	hasAccount, err := s.profiles.EmailExists(ctx, reg.Email)
	if err != nil {
		s.logger.Warn("guest account lookup failed", zap.String("event_id", eventID), zap.Error(err))
	}
	s.invalidate(ctx)
	s.notifyGuest(ctx, event, reg, hasAccount)
	return &models.GuestRegistrationResult{Registration: reg, HasAccount: hasAccount}, nil
}

// ExportRegistrations renders the active registrant list.
func (s *EventService) ExportRegistrations(ctx context.Context, actorID, eventID, rawFormat string) (*ExportFile, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	event, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageEvent(subject, event) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the organizer, staff or admins can export registrations")
	}
	regs, err := s.repo.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load registrations")
	}

	dataset := export.Dataset{
		Title: event.Title + " registrants",
		Columns: []export.Column{
			{Key: "name", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "type", Label: "Type"},
			{Key: "registered", Label: "Registered At"},
		},
	}
	for _, reg := range regs {
		kind := "Member"
		if reg.IsGuest {
			kind = "Guest"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"name":       reg.FullName,
			"email":      reg.Email,
			"type":       kind,
			"registered": reg.RegisteredAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	data, err := s.exporter.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return &ExportFile{
		FileName:    fmt.Sprintf("event-%s-registrations.%s", event.ID, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (s *EventService) register(ctx context.Context, reg *models.EventRegistration) error {
	err := s.repo.Register(ctx, reg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "Event not found")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrValidation, "You are already registered for this event")
	case errors.Is(err, repository.ErrCapacityReached):
		return appErrors.Clone(appErrors.ErrValidation, "Event is full")
	}
	return appErrors.Internal(err, "Failed to register for event")
}

func (s *EventService) notifyGuest(ctx context.Context, event *models.Event, reg *models.EventRegistration, hasAccount bool) {
	if s.notifier == nil {
		return
	}
	body := fmt.Sprintf("Hello %s,\n\nYou are registered for %s on %s", reg.FullName, event.Title, event.StartsAt.UTC().Format("Monday 2 January 2006, 15:04 MST"))
	if event.Location != "" {
		body += " at " + event.Location
	}
	body += "."
	if !hasAccount {
		body += "\n\nCreate a Swebuk account with this email to manage your registrations."
	}
	s.notifier.Notify(ctx, Notification{
		Event: messaging.Event{
			Type: EventGuestRegistered,
			Key:  event.ID,
			Data: map[string]interface{}{"registration_id": reg.ID, "has_account": hasAccount},
		},
		Email: &pkgmail.Message{
			To:      []mail.Address{{Name: reg.FullName, Address: reg.Email}},
			Subject: "Registration confirmed: " + event.Title,
			Text:    body,
		},
	})
}

func (s *EventService) find(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Internal(err, "failed to load event")
	}
	return event, nil
}

func (s *EventService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}
