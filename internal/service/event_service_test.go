package service

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/repository"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

// stubEvents applies the same seat rules as the repository.
type stubEvents struct {
	events map[string]*models.Event
	regs   []*models.EventRegistration
	filter models.EventFilter
}

func (s *stubEvents) Create(_ context.Context, e *models.Event) error {
	e.ID = "event-" + strings.ToLower(strings.ReplaceAll(e.Title, " ", "-"))
	e.Status = models.EventDraft
	s.events[e.ID] = e
	return nil
}

func (s *stubEvents) FindByID(_ context.Context, id string) (*models.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (s *stubEvents) List(_ context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	s.filter = filter
	var out []models.Event
	for _, e := range s.events {
		for _, st := range filter.Statuses {
			if e.Status == st {
				out = append(out, *e)
			}
		}
		if len(filter.Statuses) == 0 {
			out = append(out, *e)
		}
	}
	return out, len(out), nil
}

func (s *stubEvents) UpdateStatus(_ context.Context, id string, from, to models.EventStatus) error {
	e, ok := s.events[id]
	if !ok || e.Status != from {
		return repository.ErrStaleState
	}
	e.Status = to
	return nil
}

func (s *stubEvents) Register(_ context.Context, reg *models.EventRegistration) error {
	e, ok := s.events[reg.EventID]
	if !ok || e.Status != models.EventPublished {
		return sql.ErrNoRows
	}
	taken := 0
	var cancelled *models.EventRegistration
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	for _, existing := range s.regs {
		if existing.EventID != reg.EventID {
			continue
		}
		if existing.Status == models.RegistrationRegistered {
			taken++
		}
		if existing.Email == email {
			if existing.Status == models.RegistrationRegistered {
				return repository.ErrDuplicate
			}
			cancelled = existing
		}
	}
	if e.Capacity > 0 && taken >= e.Capacity {
		return repository.ErrCapacityReached
	}
	reg.Email = email
	reg.Status = models.RegistrationRegistered
	reg.RegisteredAt = time.Now()
	if cancelled != nil {
		cancelled.Status = models.RegistrationRegistered
		reg.ID = cancelled.ID
		return nil
	}
	reg.ID = "reg-" + email
	copied := *reg
	s.regs = append(s.regs, &copied)
	return nil
}

func (s *stubEvents) CancelRegistration(_ context.Context, eventID, userID string) error {
	for _, r := range s.regs {
		if r.EventID == eventID && r.UserID != nil && *r.UserID == userID && r.Status == models.RegistrationRegistered {
			r.Status = models.RegistrationCancelled
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubEvents) ListRegistrations(_ context.Context, eventID string) ([]models.EventRegistration, error) {
	var out []models.EventRegistration
	for _, r := range s.regs {
		if r.EventID == eventID && r.Status == models.RegistrationRegistered {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newEventFixture(guests bool) (*EventService, *stubEvents, *stubNotifier) {
	profiles := newStubProfiles(
		student("s1", models.Level100),
		member("lead-1", models.RoleLead),
		member("staff-1", models.RoleStaff),
	)
	profiles.byID["member-jane"] = &models.Profile{ID: "member-jane", Email: "Jane.Member@test.com", FullName: "Jane Member", Role: models.RoleStudent, Active: true}
	repo := &stubEvents{events: map[string]*models.Event{
		"open":   {ID: "open", Title: "Hack Night", Status: models.EventPublished, Capacity: 2, OrganizerID: "lead-1", StartsAt: time.Date(2026, 11, 5, 17, 0, 0, 0, time.UTC)},
		"draft":  {ID: "draft", Title: "Planning", Status: models.EventDraft, OrganizerID: "lead-1"},
		"closed": {ID: "closed", Title: "Old Meetup", Status: models.EventCancelled, OrganizerID: "lead-1"},
	}}
	notes := &stubNotifier{}
	svc := NewEventService(EventServiceParams{
		Events:                   repo,
		Profiles:                 profiles,
		Cache:                    &stubInvalidator{},
		Notifier:                 notes,
		GuestRegistrationEnabled: guests,
	})
	return svc, repo, notes
}

func TestGuestRegistrationFirstThenDuplicate(t *testing.T) {
	svc, _, notes := newEventFixture(true)
	ctx := context.Background()
	req := GuestRegistrationRequest{EventID: "open", FullName: "Jane Doe", Email: "jane@test.com"}

	result, err := svc.RegisterGuest(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.HasAccount)
	assert.True(t, result.Registration.IsGuest)
	require.Len(t, notes.sent, 1)
	assert.Equal(t, EventGuestRegistered, notes.sent[0].Event.Type)
	require.NotNil(t, notes.sent[0].Email)
	assert.Equal(t, "jane@test.com", notes.sent[0].Email.To[0].Address)
	assert.Contains(t, notes.sent[0].Email.Text, "Hack Night")

	_, err = svc.RegisterGuest(ctx, GuestRegistrationRequest{EventID: "open", FullName: "Jane Doe", Email: "JANE@test.com"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Message, "already registered")
	assert.Len(t, notes.sent, 1)
}

func TestGuestRegistrationReportsExistingAccount(t *testing.T) {
	svc, _, _ := newEventFixture(true)
	result, err := svc.RegisterGuest(context.Background(), GuestRegistrationRequest{EventID: "open", FullName: "Jane", Email: "jane.member@test.com"})
	require.NoError(t, err)
	assert.True(t, result.HasAccount)
}

func TestGuestRegistrationRejections(t *testing.T) {
	cases := []struct {
		name   string
		req    GuestRegistrationRequest
		status int
		msg    string
	}{
		{"missing name", GuestRegistrationRequest{EventID: "open", Email: "a@test.com"}, http.StatusBadRequest, "Missing required fields"},
		{"bad email", GuestRegistrationRequest{EventID: "open", FullName: "A", Email: "not-an-email"}, http.StatusBadRequest, "Invalid email address"},
		{"display name email", GuestRegistrationRequest{EventID: "open", FullName: "A", Email: "A <a@test.com>"}, http.StatusBadRequest, "Invalid email address"},
		{"unknown event", GuestRegistrationRequest{EventID: "nope", FullName: "A", Email: "a@test.com"}, http.StatusNotFound, "Event not found"},
		{"draft event", GuestRegistrationRequest{EventID: "draft", FullName: "A", Email: "a@test.com"}, http.StatusNotFound, "Event not found"},
		{"cancelled event", GuestRegistrationRequest{EventID: "closed", FullName: "A", Email: "a@test.com"}, http.StatusNotFound, "Event not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newEventFixture(true)
			_, err := svc.RegisterGuest(context.Background(), tc.req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.status, appErr.Status)
			assert.Equal(t, tc.msg, appErr.Message)
		})
	}
}

func TestGuestRegistrationCapacityAndToggle(t *testing.T) {
	svc, _, _ := newEventFixture(true)
	ctx := context.Background()
	for _, email := range []string{"a@test.com", "b@test.com"} {
		_, err := svc.RegisterGuest(ctx, GuestRegistrationRequest{EventID: "open", FullName: "Guest", Email: email})
		require.NoError(t, err)
	}
	_, err := svc.RegisterGuest(ctx, GuestRegistrationRequest{EventID: "open", FullName: "Guest", Email: "c@test.com"})
	assert.Equal(t, "Event is full", appErrors.FromError(err).Message)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	disabled, _, _ := newEventFixture(false)
	_, err = disabled.RegisterGuest(ctx, GuestRegistrationRequest{EventID: "open", FullName: "Guest", Email: "a@test.com"})
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestMemberRegisterCancelAndReRegister(t *testing.T) {
	svc, repo, _ := newEventFixture(true)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "s1", "open")
	require.NoError(t, err)
	assert.Equal(t, "s1@swebuk.test", reg.Email)
	assert.False(t, reg.IsGuest)

	require.NoError(t, svc.CancelRegistration(ctx, "s1", "open"))
	err = svc.CancelRegistration(ctx, "s1", "open")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	again, err := svc.Register(ctx, "s1", "open")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, again.ID)
	assert.Len(t, repo.regs, 1)
}

func TestEventLifecycleAndVisibility(t *testing.T) {
	svc, repo, _ := newEventFixture(true)
	ctx := context.Background()

	_, err := svc.Create(ctx, "s1", EventRequest{Title: "Workshop", StartsAt: time.Now(), EndsAt: time.Now().Add(time.Hour)})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	start := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	_, err = svc.Create(ctx, "lead-1", EventRequest{Title: "Workshop", StartsAt: start, EndsAt: start.Add(-time.Hour)})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	event, err := svc.Create(ctx, "lead-1", EventRequest{Title: "Workshop", StartsAt: start, EndsAt: start.Add(2 * time.Hour), Capacity: 30})
	require.NoError(t, err)
	assert.Equal(t, models.EventDraft, event.Status)

	_, err = svc.Get(ctx, "s1", event.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = svc.Get(ctx, "lead-1", event.ID)
	assert.NoError(t, err)

	_, err = svc.SetStatus(ctx, "s1", event.ID, "published")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	_, err = svc.SetStatus(ctx, "lead-1", event.ID, "completed")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	published, err := svc.SetStatus(ctx, "staff-1", event.ID, "published")
	require.NoError(t, err)
	assert.Equal(t, models.EventPublished, published.Status)

	_, _, err = svc.List(ctx, "", models.EventFilter{Statuses: []models.EventStatus{models.EventDraft}})
	require.NoError(t, err)
	assert.Equal(t, []models.EventStatus{models.EventPublished}, repo.filter.Statuses)

	_, _, err = svc.List(ctx, "staff-1", models.EventFilter{Statuses: []models.EventStatus{models.EventDraft}})
	require.NoError(t, err)
	assert.Equal(t, []models.EventStatus{models.EventDraft}, repo.filter.Statuses)
}

func TestExportRegistrations(t *testing.T) {
	svc, _, _ := newEventFixture(true)
	ctx := context.Background()
	_, err := svc.RegisterGuest(ctx, GuestRegistrationRequest{EventID: "open", FullName: "Jane Doe", Email: "jane@test.com"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, "s1", "open")
	require.NoError(t, err)

	file, err := svc.ExportRegistrations(ctx, "lead-1", "open", "csv")
	require.NoError(t, err)
	body := string(file.Data)
	assert.True(t, strings.HasPrefix(body, "Name,Email,Type,Registered At\n"))
	assert.Contains(t, body, "Jane Doe,jane@test.com,Guest")
	assert.Contains(t, body, "Member")

	_, err = svc.ExportRegistrations(ctx, "s1", "open", "csv")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
