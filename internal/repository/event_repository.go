package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/swebuk/portal-api/internal/models"
)

const (
	eventSelect        = `SELECT e.id, e.title, e.description, e.location, e.starts_at, e.ends_at, e.capacity, e.status, e.organizer_id, e.created_at, e.updated_at, (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.id AND r.status = 'registered') AS registered FROM events e`
	registrationColumn = `id, event_id, user_id, full_name, email, is_guest, status, registered_at`
)

// EventRepository persists events and their registrations.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt, event.UpdatedAt = now, now
	if event.Status == "" {
		event.Status = models.EventDraft
	}
	const query = `INSERT INTO events (id, title, description, location, starts_at, ends_at, capacity, status, organizer_id, created_at, updated_at) VALUES (:id, :title, :description, :location, :starts_at, :ends_at, :capacity, :status, :organizer_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID returns an event with its registration count.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.GetContext(ctx, &event, eventSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

func buildEventWhere(filter models.EventFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("e.status = ANY($%d)", len(args)))
	}
	if filter.Upcoming {
		conditions = append(conditions, "e.ends_at >= NOW()")
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns a page of events ordered by start time.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	where, args := buildEventWhere(filter)
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY e.starts_at ASC LIMIT %d OFFSET %d", eventSelect, where, pageSize, (page-1)*pageSize)

	var items []models.Event
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM events e`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return items, total, nil
}

// UpdateStatus moves an event from one status to another.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, from, to models.EventStatus) error {
	const query = `UPDATE events SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStaleState
	}
	return nil
}

// Register holds a seat on a published event. The event row is locked while
// capacity is checked. sql.ErrNoRows means the event is unknown or not open,
// ErrCapacityReached that it is full and ErrDuplicate that the email already
// holds a seat. A cancelled registration is reactivated.
func (r *EventRepository) Register(ctx context.Context, reg *models.EventRegistration) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register: begin: %w", err)
	}
	defer rollback(tx, &err)

	var event struct {
		Status   models.EventStatus `db:"status"`
		Capacity int                `db:"capacity"`
	}
	if err = tx.GetContext(ctx, &event, `SELECT status, capacity FROM events WHERE id = $1 FOR UPDATE`, reg.EventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("register: lock event: %w", err)
	}
	if event.Status != models.EventPublished {
		err = sql.ErrNoRows
		return err
	}
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))

	// A holder of an active seat is a duplicate even when the event is full.
	var existing models.RegistrationStatus
	err = tx.GetContext(ctx, &existing, `SELECT status FROM event_registrations WHERE event_id = $1 AND lower(email) = $2`, reg.EventID, reg.Email)
	switch {
	case err == nil && existing == models.RegistrationRegistered:
		err = ErrDuplicate
		return err
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("register: lookup registration: %w", err)
	}
	err = nil

	if event.Capacity > 0 {
		var taken int
		if err = tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1 AND status = 'registered'`, reg.EventID); err != nil {
			return fmt.Errorf("register: count seats: %w", err)
		}
		if taken >= event.Capacity {
			err = ErrCapacityReached
			return err
		}
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.Status = models.RegistrationRegistered
	reg.RegisteredAt = time.Now().UTC()

	const insert = `INSERT INTO event_registrations (id, event_id, user_id, full_name, email, is_guest, status, registered_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (event_id, lower(email)) DO UPDATE SET status = EXCLUDED.status, full_name = EXCLUDED.full_name, registered_at = EXCLUDED.registered_at WHERE event_registrations.status = 'cancelled' RETURNING id`
	var id string
	err = tx.QueryRowxContext(ctx, insert, reg.ID, reg.EventID, reg.UserID, reg.FullName, reg.Email, reg.IsGuest, reg.Status, reg.RegisteredAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrDuplicate
			return err
		}
		return fmt.Errorf("register: insert: %w", err)
	}
	reg.ID = id

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("register: commit: %w", err)
	}
	return nil
}

// CancelRegistration releases the member's seat.
func (r *EventRepository) CancelRegistration(ctx context.Context, eventID, userID string) error {
	const query = `UPDATE event_registrations SET status = 'cancelled' WHERE event_id = $1 AND user_id = $2 AND status = 'registered'`
	res, err := r.db.ExecContext(ctx, query, eventID, userID)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListRegistrations returns active registrations in sign-up order.
func (r *EventRepository) ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	var items []models.EventRegistration
	query := `SELECT ` + registrationColumn + ` FROM event_registrations WHERE event_id = $1 AND status = 'registered' ORDER BY registered_at ASC`
	if err := r.db.SelectContext(ctx, &items, query, eventID); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return items, nil
}

// CountUpcomingForUser counts the member's active registrations on events not yet over.
func (r *EventRepository) CountUpcomingForUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM event_registrations r JOIN events e ON e.id = r.event_id WHERE r.user_id = $1 AND r.status = 'registered' AND e.ends_at >= NOW()`
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("count user registrations: %w", err)
	}
	return total, nil
}
