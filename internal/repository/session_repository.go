package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/swebuk/portal-api/internal/models"
)

const sessionColumns = `id, name, start_date, end_date, is_active, created_at, updated_at`

// rollForwardOrder fixes the order target levels are written in. Each profile
// id appears in exactly one batch, so the order has no effect on the result.
var rollForwardOrder = []models.AcademicLevel{models.LevelAlumni, models.Level400, models.Level300, models.Level200}

// SessionRepository handles academic sessions and the level roll-forward.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository instantiates a session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions newest first.
func (r *SessionRepository) List(ctx context.Context) ([]models.AcademicSession, error) {
	var sessions []models.AcademicSession
	if err := r.db.SelectContext(ctx, &sessions, `SELECT `+sessionColumns+` FROM academic_sessions ORDER BY start_date DESC`); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindActive returns the active session.
func (r *SessionRepository) FindActive(ctx context.Context) (*models.AcademicSession, error) {
	var session models.AcademicSession
	if err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM academic_sessions WHERE is_active = TRUE LIMIT 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// Create inserts a session. An active session deactivates the others first.
func (r *SessionRepository) Create(ctx context.Context, session *models.AcademicSession) (err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create session: begin: %w", err)
	}
	defer rollback(tx, &err)

	if session.IsActive {
		if _, err = tx.ExecContext(ctx, `UPDATE academic_sessions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE`, now); err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}
	}
	const insert = `INSERT INTO academic_sessions (id, name, start_date, end_date, is_active, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insert, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("create session: commit: %w", err)
	}
	return nil
}

// Activate marks the session active and deactivates the rest.
func (r *SessionRepository) Activate(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("activate session: begin: %w", err)
	}
	defer rollback(tx, &err)

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE academic_sessions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("deactivate other sessions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE academic_sessions SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("activate session: commit: %w", err)
	}
	return nil
}

// RollForward advances every levelled profile by one step in a single
// transaction. Cohorts are read once under row locks and every update is
// computed from that snapshot, so a student promoted to level 400 in this run
// cannot also graduate in it.
func (r *SessionRepository) RollForward(ctx context.Context, actorID string, at time.Time) (_ *models.RollForwardResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("roll forward: begin: %w", err)
	}
	defer rollback(tx, &err)

	var snapshot []models.LevelSnapshot
	if err = tx.SelectContext(ctx, &snapshot, `SELECT id, academic_level FROM profiles WHERE academic_level IS NOT NULL AND academic_level <> 'alumni' ORDER BY id FOR UPDATE`); err != nil {
		return nil, fmt.Errorf("snapshot cohorts: %w", err)
	}

	batches := make(map[models.AcademicLevel][]string)
	for _, row := range snapshot {
		level, ok := models.ParseAcademicLevel(row.AcademicLevel)
		if !ok {
			continue
		}
		if next, ok := level.Next(); ok {
			batches[next] = append(batches[next], row.ProfileID)
		}
	}

	result := &models.RollForwardResult{Transitions: make(map[models.AcademicLevel]int), ExecutedAt: at}
	for _, target := range rollForwardOrder {
		ids := batches[target]
		if len(ids) == 0 {
			continue
		}
		if _, err = tx.ExecContext(ctx, `UPDATE profiles SET academic_level = $1, updated_at = $2 WHERE id = ANY($3)`, target, at, pq.Array(ids)); err != nil {
			return nil, fmt.Errorf("promote to %s: %w", target, err)
		}
		result.Transitions[target] = len(ids)
		result.Total += len(ids)
	}
	result.Graduated = result.Transitions[models.LevelAlumni]

	var sessionID string
	err = tx.GetContext(ctx, &sessionID, `UPDATE academic_sessions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE RETURNING id`, at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return nil, fmt.Errorf("deactivate session: %w", err)
	default:
		result.DeactivatedSessionID = &sessionID
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode roll forward audit: %w", err)
	}
	audit := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRollForward,
		Resource:   "academic_session",
		ResourceID: result.DeactivatedSessionID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "session-service",
		CreatedAt:  at,
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("roll forward: commit: %w", err)
	}
	return result, nil
}
