package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swebuk/portal-api/internal/models"
)

type membershipTable struct {
	table  string
	column string
}

var membershipTables = map[models.GroupKind]membershipTable{
	models.GroupCluster: {table: "cluster_members", column: "cluster_id"},
	models.GroupProject: {table: "project_members", column: "project_id"},
}

func tableFor(kind models.GroupKind) (membershipTable, error) {
	t, ok := membershipTables[kind]
	if !ok {
		return membershipTable{}, fmt.Errorf("unknown group kind %q", kind)
	}
	return t, nil
}

func (t membershipTable) selectSQL() string {
	return fmt.Sprintf(`SELECT m.id, m.%s AS group_id, m.user_id, COALESCE(p.full_name, '') AS full_name, m.status, m.note, m.requested_at, m.reviewed_at, m.reviewed_by FROM %s m LEFT JOIN profiles p ON p.id = m.user_id`, t.column, t.table)
}

// MembershipRepository persists join requests for clusters and projects.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new MembershipRepository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Request inserts a pending join request. An existing request returns ErrDuplicate.
func (r *MembershipRepository) Request(ctx context.Context, kind models.GroupKind, m *models.Membership) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = models.MembershipPending
	m.RequestedAt = time.Now().UTC()

	query := fmt.Sprintf(`INSERT INTO %s (id, %s, user_id, status, note, requested_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (%s, user_id) DO NOTHING`, t.table, t.column, t.column)
	res, err := r.db.ExecContext(ctx, query, m.ID, m.GroupID, m.UserID, m.Status, m.Note, m.RequestedAt)
	if err != nil {
		return fmt.Errorf("request membership: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// Find returns a membership by identifier.
func (r *MembershipRepository) Find(ctx context.Context, kind models.GroupKind, id string) (*models.Membership, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var m models.Membership
	if err := r.db.GetContext(ctx, &m, t.selectSQL()+` WHERE m.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &m, nil
}

// List returns a group's memberships, optionally by status.
func (r *MembershipRepository) List(ctx context.Context, kind models.GroupKind, groupID string, status *models.MembershipStatus) ([]models.Membership, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := t.selectSQL() + fmt.Sprintf(` WHERE m.%s = $1`, t.column)
	args := []interface{}{groupID}
	if status != nil {
		query += ` AND m.status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY m.requested_at ASC`

	var items []models.Membership
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return items, nil
}

// Review moves a pending request to status. ErrStaleState means it was already decided.
func (r *MembershipRepository) Review(ctx context.Context, kind models.GroupKind, id string, status models.MembershipStatus, note *string, reviewerID string) (*models.Membership, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, note = COALESCE($3, note), reviewed_at = $4, reviewed_by = $5 WHERE id = $1 AND status = 'pending'`, t.table)
	res, err := r.db.ExecContext(ctx, query, id, status, note, time.Now().UTC(), reviewerID)
	if err != nil {
		return nil, fmt.Errorf("review membership: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrStaleState
	}
	return r.Find(ctx, kind, id)
}

// ListForUser returns the profile's memberships of the given kind.
func (r *MembershipRepository) ListForUser(ctx context.Context, kind models.GroupKind, userID string) ([]models.Membership, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var items []models.Membership
	if err := r.db.SelectContext(ctx, &items, t.selectSQL()+` WHERE m.user_id = $1 ORDER BY m.requested_at DESC`, userID); err != nil {
		return nil, fmt.Errorf("list user memberships: %w", err)
	}
	return items, nil
}

// CountPendingForManager counts pending cluster join requests in clusters the profile manages.
func (r *MembershipRepository) CountPendingForManager(ctx context.Context, profileID string) (int, error) {
	const query = `SELECT COUNT(*) FROM cluster_members m JOIN clusters c ON c.id = m.cluster_id WHERE m.status = 'pending' AND (c.lead_id = $1 OR c.deputy_id = $1 OR c.staff_manager_id = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, profileID); err != nil {
		return 0, fmt.Errorf("count pending memberships: %w", err)
	}
	return total, nil
}
