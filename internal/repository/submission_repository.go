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

const submissionColumns = `id, fyp_id, submission_type, title, description, file_url, file_name, file_size, status, version_number, is_latest_version, previous_version_id, supervisor_feedback, reviewed_by, submitted_at, reviewed_at`

// SubmissionRepository persists the versioned document ledger of each project.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func insertSubmission(ctx context.Context, ext sqlx.ExtContext, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	sub.Status = models.SubmissionPending
	sub.IsLatestVersion = true

	const query = `INSERT INTO fyp_submissions (id, fyp_id, submission_type, title, description, file_url, file_name, file_size, status, version_number, is_latest_version, previous_version_id, submitted_at) VALUES (:id, :fyp_id, :submission_type, :title, :description, :file_url, :file_name, :file_size, :status, :version_number, :is_latest_version, :previous_version_id, :submitted_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, sub); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// CreateVersion appends a new version for (fyp, type). Inside one transaction
// it locks the project row, supersedes the current latest version and inserts
// the new row as max+1, so exactly one latest version remains per type.
func (r *SubmissionRepository) CreateVersion(ctx context.Context, sub *models.Submission) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create submission: begin: %w", err)
	}
	defer rollback(tx, &err)

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM final_year_projects WHERE id = $1 FOR UPDATE`, sub.FYPID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock fyp: %w", err)
	}

	var maxVersion int
	if err = tx.GetContext(ctx, &maxVersion, `SELECT COALESCE(MAX(version_number), 0) FROM fyp_submissions WHERE fyp_id = $1 AND submission_type = $2`, sub.FYPID, sub.SubmissionType); err != nil {
		return fmt.Errorf("read max version: %w", err)
	}

	var previousID string
	err = tx.GetContext(ctx, &previousID, `SELECT id FROM fyp_submissions WHERE fyp_id = $1 AND submission_type = $2 AND is_latest_version = TRUE ORDER BY version_number DESC LIMIT 1`, sub.FYPID, sub.SubmissionType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
		sub.PreviousVersionID = nil
	case err != nil:
		return fmt.Errorf("read latest version: %w", err)
	default:
		sub.PreviousVersionID = &previousID
		if _, err = tx.ExecContext(ctx, `UPDATE fyp_submissions SET is_latest_version = FALSE WHERE fyp_id = $1 AND submission_type = $2 AND is_latest_version = TRUE`, sub.FYPID, sub.SubmissionType); err != nil {
			return fmt.Errorf("supersede latest version: %w", err)
		}
	}

	sub.VersionNumber = maxVersion + 1
	if err = insertSubmission(ctx, tx, sub); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("create submission: commit: %w", err)
	}
	return nil
}

// FindByID returns a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, `SELECT `+submissionColumns+` FROM fyp_submissions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &sub, nil
}

// ListHistory returns every version for the project, newest first, optionally
// restricted to one type.
func (r *SubmissionRepository) ListHistory(ctx context.Context, fypID string, kind *models.SubmissionType) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM fyp_submissions WHERE fyp_id = $1`
	args := []interface{}{fypID}
	if kind != nil {
		query += ` AND submission_type = $2`
		args = append(args, *kind)
	}
	query += ` ORDER BY version_number DESC, submitted_at DESC`

	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// ListLatest returns the latest version of each type for the project.
func (r *SubmissionRepository) ListLatest(ctx context.Context, fypID string) ([]models.Submission, error) {
	var subs []models.Submission
	query := `SELECT ` + submissionColumns + ` FROM fyp_submissions WHERE fyp_id = $1 AND is_latest_version = TRUE ORDER BY submitted_at DESC`
	if err := r.db.SelectContext(ctx, &subs, query, fypID); err != nil {
		return nil, fmt.Errorf("list latest submissions: %w", err)
	}
	return subs, nil
}

// Review records a decision on a pending submission. The update only applies
// while the row is still pending, and a cascade status, when present, is
// written to the parent project in the same transaction.
func (r *SubmissionRepository) Review(ctx context.Context, review models.SubmissionReview, audit *models.AuditLog) (_ *models.Submission, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("review submission: begin: %w", err)
	}
	defer rollback(tx, &err)

	query := `UPDATE fyp_submissions SET status = $2, supervisor_feedback = $3, reviewed_by = $4, reviewed_at = $5 WHERE id = $1 AND status = 'pending' RETURNING ` + submissionColumns
	var sub models.Submission
	if err = tx.QueryRowxContext(ctx, query, review.SubmissionID, review.Status, review.Feedback, review.ReviewerID, review.ReviewedAt).StructScan(&sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrStaleState
			return nil, err
		}
		return nil, fmt.Errorf("review submission: %w", err)
	}

	if review.CascadeStatus != nil {
		if _, err = tx.ExecContext(ctx, `UPDATE final_year_projects SET status = $2, updated_at = $3 WHERE id = $1`, sub.FYPID, *review.CascadeStatus, review.ReviewedAt); err != nil {
			return nil, fmt.Errorf("cascade fyp status: %w", err)
		}
	}
	if audit != nil {
		if err = insertAuditLog(ctx, tx, audit); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("review submission: commit: %w", err)
	}
	return &sub, nil
}

// CountPending returns pending latest versions, optionally for one supervisor's projects.
func (r *SubmissionRepository) CountPending(ctx context.Context, supervisorID string) (int, error) {
	query := `SELECT COUNT(*) FROM fyp_submissions s JOIN final_year_projects f ON f.id = s.fyp_id WHERE s.status = 'pending' AND s.is_latest_version = TRUE`
	var args []interface{}
	if supervisorID != "" {
		query += ` AND f.supervisor_id = $1`
		args = append(args, supervisorID)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count pending submissions: %w", err)
	}
	return total, nil
}
