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

	"github.com/swebuk/portal-api/internal/models"
)

const fypSelect = `SELECT f.id, f.student_id, f.supervisor_id, f.title, f.description, f.status, f.progress_percentage, f.github_repo_url, f.created_at, f.updated_at, COALESCE(st.full_name, '') AS student_name, sup.full_name AS supervisor_name FROM final_year_projects f LEFT JOIN profiles st ON st.id = f.student_id LEFT JOIN profiles sup ON sup.id = f.supervisor_id`

// FYPRepository persists final year projects.
type FYPRepository struct {
	db *sqlx.DB
}

// NewFYPRepository creates a new FYPRepository.
func NewFYPRepository(db *sqlx.DB) *FYPRepository {
	return &FYPRepository{db: db}
}

// CreateProposal inserts the student's project and, when given, the first
// proposal document in the same transaction. A second project for the same
// student returns ErrDuplicate.
func (r *FYPRepository) CreateProposal(ctx context.Context, fyp *models.FinalYearProject, document *models.Submission) (err error) {
	if fyp.ID == "" {
		fyp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	fyp.CreatedAt, fyp.UpdatedAt = now, now
	fyp.Status = models.FYPStatusProposalSubmitted

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create proposal: begin: %w", err)
	}
	defer rollback(tx, &err)

	const insert = `INSERT INTO final_year_projects (id, student_id, title, description, status, progress_percentage, created_at, updated_at) VALUES (:id, :student_id, :title, :description, :status, :progress_percentage, :created_at, :updated_at) ON CONFLICT (student_id) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, tx, insert, fyp)
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = ErrDuplicate
		return err
	}

	if document != nil {
		document.FYPID = fyp.ID
		document.SubmissionType = models.SubmissionProposal
		document.VersionNumber = 1
		document.PreviousVersionID = nil
		if err = insertSubmission(ctx, tx, document); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("create proposal: commit: %w", err)
	}
	return nil
}

// FindByID returns a project by identifier.
func (r *FYPRepository) FindByID(ctx context.Context, id string) (*models.FinalYearProject, error) {
	return r.getOne(ctx, "find fyp", fypSelect+` WHERE f.id = $1`, id)
}

// FindByStudent returns the project owned by the student.
func (r *FYPRepository) FindByStudent(ctx context.Context, studentID string) (*models.FinalYearProject, error) {
	return r.getOne(ctx, "find fyp by student", fypSelect+` WHERE f.student_id = $1`, studentID)
}

func (r *FYPRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.FinalYearProject, error) {
	var fyp models.FinalYearProject
	if err := r.db.GetContext(ctx, &fyp, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &fyp, nil
}

func buildFYPWhere(filter models.FYPFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("f.status = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conditions = append(conditions, fmt.Sprintf("f.supervisor_id = $%d", len(args)))
	}
	if filter.Unassigned {
		conditions = append(conditions, "f.supervisor_id IS NULL")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(f.title) LIKE $%d OR LOWER(st.full_name) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns a page of projects and the total count.
func (r *FYPRepository) List(ctx context.Context, filter models.FYPFilter) ([]models.FinalYearProject, int, error) {
	where, args := buildFYPWhere(filter)
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY f.created_at DESC LIMIT %d OFFSET %d", fypSelect, where, pageSize, (page-1)*pageSize)

	var items []models.FinalYearProject
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fyp: %w", err)
	}
	var total int
	countQuery := `SELECT COUNT(*) FROM final_year_projects f LEFT JOIN profiles st ON st.id = f.student_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fyp: %w", err)
	}
	return items, total, nil
}

// ListAll returns every project matching the filter, used for exports.
func (r *FYPRepository) ListAll(ctx context.Context, filter models.FYPFilter) ([]models.FinalYearProject, error) {
	where, args := buildFYPWhere(filter)
	var items []models.FinalYearProject
	if err := r.db.SelectContext(ctx, &items, fypSelect+where+" ORDER BY st.full_name ASC", args...); err != nil {
		return nil, fmt.Errorf("list all fyp: %w", err)
	}
	return items, nil
}

// UpdateProgress sets progress and the repository link.
func (r *FYPRepository) UpdateProgress(ctx context.Context, id string, progress int, repoURL *string) error {
	const query = `UPDATE final_year_projects SET progress_percentage = $2, github_repo_url = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, progress, repoURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update fyp progress: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves the project from one status to another. ErrStaleState is
// returned when the project is no longer in from.
func (r *FYPRepository) UpdateStatus(ctx context.Context, id string, from, to models.FYPStatus) error {
	const query = `UPDATE final_year_projects SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update fyp status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStaleState
	}
	return nil
}

// AssignSupervisor overwrites the supervisor and records the audit row.
func (r *FYPRepository) AssignSupervisor(ctx context.Context, id, supervisorID string, audit *models.AuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("assign supervisor: begin: %w", err)
	}
	defer rollback(tx, &err)

	const query = `UPDATE final_year_projects SET supervisor_id = $2, updated_at = $3 WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, id, supervisorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign supervisor: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if audit != nil {
		if err = insertAuditLog(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("assign supervisor: commit: %w", err)
	}
	return nil
}

// CountByStatus returns project counts keyed by status.
func (r *FYPRepository) CountByStatus(ctx context.Context) (map[models.FYPStatus]int, error) {
	var rows []struct {
		Status models.FYPStatus `db:"status"`
		Total  int              `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM final_year_projects GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count fyp by status: %w", err)
	}
	out := make(map[models.FYPStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// CountUnassigned returns projects still waiting for a supervisor.
func (r *FYPRepository) CountUnassigned(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM final_year_projects WHERE supervisor_id IS NULL`); err != nil {
		return 0, fmt.Errorf("count unassigned fyp: %w", err)
	}
	return total, nil
}
