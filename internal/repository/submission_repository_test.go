package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
)

var submissionRowColumns = []string{"id", "fyp_id", "submission_type", "title", "description", "file_url", "file_name", "file_size", "status", "version_number", "is_latest_version", "previous_version_id", "supervisor_feedback", "reviewed_by", "submitted_at", "reviewed_at"}

func expectVersionPrelude(mock sqlmock.Sqlmock, maxVersion int) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM final_year_projects WHERE id = $1 FOR UPDATE")).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("f1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version_number), 0) FROM fyp_submissions WHERE fyp_id = $1 AND submission_type = $2")).
		WithArgs("f1", models.SubmissionChapter1).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(maxVersion))
}

func TestCreateVersionSupersedesLatest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	expectVersionPrelude(mock, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM fyp_submissions WHERE fyp_id = $1 AND submission_type = $2 AND is_latest_version = TRUE")).
		WithArgs("f1", models.SubmissionChapter1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s2"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fyp_submissions SET is_latest_version = FALSE WHERE fyp_id = $1 AND submission_type = $2 AND is_latest_version = TRUE")).
		WithArgs("f1", models.SubmissionChapter1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fyp_submissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub := &models.Submission{FYPID: "f1", SubmissionType: models.SubmissionChapter1, Title: "Chapter one"}
	require.NoError(t, repo.CreateVersion(context.Background(), sub))

	assert.Equal(t, 3, sub.VersionNumber)
	require.NotNil(t, sub.PreviousVersionID)
	assert.Equal(t, "s2", *sub.PreviousVersionID)
	assert.True(t, sub.IsLatestVersion)
	assert.Equal(t, models.SubmissionPending, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVersionFirstOfType(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	expectVersionPrelude(mock, 0)
	mock.ExpectQuery("AND is_latest_version = TRUE ORDER BY version_number DESC LIMIT 1").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO fyp_submissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub := &models.Submission{FYPID: "f1", SubmissionType: models.SubmissionChapter1, Title: "Chapter one"}
	require.NoError(t, repo.CreateVersion(context.Background(), sub))
	assert.Equal(t, 1, sub.VersionNumber)
	assert.Nil(t, sub.PreviousVersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVersionInsertFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	expectVersionPrelude(mock, 1)
	mock.ExpectQuery("AND is_latest_version = TRUE").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectExec("UPDATE fyp_submissions SET is_latest_version = FALSE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fyp_submissions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.CreateVersion(context.Background(), &models.Submission{FYPID: "f1", SubmissionType: models.SubmissionChapter1})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVersionUnknownProject(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CreateVersion(context.Background(), &models.Submission{FYPID: "missing", SubmissionType: models.SubmissionProposal})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewCascadesInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now().UTC()
	feedback := "  Great scope.\nTighten chapter plan.  "
	cascade := models.FYPStatusProposalApproved

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE fyp_submissions SET status = $2, supervisor_feedback = $3, reviewed_by = $4, reviewed_at = $5 WHERE id = $1 AND status = 'pending' RETURNING")).
		WithArgs("s1", models.SubmissionApproved, feedback, "t1", now).
		WillReturnRows(sqlmock.NewRows(submissionRowColumns).
			AddRow("s1", "f1", "proposal", "Proposal", nil, nil, nil, nil, "approved", 1, true, nil, feedback, "t1", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE final_year_projects SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("f1", cascade, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := repo.Review(context.Background(), models.SubmissionReview{
		SubmissionID:  "s1",
		Status:        models.SubmissionApproved,
		Feedback:      feedback,
		ReviewerID:    "t1",
		ReviewedAt:    now,
		CascadeStatus: &cascade,
	}, &models.AuditLog{Action: models.AuditActionReview, Resource: "fyp_submission"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionApproved, sub.Status)
	require.NotNil(t, sub.SupervisorFeedback)
	assert.Equal(t, feedback, *sub.SupervisorFeedback)
	require.NotNil(t, sub.ReviewedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewWithoutCascadeLeavesProjectAlone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE fyp_submissions SET status").
		WillReturnRows(sqlmock.NewRows(submissionRowColumns).
			AddRow("s9", "f1", "chapter_1", "Ch1", nil, nil, nil, nil, "approved", 2, true, "s8", "ok", "t1", now, now))
	mock.ExpectCommit()

	_, err := repo.Review(context.Background(), models.SubmissionReview{SubmissionID: "s9", Status: models.SubmissionApproved, Feedback: "ok", ReviewerID: "t1", ReviewedAt: now}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE fyp_submissions SET status").WillReturnRows(sqlmock.NewRows(submissionRowColumns))
	mock.ExpectRollback()

	_, err := repo.Review(context.Background(), models.SubmissionReview{SubmissionID: "s1", Status: models.SubmissionRejected, ReviewedAt: time.Now()}, nil)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListHistoryByType(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	kind := models.SubmissionChapter2
	mock.ExpectQuery(regexp.QuoteMeta("FROM fyp_submissions WHERE fyp_id = $1 AND submission_type = $2 ORDER BY version_number DESC")).
		WithArgs("f1", kind).
		WillReturnRows(sqlmock.NewRows(submissionRowColumns).
			AddRow("s2", "f1", "chapter_2", "v2", nil, nil, nil, nil, "pending", 2, true, "s1", nil, nil, now, nil).
			AddRow("s1", "f1", "chapter_2", "v1", nil, nil, nil, nil, "needs_revision", 1, false, nil, "redo", "t1", now, now))

	subs, err := repo.ListHistory(context.Background(), "f1", &kind)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, 2, subs[0].VersionNumber)
	assert.True(t, subs[0].IsLatestVersion)
	assert.False(t, subs[1].IsLatestVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}
