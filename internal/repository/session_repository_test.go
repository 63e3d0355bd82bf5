package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
)

const snapshotQuery = "SELECT id, academic_level FROM profiles WHERE academic_level IS NOT NULL AND academic_level <> 'alumni' ORDER BY id FOR UPDATE"

const promoteQuery = "UPDATE profiles SET academic_level = $1, updated_at = $2 WHERE id = ANY($3)"

func TestRollForwardUsesSnapshot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	at := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	// two level 300 students and one level 400 (legacy literal) student
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "academic_level"}).
			AddRow("a", "level_300").
			AddRow("b", "level_300").
			AddRow("c", "400").
			AddRow("d", "level_100"))
	mock.ExpectExec(regexp.QuoteMeta(promoteQuery)).
		WithArgs(models.LevelAlumni, at, pq.Array([]string{"c"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(promoteQuery)).
		WithArgs(models.Level400, at, pq.Array([]string{"a", "b"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(promoteQuery)).
		WithArgs(models.Level200, at, pq.Array([]string{"d"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE academic_sessions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE RETURNING id")).
		WithArgs(at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-2024"))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RollForward(context.Background(), "admin-1", at)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Transitions[models.Level400])
	assert.Equal(t, 1, result.Graduated)
	assert.Equal(t, 4, result.Total)
	require.NotNil(t, result.DeactivatedSessionID)
	assert.Equal(t, "sess-2024", *result.DeactivatedSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollForwardWithoutActiveSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQuery)).WillReturnRows(sqlmock.NewRows([]string{"id", "academic_level"}))
	mock.ExpectQuery("UPDATE academic_sessions SET is_active = FALSE").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RollForward(context.Background(), "admin-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Nil(t, result.DeactivatedSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollForwardFailureRollsBackEverything(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "academic_level"}).AddRow("a", "level_300").AddRow("c", "level_400"))
	mock.ExpectExec(regexp.QuoteMeta(promoteQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(promoteQuery)).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := repo.RollForward(context.Background(), "admin-1", time.Now().UTC())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_sessions SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2")).
		WithArgs(sqlmock.AnyArg(), "s2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_sessions SET is_active = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs("s2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), "s2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
