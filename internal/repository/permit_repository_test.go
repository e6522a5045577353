package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/src-permit-api/internal/models"
)

var permitDetailColumns = []string{"id", "permit_code", "original_code", "code_prefix", "status", "expiry_date", "amount_paid", "student_id", "issued_by_id", "created_at", "updated_at", "student_code", "student_name", "student_email", "issued_by_name"}

func TestPermitRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	body := "K7Q2"
	expiry := time.Now().Add(24 * time.Hour)
	mock.ExpectQuery("INSERT INTO permits").
		WithArgs("hash", &body, "26", models.PermitStatusActive, expiry, 50.0, int64(7), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	permit := &models.Permit{PermitCode: "hash", OriginalCode: &body, CodePrefix: "26", ExpiryDate: expiry, AmountPaid: 50, StudentID: 7, IssuedByID: 1}
	require.NoError(t, repo.Create(context.Background(), permit))
	assert.Equal(t, int64(42), permit.ID)
	assert.Equal(t, models.PermitStatusActive, permit.Status)
	assert.False(t, permit.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.id = $1")).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(permitDetailColumns).
		AddRow(1, "h1", "K7Q2", "26", "active", now, 50.0, 7, 1, now, now, "S100", "Ama Mensah", "ama@example.edu", "Desk Officer").
		AddRow(2, "h2", nil, "26", "active", now, 50.0, 8, 1, now, now, "S101", "Kofi Boateng", "kofi@example.edu", "")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.status = $1 ORDER BY p.id ASC")).
		WithArgs(models.PermitStatusActive).
		WillReturnRows(rows)

	permits, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, permits, 2)
	assert.Equal(t, "26-K7Q2", permits[0].IssuedCode())
	assert.Nil(t, permits[1].OriginalCode)
	assert.Equal(t, "S101", permits[1].StudentCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	status := models.PermitStatusRevoked
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND p.status = $1 AND (LOWER(COALESCE(p.code_prefix || '-' || p.original_code, '')) LIKE $2 OR LOWER(s.full_name) LIKE $2 OR LOWER(s.student_code) LIKE $2) ORDER BY p.expiry_date ASC, p.id ASC LIMIT 10 OFFSET 10")).
		WithArgs(status, "%ama%").
		WillReturnRows(sqlmock.NewRows(permitDetailColumns).
			AddRow(3, "h3", "K7Q2", "26", "revoked", now, 50.0, 7, 1, now, now, "S100", "Ama Mensah", "ama@example.edu", "Desk Officer"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM permits p JOIN students s")).
		WithArgs(status, "%ama%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	permits, total, err := repo.List(context.Background(), models.PermitFilter{
		Search:    "Ama",
		Status:    &status,
		Page:      2,
		PageSize:  10,
		SortBy:    "expiry_date",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, permits, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE permits SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs(int64(5), models.PermitStatusRevoked, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE permits SET status")).
		WithArgs(int64(6), models.PermitStatusRevoked, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), 5, models.PermitStatusRevoked, time.Now()))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), 6, models.PermitStatusRevoked, time.Now()), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPermitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM permits GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("active", 3).AddRow("revoked", 1))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.PermitStatusCount{{Status: models.PermitStatusActive, Count: 3}, {Status: models.PermitStatusRevoked, Count: 1}}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
