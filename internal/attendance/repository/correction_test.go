package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/database"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
	"github.com/workpulse/workpulse-backend/pkg/testutil"
)

func newCorrectionRepo(t *testing.T) (*repository.CorrectionRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	repo := repository.NewCorrectionRepository(database.NewFromSqlx(mockDB.DB, logger.Nop()))
	return repo, mockDB
}

func TestCorrectionRepository_Create_DuplicatePending(t *testing.T) {
	repo, mockDB := newCorrectionRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO correction_requests").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "correction_requests_pending"})

	err := repo.Create(context.Background(), &repository.CorrectionRequest{
		UserID:     "user-1",
		TargetDate: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		PunchInAt:  time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		PunchOutAt: time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC),
		Reason:     "forgot to punch out",
	})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_PENDING", errors.CodeOf(err))

	mockDB.ExpectationsWereMet(t)
}

func TestCorrectionRepository_Approve_RewritesRecordInOneTransaction(t *testing.T) {
	repo, mockDB := newCorrectionRepo(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE correction_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	admin := "admin-1"
	out := time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC)
	err := repo.Approve(context.Background(),
		&repository.CorrectionRequest{ID: "req-1", DecidedBy: &admin},
		&repository.AttendanceRecord{
			ID:         "rec-1",
			UserID:     "user-1",
			Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			PunchInAt:  time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
			PunchOutAt: &out,
			TotalHours: 8,
			Status:     repository.RecordStatusPresent,
		})
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestCorrectionRepository_Approve_AlreadyDecidedRollsBack(t *testing.T) {
	repo, mockDB := newCorrectionRepo(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE correction_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectRollback()

	err := repo.Approve(context.Background(),
		&repository.CorrectionRequest{ID: "req-1"},
		&repository.AttendanceRecord{ID: "rec-1", UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, "NOT_PENDING", errors.CodeOf(err))

	mockDB.ExpectationsWereMet(t)
}

func TestCorrectionRepository_Reject_NotPending(t *testing.T) {
	repo, mockDB := newCorrectionRepo(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE correction_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), "req-1", "admin-1", nil)
	require.Error(t, err)
	assert.Equal(t, "NOT_PENDING", errors.CodeOf(err))

	mockDB.ExpectationsWereMet(t)
}
