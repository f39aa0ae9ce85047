package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/workpulse/workpulse-backend/pkg/errors"
)

// Postgres error codes this engine cares about.
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqNotNullViolation     = "23502"
	pqCheckViolation       = "23514"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// IsRetryable reports whether err is a transient Postgres condition worth
// retrying (serialization failure, deadlock, lock timeout).
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint violation on
// the named constraint (or any, if constraint is empty).
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || strings.Contains(pqErr.Constraint, constraint)
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful
// messages. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case pqForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case pqNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case pqCheckViolation:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return errors.Retryable("storage conflict, retry the operation")

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique
// constraint violations on this engine's tables.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "attendance_records_user_date"):
		return "an attendance record for this user and day already exists"
	case strings.Contains(constraint, "break_records_active"):
		return "an active break already exists for this session"
	case strings.Contains(constraint, "correction_requests_pending"):
		return "a pending correction request for this day already exists"
	case strings.Contains(constraint, "leave_balances_user_type_year"):
		return "a leave balance for this user, type and year already exists"
	case strings.Contains(constraint, "accrual_markers"):
		return "this accrual period was already credited"
	default:
		return "a record with these values already exists"
	}
}
