package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workpulse/workpulse-backend/pkg/database"
	"github.com/workpulse/workpulse-backend/pkg/errors"
)

// Attendance record statuses
const (
	RecordStatusPresent = "present"
	RecordStatusHalfDay = "half_day"
)

// Break record statuses
const (
	BreakStatusActive    = "active"
	BreakStatusCompleted = "completed"
)

// AttendanceRecord represents one user's attendance for one calendar day
type AttendanceRecord struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Date          time.Time  `db:"date" json:"date"`
	PunchInAt     time.Time  `db:"punch_in_at" json:"punch_in_at"`
	PunchOutAt    *time.Time `db:"punch_out_at" json:"punch_out_at,omitempty"`
	PunchInLat    *float64   `db:"punch_in_lat" json:"punch_in_lat,omitempty"`
	PunchInLon    *float64   `db:"punch_in_lon" json:"punch_in_lon,omitempty"`
	PunchOutLat   *float64   `db:"punch_out_lat" json:"punch_out_lat,omitempty"`
	PunchOutLon   *float64   `db:"punch_out_lon" json:"punch_out_lon,omitempty"`
	TotalHours    float64    `db:"total_hours" json:"total_hours"`
	OvertimeHours float64    `db:"overtime_hours" json:"overtime_hours"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the session has not been punched out yet
func (r *AttendanceRecord) IsOpen() bool {
	return r.PunchOutAt == nil
}

// BreakRecord represents one break inside an attendance record
type BreakRecord struct {
	ID                 string     `db:"id" json:"id"`
	AttendanceRecordID string     `db:"attendance_record_id" json:"attendance_record_id"`
	StartAt            time.Time  `db:"start_at" json:"start_at"`
	EndAt              *time.Time `db:"end_at" json:"end_at,omitempty"`
	DurationSeconds    int64      `db:"duration_seconds" json:"duration_seconds"`
	Reason             *string    `db:"reason" json:"reason,omitempty"`
	Status             string     `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// AttendanceRepository handles attendance record persistence
type AttendanceRepository struct {
	db *database.DB
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *database.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateRecord inserts a new attendance record. The unique index on
// (user_id, date) is the backstop against two concurrent punch-ins
// racing past the service-level check.
func (r *AttendanceRepository) CreateRecord(ctx context.Context, rec *AttendanceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO attendance_records (
			id, user_id, date, punch_in_at, punch_in_lat, punch_in_lon,
			total_hours, overtime_hours, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.UserID, rec.Date, rec.PunchInAt, rec.PunchInLat, rec.PunchInLon,
		rec.TotalHours, rec.OvertimeHours, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "attendance_records_user_date") {
			return errors.StateConflict("ALREADY_PUNCHED_IN", "an attendance record already exists for this day")
		}
		return fmt.Errorf("failed to create attendance record: %w", err)
	}

	return nil
}

// GetRecordByID fetches an attendance record by its id
func (r *AttendanceRepository) GetRecordByID(ctx context.Context, id string) (*AttendanceRecord, error) {
	var rec AttendanceRecord

	query := `SELECT * FROM attendance_records WHERE id = $1`

	err := r.db.GetContext(ctx, &rec, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance record: %w", err)
	}

	return &rec, nil
}

// GetRecordByUserAndDate fetches the record for a user on a given day.
// Returns nil without error when no record exists.
func (r *AttendanceRepository) GetRecordByUserAndDate(ctx context.Context, userID string, date time.Time) (*AttendanceRecord, error) {
	var rec AttendanceRecord

	query := `SELECT * FROM attendance_records WHERE user_id = $1 AND date = $2`

	err := r.db.GetContext(ctx, &rec, query, userID, date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance record: %w", err)
	}

	return &rec, nil
}

// GetOpenRecordByUser fetches the user's open session, if any
func (r *AttendanceRepository) GetOpenRecordByUser(ctx context.Context, userID string) (*AttendanceRecord, error) {
	var rec AttendanceRecord

	query := `
		SELECT * FROM attendance_records
		WHERE user_id = $1 AND punch_out_at IS NULL
		ORDER BY punch_in_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &rec, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open attendance record: %w", err)
	}

	return &rec, nil
}

// UpdateRecord writes punch-out time, totals and status back to a record
func (r *AttendanceRepository) UpdateRecord(ctx context.Context, rec *AttendanceRecord) error {
	query := `
		UPDATE attendance_records SET
			punch_in_at = $2,
			punch_out_at = $3,
			punch_out_lat = $4,
			punch_out_lon = $5,
			total_hours = $6,
			overtime_hours = $7,
			status = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.PunchInAt, rec.PunchOutAt, rec.PunchOutLat, rec.PunchOutLon,
		rec.TotalHours, rec.OvertimeHours, rec.Status,
	).Scan(&rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.NotFound("attendance record")
	}
	if err != nil {
		return fmt.Errorf("failed to update attendance record: %w", err)
	}

	return nil
}

// ListRecordsForRange returns all records for a user between two dates, inclusive
func (r *AttendanceRepository) ListRecordsForRange(ctx context.Context, userID string, from, to time.Time) ([]*AttendanceRecord, error) {
	records := make([]*AttendanceRecord, 0)

	query := `
		SELECT * FROM attendance_records
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`

	err := r.db.SelectContext(ctx, &records, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}

	return records, nil
}

// CreateBreak opens a new break on an attendance record. The partial
// unique index on active breaks is the backstop against two concurrent
// break starts racing past the service-level check.
func (r *AttendanceRepository) CreateBreak(ctx context.Context, brk *BreakRecord) error {
	if brk.ID == "" {
		brk.ID = uuid.New().String()
	}
	brk.Status = BreakStatusActive

	query := `
		INSERT INTO break_records (id, attendance_record_id, start_at, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		brk.ID, brk.AttendanceRecordID, brk.StartAt, brk.Reason, brk.Status,
	).Scan(&brk.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "break_records_active") {
			return errors.StateConflict("BREAK_ALREADY_ACTIVE", "a break is already in progress")
		}
		return fmt.Errorf("failed to create break record: %w", err)
	}

	return nil
}

// GetActiveBreak fetches the open break on a record, nil when none
func (r *AttendanceRepository) GetActiveBreak(ctx context.Context, recordID string) (*BreakRecord, error) {
	var brk BreakRecord

	query := `
		SELECT * FROM break_records
		WHERE attendance_record_id = $1 AND status = $2`

	err := r.db.GetContext(ctx, &brk, query, recordID, BreakStatusActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active break: %w", err)
	}

	return &brk, nil
}

// CloseBreak completes an active break. The status guard means a break
// that was already closed by a concurrent request affects zero rows.
func (r *AttendanceRepository) CloseBreak(ctx context.Context, breakID string, endAt time.Time, durationSeconds int64) error {
	query := `
		UPDATE break_records SET
			end_at = $2,
			duration_seconds = $3,
			status = $4
		WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query,
		breakID, endAt, durationSeconds, BreakStatusCompleted, BreakStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to close break: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.StateConflict("NO_ACTIVE_BREAK", "no break is in progress")
	}

	return nil
}

// ListBreaks returns all breaks on a record, oldest first
func (r *AttendanceRepository) ListBreaks(ctx context.Context, recordID string) ([]*BreakRecord, error) {
	breaks := make([]*BreakRecord, 0)

	query := `
		SELECT * FROM break_records
		WHERE attendance_record_id = $1
		ORDER BY start_at ASC`

	err := r.db.SelectContext(ctx, &breaks, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}

	return breaks, nil
}

// CompletedBreakSeconds sums the duration of all completed breaks on a record
func (r *AttendanceRepository) CompletedBreakSeconds(ctx context.Context, recordID string) (int64, error) {
	var total int64

	query := `
		SELECT COALESCE(SUM(duration_seconds), 0) FROM break_records
		WHERE attendance_record_id = $1 AND status = $2`

	err := r.db.GetContext(ctx, &total, query, recordID, BreakStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to sum break durations: %w", err)
	}

	return total, nil
}
