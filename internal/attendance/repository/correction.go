package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/workpulse/workpulse-backend/pkg/database"
	"github.com/workpulse/workpulse-backend/pkg/errors"
)

// Correction request statuses
const (
	CorrectionStatusPending  = "pending"
	CorrectionStatusApproved = "approved"
	CorrectionStatusRejected = "rejected"
)

// CorrectionRequest represents a request to rewrite one day's punch times
type CorrectionRequest struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	TargetDate   time.Time  `db:"target_date" json:"target_date"`
	PunchInAt    time.Time  `db:"punch_in_at" json:"punch_in_at"`
	PunchOutAt   time.Time  `db:"punch_out_at" json:"punch_out_at"`
	Reason       string     `db:"reason" json:"reason"`
	Status       string     `db:"status" json:"status"`
	AdminRemarks *string    `db:"admin_remarks" json:"admin_remarks,omitempty"`
	DecidedBy    *string    `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the request has been decided
func (c *CorrectionRequest) IsTerminal() bool {
	return c.Status != CorrectionStatusPending
}

// CorrectionRepository handles correction request persistence
type CorrectionRepository struct {
	db *database.DB
}

// NewCorrectionRepository creates a new correction repository
func NewCorrectionRepository(db *database.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

// Create inserts a new pending correction request. The partial unique
// index on pending requests per (user_id, target_date) is the backstop
// against concurrent duplicate submissions.
func (r *CorrectionRepository) Create(ctx context.Context, req *CorrectionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = CorrectionStatusPending

	query := `
		INSERT INTO correction_requests (
			id, user_id, target_date, punch_in_at, punch_out_at, reason, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		req.ID, req.UserID, req.TargetDate, req.PunchInAt, req.PunchOutAt, req.Reason, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "correction_requests_pending") {
			return errors.StateConflict("DUPLICATE_PENDING", "a pending correction already exists for this day")
		}
		return fmt.Errorf("failed to create correction request: %w", err)
	}

	return nil
}

// GetByID fetches a correction request, nil when not found
func (r *CorrectionRepository) GetByID(ctx context.Context, id string) (*CorrectionRequest, error) {
	var req CorrectionRequest

	query := `SELECT * FROM correction_requests WHERE id = $1`

	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get correction request: %w", err)
	}

	return &req, nil
}

// GetPendingByUserAndDate fetches the pending request for a user's day, nil when none
func (r *CorrectionRepository) GetPendingByUserAndDate(ctx context.Context, userID string, date time.Time) (*CorrectionRequest, error) {
	var req CorrectionRequest

	query := `
		SELECT * FROM correction_requests
		WHERE user_id = $1 AND target_date = $2 AND status = $3`

	err := r.db.GetContext(ctx, &req, query, userID, date, CorrectionStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending correction request: %w", err)
	}

	return &req, nil
}

// ListByUser returns a user's correction requests, newest first
func (r *CorrectionRepository) ListByUser(ctx context.Context, userID string) ([]*CorrectionRequest, error) {
	requests := make([]*CorrectionRequest, 0)

	query := `
		SELECT * FROM correction_requests
		WHERE user_id = $1
		ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &requests, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list correction requests: %w", err)
	}

	return requests, nil
}

// ListPending returns all pending correction requests, oldest first
func (r *CorrectionRepository) ListPending(ctx context.Context) ([]*CorrectionRequest, error) {
	requests := make([]*CorrectionRequest, 0)

	query := `
		SELECT * FROM correction_requests
		WHERE status = $1
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &requests, query, CorrectionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending correction requests: %w", err)
	}

	return requests, nil
}

// Approve marks the request approved and rewrites the target attendance
// record in the same transaction. The caller passes the fully computed
// record so the rewrite and the status change land together or not at all.
// The status guard on the update means a request decided by a concurrent
// admin affects zero rows and the whole transaction rolls back.
func (r *CorrectionRepository) Approve(ctx context.Context, req *CorrectionRequest, rec *AttendanceRecord) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		decide := `
			UPDATE correction_requests SET
				status = $2,
				admin_remarks = $3,
				decided_by = $4,
				decided_at = NOW(),
				updated_at = NOW()
			WHERE id = $1 AND status = $5`

		result, err := tx.ExecContext(ctx, decide,
			req.ID, CorrectionStatusApproved, req.AdminRemarks, req.DecidedBy, CorrectionStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to approve correction request: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.StateConflict("NOT_PENDING", "correction request has already been decided")
		}

		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}

		// The corrected day may have no record at all, for example when the
		// user forgot to punch in entirely. Upsert covers both shapes.
		rewrite := `
			INSERT INTO attendance_records (
				id, user_id, date, punch_in_at, punch_out_at,
				total_hours, overtime_hours, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id, date) DO UPDATE SET
				punch_in_at = EXCLUDED.punch_in_at,
				punch_out_at = EXCLUDED.punch_out_at,
				total_hours = EXCLUDED.total_hours,
				overtime_hours = EXCLUDED.overtime_hours,
				status = EXCLUDED.status,
				updated_at = NOW()`

		_, err = tx.ExecContext(ctx, rewrite,
			rec.ID, rec.UserID, rec.Date, rec.PunchInAt, rec.PunchOutAt,
			rec.TotalHours, rec.OvertimeHours, rec.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to rewrite attendance record: %w", err)
		}

		return nil
	})
}

// Reject marks the request rejected. The status guard means a request
// decided by a concurrent admin affects zero rows.
func (r *CorrectionRepository) Reject(ctx context.Context, id, adminID string, remarks *string) error {
	query := `
		UPDATE correction_requests SET
			status = $2,
			admin_remarks = $3,
			decided_by = $4,
			decided_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query,
		id, CorrectionStatusRejected, remarks, adminID, CorrectionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to reject correction request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.StateConflict("NOT_PENDING", "correction request has already been decided")
	}

	return nil
}
