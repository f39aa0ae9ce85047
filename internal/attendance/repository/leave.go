package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/workpulse/workpulse-backend/pkg/database"
	"github.com/workpulse/workpulse-backend/pkg/errors"
)

// Leave request statuses
const (
	LeaveStatusPending   = "pending"
	LeaveStatusApproved  = "approved"
	LeaveStatusRejected  = "rejected"
	LeaveStatusCancelled = "cancelled"
)

// LeavePolicy describes the rules for one leave type
type LeavePolicy struct {
	ID                    string          `db:"id" json:"id"`
	LeaveType             string          `db:"leave_type" json:"leave_type"`
	AnnualAllocation      decimal.Decimal `db:"annual_allocation" json:"annual_allocation"`
	MonthlyAccrual        decimal.Decimal `db:"monthly_accrual" json:"monthly_accrual"`
	MaxCarryForward       decimal.Decimal `db:"max_carry_forward" json:"max_carry_forward"`
	MaxConsecutiveDays    int             `db:"max_consecutive_days" json:"max_consecutive_days"`
	NoticePeriodDays      int             `db:"notice_period_days" json:"notice_period_days"`
	RequiresDocumentation bool            `db:"requires_documentation" json:"requires_documentation"`
	IsActive              bool            `db:"is_active" json:"is_active"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// LeaveBalance is one user's ledger row for one leave type and year
type LeaveBalance struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	LeaveType      string          `db:"leave_type" json:"leave_type"`
	Year           int             `db:"year" json:"year"`
	AllocatedDays  decimal.Decimal `db:"allocated_days" json:"allocated_days"`
	UsedDays       decimal.Decimal `db:"used_days" json:"used_days"`
	CarriedForward decimal.Decimal `db:"carried_forward" json:"carried_forward"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Available returns allocated plus carried-forward minus used days
func (b *LeaveBalance) Available() decimal.Decimal {
	return b.AllocatedDays.Add(b.CarriedForward).Sub(b.UsedDays)
}

// LeaveRequest represents a request for a span of leave days
type LeaveRequest struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	LeaveType     string          `db:"leave_type" json:"leave_type"`
	StartDate     time.Time       `db:"start_date" json:"start_date"`
	EndDate       time.Time       `db:"end_date" json:"end_date"`
	HalfDay       bool            `db:"half_day" json:"half_day"`
	RequestedDays decimal.Decimal `db:"requested_days" json:"requested_days"`
	Reason        string          `db:"reason" json:"reason"`
	DocumentRef   *string         `db:"document_ref" json:"document_ref,omitempty"`
	Status        string          `db:"status" json:"status"`
	AdminRemarks  *string         `db:"admin_remarks" json:"admin_remarks,omitempty"`
	DecidedBy     *string         `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// LeaveRepository handles leave policy, balance and request persistence
type LeaveRepository struct {
	db *database.DB
}

// NewLeaveRepository creates a new leave repository
func NewLeaveRepository(db *database.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// GetPolicy fetches the policy for a leave type, nil when none exists
func (r *LeaveRepository) GetPolicy(ctx context.Context, leaveType string) (*LeavePolicy, error) {
	var policy LeavePolicy

	query := `SELECT * FROM leave_policies WHERE leave_type = $1`

	err := r.db.GetContext(ctx, &policy, query, leaveType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave policy: %w", err)
	}

	return &policy, nil
}

// ListActivePolicies returns all active leave policies
func (r *LeaveRepository) ListActivePolicies(ctx context.Context) ([]*LeavePolicy, error) {
	policies := make([]*LeavePolicy, 0)

	query := `SELECT * FROM leave_policies WHERE is_active = true ORDER BY leave_type ASC`

	err := r.db.SelectContext(ctx, &policies, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave policies: %w", err)
	}

	return policies, nil
}

// GetBalance fetches one ledger row, nil when the user has none yet
func (r *LeaveRepository) GetBalance(ctx context.Context, userID, leaveType string, year int) (*LeaveBalance, error) {
	var balance LeaveBalance

	query := `
		SELECT * FROM leave_balances
		WHERE user_id = $1 AND leave_type = $2 AND year = $3`

	err := r.db.GetContext(ctx, &balance, query, userID, leaveType, year)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave balance: %w", err)
	}

	return &balance, nil
}

// ListBalances returns all of a user's ledger rows for a year
func (r *LeaveRepository) ListBalances(ctx context.Context, userID string, year int) ([]*LeaveBalance, error) {
	balances := make([]*LeaveBalance, 0)

	query := `
		SELECT * FROM leave_balances
		WHERE user_id = $1 AND year = $2
		ORDER BY leave_type ASC`

	err := r.db.SelectContext(ctx, &balances, query, userID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave balances: %w", err)
	}

	return balances, nil
}

// Accrue credits one month's accrual onto a user's ledger row, creating the
// row when it does not exist yet. The marker insert makes the whole
// operation idempotent: when the marker already exists the credit is
// skipped and the method reports false without error, so a scheduler
// re-run or a second instance cannot double-credit.
func (r *LeaveRepository) Accrue(ctx context.Context, userID, leaveType string, year, month int, amount decimal.Decimal) (bool, error) {
	credited := false

	err := r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		credited = false

		marker := `
			INSERT INTO accrual_markers (user_id, leave_type, year, month)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, leave_type, year, month) DO NOTHING`

		result, err := tx.ExecContext(ctx, marker, userID, leaveType, year, month)
		if err != nil {
			return fmt.Errorf("failed to insert accrual marker: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		upsert := `
			INSERT INTO leave_balances (id, user_id, leave_type, year, allocated_days, used_days, carried_forward)
			VALUES ($1, $2, $3, $4, $5, 0, 0)
			ON CONFLICT (user_id, leave_type, year) DO UPDATE SET
				allocated_days = leave_balances.allocated_days + EXCLUDED.allocated_days,
				updated_at = NOW()`

		_, err = tx.ExecContext(ctx, upsert, uuid.New().String(), userID, leaveType, year, amount)
		if err != nil {
			return fmt.Errorf("failed to credit accrual: %w", err)
		}

		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return credited, nil
}

// Reserve debits days from a user's ledger row under a row lock. The
// lock serializes concurrent approvals so the balance can never go
// negative, and the check inside the transaction is the authoritative one.
func (r *LeaveRepository) Reserve(ctx context.Context, userID, leaveType string, year int, days decimal.Decimal) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		var balance LeaveBalance

		lock := `
			SELECT * FROM leave_balances
			WHERE user_id = $1 AND leave_type = $2 AND year = $3
			FOR UPDATE`

		err := tx.GetContext(ctx, &balance, lock, userID, leaveType, year)
		if err == sql.ErrNoRows {
			return errors.PolicyViolation("INSUFFICIENT_BALANCE", "no leave balance exists for this type and year")
		}
		if err != nil {
			return fmt.Errorf("failed to lock leave balance: %w", err)
		}

		if balance.Available().LessThan(days) {
			return errors.PolicyViolation("INSUFFICIENT_BALANCE", "not enough leave days available").
				WithDetails(map[string]string{
					"available": balance.Available().String(),
					"requested": days.String(),
				})
		}

		debit := `
			UPDATE leave_balances SET
				used_days = used_days + $4,
				updated_at = NOW()
			WHERE user_id = $1 AND leave_type = $2 AND year = $3`

		_, err = tx.ExecContext(ctx, debit, userID, leaveType, year, days)
		if err != nil {
			return fmt.Errorf("failed to reserve leave days: %w", err)
		}

		return nil
	})
}

// Release returns days to a user's ledger row, clamping used days at zero
func (r *LeaveRepository) Release(ctx context.Context, userID, leaveType string, year int, days decimal.Decimal) error {
	query := `
		UPDATE leave_balances SET
			used_days = GREATEST(used_days - $4, 0),
			updated_at = NOW()
		WHERE user_id = $1 AND leave_type = $2 AND year = $3`

	_, err := r.db.ExecContext(ctx, query, userID, leaveType, year, days)
	if err != nil {
		return fmt.Errorf("failed to release leave days: %w", err)
	}

	return nil
}

// CarryForward rolls a user's unused days from one year into the next,
// capped by the policy. Month zero in the marker table records that the
// rollover for the target year already ran, so it is as idempotent as
// the monthly accrual.
func (r *LeaveRepository) CarryForward(ctx context.Context, userID, leaveType string, fromYear int, cap decimal.Decimal) (bool, error) {
	applied := false

	err := r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		applied = false

		marker := `
			INSERT INTO accrual_markers (user_id, leave_type, year, month)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (user_id, leave_type, year, month) DO NOTHING`

		result, err := tx.ExecContext(ctx, marker, userID, leaveType, fromYear+1)
		if err != nil {
			return fmt.Errorf("failed to insert carry-forward marker: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		var prev LeaveBalance

		lock := `
			SELECT * FROM leave_balances
			WHERE user_id = $1 AND leave_type = $2 AND year = $3
			FOR UPDATE`

		err = tx.GetContext(ctx, &prev, lock, userID, leaveType, fromYear)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock previous year balance: %w", err)
		}

		carry := prev.AllocatedDays.Sub(prev.UsedDays)
		if carry.IsNegative() {
			carry = decimal.Zero
		}
		if carry.GreaterThan(cap) {
			carry = cap
		}
		if carry.IsZero() {
			return nil
		}

		upsert := `
			INSERT INTO leave_balances (id, user_id, leave_type, year, allocated_days, used_days, carried_forward)
			VALUES ($1, $2, $3, $4, 0, 0, $5)
			ON CONFLICT (user_id, leave_type, year) DO UPDATE SET
				carried_forward = EXCLUDED.carried_forward,
				updated_at = NOW()`

		_, err = tx.ExecContext(ctx, upsert, uuid.New().String(), userID, leaveType, fromYear+1, carry)
		if err != nil {
			return fmt.Errorf("failed to apply carry-forward: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// CreateRequest inserts a new pending leave request
func (r *LeaveRepository) CreateRequest(ctx context.Context, req *LeaveRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = LeaveStatusPending

	query := `
		INSERT INTO leave_requests (
			id, user_id, leave_type, start_date, end_date, half_day,
			requested_days, reason, document_ref, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		req.ID, req.UserID, req.LeaveType, req.StartDate, req.EndDate, req.HalfDay,
		req.RequestedDays, req.Reason, req.DocumentRef, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}

	return nil
}

// GetRequestByID fetches a leave request, nil when not found
func (r *LeaveRepository) GetRequestByID(ctx context.Context, id string) (*LeaveRequest, error) {
	var req LeaveRequest

	query := `SELECT * FROM leave_requests WHERE id = $1`

	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}

	return &req, nil
}

// ListRequestsByUser returns a user's leave requests, newest first
func (r *LeaveRepository) ListRequestsByUser(ctx context.Context, userID string) ([]*LeaveRequest, error) {
	requests := make([]*LeaveRequest, 0)

	query := `
		SELECT * FROM leave_requests
		WHERE user_id = $1
		ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &requests, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}

	return requests, nil
}

// ListPendingRequests returns all pending leave requests, oldest first
func (r *LeaveRepository) ListPendingRequests(ctx context.Context) ([]*LeaveRequest, error) {
	requests := make([]*LeaveRequest, 0)

	query := `
		SELECT * FROM leave_requests
		WHERE status = $1
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &requests, query, LeaveStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending leave requests: %w", err)
	}

	return requests, nil
}

// ListOverlapping returns requests in the given statuses whose date span
// intersects [start, end]
func (r *LeaveRepository) ListOverlapping(ctx context.Context, userID string, start, end time.Time, statuses []string) ([]*LeaveRequest, error) {
	requests := make([]*LeaveRequest, 0)

	query, args, err := sqlx.In(`
		SELECT * FROM leave_requests
		WHERE user_id = ? AND start_date <= ? AND end_date >= ? AND status IN (?)`,
		userID, end, start, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to build overlap query: %w", err)
	}

	err = r.db.SelectContext(ctx, &requests, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping leave requests: %w", err)
	}

	return requests, nil
}

// ListApprovedForRange returns approved requests intersecting [start, end],
// used by the monthly summary to mark leave days
func (r *LeaveRepository) ListApprovedForRange(ctx context.Context, userID string, start, end time.Time) ([]*LeaveRequest, error) {
	return r.ListOverlapping(ctx, userID, start, end, []string{LeaveStatusApproved})
}

// ApproveRequest marks a pending request approved and reserves its days on
// the ledger in one transaction. Either both land or neither does: an
// insufficient balance rolls back the status change, and a request already
// decided by a concurrent admin rolls back before touching the ledger.
func (r *LeaveRepository) ApproveRequest(ctx context.Context, requestID, adminID string, remarks *string, userID, leaveType string, year int, days decimal.Decimal) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		decide := `
			UPDATE leave_requests SET
				status = $2,
				admin_remarks = $3,
				decided_by = $4,
				decided_at = NOW(),
				updated_at = NOW()
			WHERE id = $1 AND status = $5`

		result, err := tx.ExecContext(ctx, decide,
			requestID, LeaveStatusApproved, remarks, adminID, LeaveStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to approve leave request: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.StateConflict("NOT_PENDING", "leave request has already been decided")
		}

		var balance LeaveBalance

		lock := `
			SELECT * FROM leave_balances
			WHERE user_id = $1 AND leave_type = $2 AND year = $3
			FOR UPDATE`

		err = tx.GetContext(ctx, &balance, lock, userID, leaveType, year)
		if err == sql.ErrNoRows {
			return errors.PolicyViolation("INSUFFICIENT_BALANCE", "no leave balance exists for this type and year")
		}
		if err != nil {
			return fmt.Errorf("failed to lock leave balance: %w", err)
		}

		if balance.Available().LessThan(days) {
			return errors.PolicyViolation("INSUFFICIENT_BALANCE", "not enough leave days available").
				WithDetails(map[string]string{
					"available": balance.Available().String(),
					"requested": days.String(),
				})
		}

		debit := `
			UPDATE leave_balances SET
				used_days = used_days + $4,
				updated_at = NOW()
			WHERE user_id = $1 AND leave_type = $2 AND year = $3`

		_, err = tx.ExecContext(ctx, debit, userID, leaveType, year, days)
		if err != nil {
			return fmt.Errorf("failed to reserve leave days: %w", err)
		}

		return nil
	})
}

// RejectRequest marks a pending request rejected. The status guard means
// a request decided by a concurrent admin affects zero rows.
func (r *LeaveRepository) RejectRequest(ctx context.Context, requestID, adminID string, remarks *string) error {
	query := `
		UPDATE leave_requests SET
			status = $2,
			admin_remarks = $3,
			decided_by = $4,
			decided_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query,
		requestID, LeaveStatusRejected, remarks, adminID, LeaveStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to reject leave request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.StateConflict("NOT_PENDING", "leave request has already been decided")
	}

	return nil
}

// CancelPendingRequest cancels a request that was never approved, so no
// ledger movement is needed
func (r *LeaveRepository) CancelPendingRequest(ctx context.Context, requestID string) error {
	query := `
		UPDATE leave_requests SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, requestID, LeaveStatusCancelled, LeaveStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel leave request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.StateConflict("NOT_PENDING", "leave request cannot be cancelled in its current state")
	}

	return nil
}

// CancelApprovedRequest cancels an approved request and releases its days
// back to the ledger in one transaction
func (r *LeaveRepository) CancelApprovedRequest(ctx context.Context, requestID, userID, leaveType string, year int, days decimal.Decimal) error {
	return r.db.TransactionWithRetry(ctx, func(tx *sqlx.Tx) error {
		cancel := `
			UPDATE leave_requests SET
				status = $2,
				updated_at = NOW()
			WHERE id = $1 AND status = $3`

		result, err := tx.ExecContext(ctx, cancel, requestID, LeaveStatusCancelled, LeaveStatusApproved)
		if err != nil {
			return fmt.Errorf("failed to cancel leave request: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.StateConflict("NOT_PENDING", "leave request cannot be cancelled in its current state")
		}

		release := `
			UPDATE leave_balances SET
				used_days = GREATEST(used_days - $4, 0),
				updated_at = NOW()
			WHERE user_id = $1 AND leave_type = $2 AND year = $3`

		_, err = tx.ExecContext(ctx, release, userID, leaveType, year, days)
		if err != nil {
			return fmt.Errorf("failed to release leave days: %w", err)
		}

		return nil
	})
}

// ActiveUserIDs returns every user the engine has seen, either through an
// attendance record or a ledger row. The accrual scheduler iterates this
// set because the engine does not own a user directory.
func (r *LeaveRepository) ActiveUserIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)

	query := `
		SELECT DISTINCT user_id FROM leave_balances
		UNION
		SELECT DISTINCT user_id FROM attendance_records
		ORDER BY user_id ASC`

	err := r.db.SelectContext(ctx, &ids, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	return ids, nil
}
