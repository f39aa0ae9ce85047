package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/workpulse/workpulse-backend/internal/attendance/events"
	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// LedgerStore is the persistence surface the ledger service needs
type LedgerStore interface {
	GetPolicy(ctx context.Context, leaveType string) (*repository.LeavePolicy, error)
	ListActivePolicies(ctx context.Context) ([]*repository.LeavePolicy, error)
	GetBalance(ctx context.Context, userID, leaveType string, year int) (*repository.LeaveBalance, error)
	ListBalances(ctx context.Context, userID string, year int) ([]*repository.LeaveBalance, error)
	Accrue(ctx context.Context, userID, leaveType string, year, month int, amount decimal.Decimal) (bool, error)
	Release(ctx context.Context, userID, leaveType string, year int, days decimal.Decimal) error
	CarryForward(ctx context.Context, userID, leaveType string, fromYear int, cap decimal.Decimal) (bool, error)
}

// LedgerService owns leave balance movements. All debits and credits go
// through it so the available-days arithmetic lives in one place.
type LedgerService struct {
	store     LedgerStore
	publisher events.Publisher
	logger    *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(store LedgerStore, publisher events.Publisher, log *logger.Logger) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    log,
	}
}

// Accrue credits one month's accrual for one user and leave type. Calling it
// again for the same (user, type, year, month) is a silent no-op, which is
// what lets the scheduler re-run safely after a crash or overlap with
// another instance.
func (s *LedgerService) Accrue(ctx context.Context, userID, leaveType string, year, month int) error {
	policy, err := s.store.GetPolicy(ctx, leaveType)
	if err != nil {
		return err
	}
	if policy == nil || !policy.IsActive {
		return errors.PolicyViolation("UNKNOWN_LEAVE_TYPE", "no active policy for leave type "+leaveType)
	}

	credited, err := s.store.Accrue(ctx, userID, leaveType, year, month, policy.MonthlyAccrual)
	if err != nil {
		return err
	}
	if !credited {
		return nil
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("leave_type", leaveType).
		Int("year", year).
		Int("month", month).
		Str("amount", policy.MonthlyAccrual.String()).
		Msg("monthly accrual credited")

	s.publisher.AccrualCredited(ctx, userID, leaveType, year, month, policy.MonthlyAccrual)

	return nil
}

// CarryForward rolls a user's unused days for one leave type into the next
// year, capped by the policy. Idempotent the same way Accrue is.
func (s *LedgerService) CarryForward(ctx context.Context, userID, leaveType string, fromYear int) error {
	policy, err := s.store.GetPolicy(ctx, leaveType)
	if err != nil {
		return err
	}
	if policy == nil || !policy.IsActive {
		return errors.PolicyViolation("UNKNOWN_LEAVE_TYPE", "no active policy for leave type "+leaveType)
	}

	applied, err := s.store.CarryForward(ctx, userID, leaveType, fromYear, policy.MaxCarryForward)
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info().
			Str("user_id", userID).
			Str("leave_type", leaveType).
			Int("from_year", fromYear).
			Msg("carry-forward applied")
	}

	return nil
}

// Release returns days to a user's ledger, for example when an approved
// leave is cancelled
func (s *LedgerService) Release(ctx context.Context, userID, leaveType string, year int, days decimal.Decimal) error {
	if err := s.store.Release(ctx, userID, leaveType, year, days); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("leave_type", leaveType).
		Int("year", year).
		Str("days", days.String()).
		Msg("leave days released")

	return nil
}

// Balances returns all of a user's ledger rows for a year
func (s *LedgerService) Balances(ctx context.Context, userID string, year int) ([]*repository.LeaveBalance, error) {
	return s.store.ListBalances(ctx, userID, year)
}

// Balance returns one ledger row, nil when the user has none for that type
// and year yet
func (s *LedgerService) Balance(ctx context.Context, userID, leaveType string, year int) (*repository.LeaveBalance, error) {
	return s.store.GetBalance(ctx, userID, leaveType, year)
}
