package service

import (
	"context"
	"time"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// AccrualStore is the persistence surface the scheduler needs beyond the
// ledger service itself
type AccrualStore interface {
	ListActivePolicies(ctx context.Context) ([]*repository.LeavePolicy, error)
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// AccrualScheduler drives the monthly leave accrual. Every run credits the
// current month for every known user and active policy. Runs are idempotent
// end to end, so the tick interval can be much shorter than a month and two
// instances can run side by side without double-crediting anyone.
type AccrualScheduler struct {
	store    AccrualStore
	ledger   *LedgerService
	clock    clock.Clock
	interval time.Duration
	logger   *logger.Logger
}

// NewAccrualScheduler creates a new accrual scheduler
func NewAccrualScheduler(store AccrualStore, ledger *LedgerService, clk clock.Clock, interval time.Duration, log *logger.Logger) *AccrualScheduler {
	return &AccrualScheduler{
		store:    store,
		ledger:   ledger,
		clock:    clk,
		interval: interval,
		logger:   log,
	}
}

// Start runs the scheduler loop until the context is cancelled. One run
// fires immediately so a freshly deployed instance does not wait a full
// interval to catch up.
func (s *AccrualScheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("accrual scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCurrent(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("accrual scheduler stopped")
			return
		case <-ticker.C:
			s.runCurrent(ctx)
		}
	}
}

func (s *AccrualScheduler) runCurrent(ctx context.Context) {
	now := s.clock.Now()
	if err := s.Run(ctx, now.Year(), int(now.Month())); err != nil {
		s.logger.Error().Err(err).Msg("accrual run failed")
	}
}

// Run credits the given month for every known user and active policy. In
// January it first rolls unused days from the previous year forward, capped
// per policy, so the new year's ledger starts from carried days plus
// whatever the monthly accruals add. Failures for one user are logged and
// skipped so one bad row cannot starve everyone else's accrual.
func (s *AccrualScheduler) Run(ctx context.Context, year, month int) error {
	users, err := s.store.ActiveUserIDs(ctx)
	if err != nil {
		return err
	}

	policies, err := s.store.ListActivePolicies(ctx)
	if err != nil {
		return err
	}

	var failures int
	for _, userID := range users {
		for _, policy := range policies {
			if month == 1 {
				if err := s.ledger.CarryForward(ctx, userID, policy.LeaveType, year-1); err != nil {
					failures++
					s.logger.Error().Err(err).
						Str("user_id", userID).
						Str("leave_type", policy.LeaveType).
						Msg("carry-forward failed")
					continue
				}
			}

			if err := s.ledger.Accrue(ctx, userID, policy.LeaveType, year, month); err != nil {
				failures++
				s.logger.Error().Err(err).
					Str("user_id", userID).
					Str("leave_type", policy.LeaveType).
					Msg("accrual failed")
			}
		}
	}

	s.logger.Info().
		Int("year", year).
		Int("month", month).
		Int("users", len(users)).
		Int("policies", len(policies)).
		Int("failures", failures).
		Msg("accrual run completed")

	return nil
}
