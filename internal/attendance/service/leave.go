package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/workpulse/workpulse-backend/internal/attendance/events"
	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// LeaveStore is the persistence surface the leave service needs
type LeaveStore interface {
	GetPolicy(ctx context.Context, leaveType string) (*repository.LeavePolicy, error)
	CreateRequest(ctx context.Context, req *repository.LeaveRequest) error
	GetRequestByID(ctx context.Context, id string) (*repository.LeaveRequest, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]*repository.LeaveRequest, error)
	ListPendingRequests(ctx context.Context) ([]*repository.LeaveRequest, error)
	ListOverlapping(ctx context.Context, userID string, start, end time.Time, statuses []string) ([]*repository.LeaveRequest, error)
	ApproveRequest(ctx context.Context, requestID, adminID string, remarks *string, userID, leaveType string, year int, days decimal.Decimal) error
	RejectRequest(ctx context.Context, requestID, adminID string, remarks *string) error
	CancelPendingRequest(ctx context.Context, requestID string) error
	CancelApprovedRequest(ctx context.Context, requestID, userID, leaveType string, year int, days decimal.Decimal) error
}

// SubmitLeaveInput carries a user's leave request
type SubmitLeaveInput struct {
	UserID      string
	LeaveType   string
	StartDate   time.Time
	EndDate     time.Time
	HalfDay     bool
	Reason      string
	DocumentRef *string
}

// LeaveService implements the leave request workflow and its policy checks
type LeaveService struct {
	store     LeaveStore
	calendar  WorkCalendar
	publisher events.Publisher
	clock     clock.Clock
	logger    *logger.Logger
}

// NewLeaveService creates a new leave service
func NewLeaveService(store LeaveStore, calendar WorkCalendar, publisher events.Publisher, clk clock.Clock, log *logger.Logger) *LeaveService {
	return &LeaveService{
		store:     store,
		calendar:  calendar,
		publisher: publisher,
		clock:     clk,
		logger:    log,
	}
}

var halfDay = decimal.NewFromFloat(0.5)

// Submit validates a leave request against its policy and creates it in
// pending state. No balance is touched here: days are reserved only on
// approval, so a pending request can never strand ledger days.
func (s *LeaveService) Submit(ctx context.Context, in SubmitLeaveInput) (*repository.LeaveRequest, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, errors.BadRequest("a reason is required for a leave request")
	}

	start := clock.DateOf(in.StartDate)
	end := clock.DateOf(in.EndDate)
	if end.Before(start) {
		return nil, errors.BadRequest("end date must not be before start date")
	}
	if in.HalfDay && !end.Equal(start) {
		return nil, errors.BadRequest("a half-day request must start and end on the same day")
	}

	policy, err := s.store.GetPolicy(ctx, in.LeaveType)
	if err != nil {
		return nil, err
	}
	if policy == nil || !policy.IsActive {
		return nil, errors.PolicyViolation("UNKNOWN_LEAVE_TYPE", "no active policy for leave type "+in.LeaveType)
	}

	today := clock.DateOf(s.clock.Now())
	earliestStart := today.AddDate(0, 0, policy.NoticePeriodDays)
	if start.Before(earliestStart) {
		return nil, errors.PolicyViolation("NOTICE_PERIOD", "leave must be requested further in advance").
			WithDetails(map[string]string{
				"notice_period_days": strconv.Itoa(policy.NoticePeriodDays),
				"earliest_start":     earliestStart.Format(calendarDateLayout),
			})
	}

	spanDays := int(end.Sub(start).Hours()/24) + 1
	if policy.MaxConsecutiveDays > 0 && spanDays > policy.MaxConsecutiveDays {
		return nil, errors.PolicyViolation("MAX_CONSECUTIVE_DAYS", "requested span exceeds the consecutive-day limit").
			WithDetails(map[string]string{
				"max_consecutive_days": strconv.Itoa(policy.MaxConsecutiveDays),
				"requested_span":       strconv.Itoa(spanDays),
			})
	}

	if policy.RequiresDocumentation && (in.DocumentRef == nil || strings.TrimSpace(*in.DocumentRef) == "") {
		return nil, errors.PolicyViolation("DOCUMENTATION_REQUIRED", "this leave type requires a supporting document")
	}

	overlapping, err := s.store.ListOverlapping(ctx, in.UserID, start, end,
		[]string{repository.LeaveStatusApproved, repository.LeaveStatusPending})
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, errors.StateConflict("OVERLAPPING_LEAVE", "the requested span overlaps an existing leave request").
			WithDetails(map[string]string{"request_id": overlapping[0].ID})
	}

	days := s.requestedDays(start, end, in.HalfDay)
	if days.IsZero() {
		return nil, errors.BadRequest("the requested span contains no working days")
	}

	req := &repository.LeaveRequest{
		UserID:        in.UserID,
		LeaveType:     in.LeaveType,
		StartDate:     start,
		EndDate:       end,
		HalfDay:       in.HalfDay,
		RequestedDays: days,
		Reason:        in.Reason,
		DocumentRef:   in.DocumentRef,
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", in.UserID).
		Str("request_id", req.ID).
		Str("leave_type", in.LeaveType).
		Str("requested_days", days.String()).
		Msg("leave request submitted")

	s.publisher.LeaveRequested(ctx, req)

	return req, nil
}

// requestedDays counts working days in the span. Weekends and holidays
// inside the span do not consume balance.
func (s *LeaveService) requestedDays(start, end time.Time, half bool) decimal.Decimal {
	if half {
		if IsWorkingDay(s.calendar, start) {
			return halfDay
		}
		return decimal.Zero
	}

	days := decimal.Zero
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWorkingDay(s.calendar, d) {
			days = days.Add(decimal.NewFromInt(1))
		}
	}
	return days
}

// Decide approves or rejects a pending leave request. Only admins may
// decide. Approval reserves the requested days on the ledger in the same
// transaction as the status change, so an insufficient balance leaves the
// request pending.
func (s *LeaveService) Decide(ctx context.Context, actor Actor, requestID string, approve bool, remarks *string) (*repository.LeaveRequest, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can decide leave requests")
	}

	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.NotFound("leave request")
	}
	if req.Status != repository.LeaveStatusPending {
		return nil, errors.StateConflict("NOT_PENDING", "leave request has already been decided").
			WithDetails(map[string]string{"status": req.Status})
	}

	if approve {
		err = s.store.ApproveRequest(ctx, requestID, actor.ID, remarks,
			req.UserID, req.LeaveType, req.StartDate.Year(), req.RequestedDays)
		if err != nil {
			return nil, err
		}
		req.Status = repository.LeaveStatusApproved
	} else {
		if err := s.store.RejectRequest(ctx, requestID, actor.ID, remarks); err != nil {
			return nil, err
		}
		req.Status = repository.LeaveStatusRejected
	}

	now := s.clock.Now()
	req.DecidedBy = &actor.ID
	req.DecidedAt = &now
	req.AdminRemarks = remarks

	s.logger.Info().
		Str("request_id", req.ID).
		Str("decided_by", actor.ID).
		Str("status", req.Status).
		Msg("leave request decided")

	s.publisher.LeaveDecided(ctx, req)

	return req, nil
}

// Cancel withdraws a leave request. The owner or an admin may cancel.
// Cancelling an approved request releases its reserved days back to the
// ledger; cancelling a pending one touches no balance. Rejected and
// cancelled requests stay as they are.
func (s *LeaveService) Cancel(ctx context.Context, actor Actor, requestID string) (*repository.LeaveRequest, error) {
	req, err := s.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.NotFound("leave request")
	}
	if !actor.CanActFor(req.UserID) {
		return nil, errors.Forbidden("cannot cancel another user's leave request")
	}

	switch req.Status {
	case repository.LeaveStatusPending:
		err = s.store.CancelPendingRequest(ctx, requestID)
	case repository.LeaveStatusApproved:
		err = s.store.CancelApprovedRequest(ctx, requestID,
			req.UserID, req.LeaveType, req.StartDate.Year(), req.RequestedDays)
	default:
		return nil, errors.StateConflict("NOT_PENDING", "leave request cannot be cancelled in its current state").
			WithDetails(map[string]string{"status": req.Status})
	}
	if err != nil {
		return nil, err
	}

	req.Status = repository.LeaveStatusCancelled

	s.logger.Info().
		Str("request_id", req.ID).
		Str("cancelled_by", actor.ID).
		Msg("leave request cancelled")

	s.publisher.LeaveCancelled(ctx, req)

	return req, nil
}

// ListMine returns the user's own leave requests
func (s *LeaveService) ListMine(ctx context.Context, userID string) ([]*repository.LeaveRequest, error) {
	return s.store.ListRequestsByUser(ctx, userID)
}

// ListPending returns the admin queue of undecided leave requests
func (s *LeaveService) ListPending(ctx context.Context, actor Actor) ([]*repository.LeaveRequest, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can list pending leave requests")
	}
	return s.store.ListPendingRequests(ctx)
}

