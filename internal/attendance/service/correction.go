package service

import (
	"context"
	"strings"
	"time"

	"github.com/workpulse/workpulse-backend/internal/attendance/events"
	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/config"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// CorrectionStore is the persistence surface the correction service needs
type CorrectionStore interface {
	Create(ctx context.Context, req *repository.CorrectionRequest) error
	GetByID(ctx context.Context, id string) (*repository.CorrectionRequest, error)
	GetPendingByUserAndDate(ctx context.Context, userID string, date time.Time) (*repository.CorrectionRequest, error)
	ListByUser(ctx context.Context, userID string) ([]*repository.CorrectionRequest, error)
	ListPending(ctx context.Context) ([]*repository.CorrectionRequest, error)
	Approve(ctx context.Context, req *repository.CorrectionRequest, rec *repository.AttendanceRecord) error
	Reject(ctx context.Context, id, adminID string, remarks *string) error
}

// CorrectionRecordStore is the slice of the attendance store the correction
// service needs to rebuild the corrected day's totals
type CorrectionRecordStore interface {
	GetRecordByUserAndDate(ctx context.Context, userID string, date time.Time) (*repository.AttendanceRecord, error)
	CompletedBreakSeconds(ctx context.Context, recordID string) (int64, error)
}

// SubmitCorrectionInput carries a user's requested rewrite of one day
type SubmitCorrectionInput struct {
	UserID     string
	TargetDate time.Time
	PunchInAt  time.Time
	PunchOutAt time.Time
	Reason     string
}

// CorrectionService implements the punch correction workflow
type CorrectionService struct {
	store     CorrectionStore
	records   CorrectionRecordStore
	publisher events.Publisher
	clock     clock.Clock
	cfg       config.AttendanceConfig
	logger    *logger.Logger
}

// NewCorrectionService creates a new correction service
func NewCorrectionService(store CorrectionStore, records CorrectionRecordStore, publisher events.Publisher, clk clock.Clock, cfg config.AttendanceConfig, log *logger.Logger) *CorrectionService {
	return &CorrectionService{
		store:     store,
		records:   records,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		logger:    log,
	}
}

// Submit creates a pending correction request for one of the user's past
// days. A reason is mandatory, the corrected times must be ordered, and only
// one pending request may exist per user per day.
func (s *CorrectionService) Submit(ctx context.Context, in SubmitCorrectionInput) (*repository.CorrectionRequest, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, errors.BadRequest("a reason is required for a correction request")
	}
	if !in.PunchOutAt.After(in.PunchInAt) {
		return nil, errors.BadRequest("corrected punch-out must be after corrected punch-in")
	}

	target := clock.DateOf(in.TargetDate)
	if !target.Before(clock.DateOf(s.clock.Now())) {
		return nil, errors.BadRequest("corrections only apply to past days")
	}

	pending, err := s.store.GetPendingByUserAndDate(ctx, in.UserID, target)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, errors.StateConflict("DUPLICATE_PENDING", "a pending correction already exists for this day").
			WithDetails(map[string]string{"request_id": pending.ID})
	}

	req := &repository.CorrectionRequest{
		UserID:     in.UserID,
		TargetDate: target,
		PunchInAt:  in.PunchInAt,
		PunchOutAt: in.PunchOutAt,
		Reason:     in.Reason,
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", in.UserID).
		Str("request_id", req.ID).
		Time("target_date", target).
		Msg("correction request submitted")

	s.publisher.CorrectionSubmitted(ctx, req)

	return req, nil
}

// Decide approves or rejects a pending correction request. Only admins may
// decide. Approval rewrites the target day's punch times and recomputes its
// totals against the breaks already recorded on that day; the rewrite and
// the status change commit in one transaction.
func (s *CorrectionService) Decide(ctx context.Context, actor Actor, requestID string, approve bool, remarks *string) (*repository.CorrectionRequest, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can decide correction requests")
	}

	req, err := s.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.NotFound("correction request")
	}
	if req.IsTerminal() {
		return nil, errors.StateConflict("NOT_PENDING", "correction request has already been decided").
			WithDetails(map[string]string{"status": req.Status})
	}

	req.DecidedBy = &actor.ID
	req.AdminRemarks = remarks

	if !approve {
		if err := s.store.Reject(ctx, requestID, actor.ID, remarks); err != nil {
			return nil, err
		}
		req.Status = repository.CorrectionStatusRejected
	} else {
		rec, err := s.correctedRecord(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.store.Approve(ctx, req, rec); err != nil {
			return nil, err
		}
		req.Status = repository.CorrectionStatusApproved
	}

	now := s.clock.Now()
	req.DecidedAt = &now

	s.logger.Info().
		Str("request_id", req.ID).
		Str("decided_by", actor.ID).
		Str("status", req.Status).
		Msg("correction request decided")

	s.publisher.CorrectionDecided(ctx, req)

	return req, nil
}

// correctedRecord builds the attendance record the approval will write,
// carrying over the target day's completed break time when a record exists.
func (s *CorrectionService) correctedRecord(ctx context.Context, req *repository.CorrectionRequest) (*repository.AttendanceRecord, error) {
	existing, err := s.records.GetRecordByUserAndDate(ctx, req.UserID, req.TargetDate)
	if err != nil {
		return nil, err
	}

	var breakSeconds int64
	rec := &repository.AttendanceRecord{
		UserID: req.UserID,
		Date:   req.TargetDate,
	}
	if existing != nil {
		rec.ID = existing.ID
		breakSeconds, err = s.records.CompletedBreakSeconds(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
	}

	rec.PunchInAt = req.PunchInAt
	rec.PunchOutAt = &req.PunchOutAt

	worked := req.PunchOutAt.Sub(req.PunchInAt) - time.Duration(breakSeconds)*time.Second
	if worked < 0 {
		worked = 0
	}
	rec.TotalHours = worked.Hours()
	if rec.TotalHours > s.cfg.StandardShiftHours {
		rec.OvertimeHours = rec.TotalHours - s.cfg.StandardShiftHours
	}
	rec.Status = repository.RecordStatusPresent
	if rec.TotalHours < s.cfg.HalfDayThresholdHours {
		rec.Status = repository.RecordStatusHalfDay
	}

	return rec, nil
}

// ListMine returns the user's own correction requests
func (s *CorrectionService) ListMine(ctx context.Context, userID string) ([]*repository.CorrectionRequest, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListPending returns the admin queue of undecided requests
func (s *CorrectionService) ListPending(ctx context.Context, actor Actor) ([]*repository.CorrectionRequest, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can list pending correction requests")
	}
	return s.store.ListPending(ctx)
}
