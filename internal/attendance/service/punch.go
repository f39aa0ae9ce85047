package service

import (
	"context"
	"time"

	"github.com/workpulse/workpulse-backend/internal/attendance/events"
	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/config"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// PunchStore is the persistence surface the punch service needs
type PunchStore interface {
	CreateRecord(ctx context.Context, rec *repository.AttendanceRecord) error
	GetRecordByUserAndDate(ctx context.Context, userID string, date time.Time) (*repository.AttendanceRecord, error)
	GetOpenRecordByUser(ctx context.Context, userID string) (*repository.AttendanceRecord, error)
	UpdateRecord(ctx context.Context, rec *repository.AttendanceRecord) error
	CreateBreak(ctx context.Context, brk *repository.BreakRecord) error
	GetActiveBreak(ctx context.Context, recordID string) (*repository.BreakRecord, error)
	CloseBreak(ctx context.Context, breakID string, endAt time.Time, durationSeconds int64) error
	ListBreaks(ctx context.Context, recordID string) ([]*repository.BreakRecord, error)
	CompletedBreakSeconds(ctx context.Context, recordID string) (int64, error)
}

// Location is an optional punch geolocation
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TodayStatus is the live view of a user's current day
type TodayStatus struct {
	Record      *repository.AttendanceRecord `json:"record"`
	ActiveBreak *repository.BreakRecord      `json:"active_break,omitempty"`
	Breaks      []*repository.BreakRecord    `json:"breaks"`
	WorkedHours float64                      `json:"worked_hours"`
	OnBreak     bool                         `json:"on_break"`
	SessionOpen bool                         `json:"session_open"`
}

// PunchService implements the daily punch session lifecycle
type PunchService struct {
	store     PunchStore
	publisher events.Publisher
	clock     clock.Clock
	cfg       config.AttendanceConfig
	logger    *logger.Logger
}

// NewPunchService creates a new punch service
func NewPunchService(store PunchStore, publisher events.Publisher, clk clock.Clock, cfg config.AttendanceConfig, log *logger.Logger) *PunchService {
	return &PunchService{
		store:     store,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		logger:    log,
	}
}

// PunchIn opens the user's session for today. At most one record can exist
// per user per day, so a second punch-in on the same day is rejected whether
// the first session is still open or already completed.
func (s *PunchService) PunchIn(ctx context.Context, userID string, loc *Location) (*repository.AttendanceRecord, error) {
	now := s.clock.Now()
	today := clock.DateOf(now)

	existing, err := s.store.GetRecordByUserAndDate(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsOpen() {
			return nil, errors.StateConflict("ALREADY_PUNCHED_IN", "an open session already exists for today").
				WithDetails(map[string]string{"punch_in_at": existing.PunchInAt.Format(time.RFC3339)})
		}
		return nil, errors.StateConflict("ALREADY_COMPLETED_TODAY", "today's session is already completed")
	}

	rec := &repository.AttendanceRecord{
		UserID:    userID,
		Date:      today,
		PunchInAt: now,
		Status:    repository.RecordStatusPresent,
	}
	if loc != nil {
		rec.PunchInLat = &loc.Lat
		rec.PunchInLon = &loc.Lon
	}

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Time("punch_in_at", now).
		Msg("user punched in")

	s.publisher.PunchedIn(ctx, rec)

	return rec, nil
}

// PunchOut closes the user's open session. Rejected while a break is in
// progress: the break must be ended first so its duration is known.
func (s *PunchService) PunchOut(ctx context.Context, userID string, loc *Location) (*repository.AttendanceRecord, error) {
	now := s.clock.Now()

	rec, err := s.store.GetOpenRecordByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.StateConflict("NO_OPEN_SESSION", "no open session to punch out of")
	}

	active, err := s.store.GetActiveBreak(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errors.StateConflict("ON_BREAK", "end the active break before punching out").
			WithDetails(map[string]string{"break_started_at": active.StartAt.Format(time.RFC3339)})
	}

	breakSeconds, err := s.store.CompletedBreakSeconds(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	rec.PunchOutAt = &now
	if loc != nil {
		rec.PunchOutLat = &loc.Lat
		rec.PunchOutLon = &loc.Lon
	}
	rec.TotalHours, rec.OvertimeHours, rec.Status = s.closeTotals(rec.PunchInAt, now, breakSeconds)

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Float64("total_hours", rec.TotalHours).
		Float64("overtime_hours", rec.OvertimeHours).
		Str("status", rec.Status).
		Msg("user punched out")

	s.publisher.PunchedOut(ctx, rec)

	return rec, nil
}

// closeTotals computes worked hours net of breaks, the overtime portion and
// the day classification at punch-out.
func (s *PunchService) closeTotals(punchIn, punchOut time.Time, breakSeconds int64) (total, overtime float64, status string) {
	worked := punchOut.Sub(punchIn) - time.Duration(breakSeconds)*time.Second
	if worked < 0 {
		worked = 0
	}

	total = worked.Hours()
	if total > s.cfg.StandardShiftHours {
		overtime = total - s.cfg.StandardShiftHours
	}

	status = repository.RecordStatusPresent
	if total < s.cfg.HalfDayThresholdHours {
		status = repository.RecordStatusHalfDay
	}

	return total, overtime, status
}

// StartBreak opens a break inside the user's open session. Breaks never
// overlap: a second start while one is active is rejected.
func (s *PunchService) StartBreak(ctx context.Context, userID string, reason *string) (*repository.BreakRecord, error) {
	now := s.clock.Now()

	rec, err := s.store.GetOpenRecordByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.StateConflict("NO_OPEN_SESSION", "punch in before starting a break")
	}

	active, err := s.store.GetActiveBreak(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errors.StateConflict("BREAK_ALREADY_ACTIVE", "a break is already in progress").
			WithDetails(map[string]string{"break_started_at": active.StartAt.Format(time.RFC3339)})
	}

	brk := &repository.BreakRecord{
		AttendanceRecordID: rec.ID,
		StartAt:            now,
		Reason:             reason,
	}

	if err := s.store.CreateBreak(ctx, brk); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("break_id", brk.ID).
		Msg("break started")

	s.publisher.BreakStarted(ctx, userID, brk)

	return brk, nil
}

// EndBreak closes the active break and freezes its duration
func (s *PunchService) EndBreak(ctx context.Context, userID string) (*repository.BreakRecord, error) {
	now := s.clock.Now()

	rec, err := s.store.GetOpenRecordByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.StateConflict("NO_OPEN_SESSION", "no open session")
	}

	active, err := s.store.GetActiveBreak(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, errors.StateConflict("NO_ACTIVE_BREAK", "no break is in progress")
	}

	duration := now.Sub(active.StartAt)
	if duration < 0 {
		duration = 0
	}
	seconds := int64(duration.Seconds())

	if err := s.store.CloseBreak(ctx, active.ID, now, seconds); err != nil {
		return nil, err
	}

	active.EndAt = &now
	active.DurationSeconds = seconds
	active.Status = repository.BreakStatusCompleted

	s.logger.Info().
		Str("user_id", userID).
		Str("break_id", active.ID).
		Int64("duration_seconds", seconds).
		Msg("break ended")

	s.publisher.BreakEnded(ctx, userID, active)

	return active, nil
}

// Today returns the live view of a user's current day, including worked
// time so far for an open session.
func (s *PunchService) Today(ctx context.Context, userID string) (*TodayStatus, error) {
	now := s.clock.Now()
	today := clock.DateOf(now)

	rec, err := s.store.GetRecordByUserAndDate(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &TodayStatus{Breaks: make([]*repository.BreakRecord, 0)}, nil
	}

	breaks, err := s.store.ListBreaks(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	status := &TodayStatus{
		Record:      rec,
		Breaks:      breaks,
		SessionOpen: rec.IsOpen(),
	}

	var activeBreak *repository.BreakRecord
	var completedSeconds int64
	for _, b := range breaks {
		if b.Status == repository.BreakStatusActive {
			activeBreak = b
		} else {
			completedSeconds += b.DurationSeconds
		}
	}

	status.ActiveBreak = activeBreak
	status.OnBreak = activeBreak != nil

	if rec.IsOpen() {
		worked := now.Sub(rec.PunchInAt) - time.Duration(completedSeconds)*time.Second
		if activeBreak != nil {
			worked -= now.Sub(activeBreak.StartAt)
		}
		if worked < 0 {
			worked = 0
		}
		status.WorkedHours = worked.Hours()
	} else {
		status.WorkedHours = rec.TotalHours
	}

	return status, nil
}
