package service

import (
	"context"
	"time"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// Day statuses in a monthly summary
const (
	DayStatusPresent = "present"
	DayStatusHalfDay = "half_day"
	DayStatusAbsent  = "absent"
	DayStatusLeave   = "leave"
	DayStatusHoliday = "holiday"
	DayStatusWeekOff = "week_off"
)

// SummaryRecordStore is the attendance slice the summary needs
type SummaryRecordStore interface {
	ListRecordsForRange(ctx context.Context, userID string, from, to time.Time) ([]*repository.AttendanceRecord, error)
}

// SummaryLeaveStore is the leave slice the summary needs
type SummaryLeaveStore interface {
	ListApprovedForRange(ctx context.Context, userID string, start, end time.Time) ([]*repository.LeaveRequest, error)
}

// DaySummary is one classified calendar day
type DaySummary struct {
	Date          string  `json:"date"`
	Status        string  `json:"status"`
	TotalHours    float64 `json:"total_hours,omitempty"`
	OvertimeHours float64 `json:"overtime_hours,omitempty"`
}

// MonthlySummary aggregates one user's month
type MonthlySummary struct {
	UserID            string       `json:"user_id"`
	Year              int          `json:"year"`
	Month             int          `json:"month"`
	Days              []DaySummary `json:"days"`
	WorkingDays       int          `json:"working_days"`
	PresentDays       int          `json:"present_days"`
	HalfDays          int          `json:"half_days"`
	AbsentDays        int          `json:"absent_days"`
	LeaveDays         int          `json:"leave_days"`
	Holidays          int          `json:"holidays"`
	WeekOffs          int          `json:"week_offs"`
	TotalHours        float64      `json:"total_hours"`
	OvertimeHours     float64      `json:"overtime_hours"`
	AttendancePercent float64      `json:"attendance_percent"`
	AverageDailyHours float64      `json:"average_daily_hours"`
}

// SummaryService classifies a user's month day by day and aggregates totals
type SummaryService struct {
	records  SummaryRecordStore
	leaves   SummaryLeaveStore
	calendar WorkCalendar
	clock    clock.Clock
	logger   *logger.Logger
}

// NewSummaryService creates a new summary service
func NewSummaryService(records SummaryRecordStore, leaves SummaryLeaveStore, calendar WorkCalendar, clk clock.Clock, log *logger.Logger) *SummaryService {
	return &SummaryService{
		records:  records,
		leaves:   leaves,
		calendar: calendar,
		clock:    clk,
		logger:   log,
	}
}

// Monthly builds the summary for one user and month. For the current month
// only days up to today are classified: a future day is neither present nor
// absent yet. Every classified day gets exactly one status; a worked day
// takes its record's classification even when an approved leave also covers
// it.
func (s *SummaryService) Monthly(ctx context.Context, userID string, year, month int) (*MonthlySummary, error) {
	if month < 1 || month > 12 {
		return nil, errors.BadRequest("month must be between 1 and 12")
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	today := clock.DateOf(s.clock.Now())
	if first.After(today) {
		return nil, errors.BadRequest("cannot summarize a month that has not started")
	}
	end := last
	if last.After(today) {
		end = today
	}

	records, err := s.records.ListRecordsForRange(ctx, userID, first, last)
	if err != nil {
		return nil, err
	}
	leaves, err := s.leaves.ListApprovedForRange(ctx, userID, first, last)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*repository.AttendanceRecord, len(records))
	for _, rec := range records {
		byDate[rec.Date.Format(calendarDateLayout)] = rec
	}

	summary := &MonthlySummary{
		UserID: userID,
		Year:   year,
		Month:  month,
		Days:   make([]DaySummary, 0, 31),
	}

	var recordDays int
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := DaySummary{Date: d.Format(calendarDateLayout)}
		rec := byDate[day.Date]

		switch {
		case s.calendar.IsHoliday(d):
			day.Status = DayStatusHoliday
			summary.Holidays++
		case s.calendar.IsWeekend(d):
			day.Status = DayStatusWeekOff
			summary.WeekOffs++
		case rec != nil:
			summary.WorkingDays++
			recordDays++
			day.TotalHours = rec.TotalHours
			day.OvertimeHours = rec.OvertimeHours
			summary.TotalHours += rec.TotalHours
			summary.OvertimeHours += rec.OvertimeHours

			if rec.Status == repository.RecordStatusHalfDay {
				day.Status = DayStatusHalfDay
				summary.HalfDays++
			} else {
				day.Status = DayStatusPresent
				summary.PresentDays++
			}
		case coveredByLeave(leaves, d):
			summary.WorkingDays++
			day.Status = DayStatusLeave
			summary.LeaveDays++
		default:
			summary.WorkingDays++
			day.Status = DayStatusAbsent
			summary.AbsentDays++
		}

		summary.Days = append(summary.Days, day)
	}

	if summary.WorkingDays > 0 {
		presentEquivalent := float64(summary.PresentDays) + 0.5*float64(summary.HalfDays)
		summary.AttendancePercent = presentEquivalent / float64(summary.WorkingDays) * 100
	}
	if recordDays > 0 {
		summary.AverageDailyHours = summary.TotalHours / float64(recordDays)
	}

	return summary, nil
}

func coveredByLeave(leaves []*repository.LeaveRequest, d time.Time) bool {
	for _, req := range leaves {
		if !d.Before(req.StartDate) && !d.After(req.EndDate) {
			return true
		}
	}
	return false
}
