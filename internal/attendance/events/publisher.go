package events

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/logger"
	"github.com/workpulse/workpulse-backend/pkg/messaging"
)

// Publisher emits attendance and leave domain events. Services call it
// after the state change has been committed, so a broker outage never
// fails the user-facing operation.
type Publisher interface {
	PunchedIn(ctx context.Context, rec *repository.AttendanceRecord)
	PunchedOut(ctx context.Context, rec *repository.AttendanceRecord)
	BreakStarted(ctx context.Context, userID string, brk *repository.BreakRecord)
	BreakEnded(ctx context.Context, userID string, brk *repository.BreakRecord)
	CorrectionSubmitted(ctx context.Context, req *repository.CorrectionRequest)
	CorrectionDecided(ctx context.Context, req *repository.CorrectionRequest)
	LeaveRequested(ctx context.Context, req *repository.LeaveRequest)
	LeaveDecided(ctx context.Context, req *repository.LeaveRequest)
	LeaveCancelled(ctx context.Context, req *repository.LeaveRequest)
	AccrualCredited(ctx context.Context, userID, leaveType string, year, month int, amount decimal.Decimal)
}

const dateLayout = "2006-01-02"

// AMQPPublisher publishes domain events to RabbitMQ topic exchanges
type AMQPPublisher struct {
	attendance *messaging.Publisher
	leave      *messaging.Publisher
	logger     *logger.Logger
}

// NewAMQPPublisher declares both exchanges and returns a publisher
func NewAMQPPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*AMQPPublisher, error) {
	attendance, err := messaging.NewPublisher(rmq, messaging.ExchangeAttendanceEvents, "attendance-service", log)
	if err != nil {
		return nil, err
	}

	leave, err := messaging.NewPublisher(rmq, messaging.ExchangeLeaveEvents, "attendance-service", log)
	if err != nil {
		return nil, err
	}

	return &AMQPPublisher{
		attendance: attendance,
		leave:      leave,
		logger:     log,
	}, nil
}

func (p *AMQPPublisher) publish(ctx context.Context, pub *messaging.Publisher, eventType string, data interface{}) {
	if err := pub.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func (p *AMQPPublisher) PunchedIn(ctx context.Context, rec *repository.AttendanceRecord) {
	p.publish(ctx, p.attendance, messaging.EventPunchIn, messaging.PunchEvent{
		UserID:    rec.UserID,
		Date:      rec.Date.Format(dateLayout),
		PunchInAt: rec.PunchInAt,
		Status:    rec.Status,
	})
}

func (p *AMQPPublisher) PunchedOut(ctx context.Context, rec *repository.AttendanceRecord) {
	p.publish(ctx, p.attendance, messaging.EventPunchOut, messaging.PunchEvent{
		UserID:     rec.UserID,
		Date:       rec.Date.Format(dateLayout),
		PunchInAt:  rec.PunchInAt,
		PunchOutAt: rec.PunchOutAt,
		TotalHours: rec.TotalHours,
		Status:     rec.Status,
	})
}

func (p *AMQPPublisher) BreakStarted(ctx context.Context, userID string, brk *repository.BreakRecord) {
	p.publish(ctx, p.attendance, messaging.EventBreakStart, messaging.BreakEvent{
		UserID:  userID,
		BreakID: brk.ID,
		StartAt: brk.StartAt,
	})
}

func (p *AMQPPublisher) BreakEnded(ctx context.Context, userID string, brk *repository.BreakRecord) {
	p.publish(ctx, p.attendance, messaging.EventBreakEnd, messaging.BreakEvent{
		UserID:  userID,
		BreakID: brk.ID,
		StartAt: brk.StartAt,
		EndAt:   brk.EndAt,
	})
}

func (p *AMQPPublisher) CorrectionSubmitted(ctx context.Context, req *repository.CorrectionRequest) {
	p.publish(ctx, p.attendance, messaging.EventCorrectionSubmitted, messaging.CorrectionEvent{
		RequestID:  req.ID,
		UserID:     req.UserID,
		TargetDate: req.TargetDate.Format(dateLayout),
		Status:     req.Status,
	})
}

func (p *AMQPPublisher) CorrectionDecided(ctx context.Context, req *repository.CorrectionRequest) {
	event := messaging.CorrectionEvent{
		RequestID:  req.ID,
		UserID:     req.UserID,
		TargetDate: req.TargetDate.Format(dateLayout),
		Status:     req.Status,
	}
	if req.DecidedBy != nil {
		event.DecidedBy = *req.DecidedBy
	}
	p.publish(ctx, p.attendance, messaging.EventCorrectionDecided, event)
}

func (p *AMQPPublisher) LeaveRequested(ctx context.Context, req *repository.LeaveRequest) {
	p.publish(ctx, p.leave, messaging.EventLeaveRequested, leaveEvent(req))
}

func (p *AMQPPublisher) LeaveDecided(ctx context.Context, req *repository.LeaveRequest) {
	p.publish(ctx, p.leave, messaging.EventLeaveDecided, leaveEvent(req))
}

func (p *AMQPPublisher) LeaveCancelled(ctx context.Context, req *repository.LeaveRequest) {
	p.publish(ctx, p.leave, messaging.EventLeaveCancelled, leaveEvent(req))
}

func (p *AMQPPublisher) AccrualCredited(ctx context.Context, userID, leaveType string, year, month int, amount decimal.Decimal) {
	p.publish(ctx, p.leave, messaging.EventAccrualCredited, messaging.AccrualEvent{
		UserID:    userID,
		LeaveType: leaveType,
		Year:      year,
		Month:     month,
		Credited:  amount.String(),
	})
}

func leaveEvent(req *repository.LeaveRequest) messaging.LeaveEvent {
	return messaging.LeaveEvent{
		RequestID: req.ID,
		UserID:    req.UserID,
		LeaveType: req.LeaveType,
		StartDate: req.StartDate.Format(dateLayout),
		EndDate:   req.EndDate.Format(dateLayout),
		Status:    req.Status,
	}
}

// NopPublisher discards all events. Used in tests and when the broker is
// disabled by configuration.
type NopPublisher struct{}

func (NopPublisher) PunchedIn(context.Context, *repository.AttendanceRecord)                 {}
func (NopPublisher) PunchedOut(context.Context, *repository.AttendanceRecord)                {}
func (NopPublisher) BreakStarted(context.Context, string, *repository.BreakRecord)           {}
func (NopPublisher) BreakEnded(context.Context, string, *repository.BreakRecord)             {}
func (NopPublisher) CorrectionSubmitted(context.Context, *repository.CorrectionRequest)      {}
func (NopPublisher) CorrectionDecided(context.Context, *repository.CorrectionRequest)        {}
func (NopPublisher) LeaveRequested(context.Context, *repository.LeaveRequest)                {}
func (NopPublisher) LeaveDecided(context.Context, *repository.LeaveRequest)                  {}
func (NopPublisher) LeaveCancelled(context.Context, *repository.LeaveRequest)                {}
func (NopPublisher) AccrualCredited(context.Context, string, string, int, int, decimal.Decimal) {
}
