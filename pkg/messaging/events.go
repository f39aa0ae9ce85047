package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Punch session events
	EventPunchIn    = "attendance.punch.in"
	EventPunchOut   = "attendance.punch.out"
	EventBreakStart = "attendance.break.start"
	EventBreakEnd   = "attendance.break.end"

	// Correction workflow events
	EventCorrectionSubmitted = "attendance.correction.submitted"
	EventCorrectionDecided   = "attendance.correction.decided"

	// Leave events
	EventLeaveRequested = "leave.request.created"
	EventLeaveDecided   = "leave.request.decided"
	EventLeaveCancelled = "leave.request.cancelled"
	EventAccrualCredited = "leave.accrual.credited"
)

// Exchange names
const (
	ExchangeAttendanceEvents = "attendance.events"
	ExchangeLeaveEvents      = "leave.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// PunchEvent is published on punch-in and punch-out
type PunchEvent struct {
	UserID     string     `json:"user_id"`
	Date       string     `json:"date"`
	PunchInAt  time.Time  `json:"punch_in_at"`
	PunchOutAt *time.Time `json:"punch_out_at,omitempty"`
	TotalHours float64    `json:"total_hours"`
	Status     string     `json:"status"`
}

// BreakEvent is published on break start and end
type BreakEvent struct {
	UserID  string     `json:"user_id"`
	BreakID string     `json:"break_id"`
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}

// CorrectionEvent is published when a correction request changes state
type CorrectionEvent struct {
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id"`
	TargetDate string `json:"target_date"`
	Status     string `json:"status"`
	DecidedBy  string `json:"decided_by,omitempty"`
}

// LeaveEvent is published when a leave request changes state
type LeaveEvent struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

// AccrualEvent is published when a monthly accrual lands on a ledger
type AccrualEvent struct {
	UserID    string `json:"user_id"`
	LeaveType string `json:"leave_type"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Credited  string `json:"credited_days"`
}
