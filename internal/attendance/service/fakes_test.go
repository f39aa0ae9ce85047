package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/errors"
)

// In-memory stores mirroring the repository semantics, including the
// uniqueness and status guards the real SQL enforces.

type fakePunchStore struct {
	mu      sync.Mutex
	records map[string]*repository.AttendanceRecord
	breaks  map[string][]*repository.BreakRecord
}

func newFakePunchStore() *fakePunchStore {
	return &fakePunchStore{
		records: make(map[string]*repository.AttendanceRecord),
		breaks:  make(map[string][]*repository.BreakRecord),
	}
}

func recordKey(userID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", userID, date.Format("2006-01-02"))
}

func (f *fakePunchStore) CreateRecord(_ context.Context, rec *repository.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recordKey(rec.UserID, rec.Date)
	if _, ok := f.records[key]; ok {
		return errors.StateConflict("ALREADY_PUNCHED_IN", "an attendance record already exists for this day")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	f.records[key] = &cp
	return nil
}

func (f *fakePunchStore) GetRecordByUserAndDate(_ context.Context, userID string, date time.Time) (*repository.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[recordKey(userID, date)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakePunchStore) GetOpenRecordByUser(_ context.Context, userID string) (*repository.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.UserID == userID && rec.PunchOutAt == nil {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePunchStore) UpdateRecord(_ context.Context, rec *repository.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recordKey(rec.UserID, rec.Date)
	if _, ok := f.records[key]; !ok {
		return errors.NotFound("attendance record")
	}
	cp := *rec
	f.records[key] = &cp
	return nil
}

func (f *fakePunchStore) upsertRecord(rec *repository.AttendanceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recordKey(rec.UserID, rec.Date)
	if existing, ok := f.records[key]; ok {
		rec.ID = existing.ID
	} else if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	f.records[key] = &cp
}

func (f *fakePunchStore) ListRecordsForRange(_ context.Context, userID string, from, to time.Time) ([]*repository.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.AttendanceRecord, 0)
	for _, rec := range f.records {
		if rec.UserID == userID && !rec.Date.Before(from) && !rec.Date.After(to) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePunchStore) CreateBreak(_ context.Context, brk *repository.BreakRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.breaks[brk.AttendanceRecordID] {
		if b.Status == repository.BreakStatusActive {
			return errors.StateConflict("BREAK_ALREADY_ACTIVE", "a break is already in progress")
		}
	}
	if brk.ID == "" {
		brk.ID = uuid.New().String()
	}
	brk.Status = repository.BreakStatusActive
	cp := *brk
	f.breaks[brk.AttendanceRecordID] = append(f.breaks[brk.AttendanceRecordID], &cp)
	return nil
}

func (f *fakePunchStore) GetActiveBreak(_ context.Context, recordID string) (*repository.BreakRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.breaks[recordID] {
		if b.Status == repository.BreakStatusActive {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePunchStore) CloseBreak(_ context.Context, breakID string, endAt time.Time, durationSeconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, list := range f.breaks {
		for _, b := range list {
			if b.ID == breakID && b.Status == repository.BreakStatusActive {
				end := endAt
				b.EndAt = &end
				b.DurationSeconds = durationSeconds
				b.Status = repository.BreakStatusCompleted
				return nil
			}
		}
	}
	return errors.StateConflict("NO_ACTIVE_BREAK", "no break is in progress")
}

func (f *fakePunchStore) ListBreaks(_ context.Context, recordID string) ([]*repository.BreakRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.BreakRecord, 0, len(f.breaks[recordID]))
	for _, b := range f.breaks[recordID] {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakePunchStore) CompletedBreakSeconds(_ context.Context, recordID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total int64
	for _, b := range f.breaks[recordID] {
		if b.Status == repository.BreakStatusCompleted {
			total += b.DurationSeconds
		}
	}
	return total, nil
}

type fakeCorrectionStore struct {
	mu       sync.Mutex
	requests map[string]*repository.CorrectionRequest
	punches  *fakePunchStore
}

func newFakeCorrectionStore(punches *fakePunchStore) *fakeCorrectionStore {
	return &fakeCorrectionStore{
		requests: make(map[string]*repository.CorrectionRequest),
		punches:  punches,
	}
}

func (f *fakeCorrectionStore) Create(_ context.Context, req *repository.CorrectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.requests {
		if r.UserID == req.UserID && r.TargetDate.Equal(req.TargetDate) && r.Status == repository.CorrectionStatusPending {
			return errors.StateConflict("DUPLICATE_PENDING", "a pending correction already exists for this day")
		}
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = repository.CorrectionStatusPending
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeCorrectionStore) GetByID(_ context.Context, id string) (*repository.CorrectionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (f *fakeCorrectionStore) GetPendingByUserAndDate(_ context.Context, userID string, date time.Time) (*repository.CorrectionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.requests {
		if r.UserID == userID && r.TargetDate.Equal(date) && r.Status == repository.CorrectionStatusPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCorrectionStore) ListByUser(_ context.Context, userID string) ([]*repository.CorrectionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.CorrectionRequest, 0)
	for _, r := range f.requests {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCorrectionStore) ListPending(_ context.Context) ([]*repository.CorrectionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.CorrectionRequest, 0)
	for _, r := range f.requests {
		if r.Status == repository.CorrectionStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCorrectionStore) Approve(_ context.Context, req *repository.CorrectionRequest, rec *repository.AttendanceRecord) error {
	f.mu.Lock()
	stored, ok := f.requests[req.ID]
	if !ok || stored.Status != repository.CorrectionStatusPending {
		f.mu.Unlock()
		return errors.StateConflict("NOT_PENDING", "correction request has already been decided")
	}
	stored.Status = repository.CorrectionStatusApproved
	stored.AdminRemarks = req.AdminRemarks
	stored.DecidedBy = req.DecidedBy
	now := time.Now()
	stored.DecidedAt = &now
	f.mu.Unlock()

	f.punches.upsertRecord(rec)
	return nil
}

func (f *fakeCorrectionStore) Reject(_ context.Context, id, adminID string, remarks *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.requests[id]
	if !ok || stored.Status != repository.CorrectionStatusPending {
		return errors.StateConflict("NOT_PENDING", "correction request has already been decided")
	}
	stored.Status = repository.CorrectionStatusRejected
	stored.AdminRemarks = remarks
	stored.DecidedBy = &adminID
	now := time.Now()
	stored.DecidedAt = &now
	return nil
}

type fakeLeaveStore struct {
	mu       sync.Mutex
	policies map[string]*repository.LeavePolicy
	balances map[string]*repository.LeaveBalance
	markers  map[string]bool
	requests map[string]*repository.LeaveRequest
	users    []string
}

func newFakeLeaveStore() *fakeLeaveStore {
	return &fakeLeaveStore{
		policies: make(map[string]*repository.LeavePolicy),
		balances: make(map[string]*repository.LeaveBalance),
		markers:  make(map[string]bool),
		requests: make(map[string]*repository.LeaveRequest),
	}
}

func balanceKey(userID, leaveType string, year int) string {
	return fmt.Sprintf("%s|%s|%d", userID, leaveType, year)
}

func markerKey(userID, leaveType string, year, month int) string {
	return fmt.Sprintf("%s|%s|%d|%d", userID, leaveType, year, month)
}

func (f *fakeLeaveStore) addPolicy(p *repository.LeavePolicy) {
	f.policies[p.LeaveType] = p
}

func (f *fakeLeaveStore) setBalance(b *repository.LeaveBalance) {
	f.balances[balanceKey(b.UserID, b.LeaveType, b.Year)] = b
}

func (f *fakeLeaveStore) GetPolicy(_ context.Context, leaveType string) (*repository.LeavePolicy, error) {
	p, ok := f.policies[leaveType]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLeaveStore) ListActivePolicies(_ context.Context) ([]*repository.LeavePolicy, error) {
	out := make([]*repository.LeavePolicy, 0)
	for _, p := range f.policies {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLeaveStore) GetBalance(_ context.Context, userID, leaveType string, year int) (*repository.LeaveBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.balances[balanceKey(userID, leaveType, year)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLeaveStore) ListBalances(_ context.Context, userID string, year int) ([]*repository.LeaveBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.LeaveBalance, 0)
	for _, b := range f.balances {
		if b.UserID == userID && b.Year == year {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLeaveStore) Accrue(_ context.Context, userID, leaveType string, year, month int, amount decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mk := markerKey(userID, leaveType, year, month)
	if f.markers[mk] {
		return false, nil
	}
	f.markers[mk] = true

	key := balanceKey(userID, leaveType, year)
	b, ok := f.balances[key]
	if !ok {
		b = &repository.LeaveBalance{
			ID:        uuid.New().String(),
			UserID:    userID,
			LeaveType: leaveType,
			Year:      year,
		}
		f.balances[key] = b
	}
	b.AllocatedDays = b.AllocatedDays.Add(amount)
	return true, nil
}

func (f *fakeLeaveStore) Release(_ context.Context, userID, leaveType string, year int, days decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.balances[balanceKey(userID, leaveType, year)]
	if !ok {
		return nil
	}
	b.UsedDays = b.UsedDays.Sub(days)
	if b.UsedDays.IsNegative() {
		b.UsedDays = decimal.Zero
	}
	return nil
}

func (f *fakeLeaveStore) CarryForward(_ context.Context, userID, leaveType string, fromYear int, cap decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mk := markerKey(userID, leaveType, fromYear+1, 0)
	if f.markers[mk] {
		return false, nil
	}
	f.markers[mk] = true

	prev, ok := f.balances[balanceKey(userID, leaveType, fromYear)]
	if !ok {
		return false, nil
	}

	carry := prev.AllocatedDays.Sub(prev.UsedDays)
	if carry.IsNegative() {
		carry = decimal.Zero
	}
	if carry.GreaterThan(cap) {
		carry = cap
	}
	if carry.IsZero() {
		return false, nil
	}

	key := balanceKey(userID, leaveType, fromYear+1)
	b, found := f.balances[key]
	if !found {
		b = &repository.LeaveBalance{
			ID:        uuid.New().String(),
			UserID:    userID,
			LeaveType: leaveType,
			Year:      fromYear + 1,
		}
		f.balances[key] = b
	}
	b.CarriedForward = carry
	return true, nil
}

func (f *fakeLeaveStore) CreateRequest(_ context.Context, req *repository.LeaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = repository.LeaveStatusPending
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeLeaveStore) GetRequestByID(_ context.Context, id string) (*repository.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (f *fakeLeaveStore) ListRequestsByUser(_ context.Context, userID string) ([]*repository.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.LeaveRequest, 0)
	for _, r := range f.requests {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLeaveStore) ListPendingRequests(_ context.Context) ([]*repository.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*repository.LeaveRequest, 0)
	for _, r := range f.requests {
		if r.Status == repository.LeaveStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLeaveStore) ListOverlapping(_ context.Context, userID string, start, end time.Time, statuses []string) ([]*repository.LeaveRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	out := make([]*repository.LeaveRequest, 0)
	for _, r := range f.requests {
		if r.UserID == userID && wanted[r.Status] && !r.StartDate.After(end) && !r.EndDate.Before(start) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLeaveStore) ListApprovedForRange(ctx context.Context, userID string, start, end time.Time) ([]*repository.LeaveRequest, error) {
	return f.ListOverlapping(ctx, userID, start, end, []string{repository.LeaveStatusApproved})
}

func (f *fakeLeaveStore) ApproveRequest(_ context.Context, requestID, adminID string, remarks *string, userID, leaveType string, year int, days decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok || req.Status != repository.LeaveStatusPending {
		return errors.StateConflict("NOT_PENDING", "leave request has already been decided")
	}

	b, ok := f.balances[balanceKey(userID, leaveType, year)]
	if !ok {
		return errors.PolicyViolation("INSUFFICIENT_BALANCE", "no leave balance exists for this type and year")
	}
	if b.Available().LessThan(days) {
		return errors.PolicyViolation("INSUFFICIENT_BALANCE", "not enough leave days available")
	}

	b.UsedDays = b.UsedDays.Add(days)
	req.Status = repository.LeaveStatusApproved
	req.DecidedBy = &adminID
	req.AdminRemarks = remarks
	now := time.Now()
	req.DecidedAt = &now
	return nil
}

func (f *fakeLeaveStore) RejectRequest(_ context.Context, requestID, adminID string, remarks *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok || req.Status != repository.LeaveStatusPending {
		return errors.StateConflict("NOT_PENDING", "leave request has already been decided")
	}
	req.Status = repository.LeaveStatusRejected
	req.DecidedBy = &adminID
	req.AdminRemarks = remarks
	now := time.Now()
	req.DecidedAt = &now
	return nil
}

func (f *fakeLeaveStore) CancelPendingRequest(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok || req.Status != repository.LeaveStatusPending {
		return errors.StateConflict("NOT_PENDING", "leave request cannot be cancelled in its current state")
	}
	req.Status = repository.LeaveStatusCancelled
	return nil
}

func (f *fakeLeaveStore) CancelApprovedRequest(_ context.Context, requestID, userID, leaveType string, year int, days decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok || req.Status != repository.LeaveStatusApproved {
		return errors.StateConflict("NOT_PENDING", "leave request cannot be cancelled in its current state")
	}
	req.Status = repository.LeaveStatusCancelled

	if b, found := f.balances[balanceKey(userID, leaveType, year)]; found {
		b.UsedDays = b.UsedDays.Sub(days)
		if b.UsedDays.IsNegative() {
			b.UsedDays = decimal.Zero
		}
	}
	return nil
}

func (f *fakeLeaveStore) ActiveUserIDs(_ context.Context) ([]string, error) {
	return f.users, nil
}

// fakePublisher records which event methods fired.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, name)
}

func (f *fakePublisher) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == name {
			return true
		}
	}
	return false
}

func (f *fakePublisher) PunchedIn(context.Context, *repository.AttendanceRecord) { f.record("punch.in") }
func (f *fakePublisher) PunchedOut(context.Context, *repository.AttendanceRecord) {
	f.record("punch.out")
}
func (f *fakePublisher) BreakStarted(context.Context, string, *repository.BreakRecord) {
	f.record("break.start")
}
func (f *fakePublisher) BreakEnded(context.Context, string, *repository.BreakRecord) {
	f.record("break.end")
}
func (f *fakePublisher) CorrectionSubmitted(context.Context, *repository.CorrectionRequest) {
	f.record("correction.submitted")
}
func (f *fakePublisher) CorrectionDecided(context.Context, *repository.CorrectionRequest) {
	f.record("correction.decided")
}
func (f *fakePublisher) LeaveRequested(context.Context, *repository.LeaveRequest) {
	f.record("leave.requested")
}
func (f *fakePublisher) LeaveDecided(context.Context, *repository.LeaveRequest) {
	f.record("leave.decided")
}
func (f *fakePublisher) LeaveCancelled(context.Context, *repository.LeaveRequest) {
	f.record("leave.cancelled")
}
func (f *fakePublisher) AccrualCredited(context.Context, string, string, int, int, decimal.Decimal) {
	f.record("accrual.credited")
}
