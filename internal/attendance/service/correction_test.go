package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

func newCorrectionFixture(t *testing.T, now time.Time) (*CorrectionService, *fakeCorrectionStore, *fakePunchStore, *fakePublisher) {
	t.Helper()
	punches := newFakePunchStore()
	store := newFakeCorrectionStore(punches)
	pub := &fakePublisher{}
	svc := NewCorrectionService(store, punches, pub, clock.NewFixed(now), testAttendanceConfig, logger.Nop())
	return svc, store, punches, pub
}

func correctionInput(userID string, target time.Time) SubmitCorrectionInput {
	return SubmitCorrectionInput{
		UserID:     userID,
		TargetDate: target,
		PunchInAt:  target.Add(9 * time.Hour),
		PunchOutAt: target.Add(17 * time.Hour),
		Reason:     "forgot to punch out",
	}
}

func TestCorrectionService_SubmitCreatesPendingRequest(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, _, pub := newCorrectionFixture(t, now)

	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(context.Background(), correctionInput("user-1", target))
	require.NoError(t, err)

	assert.Equal(t, repository.CorrectionStatusPending, req.Status)
	assert.True(t, pub.has("correction.submitted"))
}

func TestCorrectionService_DuplicatePendingRejected(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newCorrectionFixture(t, now)
	ctx := context.Background()

	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, correctionInput("user-1", target))
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_PENDING", errors.CodeOf(err))
}

func TestCorrectionService_SubmitValidation(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newCorrectionFixture(t, now)
	ctx := context.Background()
	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	in := correctionInput("user-1", target)
	in.Reason = "  "
	_, err := svc.Submit(ctx, in)
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", errors.CodeOf(err))

	in = correctionInput("user-1", target)
	in.PunchOutAt = in.PunchInAt.Add(-time.Hour)
	_, err = svc.Submit(ctx, in)
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", errors.CodeOf(err))

	// Today is not correctable, only past days.
	in = correctionInput("user-1", clock.DateOf(now))
	_, err = svc.Submit(ctx, in)
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", errors.CodeOf(err))
}

func TestCorrectionService_DecideRequiresAdmin(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newCorrectionFixture(t, now)
	ctx := context.Background()

	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	_, err = svc.Decide(ctx, Actor{ID: "user-2", Role: "employee"}, req.ID, true, nil)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))
}

func TestCorrectionService_ApprovalRewritesRecord(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, punches, pub := newCorrectionFixture(t, now)
	ctx := context.Background()

	// The target day has a bad record: user forgot to punch out, an admin
	// closed it at 10:00 with a 1h total.
	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	badOut := target.Add(10 * time.Hour)
	require.NoError(t, punches.CreateRecord(ctx, &repository.AttendanceRecord{
		UserID:     "user-1",
		Date:       target,
		PunchInAt:  target.Add(9 * time.Hour),
		PunchOutAt: &badOut,
		TotalHours: 1,
		Status:     repository.RecordStatusHalfDay,
	}))

	req, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	remarks := "verified against door logs"
	decided, err := svc.Decide(ctx, Actor{ID: "admin-1", Role: RoleAdmin}, req.ID, true, &remarks)
	require.NoError(t, err)
	assert.Equal(t, repository.CorrectionStatusApproved, decided.Status)

	rec, err := punches.GetRecordByUserAndDate(ctx, "user-1", target)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, target.Add(9*time.Hour), rec.PunchInAt)
	require.NotNil(t, rec.PunchOutAt)
	assert.Equal(t, target.Add(17*time.Hour), *rec.PunchOutAt)
	assert.InDelta(t, 8.0, rec.TotalHours, 0.0001)
	assert.Equal(t, repository.RecordStatusPresent, rec.Status)

	assert.True(t, pub.has("correction.decided"))
}

func TestCorrectionService_ApprovalCreatesMissingRecord(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, punches, _ := newCorrectionFixture(t, now)
	ctx := context.Background()

	// No record at all: the user never punched in on the target day.
	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	_, err = svc.Decide(ctx, Actor{ID: "admin-1", Role: RoleAdmin}, req.ID, true, nil)
	require.NoError(t, err)

	rec, err := punches.GetRecordByUserAndDate(ctx, "user-1", target)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 8.0, rec.TotalHours, 0.0001)
}

func TestCorrectionService_RejectionLeavesRecordUntouched(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, _, punches, _ := newCorrectionFixture(t, now)
	ctx := context.Background()

	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	decided, err := svc.Decide(ctx, Actor{ID: "admin-1", Role: RoleAdmin}, req.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.CorrectionStatusRejected, decided.Status)

	rec, err := punches.GetRecordByUserAndDate(ctx, "user-1", target)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCorrectionService_SecondDecideRejected(t *testing.T) {
	now := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	svc, store, _, _ := newCorrectionFixture(t, now)
	ctx := context.Background()
	admin := Actor{ID: "admin-1", Role: RoleAdmin}

	target := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(ctx, correctionInput("user-1", target))
	require.NoError(t, err)

	_, err = svc.Decide(ctx, admin, req.ID, false, nil)
	require.NoError(t, err)

	_, err = svc.Decide(ctx, admin, req.ID, true, nil)
	require.Error(t, err)
	assert.Equal(t, "NOT_PENDING", errors.CodeOf(err))

	// Terminal state unchanged by the failed second decision.
	stored, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.CorrectionStatusRejected, stored.Status)
}
