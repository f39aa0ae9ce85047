package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workpulse/workpulse-backend/internal/attendance/service"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/httputil"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// LeaveHandler handles leave request, balance and accrual endpoints
type LeaveHandler struct {
	leaves    *service.LeaveService
	ledger    *service.LedgerService
	scheduler *service.AccrualScheduler
	logger    *logger.Logger
}

// NewLeaveHandler creates a new leave handler
func NewLeaveHandler(leaves *service.LeaveService, ledger *service.LedgerService, scheduler *service.AccrualScheduler, log *logger.Logger) *LeaveHandler {
	return &LeaveHandler{
		leaves:    leaves,
		ledger:    ledger,
		scheduler: scheduler,
		logger:    log,
	}
}

type submitLeaveRequest struct {
	LeaveType   string  `json:"leave_type" validate:"required"`
	StartDate   string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	HalfDay     bool    `json:"half_day"`
	Reason      string  `json:"reason" validate:"required,min=3,max=500"`
	DocumentRef *string `json:"document_ref,omitempty"`
}

// Submit creates a pending leave request for the caller
// POST /api/v1/leave/requests
func (h *LeaveHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	var req submitLeaveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)

	created, err := h.leaves.Submit(r.Context(), service.SubmitLeaveInput{
		UserID:      userID,
		LeaveType:   req.LeaveType,
		StartDate:   start,
		EndDate:     end,
		HalfDay:     req.HalfDay,
		Reason:      req.Reason,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// ListMine returns the caller's leave requests
// GET /api/v1/leave/requests
func (h *LeaveHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	requests, err := h.leaves.ListMine(r.Context(), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, requests)
}

// Cancel withdraws one of the caller's leave requests
// POST /api/v1/leave/requests/{requestID}/cancel
func (h *LeaveHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	cancelled, err := h.leaves.Cancel(r.Context(), actorFrom(r), requestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cancelled)
}

// Balances returns a user's ledger rows for a year
// GET /api/v1/leave/balances/{userID}?year=2025
func (h *LeaveHandler) Balances(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	actor := actorFrom(r)
	if !actor.CanActFor(userID) {
		httputil.Error(w, errors.Forbidden("cannot view another user's balances"))
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("year query parameter is required"))
		return
	}

	balances, err := h.ledger.Balances(r.Context(), userID, year)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, balances)
}

// ListPending returns the admin queue of undecided leave requests
// GET /api/v1/leave/admin/requests/pending
func (h *LeaveHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.leaves.ListPending(r.Context(), actorFrom(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, requests)
}

// Decide approves or rejects a pending leave request
// POST /api/v1/leave/admin/requests/{requestID}/decide
func (h *LeaveHandler) Decide(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req decideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	decided, err := h.leaves.Decide(r.Context(), actorFrom(r), requestID, req.Outcome == "approved", req.Remarks)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, decided)
}

type runAccrualRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2200"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// RunAccrual triggers one accrual run for the given period. The run is
// idempotent, so an external cron may call this repeatedly.
// POST /api/v1/leave/admin/accrual/run
func (h *LeaveHandler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		httputil.Error(w, errors.Forbidden("only admins can trigger an accrual run"))
		return
	}

	var req runAccrualRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.scheduler.Run(r.Context(), req.Year, req.Month); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"year":  req.Year,
		"month": req.Month,
		"state": "completed",
	})
}
