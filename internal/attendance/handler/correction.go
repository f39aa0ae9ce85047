package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workpulse/workpulse-backend/internal/attendance/service"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/httputil"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// CorrectionHandler handles punch correction endpoints
type CorrectionHandler struct {
	service *service.CorrectionService
	logger  *logger.Logger
}

// NewCorrectionHandler creates a new correction handler
func NewCorrectionHandler(svc *service.CorrectionService, log *logger.Logger) *CorrectionHandler {
	return &CorrectionHandler{
		service: svc,
		logger:  log,
	}
}

type submitCorrectionRequest struct {
	TargetDate string `json:"target_date" validate:"required,datetime=2006-01-02"`
	PunchInAt  string `json:"punch_in_at" validate:"required"`
	PunchOutAt string `json:"punch_out_at" validate:"required"`
	Reason     string `json:"reason" validate:"required,min=3,max=500"`
}

// Submit creates a pending correction request for the caller
// POST /api/v1/attendance/corrections
func (h *CorrectionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	var req submitCorrectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	targetDate, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		httputil.Error(w, errors.BadRequest("target_date must be formatted as YYYY-MM-DD"))
		return
	}
	punchIn, err := time.Parse(time.RFC3339, req.PunchInAt)
	if err != nil {
		httputil.Error(w, errors.BadRequest("punch_in_at must be an RFC3339 timestamp"))
		return
	}
	punchOut, err := time.Parse(time.RFC3339, req.PunchOutAt)
	if err != nil {
		httputil.Error(w, errors.BadRequest("punch_out_at must be an RFC3339 timestamp"))
		return
	}

	created, err := h.service.Submit(r.Context(), service.SubmitCorrectionInput{
		UserID:     userID,
		TargetDate: targetDate,
		PunchInAt:  punchIn,
		PunchOutAt: punchOut,
		Reason:     req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// ListMine returns the caller's correction requests
// GET /api/v1/attendance/corrections
func (h *CorrectionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	requests, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, requests)
}

// ListPending returns the admin queue of undecided correction requests
// GET /api/v1/attendance/admin/corrections/pending
func (h *CorrectionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListPending(r.Context(), actorFrom(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, requests)
}

type decideRequest struct {
	Outcome string  `json:"outcome" validate:"required,oneof=approved rejected"`
	Remarks *string `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// Decide approves or rejects a pending correction request
// POST /api/v1/attendance/admin/corrections/{requestID}/decide
func (h *CorrectionHandler) Decide(w http.ResponseWriter, r *http.Request) {
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

	decided, err := h.service.Decide(r.Context(), actorFrom(r), requestID, req.Outcome == "approved", req.Remarks)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, decided)
}
