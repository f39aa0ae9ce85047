package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/workpulse/workpulse-backend/internal/attendance/service"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/httputil"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// AttendanceHandler handles punch, break and summary endpoints
type AttendanceHandler struct {
	punches   *service.PunchService
	summaries *service.SummaryService
	logger    *logger.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(punches *service.PunchService, summaries *service.SummaryService, log *logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		punches:   punches,
		summaries: summaries,
		logger:    log,
	}
}

type punchRequest struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

func (p *punchRequest) location() *service.Location {
	if p.Lat == nil || p.Lon == nil {
		return nil
	}
	return &service.Location{Lat: *p.Lat, Lon: *p.Lon}
}

// PunchIn opens today's session for the caller
// POST /api/v1/attendance/punch-in
func (h *AttendanceHandler) PunchIn(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	var req punchRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	rec, err := h.punches.PunchIn(r.Context(), userID, req.location())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, rec)
}

// PunchOut closes the caller's open session
// POST /api/v1/attendance/punch-out
func (h *AttendanceHandler) PunchOut(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	var req punchRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	rec, err := h.punches.PunchOut(r.Context(), userID, req.location())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

type startBreakRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// StartBreak opens a break inside the caller's open session
// POST /api/v1/attendance/break/start
func (h *AttendanceHandler) StartBreak(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	var req startBreakRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	brk, err := h.punches.StartBreak(r.Context(), userID, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, brk)
}

// EndBreak closes the caller's active break
// POST /api/v1/attendance/break/end
func (h *AttendanceHandler) EndBreak(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, errors.Forbidden("caller identity missing"))
		return
	}

	brk, err := h.punches.EndBreak(r.Context(), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, brk)
}

// Today returns the live view of a user's current day
// GET /api/v1/attendance/today/{userID}
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	actor := actorFrom(r)
	if !actor.CanActFor(userID) {
		httputil.Error(w, errors.Forbidden("cannot view another user's attendance"))
		return
	}

	status, err := h.punches.Today(r.Context(), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, status)
}

// Monthly returns the classified monthly summary for a user
// GET /api/v1/attendance/monthly/{userID}?year=2025&month=6
func (h *AttendanceHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	actor := actorFrom(r)
	if !actor.CanActFor(userID) {
		httputil.Error(w, errors.Forbidden("cannot view another user's attendance"))
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("year query parameter is required"))
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("month query parameter is required"))
		return
	}

	summary, err := h.summaries.Monthly(r.Context(), userID, year, month)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// actorFrom builds the service actor from the identity headers the gateway
// forwarded
func actorFrom(r *http.Request) service.Actor {
	return service.Actor{
		ID:   httputil.GetUserID(r.Context()),
		Role: httputil.GetUserRole(r.Context()),
	}
}
