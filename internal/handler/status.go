package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
	"github.com/aivideopro/aivideopro/internal/webhook"
)

// Headers the editing backend signs status callbacks with.
const (
	HeaderSignature = "X-AVP-Signature"
	HeaderTimestamp = "X-AVP-Timestamp"
)

// StatusApplier records backend status reports.
type StatusApplier interface {
	ApplyStatusUpdate(ctx context.Context, source string, update model.StatusUpdate) (bool, error)
}

// StatusHandler receives signed status callbacks from the editing backend.
type StatusHandler struct {
	jobs     StatusApplier
	verifier webhook.Verifier
	logger   *slog.Logger
}

// NewStatusHandler creates a new StatusHandler. An empty secret disables
// the callback route.
func NewStatusHandler(jobs StatusApplier, secret string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		jobs:     jobs,
		verifier: webhook.NewVerifier(secret),
		logger:   logger.With("handler", "status"),
	}
}

// Report handles POST /internal/jobs/{id}/status.
func (h *StatusHandler) Report(w http.ResponseWriter, r *http.Request) {
	if h.verifier.Key == "" {
		writeError(w, http.StatusServiceUnavailable, "CALLBACKS_DISABLED", "Status callbacks are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body")
		return
	}

	if err := h.verifier.Verify(r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp), body); err != nil {
		h.logger.Warn("rejected status callback", "job_id", id, "error", err)
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid or expired signature")
		return
	}

	var update model.StatusUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if update.JobID != "" && update.JobID != id {
		writeError(w, http.StatusBadRequest, "JOB_ID_MISMATCH", "job_id does not match the URL")
		return
	}
	update.JobID = id

	applied, err := h.jobs.ApplyStatusUpdate(r.Context(), "http", update)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		default:
			h.logger.Error("failed to apply status report", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.StatusReportResponse{JobID: id, Applied: applied})
}
