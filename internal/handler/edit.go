package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

// NoCreditsMessage is shown to callers whose balance cannot cover an edit.
const NoCreditsMessage = "No credits. Purchase more to continue."

// EditSubmitter accepts edit requests.
type EditSubmitter interface {
	SubmitEdit(ctx context.Context, userID string, req model.EditRequest) (*model.EditResponse, error)
}

// EditHandler serves POST /api/edit.
type EditHandler struct {
	jobs   EditSubmitter
	logger *slog.Logger
}

// NewEditHandler creates a new EditHandler.
func NewEditHandler(jobs EditSubmitter, logger *slog.Logger) *EditHandler {
	return &EditHandler{
		jobs:   jobs,
		logger: logger.With("handler", "edit"),
	}
}

// Submit handles POST /api/edit.
// Accepted jobs answer 202; mock mode answers 200 with a placeholder id.
func (h *EditHandler) Submit(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	resp, err := h.jobs.SubmitEdit(r.Context(), authCtx.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidVideoURL):
			writeError(w, http.StatusBadRequest, "INVALID_VIDEO_URL", "videoUrl must be an absolute http(s) URL")
		case errors.Is(err, service.ErrInvalidPrompt):
			writeError(w, http.StatusBadRequest, "INVALID_PROMPT", "prompt must be 1 to 2000 characters")
		case errors.Is(err, service.ErrInsufficientCredits):
			writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", NoCreditsMessage)
		case errors.Is(err, service.ErrDispatchFailed):
			writeError(w, http.StatusServiceUnavailable, "DISPATCH_FAILED", "Editing backend unavailable, credits refunded")
		default:
			h.logger.Error("failed to submit edit", "user_id", authCtx.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		}
		return
	}

	status := http.StatusOK
	if resp.Status == model.JobStatusProcessing {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}
