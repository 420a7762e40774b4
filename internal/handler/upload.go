package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/storage"
)

// Uploader issues presigned upload URLs.
type Uploader interface {
	CreateUpload(ctx context.Context, userID string, req model.UploadRequest) (*model.UploadResponse, error)
}

// UploadHandler serves POST /api/v1/uploads.
type UploadHandler struct {
	uploads Uploader
	logger  *slog.Logger
}

// NewUploadHandler creates a new UploadHandler. A nil uploader disables the
// route.
func NewUploadHandler(uploads Uploader, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		logger:  logger.With("handler", "upload"),
	}
}

// Create handles POST /api/v1/uploads.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_DISABLED", "Uploads are not configured")
		return
	}

	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	resp, err := h.uploads.CreateUpload(r.Context(), authCtx.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidFilename):
			writeError(w, http.StatusBadRequest, "INVALID_FILENAME", err.Error())
		case errors.Is(err, storage.ErrInvalidContentType):
			writeError(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", err.Error())
		case errors.Is(err, storage.ErrInvalidSize):
			writeError(w, http.StatusBadRequest, "INVALID_SIZE", err.Error())
		default:
			h.logger.Error("failed to presign upload", "user_id", authCtx.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		}
		return
	}

	h.logger.Info("upload url issued", "user_id", authCtx.UserID, "object_key", resp.ObjectKey)
	writeJSON(w, http.StatusCreated, resp)
}
