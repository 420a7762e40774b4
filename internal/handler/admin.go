package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

const adminQueryTimeout = 5 * time.Second

// CreditGranter adds credits on behalf of an operator.
type CreditGranter interface {
	GrantCredits(ctx context.Context, adminKeyID, userID string, req model.CreditGrantRequest) (int, error)
}

type AdminKeyLister interface {
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
}

// AdminHandler serves the operator routes under /api/v1/admin. Every route
// requires the admin scope.
type AdminHandler struct {
	credits   CreditGranter
	keys      AdminKeyLister
	stats     metrics.Snapshotter
	logger    *slog.Logger
	version   string
	startedAt time.Time
}

func NewAdminHandler(credits CreditGranter, keys AdminKeyLister, stats metrics.Snapshotter, logger *slog.Logger, version string) *AdminHandler {
	return &AdminHandler{
		credits:   credits,
		keys:      keys,
		stats:     stats,
		logger:    logger.With("handler", "admin"),
		version:   version,
		startedAt: time.Now().UTC(),
	}
}

// GrantCredits tops up a user's balance and records a ledger entry naming
// the admin key. It stands in for a purchase flow.
// POST /api/v1/admin/users/{id}/credits
func (h *AdminHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "User ID is required")
		return
	}

	var req model.CreditGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	balance, err := h.credits.GrantCredits(r.Context(), authCtx.KeyID, userID, req)
	switch {
	case errors.Is(err, service.ErrInvalidGrant):
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be between 1 and 10000")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case err != nil:
		h.logger.Error("grant credits failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	default:
		h.logger.Info("credits granted", "user_id", userID, "amount", req.Amount, "admin_key_id", authCtx.KeyID)
		writeJSON(w, http.StatusOK, dto.CreditGrantResponse{UserID: userID, Granted: req.Amount, Credits: balance})
	}
}

// ListAPIKeysByUser shows every key of one user, revoked ones included.
// GET /api/v1/admin/api-keys?user_id={id}
func (h *AdminHandler) ListAPIKeysByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "query parameter 'user_id' is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), adminQueryTimeout)
	defer cancel()

	keys, err := h.keys.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("list api keys failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list API keys")
		return
	}

	resp := dto.AdminKeyListResponse{UserID: userID, Keys: make([]model.APIKeyResponse, len(keys)), Total: len(keys)}
	for i, k := range keys {
		resp.Keys[i] = k.ToResponse()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats reports build info and the in-process job and webhook counters.
// Submissions are keyed by outcome, finished jobs by final status.
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := dto.StatsResponse{
		Service:      "aivideopro",
		Version:      h.version,
		StartedAt:    h.startedAt,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.stats != nil {
		snap := h.stats.Snapshot()
		resp.JobsSubmitted = snap.JobsSubmitted
		resp.JobsFinished = snap.JobsFinished
		resp.JobsTimedOut = snap.JobsTimedOut
		resp.WebhookQueueDepth = snap.WebhookQueueDepth
	}
	writeJSON(w, http.StatusOK, resp)
}
