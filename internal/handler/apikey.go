package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
)

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) (time.Time, error)
	RotateAPIKey(ctx context.Context, oldID string, next *model.APIKey) (time.Time, error)
}

// AuthCacheInvalidator evicts the cached auth context of a revoked key.
type AuthCacheInvalidator interface {
	ForgetAPIKey(ctx context.Context, keyID string) error
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	logger *slog.Logger
	keys   APIKeyStore
	cache  AuthCacheInvalidator
}

// NewAPIKeyHandler creates a new APIKeyHandler. cache may be nil.
func NewAPIKeyHandler(logger *slog.Logger, keys APIKeyStore, cache AuthCacheInvalidator) *APIKeyHandler {
	return &APIKeyHandler{
		logger: logger.With("handler", "apikey"),
		keys:   keys,
		cache:  cache,
	}
}

// CreateAPIKey handles POST /api/v1/api-keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req model.APIKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeNestedError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	for _, scope := range req.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			writeNestedError(w, http.StatusBadRequest, "INVALID_SCOPE",
				"Invalid scope: "+scope+". Valid scopes: read, write, webhook, admin")
			return
		}
		// A key can never grant more than the key that minted it.
		if !authCtx.HasScope(scope) {
			writeNestedError(w, http.StatusForbidden, "FORBIDDEN", "Cannot grant scope: "+scope)
			return
		}
	}

	if len(req.Scopes) == 0 {
		req.Scopes = []string{model.ScopeRead}
	}

	apiKey, plaintext, err := auth.NewAPIKey(authCtx.UserID, req.Name, req.Scopes, authCtx.RateLimitTier)
	if err != nil {
		h.logger.Error("failed to generate API key", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}

	if err := h.keys.CreateAPIKey(ctx, apiKey); err != nil {
		h.logger.Error("failed to create API key", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key")
		return
	}

	h.logger.Info("API key created",
		slog.String("key_id", apiKey.ID),
		slog.String("key_prefix", apiKey.KeyPrefix),
		slog.String("user_id", apiKey.UserID),
	)

	writeJSON(w, http.StatusCreated, apiKey.ToCreateResponse(plaintext))
}

// ListAPIKeys handles GET /api/v1/api-keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	keys, err := h.keys.ListAPIKeysByUserID(ctx, authCtx.UserID)
	if err != nil {
		h.logger.Error("failed to list API keys", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API keys")
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// RevokeAPIKey handles DELETE /api/v1/api-keys/{key_id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	key, ok := h.ownedActiveKey(w, r, authCtx)
	if !ok {
		return
	}

	if _, err := h.keys.RevokeAPIKey(ctx, key.ID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeNestedError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
			return
		}
		h.logger.Error("failed to revoke API key", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}
	h.forgetKey(r, key.ID)

	h.logger.Info("API key revoked",
		slog.String("key_id", key.ID),
		slog.String("user_id", authCtx.UserID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// RotateAPIKey handles POST /api/v1/api-keys/{key_id}/rotate
func (h *APIKeyHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	oldKey, ok := h.ownedActiveKey(w, r, authCtx)
	if !ok {
		return
	}

	newKey, plaintext, err := auth.NewAPIKey(oldKey.UserID, oldKey.Name, oldKey.Scopes, oldKey.RateLimitTier)
	if err != nil {
		h.logger.Error("failed to generate API key", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}

	revokedAt, err := h.keys.RotateAPIKey(ctx, oldKey.ID, newKey)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeNestedError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
			return
		}
		h.logger.Error("failed to rotate API key", slog.String("error", err.Error()))
		writeNestedError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate API key")
		return
	}
	h.forgetKey(r, oldKey.ID)

	h.logger.Info("API key rotated",
		slog.String("old_key_id", oldKey.ID),
		slog.String("new_key_id", newKey.ID),
		slog.String("user_id", authCtx.UserID),
	)

	writeJSON(w, http.StatusCreated, model.APIKeyRotateResponse{
		OldKeyID:        oldKey.ID,
		OldKeyRevokedAt: revokedAt,
		NewKey:          newKey.ToCreateResponse(plaintext),
	})
}

// ownedActiveKey loads {key_id} and writes a 404 unless it is an active key
// of the caller. Other users' keys look exactly like missing ones.
func (h *APIKeyHandler) ownedActiveKey(w http.ResponseWriter, r *http.Request, authCtx *model.AuthContext) (*model.APIKey, bool) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		writeNestedError(w, http.StatusBadRequest, "INVALID_REQUEST", "Key ID is required")
		return nil, false
	}

	key, err := h.keys.GetAPIKeyByID(r.Context(), keyID)
	if err != nil || key.UserID != authCtx.UserID || key.IsRevoked() {
		writeNestedError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
		return nil, false
	}
	return key, true
}

// forgetKey evicts a revoked key from the auth cache so it stops working
// at once rather than when its cache entry expires.
func (h *APIKeyHandler) forgetKey(r *http.Request, keyID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.ForgetAPIKey(r.Context(), keyID); err != nil {
		h.logger.Warn("failed to evict revoked key from auth cache", slog.String("key_id", keyID), slog.String("error", err.Error()))
	}
}
