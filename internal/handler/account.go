package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

// AccountReader exposes the caller's balance and ledger.
type AccountReader interface {
	GetAccount(ctx context.Context, userID string) (*model.AccountResponse, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error)
}

// AccountHandler serves /api/v1/me.
type AccountHandler struct {
	accounts AccountReader
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountReader, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger.With("handler", "account"),
	}
}

// Me handles GET /api/v1/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), authCtx.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.logger.Error("failed to load account", "user_id", authCtx.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Ledger handles GET /api/v1/me/credits/ledger.
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	entries, err := h.accounts.ListLedger(r.Context(), authCtx.UserID, limit)
	if err != nil {
		h.logger.Error("failed to list ledger", "user_id", authCtx.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	if entries == nil {
		entries = []*model.CreditEntry{}
	}

	writeJSON(w, http.StatusOK, dto.LedgerResponse{Entries: entries})
}
