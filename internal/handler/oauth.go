package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/service"
)

// OAuthStateTTL bounds how long a sign-in may take.
const OAuthStateTTL = 10 * time.Minute

// OAuthProvider runs the authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Identity, error)
}

// OAuthStateStore keeps single-use state values.
type OAuthStateStore interface {
	SaveOAuthState(ctx context.Context, state string, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (bool, error)
}

// SignInService turns a verified email into a user and a fresh key.
type SignInService interface {
	SignIn(ctx context.Context, email string) (*service.SignInResult, error)
}

// OAuthHandler serves /auth/google/*.
type OAuthHandler struct {
	provider OAuthProvider
	states   OAuthStateStore
	accounts SignInService
	logger   *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler. A nil provider disables
// sign-in.
func NewOAuthHandler(provider OAuthProvider, states OAuthStateStore, accounts SignInService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		provider: provider,
		states:   states,
		accounts: accounts,
		logger:   logger.With("handler", "oauth"),
	}
}

// Login handles GET /auth/google/login.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Sign-in is not enabled")
		return
	}

	state, err := auth.NewOAuthState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	if err := h.states.SaveOAuthState(r.Context(), state, OAuthStateTTL); err != nil {
		h.logger.Error("failed to save oauth state", "error", err)
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Sign-in temporarily unavailable")
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/google/callback.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Sign-in is not enabled")
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		writeError(w, http.StatusBadRequest, "OAUTH_DENIED", "Sign-in was not completed: "+reason)
		return
	}

	state, code := query.Get("state"), query.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "state and code are required")
		return
	}

	ok, err := h.states.ConsumeOAuthState(r.Context(), state)
	if err != nil {
		h.logger.Error("failed to consume oauth state", "error", err)
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Sign-in temporarily unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Sign-in expired, please start again")
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrEmailNotVerified) {
			writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Your Google account email is not verified")
			return
		}
		h.logger.Warn("oauth exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "OAUTH_FAILED", "Could not complete sign-in with Google")
		return
	}

	result, err := h.accounts.SignIn(r.Context(), identity.Email)
	if err != nil {
		h.logger.Error("sign-in failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	h.logger.Info("user signed in",
		"user_id", result.User.ID,
		"created", result.Created,
		"key_id", result.APIKey.ID,
	)

	writeJSON(w, http.StatusOK, dto.SignInResponse{
		UserID:  result.User.ID,
		Email:   result.User.Email,
		Credits: result.User.Credits,
		Created: result.Created,
		APIKey:  result.APIKey.ToCreateResponse(result.Plaintext),
	})
}
