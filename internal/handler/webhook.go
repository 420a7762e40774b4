package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/middleware"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/webhook"
)

const (
	defaultDeliveryPage = 20
	maxDeliveryPage     = 100
)

// WebhookStore persists webhook endpoints and their deliveries.
type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error
	GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error)
	ListEndpointsByUser(ctx context.Context, userID string) ([]*model.WebhookEndpoint, error)
	UpdateEndpointSecret(ctx context.Context, id, secretHash string) error
	DeleteEndpoint(ctx context.Context, id string) error
	ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error)
}

// WebhookHandler manages a user's job-event endpoints.
type WebhookHandler struct {
	repo       WebhookStore
	logger     *slog.Logger
	validation webhook.ValidationOptions
}

func NewWebhookHandler(repo WebhookStore, logger *slog.Logger, validation webhook.ValidationOptions) *WebhookHandler {
	return &WebhookHandler{
		repo:       repo,
		logger:     logger.With("handler", "webhook"),
		validation: validation,
	}
}

// badInput is a 400 with a specific error code.
type badInput struct {
	code, message string
}

// parseCreate decodes and checks a registration body. An empty event list
// subscribes to every job event.
func (h *WebhookHandler) parseCreate(r *http.Request) (model.WebhookEndpointCreateRequest, *badInput) {
	var req model.WebhookEndpointCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &badInput{"INVALID_REQUEST", "Invalid request body"}
	}
	if err := middleware.ValidateWebhookURL(req.TargetURL); err != nil {
		return req, &badInput{"INVALID_URL", err.Error()}
	}
	if err := webhook.ValidateTargetURLWithOptions(req.TargetURL, h.validation); err != nil {
		return req, &badInput{"INVALID_URL", err.Error()}
	}
	if len(req.EventTypes) == 0 {
		req.EventTypes = slices.Clone(model.ValidEventTypes)
	}
	if i := slices.IndexFunc(req.EventTypes, func(et model.EventType) bool { return !model.IsValidEventType(et) }); i >= 0 {
		return req, &badInput{"INVALID_EVENT_TYPE", "Invalid event type: " + string(req.EventTypes[i])}
	}
	return req, nil
}

// Create registers an endpoint and returns its signing secret. The secret
// is not retrievable afterwards.
// POST /api/v1/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	req, bad := h.parseCreate(r)
	if bad != nil {
		writeError(w, http.StatusBadRequest, bad.code, bad.message)
		return
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		h.internal(w, "Failed to create webhook", "generate secret", err)
		return
	}

	now := time.Now().UTC()
	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		UserID:      authCtx.UserID,
		TargetURL:   req.TargetURL,
		SecretHash:  webhook.HashSecret(secret),
		Enabled:     true,
		EventTypes:  req.EventTypes,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repo.CreateEndpoint(r.Context(), endpoint); err != nil {
		h.internal(w, "Failed to create webhook", "create endpoint", err)
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"user_id", authCtx.UserID,
		"target_host", webhook.ExtractHost(endpoint.TargetURL),
	)
	writeJSON(w, http.StatusCreated, model.WebhookEndpointCreateResponse{
		WebhookEndpointResponse: endpoint.ToResponse(),
		Secret:                  secret,
	})
}

// GET /api/v1/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	endpoints, err := h.repo.ListEndpointsByUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.internal(w, "Failed to list webhooks", "list endpoints", err)
		return
	}

	resp := dto.WebhookListResponse{Webhooks: make([]model.WebhookEndpointResponse, 0, len(endpoints))}
	for _, ep := range endpoints {
		resp.Webhooks = append(resp.Webhooks, ep.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	if endpoint, ok := h.ownedEndpoint(w, r); ok {
		writeJSON(w, http.StatusOK, endpoint.ToResponse())
	}
}

// Delete soft-deletes the endpoint. Pending deliveries to it are dropped
// by the worker.
// DELETE /api/v1/webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	err := h.repo.DeleteEndpoint(r.Context(), endpoint.ID)
	switch {
	case errors.Is(err, webhook.ErrEndpointNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
		return
	case err != nil:
		h.internal(w, "Failed to delete webhook", "delete endpoint", err)
		return
	}

	h.logger.Info("webhook endpoint deleted", "endpoint_id", endpoint.ID, "user_id", endpoint.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret replaces the signing secret. The old secret stops
// verifying as soon as this returns.
// POST /api/v1/webhooks/{id}/rotate-secret
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		h.internal(w, "Failed to rotate secret", "generate secret", err)
		return
	}
	if err := h.repo.UpdateEndpointSecret(r.Context(), endpoint.ID, webhook.HashSecret(secret)); err != nil {
		h.internal(w, "Failed to rotate secret", "update secret", err)
		return
	}

	h.logger.Info("webhook secret rotated", "endpoint_id", endpoint.ID, "user_id", endpoint.UserID)
	writeJSON(w, http.StatusOK, dto.WebhookSecretResponse{Secret: secret})
}

// ListDeliveries shows the newest deliveries first. limit defaults to 20
// and is capped at 100.
// GET /api/v1/webhooks/{id}/deliveries
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > maxDeliveryPage {
		limit = defaultDeliveryPage
	}

	deliveries, err := h.repo.ListDeliveriesByEndpoint(r.Context(), endpoint.ID, limit)
	if err != nil {
		h.internal(w, "Failed to list deliveries", "list deliveries", err)
		return
	}

	resp := dto.WebhookDeliveriesResponse{Deliveries: make([]model.WebhookDeliveryResponse, 0, len(deliveries))}
	for _, d := range deliveries {
		resp.Deliveries = append(resp.Deliveries, d.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}

// ownedEndpoint resolves {id} for the caller. Another user's endpoint is
// reported as missing. On false the response has been written.
func (h *WebhookHandler) ownedEndpoint(w http.ResponseWriter, r *http.Request) (*model.WebhookEndpoint, bool) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return nil, false
	}

	endpoint, err := h.repo.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, webhook.ErrEndpointNotFound):
	case err != nil:
		h.internal(w, "Failed to load webhook", "get endpoint", err)
		return nil, false
	case endpoint.UserID == authCtx.UserID:
		return endpoint, true
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
	return nil, false
}

func (h *WebhookHandler) internal(w http.ResponseWriter, message, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
