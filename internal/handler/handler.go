// Package handler holds the HTTP handlers of the AI Video Pro API.
//
// Resource handlers answer errors with the flat {"error","code"} body.
// Handlers that sit next to the auth middleware use the nested
// {"error":{"code","message"}} body instead so clients see one shape per route.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aivideopro/aivideopro/internal/handler/dto"
)

const serviceName = "AI Video Pro API"

// Handler serves the root and fallback routes.
type Handler struct {
	info ServiceInfo
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func New(version string) *Handler {
	return &Handler{info: ServiceInfo{Message: serviceName, Version: version}}
}

// Info identifies the service and build.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

type nestedError struct {
	Error nestedErrorDetail `json:"error"`
}

type nestedErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; the client most likely went away.
		slog.Debug("encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

func writeNestedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, nestedError{Error: nestedErrorDetail{Code: code, Message: message}})
}
