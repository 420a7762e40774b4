package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
	"github.com/aivideopro/aivideopro/internal/service"
)

// JobReader serves job status to owners.
type JobReader interface {
	GetJob(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, input service.ListJobsInput) (*service.ListJobsOutput, error)
}

// JobHandler handles job status reads.
type JobHandler struct {
	jobs   JobReader
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs JobReader, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger.With("handler", "job"),
	}
}

// Get handles GET /api/v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), authCtx.UserID, id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, job.ToResponse())
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeNestedError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	status := model.JobStatus(query.Get("status"))
	if status != "" && !status.IsValid() {
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "status must be processing, completed or failed")
		return
	}

	result, err := h.jobs.ListJobs(r.Context(), service.ListJobsInput{
		UserID: authCtx.UserID,
		Cursor: query.Get("cursor"),
		Limit:  limit,
		Status: status,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
			return
		}
		h.logger.Error("failed to list jobs", "user_id", authCtx.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	response := model.JobListResponse{
		Data:       make([]model.JobResponse, 0, len(result.Jobs)),
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}
	for _, job := range result.Jobs {
		response.Data = append(response.Data, job.ToResponse())
	}

	writeJSON(w, http.StatusOK, response)
}
