package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/cache"
	"github.com/aivideopro/aivideopro/internal/config"
	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
)

// Messages returned by SubmitEdit.
const (
	MockMessage     = "Backend coming soon!"
	AcceptedMessage = "Edit job accepted"
)

// JobStore persists jobs and their credit side effects.
type JobStore interface {
	CreateJobWithCharge(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, id string) (*model.Job, error)
	ListJobsByUser(ctx context.Context, userID string, filter model.JobFilter, cursor string, limit int) ([]*model.Job, string, error)
	ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error)
	TransitionJob(ctx context.Context, id string, update model.StatusUpdate) (*model.Job, bool, error)
}

// JobCache holds the polling view of jobs.
type JobCache interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SetJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Dispatcher hands an accepted job to the editing backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.Job) (string, error)
}

// EventPublisher notifies the owner's webhooks about finished jobs.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, job *model.Job) error
}

// JobServiceOptions are the tunables of JobService.
type JobServiceOptions struct {
	Mode        string
	CostCredits int
}

// JobService handles edit job business logic.
type JobService struct {
	store      JobStore
	cache      JobCache
	dispatcher Dispatcher
	events     EventPublisher
	metrics    metrics.Recorder
	logger     *slog.Logger
	opts       JobServiceOptions
	now        func() time.Time
}

// NewJobService creates a JobService. cache and events may be nil.
func NewJobService(store JobStore, jobCache JobCache, dispatcher Dispatcher, events EventPublisher, recorder metrics.Recorder, logger *slog.Logger, opts JobServiceOptions) *JobService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Mode == "" {
		opts.Mode = config.EditModeQueue
	}
	if opts.CostCredits < 1 {
		opts.CostCredits = 1
	}
	return &JobService{
		store:      store,
		cache:      jobCache,
		dispatcher: dispatcher,
		events:     events,
		metrics:    recorder,
		logger:     logger.With("component", "service.jobs"),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitEdit validates an edit request and, in queue mode, charges the
// caller and hands the job to the backend.
func (s *JobService) SubmitEdit(ctx context.Context, userID string, req model.EditRequest) (*model.EditResponse, error) {
	videoURL := strings.TrimSpace(req.VideoURL)
	if err := ValidateVideoURL(videoURL); err != nil {
		s.metrics.IncJobSubmitted("invalid")
		return nil, err
	}
	prompt, err := NormalizePrompt(req.Prompt)
	if err != nil {
		s.metrics.IncJobSubmitted("invalid")
		return nil, err
	}

	now := s.now()

	if s.opts.Mode == config.EditModeMock {
		s.metrics.IncJobSubmitted("mock")
		return &model.EditResponse{
			JobID:   "mock-" + strconv.FormatInt(now.UnixMilli(), 10),
			Message: MockMessage,
		}, nil
	}

	job := &model.Job{
		ID:             ulid.Make().String(),
		UserID:         userID,
		VideoURL:       videoURL,
		Prompt:         prompt,
		Status:         model.JobStatusProcessing,
		CreditsCharged: s.opts.CostCredits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateJobWithCharge(ctx, job); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) || errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncJobSubmitted("insufficient_credits")
			return nil, ErrInsufficientCredits
		}
		s.metrics.IncJobSubmitted("error")
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// Cached before dispatch: the backend may report a result before
	// Dispatch returns, and that snapshot must not be overwritten.
	s.cacheJob(ctx, job)

	if _, err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Error("dispatch failed, refunding job",
			"job_id", job.ID,
			"user_id", userID,
			"error", err,
		)
		// The request context may already be done; the refund must still land.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, applyErr := s.ApplyStatusUpdate(refundCtx, "dispatch", model.StatusUpdate{
			JobID:  job.ID,
			Status: model.JobStatusFailed,
			Error:  "failed to dispatch job",
		}); applyErr != nil {
			s.logger.Error("failed to fail undispatched job", "job_id", job.ID, "error", applyErr)
		}
		s.metrics.IncJobSubmitted("dispatch_failed")
		return nil, ErrDispatchFailed
	}

	s.metrics.IncJobSubmitted("accepted")
	s.logger.Info("edit job accepted", "job_id", job.ID, "user_id", userID)

	return &model.EditResponse{
		JobID:   job.ID,
		Message: AcceptedMessage,
		Status:  job.Status,
	}, nil
}

// GetJob returns one of the caller's jobs. Jobs owned by someone else are
// reported as not found.
func (s *JobService) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if s.cache != nil {
		cached, err := s.cache.GetJob(ctx, jobID)
		switch {
		case err == nil:
			s.metrics.IncJobCacheHit()
			if cached.UserID != userID {
				return nil, ErrJobNotFound
			}
			return cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncJobCacheMiss()
		default:
			s.logger.Warn("job cache read failed", "job_id", jobID, "error", err)
		}
	}

	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	s.cacheJob(ctx, job)

	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobsInput defines input for listing jobs.
type ListJobsInput struct {
	UserID string
	Cursor string
	Limit  int
	Status model.JobStatus
}

// ListJobsOutput is a page of jobs.
type ListJobsOutput struct {
	Jobs       []*model.Job
	NextCursor string
	HasMore    bool
}

// ListJobs returns the caller's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, input ListJobsInput) (*ListJobsOutput, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	jobs, nextCursor, err := s.store.ListJobsByUser(ctx, input.UserID, model.JobFilter{Status: input.Status}, input.Cursor, input.Limit)
	if err != nil {
		return nil, err
	}

	return &ListJobsOutput{
		Jobs:       jobs,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// ApplyStatusUpdate records a status report from source. The returned bool
// is false when the report changed nothing (heartbeat or late report on a
// terminal job).
func (s *JobService) ApplyStatusUpdate(ctx context.Context, source string, update model.StatusUpdate) (bool, error) {
	if !update.Status.IsValid() {
		s.metrics.IncStatusReport(source, "invalid")
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, update.Status)
	}
	if update.Status == model.JobStatusCompleted && strings.TrimSpace(update.ResultURL) == "" {
		s.metrics.IncStatusReport(source, "invalid")
		return false, fmt.Errorf("%w: completed requires result_url", ErrInvalidTransition)
	}
	if update.Status != model.JobStatusCompleted {
		update.ResultURL = ""
	}
	if update.Status != model.JobStatusFailed {
		update.Error = ""
	}

	job, changed, err := s.store.TransitionJob(ctx, update.JobID, update)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			s.metrics.IncStatusReport(source, "not_found")
			return false, ErrJobNotFound
		}
		s.metrics.IncStatusReport(source, "error")
		return false, err
	}

	if !changed {
		if job.IsTerminal() {
			s.metrics.IncStatusReport(source, "ignored")
			return false, nil
		}
		s.metrics.IncStatusReport(source, "heartbeat")
		s.cacheJob(ctx, job)
		return false, nil
	}

	s.metrics.IncStatusReport(source, "applied")
	s.metrics.IncJobFinished(string(job.Status))
	s.metrics.ObserveJobDuration(job.UpdatedAt.Sub(job.CreatedAt))

	s.cacheJob(ctx, job)

	if s.events != nil {
		if err := s.events.PublishJobEvent(ctx, job); err != nil {
			s.logger.Warn("failed to publish job event", "job_id", job.ID, "error", err)
		}
	}

	s.logger.Info("job finished",
		"job_id", job.ID,
		"status", job.Status,
		"source", source,
	)
	return true, nil
}

func (s *JobService) cacheJob(ctx context.Context, job *model.Job) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJob(ctx, job); err != nil {
		s.logger.Warn("failed to cache job", "job_id", job.ID, "error", err)
	}
}
