// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// JobStatus is the lifecycle state of an edit job.
type JobStatus string

const (
	// JobStatusIdle is the client-side state before anything is submitted.
	// Persisted jobs never hold it.
	JobStatusIdle       JobStatus = "idle"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid reports whether s is a status the backend may report.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a submitted edit request.
type Job struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	VideoURL       string     `json:"video_url"`
	Prompt         string     `json:"prompt"`
	Status         JobStatus  `json:"status"`
	ResultURL      string     `json:"result_url,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreditsCharged int        `json:"credits_charged"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// JobResponse is the API view of a job.
type JobResponse struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	VideoURL    string     `json:"video_url"`
	Prompt      string     `json:"prompt"`
	ResultURL   string     `json:"result_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ToResponse converts a Job to its API view.
func (j *Job) ToResponse() JobResponse {
	return JobResponse{
		ID:          j.ID,
		Status:      j.Status,
		VideoURL:    j.VideoURL,
		Prompt:      j.Prompt,
		ResultURL:   j.ResultURL,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// JobListResponse is a page of jobs.
type JobListResponse struct {
	Data       []JobResponse `json:"data"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status JobStatus
}

// EditRequest is the body of POST /api/edit.
type EditRequest struct {
	VideoURL string `json:"videoUrl"`
	Prompt   string `json:"prompt"`
}

// EditResponse is returned by POST /api/edit.
type EditResponse struct {
	JobID   string    `json:"jobId"`
	Message string    `json:"message"`
	Status  JobStatus `json:"status,omitempty"`
}

// StatusUpdate is a report from the editing backend.
type StatusUpdate struct {
	JobID     string    `json:"job_id,omitempty"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// DispatchMessage is what the editing backend reads from the dispatch stream.
type DispatchMessage struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	VideoURL    string    `json:"video_url"`
	Prompt      string    `json:"prompt"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CachedJob is the Redis hash form of a job, read on the polling path.
type CachedJob struct {
	UserID      string `redis:"user_id"`
	VideoURL    string `redis:"video_url"`
	Prompt      string `redis:"prompt"`
	Status      string `redis:"status"`
	ResultURL   string `redis:"result_url"`
	Error       string `redis:"error"`
	CreatedAt   string `redis:"created_at"`   // Unix millis
	UpdatedAt   string `redis:"updated_at"`   // Unix millis
	CompletedAt string `redis:"completed_at"` // Unix millis or empty
}

// ToJob converts a cached hash back to a Job.
func (c *CachedJob) ToJob(id string) *Job {
	job := &Job{
		ID:        id,
		UserID:    c.UserID,
		VideoURL:  c.VideoURL,
		Prompt:    c.Prompt,
		Status:    JobStatus(c.Status),
		ResultURL: c.ResultURL,
		Error:     c.Error,
		CreatedAt: parseMillis(c.CreatedAt),
		UpdatedAt: parseMillis(c.UpdatedAt),
	}
	if c.CompletedAt != "" {
		t := parseMillis(c.CompletedAt)
		job.CompletedAt = &t
	}
	return job
}

// ToCachedJob converts a Job to its Redis hash form.
func (j *Job) ToCachedJob() *CachedJob {
	cached := &CachedJob{
		UserID:    j.UserID,
		VideoURL:  j.VideoURL,
		Prompt:    j.Prompt,
		Status:    string(j.Status),
		ResultURL: j.ResultURL,
		Error:     j.Error,
		CreatedAt: strconv.FormatInt(j.CreatedAt.UnixMilli(), 10),
		UpdatedAt: strconv.FormatInt(j.UpdatedAt.UnixMilli(), 10),
	}
	if j.CompletedAt != nil {
		cached.CompletedAt = strconv.FormatInt(j.CompletedAt.UnixMilli(), 10)
	}
	return cached
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
