package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
	DefaultMaxErrors    = 5
)

var (
	// ErrPollTimeout is returned when the job is still running at the deadline.
	ErrPollTimeout = errors.New("timed out waiting for job")

	// ErrTooManyErrors is returned after MaxErrors consecutive failed reads.
	ErrTooManyErrors = errors.New("too many consecutive polling errors")
)

// JobGetter reads a job's current state.
type JobGetter interface {
	GetJob(ctx context.Context, jobID string) (*model.JobResponse, error)
}

// Poller watches a job until it reaches a terminal status.
type Poller struct {
	jobs      JobGetter
	Interval  time.Duration
	Timeout   time.Duration
	MaxErrors int
}

// NewPoller returns a poller with the default interval, timeout and error
// budget.
func NewPoller(jobs JobGetter) *Poller {
	return &Poller{
		jobs:      jobs,
		Interval:  DefaultPollInterval,
		Timeout:   DefaultPollTimeout,
		MaxErrors: DefaultMaxErrors,
	}
}

// Poll reads the job every Interval and calls onUpdate with each snapshot.
// It returns the terminal job, or an error on cancellation, timeout or
// after MaxErrors consecutive failures. Not-found and auth errors end
// polling immediately.
func (p *Poller) Poll(ctx context.Context, jobID string, onUpdate func(*model.JobResponse)) (*model.JobResponse, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrPollTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, err := p.jobs.GetJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if isPermanent(err) {
				return nil, err
			}
			failures++
			if p.MaxErrors > 0 && failures >= p.MaxErrors {
				return nil, fmt.Errorf("%w: %v", ErrTooManyErrors, err)
			}
			continue
		}
		failures = 0

		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
	}
}

func isPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 401, 403, 404:
		return true
	}
	return false
}
