// Package statusfeed consumes job status reports from the editing backend
// over Kafka and Redis Streams and applies them to jobs.
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

// ErrMalformed marks a report that can never be applied.
var ErrMalformed = errors.New("malformed status report")

// Applier applies one status report.
type Applier interface {
	ApplyStatusUpdate(ctx context.Context, source string, update model.StatusUpdate) (bool, error)
}

// Decode parses a report body. Reports must name their job.
func Decode(payload []byte) (model.StatusUpdate, error) {
	var update model.StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return update, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if update.JobID == "" {
		return update, fmt.Errorf("%w: job_id is required", ErrMalformed)
	}
	return update, nil
}

// Handle decodes and applies payload. settled is true when the report must
// not be retried, either because it was applied or because it never can be.
func Handle(ctx context.Context, applier Applier, logger *slog.Logger, source string, payload []byte) (settled bool, err error) {
	update, err := Decode(payload)
	if err != nil {
		return true, err
	}

	if _, err := applier.ApplyStatusUpdate(ctx, source, update); err != nil {
		if errors.Is(err, service.ErrJobNotFound) || errors.Is(err, service.ErrInvalidTransition) {
			logger.Warn("rejected status report",
				"job_id", update.JobID,
				"status", update.Status,
				"error", err,
			)
			return true, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return false, err
	}
	return true, nil
}

// NewConsumerID names this process within a consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "api"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
