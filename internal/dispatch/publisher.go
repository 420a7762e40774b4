// Package dispatch hands accepted edit jobs to the editing backend over a
// Redis stream.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aivideopro/aivideopro/internal/model"
)

const (
	// StreamKey is the stream the editing backend consumes.
	StreamKey = "stream:edit_jobs"

	// MaxStreamLen caps the stream approximately.
	MaxStreamLen = 100000

	// DefaultPublishTimeout bounds one XADD.
	DefaultPublishTimeout = 2 * time.Second

	payloadField = "payload"
)

// ErrEmptyPayload is returned when a stream entry has no payload field.
var ErrEmptyPayload = errors.New("stream entry has no payload")

// Publisher appends dispatch messages to the edit job stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher creates a publisher on client.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "dispatch.publisher"),
		timeout: DefaultPublishTimeout,
	}
}

// SetTimeout overrides the per-publish timeout.
func (p *Publisher) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout = d
	}
}

// Dispatch publishes one job and returns the stream entry ID.
func (p *Publisher) Dispatch(ctx context.Context, job *model.Job) (string, error) {
	values, err := EncodeMessage(model.DispatchMessage{
		JobID:       job.ID,
		UserID:      job.UserID,
		VideoURL:    job.VideoURL,
		Prompt:      job.Prompt,
		SubmittedAt: job.CreatedAt,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("edit job dispatched", "job_id", job.ID, "stream_id", id)
	return id, nil
}

// EncodeMessage renders msg as stream entry values.
func EncodeMessage(msg model.DispatchMessage) (map[string]any, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch message: %w", err)
	}
	return map[string]any{payloadField: string(data)}, nil
}

// DecodeMessage parses a stream entry written by EncodeMessage.
func DecodeMessage(values map[string]any) (model.DispatchMessage, error) {
	var msg model.DispatchMessage
	raw, ok := values[payloadField].(string)
	if !ok || raw == "" {
		return msg, ErrEmptyPayload
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return msg, fmt.Errorf("unmarshal dispatch message: %w", err)
	}
	return msg, nil
}
