package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/model"
)

const (
	DefaultBatchSize    = 50
	DefaultPollInterval = 5 * time.Second
	DefaultConcurrency  = 8

	queueDepthInterval = 10 * time.Second
	maxResponseDrain   = 4 << 10
)

// Store is the persistence the worker needs; *Repository implements it.
type Store interface {
	ClaimPendingDeliveries(ctx context.Context, limit int) ([]*model.WebhookDelivery, error)
	GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error)
	UpdateDeliverySuccess(ctx context.Context, id string, httpStatus int) error
	UpdateDeliveryFailure(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error
	GetQueueDepth(ctx context.Context) (int64, error)
}

// WorkerConfig tunes the delivery loop. Zero values take the defaults.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// Concurrency caps in-flight POSTs within one batch.
	Concurrency int
	// AllowPrivateTargets turns off the connect-time address check.
	// Development only.
	AllowPrivateTargets bool
	// Backoff spaces retries; a nil schedule uses DefaultBackoff.
	Backoff Backoff
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Backoff.Schedule == nil {
		c.Backoff = DefaultBackoff
	}
	return c
}

// Worker polls for due deliveries and POSTs them to their endpoints.
type Worker struct {
	store   Store
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	cfg     WorkerConfig

	lastDepth time.Time
	running   atomic.Bool
}

func NewWorker(store Store, logger *slog.Logger, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		store:   store,
		client:  newDeliveryClient(cfg.AllowPrivateTargets),
		logger:  logger.With("component", "webhook.worker"),
		metrics: recorder,
		cfg:     cfg,
	}
}

// Run polls until ctx is cancelled. A Worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("webhook worker already started")
	}

	w.logger.Info("webhook worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return nil
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("webhook batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce claims one batch of due deliveries and waits for every
// attempt in it to be recorded.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.reportQueueDepth(ctx)

	deliveries, err := w.store.ClaimPendingDeliveries(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim pending deliveries: %w", err)
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, d := range deliveries {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			if err := w.deliver(ctx, d); err != nil {
				w.logger.Warn("could not record delivery attempt", "delivery_id", d.ID, "error", err)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) deliver(ctx context.Context, d *model.WebhookDelivery) error {
	endpoint, err := w.store.GetEndpoint(ctx, d.EndpointID)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		return w.giveUp(ctx, d, "endpoint deleted")
	case err != nil:
		return err
	case !endpoint.IsActive():
		return w.giveUp(ctx, d, "endpoint disabled")
	}

	req, err := newDeliveryRequest(ctx, endpoint, d, time.Now())
	if err != nil {
		return w.giveUp(ctx, d, err.Error())
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	elapsed := time.Since(start)
	w.metrics.ObserveWebhookDeliveryDuration(elapsed)
	if err != nil {
		return w.retryLater(ctx, d, nil, err.Error())
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := resp.StatusCode
		return w.retryLater(ctx, d, &code, "HTTP "+strconv.Itoa(code))
	}

	w.logger.Info("webhook delivered",
		"delivery_id", d.ID,
		"event_type", d.EventType,
		"target_host", ExtractHost(endpoint.TargetURL),
		"http_status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	w.metrics.IncWebhookDelivery(string(model.DeliveryStatusSuccess))
	return w.store.UpdateDeliverySuccess(ctx, d.ID, resp.StatusCode)
}

// retryLater records a failed attempt and schedules the next one, or
// exhausts the delivery when it has used its last attempt.
func (w *Worker) retryLater(ctx context.Context, d *model.WebhookDelivery, httpStatus *int, reason string) error {
	attempt := d.AttemptCount + 1
	exhausted := attemptsExhausted(attempt, d.MaxAttempts)

	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	w.metrics.IncWebhookDelivery(string(status))
	w.logger.Warn("webhook attempt failed",
		"delivery_id", d.ID,
		"attempt", attempt,
		"exhausted", exhausted,
		"error", reason,
	)
	return w.store.UpdateDeliveryFailure(ctx, d.ID, httpStatus, reason, w.cfg.Backoff.Next(time.Now(), d.AttemptCount), exhausted)
}

// giveUp exhausts a delivery that can never succeed.
func (w *Worker) giveUp(ctx context.Context, d *model.WebhookDelivery, reason string) error {
	w.metrics.IncWebhookDelivery(string(model.DeliveryStatusExhausted))
	w.logger.Info("webhook delivery abandoned", "delivery_id", d.ID, "reason", reason)
	return w.store.UpdateDeliveryFailure(ctx, d.ID, nil, reason, time.Now(), true)
}

func (w *Worker) reportQueueDepth(ctx context.Context) {
	if time.Since(w.lastDepth) < queueDepthInterval {
		return
	}
	w.lastDepth = time.Now()

	depth, err := w.store.GetQueueDepth(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}
