package statusfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamKey is where the editing backend appends status reports.
	StreamKey = "stream:job_status"

	// DeadLetterStreamKey keeps reports that can never be applied.
	DeadLetterStreamKey = "stream:job_status:dlq"

	// ConsumerGroup is shared by every API instance.
	ConsumerGroup = "api_status_consumers"

	DefaultBatchSize     = 50
	DefaultBlockTimeout  = 5 * time.Second
	DefaultClaimInterval = 10 * time.Second
	DefaultClaimIdle     = 30 * time.Second

	deadLetterMaxLen = 10000
)

// StreamConsumer applies status reports read from a Redis stream.
//
// Reports that fail transiently stay pending and are reclaimed with
// XAUTOCLAIM once idle; reports that can never apply go to the dead-letter
// stream.
type StreamConsumer struct {
	redis         *redis.Client
	applier       Applier
	logger        *slog.Logger
	consumerID    string
	batchSize     int
	blockTimeout  time.Duration
	claimInterval time.Duration
	claimIdle     time.Duration
	claimStartID  string
	lastClaim     time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewStreamConsumer creates a consumer named consumerID.
func NewStreamConsumer(client *redis.Client, applier Applier, logger *slog.Logger, consumerID string) *StreamConsumer {
	return &StreamConsumer{
		redis:         client,
		applier:       applier,
		logger:        logger.With("component", "statusfeed.stream", "consumer_id", consumerID),
		consumerID:    consumerID,
		batchSize:     DefaultBatchSize,
		blockTimeout:  DefaultBlockTimeout,
		claimInterval: DefaultClaimInterval,
		claimIdle:     DefaultClaimIdle,
		claimStartID:  "0-0",
	}
}

// SetBlockTimeout overrides the XREADGROUP block time.
func (c *StreamConsumer) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.blockTimeout = timeout
	}
}

// SetClaimIdle overrides how long a report stays pending before reclaim.
func (c *StreamConsumer) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		c.claimIdle = idle
	}
}

// SetClaimInterval overrides how often pending reports are scanned.
func (c *StreamConsumer) SetClaimInterval(interval time.Duration) {
	if interval > 0 {
		c.claimInterval = interval
	}
}

// Run consumes until ctx is cancelled or Shutdown is called.
func (c *StreamConsumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("stream consumer already started")
	}
	c.started = true
	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)

	if err := c.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	c.logger.Info("status stream consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("status stream consumer stopped")
			return nil
		default:
		}

		if err := c.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("process error", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Shutdown stops the loop and waits for the in-flight batch.
func (c *StreamConsumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("status stream consumer shutdown timed out")
		return ctx.Err()
	}
}

func (c *StreamConsumer) ensureConsumerGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// ProcessOnce handles one batch of reclaimed or new reports.
func (c *StreamConsumer) ProcessOnce(ctx context.Context) error {
	messages, err := c.maybeClaimPending(ctx)
	if err != nil {
		c.logger.Warn("failed to claim pending reports", "error", err)
	}

	if len(messages) == 0 {
		messages, err = c.readBatch(ctx)
		if err != nil {
			return err
		}
	}

	ack := make([]string, 0, len(messages))
	for _, msg := range messages {
		if c.handleMessage(ctx, msg) {
			ack = append(ack, msg.ID)
		}
	}

	if len(ack) == 0 {
		return nil
	}
	if err := c.redis.XAck(ctx, StreamKey, ConsumerGroup, ack...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// handleMessage reports whether msg can be acknowledged.
func (c *StreamConsumer) handleMessage(ctx context.Context, msg redis.XMessage) bool {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		c.deadLetter(ctx, msg, "invalid_format", "payload field missing or not a string")
		return true
	}

	settled, err := Handle(ctx, c.applier, c.logger, "stream", []byte(payload))
	switch {
	case err == nil:
		return true
	case settled:
		c.deadLetter(ctx, msg, "rejected", err.Error())
		return true
	default:
		c.logger.Warn("status report failed, leaving pending",
			"message_id", msg.ID,
			"error", err,
		)
		return false
	}
}

func (c *StreamConsumer) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !c.lastClaim.IsZero() && time.Since(c.lastClaim) < c.claimInterval {
		return nil, nil
	}
	c.lastClaim = time.Now()

	messages, start, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		MinIdle:  c.claimIdle,
		Start:    c.claimStartID,
		Count:    int64(c.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		c.claimStartID = start
	}
	return messages, nil
}

func (c *StreamConsumer) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(c.batchSize),
		Block:    c.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (c *StreamConsumer) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	c.logger.Warn("dead-lettering status report",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		c.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
