package statusfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig holds the consumer group settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer applies status reports from a Kafka topic.
type KafkaConsumer struct {
	group        sarama.ConsumerGroup
	applier      Applier
	logger       *slog.Logger
	topic        string
	maxAttempts  int
	retryBackoff time.Duration
}

// NewKafkaConsumer joins the consumer group. Offsets start at the newest
// message for a new group.
func NewKafkaConsumer(cfg KafkaConfig, applier Applier, logger *slog.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newKafkaConsumer(group, cfg.Topic, applier, logger), nil
}

func newKafkaConsumer(group sarama.ConsumerGroup, topic string, applier Applier, logger *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		group:        group,
		applier:      applier,
		logger:       logger.With("component", "statusfeed.kafka", "topic", topic),
		topic:        topic,
		maxAttempts:  3,
		retryBackoff: time.Second,
	}
}

// Run consumes until ctx is cancelled, rejoining the group after each
// rebalance or unsettled report.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", "error", err)
		}
	}()

	handler := &groupHandler{consumer: c}
	c.logger.Info("kafka status consumer started")

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("kafka consume failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka status consumer stopped")
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

// errUnsettled ends a claim whose report could not be applied.
var errUnsettled = errors.New("status report unsettled")

type groupHandler struct {
	consumer *KafkaConsumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.handle(session, message); err != nil {
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle retries transient failures in place. A report that still fails is
// left unmarked and errUnsettled is returned: marking any later offset would
// commit past it, so the claim stops and the session rejoins from the last
// committed offset.
func (h *groupHandler) handle(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) error {
	c := h.consumer
	ctx := session.Context()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		settled, err := Handle(ctx, c.applier, c.logger, "kafka", message.Value)
		if settled {
			if err != nil {
				c.logger.Warn("dropping status report",
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
			}
			session.MarkMessage(message, "")
			return nil
		}
		lastErr = err

		c.logger.Warn("status report failed, retrying",
			"partition", message.Partition,
			"offset", message.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: partition %d offset %d: %v", errUnsettled, message.Partition, message.Offset, lastErr)
}
