package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// KafkaConfig holds the consumer group settings
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	GroupID string
	Topic   string
}

// KafkaConsumer reads frame events from a topic and feeds them to a frame
// consumer one at a time, marking each message after it was handled.
type KafkaConsumer struct {
	group    sarama.ConsumerGroup
	topic    string
	decoder  *Decoder
	consumer pipeline.FrameConsumer
	logger   log.Logger
}

// NewKafkaConsumer joins the consumer group
func NewKafkaConsumer(cfg KafkaConfig, decoder *Decoder, consumer pipeline.FrameConsumer, logger log.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	// Stale frames are useless for a live hold window
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaConsumer{
		group:    group,
		topic:    cfg.Topic,
		decoder:  decoder,
		consumer: consumer,
		logger:   logger,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining the group after errors
func (c *KafkaConsumer) Run(ctx context.Context) {
	handler := &claimHandler{decoder: c.decoder, consumer: c.consumer, logger: c.logger}
	retryDelay := 5 * time.Second

	for {
		c.logger.Infof(ctx, "[Kafka] Joining group for topic %s", c.topic)
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Errorf(ctx, "[Kafka] Consume error: %v, retrying in %v", err, retryDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			c.logger.Info(ctx, "[Kafka] Context cancelled, stopping")
			return
		}
	}
}

// Close leaves the consumer group
func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

// claimHandler implements sarama.ConsumerGroupHandler
type claimHandler struct {
	decoder  *Decoder
	consumer pipeline.FrameConsumer
	logger   log.Logger
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(ctx, msg)
			sess.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// handle never fails the claim; a bad message is logged and skipped
func (h *claimHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	ev, err := h.decoder.Decode(ctx, msg.Value)
	if err != nil {
		h.logger.Warnf(ctx, "[Kafka] Skipping message %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		return
	}
	// A rebalance cancels the session context; the frame already in flight
	// still finishes its alert.
	h.consumer.OnFrame(context.WithoutCancel(ctx), ev)
}
