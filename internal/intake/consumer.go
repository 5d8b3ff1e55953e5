// Package intake consumes scraped posts from Kafka and lands them in the
// raw-post table for later batch processing.
package intake

import (
	"context"
	"log/slog"

	"github.com/kazankay/eventpipe/internal/model"
	"github.com/kazankay/eventpipe/pkg/config"
	"github.com/kazankay/eventpipe/pkg/kafka"
	"github.com/kazankay/eventpipe/pkg/logger"
)

// PostSink lands a raw post in durable storage.
type PostSink interface {
	InsertRawPost(ctx context.Context, post model.RawPost) error
}

// Consumer reads raw posts off the intake topic.
type Consumer struct {
	consumer *kafka.Consumer
	sink     PostSink
	logger   *slog.Logger
}

// New creates a Consumer subscribed to the raw-posts topic.
func New(cfg config.KafkaConfig, sink PostSink) *Consumer {
	c := &Consumer{
		sink:   sink,
		logger: logger.WithComponent("intake"),
	}
	c.consumer = kafka.NewConsumer(cfg, cfg.RawPostsTopic, c.handleMessage)
	return c
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close shuts down the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// handleMessage decodes and lands one scraped post. Malformed or invalid
// payloads are dropped with a warning so they do not wedge the partition;
// storage errors are returned so the message stays uncommitted and is
// redelivered.
func (c *Consumer) handleMessage(ctx context.Context, key, value []byte) error {
	post, err := kafka.DecodeJSON[model.RawPost](value)
	if err != nil {
		c.logger.Warn("dropping malformed post message", "key", string(key), "error", err)
		return nil
	}
	if err := post.Validate(); err != nil {
		c.logger.Warn("dropping invalid post",
			"channel", post.Channel, "post_id", post.PostID, "error", err)
		return nil
	}
	if err := c.sink.InsertRawPost(ctx, post); err != nil {
		return err
	}
	c.logger.Info("raw post landed", "channel", post.Channel, "post_id", post.PostID)
	return nil
}
