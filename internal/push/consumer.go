package push

import (
	"context"
	"encoding/json"
	"time"

	"staff-sync/internal/models"
	"staff-sync/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer wraps a Kafka reader for the push topic.
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// NewConsumer creates a consumer bound to the push topic.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{reader: reader, logger: util.GetLogger()}
}

// MessageHandler is a function type for handling messages.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages in a loop, dispatching each to the
// handler and committing on success. A handler error skips the commit so
// the message is redelivered.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting push consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Push consumer context cancelled, stopping")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Error fetching push message", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				c.logger.Error("Error handling push message", zap.Error(err))
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Error committing push message", zap.Error(err))
			}
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Sink receives a decoded push payload.
type Sink interface {
	HandlePush(ctx context.Context, msg models.PushMessage) error
}

// Worker drives the consumer and feeds decoded payloads into the sink.
type Worker struct {
	consumer *Consumer
	sink     Sink
	logger   *zap.Logger
}

// NewWorker creates a push worker.
func NewWorker(consumer *Consumer, sink Sink) *Worker {
	return &Worker{consumer: consumer, sink: sink, logger: util.GetLogger()}
}

// Start starts the worker.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting push worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker.
func (w *Worker) Stop() error {
	w.logger.Info("Stopping push worker")
	return w.consumer.Close()
}

func (w *Worker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var push models.PushMessage
	if err := json.Unmarshal(msg.Value, &push); err != nil {
		w.logger.Warn("Discarding undecodable push message", zap.Error(err))
		// Malformed payloads never become decodable; commit and move on.
		return nil
	}
	return w.sink.HandlePush(ctx, push)
}
