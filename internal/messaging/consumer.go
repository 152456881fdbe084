package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrDiscard marks a message that can never be processed, such as one
// whose payload does not decode. Such messages are logged and committed
// instead of stopping the consumer.
var ErrDiscard = errors.New("discard message")

var consumerTracer = otel.Tracer("bookstore/messaging/consumer")

type HandlerFunc func(ctx context.Context, payload []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies only when the group has no committed offset.
	// Zero means kafka.LastOffset.
	StartOffset int64
	// Attempts is how many times a failing message is handed to the
	// handler before Consume gives up on it. Values below 1 mean 1.
	Attempts int
	Backoff  time.Duration
}

type Consumer struct {
	reader   messageReader
	topic    string
	groupID  string
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	start := cfg.StartOffset
	if start == 0 {
		start = kafka.LastOffset
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: start,
		}),
		topic:    cfg.Topic,
		groupID:  cfg.GroupID,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		logger:   logger,
	}
}

// Consume hands each message to handler and commits it once handled.
// Failures are retried in place; after the last attempt Consume returns
// the error and leaves the message uncommitted so it is redelivered.
// ErrDiscard failures are committed immediately.
func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		err = c.handleWithRetry(ctx, msg, handler)
		switch {
		case errors.Is(err, ErrDiscard):
			c.logger.WarnContext(ctx, "discarding message",
				"error", err, "topic", c.topic, "partition", msg.Partition, "offset", msg.Offset)
		case err != nil:
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	attempts := max(c.attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.process(ctx, msg, attempt, handler)
		if err == nil || errors.Is(err, ErrDiscard) || attempt == attempts {
			return err
		}

		c.logger.WarnContext(ctx, "message handling failed, retrying",
			"error", err, "offset", msg.Offset, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, attempt int, handler HandlerFunc) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: &msg})

	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingOperationName("process"),
		semconv.MessagingOperationTypeDeliver,
		semconv.MessagingDestinationName(c.topic),
		semconv.MessagingKafkaConsumerGroup(c.groupID),
		semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
		semconv.MessagingKafkaMessageKey(string(msg.Key)),
		attribute.Int("messaging.delivery.attempt", attempt),
	}
	if eventType := header(msg, HeaderEventType); eventType != "" {
		attrs = append(attrs, attribute.String("cloudevents.event_type", eventType))
	}

	ctx, span := consumerTracer.Start(ctx, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := handler(ctx, msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
