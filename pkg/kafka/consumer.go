package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	fetchErrorBackoff   = time.Second
	consumerTracerName  = "github.com/utafrali/storefront/pkg/kafka"
)

// Handler processes one event. A returned error triggers a retry.
type Handler func(ctx context.Context, event *Event) error

// DeadLetterPublisher receives messages that could not be processed.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, original kafka.Message, lastErr error, consumerGroup string) error
}

// messageReader is the part of *kafka.Reader the consumer depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Consumer reads events from one topic as part of a consumer group. Messages
// are committed after successful handling, after being dead-lettered, or when
// they cannot be decoded at all.
type Consumer struct {
	reader    messageReader
	topic     string
	group     string
	handler   Handler
	dlq       DeadLetterPublisher
	logger    *slog.Logger
	retries   int
	backoff   time.Duration
	closeOnce sync.Once
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes poison messages to dlq instead of dropping them.
func WithDeadLetter(dlq DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.dlq = dlq }
}

// NewConsumer creates a consumer for cfg.Topic in group cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		handler: handler,
		logger:  logger,
		retries: cfg.MaxRetries,
		backoff: cfg.RetryBackoff,
	}
	if c.retries <= 0 {
		c.retries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes messages until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("topic", c.topic), slog.String("group", c.group))
	defer func() {
		c.logger.Info("consumer stopping", slog.String("topic", c.topic))
		_ = c.Close()
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("topic", c.topic), slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message and reports whether it should be committed.
// It returns false only when ctx was canceled mid-retry, leaving the message
// for redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ConsumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event", slog.String("topic", msg.Topic), slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, err)
		return true
	}

	ctx = extractTraceContext(ctx, &msg)
	ctx, span := otel.Tracer(consumerTracerName).Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.kafka.consumer.group", c.group),
			attribute.String("event.type", event.EventType),
		),
	)
	defer span.End()

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.retries),
			slog.String("error", lastErr.Error()),
		)
		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	ConsumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		c.logger.ErrorContext(ctx, "handler failed after all retries",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
		c.deadLetter(ctx, msg, lastErr)
		return true
	}

	ConsumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "failed to dead-letter message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}
