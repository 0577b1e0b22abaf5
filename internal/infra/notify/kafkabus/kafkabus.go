// Package kafkabus publishes transition events to a Kafka topic.
package kafkabus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockledger/internal/core"
	"stockledger/internal/infra/notify"
)

// DefaultTopic is used when none is configured.
const DefaultTopic = "stockledger.transitions"

// Producer is the subset of *kafka.Writer used by the publisher.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a store observer that writes one message per transition,
// keyed by the command kind so a partition sees kinds in dispatch order.
type Publisher struct {
	producer Producer
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger for write failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTimeout bounds each write made from Observe.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewWriter builds a kafka.Writer for brokers and topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// New wraps producer.
func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		timeout:  5 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Message builds the kafka message for tr, injecting the trace context of
// ctx into the headers.
func Message(ctx context.Context, tr core.Transition) (kafka.Message, error) {
	payload, err := notify.Encode(tr)
	if err != nil {
		return kafka.Message{}, err
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	kind := "unknown"
	if tr.Command != nil {
		kind = string(tr.Command.Kind())
	}
	headers := []kafka.Header{
		{Key: "sequence", Value: []byte(strconv.FormatUint(tr.Sequence, 10))},
		{Key: "status", Value: []byte(tr.Outcome.Status)},
	}
	for _, key := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(carrier.Get(key))})
	}
	return kafka.Message{Key: []byte(kind), Value: payload, Headers: headers}, nil
}

// Publish writes the message for tr.
func (p *Publisher) Publish(ctx context.Context, tr core.Transition) error {
	msg, err := Message(ctx, tr)
	if err != nil {
		return err
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write sequence %d: %w", tr.Sequence, err)
	}
	return nil
}

// Observe publishes tr under the dispatch span it carries, logging rather
// than returning failures.
func (p *Publisher) Observe(tr core.Transition) {
	ctx := context.Background()
	if tr.SpanContext.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, tr.SpanContext)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.Publish(ctx, tr); err != nil {
		p.logger.Warn("kafka publish failed", zap.Uint64("sequence", tr.Sequence), zap.Error(err))
	}
}

// Close closes the producer.
func (p *Publisher) Close() error { return p.producer.Close() }
