package kafkabus

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/core"
	"stockledger/internal/infra/notify"
)

type fakeProducer struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisherWritesOneMessagePerTransition(t *testing.T) {
	producer := &fakeProducer{}
	pub := New(producer)

	store := core.NewStore()
	store.Subscribe(pub.Observe)
	_, err := store.DispatchAll(context.Background(),
		core.AddProduct{Product: core.Product{ID: "p1", Name: "Widget", CurrentStock: 4}},
		core.AddStockMovement{Movement: core.StockMovement{ID: "m1", ProductID: "p1", Type: core.MovementIn, Quantity: 2}},
	)
	require.NoError(t, err)
	require.Len(t, producer.msgs, 2)

	msg := producer.msgs[1]
	assert.Equal(t, "add_stock_movement", string(msg.Key))
	assert.Equal(t, "2", header(msg, "sequence"))
	assert.Equal(t, "applied", header(msg, "status"))

	ev, err := notify.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev.Sequence)
	require.Len(t, ev.Changes, 2)

	require.NoError(t, pub.Close())
	assert.True(t, producer.closed)
}

func TestMessageCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	msg, err := Message(ctx, core.Transition{Sequence: 1, Command: core.AddSupplier{}})
	require.NoError(t, err)
	assert.Contains(t, header(msg, "traceparent"), span.SpanContext().TraceID().String())
}

func TestObservePropagatesDispatchSpan(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("test")

	producer := &fakeProducer{}
	pub := New(producer)
	store := core.NewStore(core.WithTracer(tracer))
	store.Subscribe(pub.Observe)

	ctx, span := tracer.Start(context.Background(), "replay")
	_, err := store.Dispatch(ctx, core.AddSupplier{Supplier: core.Supplier{ID: "s1", Name: "Acme"}})
	span.End()
	require.NoError(t, err)
	require.Len(t, producer.msgs, 1)

	traceparent := header(producer.msgs[0], "traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
	assert.NotContains(t, traceparent, span.SpanContext().SpanID().String())
}

func TestObserveLogsWriteErrors(t *testing.T) {
	logCore, logs := observer.New(zap.WarnLevel)
	pub := New(&fakeProducer{err: errors.New("broker down")}, WithLogger(zap.New(logCore)))

	pub.Observe(core.Transition{Sequence: 3, Command: core.AddSupplier{}})
	entries := logs.FilterMessage("kafka publish failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "broker down")
}

func TestNewWriterDefaults(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "")
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.True(t, w.AllowAutoTopicCreation)
}
