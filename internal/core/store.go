package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "stockledger/internal/core"

// Transition is delivered to observers after every committed dispatch.
type Transition struct {
	Sequence uint64
	Command  Command
	Outcome  Outcome
	State    State
	// SpanContext is the store.dispatch span, for sinks that propagate it.
	SpanContext trace.SpanContext
}

// Observer receives transitions synchronously, in dispatch order, on the
// dispatching goroutine. Observers must not call Dispatch.
type Observer func(Transition)

// MetricsRecorder observes every dispatch, including rejected ones.
type MetricsRecorder interface {
	ObserveDispatch(ctx context.Context, kind Kind, status Status, duration time.Duration)
}

type subscription struct {
	id uint64
	fn Observer
}

// Store holds the single state slot and serialises every mutation through
// Reduce. Construct one per process (or per test) and pass it explicitly.
type Store struct {
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     State
	seq       uint64
	observers []subscription
	nextSubID uint64

	engine  *RulesEngine
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithRulesEngine evaluates engine before every commit. A nil engine disables
// rule evaluation.
func WithRulesEngine(engine *RulesEngine) Option {
	return func(s *Store) { s.engine = engine }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the dispatch metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewStore constructs a store with empty collections and the default rules.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:  NewState(),
		engine: NewDefaultRulesEngine(RuleSeverities{}),
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Sequence returns the number of committed transitions so far.
func (s *Store) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.observers {
				if sub.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch applies cmd, evaluates rules over the candidate state, commits it
// and notifies observers. A blocking violation leaves the state untouched,
// returns a rejected outcome with a RuleViolationError and notifies nobody.
func (s *Store) Dispatch(ctx context.Context, cmd Command) (Outcome, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	kind := kindOf(cmd)
	ctx, span := s.tracer.Start(ctx, "store.dispatch", trace.WithAttributes(attribute.String("command.kind", string(kind))))
	defer span.End()
	started := time.Now()

	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()

	next, outcome := Reduce(current, cmd)

	if outcome.Accepted() && s.engine != nil {
		res, err := s.engine.Evaluate(ctx, next, outcome.Changes)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			s.observe(ctx, kind, StatusRejected, started)
			return Outcome{Status: StatusRejected, Reason: ReasonRuleViolation, Detail: err.Error()}, err
		}
		outcome.Result = res
		s.logViolations(kind, res)
		if res.HasBlocking() {
			rejected := Outcome{Status: StatusRejected, Reason: ReasonRuleViolation, Result: res}
			verr := RuleViolationError{Result: res}
			span.SetStatus(codes.Error, verr.Error())
			s.logger.Info("dispatch rejected", zap.String("command", string(kind)), zap.Error(verr))
			s.observe(ctx, kind, StatusRejected, started)
			return rejected, verr
		}
	}

	s.mu.Lock()
	s.state = next
	s.seq++
	transition := Transition{
		Sequence:    s.seq,
		Command:     cmd,
		Outcome:     outcome,
		State:       next.Clone(),
		SpanContext: span.SpanContext(),
	}
	observers := append([]subscription(nil), s.observers...)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("outcome.status", string(outcome.Status)),
		attribute.Int64("store.sequence", int64(transition.Sequence)),
	)
	s.logger.Debug("dispatch",
		zap.Uint64("sequence", transition.Sequence),
		zap.String("command", string(kind)),
		zap.String("status", string(outcome.Status)),
		zap.String("reason", string(outcome.Reason)),
		zap.Int("changes", len(outcome.Changes)),
	)
	s.observe(ctx, kind, outcome.Status, started)

	for _, sub := range observers {
		sub.fn(transition)
	}
	return outcome, nil
}

// DispatchAll dispatches cmds in order and stops at the first error.
func (s *Store) DispatchAll(ctx context.Context, cmds ...Command) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(cmds))
	for _, cmd := range cmds {
		out, err := s.Dispatch(ctx, cmd)
		outcomes = append(outcomes, out)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (s *Store) observe(ctx context.Context, kind Kind, status Status, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDispatch(ctx, kind, status, time.Since(started))
	}
}

func (s *Store) logViolations(kind Kind, res Result) {
	for _, v := range res.Violations {
		if v.Severity != SeverityWarn {
			continue
		}
		s.logger.Warn("rule violation",
			zap.String("command", string(kind)),
			zap.String("rule", v.Rule),
			zap.String("entity", string(v.Entity)),
			zap.String("entity_id", v.EntityID),
			zap.String("message", v.Message),
		)
	}
}

// IsRuleViolation reports whether err carries a blocking rule result.
func IsRuleViolation(err error) bool {
	var target RuleViolationError
	return errors.As(err, &target)
}
