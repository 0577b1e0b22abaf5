package core_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/core"
)

type recordingMetrics struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingMetrics) ObserveDispatch(_ context.Context, kind core.Kind, status core.Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(kind)+":"+string(status))
}

func mustDispatch(t *testing.T, store *core.Store, cmd core.Command) core.Outcome {
	t.Helper()
	out, err := store.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("dispatch %s: %v", cmd.Kind(), err)
	}
	return out
}

func TestStoreNotifiesObserversInDispatchOrder(t *testing.T) {
	store := core.NewStore()

	var got []core.Transition
	store.Subscribe(func(tr core.Transition) { got = append(got, tr) })

	cmds := []core.Command{
		core.AddProduct{Product: seedProduct("p1", 5, 1, "1.00")},
		core.AddStockMovement{Movement: movement("m1", "p1", core.MovementOut, 2)},
		core.UpdateSupplier{Supplier: core.Supplier{ID: "nobody"}},
	}
	if _, err := store.DispatchAll(context.Background(), cmds...); err != nil {
		t.Fatalf("dispatch all: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(got))
	}
	for i, tr := range got {
		if tr.Sequence != uint64(i+1) || tr.Command.Kind() != cmds[i].Kind() {
			t.Fatalf("transition %d out of order: seq=%d kind=%s", i, tr.Sequence, tr.Command.Kind())
		}
	}
	if got[2].Outcome.Status != core.StatusIgnored {
		t.Fatalf("update of missing supplier should be ignored, got %s", got[2].Outcome.Status)
	}
	if store.Sequence() != 3 {
		t.Fatalf("sequence = %d", store.Sequence())
	}
	p, ok := got[1].State.FindProduct("p1")
	if !ok || p.CurrentStock != 3 {
		t.Fatalf("transition state not post-dispatch: %+v", p)
	}
}

func TestStoreUnsubscribeStopsDelivery(t *testing.T) {
	store := core.NewStore()

	var a, b int
	unsubA := store.Subscribe(func(core.Transition) { a++ })
	store.Subscribe(func(core.Transition) { b++ })

	mustDispatch(t, store, core.AddSupplier{Supplier: core.Supplier{ID: "s1", Name: "Acme"}})
	unsubA()
	unsubA()
	mustDispatch(t, store, core.AddSupplier{Supplier: core.Supplier{ID: "s2", Name: "Bolt"}})

	if a != 1 || b != 2 {
		t.Fatalf("deliveries a=%d b=%d, want 1 and 2", a, b)
	}
}

func TestStoreStateIsASnapshot(t *testing.T) {
	store := core.NewStore()
	mustDispatch(t, store, core.AddProduct{Product: seedProduct("p1", 5, 1, "1.00")})

	snap := store.State()
	snap.Products[0].Name = "mutated"
	snap.Products = append(snap.Products, seedProduct("p2", 1, 1, "1.00"))

	fresh := store.State()
	if len(fresh.Products) != 1 || fresh.Products[0].Name != "Product p1" {
		t.Fatalf("snapshot mutation leaked into store: %+v", fresh.Products)
	}
}

func TestStoreRejectsBlockingViolationWithoutNotifying(t *testing.T) {
	engine := core.NewDefaultRulesEngine(core.RuleSeverities{NegativeStock: core.SeverityBlock})
	metrics := &recordingMetrics{}
	store := core.NewStore(core.WithRulesEngine(engine), core.WithMetrics(metrics))

	mustDispatch(t, store, core.AddProduct{Product: seedProduct("p1", 2, 1, "1.00")})

	notified := 0
	store.Subscribe(func(core.Transition) { notified++ })

	out, err := store.Dispatch(context.Background(), core.AddStockMovement{Movement: movement("m1", "p1", core.MovementOut, 3)})
	if !core.IsRuleViolation(err) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if out.Status != core.StatusRejected || out.Reason != core.ReasonRuleViolation {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if notified != 0 {
		t.Fatalf("rejected dispatch notified %d observers", notified)
	}

	state := store.State()
	if len(state.StockMovements) != 0 || state.Products[0].CurrentStock != 2 {
		t.Fatalf("rejected dispatch changed state: %+v", state)
	}
	if store.Sequence() != 1 {
		t.Fatalf("sequence = %d", store.Sequence())
	}
	want := []string{"add_product:applied", "add_stock_movement:rejected"}
	if !reflect.DeepEqual(metrics.calls, want) {
		t.Fatalf("metrics calls = %v, want %v", metrics.calls, want)
	}
}

func TestStoreNegativeStockWarnsByDefault(t *testing.T) {
	logCore, logs := observer.New(zap.WarnLevel)
	store := newStoreWithLogger(zap.New(logCore))

	mustDispatch(t, store, addProduct("p1", 1))
	out := mustDispatch(t, store, addMovement("m1", "p1", 4))

	if len(out.Result.Violations) != 1 || out.Result.Violations[0].Rule != "negative_stock" {
		t.Fatalf("unexpected violations %+v", out.Result.Violations)
	}
	if n := logs.FilterMessage("rule violation").Len(); n != 1 {
		t.Fatalf("expected one warning log, got %d", n)
	}
}

func TestTerminalStatusExitWarnsOrBlocks(t *testing.T) {
	cancelled := core.SalesOrder{ID: "o1", Status: core.OrderCancelled}
	reopened := core.SalesOrder{ID: "o1", Status: core.OrderPending}

	warnStore := core.NewStore()
	mustDispatch(t, warnStore, core.AddSalesOrder{Order: cancelled})
	out := mustDispatch(t, warnStore, core.UpdateSalesOrder{Order: reopened})
	if out.Status != core.StatusApplied {
		t.Fatalf("warn severity should apply, got %+v", out)
	}
	if len(out.Result.Violations) != 1 || out.Result.Violations[0].Severity != core.SeverityWarn {
		t.Fatalf("unexpected violations %+v", out.Result.Violations)
	}
	if got, _ := warnStore.State().FindSalesOrder("o1"); got.Status != core.OrderPending {
		t.Fatalf("order status = %s", got.Status)
	}

	blockStore := core.NewStore(core.WithRulesEngine(core.NewDefaultRulesEngine(core.RuleSeverities{OrderStatusTransition: core.SeverityBlock})))
	mustDispatch(t, blockStore, core.AddSalesOrder{Order: cancelled})
	out, err := blockStore.Dispatch(context.Background(), core.UpdateSalesOrder{Order: reopened})
	var verr core.RuleViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if out.Status != core.StatusRejected {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got, _ := blockStore.State().FindSalesOrder("o1"); got.Status != core.OrderCancelled {
		t.Fatalf("blocked update changed status to %s", got.Status)
	}
}

func TestStoreWithoutRulesEngineCommitsEverything(t *testing.T) {
	store := core.NewStore(core.WithRulesEngine(nil))
	_, err := store.DispatchAll(context.Background(),
		core.AddProduct{Product: seedProduct("p1", 0, 0, "1.00")},
		core.AddStockMovement{Movement: movement("m1", "p1", core.MovementOut, 5)},
	)
	if err != nil {
		t.Fatalf("dispatch all: %v", err)
	}
	if p, _ := store.State().FindProduct("p1"); p.CurrentStock != -5 {
		t.Fatalf("stock = %d, want -5", p.CurrentStock)
	}
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }
func (failingRule) Evaluate(context.Context, core.RuleView, []core.Change) (core.Result, error) {
	return core.Result{}, errors.New("boom")
}

func TestStoreRuleErrorRejects(t *testing.T) {
	engine := core.NewRulesEngine()
	engine.Register(failingRule{})
	store := core.NewStore(core.WithRulesEngine(engine))

	out, err := store.Dispatch(context.Background(), core.AddSupplier{Supplier: core.Supplier{ID: "s1"}})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
	if out.Status != core.StatusRejected || len(store.State().Suppliers) != 0 {
		t.Fatalf("rule error must reject without committing: %+v", out)
	}
}

func TestStoreTransitionCarriesDispatchSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("test")
	store := core.NewStore(core.WithTracer(tracer))

	var got core.Transition
	store.Subscribe(func(tr core.Transition) { got = tr })

	ctx, parent := tracer.Start(context.Background(), "caller")
	if _, err := store.Dispatch(ctx, core.AddSupplier{Supplier: core.Supplier{ID: "s1", Name: "Acme"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	parent.End()

	if !got.SpanContext.IsValid() {
		t.Fatalf("transition carries no span context")
	}
	if got.SpanContext.TraceID() != parent.SpanContext().TraceID() {
		t.Fatalf("dispatch span not in caller trace: %s vs %s", got.SpanContext.TraceID(), parent.SpanContext().TraceID())
	}
	if got.SpanContext.SpanID() == parent.SpanContext().SpanID() {
		t.Fatalf("expected the store.dispatch child span, got the caller span")
	}
}

func TestStoreConcurrentDispatchIsSerialised(t *testing.T) {
	store := core.NewStore()
	ctx := context.Background()
	mustDispatch(t, store, addProduct("p1", 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Dispatch(ctx, core.AddStockMovement{Movement: movement(fmt.Sprintf("m%d", i), "p1", core.MovementIn, 1)})
		}(i)
	}
	wg.Wait()

	state := store.State()
	p, _ := state.FindProduct("p1")
	if p.CurrentStock != 50 || len(state.StockMovements) != 50 {
		t.Fatalf("lost updates: stock=%d movements=%d", p.CurrentStock, len(state.StockMovements))
	}
}

func newStoreWithLogger(logger *zap.Logger) *core.Store {
	return core.NewStore(core.WithLogger(logger))
}

func addProduct(id string, stock int) core.Command {
	return core.AddProduct{Product: seedProduct(id, stock, 0, "1.00")}
}

func addMovement(id, productID string, out int) core.Command {
	return core.AddStockMovement{Movement: movement(id, productID, core.MovementOut, out)}
}
