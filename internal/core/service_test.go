package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core"
)

func newTestService(t *testing.T, opts ...core.Option) *core.Service {
	t.Helper()
	var n int
	return core.NewService(core.NewStore(opts...),
		core.WithIDSource(func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		}),
		core.WithClock(func() time.Time { return epoch }),
	)
}

func mustAddProduct(t *testing.T, svc *core.Service, name, price string, stock int) core.Product {
	t.Helper()
	p, out, err := svc.AddProduct(context.Background(), core.ProductInput{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		InitialStock:  stock,
		MinStockLevel: 2,
	})
	if err != nil {
		t.Fatalf("add product %s: %v", name, err)
	}
	if out.Status != core.StatusApplied {
		t.Fatalf("add product %s: outcome %+v", name, out)
	}
	return p
}

func TestServiceAddProductValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cases := []core.ProductInput{
		{Name: "", Price: decimal.NewFromInt(1)},
		{Name: "Neg price", Price: decimal.NewFromInt(-1)},
		{Name: "Neg stock", Price: decimal.NewFromInt(1), InitialStock: -1},
	}
	for _, in := range cases {
		if _, _, err := svc.AddProduct(ctx, in); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("input %+v: expected validation error, got %v", in, err)
		}
	}
	if got := len(svc.Store().State().Products); got != 0 {
		t.Fatalf("invalid input reached the store: %d products", got)
	}
}

func TestServiceAddProductRecordsOpeningStock(t *testing.T) {
	svc := newTestService(t)
	p := mustAddProduct(t, svc, "Widget", "2.50", 12)
	if p.ID != "id-001" || p.OpeningStock != 12 || p.CurrentStock != 12 {
		t.Fatalf("unexpected product %+v", p)
	}
	if !p.CreatedAt.Equal(epoch) {
		t.Fatalf("clock not used: %v", p.CreatedAt)
	}
}

func TestServiceOrderTotalUsesCapturedPrices(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "10.00", 10)
	b := mustAddProduct(t, svc, "B", "5.50", 10)

	order, _, err := svc.CreateSalesOrder(ctx, core.OrderDraft{Lines: []core.OrderLine{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 3},
	}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	want := decimal.RequireFromString("36.50")
	if !order.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", order.TotalAmount, want)
	}

	if _, _, err := svc.UpdateProduct(ctx, a.ID, func(p *core.Product) { p.Price = decimal.RequireFromString("99") }); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	stored, _ := svc.Store().State().FindSalesOrder(order.ID)
	if !stored.TotalAmount.Equal(want) || !stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("order followed catalog price change: %+v", stored)
	}
}

func assertOrderCascade(t *testing.T, state core.State, order core.SalesOrder) {
	t.Helper()
	var linked []core.StockMovement
	for _, m := range state.StockMovements {
		if m.OrderID != nil && *m.OrderID == order.ID {
			linked = append(linked, m)
		}
	}
	if len(linked) != len(order.Items) {
		t.Fatalf("expected %d linked movements, got %d", len(order.Items), len(linked))
	}
	for i, item := range order.Items {
		if item.OrderID != order.ID {
			t.Fatalf("item %s not stamped with order id", item.ID)
		}
		m := linked[i]
		if m.Type != core.MovementOut || m.Notes != core.OrderMovementNote(order.ID) {
			t.Fatalf("unexpected order movement %+v", m)
		}
		if m.ProductID != item.ProductID || m.Quantity != item.Quantity {
			t.Fatalf("movement %d (%s x%d) does not match item %s (%s x%d)",
				i, m.ProductID, m.Quantity, item.ID, item.ProductID, item.Quantity)
		}
	}
}

func TestServiceCreateSalesOrderAtomic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "1.00", 10)
	b := mustAddProduct(t, svc, "B", "2.00", 4)

	var transitions []core.Transition
	svc.Store().Subscribe(func(tr core.Transition) { transitions = append(transitions, tr) })

	order, out, err := svc.CreateSalesOrder(ctx, core.OrderDraft{Notes: "walk-in", Lines: []core.OrderLine{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 4},
	}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if out.Status != core.StatusApplied || order.Status != core.OrderPending {
		t.Fatalf("unexpected outcome %+v / status %s", out, order.Status)
	}
	if len(transitions) != 1 {
		t.Fatalf("atomic create should produce one transition, got %d", len(transitions))
	}
	state := transitions[0].State
	assertOrderCascade(t, state, order)

	pa, _ := state.FindProduct(a.ID)
	pb, _ := state.FindProduct(b.ID)
	if pa.CurrentStock != 7 || pb.CurrentStock != 0 {
		t.Fatalf("stock after order: a=%d b=%d", pa.CurrentStock, pb.CurrentStock)
	}
}

func TestServiceCreateSalesOrderTwoPhase(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "1.00", 10)
	b := mustAddProduct(t, svc, "B", "2.00", 4)

	var seen []core.Kind
	svc.Store().Subscribe(func(tr core.Transition) { seen = append(seen, tr.Command.Kind()) })

	order, outcomes, err := svc.CreateSalesOrderTwoPhase(ctx, core.OrderDraft{Lines: []core.OrderLine{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("two-phase create: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(outcomes))
	}
	want := []core.Kind{core.KindAddSalesOrder, core.KindAddStockMovement, core.KindAddStockMovement}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d kind %s, want %s", i, seen[i], want[i])
		}
	}
	assertOrderCascade(t, svc.Store().State(), order)
}

func TestServiceBuildOrderValidation(t *testing.T) {
	svc := newTestService(t)
	a := mustAddProduct(t, svc, "A", "1.00", 10)

	if _, _, err := svc.BuildOrder(core.OrderDraft{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty order: got %v", err)
	}
	if _, _, err := svc.BuildOrder(core.OrderDraft{Lines: []core.OrderLine{{ProductID: a.ID, Quantity: 0}}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("zero quantity: got %v", err)
	}
	var nf core.ErrNotFound
	if _, _, err := svc.BuildOrder(core.OrderDraft{Lines: []core.OrderLine{{ProductID: "nope", Quantity: 1}}}); !errors.As(err, &nf) {
		t.Fatalf("unknown product: got %v", err)
	}
}

func TestServiceQuoteOrderSkipsUnknownProducts(t *testing.T) {
	svc := newTestService(t)
	a := mustAddProduct(t, svc, "A", "1.25", 10)
	got := svc.QuoteOrder([]core.OrderLine{{ProductID: a.ID, Quantity: 4}, {ProductID: "ghost", Quantity: 9}})
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("quote = %s", got)
	}
}

func TestServiceOrderTransitions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "1.00", 10)
	order, _, err := svc.CreateSalesOrder(ctx, core.OrderDraft{Lines: []core.OrderLine{{ProductID: a.ID, Quantity: 2}}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cancelled, _, err := svc.CancelOrder(ctx, order.ID)
	if err != nil || cancelled.Status != core.OrderCancelled {
		t.Fatalf("cancel: %v %+v", err, cancelled)
	}
	p, _ := svc.Store().State().FindProduct(a.ID)
	if p.CurrentStock != 8 {
		t.Fatalf("cancel must not re-credit stock, got %d", p.CurrentStock)
	}

	var invalid core.ErrInvalidTransition
	if _, _, err := svc.CompleteOrder(ctx, order.ID); !errors.As(err, &invalid) {
		t.Fatalf("complete after cancel: got %v", err)
	}
	var nf core.ErrNotFound
	if _, _, err := svc.CompleteOrder(ctx, "missing"); !errors.As(err, &nf) {
		t.Fatalf("complete missing: got %v", err)
	}
}

func TestServiceRecordMovementValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "1.00", 1)

	if _, _, err := svc.RecordMovement(ctx, core.MovementInput{ProductID: a.ID, Type: "SIDEWAYS", Quantity: 1}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("bad type: got %v", err)
	}
	if _, _, err := svc.RecordMovement(ctx, core.MovementInput{ProductID: a.ID, Type: core.MovementIn, Quantity: 0}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("zero quantity: got %v", err)
	}
	m, out, err := svc.RecordMovement(ctx, core.MovementInput{ProductID: a.ID, Type: core.MovementIn, Quantity: 5, Notes: "restock"})
	if err != nil || out.Status != core.StatusApplied {
		t.Fatalf("record movement: %v %+v", err, out)
	}
	if m.Notes != "restock" || m.OrderID != nil {
		t.Fatalf("unexpected movement %+v", m)
	}
	p, _ := svc.Store().State().FindProduct(a.ID)
	if p.CurrentStock != 6 {
		t.Fatalf("stock = %d", p.CurrentStock)
	}
}

func TestServiceSupplierLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.AddSupplier(ctx, core.SupplierInput{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty supplier: got %v", err)
	}
	sup, _, err := svc.AddSupplier(ctx, core.SupplierInput{Name: "Acme", Email: "ops@acme.test"})
	if err != nil {
		t.Fatalf("add supplier: %v", err)
	}
	updated, _, err := svc.UpdateSupplier(ctx, sup.ID, func(s *core.Supplier) { s.Phone = "555-0100" })
	if err != nil || updated.Phone != "555-0100" || updated.Email != "ops@acme.test" {
		t.Fatalf("update supplier: %v %+v", err, updated)
	}
	var nf core.ErrNotFound
	if _, _, err := svc.UpdateSupplier(ctx, "missing", func(*core.Supplier) {}); !errors.As(err, &nf) {
		t.Fatalf("missing supplier: got %v", err)
	}
}

func TestServiceUpdateWithoutMutatorIsValidationError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustAddProduct(t, svc, "A", "1.00", 3)
	sup, _, err := svc.AddSupplier(ctx, core.SupplierInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("add supplier: %v", err)
	}
	before := svc.Store().Sequence()

	if _, _, err := svc.UpdateProduct(ctx, a.ID, nil); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("nil product mutator: got %v", err)
	}
	if _, _, err := svc.UpdateSupplier(ctx, sup.ID, nil); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("nil supplier mutator: got %v", err)
	}
	if got := svc.Store().Sequence(); got != before {
		t.Fatalf("nil mutator reached the store: sequence %d -> %d", before, got)
	}
}
