package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core"
	"stockledger/internal/views"
)

const session = `
name: morning shift
steps:
  - op: add_supplier
    ref: acme
    name: Acme Fasteners
    email: sales@acme.test
  - op: add_product
    ref: bolt
    sku: BLT-10
    name: Bolt M10
    supplier: acme
    price: "0.40"
    stock: 100
    min_stock: 20
  - op: add_product
    ref: nut
    sku: NUT-10
    name: Nut M10
    price: "0.10"
    stock: 15
    min_stock: 10
  - op: record_movement
    product: bolt
    type: in
    quantity: 50
    notes: delivery
  - op: update_product
    product: bolt
    price: "0.45"
  - op: create_order
    ref: first
    notes: counter sale
    lines:
      - product: bolt
        quantity: 30
      - product: nut
        quantity: 10
  - op: create_order
    ref: second
    two_phase: true
    lines:
      - product: nut
        quantity: 1
  - op: complete_order
    order: first
  - op: cancel_order
    order: second
`

func newRunner() *Runner {
	n := 0
	svc := core.NewService(core.NewStore(),
		core.WithIDSource(func() string { n++; return fmt.Sprintf("id-%02d", n) }),
		core.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, n, 0, time.UTC) }),
	)
	return NewRunner(svc)
}

func TestRunSession(t *testing.T) {
	s, err := Parse(strings.NewReader(session))
	require.NoError(t, err)
	assert.Equal(t, "morning shift", s.Name)
	require.Len(t, s.Steps, 9)

	r := newRunner()
	results, err := r.Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, results, 9)
	assert.Len(t, results[6].Outcomes, 2, "two-phase order dispatches order then movement")

	state := r.svc.Store().State()
	bolt, ok := state.FindProduct(r.Resolve("bolt"))
	require.True(t, ok)
	assert.Equal(t, 120, bolt.CurrentStock)
	assert.Equal(t, "0.45", bolt.Price.StringFixed(2))
	require.NotNil(t, bolt.SupplierID)
	assert.Equal(t, r.Resolve("acme"), *bolt.SupplierID)

	nut, _ := state.FindProduct(r.Resolve("nut"))
	assert.Equal(t, 4, nut.CurrentStock)

	first, ok := state.FindSalesOrder(r.Resolve("first"))
	require.True(t, ok)
	assert.Equal(t, core.OrderCompleted, first.Status)
	assert.Equal(t, "14.50", first.TotalAmount.StringFixed(2))

	second, _ := state.FindSalesOrder(r.Resolve("second"))
	assert.Equal(t, core.OrderCancelled, second.Status)

	summary := views.Dashboard(state, views.DefaultRecentOrders)
	assert.Equal(t, 2, summary.TotalProducts)
	assert.Equal(t, 2, summary.TotalSalesOrders)
	require.Len(t, summary.LowStock, 1)
	assert.Equal(t, r.Resolve("nut"), summary.LowStock[0].ID)
}

func TestRunStopsAtFailingStep(t *testing.T) {
	s, err := Parse(strings.NewReader(`
steps:
  - op: add_product
    ref: p
    name: Widget
    stock: 1
  - op: complete_order
    order: nope
  - op: add_supplier
    name: never reached
`))
	require.NoError(t, err)

	r := newRunner()
	results, err := r.Run(context.Background(), s)
	require.Error(t, err)
	assert.Len(t, results, 1)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 2, stepErr.Index)
	assert.Equal(t, OpCompleteOrder, stepErr.Op)
	var nf core.ErrNotFound
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, r.svc.Store().State().Suppliers)
}

func TestRunRejectsBadPrice(t *testing.T) {
	s, err := Parse(strings.NewReader("steps:\n  - op: add_product\n    name: X\n    price: abc\n"))
	require.NoError(t, err)
	_, err = newRunner().Run(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRunRejectsStockOnUpdateProduct(t *testing.T) {
	s, err := Parse(strings.NewReader(`
steps:
  - op: add_product
    ref: p
    name: Widget
    stock: 5
  - op: update_product
    product: p
    stock: 0
`))
	require.NoError(t, err)

	r := newRunner()
	_, err = r.Run(context.Background(), s)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 2, stepErr.Index)
	assert.Equal(t, OpUpdateProduct, stepErr.Op)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, uint64(1), r.svc.Store().Sequence())
	assert.Equal(t, 5, r.svc.Store().State().Products[0].CurrentStock)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("steps:\n  - op: delete_product\n"))
	assert.ErrorContains(t, err, "unknown op")

	_, err = Parse(strings.NewReader("steps:\n  - op: add_supplier\n    colour: red\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty script")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(session), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Steps, 9)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
