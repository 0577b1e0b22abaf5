package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core"
)

func TestRecorderTracksDispatchesAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)

	store := core.NewStore(core.WithMetrics(rec))
	store.Subscribe(rec.Observe)
	ctx := context.Background()

	_, err = store.DispatchAll(ctx,
		core.AddProduct{Product: core.Product{ID: "p1", Name: "Bolt", Price: decimal.NewFromInt(1), CurrentStock: 3, MinStockLevel: 5}},
		core.AddProduct{Product: core.Product{ID: "p2", Name: "Nut", Price: decimal.NewFromInt(1), CurrentStock: 30, MinStockLevel: 5}},
		core.AddStockMovement{Movement: core.StockMovement{ID: "m1", ProductID: "p1", Type: core.MovementOut, Quantity: 4}},
		core.UpdateProduct{Product: core.Product{ID: "missing"}},
	)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.dispatches.WithLabelValues("add_product", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.dispatches.WithLabelValues("update_product", "ignored")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.entities.WithLabelValues("product")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.entities.WithLabelValues("stock_movement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.lowStock))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.drift))
	assert.Equal(t, 4.0, testutil.ToFloat64(rec.sequence))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.violations.WithLabelValues("negative_stock", "warn")))

	count, err := testutil.GatherAndCount(reg, "stockledger_dispatch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}
