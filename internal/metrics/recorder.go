// Package metrics exports store activity as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stockledger/internal/core"
	"stockledger/internal/views"
)

const namespace = "stockledger"

// Recorder counts dispatches by command kind and outcome status, observes
// dispatch latency and tracks inventory gauges from committed transitions.
type Recorder struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	violations *prometheus.CounterVec
	entities   *prometheus.GaugeVec
	lowStock   prometheus.Gauge
	drift      prometheus.Gauge
	sequence   prometheus.Gauge
}

var _ core.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg. A nil
// registerer leaves the collectors unregistered.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Commands dispatched to the store by kind and outcome status.",
		}, []string{"command", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent reducing, evaluating rules and committing a command.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"command"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_violations_total",
			Help:      "Rule violations attached to committed transitions.",
		}, []string{"rule", "severity"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Records held by the store per entity type.",
		}, []string{"entity"}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_products",
			Help:      "Products at or below their minimum stock level.",
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_drift_products",
			Help:      "Products whose cached stock disagrees with the movement ledger.",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_sequence",
			Help:      "Sequence number of the last committed transition.",
		}),
	}
	if reg != nil {
		for _, c := range r.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{r.dispatches, r.latency, r.violations, r.entities, r.lowStock, r.drift, r.sequence}
}

// ObserveDispatch implements core.MetricsRecorder.
func (r *Recorder) ObserveDispatch(_ context.Context, kind core.Kind, status core.Status, duration time.Duration) {
	r.dispatches.WithLabelValues(string(kind), string(status)).Inc()
	r.latency.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// Observe updates the gauges from a committed transition. Subscribe it to
// the store.
func (r *Recorder) Observe(tr core.Transition) {
	state := tr.State
	r.entities.WithLabelValues(string(core.EntityProduct)).Set(float64(len(state.Products)))
	r.entities.WithLabelValues(string(core.EntitySupplier)).Set(float64(len(state.Suppliers)))
	r.entities.WithLabelValues(string(core.EntityStockMovement)).Set(float64(len(state.StockMovements)))
	r.entities.WithLabelValues(string(core.EntitySalesOrder)).Set(float64(len(state.SalesOrders)))
	r.lowStock.Set(float64(len(views.LowStock(state))))
	r.drift.Set(float64(len(views.LedgerDrift(state))))
	r.sequence.Set(float64(tr.Sequence))
	for _, v := range tr.Outcome.Result.Violations {
		r.violations.WithLabelValues(v.Rule, string(v.Severity)).Inc()
	}
}
