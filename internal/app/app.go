// Package app assembles a running stockledger instance from configuration:
// the store and service plus every configured sink.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stockledger/internal/archive"
	"stockledger/internal/config"
	"stockledger/internal/core"
	"stockledger/internal/infra/journal"
	"stockledger/internal/infra/journal/postgres"
	"stockledger/internal/infra/journal/sqlite"
	"stockledger/internal/infra/notify/kafkabus"
	"stockledger/internal/infra/notify/redisbus"
	"stockledger/internal/logging"
	"stockledger/internal/metrics"
	"stockledger/internal/observability"
	"stockledger/internal/report"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *core.Store
	Service  *core.Service
	Metrics  *metrics.Recorder
	Registry *prometheus.Registry
	Archive  archive.Store
	Exporter *report.Exporter
	Journal  *journal.Mirror

	closers []func(context.Context) error
}

// Option adjusts construction, mainly for tests.
type Option func(*options)

type options struct {
	registry *prometheus.Registry
	version  string
	archive  archive.Store
}

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithVersion sets the service version reported on traces.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithArchive overrides the configured archive store.
func WithArchive(store archive.Store) Option {
	return func(o *options) { o.archive = store }
}

// New builds the application. On error every component opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	a := &App{Config: cfg, Logger: logger, Registry: o.registry}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdown, err := observability.SetupTracing(ctx, cfg.Tracing, o.version)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	a.Metrics, err = metrics.NewRecorder(o.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engine := core.NewDefaultRulesEngine(core.RuleSeverities{
		NegativeStock:         core.Severity(cfg.Rules.NegativeStock),
		OrderStatusTransition: core.Severity(cfg.Rules.OrderStatusTransition),
	})
	a.Store = core.NewStore(
		core.WithRulesEngine(engine),
		core.WithLogger(logger.Named("store")),
		core.WithMetrics(a.Metrics),
	)
	a.Service = core.NewService(a.Store)
	a.attach(a.Metrics.Observe, nil)

	if err := a.openJournal(ctx); err != nil {
		return nil, err
	}
	if err := a.openNotifiers(ctx); err != nil {
		return nil, err
	}

	a.Archive = o.archive
	if a.Archive == nil {
		a.Archive, err = archive.Open(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}
	a.Exporter = report.NewExporter(a.Archive,
		report.WithRecentOrders(cfg.Views.RecentOrders),
		report.WithLogger(logger.Named("report")),
	)

	logger.Info("stockledger ready",
		zap.String("journal", cfg.Journal.Driver),
		zap.String("archive", string(a.Archive.Driver())),
		zap.Bool("redis", cfg.Notify.Redis != nil),
		zap.Bool("kafka", cfg.Notify.Kafka != nil),
	)
	return a, nil
}

func (a *App) openJournal(ctx context.Context) error {
	jopts := []journal.Option{journal.WithLogger(a.Logger.Named("journal"))}
	var (
		m   *journal.Mirror
		err error
	)
	switch a.Config.Journal.Driver {
	case config.JournalSQLite:
		m, err = sqlite.Open(ctx, a.Config.Journal.SQLitePath, jopts...)
	case config.JournalPostgres:
		m, err = postgres.Open(ctx, a.Config.Journal.PostgresDSN, uuid.NewString(), jopts...)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	a.Journal = m
	a.attach(m.Observe, m.Close)
	return nil
}

func (a *App) openNotifiers(ctx context.Context) error {
	if rc := a.Config.Notify.Redis; rc != nil {
		pub, err := redisbus.New(ctx, rc.Addr, rc.Channel, redisbus.WithLogger(a.Logger.Named("redis")))
		if err != nil {
			return err
		}
		a.attach(pub.Observe, pub.Close)
	}
	if kc := a.Config.Notify.Kafka; kc != nil {
		pub := kafkabus.New(kafkabus.NewWriter(kc.Brokers, kc.Topic), kafkabus.WithLogger(a.Logger.Named("kafka")))
		a.attach(pub.Observe, pub.Close)
	}
	return nil
}

// attach subscribes a sink to the store. On Close the sink is unsubscribed
// before closeFn runs, so no transition reaches a closed sink.
func (a *App) attach(observe core.Observer, closeFn func() error) {
	unsubscribe := a.Store.Subscribe(observe)
	a.closers = append(a.closers, func(context.Context) error {
		unsubscribe()
		if closeFn == nil {
			return nil
		}
		return closeFn()
	})
}

// Close releases every component in reverse order of opening and joins
// their errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
