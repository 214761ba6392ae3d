// Package app wires the verification engine from configuration. Both the
// HTTP server and the reverify CLI build their object graph here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"bobinator/internal/platform/config"
	"bobinator/internal/platform/database"
	"bobinator/internal/platform/health"
	"bobinator/internal/platform/kafka/producer"
	"bobinator/internal/platform/redis"
	"bobinator/internal/verification/batch"
	"bobinator/internal/verification/events"
	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/cache"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
	"bobinator/internal/verification/registry/providers/northcarolina"
	"bobinator/internal/verification/registry/providers/virginia"
	"bobinator/internal/verification/registry/search"
	"bobinator/internal/verification/service"
	"bobinator/internal/verification/store"
	"bobinator/internal/verification/tracer"
)

// App holds the wired components. Close releases every connection Build opened.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Store        service.Store
	Registry     *providers.Registry
	Verification *service.Service
	Search       *search.Service
	Batch        *batch.Runner
	Health       *health.Handler

	// Redis is nil when the in-process search cache is used.
	Redis *redis.Client

	closers []func() error
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer sets where metrics are registered. Defaults to the global registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// Build connects to every configured backend and falls back to in-memory
// implementations for the ones left unset.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewWith(o.registerer),
		Health:  health.New(cfg.Environment),
	}

	st, err := a.buildStore(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Store = st

	searchCache, err := a.buildCache(ctx)
	if err != nil {
		return nil, a.fail(err)
	}

	publisher, err := a.buildPublisher()
	if err != nil {
		return nil, a.fail(err)
	}

	registry, err := BuildRegistry(cfg.Registry, logger, a.Metrics)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Registry = registry

	tr := tracer.NewOTel()
	a.Verification = service.New(a.Store, registry,
		service.WithLogger(logger),
		service.WithMetrics(a.Metrics),
		service.WithTracer(tr),
		service.WithPublisher(publisher),
	)
	a.Search = search.New(registry, searchCache,
		search.WithLogger(logger),
		search.WithMetrics(a.Metrics),
		search.WithTracer(tr),
	)
	a.Batch = batch.New(a.Verification, a.Store,
		batch.WithConcurrency(cfg.Reverify.Concurrency),
		batch.WithLogger(logger),
		batch.WithMetrics(a.Metrics),
		batch.WithTracer(tr),
	)
	return a, nil
}

// BuildRegistry creates one rate-limited HTTP client and adapter per jurisdiction.
func BuildRegistry(cfg config.RegistryConfig, logger *slog.Logger, m *metrics.Metrics) (*providers.Registry, error) {
	newClient := func(j providers.Jurisdiction, baseURL string) *client.Client {
		return client.New(client.Config{
			Jurisdiction:  j,
			BaseURL:       baseURL,
			Timeout:       cfg.Timeout,
			MaxRetries:    cfg.MaxRetries,
			RatePerSecond: cfg.RatePerSecond,
			RateBurst:     cfg.RateBurst,
		}, client.WithLogger(logger), client.WithMetrics(m))
	}

	return providers.NewRegistry(
		virginia.New(newClient(providers.JurisdictionVA, cfg.VABaseURL),
			virginia.WithLogger(logger), virginia.WithMetrics(m)),
		northcarolina.New(newClient(providers.JurisdictionNC, cfg.NCBaseURL),
			northcarolina.WithLogger(logger), northcarolina.WithMetrics(m)),
	)
}

func (a *App) buildStore(ctx context.Context) (service.Store, error) {
	pool, err := database.New(ctx, database.DefaultConfig(a.Config.Database.URL))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		a.Logger.Info("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	a.closers = append(a.closers, pool.Close)
	a.Health.RegisterCheck("postgres", pool.Health)

	if err := database.Migrate(ctx, pool.DB()); err != nil {
		return nil, err
	}
	a.Logger.Info("postgres store ready")
	return store.NewPostgres(pool.DB()), nil
}

func (a *App) buildCache(ctx context.Context) (cache.SearchCache, error) {
	ttl := a.Config.SearchCache.TTL
	rc, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return cache.NewMemory(ttl), nil
	}
	a.Redis = rc
	a.closers = append(a.closers, rc.Close)
	a.Health.RegisterCheck("redis", rc.Health)
	a.Logger.Info("redis search cache ready", "ttl", ttl.String())
	return cache.NewRedis(rc.Client, ttl), nil
}

func (a *App) buildPublisher() (events.Publisher, error) {
	if a.Config.Kafka.Brokers == "" {
		return events.NoopPublisher{}, nil
	}
	p, err := producer.New(producer.DefaultConfig(a.Config.Kafka.Brokers), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	a.Health.RegisterCheck("kafka", p.Health)
	a.Logger.Info("publishing verification events", "topic", a.Config.Kafka.Topic)
	return events.NewKafkaPublisher(p, a.Config.Kafka.Topic, a.Logger), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.Logger.Error("cleanup after failed startup", "error", cerr)
	}
	return err
}
