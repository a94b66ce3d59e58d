package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"EcoCart/internal/api"
	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/infrastructure/gateway"
	"EcoCart/internal/infrastructure/metrics"
	"EcoCart/internal/infrastructure/parser"
	"EcoCart/internal/infrastructure/session"
	"EcoCart/internal/infrastructure/storage"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
	"EcoCart/internal/progress"
	"EcoCart/internal/scraper"
	"EcoCart/internal/usecase"
)

const cliSession = "cli"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	sessions *usecase.Sessions
	metrics  http.Handler
	closers  []io.Closer
}

// New builds the application graph. External stores are only dialled when configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	recorder := metrics.NewRecorder()
	client := gateway.NewClient(cfg.Gateway,
		gateway.WithObserver(recorder),
		gateway.WithLogger(baseLogger.With("component", "gateway")),
	)

	registry := scraper.NewRegistry()
	registry.Register(scraper.Named("relay", client.Scrape))
	registry.Register(parser.NewProductPageScraper(&http.Client{Timeout: cfg.Gateway.Timeout}, cfg.Scraper.UserAgent, baseLogger.With("component", "scraper.html")))

	strategy, err := registry.Resolve(cfg.Scraper.Strategy)
	if err != nil {
		return nil, err
	}

	lock, err := a.runLock(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	catalog, err := a.catalog(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Scraper:       strategy,
		Rater:         client,
		ImageAnalyzer: client,
		Searcher:      client,
		Catalog:       catalog,
		Observer:      recorder,
		Settings:      usecase.SettingsFromConfig(cfg.Pipeline),
		Logger:        baseLogger.With("component", "pipeline"),
	})

	a.sessions = usecase.NewSessions(pipeline, lock, cfg.Pipeline.Concurrency, cfg.Pipeline.RunTimeout, baseLogger.With("component", "sessions"))
	a.metrics = recorder.Handler()

	baseLogger.Info("application configured",
		"scraper", strategy.Name(),
		"session_store", cfg.Session.Store,
		"catalog", cfg.Catalog.Publish,
		"threshold", cfg.Pipeline.Threshold,
		"alternative_cap", cfg.Pipeline.AlternativeCap,
	)
	return a, nil
}

func (a *Application) runLock(ctx context.Context) (ports.RunLock, error) {
	switch a.cfg.Session.Store {
	case "", "memory":
		return session.NewMemoryLock(), nil
	case "redis":
		lock, client, err := session.NewRedisLock(ctx, a.cfg.Session)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return lock, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", a.cfg.Session.Store)
	}
}

func (a *Application) catalog(ctx context.Context) (ports.CatalogPublisher, error) {
	if !a.cfg.Catalog.Publish {
		return nil, nil
	}
	db, err := storage.Open(ctx, a.cfg.Catalog)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)
	return storage.NewCatalogRepository(db, a.cfg.Catalog.Table, a.logger.With("component", "catalog")), nil
}

// Analyze performs a single run, forwarding progress events to onEvent as they happen.
func (a *Application) Analyze(ctx context.Context, ref domain.ProductReference, onEvent func(domain.ProgressEvent)) (domain.PipelineResult, error) {
	reporter := progress.NewReporter()
	if onEvent != nil {
		reporter.Subscribe(onEvent)
	}
	return a.sessions.Run(ctx, cliSession, ref, reporter)
}

// Handler builds the HTTP API. One-shot runs never touch it, so nothing is
// registered (or printed by gin) unless the API is actually served.
func (a *Application) Handler() http.Handler {
	return a.newServer().Handler()
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	return a.newServer().ListenAndServe(ctx, a.cfg.Server.Addr)
}

func (a *Application) newServer() *api.Server {
	return api.NewServer(a.sessions, a.metrics, a.logger.With("component", "http"))
}

// Close releases external connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
