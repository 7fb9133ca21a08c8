package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/pdf"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/logsink"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer/httpocr"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer/pdftext"
	"github.com/kirillkom/docflow/internal/infrastructure/recognizer/synthetic"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/bolt"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics

	// Bus is nil unless EVENTS_BACKEND=nats.
	Bus *nats.Bus

	Documents ports.DocumentRepository
	UploadUC  *usecase.UploadUseCase
	AnalyzeUC *usecase.AnalyzeUseCase
	LookupUC  *usecase.LookupUseCase
	BatchUC   *usecase.BatchUseCase

	closers []func()
}

type repositories struct {
	docs     ports.DocumentRepository
	analyses ports.AnalysisRepository
	batches  ports.BatchRepository
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	app.Metrics = metrics.NewPipelineMetrics(service, app.Registry)

	repos, err := app.openRepositories(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Documents = repos.docs

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	events, err := app.openEvents()
	if err != nil {
		app.Close()
		return nil, err
	}

	ruleset := analysis.DefaultRuleset()
	if cfg.RulesetPath != "" {
		ruleset, err = analysis.LoadRuleset(cfg.RulesetPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("load ruleset: %w", err)
		}
	}
	pipeline, err := analysis.NewPipeline(ruleset, func() time.Time { return time.Now().UTC() })
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init analysis pipeline: %w", err)
	}

	recognizerExec := resilience.NewExecutor(resiliencePolicy(cfg), logger)
	var engine ports.Recognizer = synthetic.New()
	switch cfg.RecognizerBackend {
	case config.RecognizerPDFText:
		engine = pdftext.New(storage, engine, logger)
	case config.RecognizerHTTP:
		engine = pdftext.New(storage, httpocr.New(cfg.OCRURL, storage, cfg.OCRTimeout), logger)
	case config.RecognizerSynthetic:
	default:
		app.Close()
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.RecognizerBackend)
	}
	engine = recognizer.NewResilient(engine, recognizerExec)

	app.UploadUC = usecase.NewUploadUseCase(repos.docs, storage, pdf.NewPageCounter(), events, logger, cfg.MaxUploadSize)
	app.AnalyzeUC = usecase.NewAnalyzeUseCase(repos.docs, repos.analyses, engine, pipeline, events, app.Metrics, logger)
	app.LookupUC = usecase.NewLookupUseCase(repos.docs, repos.analyses)
	app.BatchUC = usecase.NewBatchUseCase(repos.batches, repos.docs, app.AnalyzeUC, app.Metrics, logger, usecase.BatchConfig{
		Workers:         cfg.BatchWorkers,
		DocumentTimeout: cfg.BatchDocumentTimeout,
	})

	logger.Info("bootstrap_ready",
		"store_backend", cfg.StoreBackend,
		"events_backend", cfg.EventsBackend,
		"recognizer_backend", cfg.RecognizerBackend,
		"ruleset", ruleset.Jurisdiction.Country,
	)
	return app, nil
}

func (a *App) openRepositories(ctx context.Context) (repositories, error) {
	switch a.Config.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return repositories{}, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return repositories{}, fmt.Errorf("ensure schema: %w", err)
		}
		return repositories{
			docs:     postgres.NewDocumentRepository(db),
			analyses: postgres.NewAnalysisRepository(db),
			batches:  postgres.NewBatchRepository(db),
		}, nil
	case config.StoreBolt:
		store, err := bolt.Open(a.Config.BoltPath)
		if err != nil {
			return repositories{}, fmt.Errorf("open bolt store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return repositories{docs: store.Documents(), analyses: store.Analyses(), batches: store.Batches()}, nil
	case config.StoreMemory:
		return repositories{
			docs:     memory.NewDocumentRepository(),
			analyses: memory.NewAnalysisRepository(),
			batches:  memory.NewBatchRepository(),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unknown store backend %q", a.Config.StoreBackend)
	}
}

func (a *App) openEvents() (ports.EventPublisher, error) {
	switch a.Config.EventsBackend {
	case config.EventsNATS:
		bus, err := nats.Connect(a.Config.NATSURL, nats.Options{
			SubjectPrefix:      a.Config.NATSSubjectPrefix,
			ResilienceExecutor: resilience.NewExecutor(resiliencePolicy(a.Config), a.Logger),
			Logger:             a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.Bus = bus
		a.closers = append(a.closers, bus.Close)
		return bus, nil
	case config.EventsLog:
		return logsink.New(a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", a.Config.EventsBackend)
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Retry.Attempts = cfg.ResilienceRetryAttempts
	policy.Retry.InitialBackoff = cfg.ResilienceRetryInitialBackoff
	policy.Retry.MaxBackoff = cfg.ResilienceRetryMaxBackoff
	policy.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		policy.Breaker.MinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	policy.Breaker.FailureRatio = cfg.ResilienceBreakerFailureRatio
	policy.Breaker.OpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return policy
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
