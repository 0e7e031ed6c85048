package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/strainlens/hub/internal/api/handlers"
	"github.com/strainlens/hub/internal/api/middleware"
	"github.com/strainlens/hub/internal/clip"
	"github.com/strainlens/hub/internal/config"
	"github.com/strainlens/hub/internal/jobs"
	"github.com/strainlens/hub/internal/match"
	"github.com/strainlens/hub/internal/observability"
	"github.com/strainlens/hub/internal/openai"
	"github.com/strainlens/hub/internal/repository"
	"github.com/strainlens/hub/internal/resolve"
	"github.com/strainlens/hub/internal/service"
	"github.com/strainlens/hub/internal/vision"
	"github.com/strainlens/hub/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	runWorkers     bool
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

// setupMetrics creates meter provider and scan metrics when metrics are enabled.
// When NewMeterProvider returns nil (unsupported or disabled exporter), returns (nil, nil, nil) (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *observability.Metrics, error) {
	mp, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("scanhub"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		scanMetrics  observability.ScanMetrics
		cacheMetrics observability.CacheMetrics
		httpMetrics  observability.HTTPMetrics
	)
	if metrics != nil {
		scanMetrics = metrics.Scans
		cacheMetrics = metrics.Cache
		httpMetrics = metrics.HTTP
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	scansRepo, err := repository.NewScansRepository(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("create scans repository: %w", err)
	}

	strainsRepo := repository.NewStrainsRepository(db)

	embedder := clip.NewClient(cfg.EmbedderURL,
		clip.WithDimensions(cfg.EmbeddingDim),
		clip.WithAPIKey(cfg.EmbedderAPIKey),
	)

	libraryProvider := service.NewLibraryProvider(strainsRepo, cfg.LibraryCacheSize, cfg.LibraryCacheTTL, cacheMetrics)

	riverWorkers := river.NewWorkers()

	// RIVER_ENABLED controls whether this process works pipeline jobs. Scans
	// are always enqueued; with River disabled another process must work them.
	if cfg.RiverEnabled {
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required when RIVER_ENABLED is true")
		}

		visionClient, err := vision.NewClient(ctx, cfg.GeminiAPIKey, vision.WithModel(cfg.VisionModel))
		if err != nil {
			return nil, fmt.Errorf("create vision client: %w", err)
		}

		var summarizer service.Summarizer
		if cfg.OpenAIAPIKey != "" {
			summarizer = openai.NewClient(cfg.OpenAIAPIKey, openai.WithModel(cfg.SummaryModel))
			slog.Info("scan summaries enabled", "model", cfg.SummaryModel)
		} else {
			slog.Info("scan summaries disabled (OPENAI_API_KEY not set)")
		}

		pipeline := service.NewPipelineService(service.PipelineServiceParams{
			Scans:      scansRepo,
			Library:    libraryProvider,
			Embedder:   embedder,
			Vision:     visionClient,
			Matcher:    match.NewEngine(match.Params{TextBoost: cfg.MatchTextBoost, TopK: cfg.MatchTopK}),
			Resolver:   resolve.NewResolver(cfg.VisualThreshold),
			Summarizer: summarizer,
			Limiter:    rate.NewLimiter(rate.Limit(cfg.PipelineRateLimit), 1),
			Metrics:    scanMetrics,
			Logger:     slog.Default(),
		})

		river.AddWorker(riverWorkers, workers.NewScanPipelineWorker(pipeline, slog.Default()))
		river.AddWorker(riverWorkers, workers.NewReferenceEmbeddingWorker(embedder, strainsRepo, slog.Default()))
	}

	riverCfg := &river.Config{
		ErrorHandler: jobs.NewErrorHandler(slog.Default()),
		MaxAttempts:  cfg.RiverMaxRetries,
	}
	if cfg.RiverEnabled {
		riverCfg.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverWorkers},
		}
		riverCfg.Workers = riverWorkers
	}

	riverClient, err := river.NewClient(riverpgxv5.New(db), riverCfg)
	if err != nil {
		if tracerProvider != nil {
			if err2 := observability.ShutdownTracerProvider(context.Background(), tracerProvider); err2 != nil {
				slog.Error("shutdown tracer provider after River client error", "error", err2)
			}
		}

		if meterProvider != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after River client error", "error", err2)
			}
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	scansService := service.NewScansService(service.ScansServiceParams{
		Repo:    scansRepo,
		Jobs:    jobs.NewRiverJobInserter(riverClient),
		Metrics: scanMetrics,
		Logger:  slog.Default(),
	})

	strainsService := service.NewStrainsService(service.StrainsServiceParams{
		Repo:     strainsRepo,
		Embedder: embedder,
		Library:  libraryProvider,
	})

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(),
		handlers.NewScansHandler(scansService),
		handlers.NewStrainsHandler(strainsService),
		httpMetrics,
		meterProvider, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		runWorkers:     cfg.RiverEnabled,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, API key on /v1/).
// Handler chain: RequestID -> otelhttp -> Metrics -> mux, with Auth -> MaxBody on /v1/
// so access metrics get trace context and body limits apply only past authentication.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	scans *handlers.ScansHandler,
	strains *handlers.StrainsHandler,
	httpMetrics observability.HTTPMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/scans", scans.Create)
	protected.HandleFunc("GET /v1/scans", scans.List)
	protected.HandleFunc("GET /v1/scans/count", scans.Count)
	protected.HandleFunc("GET /v1/scans/{id}", scans.Get)

	protected.HandleFunc("POST /v1/strains", strains.Create)
	protected.HandleFunc("GET /v1/strains", strains.List)
	protected.HandleFunc("GET /v1/strains/{id}", strains.Get)
	protected.HandleFunc("POST /v1/strains/{id}/references", strains.AddReference)
	protected.HandleFunc("DELETE /v1/strains/{id}", strains.Delete)

	var protectedHandler http.Handler = protected
	protectedHandler = middleware.MaxBody(cfg.MaxRequestBodyBytes, httpMetrics)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedHandler)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Metrics runs inside otelhttp so r.Context() has the span when we record.
	inner := middleware.Metrics(httpMetrics)(mux)
	handler := otelhttp.NewHandler(inner, "scanhub-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and, when workers are enabled, River. It blocks
// until ctx is cancelled (e.g. signal) or a component fails. Caller should then
// call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.runWorkers {
		go func() {
			if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case runErr <- fmt.Errorf("river: %w", err):
				default:
				}
			}
		}()
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port, "workers_enabled", a.runWorkers)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when
// server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if a.runWorkers {
			if stopErr := a.river.Stop(ctx); stopErr != nil {
				slog.Error("river stop during server shutdown", "error", stopErr)
			}
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.runWorkers {
		if err = a.river.Stop(ctx); err != nil {
			return fmt.Errorf("river stop: %w", err)
		}
	}

	return nil
}
