package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/time/rate"

	"github.com/storyhaven/hub/internal/api/handlers"
	"github.com/storyhaven/hub/internal/api/middleware"
	"github.com/storyhaven/hub/internal/config"
	"github.com/storyhaven/hub/internal/embeddings"
	"github.com/storyhaven/hub/internal/observability"
	"github.com/storyhaven/hub/internal/repository"
	"github.com/storyhaven/hub/internal/service"
	"github.com/storyhaven/hub/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg           *config.Config
	db            *pgxpool.Pool
	server        *http.Server
	meterProvider *sdkmetric.MeterProvider
}

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	meterProvider, err := observability.NewMeterProvider(cfg.MetricsEnabled)
	if err != nil {
		return nil, fmt.Errorf("create meter provider: %w", err)
	}

	var (
		embeddingMetrics observability.EmbeddingMetrics
		searchMetrics    observability.SearchMetrics
		cacheMetrics     observability.CacheMetrics
	)

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
		meter := meterProvider.Meter("storyhaven")

		embeddingMetrics, err = observability.NewEmbeddingMetrics(meter)
		if err == nil {
			searchMetrics, err = observability.NewSearchMetrics(meter)
		}

		if err == nil {
			cacheMetrics, err = observability.NewCacheMetrics(meter)
		}

		if err != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after metrics error", "error", err2)
			}

			return nil, fmt.Errorf("create metrics: %w", err)
		}
	} else {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	}

	// Install TraceContextHandler so request_id (and trace_id/span_id when
	// tracing is on) appear in logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	var limiter *rate.Limiter
	if cfg.EmbeddingMaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbeddingMaxRPS), 1)
	}

	embedder := embeddings.NewProvider(embeddings.ProviderParams{
		Runtime:       embeddings.NewOllamaRuntime(cfg.OllamaBaseURL),
		PrimaryModel:  cfg.EmbeddingModel,
		FallbackModel: cfg.EmbeddingFallbackModel,
		CacheDir:      cfg.ModelCacheDir,
		Limiter:       limiter,
		Metrics:       embeddingMetrics,
		Logger:        slog.Default(),
	})

	storiesRepo := repository.NewStoriesRepository(db)

	var queryCache *cache.LoaderCache[[]float32]
	if cfg.QueryCacheSize > 0 {
		queryCache, err = cache.New[[]float32](cfg.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query embedding cache: %w", err)
		}
	}

	storiesService := service.NewStoriesService(storiesRepo, embedder, embeddingMetrics, slog.Default())
	matchService := service.NewMatchService(service.MatchServiceParams{
		Repo:                 storiesRepo,
		Embedder:             embedder,
		QueryCache:           queryCache,
		SearchMetrics:        searchMetrics,
		CacheMetrics:         cacheMetrics,
		Logger:               slog.Default(),
		DefaultTopK:          cfg.SimilarityTopK,
		DefaultMinSimilarity: cfg.MinSimilarity,
	})

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(),
		handlers.NewStoriesHandler(storiesService),
		handlers.NewSearchHandler(matchService),
		meterProvider,
	)

	return &App{
		cfg:           cfg,
		db:            db,
		server:        server,
		meterProvider: meterProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics,
// API key on /v1/). Handler chain: RequestID -> otelhttp(Logging(mux)) so access
// logs get trace context.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	stories *handlers.StoriesHandler,
	search *handlers.SearchHandler,
	meterProvider *sdkmetric.MeterProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	if meterProvider != nil {
		public.Handle("GET /metrics", promhttp.Handler())
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/stories", stories.Create)
	protected.HandleFunc("GET /v1/stories", stories.List)
	protected.HandleFunc("GET /v1/stories/{id}", stories.Get)
	protected.HandleFunc("POST /v1/stories/{id}/approve", stories.Approve)
	protected.HandleFunc("POST /v1/stories/{id}/reject", stories.Reject)
	protected.HandleFunc("POST /v1/stories/search/similar", search.FindSimilar)

	protectedWithAuth := middleware.Auth(cfg.APIKey)(protected)
	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedWithAuth)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	inner := middleware.Logging(mux)
	handler := otelhttp.NewHandler(inner, "storyhaven-api", otelOpts...)
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

// Run starts the HTTP server and blocks until ctx is cancelled (e.g. signal)
// or the server fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the HTTP server gracefully, then flushes metrics and closes
// the database pool.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := observability.ShutdownMeterProvider(ctx, a.meterProvider); err != nil {
		slog.Error("Failed to shutdown meter provider", "error", err)
	}

	a.db.Close()
}
