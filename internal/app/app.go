package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tradepulse/internal/config"
	"tradepulse/internal/dataprocessing"
	apierrors "tradepulse/internal/errors"
	"tradepulse/internal/exporter"
	"tradepulse/internal/files"
	"tradepulse/internal/infrastructure"
	customMiddleware "tradepulse/internal/middleware"
	"tradepulse/internal/services"
	"tradepulse/internal/sources"
	handlers "tradepulse/internal/transport/http"
)

// BuildTime is set at link time with -ldflags "-X tradepulse/internal/app.BuildTime=..."
var BuildTime = ""

// Application represents the main application container
type Application struct {
	Config          *config.Config
	Router          *chi.Mux
	Server          *http.Server
	Logger          *slog.Logger
	OTelProviders   *infrastructure.OTelProviders
	Metrics         *infrastructure.AnalysisMetrics
	Store           *files.Store
	Sheets          *sources.SheetFetcher
	AnalysisService *services.AnalysisService
	HealthService   *services.HealthService
	ErrorHandler    *apierrors.ErrorHandler

	listener net.Listener
}

// NewApplication loads configuration and builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New wires every component from cfg. It does not start the server.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFromTelemetry(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateAnalysisMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices builds the store, sheet fetcher and services
func (a *Application) initializeServices() error {
	loc, err := a.Config.Analysis.LoadLocation()
	if err != nil {
		return fmt.Errorf("failed to load analysis timezone: %w", err)
	}

	store, err := files.NewStore(a.Config.Storage.DataDir, a.Config.Storage.ManifestName, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open workbook store: %w", err)
	}
	a.Store = store

	fetcher, err := sources.NewSheetFetcher(context.Background(), a.Config.Sheets,
		sources.WithFetcherLogger(a.Logger),
		sources.WithFetcherTracer(a.OTelProviders.Tracer),
		sources.WithFetcherMetrics(a.Metrics),
		sources.WithMaxBytes(a.Config.Server.MaxUploadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize sheet fetcher: %w", err)
	}
	a.Sheets = fetcher

	parser := dataprocessing.NewParser(
		dataprocessing.WithParserLogger(a.Logger),
		dataprocessing.WithLocation(loc),
	)
	aggregator := dataprocessing.NewAggregator(
		dataprocessing.WithAggregatorLocation(loc),
		dataprocessing.WithWeekdayLocale(a.Config.Analysis.Locale),
	)

	a.AnalysisService = services.NewAnalysisService(services.AnalysisDeps{
		Parser:      parser,
		Aggregator:  aggregator,
		Store:       store,
		Sheets:      fetcher,
		CSV:         exporter.NewCSVWriter(a.Logger),
		Tracer:      a.OTelProviders.Tracer,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Concurrency: a.Config.Analysis.BatchConcurrency,
		PreviewRows: a.Config.Analysis.PreviewRows,
	})

	a.HealthService = services.NewHealthService(config.AppVersion, BuildTime,
		a.Config.Storage.DataDir, store, fetcher, a.Logger)

	a.Logger.Info("Services initialized",
		slog.String("data_dir", a.Config.Storage.DataDir),
		slog.String("timezone", loc.String()),
		slog.String("locale", a.Config.Analysis.Locale),
		slog.String("sheets_method", fetcher.Method()))
	return nil
}

// setupRouter builds the middleware chain and mounts every route.
// Order: RequestID, RealIP, OTel, Logger, Recoverer, then the API group.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		a.setupAPIRoutes(r)
	})

	// Prometheus scrapes bypass CORS and rate limiting
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.ErrorHandler, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.Stats)

			r.Post("/client-log", handlers.NewClientLogHandler(a.Logger, a.ErrorHandler).Handle)
		})

		// Parsing and sheet downloads get the longer analysis timeout
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.AnalysisTimeout))

			analysisHandler := handlers.NewAnalysisHandler(a.AnalysisService, a.Logger, a.ErrorHandler, a.Config.Server.MaxUploadBytes)
			r.Mount("/files", analysisHandler.FileRoutes())
			r.Mount("/analysis", analysisHandler.AnalysisRoutes())
		})
	})
}

// getCORSConfig allows the configured origins
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start binds the listener and serves in the background. A serve error
// cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.Server.Addr
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return infrastructure.CloseLogFile()
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// The run context may already be cancelled; shutdown gets a fresh one.
	return a.Stop(context.Background())
}

// performStartupHealthCheck verifies the data and log directories are writable
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	dirs := map[string]string{
		"Data": a.Config.Storage.DataDir,
	}
	if a.Config.Logging.Output != "stdout" {
		dirs["Logs"] = filepath.Dir(a.Config.Logging.FilePath)
	}

	var warnings []error
	for name, dir := range dirs {
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
			warnings = append(warnings, fmt.Errorf("%s directory not writable: %s", name, dir))
			continue
		}
		os.Remove(testFile)
	}

	if a.Config.Sheets.APIKey == "" {
		a.Logger.InfoContext(ctx, "Sheets API key not set, using public export URLs",
			slog.String("export_base_url", a.Config.Sheets.ExportBaseURL))
	}

	if len(warnings) > 0 {
		return errors.Join(warnings...)
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}
