// Package main is the entry point for the risk engine API server. It wires
// the external hazard client, the snapshot-backed reuse controller, the
// optional run registry and the batch engine into the HTTP chassis and runs
// it with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"shakerisk/internal/api"
	"shakerisk/internal/cache"
	"shakerisk/internal/config"
	"shakerisk/internal/db"
	"shakerisk/internal/engine"
	"shakerisk/internal/external"
	"shakerisk/internal/risk"
	"shakerisk/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	modelsPath := os.Getenv("VULN_CATALOG_PATH")
	if modelsPath == "" {
		return fmt.Errorf("VULN_CATALOG_PATH must point to the vulnerability model catalog")
	}

	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("risk API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := risk.LoadModelCatalog(modelsPath)
	if err != nil {
		return fmt.Errorf("loading vulnerability catalog: %w", err)
	}

	snapshots, err := cache.NewDiskStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	var (
		registry cache.RunRegistry
		runs     *db.CalcRepository
		probes   = []api.HealthProbe{snapshotProbe{dir: cfg.Cache.Dir}}
	)
	if url := cfg.Database.URL.Unmask(); url != "" {
		pool, poolErr := newPool(ctx, url, cfg.Database)
		if poolErr != nil {
			return fmt.Errorf("connecting run registry: %w", poolErr)
		}
		defer pool.Close()
		repo := db.NewCalcRepository(pool)
		registry = repo
		runs = repo
		probes = append(probes, registryProbe{pool: pool})
	} else {
		logger.Info("run registry disabled, running snapshot-only")
	}

	metrics, err := newMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}

	psha := external.NewPSHAClient(cfg.Hazard.Endpoint, &http.Client{Timeout: cfg.Hazard.Timeout})

	controller, err := cache.NewController(cache.ControllerConfig{
		Calculator: psha,
		Snapshots:  snapshots,
		Registry:   registry,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating hazard controller: %w", err)
	}

	eng, err := engine.New(engine.Config{
		WorkerLimit:   cfg.Engine.WorkerLimit,
		WarnThreshold: cfg.Engine.WarnThreshold,
	}, controller, catalog, metrics, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	srv, err := api.NewServer(cfg, eng, controller, runs, probes, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return serveHTTP(ctx, srv.Handler(), cfg, logger)
}

// serveHTTP runs the HTTP server until the context is cancelled, then shuts
// down gracefully within the configured deadline.
func serveHTTP(ctx context.Context, handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// snapshotProbe reports whether the snapshot directory is reachable.
type snapshotProbe struct {
	dir string
}

func (p snapshotProbe) Name() string { return "snapshots" }

func (p snapshotProbe) Check(_ context.Context) error {
	info, err := os.Stat(p.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", p.dir)
	}
	return nil
}

// registryProbe pings the registry database.
type registryProbe struct {
	pool *pgxpool.Pool
}

func (p registryProbe) Name() string { return "registry" }

func (p registryProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// metricsSink joins the controller-facing and engine-facing metric
// interfaces so one publisher serves both stages.
type metricsSink interface {
	cache.MetricPublisher
	engine.BatchMetrics
}

// newMetrics returns a CloudWatch publisher when metrics are enabled, a
// no-op sink otherwise.
func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metricsSink, error) {
	if !cfg.Observability.EnableMetrics || cfg.Environment == "local" {
		return telemetry.Noop{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	return telemetry.NewPublisher(client, logger), nil
}

// newSecretProvider selects the secret backend before configuration is
// loaded: nil (no SSM) for local development, SSM otherwise.
func newSecretProvider() config.SecretProvider {
	if env := os.Getenv("APP_ENV"); env == "" || env == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// newPool opens the registry connection pool with the configured tuning.
func newPool(ctx context.Context, url string, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = int32(dc.MaxConns)
	pcfg.MinConns = int32(dc.MinConns)
	pcfg.MaxConnLifetime = dc.MaxConnLifetime
	pcfg.HealthCheckPeriod = dc.HealthCheckPeriod
	pcfg.ConnConfig.ConnectTimeout = dc.AcquireTimeout
	return pgxpool.NewWithConfig(ctx, pcfg)
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
