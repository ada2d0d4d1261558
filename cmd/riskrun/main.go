// Package main is the batch runner. It reads a run request (job
// configuration, exposure assets, retrofit economics) and a vulnerability
// model catalog from JSON files, executes the full benefit-cost batch
// through the engine, and writes the result as JSON.
//
// Hazard results are cached in the configured snapshot directory, so
// repeated runs that only change risk-stage parameters skip the external
// hazard computation entirely.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

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
	"shakerisk/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		batchPath  = flag.String("batch", "", "path to the run request JSON (job, assets, economics)")
		modelsPath = flag.String("models", "", "path to the vulnerability model catalog JSON")
		outPath    = flag.String("out", "", "write the batch result to this file instead of stdout")
	)
	flag.Parse()

	if *batchPath == "" || *modelsPath == "" {
		return fmt.Errorf("both -batch and -models are required")
	}

	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("batch runner starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"cache_dir", cfg.Cache.Dir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var req api.RunRequest
	raw, err := os.ReadFile(*batchPath)
	if err != nil {
		return fmt.Errorf("reading run request: %w", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parsing run request: %w", err)
	}
	applyRiskDefaults(&req.Job.Risk, cfg.Engine)

	catalog, err := risk.LoadModelCatalog(*modelsPath)
	if err != nil {
		return fmt.Errorf("loading vulnerability catalog: %w", err)
	}

	snapshots, err := cache.NewDiskStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	var registry cache.RunRegistry
	if url := cfg.Database.URL.Unmask(); url != "" {
		pool, poolErr := newPool(ctx, url, cfg.Database)
		if poolErr != nil {
			return fmt.Errorf("connecting run registry: %w", poolErr)
		}
		defer pool.Close()
		registry = db.NewCalcRepository(pool)
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

	econ := make(map[string]*types.RetrofitEconomics, len(req.Economics))
	for i := range req.Economics {
		econ[req.Economics[i].AssetID] = &req.Economics[i]
	}

	result, err := eng.Run(ctx, req.Job, req.Assets, econ)
	if err != nil {
		return fmt.Errorf("running batch: %w", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	encoded = append(encoded, '\n')

	if *outPath != "" {
		if err := os.WriteFile(*outPath, encoded, 0o644); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	} else if _, err := os.Stdout.Write(encoded); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	return nil
}

// applyRiskDefaults fills unset risk parameters from the engine
// configuration so run files only need to state what they change.
func applyRiskDefaults(rp *types.RiskParams, ec config.EngineConfig) {
	if rp.LossResolution == 0 {
		rp.LossResolution = ec.LossResolution
	}
	if rp.BinRepresentative == "" {
		rp.BinRepresentative = types.BinRepresentative(ec.BinRepresentative)
	}
	if !rp.StrictValidation {
		rp.StrictValidation = ec.StrictValidation
	}
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
