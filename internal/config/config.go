// Package config defines the global configuration structure for the risk
// engine. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails the process immediately
// on startup.
package config

import (
	"time"

	"shakerisk/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the risk engine. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"shakerisk"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Hazard        HazardConfig
	Engine        EngineConfig
	Cache         CacheConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the API binary.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds the calc-run registry connection and pool tuning
// parameters. The URL is optional: without it the registry is disabled and
// the cache controller runs snapshot-only.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS regional configuration for CloudWatch and SSM.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// HazardConfig holds the connection to the external PSHA backend.
type HazardConfig struct {
	Endpoint string        `envconfig:"PSHA_ENDPOINT" validate:"required,url"`
	Timeout  time.Duration `envconfig:"PSHA_TIMEOUT" default:"10m"`
}

// EngineConfig holds the risk-stage tuning parameters. These are the
// batch-level defaults; individual jobs may override them.
type EngineConfig struct {
	LossResolution    float64 `envconfig:"LOSS_RESOLUTION" default:"0.005" validate:"gt=0"`
	BinRepresentative string  `envconfig:"BIN_REPRESENTATIVE" default:"midpoint" validate:"oneof=midpoint right_edge"`
	CoVSamples        int     `envconfig:"COV_SAMPLES" default:"7" validate:"gt=0"`
	WorkerLimit       int     `envconfig:"WORKER_LIMIT" default:"8" validate:"gt=0"`
	WarnThreshold     int     `envconfig:"REALIZATION_WARN_THRESHOLD" default:"256" validate:"gt=0"`
	StrictValidation  bool    `envconfig:"STRICT_VALIDATION" default:"false"`
}

// CacheConfig holds the hazard snapshot store location.
type CacheConfig struct {
	Dir string `envconfig:"CACHE_DIR" default:"/var/lib/shakerisk/hazard"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
