package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSecretProvider is a SecretProvider backed by an in-memory map.
type fakeSecretProvider struct {
	values map[string]string
	err    error
	calls  int
}

func (p *fakeSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// fakeDeps builds a loaderDeps backed by the given map. Values written via
// setEnv are visible to subsequent lookupEnv calls.
func fakeDeps(env map[string]string) loaderDeps {
	return loaderDeps{
		lookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		setEnv: func(key, value string) error {
			env[key] = value
			return nil
		},
		environ: func() []string {
			entries := make([]string, 0, len(env))
			for k, v := range env {
				entries = append(entries, k+"="+v)
			}
			return entries
		},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PSHA_ENDPOINT", "http://localhost:9090")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "shakerisk", cfg.Service)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9090", cfg.Hazard.Endpoint)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, 0.005, cfg.Engine.LossResolution)
	assert.Equal(t, "midpoint", cfg.Engine.BinRepresentative)
	assert.Equal(t, 8, cfg.Engine.WorkerLimit)
	assert.Equal(t, 256, cfg.Engine.WarnThreshold)
	assert.Equal(t, "/var/lib/shakerisk/hazard", cfg.Cache.Dir)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfigMissingRequiredEndpoint(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfigRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PSHA_ENDPOINT", "http://localhost:9090")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfigRejectsUnparsableValue(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PSHA_ENDPOINT", "http://localhost:9090")
	t.Setenv("WORKER_LIMIT", "many")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadConfigLocalSkipsSSMResolution(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PSHA_ENDPOINT", "http://localhost:9090")
	t.Setenv("DATABASE_URL_SSM_PARAM", "/local/shakerisk/database/url")

	// A nil provider would fail resolution, so success proves the skip.
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.URL.Unmask())
}

func TestResolveSSMParamsRequiresProvider(t *testing.T) {
	deps := fakeDeps(map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shakerisk/database/url",
	})

	err := resolveSSMParams(nil, deps)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "DATABASE_URL")
}

func TestResolveSSMParamsEnvOverridesSSM(t *testing.T) {
	deps := fakeDeps(map[string]string{
		"DATABASE_URL":           "postgres://direct:5432/risk",
		"DATABASE_URL_SSM_PARAM": "/prod/shakerisk/database/url",
	})

	provider := &fakeSecretProvider{values: map[string]string{}}

	// The target is already set, so the provider must never be called.
	err := resolveSSMParams(provider, deps)
	require.NoError(t, err)
	assert.Zero(t, provider.calls)
}

func TestResolveSSMParamsInjectsResolvedValues(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shakerisk/database/url",
	}
	deps := fakeDeps(env)

	provider := &fakeSecretProvider{values: map[string]string{
		"/prod/shakerisk/database/url": "postgres://resolved:5432/risk",
	}}

	err := resolveSSMParams(provider, deps)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "postgres://resolved:5432/risk", env["DATABASE_URL"])
}

func TestResolveSSMParamsReportsMissingParameters(t *testing.T) {
	deps := fakeDeps(map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shakerisk/database/url",
	})

	provider := &fakeSecretProvider{values: map[string]string{}}

	err := resolveSSMParams(provider, deps)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "DATABASE_URL")
}

func TestResolveSSMParamsWrapsProviderFailure(t *testing.T) {
	deps := fakeDeps(map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shakerisk/database/url",
	})

	boom := errors.New("ssm unreachable")
	provider := &fakeSecretProvider{err: boom}

	err := resolveSSMParams(provider, deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestResolveSSMParamsIgnoresEmptyPath(t *testing.T) {
	deps := fakeDeps(map[string]string{
		"DATABASE_URL_SSM_PARAM": "",
	})

	err := resolveSSMParams(nil, deps)
	require.NoError(t, err)
}

func TestConfigErrorFormat(t *testing.T) {
	withErr := &ConfigError{Type: ErrParsing, Message: "bad value", Err: errors.New("strconv")}
	assert.Equal(t, "[PARSING_FAILED] bad value: strconv", withErr.Error())

	withoutErr := &ConfigError{Type: ErrMissingEnv, Message: "APP_ENV not set"}
	assert.Equal(t, "[MISSING_ENV] APP_ENV not set", withoutErr.Error())
}
