package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestLoad_DefaultsApplyWithNoOverrides(t *testing.T) {
	cfg, err := Load([]string{"--config", "/nonexistent-config.yaml"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "SIMULATION", cfg.Mode)
	assert.Equal(t, 10, cfg.TickMs)
}

func TestLoad_CLISupersedesEnvAndFile(t *testing.T) {
	env := map[string]string{"MIN_PROFIT_USD": "5"}
	getenv := func(k string) string { return env[k] }

	cfg, err := Load([]string{"--config", "/nonexistent-config.yaml", "--min-profit-usd", "20"}, getenv)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.MinProfitUSD)
}

func TestLoad_EnvSupersedesFileDefaults(t *testing.T) {
	env := map[string]string{"MIN_PROFIT_USD": "5"}
	getenv := func(k string) string { return env[k] }

	cfg, err := Load([]string{"--config", "/nonexistent-config.yaml"}, getenv)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.MinProfitUSD)
}

func TestLoad_InvalidModeFailsValidation(t *testing.T) {
	_, err := Load([]string{"--config", "/nonexistent-config.yaml", "--mode", "BOGUS"}, noEnv)
	require.Error(t, err)
}

func TestLoad_ChainsCSVParsed(t *testing.T) {
	cfg, err := Load([]string{"--config", "/nonexistent-config.yaml", "--chains", "1,10,137"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 10, 137}, cfg.Chains)
}

func TestConfig_OrchestratorConfigProjectsTickInterval(t *testing.T) {
	cfg := Default()
	cfg.TickMs = 25
	oc := cfg.OrchestratorConfig()
	assert.Equal(t, int64(25)*1_000_000, oc.TickInterval.Nanoseconds())
}
