package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.close.com/api/v1", cfg.Close.BaseURL)
	assert.Equal(t, "https://api.apollo.io/v1", cfg.Apollo.BaseURL)
	assert.Equal(t, 1000, cfg.Apollo.RateLimitMillis)
	assert.Equal(t, 5, cfg.Apollo.BreakerFailures)
	assert.Equal(t, 30, cfg.Apollo.BreakerCooldown)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 7, cfg.Anthropic.MinConfidence)
	assert.Equal(t, 4, cfg.Enrich.Concurrency)
	assert.Equal(t, 6, cfg.Enrich.ContactTarget)
	assert.Equal(t, 6, cfg.Enrich.UnlockBudget)
	assert.Equal(t, 30, cfg.Enrich.PhoneTimeoutMins)
	assert.Equal(t, 1000, cfg.Enrich.UnlockIntervalMS)
	assert.Equal(t, 2, cfg.Enrich.OrgFallbackLimit)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
close:
  saved_search_id: save_abc123
  fields:
    firm: custom.cf_firm
enrich:
  concurrency: 8
  unlock_budget: 10
  titles:
    - Owner
    - Partner
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/enrich", cfg.Store.DatabaseURL)
	assert.Equal(t, "save_abc123", cfg.Close.SavedSearchID)
	assert.Equal(t, "custom.cf_firm", cfg.Close.Fields.Firm)
	assert.Equal(t, 8, cfg.Enrich.Concurrency)
	assert.Equal(t, 10, cfg.Enrich.UnlockBudget)
	assert.Equal(t, []string{"Owner", "Partner"}, cfg.Enrich.Titles)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Unset keys keep defaults.
	assert.Equal(t, 6, cfg.Enrich.ContactTarget)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ENRICH_APOLLO_KEY", "apollo-secret")
	t.Setenv("ENRICH_CLOSE_KEY", "close-secret")
	t.Setenv("ENRICH_ENRICH_PHONE_TIMEOUT_MINS", "45")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "apollo-secret", cfg.Apollo.Key)
	assert.Equal(t, "close-secret", cfg.Close.Key)
	assert.Equal(t, 45, cfg.Enrich.PhoneTimeoutMins)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile("config.yaml", []byte("store: [not: a map"), 0o600))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
