package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Cache.QuoteTTL)
	assert.Equal(t, time.Hour, cfg.Cache.StockListTTL)
	assert.Equal(t, 3, cfg.Orchestrator.RetryMaxAttempts)
	assert.Greater(t, cfg.Eastmoney.Priority, cfg.Sina.Priority)
}

// TestLoad_YAMLAndEnv はYAMLの値が既定値を上書きし、環境変数がさらに上書きすることを検証します。
func TestLoad_YAMLAndEnv(t *testing.T) {
	t.Setenv("MD_DB_PASSWORD", "from-env")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("WARMUP_CODES", "600000, 000001,,")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "envhost")
	t.Setenv("RUN_MIGRATIONS", "false")

	path := writeFile(t, `
db:
  driver: postgres
  host: db
  port: "5432"
  password: ${MD_DB_PASSWORD}
cache:
  quote_ttl: 15s
orchestrator:
  breaker_threshold: 5
  breaker_cooldown: 1m
sina:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "from-env", cfg.DB.Password)
	assert.Equal(t, "envhost", cfg.DB.Host, "env overrides yaml")
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.False(t, cfg.DB.RunMigrations)
	assert.Equal(t, 15*time.Second, cfg.Cache.QuoteTTL)
	assert.Equal(t, time.Hour, cfg.Cache.StockListTTL, "unset keys keep defaults")
	assert.Equal(t, int64(5), cfg.Orchestrator.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Orchestrator.BreakerCooldown)
	assert.False(t, cfg.Sina.Enabled)
	assert.True(t, cfg.Eastmoney.Enabled)
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, []string{"600000", "000001"}, cfg.Warmup.Codes)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no adapters", yaml: "eastmoney: {enabled: false}\nsina: {enabled: false}\n"},
		{name: "unknown driver", yaml: "db: {driver: oracle}\n"},
		{name: "zero ttl", yaml: "cache: {quote_ttl: 0s}\n"},
		{name: "retry bounds", yaml: "orchestrator: {retry_initial_interval: 1m, retry_max_interval: 1s}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
