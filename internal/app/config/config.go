// Package config はアプリケーション全体の設定を読み込みます。
// 優先順位は 既定値 < YAMLファイル < 環境変数（.env を含む）です。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketdata_backend/internal/platform/db"
	"marketdata_backend/internal/platform/logging"
	platformredis "marketdata_backend/internal/platform/redis"
)

// Config はアプリケーション設定です。
type Config struct {
	Server       ServerConfig         `yaml:"server"`
	Log          logging.Config       `yaml:"log"`
	DB           db.Config            `yaml:"db"`
	Redis        platformredis.Config `yaml:"redis"`
	Eastmoney    AdapterConfig        `yaml:"eastmoney"`
	Sina         AdapterConfig        `yaml:"sina"`
	Cache        CacheConfig          `yaml:"cache"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator"`
	Warmup       WarmupConfig         `yaml:"warmup"`
}

// ServerConfig はHTTPサーバーの設定です。
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdapterConfig は上流アダプター1つ分の設定です。
type AdapterConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Priority          int           `yaml:"priority"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// CacheConfig はキャッシュ層のTTLと保持期間です。
type CacheConfig struct {
	QuoteTTL            time.Duration `yaml:"quote_ttl"`
	StockListTTL        time.Duration `yaml:"stock_list_ttl"`
	QuoteSnapshotMaxAge time.Duration `yaml:"quote_snapshot_max_age"`
	KlineRetention      time.Duration `yaml:"kline_retention"`
	SnapshotRetention   time.Duration `yaml:"snapshot_retention"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

// OrchestratorConfig は再試行とディスパッチの設定です。
type OrchestratorConfig struct {
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	SingleFlight         bool          `yaml:"single_flight"`
	BreakerThreshold     int64         `yaml:"breaker_threshold"`
	BreakerCooldown      time.Duration `yaml:"breaker_cooldown"`
}

// WarmupConfig は cmd/warmup の設定です。
type WarmupConfig struct {
	Codes             []string      `yaml:"codes"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Lookback          time.Duration `yaml:"lookback"`
}

// Default は既定の設定を返します。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:       logging.DefaultConfig(),
		DB:        db.DefaultConfig(),
		Redis:     platformredis.DefaultConfig(),
		Eastmoney: AdapterConfig{Enabled: true, Priority: 3, Timeout: 10 * time.Second},
		Sina:      AdapterConfig{Enabled: true, Priority: 1, Timeout: 8 * time.Second},
		Cache: CacheConfig{
			QuoteTTL:            30 * time.Second,
			StockListTTL:        time.Hour,
			QuoteSnapshotMaxAge: 5 * time.Minute,
			KlineRetention:      7 * 24 * time.Hour,
			SnapshotRetention:   30 * 24 * time.Hour,
			SweepInterval:       time.Hour,
		},
		Orchestrator: OrchestratorConfig{
			RetryMaxAttempts:     3,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     10 * time.Second,
			SingleFlight:         true,
			BreakerCooldown:      30 * time.Second,
		},
		Warmup: WarmupConfig{
			Codes:             []string{"600000", "600519", "000001", "000858", "300750"},
			Concurrency:       4,
			RequestsPerMinute: 60,
			Lookback:          365 * 24 * time.Hour,
		},
	}
}

// Load は設定を読み込んで検証します。path が空の場合はYAMLを読みません。
// .env が存在すれば環境変数として読み込みます。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// ${VAR} を展開
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv は設定済みの環境変数で値を上書きします。
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
	envString("LOG_OUTPUT", &c.Log.Output)

	envString("DB_DRIVER", &c.DB.Driver)
	envString("DB_USER", &c.DB.User)
	envString("DB_PASSWORD", &c.DB.Password)
	envString("DB_NAME", &c.DB.Name)
	envString("DB_HOST", &c.DB.Host)
	envString("DB_PORT", &c.DB.Port)
	envString("DB_SSLMODE", &c.DB.SSLMode)
	envString("DB_SQLITE_PATH", &c.DB.SQLitePath)
	envString("INSTANCE_CONNECTION_NAME", &c.DB.InstanceName)
	envBool("RUN_MIGRATIONS", &c.DB.RunMigrations)

	envString("REDIS_HOST", &c.Redis.Host)
	envString("REDIS_PORT", &c.Redis.Port)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)

	envBool("EASTMONEY_ENABLED", &c.Eastmoney.Enabled)
	envInt("EASTMONEY_PRIORITY", &c.Eastmoney.Priority)
	envBool("SINA_ENABLED", &c.Sina.Enabled)
	envInt("SINA_PRIORITY", &c.Sina.Priority)

	envDuration("CACHE_QUOTE_TTL", &c.Cache.QuoteTTL)
	envDuration("CACHE_STOCK_LIST_TTL", &c.Cache.StockListTTL)
	envBool("SINGLE_FLIGHT", &c.Orchestrator.SingleFlight)

	if v := os.Getenv("WARMUP_CODES"); v != "" {
		c.Warmup.Codes = splitCodes(v)
	}
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	var errs []error
	if !c.Eastmoney.Enabled && !c.Sina.Enabled {
		errs = append(errs, errors.New("at least one adapter must be enabled"))
	}
	switch c.DB.Driver {
	case db.DriverMySQL, db.DriverPostgres, db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", c.DB.Driver))
	}
	if c.Cache.QuoteTTL <= 0 || c.Cache.StockListTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Orchestrator.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("retry_max_attempts must be at least 1"))
	}
	if c.Orchestrator.RetryInitialInterval > c.Orchestrator.RetryMaxInterval {
		errs = append(errs, errors.New("retry_initial_interval exceeds retry_max_interval"))
	}
	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func splitCodes(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
