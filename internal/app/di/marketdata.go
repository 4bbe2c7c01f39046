// Package di はアプリケーションのコンポーネントを設定から組み立てるファクトリーを提供します。
package di

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketdata_backend/internal/app/config"
	"marketdata_backend/internal/feature/marketdata/adapters"
	"marketdata_backend/internal/feature/marketdata/adapters/eastmoney"
	"marketdata_backend/internal/feature/marketdata/adapters/sina"
	"marketdata_backend/internal/feature/marketdata/transport/handler"
	"marketdata_backend/internal/feature/marketdata/usecase"
	"marketdata_backend/internal/platform/cache"
	"marketdata_backend/internal/platform/db"
	platformhttp "marketdata_backend/internal/platform/http"
	platformhandler "marketdata_backend/internal/platform/http/handler"
	"marketdata_backend/internal/platform/metrics"
	platformredis "marketdata_backend/internal/platform/redis"
	"marketdata_backend/internal/shared/ratelimiter"
)

// MetricsNamespace はPrometheus計測器の名前空間です。
const MetricsNamespace = "marketdata"

// RegisteredAdapter は優先度付きのアダプターです。
type RegisteredAdapter struct {
	Adapter  usecase.SourceAdapter
	Priority int
}

// durableTier は永続層のうち、組み立て側が追加で使う操作です。
type durableTier interface {
	usecase.DurableCache
	RunSweeper(ctx context.Context, every time.Duration)
}

// MarketData は市場データ機能の組み立て結果です。
type MarketData struct {
	Orchestrator *usecase.Orchestrator
	Handler      *handler.MarketdataHandler
	Metrics      *metrics.Metrics
	// Checks は /readyz で実行する依存先の疎通確認です。
	Checks []platformhandler.Check

	durable    durableTier
	sweepEvery time.Duration
}

// NewAdapters は有効なアダプターを設定から生成します。
func NewAdapters(cfg *config.Config) []RegisteredAdapter {
	var out []RegisteredAdapter
	if cfg.Eastmoney.Enabled {
		emCfg := eastmoney.DefaultConfig()
		if cfg.Eastmoney.Timeout > 0 {
			emCfg.Timeout = cfg.Eastmoney.Timeout
		}
		emCfg.RequestsPerMinute = cfg.Eastmoney.RequestsPerMinute
		out = append(out, RegisteredAdapter{
			Adapter:  eastmoney.NewAdapter(emCfg, platformhttp.NewHTTPClient(emCfg.Timeout)),
			Priority: cfg.Eastmoney.Priority,
		})
	}
	if cfg.Sina.Enabled {
		sCfg := sina.DefaultConfig()
		if cfg.Sina.Timeout > 0 {
			sCfg.Timeout = cfg.Sina.Timeout
		}
		sCfg.RequestsPerMinute = cfg.Sina.RequestsPerMinute
		out = append(out, RegisteredAdapter{
			Adapter:  sina.NewAdapter(sCfg, platformhttp.NewHTTPClient(sCfg.Timeout)),
			Priority: cfg.Sina.Priority,
		})
	}
	return out
}

// OrchestratorConfig はアプリケーション設定をオーケストレーターの設定に変換します。
func OrchestratorConfig(cfg *config.Config) usecase.Config {
	oc := usecase.DefaultConfig()
	oc.QuoteTTL = cfg.Cache.QuoteTTL
	oc.StockListTTL = cfg.Cache.StockListTTL
	if cfg.Cache.QuoteSnapshotMaxAge > 0 {
		oc.QuoteSnapshotMaxAge = cfg.Cache.QuoteSnapshotMaxAge
	}
	oc.Retry.MaxAttempts = cfg.Orchestrator.RetryMaxAttempts
	oc.Retry.InitialInterval = cfg.Orchestrator.RetryInitialInterval
	oc.Retry.MaxInterval = cfg.Orchestrator.RetryMaxInterval
	oc.SingleFlight = cfg.Orchestrator.SingleFlight
	oc.BreakerThreshold = cfg.Orchestrator.BreakerThreshold
	if cfg.Orchestrator.BreakerCooldown > 0 {
		oc.BreakerCooldown = cfg.Orchestrator.BreakerCooldown
	}
	return oc
}

// NewHotTier はRedisのホット層を生成します。
// Host が未設定、または接続できない場合は常にミスを返す層になります。
func NewHotTier(ctx context.Context, cfg platformredis.Config) *cache.RedisTier {
	if cfg.Host == "" {
		slog.Warn("REDIS_HOST is not set. Running without hot cache.")
		return cache.NewRedisTier(nil, cfg.Namespace)
	}
	rdb, err := platformredis.NewRedisClient(ctx, cfg)
	if err != nil {
		slog.Warn("Redis unavailable. Running without hot cache.", "error", err)
		return cache.NewRedisTier(nil, cfg.Namespace)
	}
	return cache.NewRedisTier(rdb, cfg.Namespace)
}

// newDurableTier はデータベースに接続して永続層を生成します。
func newDurableTier(cfg *config.Config) (durableTier, error) {
	gdb, err := db.Open(cfg.DB, adapters.DurableModels()...)
	if err != nil {
		return nil, err
	}
	return adapters.NewDurableCache(gdb,
		adapters.WithRetention(cfg.Cache.KlineRetention, cfg.Cache.SnapshotRetention),
	), nil
}

// NewMarketData は設定からアダプター・キャッシュ層・オーケストレーター・ハンドラーを組み立てます。
// 永続層に接続できない場合は永続層なしで動作します。
func NewMarketData(ctx context.Context, cfg *config.Config) (*MarketData, error) {
	regs := NewAdapters(cfg)
	if len(regs) == 0 {
		return nil, errors.New("no adapters enabled")
	}

	m := metrics.New(MetricsNamespace)
	hot := NewHotTier(ctx, cfg.Redis)

	md := &MarketData{Metrics: m, sweepEvery: cfg.Cache.SweepInterval}
	var durable usecase.DurableCache
	if d, err := newDurableTier(cfg); err != nil {
		slog.Warn("durable cache unavailable. Running without it.", "error", err)
	} else {
		md.durable = d
		durable = d
	}

	orch := usecase.NewOrchestrator(hot, durable,
		usecase.WithConfig(OrchestratorConfig(cfg)),
		usecase.WithMetrics(m),
		usecase.WithLogger(slog.Default().With("component", "orchestrator")),
	)
	for _, r := range regs {
		orch.RegisterAdapter(r.Adapter, r.Priority)
	}

	md.Orchestrator = orch
	md.Handler = handler.NewMarketdataHandler(orch)
	md.Checks = readinessChecks(orch, hot, md.durable)
	return md, nil
}

// readinessChecks はアダプターの可用性を必須、キャッシュ層を任意として確認します。
func readinessChecks(orch *usecase.Orchestrator, hot usecase.HotCache, durable usecase.DurableCache) []platformhandler.Check {
	checks := []platformhandler.Check{{
		Name:     "adapters",
		Required: true,
		Ping: func(context.Context) error {
			for _, h := range orch.GetAdapterHealth() {
				if h.Healthy {
					return nil
				}
			}
			return errors.New("no healthy adapter")
		},
	}, {
		Name: "redis",
		Ping: hot.Ping,
	}}
	if durable != nil {
		checks = append(checks, platformhandler.Check{Name: "database", Ping: durable.Ping})
	}
	return checks
}

// StartSweeper は永続層の期限切れ行を定期的に削除します。永続層がない場合は何もしません。
func (m *MarketData) StartSweeper(ctx context.Context) {
	if m.durable == nil || m.sweepEvery <= 0 {
		return
	}
	go m.durable.RunSweeper(ctx, m.sweepEvery)
}

// Close はキャッシュ層の接続を閉じます。
func (m *MarketData) Close() error {
	return m.Orchestrator.Close()
}

// NewWarmup はキャッシュウォームアップのユースケースを組み立てます。
func NewWarmup(md *MarketData, cfg *config.Config) *usecase.WarmupUsecase {
	wc := usecase.DefaultWarmupConfig()
	if cfg.Warmup.Concurrency > 0 {
		wc.Concurrency = cfg.Warmup.Concurrency
	}
	if cfg.Warmup.Lookback > 0 {
		wc.Lookback = cfg.Warmup.Lookback
	}
	return usecase.NewWarmupUsecase(md.Orchestrator, ratelimiter.PerMinute(cfg.Warmup.RequestsPerMinute), wc)
}
