package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/ratelimiter"
)

// MarketReader はウォームアップが利用する読み取り操作です。Orchestrator が実装します。
type MarketReader interface {
	GetStockList(ctx context.Context, opts entity.StockListOptions) Result[[]entity.StockBasic]
	GetRealtimeQuotes(ctx context.Context, codes []string, opts entity.QuoteOptions) Result[[]entity.RealtimeQuote]
	GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) Result[[]entity.KlineBar]
}

var _ MarketReader = (*Orchestrator)(nil)

// WarmupConfig はキャッシュウォームアップの対象と並列度です。
type WarmupConfig struct {
	Intervals   []entity.Interval
	Lookback    time.Duration // ローソク足を遡る期間
	Concurrency int
	// QuoteBatchSize はまとめて取得する気配の銘柄数です。
	QuoteBatchSize int
}

// DefaultWarmupConfig は日足・週足を1年分、4並列で温める設定です。
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Intervals:      []entity.Interval{entity.Interval1d, entity.Interval1w},
		Lookback:       365 * 24 * time.Hour,
		Concurrency:    4,
		QuoteBatchSize: 50,
	}
}

// WarmupReport はウォームアップの結果です。
type WarmupReport struct {
	StockList bool `json:"stockList"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
}

// WarmupUsecase は銘柄一覧・気配・ローソク足を事前に取得してキャッシュを満たします。
type WarmupUsecase struct {
	reader  MarketReader
	limiter ratelimiter.Limiter
	cfg     WarmupConfig
	now     func() time.Time
}

// NewWarmupUsecase は新しい WarmupUsecase を作成します。limiter が nil の場合は制限しません。
func NewWarmupUsecase(reader MarketReader, limiter ratelimiter.Limiter, cfg WarmupConfig) *WarmupUsecase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QuoteBatchSize <= 0 {
		cfg.QuoteBatchSize = DefaultWarmupConfig().QuoteBatchSize
	}
	if limiter == nil {
		limiter = (*ratelimiter.RateLimiter)(nil)
	}
	return &WarmupUsecase{reader: reader, limiter: limiter, cfg: cfg, now: time.Now}
}

// Run は銘柄一覧を取得した後、指定銘柄の気配とローソク足を並列に取得します。
// 個別の失敗はログに残して続行し、ctx のキャンセル時のみエラーを返します。
func (w *WarmupUsecase) Run(ctx context.Context, codes []string) (WarmupReport, error) {
	var report WarmupReport

	if res := w.reader.GetStockList(ctx, entity.StockListOptions{ForceRefresh: true}); res.Success {
		report.StockList = true
		slog.Info("stock list warmed", "count", len(res.Data), "cached", res.Cached, "adapter", res.Adapter)
	} else {
		slog.Error("failed to warm stock list", "error", res.Error)
	}

	var ok, ng atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)

	for start := 0; start < len(codes); start += w.cfg.QuoteBatchSize {
		batch := codes[start:min(start+w.cfg.QuoteBatchSize, len(codes))]
		g.Go(func() error {
			if err := w.limiter.Wait(gctx); err != nil {
				return err
			}
			res := w.reader.GetRealtimeQuotes(gctx, batch, entity.QuoteOptions{ForceRefresh: true})
			if !res.Success {
				ng.Add(1)
				slog.Error("failed to warm quotes", "codes", len(batch), "error", res.Error)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}

	from := w.now().Add(-w.cfg.Lookback)
	for _, code := range codes {
		for _, interval := range w.cfg.Intervals {
			g.Go(func() error {
				if err := w.limiter.Wait(gctx); err != nil {
					return err
				}
				res := w.reader.GetKline(gctx, code, interval, entity.KlineOptions{Start: from, ForceRefresh: true})
				if !res.Success {
					// 1つの銘柄でエラーが発生しても処理を止めずに次へ
					ng.Add(1)
					slog.Error("failed to warm kline", "code", code, "interval", interval, "error", res.Error)
					return nil
				}
				ok.Add(1)
				return nil
			})
		}
	}

	err := g.Wait()
	report.Succeeded = int(ok.Load())
	report.Failed = int(ng.Load())
	slog.Info("cache warmup finished", "succeeded", report.Succeeded, "failed", report.Failed)
	return report, err
}
