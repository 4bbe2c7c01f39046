// Package usecase は複数の上流ソースを束ねる市場データ取得のビジネスロジックを実装します。
package usecase

import (
	"context"
	"time"

	"marketdata_backend/internal/feature/marketdata/domain/entity"
)

// SourceAdapter は上流プロバイダー1つ分の取得処理を抽象化します。
// 実装は上流のワイヤーフォーマットを entity の正規化済み型に変換して返します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type SourceAdapter interface {
	Name() string
	GetStockList(ctx context.Context) ([]entity.StockBasic, error)
	GetRealtimeQuotes(ctx context.Context, codes []string, opts entity.QuoteOptions) ([]entity.RealtimeQuote, error)
	// GetQuote は上流に該当行がない場合 domain.ErrNotFound を満たすエラーを返します。
	GetQuote(ctx context.Context, code string) (*entity.RealtimeQuote, error)
	GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) ([]entity.KlineBar, error)
	GetHealth() entity.AdapterHealth
	IsAvailable() bool
}

// HotCache は低レイテンシのキーバリューキャッシュ層です。
// 到達不能な場合はエラーではなく domain.ErrCacheMiss を返して劣化動作します。
type HotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Stats(ctx context.Context) (entity.TierStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// DurableCache は履歴足と銘柄一覧スナップショットを保持する永続キャッシュ層です。
// ヒットしない場合は domain.ErrCacheMiss を返します。
type DurableCache interface {
	GetQuoteSnapshot(ctx context.Context, code string, maxAge time.Duration) (*entity.RealtimeQuote, error)
	UpsertQuoteSnapshots(ctx context.Context, quotes []entity.RealtimeQuote) error
	GetKlineRange(ctx context.Context, code string, interval entity.Interval, start, end time.Time) ([]entity.KlineBar, error)
	UpsertKline(ctx context.Context, code string, interval entity.Interval, bars []entity.KlineBar) error
	GetStockListSnapshot(ctx context.Context) ([]entity.StockBasic, error)
	UpsertStockListSnapshot(ctx context.Context, stocks []entity.StockBasic) error
	DeleteCode(ctx context.Context, code string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (map[string]int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// MetricsRecorder はアダプター呼び出しとキャッシュ参照の計測を受け取ります。
type MetricsRecorder interface {
	ObserveAdapterCall(adapter, op string, d time.Duration, err error)
	ObserveCacheLookup(tier string, hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAdapterCall(string, string, time.Duration, error) {}
func (nopMetrics) ObserveCacheLookup(string, bool)                          {}
