package usecase

import "time"

// Config はオーケストレーターのキャッシュ・再試行・ディスパッチ設定です。
type Config struct {
	// QuoteTTL は気配のホットキャッシュ有効期間です。
	QuoteTTL time.Duration
	// StockListTTL は銘柄一覧のホットキャッシュ有効期間です。
	StockListTTL time.Duration
	// QuoteSnapshotMaxAge は永続層の気配スナップショットを採用する鮮度の上限です。
	QuoteSnapshotMaxAge time.Duration

	Retry RetryPolicy

	// SingleFlight が true の場合、同一リクエストの同時ミスは1回の上流呼び出しを共有します。
	SingleFlight bool

	// BreakerThreshold が 0 より大きい場合、エラー回数がこれ以上のアダプターを
	// BreakerCooldown の間ディスパッチ対象から外します。
	BreakerThreshold int64
	BreakerCooldown  time.Duration
}

// DefaultConfig はオーケストレーターの既定設定を返します。
func DefaultConfig() Config {
	return Config{
		QuoteTTL:            30 * time.Second,
		StockListTTL:        time.Hour,
		QuoteSnapshotMaxAge: 5 * time.Minute,
		Retry:               DefaultRetryPolicy(),
		SingleFlight:        true,
		BreakerCooldown:     30 * time.Second,
	}
}
