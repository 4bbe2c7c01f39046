// Package sina provides a SourceAdapter backed by the Sina finance text and JSON APIs.
package sina

import "time"

// Config holds configuration for the Sina adapter.
type Config struct {
	QuoteURL          string        // e.g. "https://hq.sinajs.cn"
	KlineURL          string        // e.g. "https://quotes.sina.cn"
	ListURL           string        // e.g. "https://vip.stock.finance.sina.com.cn"
	Timeout           time.Duration // HTTP request timeout
	BatchSize         int           // symbols per hq request
	PageSize          int           // stock list page size
	ErrorThreshold    int
	RequestsPerMinute int // 0 disables rate limiting
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QuoteURL:       "https://hq.sinajs.cn",
		KlineURL:       "https://quotes.sina.cn",
		ListURL:        "https://vip.stock.finance.sina.com.cn",
		Timeout:        8 * time.Second,
		BatchSize:      80,
		PageSize:       100,
		ErrorThreshold: 5,
	}
}
