// Package eastmoney provides a SourceAdapter backed by the Eastmoney push2 JSON APIs.
package eastmoney

import "time"

// Config holds configuration for the Eastmoney adapter.
type Config struct {
	QuoteURL          string        // e.g. "https://push2.eastmoney.com"
	HistoryURL        string        // e.g. "https://push2his.eastmoney.com"
	Timeout           time.Duration // HTTP request timeout
	PageSize          int           // stock list page size, upstream caps at 5000
	BatchSize         int           // secids per quote request
	ErrorThreshold    int           // consecutive-ish errors before unhealthy
	RequestsPerMinute int           // 0 disables rate limiting
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QuoteURL:       "https://push2.eastmoney.com",
		HistoryURL:     "https://push2his.eastmoney.com",
		Timeout:        10 * time.Second,
		PageSize:       5000,
		BatchSize:      100,
		ErrorThreshold: 5,
	}
}
