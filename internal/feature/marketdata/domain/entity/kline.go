package entity

import (
	"fmt"
	"time"
)

// Interval はローソク足の時間足です。
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval60m Interval = "60m"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// Intervals はサポートする全時間足です。
var Intervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m, Interval60m,
	Interval1d, Interval1w, Interval1M,
}

// ParseInterval は文字列を Interval に変換します。未知の値はエラーになります。
func ParseInterval(s string) (Interval, error) {
	for _, iv := range Intervals {
		if string(iv) == s {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

// Adjust は株価調整方式です。
type Adjust string

const (
	AdjustNone Adjust = ""
	AdjustQFQ  Adjust = "qfq" // 前方調整
	AdjustHFQ  Adjust = "hfq" // 後方調整
)

// KlineBar はローソク足1本です。識別子は (code, interval, timestamp) です。
type KlineBar struct {
	// Timestamp はエポックミリ秒です。
	Timestamp     int64    `json:"timestamp"`
	Date          string   `json:"date"`
	Open          float64  `json:"open"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	Close         float64  `json:"close"`
	Volume        float64  `json:"volume"`
	Amount        *float64 `json:"amount,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
	ChangeAmount  *float64 `json:"changeAmount,omitempty"`
	TurnoverRate  *float64 `json:"turnoverRate,omitempty"`
}

// KlineOptions はローソク足取得時のオプションです。
type KlineOptions struct {
	Start time.Time
	End   time.Time
	// Limit は返却本数の上限です。0 の場合は提供元の既定値を使います。
	Limit        int
	Adjust       Adjust
	ForceRefresh bool
}

// HasRange は期間指定があるかを返します。
func (o KlineOptions) HasRange() bool {
	return !o.Start.IsZero() || !o.End.IsZero()
}
