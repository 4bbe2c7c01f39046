// Package dto はmarketdataフィーチャーのHTTPトランスポート層のデータ転送オブジェクトを定義します。
package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Envelope は全エンドポイント共通のレスポンス形式です。
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Adapter   string `json:"adapter,omitempty"`
	Cached    bool   `json:"cached"`
}

// QuotesQuery は GET /quotes のクエリパラメータです。codes はカンマ区切りです。
type QuotesQuery struct {
	Codes string `form:"codes" binding:"required"`
	Force bool   `form:"force"`
}

// CodeList はカンマ区切りの codes を分割します。空要素は除きます。
func (q QuotesQuery) CodeList() []string {
	var out []string
	for _, c := range strings.Split(q.Codes, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// KlineQuery は GET /kline/:code のクエリパラメータです。
// start / end は YYYY-MM-DD、RFC3339、エポックミリ秒のいずれかを受け付けます。
type KlineQuery struct {
	Interval string `form:"interval"`
	Start    string `form:"start"`
	End      string `form:"end"`
	Limit    int    `form:"limit" binding:"omitempty,min=0,max=5000"`
	Adjust   string `form:"adjust" binding:"omitempty,oneof=qfq hfq none"`
	Force    bool   `form:"force"`
}

// CacheClearResponse はキャッシュ削除の結果です。
type CacheClearResponse struct {
	Deleted int `json:"deleted"`
}

// ParseTime はクエリの時刻文字列を解釈します。空文字はゼロ値です。
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}
