package sina

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
	"marketdata_backend/internal/shared/tradinghours"
)

// hq_str 行のフィールド位置（A株）
const (
	fieldName     = 0
	fieldOpen     = 1
	fieldPreClose = 2
	fieldPrice    = 3
	fieldHigh     = 4
	fieldLow      = 5
	fieldVolume   = 8
	fieldAmount   = 9
	fieldBidStart = 10 // 買い1〜5: (数量, 価格) × 5
	fieldAskStart = 20 // 売り1〜5: (数量, 価格) × 5
	fieldDate     = 30
	fieldTime     = 31

	minFields   = fieldAmount + 1
	depthLevels = 5
)

var hqLine = regexp.MustCompile(`var hq_str_([a-z]{2}\d{6})="([^"]*)"`)

// decodeGBK はGB18030（GBKの上位互換）のバイト列をUTF-8に変換します。
func decodeGBK(b []byte) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(b), simplifiedchinese.GB18030.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode gbk: %w", err)
	}
	return string(out), nil
}

// parseQuotes は hq_str 行の集まりを解析します。
// 空文字列の行（存在しない銘柄）と解析できない行は読み飛ばし、残りの銘柄は返します。
// 同じ入力と now に対して常に同じ結果を返します。
func parseQuotes(text string, now time.Time) []entity.RealtimeQuote {
	open := tradinghours.IsOpen(now)
	matches := hqLine.FindAllStringSubmatch(text, -1)
	out := make([]entity.RealtimeQuote, 0, len(matches))
	for _, m := range matches {
		symbol, payload := m[1], m[2]
		if payload == "" {
			continue
		}
		q, err := parseQuoteFields(symbol, payload, now, open)
		if err != nil {
			slog.Debug("skipping unparseable quote", "adapter", Name, "symbol", symbol, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

func parseQuoteFields(symbol, payload string, now time.Time, open bool) (entity.RealtimeQuote, error) {
	code, err := stockcode.FromSina(symbol)
	if err != nil {
		return entity.RealtimeQuote{}, err
	}
	f := strings.Split(payload, ",")
	if len(f) < minFields {
		return entity.RealtimeQuote{}, fmt.Errorf("want at least %d fields, got %d", minFields, len(f))
	}

	dec := make([]decimal.Decimal, minFields)
	for i := fieldOpen; i < minFields; i++ {
		d, err := decimal.NewFromString(strings.TrimSpace(f[i]))
		if err != nil {
			return entity.RealtimeQuote{}, fmt.Errorf("parse field %d %q: %w", i, f[i], err)
		}
		dec[i] = d
	}

	price, preClose := dec[fieldPrice], dec[fieldPreClose]
	q := entity.RealtimeQuote{
		Code:      code,
		Name:      f[fieldName],
		Price:     price.InexactFloat64(),
		Open:      dec[fieldOpen].InexactFloat64(),
		High:      dec[fieldHigh].InexactFloat64(),
		Low:       dec[fieldLow].InexactFloat64(),
		PreClose:  preClose.InexactFloat64(),
		Volume:    dec[fieldVolume].InexactFloat64(),
		Amount:    dec[fieldAmount].InexactFloat64(),
		Timestamp: now.UnixMilli(),
		IsOpen:    open,
	}
	// 寄り前は現在値が0のため騰落は0のままにする
	if !price.IsZero() && !preClose.IsZero() {
		change := price.Sub(preClose)
		q.ChangeAmount = change.Round(3).InexactFloat64()
		q.ChangePercent = change.Div(preClose).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	if len(f) >= fieldAskStart+2*depthLevels {
		q.BidVol, q.BidPrice = depth(f, fieldBidStart)
		q.AskVol, q.AskPrice = depth(f, fieldAskStart)
	}
	if len(f) > fieldTime {
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", f[fieldDate]+" "+f[fieldTime], tradinghours.China); err == nil {
			q.Timestamp = ts.UnixMilli()
		}
	}
	return q, nil
}

// depth は (数量, 価格) の組を5段分読みます。解析できない値は0とします。
func depth(f []string, start int) (vols, prices []float64) {
	vols = make([]float64, depthLevels)
	prices = make([]float64, depthLevels)
	for i := 0; i < depthLevels; i++ {
		if v, err := decimal.NewFromString(f[start+2*i]); err == nil {
			vols[i] = v.InexactFloat64()
		}
		if p, err := decimal.NewFromString(f[start+2*i+1]); err == nil {
			prices[i] = p.InexactFloat64()
		}
	}
	return vols, prices
}
