package sina

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
	"marketdata_backend/internal/shared/tradinghours"
)

// maxKlineLen は getKLineData が返す最大本数です。
const maxKlineLen = 1023

// scale は時間足ごとの getKLineData パラメータ（分）です。1分足は提供されません。
var scale = map[entity.Interval]string{
	entity.Interval5m:  "5",
	entity.Interval15m: "15",
	entity.Interval30m: "30",
	entity.Interval60m: "60",
	entity.Interval1d:  "240",
	entity.Interval1w:  "1200",
	entity.Interval1M:  "7200",
}

// klineRow は getKLineData の1行です。数値はすべて文字列で返ります。
type klineRow struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// GetKline はローソク足を取得し、時刻の昇順で返します。
// この提供元は調整済み系列を返さないため、Adjust 指定時は InvalidRequest になります。
func (a *Adapter) GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) (bars []entity.KlineBar, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()

	const op = "getKline"
	symbol, err := stockcode.ToSina(code)
	if err != nil {
		return nil, domain.NewInvalidRequestError(op, err)
	}
	sc, ok := scale[interval]
	if !ok {
		return nil, domain.NewInvalidRequestError(op, fmt.Errorf("unsupported interval %q", interval))
	}
	if opts.Adjust != entity.AdjustNone {
		return nil, domain.NewInvalidRequestError(op, fmt.Errorf("unsupported adjust %q", opts.Adjust))
	}

	datalen := maxKlineLen
	if opts.Limit > 0 && opts.Limit < maxKlineLen {
		datalen = opts.Limit
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("scale", sc)
	q.Set("ma", "no")
	q.Set("datalen", strconv.Itoa(datalen))
	u := fmt.Sprintf("%s/cn/api/json_v2.php/CN_MarketDataService.getKLineData?%s", a.cfg.KlineURL, q.Encode())

	res, err := a.get(ctx, op, u)
	if err != nil {
		return nil, err
	}
	text, err := bodyText(res)
	if err != nil {
		return nil, domain.NewParseError(Name, op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil, domain.NewNotFoundError(Name, op, code)
	}

	var rows []klineRow
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return nil, domain.NewParseError(Name, op, fmt.Errorf("decode response: %w", err))
	}
	return parseKlines(rows, opts), nil
}

func parseKlines(rows []klineRow, opts entity.KlineOptions) []entity.KlineBar {
	out := make([]entity.KlineBar, 0, len(rows))
	for _, r := range rows {
		bar, err := parseKlineRow(r)
		if err != nil {
			slog.Debug("skipping unparseable kline row", "adapter", Name, "day", r.Day, "error", err)
			continue
		}
		if !opts.Start.IsZero() && bar.Timestamp < opts.Start.UnixMilli() {
			continue
		}
		if !opts.End.IsZero() && bar.Timestamp > opts.End.UnixMilli() {
			continue
		}
		out = append(out, bar)
	}
	return out
}

func parseKlineRow(r klineRow) (entity.KlineBar, error) {
	var tm time.Time
	var err error
	if len(r.Day) > len("2006-01-02") {
		tm, err = time.ParseInLocation("2006-01-02 15:04:05", r.Day, tradinghours.China)
	} else {
		tm, err = time.ParseInLocation("2006-01-02", r.Day, tradinghours.China)
	}
	if err != nil {
		return entity.KlineBar{}, fmt.Errorf("parse day %q: %w", r.Day, err)
	}

	vals := make([]float64, 5)
	for i, s := range []string{r.Open, r.High, r.Low, r.Close, r.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return entity.KlineBar{}, fmt.Errorf("parse %q: %w", s, err)
		}
		vals[i] = d.InexactFloat64()
	}
	return entity.KlineBar{
		Timestamp: tm.UnixMilli(),
		Date:      r.Day,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
