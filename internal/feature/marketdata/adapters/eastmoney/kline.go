package eastmoney

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdata_backend/internal/feature/marketdata/adapters/eastmoney/dto"
	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
	"marketdata_backend/internal/shared/tradinghours"
)

// defaultKlineLimit は期間も本数も指定されない場合に取得する本数です。
const defaultKlineLimit = 500

// klt は時間足ごとの kline/get パラメータです。
var klt = map[entity.Interval]string{
	entity.Interval1m:  "1",
	entity.Interval5m:  "5",
	entity.Interval15m: "15",
	entity.Interval30m: "30",
	entity.Interval60m: "60",
	entity.Interval1d:  "101",
	entity.Interval1w:  "102",
	entity.Interval1M:  "103",
}

// fqt は調整方式ごとの kline/get パラメータです。
var fqt = map[entity.Adjust]string{
	entity.AdjustNone: "0",
	entity.AdjustQFQ:  "1",
	entity.AdjustHFQ:  "2",
}

// GetKline はローソク足を取得し、時刻の昇順で返します。
func (a *Adapter) GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) (bars []entity.KlineBar, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()

	const op = "getKline"
	secid, err := stockcode.ToEastmoney(code)
	if err != nil {
		return nil, domain.NewInvalidRequestError(op, err)
	}
	k, ok := klt[interval]
	if !ok {
		return nil, domain.NewInvalidRequestError(op, fmt.Errorf("unsupported interval %q", interval))
	}
	f, ok := fqt[opts.Adjust]
	if !ok {
		return nil, domain.NewInvalidRequestError(op, fmt.Errorf("unsupported adjust %q", opts.Adjust))
	}

	q := url.Values{}
	q.Set("secid", secid)
	q.Set("klt", k)
	q.Set("fqt", f)
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")
	q.Set("beg", "0")
	q.Set("end", "20500101")
	if !opts.Start.IsZero() {
		q.Set("beg", opts.Start.In(tradinghours.China).Format("20060102"))
	}
	if !opts.End.IsZero() {
		q.Set("end", opts.End.In(tradinghours.China).Format("20060102"))
	}
	switch {
	case opts.Limit > 0:
		q.Set("lmt", strconv.Itoa(opts.Limit))
	case opts.HasRange():
		q.Set("lmt", "1000000")
	default:
		q.Set("lmt", strconv.Itoa(defaultKlineLimit))
	}
	u := fmt.Sprintf("%s/api/qt/stock/kline/get?%s", a.cfg.HistoryURL, q.Encode())

	var body dto.KlineResponse
	if err := a.getJSON(ctx, op, u, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, domain.NewNotFoundError(Name, op, code)
	}
	return parseKlines(body.Data.Klines, opts), nil
}

// parseKlines は行ごとに解析し、失敗した行は読み飛ばします。
// 分足の行は日付に時刻を含むため、期間フィルタはミリ秒で比較します。
func parseKlines(rows []string, opts entity.KlineOptions) []entity.KlineBar {
	out := make([]entity.KlineBar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKlineRow(row)
		if err != nil {
			slog.Debug("skipping unparseable kline row", "adapter", Name, "row", row, "error", err)
			continue
		}
		if !opts.End.IsZero() && bar.Timestamp > opts.End.UnixMilli() {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// parseKlineRow は "日付,始値,終値,高値,安値,出来高,売買代金[,振幅,騰落率,騰落額,回転率]" を解析します。
func parseKlineRow(row string) (entity.KlineBar, error) {
	f := strings.Split(row, ",")
	if len(f) < 7 {
		return entity.KlineBar{}, fmt.Errorf("want at least 7 fields, got %d", len(f))
	}

	tm, err := parseKlineTime(f[0])
	if err != nil {
		return entity.KlineBar{}, err
	}
	vals := make([]float64, 0, len(f)-1)
	for i, s := range f[1:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// 振幅以降は欠損を許容する
			if i >= 6 {
				vals = append(vals, 0)
				continue
			}
			return entity.KlineBar{}, fmt.Errorf("parse field %d %q: %w", i+1, s, err)
		}
		vals = append(vals, v)
	}

	bar := entity.KlineBar{
		Timestamp: tm.UnixMilli(),
		Date:      f[0],
		Open:      vals[0],
		Close:     vals[1],
		High:      vals[2],
		Low:       vals[3],
		Volume:    vals[4] * sharesPerLot,
		Amount:    ptr(vals[5]),
	}
	if len(vals) >= 10 {
		bar.ChangePercent = ptr(vals[7])
		bar.ChangeAmount = ptr(vals[8])
		bar.TurnoverRate = ptr(vals[9])
	}
	return bar, nil
}

func parseKlineTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if tm, err := time.ParseInLocation(layout, s, tradinghours.China); err == nil {
			return tm, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

func ptr(v float64) *float64 { return &v }
