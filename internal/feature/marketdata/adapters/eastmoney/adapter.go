package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketdata_backend/internal/feature/marketdata/adapters/eastmoney/dto"
	"marketdata_backend/internal/feature/marketdata/adapters/health"
	"marketdata_backend/internal/feature/marketdata/adapters/upstream"
	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/usecase"
	platformhttp "marketdata_backend/internal/platform/http"
	"marketdata_backend/internal/shared/ratelimiter"
	"marketdata_backend/internal/shared/stockcode"
	"marketdata_backend/internal/shared/tradinghours"
)

// Name is the adapter name reported in results and health.
const Name = "Eastmoney"

// quoteFields は ulist.np で要求するフィールドコードです。
//
//	f2 現在値 / f3 騰落率 / f4 騰落額 / f5 出来高(手) / f6 売買代金
//	f12 コード / f13 市場 / f14 名称 / f15 高値 / f16 安値 / f17 始値 / f18 前日終値 / f124 更新時刻(秒)
const quoteFields = "f2,f3,f4,f5,f6,f12,f13,f14,f15,f16,f17,f18,f124"

// sharesPerLot は出来高の単位「手」を株数に換算する係数です。
const sharesPerLot = 100

// Adapter はEastmoneyの push2 / push2his APIから市場データを取得するSourceAdapter実装です。
type Adapter struct {
	cfg     Config
	client  *http.Client
	health  *health.Tracker
	limiter ratelimiter.Limiter
	now     func() time.Time
}

// AdapterがSourceAdapterを実装していることをコンパイル時に検証します。
var _ usecase.SourceAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithRateLimiter replaces the limiter built from Config.RequestsPerMinute.
func WithRateLimiter(l ratelimiter.Limiter) Option {
	return func(a *Adapter) { a.limiter = l }
}

// WithClock overrides the wall clock used for timestamps and trading-hours inference.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter は指定された設定とHTTPクライアントでAdapterの新しいインスタンスを生成します。
func NewAdapter(cfg Config, client *http.Client, opts ...Option) *Adapter {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	a := &Adapter{
		cfg:     cfg,
		client:  client,
		limiter: ratelimiter.PerMinute(cfg.RequestsPerMinute),
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.health = health.NewTracker(Name, cfg.ErrorThreshold).WithClock(a.now)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) GetHealth() entity.AdapterHealth { return a.health.Snapshot() }

func (a *Adapter) IsAvailable() bool { return a.health.Healthy() }

// GetRealtimeQuotes は指定銘柄の最新気配を取得します。
// 解析できない行は読み飛ばし、取得できた分だけを返します。
func (a *Adapter) GetRealtimeQuotes(ctx context.Context, codes []string, _ entity.QuoteOptions) (quotes []entity.RealtimeQuote, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()
	return a.fetchQuotes(ctx, "getRealtimeQuotes", codes)
}

// GetQuote は1銘柄の最新気配を取得します。該当行がなければ NotFound を返します。
func (a *Adapter) GetQuote(ctx context.Context, code string) (q *entity.RealtimeQuote, err error) {
	start := a.now()
	defer func() { a.health.Observe(start, err) }()

	quotes, err := a.fetchQuotes(ctx, "getQuote", []string{code})
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		if quotes[i].Code == code {
			return &quotes[i], nil
		}
	}
	return nil, domain.NewNotFoundError(Name, "getQuote", code)
}

func (a *Adapter) fetchQuotes(ctx context.Context, op string, codes []string) ([]entity.RealtimeQuote, error) {
	secids := make([]string, 0, len(codes))
	for _, c := range codes {
		s, err := stockcode.ToEastmoney(c)
		if err != nil {
			slog.Warn("skipping invalid code", "adapter", Name, "code", c, "error", err)
			continue
		}
		secids = append(secids, s)
	}
	if len(secids) == 0 {
		return nil, domain.NewInvalidRequestError(op, domain.ErrInvalidCode)
	}

	now := a.now()
	out := make([]entity.RealtimeQuote, 0, len(secids))
	for lo := 0; lo < len(secids); lo += a.cfg.BatchSize {
		hi := min(lo+a.cfg.BatchSize, len(secids))

		q := url.Values{}
		q.Set("fltt", "2")
		q.Set("invt", "2")
		q.Set("np", "1")
		q.Set("fields", quoteFields)
		q.Set("secids", strings.Join(secids[lo:hi], ","))
		u := fmt.Sprintf("%s/api/qt/ulist.np/get?%s", a.cfg.QuoteURL, q.Encode())

		var body dto.ListResponse
		if err := a.getJSON(ctx, op, u, &body); err != nil {
			return nil, err
		}
		out = append(out, parseQuotes(body, now)...)
	}
	return out, nil
}

// parseQuotes はレスポンスの各行を正規化します。同じ入力と now に対して常に同じ結果を返します。
func parseQuotes(body dto.ListResponse, now time.Time) []entity.RealtimeQuote {
	if body.Data == nil {
		return nil
	}
	open := tradinghours.IsOpen(now)
	out := make([]entity.RealtimeQuote, 0, len(body.Data.Diff))
	for _, row := range body.Data.Diff {
		q, err := parseQuoteRow(row, now, open)
		if err != nil {
			slog.Debug("skipping unparseable quote row", "adapter", Name, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

func parseQuoteRow(row map[string]json.RawMessage, now time.Time, open bool) (entity.RealtimeQuote, error) {
	code := str(row, "f12")
	if !stockcode.IsValid(code) {
		return entity.RealtimeQuote{}, fmt.Errorf("invalid code %q", code)
	}
	ts := now.UnixMilli()
	if sec, ok := num(row, "f124"); ok && sec > 0 {
		ts = int64(sec) * 1000
	}
	vol, _ := num(row, "f5")
	q := entity.RealtimeQuote{
		Code:      code,
		Name:      str(row, "f14"),
		Volume:    vol * sharesPerLot,
		Timestamp: ts,
		IsOpen:    open,
	}
	q.Price, _ = num(row, "f2")
	q.ChangePercent, _ = num(row, "f3")
	q.ChangeAmount, _ = num(row, "f4")
	q.Amount, _ = num(row, "f6")
	q.High, _ = num(row, "f15")
	q.Low, _ = num(row, "f16")
	q.Open, _ = num(row, "f17")
	q.PreClose, _ = num(row, "f18")
	return q, nil
}

// getJSON はレートリミットを考慮してGETし、JSONをデコードします。
func (a *Adapter) getJSON(ctx context.Context, op, u string, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	res, err := platformhttp.Get(ctx, a.client, "eastmoney", u, map[string]string{
		"Referer": "https://quote.eastmoney.com/",
	})
	if err != nil {
		return upstream.Classify(Name, op, err)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return domain.NewParseError(Name, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
