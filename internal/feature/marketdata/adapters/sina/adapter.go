package sina

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketdata_backend/internal/feature/marketdata/adapters/health"
	"marketdata_backend/internal/feature/marketdata/adapters/upstream"
	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/usecase"
	platformhttp "marketdata_backend/internal/platform/http"
	"marketdata_backend/internal/shared/ratelimiter"
	"marketdata_backend/internal/shared/stockcode"
)

// Name is the adapter name reported in results and health.
const Name = "Sina"

// hq.sinajs.cn は Referer がないと 403 を返します。
var defaultHeaders = map[string]string{"Referer": "https://finance.sina.com.cn"}

// Adapter はSinaの行情APIから市場データを取得するSourceAdapter実装です。
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
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
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
// 存在しない銘柄や解析できない銘柄は結果から除かれます。
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
	symbols := make([]string, 0, len(codes))
	for _, c := range codes {
		s, err := stockcode.ToSina(c)
		if err != nil {
			slog.Warn("skipping invalid code", "adapter", Name, "code", c, "error", err)
			continue
		}
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return nil, domain.NewInvalidRequestError(op, domain.ErrInvalidCode)
	}

	now := a.now()
	out := make([]entity.RealtimeQuote, 0, len(symbols))
	for lo := 0; lo < len(symbols); lo += a.cfg.BatchSize {
		hi := min(lo+a.cfg.BatchSize, len(symbols))
		u := fmt.Sprintf("%s/list=%s", a.cfg.QuoteURL, strings.Join(symbols[lo:hi], ","))

		res, err := a.get(ctx, op, u)
		if err != nil {
			return nil, err
		}
		text, err := decodeGBK(res.Body)
		if err != nil {
			return nil, domain.NewParseError(Name, op, err)
		}
		out = append(out, parseQuotes(text, now)...)
	}
	return out, nil
}

// get はレートリミットを考慮してGETします。
func (a *Adapter) get(ctx context.Context, op, u string) (*platformhttp.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := platformhttp.Get(ctx, a.client, "sina", u, defaultHeaders)
	if err != nil {
		return nil, upstream.Classify(Name, op, err)
	}
	return res, nil
}

// bodyText はContent-TypeがGBK系であれば変換してから文字列を返します。
func bodyText(res *platformhttp.Response) (string, error) {
	ct := strings.ToLower(res.ContentType)
	if strings.Contains(ct, "gbk") || strings.Contains(ct, "gb2312") || strings.Contains(ct, "gb18030") {
		return decodeGBK(res.Body)
	}
	return string(res.Body), nil
}
