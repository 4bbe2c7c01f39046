package usecase

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/shared/stockcode"
)

const (
	tierHot     = "hot"
	tierDurable = "durable"
)

type registration struct {
	adapter  SourceAdapter
	priority int
	seq      int
}

// Orchestrator は複数のアダプターとキャッシュ層を束ね、
// キャッシュアサイド・優先度順フォールバック・再試行を行います。
// hot と durable はどちらも nil を許容し、その場合は常にミスとして扱います。
type Orchestrator struct {
	hot     HotCache
	durable DurableCache
	cfg     Config
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time

	sf singleflight.Group

	mu      sync.RWMutex
	entries []registration
	seq     int
}

// Option は Orchestrator の生成オプションです。
type Option func(*Orchestrator)

// WithConfig は設定を置き換えます。
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger はロガーを指定します。
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics は計測の記録先を指定します。
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock はサーキットブレーカーの判定に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRetryPolicy は再試行方針を差し替えます。
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.cfg.Retry = p }
}

// WithBreaker はエラー回数が threshold 以上のアダプターを cooldown の間スキップします。
func WithBreaker(threshold int64, cooldown time.Duration) Option {
	return func(o *Orchestrator) {
		o.cfg.BreakerThreshold = threshold
		o.cfg.BreakerCooldown = cooldown
	}
}

// WithSingleFlight は同時ミスの合流を切り替えます。
func WithSingleFlight(enabled bool) Option {
	return func(o *Orchestrator) { o.cfg.SingleFlight = enabled }
}

// NewOrchestrator は Orchestrator を生成します。アダプターは RegisterAdapter で登録します。
func NewOrchestrator(hot HotCache, durable DurableCache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		hot:     hot,
		durable: durable,
		cfg:     DefaultConfig(),
		metrics: nopMetrics{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterAdapter はアダプターを優先度付きで登録します。同名のアダプターは置き換えます。
// 優先度の高い順に試行し、同じ優先度は登録順です。
func (o *Orchestrator) RegisterAdapter(a SourceAdapter, priority int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = slices.DeleteFunc(o.entries, func(r registration) bool { return r.adapter.Name() == a.Name() })
	o.seq++
	o.entries = append(o.entries, registration{adapter: a, priority: priority, seq: o.seq})
	slices.SortStableFunc(o.entries, func(x, y registration) int {
		if c := cmp.Compare(y.priority, x.priority); c != 0 {
			return c
		}
		return cmp.Compare(x.seq, y.seq)
	})
	o.logger.Info("adapter registered", "adapter", a.Name(), "priority", priority)
}

// UnregisterAdapter は名前でアダプターを取り除きます。取り除いた場合 true を返します。
func (o *Orchestrator) UnregisterAdapter(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.entries)
	o.entries = slices.DeleteFunc(o.entries, func(r registration) bool { return r.adapter.Name() == name })
	return len(o.entries) != n
}

// snapshot は現在の登録内容のコピーを返します。実行中のリクエストはこのコピーを使い続けます。
func (o *Orchestrator) snapshot() []registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.entries)
}

// dispatchOrder は試行するアダプターを優先度順に返します。
// ブレーカー有効時は冷却中のアダプターを除きますが、全て除外される場合は全てを返します。
func (o *Orchestrator) dispatchOrder() []SourceAdapter {
	regs := o.snapshot()
	all := make([]SourceAdapter, 0, len(regs))
	for _, r := range regs {
		all = append(all, r.adapter)
	}
	if o.cfg.BreakerThreshold <= 0 {
		return all
	}

	now := o.now()
	open := make([]SourceAdapter, 0, len(all))
	for _, a := range all {
		h := a.GetHealth()
		if h.ErrorCount >= o.cfg.BreakerThreshold && now.Sub(h.LastCheckedAt) < o.cfg.BreakerCooldown {
			o.logger.Debug("adapter skipped by breaker", "adapter", a.Name(), "errorCount", h.ErrorCount)
			continue
		}
		open = append(open, a)
	}
	if len(open) == 0 {
		return all
	}
	return open
}

// Initialize はキャッシュ層への疎通を確認してログに残します。
// キャッシュ層は任意のため、到達不能でもエラーにはしません。
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.hot != nil {
		if err := o.hot.Ping(ctx); err != nil {
			o.logger.Warn("hot cache unavailable, continuing without it", "error", err)
		} else {
			o.logger.Info("hot cache connected")
		}
	}
	if o.durable != nil {
		if err := o.durable.Ping(ctx); err != nil {
			o.logger.Warn("durable cache unavailable, continuing without it", "error", err)
		} else {
			o.logger.Info("durable cache connected")
		}
	}
	if len(o.snapshot()) == 0 {
		return domain.ErrNoAdapters
	}
	return nil
}

// Close は両キャッシュ層を閉じます。
func (o *Orchestrator) Close() error {
	var errs []error
	if o.hot != nil {
		errs = append(errs, o.hot.Close())
	}
	if o.durable != nil {
		errs = append(errs, o.durable.Close())
	}
	return errors.Join(errs...)
}

// GetStockList は銘柄一覧を返します。ホット層、永続層、アダプターの順に参照します。
func (o *Orchestrator) GetStockList(ctx context.Context, opts entity.StockListOptions) Result[[]entity.StockBasic] {
	const op = "getStockList"

	if !opts.ForceRefresh {
		var stocks []entity.StockBasic
		if o.hotGet(ctx, stockListKey, &stocks) && len(stocks) > 0 {
			return fromCache(stocks)
		}
		if o.durable != nil {
			s, err := o.durable.GetStockListSnapshot(ctx)
			o.metrics.ObserveCacheLookup(tierDurable, err == nil)
			if err == nil && len(s) > 0 {
				o.hotSet(ctx, stockListKey, s, o.cfg.StockListTTL)
				return fromCache(s)
			}
			o.logDurableErr(op, err)
		}
	}

	stocks, adapter, err := fetch(ctx, o, op, op, func(ctx context.Context, a SourceAdapter) ([]entity.StockBasic, error) {
		return a.GetStockList(ctx)
	})
	if err != nil {
		return failed[[]entity.StockBasic](err)
	}

	o.hotSet(ctx, stockListKey, stocks, o.cfg.StockListTTL)
	if o.durable != nil {
		if err := o.durable.UpsertStockListSnapshot(ctx, stocks); err != nil {
			o.logger.Warn("durable cache write failed", "op", op, "error", err)
		}
	}
	return served(stocks, adapter)
}

// GetQuote は1銘柄の気配を返します。
func (o *Orchestrator) GetQuote(ctx context.Context, code string, opts entity.QuoteOptions) Result[*entity.RealtimeQuote] {
	const op = "getQuote"

	code, err := canonicalCode(code)
	if err != nil {
		return failed[*entity.RealtimeQuote](domain.NewInvalidRequestError(op, err))
	}

	if !opts.ForceRefresh {
		var q entity.RealtimeQuote
		if o.hotGet(ctx, quoteKey(code), &q) && q.Code != "" {
			return fromCache(&q)
		}
		if o.durable != nil {
			snap, err := o.durable.GetQuoteSnapshot(ctx, code, o.cfg.QuoteSnapshotMaxAge)
			o.metrics.ObserveCacheLookup(tierDurable, err == nil)
			if err == nil {
				o.hotSet(ctx, quoteKey(code), snap, o.cfg.QuoteTTL)
				return fromCache(snap)
			}
			o.logDurableErr(op, err)
		}
	}

	q, adapter, err := fetch(ctx, o, op+":"+code, op, func(ctx context.Context, a SourceAdapter) (*entity.RealtimeQuote, error) {
		return a.GetQuote(ctx, code)
	})
	if err != nil {
		return failed[*entity.RealtimeQuote](err)
	}

	o.writeQuotes(ctx, op, []entity.RealtimeQuote{*q})
	return served(q, adapter)
}

// GetRealtimeQuotes は複数銘柄の気配をまとめて返します。
// バッチ結果は銘柄集合ごとのキーでキャッシュされます。
func (o *Orchestrator) GetRealtimeQuotes(ctx context.Context, codes []string, opts entity.QuoteOptions) Result[[]entity.RealtimeQuote] {
	const op = "getRealtimeQuotes"

	canon, err := canonicalCodes(codes)
	if err != nil {
		return failed[[]entity.RealtimeQuote](domain.NewInvalidRequestError(op, err))
	}
	key := batchQuoteKey(canon)

	if !opts.ForceRefresh {
		var quotes []entity.RealtimeQuote
		if o.hotGet(ctx, key, &quotes) && len(quotes) > 0 {
			return fromCache(quotes)
		}
	}

	quotes, adapter, err := fetch(ctx, o, op+":"+key, op, func(ctx context.Context, a SourceAdapter) ([]entity.RealtimeQuote, error) {
		return a.GetRealtimeQuotes(ctx, canon, opts)
	})
	if err != nil {
		return failed[[]entity.RealtimeQuote](err)
	}

	if len(quotes) > 0 {
		o.hotSet(ctx, key, quotes, o.cfg.QuoteTTL)
		o.writeQuotes(ctx, op, quotes)
	}
	return served(quotes, adapter)
}

// GetKline は時系列の足を返します。調整なしで期間指定がある場合のみ永続層を参照します。
func (o *Orchestrator) GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) Result[[]entity.KlineBar] {
	const op = "getKline"

	code, err := canonicalCode(code)
	if err != nil {
		return failed[[]entity.KlineBar](domain.NewInvalidRequestError(op, err))
	}
	if _, err := entity.ParseInterval(string(interval)); err != nil {
		return failed[[]entity.KlineBar](domain.NewInvalidRequestError(op, err))
	}

	// 永続層には調整なし系列しか保存されない
	if !opts.ForceRefresh && opts.HasRange() && opts.Adjust == entity.AdjustNone && o.durable != nil {
		bars, err := o.durable.GetKlineRange(ctx, code, interval, opts.Start, opts.End)
		hit := err == nil && len(bars) > 0
		o.metrics.ObserveCacheLookup(tierDurable, hit)
		if hit {
			if opts.Limit > 0 && len(bars) > opts.Limit {
				bars = bars[len(bars)-opts.Limit:]
			}
			return fromCache(bars)
		}
		o.logDurableErr(op, err)
	}

	key := strings.Join([]string{op, code, string(interval), string(opts.Adjust),
		strconv.FormatInt(opts.Start.UnixMilli(), 10), strconv.FormatInt(opts.End.UnixMilli(), 10),
		strconv.Itoa(opts.Limit)}, ":")
	bars, adapter, err := fetch(ctx, o, key, op, func(ctx context.Context, a SourceAdapter) ([]entity.KlineBar, error) {
		return a.GetKline(ctx, code, interval, opts)
	})
	if err != nil {
		return failed[[]entity.KlineBar](err)
	}

	// 調整済み系列は調整なし系列と同じキーに書かない
	if o.durable != nil && opts.Adjust == entity.AdjustNone && len(bars) > 0 {
		if err := o.durable.UpsertKline(ctx, code, interval, bars); err != nil {
			o.logger.Warn("durable cache write failed", "op", op, "code", code, "error", err)
		}
	}
	return served(bars, adapter)
}

// GetAdapterHealth は登録済みアダプターの稼働状況を優先度順に返します。
func (o *Orchestrator) GetAdapterHealth() []entity.AdapterHealth {
	regs := o.snapshot()
	out := make([]entity.AdapterHealth, 0, len(regs))
	for _, r := range regs {
		h := r.adapter.GetHealth()
		h.Priority = r.priority
		out = append(out, h)
	}
	return out
}

// GetCacheStats は両キャッシュ層の統計を返します。取得できない層は Available=false です。
func (o *Orchestrator) GetCacheStats(ctx context.Context) Result[entity.CacheStats] {
	var stats entity.CacheStats
	if o.hot != nil {
		s, err := o.hot.Stats(ctx)
		if err != nil {
			o.logger.Warn("hot cache stats failed", "error", err)
		}
		stats.Hot = s
	}
	if o.durable != nil {
		rows, err := o.durable.Stats(ctx)
		if err != nil {
			o.logger.Warn("durable cache stats failed", "error", err)
		} else {
			stats.Durable.Available = true
			stats.DurableRows = rows
			for _, n := range rows {
				stats.Durable.Keys += n
			}
		}
	}
	return Result[entity.CacheStats]{Success: true, Data: stats}
}

// InvalidateCache は1銘柄のキャッシュを両層から削除します。
// どのバッチに含まれるか追跡していないため、バッチ気配のエントリは全て破棄します。
// Data はホット層で削除したキー数です。
func (o *Orchestrator) InvalidateCache(ctx context.Context, code string) Result[int] {
	const op = "invalidateCache"

	code, err := canonicalCode(code)
	if err != nil {
		return failed[int](domain.NewInvalidRequestError(op, err))
	}

	var errs []error
	deleted := 0
	if o.hot != nil {
		if err := o.hot.Delete(ctx, quoteKey(code)); err != nil {
			errs = append(errs, err)
		} else {
			deleted++
		}
		n, err := o.hot.DeletePattern(ctx, batchQuotePrefix+"*")
		deleted += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if o.durable != nil {
		if err := o.durable.DeleteCode(ctx, code); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return failed[int](&domain.Error{Kind: domain.KindCacheUnavailable, Op: op, Err: err})
	}
	o.logger.Info("cache invalidated", "code", code, "hotKeys", deleted)
	return Result[int]{Success: true, Data: deleted}
}

// ClearCache は両層のキャッシュを全て削除します。Data はホット層で削除したキー数です。
func (o *Orchestrator) ClearCache(ctx context.Context) Result[int] {
	const op = "clearCache"

	var errs []error
	deleted := 0
	if o.hot != nil {
		n, err := o.hot.DeletePattern(ctx, "*")
		deleted = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if o.durable != nil {
		if err := o.durable.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return failed[int](&domain.Error{Kind: domain.KindCacheUnavailable, Op: op, Err: err})
	}
	o.logger.Info("cache cleared", "hotKeys", deleted)
	return Result[int]{Success: true, Data: deleted}
}

// writeQuotes は気配を銘柄ごとのホットキーと永続層のスナップショットに書き込みます。
func (o *Orchestrator) writeQuotes(ctx context.Context, op string, quotes []entity.RealtimeQuote) {
	for i := range quotes {
		o.hotSet(ctx, quoteKey(quotes[i].Code), &quotes[i], o.cfg.QuoteTTL)
	}
	if o.durable != nil {
		if err := o.durable.UpsertQuoteSnapshots(ctx, quotes); err != nil {
			o.logger.Warn("durable cache write failed", "op", op, "error", err)
		}
	}
}

// hotGet はホット層の値を dst にデコードします。壊れたエントリは削除してミス扱いにします。
func (o *Orchestrator) hotGet(ctx context.Context, key string, dst any) bool {
	if o.hot == nil {
		return false
	}
	b, err := o.hot.Get(ctx, key)
	if err != nil {
		o.metrics.ObserveCacheLookup(tierHot, false)
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		o.logger.Warn("corrupted hot cache entry, deleting", "key", key, "error", err)
		if err := o.hot.Delete(ctx, key); err != nil {
			o.logger.Warn("failed to delete corrupted hot cache entry", "key", key, "error", err)
		}
		o.metrics.ObserveCacheLookup(tierHot, false)
		return false
	}
	o.metrics.ObserveCacheLookup(tierHot, true)
	return true
}

func (o *Orchestrator) hotSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if o.hot == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("failed to encode hot cache entry", "key", key, "error", err)
		return
	}
	if err := o.hot.Set(ctx, key, b, ttl); err != nil {
		o.logger.Warn("hot cache write failed", "key", key, "error", err)
	}
}

func (o *Orchestrator) logDurableErr(op string, err error) {
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		o.logger.Warn("durable cache read failed, treating as miss", "op", op, "error", err)
	}
}

func canonicalCode(code string) (string, error) {
	canon, err := stockcode.Canonical(code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCode, err)
	}
	return canon, nil
}

// canonicalCodes は入力を正規化し、順序を保ったまま重複を除きます。
func canonicalCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no codes: %w", domain.ErrInvalidCode)
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		canon, err := canonicalCode(c)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[canon]; ok {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out, nil
}

type fetched[T any] struct {
	data    T
	adapter string
}

// fetch はフォールバックを実行します。single-flight 有効時は同じ key の同時実行を1回にまとめます。
// 共有された実行は呼び出し元のキャンセルでは止まりませんが、キャンセルした呼び出し元はすぐに戻ります。
func fetch[T any](ctx context.Context, o *Orchestrator, key, op string, call adapterCall[T]) (T, string, error) {
	if !o.cfg.SingleFlight {
		return runFallback(ctx, o, op, call)
	}
	ch := o.sf.DoChan(key, func() (any, error) {
		data, adapter, err := runFallback(context.WithoutCancel(ctx), o, op, call)
		return fetched[T]{data: data, adapter: adapter}, err
	})

	var zero T
	select {
	case <-ctx.Done():
		o.logger.Debug("caller left coalesced request", "op", op, "key", key, "error", ctx.Err())
		return zero, "", domain.NewTransportError("", op, ctx.Err())
	case r := <-ch:
		if r.Shared {
			o.logger.Debug("request coalesced", "op", op, "key", key)
		}
		f, _ := r.Val.(fetched[T])
		return f.data, f.adapter, r.Err
	}
}

// runFallback はアダプターを優先度順に1つずつ試し、最初の成功を返します。
// 全て失敗した場合は各アダプターの最後のエラーをまとめた FallbackExhaustedError を返します。
func runFallback[T any](ctx context.Context, o *Orchestrator, op string, call adapterCall[T]) (T, string, error) {
	var zero T
	adapters := o.dispatchOrder()
	failures := make([]domain.AdapterFailure, 0, len(adapters))

	for _, a := range adapters {
		data, err := callWithRetry(ctx, o, a, op, call)
		if err == nil {
			return data, a.Name(), nil
		}
		o.logger.Warn("adapter failed, falling back",
			slog.String("op", op),
			slog.String("adapter", a.Name()),
			slog.Any("error", err),
		)
		failures = append(failures, domain.AdapterFailure{Adapter: a.Name(), Err: err})
		if ctx.Err() != nil {
			break
		}
	}

	err := &domain.FallbackExhaustedError{Op: op, Failures: failures}
	o.logger.Error("all adapters failed", "op", op, "error", err)
	return zero, "", err
}
