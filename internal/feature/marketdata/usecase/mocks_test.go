package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
)

// callLog はアダプター呼び出しの順序を記録します。
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// mockAdapter is a mock implementation of the SourceAdapter interface.
type mockAdapter struct {
	name string
	log  *callLog

	GetStockListFunc      func(ctx context.Context) ([]entity.StockBasic, error)
	GetRealtimeQuotesFunc func(ctx context.Context, codes []string, opts entity.QuoteOptions) ([]entity.RealtimeQuote, error)
	GetQuoteFunc          func(ctx context.Context, code string) (*entity.RealtimeQuote, error)
	GetKlineFunc          func(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) ([]entity.KlineBar, error)

	health entity.AdapterHealth
	calls  atomic.Int32
}

func newMockAdapter(name string, log *callLog) *mockAdapter {
	return &mockAdapter{name: name, log: log, health: entity.AdapterHealth{AdapterName: name, Healthy: true}}
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) record() {
	m.calls.Add(1)
	m.log.add(m.name)
}

func (m *mockAdapter) GetStockList(ctx context.Context) ([]entity.StockBasic, error) {
	m.record()
	if m.GetStockListFunc != nil {
		return m.GetStockListFunc(ctx)
	}
	return nil, errors.New("GetStockListFunc is not implemented")
}

func (m *mockAdapter) GetRealtimeQuotes(ctx context.Context, codes []string, opts entity.QuoteOptions) ([]entity.RealtimeQuote, error) {
	m.record()
	if m.GetRealtimeQuotesFunc != nil {
		return m.GetRealtimeQuotesFunc(ctx, codes, opts)
	}
	return nil, errors.New("GetRealtimeQuotesFunc is not implemented")
}

func (m *mockAdapter) GetQuote(ctx context.Context, code string) (*entity.RealtimeQuote, error) {
	m.record()
	if m.GetQuoteFunc != nil {
		return m.GetQuoteFunc(ctx, code)
	}
	return nil, errors.New("GetQuoteFunc is not implemented")
}

func (m *mockAdapter) GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) ([]entity.KlineBar, error) {
	m.record()
	if m.GetKlineFunc != nil {
		return m.GetKlineFunc(ctx, code, interval, opts)
	}
	return nil, errors.New("GetKlineFunc is not implemented")
}

func (m *mockAdapter) GetHealth() entity.AdapterHealth { return m.health }
func (m *mockAdapter) IsAvailable() bool              { return m.health.Healthy }

// memHot is an in-memory HotCache. TTLs are recorded but never expire.
type memHot struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	setErr  error
	deletes []string
}

func newMemHot() *memHot {
	return &memHot{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (h *memHot) Get(_ context.Context, key string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.data[key]
	if !ok || len(b) == 0 {
		return nil, domain.ErrCacheMiss
	}
	return b, nil
}

func (h *memHot) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setErr != nil {
		return h.setErr
	}
	h.data[key] = value
	h.ttls[key] = ttl
	return nil
}

func (h *memHot) Delete(_ context.Context, keys ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		delete(h.data, k)
		h.deletes = append(h.deletes, k)
	}
	return nil
}

func (h *memHot) DeletePattern(_ context.Context, pattern string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range h.data {
		if strings.HasPrefix(k, prefix) {
			delete(h.data, k)
			n++
		}
	}
	return n, nil
}

func (h *memHot) Stats(context.Context) (entity.TierStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return entity.TierStats{Available: true, Keys: int64(len(h.data))}, nil
}

func (h *memHot) Ping(context.Context) error { return nil }
func (h *memHot) Close() error               { return nil }

func (h *memHot) has(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.data[key]
	return ok
}

// memDurable is an in-memory DurableCache.
type memDurable struct {
	mu         sync.Mutex
	quotes     map[string]entity.RealtimeQuote
	klines     map[string][]entity.KlineBar
	stocks     []entity.StockBasic
	klineReads int
	pingErr    error
	deleted    []string
	cleared    bool
}

func newMemDurable() *memDurable {
	return &memDurable{quotes: map[string]entity.RealtimeQuote{}, klines: map[string][]entity.KlineBar{}}
}

func klineKey(code string, interval entity.Interval) string { return code + "|" + string(interval) }

func (d *memDurable) GetQuoteSnapshot(_ context.Context, code string, _ time.Duration) (*entity.RealtimeQuote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.quotes[code]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &q, nil
}

func (d *memDurable) UpsertQuoteSnapshots(_ context.Context, quotes []entity.RealtimeQuote) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range quotes {
		d.quotes[q.Code] = q
	}
	return nil
}

func (d *memDurable) GetKlineRange(_ context.Context, code string, interval entity.Interval, _, _ time.Time) ([]entity.KlineBar, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.klineReads++
	return d.klines[klineKey(code, interval)], nil
}

func (d *memDurable) UpsertKline(_ context.Context, code string, interval entity.Interval, bars []entity.KlineBar) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.klines[klineKey(code, interval)] = bars
	return nil
}

func (d *memDurable) GetStockListSnapshot(context.Context) ([]entity.StockBasic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stocks) == 0 {
		return nil, domain.ErrCacheMiss
	}
	return d.stocks, nil
}

func (d *memDurable) UpsertStockListSnapshot(_ context.Context, stocks []entity.StockBasic) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stocks = stocks
	return nil
}

func (d *memDurable) DeleteCode(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.quotes, code)
	d.deleted = append(d.deleted, code)
	return nil
}

func (d *memDurable) Clear(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quotes = map[string]entity.RealtimeQuote{}
	d.klines = map[string][]entity.KlineBar{}
	d.stocks = nil
	d.cleared = true
	return nil
}

func (d *memDurable) Stats(context.Context) (map[string]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]int64{"quote_snapshots": int64(len(d.quotes)), "klines": int64(len(d.klines))}, nil
}

func (d *memDurable) Ping(context.Context) error { return d.pingErr }
func (d *memDurable) Close() error               { return nil }

// recordingMetrics counts observations.
type recordingMetrics struct {
	mu          sync.Mutex
	adapterErrs map[string]int
	lookups     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{adapterErrs: map[string]int{}, lookups: map[string]int{}}
}

func (r *recordingMetrics) ObserveAdapterCall(adapter, _ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.adapterErrs[adapter]++
	}
}

func (r *recordingMetrics) ObserveCacheLookup(tier string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.lookups[tier+":hit"]++
	} else {
		r.lookups[tier+":miss"]++
	}
}
