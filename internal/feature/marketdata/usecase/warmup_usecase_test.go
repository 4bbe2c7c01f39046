package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
)

// mockReader is a mock implementation of the MarketReader interface.
type mockReader struct {
	stockListErr error
	failKline    map[string]bool

	mu         sync.Mutex
	quoteReqs  [][]string
	klineOpts  []entity.KlineOptions
	klineCalls atomic.Int32
}

func (m *mockReader) GetStockList(_ context.Context, opts entity.StockListOptions) Result[[]entity.StockBasic] {
	if !opts.ForceRefresh {
		return failed[[]entity.StockBasic](errors.New("warmup must bypass caches"))
	}
	if m.stockListErr != nil {
		return failed[[]entity.StockBasic](m.stockListErr)
	}
	return served([]entity.StockBasic{{Code: "600000"}}, "mock")
}

func (m *mockReader) GetRealtimeQuotes(_ context.Context, codes []string, opts entity.QuoteOptions) Result[[]entity.RealtimeQuote] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !opts.ForceRefresh {
		return failed[[]entity.RealtimeQuote](errors.New("warmup must bypass caches"))
	}
	m.quoteReqs = append(m.quoteReqs, codes)
	return served([]entity.RealtimeQuote{}, "mock")
}

func (m *mockReader) GetKline(_ context.Context, code string, interval entity.Interval, opts entity.KlineOptions) Result[[]entity.KlineBar] {
	m.klineCalls.Add(1)
	m.mu.Lock()
	m.klineOpts = append(m.klineOpts, opts)
	m.mu.Unlock()
	if m.failKline[code+"/"+string(interval)] {
		return failed[[]entity.KlineBar](&domain.FallbackExhaustedError{Op: "getKline"})
	}
	return served([]entity.KlineBar{}, "mock")
}

// mockLimiter is a mock implementation of the ratelimiter.Limiter interface.
type mockLimiter struct {
	WaitCalls atomic.Int32
}

func (m *mockLimiter) Wait(ctx context.Context) error {
	m.WaitCalls.Add(1)
	// For testing purposes, return immediately without waiting
	return ctx.Err()
}

func TestWarmupUsecase_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	reader := &mockReader{failKline: map[string]bool{"000001/1w": true}}
	limiter := &mockLimiter{}
	cfg := WarmupConfig{
		Intervals:      []entity.Interval{entity.Interval1d, entity.Interval1w},
		Lookback:       30 * 24 * time.Hour,
		Concurrency:    2,
		QuoteBatchSize: 2,
	}
	uc := NewWarmupUsecase(reader, limiter, cfg)
	uc.now = func() time.Time { return now }

	report, err := uc.Run(context.Background(), []string{"600000", "000001", "830799"})
	require.NoError(t, err)

	assert.True(t, report.StockList)
	// 2 quote batches + 6 kline requests, one of which fails
	assert.Equal(t, 7, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int32(8), limiter.WaitCalls.Load())
	assert.ElementsMatch(t, [][]string{{"600000", "000001"}, {"830799"}}, reader.quoteReqs)
	assert.Equal(t, int32(6), reader.klineCalls.Load())
	for _, o := range reader.klineOpts {
		assert.True(t, o.ForceRefresh)
		assert.Equal(t, now.Add(-30*24*time.Hour), o.Start)
	}
}

func TestWarmupUsecase_Run_StockListFailureContinues(t *testing.T) {
	t.Parallel()

	reader := &mockReader{stockListErr: errors.New("all adapters failed")}
	uc := NewWarmupUsecase(reader, nil, WarmupConfig{Intervals: []entity.Interval{entity.Interval1d}})

	report, err := uc.Run(context.Background(), []string{"600000"})
	require.NoError(t, err)
	assert.False(t, report.StockList)
	assert.Equal(t, 2, report.Succeeded)
}

func TestWarmupUsecase_Run_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &mockReader{}
	uc := NewWarmupUsecase(reader, &mockLimiter{}, DefaultWarmupConfig())

	_, err := uc.Run(ctx, []string{"600000", "000001"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, reader.klineCalls.Load())
}
