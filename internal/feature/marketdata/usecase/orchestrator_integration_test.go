package usecase_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"marketdata_backend/internal/feature/marketdata/adapters/eastmoney"
	"marketdata_backend/internal/feature/marketdata/adapters/sina"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/usecase"
	"marketdata_backend/internal/platform/cache"
	platformhttp "marketdata_backend/internal/platform/http"
)

const spdbLine = `var hq_str_sh600000="浦发银行,7.23,7.24,7.25,7.30,7.20,7.24,7.25,12345600,89500000.00,` +
	`100,7.24,200,7.23,300,7.22,400,7.21,500,7.20,` +
	`150,7.25,250,7.26,350,7.27,450,7.28,550,7.29,2024-01-03,09:45:03,00";`

// setupIntegration は常にタイムアウトするEastmoneyと正常応答するSinaを登録したオーケストレーターを返します。
func setupIntegration(t *testing.T) (*usecase.Orchestrator, *miniredis.Miniredis, *atomic.Int32, *atomic.Int32) {
	t.Helper()

	var emCalls, sinaCalls atomic.Int32
	em := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		emCalls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(em.Close)

	line, err := simplifiedchinese.GBK.NewEncoder().String(spdbLine)
	require.NoError(t, err)
	sn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinaCalls.Add(1)
		w.Header().Set("Content-Type", "application/javascript; charset=GBK")
		_, _ = w.Write([]byte(line))
	}))
	t.Cleanup(sn.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	emCfg := eastmoney.DefaultConfig()
	emCfg.QuoteURL = em.URL
	sinaCfg := sina.DefaultConfig()
	sinaCfg.QuoteURL = sn.URL

	o := usecase.NewOrchestrator(cache.NewRedisTier(rdb, "test"), nil,
		usecase.WithRetryPolicy(usecase.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}))
	o.RegisterAdapter(eastmoney.NewAdapter(emCfg, platformhttp.NewHTTPClient(50*time.Millisecond)), 3)
	o.RegisterAdapter(sina.NewAdapter(sinaCfg, platformhttp.NewHTTPClient(time.Second)), 1)

	return o, mr, &emCalls, &sinaCalls
}

// TestOrchestrator_EastmoneyTimeoutFallsBackToSina はEastmoneyが3回タイムアウトした後にSinaの気配を返すことを検証します。
func TestOrchestrator_EastmoneyTimeoutFallsBackToSina(t *testing.T) {
	t.Parallel()

	o, _, emCalls, sinaCalls := setupIntegration(t)
	require.NoError(t, o.Initialize(context.Background()))

	res := o.GetQuote(context.Background(), "600000", entity.QuoteOptions{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Sina", res.Adapter)
	assert.False(t, res.Cached)
	assert.Equal(t, "600000", res.Data.Code)
	assert.Equal(t, 7.25, res.Data.Price)
	assert.Equal(t, int32(3), emCalls.Load())
	assert.Equal(t, int32(1), sinaCalls.Load())

	health := o.GetAdapterHealth()
	require.Len(t, health, 2)
	assert.Equal(t, "Eastmoney", health[0].AdapterName)
	assert.Equal(t, int64(3), health[0].ErrorCount)
	assert.Equal(t, "Sina", health[1].AdapterName)
	assert.Zero(t, health[1].ErrorCount)
}

// TestOrchestrator_QuoteTTLExpiry はTTL内はキャッシュから返し、TTL経過後は再取得することを検証します。
func TestOrchestrator_QuoteTTLExpiry(t *testing.T) {
	t.Parallel()

	o, mr, emCalls, sinaCalls := setupIntegration(t)
	ctx := context.Background()

	first := o.GetQuote(ctx, "600000", entity.QuoteOptions{})
	require.True(t, first.Success, first.Error)

	mr.FastForward(29 * time.Second)
	cached := o.GetQuote(ctx, "600000", entity.QuoteOptions{})
	require.True(t, cached.Success)
	assert.True(t, cached.Cached)
	assert.Equal(t, 7.25, cached.Data.Price)
	assert.Equal(t, int32(3), emCalls.Load())
	assert.Equal(t, int32(1), sinaCalls.Load())

	mr.FastForward(2 * time.Second)
	expired := o.GetQuote(ctx, "600000", entity.QuoteOptions{})
	require.True(t, expired.Success)
	assert.False(t, expired.Cached)
	assert.Equal(t, "Sina", expired.Adapter)
	assert.Equal(t, int32(6), emCalls.Load())
	assert.Equal(t, int32(2), sinaCalls.Load())

	stats := o.GetCacheStats(ctx)
	require.True(t, stats.Success)
	assert.True(t, stats.Data.Hot.Available)
	assert.Equal(t, int64(1), stats.Data.Hot.Hits)
}
