// Package router はHTTPルーティングを組み立てます。
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	mdhandler "marketdata_backend/internal/feature/marketdata/transport/handler"
	"marketdata_backend/internal/platform/http/handler"
	"marketdata_backend/internal/platform/http/middleware"
	"marketdata_backend/internal/platform/metrics"
)

// readinessTimeout は /readyz の依存先確認全体のタイムアウトです。
const readinessTimeout = 2 * time.Second

// NewRouter はginエンジンを生成し、全ルートを登録します。
// checks は /readyz で実行する依存先の疎通確認です。
func NewRouter(md *mdhandler.MarketdataHandler, m *metrics.Metrics, checks ...handler.Check) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), m.Middleware())

	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.GET("/readyz", handler.Readiness(readinessTimeout, checks...))
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stocks", md.ListStocks)
		v1.GET("/quotes", md.GetQuotes)
		v1.GET("/quotes/:code", md.GetQuote)
		v1.GET("/kline/:code", md.GetKline)
		v1.GET("/sources/health", md.SourcesHealth)

		// キャッシュ管理
		v1.GET("/cache/stats", md.CacheStats)
		v1.DELETE("/cache/:code", md.InvalidateCode)
		v1.DELETE("/cache", md.ClearCache)
	}

	return r
}
