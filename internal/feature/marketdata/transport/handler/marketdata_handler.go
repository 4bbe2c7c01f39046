// Package handler はmarketdataフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/transport/http/dto"
	"marketdata_backend/internal/feature/marketdata/usecase"
	"marketdata_backend/internal/platform/http/middleware"
)

// MarketdataUsecase は市場データ取得とキャッシュ管理のユースケースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type MarketdataUsecase interface {
	GetStockList(ctx context.Context, opts entity.StockListOptions) usecase.Result[[]entity.StockBasic]
	GetQuote(ctx context.Context, code string, opts entity.QuoteOptions) usecase.Result[*entity.RealtimeQuote]
	GetRealtimeQuotes(ctx context.Context, codes []string, opts entity.QuoteOptions) usecase.Result[[]entity.RealtimeQuote]
	GetKline(ctx context.Context, code string, interval entity.Interval, opts entity.KlineOptions) usecase.Result[[]entity.KlineBar]
	GetAdapterHealth() []entity.AdapterHealth
	GetCacheStats(ctx context.Context) usecase.Result[entity.CacheStats]
	InvalidateCache(ctx context.Context, code string) usecase.Result[int]
	ClearCache(ctx context.Context) usecase.Result[int]
}

var _ MarketdataUsecase = (*usecase.Orchestrator)(nil)

// MarketdataHandler は市場データのHTTPリクエストを処理します。
type MarketdataHandler struct {
	uc MarketdataUsecase
}

// NewMarketdataHandler は MarketdataHandler を生成します。
func NewMarketdataHandler(uc MarketdataUsecase) *MarketdataHandler {
	return &MarketdataHandler{uc: uc}
}

// ListStocks は銘柄一覧を返します。
//
// GET /api/v1/stocks?force=true
func (h *MarketdataHandler) ListStocks(c *gin.Context) {
	opts := entity.StockListOptions{ForceRefresh: c.Query("force") == "true"}
	respond(c, "list stocks", h.uc.GetStockList(c.Request.Context(), opts))
}

// GetQuotes はカンマ区切りで指定された複数銘柄の気配を返します。
//
// GET /api/v1/quotes?codes=600000,000001&force=true
func (h *MarketdataHandler) GetQuotes(c *gin.Context) {
	var q dto.QuotesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	opts := entity.QuoteOptions{ForceRefresh: q.Force}
	respond(c, "get quotes", h.uc.GetRealtimeQuotes(c.Request.Context(), q.CodeList(), opts))
}

// GetQuote は1銘柄の気配を返します。
//
// GET /api/v1/quotes/:code
func (h *MarketdataHandler) GetQuote(c *gin.Context) {
	opts := entity.QuoteOptions{ForceRefresh: c.Query("force") == "true"}
	respond(c, "get quote", h.uc.GetQuote(c.Request.Context(), c.Param("code"), opts))
}

// GetKline はローソク足を返します。interval 未指定時は日足です。
//
// GET /api/v1/kline/:code?interval=1d&start=2024-01-01&end=2024-06-30&limit=100&adjust=qfq
func (h *MarketdataHandler) GetKline(c *gin.Context) {
	var q dto.KlineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Interval == "" {
		q.Interval = string(entity.Interval1d)
	}
	interval, err := entity.ParseInterval(q.Interval)
	if err != nil {
		badRequest(c, err)
		return
	}
	start, err := dto.ParseTime(q.Start)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := dto.ParseTime(q.End)
	if err != nil {
		badRequest(c, err)
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		badRequest(c, fmt.Errorf("end %s is before start %s", q.End, q.Start))
		return
	}

	opts := entity.KlineOptions{
		Start:        start,
		End:          end,
		Limit:        q.Limit,
		ForceRefresh: q.Force,
	}
	if q.Adjust != "none" {
		opts.Adjust = entity.Adjust(q.Adjust)
	}
	respond(c, "get kline", h.uc.GetKline(c.Request.Context(), c.Param("code"), interval, opts))
}

// SourcesHealth は登録済みアダプターの稼働状況を返します。
//
// GET /api/v1/sources/health
func (h *MarketdataHandler) SourcesHealth(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, dto.Envelope{Success: true, Data: h.uc.GetAdapterHealth()})
}

// CacheStats はキャッシュ層ごとの統計を返します。
//
// GET /api/v1/cache/stats
func (h *MarketdataHandler) CacheStats(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	respond(c, "cache stats", h.uc.GetCacheStats(c.Request.Context()))
}

// InvalidateCode は1銘柄分のキャッシュを削除します。
//
// DELETE /api/v1/cache/:code
func (h *MarketdataHandler) InvalidateCode(c *gin.Context) {
	res := h.uc.InvalidateCache(c.Request.Context(), c.Param("code"))
	respond(c, "invalidate cache", mapDeleted(res))
}

// ClearCache は全キャッシュを削除します。
//
// DELETE /api/v1/cache
func (h *MarketdataHandler) ClearCache(c *gin.Context) {
	res := h.uc.ClearCache(c.Request.Context())
	respond(c, "clear cache", mapDeleted(res))
}

func mapDeleted(res usecase.Result[int]) usecase.Result[dto.CacheClearResponse] {
	return usecase.Result[dto.CacheClearResponse]{
		Success:   res.Success,
		Data:      dto.CacheClearResponse{Deleted: res.Data},
		Error:     res.Error,
		ErrorKind: res.ErrorKind,
		Cached:    res.Cached,
		Err:       res.Err,
	}
}

// respond はエンベロープをHTTPステータスに対応付けて書き出します。
func respond[T any](c *gin.Context, op string, res usecase.Result[T]) {
	env := dto.Envelope{
		Success:   res.Success,
		Error:     res.Error,
		ErrorKind: string(res.ErrorKind),
		Adapter:   res.Adapter,
		Cached:    res.Cached,
	}
	if res.Success {
		env.Data = res.Data
		c.JSON(http.StatusOK, env)
		return
	}

	status := statusFor(res)
	log := middleware.Logger(c)
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", res.Error, "kind", res.ErrorKind)
	} else {
		log.Warn(op+" rejected", "error", res.Error, "kind", res.ErrorKind)
	}
	c.JSON(status, env)
}

// statusFor はエラー種別からHTTPステータスを決めます。
// 全アダプターが「該当なし」で失敗した場合のみ404とします。
func statusFor[T any](res usecase.Result[T]) int {
	switch res.ErrorKind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindFallbackExhausted:
		if allNotFound(res.Err) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case domain.KindCacheUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func allNotFound(err error) bool {
	var fe *domain.FallbackExhaustedError
	if !errors.As(err, &fe) || len(fe.Failures) == 0 {
		return false
	}
	for _, f := range fe.Failures {
		if domain.KindOf(f.Err) != domain.KindNotFound {
			return false
		}
	}
	return true
}

func badRequest(c *gin.Context, err error) {
	middleware.Logger(c).Warn("invalid request", "error", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusBadRequest, dto.Envelope{
		Error:     err.Error(),
		ErrorKind: string(domain.KindInvalidRequest),
	})
}
