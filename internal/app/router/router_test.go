package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	mdhandler "marketdata_backend/internal/feature/marketdata/transport/handler"
	"marketdata_backend/internal/feature/marketdata/usecase"
	"marketdata_backend/internal/platform/http/handler"
	"marketdata_backend/internal/platform/http/middleware"
	"marketdata_backend/internal/platform/metrics"
)

func newTestRouter(checks ...handler.Check) *gin.Engine {
	gin.SetMode(gin.TestMode)
	// アダプター・キャッシュ層なしのオーケストレーター
	orch := usecase.NewOrchestrator(nil, nil)
	return NewRouter(mdhandler.NewMarketdataHandler(orch), metrics.New("test"), checks...)
}

func TestNewRouter_Routes(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodHead, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/api/v1/sources/health", http.StatusOK},
		{http.MethodGet, "/api/v1/cache/stats", http.StatusOK},
		{http.MethodDelete, "/api/v1/cache", http.StatusOK},
		{http.MethodGet, "/api/v1/quotes/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/stocks", http.StatusBadGateway},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID), "%s %s", tt.method, tt.path)
	}
}

func TestNewRouter_MetricsExposeRequests(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestNewRouter_ReadinessUsesChecks(t *testing.T) {
	t.Parallel()

	r := newTestRouter(handler.Check{
		Name:     "db",
		Required: true,
		Ping:     func(context.Context) error { return errors.New("down") },
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
