// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health はプロセスの生存確認用 /healthz エンドポイントを処理します。
// 依存先の状態は見ません。依存先の確認は Readiness が行います。
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Check は名前付きの依存先疎通確認です。
type Check struct {
	Name string
	// Required が false の場合、失敗しても degraded として200を返します。
	Required bool
	Ping     func(ctx context.Context) error
}

// ReadinessResponse は /readyz のレスポンスです。
type ReadinessResponse struct {
	Status string            `json:"status"` // ok / degraded / unavailable
	Checks map[string]string `json:"checks"`
}

// Readiness は checks を順に実行し、依存先の状態を返します。
// 必須の確認が1つでも失敗した場合は503を返します。
func Readiness(timeout time.Duration, checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		resp := ReadinessResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				resp.Checks[chk.Name] = err.Error()
				if chk.Required {
					resp.Status = "unavailable"
				} else if resp.Status == "ok" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Checks[chk.Name] = "ok"
		}

		status := http.StatusOK
		if resp.Status == "unavailable" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}
