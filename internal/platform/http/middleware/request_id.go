// Package middleware はHTTPサーバー共通のginミドルウェアを提供します。
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを運ぶヘッダー名です。
const HeaderRequestID = "X-Request-ID"

// ContextRequestID はgin.Contextに保存するリクエストIDのキーです。
const ContextRequestID = "requestID"

// maxRequestIDLen を超える受信IDは採用せず新規に払い出します。
const maxRequestIDLen = 128

// RequestID は受信ヘッダーのIDを引き継ぐか、UUIDを払い出してレスポンスヘッダーに設定します。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// Logger はリクエストIDを付与したロガーを返します。
func Logger(c *gin.Context) *slog.Logger {
	if id := c.GetString(ContextRequestID); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// AccessLog は1リクエストごとにslogでアクセスログを出力します。
// 5xxはError、4xxはWarn、それ以外はInfoで記録します。
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		Logger(c).LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("remote_addr", c.ClientIP()),
		)
	}
}
