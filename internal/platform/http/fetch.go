// Package http は上流API呼び出し用のHTTPクライアントと共通の取得処理を提供します。
package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxBodyBytes は1レスポンスで読み込む上限です。
const maxBodyBytes = 32 << 20

// StatusError は上流が 4xx/5xx を返したことを表します。
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d", e.Provider, e.Code)
}

// Temporary は 5xx と 429 を一時的な障害として扱います。
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Response は取得したボディとContent-Typeです。
type Response struct {
	Body        []byte
	ContentType string
}

// Get はGETリクエストを発行し、ボディを読み切って返します。
// ステータスが400以上の場合は *StatusError を返します。
func Get(ctx context.Context, client *http.Client, provider, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "provider", provider, "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		// 接続を再利用できるよう読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{Provider: provider, Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", provider, err)
	}
	return &Response{Body: body, ContentType: res.Header.Get("Content-Type")}, nil
}
