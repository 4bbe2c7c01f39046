package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGet_Success はボディとヘッダーが返り、既定UAと指定ヘッダーが送られることを検証します。
func TestGet_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://finance.sina.com.cn", r.Header.Get("Referer"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Header().Set("Content-Type", "application/javascript; charset=GBK")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := Get(context.Background(), NewHTTPClient(time.Second), "sina", srv.URL, map[string]string{
		"Referer": "https://finance.sina.com.cn",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Body))
	assert.Contains(t, res.ContentType, "GBK")
}

// TestGet_StatusError はステータス別のStatusErrorを検証します。
func TestGet_StatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantTemporary bool
	}{
		{name: "server error", status: http.StatusBadGateway, wantTemporary: true},
		{name: "too many requests", status: http.StatusTooManyRequests, wantTemporary: true},
		{name: "not found", status: http.StatusNotFound, wantTemporary: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := Get(context.Background(), NewHTTPClient(time.Second), "eastmoney", srv.URL, nil)
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
			assert.Equal(t, tt.wantTemporary, se.Temporary())
		})
	}
}

// TestGet_Timeout はクライアントタイムアウトがエラーとして返ることを検証します。
func TestGet_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := Get(context.Background(), NewHTTPClient(50*time.Millisecond), "eastmoney", srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout")
}
