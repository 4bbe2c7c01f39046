// Package upstream はアダプター共通の上流エラー分類を提供します。
package upstream

import (
	"context"
	"errors"

	"marketdata_backend/internal/feature/marketdata/domain"
	platformhttp "marketdata_backend/internal/platform/http"
)

// Classify は上流呼び出しで発生したエラーを domain.Error に分類します。
//   - 既に分類済みのエラーはそのまま返す
//   - 404 は NotFound、5xx/429 は Transport、その他の 4xx は Parse
//   - 呼び出し元のキャンセルは分類せずに返す（リトライ対象外）
//   - それ以外（接続失敗、タイムアウトなど）は Transport
func Classify(adapter, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *platformhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 404:
			return domain.NewNotFoundError(adapter, op, se.Error())
		case se.Temporary():
			return domain.NewTransportError(adapter, op, err)
		default:
			return domain.NewParseError(adapter, op, err)
		}
	}
	return domain.NewTransportError(adapter, op, err)
}
