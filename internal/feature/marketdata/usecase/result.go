package usecase

import "marketdata_backend/internal/feature/marketdata/domain"

// Result はオーケストレーターが返す共通のエンベロープです。
type Result[T any] struct {
	Success   bool             `json:"success"`
	Data      T                `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind domain.ErrorKind `json:"errorKind,omitempty"`
	Adapter   string           `json:"adapter,omitempty"`
	Cached    bool             `json:"cached"`

	// Err は Error の元になった構造化エラーです。
	Err error `json:"-"`
}

func served[T any](data T, adapter string) Result[T] {
	return Result[T]{Success: true, Data: data, Adapter: adapter}
}

func fromCache[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data, Cached: true}
}

func failed[T any](err error) Result[T] {
	return Result[T]{Error: err.Error(), ErrorKind: domain.KindOf(err), Err: err}
}
