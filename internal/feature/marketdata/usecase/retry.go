package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"marketdata_backend/internal/feature/marketdata/domain"
)

// RetryPolicy はアダプター呼び出し1回分の再試行方針です。
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy は最大3回、1秒から始まり10秒で頭打ちになる指数バックオフです。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = 0
	return b
}

func (p RetryPolicy) maxTries() uint {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// adapterCall は1つのアダプターに対する操作です。
type adapterCall[T any] func(ctx context.Context, a SourceAdapter) (T, error)

// callWithRetry は再試行可能なエラーの間だけ call を繰り返します。
// 再試行不能なエラーは1回で打ち切ります。失敗時のエラーには試行回数が付与されます。
func callWithRetry[T any](ctx context.Context, o *Orchestrator, a SourceAdapter, op string, call adapterCall[T]) (T, error) {
	name := a.Name()
	attempts := 0

	data, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		start := time.Now()
		v, err := call(ctx, a)
		o.metrics.ObserveAdapterCall(name, op, time.Since(start), err)
		if err != nil && !domain.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(o.cfg.Retry.newBackOff()),
		backoff.WithMaxTries(o.cfg.Retry.maxTries()),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Warn("adapter call failed, retrying",
				slog.String("adapter", name),
				slog.String("op", op),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", next),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		return data, withAttempts(name, op, attempts, err)
	}
	return data, nil
}

// withAttempts は最後のエラーに試行回数を記録します。
// 同じアダプターの分類済みエラーは二重に包まずコピーして更新します。
func withAttempts(adapter, op string, attempts int, err error) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Adapter == adapter {
		cp := *de
		cp.Attempts = attempts
		return &cp
	}
	kind := domain.KindOf(err)
	switch {
	case kind != "":
	case errors.Is(err, context.Canceled):
		kind = domain.KindTransport
	default:
		kind = domain.KindParse
	}
	return &domain.Error{Kind: kind, Adapter: adapter, Op: op, Attempts: attempts, Err: err}
}
