// Package health はアダプターごとの稼働状況カウンターを提供します。
package health

import (
	"sync/atomic"
	"time"

	"marketdata_backend/internal/feature/marketdata/domain/entity"
)

// DefaultThreshold はこの回数以上エラーが累積すると unhealthy と判定する閾値です。
const DefaultThreshold = 5

// Tracker は成功で減少、失敗で増加するエラーカウンターを持ちます。
// 並行するリクエストから同時に更新されるため全フィールドをアトミックに扱います。
type Tracker struct {
	name      string
	threshold int64

	errorCount  atomic.Int64
	latencyMs   atomic.Int64
	lastChecked atomic.Int64 // UnixNano, 0 は未計測

	now func() time.Time
}

// NewTracker は Tracker を生成します。threshold が 0 以下なら DefaultThreshold を使います。
func NewTracker(name string, threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{name: name, threshold: int64(threshold), now: time.Now}
}

// WithClock はテスト用に時計を差し替えます。
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RecordSuccess はエラーカウンターを1減らし（下限0）、レイテンシと確認時刻を更新します。
func (t *Tracker) RecordSuccess(latency time.Duration) {
	for {
		cur := t.errorCount.Load()
		if cur == 0 || t.errorCount.CompareAndSwap(cur, cur-1) {
			break
		}
	}
	t.latencyMs.Store(latency.Milliseconds())
	t.lastChecked.Store(t.now().UnixNano())
}

// RecordFailure はエラーカウンターを1増やし、確認時刻を更新します。
func (t *Tracker) RecordFailure() {
	t.errorCount.Add(1)
	t.lastChecked.Store(t.now().UnixNano())
}

// Observe は呼び出し結果に応じて RecordSuccess / RecordFailure を振り分けます。
func (t *Tracker) Observe(start time.Time, err error) {
	if err != nil {
		t.RecordFailure()
		return
	}
	t.RecordSuccess(t.now().Sub(start))
}

// Healthy は errorCount < threshold を返します。
func (t *Tracker) Healthy() bool {
	return t.errorCount.Load() < t.threshold
}

// Snapshot は現在のカウンターを AdapterHealth として返します。
func (t *Tracker) Snapshot() entity.AdapterHealth {
	h := entity.AdapterHealth{
		AdapterName: t.name,
		Healthy:     t.Healthy(),
		LatencyMs:   t.latencyMs.Load(),
		ErrorCount:  t.errorCount.Load(),
	}
	if ns := t.lastChecked.Load(); ns != 0 {
		h.LastCheckedAt = time.Unix(0, ns)
	}
	return h
}
