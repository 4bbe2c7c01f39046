package health

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestTracker_Threshold はエラー累積で unhealthy になり、成功で回復することを検証します。
func TestTracker_Threshold(t *testing.T) {
	t.Parallel()

	tr := NewTracker("Eastmoney", 0)
	assert.True(t, tr.Healthy(), "new tracker starts healthy")

	for i := 0; i < DefaultThreshold-1; i++ {
		tr.RecordFailure()
	}
	assert.True(t, tr.Healthy(), "below threshold stays healthy")

	tr.RecordFailure()
	assert.False(t, tr.Healthy(), "reaching threshold marks unhealthy")
	assert.Equal(t, int64(DefaultThreshold), tr.Snapshot().ErrorCount)

	tr.RecordSuccess(20 * time.Millisecond)
	assert.True(t, tr.Healthy(), "one success decays below threshold")
	assert.Equal(t, int64(20), tr.Snapshot().LatencyMs)
}

// TestTracker_FloorAtZero は成功が続いてもカウンターが負にならないことを検証します。
func TestTracker_FloorAtZero(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	tr := NewTracker("Sina", 3).WithClock(func() time.Time { return fixed })

	tr.RecordSuccess(time.Millisecond)
	tr.RecordSuccess(time.Millisecond)

	snap := tr.Snapshot()
	assert.Equal(t, int64(0), snap.ErrorCount)
	assert.Equal(t, "Sina", snap.AdapterName)
	assert.True(t, snap.LastCheckedAt.Equal(fixed))
}

// TestTracker_Observe は結果に応じた振り分けを検証します。
func TestTracker_Observe(t *testing.T) {
	t.Parallel()

	tr := NewTracker("Sina", 2)
	tr.Observe(time.Now(), errors.New("boom"))
	tr.Observe(time.Now(), errors.New("boom"))
	assert.False(t, tr.Healthy())

	tr.Observe(time.Now(), nil)
	assert.True(t, tr.Healthy())
}

// TestTracker_Concurrent は並行更新でもカウンターが失われないことを検証します。
func TestTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tr := NewTracker("Eastmoney", 1000)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordFailure()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), tr.Snapshot().ErrorCount)
}
