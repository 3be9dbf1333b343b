package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_TrackSeedsUnknown(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error { return nil })
	m.Track("github")

	r, ok := m.Record("github")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, r.Status)
	assert.False(t, m.IsHealthy("github"))
}

func TestMonitor_UntrackDiscardsRecord(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error { return nil })
	m.Track("github")
	m.Untrack("github")

	_, ok := m.Record("github")
	assert.False(t, ok)
}

func TestMonitor_CheckOne_SuccessMarksHealthy(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error { return nil })
	m.Track("github")
	m.checkOne(context.Background(), "github")

	r, _ := m.Record("github")
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Zero(t, r.ConsecutiveFailures)
	assert.False(t, r.LastSuccess.IsZero())
}

func TestMonitor_CheckOne_FailureBelowThresholdStaysUnknown(t *testing.T) {
	m := New(time.Hour, time.Second, 3, func(ctx context.Context, backend string) error {
		return fmt.Errorf("connection refused")
	})
	m.Track("github")
	m.checkOne(context.Background(), "github")

	r, _ := m.Record("github")
	assert.Equal(t, StatusUnknown, r.Status)
	assert.Equal(t, 1, r.ConsecutiveFailures)
	assert.Equal(t, "connection refused", r.LastError)
}

func TestMonitor_CheckOne_FailureAtThresholdFlipsUnhealthy(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error {
		return fmt.Errorf("boom")
	})
	m.Track("github")
	m.checkOne(context.Background(), "github")
	m.checkOne(context.Background(), "github")

	r, _ := m.Record("github")
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, 2, r.ConsecutiveFailures)
}

func TestMonitor_RecoveryResetsFailureCount(t *testing.T) {
	var fail int32 = 1
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error {
		if atomic.LoadInt32(&fail) == 1 {
			return fmt.Errorf("down")
		}
		return nil
	})
	m.Track("github")
	m.checkOne(context.Background(), "github")
	m.checkOne(context.Background(), "github")
	r, _ := m.Record("github")
	assert.Equal(t, StatusUnhealthy, r.Status)

	atomic.StoreInt32(&fail, 0)
	m.checkOne(context.Background(), "github")

	r, _ = m.Record("github")
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Zero(t, r.ConsecutiveFailures)
}

func TestMonitor_CheckAll_OneFailureDoesNotCancelSiblings(t *testing.T) {
	m := New(time.Hour, time.Second, 1, func(ctx context.Context, backend string) error {
		if backend == "flaky" {
			return fmt.Errorf("down")
		}
		return nil
	})
	m.Track("flaky")
	m.Track("stable")

	m.checkAll(context.Background())

	flaky, _ := m.Record("flaky")
	stable, _ := m.Record("stable")
	assert.Equal(t, StatusUnhealthy, flaky.Status)
	assert.Equal(t, StatusHealthy, stable.Status)
}

func TestMonitor_StartStop(t *testing.T) {
	var calls int32
	m := New(20*time.Millisecond, time.Second, 2, func(ctx context.Context, backend string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	m.Track("github")

	m.Start(context.Background())
	assert.True(t, m.IsRunning())
	// Start performs one synchronous cycle before returning.
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))

	time.Sleep(60 * time.Millisecond)
	m.Stop()

	assert.False(t, m.IsRunning())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestMonitor_StartTwiceWarnsAndNoops(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error { return nil })
	m.Start(context.Background())
	defer m.Stop()

	assert.NotPanics(t, func() { m.Start(context.Background()) })
	assert.True(t, m.IsRunning())
}

func TestMonitor_StopIdempotent(t *testing.T) {
	m := New(time.Hour, time.Second, 2, func(ctx context.Context, backend string) error { return nil })
	m.Start(context.Background())
	m.Stop()
	assert.NotPanics(t, func() { m.Stop() })
}
