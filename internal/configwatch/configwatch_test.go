package configwatch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_TriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpmux.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	var calls int32
	w := New(path, func() { atomic.AddInt32(&calls, 1) })
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers":{}}`), 0644))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpmux.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	var calls int32
	w := New(path, func() { atomic.AddInt32(&calls, 1) })
	w.debounce = 100 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(path, []byte(`{"n":`+string(rune('0'+i))+`}`), 0644)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "rapid writes within the debounce window should coalesce into one callback")
}

func TestWatcher_StartOnMissingPathErrors(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "does-not-exist", "mcpmux.json"), func() {})
	err := w.Start()
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpmux.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	w := New(path, func() {})
	require.NoError(t, w.Start())
	w.Stop()
	assert.NotPanics(t, func() { w.Stop() })
}

func TestWatcher_StoppedWatcherDoesNotScheduleReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpmux.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	var calls int32
	w := New(path, func() { atomic.AddInt32(&calls, 1) })
	w.Stop() // stop before any write; scheduleReload should be a no-op forever after
	w.scheduleReload()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
