package stallctl

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvothe17/peerengine/internal/serverstate"
)

func TestMonitorFiresOnStallAfterNoProgress(t *testing.T) {
	var fired atomic.Bool
	m := NewMonitor(20*time.Millisecond, func() { fired.Store(true) })
	m.Start()
	defer m.Stop()

	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
}

func TestMonitorDoesNotFireWhileProgressing(t *testing.T) {
	var fired atomic.Bool
	m := NewMonitor(40*time.Millisecond, func() { fired.Store(true) })
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(150 * time.Millisecond)
	var n int64
	for time.Now().Before(deadline) {
		n += 10
		m.Progress(n)
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, fired.Load())
}

func TestMonitorStopPreventsLateFire(t *testing.T) {
	var fired atomic.Bool
	m := NewMonitor(15*time.Millisecond, func() { fired.Store(true) })
	m.Start()
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRetryStatePendingOutbound(t *testing.T) {
	state := serverstate.New()
	r := NewRetryState(state)

	_, _, ok := r.PendingOutbound()
	assert.False(t, ok)

	state.SetOutgoing("/tmp/file.bin", 512)
	path, size, ok := r.PendingOutbound()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/file.bin", path)
	assert.Equal(t, int64(512), size)
}
