package engine

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/requestqueue"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/wire"
)

// recordingDispatcher records every Dispatch call it receives and can be
// told to fail, for exercising the pump's error and immediate-vs-deferred
// paths without a real peer.Peer.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []uint32
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, sess *Session, msgID uint32, body wire.Body) error {
	d.mu.Lock()
	d.calls = append(d.calls, msgID)
	err := d.err
	d.mu.Unlock()
	return err
}

func (d *recordingDispatcher) calledIDs() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, len(d.calls))
	copy(out, d.calls)
	return out
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestListener(t *testing.T, d Dispatcher) (*Listener, string) {
	t.Helper()
	addr := freeAddr(t)
	q := requestqueue.New()
	log := eventlog.NewLog(8)
	flags := serverstate.NewFlags()
	return New(addr, d, q, log, flags), addr
}

func runListener(t *testing.T, l *Listener) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(30 * time.Millisecond)
	return cancel
}

func sendFrame(t *testing.T, addr string, body wire.Body) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.WriteMessage(conn, body))
}

func TestHandleConnDispatchesImmediateTypesSynchronously(t *testing.T) {
	d := &recordingDispatcher{}
	l, addr := newTestListener(t, d)
	runListener(t, l)

	sendFrame(t, addr, wire.FileTransferRejectedBody{Sender: wire.Endpoint{IP: "127.0.0.1", Port: 9000}})

	require.Eventually(t, func() bool {
		return len(d.calledIDs()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleConnDefersQueueableTypes(t *testing.T) {
	d := &recordingDispatcher{}
	l, addr := newTestListener(t, d)
	runListener(t, l)

	sendFrame(t, addr, wire.ServerInfoRequestBody{Sender: wire.Endpoint{IP: "127.0.0.1", Port: 9000}})

	require.Eventually(t, func() bool {
		pending, _ := l.queue.Counts()
		return pending == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, d.calledIDs())

	ran, err := l.ProcessNextDeferred(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Len(t, d.calledIDs(), 1)
}

func TestDispatchNowRestoresIdleFlag(t *testing.T) {
	d := &recordingDispatcher{}
	l, addr := newTestListener(t, d)
	flags := l.flags
	assert.True(t, flags.Idle.Load())
	runListener(t, l)

	sendFrame(t, addr, wire.FileTransferAcceptedBody{Sender: wire.Endpoint{IP: "127.0.0.1", Port: 9000}})

	require.Eventually(t, func() bool {
		return len(d.calledIDs()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, flags.Idle.Load())
}

func TestDispatchNowEmitsErrorEventOnHandlerFailure(t *testing.T) {
	boom := assert.AnError
	d := &recordingDispatcher{err: boom}
	l, addr := newTestListener(t, d)
	runListener(t, l)

	events := l.log.Observer()
	sendFrame(t, addr, wire.FileTransferRejectedBody{Sender: wire.Endpoint{IP: "127.0.0.1", Port: 9000}})

	select {
	case ev := <-events:
		errEv, ok := ev.(eventlog.ErrorOccurred)
		require.True(t, ok)
		assert.ErrorIs(t, errEv.Err, boom)
	case <-time.After(time.Second):
		t.Fatal("expected an ErrorOccurred event")
	}
}

func TestProcessByIDRefusesUnknownID(t *testing.T) {
	d := &recordingDispatcher{}
	l, _ := newTestListener(t, d)
	err := l.ProcessByID(context.Background(), 999)
	assert.ErrorIs(t, err, requestqueue.ErrInvalidID)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	d := &recordingDispatcher{}
	l, _ := newTestListener(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.flags.Listening.Load())

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.False(t, l.flags.Listening.Load())
}
