package recvpipe

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/wire"
)

func TestResolveDestinationJoinsIntoFolder(t *testing.T) {
	dir := t.TempDir()
	dest, err := ResolveDestination(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), dest)
}

func TestResolveDestinationStripsTraversal(t *testing.T) {
	dir := t.TempDir()
	dest, err := ResolveDestination(dir, "../../etc/passwd")
	require.NoError(t, err)
	// filepath.Base collapses the traversal to a bare filename before join.
	assert.Equal(t, filepath.Join(dir, "passwd"), dest)
}

func testHarness(t *testing.T) (*config.EngineConfig, *serverstate.State, *eventlog.Log, *serverstate.Flags) {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.StallTimeout = 2 * time.Second
	cfg.ReceiveTimeout = time.Second
	cfg.SendTimeout = time.Second
	return &cfg, serverstate.New(), eventlog.NewLog(16), serverstate.NewFlags()
}

func TestHandleRejectsWhenDestinationExists(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "existing.bin")
	require.NoError(t, os.WriteFile(destPath, []byte("already here"), 0o644))

	cfg, state, log, flags := testHarness(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	req := Request{RequestedPath: "existing.bin", FileSize: 4, Sender: wire.Endpoint{IP: "127.0.0.1", Port: 1}, SelfIP: "127.0.0.1", SelfPort: 2}

	done := make(chan error, 1)
	go func() {
		frame := &wire.Frame{}
		done <- Handle(1, serverConn, frame, req, destPath, *cfg, state, log, flags)
	}()

	body, err := (&wire.Frame{}).ReadMessage(clientConn)
	require.NoError(t, err)
	_, ok := body.(wire.FileTransferRejectedBody)
	assert.True(t, ok)

	require.NoError(t, <-done)
}

// TestHandleAcceptsStreamsAndHandshakes drives Handle against a manually
// scripted peer connection: read the Accepted reply, push the file bytes
// over the connection (the carry buffer starts empty here; coalesced bytes
// are covered by TestHandleUsesCarriedBytesBeforeReadingMore), then read
// the completion handshake.
func TestHandleAcceptsStreamsAndHandshakes(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "incoming.bin")
	cfg, state, log, flags := testHarness(t)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	req := Request{RequestedPath: "incoming.bin", FileSize: int64(len(payload)), Sender: wire.Endpoint{IP: "127.0.0.1", Port: 1}, SelfIP: "127.0.0.1", SelfPort: 2}

	done := make(chan error, 1)
	go func() {
		frame := &wire.Frame{}
		done <- Handle(2, serverConn, frame, req, destPath, *cfg, state, log, flags)
	}()

	body, err := (&wire.Frame{}).ReadMessage(clientConn)
	require.NoError(t, err)
	_, ok := body.(wire.FileTransferAcceptedBody)
	require.True(t, ok)

	writeErr := make(chan error, 1)
	go func() {
		_, err := clientConn.Write(payload)
		writeErr <- err
	}()
	require.NoError(t, <-writeErr)

	handshakeBuf := make([]byte, len("handshake"))
	_, err = clientConn.Read(handshakeBuf)
	require.NoError(t, err)
	assert.Equal(t, "handshake", string(handshakeBuf))

	require.NoError(t, <-done)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), state.LastBytesReceived())
}

func TestHandleUsesCarriedBytesBeforeReadingMore(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "carried.bin")
	cfg, state, log, flags := testHarness(t)

	payload := []byte("0123456789")
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	req := Request{RequestedPath: "carried.bin", FileSize: int64(len(payload)), Sender: wire.Endpoint{IP: "127.0.0.1", Port: 1}, SelfIP: "127.0.0.1", SelfPort: 2}

	done := make(chan error, 1)
	go func() {
		// Half the payload arrived already coalesced with an earlier read.
		frame := &wire.Frame{Carry: append([]byte(nil), payload[:5]...)}
		done <- Handle(3, serverConn, frame, req, destPath, *cfg, state, log, flags)
	}()

	body, err := (&wire.Frame{}).ReadMessage(clientConn)
	require.NoError(t, err)
	_, ok := body.(wire.FileTransferAcceptedBody)
	require.True(t, ok)

	go clientConn.Write(payload[5:])

	handshakeBuf := make([]byte, len("handshake"))
	_, err = clientConn.Read(handshakeBuf)
	require.NoError(t, err)

	require.NoError(t, <-done)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
