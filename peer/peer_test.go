package peer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/meta"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestPeer(t *testing.T, name string) (*Peer, string, int) {
	t.Helper()
	addr := freeAddr(t)
	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.DefaultEngineConfig()
	cfg.ConnectTimeout = time.Second
	cfg.SendTimeout = time.Second
	cfg.ReceiveTimeout = 2 * time.Second
	cfg.StallTimeout = 5 * time.Second

	folder := t.TempDir()
	p := New(addr, Options{
		Identity: meta.ServerInfo{
			Name:           name,
			LocalIP:        "127.0.0.1",
			Port:           uint32(port),
			PublicIP:       "127.0.0.1",
			TransferFolder: folder,
		},
		Engine: cfg,
	})
	return p, "127.0.0.1", port
}

func startServing(t *testing.T, p *Peer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the listener a moment to bind before the test starts dialing it.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestSendTextMessageIsObserved(t *testing.T) {
	sender, _, _ := newTestPeer(t, "sender")
	receiver, rHost, rPort := newTestPeer(t, "receiver")
	startServing(t, sender)
	startServing(t, receiver)

	events := receiver.Events()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sender.SendText(ctx, rHost, uint32(rPort), "hello peer"))

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never observed the text message event")
	}
}

func TestSendFileEndToEnd(t *testing.T) {
	sender, _, _ := newTestPeer(t, "sender")
	receiver, rHost, rPort := newTestPeer(t, "receiver")
	startServing(t, sender)
	startServing(t, receiver)

	content := []byte("integration test payload, streamed peer to peer")
	srcPath := filepath.Join(t.TempDir(), "gift.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sender.SendFile(ctx, srcPath, rHost, uint32(rPort)))

	destPath := filepath.Join(receiver.Identity().TransferFolder, filepath.Base(srcPath))
	require.Eventually(t, func() bool {
		_, err := os.Stat(destPath)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSendFileRejectedWhenDestinationExists(t *testing.T) {
	sender, _, _ := newTestPeer(t, "sender")
	receiver, rHost, rPort := newTestPeer(t, "receiver")
	startServing(t, sender)
	startServing(t, receiver)

	srcPath := filepath.Join(t.TempDir(), "dup.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("source"), 0o644))

	destPath := filepath.Join(receiver.Identity().TransferFolder, "dup.bin")
	require.NoError(t, os.WriteFile(destPath, []byte("already present"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := sender.SendFile(ctx, srcPath, rHost, uint32(rPort))
	assert.Error(t, err)

	got, readErr := os.ReadFile(destPath)
	require.NoError(t, readErr)
	assert.Equal(t, "already present", string(got))
}

func TestRequestInfoRoundTrip(t *testing.T) {
	requester, _, _ := newTestPeer(t, "requester")
	target, tHost, tPort := newTestPeer(t, "target")
	startServing(t, requester)
	startServing(t, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := requester.RequestInfo(ctx, tHost, uint32(tPort))
	require.NoError(t, err)
	assert.Equal(t, target.Identity().TransferFolder, info.TransferFolder)
	assert.Equal(t, uint32(tPort), info.Port)
}

func TestRequestListRoundTrip(t *testing.T) {
	requester, _, _ := newTestPeer(t, "requester")
	target, tHost, tPort := newTestPeer(t, "target")
	startServing(t, requester)
	startServing(t, target)

	require.NoError(t, os.WriteFile(filepath.Join(target.Identity().TransferFolder, "a.txt"), []byte("x"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := requester.RequestList(ctx, tHost, uint32(tPort), "")
	require.NoError(t, err)
	assert.False(t, result.NotFound)
	assert.False(t, result.Empty)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "a.txt", result.Entries[0].Path)
}

func TestRequestListEmptyFolderReportsEmpty(t *testing.T) {
	requester, _, _ := newTestPeer(t, "requester")
	target, tHost, tPort := newTestPeer(t, "target")
	startServing(t, requester)
	startServing(t, target)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := requester.RequestList(ctx, tHost, uint32(tPort), "")
	require.NoError(t, err)
	assert.True(t, result.Empty)
}

func TestShutdownRemoteStopsServe(t *testing.T) {
	initiator, _, _ := newTestPeer(t, "initiator")
	target, tHost, tPort := newTestPeer(t, "target")
	startServing(t, initiator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- target.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	require.NoError(t, initiator.ShutdownRemote(reqCtx, tHost, uint32(tPort)))

	select {
	case <-serveErr:
		assert.True(t, target.flags.ShutdownInitiated.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("target Serve never returned after ShutdownServerCommand")
	}
}
