package netconn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().String()
}

func TestDialSendReceiveRoundTrip(t *testing.T) {
	ln, addr := listenLoopback(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		n, err := Receive(conn, buf, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
		require.NoError(t, SendAll(conn, []byte("world"), time.Second))
	}()

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, SendAll(conn, []byte("hello"), time.Second))
	buf := make([]byte, 5)
	n, err := Receive(conn, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	<-serverDone
}

func TestDialConnectionRefused(t *testing.T) {
	ln, addr := listenLoopback(t)
	ln.Close() // free the port but keep a known-closed address

	_, err := Dial(addr, time.Second)
	assert.Error(t, err)
}

func TestReceiveTimeout(t *testing.T) {
	ln, addr := listenLoopback(t)
	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		close(accepted)
		time.Sleep(200 * time.Millisecond)
	}()

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	<-accepted

	buf := make([]byte, 5)
	_, err = Receive(conn, buf, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReceiveOnClosedPeerReportsPeerClosed(t *testing.T) {
	ln, addr := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 5)
	require.Eventually(t, func() bool {
		_, err := Receive(conn, buf, 50*time.Millisecond)
		return err != nil
	}, time.Second, 10*time.Millisecond)

	_, err = Receive(conn, buf, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrPeerClosed)
}
