// Package engine implements C4 (listener & request pump) and C5
// (dispatcher): the accept loop that frames one message per inbound
// connection and either dispatches it immediately or enqueues it.
//
// Grounded on temaune502-LTD2/go/main.go's acceptLoop/handleConn
// (accept-then-handle-one-connection shape — the teacher repo's own accept
// loop is an HTTP/WebRTC signaling server, not a raw TCP listener) and on
// pkg/concurrency/guard.go for the one-in-flight-handler constraint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/requestqueue"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/wire"
)

// Session bundles what a Dispatcher needs to handle one framed message:
// the live connection it arrived on (kept open for types that stream
// follow-on bytes, e.g. a file push) and the carry buffer belonging to
// that connection.
type Session struct {
	Conn     net.Conn
	Frame    *wire.Frame
	RemoteIP string
}

// Dispatcher maps a decoded message to its handler. Implemented by the
// peer package, which owns the send/receive pipelines and metadata
// handlers; engine only knows about framing and the accept loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *Session, msgID uint32, body wire.Body) error
}

// Listener runs the C4 pump: bind, accept one peer, read one framed
// message, dispatch-or-enqueue, close peer, repeat.
type Listener struct {
	addr       string
	dispatcher Dispatcher
	queue      *requestqueue.Queue
	log        *eventlog.Log
	flags      *serverstate.Flags

	ln net.Listener
}

func New(addr string, dispatcher Dispatcher, queue *requestqueue.Queue, log *eventlog.Log, flags *serverstate.Flags) *Listener {
	return &Listener{addr: addr, dispatcher: dispatcher, queue: queue, log: log, flags: flags}
}

// Run binds the listener and pumps connections until ctx is cancelled or a
// fatal accept error occurs. Per spec.md §4.4, a non-fatal handler failure
// never stops the pump; only accept-loop errors and an explicit shutdown
// are fatal.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("engine: bind %s: %w", l.addr, err)
	}
	l.ln = ln
	l.flags.Listening.Store(true)
	defer func() {
		l.flags.Listening.Store(false)
		_ = ln.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.flags.ShutdownInitiated.Load() || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("engine: accept: %w", err)
		}

		l.handleConn(ctx, conn)

		if l.flags.ShutdownInitiated.Load() {
			return nil
		}
	}
}

// handleConn implements one pass through IDLE->HAVE_PEER->HAVE_LEN->
// HAVE_MSG->DISPATCH/ENQUEUE->IDLE. The connection is always closed before
// handleConn returns. For an immediate type it stays open for the whole
// Dispatch call (the file receive pipeline reads the stream and writes the
// handshake on this same conn inside its handler), and dispatchNow closes
// it once Dispatch returns.
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	sess := &Session{Conn: conn, Frame: &wire.Frame{}, RemoteIP: remoteIP}

	body, err := sess.Frame.ReadMessage(conn)
	if err != nil {
		slog.Warn("engine: framing error, closing peer", "remote", remoteIP, "error", err)
		l.log.Emit(eventlog.NewErrorOccurred(0, err))
		_ = conn.Close()
		return
	}

	msgType := body.Type()
	msg := &requestqueue.Message{Type: msgType, Body: body, RemoteIP: remoteIP}
	id := l.queue.Enqueue(msg)
	l.log.SetActive(id)

	if msgType.MustProcessImmediately() {
		l.dispatchNow(ctx, sess, id, body)
		return
	}

	// Deferred types (TextMessage, FileListRequest, ServerInfoRequest) are
	// left in the queue for explicit ProcessByID/ProcessNext calls; the
	// connection that delivered them carries no further data, so it is
	// safe to close now.
	_ = conn.Close()
}

func (l *Listener) dispatchNow(ctx context.Context, sess *Session, id uint32, body wire.Body) {
	l.flags.Idle.Store(false)
	err := l.dispatcher.Dispatch(ctx, sess, id, body)
	l.flags.Idle.Store(true)
	if err != nil {
		l.log.Emit(eventlog.NewErrorOccurred(id, err))
	}
	_ = l.queue.ProcessByID(id, func(msg *requestqueue.Message) error {
		l.attachEvents(msg)
		return err
	})
	_ = sess.Conn.Close()
}

// attachEvents moves the event-log subset collected for msg.ID onto msg
// itself, per spec.md §4.3's "attaches the collected event-log subset to
// the message". The archive then holds a self-contained record instead of
// a bare id into a log that keeps growing.
func (l *Listener) attachEvents(msg *requestqueue.Message) {
	msg.Events = l.log.For(msg.ID)
	l.log.Drop(msg.ID)
}

// ProcessNextDeferred pops and dispatches the next queued message left for
// explicit processing (TextMessage, FileListRequest, ServerInfoRequest).
// Its handler never has access to the original connection — by the time a
// deferred message reaches here, that connection is already closed — so
// any reply is made over a fresh connection dialed back to the sender,
// per spec.md §4.8's "each response opens a new TCP connection".
func (l *Listener) ProcessNextDeferred(ctx context.Context) (ran bool, err error) {
	_, ran, err = l.queue.ProcessNext(func(msg *requestqueue.Message) error {
		sess := &Session{RemoteIP: msg.RemoteIP}
		derr := l.dispatcher.Dispatch(ctx, sess, msg.ID, msg.Body)
		l.attachEvents(msg)
		return derr
	})
	if err != nil {
		l.log.Emit(eventlog.NewErrorOccurred(0, err))
	}
	return ran, err
}

// ProcessByID dispatches a specific queued message on demand, refusing per
// spec.md §4.3 if the queue is busy, the id is already archived, or the id
// is unknown.
func (l *Listener) ProcessByID(ctx context.Context, id uint32) error {
	return l.queue.ProcessByID(id, func(msg *requestqueue.Message) error {
		sess := &Session{RemoteIP: msg.RemoteIP}
		err := l.dispatcher.Dispatch(ctx, sess, msg.ID, msg.Body)
		l.attachEvents(msg)
		return err
	})
}
