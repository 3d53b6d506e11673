// Package sendpipe implements C6: announce an outbound transfer, wait for
// the peer's decision, then stream the file and await the completion
// handshake.
//
// Grounded on pkg/sender/app.go's task/guard orchestration shape
// (ConcurrencyGuard.Execute wrapping a single transfer task, UI-message
// progress reporting replaced here by eventlog events) and
// temaune502-LTD2/go/main.go's sendFile (chunked send loop,
// min(chunkSize, remaining), retry-from-start). Per-chunk hashing from
// pkg/transfer/chunker.go is deliberately not carried over — spec.md's
// non-goals exclude integrity hashing.
package sendpipe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/netconn"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/wire"
)

var (
	ErrRejected = errors.New("sendpipe: transfer rejected by peer")
	ErrStalled  = errors.New("sendpipe: aborted, peer reported stall")
	// ErrHandshakeMismatch is returned when the completion signal received
	// after streaming does not match the literal 9-byte ASCII handshake.
	ErrHandshakeMismatch = errors.New("sendpipe: completion handshake mismatch")
)

const handshake = "handshake"

// Request describes one outbound push, per spec.md §4.5 step 1.
type Request struct {
	FilePath   string
	RemoteHost string
	RemotePort uint32
	SelfIP     string
	SelfPort   uint32
}

// Pipeline runs C6 against one peer connection at a time, matching the
// single-active-session model.
type Pipeline struct {
	cfg    config.EngineConfig
	state  *serverstate.State
	log    *eventlog.Log
	cancel func() bool // returns true if the outbound transfer has been asked to stop
}

func New(cfg config.EngineConfig, state *serverstate.State, log *eventlog.Log, cancel func() bool) *Pipeline {
	return &Pipeline{cfg: cfg, state: state, log: log, cancel: cancel}
}

// Send runs the full C6 flow over a single held-open connection:
// announce via InboundFileTransferRequest, read the accept/reject reply
// directly off that same socket, stream the file, then await the
// completion handshake. All four steps share one TCP connection, the only
// reading that matches recvpipe's own single-connection implementation of
// the receiving half (see DESIGN.md's resolved open question on
// InboundFileTransferRequest vs OutboundFileTransferRequest). A mid-stream
// stall is reported by the peer over a separate connection per spec.md
// §4.6 step 5 and is surfaced here via p.cancel, polled between chunks,
// not as a reply on this connection.
func (p *Pipeline) Send(msgID uint32, req Request) error {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return fmt.Errorf("sendpipe: stat %s: %w", req.FilePath, err)
	}
	fileSize := info.Size()
	p.state.SetOutgoing(req.FilePath, fileSize)

	addr := net.JoinHostPort(req.RemoteHost, fmt.Sprint(req.RemotePort))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("sendpipe: dial %s: %w", addr, err)
	}
	defer conn.Close()

	err = wire.WriteMessage(conn, wire.InboundFileTransferRequestBody{
		LocalFilePath: filepath.Base(req.FilePath),
		FileSize:      fileSize,
		Sender:        wire.Endpoint{IP: req.SelfIP, Port: req.SelfPort},
	})
	if err != nil {
		return fmt.Errorf("sendpipe: announce: %w", err)
	}

	frame := &wire.Frame{}
	reply, err := frame.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("sendpipe: awaiting decision: %w", err)
	}

	switch b := reply.(type) {
	case wire.FileTransferRejectedBody:
		p.log.Emit(eventlog.NewClientRejectedFileTransfer(msgID, b.Sender.IP, b.Sender.Port))
		return ErrRejected
	case wire.FileTransferAcceptedBody:
		p.log.Emit(eventlog.NewClientAcceptedFileTransfer(msgID, b.Sender.IP, b.Sender.Port))
	default:
		return fmt.Errorf("sendpipe: unexpected reply type %s", reply.Type())
	}

	if err := p.stream(msgID, conn, req.FilePath, fileSize); err != nil {
		return err
	}

	return p.awaitHandshake(conn, frame)
}

// stream implements spec.md §4.5 step 3-4: read min(buffer_size,
// remaining) from the file, send_all it, loop; check the cancel flag
// between chunks so an incoming FileTransferStalled can abort the loop.
func (p *Pipeline) stream(msgID uint32, conn net.Conn, path string, fileSize int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sendpipe: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, p.cfg.BufferSize)
	var sent int64
	for remaining := fileSize; remaining > 0; {
		if p.cancel != nil && p.cancel() {
			return ErrStalled
		}
		chunkSize := int64(len(buf))
		if remaining < chunkSize {
			chunkSize = remaining
		}
		n, err := f.Read(buf[:chunkSize])
		if n > 0 {
			if err := netconn.SendAll(conn, buf[:n], p.cfg.SendTimeout); err != nil {
				return fmt.Errorf("sendpipe: send: %w", err)
			}
			sent += int64(n)
			remaining -= int64(n)
			p.state.SetLastBytesSent(sent)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && remaining == 0 {
				break
			}
			return fmt.Errorf("sendpipe: read %s: %w", path, err)
		}
	}
	return nil
}

// awaitHandshake implements spec.md §4.5 step 5: await the literal
// "handshake" ASCII signal on the same socket, draining whatever arrived
// coalesced with the accept reply's frame before issuing a fresh read.
func (p *Pipeline) awaitHandshake(conn net.Conn, frame *wire.Frame) error {
	buf := make([]byte, len(handshake))
	total := 0
	if carried := frame.DrainCarry(len(buf)); len(carried) > 0 {
		total += copy(buf, carried)
	}
	for total < len(buf) {
		n, err := netconn.Receive(conn, buf[total:], p.cfg.ReceiveTimeout)
		total += n
		if err != nil {
			return fmt.Errorf("sendpipe: awaiting handshake: %w", err)
		}
	}
	if string(buf) != handshake {
		return ErrHandshakeMismatch
	}
	return nil
}
