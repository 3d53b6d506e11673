// Package recvpipe implements C7: decide accept/reject, drain any
// coalesced bytes, stream the remaining file bytes to disk, detect stalls,
// and send the completion handshake.
//
// Grounded on pkg/receiver/file_receiver.go's FileReceiver/FileReception
// bookkeeping (ReceivedSize/TotalSize tracking, status transitions) and
// its path-traversal defense (filepath.Base + filepath.Clean prefix check
// before os.Create), preserved here even though the surrounding file (JSON
// chunk messages over a persistent WebRTC channel, per-chunk SHA256,
// out-of-order writes via a chunk-sequence map) does not apply: this
// pipeline's body is an in-order raw byte stream on one TCP socket, so
// there is no chunk identity to track and no seek-by-offset writer.
package recvpipe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/netconn"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/stallctl"
	"github.com/kvothe17/peerengine/internal/wire"
)

var (
	ErrAlreadyExists = errors.New("recvpipe: destination already exists")
	ErrPathEscape    = errors.New("recvpipe: resolved path escapes transfer folder")
)

// Stalled is returned from Handle when the idle-progress monitor fires
// before the transfer completes.
var Stalled = errors.New("recvpipe: aborted, no progress within stall timeout")

// Request describes one inbound push, per spec.md §4.6 step 1.
type Request struct {
	RequestedPath string // as named in the wire request (may be just a filename)
	FileSize      int64
	Sender        wire.Endpoint
	SelfIP        string
	SelfPort      uint32
}

// ResolveDestination joins transferFolder with the base name of
// requestedPath, refusing anything that would escape the folder — the
// same defense file_receiver.go applies via filepath.Base plus a
// filepath.Clean prefix check.
func ResolveDestination(transferFolder, requestedPath string) (string, error) {
	clean := filepath.Base(requestedPath)
	dest := filepath.Join(transferFolder, clean)
	if !strings.HasPrefix(dest, filepath.Clean(transferFolder)) {
		return "", ErrPathEscape
	}
	return dest, nil
}

// Handle runs the full C7 flow on conn, which the pump keeps open for the
// duration of this call. conn's carry buffer (in frame) is drained into
// the destination file before any fresh socket read, per spec.md §4.6
// step 4's coalescing requirement.
func Handle(msgID uint32, conn net.Conn, frame *wire.Frame, req Request, localPath string, cfg config.EngineConfig, state *serverstate.State, log *eventlog.Log, flags *serverstate.Flags) error {
	self := wire.Endpoint{IP: req.SelfIP, Port: req.SelfPort}

	if _, err := os.Stat(localPath); err == nil {
		if werr := wire.WriteMessage(conn, wire.FileTransferRejectedBody{Sender: self}); werr != nil {
			return fmt.Errorf("recvpipe: send rejected: %w", werr)
		}
		log.Emit(eventlog.NewClientRejectedFileTransfer(msgID, req.Sender.IP, req.Sender.Port))
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("recvpipe: stat %s: %w", localPath, err)
	}

	if err := wire.WriteMessage(conn, wire.FileTransferAcceptedBody{Sender: self}); err != nil {
		return fmt.Errorf("recvpipe: send accepted: %w", err)
	}
	log.Emit(eventlog.NewClientAcceptedFileTransfer(msgID, req.Sender.IP, req.Sender.Port))

	state.SetIncoming(localPath, req.FileSize)
	flags.TransferInProgress.Store(true)
	defer flags.TransferInProgress.Store(false)

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("recvpipe: create %s: %w", localPath, err)
	}
	defer f.Close()

	flags.InboundStalled.Store(false)
	monitor := stallctl.NewMonitor(cfg.StallTimeout, func() {
		flags.InboundStalled.Store(true)
	})
	monitor.Start()
	defer monitor.Stop()

	var received int64
	lastReportedFraction := 0.0
	debugThreshold := cfg.BufferSize * int(cfg.DebugChunkFileSizeMultiple)

	writeChunk := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		if _, err := f.Write(b); err != nil {
			return fmt.Errorf("recvpipe: write: %w", err)
		}
		received += int64(len(b))
		state.SetLastBytesReceived(received)
		monitor.Progress(received)

		if req.FileSize > 0 {
			if int64(debugThreshold) >= req.FileSize {
				log.Emit(eventlog.NewReceivedFileBytesFromSocket(msgID, len(b), received))
			}
			fraction := float64(received) / float64(req.FileSize)
			if fraction-lastReportedFraction > cfg.ProgressUpdateInterval {
				lastReportedFraction = fraction
				log.Emit(eventlog.NewUpdateFileTransferProgress(msgID, received, req.FileSize, fraction*100))
			}
		}
		return nil
	}

	// Drain whatever arrived coalesced with the request frame before any
	// fresh socket read, per the critical carry-buffer invariant.
	if carried := frame.DrainCarry(int(req.FileSize)); len(carried) > 0 {
		if err := writeChunk(carried); err != nil {
			return err
		}
	}

	buf := make([]byte, cfg.BufferSize)
	for received < req.FileSize {
		if flags.InboundStalled.Load() {
			if derr := sendStalled(req.Sender, self); derr != nil {
				return fmt.Errorf("recvpipe: notifying stall: %w", derr)
			}
			log.Emit(eventlog.NewFileTransferStalledEvent(msgID, req.Sender.IP, req.Sender.Port))
			return Stalled
		}

		want := int64(len(buf))
		if remaining := req.FileSize - received; remaining < want {
			want = remaining
		}
		n, err := netconn.Receive(conn, buf[:want], cfg.ReceiveTimeout)
		if n > 0 {
			if werr := writeChunk(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, netconn.ErrTimeout) {
				// No bytes within ReceiveTimeout: loop back so the stall
				// flag decides, rather than failing the transfer here.
				continue
			}
			if errors.Is(err, netconn.ErrPeerClosed) {
				return fmt.Errorf("recvpipe: %w before transfer complete", netconn.ErrPeerClosed)
			}
			return fmt.Errorf("recvpipe: receive: %w", err)
		}
	}

	if err := netconn.SendAll(conn, []byte("handshake"), cfg.SendTimeout); err != nil {
		return fmt.Errorf("recvpipe: send handshake: %w", err)
	}
	log.Emit(eventlog.NewReceiveFileBytesComplete(msgID, localPath, received))
	return nil
}

// sendStalled opens a fresh connection to the sender's advertised
// listening endpoint to deliver FileTransferStalled, per spec.md §4.6
// step 5 — a separate connection because the monitor fires from its own
// timer goroutine while the receive loop may be blocked on this
// function's own socket read. The transfer connection's remote address is
// the sender's ephemeral outbound socket, not its listener, so the reply
// must target req.Sender rather than conn.RemoteAddr().
func sendStalled(sender, self wire.Endpoint) error {
	addr := net.JoinHostPort(sender.IP, fmt.Sprint(sender.Port))
	stallConn, err := netconn.Dial(addr, 0)
	if err != nil {
		return err
	}
	defer stallConn.Close()
	return wire.WriteMessage(stallConn, wire.FileTransferStalledBody{Sender: self})
}
