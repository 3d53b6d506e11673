package peer

import (
	"context"
	"fmt"
	"net"

	"github.com/kvothe17/peerengine/internal/engine"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/meta"
	"github.com/kvothe17/peerengine/internal/netconn"
	"github.com/kvothe17/peerengine/internal/recvpipe"
	"github.com/kvothe17/peerengine/internal/sendpipe"
	"github.com/kvothe17/peerengine/internal/wire"
)

// Dispatch implements engine.Dispatcher: one case per wire.MessageType this
// peer handles. OutboundFileTransferRequest, FileTransferAccepted and
// FileTransferRejected reach the default case and are reported as
// unhandled; the latter two are read in-band by sendpipe.Send instead.
//
// A file push is driven entirely by InboundFileTransferRequest (see
// DESIGN.md's resolved open question on InboundFileTransferRequest vs
// OutboundFileTransferRequest): the sender keeps the announcing connection
// open and recvpipe replies, streams, and hand-shakes all in-band on it.
// OutboundFileTransferRequest remains a declared wire type for codec
// completeness but this peer never emits or dispatches it.
func (p *Peer) Dispatch(ctx context.Context, sess *engine.Session, msgID uint32, body wire.Body) error {
	switch b := body.(type) {
	case wire.TextMessageBody:
		p.log.Emit(eventlog.NewReceivedTextMessage(msgID, b.Text, b.Sender.IP, b.Sender.Port))
		return nil

	case wire.ServerInfoRequestBody:
		return p.replyServerInfo(b.Sender)

	case wire.ServerInfoResponseBody:
		info := meta.ServerInfo{LocalIP: b.LocalIP, Port: b.Port, PublicIP: b.PublicIP, TransferFolder: b.Folder}
		p.deliverInfo(info)
		return nil

	case wire.FileListRequestBody:
		return p.replyFileList(b.Sender, b.Folder)

	case wire.FileListResponseBody:
		entries, err := meta.DecodeList(b.List)
		if err != nil {
			return fmt.Errorf("peer: decode file list: %w", err)
		}
		p.deliverList(listOutcome{entries: entries, folder: b.Folder})
		return nil

	case wire.NoFilesAvailableForDownloadBody:
		p.log.Emit(eventlog.NewNoFilesAvailableEvent(msgID, ""))
		p.deliverList(listOutcome{empty: true})
		return nil

	case wire.RequestedFolderDoesNotExistBody:
		p.log.Emit(eventlog.NewFolderDoesNotExistEvent(msgID, ""))
		p.deliverList(listOutcome{notFound: true})
		return nil

	case wire.InboundFileTransferRequestBody:
		return p.receivePush(sess.Conn, sess.Frame, msgID, b.Sender, b.LocalFilePath, b.FileSize)

	case wire.FileTransferStalledBody:
		p.flags.OutboundStalled.Store(true)
		p.log.Emit(eventlog.NewFileTransferStalledEvent(msgID, b.Sender.IP, b.Sender.Port))
		return nil

	case wire.RetryOutboundFileTransferBody:
		return p.retrySend(ctx, msgID, b.Sender)

	case wire.ShutdownServerCommandBody:
		p.log.Emit(eventlog.NewShutdownInitiatedEvent(msgID))
		p.Shutdown()
		return nil

	default:
		return fmt.Errorf("peer: unhandled message type %s", body.Type())
	}
}

// receivePush resolves the destination path and runs C7 directly against
// the connection the request arrived on, which the listener keeps open
// for the duration of the dispatch call so the accept/reject reply, the
// raw byte stream, and the completion handshake all travel over one
// socket.
func (p *Peer) receivePush(conn net.Conn, frame *wire.Frame, msgID uint32, sender wire.Endpoint, requestedPath string, fileSize int64) error {
	info := p.Identity()
	destPath, err := recvpipe.ResolveDestination(info.TransferFolder, requestedPath)
	if err != nil {
		return fmt.Errorf("peer: resolve destination: %w", err)
	}

	req := recvpipe.Request{
		RequestedPath: requestedPath,
		FileSize:      fileSize,
		Sender:        sender,
		SelfIP:        info.LocalIP,
		SelfPort:      info.Port,
	}
	return recvpipe.Handle(msgID, conn, frame, req, destPath, p.cfg, p.state, p.log, p.flags)
}

func (p *Peer) replyServerInfo(to wire.Endpoint) error {
	info := p.Identity()
	addr := net.JoinHostPort(to.IP, fmt.Sprint(to.Port))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	return wire.WriteMessage(conn, wire.ServerInfoResponseBody{
		LocalIP:  info.LocalIP,
		Port:     info.Port,
		PublicIP: info.PublicIP,
		Folder:   info.TransferFolder,
	})
}

func (p *Peer) replyFileList(to wire.Endpoint, requestedFolder string) error {
	info := p.Identity()
	folder := requestedFolder
	if folder == "" {
		folder = info.TransferFolder
	}

	result, err := meta.ListFolder(folder)
	if err != nil {
		return fmt.Errorf("peer: list %s: %w", folder, err)
	}

	addr := net.JoinHostPort(to.IP, fmt.Sprint(to.Port))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	self := wire.Endpoint{IP: info.LocalIP, Port: info.Port}
	switch {
	case result.NotFound:
		return wire.WriteMessage(conn, wire.RequestedFolderDoesNotExistBody{Sender: self})
	case len(result.Entries) == 0:
		return wire.WriteMessage(conn, wire.NoFilesAvailableForDownloadBody{Sender: self})
	default:
		return wire.WriteMessage(conn, wire.FileListResponseBody{
			Sender: self,
			Folder: requestedFolder,
			List:   meta.EncodeList(result.Entries),
		})
	}
}

func (p *Peer) retrySend(ctx context.Context, msgID uint32, to wire.Endpoint) error {
	path, _, ok := p.retry.PendingOutbound()
	if !ok {
		return fmt.Errorf("peer: no pending outbound transfer to retry")
	}
	p.flags.RetryPreviousTransfer.Store(true)
	defer p.flags.RetryPreviousTransfer.Store(false)

	info := p.Identity()
	req := sendpipe.Request{
		FilePath:   path,
		RemoteHost: to.IP,
		RemotePort: to.Port,
		SelfIP:     info.LocalIP,
		SelfPort:   info.Port,
	}
	return p.guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
		p.flags.OutboundStalled.Store(false)
		return p.sendPipe.Send(msgID, req)
	})
}

func (p *Peer) deliverInfo(info meta.ServerInfo) {
	select {
	case p.infoCh <- info:
	default:
	}
}

func (p *Peer) deliverList(o listOutcome) {
	select {
	case p.listCh <- o:
	default:
	}
}
