package peer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kvothe17/peerengine/internal/meta"
	"github.com/kvothe17/peerengine/internal/netconn"
	"github.com/kvothe17/peerengine/internal/requestqueue"
	"github.com/kvothe17/peerengine/internal/sendpipe"
	"github.com/kvothe17/peerengine/internal/wire"
)

// SendFile runs C6 against a remote peer, guarded so only one outbound
// transfer is active at a time. It is the entry point for the CLI's `send`
// subcommand and goes through the request queue so a self-initiated send
// is archived like any other request. A RetryOutboundFileTransfer does not
// come through here: retrySend calls the send pipeline directly.
func (p *Peer) SendFile(ctx context.Context, filePath, remoteHost string, remotePort uint32) error {
	msg := &requestqueue.Message{Type: wire.OutboundFileTransferRequest, RemoteIP: remoteHost}
	id := p.queue.Enqueue(msg)
	p.log.SetActive(id)

	return p.queue.ProcessByID(id, func(msg *requestqueue.Message) error {
		info := p.Identity()
		req := sendpipe.Request{
			FilePath:   filePath,
			RemoteHost: remoteHost,
			RemotePort: remotePort,
			SelfIP:     info.LocalIP,
			SelfPort:   info.Port,
		}
		err := p.guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
			p.flags.OutboundStalled.Store(false)
			return p.sendPipe.Send(id, req)
		})
		msg.Events = p.log.For(id)
		p.log.Drop(id)
		return err
	})
}

// SendText delivers a TextMessage to a remote peer over a short-lived
// connection, per spec.md §4.8.
func (p *Peer) SendText(ctx context.Context, remoteHost string, remotePort uint32, text string) error {
	info := p.Identity()
	addr := net.JoinHostPort(remoteHost, fmt.Sprint(remotePort))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	return wire.WriteMessage(conn, wire.TextMessageBody{
		Sender: wire.Endpoint{IP: info.LocalIP, Port: info.Port},
		Text:   text,
	})
}

// RequestInfo asks a remote peer for its ServerInfo and blocks until the
// asynchronous ServerInfoResponse arrives on this peer's own listener, or
// ctx/the receive timeout expires.
func (p *Peer) RequestInfo(ctx context.Context, remoteHost string, remotePort uint32) (meta.ServerInfo, error) {
	info := p.Identity()
	addr := net.JoinHostPort(remoteHost, fmt.Sprint(remotePort))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return meta.ServerInfo{}, fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	err = wire.WriteMessage(conn, wire.ServerInfoRequestBody{Sender: wire.Endpoint{IP: info.LocalIP, Port: info.Port}})
	_ = conn.Close()
	if err != nil {
		return meta.ServerInfo{}, fmt.Errorf("peer: send info request: %w", err)
	}

	select {
	case got := <-p.infoCh:
		return got, nil
	case <-ctx.Done():
		return meta.ServerInfo{}, ctx.Err()
	case <-time.After(p.cfg.ReceiveTimeout):
		return meta.ServerInfo{}, fmt.Errorf("peer: server info request timed out")
	}
}

// ListResult is RequestList's resolved outcome.
type ListResult struct {
	Entries  []meta.ListEntry
	NotFound bool
	Empty    bool
}

// RequestList asks a remote peer to list folder (its default transfer
// folder, if empty) and blocks for the async FileListResponse/
// NoFilesAvailableForDownload/RequestedFolderDoesNotExist reply.
func (p *Peer) RequestList(ctx context.Context, remoteHost string, remotePort uint32, folder string) (ListResult, error) {
	info := p.Identity()
	addr := net.JoinHostPort(remoteHost, fmt.Sprint(remotePort))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return ListResult{}, fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	err = wire.WriteMessage(conn, wire.FileListRequestBody{
		Sender: wire.Endpoint{IP: info.LocalIP, Port: info.Port},
		Folder: folder,
	})
	_ = conn.Close()
	if err != nil {
		return ListResult{}, fmt.Errorf("peer: send list request: %w", err)
	}

	select {
	case got := <-p.listCh:
		return ListResult{Entries: got.entries, NotFound: got.notFound, Empty: got.empty}, nil
	case <-ctx.Done():
		return ListResult{}, ctx.Err()
	case <-time.After(p.cfg.ReceiveTimeout):
		return ListResult{}, fmt.Errorf("peer: file list request timed out")
	}
}

// ShutdownRemote sends ShutdownServerCommand to a remote peer, per
// spec.md §4.8's literal scenario 6.
func (p *Peer) ShutdownRemote(ctx context.Context, remoteHost string, remotePort uint32) error {
	info := p.Identity()
	addr := net.JoinHostPort(remoteHost, fmt.Sprint(remotePort))
	conn, err := netconn.Dial(addr, p.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	return wire.WriteMessage(conn, wire.ShutdownServerCommandBody{
		Sender: wire.Endpoint{IP: info.LocalIP, Port: info.Port},
	})
}
