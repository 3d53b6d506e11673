// Package peer is the top-level orchestrator: it owns the engine listener,
// the send/receive pipelines, the shared state and event log, and wires
// them together the way pkg/sender/app.go's App wires a discoverer, a
// ConcurrencyGuard, and a webrtc API together for one long-running process.
//
// Grounded on pkg/sender/app.go (guard-wrapped single task, errgroup-driven
// Run) and pkg/receiver/app.go's shape for the passive side, merged into
// one type because this protocol has no sender/receiver role split: any
// peer instance can push, pull, and serve.
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/discovery"
	"github.com/kvothe17/peerengine/internal/engine"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/meta"
	"github.com/kvothe17/peerengine/internal/requestqueue"
	"github.com/kvothe17/peerengine/internal/sendpipe"
	"github.com/kvothe17/peerengine/internal/serverstate"
	"github.com/kvothe17/peerengine/internal/stallctl"
	"github.com/kvothe17/peerengine/pkg/concurrency"
)

// listOutcome is what a FileListResponse/NoFilesAvailableForDownload/
// RequestedFolderDoesNotExist reply resolves to, bridged from Dispatch to
// a blocked RequestList call over listCh.
type listOutcome struct {
	entries  []meta.ListEntry
	folder   string
	notFound bool
	empty    bool
}

// Peer is a single running instance: one listener address, one transfer
// folder, one active-request-at-a-time engine.
type Peer struct {
	mu          sync.Mutex
	info        meta.ServerInfo
	cfg         config.EngineConfig
	announce    bool
	announcer   discovery.Adapter
	cancelServe context.CancelFunc

	flags *serverstate.Flags
	state *serverstate.State
	queue *requestqueue.Queue
	log   *eventlog.Log
	guard *concurrency.ConcurrencyGuard
	retry *stallctl.RetryState

	sendPipe *sendpipe.Pipeline
	listener *engine.Listener
	infoCh   chan meta.ServerInfo
	listCh   chan listOutcome
}

// Options configures a new Peer.
type Options struct {
	Identity  meta.ServerInfo
	Engine    config.EngineConfig
	Announce  bool
	Announcer discovery.Adapter
}

func New(addr string, opts Options) *Peer {
	flags := serverstate.NewFlags()
	state := serverstate.New()
	log := eventlog.NewLog(64)

	p := &Peer{
		info:      opts.Identity,
		cfg:       opts.Engine,
		announce:  opts.Announce,
		announcer: opts.Announcer,
		flags:     flags,
		state:     state,
		queue:     requestqueue.New(),
		log:       log,
		guard:     concurrency.NewConcurrencyGuard(),
		retry:     stallctl.NewRetryState(state),
		infoCh:    make(chan meta.ServerInfo, 1),
		listCh:    make(chan listOutcome, 1),
	}
	p.sendPipe = sendpipe.New(opts.Engine, state, log, func() bool {
		return flags.OutboundStalled.Load()
	})
	p.listener = engine.New(addr, p, p.queue, log, flags)
	return p
}

// Events exposes the observer side of the event log, for a CLI or future
// UI to render as they occur.
func (p *Peer) Events() <-chan eventlog.ServerEvent { return p.log.Observer() }

// Identity returns the peer's currently configured identity.
func (p *Peer) Identity() meta.ServerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Serve runs the listener and the deferred-message pump until ctx is
// canceled or a ShutdownServerCommand arrives, matching pkg/sender/app.go's
// errgroup.WithContext(ctx) shape.
func (p *Peer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelServe = cancel
	p.mu.Unlock()
	defer cancel()

	p.flags.Initialized.Store(true)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.listener.Run(ctx)
	})

	g.Go(func() error {
		return p.pumpDeferred(ctx)
	})

	if p.announce && p.announcer != nil {
		g.Go(func() error {
			return p.runAnnounce(ctx)
		})
	}

	return g.Wait()
}

// pumpDeferred drains TextMessage/FileListRequest/ServerInfoRequest left in
// the queue for explicit processing, since the connection that delivered
// them carries no further data and is closed immediately by the listener.
func (p *Peer) pumpDeferred(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		ran, err := p.listener.ProcessNextDeferred(ctx)
		if err != nil {
			slog.Warn("peer: deferred handler failed", "error", err)
		}
		if !ran {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func (p *Peer) runAnnounce(ctx context.Context) error {
	info := p.Identity()
	err := p.announcer.Announce(ctx, discovery.ServiceInfo{
		Name:   info.Name,
		Type:   discovery.DefaultServiceType,
		Domain: discovery.DefaultDomain,
		Port:   int(info.Port),
	})
	if err != nil {
		return fmt.Errorf("peer: announce: %w", err)
	}
	return nil
}

// Shutdown requests the local Serve loop stop, the in-process analogue of
// receiving a ShutdownServerCommand from a peer.
func (p *Peer) Shutdown() {
	p.flags.ShutdownInitiated.Store(true)
	p.mu.Lock()
	cancel := p.cancelServe
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
