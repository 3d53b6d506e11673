// Package discovery implements the optional LAN peer announce/discover
// helper named in SPEC_FULL.md's domain-stack section — not part of the
// core wire protocol, but a convenience so `peerengine serve --announce`
// can be found without a peer already knowing the host:port to dial.
//
// Grounded on pkg/discovery/mdns.go's dnssd-backed MDNSAdapter. That
// file's own pkg/discovery/service.go Adapter interface
// (`Discover(ctx, service) (chan []ServiceInfo, error)`) does not match
// what mdns.go actually implements (`Discover(ctx, service) <-chan
// DiscoveryResult`, no error return) — Adapter here is redrawn from the
// real implementation instead of the stale interface.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/brutella/dnssd"
)

const (
	// DefaultServiceType is the mDNS service type peerengine instances
	// announce themselves under.
	DefaultServiceType = "_peerengine._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo is one announced or discovered peer.
type ServiceInfo struct {
	Name   string
	Type   string
	Domain string
	Addr   net.IP
	Port   int
}

// Result is one snapshot delivered over a Discover channel: either the
// current known set of peers, or an error from the underlying lookup.
type Result struct {
	Services []ServiceInfo
	Err      error
}

var ErrCanceled = errors.New("discovery: announce canceled")

// Adapter is implemented by MDNSAdapter. Kept as an interface so the peer
// package can run without mDNS in environments where multicast is blocked.
type Adapter interface {
	Announce(ctx context.Context, info ServiceInfo) error
	Discover(ctx context.Context, serviceType string) <-chan Result
}

// MDNSAdapter announces and discovers peerengine instances over mDNS.
type MDNSAdapter struct{}

func NewMDNSAdapter() *MDNSAdapter { return &MDNSAdapter{} }

// Announce registers info as an mDNS service and responds to queries
// until ctx is canceled.
func (m *MDNSAdapter) Announce(ctx context.Context, info ServiceInfo) error {
	cfg := dnssd.Config{
		Name:   info.Name,
		Type:   info.Type,
		Domain: info.Domain,
		IPs:    nil,
		Text:   map[string]string{"desc": "peerengine transfer folder"},
		Port:   info.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: create mDNS service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: create mDNS responder: %w", err)
	}
	if _, err := responder.Add(service); err != nil {
		return fmt.Errorf("discovery: add mDNS service: %w", err)
	}

	if err := responder.Respond(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("discovery: respond: %w", err)
	}
	return nil
}

// Discover browses serviceType and streams a snapshot of known peers to
// the returned channel every time the set changes, until ctx is
// canceled. The channel is closed when the lookup ends.
func (m *MDNSAdapter) Discover(ctx context.Context, serviceType string) <-chan Result {
	var (
		mu      sync.Mutex
		entries = make(map[string]ServiceInfo)
		out     = make(chan Result, 10)
	)

	key := func(e dnssd.BrowseEntry) string {
		return fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)
	}

	snapshot := func() {
		mu.Lock()
		services := make([]ServiceInfo, 0, len(entries))
		for _, e := range entries {
			services = append(services, e)
		}
		mu.Unlock()
		select {
		case out <- Result{Services: services}:
		default:
		}
	}

	add := func(e dnssd.BrowseEntry) {
		mu.Lock()
		info := ServiceInfo{Name: e.Name, Type: e.Type, Domain: e.Domain, Port: e.Port}
		if len(e.IPs) > 0 {
			info.Addr = e.IPs[0]
		}
		entries[key(e)] = info
		mu.Unlock()
		snapshot()
	}

	remove := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(entries, key(e))
		mu.Unlock()
		snapshot()
	}

	go func() {
		defer close(out)
		if err := dnssd.LookupType(ctx, serviceType, add, remove); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case out <- Result{Err: fmt.Errorf("discovery: lookup %s: %w", serviceType, err)}:
			default:
			}
		}
	}()

	return out
}
