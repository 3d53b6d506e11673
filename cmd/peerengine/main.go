package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kvothe17/peerengine/internal/config"
	"github.com/kvothe17/peerengine/internal/discovery"
	"github.com/kvothe17/peerengine/internal/eventlog"
	"github.com/kvothe17/peerengine/internal/meta"
	"github.com/kvothe17/peerengine/internal/util"
	"github.com/kvothe17/peerengine/peer"
)

func main() {
	f, _ := os.OpenFile("peerengine.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)

	var port int
	cmd := &cobra.Command{
		Use:   "peerengine",
		Short: "A peer-to-peer file transfer engine for local networks",
	}
	cmd.PersistentFlags().IntVar(&port, "port", 9876, "Port this peer listens on")

	cmd.AddCommand(serveCmd(&port), sendCmd(&port), lsCmd(&port), infoCmd(&port), peersCmd())

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func serveCmd(port *int) *cobra.Command {
	var folder string
	var announce bool

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine's listener, accepting inbound requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if folder == "" {
				return fmt.Errorf("--folder is required")
			}
			p := newPeer(*port, folder, announce)
			go logEvents(p)
			slog.Info("peerengine: serving", "port", *port, "folder", folder)
			return p.Serve(cmd.Context())
		},
	}
	c.Flags().StringVar(&folder, "folder", "", "Transfer folder to serve files from and receive files into")
	c.Flags().BoolVar(&announce, "announce", false, "Announce this peer over mDNS")
	return c
}

func sendCmd(port *int) *cobra.Command {
	c := &cobra.Command{
		Use:   "send <host:port> <file>",
		Short: "Push a file to a running peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, remotePort, err := splitHostPort(args[0])
			if err != nil {
				return err
			}
			p := newPeer(*port, os.TempDir(), false)
			go logEvents(p)
			if err := p.SendFile(cmd.Context(), args[1], host, remotePort); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			fmt.Println("transfer complete")
			return nil
		},
	}
	return c
}

func lsCmd(port *int) *cobra.Command {
	c := &cobra.Command{
		Use:   "ls <host:port> [folder]",
		Short: "List files available on a running peer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, remotePort, err := splitHostPort(args[0])
			if err != nil {
				return err
			}
			folder := ""
			if len(args) == 2 {
				folder = args[1]
			}
			p := newPeer(*port, os.TempDir(), false)
			go logEvents(p)
			result, err := p.RequestList(cmd.Context(), host, remotePort, folder)
			if err != nil {
				return err
			}
			switch {
			case result.NotFound:
				fmt.Println("requested folder does not exist")
			case result.Empty:
				fmt.Println("no files available")
			default:
				for _, e := range result.Entries {
					fmt.Printf("%s %s\n", util.PadRight(e.Path, 40), util.FormatSize(e.Size))
				}
			}
			return nil
		},
	}
	return c
}

func infoCmd(port *int) *cobra.Command {
	c := &cobra.Command{
		Use:   "info <host:port>",
		Short: "Query a running peer's server info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, remotePort, err := splitHostPort(args[0])
			if err != nil {
				return err
			}
			p := newPeer(*port, os.TempDir(), false)
			go logEvents(p)
			info, err := p.RequestInfo(cmd.Context(), host, remotePort)
			if err != nil {
				return err
			}
			fmt.Printf("local: %s public: %s port: %d folder: %s\n", info.LocalIP, info.PublicIP, info.Port, info.TransferFolder)
			return nil
		},
	}
	return c
}

func peersCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "peers",
		Short: "Discover peerengine instances announced over mDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter := discovery.NewMDNSAdapter()
			results := adapter.Discover(cmd.Context(), discovery.DefaultServiceType)
			for res := range results {
				if res.Err != nil {
					slog.Warn("peerengine: discovery lookup failed", "error", res.Err)
					continue
				}
				if len(res.Services) == 0 {
					fmt.Println("no peers found yet")
					continue
				}
				for _, svc := range res.Services {
					fmt.Printf("%s %s:%d\n", svc.Name, svc.Addr, svc.Port)
				}
			}
			return nil
		},
	}
	return c
}

func newPeer(port int, folder string, announce bool) *peer.Peer {
	identity := meta.ServerInfo{
		Name:           "peerengine-" + uuid.NewString()[:8],
		LocalIP:        localIP(),
		Port:           uint32(port),
		TransferFolder: folder,
	}
	opts := peer.Options{
		Identity: identity,
		Engine:   config.DefaultEngineConfig(),
	}
	if announce {
		opts.Announce = true
		opts.Announcer = discovery.NewMDNSAdapter()
	}
	return peer.New(net.JoinHostPort("", strconv.Itoa(port)), opts)
}

// localIP best-efforts a non-loopback local address by dialing a
// well-known external address without sending any packets (UDP "connect"
// only resolves routing). The identity's public IP, by contrast, is left
// for an external helper to fill in — reporting it is explicitly the only
// NAT-traversal-adjacent behavior spec.md keeps in scope.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

func splitHostPort(hostport string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("invalid host:port %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", hostport, err)
	}
	return host, uint32(port), nil
}

func logEvents(p *peer.Peer) {
	for ev := range p.Events() {
		switch e := ev.(type) {
		case eventlog.ErrorOccurred:
			slog.Error("peerengine event", "type", "error", "id", e.MessageID(), "error", e.Err)
		default:
			slog.Info("peerengine event", "type", fmt.Sprintf("%T", ev), "id", ev.MessageID())
		}
	}
}
