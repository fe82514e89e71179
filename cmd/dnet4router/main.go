// Command dnet4router runs a DECnet Phase IV router as a standalone
// process: load a configuration file, open the configured circuits, and
// run the routing decision/update/forward loop until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/soypat/dnet4/config"
	"github.com/soypat/dnet4/internal"
	"github.com/soypat/dnet4/router"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("dnet4router:", err)
	}
}

func run() error {
	var (
		flagConfig = flag.String("config", "dnet4router.ini", "path to the router configuration file")
		flagMTU    = flag.Int("mtu", 1500, "Ethernet/bridge circuit read buffer size")
	)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logs := newSubsystemLoggers(cfg.Logging)

	r := router.NewRouter(router.Config{
		Self:     cfg.Node.Address,
		Level2:   cfg.Node.Level == 2,
		Priority: cfg.Node.Priority,
	})
	r.SetLogger(logs.forSubsystem("router"))
	r.Adjacencies.SetLogger(logs.forSubsystem("adjacency"))
	r.Decision.SetLogger(logs.forSubsystem("decision"))
	r.Update.SetLogger(logs.forSubsystem("update"))
	r.Forward.SetLogger(logs.forSubsystem("forward"))
	r.EthInit.SetLogger(logs.forSubsystem("circuit"))

	if err := addEthernetCircuits(r, cfg, *flagMTU); err != nil {
		return err
	}
	if err := addBridgeCircuits(r, cfg, *flagMTU); err != nil {
		return err
	}
	listener, redial, err := addDdcmpCircuits(r, cfg, *flagMTU, logs.forSubsystem("ddcmp"))
	if err != nil {
		return err
	}
	if listener != nil {
		defer listener.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.DNS) > 0 {
		startDNSResolver(ctx, cfg, redial, logs.forSubsystem("dns"))
	}

	slog.Info("dnet4router starting", slog.String("self", cfg.Node.Address.String()), slog.String("name", cfg.Node.Name))
	// Run's only return path is ctx.Done(), so reaching here always means
	// a clean SIGINT/SIGTERM shutdown, never a failure to report.
	r.Run(ctx)
	return nil
}

func addEthernetCircuits(r *router.Router, cfg *config.File, mtu int) error {
	for _, e := range cfg.Ethernet {
		sock, err := internal.NewBridge(e.Interface)
		if err != nil {
			return fmt.Errorf("opening ethernet circuit %s on %s: %w", e.Name, e.Interface, err)
		}
		if _, err := r.AddEthernetCircuit(e.Name, e.Cost, sock, mtu); err != nil {
			sock.Close()
			return fmt.Errorf("adding ethernet circuit %s: %w", e.Name, err)
		}
	}
	return nil
}

func addBridgeCircuits(r *router.Router, cfg *config.File, mtu int) error {
	for _, b := range cfg.Bridge {
		laddr := net.JoinHostPort("", strconv.Itoa(b.Port))
		sock, err := internal.NewUDPBridge(laddr, cfg.Node.Address.Ethernet())
		if err != nil {
			return fmt.Errorf("opening bridge circuit %s on port %d: %w", b.Name, b.Port, err)
		}
		// Seed the tunnel with the peer's synthetic hardware address before
		// it has sent a single frame: otherwise Write has no known peer to
		// fan frames out to and the remote end can never hear the first
		// hello that would let it learn us back.
		if err := sock.AddPeer(b.PeerNode.Ethernet(), b.Address); err != nil {
			sock.Close()
			return fmt.Errorf("seeding bridge circuit %s peer %s: %w", b.Name, b.Address, err)
		}
		if _, err := r.AddBridgeCircuit(b.Name, b.Cost, sock, mtu); err != nil {
			sock.Close()
			return fmt.Errorf("adding bridge circuit %s: %w", b.Name, err)
		}
	}
	return nil
}

// addDdcmpCircuits dials every configured [ddcmp] peer and, if any are
// configured, starts a listener accepting the matching inbound
// connections (spec.md §6's [socket] TcpListenPort). An inbound
// connection's peer identity is resolved from the DDCMP routing-layer
// handshake itself (Init carries an explicit SrcNode), not from the TCP
// connection's own address, so an inbound circuit is registered generic
// and only gains its AdjacentNode once that handshake completes.
//
// The returned map lets a later DNS re-resolution (startDNSResolver) redial
// a named peer at a new host without this function needing to know
// anything about DNS: it is keyed by circuitSuffix(d.Name), matching a
// [dns.<suffix>] section naming the same peer by its dotted suffix.
func addDdcmpCircuits(r *router.Router, cfg *config.File, mtu int, log *slog.Logger) (net.Listener, map[string]func(host string) error, error) {
	redial := make(map[string]func(host string) error)
	if len(cfg.Ddcmp) == 0 {
		return nil, redial, nil
	}
	for _, d := range cfg.Ddcmp {
		d := d
		dial := func(host string) error {
			raddr := net.JoinHostPort(host, strconv.Itoa(cfg.Socket.TCPListenPort))
			conn, err := dialTCPWithBackoff(raddr, d.Name, log)
			if err != nil {
				return fmt.Errorf("dialing ddcmp circuit %s at %s: %w", d.Name, raddr, err)
			}
			opts := router.DdcmpOptions{Blocksize: uint16(mtu), HelloTimer: 15}
			if _, err := r.AddDdcmpCircuit(d.Name, d.Cost, conn, opts, mtu); err != nil {
				conn.Close()
				return fmt.Errorf("adding ddcmp circuit %s: %w", d.Name, err)
			}
			return nil
		}
		if err := dial(d.Address); err != nil {
			return nil, nil, err
		}
		redial[circuitSuffix(d.Name)] = dial
	}

	laddr := net.JoinHostPort("", strconv.Itoa(cfg.Socket.TCPListenPort))
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening for inbound ddcmp connections on %s: %w", laddr, err)
	}
	go acceptDdcmpConnections(r, ln, mtu)
	return ln, redial, nil
}

// ddcmpDialAttempts bounds dialTCPWithBackoff's retries: a transient
// connection refusal (the peer's listener not up yet, or briefly between
// its own restarts) is worth a short retry burst before surfacing as a
// hard startup/reconnect failure.
const ddcmpDialAttempts = 5

// dialTCPWithBackoff retries net.Dial against raddr, backing off between
// attempts, before giving up. Used both for a ddcmp circuit's initial
// connection and for redialing it after a DNS re-resolution.
func dialTCPWithBackoff(raddr, circuitName string, log *slog.Logger) (net.Conn, error) {
	b := internal.NewBackoff(internal.BackoffTCPConn)
	var lastErr error
	for attempt := 1; attempt <= ddcmpDialAttempts; attempt++ {
		conn, err := net.Dial("tcp", raddr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if log != nil {
			log.Warn("ddcmp: dial attempt failed", slog.String("circuit", circuitName), slog.Int("attempt", attempt), slog.String("error", err.Error()))
		}
		if attempt < ddcmpDialAttempts {
			b.Miss()
		}
	}
	return nil, lastErr
}

// startDNSResolver wires a router.DNSResolver for every [dns] section and
// starts its background polling. A resolved address change redials the
// matching ddcmp circuit if one exists; an unmatched dns entry (no ddcmp
// circuit sharing its dotted suffix) is logged and otherwise ignored, since
// this router has no bridge-circuit reconnect path (a bridge circuit
// re-learns its peer's UDP endpoint off the wire, see internal.UDPBridge).
func startDNSResolver(ctx context.Context, cfg *config.File, redial map[string]func(string) error, log *slog.Logger) {
	dns := router.NewDNSResolver(len(cfg.DNS))
	dns.SetLogger(log)
	dns.OnAddressChange = func(name, host, address string) {
		reconnect, ok := redial[circuitSuffix(name)]
		if !ok {
			log.Info("dns: no matching circuit for resolved peer", slog.String("name", name), slog.String("host", host))
			return
		}
		if err := reconnect(address); err != nil {
			log.Error("dns: reconnect failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	peers := make([]router.DNSPeer, len(cfg.DNS))
	for i, n := range cfg.DNS {
		peers[i] = router.DNSPeer{Name: n.Name, Host: n.Address, Poll: time.Duration(n.Poll) * time.Second}
	}
	go dns.Run(ctx, peers)
}

// circuitSuffix strips the section-kind prefix config's dotted-suffix
// convention uses ([ethernet.eth0], [ddcmp.peer1], [dns.peer1], ...),
// leaving the bare suffix two sections of different kinds share to name
// the same peer.
func circuitSuffix(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

func acceptDdcmpConnections(r *router.Router, ln net.Listener, mtu int) {
	inbound := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed on shutdown.
		}
		inbound++
		name := fmt.Sprintf("ddcmp-inbound-%d", inbound)
		opts := router.DdcmpOptions{Blocksize: uint16(mtu), HelloTimer: 15}
		if _, err := r.AddDdcmpCircuit(name, 5, conn, opts, mtu); err != nil {
			slog.Error("rejecting inbound ddcmp connection", slog.String("error", err.Error()))
			conn.Close()
		}
	}
}
