// Package circuit implements DECnet Phase IV circuit lifecycle management:
// the Off/Up state machine common to every media kind, the DDCMP routing
// layer initialization sublayer, and the Ethernet designated-router
// election, on top of a pluggable Line transport (Ethernet raw socket,
// DDCMP point-to-point, or the Ethernet-over-UDP bridge).
package circuit

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// Kind names the media a circuit runs over.
type Kind uint8

const (
	KindEthernet Kind = iota
	KindDDCMP
	// KindBridge is the Ethernet-over-UDP bridge circuit: broadcast media
	// like Ethernet, carried over a UDP socket instead of a raw AF_PACKET
	// socket, for deployments where two routers cannot share a real LAN
	// segment.
	KindBridge
)

func (k Kind) adjacencyCircuitKind() adjacency.CircuitKind {
	switch k {
	case KindEthernet:
		return adjacency.CircuitEthernet
	case KindBridge:
		return adjacency.CircuitBridge
	default:
		return adjacency.CircuitDDCMP
	}
}

func (k Kind) broadcast() bool { return k == KindEthernet || k == KindBridge }

// State is a circuit's Off/Up lifecycle state, per circuit.c's
// CircuitStateOff/CircuitStateUp.
type State uint8

const (
	StateOff State = iota
	StateUp
)

// Line is the underlying transport a Circuit drives: a raw Ethernet
// socket, a DDCMP point-to-point line, or the Ethernet-over-UDP bridge.
// Send transmits to the media's default destination (the sole peer on a
// point-to-point line, or a multicast group the implementation picks from
// the message's own flag byte on a broadcast line). SendTo addresses dst
// explicitly — a broadcast Line resolves it to dst's Ethernet hardware
// address; a point-to-point Line ignores dst and behaves like Send.
// Start/Stop open and close the underlying transport.
type Line interface {
	Send(payload []byte) error
	SendTo(dst dnet4.Address, payload []byte) error
	// SendMulticast addresses payload to an explicit well-known group
	// (dnet4.AllRoutersAddr, AllLevel2RoutersAddr, or AllEndNodesAddr).
	// Only meaningful on a broadcast Line; a point-to-point Line treats it
	// the same as Send.
	SendMulticast(group [6]byte, payload []byte) error
	Start() error
	Stop()
}

// Circuit is one configured circuit: its media kind, transport, and
// Off/Up lifecycle state. It satisfies adjacency.Circuit so the adjacency
// table can hold it directly.
//
// Grounded on circuit.c's circuit_t: the function-pointer dispatch table
// there (Start/Up/Down/ReadPacket/WritePacket/Stop/Reject per circuit
// type) becomes ordinary Go interface dispatch through Line plus the
// per-kind init sublayers (ddcmpinit.go, ethinit.go) that wrap a Circuit.
type Circuit struct {
	Name string
	slot int
	kind Kind
	cost int
	line Line

	state State

	// AdjacentNode is the sole peer of a non-broadcast circuit, set once
	// the DDCMP init sublayer completes initialization.
	AdjacentNode dnet4.Address

	// HelloTimer is this circuit's own hello/init period in seconds, sent
	// to peers and used as the basis for adjacency liveness checks.
	HelloTimer uint16

	// isDesignatedRouter is set by EthInit's election; meaningless for a
	// non-broadcast circuit.
	isDesignatedRouter bool

	// StateChangeCallback fires whenever Up/Down transitions the circuit,
	// mirroring SetCircuitStateChangeCallback. The router wires the
	// decision process's ProcessCircuitStateChange here.
	StateChangeCallback func(*Circuit)

	log *slog.Logger
}

// NewCircuit constructs a circuit in the Off state.
func NewCircuit(name string, slot int, kind Kind, cost int, line Line) *Circuit {
	return &Circuit{Name: name, slot: slot, kind: kind, cost: cost, line: line, state: StateOff}
}

// SetLogger attaches a logger for trace output.
func (c *Circuit) SetLogger(log *slog.Logger) { c.log = log }

// Slot is this circuit's fixed 1-based slot, 1..NC.
func (c *Circuit) Slot() int { return c.slot }

// Kind reports the media kind in adjacency-package terms.
func (c *Circuit) Kind() adjacency.CircuitKind { return c.kind.adjacencyCircuitKind() }

// CircuitKind reports this package's own, more specific kind (so the
// Bridge/Ethernet distinction invisible to adjacency.CircuitKind is still
// available to callers that need it, e.g. the DR election).
func (c *Circuit) CircuitKind() Kind { return c.kind }

// Broadcast reports whether this circuit's media supports multicast.
func (c *Circuit) Broadcast() bool { return c.kind.broadcast() }

// Up reports whether the circuit is presently Up.
func (c *Circuit) Up() bool { return c.state == StateUp }

// Cost is this circuit's configured routing cost.
func (c *Circuit) Cost() int { return c.cost }

// Send transmits payload to this circuit's default destination: the
// sole peer, for a point-to-point DDCMP line, or a multicast group
// selected by the underlying Line from the message's own category, for
// a broadcast line. Used for routing updates and hellos, which never
// target one specific node.
func (c *Circuit) Send(payload []byte) error {
	return c.line.Send(payload)
}

// SendTo transmits payload addressed to dst: on a broadcast line this
// resolves to dst's Ethernet hardware address; on a point-to-point line
// dst is irrelevant; the sole peer receives it regardless. Used for
// forwarded data packets, which always target one specific node.
func (c *Circuit) SendTo(dst dnet4.Address, payload []byte) error {
	return c.line.SendTo(dst, payload)
}

// SendMulticast addresses payload to an explicit well-known Ethernet group,
// for the hello variants whose destination group can't be inferred from
// the message category alone (a router hello goes to AllRouters normally,
// but to AllEndNodes when sent by the designated router).
func (c *Circuit) SendMulticast(group [6]byte, payload []byte) error {
	return c.line.SendMulticast(group, payload)
}

// circuitUp transitions the circuit to Up and fires StateChangeCallback,
// matching CircuitUp.
func (c *Circuit) circuitUp() {
	c.trace("circuit: coming up")
	c.state = StateUp
	if c.StateChangeCallback != nil {
		c.StateChangeCallback(c)
	}
}

// circuitDown transitions the circuit to Off and fires StateChangeCallback,
// matching CircuitDown.
func (c *Circuit) circuitDown() {
	c.trace("circuit: going down")
	c.state = StateOff
	if c.StateChangeCallback != nil {
		c.StateChangeCallback(c)
	}
}

// Reject tears down a non-broadcast circuit whose sole adjacency has just
// timed out, per PurgeAdjacencies' non-broadcast branch and CircuitReject.
// Ethernet/bridge circuits have no reject-specific behavior and fall back
// to an ordinary down transition.
func (c *Circuit) Reject() {
	if c.kind == KindDDCMP {
		c.trace("circuit: rejected")
	}
	c.circuitDown()
}

func (c *Circuit) trace(msg string) {
	if c.log == nil {
		return
	}
	c.log.Info(msg, slog.String("circuit", c.Name), slog.Int("slot", c.slot))
}
