// Package forward implements the DECnet Phase IV forwarding engine: the
// pure-reader procedure that turns a received data packet into an
// outgoing adjacency and a forwarded (or returned, or dropped) packet,
// consulting but never modifying a [decision.Process]'s routing matrices.
package forward

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
	"github.com/soypat/dnet4/decision"
)

// Circuit is the minimal surface the forwarding engine needs: identity
// (for the intra-Ethernet check) and a way to ship the forwarded packet.
type Circuit interface {
	Slot() int
	Broadcast() bool
	Send(dst dnet4.Address, payload []byte) error
}

// CircuitSet looks up a circuit by its 1-based slot.
type CircuitSet interface {
	Circuit(slot int) Circuit
}

// Forwarder is one router's forwarding engine. The zero value is not
// ready for use; construct with [NewForwarder].
type Forwarder struct {
	Self        dnet4.Address
	Level2      bool
	Decision    *decision.Process
	Adjacencies *adjacency.Table
	Circuits    CircuitSet

	log *slog.Logger
}

// NewForwarder builds a forwarding engine sharing self's decision
// matrices and adjacency table.
func NewForwarder(self dnet4.Address, level2 bool, d *decision.Process, adjacencies *adjacency.Table, circuits CircuitSet) *Forwarder {
	return &Forwarder{Self: self, Level2: level2, Decision: d, Adjacencies: adjacencies, Circuits: circuits}
}

// SetLogger attaches a logger for trace output.
func (f *Forwarder) SetLogger(log *slog.Logger) { f.log = log }

// IsReachable reports whether addr is presently reachable, matching
// IsReachable: same-area destinations consult Reach[node]; cross-area
// destinations are always reachable for a level-1-only node, which simply
// forwards them toward the nearest attached level-2 router, and otherwise
// consult AReach[area].
func (f *Forwarder) IsReachable(addr dnet4.Address) bool {
	if addr.Area != f.Self.Area {
		if !f.Level2 {
			return true
		}
		return f.Decision.AReach[addr.Area]
	}
	return f.Decision.Reach[addr.Node]
}

// outputAdjacency picks the adjacency a packet addressed to dst should be
// forwarded over, matching GetAdjacencyForNode: same-area uses OA[node];
// cross-area uses OA[0] (nearest attached level-2 router) unless this
// node is itself an attached level-2 router, in which case it uses
// AOA[area]; a zero result in either case falls back to a direct lookup
// by address.
func (f *Forwarder) outputAdjacency(dst dnet4.Address) *adjacency.Adjacency {
	slot := 0
	if dst.Area == f.Self.Area {
		slot = f.Decision.OA[dst.Node]
	} else if !f.Level2 || !f.Decision.AttachedFlg {
		slot = f.Decision.OA[0]
	} else {
		slot = f.Decision.AOA[dst.Area]
	}

	if slot == 0 {
		return f.Adjacencies.FindAdjacency(dst)
	}
	return f.Adjacencies.GetAdjacency(slot)
}
