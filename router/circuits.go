package router

import (
	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
	"github.com/soypat/dnet4/circuit"
	"github.com/soypat/dnet4/forward"
	"github.com/soypat/dnet4/update"
)

// circuit looks up slot in the router's own registry, returning nil (not
// a typed-nil interface) when the slot is out of range or unassigned, so
// every adapter below can forward that nil straight through its own
// interface return without the classic non-nil-interface-holding-a-nil-
// pointer trap.
func (r *Router) circuit(slot int) *circuit.Circuit {
	if slot < 1 || slot > dnet4.NC {
		return nil
	}
	return r.circuits[slot]
}

// decisionCircuits adapts the router's registry to decision.CircuitSet.
// *circuit.Circuit already implements adjacency.Circuit directly
// (Slot/Kind/Broadcast/Up/Cost/Reject), so no wrapper type is needed
// here beyond the nil check.
type decisionCircuits struct{ r *Router }

func (d decisionCircuits) Circuit(slot int) adjacency.Circuit {
	c := d.r.circuit(slot)
	if c == nil {
		return nil
	}
	return c
}

// updateCircuits adapts the router's registry to update.CircuitSet.
// *circuit.Circuit already implements update.Circuit directly
// (Slot/Broadcast/Up/Send(payload)).
type updateCircuits struct{ r *Router }

func (u updateCircuits) Circuit(slot int) update.Circuit {
	c := u.r.circuit(slot)
	if c == nil {
		return nil
	}
	return c
}

// forwardCircuits adapts the router's registry to forward.CircuitSet.
// Unlike the two adapters above, *circuit.Circuit does NOT satisfy
// forward.Circuit directly: forward.Circuit wants a two-argument
// Send(dst, payload), but circuit.Circuit names that method SendTo (its
// own Send is the one-argument, default-destination form update.Circuit
// needs). forwardCircuitView bridges the name, not the behavior.
type forwardCircuits struct{ r *Router }

func (f forwardCircuits) Circuit(slot int) forward.Circuit {
	c := f.r.circuit(slot)
	if c == nil {
		return nil
	}
	return forwardCircuitView{c}
}

// forwardCircuitView gives a *circuit.Circuit the method name
// forward.Forwarder expects for addressed sends. Its own Send shadows
// the embedded Circuit.Send (different signature, same name) rather
// than conflicting with it: Go method promotion always prefers a method
// declared directly on the outer type.
type forwardCircuitView struct{ *circuit.Circuit }

func (v forwardCircuitView) Send(dst dnet4.Address, payload []byte) error {
	return v.Circuit.SendTo(dst, payload)
}
