package adjacency

import "github.com/soypat/dnet4"

// CheckRouterAdjacency processes a router hello from peer on circuit:
// finds or creates the adjacency in the broadcast-router region, touches
// its liveness and priority, and promotes/demotes it between Initialising
// and Up depending on whether rslist names this node. Always finishes by
// invoking CheckDesignatedRouter, since any state change here can change
// who the designated router on circuit ought to be.
func (t *Table) CheckRouterAdjacency(peer dnet4.Address, circuit Circuit, kind Kind, helloPeriod int, priority byte, rslist []RouterListEntry) *Adjacency {
	a := t.findAdjacency(peer)
	if a == nil {
		a = t.addRouterAdjacency(peer, circuit, kind, helloPeriod, priority)
	}
	if a != nil {
		a.LastHeardFrom = t.now()
		a.HelloTimerPeriod = helloPeriod
		a.Priority = priority

		newState := t.getNewAdjacencyState(rslist)
		switch {
		case a.State == StateInitialising && newState == StateUp:
			t.adjacencyUp(a)
		case a.State == StateUp && newState == StateInitialising:
			t.adjacencyDown(a)
		}
	}
	if t.CheckDesignatedRouter != nil {
		t.CheckDesignatedRouter(circuit)
	}
	return a
}

// CheckEndnodeAdjacency processes an endnode hello: finds or creates the
// adjacency in the broadcast-endnode region and unconditionally promotes
// it to Up, since an endnode never appears in anyone's RS-LIST.
func (t *Table) CheckEndnodeAdjacency(peer dnet4.Address, circuit Circuit, helloPeriod int) *Adjacency {
	a := t.findAdjacency(peer)
	if a == nil {
		a = t.addEndnodeAdjacency(peer, circuit, helloPeriod)
	}
	if a != nil {
		a.LastHeardFrom = t.now()
		a.HelloTimerPeriod = helloPeriod
		if a.State == StateInitialising {
			t.adjacencyUp(a)
		}
	}
	return a
}

// InitialiseCircuitAdjacency seats an adjacency for a non-broadcast
// circuit's sole peer into the circuit's own slot, forcing Initialising.
// Grounded on Dev/Route20/adjacency.c: the plainer Route20/adjacency.c
// never implements per-circuit slots, only the broadcast pools, even
// though spec requires this operation — see the adjacency DESIGN.md entry
// for the divergence this resolves.
func (t *Table) InitialiseCircuitAdjacency(peer dnet4.Address, circuit Circuit, kind Kind, helloPeriod int) *Adjacency {
	a := t.findAdjacency(peer)
	if a == nil {
		a = t.addCircuitAdjacency(peer, circuit, kind, helloPeriod)
	}
	if a != nil {
		a.LastHeardFrom = t.now()
		a.HelloTimerPeriod = helloPeriod
		a.State = StateInitialising
	}
	return a
}

// CheckCircuitAdjacency soft-promotes a non-broadcast circuit's adjacency
// to Up without firing the state-change callback: the DDCMP init sublayer
// is what drives the hard up/down transition and its notification.
func (t *Table) CheckCircuitAdjacency(peer dnet4.Address, circuit Circuit) *Adjacency {
	if circuit.Broadcast() {
		return nil
	}
	a := t.findAdjacency(peer)
	if a != nil {
		a.LastHeardFrom = t.now()
		t.softAdjacencyUp(a)
	}
	return a
}

// PurgeAdjacencies tears down every adjacency that has not been heard from
// within multiplier*helloTimerPeriod, where multiplier is BCT3Mult for
// adjacencies on broadcast circuits and T3Mult otherwise. Non-broadcast
// circuits whose sole adjacency times out are also rejected if they were
// Up, matching Dev/Route20/adjacency.c's PurgeAdjacencyCallback.
func (t *Table) PurgeAdjacencies() {
	now := t.now()
	t.forEach(func(a *Adjacency) bool {
		mult := dnet4.T3Mult
		broadcast := a.Circuit != nil && a.Circuit.Broadcast()
		if broadcast {
			mult = dnet4.BCT3Mult
		}
		if now.Sub(a.LastHeardFrom) <= secondsDuration(mult*a.HelloTimerPeriod) {
			return true
		}
		if broadcast {
			if a.State == StateUp {
				t.adjacencyDown(a)
			}
			if a.Slot > dnet4.NC {
				t.deleteAdjacency(a)
			}
		} else {
			if a.Circuit != nil && a.Circuit.Up() {
				a.Circuit.Reject()
			}
			t.adjacencyDown(a)
			t.deleteAdjacency(a)
		}
		return true
	})
}

// StopAllAdjacencies tears down and deletes every adjacency whose owning
// circuit is of the given kind, matching Dev/Route20/adjacency.c's
// CircuitType-filtered StopAllAdjacencies (the plain Route20/adjacency.c
// version takes no parameter and always tears down everything).
func (t *Table) StopAllAdjacencies(kind CircuitKind) {
	t.forEach(func(a *Adjacency) bool {
		if a.Circuit == nil || a.Circuit.Kind() != kind {
			return true
		}
		t.adjacencyDown(a)
		t.deleteAdjacency(a)
		return true
	})
}

// AdjacencyDown transitions a to Initialising and fires
// StateChangeCallback, matching AdjacencyDown. Unlike StopAllAdjacencies
// it does not free the slot: the caller (typically a circuit or hello
// sublayer going down) decides separately whether the adjacency should
// be purged or is expected to come back up.
func (t *Table) AdjacencyDown(a *Adjacency) { t.adjacencyDown(a) }

// FindAdjacency returns the unique live adjacency for peer, or nil.
func (t *Table) FindAdjacency(peer dnet4.Address) *Adjacency { return t.findAdjacency(peer) }

func (t *Table) findAdjacency(peer dnet4.Address) *Adjacency {
	var found *Adjacency
	t.forEach(func(a *Adjacency) bool {
		if a.ID == peer {
			found = a
			return false
		}
		return true
	})
	return found
}

// GetAdjacency returns the adjacency at 1-based slot i, per the DEC-spec
// convention the decision process's matrices index adjacencies by.
func (t *Table) GetAdjacency(i int) *Adjacency { return t.getAdjacency(i) }

func (t *Table) getAdjacency(i int) *Adjacency {
	if i < 1 || i > len(t.slots) {
		return nil
	}
	return &t.slots[i-1]
}

// ProcessRouterAdjacencies calls process for every occupied slot in the
// broadcast-router pool plus the overflow slot, stopping early if process
// returns false. Used by the decision process to iterate router
// adjacencies in slot order.
func (t *Table) ProcessRouterAdjacencies(process func(*Adjacency) bool) {
	from, n := t.routerRegion()
	for i := from; i < from+n; i++ {
		a := &t.slots[i]
		if a.Kind != KindUnused {
			if !process(a) {
				return
			}
		}
	}
}

// forEach visits every occupied slot across the whole table in slot order,
// stopping early if visit returns false.
func (t *Table) forEach(visit func(*Adjacency) bool) {
	for i := range t.slots {
		a := &t.slots[i]
		if a.Kind != KindUnused {
			if !visit(a) {
				return
			}
		}
	}
}

// FindEndnodeAdjacency looks for a live endnode adjacency on circuit whose
// peer node number is node. The decision process's Routes uses this to
// prefer a direct endnode path over indirect router forwarding when a
// more specific adjacency exists on the same Ethernet circuit.
//
// The reference implementation's equivalent scan in Routes() iterates the
// endnode region starting one slot too early, at the transient overflow
// slot rather than the first real endnode slot, and one slot too far at
// the end; both are almost certainly a copy-paste off-by-one rather than
// intended behavior, so this scans the correctly-bounded endnode region
// instead (see the adjacency DESIGN.md entry).
func (t *Table) FindEndnodeAdjacency(circuit Circuit, node uint16) *Adjacency {
	from, n := t.endnodeRegion()
	for i := from; i < from+n; i++ {
		a := &t.slots[i]
		if a.Kind == KindEndnode && a.Circuit == circuit && a.ID.Node == node {
			return a
		}
	}
	return nil
}

// IsBroadcastRouterAdjacency reports whether a is a Level1Router or
// Level2Router adjacency.
func IsBroadcastRouterAdjacency(a *Adjacency) bool {
	return a.Kind == KindLevel1Router || a.Kind == KindLevel2Router
}

// IsBroadcastEndnodeAdjacency reports whether a is an Endnode adjacency.
func IsBroadcastEndnodeAdjacency(a *Adjacency) bool {
	return a.Kind == KindEndnode
}
