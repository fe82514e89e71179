// Package adjacency implements the fixed-capacity neighbor table a DECnet
// Phase IV router keeps for every peer it has heard from: one slot per
// non-broadcast circuit, a pool of broadcast-router slots, a transient
// overflow slot used only while evicting, and a pool of broadcast-endnode
// slots. The decision process (not this package) consumes the table's
// contents when recomputing routes; this package only owns liveness,
// admission and eviction.
package adjacency

import (
	"log/slog"
	"time"

	"github.com/soypat/dnet4"
)

// State is the two-valued lifecycle of an adjacency.
type State uint8

const (
	StateInitialising State = iota
	StateUp
)

// Kind distinguishes what the peer at an adjacency's slot actually is.
// KindUnused marks a free slot; it is never a kind any live Adjacency
// carries.
type Kind uint8

const (
	KindUnused Kind = iota
	KindEndnode
	KindLevel1Router
	KindLevel2Router
	KindPhaseIII
)

// CircuitKind names the media a circuit runs over. It exists here, rather
// than as an adjacency.Kind, to keep "what a peer is" (Kind) distinct from
// "what wire the owning circuit uses" (CircuitKind); StopAllAdjacencies
// filters on the latter.
type CircuitKind uint8

const (
	CircuitUnknown CircuitKind = iota
	CircuitEthernet
	CircuitDDCMP
	// CircuitBridge is the Ethernet-over-UDP bridge circuit kind: broadcast
	// media like Ethernet, but a distinct CircuitKind so it can be stopped
	// independently of real Ethernet circuits.
	CircuitBridge
)

// Circuit is the minimal surface the adjacency table needs from a circuit.
// It is declared here, not imported from a circuit package, so that the
// circuit package can depend on adjacency without a cycle:
// circuit.Circuit satisfies this interface and the table holds it
// by interface value rather than by concrete pointer.
type Circuit interface {
	// Slot is the circuit's own 1-based slot, 1..NC. Non-broadcast
	// adjacencies are placed at this same slot in the adjacency table.
	Slot() int
	// Kind identifies the circuit's media.
	Kind() CircuitKind
	// Broadcast reports whether the circuit's media supports multicast
	// (Ethernet, or the Ethernet-over-UDP bridge) as opposed to
	// point-to-point (DDCMP).
	Broadcast() bool
	// Up reports whether the circuit is currently in the Up state.
	Up() bool
	// Cost is the circuit's configured routing cost, required positive
	// once the circuit is Up.
	Cost() int
	// Reject tears down a non-broadcast circuit whose sole adjacency has
	// just timed out, per PurgeAdjacencies' non-broadcast branch.
	Reject()
}

// RouterListEntry is one entry of the RS-LIST a router hello carries: the
// set of routers the sender itself currently considers adjacent. Finding
// this node's own address in a peer's RS-LIST is what promotes a router
// adjacency from Initialising to Up.
type RouterListEntry struct {
	Router dnet4.Address
}

// Adjacency is a single neighbor relationship: a peer DECnet address heard
// on a specific circuit, with liveness tracked by periodic hellos.
type Adjacency struct {
	// Slot is this adjacency's fixed, 1-based position in the table; it
	// never changes except when PurgeLowestPriorityAdjacency compacts a
	// vacated slot, which is the only operation allowed to move an entry.
	Slot int
	// Circuit is the owning circuit. Nil on an unused slot.
	Circuit Circuit
	Kind    Kind
	ID      dnet4.Address
	// LastHeardFrom is the time of the most recent hello or init message
	// naming this peer; PurgeAdjacencies compares it against now.
	LastHeardFrom time.Time
	// HelloTimerPeriod is the peer-advertised hello interval in seconds,
	// used by PurgeAdjacencies' liveness multiplier.
	HelloTimerPeriod int
	State            State
	Priority         byte
}

func (a *Adjacency) free() bool { return a.Kind == KindUnused }

// Table is the fixed-capacity adjacency table for one router. The zero
// value is not ready for use; construct with [NewTable].
type Table struct {
	slots [dnet4.AdjacencySlots]Adjacency

	routerAdjacencyCount  int
	endnodeAdjacencyCount int

	// Self is this node's own DECnet address, used to recognize whether a
	// peer's RS-LIST names us (CheckRouterAdjacency's Up/Initialising
	// test).
	Self dnet4.Address

	// StateChangeCallback fires synchronously whenever an adjacency
	// transitions Initialising<->Up, mirroring SetAdjacencyStateChangeCallback.
	// The decision process registers itself here to recompute routes.
	StateChangeCallback func(*Adjacency)

	// CheckDesignatedRouter is invoked at the end of CheckRouterAdjacency,
	// letting the Ethernet initialization sublayer re-run DR election
	// whenever a router adjacency's state might have shifted the outcome.
	CheckDesignatedRouter func(Circuit)

	// Now returns the current time; overridable so tests can drive
	// PurgeAdjacencies deterministically. Defaults to time.Now.
	Now func() time.Time

	log *slog.Logger
}

// NewTable constructs an empty, ready-to-use adjacency table: every slot
// is Unused and carries its eventual 1-based slot number, mirroring
// InitialiseAdjacencies.
func NewTable() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i].Slot = i + 1
	}
	return t
}

func (t *Table) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func secondsDuration(s int) time.Duration { return time.Duration(s) * time.Second }

// addressID orders a DECnet address as a single comparable integer
// (area-major, node-minor), matching GetDecnetId's area*1024+node packing.
func addressID(a dnet4.Address) int {
	return int(a.Area)*1024 + int(a.Node)
}

// findFreeSlot scans the n slots starting at 0-based index from, returning
// the first whose Kind is Unused, or nil if the region is full.
func (t *Table) findFreeSlot(from, n int) *Adjacency {
	for i := from; i < from+n; i++ {
		if t.slots[i].free() {
			return &t.slots[i]
		}
	}
	return nil
}

// routerRegion bounds the 0-based array indices spanning the broadcast
// router pool plus its one transient overflow slot: NBRA+1 slots starting
// right after the NC per-circuit slots.
func (t *Table) routerRegion() (from, n int) { return dnet4.NC, dnet4.NBRA + 1 }

// endnodeRegion bounds the 0-based array indices of the broadcast endnode
// pool.
func (t *Table) endnodeRegion() (from, n int) { return dnet4.EndnodeSlotBase, dnet4.NBEA }

func (t *Table) addRouterAdjacency(id dnet4.Address, circuit Circuit, kind Kind, helloPeriod int, priority byte) *Adjacency {
	from, n := t.routerRegion()
	a := t.findFreeSlot(from, n)
	if a == nil {
		// The overflow slot always keeps one spare beyond NBRA, so this
		// only happens if the table was built with a smaller capacity
		// than dnet4.AdjacencySlots promises; nothing sensible to do.
		return nil
	}
	t.routerAdjacencyCount++
	a.Kind = kind
	a.ID = id
	a.Circuit = circuit
	a.State = StateInitialising
	a.HelloTimerPeriod = helloPeriod
	a.Priority = priority

	if t.routerAdjacencyCount > dnet4.NBRA {
		t.purgeLowestPriorityAdjacency()
		a = t.findAdjacency(id)
	}
	return a
}

func (t *Table) addEndnodeAdjacency(id dnet4.Address, circuit Circuit, helloPeriod int) *Adjacency {
	from, n := t.endnodeRegion()
	a := t.findFreeSlot(from, n)
	if a == nil {
		return nil // pool exhausted: peer is silently left untracked.
	}
	t.endnodeAdjacencyCount++
	a.Kind = KindEndnode
	a.ID = id
	a.Circuit = circuit
	a.State = StateInitialising
	a.HelloTimerPeriod = helloPeriod
	return a
}

// addCircuitAdjacency places an adjacency at a non-broadcast circuit's own
// fixed slot, grounded on Dev/Route20/adjacency.c's AddCircuitAdjacency
// (the plain Route20/adjacency.c never defines per-circuit slots at all).
func (t *Table) addCircuitAdjacency(id dnet4.Address, circuit Circuit, kind Kind, helloPeriod int) *Adjacency {
	a := t.getAdjacency(circuit.Slot())
	if a == nil {
		return nil
	}
	a.Kind = kind
	a.ID = id
	a.Circuit = circuit
	a.State = StateInitialising
	a.HelloTimerPeriod = helloPeriod
	return a
}

func (t *Table) deleteAdjacency(a *Adjacency) {
	if IsBroadcastRouterAdjacency(a) {
		t.routerAdjacencyCount--
	} else if a.Kind == KindEndnode {
		t.endnodeAdjacencyCount--
	}
	slot := a.Slot
	*a = Adjacency{Slot: slot, Kind: KindUnused}
}

func (t *Table) adjacencyUp(a *Adjacency) {
	a.State = StateUp
	t.traceAdjacency("adjacency: up", a)
	if t.StateChangeCallback != nil {
		t.StateChangeCallback(a)
	}
}

func (t *Table) adjacencyDown(a *Adjacency) {
	a.State = StateInitialising
	t.traceAdjacency("adjacency: down", a)
	if t.StateChangeCallback != nil {
		t.StateChangeCallback(a)
	}
}

// softAdjacencyUp promotes an adjacency without notifying the state-change
// callback, for CheckCircuitAdjacency's "the DDCMP init sublayer drives the
// hard transition" contract.
func (t *Table) softAdjacencyUp(a *Adjacency) {
	a.State = StateUp
}

// getNewAdjacencyState implements GetNewAdjacencyState: a router adjacency
// is Up iff the peer's own RS-LIST names this node.
func (t *Table) getNewAdjacencyState(rslist []RouterListEntry) State {
	for _, r := range rslist {
		if r.Router == t.Self {
			return StateUp
		}
	}
	return StateInitialising
}

// purgeLowestPriorityAdjacency evicts the lowest-(priority, then id) router
// adjacency once the router pool has been oversubscribed by one, then
// compacts the highest-occupied router slot down into the vacated one so
// every live router adjacency keeps a slot <= NC+NBRA.
//
// Unlike PurgeLowestPriorityAdjacency in the reference implementation,
// which scans a supposedly-contiguous run of routerAdjacencyCount slots
// starting at the pool base, this scans every occupied slot in the router
// region: individual purges (PurgeAdjacencies evicting a single timed-out
// peer) can leave holes in that run, and scanning only the assumed-
// contiguous prefix would either miss adjacencies or read unused ones.
func (t *Table) purgeLowestPriorityAdjacency() {
	from, n := t.routerRegion()
	var selected *Adjacency
	lowestPriority := 256
	lowestID := 1 << 30
	for i := from; i < from+n; i++ {
		a := &t.slots[i]
		if a.free() || !IsBroadcastRouterAdjacency(a) {
			continue
		}
		id := addressID(a.ID)
		if int(a.Priority) < lowestPriority || (int(a.Priority) == lowestPriority && id < lowestID) {
			selected = a
			lowestPriority = int(a.Priority)
			lowestID = id
		}
	}
	if selected == nil {
		return
	}
	if selected.State == StateUp {
		t.adjacencyDown(selected)
	}
	slotToDelete := selected.Slot
	t.deleteAdjacency(selected)

	overflowIdx := from + n - 1 // the NC+NBRA+1 overflow slot.
	if slotToDelete != t.slots[overflowIdx].Slot {
		overflow := &t.slots[overflowIdx]
		moved := *overflow
		moved.Slot = slotToDelete
		t.slots[slotToDelete-1] = moved
		// DeleteAdjacency above already decremented routerAdjacencyCount
		// for the evicted entry; the entry we just relocated still
		// occupies a live slot, it has only moved, so the count needs no
		// further adjustment. Free the now-vacated overflow slot.
		*overflow = Adjacency{Slot: overflow.Slot, Kind: KindUnused}
	}
}
