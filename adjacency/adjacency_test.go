package adjacency

import (
	"testing"
	"time"

	"github.com/soypat/dnet4"
)

// fakeCircuit is a minimal Circuit for tests; it never actually forwards
// anything and just records whether Reject was called.
type fakeCircuit struct {
	slot      int
	kind      CircuitKind
	broadcast bool
	up        bool
	cost      int
	rejected  bool
}

func (c *fakeCircuit) Slot() int        { return c.slot }
func (c *fakeCircuit) Kind() CircuitKind { return c.kind }
func (c *fakeCircuit) Broadcast() bool  { return c.broadcast }
func (c *fakeCircuit) Up() bool         { return c.up }
func (c *fakeCircuit) Cost() int        { return c.cost }
func (c *fakeCircuit) Reject()          { c.up = false; c.rejected = true }

func newTestTable(self dnet4.Address) (*Table, *time.Time) {
	tbl := NewTable()
	tbl.Self = self
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.Now = func() time.Time { return clock }
	return tbl, &clock
}

func TestCheckRouterAdjacencyCreatesInitialisingThenPromotesUp(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 100}
	peer := dnet4.Address{Area: 1, Node: 200}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}

	var transitions []State
	tbl.StateChangeCallback = func(a *Adjacency) { transitions = append(transitions, a.State) }

	a := tbl.CheckRouterAdjacency(peer, eth0, KindLevel1Router, 2, 128, nil)
	if a == nil {
		t.Fatal("expected adjacency to be created")
	}
	if a.State != StateInitialising {
		t.Fatalf("expected Initialising on first hello with empty rslist, got %v", a.State)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected no state-change callback on creation, got %v", transitions)
	}
	if a.Slot <= dnet4.NC || a.Slot > dnet4.NC+dnet4.NBRA {
		t.Fatalf("expected slot in broadcast-router region, got %d", a.Slot)
	}

	a2 := tbl.CheckRouterAdjacency(peer, eth0, KindLevel1Router, 2, 64, []RouterListEntry{{Router: self}})
	if a2 != a {
		t.Fatalf("expected the same adjacency to be reused, got different pointer/slot %d vs %d", a2.Slot, a.Slot)
	}
	if a.State != StateUp {
		t.Fatalf("expected Up once rslist names self, got %v", a.State)
	}
	if len(transitions) != 1 || transitions[0] != StateUp {
		t.Fatalf("expected exactly one Up transition fired, got %v", transitions)
	}

	if got := tbl.FindAdjacency(peer); got != a {
		t.Fatalf("FindAdjacency did not return the same adjacency")
	}
}

func TestCheckEndnodeAdjacencyPromotesUnconditionally(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 100}
	peer := dnet4.Address{Area: 1, Node: 5}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}

	var fired bool
	tbl.StateChangeCallback = func(*Adjacency) { fired = true }

	a := tbl.CheckEndnodeAdjacency(peer, eth0, 10)
	if a == nil || a.State != StateUp {
		t.Fatalf("expected endnode adjacency promoted straight to Up, got %+v", a)
	}
	if !fired {
		t.Fatal("expected state-change callback to fire on endnode promotion")
	}
	if a.Slot <= dnet4.NC+dnet4.NBRA {
		t.Fatalf("expected slot in broadcast-endnode region, got %d", a.Slot)
	}
}

func TestRouterAdjacencyEvictionPrefersLowestPriorityThenLowestID(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}

	// Fill the NBRA broadcast-router slots, node 2..NBRA+1, all priority 100
	// except node 2 which gets the lowest priority and should be evicted
	// first when the pool overflows.
	for i := 0; i < dnet4.NBRA; i++ {
		peer := dnet4.Address{Area: 1, Node: uint16(2 + i)}
		prio := byte(100)
		if i == 0 {
			prio = 10
		}
		a := tbl.CheckRouterAdjacency(peer, eth0, KindLevel1Router, 10, prio, nil)
		if a == nil {
			t.Fatalf("expected adjacency %d to be admitted, pool should not be full yet", i)
		}
	}

	lowest := dnet4.Address{Area: 1, Node: 2}
	if tbl.FindAdjacency(lowest) == nil {
		t.Fatal("expected lowest-priority peer to be present before overflow")
	}

	// One more arrival overflows the pool (NBRA+1 simultaneously held,
	// counting the transient slot) and must evict the lowest-priority one.
	overflowPeer := dnet4.Address{Area: 1, Node: uint16(2 + dnet4.NBRA)}
	newA := tbl.CheckRouterAdjacency(overflowPeer, eth0, KindLevel1Router, 10, 50, nil)
	if newA == nil {
		t.Fatal("expected the new adjacency to survive eviction and be found")
	}
	if tbl.FindAdjacency(lowest) != nil {
		t.Fatal("expected the lowest-priority adjacency to have been evicted")
	}
	if newA.Slot <= dnet4.NC || newA.Slot > dnet4.NC+dnet4.NBRA {
		t.Fatalf("expected the surviving adjacency compacted into a legal slot <= NC+NBRA, got %d", newA.Slot)
	}

	// Slot-index consistency invariant (spec.md invariant 7): every live
	// adjacency must sit at the slot it claims.
	for i := 1; i <= dnet4.AdjacencySlots; i++ {
		a := tbl.GetAdjacency(i)
		if a.Kind != KindUnused && a.Slot != i {
			t.Fatalf("slot-index consistency violated: adjacency claims slot %d but lives at index %d", a.Slot, i)
		}
	}
}

func TestRouterAdjacencyTieBreaksOnLowestID(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}

	for i := 0; i < dnet4.NBRA; i++ {
		peer := dnet4.Address{Area: 1, Node: uint16(10 + i)}
		tbl.CheckRouterAdjacency(peer, eth0, KindLevel1Router, 10, 50, nil)
	}

	lowestID := dnet4.Address{Area: 1, Node: 10}
	overflowPeer := dnet4.Address{Area: 1, Node: uint16(10 + dnet4.NBRA)}
	tbl.CheckRouterAdjacency(overflowPeer, eth0, KindLevel1Router, 10, 50, nil)

	if tbl.FindAdjacency(lowestID) != nil {
		t.Fatal("expected the equal-priority, lowest-id adjacency to be evicted on tie")
	}
}

func TestCheckCircuitAdjacencySoftPromotesWithoutCallback(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	peer := dnet4.Address{Area: 1, Node: 2}
	tbl, _ := newTestTable(self)
	ddcmp0 := &fakeCircuit{slot: 3, kind: CircuitDDCMP, broadcast: false, up: true}

	var fired bool
	tbl.StateChangeCallback = func(*Adjacency) { fired = true }

	tbl.InitialiseCircuitAdjacency(peer, ddcmp0, KindLevel1Router, 10)
	a := tbl.GetAdjacency(ddcmp0.Slot())
	if a.State != StateInitialising {
		t.Fatalf("expected InitialiseCircuitAdjacency to force Initialising, got %v", a.State)
	}

	tbl.CheckCircuitAdjacency(peer, ddcmp0)
	if a.State != StateUp {
		t.Fatalf("expected CheckCircuitAdjacency to soft-promote to Up, got %v", a.State)
	}
	if fired {
		t.Fatal("soft promotion must not fire the state-change callback")
	}
}

func TestCheckCircuitAdjacencyIgnoresBroadcastCircuits(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	peer := dnet4.Address{Area: 1, Node: 2}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}

	if got := tbl.CheckCircuitAdjacency(peer, eth0); got != nil {
		t.Fatalf("expected no-op on a broadcast circuit, got %+v", got)
	}
}

func TestPurgeAdjacenciesUsesBroadcastVsNonBroadcastMultiplier(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	tbl, clock := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}
	ddcmp0 := &fakeCircuit{slot: 2, kind: CircuitDDCMP, broadcast: false, up: true}

	ethPeer := dnet4.Address{Area: 1, Node: 200}
	ddcmpPeer := dnet4.Address{Area: 1, Node: 300}
	tbl.CheckRouterAdjacency(ethPeer, eth0, KindLevel1Router, dnet4.T3, 128, []RouterListEntry{{Router: self}})
	tbl.InitialiseCircuitAdjacency(ddcmpPeer, ddcmp0, KindLevel1Router, dnet4.T3)
	tbl.CheckCircuitAdjacency(ddcmpPeer, ddcmp0)

	// Advance just past BCT3Mult*helloPeriod (the broadcast multiplier,
	// the smaller of the two: BCT3Mult=2 < T3Mult=3) but not yet past
	// T3Mult*helloPeriod (the non-broadcast one).
	*clock = clock.Add(time.Duration(dnet4.BCT3Mult*dnet4.T3+1) * time.Second)
	tbl.PurgeAdjacencies()

	if tbl.FindAdjacency(ethPeer) != nil {
		t.Fatal("expected the broadcast peer to have timed out at BCT3Mult*helloPeriod")
	}
	if tbl.FindAdjacency(ddcmpPeer) == nil {
		t.Fatal("expected the non-broadcast peer to still be alive, T3Mult*helloPeriod has not elapsed yet")
	}

	// Advance the rest of the way past T3Mult*helloPeriod.
	*clock = clock.Add(time.Duration((dnet4.T3Mult-dnet4.BCT3Mult)*dnet4.T3) * time.Second)
	tbl.PurgeAdjacencies()

	if tbl.FindAdjacency(ddcmpPeer) != nil {
		t.Fatal("expected the non-broadcast peer to have timed out at T3Mult*helloPeriod")
	}
	if !ddcmp0.rejected {
		t.Fatal("expected the non-broadcast circuit to be rejected once its sole adjacency timed out")
	}
}

func TestPurgeAdjacenciesLeavesLiveAdjacenciesAlone(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	tbl, clock := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}
	peer := dnet4.Address{Area: 1, Node: 200}
	tbl.CheckRouterAdjacency(peer, eth0, KindLevel1Router, dnet4.T3, 128, nil)

	*clock = clock.Add(time.Second)
	tbl.PurgeAdjacencies()

	if tbl.FindAdjacency(peer) == nil {
		t.Fatal("expected a recently-heard-from adjacency to survive a purge pass")
	}
}

func TestStopAllAdjacenciesFiltersByCircuitKind(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 1}
	tbl, _ := newTestTable(self)
	eth0 := &fakeCircuit{slot: 1, kind: CircuitEthernet, broadcast: true, up: true}
	ddcmp0 := &fakeCircuit{slot: 2, kind: CircuitDDCMP, broadcast: false, up: true}

	ethPeer := dnet4.Address{Area: 1, Node: 200}
	ddcmpPeer := dnet4.Address{Area: 1, Node: 300}
	tbl.CheckRouterAdjacency(ethPeer, eth0, KindLevel1Router, 10, 128, nil)
	tbl.InitialiseCircuitAdjacency(ddcmpPeer, ddcmp0, KindLevel1Router, 10)

	tbl.StopAllAdjacencies(CircuitEthernet)

	if tbl.FindAdjacency(ethPeer) != nil {
		t.Fatal("expected the Ethernet-circuit adjacency to have been stopped")
	}
	if tbl.FindAdjacency(ddcmpPeer) == nil {
		t.Fatal("expected the DDCMP-circuit adjacency to survive a kind-filtered stop")
	}
}

func TestIsBroadcastRouterAndEndnodeAdjacency(t *testing.T) {
	r := &Adjacency{Kind: KindLevel1Router}
	e := &Adjacency{Kind: KindEndnode}
	if !IsBroadcastRouterAdjacency(r) || IsBroadcastEndnodeAdjacency(r) {
		t.Fatal("router adjacency classified wrong")
	}
	if IsBroadcastRouterAdjacency(e) || !IsBroadcastEndnodeAdjacency(e) {
		t.Fatal("endnode adjacency classified wrong")
	}
}
