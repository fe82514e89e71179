package forward

import (
	"testing"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
	"github.com/soypat/dnet4/decision"
)

type fakeCircuit struct {
	slot      int
	broadcast bool
	sent      []sentPacket
	sendErr   error
}

type sentPacket struct {
	dst     dnet4.Address
	payload []byte
}

func (c *fakeCircuit) Slot() int       { return c.slot }
func (c *fakeCircuit) Broadcast() bool { return c.broadcast }
func (c *fakeCircuit) Send(dst dnet4.Address, payload []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.sent = append(c.sent, sentPacket{dst: dst, payload: cp})
	return nil
}

type adjCircuit struct {
	slot      int
	kind      adjacency.CircuitKind
	broadcast bool
	up        bool
	cost      int
}

func (c *adjCircuit) Slot() int                  { return c.slot }
func (c *adjCircuit) Kind() adjacency.CircuitKind { return c.kind }
func (c *adjCircuit) Broadcast() bool             { return c.broadcast }
func (c *adjCircuit) Up() bool                    { return c.up }
func (c *adjCircuit) Cost() int                   { return c.cost }
func (c *adjCircuit) Reject()                     { c.up = false }

type fakeCircuitSet map[int]Circuit

func (s fakeCircuitSet) Circuit(slot int) Circuit { return s[slot] }

func newTestForwarder(self dnet4.Address, level2 bool) (*Forwarder, *adjacency.Table, *decision.Process, fakeCircuitSet) {
	tbl := adjacency.NewTable()
	tbl.Self = self
	d := decision.NewProcess(self, level2, tbl, nil)
	circuits := fakeCircuitSet{}
	f := NewForwarder(self, level2, d, tbl, circuits)
	return f, tbl, d, circuits
}

func TestIsReachableSameArea(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, _, d, _ := newTestForwarder(self, false)

	dst := dnet4.Address{Area: 1, Node: 50}
	if f.IsReachable(dst) {
		t.Fatal("expected unreachable before Reach is set")
	}
	d.Reach[50] = true
	if !f.IsReachable(dst) {
		t.Fatal("expected reachable once Reach[50] is set")
	}
}

func TestIsReachableCrossAreaLevel1AlwaysTrue(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, _, _, _ := newTestForwarder(self, false)

	dst := dnet4.Address{Area: 2, Node: 50}
	if !f.IsReachable(dst) {
		t.Fatal("expected a level-1 node to treat every cross-area destination as reachable, forwarding toward the nearest level-2 router")
	}
}

func TestIsReachableCrossAreaLevel2ConsultsAReach(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, _, d, _ := newTestForwarder(self, true)

	dst := dnet4.Address{Area: 2, Node: 50}
	if f.IsReachable(dst) {
		t.Fatal("expected unreachable before AReach is set")
	}
	d.AReach[2] = true
	if !f.IsReachable(dst) {
		t.Fatal("expected reachable once AReach[2] is set")
	}
}

func TestForwardDropsWhenSourceAdjacencyMissing(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, _, _, circuits := newTestForwarder(self, false)
	src := &fakeCircuit{slot: 1}
	circuits[1] = src

	f.Forward(src, Packet{
		Src: dnet4.Address{Area: 1, Node: 99},
		Dst: dnet4.Address{Area: 1, Node: 50},
	})

	if len(src.sent) != 0 {
		t.Fatal("expected no forwarding without a source adjacency")
	}
}

func TestForwardDropsUnreachableDestinationWithoutRTSRequest(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, tbl, _, circuits := newTestForwarder(self, false)
	srcCircuit := &fakeCircuit{slot: 1, broadcast: true}
	circuits[1] = srcCircuit
	adjC := &adjCircuit{slot: 1, kind: adjacency.CircuitEthernet, broadcast: true, up: true, cost: 1}

	srcPeer := dnet4.Address{Area: 1, Node: 20}
	tbl.CheckRouterAdjacency(srcPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})

	f.Forward(srcCircuit, Packet{
		Src:        srcPeer,
		Dst:        dnet4.Address{Area: 1, Node: 99},
		RTSRequest: false,
	})

	if len(srcCircuit.sent) != 0 {
		t.Fatal("expected unreachable destination without RTS-request to be dropped")
	}
}

func TestForwardReturnsToSenderWhenUnreachableAndRequested(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, tbl, d, circuits := newTestForwarder(self, false)
	srcCircuit := &fakeCircuit{slot: 1, broadcast: true}
	circuits[1] = srcCircuit
	adjC := &adjCircuit{slot: 1, kind: adjacency.CircuitEthernet, broadcast: true, up: true, cost: 1}

	srcPeer := dnet4.Address{Area: 1, Node: 20}
	a := tbl.CheckRouterAdjacency(srcPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})
	if a == nil {
		t.Fatal("expected source adjacency to be admitted")
	}
	d.OA[srcPeer.Node] = a.Slot // so the RTS reply routes back out over the same adjacency.

	unreachable := dnet4.Address{Area: 1, Node: 99}
	f.Forward(srcCircuit, Packet{
		Src:        srcPeer,
		Dst:        unreachable,
		RTSRequest: true,
		Payload:    []byte("hello"),
	})

	if len(srcCircuit.sent) != 1 {
		t.Fatalf("expected exactly one return-to-sender packet, got %d", len(srcCircuit.sent))
	}
	got, err := dnet4.NewLongDataFrame(srcCircuit.sent[0].payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !got.ReturnToSender() {
		t.Fatal("expected the return-to-sender flag set on the reply")
	}
	if got.Destination() != srcPeer {
		t.Fatalf("expected the reply addressed back to the original source %v, got %v", srcPeer, got.Destination())
	}
}

func TestForwardSetsIntraEthernetWhenSrcAndDstShareBroadcastCircuit(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, tbl, d, circuits := newTestForwarder(self, false)
	eth := &fakeCircuit{slot: 1, broadcast: true}
	circuits[1] = eth
	adjC := &adjCircuit{slot: 1, kind: adjacency.CircuitEthernet, broadcast: true, up: true, cost: 1}

	srcPeer := dnet4.Address{Area: 1, Node: 20}
	dstPeer := dnet4.Address{Area: 1, Node: 30}
	tbl.CheckRouterAdjacency(srcPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})
	dstA := tbl.CheckRouterAdjacency(dstPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})
	if dstA == nil {
		t.Fatal("expected destination adjacency to be admitted")
	}
	d.Reach[dstPeer.Node] = true
	d.OA[dstPeer.Node] = dstA.Slot

	f.Forward(eth, Packet{
		Src:     srcPeer,
		Dst:     dstPeer,
		Payload: []byte("data"),
	})

	if len(eth.sent) != 1 {
		t.Fatalf("expected exactly one forwarded packet, got %d", len(eth.sent))
	}
	got, err := dnet4.NewLongDataFrame(eth.sent[0].payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !got.IntraEthernet() {
		t.Fatal("expected the intra-Ethernet flag set when src and dst share the same broadcast circuit")
	}
}

func TestForwardDropsOnLoopingVisitCount(t *testing.T) {
	self := dnet4.Address{Area: 1, Node: 10}
	f, tbl, d, circuits := newTestForwarder(self, false)
	eth := &fakeCircuit{slot: 1, broadcast: true}
	circuits[1] = eth
	adjC := &adjCircuit{slot: 1, kind: adjacency.CircuitEthernet, broadcast: true, up: true, cost: 1}

	srcPeer := dnet4.Address{Area: 1, Node: 20}
	dstPeer := dnet4.Address{Area: 1, Node: 30}
	tbl.CheckRouterAdjacency(srcPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})
	dstA := tbl.CheckRouterAdjacency(dstPeer, adjC, adjacency.KindLevel1Router, 10, 64, []adjacency.RouterListEntry{{Router: self}})
	d.Reach[dstPeer.Node] = true
	d.OA[dstPeer.Node] = dstA.Slot

	f.Forward(eth, Packet{
		Src:    srcPeer,
		Dst:    dstPeer,
		Visits: dnet4.Maxv, // becomes Maxv+1 after increment, over the ceiling.
	})

	if len(eth.sent) != 0 {
		t.Fatal("expected a looping packet (visits over Maxv) to be dropped")
	}
}
