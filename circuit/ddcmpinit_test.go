package circuit

import (
	"testing"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

func newTestDdcmpInit() (*DdcmpInit, *Circuit, *fakeLine, *adjacency.Table) {
	line := &fakeLine{}
	c := NewCircuit("ddcmp-0", 1, KindDDCMP, 4, line)
	tbl := adjacency.NewTable()
	self := dnet4.Address{Area: 1, Node: 10}
	tbl.Self = self
	d := NewDdcmpInit(c, tbl, self, 1, 1498, dnet4.T3)
	return d, c, line, tbl
}

func TestDdcmpInitStartsOffAndOperatorOnReachesCircuitRejected(t *testing.T) {
	d, _, _, _ := newTestDdcmpInit()
	if d.State() != ddcmpOff {
		t.Fatalf("expected a freshly constructed sublayer to start Off, got %v", d.State())
	}

	d.Start() // OPO: Off -> CircuitRejected.
	if d.State() != ddcmpCircuitRejected {
		t.Fatalf("expected CircuitRejected after Start, got %v", d.State())
	}
}

func TestDdcmpInitLineDropBouncesThroughOffBackToCircuitRejected(t *testing.T) {
	d, _, _, _ := newTestDdcmpInit()
	d.Start()
	if d.State() != ddcmpCircuitRejected {
		t.Fatalf("expected CircuitRejected, got %v", d.State())
	}

	// An unexpected line drop feeds OPF then OPO: CircuitRejected -> Off
	// (OPF) -> CircuitRejected (OPO), matching
	// HandleLineNotifyStateChange's "restart the circuit" comment.
	d.HandleLineStateChange(false)
	if d.State() != ddcmpCircuitRejected {
		t.Fatalf("expected to land back on CircuitRejected, got %v", d.State())
	}
}

func TestDdcmpInitFullHandshakeReachesRunAndCircuitUp(t *testing.T) {
	d, c, line, tbl := newTestDdcmpInit()
	d.state = ddcmpDataLinkStart // as if the line had already been reinitialized.

	var transitions []State
	c.StateChangeCallback = func(cc *Circuit) { transitions = append(transitions, cc.state) }

	d.processEvent(evtSC) // DS -> RI: line start complete, sends Init.
	if d.State() != ddcmpRoutingInit {
		t.Fatalf("expected RoutingInit, got %v", d.State())
	}
	if len(line.sent) != 1 {
		t.Fatalf("expected one Init message sent, got %d", len(line.sent))
	}

	peer := dnet4.Address{Area: 1, Node: 20}
	initMsg := dnet4.AppendInit(nil, peer, 1, true, 1498, dnet4.T3)
	view, err := dnet4.NewInit(initMsg)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	d.ProcessInitializationMessage(view) // NRIVR: RI -> RV, sends Verify.
	if d.State() != ddcmpRoutingVerify {
		t.Fatalf("expected RoutingVerify, got %v", d.State())
	}
	if len(line.sent) != 2 {
		t.Fatalf("expected a verify message sent in addition to init, got %d", len(line.sent))
	}
	if c.AdjacentNode != peer {
		t.Fatalf("expected adjacent node recorded, got %v", c.AdjacentNode)
	}
	if a := tbl.FindAdjacency(peer); a == nil {
		t.Fatal("expected the circuit's own-slot adjacency to have been initialised")
	}

	verifyMsg := dnet4.AppendVerification(nil, peer, nil)
	vview, err := dnet4.NewVerification(verifyMsg)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	d.ProcessVerificationMessage(vview) // NRV: RV -> RC, circuit comes up.
	if d.State() != ddcmpRoutingComplete {
		t.Fatalf("expected RoutingComplete, got %v", d.State())
	}
	if !c.Up() {
		t.Fatal("expected circuit Up once RoutingComplete is reached")
	}
	if len(transitions) != 1 || transitions[0] != StateUp {
		t.Fatalf("expected exactly one Up transition, got %v", transitions)
	}

	d.ProcessCircuitUpComplete() // CUC: RC -> Run.
	if d.State() != ddcmpRun {
		t.Fatalf("expected Run after circuit-up-complete, got %v", d.State())
	}
}

func TestDdcmpInitInvalidMessageFromRoutingInitRestartsLine(t *testing.T) {
	d, _, line, _ := newTestDdcmpInit()
	scheduled := 0
	d.ScheduleRecallTimer = func(seconds int) { scheduled++ }
	d.state = ddcmpRoutingInit

	d.ProcessInvalidMessage() // IM: RI -> DS, reinitialize+recall.
	if d.State() != ddcmpDataLinkStart {
		t.Fatalf("expected DataLinkStart, got %v", d.State())
	}
	if !line.started {
		t.Fatal("expected the line to be restarted")
	}
	if scheduled != 1 {
		t.Fatalf("expected the recall timer armed once, got %d", scheduled)
	}
}

func TestDdcmpInitRecallTimerSkippedWhileAlreadyRunning(t *testing.T) {
	d, _, line, _ := newTestDdcmpInit()
	scheduled := 0
	d.ScheduleRecallTimer = func(seconds int) { scheduled++ }
	d.state = ddcmpRoutingVerify

	d.processEvent(evtRT) // RV -> DS: first reinitialize arms the timer.
	d.state = ddcmpRoutingVerify
	d.processEvent(evtRT) // second reinitialize while the timer is still running: skipped.

	if scheduled != 1 {
		t.Fatalf("expected the recall timer to be armed exactly once, got %d", scheduled)
	}
	if !line.started {
		t.Fatal("expected the line to have been started at least once")
	}
}

func TestDdcmpInitOperatorOffFromRunningHaltsTheLine(t *testing.T) {
	d, _, line, _ := newTestDdcmpInit()
	d.state = ddcmpRun

	d.Stop() // OPF: Run -> Off, issues the stop action.
	if d.State() != ddcmpOff {
		t.Fatalf("expected Off, got %v", d.State())
	}
	if !line.stopped {
		t.Fatal("expected the line to be stopped")
	}
}
