package router

import (
	"testing"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/circuit"
)

// fakeLine is a minimal circuit.Line recording every addressed send, so
// forwardCircuitView's method-shadowing can be asserted on directly
// without a real socket.
type fakeLine struct {
	sentTo  []dnet4.Address
	payload [][]byte
}

func (l *fakeLine) Send(payload []byte) error { return nil }
func (l *fakeLine) SendTo(dst dnet4.Address, payload []byte) error {
	l.sentTo = append(l.sentTo, dst)
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.payload = append(l.payload, cp)
	return nil
}
func (l *fakeLine) SendMulticast(group [6]byte, payload []byte) error { return nil }
func (l *fakeLine) Start() error                                     { return nil }
func (l *fakeLine) Stop()                                            {}

func TestRouterCircuitLookupReturnsNilForUnassignedOrOutOfRangeSlots(t *testing.T) {
	r := &Router{}
	if c := r.circuit(0); c != nil {
		t.Fatalf("expected nil for slot 0, got %v", c)
	}
	if c := r.circuit(dnet4.NC + 1); c != nil {
		t.Fatalf("expected nil past NC, got %v", c)
	}
	if c := r.circuit(3); c != nil {
		t.Fatalf("expected nil for an unassigned slot, got %v", c)
	}
}

func TestCircuitSetAdaptersReturnALiteralNilInterfaceForAnEmptySlot(t *testing.T) {
	r := &Router{}

	// A non-nil interface wrapping a nil *circuit.Circuit would make this
	// comparison fail even though the adapter meant to report "no circuit".
	if ifc := (decisionCircuits{r}).Circuit(5); ifc != nil {
		t.Fatalf("expected a literal nil interface from decisionCircuits, got %#v", ifc)
	}
	if ifc := (updateCircuits{r}).Circuit(5); ifc != nil {
		t.Fatalf("expected a literal nil interface from updateCircuits, got %#v", ifc)
	}
	if ifc := (forwardCircuits{r}).Circuit(5); ifc != nil {
		t.Fatalf("expected a literal nil interface from forwardCircuits, got %#v", ifc)
	}
}

func TestCircuitSetAdaptersReturnTheRegisteredCircuit(t *testing.T) {
	line := &fakeLine{}
	c := circuit.NewCircuit("eth-0", 1, circuit.KindEthernet, 4, line)
	r := &Router{}
	r.circuits[1] = c

	if got := (decisionCircuits{r}).Circuit(1); got == nil {
		t.Fatalf("expected decisionCircuits to find the registered circuit")
	}
	if got := (updateCircuits{r}).Circuit(1); got == nil {
		t.Fatalf("expected updateCircuits to find the registered circuit")
	}
	if got := (forwardCircuits{r}).Circuit(1); got == nil {
		t.Fatalf("expected forwardCircuits to find the registered circuit")
	}
}

func TestForwardCircuitViewSendCallsCircuitSendTo(t *testing.T) {
	line := &fakeLine{}
	c := circuit.NewCircuit("eth-0", 1, circuit.KindEthernet, 4, line)
	v := forwardCircuitView{c}

	dst := dnet4.Address{Area: 1, Node: 42}
	if err := v.Send(dst, []byte{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(line.sentTo) != 1 || line.sentTo[0] != dst {
		t.Fatalf("expected forwardCircuitView.Send to reach Line.SendTo with %v, got %v", dst, line.sentTo)
	}
}
