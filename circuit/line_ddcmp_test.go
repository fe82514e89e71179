package circuit

import (
	"errors"
	"testing"

	"github.com/soypat/dnet4"
)

type fakeTransport struct {
	written [][]byte
	closed  bool
}

func (t *fakeTransport) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	t.written = append(t.written, cp)
	return len(b), nil
}

func (t *fakeTransport) Read(b []byte) (int, error) {
	return 0, errors.New("no data")
}

func (t *fakeTransport) Close() error { t.closed = true; return nil }

func TestDdcmpLineSendBeforeStartReturnsErrLineBusy(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)

	err := l.Send([]byte("payload"))
	if !errors.Is(err, ErrLineBusy) {
		t.Fatalf("expected ErrLineBusy before the link reaches Running, got %v", err)
	}
}

func TestDdcmpLineStartSendsStartupStrtMessage(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)

	if err := l.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.written) == 0 {
		t.Fatal("expected Start to emit at least one STRT control message onto the transport")
	}
}

func TestDdcmpLineStopHaltsAndClosesTransport(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)
	l.Start()

	l.Stop()
	if !tr.closed {
		t.Fatal("expected Stop to close the underlying transport")
	}
}

// TestDdcmpLineDoesNotNotifyOnPlainStartOrStop locks in that OnLineStateChange
// only fires once the control block actually reaches Running or receives an
// unexpected maintenance message while Running — a bare Start moves the
// control block to IStrt (mid-handshake, not yet up), and a deliberate Stop
// goes straight to Halted without the notifyHalt hook, matching
// ddcmp.ControlBlock's own deliver(evtHalt)/deliver(evtRecvMaintenance) split.
func TestDdcmpLineDoesNotNotifyOnPlainStartOrStop(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)
	l.ScheduleTimer = func(int) {}
	l.CancelTimer = func() {}

	var transitions []bool
	l.OnLineStateChange = func(running bool) { transitions = append(transitions, running) }

	l.Start()
	l.Stop()
	if len(transitions) != 0 {
		t.Fatalf("expected no OnLineStateChange calls from a bare Start/Stop, got %v", transitions)
	}
}

func TestDdcmpLineScheduleTimerIsWiredFromControlBlock(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)

	var scheduled []int
	l.ScheduleTimer = func(seconds int) { scheduled = append(scheduled, seconds) }
	l.CancelTimer = func() {}

	l.Start()
	if len(scheduled) == 0 {
		t.Fatal("expected the startup handshake to arm the control block's timer")
	}
}

func TestDdcmpLineSendToAndSendMulticastIgnoreDestinationArguments(t *testing.T) {
	tr := &fakeTransport{}
	l := NewDdcmpLine(tr)
	l.ScheduleTimer = func(int) {}
	l.CancelTimer = func() {}
	l.Start()

	// Even on a point-to-point line that hasn't completed its handshake,
	// SendTo/SendMulticast must fail exactly like Send would (ErrLineBusy),
	// confirming they don't bypass the control block.
	dst := dnet4.Address{Area: 1, Node: 5}
	if err := l.SendTo(dst, []byte("x")); !errors.Is(err, ErrLineBusy) {
		t.Fatalf("expected ErrLineBusy, got %v", err)
	}
	if err := l.SendMulticast([6]byte{}, []byte("x")); !errors.Is(err, ErrLineBusy) {
		t.Fatalf("expected ErrLineBusy, got %v", err)
	}
}
