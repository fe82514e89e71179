package circuit

import (
	"errors"
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/ddcmp"
)

// ErrLineBusy is returned by DdcmpLine.Send when the underlying DDCMP
// control block cannot accept new data right now (not Running, send
// window full, or a NAK/REP is pending). The caller should drop the
// datagram or retry later; DdcmpLine never buffers past the control
// block's own send window.
var ErrLineBusy = errors.New("ddcmp line: busy, try again later")

// DdcmpTransport is the raw byte stream a DdcmpLine frames DDCMP messages
// over: a serial port, a pty, or any other point-to-point io.ReadWriteCloser.
type DdcmpTransport interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// DdcmpLine is a circuit.Line over a DDCMP point-to-point transport: it
// drives a ddcmp.ControlBlock for the link-level start/stop handshake and
// numbered-message sequencing, and exposes the routing layer's
// Init/Verification traffic through Send. Grounded on circuit.c's
// DDCMP line open/close pair, reusing ddcmp.ControlBlock for the framing
// this package's ddcmpinit.go assumes already exists underneath it.
type DdcmpLine struct {
	cb        *ddcmp.ControlBlock
	transport DdcmpTransport

	// OnLineStateChange reports the link coming up or dropping, matching
	// DdcmpInit.HandleLineStateChange's expected running/not-running signal.
	OnLineStateChange func(running bool)
	// ScheduleTimer and CancelTimer manage the control block's single
	// reply/ack-wait timer; the caller invokes OnTimerExpire when a
	// scheduled duration elapses. Must be set before Start.
	ScheduleTimer func(seconds int)
	CancelTimer   func()
	// Deliver receives a received data message's routing-layer payload.
	Deliver func(payload []byte)

	log *slog.Logger
}

// NewDdcmpLine constructs a line over transport, wiring its control block's
// raw-send, timer, and notification hooks to this line's own fields.
func NewDdcmpLine(transport DdcmpTransport) *DdcmpLine {
	l := &DdcmpLine{
		cb:        &ddcmp.ControlBlock{},
		transport: transport,
	}
	l.cb.SendRaw = func(b []byte) { transport.Write(b) }
	l.cb.ScheduleTimer = func(seconds int) {
		if l.ScheduleTimer != nil {
			l.ScheduleTimer(seconds)
		}
	}
	l.cb.CancelTimer = func() {
		if l.CancelTimer != nil {
			l.CancelTimer()
		}
	}
	l.cb.NotifyRunning = func() {
		if l.OnLineStateChange != nil {
			l.OnLineStateChange(true)
		}
	}
	l.cb.NotifyHalt = func() {
		if l.OnLineStateChange != nil {
			l.OnLineStateChange(false)
		}
	}
	l.cb.DeliverData = func(b []byte) bool {
		if l.Deliver != nil {
			l.Deliver(b)
		}
		return true
	}
	return l
}

// SetLogger attaches a logger to both the line and its control block.
func (l *DdcmpLine) SetLogger(log *slog.Logger) {
	l.log = log
	l.cb.SetLogger(log)
}

// Send queues payload as a DDCMP data message. Returns ErrLineBusy if the
// control block cannot accept it right now.
func (l *DdcmpLine) Send(payload []byte) error {
	ok, err := l.cb.Send(payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLineBusy
	}
	return nil
}

// SendTo ignores dst: a DDCMP line has exactly one peer, so it behaves
// exactly like Send.
func (l *DdcmpLine) SendTo(dst dnet4.Address, payload []byte) error {
	return l.Send(payload)
}

// SendMulticast ignores group for the same reason SendTo ignores dst.
func (l *DdcmpLine) SendMulticast(group [6]byte, payload []byte) error {
	return l.Send(payload)
}

// Start begins the DDCMP link-level startup handshake. The physical
// transport is assumed already open; Start only resets the control block's
// sequencing state and sends the first STRT control message. Use ReadLoop to
// drive the receive side.
func (l *DdcmpLine) Start() error {
	l.cb.Start()
	return nil
}

// Stop halts the control block and closes the underlying transport.
func (l *DdcmpLine) Stop() {
	l.cb.Halt()
	l.transport.Close()
}

// OnTimerExpire must be called when a duration requested via ScheduleTimer
// elapses.
func (l *DdcmpLine) OnTimerExpire() { l.cb.OnTimerExpire() }

// ReadLoop reads bytes from the transport until it errors, feeding each
// chunk to the control block for synchronization, deframing, and
// acknowledgement bookkeeping.
func (l *DdcmpLine) ReadLoop(bufSize int) error {
	buf := make([]byte, bufSize)
	for {
		n, err := l.transport.Read(buf)
		if err != nil {
			return err
		}
		l.cb.Recv(buf[:n])
	}
}
