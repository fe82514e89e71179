package ddcmp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/internal"
)

// LineState is the state of a DDCMP line's control block, per the DDCMP
// maintenance and operational state diagram.
type LineState uint8

const (
	StateHalted LineState = iota
	StateIStrt
	StateAStrt
	StateRunning
)

func (s LineState) String() string {
	switch s {
	case StateHalted:
		return "Halted"
	case StateIStrt:
		return "IStrt"
	case StateAStrt:
		return "AStrt"
	case StateRunning:
		return "Running"
	default:
		return "invalid"
	}
}

type ddcmpEvent uint8

const (
	evtHalt ddcmpEvent = iota
	evtStartup
	evtDataSendReady
	evtRecvStack
	evtRecvStrt
	evtTimerExpire
	evtRecvAckResp0
	evtRecvRepEqR
	evtRecvRepNeqR
	evtRecvDataInSeq
	evtRecvDataOutSeq
	evtRecvAckOutstanding
	evtRecvNakOutstanding
	evtReadyRetransmit
	evtRecvMaintenance
)

// sackNak tracks whether an ACK or a NAK is owed to the remote end,
// mirroring the SACKNAK flag of the reference implementation.
type sackNak uint8

const (
	sackNakNone sackNak = iota
	sackNakAck
	sackNakNak
)

var errSendTooLarge = errors.New("ddcmp: payload exceeds maximum data length")

// ControlBlock drives one DDCMP point-to-point line: the start/stop
// handshake, numbered-message sequencing, and the idle servicer that
// decides what control traffic (if any) to emit between data sends. It does
// not own a clock or a transport; callers wire timer scheduling and byte
// delivery through the exported function fields.
type ControlBlock struct {
	state LineState

	r, n, a, t, x byte
	sackNak       sackNak
	srep          bool
	nakReason     byte

	txq txQueue

	// partial holds bytes received but not yet resolved into a complete
	// message, mirroring the reference implementation's partialBuffer.
	partial      []byte
	synchronized bool

	timerRunning bool

	// SendRaw transmits a fully framed message (including its trailing
	// CRC) onto the line. Must be set before use.
	SendRaw func(b []byte)
	// ScheduleTimer and CancelTimer manage the line's single reply/ack-wait
	// timer; the caller is expected to invoke OnTimerExpire when a
	// scheduled duration elapses. Must be set before use.
	ScheduleTimer func(seconds int)
	CancelTimer   func()
	// NotifyRunning and NotifyHalt report line-up/line-down transitions.
	NotifyRunning func()
	NotifyHalt    func()
	// DeliverData hands a received data message's payload to the user.
	// Returning false causes a NAK (buffer/resource error) to be sent
	// instead of acknowledging the message.
	DeliverData func(b []byte) bool

	log *slog.Logger

	// outbuf is scratch space for building outgoing control messages.
	outbuf [16]byte

	// pendingSend names the queue entry a send/retransmit action should
	// emit, set just before the triggering event is delivered.
	pendingSend *entry
	// lastResp is the resp/ack field of the control or data message
	// currently being processed, set just before the triggering event is
	// delivered.
	lastResp byte
	// incomingPayload is the payload of the in-sequence data message
	// currently being processed, set just before evtRecvDataInSeq fires.
	incomingPayload []byte
}

// SetLogger sets the logger used to trace line state changes.
func (cb *ControlBlock) SetLogger(log *slog.Logger) { cb.log = log }

// State returns the control block's current line state.
func (cb *ControlBlock) State() LineState { return cb.state }

// Start resets the control block and begins the startup handshake.
func (cb *ControlBlock) Start() {
	cb.r, cb.n, cb.a, cb.t, cb.x = 0, 0, 0, 0, 0
	cb.sackNak = sackNakNone
	cb.srep = false
	cb.txq.reset()
	cb.partial = cb.partial[:0]
	cb.synchronized = false
	cb.state = StateHalted
	cb.deliver(evtStartup)
}

// Halt forces the line down immediately.
func (cb *ControlBlock) Halt() {
	cb.deliver(evtHalt)
}

// OnTimerExpire must be called by the owner when the duration requested by
// the most recent ScheduleTimer call has elapsed.
func (cb *ControlBlock) OnTimerExpire() {
	cb.timerRunning = false
	cb.deliver(evtTimerExpire)
	cb.idle()
}

// Send attempts to queue a data message for transmission. It reports false
// if the line cannot accept new data right now (not Running, send window
// full, or a NAK/REP is pending) — the caller should retry later.
func (cb *ControlBlock) Send(data []byte) (bool, error) {
	if len(data) > MaxDataLength {
		return false, errSendTooLarge
	}
	if cb.state != StateRunning {
		return false, nil
	}
	if cb.t != (cb.n+1)&0xFF || cb.sackNak == sackNakNak || cb.srep {
		return false, nil
	}
	e, err := cb.txq.alloc()
	if err != nil {
		return false, nil
	}
	e.num = cb.n + 1
	e.msg = e.msg[:0]
	e.msg = append(e.msg, SYNSoh)
	e.msg = appendDataHeader(e.msg, len(data), cb.r, e.num)
	e.msg = AppendCRC16(e.msg, e.msg[:6])
	e.msg = append(e.msg, data...)
	e.msg = AppendCRC16(e.msg, e.msg[len(e.msg)-len(data):])
	e.n = len(e.msg)

	cb.pendingSend = e
	cb.deliver(evtDataSendReady)
	cb.idle()
	return true, nil
}

// Recv ingests a chunk of bytes received on the line, synchronizing on and
// extracting as many complete messages as the buffer contains.
func (cb *ControlBlock) Recv(b []byte) {
	cb.partial = append(cb.partial, b...)
	for len(cb.partial) > 0 {
		if !cb.synchronized {
			skip := cb.synchronize()
			cb.partial = cb.partial[skip:]
			if len(cb.partial) == 0 {
				break
			}
			cb.synchronized = true
		}

		n, ok, bad := cb.extractOne()
		if !ok {
			break // incomplete: wait for more bytes.
		}
		if bad {
			cb.synchronized = false
		} else {
			cb.dispatch(cb.partial[:n])
		}
		cb.partial = cb.partial[n:]
	}
	cb.idle()
}

// synchronize returns the number of leading bytes to discard before a sync
// byte (ENQ/SOH/DLE) is found, mirroring SynchronizeMessageFrame.
func (cb *ControlBlock) synchronize() int {
	for i, c := range cb.partial {
		if c == SYNEnq || c == SYNSoh || c == SYNDle {
			return i
		}
	}
	return len(cb.partial)
}

// extractOne attempts to pull one complete, CRC-valid message starting at
// partial[0]. ok is false if more bytes are needed; bad is true if a
// complete message was found but failed CRC validation (still consumed,
// synchronization must restart).
func (cb *ControlBlock) extractOne() (n int, ok bool, bad bool) {
	if len(cb.partial) < 8 {
		return 0, false, false
	}
	switch cb.partial[0] {
	case SYNEnq:
		if !VerifyCRC16(cb.partial[:8]) {
			return 8, true, true
		}
		return 8, true, false
	case SYNSoh, SYNDle:
		if !VerifyCRC16(cb.partial[:8]) {
			cb.nakReason = NakReasonHeaderCRC
			return 8, true, true
		}
		count := int(cb.partial[1]) | int(cb.partial[2]&0x3F)<<8
		total := 8 + count + 2
		if len(cb.partial) < total {
			return 0, false, false
		}
		if !VerifyCRC16(cb.partial[8:total]) {
			cb.nakReason = NakReasonDataCRC
			return total, true, true
		}
		return total, true, false
	default:
		return 1, true, true
	}
}

func (cb *ControlBlock) dispatch(msg []byte) {
	switch msg[0] {
	case SYNEnq:
		cb.processControlMessage(msg)
	case SYNSoh:
		cb.processDataMessage(msg)
	case SYNDle:
		cb.deliver(evtRecvMaintenance)
	}
}

func (cb *ControlBlock) processControlMessage(msg []byte) {
	body, err := parseControlMessage(msg[1:7])
	if err != nil {
		return
	}
	switch body.typ {
	case MsgAck:
		cb.processAck(body)
	case MsgNak:
		cb.processNak(body)
	case MsgRep:
		cb.processRep(body)
	case MsgStrt:
		cb.deliver(evtRecvStrt)
	case MsgStack:
		cb.deliver(evtRecvStack)
	}
}

func (cb *ControlBlock) processAck(body controlMsg) {
	if body.resp == 0 {
		cb.lastResp = 0
		cb.deliver(evtRecvAckResp0)
		return
	}
	if mod256Cmp(cb.a, body.resp) < 0 && mod256Cmp(body.resp, cb.n) <= 0 {
		cb.lastResp = body.resp
		cb.deliver(evtRecvAckOutstanding)
	}
}

func (cb *ControlBlock) processNak(body controlMsg) {
	if mod256Cmp(cb.a, body.resp) <= 0 || mod256Cmp(body.resp, cb.n) > 0 {
		cb.lastResp = body.resp
		cb.deliver(evtRecvNakOutstanding)
	}
}

func (cb *ControlBlock) processRep(body controlMsg) {
	if body.num == cb.r {
		cb.deliver(evtRecvRepEqR)
	} else {
		cb.deliver(evtRecvRepNeqR)
	}
}

func (cb *ControlBlock) processDataMessage(msg []byte) {
	h, count, _, err := parseDataHeader(msg[1:7])
	if err != nil {
		return
	}
	if int(h.addr) != 1 || count != len(msg)-10 {
		cb.nakReason = NakReasonMessageHdr
		cb.sackNak = sackNakNak
		return
	}
	if mod256Cmp(cb.a, h.resp) < 0 && mod256Cmp(h.resp, cb.n) <= 0 {
		cb.lastResp = h.resp
		cb.deliver(evtRecvAckOutstanding)
	}
	if h.num == (cb.r+1)&0xFF {
		cb.incomingPayload = msg[8 : 8+count]
		cb.deliver(evtRecvDataInSeq)
	} else {
		cb.deliver(evtRecvDataOutSeq)
	}
}

// idle implements the steady-state servicer ordering from note 5 of
// section 5.3.9: NAK, REP, retransmit-if-ready, ACK.
func (cb *ControlBlock) idle() {
	if cb.sackNak == sackNakNak {
		cb.sendNak()
	}
	if cb.srep {
		cb.sendRep()
	}
	if cb.sackNak != sackNakNak && !cb.srep && cb.t < cb.n+1 && !cb.timerRunning {
		if e := cb.txq.firstUnacknowledged(); e != nil {
			cb.pendingSend = e
			cb.deliver(evtReadyRetransmit)
		}
	}
	if cb.sackNak == sackNakAck {
		cb.sendAck()
	}
}

func (cb *ControlBlock) sendAck() {
	n := appendAck(cb.outbuf[:0], cb.r)
	cb.send(n)
	cb.sackNak = sackNakNone
}

func (cb *ControlBlock) sendNak() {
	n := appendNak(cb.outbuf[:0], cb.nakReason, cb.r)
	cb.send(n)
	cb.sackNak = sackNakNone
}

func (cb *ControlBlock) sendRep() {
	n := appendRep(cb.outbuf[:0], cb.n)
	cb.send(n)
	cb.srep = false
	cb.startTimer(dnet4.AckWaitTimerSeconds)
}

func (cb *ControlBlock) send(b []byte) {
	if cb.SendRaw != nil {
		cb.SendRaw(b)
	}
}

func (cb *ControlBlock) startTimer(seconds int) {
	if cb.timerRunning {
		return
	}
	cb.timerRunning = true
	if cb.ScheduleTimer != nil {
		cb.ScheduleTimer(seconds)
	}
}

func (cb *ControlBlock) stopTimer() {
	if !cb.timerRunning {
		return
	}
	cb.timerRunning = false
	if cb.CancelTimer != nil {
		cb.CancelTimer()
	}
}

func (cb *ControlBlock) setState(s LineState) {
	if cb.state != s && cb.logEnabled(internal.LevelTrace) {
		cb.trace("ddcmp: line state change", slog.String("from", cb.state.String()), slog.String("to", s.String()))
	}
	cb.state = s
}

// deliver runs the event through the per-state transition logic, mirroring
// the reference implementation's stateTable dispatch but expressed as Go
// switch statements per state, in the style of a TCP control block's
// per-state receive handlers.
func (cb *ControlBlock) deliver(evt ddcmpEvent) {
	switch evt {
	case evtHalt:
		cb.stopTimer()
		cb.setState(StateHalted)
		return
	case evtRecvMaintenance:
		cb.setState(StateHalted)
		cb.notifyHalt()
		return
	}

	switch cb.state {
	case StateHalted:
		cb.onHalted(evt)
	case StateIStrt:
		cb.onIStrt(evt)
	case StateAStrt:
		cb.onAStrt(evt)
	case StateRunning:
		cb.onRunning(evt)
	}
}

func (cb *ControlBlock) onHalted(evt ddcmpEvent) {
	if evt != evtStartup {
		return
	}
	cb.stopTimer()
	n := appendStrt(cb.outbuf[:0])
	cb.send(n)
	cb.r, cb.n, cb.a, cb.t, cb.x = 0, 0, 0, 1, 0
	cb.startTimer(dnet4.ReplyTimerSeconds)
	cb.setState(StateIStrt)
}

func (cb *ControlBlock) onIStrt(evt ddcmpEvent) {
	switch evt {
	case evtRecvStack:
		cb.sendAckNow()
		cb.stopTimer()
		cb.setState(StateRunning)
		cb.notifyRunning()
	case evtRecvStrt:
		n := appendStack(cb.outbuf[:0])
		cb.send(n)
		cb.startTimer(dnet4.ReplyTimerSeconds)
		cb.setState(StateAStrt)
	case evtTimerExpire:
		n := appendStrt(cb.outbuf[:0])
		cb.send(n)
		cb.startTimer(dnet4.ReplyTimerSeconds)
	}
}

func (cb *ControlBlock) onAStrt(evt ddcmpEvent) {
	switch evt {
	case evtRecvAckResp0:
		cb.stopTimer()
		cb.setState(StateRunning)
		cb.notifyRunning()
	case evtRecvStack:
		cb.sendAckNow()
		cb.stopTimer()
		cb.setState(StateRunning)
		cb.notifyRunning()
	case evtRecvStrt:
		n := appendStack(cb.outbuf[:0])
		cb.send(n)
		cb.startTimer(dnet4.ReplyTimerSeconds)
	case evtTimerExpire:
		n := appendStack(cb.outbuf[:0])
		cb.send(n)
		cb.startTimer(dnet4.ReplyTimerSeconds)
	}
}

func (cb *ControlBlock) onRunning(evt ddcmpEvent) {
	switch evt {
	case evtRecvStrt:
		cb.setState(StateHalted)
		cb.notifyHalt()
	case evtRecvStack:
		cb.sendAckNow()
	case evtRecvRepEqR:
		cb.sackNak = sackNakAck
	case evtRecvRepNeqR:
		cb.nakReason = NakReasonRepSeq
		cb.sackNak = sackNakNak
	case evtRecvDataInSeq:
		if cb.DeliverData == nil || cb.DeliverData(cb.incomingPayload) {
			cb.r++
			cb.sackNak = sackNakAck
		} else {
			cb.nakReason = NakReasonBufferErr
			cb.sackNak = sackNakNak
		}
	case evtRecvDataOutSeq:
		// no action: next REP/NAK cycle recovers synchronization.
	case evtRecvAckResp0, evtRecvAckOutstanding:
		cb.txq.completeThrough(cb.lastResp)
		cb.a = cb.lastResp
		if mod256Cmp(cb.t, cb.a) <= 0 {
			cb.t = cb.a + 1
		}
		cb.checkAckWaitTimer()
	case evtRecvNakOutstanding:
		cb.a = cb.lastResp
		cb.t = cb.a + 1
		cb.stopTimer()
	case evtReadyRetransmit:
		cb.sendQueued(cb.pendingSend)
		cb.t = cb.n + 1
		cb.sackNak = sackNakNone
		cb.x = cb.pendingSend.num
		cb.checkAckWaitTimer()
	case evtDataSendReady:
		cb.sendQueued(cb.pendingSend)
		cb.n++
		cb.t = cb.n + 1
		cb.sackNak = sackNakNone
		cb.x = cb.pendingSend.num
		cb.checkAckWaitTimer()
	case evtTimerExpire:
		cb.srep = true
	}
}

func (cb *ControlBlock) sendAckNow() {
	n := appendAck(cb.outbuf[:0], cb.r)
	cb.send(n)
	cb.sackNak = sackNakNone
}

func (cb *ControlBlock) sendQueued(e *entry) {
	// The R field (piggybacked ack) must reflect the latest received
	// sequence number at the moment of (re)transmission, not when the
	// entry was originally queued; only the header CRC is recomputed,
	// the payload and its own CRC never change once enqueued.
	e.msg[3] = cb.r
	crc := CRC16(e.msg[:6])
	e.msg[6] = byte(crc)
	e.msg[7] = byte(crc >> 8)
	cb.send(e.msg[:e.n])
}

func (cb *ControlBlock) checkAckWaitTimer() {
	if cb.a < cb.x {
		cb.startTimer(dnet4.AckWaitTimerSeconds)
	} else {
		cb.stopTimer()
	}
}

func (cb *ControlBlock) notifyRunning() {
	if cb.NotifyRunning != nil {
		cb.NotifyRunning()
	}
}

func (cb *ControlBlock) notifyHalt() {
	if cb.NotifyHalt != nil {
		cb.NotifyHalt()
	}
}

func (cb *ControlBlock) logEnabled(lvl slog.Level) bool {
	return internal.HeapAllocDebugging || (cb.log != nil && cb.log.Handler().Enabled(context.Background(), lvl))
}

func (cb *ControlBlock) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(cb.log, internal.LevelTrace, msg, attrs...)
}
