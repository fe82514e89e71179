package circuit

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// ddcmpState is the DDCMP routing-layer initialization sublayer's state,
// per ddcmp_init_layer.c's DdcmpInitState.
type ddcmpState uint8

const (
	ddcmpRun ddcmpState = iota
	ddcmpCircuitRejected
	ddcmpDataLinkStart
	ddcmpRoutingInit
	ddcmpRoutingVerify
	ddcmpRoutingComplete
	ddcmpOff
	ddcmpHalt
)

func (s ddcmpState) String() string {
	switch s {
	case ddcmpRun:
		return "Run"
	case ddcmpCircuitRejected:
		return "CircuitRejected"
	case ddcmpDataLinkStart:
		return "DataLinkStart"
	case ddcmpRoutingInit:
		return "RoutingInit"
	case ddcmpRoutingVerify:
		return "RoutingVerify"
	case ddcmpRoutingComplete:
		return "RoutingComplete"
	case ddcmpOff:
		return "Off"
	case ddcmpHalt:
		return "Halt"
	default:
		return "invalid"
	}
}

// ddcmpEvent is one of the sublayer's twelve driving events.
type ddcmpEvent uint8

const (
	evtNRIVR ddcmpEvent = iota // init message received, verification requested
	evtNRINV                   // init message received, verification not requested
	evtNRV                     // verification message received
	evtRT                      // recall timer expired
	evtSC                      // line start complete
	evtSTE                     // line start error
	evtOPO                     // operator turned circuit on
	evtOPF                     // operator turned circuit off
	evtIM                      // invalid message received
	evtRC                      // circuit reject complete
	evtCDC                     // circuit down complete
	evtCUC                     // circuit up complete
)

// ddcmpAction runs as a state transition's side effect, before the
// up/down notification that transition may trigger.
type ddcmpAction func(d *DdcmpInit)

type ddcmpRow struct {
	event      ddcmpEvent
	from, to   ddcmpState
	action     ddcmpAction
}

// ddcmpStateTable is ddcmp_init_layer.c's stateTable, transcribed row for
// row. Every (event, state) pair not listed here is a self-loop with no
// action, matching the reference's fallback of leaving currentState
// unlisted combinations alone implicitly (there, by appearing with
// newState == currentState and action NULL).
var ddcmpStateTable = []ddcmpRow{
	{evtNRIVR, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtNRIVR, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtNRIVR, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtNRIVR, ddcmpRoutingInit, ddcmpRoutingVerify, (*DdcmpInit).sendVerifyMessage},
	{evtNRIVR, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRIVR, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRIVR, ddcmpOff, ddcmpOff, nil},
	{evtNRIVR, ddcmpHalt, ddcmpHalt, nil},

	{evtNRINV, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtNRINV, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtNRINV, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtNRINV, ddcmpRoutingInit, ddcmpRoutingVerify, nil},
	{evtNRINV, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRINV, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRINV, ddcmpOff, ddcmpOff, nil},
	{evtNRINV, ddcmpHalt, ddcmpHalt, nil},

	{evtNRV, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtNRV, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtNRV, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtNRV, ddcmpRoutingInit, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRV, ddcmpRoutingVerify, ddcmpRoutingComplete, nil},
	{evtNRV, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtNRV, ddcmpOff, ddcmpOff, nil},
	{evtNRV, ddcmpHalt, ddcmpHalt, nil},

	{evtRT, ddcmpRun, ddcmpRun, nil},
	{evtRT, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtRT, ddcmpDataLinkStart, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtRT, ddcmpRoutingInit, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtRT, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtRT, ddcmpRoutingComplete, ddcmpRoutingComplete, nil},
	{evtRT, ddcmpOff, ddcmpOff, nil},
	{evtRT, ddcmpHalt, ddcmpHalt, nil},

	{evtSC, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtSC, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtSC, ddcmpDataLinkStart, ddcmpRoutingInit, (*DdcmpInit).sendInitMessage},
	{evtSC, ddcmpRoutingInit, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSC, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSC, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSC, ddcmpOff, ddcmpOff, nil},
	{evtSC, ddcmpHalt, ddcmpHalt, nil},

	{evtSTE, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtSTE, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtSTE, ddcmpDataLinkStart, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSTE, ddcmpRoutingInit, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSTE, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSTE, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtSTE, ddcmpOff, ddcmpOff, nil},
	{evtSTE, ddcmpHalt, ddcmpHalt, nil},

	{evtOPO, ddcmpRun, ddcmpRun, nil},
	{evtOPO, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtOPO, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtOPO, ddcmpRoutingInit, ddcmpRoutingInit, nil},
	{evtOPO, ddcmpRoutingVerify, ddcmpRoutingVerify, nil},
	{evtOPO, ddcmpRoutingComplete, ddcmpRoutingComplete, nil},
	{evtOPO, ddcmpOff, ddcmpCircuitRejected, nil},
	{evtOPO, ddcmpHalt, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},

	{evtOPF, ddcmpRun, ddcmpOff, (*DdcmpInit).issueStop},
	{evtOPF, ddcmpCircuitRejected, ddcmpOff, nil},
	{evtOPF, ddcmpDataLinkStart, ddcmpHalt, (*DdcmpInit).issueStop},
	{evtOPF, ddcmpRoutingInit, ddcmpHalt, (*DdcmpInit).issueStop},
	{evtOPF, ddcmpRoutingVerify, ddcmpHalt, (*DdcmpInit).issueStop},
	{evtOPF, ddcmpRoutingComplete, ddcmpHalt, (*DdcmpInit).issueStop},
	{evtOPF, ddcmpOff, ddcmpOff, nil},
	{evtOPF, ddcmpHalt, ddcmpHalt, nil},

	{evtIM, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtIM, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtIM, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtIM, ddcmpRoutingInit, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtIM, ddcmpRoutingVerify, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtIM, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtIM, ddcmpOff, ddcmpOff, nil},
	{evtIM, ddcmpHalt, ddcmpHalt, nil},

	{evtRC, ddcmpRun, ddcmpCircuitRejected, nil},
	{evtRC, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtRC, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtRC, ddcmpRoutingInit, ddcmpRoutingInit, nil},
	{evtRC, ddcmpRoutingVerify, ddcmpRoutingVerify, nil},
	{evtRC, ddcmpRoutingComplete, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtRC, ddcmpOff, ddcmpOff, nil},
	{evtRC, ddcmpHalt, ddcmpHalt, nil},

	{evtCDC, ddcmpRun, ddcmpRun, nil},
	{evtCDC, ddcmpCircuitRejected, ddcmpDataLinkStart, (*DdcmpInit).reinitializeAndRecall},
	{evtCDC, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtCDC, ddcmpRoutingInit, ddcmpRoutingInit, nil},
	{evtCDC, ddcmpRoutingVerify, ddcmpRoutingVerify, nil},
	{evtCDC, ddcmpRoutingComplete, ddcmpRoutingComplete, nil},
	{evtCDC, ddcmpOff, ddcmpHalt, nil},
	{evtCDC, ddcmpHalt, ddcmpHalt, nil},

	{evtCUC, ddcmpRun, ddcmpRun, nil},
	{evtCUC, ddcmpCircuitRejected, ddcmpCircuitRejected, nil},
	{evtCUC, ddcmpDataLinkStart, ddcmpDataLinkStart, nil},
	{evtCUC, ddcmpRoutingInit, ddcmpRoutingInit, nil},
	{evtCUC, ddcmpRoutingVerify, ddcmpRoutingVerify, nil},
	{evtCUC, ddcmpRoutingComplete, ddcmpRun, nil},
	{evtCUC, ddcmpOff, ddcmpOff, nil},
	{evtCUC, ddcmpHalt, ddcmpHalt, nil},
}

// DdcmpInit drives the DDCMP routing-layer initialization sublayer for one
// point-to-point circuit: negotiating Init/Verification messages with the
// sole peer before the circuit's adjacency, and then the circuit itself,
// can come up. Grounded on ddcmp_init_layer.c's state table and action
// functions in full.
type DdcmpInit struct {
	Circuit     *Circuit
	Adjacencies *adjacency.Table
	Self        dnet4.Address

	// Level is this router's own routing level (1 or 2), sent in every
	// Init message and used to validate a peer's area against ours.
	Level int
	// RequestVerification, if set, asks the peer to follow its Init with
	// a Verification message carrying Password.
	RequestVerification bool
	Password            []byte
	Blocksize           uint16

	state ddcmpState

	recallTimerRunning bool
	// ScheduleRecallTimer and CancelRecallTimer manage the sublayer's
	// single recall timer; the caller invokes OnRecallTimerExpire when it
	// elapses. Must be set before use.
	ScheduleRecallTimer func(seconds int)
	CancelRecallTimer   func()

	log *slog.Logger
}

// NewDdcmpInit constructs a sublayer in the Off state for circuit.
// helloTimer is stored on circuit itself (Circuit.HelloTimer), since it is
// the circuit's own property, shared with whatever else on the circuit
// needs its configured hello/init period.
func NewDdcmpInit(circuit *Circuit, adjacencies *adjacency.Table, self dnet4.Address, level int, blocksize, helloTimer uint16) *DdcmpInit {
	circuit.HelloTimer = helloTimer
	return &DdcmpInit{
		Circuit:     circuit,
		Adjacencies: adjacencies,
		Self:        self,
		Level:       level,
		Blocksize:   blocksize,
		state:       ddcmpOff,
	}
}

// SetLogger attaches a logger for trace output.
func (d *DdcmpInit) SetLogger(log *slog.Logger) { d.log = log }

// State reports the sublayer's current state.
func (d *DdcmpInit) State() ddcmpState { return d.state }

// processEvent runs the state table for evt, matching ProcessEvent: find
// the row for (evt, current state), transition, run its action, then
// react to the new state with the circuit up/down notification the
// reference drives off certain destination states.
func (d *DdcmpInit) processEvent(evt ddcmpEvent) {
	var row *ddcmpRow
	for i := range ddcmpStateTable {
		if ddcmpStateTable[i].event == evt && ddcmpStateTable[i].from == d.state {
			row = &ddcmpStateTable[i]
			break
		}
	}
	if row == nil {
		return
	}
	changing := d.state != row.to
	if changing && d.log != nil {
		d.log.Info("ddcmp init: state change",
			slog.String("circuit", d.Circuit.Name),
			slog.String("from", d.state.String()),
			slog.String("to", row.to.String()))
	}
	d.state = row.to
	if row.action != nil {
		row.action(d)
	}
	if changing {
		switch row.to {
		case ddcmpRoutingComplete:
			d.Circuit.circuitUp()
		case ddcmpCircuitRejected, ddcmpOff:
			d.Circuit.circuitDown()
		}
	}
}

// ProcessInitializationMessage validates and dispatches a received Init
// message, matching DdcmpInitProcessInitializationMessage.
func (d *DdcmpInit) ProcessInitializationMessage(msg dnet4.Init) {
	from := msg.SrcNode()
	level, isRouter := msg.RouterLevel()

	valid := true
	switch {
	case from.Node > dnet4.NN:
		valid = false
	case d.Level == 1 && d.Self.Area != from.Area:
		valid = false
	case d.Level == 2 && level == 1 && d.Self.Area != from.Area:
		valid = false
	}
	if !valid {
		d.ProcessInvalidMessage()
		return
	}

	if valid {
		d.Circuit.AdjacentNode = from
	}

	kind := adjacencyKindFromRouterLevel(level, isRouter)
	if msg.VerificationRequested() {
		d.processEvent(evtNRIVR)
	} else {
		d.processEvent(evtNRINV)
	}
	if d.Adjacencies != nil {
		d.Adjacencies.InitialiseCircuitAdjacency(from, d.Circuit, kind, int(msg.Timer()))
	}
}

// ProcessVerificationMessage dispatches a received Verification message,
// matching DdcmpInitProcessVerificationMessage.
func (d *DdcmpInit) ProcessVerificationMessage(msg dnet4.Verification) {
	d.processEvent(evtNRV)
}

// ProcessInvalidMessage dispatches a malformed or rejected message,
// matching DdcmpInitProcessInvalidMessage.
func (d *DdcmpInit) ProcessInvalidMessage() { d.processEvent(evtIM) }

// ProcessCircuitRejectComplete notifies the sublayer that the owning
// circuit's reject has completed, matching
// DdcmpInitProcessCircuitRejectComplete.
func (d *DdcmpInit) ProcessCircuitRejectComplete() { d.processEvent(evtRC) }

// ProcessCircuitUpComplete and ProcessCircuitDownComplete mirror the
// reference's DdcmpInitLayerCircuitUpComplete/CircuitDownComplete, driving
// CUC/CDC once the owning circuit's up/down transition has completed.
func (d *DdcmpInit) ProcessCircuitUpComplete()   { d.processEvent(evtCUC) }
func (d *DdcmpInit) ProcessCircuitDownComplete() { d.processEvent(evtCDC) }

// HandleLineStateChange reacts to the underlying DDCMP line's
// running/halted transition, matching HandleLineNotifyStateChange.
func (d *DdcmpInit) HandleLineStateChange(running bool) {
	if running {
		d.processEvent(evtSC)
	} else {
		d.processEvent(evtOPF)
		d.processEvent(evtOPO)
	}
}

// Start turns the circuit on, matching the OPO event a deliberate
// operator-initiated start feeds into the state table.
func (d *DdcmpInit) Start() { d.processEvent(evtOPO) }

// Stop turns the circuit off.
func (d *DdcmpInit) Stop() { d.processEvent(evtOPF) }

// OnRecallTimerExpire fires the recall timer, matching HandleRecallTimer:
// a no-op once the circuit has reached Run, since by then the peer
// relationship no longer needs the retry.
func (d *DdcmpInit) OnRecallTimerExpire() {
	d.recallTimerRunning = false
	if d.state != ddcmpRun {
		d.processEvent(evtRT)
	}
}

// reinitializeAndRecall restarts the underlying line and arms the recall
// timer if it is not already running, matching
// IssueReinitializeCommandAndStartRecallTimerAction: if the recall timer
// is already running, the restart is skipped and left for the timer's own
// expiry to retry.
func (d *DdcmpInit) reinitializeAndRecall() {
	if d.recallTimerRunning {
		if d.log != nil {
			d.log.Info("ddcmp init: recall timer already running, skipping reinitialize",
				slog.String("circuit", d.Circuit.Name))
		}
		return
	}
	if d.log != nil {
		d.log.Info("ddcmp init: starting line", slog.String("circuit", d.Circuit.Name))
	}
	if err := d.Circuit.line.Start(); err != nil && d.log != nil {
		d.log.Warn("ddcmp init: line start failed", slog.String("circuit", d.Circuit.Name), slog.String("error", err.Error()))
	}
	d.recallTimerRunning = true
	if d.ScheduleRecallTimer != nil {
		d.ScheduleRecallTimer(dnet4.RecallTimer)
	}
}

func (d *DdcmpInit) issueStop() {
	if d.log != nil {
		d.log.Info("ddcmp init: stopping line", slog.String("circuit", d.Circuit.Name))
	}
	d.Circuit.line.Stop()
}

func (d *DdcmpInit) sendInitMessage() {
	payload := dnet4.AppendInit(nil, d.Self, d.Level, d.RequestVerification, d.Blocksize, d.Circuit.HelloTimer)
	d.send(payload)
}

func (d *DdcmpInit) sendVerifyMessage() {
	payload := dnet4.AppendVerification(nil, d.Self, d.Password)
	d.send(payload)
}

func (d *DdcmpInit) send(payload []byte) {
	if err := d.Circuit.Send(payload); err != nil && d.log != nil {
		d.log.Warn("ddcmp init: send failed", slog.String("circuit", d.Circuit.Name), slog.String("error", err.Error()))
	}
}

func adjacencyKindFromRouterLevel(level int, isRouter bool) adjacency.Kind {
	if !isRouter {
		return adjacency.KindEndnode
	}
	if level == 2 {
		return adjacency.KindLevel2Router
	}
	return adjacency.KindLevel1Router
}
