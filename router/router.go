// Package router wires the decision, update, forward, and adjacency
// processes together with a set of configured circuits into one running
// DECnet Phase IV router: it owns the process-global tables each of
// those packages otherwise takes by reference, the timer wheel their
// Schedule*/Cancel* hooks drive, and the single goroutine that decodes
// and dispatches everything each circuit's line reads off the wire.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
	"github.com/soypat/dnet4/circuit"
	"github.com/soypat/dnet4/decision"
	"github.com/soypat/dnet4/forward"
	"github.com/soypat/dnet4/update"
)

// ErrNoFreeCircuitSlot is returned by the Add*Circuit methods once all
// dnet4.NC circuit slots are occupied.
var ErrNoFreeCircuitSlot = errors.New("router: no free circuit slot")

// inboundPayload is one queued, already-copied receive: a line's Deliver
// hook hands it to enqueue from its own read-loop goroutine; Run's
// dispatch goroutine is the only thing that ever drains it.
type inboundPayload struct {
	slot    int
	src     [6]byte
	payload []byte
}

// Router owns one node's complete routing state: its adjacency table,
// decision and update processes, forwarding engine, designated-router
// election, and every configured circuit.
type Router struct {
	Self   dnet4.Address
	Level2 bool

	Adjacencies *adjacency.Table
	Decision    *decision.Process
	Update      *update.Process
	Forward     *forward.Forwarder
	EthInit     *circuit.EthInit

	circuits   [dnet4.NC + 1]*circuit.Circuit
	ddcmpInits [dnet4.NC + 1]*circuit.DdcmpInit

	sched    *scheduler
	incoming chan inboundPayload

	log *slog.Logger
}

// Config holds the construction-time parameters every circuit shares.
// IncomingQueueLen defaults to 256 if zero.
type Config struct {
	Self             dnet4.Address
	Level2           bool
	Priority         byte
	IncomingQueueLen int
}

// NewRouter constructs a router with an empty circuit set. Add circuits
// with AddEthernetCircuit, AddBridgeCircuit, and AddDdcmpCircuit before
// calling Run.
func NewRouter(cfg Config) *Router {
	queueLen := cfg.IncomingQueueLen
	if queueLen == 0 {
		queueLen = 256
	}
	r := &Router{
		Self:     cfg.Self,
		Level2:   cfg.Level2,
		sched:    newScheduler(),
		incoming: make(chan inboundPayload, queueLen),
	}
	r.Adjacencies = adjacency.NewTable()
	r.Adjacencies.Self = cfg.Self
	r.Decision = decision.NewProcess(cfg.Self, cfg.Level2, r.Adjacencies, decisionCircuits{r})
	r.Update = update.NewProcess(cfg.Self, cfg.Level2, r.Decision, updateCircuits{r})
	r.Forward = forward.NewForwarder(cfg.Self, cfg.Level2, r.Decision, r.Adjacencies, forwardCircuits{r})
	r.Adjacencies.StateChangeCallback = r.Decision.ProcessAdjacencyStateChange
	r.EthInit = circuit.NewEthInit(cfg.Self, cfg.Priority, cfg.Level2, r.Adjacencies)
	r.wireEthInit()
	return r
}

// SetLogger attaches a logger to the router and every process it owns.
func (r *Router) SetLogger(log *slog.Logger) {
	r.log = log
	r.Adjacencies.SetLogger(log)
	r.Decision.SetLogger(log)
	r.Update.SetLogger(log)
	r.Forward.SetLogger(log)
	r.EthInit.SetLogger(log)
	for _, c := range r.circuits {
		if c != nil {
			c.SetLogger(log)
		}
	}
}

// wireEthInit connects EthInit's four timer hooks to the scheduler. It
// runs once, at construction, before any circuit exists.
func (r *Router) wireEthInit() {
	r.EthInit.ScheduleDRDelay = func(seconds int) {
		r.sched.schedule(timerKey{0, keyDRDelay}, seconds, r.EthInit.OnDRDelayExpire)
	}
	r.EthInit.ScheduleHello = func(c *circuit.Circuit, seconds int) {
		r.sched.armRecurring(timerKey{c.Slot(), keyDRHello}, seconds, func() {
			r.EthInit.OnDesignatedRouterHelloTimer(c)
		})
	}
	r.EthInit.CancelHello = func(c *circuit.Circuit) {
		r.sched.cancel(timerKey{c.Slot(), keyDRHello})
	}
	r.EthInit.ScheduleRouterHello = func(c *circuit.Circuit, seconds int) {
		r.sched.armRecurring(timerKey{c.Slot(), keyRouterHello}, seconds, func() {
			r.EthInit.OnRouterHelloTimer(c)
		})
	}
}

// allocSlot finds the lowest free 1-based circuit slot, or 0 if none
// remain.
func (r *Router) allocSlot() int {
	for i := 1; i <= dnet4.NC; i++ {
		if r.circuits[i] == nil {
			return i
		}
	}
	return 0
}

// enqueue copies payload and queues it for the dispatch goroutine,
// dropping and logging it if the queue is full rather than blocking a
// circuit's read loop on a slow or stalled dispatcher.
func (r *Router) enqueue(slot int, src [6]byte, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case r.incoming <- inboundPayload{slot: slot, src: src, payload: cp}:
	default:
		r.trace("router: incoming queue full, dropping payload", slot)
	}
}

// AddEthernetCircuit registers a circuit over a real Ethernet socket
// (internal.Bridge or internal.Tap), brings it Up immediately — unlike
// DDCMP, Ethernet has no routing-layer handshake of its own — and starts
// its receive loop.
func (r *Router) AddEthernetCircuit(name string, cost int, sock circuit.EthernetSocket, mtu int) (*circuit.Circuit, error) {
	return r.addBroadcastCircuit(name, cost, sock, mtu, circuit.KindEthernet)
}

// AddBridgeCircuit registers an Ethernet-over-UDP bridge circuit
// (internal.UDPBridge satisfies circuit.EthernetSocket). It is otherwise
// identical to AddEthernetCircuit: the same EthernetLine codec and
// EthInit election sublayer runs over it.
func (r *Router) AddBridgeCircuit(name string, cost int, sock circuit.EthernetSocket, mtu int) (*circuit.Circuit, error) {
	return r.addBroadcastCircuit(name, cost, sock, mtu, circuit.KindBridge)
}

func (r *Router) addBroadcastCircuit(name string, cost int, sock circuit.EthernetSocket, mtu int, kind circuit.Kind) (*circuit.Circuit, error) {
	slot := r.allocSlot()
	if slot == 0 {
		return nil, ErrNoFreeCircuitSlot
	}
	line, err := circuit.NewEthernetLine(sock)
	if err != nil {
		return nil, err
	}
	line.SetLogger(r.log)

	c := circuit.NewCircuit(name, slot, kind, cost, line)
	c.SetLogger(r.log)
	c.StateChangeCallback = func(cc *circuit.Circuit) { r.Decision.ProcessCircuitStateChange(cc) }

	line.Deliver = func(src [6]byte, payload []byte) {
		r.enqueue(slot, src, payload)
	}

	r.circuits[slot] = c
	r.EthInit.AddCircuit(c)

	go r.runReadLoop(name, func() error { return line.ReadLoop(mtu) })

	// Ethernet media is considered up as soon as the socket is open;
	// there is no handshake to wait for, unlike DDCMP.
	r.EthInit.HandleLineStateChange(c, true)
	return c, nil
}

// DdcmpOptions configures the routing-layer init sublayer of a DDCMP
// circuit; the zero value requests no password verification.
type DdcmpOptions struct {
	Blocksize           uint16
	HelloTimer          uint16
	RequestVerification bool
	Password            []byte
}

// AddDdcmpCircuit registers a point-to-point circuit over transport.
// Unlike an Ethernet circuit it starts Off: DdcmpInit's own start/stop
// handshake (driven by init.Start, called here) brings the underlying
// line up and runs the Init/Verification exchange before the circuit
// transitions to Up.
func (r *Router) AddDdcmpCircuit(name string, cost int, transport circuit.DdcmpTransport, opts DdcmpOptions, mtu int) (*circuit.Circuit, error) {
	slot := r.allocSlot()
	if slot == 0 {
		return nil, ErrNoFreeCircuitSlot
	}
	line := circuit.NewDdcmpLine(transport)
	line.SetLogger(r.log)

	c := circuit.NewCircuit(name, slot, circuit.KindDDCMP, cost, line)
	c.SetLogger(r.log)
	c.StateChangeCallback = func(cc *circuit.Circuit) { r.Decision.ProcessCircuitStateChange(cc) }

	level := 1
	if r.Level2 {
		level = 2
	}
	init := circuit.NewDdcmpInit(c, r.Adjacencies, r.Self, level, opts.Blocksize, opts.HelloTimer)
	init.RequestVerification = opts.RequestVerification
	init.Password = opts.Password
	init.SetLogger(r.log)

	init.ScheduleRecallTimer = func(seconds int) {
		r.sched.schedule(timerKey{slot, keyRecall}, seconds, init.OnRecallTimerExpire)
	}
	init.CancelRecallTimer = func() {
		r.sched.cancel(timerKey{slot, keyRecall})
	}
	line.ScheduleTimer = func(seconds int) {
		r.sched.schedule(timerKey{slot, keyDdcmpLink}, seconds, line.OnTimerExpire)
	}
	line.CancelTimer = func() {
		r.sched.cancel(timerKey{slot, keyDdcmpLink})
	}
	line.OnLineStateChange = init.HandleLineStateChange
	line.Deliver = func(payload []byte) {
		r.enqueue(slot, [6]byte{}, payload)
	}

	r.circuits[slot] = c
	r.ddcmpInits[slot] = init

	go r.runReadLoop(name, func() error { return line.ReadLoop(mtu) })

	init.Start()
	return c, nil
}

func (r *Router) runReadLoop(name string, read func() error) {
	if err := read(); err != nil && r.log != nil {
		r.log.Warn("router: circuit read loop stopped", slog.String("circuit", name), slog.String("error", err.Error()))
	}
}

// Run drains incoming payloads and fires due timers until ctx is
// cancelled. Every state-mutating call — dispatch, and every timer
// callback — happens on this one goroutine, so decision/adjacency/update
// never need locking of their own.
func (r *Router) Run(ctx context.Context) error {
	r.armPeriodicTimers()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-r.incoming:
			r.dispatch(in.slot, in.src, in.payload)
		case <-tick.C:
			r.sched.tick()
		}
	}
}

// armPeriodicTimers schedules the four process-wide recurring sweeps
// that are not tied to any one circuit or adjacency: the decision
// process's T1 (non-broadcast readvertisement) and BCT1 (broadcast
// readvertisement) sweeps, the update process's per-circuit emission
// pass, and the adjacency table's liveness purge.
func (r *Router) armPeriodicTimers() {
	r.sched.armRecurring(timerKey{0, keyT1}, dnet4.T1, r.Decision.TickT1)
	r.sched.armRecurring(timerKey{0, keyBCT1}, dnet4.BCT1, r.Decision.TickBCT1)
	r.sched.armRecurring(timerKey{0, keyUpdate}, dnet4.T2, r.Update.Tick)
	r.sched.armRecurring(timerKey{0, keyPurge}, dnet4.T2, r.Adjacencies.PurgeAdjacencies)
}
