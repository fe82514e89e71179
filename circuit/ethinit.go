package circuit

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// EthInit owns designated-router election for every Ethernet (and
// Ethernet-over-UDP bridge) circuit on this router, grounded in full on
// eth_init_layer.c.
type EthInit struct {
	Self        dnet4.Address
	Priority    byte
	Level2      bool
	Adjacencies *adjacency.Table

	circuits []*Circuit

	drDelayExpired bool

	// ScheduleDRDelay arms the once-only startup timer that gates the
	// first DR-election outcome; the caller invokes OnDRDelayExpire when
	// it elapses. ScheduleHello and CancelHello manage one per-circuit
	// periodic All-End-Nodes hello while this router is the designated
	// router on that circuit. ScheduleRouterHello arms the unconditional,
	// every-Ethernet-circuit T3-periodic AllRoutersHello (and, if Level2,
	// AllLevel2RoutersHello), independent of DR status. All four must be
	// set before use.
	ScheduleDRDelay     func(seconds int)
	ScheduleHello       func(c *Circuit, seconds int)
	CancelHello         func(c *Circuit)
	ScheduleRouterHello func(c *Circuit, seconds int)

	log *slog.Logger
}

// NewEthInit constructs an election controller and wires itself as the
// adjacency table's CheckDesignatedRouter callback.
func NewEthInit(self dnet4.Address, priority byte, level2 bool, adjacencies *adjacency.Table) *EthInit {
	e := &EthInit{Self: self, Priority: priority, Level2: level2, Adjacencies: adjacencies}
	adjacencies.CheckDesignatedRouter = e.checkDesignatedRouter
	return e
}

// SetLogger attaches a logger for trace output.
func (e *EthInit) SetLogger(log *slog.Logger) { e.log = log }

// AddCircuit registers an Ethernet or bridge circuit for election and
// arms the startup delay timer the first time any circuit is added,
// matching EthInitLayerStart.
func (e *EthInit) AddCircuit(c *Circuit) {
	e.circuits = append(e.circuits, c)
	if len(e.circuits) == 1 && e.ScheduleDRDelay != nil {
		e.ScheduleDRDelay(dnet4.DRDelay)
	}
	if e.ScheduleRouterHello != nil {
		e.ScheduleRouterHello(c, int(helloPeriod(c)))
	}
}

// OnDRDelayExpire ends the startup grace period and re-runs election on
// every registered circuit, matching HandleDesignatedRouterTimer.
func (e *EthInit) OnDRDelayExpire() {
	e.drDelayExpired = true
	e.CheckAllCircuits()
}

// CheckAllCircuits re-runs CheckDesignatedRouter for every registered
// circuit, matching EthInitCheckDesignatedRouter's outer loop.
func (e *EthInit) CheckAllCircuits() {
	for _, c := range e.circuits {
		e.checkDesignatedRouter(c)
	}
}

// checkDesignatedRouter re-evaluates whether this router should be the
// designated router on c, matching EthInitCheckDesignatedRouter's body
// for a single circuit.
func (e *EthInit) checkDesignatedRouter(c adjacency.Circuit) {
	ec, ok := c.(*Circuit)
	if !ok || e.Adjacencies == nil {
		return
	}

	couldBe := true
	e.Adjacencies.ProcessRouterAdjacencies(func(a *adjacency.Adjacency) bool {
		if a.Circuit != ec {
			return true
		}
		if a.ID.Area != e.Self.Area {
			return true
		}
		switch {
		case a.Priority > e.Priority:
			couldBe = false
		case a.Priority == e.Priority && a.ID.Node > e.Self.Node:
			couldBe = false
		}
		return true
	})

	if !e.drDelayExpired || ec.isDesignatedRouter == couldBe {
		return
	}
	ec.isDesignatedRouter = couldBe
	if couldBe {
		e.trace("eth init: now the designated router", ec)
		if e.ScheduleHello != nil {
			e.ScheduleHello(ec, int(helloPeriod(ec)))
		}
	} else {
		e.trace("eth init: no longer the designated router", ec)
		if e.CancelHello != nil {
			e.CancelHello(ec)
		}
	}
}

// OnDesignatedRouterHelloTimer sends this router's periodic All-End-Nodes
// hello on c, matching HandleDesignatedRouterHelloTimer. Despite the name,
// the message sent is a router hello (CreateEthernetHello builds one, not
// an endnode hello): it is the same advertisement CheckRouterAdjacency
// expects from a peer, just addressed to the end-node multicast group so
// endnodes on the segment learn their router without joining the
// router-to-router hello traffic. The caller is responsible for not
// re-arming the timer once c stops being the designated router;
// CancelHello above is how checkDesignatedRouter tells it to stop.
func (e *EthInit) OnDesignatedRouterHelloTimer(c *Circuit) {
	if !c.isDesignatedRouter {
		return
	}
	payload := e.buildRouterHello(c)
	if err := c.SendMulticast(dnet4.AllEndNodesAddr, payload); err != nil {
		e.traceSendError(c, err)
	}
}

// OnRouterHelloTimer sends the unconditional per-circuit router hello every
// Ethernet circuit emits regardless of DR status, to AllRouters and, if
// this node is a level-2 router, also to AllLevel2Routers.
func (e *EthInit) OnRouterHelloTimer(c *Circuit) {
	payload := e.buildRouterHello(c)
	if err := c.SendMulticast(dnet4.AllRoutersAddr, payload); err != nil {
		e.traceSendError(c, err)
	}
	if e.Level2 {
		if err := c.SendMulticast(dnet4.AllLevel2RoutersAddr, payload); err != nil {
			e.traceSendError(c, err)
		}
	}
}

func (e *EthInit) buildRouterHello(c *Circuit) []byte {
	level := 1
	if e.Level2 {
		level = 2
	}
	var rslist []dnet4.RouterHelloEntry
	if e.Adjacencies != nil {
		e.Adjacencies.ProcessRouterAdjacencies(func(a *adjacency.Adjacency) bool {
			if a.Circuit != c {
				return true
			}
			rslist = append(rslist, dnet4.RouterHelloEntry{
				Peer: a.ID.Ethernet(),
				Up:   a.State == adjacency.StateUp,
			})
			return true
		})
	}
	return dnet4.AppendRouterHello(nil, level, e.Priority, 1498, helloPeriod(c), rslist)
}

// helloPeriod is c's configured hello interval, falling back to the
// reference's default router hello timer if the circuit was never given
// one explicitly.
func helloPeriod(c *Circuit) uint16 {
	if c.HelloTimer != 0 {
		return c.HelloTimer
	}
	return dnet4.T3
}

// HandleLineStateChange reacts to an Ethernet line's up/down transition,
// matching HandleLineNotifyStateChange.
func (e *EthInit) HandleLineStateChange(c *Circuit, up bool) {
	if up {
		c.circuitUp()
	} else {
		c.circuitDown()
	}
}

func (e *EthInit) trace(msg string, c *Circuit) {
	if e.log == nil {
		return
	}
	e.log.Info(msg, slog.String("circuit", c.Name))
}

func (e *EthInit) traceSendError(c *Circuit, err error) {
	if e.log == nil {
		return
	}
	e.log.Warn("eth init: hello send failed", slog.String("circuit", c.Name), slog.String("error", err.Error()))
}
