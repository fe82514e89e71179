package router

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
	"github.com/soypat/dnet4/circuit"
	"github.com/soypat/dnet4/forward"
)

// dispatch decodes one payload received on slot and routes it to the
// sublayer or process that owns its message category, matching the
// reference's top-level receive dispatch (route20.c's "look at the
// message flag byte and call the right handler"). src is the frame's
// Ethernet source hardware address for a broadcast circuit, the zero
// value for a point-to-point one (DDCMP identifies its peer by the
// link itself, not a per-frame hardware address).
//
// dispatch always runs on the router's own single dispatch goroutine
// (see Run), so it is the only place that ever mutates the
// decision/adjacency/forward state — every circuit's own read loop only
// ever enqueues onto incoming.
func (r *Router) dispatch(slot int, src [6]byte, payload []byte) {
	c := r.circuit(slot)
	if c == nil {
		return
	}
	payload, err := dnet4.SkipPadding(payload)
	if err != nil || len(payload) == 0 {
		return
	}
	category := dnet4.MessageFlag(payload[0]).Category()
	switch category {
	case dnet4.CategoryInit:
		r.dispatchInit(slot, payload)
	case dnet4.CategoryVerification:
		r.dispatchVerification(slot, payload)
	case dnet4.CategoryHelloAndTest:
		// Point-to-point test traffic carries no routing-layer state of
		// its own; nothing downstream of the link layer needs it.
	case dnet4.CategoryRouterHello:
		r.dispatchRouterHello(c, src, payload)
	case dnet4.CategoryEndnodeHello:
		r.dispatchEndnodeHello(c, src, payload)
	case dnet4.CategoryL1Routing:
		r.dispatchRoutingMessage(c, src, payload, false)
	case dnet4.CategoryL2Routing:
		r.dispatchRoutingMessage(c, src, payload, true)
	case dnet4.CategoryShortData:
		r.dispatchShortData(c, payload)
	case dnet4.CategoryLongData:
		r.dispatchLongData(c, payload)
	default:
		r.trace("router: dropping message of unknown category", slot)
	}
}

func (r *Router) dispatchInit(slot int, payload []byte) {
	init := r.ddcmpInits[slot]
	if init == nil {
		return
	}
	msg, err := dnet4.NewInit(payload)
	if err != nil {
		init.ProcessInvalidMessage()
		return
	}
	init.ProcessInitializationMessage(msg)
}

func (r *Router) dispatchVerification(slot int, payload []byte) {
	init := r.ddcmpInits[slot]
	if init == nil {
		return
	}
	msg, err := dnet4.NewVerification(payload)
	if err != nil {
		init.ProcessInvalidMessage()
		return
	}
	init.ProcessVerificationMessage(msg)
}

// dispatchRouterHello feeds a received Ethernet router-hello to the
// adjacency table, matching EthInitProcessRouterHelloMessage. The
// sender's DECnet address is recovered from the frame's own hardware
// source address: router-hello carries no source-node field of its own.
func (r *Router) dispatchRouterHello(c *circuit.Circuit, src [6]byte, payload []byte) {
	peer, ok := dnet4.AddressFromEthernet(src)
	if !ok {
		return
	}
	msg, err := dnet4.NewRouterHello(payload)
	if err != nil || msg.Validate() != nil {
		return
	}
	level := 1
	if msg.TIInfo() == 1 {
		level = 2
	}
	kind := adjacency.KindLevel1Router
	if level == 2 {
		kind = adjacency.KindLevel2Router
	}
	n := msg.RSListLen()
	rslist := make([]adjacency.RouterListEntry, 0, n)
	for i := 0; i < n; i++ {
		hw, _ := msg.RSListEntry(i)
		if addr, ok := dnet4.AddressFromEthernet(hw); ok {
			rslist = append(rslist, adjacency.RouterListEntry{Router: addr})
		}
	}
	r.Adjacencies.CheckRouterAdjacency(peer, c, kind, int(msg.HelloTimer()), msg.Priority(), rslist)
}

func (r *Router) dispatchEndnodeHello(c *circuit.Circuit, src [6]byte, payload []byte) {
	peer, ok := dnet4.AddressFromEthernet(src)
	if !ok {
		return
	}
	msg, err := dnet4.NewEndnodeHello(payload)
	if err != nil {
		return
	}
	r.Adjacencies.CheckEndnodeAdjacency(peer, c, int(msg.HelloTimer()))
}

// dispatchRoutingMessage decodes a received L1/L2 routing-update message
// and hands its segments to the decision process. The sender's address
// is the circuit's sole adjacency for a point-to-point circuit, or
// recovered from the Ethernet source address for a broadcast circuit —
// routing-update messages carry no source-node field of their own
// either.
func (r *Router) dispatchRoutingMessage(c *circuit.Circuit, src [6]byte, payload []byte, level2 bool) {
	from, ok := c.AdjacentNode, true
	if c.Broadcast() {
		from, ok = dnet4.AddressFromEthernet(src)
	}
	if !ok {
		return
	}
	msg, err := dnet4.NewRoutingMessage(payload)
	if err != nil || msg.Validate() != nil {
		r.trace("router: dropping malformed routing message", c.Slot())
		return
	}
	var segments []dnet4.RoutingSegment
	err = msg.Segments(func(seg dnet4.RoutingSegment) {
		segments = append(segments, seg)
	})
	if err != nil {
		return
	}
	if level2 {
		r.Decision.ProcessLevel2RoutingMessage(from, segments)
	} else {
		r.Decision.ProcessLevel1RoutingMessage(from, segments)
	}
}

func (r *Router) dispatchShortData(c *circuit.Circuit, payload []byte) {
	msg, err := dnet4.NewShortDataFrame(payload)
	if err != nil {
		return
	}
	r.Forward.Forward(forwardCircuitView{c}, forward.Packet{
		Src:            msg.Source(),
		Dst:            msg.Destination(),
		ReturnToSender: msg.ReturnToSender(),
		RTSRequest:     msg.RTSRequest(),
		Visits:         msg.VisitCount(),
		Payload:        msg.Payload(),
	})
}

func (r *Router) dispatchLongData(c *circuit.Circuit, payload []byte) {
	msg, err := dnet4.NewLongDataFrame(payload)
	if err != nil {
		return
	}
	r.Forward.Forward(forwardCircuitView{c}, forward.Packet{
		Src:            msg.Source(),
		Dst:            msg.Destination(),
		ReturnToSender: msg.ReturnToSender(),
		RTSRequest:     msg.RTSRequest(),
		Visits:         msg.VisitCount(),
		Payload:        msg.Payload(),
	})
}

func (r *Router) trace(msg string, slot int) {
	if r.log == nil {
		return
	}
	r.log.Info(msg, slog.Int("slot", slot))
}
