package decision

import (
	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// ProcessAdjacencyStateChange is the callback to register as
// adjacency.Table.StateChangeCallback: it dispatches on the adjacency's
// new state, matching ProcessAdjacencyStateChange.
func (p *Process) ProcessAdjacencyStateChange(a *adjacency.Adjacency) {
	if a.State == adjacency.StateUp {
		p.processBroadcastAdjacencyUp(a)
	} else {
		p.processBroadcastAdjacencyDown(a)
	}
}

// ProcessCircuitStateChange dispatches on a circuit's new up/down state,
// matching ProcessCircuitStateChange.
func (p *Process) ProcessCircuitStateChange(c adjacency.Circuit) {
	if c.Up() {
		p.processCircuitUp(c)
	} else {
		p.processCircuitDown(c)
	}
}

// ProcessLevel1RoutingMessage folds a received level-1 routing message
// into the Hop/Cost matrices and recomputes routes for every touched
// destination, matching ProcessLevel1RoutingMessage.
func (p *Process) ProcessLevel1RoutingMessage(src dnet4.Address, segments []dnet4.RoutingSegment) {
	a := p.Adjacencies.FindAdjacency(src)
	if a == nil {
		return
	}
	p.checkCircuitCostGreaterThanZero(a.Circuit)
	p.Check("")
	for _, seg := range segments {
		for idx, word := range seg.Entries {
			i := int(seg.Start) + idx
			hops, cost := dnet4.HopCost(word)
			p.Hop[i][a.Slot] = uint16(hops) + 1
			p.Cost[i][a.Slot] = cost + uint16(a.Circuit.Cost())
			p.Routes(i, i)
		}
	}
}

// ProcessLevel2RoutingMessage is the level-2/area equivalent of
// ProcessLevel1RoutingMessage, matching ProcessLevel2RoutingMessage.
func (p *Process) ProcessLevel2RoutingMessage(src dnet4.Address, segments []dnet4.RoutingSegment) {
	a := p.Adjacencies.FindAdjacency(src)
	if a == nil {
		return
	}
	p.checkCircuitCostGreaterThanZero(a.Circuit)
	p.Check("")
	for _, seg := range segments {
		for idx, word := range seg.Entries {
			i := int(seg.Start) + idx
			hops, cost := dnet4.HopCost(word)
			p.AHop[i][a.Slot] = uint16(hops) + 1
			p.ACost[i][a.Slot] = cost + uint16(a.Circuit.Cost())
			p.ARoutes(i, i)
		}
	}
}

// processBroadcastAdjacencyDown clears the matrix columns belonging to an
// adjacency that just went down, matching ProcessBroadcastAdjacencyDown.
// Despite the name (inherited from the reference), this path also fires
// for non-broadcast router/endnode adjacencies going down.
func (p *Process) processBroadcastAdjacencyDown(a *adjacency.Adjacency) {
	if adjacency.IsBroadcastRouterAdjacency(a) {
		for i := 1; i <= dnet4.NN; i++ {
			p.Hop[i][a.Slot] = dnet4.Infh
			p.Cost[i][a.Slot] = dnet4.Infc
		}
		if p.Level2 {
			for i := 1; i <= dnet4.NA; i++ {
				p.AHop[i][a.Slot] = dnet4.Infh
				p.ACost[i][a.Slot] = dnet4.Infc
			}
		}
		if p.Level2 && a.Kind == adjacency.KindLevel2Router {
			p.ARoutes(1, dnet4.NA)
		}
		p.Routes(0, dnet4.NN)
	} else if adjacency.IsBroadcastEndnodeAdjacency(a) {
		nodeID := int(a.ID.Node)
		k := a.Circuit.Slot()
		p.Hop[nodeID][k] = dnet4.Infh
		p.Cost[nodeID][k] = dnet4.Infc
		p.Routes(nodeID, nodeID)
	}
}

// processBroadcastAdjacencyUp marks the matrix columns of a newly-up
// adjacency for readvertisement, matching ProcessBroadcastAdjacencyUp.
func (p *Process) processBroadcastAdjacencyUp(a *adjacency.Adjacency) {
	if adjacency.IsBroadcastRouterAdjacency(a) {
		circ := a.Circuit.Slot()
		for i := 0; i <= dnet4.NN; i++ {
			p.Srm[i][circ] = true
		}
		if p.Level2 && a.Kind == adjacency.KindLevel2Router {
			for i := 0; i <= dnet4.NA; i++ {
				p.ASrm[i][circ] = true
			}
		}
	} else if adjacency.IsBroadcastEndnodeAdjacency(a) {
		nodeID := int(a.ID.Node)
		k := a.Circuit.Slot()
		p.Hop[nodeID][k] = 1
		p.Cost[nodeID][k] = uint16(a.Circuit.Cost())
		p.Routes(nodeID, nodeID)
	}
}

// processCircuitDown clears every destination's hop count over a circuit
// that just went down and tears down its adjacencies, matching
// ProcessCircuitDown.
func (p *Process) processCircuitDown(c adjacency.Circuit) {
	j := c.Slot()
	p.Check("")

	for i := 0; i <= dnet4.NN; i++ {
		p.Hop[i][j] = dnet4.Infh
		p.Cost[i][j] = dnet4.Infc
	}
	if p.Level2 {
		for i := 1; i <= dnet4.NA; i++ {
			p.AHop[i][j] = dnet4.Infh
			p.ACost[i][j] = dnet4.Infc
		}
	}

	p.Adjacencies.ProcessRouterAdjacencies(func(a *adjacency.Adjacency) bool {
		return p.downAdjacencyAssociatedWithCircuit(a, c)
	})

	if p.Level2 {
		p.ARoutes(1, dnet4.NA)
	}
	p.Routes(0, dnet4.NN)
}

// processCircuitUp seeds the matrix for a circuit that just came up,
// matching ProcessCircuitUp.
func (p *Process) processCircuitUp(c adjacency.Circuit) {
	j := c.Slot()
	p.Check("")

	if !c.Broadcast() {
		a := p.Adjacencies.GetAdjacency(j)
		if a != nil {
			k := int(a.ID.Node)
			if a.Kind == adjacency.KindEndnode {
				p.Hop[k][j] = 1
				p.checkCircuitCostGreaterThanZero(c)
				p.Cost[k][j] = uint16(c.Cost())
				p.Routes(k, k)
			}

			for i := 0; i <= dnet4.NN; i++ {
				p.Srm[i][j] = true
			}
			if p.Level2 && a.Kind == adjacency.KindLevel2Router {
				for i := 1; i <= dnet4.NA; i++ {
					p.ASrm[i][j] = true
				}
			}
		}
	} else {
		p.checkCircuitCostGreaterThanZero(c)
		for i := 0; i <= dnet4.NN; i++ {
			p.Srm[i][j] = true
		}
		if p.Level2 {
			for i := 1; i <= dnet4.NA; i++ {
				p.ASrm[i][j] = true
			}
		}
	}
}

// downAdjacencyAssociatedWithCircuit is the ProcessRouterAdjacencies
// visitor used by processCircuitDown, matching
// DownAdjacencyAssociatedWithCircuit. It always continues the walk.
func (p *Process) downAdjacencyAssociatedWithCircuit(a *adjacency.Adjacency, c adjacency.Circuit) bool {
	if a.Circuit == c {
		p.Adjacencies.AdjacencyDown(a)
	}
	return true
}

// checkCircuitCostGreaterThanZero panics if circuit goes up with a
// non-positive cost, matching CheckCircuitCostGreaterThanZero's fatal
// exit: a zero-or-negative cost circuit would corrupt every shortest
// path computed over it, so the decision process cannot proceed.
func (p *Process) checkCircuitCostGreaterThanZero(c adjacency.Circuit) {
	if c.Cost() <= 0 {
		if p.log != nil {
			p.log.Error("decision: circuit cost must be greater than 0 when circuit goes up")
		}
		panic("decision: circuit cost must be greater than 0 when circuit goes up")
	}
}

// TickT1 runs the periodic (T1-interval) non-broadcast readvertisement
// sweep and subsequent route recomputation, matching T1TimerProcess.
func (p *Process) TickT1() {
	p.Check("")

	for j := 1; j <= dnet4.NC; j++ {
		if p.Circuits == nil {
			break
		}
		c := p.Circuits.Circuit(j)
		if c == nil {
			continue
		}
		a := p.Adjacencies.GetAdjacency(j)
		if !c.Broadcast() && (a == nil || a.Kind != adjacency.KindEndnode) {
			for i := 0; i <= dnet4.NN; i++ {
				p.Srm[i][j] = true
			}
		}
		if p.Level2 && a != nil && a.Kind == adjacency.KindLevel2Router && !c.Broadcast() {
			for i := 0; i <= dnet4.NA; i++ {
				p.ASrm[i][j] = true
			}
		}
	}

	p.Routes(0, dnet4.NN)
	if p.Level2 {
		p.ARoutes(1, dnet4.NA)
	}
}

// TickBCT1 runs the periodic (BCT1-interval) broadcast readvertisement
// sweep, matching BCT1TimerProcess.
func (p *Process) TickBCT1() {
	p.Check("")

	if p.Circuits == nil {
		return
	}
	for j := 1; j <= dnet4.NC; j++ {
		c := p.Circuits.Circuit(j)
		if c == nil || !c.Broadcast() {
			continue
		}
		for i := 0; i <= dnet4.NN; i++ {
			p.Srm[i][j] = true
		}
		if p.Level2 {
			for i := 0; i <= dnet4.NA; i++ {
				p.ASrm[i][j] = true
			}
		}
	}
}
