package update

import (
	"github.com/soypat/dnet4"
)

// Tick runs one periodic update pass over every up circuit, matching
// ProcessUpdateTimer.
func (p *Process) Tick() {
	if p.Circuits == nil {
		return
	}
	for j := 1; j <= dnet4.NC; j++ {
		c := p.Circuits.Circuit(j)
		if c == nil || !c.Up() {
			continue
		}
		if !p.Level2 {
			// Node level is either 1 or 2 in practice; this process is
			// only ever constructed for routing nodes (a pure endnode
			// has no update process), so level-1 update always runs.
		}
		p.processCircuitLevel1Update(c)
		if p.Level2 {
			p.processCircuitLevel2Update(c)
		}
	}
}

// processCircuitLevel1Update walks every level-1 batch exactly once,
// starting from the circuit's rolling cursor, emitting a routing message
// per batch that has at least one pending Srm bit, then rotates the
// cursor by one batch so the next tick starts somewhere else, matching
// ProcessCircuitLevel1Update's loss-recovery intent.
func (p *Process) processCircuitLevel1Update(c Circuit) {
	slot := c.Slot()
	start := p.level1Cursor[slot]
	cursor := start
	for {
		b := level1Batches[cursor]
		if p.level1UpdateRequired(slot, b.start, b.count) {
			p.sendLevel1(c, b.start, b.count)
		}
		cursor = (cursor + 1) % level1BatchCount
		if cursor == start {
			break
		}
	}
	p.level1Cursor[slot] = (cursor + 1) % level1BatchCount
}

// processCircuitLevel2Update emits a single level-2 routing message
// covering 1..NA if any ASrm bit for this circuit is pending, matching
// ProcessCircuitLevel2Update.
func (p *Process) processCircuitLevel2Update(c Circuit) {
	slot := c.Slot()
	if p.level2UpdateRequired(slot) {
		p.sendLevel2(c)
	}
}

// level1UpdateRequired reports whether any Srm bit in [from, from+count)
// is set for slot, clearing each bit it finds, matching
// Level1UpdateRequired.
func (p *Process) level1UpdateRequired(slot, from, count int) bool {
	required := false
	for i := from; i < from+count; i++ {
		if p.Decision.Srm[i][slot] {
			required = true
			p.Decision.Srm[i][slot] = false
		}
	}
	return required
}

// level2UpdateRequired reports whether any ASrm bit is set for slot over
// 1..NA, clearing each bit it finds, matching Level2UpdateRequired.
func (p *Process) level2UpdateRequired(slot int) bool {
	required := false
	for i := 1; i <= dnet4.NA; i++ {
		if p.Decision.ASrm[i][slot] {
			required = true
			p.Decision.ASrm[i][slot] = false
		}
	}
	return required
}

func (p *Process) sendLevel1(c Circuit, from, count int) {
	segs := [1]dnet4.RoutingSegment{{Start: uint16(from), Entries: make([]uint16, count)}}
	for i := 0; i < count; i++ {
		segs[0].Entries[i] = dnet4.EncodeHopCost(uint8(p.Decision.Minhop[from+i]), p.Decision.Mincost[from+i])
	}
	payload := dnet4.AppendRoutingMessage(nil, dnet4.CategoryL1Routing, segs[:])
	if err := c.Send(payload); err != nil {
		p.traceSendError("update: level-1 send failed", c.Slot(), err)
	}
}

func (p *Process) sendLevel2(c Circuit) {
	entries := make([]uint16, dnet4.NA)
	for i := 1; i <= dnet4.NA; i++ {
		entries[i-1] = dnet4.EncodeHopCost(uint8(p.Decision.AMinhop[i]), p.Decision.AMincost[i])
	}
	segs := [1]dnet4.RoutingSegment{{Start: 1, Entries: entries}}
	payload := dnet4.AppendRoutingMessage(nil, dnet4.CategoryL2Routing, segs[:])
	if err := c.Send(payload); err != nil {
		p.traceSendError("update: level-2 send failed", c.Slot(), err)
	}
}
