package decision

import (
	"fmt"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// columnID orders the adjacency occupying output slot col as a single
// comparable integer, for Rowmin's tie-break. Column 0 is the pseudo-
// destination and never has a real adjacency; it sorts before every real
// id so a genuine adjacency always wins a tie against it. The reference
// implementation instead dereferences adjacencies[-1] when the current
// winning column is 0 (GetAdjacency(0) underflows its 1-based offset);
// this is undefined behavior there, not an intentional id, so it is not
// reproduced.
func columnID(col int, adjacencies *adjacency.Table) int {
	if col <= 0 {
		return -1
	}
	a := adjacencies.GetAdjacency(col)
	if a == nil || a.Kind == adjacency.KindUnused {
		return -1
	}
	return int(a.ID.Area)*1024 + int(a.ID.Node)
}

// rowmin finds the output slot j in 0..NC+NBRA minimizing row[j], tie-
// breaking in favor of the greater DECnet id of the adjacency presently
// occupying the column, matching Rowmin. prevWinner is the row's current
// VECT[i] entry; it only seeds winner, and since every row[j] is below the
// 0xFFFF starting minimum, column 0 replaces it before any tie-break, so it
// does not affect the result.
func rowmin(row *[dnet4.OutputSlots]uint16, adjacencies *adjacency.Table, prevWinner int) (minimum uint16, winner int) {
	minimum = ^uint16(0)
	winner = prevWinner
	for j := 0; j < dnet4.OutputSlots; j++ {
		if row[j] < minimum || (row[j] == minimum && columnID(j, adjacencies) > columnID(winner, adjacencies)) {
			minimum = row[j]
			winner = j
		}
	}
	return minimum, winner
}

// minimize computes Rowmin for row i of m, clamping to infinity (p2) once
// it exceeds the configured ceiling p1, and records the result in v/vect,
// matching Minimize.
func minimize(i int, m *[dnet4.OutputSlots]uint16, v []uint16, p1, p2 uint16, vect []int, adjacencies *adjacency.Table) {
	minimum, winner := rowmin(m, adjacencies, vect[i])
	if minimum > p1 {
		minimum = p2
	}
	v[i] = minimum
	vect[i] = winner
}

// Routes recomputes reachability and output adjacency for every
// destination in [firstDest, lastDest], matching Routes(FirstDest,
// LastDest). Destination 0 is the nearest-attached-level-2-router
// pseudo-destination.
func (p *Process) Routes(firstDest, lastDest int) {
	for i := firstDest; i <= lastDest; i++ {
		oldHop, oldCost := p.Minhop[i], p.Mincost[i]

		minimize(i, &p.Cost[i], p.Mincost[:], dnet4.Maxc, dnet4.Infc, p.OA[:], p.Adjacencies)
		col := p.OA[i]
		p.Minhop[i] = p.Hop[i][col]
		if p.Minhop[i] > dnet4.Maxh {
			p.Minhop[i] = dnet4.Infh
		}

		if col >= 1 && col <= dnet4.NC && p.Circuits != nil {
			if c := p.Circuits.Circuit(col); c != nil && c.Kind() == adjacency.CircuitEthernet {
				if end := p.Adjacencies.FindEndnodeAdjacency(c, uint16(i)); end != nil {
					p.OA[i] = end.Slot
				}
			}
		}

		if p.Minhop[i] == dnet4.Infh || p.Mincost[i] == dnet4.Infc {
			p.Reach[i] = false
			p.Minhop[i] = dnet4.Infh
			p.Mincost[i] = dnet4.Infc
		} else {
			p.Reach[i] = true
		}

		if p.Minhop[i] != oldHop || p.Mincost[i] != oldCost {
			for k := 1; k <= dnet4.NC; k++ {
				p.Srm[i][k] = true
			}
		}
		p.traceRoute("decision: route", i, p.Minhop[i], p.Mincost[i], p.OA[i], p.Reach[i])
	}
}

// ARoutes recomputes reachability and output adjacency for every area in
// [firstArea, lastArea], then recomputes AttachedFlg and the identity
// pseudo-destination via a Routes(0, 0) pass, matching ARoutes.
func (p *Process) ARoutes(firstArea, lastArea int) {
	for i := firstArea; i <= lastArea; i++ {
		oldHop, oldCost := p.AMinhop[i], p.AMincost[i]

		minimize(i, &p.ACost[i], p.AMincost[:], dnet4.AMaxc, dnet4.Infc, p.AOA[:], p.Adjacencies)
		col := p.AOA[i]
		p.AMinhop[i] = p.AHop[i][col]
		if p.AMinhop[i] > dnet4.AMaxh {
			p.AMinhop[i] = dnet4.Infh
		}

		if p.AMinhop[i] == dnet4.Infh || p.AMincost[i] == dnet4.Infc {
			p.AReach[i] = false
			p.AMinhop[i] = dnet4.Infh
			p.AMincost[i] = dnet4.Infc
		} else {
			p.AReach[i] = true
		}

		if p.AMinhop[i] != oldHop || p.AMincost[i] != oldCost {
			for j := 1; j <= dnet4.NC; j++ {
				isL2RouterSlot := false
				if a := p.Adjacencies.GetAdjacency(j); a != nil {
					isL2RouterSlot = a.Kind == adjacency.KindLevel2Router
				}
				isEthernet := p.Circuits != nil && func() bool {
					c := p.Circuits.Circuit(j)
					return c != nil && c.Kind() == adjacency.CircuitEthernet
				}()
				if isL2RouterSlot || isEthernet {
					p.ASrm[i][j] = true
				}
			}
		}
	}

	p.AttachedFlg = false
	p.Hop[0][0] = dnet4.Infh
	p.Cost[0][0] = dnet4.Infc
	for i := 1; i <= dnet4.NA; i++ {
		if p.AReach[i] && uint8(i) != p.Self.Area {
			p.Hop[0][0] = 0
			p.Cost[0][0] = 0
			p.AttachedFlg = true
		}
	}

	p.Routes(0, 0)
}

// Check verifies column 0 has not been corrupted in any matrix: this
// node's own row, and (for level-2 routers) the self/attached pseudo-row
// and every other area's row. detail, if non-empty, is attached to the
// panic message. A violation is fatal: the decision process cannot
// continue operating once its identity column is wrong.
func (p *Process) Check(detail string) {
	fail := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if detail != "" {
			msg += ": " + detail
		}
		panic("decision: invariant check failed: " + msg)
	}

	if p.Hop[p.Self.Node][0] != 0 || p.Cost[p.Self.Node][0] != 0 {
		fail("self node column 0 is (%d,%d), want (0,0)", p.Hop[p.Self.Node][0], p.Cost[p.Self.Node][0])
	}

	if p.Level2 {
		if p.AttachedFlg {
			if p.Hop[0][0] != 0 || p.Cost[0][0] != 0 {
				fail("attached but pseudo-destination column 0 is (%d,%d), want (0,0)", p.Hop[0][0], p.Cost[0][0])
			}
		} else if p.Hop[0][0] != dnet4.Infh || p.Cost[0][0] != dnet4.Infc {
			fail("unattached but pseudo-destination column 0 is (%d,%d), want (Infh,Infc)", p.Hop[0][0], p.Cost[0][0])
		}

		for i := 1; i <= dnet4.NA; i++ {
			if uint8(i) == p.Self.Area {
				if p.AHop[i][0] != 0 || p.ACost[i][0] != 0 {
					fail("self area %d column 0 is (%d,%d), want (0,0)", i, p.AHop[i][0], p.ACost[i][0])
				}
			} else if p.AHop[i][0] != dnet4.Infh || p.ACost[i][0] != dnet4.Infc {
				fail("area %d column 0 is (%d,%d), want (Infh,Infc)", i, p.AHop[i][0], p.ACost[i][0])
			}
		}
	}
}
