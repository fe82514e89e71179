// Package decision implements the DECnet Phase IV routing decision
// process: the Hop/Cost (and, for level-2 routers, AHop/ACost) matrices
// indexed by destination and output adjacency, and the Routes/ARoutes
// algorithms that turn them into per-destination reachability and a
// chosen output adjacency.
package decision

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// CircuitSet looks up a circuit by its 1-based slot, letting the decision
// process walk Circuits[j] the way the reference implementation's global
// circuit table does, without this package importing the circuit package
// and creating an import cycle (circuit will call into decision on
// circuit/adjacency state changes).
type CircuitSet interface {
	// Circuit returns the circuit at 1-based slot, or nil if that slot is
	// not presently assigned to a circuit.
	Circuit(slot int) adjacency.Circuit
}

// Process is one router's decision process: its routing matrices plus the
// collaborators (adjacency table, circuit lookup) it reads when
// recomputing routes. The zero value is not ready for use; construct with
// [NewProcess].
type Process struct {
	// Self is this node's own DECnet address.
	Self dnet4.Address
	// Level2 is true if this node routes between areas (a level-2
	// router) as well as within its own area.
	Level2 bool

	Adjacencies *adjacency.Table
	Circuits    CircuitSet

	// Hop and Cost are indexed [destination node][output slot], output
	// slot 0..NC+NBRA (column 0 reserved for the self/attached-L2
	// pseudo-destination).
	Hop, Cost [dnet4.NN + 1][dnet4.OutputSlots]uint16
	// AHop and ACost are the level-2 equivalents, indexed [area][output slot].
	AHop, ACost [dnet4.NA + 1][dnet4.OutputSlots]uint16

	Minhop, Mincost [dnet4.NN + 1]uint16
	// OA is the chosen output slot per destination; meaningful only when
	// Reach[i] is true.
	OA    [dnet4.NN + 1]int
	Reach [dnet4.NN + 1]bool

	AMinhop, AMincost [dnet4.NA + 1]uint16
	AOA               [dnet4.NA + 1]int
	AReach            [dnet4.NA + 1]bool

	// Srm and ASrm are the send-routing-message matrices: Srm[i][k] set
	// means the update process must re-advertise destination i over
	// circuit slot k on its next tick. Indexed by circuit slot 1..NC.
	Srm  [dnet4.NN + 1][dnet4.NC + 1]bool
	ASrm [dnet4.NA + 1][dnet4.NC + 1]bool

	// AttachedFlg is true iff this level-2 node currently has a usable
	// path to at least one area other than its own.
	AttachedFlg bool

	log *slog.Logger
}

// NewProcess builds a decision process for self, seeds every matrix entry
// to the unreached state, fixes up the identity column, and runs the
// initial Routes()/ARoutes() pass, mirroring InitialiseDecisionProcess.
func NewProcess(self dnet4.Address, level2 bool, adjacencies *adjacency.Table, circuits CircuitSet) *Process {
	p := &Process{Self: self, Level2: level2, Adjacencies: adjacencies, Circuits: circuits}
	for i := range p.Hop {
		for j := range p.Hop[i] {
			p.Hop[i][j] = dnet4.Infh
			p.Cost[i][j] = dnet4.Infc
		}
		p.Minhop[i] = dnet4.Infh
		p.Mincost[i] = dnet4.Infc
	}
	for i := range p.AHop {
		for j := range p.AHop[i] {
			p.AHop[i][j] = dnet4.Infh
			p.ACost[i][j] = dnet4.Infc
		}
		p.AMinhop[i] = dnet4.Infh
		p.AMincost[i] = dnet4.Infc
	}
	p.Hop[self.Node][0] = 0
	p.Cost[self.Node][0] = 0
	if level2 {
		p.AHop[self.Area][0] = 0
		p.ACost[self.Area][0] = 0
	}

	p.Routes(0, dnet4.NN)
	if level2 {
		p.ARoutes(1, dnet4.NA)
	}
	return p
}

// SetLogger attaches a logger for trace output.
func (p *Process) SetLogger(log *slog.Logger) { p.log = log }
