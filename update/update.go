// Package update implements the DECnet Phase IV update process: periodic
// emission of level-1 and level-2 routing messages built from a
// [decision.Process]'s Minhop/Mincost (and, for level-2 routers,
// AMinhop/AMincost) vectors, draining the matching Srm/ASrm bits as they
// are packed into outgoing messages.
package update

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/decision"
)

// Circuit is the minimal surface the update process needs from a circuit:
// whether it is presently usable and broadcast-addressed, and a way to
// ship an assembled routing message. Send is responsible for addressing
// the message (AllRouters on broadcast circuits, the sole peer adjacency
// otherwise), matching §4.7's emission rule.
type Circuit interface {
	Slot() int
	Broadcast() bool
	Up() bool
	Send(payload []byte) error
}

// CircuitSet looks up a circuit by its 1-based slot, mirroring
// decision.CircuitSet so this package never needs to import the circuit
// package directly.
type CircuitSet interface {
	Circuit(slot int) Circuit
}

// level1BatchCount is the number of fixed-size batches the NN+1 node
// range is partitioned into. NN+1 (1024) is not a multiple of
// dnet4.Level1BatchSize (100), so the final batch is a shorter remainder
// rather than a full one.
const level1BatchCount = (dnet4.NN + dnet4.Level1BatchSize) / dnet4.Level1BatchSize

type level1Batch struct {
	start, count int
}

var level1Batches = buildLevel1Batches()

func buildLevel1Batches() [level1BatchCount]level1Batch {
	var batches [level1BatchCount]level1Batch
	for i := range batches {
		start := i * dnet4.Level1BatchSize
		count := dnet4.Level1BatchSize
		if start+count > dnet4.NN+1 {
			count = dnet4.NN + 1 - start
		}
		batches[i] = level1Batch{start: start, count: count}
	}
	return batches
}

// Process is one router's update process. The zero value is not ready
// for use; construct with [NewProcess].
type Process struct {
	Self     dnet4.Address
	Level2   bool
	Decision *decision.Process
	Circuits CircuitSet

	// level1Cursor is the next batch index to start from per circuit
	// slot, replacing the reference's raw node-number cursor: see
	// DESIGN.md for why a batch-index cursor is used instead of the
	// reference's modulo-NN+1 node-number arithmetic.
	level1Cursor [dnet4.NC + 1]int

	log *slog.Logger
}

// NewProcess builds an update process seeded so each circuit's first
// emitted level-1 batch after startup contains this node's own number,
// matching FirstLevel1Node's intent.
func NewProcess(self dnet4.Address, level2 bool, d *decision.Process, circuits CircuitSet) *Process {
	p := &Process{Self: self, Level2: level2, Decision: d, Circuits: circuits}
	firstBatch := int(self.Node) / dnet4.Level1BatchSize
	for i := range p.level1Cursor {
		p.level1Cursor[i] = firstBatch
	}
	return p
}

// SetLogger attaches a logger for trace output.
func (p *Process) SetLogger(log *slog.Logger) { p.log = log }
