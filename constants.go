// Package dnet4 implements the wire-format codec for DECnet Phase IV:
// address encoding, message framing, routing-update checksums, and typed
// views over the control and data message formats exchanged between
// routers and end nodes.
package dnet4

// Deployment-wide sizing constants. Values reflect the DEC specification;
// they are compile-time constants that size the fixed-capacity tables in
// adjacency/decision/router, and config.File does not override them.
const (
	// NC is the maximum number of circuits a router can own.
	NC = 8
	// NBRA is the maximum number of broadcast router adjacencies.
	NBRA = 32
	// NBEA is the maximum number of broadcast endnode adjacencies.
	NBEA = 64
	// NN is the maximum node number within an area.
	NN = 1023
	// NA is the maximum area number.
	NA = 63

	// OutputSlots is the width of a decision-process matrix row:
	// column 0 (self/attached pseudo-destination) plus one column per
	// circuit slot (1..NC) plus one per broadcast-router slot (NC+1..NC+NBRA).
	OutputSlots = NC + NBRA + 1

	// AdjacencySlots is the total adjacency table capacity: NC circuit
	// slots, NBRA broadcast-router slots, one transient overflow slot,
	// and NBEA broadcast-endnode slots.
	AdjacencySlots = NC + NBRA + 1 + NBEA

	// OverflowSlot is the 1-based slot index of the transient eviction
	// overflow slot, used only during PurgeLowestPriorityAdjacency.
	OverflowSlot = NC + NBRA + 1

	// EndnodeSlotBase is the 1-based slot index immediately before the
	// first broadcast-endnode slot.
	EndnodeSlotBase = NC + NBRA + 1
)

// Hop/cost ceilings and infinity sentinels. Infh/Infc are distinct from,
// and strictly greater than, any valid Maxh/Maxc value.
const (
	Maxh  = 30
	Maxv  = 30
	Maxc  = 1023
	AMaxh = 30
	AMaxc = 1023

	Infh uint16 = 31
	Infc uint16 = 1023
)

// Timer durations (seconds) and batching parameters.
const (
	T1              = 600
	T2              = 5
	T3              = 15
	BCT1            = 10
	BCT3Mult        = 2
	T3Mult          = 3
	RecallTimer     = 60
	DRDelay         = 30
	Level1BatchSize = 100

	// MaxTransmitQueueLen bounds the DDCMP control block's transmit ring.
	MaxTransmitQueueLen = 5

	// ReplyTimerSeconds and AckWaitTimerSeconds are DDCMP's two built-in
	// clocks (spec.md §4.2).
	ReplyTimerSeconds   = 3
	AckWaitTimerSeconds = 15
)

// Priority bounds for router adjacencies and this node's own priority.
const (
	MinPriority = 0
	MaxPriority = 127
)
