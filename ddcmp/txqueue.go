package ddcmp

import (
	"errors"

	"github.com/soypat/dnet4"
)

// MaxTransmitQueueLen bounds the number of unacknowledged data messages a
// line can have outstanding at once, mirroring DDCMP's small window.
const MaxTransmitQueueLen = dnet4.MaxTransmitQueueLen

// MaxDataLength is the largest payload a single entry can carry.
const MaxDataLength = 576

// entry is one slot of the transmit queue: a fully framed data message
// (header, payload, and both CRCs) ready to hand to the line, plus the
// sequence number it was sent under so acks/naks can address it.
type entry struct {
	inUse bool
	num   byte // N: sequence number assigned to this message.
	msg   []byte
	n     int // length of msg actually in use.
}

// txQueue is a fixed-capacity ring of outstanding data messages, mirroring
// the DDCMP reference implementation's singly-linked array of slots walked
// from the last allocated entry looking for a free one.
type txQueue struct {
	slots        [MaxTransmitQueueLen]entry
	firstUnacked int // index of the oldest outstanding entry.
	lastAlloc    int // index of the most recently allocated entry.
	anyAllocated bool
}

func (q *txQueue) reset() {
	*q = txQueue{}
	for i := range q.slots {
		q.slots[i].inUse = false
		if q.slots[i].msg == nil {
			q.slots[i].msg = make([]byte, 0, MaxDataLength+10)
		}
	}
}

var errTransmitQueueFull = errors.New("ddcmp: transmit queue full")

// alloc finds the next free slot starting the search from lastAlloc+1,
// wrapping around, matching AllocateNextTransmitQueueEntry's scan order.
func (q *txQueue) alloc() (*entry, error) {
	start := 0
	if q.anyAllocated {
		start = (q.lastAlloc + 1) % MaxTransmitQueueLen
	}
	for i := 0; i < MaxTransmitQueueLen; i++ {
		idx := (start + i) % MaxTransmitQueueLen
		if !q.slots[idx].inUse {
			q.slots[idx].inUse = true
			q.lastAlloc = idx
			q.anyAllocated = true
			return &q.slots[idx], nil
		}
	}
	return nil, errTransmitQueueFull
}

// firstUnacknowledged returns the oldest still-outstanding entry, or nil if
// none is pending retransmission.
func (q *txQueue) firstUnacknowledged() *entry {
	e := &q.slots[q.firstUnacked]
	if !e.inUse {
		return nil
	}
	return e
}

// free releases the oldest outstanding entry, advancing firstUnacked unless
// it is also the most recently allocated entry (queue now empty).
func (q *txQueue) free() {
	q.slots[q.firstUnacked].inUse = false
	if q.firstUnacked != q.lastAlloc {
		q.firstUnacked = (q.firstUnacked + 1) % MaxTransmitQueueLen
	}
}

// completeThrough frees every outstanding entry whose sequence number is
// less than or equal to resp, mod-256 aware, mirroring CompleteMessageAction.
func (q *txQueue) completeThrough(resp byte) {
	for {
		e := q.firstUnacknowledged()
		if e == nil {
			return
		}
		if mod256Cmp(e.num, resp) <= 0 {
			q.free()
		} else {
			return
		}
	}
}

// mod256Cmp compares a and b as sequence numbers in a mod-256 circular
// space bounded by a window no larger than MaxTransmitQueueLen, matching
// Mod256Cmp: returns -1 if a precedes b, 0 if equal, 1 if a follows b.
func mod256Cmp(a, b byte) int {
	abdiff := int(b) - int(a)
	badiff := int(a) - int(b)
	var ans int
	switch {
	case abdiff == 0:
		ans = 0
	case abdiff < 0:
		ans = -1
	default:
		ans = 1
	}
	if abs(badiff) <= MaxTransmitQueueLen {
		ans = -ans
	}
	return ans
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
