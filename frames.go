package dnet4

import (
	"encoding/binary"

	"github.com/soypat/dnet4/ethernet"
)

// minEthFrameLen is the minimum transmitted Ethernet frame length for a
// DECnet packet; shorter frames are zero-padded on emit (spec.md §4.1).
const minEthFrameLen = 128

// EthFrame wraps an [ethernet.Frame] carrying a DECnet Phase IV payload.
// DECnet-over-Ethernet inserts its own 16-bit little-endian payload length
// immediately after the Ethernet header, ahead of the DECnet message
// itself, independent of the Ethernet EtherType/size field.
type EthFrame struct {
	eth ethernet.Frame
}

// NewEthFrame wraps buf, which must be at least large enough to hold an
// Ethernet header plus the 2-byte DECnet length prefix.
func NewEthFrame(buf []byte) (EthFrame, error) {
	eth, err := ethernet.NewFrame(buf)
	if err != nil {
		return EthFrame{}, ErrShortFrame
	}
	if len(buf) < eth.HeaderLength()+2 {
		return EthFrame{}, ErrShortFrame
	}
	return EthFrame{eth: eth}, nil
}

// IsDecnet reports whether the wrapped frame's EtherType is
// [ethernet.TypeDECnetPhase4].
func (f EthFrame) IsDecnet() bool {
	return f.eth.EtherTypeOrSize() == ethernet.TypeDECnetPhase4
}

// Destination returns the frame's destination hardware address.
func (f EthFrame) Destination() *[6]byte { return f.eth.DestinationHardwareAddr() }

// Source returns the frame's source hardware address.
func (f EthFrame) Source() *[6]byte { return f.eth.SourceHardwareAddr() }

// PayloadLength returns the DECnet-specific length prefix, in bytes, of
// the DECnet message following it.
func (f EthFrame) PayloadLength() int {
	hl := f.eth.HeaderLength()
	return int(binary.LittleEndian.Uint16(f.eth.RawData()[hl : hl+2]))
}

// SetPayloadLength sets the DECnet length prefix.
func (f EthFrame) SetPayloadLength(n int) {
	hl := f.eth.HeaderLength()
	binary.LittleEndian.PutUint16(f.eth.RawData()[hl:hl+2], uint16(n))
}

// Payload returns the DECnet message bytes, validated against the captured
// buffer length: a stated length exceeding what was actually captured is
// rejected (spec.md §4.1).
func (f EthFrame) Payload() ([]byte, error) {
	hl := f.eth.HeaderLength()
	start := hl + 2
	n := f.PayloadLength()
	buf := f.eth.RawData()
	if start+n > len(buf) {
		return nil, ErrShortFrame
	}
	return buf[start : start+n], nil
}

// AppendEthFrame builds a complete DECnet-over-Ethernet frame into dst:
// Ethernet header (dst/src/ethertype) + DECnet length prefix + payload,
// zero-padded up to the minimum transmitted frame length.
func AppendEthFrame(dst []byte, dstHW, srcHW [6]byte, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, dstHW[:]...)
	dst = append(dst, srcHW[:]...)
	var etBuf [2]byte
	binary.BigEndian.PutUint16(etBuf[:], uint16(ethernet.TypeDECnetPhase4))
	dst = append(dst, etBuf[:]...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, payload...)
	for len(dst)-start < minEthFrameLen {
		dst = append(dst, 0)
	}
	return dst
}

// ShortDataFrame is a typed view over a 6-byte-header short-format data
// message: flags, 2-byte dst, 2-byte src, 1-byte forwarding/visit count.
type ShortDataFrame struct{ buf []byte }

const shortDataHeaderLen = 6

// NewShortDataFrame wraps buf as a short-data message.
func NewShortDataFrame(buf []byte) (ShortDataFrame, error) {
	if len(buf) < shortDataHeaderLen {
		return ShortDataFrame{}, ErrShortFrame
	}
	return ShortDataFrame{buf: buf}, nil
}

func (f ShortDataFrame) Flags() MessageFlag { return MessageFlag(f.buf[0]) }
func (f ShortDataFrame) Destination() Address {
	return DecodeAddress(binary.LittleEndian.Uint16(f.buf[1:3]))
}
func (f ShortDataFrame) Source() Address {
	return DecodeAddress(binary.LittleEndian.Uint16(f.buf[3:5]))
}

// VisitCount returns the combined forwarding-flags/visit-count byte's
// low 6 bits (the visit count); the two high bits hold the
// return-to-sender and return-to-sender-request flags.
func (f ShortDataFrame) VisitCount() uint8    { return f.buf[5] & 0x3F }
func (f ShortDataFrame) ReturnToSender() bool { return f.buf[5]&0x40 != 0 }
func (f ShortDataFrame) RTSRequest() bool     { return f.buf[5]&0x80 != 0 }
func (f ShortDataFrame) Payload() []byte      { return f.buf[shortDataHeaderLen:] }

func (f ShortDataFrame) SetDestination(a Address) {
	binary.LittleEndian.PutUint16(f.buf[1:3], a.Encode())
}
func (f ShortDataFrame) SetSource(a Address) {
	binary.LittleEndian.PutUint16(f.buf[3:5], a.Encode())
}
func (f ShortDataFrame) SetVisitFlags(visits uint8, rts, rtsRequest bool) {
	b := visits & 0x3F
	if rts {
		b |= 0x40
	}
	if rtsRequest {
		b |= 0x80
	}
	f.buf[5] = b
}

// LongDataFrame is a typed view over a 21-byte-header long-format data
// message (spec.md §4.1).
type LongDataFrame struct{ buf []byte }

const longDataHeaderLen = 21

// NewLongDataFrame wraps buf as a long-data message.
func NewLongDataFrame(buf []byte) (LongDataFrame, error) {
	if len(buf) < longDataHeaderLen {
		return LongDataFrame{}, ErrShortFrame
	}
	return LongDataFrame{buf: buf}, nil
}

func (f LongDataFrame) Flags() MessageFlag { return MessageFlag(f.buf[0]) }

func (f LongDataFrame) Destination() Address {
	return Address{Area: f.buf[1] & 0x3F, Node: uint16(f.buf[3]) | uint16(f.buf[4])<<8}
}
func (f LongDataFrame) Source() Address {
	return Address{Area: f.buf[9] & 0x3F, Node: uint16(f.buf[11]) | uint16(f.buf[12])<<8}
}
func (f LongDataFrame) SetDestination(a Address) {
	f.buf[1] = a.Area & 0x3F
	f.buf[2] = 0
	f.buf[3] = byte(a.Node)
	f.buf[4] = byte(a.Node >> 8)
	f.buf[5], f.buf[6], f.buf[7], f.buf[8] = 0, 0, 0, 0
}
func (f LongDataFrame) SetSource(a Address) {
	f.buf[9] = a.Area & 0x3F
	f.buf[10] = 0
	f.buf[11] = byte(a.Node)
	f.buf[12] = byte(a.Node >> 8)
	f.buf[13], f.buf[14], f.buf[15], f.buf[16] = 0, 0, 0, 0
}

// VisitCount is the nl2/visit_ct field pair; visit count is tracked here,
// nl2 (the "number of level-2 hops") is preserved for completeness.
func (f LongDataFrame) Nl2() uint8        { return f.buf[17] }
func (f LongDataFrame) VisitCount() uint8 { return f.buf[18] }
func (f LongDataFrame) SetVisitCount(v uint8) { f.buf[18] = v }
func (f LongDataFrame) ServiceClass() uint8 { return f.buf[19] }
func (f LongDataFrame) ProtocolType() uint8 { return f.buf[20] }
func (f LongDataFrame) Payload() []byte     { return f.buf[longDataHeaderLen:] }

func (f LongDataFrame) ReturnToSender() bool { return f.buf[0]&0x20 != 0 }
func (f LongDataFrame) RTSRequest() bool     { return f.buf[0]&0x10 != 0 }
func (f LongDataFrame) IntraEthernet() bool  { return f.buf[0]&0x08 != 0 }
func (f LongDataFrame) SetFlagBits(rts, rtsRequest, intraEth bool) {
	b := f.buf[0] & 0x07 // preserve category bits.
	if rts {
		b |= 0x20
	}
	if rtsRequest {
		b |= 0x10
	}
	if intraEth {
		b |= 0x08
	}
	f.buf[0] = b
}

// AppendLongDataHeader writes a full 21-byte long-data header into dst.
func AppendLongDataHeader(dst []byte, dst_, src Address, rts, rtsRequest, intraEth bool, visits uint8) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, longDataHeaderLen)...)
	f := LongDataFrame{buf: dst[start:]}
	f.SetFlagBits(rts, rtsRequest, intraEth)
	f.buf[0] |= 0x06 // category = long data (low 3 bits = 6).
	f.SetDestination(dst_)
	f.SetSource(src)
	f.SetVisitCount(visits)
	return dst
}

// RouterHello is a typed view over an Ethernet router-hello message.
//
// Wire layout (offsets from the start of the DECnet payload, all
// multi-byte fields little-endian):
//
//	0       flags (control, subtype = router-hello)
//	1       ti-info (router level: 0=endnode,1=L2,2=L1)
//	2       priority
//	3,4,5   version (major, eco, user)
//	6,7     blocksize
//	8,9     hello timer period (seconds)
//	10      reserved
//	11      e-list length (fixed-header length marker)
//	12      rs-list length in bytes
//	13..    rs-list: repeating {6-byte Ethernet id, priority+state byte}
type RouterHello struct{ buf []byte }

const routerHelloHeaderLen = 13

func NewRouterHello(buf []byte) (RouterHello, error) {
	if len(buf) < routerHelloHeaderLen {
		return RouterHello{}, ErrShortFrame
	}
	return RouterHello{buf: buf}, nil
}

func (h RouterHello) Flags() MessageFlag { return MessageFlag(h.buf[0]) }
func (h RouterHello) TIInfo() uint8      { return h.buf[1] }
func (h RouterHello) Priority() uint8    { return h.buf[2] }
func (h RouterHello) Version() (major, eco, user uint8) {
	return h.buf[3], h.buf[4], h.buf[5]
}
func (h RouterHello) Blocksize() uint16 { return binary.LittleEndian.Uint16(h.buf[6:8]) }
func (h RouterHello) HelloTimer() uint16 {
	return binary.LittleEndian.Uint16(h.buf[8:10])
}
func (h RouterHello) elistLen() uint8  { return h.buf[11] }
func (h RouterHello) rslistLen() uint8 { return h.buf[12] }

// RSListLen returns the number of RS-LIST entries.
func (h RouterHello) RSListLen() int { return int(h.rslistLen()) / 7 }

// RSListEntry returns the i'th RS-LIST entry's peer Ethernet address and
// priority/state byte. High bit of the state byte set means Up, clear
// means Initialising (per the original's RS-LIST state encoding).
func (h RouterHello) RSListEntry(i int) (peer [6]byte, priorityState uint8) {
	off := routerHelloHeaderLen + i*7
	copy(peer[:], h.buf[off:off+6])
	priorityState = h.buf[off+6]
	return peer, priorityState
}

// Validate checks the structural invariants spec.md §4.1 requires:
// elistLen >= 8, rslistlen divisible by 7, elistLen == rslistlen + 8.
func (h RouterHello) Validate() error {
	el, rl := int(h.elistLen()), int(h.rslistLen())
	if el < 8 {
		return ErrBadRSList
	}
	if rl%7 != 0 {
		return ErrBadRSList
	}
	if el != rl+8 {
		return ErrBadRSList
	}
	if len(h.buf) < routerHelloHeaderLen+rl {
		return ErrShortFrame
	}
	return nil
}

// RouterHelloEntry is one RS-LIST entry to encode: the peer router and
// whether this node currently considers it Up (as opposed to
// Initialising).
type RouterHelloEntry struct {
	Peer [6]byte
	Up   bool
}

// AppendRouterHello builds an Ethernet router-hello message. level is 1 or
// 2 (this node's own routing level); rslist is this node's current set of
// broadcast-router adjacencies on the circuit the hello is sent over.
func AppendRouterHello(dst []byte, level int, priority byte, blocksize, helloTimer uint16, rslist []RouterHelloEntry) []byte {
	dst = append(dst, 0x01|(5<<1))
	tiinfo := byte(0)
	switch level {
	case 2:
		tiinfo = 1
	case 1:
		tiinfo = 2
	}
	dst = append(dst, tiinfo, priority, 2, 0, 0)
	var blkBuf, helloBuf [2]byte
	binary.LittleEndian.PutUint16(blkBuf[:], blocksize)
	binary.LittleEndian.PutUint16(helloBuf[:], helloTimer)
	dst = append(dst, blkBuf[:]...)
	dst = append(dst, helloBuf[:]...)
	dst = append(dst, 0) // reserved.
	rslistLen := len(rslist) * 7
	dst = append(dst, byte(rslistLen+8), byte(rslistLen))
	for _, e := range rslist {
		dst = append(dst, e.Peer[:]...)
		state := byte(0)
		if e.Up {
			state = 0x80
		}
		dst = append(dst, state)
	}
	return dst
}

// EndnodeHello is a typed view over an Ethernet endnode-hello message:
// flags, version and hello timer, followed by reserved bytes. It carries
// no RS-LIST.
type EndnodeHello struct{ buf []byte }

const endnodeHelloHeaderLen = 11

func NewEndnodeHello(buf []byte) (EndnodeHello, error) {
	if len(buf) < endnodeHelloHeaderLen {
		return EndnodeHello{}, ErrShortFrame
	}
	return EndnodeHello{buf: buf}, nil
}

func (h EndnodeHello) Flags() MessageFlag { return MessageFlag(h.buf[0]) }
func (h EndnodeHello) Version() (major, eco, user uint8) {
	return h.buf[1], h.buf[2], h.buf[3]
}
func (h EndnodeHello) HelloTimer() uint16 { return binary.LittleEndian.Uint16(h.buf[4:6]) }

// AppendEndnodeHello builds an Ethernet endnode-hello message, zero-filling
// the reserved trailer bytes up to endnodeHelloHeaderLen.
func AppendEndnodeHello(dst []byte, helloTimer uint16) []byte {
	start := len(dst)
	dst = append(dst, 0x01|(6<<1), 2, 0, 0)
	var helloBuf [2]byte
	binary.LittleEndian.PutUint16(helloBuf[:], helloTimer)
	dst = append(dst, helloBuf[:]...)
	for len(dst)-start < endnodeHelloHeaderLen {
		dst = append(dst, 0)
	}
	return dst
}

// RoutingSegment is one {count, start, hop/cost words} block within a
// routing-update message.
type RoutingSegment struct {
	Start uint16
	// Entries holds raw (hop<<10 | cost) words for [Start, Start+len(Entries)).
	Entries []uint16
}

// HopCost decodes a routing-segment entry word.
func HopCost(word uint16) (hop uint8, cost uint16) {
	return uint8(word >> 10), word & 0x3FF
}

// EncodeHopCost packs hop/cost into a single routing-segment word.
func EncodeHopCost(hop uint8, cost uint16) uint16 {
	return uint16(hop&0x3F)<<10 | (cost & 0x3FF)
}

// RoutingMessage is a typed view over an L1 or L2 routing-update message:
// a flags byte, then a run of segments, then a trailing 16-bit checksum.
type RoutingMessage struct{ buf []byte }

func NewRoutingMessage(buf []byte) (RoutingMessage, error) {
	if len(buf) < 3 { // flags + checksum minimum.
		return RoutingMessage{}, ErrShortFrame
	}
	return RoutingMessage{buf: buf}, nil
}

func (m RoutingMessage) Flags() MessageFlag { return MessageFlag(m.buf[0]) }

// Checksum returns the trailing 16-bit checksum word.
func (m RoutingMessage) Checksum() uint16 {
	return binary.LittleEndian.Uint16(m.buf[len(m.buf)-2:])
}

// Segments parses every segment in the message, calling fn for each. It
// stops and returns an error if a segment's declared count runs past the
// remaining buffer.
func (m RoutingMessage) Segments(fn func(seg RoutingSegment)) error {
	body := m.buf[1 : len(m.buf)-2]
	for len(body) > 0 {
		if len(body) < 4 {
			return ErrBadSegment
		}
		count := binary.LittleEndian.Uint16(body[0:2])
		start := binary.LittleEndian.Uint16(body[2:4])
		body = body[4:]
		need := int(count) * 2
		if need > len(body) {
			return ErrBadSegment
		}
		entries := make([]uint16, count)
		for i := range entries {
			entries[i] = binary.LittleEndian.Uint16(body[i*2 : i*2+2])
		}
		fn(RoutingSegment{Start: start, Entries: entries})
		body = body[need:]
	}
	return nil
}

// Validate verifies the trailing checksum: ones'-complement sum, seed 1,
// over every 16-bit word in the message excluding the checksum itself.
func (m RoutingMessage) Validate() error {
	if len(m.buf) < 3 || (len(m.buf)-3)%2 != 0 {
		return ErrBadSegment
	}
	var c Checksum
	c.Reset()
	body := m.buf[1 : len(m.buf)-2]
	for i := 0; i+1 < len(body); i += 2 {
		c.Write(binary.LittleEndian.Uint16(body[i : i+2]))
	}
	if c.Sum16() != m.Checksum() {
		return ErrBadChecksum
	}
	return nil
}

// AppendRoutingMessage builds a routing-update message from segments,
// computing and appending the trailing checksum.
func AppendRoutingMessage(dst []byte, category Category, segs []RoutingSegment) []byte {
	start := len(dst)
	var flag byte = 0x01 // control bit set.
	switch category {
	case CategoryL1Routing:
		flag |= 3 << 1
	case CategoryL2Routing:
		flag |= 4 << 1
	}
	dst = append(dst, flag)
	for _, seg := range segs {
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(seg.Entries)))
		binary.LittleEndian.PutUint16(hdr[2:4], seg.Start)
		dst = append(dst, hdr[:]...)
		for _, w := range seg.Entries {
			var wb [2]byte
			binary.LittleEndian.PutUint16(wb[:], w)
			dst = append(dst, wb[:]...)
		}
	}
	var c Checksum
	c.Reset()
	body := dst[start+1:]
	for i := 0; i+1 < len(body); i += 2 {
		c.Write(binary.LittleEndian.Uint16(body[i : i+2]))
	}
	var sumBuf [2]byte
	binary.LittleEndian.PutUint16(sumBuf[:], c.Sum16())
	dst = append(dst, sumBuf[:]...)
	return dst
}

// Init is a typed view over a DDCMP-routing-layer initialization message.
type Init struct{ buf []byte }

const initHeaderLen = 11

func NewInit(buf []byte) (Init, error) {
	if len(buf) < initHeaderLen {
		return Init{}, ErrShortFrame
	}
	return Init{buf: buf}, nil
}

func (m Init) Flags() MessageFlag { return MessageFlag(m.buf[0]) }
func (m Init) SrcNode() Address {
	return DecodeAddress(binary.LittleEndian.Uint16(m.buf[1:3]))
}
func (m Init) Info() uint8           { return m.buf[3] }
func (m Init) Blocksize() uint16     { return binary.LittleEndian.Uint16(m.buf[4:6]) }
func (m Init) Version() (major, eco, user uint8) {
	return m.buf[6], m.buf[7], m.buf[8]
}

// Timer is the sender's requested routing-layer init/hello timer period,
// in seconds, to be used by the receiver as that adjacency's liveness
// period.
func (m Init) Timer() uint16 { return binary.LittleEndian.Uint16(m.buf[9:11]) }

// VerificationRequested reports bit 2 of the info byte: the peer wants us
// to follow up with a Verification message.
func (m Init) VerificationRequested() bool { return m.Info()&0x04 != 0 }

// RouterLevel decodes the info byte's 2-bit router-level field: 1 and 2
// report level-1 and level-2 router respectively (note the field's 1/2
// encoding is swapped relative to its numeric value), any other value is
// an endnode.
func (m Init) RouterLevel() (level int, isRouter bool) {
	switch m.Info() & 0x03 {
	case 1:
		return 2, true
	case 2:
		return 1, true
	default:
		return 0, false
	}
}

// AppendInit builds a routing-layer initialization message: flags,
// source node, info byte (router level packed per RouterLevel's 1/2 swap,
// bit 2 set to request verification), blocksize, routing-spec version,
// and the sender's hello/init timer period.
func AppendInit(dst []byte, src Address, level int, requestVerification bool, blocksize uint16, timer uint16) []byte {
	dst = append(dst, 0x01)
	var addrBuf [2]byte
	binary.LittleEndian.PutUint16(addrBuf[:], src.Encode())
	dst = append(dst, addrBuf[:]...)

	info := byte(0)
	switch level {
	case 2:
		info = 1
	default:
		info = 2
	}
	if requestVerification {
		info |= 0x04
	}
	dst = append(dst, info)

	var blkBuf [2]byte
	binary.LittleEndian.PutUint16(blkBuf[:], blocksize)
	dst = append(dst, blkBuf[:]...)
	dst = append(dst, 2, 0, 0) // routing spec version 2.0.0.
	var timerBuf [2]byte
	binary.LittleEndian.PutUint16(timerBuf[:], timer)
	dst = append(dst, timerBuf[:]...)
	return dst
}

// Verification is a typed view over a DDCMP-routing-layer verification
// message: flags, source node, and a fixed-length password field.
type Verification struct{ buf []byte }

const verificationHeaderLen = 3
const verificationPasswordLen = 8

func NewVerification(buf []byte) (Verification, error) {
	if len(buf) < verificationHeaderLen+verificationPasswordLen {
		return Verification{}, ErrShortFrame
	}
	return Verification{buf: buf}, nil
}

func (m Verification) Flags() MessageFlag { return MessageFlag(m.buf[0]) }
func (m Verification) SrcNode() Address {
	return DecodeAddress(binary.LittleEndian.Uint16(m.buf[1:3]))
}
func (m Verification) Password() []byte {
	return m.buf[verificationHeaderLen : verificationHeaderLen+verificationPasswordLen]
}

// AppendVerification builds a routing-layer verification message. password
// may be shorter than verificationPasswordLen; it is zero-padded to fill
// the fixed field.
func AppendVerification(dst []byte, src Address, password []byte) []byte {
	dst = append(dst, 0x03)
	var addrBuf [2]byte
	binary.LittleEndian.PutUint16(addrBuf[:], src.Encode())
	dst = append(dst, addrBuf[:]...)
	var pwBuf [verificationPasswordLen]byte
	copy(pwBuf[:], password)
	dst = append(dst, pwBuf[:]...)
	return dst
}

// HelloAndTest is a typed view over a DDCMP hello-and-test message: flags,
// source node, and test data.
type HelloAndTest struct{ buf []byte }

func NewHelloAndTest(buf []byte) (HelloAndTest, error) {
	if len(buf) < 3 {
		return HelloAndTest{}, ErrShortFrame
	}
	return HelloAndTest{buf: buf}, nil
}

func (m HelloAndTest) Flags() MessageFlag { return MessageFlag(m.buf[0]) }
func (m HelloAndTest) SrcNode() Address {
	return DecodeAddress(binary.LittleEndian.Uint16(m.buf[1:3]))
}
func (m HelloAndTest) TestData() []byte { return m.buf[3:] }

// PhaseIINodeInit is a typed view over a Phase II node-initialization
// message, recognized for backward compatibility only (spec.md §1): this
// node never performs Phase II routing, it only parses the message enough
// to log and discard it without corrupting the DDCMP init state machine.
type PhaseIINodeInit struct{ buf []byte }

const phaseIINodeInitHeaderLen = 7

func NewPhaseIINodeInit(buf []byte) (PhaseIINodeInit, error) {
	if len(buf) < phaseIINodeInitHeaderLen {
		return PhaseIINodeInit{}, ErrShortFrame
	}
	return PhaseIINodeInit{buf: buf}, nil
}

func (m PhaseIINodeInit) Flags() MessageFlag { return MessageFlag(m.buf[0]) }
func (m PhaseIINodeInit) NodeName() [6]byte {
	var name [6]byte
	copy(name[:], m.buf[1:7])
	return name
}
