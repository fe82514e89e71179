package ddcmp

import "errors"

// Synchronization bytes that begin every DDCMP message.
const (
	SYNEnq byte = 0x05 // control message
	SYNSoh byte = 0x81 // numbered data message
	SYNDle byte = 0x90 // maintenance message, unsupported
)

// MsgType identifies the control subtype carried in a control message's
// second byte.
type MsgType byte

const (
	MsgAck   MsgType = 0x01
	MsgNak   MsgType = 0x02
	MsgRep   MsgType = 0x03
	MsgStrt  MsgType = 0x06
	MsgStack MsgType = 0x07
)

func (m MsgType) String() string {
	switch m {
	case MsgAck:
		return "ACK"
	case MsgNak:
		return "NAK"
	case MsgRep:
		return "REP"
	case MsgStrt:
		return "STRT"
	case MsgStack:
		return "STACK"
	default:
		return "unknown"
	}
}

// NAK reason codes, per the header's subtype field on a NAK message.
const (
	NakReasonHeaderCRC  byte = 1
	NakReasonDataCRC    byte = 2
	NakReasonRepSeq     byte = 3
	NakReasonBufferErr  byte = 8
	NakReasonMessageHdr byte = 17
)

// station is the fixed DDCMP station address used on point-to-point links,
// where only one peer can exist on the other end of the line.
const station byte = 1

// controlHeaderLen is the length of a control message body (before its
// trailing 2-byte CRC): sync, type, subtype/reason, resp, num, addr.
const controlHeaderLen = 6

// dataHeaderLen is the length of a data message header (before payload and
// trailing CRCs): sync, count-lo, count-hi|flags, resp, num, addr.
const dataHeaderLen = 6

// appendControlMessage builds a full CRC-checked control message of msgType
// into dst. subtypeOrReason occupies byte 2 (NAK reason, or 0xC0 flags for
// STRT/STACK, or 0 for ACK/REP). resp and num occupy bytes 3 and 4
// respectively, matching each message type's actual field usage.
func appendControlMessage(dst []byte, msgType MsgType, subtypeOrReason, resp, num byte) []byte {
	start := len(dst)
	dst = append(dst, SYNEnq, byte(msgType), subtypeOrReason, resp, num, station)
	return AppendCRC16(dst, dst[start:])
}

func appendAck(dst []byte, r byte) []byte {
	return appendControlMessage(dst, MsgAck, 0, r, 0)
}

func appendNak(dst []byte, reason, r byte) []byte {
	return appendControlMessage(dst, MsgNak, reason, r, 0)
}

func appendRep(dst []byte, n byte) []byte {
	return appendControlMessage(dst, MsgRep, 0, 0, n)
}

func appendStrt(dst []byte) []byte {
	return appendControlMessage(dst, MsgStrt, 0xC0, 0, 0)
}

func appendStack(dst []byte) []byte {
	return appendControlMessage(dst, MsgStack, 0xC0, 0, 0)
}

// controlMsg holds the decoded fields of a control message's bytes after
// the leading ENQ sync byte, which the caller has already consumed to route
// here.
type controlMsg struct {
	typ             MsgType
	subtypeOrReason byte
	resp            byte
	num             byte
	addr            byte
}

var errShortControlMessage = errors.New("ddcmp: short control message")

// parseControlMessage decodes the 6-byte body that follows the leading ENQ
// sync byte of a control message (ENQ itself is not part of body).
func parseControlMessage(body []byte) (controlMsg, error) {
	if len(body) < 5 {
		return controlMsg{}, errShortControlMessage
	}
	return controlMsg{
		typ:             MsgType(body[0]),
		subtypeOrReason: body[1],
		resp:            body[2],
		num:             body[3],
		addr:            body[4],
	}, nil
}

// dataHeader is a decoded view of a numbered data message's 6-byte header
// (following the leading SOH sync byte).
type dataHeader struct {
	count byte // low 8 bits of count; parseDataHeader returns the full value.
	flags byte
	resp  byte // R: piggybacked ack of data received by sender.
	num   byte // N: sequence number of this message.
	addr  byte
}

func parseDataHeader(body []byte) (h dataHeader, count int, flags byte, err error) {
	if len(body) < 5 {
		return dataHeader{}, 0, 0, errShortControlMessage
	}
	count = int(body[0]) | int(body[1]&0x3F)<<8
	flags = (body[1] >> 6) & 3
	return dataHeader{
		count: body[0],
		flags: flags,
		resp:  body[2],
		num:   body[3],
		addr:  body[4],
	}, count, flags, nil
}

// appendDataHeader appends the 5 numbered-data-message header bytes that
// follow the leading SOH sync byte (not included here) to dst.
func appendDataHeader(dst []byte, count int, resp, num byte) []byte {
	return append(dst, byte(count), byte(count>>8)&0x3F, resp, num, station)
}
