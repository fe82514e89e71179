package circuit

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/ethernet"
)

// EthernetSocket is the raw-socket surface an EthernetLine frames and
// unframes DECnet traffic over: internal.Bridge (AF_PACKET on a real NIC)
// or internal.Tap (a TUN/TAP device) both satisfy it.
type EthernetSocket interface {
	Write(frame []byte) (int, error)
	Read(frame []byte) (int, error)
	Close() error
	HardwareAddress6() (hw [6]byte, err error)
}

// EthernetLine is a circuit.Line over a broadcast Ethernet (or
// Ethernet-over-UDP bridge) socket: it wraps outgoing payloads in an
// Ethernet header addressed per Send/SendTo/SendMulticast's destination
// rule and hands complete frames to Deliver as they're read off the
// socket. Grounded on circuit.c's EthernetWritePacket/EthernetReadPacket
// and examples/tap's read/dispatch/write loop shape.
type EthernetLine struct {
	sock EthernetSocket
	self [6]byte

	// Deliver receives a received frame's source hardware address and its
	// DECnet payload (the Ethernet header already stripped). The source
	// address is handed along because control messages exchanged over
	// Ethernet (hellos) carry no source-node field of their own — the
	// caller recovers the sender's DECnet address from it via
	// dnet4.AddressFromEthernet. Must be set before ReadLoop is used.
	Deliver func(src [6]byte, payload []byte)

	log *slog.Logger
}

// NewEthernetLine constructs a line over sock, querying its own hardware
// address once at construction time.
func NewEthernetLine(sock EthernetSocket) (*EthernetLine, error) {
	hw, err := sock.HardwareAddress6()
	if err != nil {
		return nil, err
	}
	return &EthernetLine{sock: sock, self: hw}, nil
}

// SetLogger attaches a logger for trace output.
func (l *EthernetLine) SetLogger(log *slog.Logger) { l.log = log }

// Send addresses payload to the default routing-layer destination implied
// by its own category: L1 routing messages go to AllRouters, L2 routing
// messages to AllLevel2Routers; anything else (a bug upstream, since every
// other control message has an explicit destination) falls back to
// AllRouters.
func (l *EthernetLine) Send(payload []byte) error {
	group := dnet4.AllRoutersAddr
	if len(payload) > 0 && dnet4.MessageFlag(payload[0]).Category() == dnet4.CategoryL2Routing {
		group = dnet4.AllLevel2RoutersAddr
	}
	return l.write(group, payload)
}

// SendTo addresses payload to dst's Ethernet hardware address.
func (l *EthernetLine) SendTo(dst dnet4.Address, payload []byte) error {
	return l.write(dst.Ethernet(), payload)
}

// SendMulticast addresses payload to group directly.
func (l *EthernetLine) SendMulticast(group [6]byte, payload []byte) error {
	return l.write(group, payload)
}

// ethernetHeaderLength is the non-VLAN header size NewFrame requires.
const ethernetHeaderLength = 14

func (l *EthernetLine) write(dst [6]byte, payload []byte) error {
	frame := make([]byte, ethernetHeaderLength+len(payload))
	copy(frame[0:6], dst[:])
	copy(frame[6:12], l.self[:])
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	efrm.SetEtherType(ethernet.TypeDECnetPhase4)
	copy(frame[ethernetHeaderLength:], payload)
	_, err = l.sock.Write(frame)
	return err
}

// Start is a no-op: the socket is already open by the time an EthernetLine
// wraps it. ReadLoop drives the socket's receive side.
func (l *EthernetLine) Start() error { return nil }

// Stop closes the underlying socket.
func (l *EthernetLine) Stop() { l.sock.Close() }

// ReadLoop reads frames from the socket until it errors, handing each
// frame's DECnet payload to Deliver and silently dropping anything not
// addressed to this node's own address or a well-known multicast group,
// or not carrying the DECnet EtherType.
func (l *EthernetLine) ReadLoop(mtu int) error {
	buf := make([]byte, mtu)
	for {
		n, err := l.sock.Read(buf)
		if err != nil {
			return err
		}
		if n < ethernetHeaderLength {
			continue
		}
		efrm, err := ethernet.NewFrame(buf[:n])
		if err != nil {
			continue
		}
		if efrm.EtherTypeOrSize() != ethernet.TypeDECnetPhase4 {
			continue
		}
		dst := *efrm.DestinationHardwareAddr()
		if dst != l.self && !isKnownMulticast(dst) {
			continue
		}
		if l.Deliver != nil {
			l.Deliver(*efrm.SourceHardwareAddr(), efrm.Payload())
		}
	}
}

func isKnownMulticast(hw [6]byte) bool {
	return hw == dnet4.AllRoutersAddr || hw == dnet4.AllLevel2RoutersAddr || hw == dnet4.AllEndNodesAddr
}
