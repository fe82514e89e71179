package internal

import (
	"errors"
	"net"
)

// UDPBridge tunnels Ethernet frames to a fixed set of remote peers over UDP,
// standing in for AF_PACKET broadcast media on links where no real Ethernet
// segment is available (routers on separate networks bridged over the
// internet). Unlike Bridge/Tap it carries no real hardware address of its
// own; HardwareAddress6 returns whatever was configured at construction, a
// synthetic address the operator assigns per bridge circuit.
//
// UDP has no broadcast/multicast primitive between arbitrary hosts, so
// UDPBridge emulates one at the frame layer: Write inspects the frame's own
// destination field and fans out to every configured peer unless the
// destination matches exactly one peer's hardware address, in which case it
// unicasts to that peer alone.
type UDPBridge struct {
	conn *net.UDPConn
	self [6]byte
	// peers maps a peer's claimed hardware address to its UDP address. A
	// peer must have sent at least one frame, or been added via AddPeer,
	// before Write can address it individually; until then every frame is
	// fanned out to all known peers.
	peers map[[6]byte]*net.UDPAddr
}

// NewUDPBridge opens a UDP socket bound to laddr for a bridge circuit
// identified by self, a synthetic hardware address distinguishing this
// router's end of the tunnel from its peers'.
func NewUDPBridge(laddr string, self [6]byte) (*UDPBridge, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPBridge{
		conn:  conn,
		self:  self,
		peers: make(map[[6]byte]*net.UDPAddr),
	}, nil
}

// AddPeer registers a remote router's hardware address and UDP endpoint,
// letting Write address it individually instead of fanning out.
func (b *UDPBridge) AddPeer(hw [6]byte, raddr string) error {
	addr, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return err
	}
	b.peers[hw] = addr
	return nil
}

// HardwareAddress6 returns this bridge's configured synthetic address.
func (b *UDPBridge) HardwareAddress6() ([6]byte, error) { return b.self, nil }

// Write sends frame, a complete Ethernet frame including its 14-byte
// header, to the peer(s) its destination address names.
func (b *UDPBridge) Write(frame []byte) (int, error) {
	if len(frame) < 6 {
		return 0, errBridgeFrameTooShort
	}
	var dst [6]byte
	copy(dst[:], frame[0:6])

	if peer, ok := b.peers[dst]; ok {
		return b.conn.WriteToUDP(frame, peer)
	}
	var n int
	for _, peer := range b.peers {
		written, err := b.conn.WriteToUDP(frame, peer)
		if err != nil {
			return n, err
		}
		n = written
	}
	return n, nil
}

// Read blocks for the next datagram, learning the sender's UDP address
// against the frame's own source hardware address so future unicasts to
// that peer need not be fanned out.
func (b *UDPBridge) Read(buf []byte) (int, error) {
	n, raddr, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		return n, err
	}
	if n >= 12 {
		var src [6]byte
		copy(src[:], buf[6:12])
		if _, known := b.peers[src]; !known {
			b.peers[src] = raddr
		}
	}
	return n, nil
}

// Close closes the underlying UDP socket.
func (b *UDPBridge) Close() error { return b.conn.Close() }

var errBridgeFrameTooShort = errors.New("udp bridge: frame shorter than a hardware address")
