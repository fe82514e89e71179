package dnet4

import "fmt"

// decnetOUI is the fixed 4-byte Ethernet OUI prefix that every unicast
// DECnet hardware address is built on top of.
var decnetOUI = [4]byte{0xAA, 0x00, 0x04, 0x00}

// Well-known Ethernet multicast addresses for DECnet control traffic.
var (
	AllRoutersAddr       = [6]byte{0xAB, 0x00, 0x00, 0x03, 0x00, 0x00}
	AllLevel2RoutersAddr = [6]byte{0x09, 0x00, 0x2B, 0x02, 0x00, 0x00}
	AllEndNodesAddr      = [6]byte{0xAB, 0x00, 0x00, 0x04, 0x00, 0x00}
)

// Address is a DECnet Phase IV node address: an area in 1..NA and a node
// number in 1..NN.
type Address struct {
	Area uint8
	Node uint16
}

// IsZero reports whether both the area and the node number are zero, the
// value of an address that was never set.
func (a Address) IsZero() bool { return a.Area == 0 && a.Node == 0 }

func (a Address) String() string {
	return fmt.Sprintf("%d.%d", a.Area, a.Node)
}

// Encode packs the address into its 16-bit little-endian wire
// representation: area in the high 6 bits, node in the low 10 bits.
func (a Address) Encode() uint16 {
	return uint16(a.Node&0x3FF) | (uint16(a.Area&0x3F) << 10)
}

// DecodeAddress unpacks a 16-bit wire value into an Address.
func DecodeAddress(v uint16) Address {
	return Address{
		Node: v & 0x3FF,
		Area: uint8(v >> 10 & 0x3F),
	}
}

// Ethernet returns the 6-byte hardware address DECnet maps this address
// to: the fixed OUI prefix AA:00:04:00 followed by (node&0xFF,
// (area<<2)|(node>>8)).
func (a Address) Ethernet() (hw [6]byte) {
	copy(hw[:4], decnetOUI[:])
	hw[4] = byte(a.Node & 0xFF)
	hw[5] = byte(a.Area<<2) | byte(a.Node>>8)
	return hw
}

// AddressFromEthernet recovers a DECnet Address from a hardware address
// built by [Address.Ethernet]. ok is false if hw does not carry the
// DECnet OUI prefix.
func AddressFromEthernet(hw [6]byte) (addr Address, ok bool) {
	if hw[0] != decnetOUI[0] || hw[1] != decnetOUI[1] || hw[2] != decnetOUI[2] || hw[3] != decnetOUI[3] {
		return Address{}, false
	}
	node := uint16(hw[4]) | (uint16(hw[5]&0x3) << 8)
	area := uint8(hw[5] >> 2)
	return Address{Area: area, Node: node}, true
}
