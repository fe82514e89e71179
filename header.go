package dnet4

// Category identifies the kind of message a DECnet payload carries, decoded
// from the low 3 bits of the Message-Flag byte (spec.md §4.1).
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryInit
	CategoryVerification
	CategoryHelloAndTest
	CategoryL1Routing
	CategoryL2Routing
	CategoryRouterHello
	CategoryEndnodeHello
	CategoryShortData
	CategoryLongData
)

func (c Category) String() string {
	switch c {
	case CategoryInit:
		return "init"
	case CategoryVerification:
		return "verification"
	case CategoryHelloAndTest:
		return "hello-and-test"
	case CategoryL1Routing:
		return "l1-routing"
	case CategoryL2Routing:
		return "l2-routing"
	case CategoryRouterHello:
		return "router-hello"
	case CategoryEndnodeHello:
		return "endnode-hello"
	case CategoryShortData:
		return "short-data"
	case CategoryLongData:
		return "long-data"
	default:
		return "unknown"
	}
}

// controlSubtypes maps the 3-bit control subtype field (bits 1..3 of the
// Message-Flag byte, valid only when bit 0 is set) to a Category.
var controlSubtypes = [8]Category{
	CategoryInit,
	CategoryVerification,
	CategoryHelloAndTest,
	CategoryL1Routing,
	CategoryL2Routing,
	CategoryRouterHello,
	CategoryEndnodeHello,
	CategoryUnknown, // subtype 7 is reserved
}

// MessageFlag decodes the first byte of a DECnet payload.
type MessageFlag byte

// IsControl reports whether bit 0 (the control/data discriminator) is set.
func (f MessageFlag) IsControl() bool { return f&0x01 != 0 }

// IsFutureVersion reports whether bit 6 is set, meaning the message
// belongs to a future protocol version and should be ignored rather than
// rejected.
func (f MessageFlag) IsFutureVersion() bool { return f&0x40 != 0 }

// HasPadding reports whether bit 7 (padding-present) is set.
func (f MessageFlag) HasPadding() bool { return f&0x80 != 0 }

// PaddingLen returns the number of bytes, including this flag byte itself,
// to skip before the real Message-Flag byte. Only meaningful when
// HasPadding is true.
func (f MessageFlag) PaddingLen() int { return int(f & 0x7F) }

// controlSubtype extracts bits 1..3, valid only when IsControl is true.
func (f MessageFlag) controlSubtype() uint8 { return uint8(f>>1) & 0x7 }

// Category classifies the message. Returns CategoryUnknown for malformed
// or reserved combinations.
func (f MessageFlag) Category() Category {
	if f.IsControl() {
		return controlSubtypes[f.controlSubtype()]
	}
	switch f & 0x07 {
	case 0x02:
		return CategoryShortData
	case 0x06:
		return CategoryLongData
	default:
		return CategoryUnknown
	}
}

// SkipPadding strips leading pad bytes from a DECnet payload per the
// padding-present convention: if the first byte has bit 7 set, its low 7
// bits give the number of bytes (counting the flag byte itself) to drop
// before the real Message-Flag byte. SkipPadding applies this repeatedly in
// case of chained padding fields, bounded by len(buf) to avoid looping
// forever on a malformed buffer.
func SkipPadding(buf []byte) ([]byte, error) {
	for len(buf) > 0 && MessageFlag(buf[0]).HasPadding() {
		n := MessageFlag(buf[0]).PaddingLen()
		if n == 0 || n > len(buf) {
			return nil, ErrShortFrame
		}
		buf = buf[n:]
	}
	if len(buf) == 0 {
		return nil, ErrShortFrame
	}
	return buf, nil
}
