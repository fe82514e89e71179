package dnet4_test

import (
	"math/rand"
	"testing"

	dnet4 "github.com/soypat/dnet4"
)

func TestAddressEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 256; i++ {
		want := dnet4.Address{
			Area: uint8(1 + rng.Intn(63)),
			Node: uint16(1 + rng.Intn(1023)),
		}
		got := dnet4.DecodeAddress(want.Encode())
		if got != want {
			t.Fatalf("round trip mismatch: want %v got %v", want, got)
		}
	}
}

func TestAddressEthernetRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 256; i++ {
		want := dnet4.Address{
			Area: uint8(1 + rng.Intn(63)),
			Node: uint16(1 + rng.Intn(1023)),
		}
		hw := want.Ethernet()
		got, ok := dnet4.AddressFromEthernet(hw)
		if !ok {
			t.Fatal("expected ok decoding a DECnet-mapped hardware address")
		}
		if got != want {
			t.Fatalf("round trip mismatch: want %v got %v", want, got)
		}
	}
	if _, ok := dnet4.AddressFromEthernet([6]byte{0, 0, 0, 0, 0, 0}); ok {
		t.Fatal("expected !ok for a non-DECnet hardware address")
	}
}

func TestChecksumSeedsAtOneAndFoldsCarry(t *testing.T) {
	var c dnet4.Checksum
	c.Reset()
	if got := c.Sum16(); got != 1 {
		t.Fatalf("checksum must seed at 1, got %d", got)
	}

	// Two words that overflow 16 bits must fold the carry back in rather
	// than truncate it (end-around carry).
	c.Reset()
	c.Write(0xFFFF)
	c.Write(0x0002)
	if got, want := c.Sum16(), uint16(0x0003); got != want {
		t.Fatalf("end-around carry not folded: want %#x got %#x", want, got)
	}

	if dnet4.ChecksumWords(nil) != 1 {
		t.Fatal("checksum of no words must equal the seed")
	}
}

func TestShortDataFrameFields(t *testing.T) {
	buf := make([]byte, shortDataFrameLen(8))
	f, err := dnet4.NewShortDataFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	dst := dnet4.Address{Area: 3, Node: 500}
	src := dnet4.Address{Area: 3, Node: 10}
	f.SetDestination(dst)
	f.SetSource(src)
	f.SetVisitFlags(7, true, false)

	if got := f.Destination(); got != dst {
		t.Fatalf("destination mismatch: want %v got %v", dst, got)
	}
	if got := f.Source(); got != src {
		t.Fatalf("source mismatch: want %v got %v", src, got)
	}
	if got := f.VisitCount(); got != 7 {
		t.Fatalf("visit count mismatch: want 7 got %d", got)
	}
	if !f.ReturnToSender() {
		t.Fatal("expected return-to-sender flag set")
	}
	if f.RTSRequest() {
		t.Fatal("expected RTS-request flag clear")
	}
}

func shortDataFrameLen(payload int) int { return 6 + payload }

func TestLongDataFrameFields(t *testing.T) {
	buf := dnet4.AppendLongDataHeader(nil, dnet4.Address{Area: 10, Node: 100},
		dnet4.Address{Area: 10, Node: 1}, false, true, true, 3)
	f, err := dnet4.NewLongDataFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := f.Destination(), (dnet4.Address{Area: 10, Node: 100}); got != want {
		t.Fatalf("destination mismatch: want %v got %v", want, got)
	}
	if got, want := f.Source(), (dnet4.Address{Area: 10, Node: 1}); got != want {
		t.Fatalf("source mismatch: want %v got %v", want, got)
	}
	if f.ReturnToSender() {
		t.Fatal("expected return-to-sender flag clear")
	}
	if !f.RTSRequest() {
		t.Fatal("expected RTS-request flag set")
	}
	if !f.IntraEthernet() {
		t.Fatal("expected intra-ethernet flag set")
	}
	if got := f.VisitCount(); got != 3 {
		t.Fatalf("visit count mismatch: want 3 got %d", got)
	}
	if f.Flags().Category() != dnet4.CategoryLongData {
		t.Fatalf("expected long-data category, got %v", f.Flags().Category())
	}
}

func TestRoutingMessageChecksumRoundTrip(t *testing.T) {
	segs := []dnet4.RoutingSegment{
		{Start: 1, Entries: []uint16{dnet4.EncodeHopCost(1, 4), dnet4.EncodeHopCost(2, 8)}},
		{Start: 50, Entries: []uint16{dnet4.EncodeHopCost(31, 1023)}},
	}
	buf := dnet4.AppendRoutingMessage(nil, dnet4.CategoryL1Routing, segs)
	msg, err := dnet4.NewRoutingMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("expected valid checksum, got %v", err)
	}

	var got []dnet4.RoutingSegment
	err = msg.Segments(func(seg dnet4.RoutingSegment) { got = append(got, seg) })
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(segs) {
		t.Fatalf("segment count mismatch: want %d got %d", len(segs), len(got))
	}
	for i := range segs {
		if got[i].Start != segs[i].Start || len(got[i].Entries) != len(segs[i].Entries) {
			t.Fatalf("segment %d mismatch: want %+v got %+v", i, segs[i], got[i])
		}
		for j := range segs[i].Entries {
			if got[i].Entries[j] != segs[i].Entries[j] {
				t.Fatalf("segment %d entry %d mismatch: want %d got %d", i, j, segs[i].Entries[j], got[i].Entries[j])
			}
		}
	}

	// Corrupting any byte in the body must break the checksum.
	buf[1] ^= 0xFF
	msg2, _ := dnet4.NewRoutingMessage(buf)
	if err := msg2.Validate(); err == nil {
		t.Fatal("expected checksum mismatch after corrupting body")
	}
}

func TestHopCostEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 256; i++ {
		hop := uint8(rng.Intn(32))
		cost := uint16(rng.Intn(1024))
		word := dnet4.EncodeHopCost(hop, cost)
		gotHop, gotCost := dnet4.HopCost(word)
		if gotHop != hop || gotCost != cost {
			t.Fatalf("round trip mismatch: want (%d,%d) got (%d,%d)", hop, cost, gotHop, gotCost)
		}
	}
}

func TestRouterHelloValidation(t *testing.T) {
	buf := make([]byte, 13+14)
	buf[11] = 8 + 14 // elistLen
	buf[12] = 14     // rslistlen: two 7-byte entries
	h, err := dnet4.NewRouterHello(buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("expected valid router hello, got %v", err)
	}
	if got := h.RSListLen(); got != 2 {
		t.Fatalf("expected 2 RS-LIST entries, got %d", got)
	}

	buf[12] = 13 // not divisible by 7
	if err := h.Validate(); err == nil {
		t.Fatal("expected error for rslistlen not divisible by 7")
	}
}

func TestMessageFlagCategory(t *testing.T) {
	cases := []struct {
		flag byte
		want dnet4.Category
	}{
		{0x00 | 0x02, dnet4.CategoryShortData},
		{0x00 | 0x06, dnet4.CategoryLongData},
		{0x01 | (0 << 1), dnet4.CategoryInit},
		{0x01 | (1 << 1), dnet4.CategoryVerification},
		{0x01 | (2 << 1), dnet4.CategoryHelloAndTest},
		{0x01 | (3 << 1), dnet4.CategoryL1Routing},
		{0x01 | (4 << 1), dnet4.CategoryL2Routing},
		{0x01 | (5 << 1), dnet4.CategoryRouterHello},
		{0x01 | (6 << 1), dnet4.CategoryEndnodeHello},
	}
	for _, c := range cases {
		if got := dnet4.MessageFlag(c.flag).Category(); got != c.want {
			t.Fatalf("flag %#x: want %v got %v", c.flag, c.want, got)
		}
	}
}

func TestSkipPadding(t *testing.T) {
	inner := []byte{0x02, 0, 0, 0, 0, 0, 0xAA}
	padded := append([]byte{0x80 | 4, 0, 0, 0}, inner...)
	got, err := dnet4.SkipPadding(padded)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(inner) || got[0] != inner[0] {
		t.Fatalf("unexpected result after skipping padding: %x", got)
	}
}
