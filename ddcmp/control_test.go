package ddcmp

import "testing"

func TestCRC16RoundTrip(t *testing.T) {
	datas := [][]byte{
		{},
		{0x05, 0x06, 0xC0, 0, 0, 1},
		{0x81, 4, 0, 0, 1, 1},
		[]byte("DECNET PHASE IV ROUTER"),
	}
	for _, data := range datas {
		buf := AppendCRC16(append([]byte{}, data...), data)
		if !VerifyCRC16(buf) {
			t.Fatalf("CRC-16 of %x + its own appended CRC did not fold to zero", data)
		}
		// Corrupting any byte must break the round trip.
		if len(buf) > 0 {
			buf[0] ^= 0xFF
			if VerifyCRC16(buf) {
				t.Fatalf("corrupted buffer %x unexpectedly verified", buf)
			}
		}
	}
}

func TestAppendControlMessageLayout(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		typ  MsgType
		resp byte
		num  byte
	}{
		{"ACK", appendAck(nil, 5), MsgAck, 5, 0},
		{"NAK", appendNak(nil, NakReasonDataCRC, 3), MsgNak, 3, 0},
		{"REP", appendRep(nil, 9), MsgRep, 0, 9},
		{"STRT", appendStrt(nil), MsgStrt, 0, 0},
		{"STACK", appendStack(nil), MsgStack, 0, 0},
	}
	for _, c := range cases {
		if len(c.buf) != 8 {
			t.Fatalf("%s: expected 8-byte control message, got %d bytes", c.name, len(c.buf))
		}
		if c.buf[0] != SYNEnq {
			t.Fatalf("%s: expected leading ENQ sync byte, got %#x", c.name, c.buf[0])
		}
		if MsgType(c.buf[1]) != c.typ {
			t.Fatalf("%s: expected type %v, got %v", c.name, c.typ, MsgType(c.buf[1]))
		}
		if c.buf[3] != c.resp {
			t.Fatalf("%s: expected resp field %d, got %d", c.name, c.resp, c.buf[3])
		}
		if c.buf[4] != c.num {
			t.Fatalf("%s: expected num field %d, got %d", c.name, c.num, c.buf[4])
		}
		if c.buf[5] != station {
			t.Fatalf("%s: expected station address %d, got %d", c.name, station, c.buf[5])
		}
		if !VerifyCRC16(c.buf) {
			t.Fatalf("%s: CRC did not verify", c.name)
		}
	}
}

func TestMod256CmpOrdering(t *testing.T) {
	cases := []struct {
		a, b byte
		want int
	}{
		{0, 0, 0},
		{1, 2, -1},
		{2, 1, 1},
		// Wraps within the small transmit window: 254 precedes 2 (distance 4).
		{254, 2, -1},
		{2, 254, 1},
	}
	for _, c := range cases {
		if got := mod256Cmp(c.a, c.b); got != c.want {
			t.Fatalf("mod256Cmp(%d,%d): want %d got %d", c.a, c.b, c.want, got)
		}
	}
}

func TestStartupHandshakeToRunning(t *testing.T) {
	var cb ControlBlock
	var sent [][]byte
	var running, halted bool
	cb.SendRaw = func(b []byte) { sent = append(sent, append([]byte{}, b...)) }
	cb.ScheduleTimer = func(int) {}
	cb.CancelTimer = func() {}
	cb.NotifyRunning = func() { running = true }
	cb.NotifyHalt = func() { halted = true }

	cb.Start()
	if cb.State() != StateIStrt {
		t.Fatalf("expected IStrt after Start, got %v", cb.State())
	}
	if len(sent) != 1 || MsgType(sent[0][1]) != MsgStrt {
		t.Fatalf("expected a single STRT sent, got %v", sent)
	}
	sent = nil

	// Peer replies with its own STRT: we answer with STACK and move to AStrt.
	cb.Recv(appendStrt(nil))
	if cb.State() != StateAStrt {
		t.Fatalf("expected AStrt after peer STRT, got %v", cb.State())
	}
	if len(sent) != 1 || MsgType(sent[0][1]) != MsgStack {
		t.Fatalf("expected a single STACK sent, got %v", sent)
	}
	sent = nil

	// Peer replies with STACK: line comes up.
	cb.Recv(appendStack(nil))
	if cb.State() != StateRunning {
		t.Fatalf("expected Running after peer STACK, got %v", cb.State())
	}
	if !running {
		t.Fatal("expected NotifyRunning to have fired")
	}
	if halted {
		t.Fatal("did not expect NotifyHalt to have fired")
	}
}

func TestSendQueuesAndAckClearsQueue(t *testing.T) {
	var cb ControlBlock
	var sent [][]byte
	cb.SendRaw = func(b []byte) { sent = append(sent, append([]byte{}, b...)) }
	cb.ScheduleTimer = func(int) {}
	cb.CancelTimer = func() {}
	cb.NotifyRunning = func() {}
	cb.Start()
	cb.Recv(appendStack(nil)) // a STACK received in IStrt brings the line straight up.

	if cb.State() != StateRunning {
		t.Fatalf("expected Running, got %v", cb.State())
	}

	ok, err := cb.Send([]byte("hello"))
	if err != nil || !ok {
		t.Fatalf("expected Send to accept payload, got ok=%v err=%v", ok, err)
	}
	if len(sent) == 0 {
		t.Fatal("expected a data message to have been sent")
	}
	dataMsg := sent[len(sent)-1]
	if dataMsg[0] != SYNSoh {
		t.Fatalf("expected SOH-led data message, got %#x", dataMsg[0])
	}
	if cb.txq.firstUnacknowledged() == nil {
		t.Fatal("expected the sent message to remain queued pending ack")
	}

	// Peer ACKs resp=1 (our first and only outstanding message).
	cb.Recv(appendAck(nil, 1))
	if cb.txq.firstUnacknowledged() != nil {
		t.Fatal("expected the queue to be empty once the message is acked")
	}
}

func TestDataMessageDeliveredInSequenceAndAcked(t *testing.T) {
	var cb ControlBlock
	var sent [][]byte
	var delivered []byte
	cb.SendRaw = func(b []byte) { sent = append(sent, append([]byte{}, b...)) }
	cb.ScheduleTimer = func(int) {}
	cb.CancelTimer = func() {}
	cb.NotifyRunning = func() {}
	cb.DeliverData = func(b []byte) bool {
		delivered = append([]byte{}, b...)
		return true
	}
	cb.Start()
	cb.Recv(appendStack(nil))
	if cb.State() != StateRunning {
		t.Fatalf("expected Running, got %v", cb.State())
	}
	sent = nil

	payload := []byte{1, 2, 3, 4}
	msg := append([]byte{SYNSoh}, appendDataHeader(nil, len(payload), 0, 1)...)
	msg = AppendCRC16(msg, msg[:6])
	msg = append(msg, payload...)
	msg = AppendCRC16(msg, msg[len(msg)-len(payload):])

	cb.Recv(msg)
	if string(delivered) != string(payload) {
		t.Fatalf("expected payload %v delivered, got %v", payload, delivered)
	}
	if len(sent) == 0 || MsgType(sent[len(sent)-1][1]) != MsgAck {
		t.Fatalf("expected an ACK to be sent in response, got %v", sent)
	}
}
