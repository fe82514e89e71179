package forward

import (
	"log/slog"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/adjacency"
)

// Packet is the data the forwarding engine needs out of a received data
// message, already decoded by the caller (the circuit/router layer) from
// whichever wire format (short or long data) it arrived in.
type Packet struct {
	Src, Dst       dnet4.Address
	ReturnToSender bool
	RTSRequest     bool
	Visits         uint8
	Payload        []byte
}

// Forward runs the 7-step forwarding procedure on pkt, received over
// srcCircuit, matching ForwardPacket/SendPacket/ReturnToSender. It never
// writes the decision process's matrices; it only reads them.
func (f *Forwarder) Forward(srcCircuit Circuit, pkt Packet) {
	pkt.Visits++

	if pkt.Src.Area == 0 {
		pkt.Src.Area = f.Self.Area
	}
	if pkt.Dst.Area == 0 {
		pkt.Dst.Area = f.Self.Area
	}

	srcAdjacency := f.Adjacencies.FindAdjacency(pkt.Src)
	if srcAdjacency == nil {
		f.traceDrop("forward: source adjacency not found", pkt)
		return
	}
	if srcAdjacency.Kind == adjacency.KindPhaseIII {
		f.traceDrop("forward: PhaseIII data packet forwarding not implemented", pkt)
		return
	}

	ceiling := uint8(dnet4.Maxv)
	if pkt.ReturnToSender {
		ceiling = 2 * dnet4.Maxv
	}
	if pkt.Visits > ceiling {
		f.traceDrop("forward: dropping looping message", pkt)
		return
	}

	outRTS := pkt.ReturnToSender
	if !f.IsReachable(pkt.Dst) {
		if !pkt.RTSRequest {
			f.traceDrop("forward: destination unreachable, return not requested", pkt)
			return
		}
		pkt.Src, pkt.Dst = pkt.Dst, pkt.Src
		outRTS = true
	}

	dstAdjacency := f.outputAdjacency(pkt.Dst)
	if dstAdjacency == nil || dstAdjacency.Kind == adjacency.KindUnused {
		f.traceDrop("forward: destination adjacency not found", pkt)
		return
	}
	if dstAdjacency.Kind == adjacency.KindPhaseIII {
		f.traceDrop("forward: PhaseIII data packet forwarding not implemented", pkt)
		return
	}

	intraEthernet := srcCircuit != nil && dstAdjacency.Circuit != nil &&
		dstAdjacency.Circuit.Slot() == srcCircuit.Slot() && dstAdjacency.Circuit.Broadcast()

	if f.send(dstAdjacency, pkt, outRTS, intraEthernet) {
		return
	}

	// Congestion on the forwarded link: retry once as a return-to-sender
	// if the original request asked for one.
	if !pkt.RTSRequest {
		f.traceDrop("forward: congestion on forwarded link, return not requested", pkt)
		return
	}
	pkt.Src, pkt.Dst = pkt.Dst, pkt.Src
	retryAdjacency := f.outputAdjacency(pkt.Dst)
	if retryAdjacency == nil || retryAdjacency.Kind == adjacency.KindUnused {
		f.traceDrop("forward: congestion retry found no destination adjacency", pkt)
		return
	}
	retryIntraEthernet := srcCircuit != nil && retryAdjacency.Circuit != nil &&
		retryAdjacency.Circuit.Slot() == srcCircuit.Slot() && retryAdjacency.Circuit.Broadcast()
	f.send(retryAdjacency, pkt, true, retryIntraEthernet)
}

// send builds the outgoing long-data message and ships it over a's
// circuit, matching SendPacket.
func (f *Forwarder) send(a *adjacency.Adjacency, pkt Packet, rts, intraEthernet bool) bool {
	if a.Circuit == nil {
		return false
	}
	c := f.Circuits.Circuit(a.Circuit.Slot())
	if c == nil {
		return false
	}

	payload := dnet4.AppendLongDataHeader(nil, pkt.Dst, pkt.Src, rts, pkt.RTSRequest, intraEthernet, pkt.Visits)
	payload = append(payload, pkt.Payload...)

	if err := c.Send(pkt.Dst, payload); err != nil {
		f.traceSendError("forward: packet could not be forwarded", a.Circuit.Slot(), err)
		return false
	}
	return true
}

func (f *Forwarder) traceDrop(msg string, pkt Packet) {
	if f.log == nil {
		return
	}
	f.log.Warn(msg,
		slog.String("src", pkt.Src.String()),
		slog.String("dst", pkt.Dst.String()),
		slog.Int("visits", int(pkt.Visits)),
	)
}

func (f *Forwarder) traceSendError(msg string, slot int, err error) {
	if f.log == nil {
		return
	}
	f.log.Warn(msg, slog.Int("slot", slot), slog.String("error", err.Error()))
}
