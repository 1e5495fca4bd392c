package reliable

// ackBitfieldWidth is the number of prior sequence numbers the ack bitfield
// reports alongside the most recently received sequence.
const ackBitfieldWidth = 32

// receivedEntry marks a sequence number as having been received, for ack
// bitfield construction.
type receivedEntry struct{}

// sentEntry tracks one sent-but-not-yet-acked packet.
type sentEntry struct {
	acked bool
}

// Endpoint pairs a send-side sequence counter with the receive/send
// sequence buffers needed to build and consume acks for one direction of a
// connection.
type Endpoint struct {
	sendSequence uint16
	sentBuffer   *SequenceBuffer[sentEntry]
	recvBuffer   *SequenceBuffer[receivedEntry]
}

// NewEndpoint returns an Endpoint with the given sequence-buffer capacity
// (must be a power of two, and at least ackBitfieldWidth).
func NewEndpoint(bufferCapacity uint16) *Endpoint {
	if bufferCapacity < ackBitfieldWidth {
		panic("reliable: buffer capacity must be at least the ack bitfield width")
	}
	return &Endpoint{
		sentBuffer: NewSequenceBuffer[sentEntry](bufferCapacity),
		recvBuffer: NewSequenceBuffer[receivedEntry](bufferCapacity),
	}
}

// NextSendSequence returns the sequence number the next outgoing packet
// should use, and records it as sent-but-unacked.
func (e *Endpoint) NextSendSequence() uint16 {
	seq := e.sendSequence
	e.sentBuffer.Insert(seq, sentEntry{})
	e.sendSequence++
	return seq
}

// MarkReceived records that sequence arrived, for inclusion in the next
// outgoing ack bitfield.
func (e *Endpoint) MarkReceived(sequence uint16) {
	e.recvBuffer.Insert(sequence, receivedEntry{})
}

// BuildAck returns the ack bitfield to send alongside ack (the caller's most
// recently received sequence): bit i (i from 0) is set if ack-(i+1) was
// also received.
func (e *Endpoint) BuildAck(ack uint16) uint32 {
	var bitfield uint32
	for i := 0; i < ackBitfieldWidth; i++ {
		seq := ack - 1 - uint16(i)
		if e.recvBuffer.Exists(seq) {
			bitfield |= 1 << uint(i)
		}
	}
	return bitfield
}

// ProcessAck marks every sent packet named by (ack, ackBitfield) as acked,
// returning the sequence numbers newly acked by this call (already-acked
// entries are not repeated).
func (e *Endpoint) ProcessAck(ack uint16, ackBitfield uint32) []uint16 {
	var newlyAcked []uint16

	ackOne := func(seq uint16) {
		entry, ok := e.sentBuffer.Get(seq)
		if !ok || entry.acked {
			return
		}
		entry.acked = true
		e.sentBuffer.Insert(seq, entry)
		newlyAcked = append(newlyAcked, seq)
	}

	ackOne(ack)
	for i := 0; i < ackBitfieldWidth; i++ {
		if ackBitfield&(1<<uint(i)) != 0 {
			ackOne(ack - 1 - uint16(i))
		}
	}
	return newlyAcked
}
