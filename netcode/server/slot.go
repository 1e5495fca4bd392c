package server

import (
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/replay"
)

// receiveQueueSize bounds how many undelivered application payloads a slot
// holds at once. Overflow drops the newest arrival, per the resolved
// receive-queue-overflow policy; the drop is silent and nothing is logged.
const receiveQueueSize = 256

// slot is one connected (or free) client seat. Index in the server's slots
// array doubles as the wire client-index advertised in keep-alive packets.
type slot struct {
	connected bool
	confirmed bool
	loopback  bool

	addr     addr.Address
	clientID uint64

	clientKey [codec.KeyBytes]byte
	serverKey [codec.KeyBytes]byte

	timeoutSecond int32
	lastReceive   time.Time
	lastSend      time.Time

	sendSequence uint64
	shield       *replay.Shield

	arena        *slotArena
	receiveQueue [][]byte
}

func (s *slot) reset() {
	*s = slot{shield: s.shield, arena: s.arena}
	if s.shield != nil {
		s.shield.Reset()
	}
	if s.arena != nil {
		s.arena.reset()
	}
}

// enqueue appends payload to the receive queue, dropping the newest arrival
// if the queue is already full or the slot's arena has no room left for it.
func (s *slot) enqueue(payload []byte) {
	if len(s.receiveQueue) >= receiveQueueSize {
		return
	}
	if s.arena != nil && !s.arena.tryAlloc(len(payload)) {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.receiveQueue = append(s.receiveQueue, cp)
}

// Dequeue pops the oldest undelivered payload, if any, freeing its arena
// reservation.
func (s *slot) dequeue() ([]byte, bool) {
	if len(s.receiveQueue) == 0 {
		return nil, false
	}
	payload := s.receiveQueue[0]
	s.receiveQueue = s.receiveQueue[1:]
	if s.arena != nil {
		s.arena.free(len(payload))
	}
	return payload, true
}

func (s *slot) nextSendSequence() uint64 {
	seq := s.sendSequence
	s.sendSequence++
	return seq
}
