package server

import (
	"golang.org/x/sync/semaphore"

	"netcode/netcode/codec"
)

// slotArenaBytes sizes one slot's arena to hold a full receive queue of
// maximally-sized payloads, per spec.md §9's "per-slot arenas":
// a misbehaving client can only exhaust its own slot's budget, never the
// server's global heap.
const slotArenaBytes = receiveQueueSize * codec.MaxPayloadBytes

// slotArena is the fixed-size allocation budget for one client slot.
// Allocation never blocks: the server's tick loop is single-threaded and
// must never stall waiting on a release, so a full arena is reported back
// to the caller exactly like a full receive queue — the newest payload is
// dropped.
type slotArena struct {
	sem      *semaphore.Weighted
	capacity int64
}

func newSlotArena(capacityBytes int64) *slotArena {
	return &slotArena{sem: semaphore.NewWeighted(capacityBytes), capacity: capacityBytes}
}

func (a *slotArena) tryAlloc(n int) bool {
	return a.sem.TryAcquire(int64(n))
}

func (a *slotArena) free(n int) {
	a.sem.Release(int64(n))
}

// reset reclaims the entire arena, as on slot disconnect.
func (a *slotArena) reset() {
	a.sem = semaphore.NewWeighted(a.capacity)
}
