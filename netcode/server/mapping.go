package server

import (
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
)

// mappingEntry is one pending (not-yet-slotted) encryption mapping: the
// server learns a client's per-direction keys the instant it accepts a
// connection request, before a slot is assigned at the challenge-response
// step. That step copies the keys into the slot and removes the mapping; a
// mapping is never kept bound to a connected slot.
type mappingEntry struct {
	inUse bool

	addr addr.Address

	clientKey [codec.KeyBytes]byte
	serverKey [codec.KeyBytes]byte

	// slotIndex is -1 for every entry the server installs; nothing assigns
	// it a slot.
	slotIndex int

	timeoutSecond int32
	// expireUnix is the absolute deadline (unix seconds) this mapping must
	// be bound to a slot by, or -1 for no expiry.
	expireUnix int64

	lastAccess time.Time
}

// mappingTable is a fixed-capacity, linearly-scanned table of encryption
// mappings, sized 4x the slot count per spec.md §4.6's sizing convention for
// auxiliary server tables.
type mappingTable struct {
	entries []mappingEntry
}

func newMappingTable(capacity int) *mappingTable {
	return &mappingTable{entries: make([]mappingEntry, capacity)}
}

func (t *mappingTable) findByAddr(a addr.Address) *mappingEntry {
	for i := range t.entries {
		if t.entries[i].inUse && t.entries[i].addr.Equal(a) {
			return &t.entries[i]
		}
	}
	return nil
}

// insert installs a new mapping, reusing the first free or expired slot.
func (t *mappingTable) insert(now time.Time, entry mappingEntry) *mappingEntry {
	for i := range t.entries {
		if !t.entries[i].inUse || t.entries[i].expired(now) {
			t.entries[i] = entry
			t.entries[i].inUse = true
			t.entries[i].lastAccess = now
			return &t.entries[i]
		}
	}
	// Table is full of live, unexpired mappings: overwrite the oldest by
	// last access, matching the connect-token cache's oldest-eviction rule.
	oldest := 0
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].lastAccess.Before(t.entries[oldest].lastAccess) {
			oldest = i
		}
	}
	t.entries[oldest] = entry
	t.entries[oldest].inUse = true
	t.entries[oldest].lastAccess = now
	return &t.entries[oldest]
}

func (t *mappingTable) remove(e *mappingEntry) {
	*e = mappingEntry{}
}

// expired reports whether e should be treated as gone: either its per-entry
// idle timeout elapsed, or its absolute expiry passed.
func (e *mappingEntry) expired(now time.Time) bool {
	if !e.inUse {
		return true
	}
	if e.timeoutSecond > 0 && e.lastAccess.Add(time.Duration(e.timeoutSecond)*time.Second).Before(now) {
		return true
	}
	if e.expireUnix >= 0 && e.expireUnix < now.Unix() {
		return true
	}
	return false
}

// tokenCacheEntry records one previously-seen connect token, keyed by its
// AEAD tag, so a retransmitted request from the same address is accepted
// again while a genuine replay from a different address is rejected.
type tokenCacheEntry struct {
	inUse     bool
	tag       [codec.MacBytes]byte
	addr      addr.Address
	arrivedAt time.Time
}

// tokenCache is the fixed-size (8x slot count) connect-token replay cache
// described in spec.md §4.6.
type tokenCache struct {
	entries []tokenCacheEntry
}

func newTokenCache(capacity int) *tokenCache {
	return &tokenCache{entries: make([]tokenCacheEntry, capacity)}
}

// Check reports whether a token with this tag arriving from this address
// should be accepted: a fresh tag is always accepted and recorded; a
// previously seen tag is accepted only if it arrived from the same address.
func (c *tokenCache) Check(now time.Time, tag [codec.MacBytes]byte, from addr.Address) bool {
	for i := range c.entries {
		if c.entries[i].inUse && c.entries[i].tag == tag {
			return c.entries[i].addr.Equal(from)
		}
	}

	oldest := 0
	for i := range c.entries {
		if !c.entries[i].inUse {
			oldest = i
			break
		}
		if c.entries[i].arrivedAt.Before(c.entries[oldest].arrivedAt) {
			oldest = i
		}
	}
	c.entries[oldest] = tokenCacheEntry{inUse: true, tag: tag, addr: from, arrivedAt: now}
	return true
}
