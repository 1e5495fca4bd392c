// Package server implements the server half of the netcode connection
// protocol: slot lifecycle, the encryption-mapping and connect-token-replay
// tables, and the single-threaded tick-driven state machine described in
// spec.md §4.3.
package server

import (
	cryptorand "crypto/rand"
	"fmt"
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/replay"
	"netcode/netcode/token"
	"netcode/netlog"
)

const (
	keepAliveRate        = 100 * time.Millisecond // 10 Hz, per spec.md §6
	numDisconnectPackets = 10
)

// Transport is the non-blocking send side a Server drives packets through.
// Receiving is pushed in by the caller via ReceivePacket rather than pulled,
// matching spec.md §5's "application calls tick/send/receive" model.
type Transport interface {
	SendTo(to addr.Address, data []byte) error
}

// Config configures a new Server.
type Config struct {
	ProtocolID    uint64
	PrivateKey    [codec.KeyBytes]byte
	PublicAddress addr.Address
	MaxClients    int
	Transport     Transport
	Logger        netlog.Logger

	// OnConnect and OnDisconnect, if set, are invoked synchronously from
	// Tick/ReceivePacket when a slot's connection state changes.
	OnConnect    func(slotIndex int)
	OnDisconnect func(slotIndex int)
}

// Server is the tick-driven server state machine. All methods must be
// called from a single goroutine; there is no internal locking, matching
// spec.md §5's single-threaded cooperative model.
type Server struct {
	cfg Config

	slots    []slot
	mappings *mappingTable
	tokens   *tokenCache

	challengeKey      [codec.KeyBytes]byte
	challengeSequence uint64

	// globalSequence is used for packets not yet tied to a slot (denied,
	// challenge); starting at 1<<63 keeps it disjoint from any per-slot
	// counter, which starts at 0.
	globalSequence uint64

	running bool
}

// New validates cfg and returns an unstarted Server.
func New(cfg Config) (*Server, error) {
	if cfg.MaxClients < 1 || cfg.MaxClients > 256 {
		return nil, fmt.Errorf("server: max clients %d out of range 1..256", cfg.MaxClients)
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("server: transport is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = netlog.NewNullLogger()
	}

	s := &Server{
		cfg:      cfg,
		slots:    make([]slot, cfg.MaxClients),
		mappings: newMappingTable(cfg.MaxClients * 4),
		tokens:   newTokenCache(cfg.MaxClients * 8),
	}
	for i := range s.slots {
		s.slots[i].shield = replay.New()
		s.slots[i].arena = newSlotArena(slotArenaBytes)
	}
	return s, nil
}

// Start generates a fresh challenge key and resets all server state.
func (s *Server) Start() error {
	if _, err := cryptorand.Read(s.challengeKey[:]); err != nil {
		return fmt.Errorf("server: generating challenge key: %w", err)
	}
	s.challengeSequence = 0
	s.globalSequence = 1 << 63
	s.mappings = newMappingTable(len(s.mappings.entries))
	s.tokens = newTokenCache(len(s.tokens.entries))
	for i := range s.slots {
		s.slots[i].reset()
	}
	s.running = true
	return nil
}

// Stop disconnects every connected slot, issuing up to numDisconnectPackets
// disconnect packets per slot, then marks the server stopped.
func (s *Server) Stop(now time.Time) {
	for i := range s.slots {
		if s.slots[i].connected {
			s.disconnectSlot(i, now, true)
		}
	}
	s.running = false
}

func (s *Server) nextGlobalSequence() uint64 {
	seq := s.globalSequence
	s.globalSequence++
	return seq
}

// slotIndexByAddr returns the index of the connected slot bound to a, or -1.
func (s *Server) slotIndexByAddr(a addr.Address) int {
	for i := range s.slots {
		if s.slots[i].connected && s.slots[i].addr.Equal(a) {
			return i
		}
	}
	return -1
}

func (s *Server) slotIndexByClientID(clientID uint64) int {
	for i := range s.slots {
		if s.slots[i].connected && s.slots[i].clientID == clientID {
			return i
		}
	}
	return -1
}

func (s *Server) freeSlotIndex() int {
	for i := range s.slots {
		if !s.slots[i].connected {
			return i
		}
	}
	return -1
}

func (s *Server) connectedCount() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].connected {
			n++
		}
	}
	return n
}

// ReceivePacket processes one inbound datagram from a non-loopback source.
func (s *Server) ReceivePacket(from addr.Address, data []byte, now time.Time) {
	if slotIdx := s.slotIndexByAddr(from); slotIdx >= 0 {
		s.receiveFromSlot(slotIdx, data, now)
		return
	}

	if m := s.mappings.findByAddr(from); m != nil && !m.expired(now) {
		s.receiveFromMapping(m, from, data, now)
		return
	}

	if len(data) == 0 || data[0] != byte(codec.PacketConnectionRequest) {
		return
	}

	s.handleConnectionRequest(from, data, now)
}

func (s *Server) receiveFromSlot(slotIdx int, data []byte, now time.Time) {
	sl := &s.slots[slotIdx]
	allowed := codec.NewPacketTypeSet(codec.PacketResponse, codec.PacketKeepAlive, codec.PacketPayload, codec.PacketDisconnect)
	pkt, _, err := codec.ReadPacket(data, allowed, s.cfg.ProtocolID, sl.clientKey, sl.shield)
	if err != nil {
		s.cfg.Logger.Printf("server: slot %d receive error: %v", slotIdx, err)
		return
	}

	switch p := pkt.(type) {
	case codec.KeepAlivePacket:
		sl.lastReceive = now
		sl.confirmed = true
	case codec.PayloadPacket:
		sl.lastReceive = now
		sl.confirmed = true
		sl.enqueue(p.Payload)
	case codec.DisconnectPacket:
		s.disconnectSlot(slotIdx, now, false)
	case codec.ResponsePacket:
		// A response after the slot is already connected is a stale
		// retransmit; ignore it.
	}
}

func (s *Server) receiveFromMapping(m *mappingEntry, from addr.Address, data []byte, now time.Time) {
	allowed := codec.NewPacketTypeSet(codec.PacketResponse)
	pkt, _, err := codec.ReadPacket(data, allowed, s.cfg.ProtocolID, m.clientKey, nil)
	if err != nil {
		s.cfg.Logger.Printf("server: mapping receive error: %v", err)
		return
	}
	resp, ok := pkt.(codec.ResponsePacket)
	if !ok {
		return
	}
	s.handleChallengeResponse(m, from, resp, now)
}

func (s *Server) handleConnectionRequest(from addr.Address, data []byte, now time.Time) {
	pkt, plaintext, err := codec.ReadConnectionRequest(data, s.cfg.ProtocolID, uint64(now.Unix()), s.cfg.PrivateKey)
	if err != nil {
		s.cfg.Logger.Printf("server: connection request rejected: %v", err)
		return
	}

	priv, err := token.UnmarshalConnectTokenPrivate(plaintext)
	if err != nil {
		s.cfg.Logger.Printf("server: connection request token unmarshal failed: %v", err)
		return
	}

	addressFound := false
	for _, a := range priv.ServerAddrs {
		if a.Equal(s.cfg.PublicAddress) {
			addressFound = true
			break
		}
	}
	if !addressFound {
		return
	}
	if s.slotIndexByAddr(from) >= 0 {
		return
	}
	if s.slotIndexByClientID(priv.ClientID) >= 0 {
		return
	}

	var tag [codec.MacBytes]byte
	copy(tag[:], pkt.PrivateData[len(pkt.PrivateData)-codec.MacBytes:])
	if !s.tokens.Check(now, tag, from) {
		s.cfg.Logger.Printf("server: connect token replay rejected from %s", from)
		return
	}

	if s.connectedCount() >= len(s.slots) {
		s.sendDenied(from, priv.ServerKey, now)
		return
	}

	expireUnix := int64(-1)
	if priv.TimeoutSecond > 0 {
		expireUnix = now.Unix() + int64(priv.TimeoutSecond)
	}
	m := s.mappings.insert(now, mappingEntry{
		addr:          from,
		clientKey:     priv.ClientKey,
		serverKey:     priv.ServerKey,
		slotIndex:     -1,
		timeoutSecond: priv.TimeoutSecond,
		expireUnix:    expireUnix,
	})

	chal := token.ChallengeToken{ClientID: priv.ClientID, UserData: priv.UserData}
	seq := s.challengeSequence
	s.challengeSequence++
	sealed, err := chal.Seal(s.challengeKey, seq)
	if err != nil {
		s.cfg.Logger.Printf("server: sealing challenge token: %v", err)
		return
	}
	var tokenData [codec.ChallengeTokenBytes]byte
	copy(tokenData[:], sealed)

	challengePkt := codec.ChallengePacket{ChallengeSequence: seq, ChallengeTokenData: tokenData}
	s.sendToMapping(m, challengePkt, now)
}

func (s *Server) handleChallengeResponse(m *mappingEntry, from addr.Address, resp codec.ResponsePacket, now time.Time) {
	chal, err := token.OpenChallengeToken(s.challengeKey, resp.ChallengeSequence, resp.ChallengeTokenData[:])
	if err != nil {
		s.cfg.Logger.Printf("server: challenge response decrypt failed: %v", err)
		return
	}

	if s.slotIndexByAddr(from) >= 0 || s.slotIndexByClientID(chal.ClientID) >= 0 {
		return
	}
	idx := s.freeSlotIndex()
	if idx < 0 {
		s.sendToMapping(m, codec.DeniedPacket{}, now)
		return
	}

	sl := &s.slots[idx]
	sl.reset()
	sl.connected = true
	sl.confirmed = false
	sl.addr = from
	sl.clientID = chal.ClientID
	sl.clientKey = m.clientKey
	sl.serverKey = m.serverKey
	sl.timeoutSecond = m.timeoutSecond
	sl.lastReceive = now
	sl.lastSend = time.Time{}

	s.mappings.remove(m)

	s.sendToSlot(idx, codec.KeepAlivePacket{ClientIndex: uint32(idx), MaxClients: uint32(len(s.slots))}, now)

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(idx)
	}
}

func (s *Server) sendDenied(to addr.Address, serverKey [codec.KeyBytes]byte, now time.Time) {
	seq := s.nextGlobalSequence()
	wire, err := codec.WritePacket(codec.DeniedPacket{}, serverKey, s.cfg.ProtocolID, seq)
	if err != nil {
		s.cfg.Logger.Printf("server: writing denied packet: %v", err)
		return
	}
	_ = s.cfg.Transport.SendTo(to, wire)
}

func (s *Server) sendToMapping(m *mappingEntry, pkt codec.Packet, now time.Time) {
	seq := s.nextGlobalSequence()
	wire, err := codec.WritePacket(pkt, m.serverKey, s.cfg.ProtocolID, seq)
	if err != nil {
		s.cfg.Logger.Printf("server: writing packet to mapping: %v", err)
		return
	}
	_ = s.cfg.Transport.SendTo(m.addr, wire)
}

func (s *Server) sendToSlot(idx int, pkt codec.Packet, now time.Time) {
	sl := &s.slots[idx]
	seq := sl.nextSendSequence()
	wire, err := codec.WritePacket(pkt, sl.serverKey, s.cfg.ProtocolID, seq)
	if err != nil {
		s.cfg.Logger.Printf("server: writing packet to slot %d: %v", idx, err)
		return
	}
	sl.lastSend = now
	if sl.loopback {
		return
	}
	_ = s.cfg.Transport.SendTo(sl.addr, wire)
}

// Send queues an application payload for slotIdx, prepending a keep-alive
// first if the slot has never yet been confirmed by the client.
func (s *Server) Send(slotIdx int, payload []byte, now time.Time) error {
	if slotIdx < 0 || slotIdx >= len(s.slots) || !s.slots[slotIdx].connected {
		return fmt.Errorf("server: slot %d is not connected", slotIdx)
	}
	if !s.slots[slotIdx].confirmed {
		s.sendToSlot(slotIdx, codec.KeepAlivePacket{ClientIndex: uint32(slotIdx), MaxClients: uint32(len(s.slots))}, now)
	}
	s.sendToSlot(slotIdx, codec.PayloadPacket{Payload: payload}, now)
	return nil
}

// Receive pops the oldest undelivered payload for a connected slot.
func (s *Server) Receive(slotIdx int) ([]byte, bool) {
	if slotIdx < 0 || slotIdx >= len(s.slots) || !s.slots[slotIdx].connected {
		return nil, false
	}
	return s.slots[slotIdx].dequeue()
}

// Tick drives the send path (keep-alive pump) and the timeout pump. It
// should be called at a steady rate (e.g. the 10 Hz packet_send_rate).
func (s *Server) Tick(now time.Time) {
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.connected || sl.loopback {
			continue
		}
		if sl.timeoutSecond > 0 {
			deadline := sl.lastReceive.Add(time.Duration(sl.timeoutSecond) * time.Second)
			if !deadline.After(now) {
				s.disconnectSlot(i, now, false)
				continue
			}
		}
		if now.Sub(sl.lastSend) >= keepAliveRate {
			s.sendToSlot(i, codec.KeepAlivePacket{ClientIndex: uint32(i), MaxClients: uint32(len(s.slots))}, now)
		}
	}
}

// DisconnectClient programmatically disconnects slotIdx, flushing
// disconnect packets first. Idempotent.
func (s *Server) DisconnectClient(slotIdx int, now time.Time) error {
	if slotIdx < 0 || slotIdx >= len(s.slots) {
		return fmt.Errorf("server: slot index %d out of range", slotIdx)
	}
	if !s.slots[slotIdx].connected {
		return nil
	}
	s.disconnectSlot(slotIdx, now, true)
	return nil
}

func (s *Server) disconnectSlot(idx int, now time.Time, sendPackets bool) {
	sl := &s.slots[idx]
	if sendPackets && !sl.loopback {
		for i := 0; i < numDisconnectPackets; i++ {
			s.sendToSlot(idx, codec.DisconnectPacket{}, now)
		}
	}
	sl.reset()
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(idx)
	}
}

// ConnectLoopback installs a loopback slot bypassing all socket traffic,
// keep-alives, and timeouts, per spec.md §4.5. Inbound payloads are handed
// in by the application through ReceiveLoopbackPayload. There is no outbound
// loopback callback: packets sent to a loopback slot (Send, disconnect) are
// encoded and then discarded, not delivered anywhere.
func (s *Server) ConnectLoopback(clientID uint64) (int, error) {
	idx := s.freeSlotIndex()
	if idx < 0 {
		return -1, fmt.Errorf("server: no free slot for loopback client")
	}
	sl := &s.slots[idx]
	sl.reset()
	sl.connected = true
	sl.confirmed = true
	sl.loopback = true
	sl.clientID = clientID
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(idx)
	}
	return idx, nil
}

// ReceiveLoopbackPayload enqueues a payload handed directly to a loopback
// slot by the application, bypassing the transport entirely.
func (s *Server) ReceiveLoopbackPayload(slotIdx int, payload []byte, now time.Time) error {
	if slotIdx < 0 || slotIdx >= len(s.slots) || !s.slots[slotIdx].connected || !s.slots[slotIdx].loopback {
		return fmt.Errorf("server: slot %d is not a connected loopback slot", slotIdx)
	}
	s.slots[slotIdx].lastReceive = now
	s.slots[slotIdx].enqueue(payload)
	return nil
}

// ConnectedSlots returns the indices of every currently connected slot.
func (s *Server) ConnectedSlots() []int {
	var out []int
	for i := range s.slots {
		if s.slots[i].connected {
			out = append(out, i)
		}
	}
	return out
}

// SlotInfo is a read-only snapshot of one ClientSlot, for callers that want
// to observe server state without reaching into package internals (the
// netcode-demo TUI's slot table, logging, metrics).
type SlotInfo struct {
	Index       int
	Connected   bool
	Confirmed   bool
	Loopback    bool
	Addr        addr.Address
	ClientID    uint64
	LastReceive time.Time
	LastSend    time.Time
	QueueDepth  int
}

// Slots returns a snapshot of every slot, connected or free.
func (s *Server) Slots() []SlotInfo {
	out := make([]SlotInfo, len(s.slots))
	for i := range s.slots {
		sl := &s.slots[i]
		out[i] = SlotInfo{
			Index:       i,
			Connected:   sl.connected,
			Confirmed:   sl.confirmed,
			Loopback:    sl.loopback,
			Addr:        sl.addr,
			ClientID:    sl.clientID,
			LastReceive: sl.lastReceive,
			LastSend:    sl.lastSend,
			QueueDepth:  len(sl.receiveQueue),
		}
	}
	return out
}
