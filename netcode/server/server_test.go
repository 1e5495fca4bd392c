package server

import (
	"crypto/rand"
	"net/netip"
	"testing"
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/token"
)

type recordingTransport struct {
	sent []sentPacket
}

type sentPacket struct {
	to   addr.Address
	data []byte
}

func (r *recordingTransport) SendTo(to addr.Address, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.sent = append(r.sent, sentPacket{to: to, data: cp})
	return nil
}

func (r *recordingTransport) last() *sentPacket {
	if len(r.sent) == 0 {
		return nil
	}
	return &r.sent[len(r.sent)-1]
}

func mustKey(t *testing.T) [codec.KeyBytes]byte {
	t.Helper()
	var k [codec.KeyBytes]byte
	if _, err := rand.Read(k[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return k
}

func newTestServer(t *testing.T, publicAddr addr.Address, privateKey [codec.KeyBytes]byte) (*Server, *recordingTransport) {
	t.Helper()
	transport := &recordingTransport{}
	s, err := New(Config{
		ProtocolID:    7,
		PrivateKey:    privateKey,
		PublicAddress: publicAddr,
		MaxClients:    4,
		Transport:     transport,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, transport
}

// clientConnectRequest mints a public token for the given client and server
// and returns its connection-request wire bytes plus the private section,
// so the test can forge further handshake steps.
func clientConnectRequest(t *testing.T, protocolID uint64, privateKey [codec.KeyBytes]byte, clientID uint64, clientAddr, serverAddr addr.Address, timeoutSecond int32, now time.Time) (codec.ConnectionRequestPacket, token.ConnectTokenPrivate) {
	t.Helper()

	priv := token.ConnectTokenPrivate{
		ClientID:      clientID,
		TimeoutSecond: timeoutSecond,
		ServerAddrs:   []addr.Address{serverAddr},
		UserData:      [codec.UserDataBytes]byte{},
	}
	if _, err := rand.Read(priv.ClientKey[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	if _, err := rand.Read(priv.ServerKey[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	expire := uint64(now.Unix()) + 1000
	sealed, err := priv.Seal(privateKey, protocolID, expire, nonce)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	pkt := codec.ConnectionRequestPacket{
		VersionInfo:     codec.VersionInfo,
		ProtocolID:      protocolID,
		ExpireTimestamp: expire,
		Nonce:           nonce,
	}
	copy(pkt.PrivateData[:], sealed)
	return pkt, priv
}

func TestServerFullHandshakeAndPayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	serverAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.1:40000"))
	clientAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.1:50000"))
	privateKey := mustKey(t)

	s, transport := newTestServer(t, serverAddr, privateKey)

	reqPkt, priv := clientConnectRequest(t, 7, privateKey, 42, clientAddr, serverAddr, 10, now)
	s.ReceivePacket(clientAddr, codec.WriteConnectionRequest(reqPkt), now)

	last := transport.last()
	if last == nil {
		t.Fatalf("expected server to send a challenge packet")
	}
	allowed := codec.NewPacketTypeSet(codec.PacketChallenge)
	gotPkt, _, err := codec.ReadPacket(last.data, allowed, 7, priv.ServerKey, nil)
	if err != nil {
		t.Fatalf("decoding challenge packet: %v", err)
	}
	challenge, ok := gotPkt.(codec.ChallengePacket)
	if !ok {
		t.Fatalf("expected a challenge packet, got %T", gotPkt)
	}

	respPkt := codec.ResponsePacket{ChallengeSequence: challenge.ChallengeSequence, ChallengeTokenData: challenge.ChallengeTokenData}
	respWire, err := codec.WritePacket(respPkt, priv.ClientKey, 7, 0)
	if err != nil {
		t.Fatalf("WritePacket response: %v", err)
	}
	s.ReceivePacket(clientAddr, respWire, now)

	slots := s.ConnectedSlots()
	if len(slots) != 1 {
		t.Fatalf("expected 1 connected slot, got %d", len(slots))
	}
	slotIdx := slots[0]

	last = transport.last()
	if last == nil {
		t.Fatalf("expected server to send a keep-alive after challenge response")
	}
	gotPkt, _, err = codec.ReadPacket(last.data, codec.NewPacketTypeSet(codec.PacketKeepAlive), 7, priv.ServerKey, nil)
	if err != nil {
		t.Fatalf("decoding keep-alive: %v", err)
	}
	keepAlive, ok := gotPkt.(codec.KeepAlivePacket)
	if !ok || int(keepAlive.ClientIndex) != slotIdx {
		t.Fatalf("unexpected keep-alive: %+v", gotPkt)
	}

	if err := s.Send(slotIdx, []byte("hello"), now); err != nil {
		t.Fatalf("Send: %v", err)
	}
	last = transport.last()
	gotPkt, _, err = codec.ReadPacket(last.data, codec.NewPacketTypeSet(codec.PacketPayload), 7, priv.ServerKey, nil)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	payload, ok := gotPkt.(codec.PayloadPacket)
	if !ok || string(payload.Payload) != "hello" {
		t.Fatalf("unexpected payload packet: %+v", gotPkt)
	}

	appPayloadWire, err := codec.WritePacket(codec.PayloadPacket{Payload: []byte("ping")}, priv.ClientKey, 7, 1)
	if err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	s.ReceivePacket(clientAddr, appPayloadWire, now)

	got, ok := s.Receive(slotIdx)
	if !ok || string(got) != "ping" {
		t.Fatalf("Receive = %q, %v; want \"ping\", true", got, ok)
	}
}

func TestServerRejectsFullServer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	serverAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.1:40000"))
	privateKey := mustKey(t)

	transport := &recordingTransport{}
	s, err := New(Config{ProtocolID: 1, PrivateKey: privateKey, PublicAddress: serverAddr, MaxClients: 1, Transport: transport})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	connectAndFinish := func(clientID uint64, clientAddr addr.Address) {
		reqPkt, priv := clientConnectRequest(t, 1, privateKey, clientID, clientAddr, serverAddr, 10, now)
		s.ReceivePacket(clientAddr, codec.WriteConnectionRequest(reqPkt), now)
		last := transport.last()
		gotPkt, _, err := codec.ReadPacket(last.data, codec.NewPacketTypeSet(codec.PacketChallenge), 1, priv.ServerKey, nil)
		if err != nil {
			t.Fatalf("decoding challenge: %v", err)
		}
		challenge := gotPkt.(codec.ChallengePacket)
		respWire, _ := codec.WritePacket(codec.ResponsePacket{ChallengeSequence: challenge.ChallengeSequence, ChallengeTokenData: challenge.ChallengeTokenData}, priv.ClientKey, 1, 0)
		s.ReceivePacket(clientAddr, respWire, now)
	}

	connectAndFinish(1, addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.1:1")))
	if len(s.ConnectedSlots()) != 1 {
		t.Fatalf("expected 1 connected slot after first client")
	}

	clientAddr2 := addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.2:2"))
	reqPkt2, priv2 := clientConnectRequest(t, 1, privateKey, 2, clientAddr2, serverAddr, 10, now)
	s.ReceivePacket(clientAddr2, codec.WriteConnectionRequest(reqPkt2), now)

	last := transport.last()
	gotPkt, _, err := codec.ReadPacket(last.data, codec.NewPacketTypeSet(codec.PacketDenied), 1, priv2.ServerKey, nil)
	if err != nil {
		t.Fatalf("decoding denied packet: %v", err)
	}
	if _, ok := gotPkt.(codec.DeniedPacket); !ok {
		t.Fatalf("expected a denied packet for a full server, got %T", gotPkt)
	}
	if len(s.ConnectedSlots()) != 1 {
		t.Fatalf("second client must not have taken a slot on a full server")
	}
}

func TestServerTimeoutDisconnectsSlot(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	serverAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.1:40000"))
	clientAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.1:50000"))
	privateKey := mustKey(t)

	s, transport := newTestServer(t, serverAddr, privateKey)

	reqPkt, priv := clientConnectRequest(t, 7, privateKey, 1, clientAddr, serverAddr, 5, now)
	s.ReceivePacket(clientAddr, codec.WriteConnectionRequest(reqPkt), now)
	last := transport.last()
	gotPkt, _, _ := codec.ReadPacket(last.data, codec.NewPacketTypeSet(codec.PacketChallenge), 7, priv.ServerKey, nil)
	challenge := gotPkt.(codec.ChallengePacket)
	respWire, _ := codec.WritePacket(codec.ResponsePacket{ChallengeSequence: challenge.ChallengeSequence, ChallengeTokenData: challenge.ChallengeTokenData}, priv.ClientKey, 7, 0)
	s.ReceivePacket(clientAddr, respWire, now)

	slots := s.ConnectedSlots()
	if len(slots) != 1 {
		t.Fatalf("expected 1 connected slot")
	}

	later := now.Add(6 * time.Second)
	s.Tick(later)

	if len(s.ConnectedSlots()) != 0 {
		t.Fatalf("expected slot to be disconnected after timeout")
	}
}

func TestServerLoopback(t *testing.T) {
	serverAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.1:40000"))
	privateKey := mustKey(t)
	s, transport := newTestServer(t, serverAddr, privateKey)

	idx, err := s.ConnectLoopback(99)
	if err != nil {
		t.Fatalf("ConnectLoopback: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	if err := s.ReceiveLoopbackPayload(idx, []byte("loop"), now); err != nil {
		t.Fatalf("ReceiveLoopbackPayload: %v", err)
	}
	got, ok := s.Receive(idx)
	if !ok || string(got) != "loop" {
		t.Fatalf("Receive = %q, %v; want \"loop\", true", got, ok)
	}

	s.Tick(now.Add(time.Hour))
	if len(transport.sent) != 0 {
		t.Fatalf("loopback slot must never generate socket traffic, got %d packets", len(transport.sent))
	}
	if len(s.ConnectedSlots()) != 1 {
		t.Fatalf("loopback slot should survive Tick untouched")
	}
}

func TestServerRejectsTokenReplayFromDifferentAddress(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	serverAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.1:40000"))
	clientAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.1:50000"))
	otherAddr := addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.2:50000"))
	privateKey := mustKey(t)

	s, transport := newTestServer(t, serverAddr, privateKey)

	reqPkt, _ := clientConnectRequest(t, 7, privateKey, 1, clientAddr, serverAddr, 10, now)
	wire := codec.WriteConnectionRequest(reqPkt)

	s.ReceivePacket(clientAddr, wire, now)
	firstSendCount := len(transport.sent)
	if firstSendCount == 0 {
		t.Fatalf("expected a challenge to be sent for the first request")
	}

	s.ReceivePacket(otherAddr, wire, now)
	if len(transport.sent) != firstSendCount {
		t.Fatalf("expected the same token replayed from a different address to be rejected silently")
	}
}
