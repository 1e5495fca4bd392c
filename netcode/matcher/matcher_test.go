package matcher

import (
	"crypto/rand"
	"net/netip"
	"testing"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
)

func TestMintRoundTrip(t *testing.T) {
	var privateKey [codec.KeyBytes]byte
	if _, err := rand.Read(privateKey[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	servers := []addr.Address{
		addr.FromNetipAddrPort(netip.MustParseAddrPort("198.51.100.1:40000")),
	}

	pub, err := Mint(Params{
		ProtocolID:      1,
		PrivateKey:      privateKey,
		ClientID:        99,
		ServerAddrs:     servers,
		TimeoutSecond:   15,
		ExpirySeconds:   30,
		CreateTimestamp: 1000,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	wire := pub.Marshal()
	if len(wire) != codec.ConnectTokenBytes {
		t.Fatalf("token length = %d, want %d", len(wire), codec.ConnectTokenBytes)
	}
	if pub.ExpireTimestamp != 1030 {
		t.Fatalf("ExpireTimestamp = %d, want 1030", pub.ExpireTimestamp)
	}

	priv, err := pub.Open(privateKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if priv.ClientID != 99 {
		t.Fatalf("ClientID = %d, want 99", priv.ClientID)
	}
	if len(priv.ServerAddrs) != 1 || !priv.ServerAddrs[0].Equal(servers[0]) {
		t.Fatalf("server addresses mismatch: %+v", priv.ServerAddrs)
	}
}

func TestMintRejectsEmptyServerList(t *testing.T) {
	var privateKey [codec.KeyBytes]byte
	if _, err := Mint(Params{ProtocolID: 1, PrivateKey: privateKey, ServerAddrs: nil}); err == nil {
		t.Fatalf("expected error for empty server address list")
	}
}
