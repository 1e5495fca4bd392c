package token

import (
	"crypto/rand"
	"net/netip"
	"testing"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
)

func randomKey(t *testing.T) [codec.KeyBytes]byte {
	t.Helper()
	var k [codec.KeyBytes]byte
	if _, err := rand.Read(k[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return k
}

func samplePrivate(t *testing.T) ConnectTokenPrivate {
	t.Helper()
	a1 := addr.FromNetipAddrPort(netip.MustParseAddrPort("203.0.113.10:40000"))
	a2 := addr.FromNetipAddrPort(netip.MustParseAddrPort("[2001:db8::1]:40001"))
	var userData [codec.UserDataBytes]byte
	copy(userData[:], []byte("hello client"))
	return ConnectTokenPrivate{
		ClientID:      12345,
		TimeoutSecond: 10,
		ServerAddrs:   []addr.Address{a1, a2},
		ClientKey:     randomKey(t),
		ServerKey:     randomKey(t),
		UserData:      userData,
	}
}

func TestConnectTokenPrivateMarshalRoundTrip(t *testing.T) {
	priv := samplePrivate(t)
	buf, err := priv.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalConnectTokenPrivate(buf)
	if err != nil {
		t.Fatalf("UnmarshalConnectTokenPrivate: %v", err)
	}
	if got.ClientID != priv.ClientID || got.TimeoutSecond != priv.TimeoutSecond {
		t.Fatalf("header mismatch: got %+v want %+v", got, priv)
	}
	if len(got.ServerAddrs) != len(priv.ServerAddrs) {
		t.Fatalf("server address count mismatch: got %d want %d", len(got.ServerAddrs), len(priv.ServerAddrs))
	}
	for i := range priv.ServerAddrs {
		if !got.ServerAddrs[i].Equal(priv.ServerAddrs[i]) {
			t.Fatalf("server address %d mismatch: got %v want %v", i, got.ServerAddrs[i], priv.ServerAddrs[i])
		}
	}
	if got.ClientKey != priv.ClientKey || got.ServerKey != priv.ServerKey {
		t.Fatalf("key mismatch")
	}
	if got.UserData != priv.UserData {
		t.Fatalf("user data mismatch")
	}
}

func TestConnectTokenPrivateRejectsBadAddressCount(t *testing.T) {
	priv := samplePrivate(t)
	priv.ServerAddrs = nil
	if _, err := priv.Marshal(); err == nil {
		t.Fatalf("expected error for zero server addresses")
	}

	many := make([]addr.Address, codec.MaxServersPerConnect+1)
	for i := range many {
		many[i] = addr.FromNetipAddrPort(netip.MustParseAddrPort("127.0.0.1:1"))
	}
	priv.ServerAddrs = many
	if _, err := priv.Marshal(); err == nil {
		t.Fatalf("expected error for too many server addresses")
	}
}

func TestConnectTokenPrivateSealOpenRoundTrip(t *testing.T) {
	priv := samplePrivate(t)
	key := randomKey(t)
	const protocolID, expire = uint64(99), uint64(5000)
	var nonce [24]byte
	copy(nonce[:], []byte("0123456789012345678901"))

	sealed, err := priv.Seal(key, protocolID, expire, nonce)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != codec.ConnectTokenPrivateBytes {
		t.Fatalf("sealed length = %d, want %d", len(sealed), codec.ConnectTokenPrivateBytes)
	}

	got, err := OpenConnectTokenPrivate(key, protocolID, expire, nonce, sealed)
	if err != nil {
		t.Fatalf("OpenConnectTokenPrivate: %v", err)
	}
	if !got.VerifyKeysMatch(priv) {
		t.Fatalf("keys do not match after open round trip")
	}
}

func TestPublicConnectTokenRoundTrip(t *testing.T) {
	priv := samplePrivate(t)
	privateKey := randomKey(t)
	const protocolID = uint64(42)
	const create, expire = uint64(1000), uint64(2000)
	var nonce [24]byte
	copy(nonce[:], []byte("abcdefghijklmnopqrstuvwx"))

	pub, err := NewPublicConnectToken(priv, privateKey, protocolID, create, expire, nonce)
	if err != nil {
		t.Fatalf("NewPublicConnectToken: %v", err)
	}

	wire := pub.Marshal()
	if len(wire) != codec.ConnectTokenBytes {
		t.Fatalf("public token length = %d, want %d", len(wire), codec.ConnectTokenBytes)
	}

	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ProtocolID != protocolID || got.CreateTimestamp != create || got.ExpireTimestamp != expire {
		t.Fatalf("header mismatch: %+v", got)
	}

	openedPriv, err := got.Open(privateKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !openedPriv.VerifyKeysMatch(priv) {
		t.Fatalf("opened private section keys do not match original")
	}
}

func TestPublicConnectTokenRejectsCreateAfterExpire(t *testing.T) {
	priv := samplePrivate(t)
	privateKey := randomKey(t)
	var nonce [24]byte
	pub, err := NewPublicConnectToken(priv, privateKey, 1, 2000, 1000, nonce)
	if err != nil {
		t.Fatalf("NewPublicConnectToken: %v", err)
	}
	wire := pub.Marshal()
	if _, err := Unmarshal(wire); err == nil {
		t.Fatalf("expected error for create timestamp after expire timestamp")
	}
}

func TestChallengeTokenRoundTrip(t *testing.T) {
	var userData [codec.UserDataBytes]byte
	copy(userData[:], []byte("challenge user data"))
	tok := ChallengeToken{ClientID: 777, UserData: userData}
	key := randomKey(t)

	sealed, err := tok.Seal(key, 55)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != codec.ChallengeTokenBytes {
		t.Fatalf("sealed length = %d, want %d", len(sealed), codec.ChallengeTokenBytes)
	}

	got, err := OpenChallengeToken(key, 55, sealed)
	if err != nil {
		t.Fatalf("OpenChallengeToken: %v", err)
	}
	if got != tok {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, tok)
	}
}

func TestChallengeTokenWrongSequenceFails(t *testing.T) {
	var tok ChallengeToken
	key := randomKey(t)
	sealed, _ := tok.Seal(key, 1)
	if _, err := OpenChallengeToken(key, 2, sealed); err != codec.ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed for wrong sequence, got %v", err)
	}
}
