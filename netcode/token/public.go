package token

import (
	"encoding/binary"
	"fmt"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
)

// maxAddrRegionBytes is the fixed-width region the address list occupies
// regardless of how many addresses it actually holds, so every following
// field sits at a constant offset.
const maxAddrRegionBytes = codec.MaxServersPerConnect * addr.MaxEncodedLen

// cleartextSectionBytes is everything after the encrypted private section:
// timeout, address count + list, both per-direction keys, and user data.
// The client reads this directly (it never holds the server's private
// key and so can never decrypt PrivateData itself); the server instead
// trusts only what it decrypts from PrivateData. Both copies are produced
// from the same ConnectTokenPrivate by NewPublicConnectToken.
const cleartextSectionBytes = 4 + 1 + maxAddrRegionBytes + codec.KeyBytes + codec.KeyBytes + codec.UserDataBytes

// PublicConnectToken is the 2048-byte token a matchmaker hands a client out
// of band. PrivateData is opaque ciphertext only the server's private key
// can open; every other field is cleartext and directly usable by the
// client.
type PublicConnectToken struct {
	VersionInfo     [13]byte
	ProtocolID      uint64
	CreateTimestamp uint64
	ExpireTimestamp uint64
	Nonce           [24]byte
	PrivateData     [codec.ConnectTokenPrivateBytes]byte

	TimeoutSecond int32
	ServerAddrs   []addr.Address
	ClientKey     [codec.KeyBytes]byte
	ServerKey     [codec.KeyBytes]byte
	UserData      [codec.UserDataBytes]byte
}

// NewPublicConnectToken seals priv's plaintext into PrivateData and mirrors
// priv's client-usable fields into cleartext, assembling the full public
// token.
func NewPublicConnectToken(priv ConnectTokenPrivate, privateKey [codec.KeyBytes]byte, protocolID uint64, createTimestamp, expireTimestamp uint64, nonce [24]byte) (PublicConnectToken, error) {
	if len(priv.ServerAddrs) < 1 || len(priv.ServerAddrs) > codec.MaxServersPerConnect {
		return PublicConnectToken{}, fmt.Errorf("token: server address count %d out of range", len(priv.ServerAddrs))
	}
	sealed, err := priv.Seal(privateKey, protocolID, expireTimestamp, nonce)
	if err != nil {
		return PublicConnectToken{}, err
	}
	tok := PublicConnectToken{
		VersionInfo:     codec.VersionInfo,
		ProtocolID:      protocolID,
		CreateTimestamp: createTimestamp,
		ExpireTimestamp: expireTimestamp,
		Nonce:           nonce,
		TimeoutSecond:   priv.TimeoutSecond,
		ServerAddrs:     priv.ServerAddrs,
		ClientKey:       priv.ClientKey,
		ServerKey:       priv.ServerKey,
		UserData:        priv.UserData,
	}
	copy(tok.PrivateData[:], sealed)
	return tok, nil
}

// Marshal writes the fixed ConnectTokenBytes wire form. Callers are
// expected to have produced t via NewPublicConnectToken or Unmarshal, both
// of which already enforce the server address count invariant.
func (t PublicConnectToken) Marshal() []byte {
	buf := make([]byte, codec.ConnectTokenBytes)
	offset := 0
	copy(buf[offset:], t.VersionInfo[:])
	offset += 13
	binary.LittleEndian.PutUint64(buf[offset:], t.ProtocolID)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], t.CreateTimestamp)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], t.ExpireTimestamp)
	offset += 8
	copy(buf[offset:], t.Nonce[:])
	offset += 24
	copy(buf[offset:], t.PrivateData[:])
	offset += codec.ConnectTokenPrivateBytes

	binary.LittleEndian.PutUint32(buf[offset:], uint32(t.TimeoutSecond))
	offset += 4

	buf[offset] = byte(len(t.ServerAddrs))
	offset++
	addrOffset := offset
	for _, a := range t.ServerAddrs {
		n := a.Encode(buf[addrOffset : addrOffset+addr.MaxEncodedLen])
		addrOffset += n
	}
	offset += maxAddrRegionBytes

	copy(buf[offset:], t.ClientKey[:])
	offset += codec.KeyBytes
	copy(buf[offset:], t.ServerKey[:])
	offset += codec.KeyBytes
	copy(buf[offset:], t.UserData[:])

	return buf
}

// Unmarshal parses the wire form produced by Marshal, validating the
// create<=expire and version invariants but not decrypting PrivateData.
func Unmarshal(buf []byte) (PublicConnectToken, error) {
	var t PublicConnectToken
	if len(buf) != codec.ConnectTokenBytes {
		return t, fmt.Errorf("token: public token length %d, want %d", len(buf), codec.ConnectTokenBytes)
	}

	offset := 0
	copy(t.VersionInfo[:], buf[offset:offset+13])
	offset += 13
	if t.VersionInfo != codec.VersionInfo {
		return t, codec.ErrBadVersion
	}

	t.ProtocolID = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	t.CreateTimestamp = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	t.ExpireTimestamp = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8
	if t.CreateTimestamp > t.ExpireTimestamp {
		return t, fmt.Errorf("token: create timestamp %d after expire timestamp %d", t.CreateTimestamp, t.ExpireTimestamp)
	}

	copy(t.Nonce[:], buf[offset:offset+24])
	offset += 24

	copy(t.PrivateData[:], buf[offset:offset+codec.ConnectTokenPrivateBytes])
	offset += codec.ConnectTokenPrivateBytes

	t.TimeoutSecond = int32(binary.LittleEndian.Uint32(buf[offset:]))
	offset += 4

	count := int(buf[offset])
	offset++
	if count < 1 || count > codec.MaxServersPerConnect {
		return t, fmt.Errorf("token: server address count %d out of range", count)
	}
	addrOffset := offset
	t.ServerAddrs = make([]addr.Address, 0, count)
	for i := 0; i < count; i++ {
		a, n, err := addr.Decode(buf[addrOffset:])
		if err != nil {
			return t, fmt.Errorf("token: decoding server address %d: %w", i, err)
		}
		t.ServerAddrs = append(t.ServerAddrs, a)
		addrOffset += n
	}
	offset += maxAddrRegionBytes

	copy(t.ClientKey[:], buf[offset:offset+codec.KeyBytes])
	offset += codec.KeyBytes
	copy(t.ServerKey[:], buf[offset:offset+codec.KeyBytes])
	offset += codec.KeyBytes
	copy(t.UserData[:], buf[offset:offset+codec.UserDataBytes])

	return t, nil
}

// Open decrypts and parses the embedded private section under the server's
// private key. Only the server (holder of that key) can call this
// successfully.
func (t PublicConnectToken) Open(privateKey [codec.KeyBytes]byte) (ConnectTokenPrivate, error) {
	return OpenConnectTokenPrivate(privateKey, t.ProtocolID, t.ExpireTimestamp, t.Nonce, t.PrivateData[:])
}

// VerifyKeysMatch reports whether priv's client/server keys equal other's,
// once both private sections are already independently decrypted. Only the
// tests call it.
func (priv ConnectTokenPrivate) VerifyKeysMatch(other ConnectTokenPrivate) bool {
	return priv.ClientKey == other.ClientKey && priv.ServerKey == other.ServerKey
}
