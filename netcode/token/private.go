// Package token implements the three netcode token formats: the public
// connect token handed to a client out of band, the private connect-token
// section sealed inside it, and the per-connection challenge token, per §4.3
// and §5.
package token

import (
	"encoding/binary"
	"fmt"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
)

// privatePlaintextBytes is the size of the private connect-token section
// before AEAD sealing: ConnectTokenPrivateBytes minus the Poly1305 tag.
const privatePlaintextBytes = codec.ConnectTokenPrivateBytes - codec.MacBytes

// ConnectTokenPrivate is the plaintext the matchmaker seals into a public
// connect token's private section.
type ConnectTokenPrivate struct {
	ClientID      uint64
	TimeoutSecond int32
	ServerAddrs   []addr.Address
	ClientKey     [codec.KeyBytes]byte
	ServerKey     [codec.KeyBytes]byte
	UserData      [codec.UserDataBytes]byte
}

// Marshal lays out the private section plaintext: client id, timeout,
// server-address count + list, client->server key, server->client key,
// user data, zero-padded to privatePlaintextBytes.
func (p ConnectTokenPrivate) Marshal() ([]byte, error) {
	if len(p.ServerAddrs) < 1 || len(p.ServerAddrs) > codec.MaxServersPerConnect {
		return nil, fmt.Errorf("token: server address count %d out of range", len(p.ServerAddrs))
	}

	buf := make([]byte, privatePlaintextBytes)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], p.ClientID)
	offset += 8

	binary.LittleEndian.PutUint32(buf[offset:], uint32(p.TimeoutSecond))
	offset += 4

	buf[offset] = byte(len(p.ServerAddrs))
	offset++

	for _, a := range p.ServerAddrs {
		n := a.Encode(buf[offset : offset+addr.MaxEncodedLen])
		offset += n
	}

	// Fixed-width region for the address list lets the reader know exactly
	// where the keys start regardless of how many addresses were encoded.
	maxAddrRegion := codec.MaxServersPerConnect * addr.MaxEncodedLen
	offset = 8 + 4 + 1 + maxAddrRegion

	copy(buf[offset:], p.ClientKey[:])
	offset += codec.KeyBytes

	copy(buf[offset:], p.ServerKey[:])
	offset += codec.KeyBytes

	copy(buf[offset:], p.UserData[:])
	offset += codec.UserDataBytes

	if offset > privatePlaintextBytes {
		return nil, fmt.Errorf("token: private section overflowed fixed layout")
	}
	return buf, nil
}

// UnmarshalConnectTokenPrivate parses the plaintext produced by Marshal.
func UnmarshalConnectTokenPrivate(buf []byte) (ConnectTokenPrivate, error) {
	var p ConnectTokenPrivate
	if len(buf) != privatePlaintextBytes {
		return p, fmt.Errorf("token: private section length %d, want %d", len(buf), privatePlaintextBytes)
	}

	offset := 0
	p.ClientID = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8

	p.TimeoutSecond = int32(binary.LittleEndian.Uint32(buf[offset:]))
	offset += 4

	count := int(buf[offset])
	offset++
	if count < 1 || count > codec.MaxServersPerConnect {
		return p, fmt.Errorf("token: server address count %d out of range", count)
	}

	addrRegionStart := offset
	p.ServerAddrs = make([]addr.Address, 0, count)
	for i := 0; i < count; i++ {
		a, n, err := addr.Decode(buf[offset:])
		if err != nil {
			return p, fmt.Errorf("token: decoding server address %d: %w", i, err)
		}
		p.ServerAddrs = append(p.ServerAddrs, a)
		offset += n
	}
	_ = addrRegionStart

	maxAddrRegion := codec.MaxServersPerConnect * addr.MaxEncodedLen
	offset = 8 + 4 + 1 + maxAddrRegion

	copy(p.ClientKey[:], buf[offset:offset+codec.KeyBytes])
	offset += codec.KeyBytes

	copy(p.ServerKey[:], buf[offset:offset+codec.KeyBytes])
	offset += codec.KeyBytes

	copy(p.UserData[:], buf[offset:offset+codec.UserDataBytes])

	return p, nil
}

// Seal marshals then AEAD-seals the private section under key, returning
// ConnectTokenPrivateBytes of ciphertext||tag ready to embed in a public
// token.
func (p ConnectTokenPrivate) Seal(key [codec.KeyBytes]byte, protocolID, expireTimestamp uint64, nonce [24]byte) ([]byte, error) {
	plaintext, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return codec.SealConnectTokenPrivate(key, protocolID, expireTimestamp, nonce, plaintext)
}

// OpenConnectTokenPrivate decrypts and parses a private section.
func OpenConnectTokenPrivate(key [codec.KeyBytes]byte, protocolID, expireTimestamp uint64, nonce [24]byte, ciphertext []byte) (ConnectTokenPrivate, error) {
	plaintext, err := codec.OpenConnectTokenPrivate(key, protocolID, expireTimestamp, nonce, ciphertext)
	if err != nil {
		return ConnectTokenPrivate{}, err
	}
	return UnmarshalConnectTokenPrivate(plaintext)
}
