// Package codec implements the netcode wire format: packet serialization,
// AEAD framing (ChaCha20-Poly1305 IETF for packets, XChaCha20-Poly1305 for
// the connect-token private section), and the reader/writer contracts the
// server and client state machines drive.
package codec

import "golang.org/x/crypto/chacha20poly1305"

// VersionInfo is the 13-byte version string carried in every connect token
// and connection-request packet.
var VersionInfo = [13]byte{'N', 'E', 'T', 'C', 'O', 'D', 'E', ' ', '1', '.', '0', '2', 0}

const (
	// MaxPacketBytes is the largest packet the codec ever writes.
	MaxPacketBytes = 1300

	// ConnectTokenBytes is the fixed on-wire size of the public connect token.
	ConnectTokenBytes = 2048

	// ConnectTokenPrivateBytes is the fixed size of the encrypted private
	// section, including its 16-byte AEAD tag.
	ConnectTokenPrivateBytes = 1024

	// ChallengeTokenBytes is the fixed size of the encrypted challenge
	// token, including its 16-byte AEAD tag.
	ChallengeTokenBytes = 300

	// KeyBytes is the size of a ChaCha20-Poly1305 key.
	KeyBytes = 32

	// MacBytes is the size of a Poly1305 authentication tag.
	MacBytes = chacha20poly1305.Overhead

	// UserDataBytes is the size of the opaque user-data blob carried inside
	// the connect-token private section and the challenge token.
	UserDataBytes = 256

	// MaxServersPerConnect bounds the server-address list in a connect token.
	MaxServersPerConnect = 32

	// ConnectionRequestPacketBytes is the fixed size of a type-0 cleartext
	// connection-request packet.
	ConnectionRequestPacketBytes = 1 + 13 + 8 + 8 + 24 + ConnectTokenPrivateBytes

	// MaxPayloadBytes bounds a type-5 payload packet's plaintext.
	MaxPayloadBytes = 1200
)

// PacketType is the 4-bit packet-type tag described in §4.1.
type PacketType uint8

const (
	PacketConnectionRequest PacketType = iota
	PacketDenied
	PacketChallenge
	PacketResponse
	PacketKeepAlive
	PacketPayload
	PacketDisconnect
)

func (t PacketType) String() string {
	switch t {
	case PacketConnectionRequest:
		return "connection-request"
	case PacketDenied:
		return "denied"
	case PacketChallenge:
		return "challenge"
	case PacketResponse:
		return "response"
	case PacketKeepAlive:
		return "keep-alive"
	case PacketPayload:
		return "payload"
	case PacketDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// PacketTypeSet is a bitmask of allowed packet types, used by Read to reject
// types the caller's protocol phase does not expect.
type PacketTypeSet uint8

func NewPacketTypeSet(types ...PacketType) PacketTypeSet {
	var s PacketTypeSet
	for _, t := range types {
		s |= 1 << t
	}
	return s
}

func (s PacketTypeSet) Allows(t PacketType) bool {
	return s&(1<<t) != 0
}
