package codec

// Packet is implemented by every one of the seven packet variants. Type
// returns the 4-bit type tag used on the wire.
type Packet interface {
	Type() PacketType
}

// ConnectionRequestPacket is packet type 0: cleartext-framed, wrapping an
// encrypted private connect-token.
type ConnectionRequestPacket struct {
	VersionInfo     [13]byte
	ProtocolID      uint64
	ExpireTimestamp uint64
	Nonce           [24]byte
	PrivateData     [ConnectTokenPrivateBytes]byte
}

func (ConnectionRequestPacket) Type() PacketType { return PacketConnectionRequest }

// DeniedPacket is packet type 1: empty plaintext.
type DeniedPacket struct{}

func (DeniedPacket) Type() PacketType { return PacketDenied }

// ChallengePacket is packet type 2.
type ChallengePacket struct {
	ChallengeSequence uint64
	ChallengeTokenData [ChallengeTokenBytes]byte
}

func (ChallengePacket) Type() PacketType { return PacketChallenge }

// ResponsePacket is packet type 3, mirroring ChallengePacket's shape.
type ResponsePacket struct {
	ChallengeSequence  uint64
	ChallengeTokenData [ChallengeTokenBytes]byte
}

func (ResponsePacket) Type() PacketType { return PacketResponse }

// KeepAlivePacket is packet type 4.
type KeepAlivePacket struct {
	ClientIndex uint32
	MaxClients  uint32
}

func (KeepAlivePacket) Type() PacketType { return PacketKeepAlive }

// PayloadPacket is packet type 5: 1..=1200 raw application bytes.
type PayloadPacket struct {
	Payload []byte
}

func (PayloadPacket) Type() PacketType { return PacketPayload }

// DisconnectPacket is packet type 6: empty plaintext.
type DisconnectPacket struct{}

func (DisconnectPacket) Type() PacketType { return PacketDisconnect }
