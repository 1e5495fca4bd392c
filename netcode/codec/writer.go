package codec

import (
	"encoding/binary"
	"fmt"
)

// WriteConnectionRequest serializes a type-0 packet, which is cleartext
// framed (only the embedded private token is encrypted). Always
// ConnectionRequestPacketBytes long.
func WriteConnectionRequest(pkt ConnectionRequestPacket) []byte {
	buf := make([]byte, ConnectionRequestPacketBytes)
	offset := 0
	buf[offset] = byte(PacketConnectionRequest)
	offset++
	copy(buf[offset:], pkt.VersionInfo[:])
	offset += 13
	binary.LittleEndian.PutUint64(buf[offset:], pkt.ProtocolID)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], pkt.ExpireTimestamp)
	offset += 8
	copy(buf[offset:], pkt.Nonce[:])
	offset += 24
	copy(buf[offset:], pkt.PrivateData[:])
	offset += ConnectTokenPrivateBytes
	return buf
}

// marshalPlaintext produces the plaintext body for an encrypted packet type,
// per the layouts in §4.1.
func marshalPlaintext(pkt Packet) ([]byte, error) {
	switch p := pkt.(type) {
	case DeniedPacket:
		return nil, nil
	case DisconnectPacket:
		return nil, nil
	case ChallengePacket:
		return marshalChallengeLike(p.ChallengeSequence, p.ChallengeTokenData), nil
	case ResponsePacket:
		return marshalChallengeLike(p.ChallengeSequence, p.ChallengeTokenData), nil
	case KeepAlivePacket:
		if p.ClientIndex > 255 {
			return nil, fmt.Errorf("codec: client index %d out of range", p.ClientIndex)
		}
		if p.MaxClients < 1 || p.MaxClients > 256 {
			return nil, fmt.Errorf("codec: max clients %d out of range", p.MaxClients)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], p.ClientIndex)
		binary.LittleEndian.PutUint32(buf[4:8], p.MaxClients)
		return buf, nil
	case PayloadPacket:
		if len(p.Payload) < 1 || len(p.Payload) > MaxPayloadBytes {
			return nil, fmt.Errorf("codec: payload length %d out of range", len(p.Payload))
		}
		return p.Payload, nil
	default:
		return nil, fmt.Errorf("codec: unknown packet type %T", pkt)
	}
}

func marshalChallengeLike(sequence uint64, token [ChallengeTokenBytes]byte) []byte {
	buf := make([]byte, 8+ChallengeTokenBytes)
	binary.LittleEndian.PutUint64(buf[:8], sequence)
	copy(buf[8:], token[:])
	return buf
}

// WritePacket serializes and AEAD-seals any of the six encrypted packet
// types, producing at most MaxPacketBytes bytes. The caller owns the
// sequence counter; WritePacket does not mutate it.
func WritePacket(pkt Packet, key [KeyBytes]byte, protocolID uint64, sequence uint64) ([]byte, error) {
	plaintext, err := marshalPlaintext(pkt)
	if err != nil {
		return nil, err
	}

	n := sequenceByteCount(sequence)
	prefixByte := byte(n<<4) | byte(pkt.Type())

	ciphertext, err := SealPacket(key, protocolID, prefixByte, sequence, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+n+len(ciphertext))
	out[0] = prefixByte
	encodeSequence(out[1:1+n], sequence)
	copy(out[1+n:], ciphertext)

	if len(out) > MaxPacketBytes {
		return nil, ErrOverSize
	}
	return out, nil
}
