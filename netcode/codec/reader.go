package codec

import (
	"encoding/binary"
)

// ReplayShield is the minimal view of netcode/replay.Shield the reader
// needs. Defined here (rather than imported) so codec has no dependency on
// the replay package; replay.Shield satisfies this interface structurally.
type ReplayShield interface {
	AlreadyReceived(sequence uint64) bool
	Advance(sequence uint64)
}

// exemptFromReplayCheck reports whether a packet type carries new-flow
// semantics and therefore bypasses the replay shield entirely, per §4.1.
func exemptFromReplayCheck(t PacketType) bool {
	switch t {
	case PacketChallenge, PacketResponse, PacketDenied:
		return true
	default:
		return false
	}
}

// ReadConnectionRequest decodes and validates a type-0 cleartext-framed
// packet, decrypting its embedded private connect-token section. It does
// not validate the token's address list or any server-side uniqueness
// constraint — that is the server's job once it has the plaintext.
func ReadConnectionRequest(buf []byte, protocolID uint64, nowUnix uint64, privateKey [KeyBytes]byte) (ConnectionRequestPacket, []byte, error) {
	var pkt ConnectionRequestPacket

	if len(buf) != ConnectionRequestPacketBytes {
		if len(buf) < ConnectionRequestPacketBytes {
			return pkt, nil, ErrUnderSize
		}
		return pkt, nil, ErrOverSize
	}

	offset := 1 // skip type byte, already dispatched on by the caller
	copy(pkt.VersionInfo[:], buf[offset:offset+13])
	offset += 13
	if pkt.VersionInfo != VersionInfo {
		return pkt, nil, ErrBadVersion
	}

	pkt.ProtocolID = binary.LittleEndian.Uint64(buf[offset : offset+8])
	offset += 8
	if pkt.ProtocolID != protocolID {
		return pkt, nil, ErrBadProtocolID
	}

	pkt.ExpireTimestamp = binary.LittleEndian.Uint64(buf[offset : offset+8])
	offset += 8
	if pkt.ExpireTimestamp <= nowUnix {
		return pkt, nil, ErrTokenExpired
	}

	copy(pkt.Nonce[:], buf[offset:offset+24])
	offset += 24

	copy(pkt.PrivateData[:], buf[offset:offset+ConnectTokenPrivateBytes])
	offset += ConnectTokenPrivateBytes

	plaintext, err := OpenConnectTokenPrivate(privateKey, pkt.ProtocolID, pkt.ExpireTimestamp, pkt.Nonce, pkt.PrivateData[:])
	if err != nil {
		return pkt, nil, err
	}

	return pkt, plaintext, nil
}

// ReadPacket decodes one of the six encrypted packet types. shield may be
// nil, in which case replay protection is skipped (used for the client's
// very first packets before a shield exists, and for types exempt from
// replay checks by design).
func ReadPacket(buf []byte, allowed PacketTypeSet, protocolID uint64, key [KeyBytes]byte, shield ReplayShield) (Packet, uint64, error) {
	if len(buf) < 1 {
		return nil, 0, ErrUnderSize
	}
	if len(buf) > MaxPacketBytes {
		return nil, 0, ErrOverSize
	}

	prefixByte := buf[0]
	packetType := PacketType(prefixByte & 0x0f)
	seqByteCount := int(prefixByte >> 4)

	if !allowed.Allows(packetType) {
		return nil, 0, ErrPacketTypeNotAllowed
	}
	if seqByteCount < 1 || seqByteCount > 8 {
		return nil, 0, ErrBadSequenceByteCount
	}
	if len(buf) < 1+seqByteCount+MacBytes {
		return nil, 0, ErrUnderSize
	}

	sequence := decodeSequence(buf[1:1+seqByteCount], seqByteCount)

	exempt := exemptFromReplayCheck(packetType)
	if !exempt && shield != nil && shield.AlreadyReceived(sequence) {
		return nil, sequence, ErrReplayedSequence
	}

	ciphertext := buf[1+seqByteCount:]
	plaintext, err := OpenPacket(key, protocolID, prefixByte, sequence, ciphertext)
	if err != nil {
		return nil, sequence, err
	}

	pkt, err := unmarshalPlaintext(packetType, plaintext)
	if err != nil {
		return nil, sequence, err
	}

	if !exempt && shield != nil {
		shield.Advance(sequence)
	}

	return pkt, sequence, nil
}

func unmarshalPlaintext(t PacketType, plaintext []byte) (Packet, error) {
	switch t {
	case PacketDenied:
		if len(plaintext) != 0 {
			return nil, ErrMalformedPayload
		}
		return DeniedPacket{}, nil
	case PacketDisconnect:
		if len(plaintext) != 0 {
			return nil, ErrMalformedPayload
		}
		return DisconnectPacket{}, nil
	case PacketChallenge, PacketResponse:
		if len(plaintext) != 8+ChallengeTokenBytes {
			return nil, ErrMalformedPayload
		}
		sequence := binary.LittleEndian.Uint64(plaintext[:8])
		var token [ChallengeTokenBytes]byte
		copy(token[:], plaintext[8:])
		if t == PacketChallenge {
			return ChallengePacket{ChallengeSequence: sequence, ChallengeTokenData: token}, nil
		}
		return ResponsePacket{ChallengeSequence: sequence, ChallengeTokenData: token}, nil
	case PacketKeepAlive:
		if len(plaintext) != 8 {
			return nil, ErrMalformedPayload
		}
		clientIndex := binary.LittleEndian.Uint32(plaintext[0:4])
		maxClients := binary.LittleEndian.Uint32(plaintext[4:8])
		if clientIndex > 255 || maxClients < 1 || maxClients > 256 {
			return nil, ErrMalformedPayload
		}
		return KeepAlivePacket{ClientIndex: clientIndex, MaxClients: maxClients}, nil
	case PacketPayload:
		if len(plaintext) < 1 || len(plaintext) > MaxPayloadBytes {
			return nil, ErrMalformedPayload
		}
		payload := make([]byte, len(plaintext))
		copy(payload, plaintext)
		return PayloadPacket{Payload: payload}, nil
	default:
		return nil, ErrMalformedPayload
	}
}
