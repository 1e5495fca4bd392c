package codec

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

// sequenceByteCount returns N = ceil(log256(sequence+1)) clamped to 1..=8,
// the number of little-endian sequence bytes an encrypted packet carries.
func sequenceByteCount(sequence uint64) int {
	for count := 1; count < 8; count++ {
		if sequence < uint64(1)<<(8*count) {
			return count
		}
	}
	return 8
}

// encodeSequence writes the low N bytes of sequence, little-endian, into buf
// and returns N.
func encodeSequence(buf []byte, sequence uint64) int {
	n := sequenceByteCount(sequence)
	for i := 0; i < n; i++ {
		buf[i] = byte(sequence >> (8 * i))
	}
	return n
}

// decodeSequence reads n little-endian sequence bytes from buf.
func decodeSequence(buf []byte, n int) uint64 {
	var seq uint64
	for i := 0; i < n; i++ {
		seq |= uint64(buf[i]) << (8 * i)
	}
	return seq
}

// packetNonce builds the 12-byte ChaCha20-Poly1305 IETF nonce: four zero
// bytes followed by the 8-byte little-endian sequence.
func packetNonce(sequence uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], sequence)
	return nonce
}

// packetAAD builds (version-info || protocol-id || prefix-byte).
func packetAAD(protocolID uint64, prefixByte byte) []byte {
	aad := make([]byte, 13+8+1)
	copy(aad[:13], VersionInfo[:])
	binary.LittleEndian.PutUint64(aad[13:21], protocolID)
	aad[21] = prefixByte
	return aad
}

// SealPacket encrypts plaintext with ChaCha20-Poly1305 IETF under key, AEAD
// bound to (version-info, protocolID, prefixByte) and the per-packet
// sequence nonce. Returns ciphertext||tag.
func SealPacket(key [KeyBytes]byte, protocolID uint64, prefixByte byte, sequence uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := packetNonce(sequence)
	aad := packetAAD(protocolID, prefixByte)
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// OpenPacket decrypts a packet sealed by SealPacket.
func OpenPacket(key [KeyBytes]byte, protocolID uint64, prefixByte byte, sequence uint64, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := packetNonce(sequence)
	aad := packetAAD(protocolID, prefixByte)
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// connectTokenAAD builds (version-info || protocol-id || expire-timestamp).
func connectTokenAAD(protocolID, expireTimestamp uint64) []byte {
	aad := make([]byte, 13+8+8)
	copy(aad[:13], VersionInfo[:])
	binary.LittleEndian.PutUint64(aad[13:21], protocolID)
	binary.LittleEndian.PutUint64(aad[21:29], expireTimestamp)
	return aad
}

// SealConnectTokenPrivate encrypts the private connect-token section with
// XChaCha20-Poly1305 under the 24-byte nonce carried in the outer public
// token, returning ciphertext||tag (ConnectTokenPrivateBytes long).
func SealConnectTokenPrivate(key [KeyBytes]byte, protocolID, expireTimestamp uint64, nonce [24]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	aad := connectTokenAAD(protocolID, expireTimestamp)
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// OpenConnectTokenPrivate decrypts a private section sealed by
// SealConnectTokenPrivate.
func OpenConnectTokenPrivate(key [KeyBytes]byte, protocolID, expireTimestamp uint64, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	aad := connectTokenAAD(protocolID, expireTimestamp)
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// challengeNonce builds the 12-byte nonce (u32 zero || u64 challenge-sequence).
func challengeNonce(challengeSequence uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], challengeSequence)
	return nonce
}

// SealChallengeToken encrypts a challenge token's plaintext under the
// server's per-run challenge key, with no associated data (the outer packet
// AEAD already authenticates the wire context it rides inside).
func SealChallengeToken(challengeKey [KeyBytes]byte, challengeSequence uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(challengeKey[:])
	if err != nil {
		return nil, err
	}
	nonce := challengeNonce(challengeSequence)
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// OpenChallengeToken decrypts a challenge token sealed by SealChallengeToken.
func OpenChallengeToken(challengeKey [KeyBytes]byte, challengeSequence uint64, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(challengeKey[:])
	if err != nil {
		return nil, err
	}
	nonce := challengeNonce(challengeSequence)
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
