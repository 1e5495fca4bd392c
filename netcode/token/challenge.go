package token

import (
	"encoding/binary"
	"fmt"

	"netcode/netcode/codec"
)

// challengePlaintextBytes is ChallengeTokenBytes minus the Poly1305 tag.
const challengePlaintextBytes = codec.ChallengeTokenBytes - codec.MacBytes

// ChallengeToken is the plaintext a server seals into a type-2 challenge
// packet and the client echoes back unmodified in its type-3 response.
type ChallengeToken struct {
	ClientID uint64
	UserData [codec.UserDataBytes]byte
}

func (c ChallengeToken) marshal() []byte {
	buf := make([]byte, challengePlaintextBytes)
	binary.LittleEndian.PutUint64(buf[:8], c.ClientID)
	copy(buf[8:8+codec.UserDataBytes], c.UserData[:])
	return buf
}

func unmarshalChallengeToken(buf []byte) (ChallengeToken, error) {
	var c ChallengeToken
	if len(buf) != challengePlaintextBytes {
		return c, fmt.Errorf("token: challenge plaintext length %d, want %d", len(buf), challengePlaintextBytes)
	}
	c.ClientID = binary.LittleEndian.Uint64(buf[:8])
	copy(c.UserData[:], buf[8:8+codec.UserDataBytes])
	return c, nil
}

// Seal encrypts the challenge token under the server's per-run challenge key
// and the given challenge sequence number, returning ChallengeTokenBytes of
// ciphertext||tag.
func (c ChallengeToken) Seal(challengeKey [codec.KeyBytes]byte, challengeSequence uint64) ([]byte, error) {
	return codec.SealChallengeToken(challengeKey, challengeSequence, c.marshal())
}

// OpenChallengeToken decrypts and parses a challenge token sealed by Seal.
func OpenChallengeToken(challengeKey [codec.KeyBytes]byte, challengeSequence uint64, ciphertext []byte) (ChallengeToken, error) {
	plaintext, err := codec.OpenChallengeToken(challengeKey, challengeSequence, ciphertext)
	if err != nil {
		return ChallengeToken{}, err
	}
	return unmarshalChallengeToken(plaintext)
}
