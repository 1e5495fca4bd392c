package codec

import "errors"

// Error kinds observable at the codec boundary (spec §7). All of them are
// meant to be swallowed into a silent drop-and-log by client/server callers;
// the codec itself never panics or retries.
var (
	ErrUnderSize             = errors.New("codec: packet smaller than minimum size")
	ErrOverSize              = errors.New("codec: packet larger than maximum size")
	ErrBadVersion            = errors.New("codec: version info mismatch")
	ErrBadProtocolID         = errors.New("codec: protocol id mismatch")
	ErrTokenExpired          = errors.New("codec: connect token expired")
	ErrDecryptFailed         = errors.New("codec: AEAD decryption failed")
	ErrPacketTypeNotAllowed  = errors.New("codec: packet type not allowed in this context")
	ErrBadSequenceByteCount  = errors.New("codec: invalid sequence byte count")
	ErrReplayedSequence      = errors.New("codec: sequence already received")
	ErrMalformedPayload      = errors.New("codec: malformed packet payload")
	ErrAllocationFailed      = errors.New("codec: allocation failed")
)
