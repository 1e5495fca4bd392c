package reliable

import (
	"encoding/binary"
	"fmt"
)

// FragmentAbove is the payload size threshold past which Split fragments a
// message rather than sending it whole.
const FragmentAbove = 900

// MaxFragments bounds how many pieces a single message may be split into.
const MaxFragments = 16

// FragmentSize is the maximum payload carried by one fragment.
const FragmentSize = 1024

// fragmentHeaderBytes is (message sequence, fragment id, fragment count).
const fragmentHeaderBytes = 2 + 1 + 1

// Split breaks data into fragments when it exceeds FragmentAbove, stamping
// each with messageSequence so the receiver can group fragments belonging
// to the same message. A message below the threshold is returned as a
// single one-fragment slice.
func Split(messageSequence uint16, data []byte) ([][]byte, error) {
	if len(data) <= FragmentAbove {
		return [][]byte{appendFragmentHeader(messageSequence, 0, 1, data)}, nil
	}

	numFragments := (len(data) + FragmentSize - 1) / FragmentSize
	if numFragments > MaxFragments {
		return nil, fmt.Errorf("reliable: message of %d bytes needs %d fragments, exceeds max %d", len(data), numFragments, MaxFragments)
	}

	fragments := make([][]byte, 0, numFragments)
	for i := 0; i < numFragments; i++ {
		start := i * FragmentSize
		end := start + FragmentSize
		if end > len(data) {
			end = len(data)
		}
		fragments = append(fragments, appendFragmentHeader(messageSequence, uint8(i), uint8(numFragments), data[start:end]))
	}
	return fragments, nil
}

func appendFragmentHeader(messageSequence uint16, fragmentID, fragmentCount uint8, payload []byte) []byte {
	out := make([]byte, fragmentHeaderBytes+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], messageSequence)
	out[2] = fragmentID
	out[3] = fragmentCount
	copy(out[fragmentHeaderBytes:], payload)
	return out
}

// ParseFragment splits a wire fragment back into its header fields and
// payload.
func ParseFragment(buf []byte) (messageSequence uint16, fragmentID, fragmentCount uint8, payload []byte, err error) {
	if len(buf) < fragmentHeaderBytes {
		return 0, 0, 0, nil, fmt.Errorf("reliable: fragment shorter than header (%d bytes)", len(buf))
	}
	messageSequence = binary.LittleEndian.Uint16(buf[0:2])
	fragmentID = buf[2]
	fragmentCount = buf[3]
	if fragmentCount == 0 || fragmentID >= fragmentCount {
		return 0, 0, 0, nil, fmt.Errorf("reliable: invalid fragment id %d of %d", fragmentID, fragmentCount)
	}
	payload = buf[fragmentHeaderBytes:]
	return messageSequence, fragmentID, fragmentCount, payload, nil
}

// reassemblyEntry accumulates fragments for one in-flight message.
type reassemblyEntry struct {
	fragmentCount uint8
	received      uint8
	haveFragment  []bool
	parts         [][]byte
	totalLen      int
}

// Reassembler collects fragments across a bounded set of concurrent
// messages, keyed by message sequence, and yields a message once every
// fragment has arrived.
type Reassembler struct {
	buffer *SequenceBuffer[reassemblyEntry]
}

// NewReassembler returns a Reassembler tracking up to capacity concurrent
// in-flight messages (must be a power of two).
func NewReassembler(capacity uint16) *Reassembler {
	return &Reassembler{buffer: NewSequenceBuffer[reassemblyEntry](capacity)}
}

// Accept ingests one fragment and returns the fully reassembled message
// once fragmentCount fragments for its message sequence have all arrived.
func (r *Reassembler) Accept(messageSequence uint16, fragmentID, fragmentCount uint8, payload []byte) ([]byte, bool, error) {
	if fragmentCount == 1 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, true, nil
	}

	entry, ok := r.buffer.Get(messageSequence)
	if !ok {
		entry = reassemblyEntry{
			fragmentCount: fragmentCount,
			haveFragment:  make([]bool, fragmentCount),
			parts:         make([][]byte, fragmentCount),
		}
	}
	if entry.fragmentCount != fragmentCount {
		return nil, false, fmt.Errorf("reliable: fragment count changed mid-message (%d then %d)", entry.fragmentCount, fragmentCount)
	}

	if !entry.haveFragment[fragmentID] {
		entry.haveFragment[fragmentID] = true
		buf := make([]byte, len(payload))
		copy(buf, payload)
		entry.parts[fragmentID] = buf
		entry.received++
		entry.totalLen += len(payload)
	}

	if entry.received < entry.fragmentCount {
		r.buffer.Insert(messageSequence, entry)
		return nil, false, nil
	}

	out := make([]byte, 0, entry.totalLen)
	for _, part := range entry.parts {
		out = append(out, part...)
	}
	r.buffer.Remove(messageSequence)
	return out, true, nil
}
