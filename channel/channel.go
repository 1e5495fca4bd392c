// Package channel implements the message channel layered on top of payload
// packets. Only UnreliableUnordered is implemented: netcode carries no
// ordering guarantee above the fragment layer, so an ordered channel would
// need sequencing machinery this module deliberately does not build.
package channel

import (
	"fmt"

	"netcode/reliable"
)

// Type identifies a channel's delivery semantics.
type Type uint8

const (
	// UnreliableUnordered delivers each message at most once per send, with
	// no retransmission and no ordering guarantee across messages.
	UnreliableUnordered Type = iota
)

// Channel fragments outgoing messages and reassembles incoming ones. It
// does not itself send or receive packets; callers pull fragments to send
// and push received fragments in.
type Channel struct {
	channelType  Type
	sendSequence uint16
	reassembler  *reliable.Reassembler
}

// New returns a Channel of the given type. reassemblyCapacity bounds how
// many concurrently in-flight fragmented messages it will track (must be a
// power of two).
func New(t Type, reassemblyCapacity uint16) (*Channel, error) {
	if t != UnreliableUnordered {
		return nil, fmt.Errorf("channel: unsupported channel type %d", t)
	}
	return &Channel{
		channelType: t,
		reassembler: reliable.NewReassembler(reassemblyCapacity),
	}, nil
}

// Send splits data into one or more wire fragments ready to be sent as
// individual payload packets.
func (c *Channel) Send(data []byte) ([][]byte, error) {
	seq := c.sendSequence
	c.sendSequence++
	return reliable.Split(seq, data)
}

// Receive ingests one received fragment and returns the reassembled
// message once every fragment for it has arrived.
func (c *Channel) Receive(fragment []byte) ([]byte, bool, error) {
	seq, id, count, payload, err := reliable.ParseFragment(fragment)
	if err != nil {
		return nil, false, err
	}
	return c.reassembler.Accept(seq, id, count, payload)
}
