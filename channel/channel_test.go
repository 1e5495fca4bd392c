package channel

import (
	"bytes"
	"testing"
)

func TestChannelSendReceiveRoundTripSmall(t *testing.T) {
	sender, err := New(UnreliableUnordered, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	receiver, err := New(UnreliableUnordered, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := []byte("hello world")
	fragments, err := sender.Send(msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []byte
	var done bool
	for _, f := range fragments {
		got, done, err = receiver.Receive(f)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	}
	if !done || !bytes.Equal(got, msg) {
		t.Fatalf("round trip failed: got %q, done=%v", got, done)
	}
}

func TestChannelSendReceiveRoundTripLarge(t *testing.T) {
	sender, err := New(UnreliableUnordered, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	receiver, err := New(UnreliableUnordered, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := bytes.Repeat([]byte{0x5A}, 4000)
	fragments, err := sender.Send(msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fragments) < 2 {
		t.Fatalf("expected a large message to fragment, got %d pieces", len(fragments))
	}

	var got []byte
	var done bool
	for _, f := range fragments {
		got, done, err = receiver.Receive(f)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	}
	if !done || !bytes.Equal(got, msg) {
		t.Fatalf("round trip failed for large message")
	}
}

func TestNewRejectsUnsupportedChannelType(t *testing.T) {
	if _, err := New(Type(99), 16); err == nil {
		t.Fatalf("expected error for unsupported channel type")
	}
}
