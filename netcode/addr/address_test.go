package addr

import (
	"net/netip"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
		kind    Kind
		port    uint16
	}{
		{"v4 with port", "127.0.0.1:40000", false, V4, 40000},
		{"v4 no port", "127.0.0.1", false, V4, 0},
		{"v6 bracket with port", "[::1]:40000", false, V6, 40000},
		{"v6 bracket no port", "[::1]", false, V6, 0},
		{"v6 bare no brackets", "::1", false, V6, 0},
		{"v6 no brackets with port rejected", "::1:40000", true, None, 0}, // a port on ipv6 needs brackets
		{"empty", "", true, None, 0},
		{"trailing dot", "127.0.0.1.:40000", true, None, 0},
		{"overlong", "999.999.999.999:1", true, None, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", c.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", c.in, err)
			}
			if got.Kind() != c.kind {
				t.Errorf("Parse(%q).Kind() = %v, want %v", c.in, got.Kind(), c.kind)
			}
			if got.Port() != c.port {
				t.Errorf("Parse(%q).Port() = %v, want %v", c.in, got.Port(), c.port)
			}
		})
	}
}

func TestEqualStructural(t *testing.T) {
	a, _ := Parse("127.0.0.1:1000")
	b, _ := Parse("127.0.0.1:1000")
	c, _ := Parse("127.0.0.1:1001")

	if !a.Equal(b) {
		t.Fatalf("expected equal addresses")
	}
	if a.Equal(c) {
		t.Fatalf("expected different addresses to differ")
	}
	if !NoneAddr.Equal(Address{}) {
		t.Fatalf("expected none to equal zero value")
	}
	if a.Equal(NoneAddr) {
		t.Fatalf("v4 address must not equal none")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Address{
		NoneAddr,
		FromNetipAddrPort(netip.MustParseAddrPort("1.2.3.4:5678")),
		FromNetipAddrPort(netip.MustParseAddrPort("[::1]:9999")),
	}

	for _, c := range cases {
		buf := make([]byte, MaxEncodedLen)
		n := c.Encode(buf)
		got, consumed, err := Decode(buf[:n])
		if err != nil {
			t.Fatalf("Decode(%v) error: %v", c, err)
		}
		if consumed != n {
			t.Fatalf("Decode consumed %d bytes, Encode wrote %d", consumed, n)
		}
		if !got.Equal(c) {
			t.Fatalf("round trip mismatch: got %v want %v", got, c)
		}
	}
}

func TestDecodeRejectsShortBuffers(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatalf("expected error decoding empty buffer")
	}
	if _, _, err := Decode([]byte{byte(V4), 1, 2}); err == nil {
		t.Fatalf("expected error decoding truncated v4 buffer")
	}
	if _, _, err := Decode([]byte{byte(V6), 1, 2}); err == nil {
		t.Fatalf("expected error decoding truncated v6 buffer")
	}
}
