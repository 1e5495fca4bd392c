package server

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"netcode/netcode/addr"
	"netcode/netcode/sockbuf"
)

// serverSocketBufferBytes is the server-side send/recv buffer hint from
// spec.md §6 (4 MiB); best-effort, non-fatal if the kernel refuses it.
const serverSocketBufferBytes = 4 * 1024 * 1024

// inboundDatagram is one datagram lifted off a socket, destined for the
// single-threaded Server.ReceivePacket call.
type inboundDatagram struct {
	from addr.Address
	data []byte
}

// boundSocket pairs a raw UDP socket with the ipv4/ipv6 packet-conn wrapper
// for its family, used to multiplex a dual-stack bind on receive the way
// spec.md §6 requires ("a dual-stack server that binds both families must
// multiplex them on receive").
type boundSocket struct {
	udp *net.UDPConn
	v4  *ipv4.PacketConn
	v6  *ipv6.PacketConn
}

// UDPTransport is the ambient, real-socket Transport implementation. It
// binds one UDP socket per supplied address (typically one IPv4 and one
// IPv6, for dual-stack service) and fans every datagram into a single
// channel, which is the only hand-off point between the listener
// goroutines and the server's own single thread.
type UDPTransport struct {
	sockets []boundSocket
	inbox   chan inboundDatagram
}

// NewUDPTransport binds a UDP socket per address in binds, applying the
// server socket-buffer hint and wrapping each socket for its address
// family.
func NewUDPTransport(binds []addr.Address) (*UDPTransport, error) {
	t := &UDPTransport{inbox: make(chan inboundDatagram, 1024)}
	for _, a := range binds {
		udpAddr := net.UDPAddrFromAddrPort(a.AddrPort())
		conn, err := net.ListenUDP(udpAddrNetwork(a), udpAddr)
		if err != nil {
			t.Close()
			return nil, err
		}
		_ = sockbuf.Tune(conn, serverSocketBufferBytes)

		bs := boundSocket{udp: conn}
		if a.Kind() == addr.V6 {
			bs.v6 = ipv6.NewPacketConn(conn)
			_ = bs.v6.SetControlMessage(ipv6.FlagDst, true)
		} else {
			bs.v4 = ipv4.NewPacketConn(conn)
			_ = bs.v4.SetControlMessage(ipv4.FlagDst, true)
		}
		t.sockets = append(t.sockets, bs)
	}
	return t, nil
}

func udpAddrNetwork(a addr.Address) string {
	if a.Kind() == addr.V6 {
		return "udp6"
	}
	return "udp4"
}

// SendTo implements Transport by writing to whichever bound socket matches
// the destination's address family.
func (t *UDPTransport) SendTo(to addr.Address, data []byte) error {
	want := addr.V4
	if to.Kind() == addr.V6 {
		want = addr.V6
	}
	for _, bs := range t.sockets {
		local := bs.udp.LocalAddr().(*net.UDPAddr)
		localKind := addr.V4
		if local.IP.To4() == nil {
			localKind = addr.V6
		}
		if localKind == want {
			_, err := bs.udp.WriteToUDPAddrPort(data, to.AddrPort())
			return err
		}
	}
	return net.ErrClosed
}

// Close releases every bound socket.
func (t *UDPTransport) Close() {
	for _, bs := range t.sockets {
		_ = bs.udp.Close()
	}
}

// LocalAddrs returns the actual bound address of every socket, in bind
// order — useful when binding to port 0 and the caller needs the kernel-
// assigned port (e.g. to advertise it in a connect token).
func (t *UDPTransport) LocalAddrs() []addr.Address {
	out := make([]addr.Address, len(t.sockets))
	for i, bs := range t.sockets {
		out[i] = addr.FromNetipAddrPort(bs.udp.LocalAddr().(*net.UDPAddr).AddrPort())
	}
	return out
}

// Run polls every bound socket concurrently (via errgroup), feeding
// datagrams to s.ReceivePacket and driving s.Tick at the 10 Hz packet send
// rate, until ctx is cancelled.
func Run(ctx context.Context, s *Server, t *UDPTransport) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, bs := range t.sockets {
		bs := bs
		group.Go(func() error {
			return readLoop(groupCtx, bs, t.inbox)
		})
	}

	group.Go(func() error {
		ticker := time.NewTicker(keepAliveRate)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case dg := <-t.inbox:
				s.ReceivePacket(dg.from, dg.data, time.Now())
			case now := <-ticker.C:
				s.Tick(now)
			}
		}
	})

	return group.Wait()
}

// readLoop polls one family's socket through its ipv4/ipv6 PacketConn
// wrapper, which is what lets a dual-stack bind multiplex both families on
// receive per spec.md §6 — each family gets its own goroutine reading
// through the wrapper appropriate to it.
func readLoop(ctx context.Context, bs boundSocket, inbox chan<- inboundDatagram) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_ = bs.udp.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

		var n int
		var src net.Addr
		var err error
		if bs.v6 != nil {
			n, _, src, err = bs.v6.ReadFrom(buf)
		} else {
			n, _, src, err = bs.v4.ReadFrom(buf)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		remote := src.(*net.UDPAddr).AddrPort()
		inbox <- inboundDatagram{from: addr.FromNetipAddrPort(remote), data: data}
	}
}
