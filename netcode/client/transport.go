package client

import (
	"context"
	"net"
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/sockbuf"
)

// clientSocketBufferBytes is the client-side send/recv buffer hint from
// spec.md §6 (256 KiB); best-effort, non-fatal if the kernel refuses it.
const clientSocketBufferBytes = 256 * 1024

// UDPTransport is the ambient, real-socket Transport implementation for a
// client dialed at a single local address.
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport binds an ephemeral UDP socket of the family matching
// local (use addr.Address{} zero value for the OS default).
func NewUDPTransport(local addr.Address) (*UDPTransport, error) {
	network := "udp4"
	var laddr *net.UDPAddr
	if local.Kind() == addr.V6 {
		network = "udp6"
	}
	if local.Kind() != addr.None {
		laddr = net.UDPAddrFromAddrPort(local.AddrPort())
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	_ = sockbuf.Tune(conn, clientSocketBufferBytes)
	return &UDPTransport{conn: conn}, nil
}

// SendTo implements Transport.
func (t *UDPTransport) SendTo(to addr.Address, data []byte) error {
	_, err := t.conn.WriteToUDPAddrPort(data, to.AddrPort())
	return err
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() { _ = t.conn.Close() }

// Run polls the socket, feeding datagrams to c.ReceivePacket and driving
// c.Tick at the 10 Hz send cadence, until ctx is cancelled.
func Run(ctx context.Context, c *Client, t *UDPTransport) error {
	datagrams := make(chan []byte, 64)
	errs := make(chan error, 1)

	go func() {
		buf := make([]byte, 2048)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = t.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := t.conn.Read(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				errs <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			datagrams <- data
		}
	}()

	ticker := time.NewTicker(sendRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case data := <-datagrams:
			c.ReceivePacket(c.serverAddress, data, time.Now())
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}
