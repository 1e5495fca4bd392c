//go:build windows

// Package sockbuf applies the send/recv buffer-size hints spec.md §6
// mentions for client and server UDP sockets. Sizing is best-effort: a
// kernel that refuses or clamps the request does not fail the bind.
package sockbuf

import (
	"fmt"
	"net"

	"golang.org/x/sys/windows"
)

// Tune requests bytes for both SO_RCVBUF and SO_SNDBUF on conn. Errors are
// returned for logging but are never fatal to the caller.
func Tune(conn *net.UDPConn, bytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("sockbuf: raw conn: %w", err)
	}

	var rcvErr, sndErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		rcvErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_RCVBUF, bytes)
		sndErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_SNDBUF, bytes)
	})
	if ctrlErr != nil {
		return fmt.Errorf("sockbuf: control: %w", ctrlErr)
	}
	if rcvErr != nil {
		return fmt.Errorf("sockbuf: SO_RCVBUF: %w", rcvErr)
	}
	if sndErr != nil {
		return fmt.Errorf("sockbuf: SO_SNDBUF: %w", sndErr)
	}
	return nil
}
