//go:build linux

// Package sockopt tunes the UDP socket's kernel buffer and address-reuse
// options, applied to an already-bound *net.UDPConn.
package sockopt

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// DefaultRecvBuf is the SO_RCVBUF size requested for the DSU socket; pad
// data requests arrive in short infrequent bursts so this is generous
// headroom rather than a tuned value.
const DefaultRecvBuf = 1 << 20 // 1 MiB

// Tune sets SO_REUSEADDR and SO_RCVBUF on conn's underlying file
// descriptor. Errors are returned rather than panicking so callers can
// decide whether a tuning failure is fatal (it normally isn't).
func Tune(conn *net.UDPConn, recvBuf int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("sockopt: SyscallConn: %w", err)
	}
	var opErr error
	err = raw.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			opErr = fmt.Errorf("SO_REUSEADDR: %w", e)
			return
		}
		if recvBuf <= 0 {
			recvBuf = DefaultRecvBuf
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf); e != nil {
			opErr = fmt.Errorf("SO_RCVBUF: %w", e)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("sockopt: Control: %w", err)
	}
	return opErr
}
