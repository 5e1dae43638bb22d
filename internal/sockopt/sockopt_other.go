//go:build !linux

package sockopt

import "net"

// DefaultRecvBuf mirrors the Linux constant for API symmetry on other platforms.
const DefaultRecvBuf = 1 << 20

// Tune is a no-op outside Linux; SO_RCVBUF/SO_REUSEADDR tuning via raw
// syscalls is Linux-specific.
func Tune(conn *net.UDPConn, recvBuf int) error { return nil }
