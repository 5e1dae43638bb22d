package dsuserver

import (
	"log/slog"
	"net"

	"github.com/go-dsu/steam-dsu-bridge/internal/sockopt"
)

// tuneConn applies the optional SO_REUSEADDR/SO_RCVBUF tuning to conn,
// logging (but not failing Start on) any error.
func tuneConn(conn *net.UDPConn, logger *slog.Logger) {
	if err := sockopt.Tune(conn, sockopt.DefaultRecvBuf); err != nil {
		logger.Warn("socket_tune_failed", "error", err)
	}
}
