package dsuserver

import (
	"errors"

	"github.com/go-dsu/steam-dsu-bridge/internal/dispatcher"
	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen      = errors.New("listen")
	ErrSocketRead  = errors.New("socket_read")
	ErrSocketWrite = errors.New("socket_write")
	ErrShortWrite  = errors.New("short_write")
	ErrContext     = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels. Anything
// that is neither a socket error nor a recognized protocol error reached
// setError from a controller's error stream, so the fallback label is the
// upstream one.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, dsu.ErrBadCRC):
		return metrics.ErrCRCMismatch
	case errors.Is(err, dsu.ErrVersionTooNew):
		return metrics.ErrVersionTooNew
	case errors.Is(err, dsu.ErrBadMagic),
		errors.Is(err, dsu.ErrShortBuffer),
		errors.Is(err, dsu.ErrBadLength):
		return metrics.ErrMalformed
	case errors.Is(err, dispatcher.ErrBadListPortsCount),
		errors.Is(err, dispatcher.ErrBadPadIndex),
		errors.Is(err, dispatcher.ErrShortBody):
		return metrics.ErrMalformed
	case errors.Is(err, ErrSocketRead), errors.Is(err, ErrListen):
		return metrics.ErrSocketRead
	case errors.Is(err, ErrSocketWrite):
		return metrics.ErrSocketWrite
	case errors.Is(err, ErrShortWrite):
		return metrics.ErrShortWrite
	default:
		return metrics.ErrUpstream
	}
}
