package dsuserver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-dsu/steam-dsu-bridge/internal/dispatcher"
	"github.com/go-dsu/steam-dsu-bridge/internal/dsu"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
)

func TestMapErrToMetric(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"crc", dsu.ErrBadCRC, metrics.ErrCRCMismatch},
		{"version", dsu.ErrVersionTooNew, metrics.ErrVersionTooNew},
		{"magic", dsu.ErrBadMagic, metrics.ErrMalformed},
		{"shortBuffer", dsu.ErrShortBuffer, metrics.ErrMalformed},
		{"badLength", dsu.ErrBadLength, metrics.ErrMalformed},
		{"listPortsCount", dispatcher.ErrBadListPortsCount, metrics.ErrMalformed},
		{"padIndex", dispatcher.ErrBadPadIndex, metrics.ErrMalformed},
		{"shortBody", dispatcher.ErrShortBody, metrics.ErrMalformed},
		{"listen", ErrListen, metrics.ErrSocketRead},
		{"socketRead", ErrSocketRead, metrics.ErrSocketRead},
		{"socketWrite", ErrSocketWrite, metrics.ErrSocketWrite},
		{"shortWrite", ErrShortWrite, metrics.ErrShortWrite},
		{"upstream", errors.New("controller went away"), metrics.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErrToMetric(tt.err); got != tt.want {
				t.Fatalf("mapErrToMetric(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapErrToMetricUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: want 1234 got 5678", dsu.ErrBadCRC)
	if got := mapErrToMetric(wrapped); got != metrics.ErrCRCMismatch {
		t.Fatalf("mapErrToMetric(wrapped) = %q, want %q", got, metrics.ErrCRCMismatch)
	}
}
