// Package serialreplay implements a bench/integration controller producer
// that replays newline-delimited JSON NormalizedReport values read from a
// serial port, so the DSU server can be exercised without real HID
// hardware.
package serialreplay

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Open opens a serial port for replay reading.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
