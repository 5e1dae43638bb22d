// Package controller defines the small interface the DSU core borrows from
// a controller producer: a stream of normalized reports, a stream of
// upstream errors, and a metadata snapshot.
package controller

import "github.com/go-dsu/steam-dsu-bridge/internal/report"

// Producer is implemented by anything that can feed the DSU core with
// normalized controller reports. The core only subscribes and
// unsubscribes; lifecycle (device open/close, reconnect) is the
// producer's own concern, not the core's.
type Producer interface {
	// Reports streams normalized frames as they arrive. The channel is
	// never closed by the core; a producer closes it when it has nothing
	// further to send.
	Reports() <-chan report.NormalizedReport
	// Errors streams non-fatal producer errors, forwarded verbatim onto
	// the server's error stream.
	Errors() <-chan error
	// Meta returns the producer's current static metadata, or nil if the
	// producer hasn't identified itself yet.
	Meta() *report.DualShockMeta
	// LastReport returns the most recently observed report, or nil.
	LastReport() *report.NormalizedReport
}
