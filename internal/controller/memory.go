package controller

import (
	"sync"

	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

// Memory is an in-memory Producer used by tests: reports and errors are
// pushed in by the caller via Push and PushError rather than read from a
// real device.
type Memory struct {
	mu       sync.Mutex
	reports  chan report.NormalizedReport
	errs     chan error
	meta     *report.DualShockMeta
	lastRept *report.NormalizedReport
}

// NewMemory returns a Memory producer with the given channel buffer size.
func NewMemory(buf int, meta report.DualShockMeta) *Memory {
	m := &Memory{
		reports: make(chan report.NormalizedReport, buf),
		errs:    make(chan error, buf),
		meta:    &meta,
	}
	return m
}

func (m *Memory) Reports() <-chan report.NormalizedReport { return m.reports }
func (m *Memory) Errors() <-chan error                    { return m.errs }

func (m *Memory) Meta() *report.DualShockMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

func (m *Memory) LastReport() *report.NormalizedReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRept
}

// Push enqueues a report for delivery and records it as the last-seen report.
func (m *Memory) Push(r report.NormalizedReport) {
	m.mu.Lock()
	clone := r.Clone()
	m.lastRept = &clone
	m.mu.Unlock()
	m.reports <- r
}

// PushError enqueues a producer error.
func (m *Memory) PushError(err error) { m.errs <- err }

// SetMeta updates the metadata snapshot observable via Meta.
func (m *Memory) SetMeta(meta report.DualShockMeta) {
	m.mu.Lock()
	m.meta = &meta
	m.mu.Unlock()
}

// Close closes both channels; no further Push/PushError calls are valid
// after Close.
func (m *Memory) Close() {
	close(m.reports)
	close(m.errs)
}
