package serialreplay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

// record is one line of replay input: a metadata snapshot plus the
// dynamic report it accompanies. Real HID producers update metadata far
// less often than reports; the replay format carries both on every line
// for simplicity, since the test fixtures driving it are small.
type record struct {
	Meta   report.DualShockMeta    `json:"meta"`
	Report report.NormalizedReport `json:"report"`
}

// Producer implements controller.Producer by scanning newline-delimited
// JSON records from a Port. It is the bench/integration stand-in for a
// real HID-backed controller.
type Producer struct {
	port    Port
	reports chan report.NormalizedReport
	errs    chan error

	mu       sync.Mutex
	meta     *report.DualShockMeta
	lastRept *report.NormalizedReport
}

// New wraps an open Port in a replay Producer and starts its scan loop.
// The loop exits when ctx is cancelled or the port returns an error (most
// commonly io.EOF at end of a replay fixture).
func New(ctx context.Context, port Port, buf int) *Producer {
	p := &Producer{
		port:    port,
		reports: make(chan report.NormalizedReport, buf),
		errs:    make(chan error, buf),
	}
	go p.run(ctx)
	return p
}

func (p *Producer) run(ctx context.Context) {
	defer close(p.reports)
	defer close(p.errs)

	scanner := bufio.NewScanner(p.port)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			p.pushErr(ctx, fmt.Errorf("serialreplay: decode line: %w", err))
			continue
		}

		p.mu.Lock()
		meta := rec.Meta
		p.meta = &meta
		rpt := rec.Report
		p.lastRept = &rpt
		p.mu.Unlock()

		select {
		case p.reports <- rec.Report:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		p.pushErr(ctx, fmt.Errorf("serialreplay: scan: %w", err))
	}
	logging.L().Info("serialreplay_done")
}

func (p *Producer) pushErr(ctx context.Context, err error) {
	select {
	case p.errs <- err:
	case <-ctx.Done():
	default:
	}
}

func (p *Producer) Reports() <-chan report.NormalizedReport { return p.reports }
func (p *Producer) Errors() <-chan error                    { return p.errs }

func (p *Producer) Meta() *report.DualShockMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

func (p *Producer) LastReport() *report.NormalizedReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRept
}

// Close closes the underlying port; the scan loop will observe the
// resulting read error (or EOF) and exit on its own.
func (p *Producer) Close() error { return p.port.Close() }
