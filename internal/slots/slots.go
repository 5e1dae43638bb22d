// Package slots implements the fixed four-slot controller table: mapping
// a slot index to a live controller producer, forwarding its reports and
// errors into callback hooks, and owning per-slot subscription lifetime.
package slots

import (
	"context"
	"sync"

	"github.com/go-dsu/steam-dsu-bridge/internal/controller"
	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
	"github.com/go-dsu/steam-dsu-bridge/internal/metrics"
	"github.com/go-dsu/steam-dsu-bridge/internal/report"
)

// NumSlots is the fixed number of controller slots a DSU server exposes.
const NumSlots = 4

// OnReport is called with a slot index and the report produced by that
// slot's controller. OnError is called with a slot index and an upstream
// controller error.
type Hooks struct {
	OnReport func(slot int, meta report.DualShockMeta, r report.NormalizedReport)
	OnError  func(slot int, err error)
}

type slot struct {
	producer controller.Producer
	cancel   context.CancelFunc
}

// Table is the fixed four-slot controller table. All methods are safe for
// concurrent use; the table carries its own mutex so it can be locked
// independently of the client registry.
type Table struct {
	mu    sync.Mutex
	slots [NumSlots]*slot
	hooks Hooks
}

// New creates an empty slot table. hooks.OnReport/OnError may be nil, in
// which case forwarding is a no-op (useful in tests that only check slot
// bookkeeping).
func New(hooks Hooks) *Table {
	return &Table{hooks: hooks}
}

// Add installs c in the first empty slot index, starting a goroutine that
// forwards its reports/errors into the table's hooks until the slot is
// removed, ctx is cancelled, or the producer closes its report channel.
// It returns the slot index and whether
// a slot was assigned (false if all four slots are occupied).
func (t *Table) Add(ctx context.Context, c controller.Producer) (int, bool) {
	t.mu.Lock()
	idx := -1
	for i := 0; i < NumSlots; i++ {
		if t.slots[i] == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.mu.Unlock()
		return -1, false
	}
	subCtx, cancel := context.WithCancel(ctx)
	t.slots[idx] = &slot{producer: c, cancel: cancel}
	occupied := t.occupiedLocked()
	t.mu.Unlock()

	metrics.SetSlotsOccupied(occupied)
	logging.L().Info("slot_added", "slot", idx)
	go t.forward(subCtx, idx, c)
	return idx, true
}

func (t *Table) forward(ctx context.Context, idx int, c controller.Producer) {
	reports := c.Reports()
	errs := c.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// The slot was removed while this report was ready; drop it.
				return
			}
			meta := c.Meta()
			if meta == nil {
				continue
			}
			if t.hooks.OnReport != nil {
				t.hooks.OnReport(idx, *meta, r)
			}
		case err, ok := <-errs:
			if !ok {
				// A closed channel is always ready; stop selecting on it.
				errs = nil
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if t.hooks.OnError != nil {
				t.hooks.OnError(idx, err)
			}
		}
	}
}

// Remove cancels slot i's subscription and empties it. Index validity
// requires 0 <= i < NumSlots; slot 0 is removable like any other.
// Removing an already-empty slot is a no-op.
func (t *Table) Remove(i int) {
	if i < 0 || i >= NumSlots {
		return
	}
	t.mu.Lock()
	s := t.slots[i]
	t.slots[i] = nil
	occupied := t.occupiedLocked()
	t.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	metrics.SetSlotsOccupied(occupied)
	logging.L().Info("slot_removed", "slot", i)
}

// RemoveAll cancels every occupied slot's subscription and empties the
// whole table.
func (t *Table) RemoveAll() {
	for i := 0; i < NumSlots; i++ {
		t.Remove(i)
	}
}

// Occupied reports how many of the four slots currently hold a controller.
func (t *Table) Occupied() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.occupiedLocked()
}

func (t *Table) occupiedLocked() int {
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// At returns the producer installed in slot i, or nil if the slot is
// empty or the index is out of range.
func (t *Table) At(i int) controller.Producer {
	if i < 0 || i >= NumSlots {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[i]
	if s == nil {
		return nil
	}
	return s.producer
}
