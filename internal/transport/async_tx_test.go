package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type item struct {
	id uint32
}

var (
	errOverflow = errors.New("overflow")
	errSendFail = errors.New("send fail")
)

// TestAsyncTxSuccess verifies items are sent and hooks fire.
func TestAsyncTxSuccess(t *testing.T) {
	var sent atomic.Int64
	var after atomic.Int64
	ax := NewAsyncTx(context.Background(), 4, func(it item) error {
		sent.Add(1)
		return nil
	}, Hooks[item]{OnAfter: func() { after.Add(1) }})
	defer ax.Close()
	for i := 0; i < 3; i++ {
		if err := ax.Send(item{id: uint32(i)}); err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
	}
	// Allow worker to drain
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && sent.Load() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if sent.Load() != 3 || after.Load() != 3 {
		t.Fatalf("expected 3 sent & after, got sent=%d after=%d", sent.Load(), after.Load())
	}
}

// TestAsyncTxOverflow ensures OnDrop is invoked when buffer full.
func TestAsyncTxOverflow(t *testing.T) {
	// Slow send function sleeps 150ms per item so the buffer fills quickly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var drops atomic.Int64
	ax := NewAsyncTx(ctx, 1, func(it item) error { time.Sleep(150 * time.Millisecond); return nil }, Hooks[item]{OnDrop: func() error { drops.Add(1); return errOverflow }})
	defer ax.Close()
	// First item enqueued; give the worker time to take it and start sleeping.
	if err := ax.Send(item{}); err != nil {
		t.Fatalf("unexpected error enqueue first: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	// Second fills the one-slot buffer while the worker is busy.
	if err := ax.Send(item{}); err != nil {
		t.Fatalf("unexpected error enqueue second: %v", err)
	}
	// Third should overflow (buffer=1 full, worker sleeping)
	if err := ax.Send(item{}); !errors.Is(err, errOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if drops.Load() != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.Load())
	}
}

// TestAsyncTxSendError triggers OnError hook.
func TestAsyncTxSendError(t *testing.T) {
	var errs atomic.Int64
	ax := NewAsyncTx(context.Background(), 2, func(it item) error { return errSendFail }, Hooks[item]{OnError: func(error) { errs.Add(1) }})
	defer ax.Close()
	_ = ax.Send(item{})
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && errs.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if errs.Load() == 0 {
		t.Fatalf("expected error hook invocation")
	}
}

// TestAsyncTxClose stops processing further items.
func TestAsyncTxClose(t *testing.T) {
	var sent atomic.Int64
	ax := NewAsyncTx(context.Background(), 2, func(it item) error { sent.Add(1); return nil }, Hooks[item]{})
	_ = ax.Send(item{})
	ax.Close()
	countAfterClose := sent.Load()
	// Try sending after close (returns ErrAsyncTxClosed; must not panic or increment)
	_ = ax.Send(item{})
	// Give some time in case worker erroneously processed second item.
	time.Sleep(50 * time.Millisecond)
	if sent.Load() != countAfterClose {
		t.Fatalf("item processed after close: before=%d after=%d", countAfterClose, sent.Load())
	}
}

func TestAsyncTxSendAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := NewAsyncTx(ctx, 2, func(it item) error { return nil }, Hooks[item]{})
	tx.Close()
	if err := tx.Send(item{id: 123}); !errors.Is(err, ErrAsyncTxClosed) {
		t.Fatalf("expected ErrAsyncTxClosed, got %v", err)
	}
}

func TestAsyncTxCloseConcurrentSend(t *testing.T) {
	for i := 0; i < 100; i++ {
		ax := NewAsyncTx(context.Background(), 1, func(it item) error { return nil }, Hooks[item]{})
		done := make(chan error, 1)
		go func() {
			done <- ax.Send(item{})
		}()
		time.Sleep(1 * time.Millisecond)
		ax.Close()
		if err := <-done; err != nil && !errors.Is(err, ErrAsyncTxClosed) {
			t.Fatalf("iteration %d: unexpected send error %v", i, err)
		}
	}
}
