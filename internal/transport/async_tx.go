// Package transport provides a generic asynchronous fan-in primitive used
// to decouple producers (controller report streams) from a single
// serialized consumer goroutine.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// AsyncTx is a reusable asynchronous item transmitter that funnels values
// through a single goroutine (fan-in). It provides non-blocking enqueue
// semantics: if the internal buffer is full, Send invokes the configured
// OnDrop hook and returns its error (usually an overflow sentinel). This
// keeps producers (e.g. a controller's report stream) from blocking behind
// a slow or wedged consumer.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.Send(item)
//	a.Close()
//
// After Close returns no more items will be processed. Close cancels the
// worker and closes the channel under the send lock, so a concurrent Send
// never writes to a closed channel; Send after Close returns
// ErrAsyncTxClosed.
//
// Hooks let each consumer keep distinct metrics/logging without
// duplicating the goroutine + buffer plumbing.
type AsyncTx[T any] struct {
	mu     sync.Mutex
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(T) error
	hooks  Hooks[T]
	closed atomic.Bool // set when Close is called; prevents enqueue after shutdown
}

// Hooks customize AsyncTx behavior.
type Hooks[T any] struct {
	// OnError is called when send returns a non-nil error (item not delivered).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error is
	// returned from Send. If nil, the overflow is silent (best-effort).
	OnDrop func() error
}

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx[T any](parent context.Context, buf int, send func(T) error, hooks Hooks[T]) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case item, ok := <-a.ch:
			if !ok { // channel closed
				return
			}
			if err := a.send(item); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// ErrAsyncTxClosed is returned by Send once Close has been called.
var ErrAsyncTxClosed = errors.New("async tx closed")

// Send queues an item for asynchronous processing, or returns the drop
// error if the buffer is full.
func (a *AsyncTx[T]) Send(item T) error {
	// Fast-path check so steady-state sends avoid the lock when already shut down.
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- item:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for it to exit. An item already being
// sent completes; items still buffered may be discarded.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) { // already closed
		return
	}
	// Cancel context to stop loop, then close channel under the send lock to avoid races.
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
