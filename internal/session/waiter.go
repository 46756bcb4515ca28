package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Waiter is the cancellable-wait primitive described in spec.md §4.1: a
// condition variable whose every predicate wait also includes an external
// stop signal as a disjunct, plus a context derived from that same signal
// so blocking socket operations (connect, recv) can be cancelled the same
// way. The C reference realizes this with a mutex, a condition variable and
// a self-pipe; idiomatic Go gets the same cancellation semantics from
// sync.Cond and context.Context without a literal file descriptor (Design
// Notes §9, "Stop pipe").
type Waiter struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	stopped atomic.Bool
	stopCh  chan struct{}
}

// NewWaiter creates a Waiter whose condition variable is built on mu. mu is
// also the lock every predicate the caller passes to WaitUntil must be safe
// to evaluate under.
func NewWaiter(mu *sync.Mutex) *Waiter {
	return &Waiter{
		mu:     mu,
		cond:   sync.NewCond(mu),
		stopCh: make(chan struct{}),
	}
}

// WaitUntil blocks, with mu held on entry, until predicate() holds, Stop()
// is called, or timeout elapses, then returns whether predicate() or the
// stop flag is what woke it. mu is released while blocked and reacquired
// before returning, exactly like chiaki_cond_timedwait_pred. should_stop is
// folded in here rather than in every caller-supplied predicate, which is
// what spec.md §4.1 means by "all predicates include should_stop as a
// disjunct". A timeout <= 0 waits indefinitely (mirrors passing UINT64_MAX
// in the C reference for the PIN wait).
func (w *Waiter) WaitUntil(predicate func() bool, timeout time.Duration) bool {
	effective := func() bool { return predicate() || w.stopped.Load() }
	if effective() {
		return true
	}

	var timer *time.Timer
	done := make(chan struct{})
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			close(done)
			w.mu.Lock()
			w.Signal()
			w.mu.Unlock()
		})
		defer timer.Stop()
	}

	for !effective() {
		if timeout > 0 {
			select {
			case <-done:
				return effective()
			default:
			}
		}
		w.cond.Wait()
	}
	return true
}

// Signal wakes every goroutine blocked in WaitUntil so it can re-check its
// predicate. Callers must hold mu.
func (w *Waiter) Signal() {
	w.cond.Broadcast()
}

// Stop sets the stop flag, wakes every waiter and closes the context
// returned by Context, cancelling any in-flight connect/recv attached to
// it. Stop is idempotent and safe to call from any goroutine that does not
// hold mu (it takes mu to broadcast).
func (w *Waiter) Stop() {
	if w.stopped.Swap(true) {
		return
	}
	close(w.stopCh)
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Stopped reports whether Stop has been called. Safe to call with mu held
// or not.
func (w *Waiter) Stopped() bool {
	return w.stopped.Load()
}

// Context returns a context.Context that is cancelled the moment Stop is
// called, for use by candidate connect attempts and the response read.
func (w *Waiter) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
