package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaiterWaitUntilPredicateAlreadyTrue(t *testing.T) {
	var mu sync.Mutex
	w := NewWaiter(&mu)
	mu.Lock()
	defer mu.Unlock()
	if !w.WaitUntil(func() bool { return true }, time.Second) {
		t.Fatal("WaitUntil with an already-true predicate must return true immediately")
	}
}

func TestWaiterSignalWakesWaiter(t *testing.T) {
	var mu sync.Mutex
	w := NewWaiter(&mu)
	ready := false

	done := make(chan bool, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		done <- w.WaitUntil(func() bool { return ready }, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	ready = true
	w.Signal()
	mu.Unlock()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("WaitUntil returned false after predicate became true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntil did not wake up after Signal")
	}
}

func TestWaiterStopUnblocksWaiters(t *testing.T) {
	var mu sync.Mutex
	w := NewWaiter(&mu)

	done := make(chan bool, 1)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		done <- w.WaitUntil(func() bool { return false }, 0)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("WaitUntil did not observe the stop flag")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock an in-progress WaitUntil")
	}

	if !w.Stopped() {
		t.Fatal("Stopped() false after Stop()")
	}

	// Stop must be idempotent.
	w.Stop()
}

func TestWaiterContextCancelledByStop(t *testing.T) {
	var mu sync.Mutex
	w := NewWaiter(&mu)
	ctx, cancel := w.Context(context.Background())
	defer cancel()

	w.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context derived from Waiter was not cancelled by Stop")
	}
}
