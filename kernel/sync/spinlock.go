// Package sync provides the try-acquire spinlock used to guard data shared
// between normal kernel code and interrupt handlers. Nothing in the core may
// block inside an ISR, so every lock taken from interrupt context uses
// TryToAcquire and simply skips its critical section on contention rather
// than spinning.
package sync

import "sync/atomic"

// Spinlock implements a lock where each task trying to acquire it busy-waits
// until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Re-acquiring a lock already held by the current task deadlocks; it
// must never be called from interrupt context.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded. This is the only acquisition method safe to call
// from an interrupt handler.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock busy-waits on state, issuing a PAUSE instruction after
// every failed attempt to reduce contention on the cache line. The
// attemptsBeforeYielding argument is not read, and the loop never yields.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
