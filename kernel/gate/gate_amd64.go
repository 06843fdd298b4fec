package gate

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
)

// Handler is invoked with the CapturedContext of the interrupt that fired.
// A handler that returns normally resumes execution at the (possibly
// modified) Frame held in the context.
type Handler func(*CapturedContext)

var (
	handlers     [256]Handler
	handlersLock sync.Spinlock

	errVectorOccupied = &kernel.Error{Module: "gate", Message: "vector already has a registered handler", Kind: kernel.AlreadyExists}
	errVectorEmpty    = &kernel.Error{Module: "gate", Message: "vector has no registered handler", Kind: kernel.NotFound}
)

// syncContextFn is set by the task package so that the dispatcher can copy
// a freshly captured interrupt context into the currently running task's
// Context before invoking the registered handler. It stays nil (a no-op)
// until the task package has something to copy into, which lets this
// package be exercised in isolation.
var syncContextFn func(*CapturedContext)

// SetContextSyncFn installs the callback the dispatcher uses to propagate a
// CapturedContext into the current task's saved state.
func SetContextSyncFn(fn func(*CapturedContext)) {
	syncContextFn = fn
}

// RegisterISR installs fn as the handler for vector. It fails with
// AlreadyExists if vector already has a handler.
func RegisterISR(vector InterruptNumber, fn Handler) *kernel.Error {
	handlersLock.Acquire()
	defer handlersLock.Release()

	if handlers[vector] != nil {
		return errVectorOccupied
	}
	handlers[vector] = fn
	return nil
}

// UnregisterISR removes the handler for vector. It fails with NotFound if
// vector has no handler installed.
func UnregisterISR(vector InterruptNumber) *kernel.Error {
	handlersLock.Acquire()
	defer handlersLock.Release()

	if handlers[vector] == nil {
		return errVectorEmpty
	}
	handlers[vector] = nil
	return nil
}

// dispatch is the single C-ABI entry point every generated trampoline calls
// with the vector, its error code (zero if the CPU did not push one) and a
// pointer to the CapturedContext it just built on the kernel stack. It
// performs, in order: the context-sync step (syncContextFn, installed via
// SetContextSyncFn), then the registered handler lookup and invocation.
func dispatch(vector uint8, errorCode uint64, cc *CapturedContext) {
	cc.Vector = uint64(vector)
	cc.ErrorCode = errorCode

	if syncContextFn != nil {
		syncContextFn(cc)
	}

	if h := handlers[vector]; h != nil {
		h(cc)
	}
}

// Init calls installIDT. It must be called once, after the boot code has
// loaded a valid GDT/TSS, and before interrupts are enabled.
func Init() {
	installIDT()
}

// installIDT is implemented in assembly as a bare RET: it writes no gate
// descriptors and does not execute LIDT, so the CPU keeps whatever IDT boot
// code loaded. RegisterISR/UnregisterISR only toggle the Go-side handler
// table, which dispatch consults for any vector a stub hands it.
func installIDT()

// interruptGateEntries returns the address of isrVector0, the first of the
// per-vector stubs defined in gate_amd64.s.
func interruptGateEntries() uintptr
