package kernel

import "corekernel/kernel/cpu"

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the
	// compiler in the kernel build.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause", Kind: OperationFailed}
)

// logFn is set by kernel/kfmt during package initialization. kfmt imports
// kernel (to register itself here), so kernel cannot import kfmt without an
// import cycle; this indirection lets Panic print through kfmt anyway.
var logFn func(format string, args ...interface{})

// SetLogFunc registers the Printf-like function Panic uses to report the
// failing error before halting. Called once from kfmt.init.
func SetLogFunc(fn func(format string, args ...interface{})) {
	logFn = fn
}

// Panic reports the supplied error (if not nil) and halts the CPU. Calls to
// Panic never return. Nothing in this tree redirects the builtin panic() or
// runtime.throw to it; it runs only where kernel code calls it directly.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	if logFn != nil {
		logFn("\n-----------------------------------\n")
		if err != nil {
			logFn("[%s] unrecoverable error: %s\n", err.Module, err.Message)
		}
		logFn("*** kernel panic: system halted ***\n-----------------------------------\n")
	}

	cpuHaltFn()
}
