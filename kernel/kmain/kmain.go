// Package kmain wires the nine core components into the sequence the boot
// stub hands control to: frame allocator, page-table pool and kernel half,
// interrupt dispatch, task table, the round-robin scheduler and the PIC/PIT
// driver, in that order — the only place in this repository all of them are
// constructed together.
package kmain

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/gate"
	"corekernel/kernel/hal"
	"corekernel/kernel/kfmt"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/sched"
	"corekernel/kernel/task"
	"corekernel/kernel/timer"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned", Kind: kernel.OperationFailed}

// Kernel holds every subsystem Kmain constructs, so tests (and, on real
// hardware, diagnostic ISRs installed after Kmain runs) can reach them
// without package-level globals.
type Kernel struct {
	Frames *pmm.Allocator
	Pool   *vmm.Pool
	Tasks  *task.Table
	Timer  *timer.Driver
	Sched  *sched.Scheduler
}

// Kmain is the Go symbol the boot stub calls after it has loaded a GDT, set
// up a valid TSS with a privilege-0 stack, and identity-mapped a console
// framebuffer. It is not expected to return — boot code halts the CPU if it
// does.
//
//go:noinline
func Kmain(consoleAddr uintptr) {
	var console hal.VGAConsole
	console.Init(80, 25, consoleAddr)
	kfmt.SetOutputSink(&console)

	k, err := New()
	if err != nil {
		kernel.Panic(err)
	}

	gate.RegisterISR(gate.Timer, func(cc *gate.CapturedContext) {
		k.Timer.HandleInterrupt()
	})

	cpu.EnableInterrupts()

	kernel.Panic(errKmainReturned)
}

// New constructs every subsystem without enabling interrupts. It does
// program the PIC and PIT through port I/O (timer.New), which needs I/O
// privilege, so it does not run in an unprivileged hosted process. It
// builds: the frame allocator,
// the page-table pool with its shared kernel half installed, the interrupt
// dispatch table (with the task table's context-sync hook installed), the
// timer/PIC driver remapped to vectors [32,48), an empty task table and a
// scheduler wired to the timer's tick callback.
func New() (*Kernel, *kernel.Error) {
	frames := pmm.NewAllocator()
	pool := vmm.NewPool()

	if err := vmm.InstallKernelHalf(pool); err != nil {
		return nil, err
	}

	gate.Init()

	tasks := task.NewTable(pool, frames)
	gate.SetContextSyncFn(tasks.SyncFromCapturedContext)

	sc := sched.New(tasks)

	td := timer.New(uint8(gate.PICBase), uint8(gate.PICSlaveBase))
	td.SetSchedulerCallback(sc.OnTick)

	return &Kernel{
		Frames: frames,
		Pool:   pool,
		Tasks:  tasks,
		Timer:  td,
		Sched:  sc,
	}, nil
}
