// Package gate implements the 256-entry interrupt vector table: the
// assembly trampolines that save CPU state into a CapturedContext, the
// C-ABI dispatcher that routes a vector to its registered handler, and the
// register/unregister bookkeeping guarding that table.
package gate

import (
	"io"

	"corekernel/kernel/kfmt"
)

// CapturedContext is the bit-exact on-stack layout commonStub leaves
// behind, read as a struct starting at the address CR3 ends up at: CR3
// (pushed last, so lowest address), the four data-segment registers, RBP,
// the fourteen general-purpose registers, the vector number and error code
// the per-vector entry stub pushed before handing off to commonStub
// (zero-filled for vectors the CPU does not push an error code for), and
// finally the frame the CPU itself pushes on interrupt entry (RIP, CS,
// RFlags, RSP, SS). Field order here must match push order exactly —
// there is no trampoline return address slot, since commonStub is reached
// by JMP, never CALL.
type CapturedContext struct {
	CR3            uint64
	DS, ES, FS, GS uint64
	RBP            uint64

	RAX, RBX, RCX, RDX, RSI, RDI uint64
	R8, R9, R10, R11, R12, R13, R14, R15 uint64

	Vector    uint64
	ErrorCode uint64

	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes a human-readable register dump to w, for use by diagnostic
// handlers (page fault, general protection fault) that have no recovery
// path.
func (cc *CapturedContext) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "vector = %2x error = %16x\n", cc.Vector, cc.ErrorCode)
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", cc.RAX, cc.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", cc.RCX, cc.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", cc.RSI, cc.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", cc.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", cc.R8, cc.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", cc.R10, cc.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", cc.R12, cc.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", cc.R14, cc.R15)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", cc.RIP, cc.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", cc.RSP, cc.SS)
	kfmt.Fprintf(w, "RFL = %16x CR3 = %16x\n", cc.RFlags, cc.CR3)
}

// InterruptNumber names one of the 256 interrupt vector table slots.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using DIV/IDIV.
	DivideByZero = InterruptNumber(0)

	// NMI indicates unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// Breakpoint is a user-reachable trap gate (DPL=3); all other
	// CPU-reserved vectors below 32 are DPL=0.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when an arithmetic result cannot fit into the
	// destination registers.
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when BOUND is invoked with an
	// out-of-range index.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid
	// or undefined opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when an FPU/MMX/SSE instruction executes
	// with no FPU available or FPU support disabled via CR0.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs, or when an
	// exception occurs while the CPU is already servicing one.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS names an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when a present gate is invoked with an
	// invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs on a non-canonical stack access or a
	// failed stack base/limit check.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page-table entry is not present
	// or a privilege/RW protection check fails.
	PageFaultException = InterruptNumber(14)

	// Timer is the vector the PIC remap assigns to the master PIC's
	// first IRQ line — the periodic preemption tick.
	Timer = InterruptNumber(32)

	// PICBase/PICSlaveBase mark the two remapped 8-entry IRQ ranges.
	PICBase      = InterruptNumber(32)
	PICSlaveBase = InterruptNumber(40)
)
