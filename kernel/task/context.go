// Package task implements the per-task CPU context, the task table and the
// lifecycle states described by the scheduler/VM core: Context captures
// everything needed to resume a task (its address space, kernel stack and
// saved registers); Table maps task identifiers to tasks and hands out
// fresh ones.
package task

import (
	"unsafe"

	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
)

// Segment selectors consumed from boot-time GDT setup; the core treats
// these as opaque constants it never constructs.
const (
	KernelCodeSelector = 0x08
	KernelDataSelector = 0x10
	UserCodeSelector   = 0x28 | 3
	UserDataSelector   = 0x30 | 3
	TSSSelector        = 0x38
)

// initialUserRSP is the top of the user stack region every freshly
// constructed Context starts with: 0x1FF000. Pushes grow down from there,
// so the top 4 KiB of the mapped [0x1FC000, 0x200000) stack region lies
// above the initial RSP.
const initialUserRSP = 0x1FF000

// kernelStackPages is the size, in 4 KiB pool pages, of the kernel stack
// every Context owns.
const kernelStackPages = 4

// rflagsIF is bit 9 of RFLAGS — the interrupt-enable flag. A freshly
// constructed context starts with IF=1 and IOPL=0: interrupts enabled,
// no I/O privilege granted to ring 3.
const rflagsIF = uint64(1) << 9

// GPRSet holds the 14 general-purpose registers a task switch saves and
// restores — every integer register except RSP and RBP, which live
// alongside the address-space root and kernel stack in Context itself.
type GPRSet struct {
	RAX, RBX, RCX, RDX, RSI, RDI uint64
	R8, R9, R10, R11, R12, R13, R14, R15 uint64
}

// SegRegs holds the six segment selectors, each widened to 64 bits for
// uniform storage alongside the GPRs.
type SegRegs struct {
	CS, DS, ES, FS, GS, SS uint64
}

// Context holds one task's saved CPU state: its address space, its kernel
// stack, and everything switch_to needs to resume it in user mode.
type Context struct {
	RFlags uint64
	CR3    uintptr
	RSP    uint64
	RIP    uint64
	RBP    uint64

	AddressSpace *vmm.AddressSpace
	// KernelStack is the kernel-virtual address of the base of this
	// context's 4-page kernel stack, drawn from the same pool as its
	// page-table nodes.
	KernelStack uintptr

	GPR GPRSet
	SR  SegRegs

	pool  *vmm.Pool
	alloc *pmm.Allocator
}

// switchCR3Fn/readCR3Fn indirect over the privileged CR3 instructions so
// that Write/Read can be driven under `go test`; production code never
// overrides them.
var (
	switchCR3Fn = cpu.SwitchCR3
	readCR3Fn   = cpu.ReadCR3
)

// NewContext builds a fresh Context: a new Address Space (PML4 through PT,
// kernel half shared, 16 KiB user stack mapped), a 4-page kernel stack from
// pool, RFLAGS with IF set, user-ring segment selectors, and RSP at the top
// of the user stack region. RIP is left at zero; the caller sets it before
// the first switch_to. Any failure releases everything already allocated.
func NewContext(pool *vmm.Pool, alloc *pmm.Allocator) (*Context, *kernel.Error) {
	allocFrame := vmm.FrameAllocatorFn(alloc.Allocate)
	freeFrame := vmm.FrameFreeFn(alloc.Free)

	as, err := vmm.NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		return nil, err
	}

	kstack, err := pool.AllocContiguous(kernelStackPages)
	if err != nil {
		as.Destroy(freeFrame)
		return nil, err
	}

	return &Context{
		RFlags:       rflagsIF,
		CR3:          as.CR3(),
		RSP:          initialUserRSP,
		RIP:          0,
		AddressSpace: as,
		KernelStack:  kstack,
		SR: SegRegs{
			CS: UserCodeSelector,
			DS: UserDataSelector,
			ES: UserDataSelector,
			FS: UserDataSelector,
			GS: UserDataSelector,
			SS: UserDataSelector,
		},
		pool:  pool,
		alloc: alloc,
	}, nil
}

// Destroy releases this context's kernel stack and address space back to
// pool and alloc. Table.Remove does not call it; the scheduler's reap step
// calls it on each task it has removed.
func (c *Context) Destroy() {
	c.AddressSpace.Destroy(c.alloc.Free)
	c.pool.FreeContiguous(c.KernelStack, kernelStackPages)
}

// resolve walks this context's user page table to translate a user virtual
// address into a dereferenceable host pointer, the way a real CR3 switch
// plus a raw pointer access would reach the same byte through the MMU.
func (c *Context) resolve(vaddr uintptr) (uintptr, *kernel.Error) {
	return c.AddressSpace.Resolve(vaddr, c.alloc)
}

// Write switches CR3 to this context if it is not already current, writes
// value at ptr within this context's address space, then restores the
// previous CR3. This is how a creator initialises a task's memory before
// the task ever runs.
func Write[T any](c *Context, ptr uintptr, value T) *kernel.Error {
	host, err := c.resolve(ptr)
	if err != nil {
		return err
	}

	prev := readCR3Fn()
	if prev != c.CR3 {
		switchCR3Fn(c.CR3)
	}
	*(*T)(unsafe.Pointer(host)) = value
	if prev != c.CR3 {
		switchCR3Fn(prev)
	}
	return nil
}

// Read is the read counterpart of Write.
func Read[T any](c *Context, ptr uintptr) (T, *kernel.Error) {
	var zero T
	host, err := c.resolve(ptr)
	if err != nil {
		return zero, err
	}

	prev := readCR3Fn()
	if prev != c.CR3 {
		switchCR3Fn(c.CR3)
	}
	v := *(*T)(unsafe.Pointer(host))
	if prev != c.CR3 {
		switchCR3Fn(prev)
	}
	return v, nil
}

// IRETFrame is the 5-word stack layout switch_to synthesizes before
// executing IRET: SS, RSP, RFLAGS, CS, RIP, pushed in that order so IRET
// pops them in reverse.
type IRETFrame struct {
	SS     uint64
	RSP    uint64
	RFlags uint64
	CS     uint64
	RIP    uint64
}

// BuildIRETFrame derives the IRET frame switch_to pushes onto the current
// kernel stack to resume c in user mode. Split out from SwitchTo (which
// never returns and cannot be exercised under `go test`) so this part of
// switch_to's contract stays testable.
func (c *Context) BuildIRETFrame() IRETFrame {
	return IRETFrame{
		SS:     c.SR.SS,
		RSP:    c.RSP,
		RFlags: c.RFlags,
		CS:     c.SR.CS,
		RIP:    c.RIP,
	}
}

// SwitchTo is the atomic transition from kernel mode to task c in user
// mode: it synthesizes the IRET frame BuildIRETFrame describes on the
// current kernel stack, loads c.CR3 into CR3 (unconditionally, even when it
// is already active), loads every segment
// register and general-purpose register from c, and executes IRET. It does
// not return. Preconditions: interrupts are disabled, CPL is 0, and c has
// been fully initialised. The caller's kernel stack is abandoned — all
// cleanup of an outgoing task must happen before this call.
func SwitchTo(c *Context)
