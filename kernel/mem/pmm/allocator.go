package pmm

import (
	"unsafe"

	"corekernel/kernel"
	"corekernel/kernel/mem"
)

const (
	// InitialMapped is the count of frames permanently reserved for the
	// boot-mapped kernel image and page-table pool: PFNs [0,
	// InitialMapped) are never handed out.
	InitialMapped = 3072

	// MaxMapped bounds the fixed 64 MiB physical budget: PFNs
	// [InitialMapped, MaxMapped) are the only allocatable range.
	MaxMapped = 16384
)

var (
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "no free physical frames remain", Kind: kernel.OutOfMemory}
	errBadAddress  = &kernel.Error{Module: "pmm", Message: "frame is already free", Kind: kernel.BadAddress}
)

// Allocator is a bitmap-backed physical frame allocator: one bit per PFN in
// [InitialMapped, MaxMapped), set when the frame is in use. It owns no
// memory of its own beyond the bitmap array — grounded on the same
// one-bit-per-frame, lowest-free-wins scheme as the pool allocator in
// kernel/mem/vmm, just applied to physical frames instead of pool pages.
type Allocator struct {
	used    [MaxMapped]bool
	backing []byte
}

// NewAllocator returns an Allocator with [0, InitialMapped) already marked
// in use, as the spec requires. It also reserves the allocator's full 64
// MiB physical budget as a real Go-heap-backed slice, exactly as
// kernel/mem/vmm.Pool reserves its own window: on real hardware a frame's
// bytes live at its physical address and are reached through whatever
// virtual mapping names that address, but under a hosted `go test` process
// there is no MMU to do that translation, so HostAddress stands in for it.
func NewAllocator() *Allocator {
	a := &Allocator{backing: make([]byte, MaxMapped*int(mem.PageSize))}
	for pfn := Frame(0); pfn < InitialMapped; pfn++ {
		a.used[pfn] = true
	}
	return a
}

// HostAddress returns the address of frame f's backing bytes in this
// process. kernel/task.Context uses it to resolve a user virtual address to
// an actual dereferenceable pointer after walking the owning address
// space's page tables.
func (a *Allocator) HostAddress(f Frame) uintptr {
	return uintptr(unsafe.Pointer(&a.backing[uintptr(f)*uintptr(mem.PageSize)]))
}

// Allocate returns the lowest-numbered free frame in [InitialMapped,
// MaxMapped) and marks it used, or OutOfMemory if none remain.
func (a *Allocator) Allocate() (Frame, *kernel.Error) {
	for pfn := Frame(InitialMapped); pfn < MaxMapped; pfn++ {
		if !a.used[pfn] {
			a.used[pfn] = true
			return pfn, nil
		}
	}
	return InvalidFrame, errOutOfMemory
}

// Free clears the in-use bit for pfn. Freeing a frame outside the
// allocatable range or one that is already free returns BadAddress.
func (a *Allocator) Free(pfn Frame) *kernel.Error {
	if pfn < InitialMapped || pfn >= MaxMapped || !a.used[pfn] {
		return errBadAddress
	}
	a.used[pfn] = false
	return nil
}

// FreeCount returns the number of allocatable frames currently free. Used by
// tests to assert bit-for-bit conservation across create/destroy cycles.
func (a *Allocator) FreeCount() int {
	n := 0
	for pfn := Frame(InitialMapped); pfn < MaxMapped; pfn++ {
		if !a.used[pfn] {
			n++
		}
	}
	return n
}
