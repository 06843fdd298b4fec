// Package pmm implements the fixed 64 MiB physical frame allocator: a single
// bitmap over PFNs [0, MaxMapped), with [0, InitialMapped) permanently
// reserved for the boot-mapped kernel image and page-table pool.
package pmm

import (
	"math"

	"corekernel/kernel/mem"
)

// Frame is a physical memory page index (a physical address divided by
// mem.PageSize).
type Frame uintptr

// InvalidFrame is returned by allocators that fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid reports whether f is a real frame (as opposed to InvalidFrame).
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address this frame describes.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}
