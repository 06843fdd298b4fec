// Package vmm implements the page-table pool, the in-memory page-table node
// view and per-task address-space construction.
//
// Every page-table node (PML4/PDPT/PD/PT) and every task's kernel stack is
// drawn from Pool, never from the general-purpose frame allocator in
// kernel/mem/pmm: the pool is reserved exclusively for page-table nodes and
// kernel stacks, never for user data. Pool's backing store is obtained once
// via NewPool rather than hardcoded to the fixed KERNEL_BASE+0x600000
// virtual window: this lets the same allocator logic run both inside a real
// kernel (where boot code would have pre-mapped that exact window before
// calling NewPool) and under `go test` on a hosted Go toolchain.
package vmm

import (
	"unsafe"

	"corekernel/kernel"
	"corekernel/kernel/mem"
)

// PoolPages is the number of 4 KiB pages in the pool's fixed window.
const PoolPages = int(mem.PoolSize / uint64(mem.PageSize))

var (
	errPoolOutOfMemory = &kernel.Error{Module: "vmm.pool", Message: "no contiguous run of pool pages available", Kind: kernel.OutOfMemory}
	errPoolBadAddress  = &kernel.Error{Module: "vmm.pool", Message: "address does not name an in-use pool allocation", Kind: kernel.BadAddress}
)

// Pool owns the page-table pool window: PoolPages pages, allocated and
// freed by a linear first-fit scan over an in-use boolean array, exactly as
// kernel/mem/pmm.Allocator scans its free bitmap — just applied to
// kernel-virtual pool pages instead of physical frames.
type Pool struct {
	backing  []byte
	virtBase uintptr
	inUse    [PoolPages]bool
}

// NewPool allocates the pool's backing window and returns it ready for use.
func NewPool() *Pool {
	backing := make([]byte, mem.PoolSize)
	return &Pool{
		backing:  backing,
		virtBase: uintptr(unsafe.Pointer(&backing[0])),
	}
}

// AllocPage reserves and zeroes a single pool page, returning its
// kernel-virtual address.
func (p *Pool) AllocPage() (uintptr, *kernel.Error) {
	return p.AllocContiguous(1)
}

// FreePage releases a single page previously returned by AllocPage.
func (p *Pool) FreePage(va uintptr) *kernel.Error {
	return p.FreeContiguous(va, 1)
}

// AllocContiguous reserves the first free run of n contiguous pool pages,
// zeroes it and returns its starting kernel-virtual address.
func (p *Pool) AllocContiguous(n int) (uintptr, *kernel.Error) {
	start, err := p.firstFreeRun(n)
	if err != nil {
		return 0, err
	}
	for i := start; i < start+n; i++ {
		p.inUse[i] = true
	}
	va := p.pageAddr(start)
	mem.Memset(va, 0, uintptr(n)*uintptr(mem.PageSize))
	return va, nil
}

// FreeContiguous releases n contiguous pages starting at va.
func (p *Pool) FreeContiguous(va uintptr, n int) *kernel.Error {
	start, ok := p.indexOf(va)
	if !ok || start+n > PoolPages {
		return errPoolBadAddress
	}
	for i := start; i < start+n; i++ {
		if !p.inUse[i] {
			return errPoolBadAddress
		}
	}
	for i := start; i < start+n; i++ {
		p.inUse[i] = false
	}
	return nil
}

func (p *Pool) firstFreeRun(n int) (int, *kernel.Error) {
	run := 0
	for i := 0; i < PoolPages; i++ {
		if p.inUse[i] {
			run = 0
			continue
		}
		run++
		if run == n {
			return i - n + 1, nil
		}
	}
	return 0, errPoolOutOfMemory
}

func (p *Pool) pageAddr(index int) uintptr {
	return p.virtBase + uintptr(index)*uintptr(mem.PageSize)
}

func (p *Pool) indexOf(va uintptr) (int, bool) {
	if va < p.virtBase {
		return 0, false
	}
	off := va - p.virtBase
	if off%uintptr(mem.PageSize) != 0 {
		return 0, false
	}
	idx := int(off / uintptr(mem.PageSize))
	if idx < 0 || idx >= PoolPages {
		return 0, false
	}
	return idx, true
}

// PhysAddr returns the physical address backing the pool page at va. The
// pool's dedicated physical window is [mem.PoolPhysBase, +mem.PoolSize),
// mapped 1:1 onto the pool's virtual window.
func (p *Pool) PhysAddr(va uintptr) uintptr {
	return mem.PoolPhysBase + (va - p.virtBase)
}

// VirtAddr is the inverse of PhysAddr: it is how Node.Next() implements the
// spec's "translate via the fixed KERNEL_BASE offset" rule for page-table
// nodes, all of which live in the pool's window.
func (p *Pool) VirtAddr(pa uintptr) uintptr {
	return p.virtBase + (pa - mem.PoolPhysBase)
}

// FreePages returns the number of free pages remaining in the pool. Used by
// tests asserting destructor completeness.
func (p *Pool) FreePages() int {
	n := 0
	for _, used := range p.inUse {
		if !used {
			n++
		}
	}
	return n
}
