package vmm

import (
	"unsafe"

	"corekernel/kernel"
)

// entriesPerNode is the fixed x86_64 page-table fan-out at every level.
const entriesPerNode = 512

// physAddrMask isolates the 4 KiB-aligned physical address bits of an
// entry, discarding the low flag bits.
const physAddrMask = ^uint64(0xFFF)

// Entry flag bits, matching the x86_64 page-table entry encoding.
const (
	flagPresent  = uint64(1) << 0
	flagRW       = uint64(1) << 1
	flagUser     = uint64(1) << 2
	flagPageSize = uint64(1) << 7
)

var errNodeNotPresent = &kernel.Error{Module: "vmm.node", Message: "page table entry is not present or is a huge page", Kind: kernel.BadAddress}

// Node is the in-memory view of one 512-entry page-table page. It carries
// only the kernel-virtual address of the page it views — every Node is
// drawn from a Pool and its backing storage already lives at that address.
type Node struct {
	virtAddr uintptr
}

// NodeAt wraps an existing pool page (already zeroed by Pool.AllocPage) as a
// Node.
func NodeAt(virtAddr uintptr) Node {
	return Node{virtAddr: virtAddr}
}

// VirtAddr returns the kernel-virtual address of this node's backing page.
func (n Node) VirtAddr() uintptr {
	return n.virtAddr
}

func (n Node) entryPtr(index int) *uint64 {
	return (*uint64)(unsafe.Pointer(n.virtAddr + uintptr(index)*8))
}

// Get returns the raw entry at index.
func (n Node) Get(index int) uint64 {
	return *n.entryPtr(index)
}

// Present reports whether the entry at index has its present bit set.
func (n Node) Present(index int) bool {
	return n.Get(index)&flagPresent != 0
}

// Map installs a mapping to paddr at index with the given permission bits.
// It refuses to overwrite an existing present entry, returning false in
// that case; it returns true once the entry has been written.
func (n Node) Map(index int, paddr uintptr, rw, user, pageSize bool) bool {
	if n.Present(index) {
		return false
	}

	entry := uint64(paddr) & physAddrMask
	entry |= flagPresent
	if rw {
		entry |= flagRW
	}
	if user {
		entry |= flagUser
	}
	if pageSize {
		entry |= flagPageSize
	}
	*n.entryPtr(index) = entry
	return true
}

// Unmap clears the entry at index, returning true if it had been present.
func (n Node) Unmap(index int) bool {
	if !n.Present(index) {
		return false
	}
	*n.entryPtr(index) = 0
	return true
}

// Next follows the entry at index to the child node it points to,
// translating the entry's physical address to a kernel-virtual address via
// pool (the fixed-offset translation an x86_64 page-table walk needs). It fails with
// BadAddress if the entry is not present or names a huge (page_size=1) leaf.
func (n Node) Next(pool *Pool, index int) (Node, *kernel.Error) {
	e := n.Get(index)
	if e&flagPresent == 0 || e&flagPageSize != 0 {
		return Node{}, errNodeNotPresent
	}
	return NodeAt(pool.VirtAddr(uintptr(e & physAddrMask))), nil
}

// Frame returns the physical frame the entry at index points to.
func (n Node) Frame(index int) uintptr {
	return uintptr(n.Get(index) & physAddrMask)
}

// MapKernel installs the single process-wide kernel PDPT into entry 511 of
// this (freshly allocated, all-zero) PML4, with rw=1, user=0 — the shared
// upper half every task's address space carries.
func (n Node) MapKernel(kernelPDPTPhys uintptr) bool {
	return n.Map(511, kernelPDPTPhys, true, false, false)
}
