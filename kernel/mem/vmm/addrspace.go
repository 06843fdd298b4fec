package vmm

import (
	"corekernel/kernel"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/pmm"
)

// FrameAllocatorFn allocates a single physical frame for use as a page-table
// node backing or a user data page.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// FrameFreeFn releases a single physical frame previously obtained from a
// FrameAllocatorFn.
type FrameFreeFn func(pmm.Frame) *kernel.Error

var (
	errKernelHalfNotReady = &kernel.Error{Module: "vmm.addrspace", Message: "kernel PDPT has not been installed yet", Kind: kernel.OperationFailed}
	errMapOutOfMemory     = &kernel.Error{Module: "vmm.addrspace", Message: "no free user page-table slot", Kind: kernel.OutOfMemory}
	errUnmappedAddress    = &kernel.Error{Module: "vmm.addrspace", Message: "address has no present user mapping", Kind: kernel.BadAddress}

	// kernelPDPTPhys is the physical address of the single, process-wide
	// kernel PDPT every task's PML4 entry 511 points to. Its lifetime is
	// the kernel's — it is installed once at boot and merely referenced
	// by physical address from every task's PML4.
	kernelPDPTPhys uintptr
	kernelHalfSet  bool
)

// InstallKernelHalf allocates and records the one shared kernel PDPT. It
// must be called exactly once, before the first call to NewAddressSpace.
func InstallKernelHalf(pool *Pool) *kernel.Error {
	if kernelHalfSet {
		return nil
	}
	va, err := pool.AllocPage()
	if err != nil {
		return err
	}
	kernelPDPTPhys = pool.PhysAddr(va)
	kernelHalfSet = true
	return nil
}

// ResetKernelHalfForTest clears the shared-kernel-half singleton. It exists
// only so that package tests can exercise InstallKernelHalf's
// install-once behavior starting from a clean slate; production code never
// calls it.
func ResetKernelHalfForTest() {
	kernelPDPTPhys, kernelHalfSet = 0, false
}

// AddressSpace is the per-task PML4/PDPT/PD/PT chain: a single user PT
// covering [0, 2 MiB), a 16 KiB user stack
// pre-mapped at its top, and a CR3 value ready to load.
type AddressSpace struct {
	pool               *Pool
	pml4, pdpt, pd, pt Node
}

// NewAddressSpace builds a fresh address space: four page-table nodes from
// pool, the shared kernel half installed in PML4[511], and a 16 KiB user
// stack (4 frames from allocFrame) mapped at the top of the user PT. Any
// failure partway through releases everything already allocated before
// returning the error: a task whose creation fails never enters the table.
func NewAddressSpace(pool *Pool, allocFrame FrameAllocatorFn, freeFrame FrameFreeFn) (*AddressSpace, *kernel.Error) {
	if !kernelHalfSet {
		return nil, errKernelHalfNotReady
	}

	as := &AddressSpace{pool: pool}

	pml4va, err := pool.AllocPage()
	if err != nil {
		return nil, err
	}
	as.pml4 = NodeAt(pml4va)

	pdptva, err := pool.AllocPage()
	if err != nil {
		as.Destroy(freeFrame)
		return nil, err
	}
	as.pdpt = NodeAt(pdptva)

	pdva, err := pool.AllocPage()
	if err != nil {
		as.Destroy(freeFrame)
		return nil, err
	}
	as.pd = NodeAt(pdva)

	ptva, err := pool.AllocPage()
	if err != nil {
		as.Destroy(freeFrame)
		return nil, err
	}
	as.pt = NodeAt(ptva)

	as.pml4.MapKernel(kernelPDPTPhys)
	as.pml4.Map(0, pool.PhysAddr(pdptva), true, true, false)
	as.pdpt.Map(0, pool.PhysAddr(pdva), true, true, false)
	as.pd.Map(0, pool.PhysAddr(ptva), true, true, false)

	for i := 0; i < 4; i++ {
		frame, ferr := allocFrame()
		if ferr != nil {
			as.Destroy(freeFrame)
			return nil, ferr
		}
		as.pt.Map(511-i, frame.Address(), true, true, false)
	}

	return as, nil
}

// CR3 returns the physical address of this address space's PML4 — the
// value to load into the CR3 register to activate it.
func (as *AddressSpace) CR3() uintptr {
	return as.pool.PhysAddr(as.pml4.VirtAddr())
}

// KernelPDPTPhys returns the physical address recorded in PML4 entry 511,
// used by tests to assert that every address space shares the kernel half.
func (as *AddressSpace) KernelPDPTPhys() uintptr {
	return as.pml4.Frame(511)
}

// Map places one user page and returns the virtual address it was mapped
// at. If address is zero, the first empty slot in [1, 512) of the user PT
// is used (index 0 is reserved and treated as exhaustion — OutOfMemory —
// when no other slot remains). Otherwise the PT index is
// derived from bits 12..21 of address; an occupied slot is OutOfMemory.
func (as *AddressSpace) Map(address uintptr, allocFrame FrameAllocatorFn) (uintptr, *kernel.Error) {
	var index int

	if address == 0 {
		found := false
		for i := 1; i < entriesPerNode; i++ {
			if !as.pt.Present(i) {
				index, found = i, true
				break
			}
		}
		if !found {
			return 0, errMapOutOfMemory
		}
	} else {
		index = int((address >> mem.PageShift) & (entriesPerNode - 1))
		if as.pt.Present(index) {
			return 0, errMapOutOfMemory
		}
	}

	frame, err := allocFrame()
	if err != nil {
		return 0, err
	}
	as.pt.Map(index, frame.Address(), true, true, false)
	return uintptr(index) * uintptr(mem.PageSize), nil
}

// Resolve translates a user virtual address into a host pointer dereferencing
// the same byte a real CR3 switch plus a raw access would reach: it looks
// up the PT entry bits 12..21 of address select, and maps the resulting
// physical frame through alloc's host-backed storage. It fails with
// BadAddress if no page is mapped at address.
func (as *AddressSpace) Resolve(address uintptr, alloc *pmm.Allocator) (uintptr, *kernel.Error) {
	index := int((address >> mem.PageShift) & (entriesPerNode - 1))
	if !as.pt.Present(index) {
		return 0, errUnmappedAddress
	}
	frame := pmm.Frame(as.pt.Frame(index) >> mem.PageShift)
	return alloc.HostAddress(frame) + (address & uintptr(mem.PageSize-1)), nil
}

// Destroy frees every present user frame referenced by the PT, then PT, PD,
// PDPT and PML4 themselves, back to pool. It tolerates a partially built
// AddressSpace (a zero Node value has no present entries) so it can double
// as cleanup after a failed NewAddressSpace.
func (as *AddressSpace) Destroy(freeFrame FrameFreeFn) {
	if as.pt.VirtAddr() != 0 {
		for i := 0; i < entriesPerNode; i++ {
			if as.pt.Present(i) {
				freeFrame(pmm.Frame(as.pt.Frame(i) >> mem.PageShift))
			}
		}
		as.pool.FreePage(as.pt.VirtAddr())
	}
	if as.pd.VirtAddr() != 0 {
		as.pool.FreePage(as.pd.VirtAddr())
	}
	if as.pdpt.VirtAddr() != 0 {
		as.pool.FreePage(as.pdpt.VirtAddr())
	}
	if as.pml4.VirtAddr() != 0 {
		as.pool.FreePage(as.pml4.VirtAddr())
	}
}
