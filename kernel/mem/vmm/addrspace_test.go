package vmm

import (
	"testing"
	"unsafe"

	"corekernel/kernel"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/pmm"
)

func newTestFrameAllocator() (FrameAllocatorFn, FrameFreeFn) {
	a := pmm.NewAllocator()
	return func() (pmm.Frame, *kernel.Error) { return a.Allocate() },
		func(f pmm.Frame) *kernel.Error { return a.Free(f) }
}

func setupKernelHalf(t *testing.T, pool *Pool) {
	t.Helper()
	ResetKernelHalfForTest()
	t.Cleanup(ResetKernelHalfForTest)
	if err := InstallKernelHalf(pool); err != nil {
		t.Fatalf("unexpected error installing kernel half: %v", err)
	}
}

func TestNewAddressSpaceFailsWithoutKernelHalf(t *testing.T) {
	ResetKernelHalfForTest()
	pool := NewPool()
	allocFrame, freeFrame := newTestFrameAllocator()

	if _, err := NewAddressSpace(pool, allocFrame, freeFrame); err == nil {
		t.Fatalf("expected NewAddressSpace to fail before InstallKernelHalf")
	}
}

func TestNewAddressSpaceMapsUserStack(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 4; i++ {
		if !as.pt.Present(511 - i) {
			t.Fatalf("expected user stack frame at PT index %d to be present", 511-i)
		}
	}
	if as.CR3() == 0 {
		t.Fatalf("expected a non-zero CR3")
	}
}

// TestAddressSpacesShareKernelHalf asserts that every
// address space's PML4 entry 511 resolves to the same physical PDPT.
func TestAddressSpacesShareKernelHalf(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as1, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	as2, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if as1.KernelPDPTPhys() != as2.KernelPDPTPhys() {
		t.Fatalf("expected both address spaces to share the same kernel PDPT")
	}
}

// TestAddressSpaceIsolation asserts that two address
// spaces' user halves are fully independent — mapping a page in one must
// not make it visible as present in the other.
func TestAddressSpaceIsolation(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as1, _ := NewAddressSpace(pool, allocFrame, freeFrame)
	as2, _ := NewAddressSpace(pool, allocFrame, freeFrame)

	va, err := as1.Map(0, allocFrame)
	if err != nil {
		t.Fatalf("unexpected error mapping in as1: %v", err)
	}
	idx := int(va / uintptr(mem.PageSize))

	if as2.pt.Present(idx) {
		t.Fatalf("expected as1's mapping to be invisible in as2")
	}
}

// TestMapAtZeroUsesLowestFreeIndex exercises Map's lowest-free-index search.
func TestMapAtZeroUsesLowestFreeIndex(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as, _ := NewAddressSpace(pool, allocFrame, freeFrame)

	va, err := as.Map(0, allocFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if va != uintptr(mem.PageSize)*1 {
		t.Fatalf("expected the first map(0) to land at index 1; got va=%#x", va)
	}

	va2, err := as.Map(0, allocFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if va2 != uintptr(mem.PageSize)*2 {
		t.Fatalf("expected the second map(0) to land at index 2; got va=%#x", va2)
	}
}

func TestMapExplicitAddressRejectsOccupiedSlot(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as, _ := NewAddressSpace(pool, allocFrame, freeFrame)

	va, err := as.Map(uintptr(mem.PageSize)*3, allocFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := as.Map(va, allocFrame); err == nil || err.Kind != kernel.OutOfMemory {
		t.Fatalf("expected remapping an occupied slot to fail with OutOfMemory; got %v", err)
	}
}

// TestMapReportsExhaustionCleanly checks that once the
// frame allocator is drained, Map must fail cleanly without corrupting the
// address space.
func TestMapReportsExhaustionCleanly(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()

	as, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drained := func() (pmm.Frame, *kernel.Error) {
		return pmm.InvalidFrame, &kernel.Error{Module: "test", Message: "drained", Kind: kernel.OutOfMemory}
	}
	if _, err := as.Map(0, drained); err == nil || err.Kind != kernel.OutOfMemory {
		t.Fatalf("expected OutOfMemory from a drained allocator; got %v", err)
	}
	if as.pt.Present(1) {
		t.Fatalf("expected no partial mapping to have been installed on failure")
	}
}

// TestDestroyReclaimsEveryPoolPage asserts that destroying an
// address space returns every pool page it held.
func TestDestroyReclaimsEveryPoolPage(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	allocFrame, freeFrame := newTestFrameAllocator()
	freePoolBefore := pool.FreePages()

	as, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	as.Map(0, allocFrame)
	as.Map(0, allocFrame)

	as.Destroy(freeFrame)

	if got := pool.FreePages(); got != freePoolBefore {
		t.Fatalf("expected all pool pages reclaimed after Destroy; free=%d want=%d", got, freePoolBefore)
	}
}

func TestResolveTranslatesMappedAddress(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	a := pmm.NewAllocator()
	allocFrame := func() (pmm.Frame, *kernel.Error) { return a.Allocate() }
	freeFrame := func(f pmm.Frame) *kernel.Error { return a.Free(f) }

	as, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	va, err := as.Map(0, allocFrame)
	if err != nil {
		t.Fatalf("unexpected error mapping: %v", err)
	}

	host, rerr := as.Resolve(va+0x10, a)
	if rerr != nil {
		t.Fatalf("unexpected error resolving: %v", rerr)
	}

	*(*byte)(unsafe.Pointer(host)) = 0x42
	if *(*byte)(unsafe.Pointer(host)) != 0x42 {
		t.Fatalf("expected write through the resolved host pointer to be visible")
	}
}

func TestResolveFailsOnUnmappedAddress(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	a := pmm.NewAllocator()
	allocFrame := func() (pmm.Frame, *kernel.Error) { return a.Allocate() }
	freeFrame := func(f pmm.Frame) *kernel.Error { return a.Free(f) }

	as, err := NewAddressSpace(pool, allocFrame, freeFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, rerr := as.Resolve(uintptr(mem.PageSize)*7, a); rerr == nil || rerr.Kind != kernel.BadAddress {
		t.Fatalf("expected BadAddress for an unmapped address; got %v", rerr)
	}
}

func TestDestroyToleratesPartiallyConstructedAddressSpace(t *testing.T) {
	pool := NewPool()
	setupKernelHalf(t, pool)
	_, freeFrame := newTestFrameAllocator()

	as := &AddressSpace{pool: pool}
	// Must not panic on an address space with no allocated nodes at all.
	as.Destroy(freeFrame)
}
