// Package cpu exposes the handful of privileged x86_64 instructions the rest
// of the core needs: interrupt masking, CR2/CR3 access, TLB maintenance and
// CPUID. Each function below is declared without a body; its implementation
// lives in the matching .s file and is written directly against the ABI the
// Go compiler expects for assembly-backed functions.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts sets the interrupt flag (STI), allowing maskable
// interrupts — including the timer tick that drives preemption — to fire.
func EnableInterrupts()

// DisableInterrupts clears the interrupt flag (CLI). Nothing in this tree
// calls it: the code touching the frame bitmap, the pool in-use array, the
// IDT slot table and the task table does not mask interrupts.
func DisableInterrupts()

// Halt executes HLT in a loop. Used by kernel.Panic; the scheduler does not
// halt when no task is ready, it returns and the current task continues.
func Halt()

// FlushTLBEntry invalidates the TLB entry for a single virtual address
// (INVLPG). The page-table code in kernel/mem/vmm does not call it.
func FlushTLBEntry(virtAddr uintptr)

// SwitchCR3 loads the given physical address into CR3, activating the page
// tables it roots, and implicitly flushes the entire TLB (CR3 is non-global
// reload semantics).
func SwitchCR3(physAddr uintptr)

// ReadCR3 returns the physical address currently loaded in CR3.
func ReadCR3() uintptr

// ReadCR2 returns the faulting linear address recorded by the last page
// fault.
func ReadCR2() uint64

// ID executes CPUID with EAX=leaf and returns the EAX/EBX/ECX/EDX results.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Outb writes a single byte to the given I/O port (OUT instruction). Used by
// the PIC/PIT driver to issue initialization command words.
func Outb(port uint16, value uint8)

// Inb reads a single byte from the given I/O port (IN instruction). Used to
// read back the PIC's interrupt mask register before a remap.
func Inb(port uint16) uint8

// IOWait performs a throwaway write to port 0x80, the traditional delay used
// between successive 8259 initialization command words on real hardware.
func IOWait()

// IsIntel reports whether the running CPU identifies itself as a GenuineIntel
// part. Not used by the scheduler itself; kept as a CPUID-backed sanity check
// that boot code can call before trusting vendor-specific MSRs.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
