// Package timer implements the 8259 PIC remap and the PIT-driven periodic
// tick that invokes the scheduler, per the timer-and-PIC driver design.
package timer

import "corekernel/kernel/cpu"

// 8259 I/O ports and initialization command words, named the way the
// classic PC/AT reference does.
const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xA0
	slaveDataPort     = 0xA1

	icw1Init     = 0x11 // edge-triggered, cascade mode, ICW4 present
	icw4Mode8086 = 0x01

	masterSlaveLine = 0x04 // tells the master a slave sits on IRQ2
	slaveCascadeID  = 0x02 // tells the slave its cascade identity
)

// outbFn/inbFn/ioWaitFn are indirections over the privileged port
// instructions in kernel/cpu, overridden in tests with an in-memory stand-in
// so the remap sequence and mask bookkeeping run under `go test`.
var (
	outbFn   = cpu.Outb
	inbFn    = cpu.Inb
	ioWaitFn = cpu.IOWait
)

// RemapPIC moves the master PIC's interrupt vectors to [masterBase,
// masterBase+8) and the slave's to [slaveBase, slaveBase+8), preserving
// whatever mask the BIOS left in place. The standard PC BIOS maps the
// master to vectors 8-15, colliding with CPU exceptions; every kernel must
// remap before enabling interrupts.
func RemapPIC(masterBase, slaveBase uint8) {
	masterMask := inbFn(masterDataPort)
	slaveMask := inbFn(slaveDataPort)

	outbFn(masterCommandPort, icw1Init)
	ioWaitFn()
	outbFn(slaveCommandPort, icw1Init)
	ioWaitFn()

	outbFn(masterDataPort, masterBase)
	ioWaitFn()
	outbFn(slaveDataPort, slaveBase)
	ioWaitFn()

	outbFn(masterDataPort, masterSlaveLine)
	ioWaitFn()
	outbFn(slaveDataPort, slaveCascadeID)
	ioWaitFn()

	outbFn(masterDataPort, icw4Mode8086)
	ioWaitFn()
	outbFn(slaveDataPort, icw4Mode8086)
	ioWaitFn()

	outbFn(masterDataPort, masterMask)
	outbFn(slaveDataPort, slaveMask)
}

// AckMaster sends the end-of-interrupt command to the master PIC. Every
// master-line handler (including the timer) must call this before
// returning, or no further master-line interrupt will be delivered.
func AckMaster() {
	const eoi = 0x20
	outbFn(masterCommandPort, eoi)
}

// AckSlave sends end-of-interrupt to both controllers, required for
// interrupts that arrived on a slave line (vectors 40-47).
func AckSlave() {
	const eoi = 0x20
	outbFn(slaveCommandPort, eoi)
	outbFn(masterCommandPort, eoi)
}
