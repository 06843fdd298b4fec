package timer

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
)

// PIT I/O ports and control-word bits for channel 0, mode 3 (square wave
// generator), binary (not BCD) counting, lobyte/hibyte access.
const (
	channel0Port = 0x40
	controlPort  = 0x43

	channel0Select  = 0x00
	accessLoHi      = 0x30
	mode3SquareWave = 0x06
)

// MaxCallbacks bounds the fixed-size table of periodic callbacks the timer
// invokes on every tick, alongside the single scheduler callback.
const MaxCallbacks = 16

var errCallbackTableFull = &kernel.Error{Module: "timer", Message: "no free periodic callback slot", Kind: kernel.Full}

// Callback is invoked with the current tick count every time the timer
// fires, after the PIC has been acknowledged.
type Callback func(tick uint64)

// tickWrap is the modulus the tick counter wraps at. The counter is kept in
// a 64-bit word for convenient arithmetic but its value cycles through the
// same 32-bit range real hardware tick counters use.
const tickWrap = uint64(1) << 32

// Driver owns the 64-bit wrapping tick counter, the set of registered
// periodic callbacks and the scheduler hook the timer ISR invokes last. All
// of its state is guarded by a single try-acquire lock: the ISR never
// blocks, so on contention it silently skips this tick's callbacks, per the
// timer's non-blocking invariant.
type Driver struct {
	lock sync.Spinlock

	tick uint64

	callbacks     [MaxCallbacks]Callback
	callbackCount int

	schedulerFn Callback
}

// New configures channel 0 for mode 3 with divisor 0 (the PIT's way of
// saying "the full 16-bit range", giving ≈18.2 Hz) and remaps the PIC to
// [masterBase, masterBase+8)/[slaveBase, slaveBase+8).
func New(masterBase, slaveBase uint8) *Driver {
	RemapPIC(masterBase, slaveBase)

	outbFn(controlPort, channel0Select|accessLoHi|mode3SquareWave)
	outbFn(channel0Port, 0) // divisor low byte
	outbFn(channel0Port, 0) // divisor high byte

	return &Driver{}
}

// RegisterCallback adds fn to the set of periodic callbacks invoked on
// every tick. It fails with Full once MaxCallbacks are registered.
func (d *Driver) RegisterCallback(fn Callback) *kernel.Error {
	d.lock.Acquire()
	defer d.lock.Release()

	if d.callbackCount >= MaxCallbacks {
		return errCallbackTableFull
	}
	d.callbacks[d.callbackCount] = fn
	d.callbackCount++
	return nil
}

// SetSchedulerCallback installs the function invoked last on every tick,
// after every periodic callback has run. The scheduler package wires itself
// in here; a Driver with no scheduler callback simply never preempts.
func (d *Driver) SetSchedulerCallback(fn Callback) {
	d.lock.Acquire()
	d.schedulerFn = fn
	d.lock.Release()
}

// Tick returns the current tick count.
func (d *Driver) Tick() uint64 {
	d.lock.Acquire()
	defer d.lock.Release()
	return d.tick
}

// HandleInterrupt is the ISR body for the timer vector: acknowledge the
// master PIC, advance the tick counter, and — only if the lock can be
// acquired without blocking — run every periodic callback followed by the
// scheduler callback. On contention the tick still advances (the counter
// itself is only ever touched from this one ISR) but callbacks are skipped
// for this tick, since an interrupt must never wait.
func (d *Driver) HandleInterrupt() {
	AckMaster()
	d.tick = (d.tick + 1) % tickWrap

	if !d.lock.TryToAcquire() {
		return
	}
	tick := d.tick
	callbacks := d.callbacks
	count := d.callbackCount
	scheduler := d.schedulerFn
	d.lock.Release()

	for i := 0; i < count; i++ {
		callbacks[i](tick)
	}
	if scheduler != nil {
		scheduler(tick)
	}
}
