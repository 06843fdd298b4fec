package task

import "corekernel/kernel/gate"

// SyncFromCapturedContext is registered with gate.SetContextSyncFn: it is
// invoked by the interrupt prologue, before the vector's registered
// handler runs, and copies every field of cc into the table's current
// task's Context, per the interrupt dispatch contract. A
// table with no current task (nothing has run yet) ignores the call.
func (tbl *Table) SyncFromCapturedContext(cc *gate.CapturedContext) {
	t := tbl.Current()
	if t == nil {
		return
	}

	c := t.Context
	c.RFlags = cc.RFlags
	c.CR3 = uintptr(cc.CR3)
	c.RSP = cc.RSP
	c.RIP = cc.RIP
	c.RBP = cc.RBP

	c.GPR = GPRSet{
		RAX: cc.RAX, RBX: cc.RBX, RCX: cc.RCX, RDX: cc.RDX, RSI: cc.RSI, RDI: cc.RDI,
		R8: cc.R8, R9: cc.R9, R10: cc.R10, R11: cc.R11, R12: cc.R12, R13: cc.R13, R14: cc.R14, R15: cc.R15,
	}
	c.SR = SegRegs{CS: cc.CS, DS: cc.DS, ES: cc.ES, FS: cc.FS, GS: cc.GS, SS: cc.SS}
}
