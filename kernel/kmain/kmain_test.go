package kmain

import (
	"testing"

	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/task"
)

// TestNewWiresEverySubsystem exercises New()'s wiring end to end: a task
// created through the returned Table is reachable, and a scheduler tick with
// a single Running task and no Ready candidate returns without attempting a
// real (non-returning) switch — the only scheduler scenario safe to drive
// from outside the sched package, which keeps switchToFn unexported.
func TestNewWiresEverySubsystem(t *testing.T) {
	vmm.ResetKernelHalfForTest()
	t.Cleanup(vmm.ResetKernelHalfForTest)

	k, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tk, terr := k.Tasks.NewTask()
	if terr != nil {
		t.Fatalf("unexpected error creating a task through the wired table: %v", terr)
	}
	tk.Status = task.Running
	k.Tasks.SetCurrentTID(tk.TID)

	k.Sched.OnTick(5)

	if tk.Status != task.Running {
		t.Fatalf("expected the sole task to remain Running; got %v", tk.Status)
	}
	if k.Timer.Tick() != 0 {
		t.Fatalf("New must not touch the tick counter; only HandleInterrupt advances it")
	}
}
