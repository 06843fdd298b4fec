package sched

import (
	"testing"

	"corekernel/kernel"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/task"
)

func newTestScheduler(t *testing.T) (*Scheduler, *task.Table, *vmm.Pool, *pmm.Allocator) {
	t.Helper()
	pool := vmm.NewPool()
	vmm.ResetKernelHalfForTest()
	t.Cleanup(vmm.ResetKernelHalfForTest)
	if err := vmm.InstallKernelHalf(pool); err != nil {
		t.Fatalf("unexpected error installing kernel half: %v", err)
	}
	alloc := pmm.NewAllocator()
	tbl := task.NewTable(pool, alloc)
	return New(tbl), tbl, pool, alloc
}

// installFakeSwitch replaces switchToFn with a recorder so tests can observe
// a requested switch without running the real, non-returning assembly.
func installFakeSwitch(t *testing.T) *[]uint32 {
	t.Helper()
	var switchedTo []uint32
	orig := switchToFn
	t.Cleanup(func() { switchToFn = orig })
	switchToFn = func(c *task.Context) {
		for tid, ctx := range contextOwners {
			if ctx == c {
				switchedTo = append(switchedTo, tid)
			}
		}
	}
	return &switchedTo
}

// contextOwners is rebuilt by each test that needs installFakeSwitch to
// resolve a *task.Context back to the tid that owns it.
var contextOwners map[uint32]*task.Context

func TestOnTickIsNoopBetweenIntervals(t *testing.T) {
	s, tbl, _, _ := newTestScheduler(t)
	contextOwners = map[uint32]*task.Context{}
	switched := installFakeSwitch(t)

	t1, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t1.Status = task.Running
	tbl.SetCurrentTID(t1.TID)
	contextOwners[t1.TID] = t1.Context

	for tick := uint64(1); tick < tickInterval; tick++ {
		s.OnTick(tick)
	}
	if len(*switched) != 0 {
		t.Fatalf("expected no switch before the scheduling interval; got %v", *switched)
	}
}

// TestSingleTaskContinuesRunning covers the case of one Running task and no
// other candidate: the scheduler returns without switching and the task
// continues.
func TestSingleTaskContinuesRunning(t *testing.T) {
	s, tbl, _, _ := newTestScheduler(t)
	contextOwners = map[uint32]*task.Context{}
	switched := installFakeSwitch(t)

	t1, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t1.Status = task.Running
	tbl.SetCurrentTID(t1.TID)
	contextOwners[t1.TID] = t1.Context

	s.OnTick(tickInterval)

	if len(*switched) != 0 {
		t.Fatalf("expected no switch with a single Running task; got %v", *switched)
	}
	if t1.Status != task.Running {
		t.Fatalf("expected the sole task to remain Running; got %v", t1.Status)
	}
}

// TestTwoTasksAlternate checks that two Ready/Running tasks swap on every
// scheduling tick, round-robin.
func TestTwoTasksAlternate(t *testing.T) {
	s, tbl, _, _ := newTestScheduler(t)
	contextOwners = map[uint32]*task.Context{}
	switched := installFakeSwitch(t)

	t1, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	contextOwners[t1.TID] = t1.Context
	contextOwners[t2.TID] = t2.Context

	t1.Status = task.Running
	t2.Status = task.Ready
	tbl.SetCurrentTID(t1.TID)

	s.OnTick(tickInterval)

	if t1.Status != task.Ready || t2.Status != task.Running {
		t.Fatalf("expected t1 Ready and t2 Running after tick 5; got t1=%v t2=%v", t1.Status, t2.Status)
	}
	if tbl.CurrentTID() != t2.TID {
		t.Fatalf("expected current tid to become t2's tid")
	}
	if len(*switched) != 1 || (*switched)[0] != t2.TID {
		t.Fatalf("expected exactly one switch, to t2; got %v", *switched)
	}

	s.OnTick(2 * tickInterval)

	if t1.Status != task.Running || t2.Status != task.Ready {
		t.Fatalf("expected t1 Running and t2 Ready after tick 10; got t1=%v t2=%v", t1.Status, t2.Status)
	}
	if tbl.CurrentTID() != t1.TID {
		t.Fatalf("expected current tid to swap back to t1's tid")
	}
	if len(*switched) != 2 || (*switched)[1] != t1.TID {
		t.Fatalf("expected a second switch, back to t1; got %v", *switched)
	}
}

// TestReapOnExit checks that a Terminated task is removed and its
// resources released on the next scheduler tick, while the Running task
// continues uninterrupted.
func TestReapOnExit(t *testing.T) {
	s, tbl, pool, alloc := newTestScheduler(t)
	contextOwners = map[uint32]*task.Context{}
	switched := installFakeSwitch(t)

	t1, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := tbl.NewTask()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	contextOwners[t1.TID] = t1.Context
	contextOwners[t2.TID] = t2.Context

	t2.Status = task.Running
	t1.Exit(0)
	tbl.SetCurrentTID(t2.TID)

	freePoolBefore := pool.FreePages()
	freeFramesBefore := alloc.FreeCount()

	s.OnTick(tickInterval)

	if _, err := tbl.Get(t1.TID); err == nil || err.Kind != kernel.NotFound {
		t.Fatalf("expected t1 to be removed from the table; got %v", err)
	}
	if got := pool.FreePages() - freePoolBefore; got != 8 {
		t.Fatalf("expected 8 pool pages reclaimed (4 page-table nodes + 4 kernel-stack pages); got %d", got)
	}
	if got := alloc.FreeCount() - freeFramesBefore; got != 4 {
		t.Fatalf("expected 4 user-stack frames reclaimed; got %d", got)
	}
	if t2.Status != task.Running {
		t.Fatalf("expected t2 to remain Running; got %v", t2.Status)
	}
	if len(*switched) != 0 {
		t.Fatalf("expected no switch when no other Ready task exists; got %v", *switched)
	}
}

// TestRoundRobinFairness asserts round-robin fairness: with K Ready tasks,
// over any window of K scheduler invocations each is selected exactly once.
func TestRoundRobinFairness(t *testing.T) {
	s, tbl, _, _ := newTestScheduler(t)
	contextOwners = map[uint32]*task.Context{}
	installFakeSwitch(t)

	const k = 5
	tids := make([]uint32, 0, k)
	for i := 0; i < k; i++ {
		tk, err := tbl.NewTask()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		contextOwners[tk.TID] = tk.Context
		tids = append(tids, tk.TID)
	}
	for _, tid := range tids {
		tsk, _ := tbl.Get(tid)
		tsk.Status = task.Ready
	}
	first, _ := tbl.Get(tids[0])
	first.Status = task.Running
	tbl.SetCurrentTID(first.TID)

	selected := map[uint32]int{}
	tick := uint64(0)
	for i := 0; i < k; i++ {
		tick += tickInterval
		s.OnTick(tick)
		selected[tbl.CurrentTID()]++
	}

	if len(selected) != k {
		t.Fatalf("expected all %d tasks selected exactly once over a window of %d ticks; got %v", k, k, selected)
	}
	for tid, count := range selected {
		if count != 1 {
			t.Fatalf("expected tid %d to be selected exactly once; got %d", tid, count)
		}
	}
}
