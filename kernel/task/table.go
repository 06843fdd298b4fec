package task

import (
	"sort"

	"corekernel/kernel"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/sync"
)

// MaxTasks bounds the table: tids are drawn from [1, MaxTasks] and a table
// holding MaxTasks entries fails further allocation with Full.
const MaxTasks = 10000

var (
	errTableFull  = &kernel.Error{Module: "task", Message: "task table is full", Kind: kernel.Full}
	errNoSuchTask = &kernel.Error{Module: "task", Message: "no task with that tid", Kind: kernel.NotFound}
)

// Table is the ordered tid-to-Task mapping: it owns the pool and frame
// allocator every Task's Context draws from, the hint driving NewTask's
// forward tid scan, and the current-tid register the scheduler reads and
// updates on every switch.
type Table struct {
	lock sync.Spinlock

	tasks      map[uint32]*Task
	hint       uint32
	currentTID uint32

	pool  *vmm.Pool
	alloc *pmm.Allocator
}

// NewTable returns an empty Table whose tasks draw kernel stacks and page
// tables from pool and physical frames from alloc.
func NewTable(pool *vmm.Pool, alloc *pmm.Allocator) *Table {
	return &Table{
		tasks: make(map[uint32]*Task),
		hint:  1,
		pool:  pool,
		alloc: alloc,
	}
}

// NewTask builds a fresh Context and installs it in the table under a newly
// allocated tid, returning the Task in the Initializing state. Tid
// allocation scans forward from the hint, wrapping at MaxTasks back to 1,
// and never returns 0. Fails with Full once the table holds MaxTasks
// entries.
func (tbl *Table) NewTask() (*Task, *kernel.Error) {
	tbl.lock.Acquire()
	defer tbl.lock.Release()

	if len(tbl.tasks) >= MaxTasks {
		return nil, errTableFull
	}

	tid := tbl.hint
	for {
		if _, used := tbl.tasks[tid]; !used {
			break
		}
		tid++
		if tid > MaxTasks {
			tid = 1
		}
	}

	ctx, err := NewContext(tbl.pool, tbl.alloc)
	if err != nil {
		return nil, err
	}

	t := &Task{TID: tid, Status: Initializing, Context: ctx}
	tbl.tasks[tid] = t

	tbl.hint = tid + 1
	if tbl.hint > MaxTasks {
		tbl.hint = 1
	}

	return t, nil
}

// Current returns the task whose tid equals the table's current-tid
// register, or nil if none has been set yet (no task has run).
func (tbl *Table) Current() *Task {
	tbl.lock.Acquire()
	defer tbl.lock.Release()
	return tbl.tasks[tbl.currentTID]
}

// CurrentTID returns the table's current-tid register.
func (tbl *Table) CurrentTID() uint32 {
	tbl.lock.Acquire()
	defer tbl.lock.Release()
	return tbl.currentTID
}

// SetCurrentTID updates the current-tid register. Called by the scheduler
// immediately before switch_to, never by task-creation code.
func (tbl *Table) SetCurrentTID(tid uint32) {
	tbl.lock.Acquire()
	tbl.currentTID = tid
	tbl.lock.Release()
}

// Get returns the task with the given tid, or NotFound.
func (tbl *Table) Get(tid uint32) (*Task, *kernel.Error) {
	tbl.lock.Acquire()
	defer tbl.lock.Release()
	t, ok := tbl.tasks[tid]
	if !ok {
		return nil, errNoSuchTask
	}
	return t, nil
}

// Iter returns every task currently in the table, ordered by ascending tid.
func (tbl *Table) Iter() []*Task {
	tbl.lock.Acquire()
	defer tbl.lock.Release()

	out := make([]*Task, 0, len(tbl.tasks))
	for _, t := range tbl.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TID < out[j].TID })
	return out
}

// Remove detaches tid from the table and returns the Task that was there.
// It does not touch the Task's Context: destroying a live kernel stack or
// address space is only safe once the caller has established that tid is
// not the one currently executing, which Remove itself cannot know.
func (tbl *Table) Remove(tid uint32) (*Task, *kernel.Error) {
	tbl.lock.Acquire()
	defer tbl.lock.Release()

	t, ok := tbl.tasks[tid]
	if !ok {
		return nil, errNoSuchTask
	}
	delete(tbl.tasks, tid)
	return t, nil
}
