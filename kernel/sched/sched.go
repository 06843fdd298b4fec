// Package sched implements the round-robin preemptive scheduler: the body
// invoked from the timer ISR every 5th tick that reaps terminated tasks,
// picks the next Ready candidate and switches to it.
package sched

import "corekernel/kernel/task"

// tickInterval is how often, in timer ticks, the scheduler actually runs.
// On every other tick OnTick is a no-op.
const tickInterval = 5

// switchToFn indirects over task.SwitchTo, which never returns and executes
// a real IRET, so tests can observe that a switch was requested without the
// call actually leaving the test process.
var switchToFn = task.SwitchTo

// Scheduler drives one Table's round-robin rotation. It holds no state of
// its own beyond a reference to the table: tick counting lives in the timer
// driver, task state lives in the table.
type Scheduler struct {
	table *task.Table
}

// New returns a Scheduler over table.
func New(table *task.Table) *Scheduler {
	return &Scheduler{table: table}
}

// OnTick is the callback registered with the timer driver. It runs the
// scheduling algorithm every 5th tick and is a no-op otherwise.
func (s *Scheduler) OnTick(tick uint64) {
	if tick%tickInterval != 0 {
		return
	}
	s.run()
}

// run executes one pass of the algorithm: return without doing anything if
// there is no current task, otherwise reap terminated ones, then find and
// switch to the next Ready candidate if one exists.
func (s *Scheduler) run() {
	current := s.table.Current()
	if current == nil {
		return
	}

	s.reap()

	candidate := s.findNext(current.TID)
	if candidate == nil {
		return
	}

	current.Status = task.Ready
	candidate.Status = task.Running
	s.table.SetCurrentTID(candidate.TID)

	switchToFn(candidate.Context)
}

// reap removes every Terminated task from the table and releases its
// Context. Safe unconditionally: the currently running task is never
// Terminated, by invariant.
func (s *Scheduler) reap() {
	for _, t := range s.table.Iter() {
		if t.Status != task.Terminated {
			continue
		}
		if removed, err := s.table.Remove(t.TID); err == nil {
			removed.Context.Destroy()
		}
	}
}

// findNext implements the two-phase round-robin scan: tids strictly greater
// than currentTID first, then tids strictly less, each in ascending order,
// first Ready match wins. Initializing and Running tasks are never
// candidates.
func (s *Scheduler) findNext(currentTID uint32) *task.Task {
	tasks := s.table.Iter()

	for _, t := range tasks {
		if t.TID > currentTID && t.Status == task.Ready {
			return t
		}
	}
	for _, t := range tasks {
		if t.TID < currentTID && t.Status == task.Ready {
			return t
		}
	}
	return nil
}
