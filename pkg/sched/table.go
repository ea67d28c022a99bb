package sched

import "github.com/bfsched/kernel/pkg/types"

// initPID is the reserved pid of the first task a Scheduler boots. Exited
// tasks are reparented to it, mirroring the original kernel's init process.
const initPID = 1

// freeTableSlot returns the lowest UNUSED table-index, or -1 if every slot
// in [0, NProc) holds a task. Table-index is distinct from pid: it is the
// fixed array position schedlog iterates in ascending order (spec.md §6),
// while pid is the monotonically increasing identity handed to callers.
func (s *Scheduler) freeTableSlot() int {
	for i, t := range s.tasks {
		if t == nil {
			return i
		}
	}
	return -1
}

// taskByPID returns the task with the given pid, or nil.
func (s *Scheduler) taskByPID(pid int) *Task {
	return s.byPID[pid]
}

// freeTCBLocked removes a reaped zombie from the table entirely, returning
// its slot to UNUSED. Must be called with mu held.
func (s *Scheduler) freeTCBLocked(t *Task) {
	if s.reapSink != nil {
		s.reapSink(*t.tcb)
	}
	for i, cand := range s.tasks {
		if cand == t {
			s.tasks[i] = nil
			break
		}
	}
	delete(s.byPID, t.tcb.PID)
}

// Snapshot returns a copy of every live TCB, in ascending table-index order,
// for diagnostics (ps, the admin API's task list). Unused slots are omitted.
func (s *Scheduler) Snapshot() []types.TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TCB, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t != nil {
			out = append(out, *t.tcb)
		}
	}
	return out
}
