package sched

import (
	"sync/atomic"

	"github.com/bfsched/kernel/pkg/types"
)

// Task pairs a task control block with the runtime handshake that stands in
// for a real context switch. The core spec asks that context_switch be
// modeled as an opaque save/restore pair behind a trait; here that pair is
// realized as two channels rather than an injected interface, since a
// goroutine already is Go's idiomatic "opaque executor" and a pluggable
// trait would have exactly one implementation worth writing (see DESIGN.md).
//
// A Task's body function runs on its own goroutine. It is handed the *Task
// so it can call back into the scheduler at its own suspension points
// (Yield, Sleep, Exit) — there is no forced preemption mid-body; the timer
// source only decrements TicksLeft and Kill only sets Killed, both of which a body
// is expected to observe cooperatively, exactly as a real kernel's user-mode
// return path checks for a pending reschedule.
type Task struct {
	tcb *types.TCB

	// resume/parked are buffered by one so a send never blocks on a
	// receiver that isn't there yet — this lets lifecycle operations like
	// Exit be called directly (tests, a task that never reached the CPU)
	// without requiring a RunOnce on the other end of the handshake.
	resume chan struct{} // scheduler -> task: dispatched, run now
	parked chan struct{} // task -> scheduler: left the CPU

	body func(t *Task)

	killed atomic.Bool
}

// PID returns the task's process id.
func (t *Task) PID() int { return t.tcb.PID }

// Name returns the task's label.
func (t *Task) Name() string { return t.tcb.Name }

// Killed reports whether Kill has been called against this task. Safe to
// call from the task's own goroutine without holding the scheduler lock.
func (t *Task) Killed() bool { return t.killed.Load() }
