package sched

import "errors"

// Sentinel errors returned by the scheduler's syscall-level API. Per
// spec.md §7, capacity/not-found conditions are benign and recoverable.
// Nothing in this package panics: reconcile also treats a skiplist
// ErrDuplicatePID as retryable rather than fatal.
var (
	// ErrBadNiceness is returned by NiceFork when nice falls outside
	// [NiceFirst, NiceLast]. No task is created.
	ErrBadNiceness = errors.New("sched: niceness out of range")
	// ErrNoChildren is returned by Wait when the caller has no children.
	ErrNoChildren = errors.New("sched: no children")
	// ErrUnknownPID is returned by Kill when no task has the given pid.
	ErrUnknownPID = errors.New("sched: unknown pid")
	// ErrTableFull is returned by NiceFork when no UNUSED task-table slot
	// is available.
	ErrTableFull = errors.New("sched: task table full")
)
