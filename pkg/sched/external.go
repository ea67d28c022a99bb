package sched

// MemoryManager is the address-space collaborator the scheduler core calls
// out to on exit (Release); it never touches page tables itself. A nil
// MemoryManager is treated as a no-op, which is the default: the core's job
// is ranking and dispatch, not paging.
type MemoryManager interface {
	// Grow adjusts pid's break by n bytes (n may be negative), mirroring
	// growproc/sbrk. Nothing in this package calls it.
	Grow(pid int, n int) error
	// Release frees all address-space resources owned by pid. Called once,
	// synchronously, from within Exit's critical section.
	Release(pid int)
}

// FileCloser is the open-file-table collaborator exit() calls out to before
// a task becomes a zombie. A nil FileCloser is a no-op.
type FileCloser interface {
	CloseAll(pid int)
}
