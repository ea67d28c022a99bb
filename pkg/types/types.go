// Package types defines the shared data model for the scheduler core: the
// task control block, its state machine, and the scheduling tunables that
// parameterize the deadline/quantum arithmetic.
package types

import "fmt"

// State is a task's position in the scheduler's state machine.
type State int

const (
	// StateUnused marks a task-table slot with no live task.
	StateUnused State = iota
	// StateEmbryo marks a task allocated but not yet runnable.
	StateEmbryo
	// StateSleeping marks a task blocked on a wait channel.
	StateSleeping
	// StateRunnable marks a task eligible for dispatch.
	StateRunnable
	// StateRunning marks the task currently holding the CPU.
	StateRunning
	// StateZombie marks an exited task awaiting reap by its parent.
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateEmbryo:
		return "EMBRYO"
	case StateSleeping:
		return "SLEEPING"
	case StateRunnable:
		return "RUNNABLE"
	case StateRunning:
		return "RUNNING"
	case StateZombie:
		return "ZOMBIE"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// NoLevel marks a task control block not currently present in the skiplist.
const NoLevel = -1

// TCB is a task control block. Exactly the TCBs with State == StateRunnable
// belong in the scheduler's skiplist, except transiently inside the
// scheduler's own dispatch critical section.
type TCB struct {
	// PID uniquely identifies a live task. 0 is never assigned; it marks an
	// empty slot together with State == StateUnused.
	PID int
	// Name is a short human-readable label, used only for schedlog/ps output.
	Name string
	// State is this task's current position in the lifecycle state machine.
	State State
	// Niceness lies in [NiceFirst, NiceLast] for tasks created by NiceFork,
	// which rejects out-of-range values rather than clamping; Boot does not
	// check it.
	Niceness int
	// VirtualDeadline is the absolute tick at which this task's current
	// scheduling slice should end. Smaller is more urgent.
	VirtualDeadline int64
	// TicksLeft is the remaining quantum; sliced down by the timer source.
	TicksLeft int
	// MaxLevel is the skiplist level this task's node participates at, or
	// NoLevel when the task is not currently in the skiplist.
	MaxLevel int
	// Killed is set by Kill; observed cooperatively at user-mode return.
	Killed bool
	// ParentPID is 0 for the init task, otherwise the forking parent's PID.
	ParentPID int
	// Chan is the wait channel a SLEEPING task is blocked on.
	Chan uint64
	// ExitTick records the tick at which this task entered StateZombie.
	ExitTick int64
}

// Tunables holds the scheduler's deadline/quantum/skiplist parameters.
// Values are validated by internal/config before being handed to the core.
type Tunables struct {
	// DefaultQuantum is the number of ticks a dispatched task runs before
	// its virtual deadline is considered due for renewal.
	DefaultQuantum int
	// NiceFirst is the most negative legal niceness (must be <= 0).
	NiceFirst int
	// NiceLast is the most positive legal niceness.
	NiceLast int
	// MaxLevel bounds the skiplist's level range to [0, MaxLevel-1].
	MaxLevel int
	// NProc bounds the number of task-table slots / skiplist node slots.
	NProc int
	// Chance is the geometric-distribution parameter for random levels, in
	// (0,1). Larger means taller skiplists on average.
	Chance float64
	// Seed initializes the deterministic xorshift PRNG used for levels.
	Seed uint32
}

// PrioRatio converts a legal niceness into the positive multiplier used to
// compute virtual deadlines: prio_ratio(n) = n - NiceFirst + 1.
func (t Tunables) PrioRatio(niceness int) int64 {
	return int64(niceness-t.NiceFirst) + 1
}

// ValidNiceness reports whether niceness falls within [NiceFirst, NiceLast].
func (t Tunables) ValidNiceness(niceness int) bool {
	return niceness >= t.NiceFirst && niceness <= t.NiceLast
}
