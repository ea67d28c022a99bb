// Package sched implements the scheduler core: a fixed-capacity task table
// ranked by earliest virtual deadline through pkg/skiplist, and the
// reconcile-then-dispatch loop that drives it. Everything below the
// syscall-level API in this package is serialized by a single mutex,
// exactly as spec.md §5 requires of table_lock: there is no per-node or
// per-CPU locking anywhere in this package.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bfsched/kernel/internal/rng"
	"github.com/bfsched/kernel/pkg/metrics"
	"github.com/bfsched/kernel/pkg/skiplist"
	"github.com/bfsched/kernel/pkg/types"
)

// Scheduler is one boot's worth of scheduling state: the task table, the
// skiplist ranking its runnable subset, the deterministic level generator,
// and the schedlog sink. A Scheduler has no notion of "the" CPU — RunOnce
// and RunCPU may be called concurrently from as many goroutines as the
// caller wants to model CPUs, all of them serialized on mu and sharing one
// skiplist, per spec.md's explicit non-goal of per-CPU run queues.
type Scheduler struct {
	mu sync.Mutex

	tunables types.Tunables
	sl       *skiplist.Skiplist
	rand     *rng.Source

	tasks   []*Task
	byPID   map[int]*Task
	nextPID int

	ticks         int64
	dispatchCount int64

	logTicksLeft int
	logSink      func(line string)
	reapSink     func(tcb types.TCB)

	mem   MemoryManager
	files FileCloser

	log *slog.Logger
}

// New builds a Scheduler from validated tunables. log may be nil, in which
// case slog.Default() is used, matching the rest of this module's ambient
// logging convention.
func New(tunables types.Tunables, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	r := rng.New(tunables.Seed)
	return &Scheduler{
		tunables: tunables,
		sl:       skiplist.New(tunables.NProc, tunables.MaxLevel, tunables.Chance, r),
		rand:     r,
		tasks:    make([]*Task, tunables.NProc),
		byPID:    make(map[int]*Task, tunables.NProc),
		nextPID:  initPID,
		log:      log,
	}
}

// SetMemoryManager installs the address-space collaborator used by Exit.
// Passing nil restores the no-op default.
func (s *Scheduler) SetMemoryManager(m MemoryManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem = m
}

// SetFileCloser installs the open-file-table collaborator consulted on Exit.
func (s *Scheduler) SetFileCloser(f FileCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = f
}

// SetSchedlogSink installs the function schedlog lines are delivered to
// while logging is active. sink is called with mu held, so it must not call
// back into the Scheduler.
func (s *Scheduler) SetSchedlogSink(sink func(line string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSink = sink
}

// SetReapSink installs the function called with a copy of a zombie's TCB
// the instant Wait reaps it and its slot is freed — the last moment that
// information exists anywhere but a durable log (see pkg/audit). sink is
// called with mu held, so it must not call back into the Scheduler; the
// intended consumer hands the copy to a buffered channel or goroutine of
// its own rather than doing I/O inline.
func (s *Scheduler) SetReapSink(sink func(tcb types.TCB)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapSink = sink
}

// reconcile brings the skiplist into agreement with the task table: every
// RUNNABLE task not yet present is inserted; every task in any other state
// that is still present is removed. Must be called with mu held. This is
// step 2 of spec.md §4.4's dispatch sequence.
func (s *Scheduler) reconcile() {
	for _, t := range s.tasks {
		if t == nil {
			continue
		}
		_, present := s.sl.Search(t.tcb.VirtualDeadline, t.tcb.PID)
		if t.tcb.State == types.StateRunnable {
			if !present {
				if t.tcb.TicksLeft <= 0 {
					// Quantum exhausted since this task last held a virtual
					// deadline: renew both together before the ordering
					// decision (spec.md §4.5, proc.c:415), not after — a
					// stale deadline here would let an exhausted task keep
					// winning Front() against runnable tasks it should now
					// lose to.
					t.tcb.VirtualDeadline = s.ticks + s.tunables.PrioRatio(t.tcb.Niceness)*int64(s.tunables.DefaultQuantum)
					t.tcb.TicksLeft = s.tunables.DefaultQuantum
				}
				if err := s.sl.Insert(t.tcb.VirtualDeadline, t.tcb.PID); err == nil {
					t.tcb.MaxLevel = s.sl.MaxLevelOf(t.tcb.VirtualDeadline, t.tcb.PID)
				}
				// ErrFull or ErrDuplicatePID here means a prior invariant
				// was violated elsewhere; reconcile just retries next pass
				// rather than treating it as fatal (spec.md §7).
			}
			continue
		}
		if present {
			_ = s.sl.Delete(t.tcb.VirtualDeadline, t.tcb.PID)
			t.tcb.MaxLevel = types.NoLevel
		}
	}
}

// RunOnce performs one reconcile-then-dispatch cycle and, if a task was
// runnable, hands it the CPU and blocks until it yields, sleeps, or exits.
// It returns ok=false when the run queue is empty — callers typically loop
// this inside RunCPU, backing off on an empty return.
func (s *Scheduler) RunOnce() (pid int, ok bool) {
	s.mu.Lock()
	s.reconcile()
	headPID, _, found := s.sl.Front()
	if !found {
		s.mu.Unlock()
		return 0, false
	}
	t := s.taskByPID(headPID)
	_ = s.sl.Delete(t.tcb.VirtualDeadline, t.tcb.PID)
	// t.tcb.MaxLevel is deliberately left as whatever Insert last recorded:
	// schedlog still reports the level this task held while it occupies
	// the CPU, rather than -1, matching the original dispatch's habit of
	// capturing the removed node's level for the log line it is about to
	// emit (spec.md §4.4 step 5).
	t.tcb.State = types.StateRunning
	s.dispatchCount++
	s.emitSchedlogLocked()
	s.mu.Unlock()

	t.resume <- struct{}{}
	<-t.parked
	return t.tcb.PID, true
}

// RunCPU loops RunOnce until ctx is canceled, calling idle whenever the run
// queue was found empty. idle may be nil, in which case an empty dispatch
// simply loops again immediately (busy-wait) — callers modeling a real idle
// loop should pass a function that parks the goroutine for a short interval
// or until Tick/Wakeup activity.
func (s *Scheduler) RunCPU(ctx context.Context, idle func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, ok := s.RunOnce(); !ok && idle != nil {
			idle()
		}
	}
}

// Tick simulates one timer interrupt: it advances the global tick counter
// and decrements TicksLeft for every currently RUNNING task. It does not
// itself force a task off the CPU — per spec.md §9, preemption is
// cooperative, observed the next time the running task calls Yield.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.ticks++
	for _, t := range s.tasks {
		if t != nil && t.tcb.State == types.StateRunning {
			t.tcb.TicksLeft--
		}
	}
	if s.logTicksLeft > 0 {
		s.logTicksLeft--
	}
	s.mu.Unlock()
}

// NProc returns the task table's capacity, as configured at New.
func (s *Scheduler) NProc() int {
	return s.tunables.NProc
}

// Uptime returns the number of ticks since boot.
func (s *Scheduler) Uptime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Schedlog enables schedlog line emission for the next n ticks (spec.md
// §6: "Enable schedlog for the next n ticks"). n <= 0 disables it
// immediately.
func (s *Scheduler) Schedlog(n int) {
	s.mu.Lock()
	if n < 0 {
		n = 0
	}
	s.logTicksLeft = n
	s.mu.Unlock()
}

// SchedlogActive reports whether schedlog emission is currently enabled.
func (s *Scheduler) SchedlogActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logTicksLeft > 0
}

func (s *Scheduler) emitSchedlogLocked() {
	if s.logTicksLeft <= 0 || s.logSink == nil {
		return
	}
	s.logSink(s.formatLineLocked())
}

// formatLineLocked renders the current tick's schedlog line per spec.md §6:
// "<tick>|<entry>[,<entry>]*", one entry per table-index in ascending order
// up to the highest non-UNUSED slot — trailing UNUSED slots are omitted.
func (s *Scheduler) formatLineLocked() string {
	highest := -1
	for i, t := range s.tasks {
		if t != nil {
			highest = i
		}
	}
	entries := make([]string, highest+1)
	for i := 0; i <= highest; i++ {
		entries[i] = formatEntry(s.tasks[i])
	}
	return fmt.Sprintf("%d|%s", s.ticks, strings.Join(entries, ","))
}

// CollectStats implements metrics.Collector: a point-in-time count of task
// states and dispatch activity, suitable for polling on a timer by
// something that isn't on the scheduler's own hot path.
func (s *Scheduler) CollectStats() metrics.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := metrics.Stats{
		Uptime:        s.ticks,
		DispatchCount: s.dispatchCount,
	}
	for _, t := range s.tasks {
		if t == nil {
			continue
		}
		stats.TaskCount++
		switch t.tcb.State {
		case types.StateRunnable:
			stats.RunnableCount++
		case types.StateRunning:
			stats.RunningCount++
		case types.StateSleeping:
			stats.SleepingCount++
		case types.StateZombie:
			stats.ZombieCount++
		}
	}
	return stats
}

func formatEntry(t *Task) string {
	if t == nil {
		return "[-]---:0:-(-)(-)(-)"
	}
	tcb := t.tcb
	return fmt.Sprintf("[%d]%s:%d:%d(%d)(%d)(%d)",
		tcb.PID, tcb.Name, int(tcb.State), tcb.Niceness, tcb.MaxLevel, tcb.VirtualDeadline, tcb.TicksLeft)
}
