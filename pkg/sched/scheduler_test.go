package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfsched/kernel/pkg/types"
)

func testTunables() types.Tunables {
	return types.Tunables{
		DefaultQuantum: 5,
		NiceFirst:      -20,
		NiceLast:       19,
		MaxLevel:       4,
		NProc:          8,
		Chance:         0.25,
		Seed:           62301983,
	}
}

// TestDispatchOrderByDeadline exercises property 7 (earliest virtual
// deadline dispatched first): three tasks forked at the same tick with
// different niceness must come off the CPU in ascending prio_ratio order.
func TestDispatchOrderByDeadline(t *testing.T) {
	s := New(testTunables(), nil)

	_, err := s.NiceFork(nil, "low", -5, nil)
	require.NoError(t, err)
	_, err = s.NiceFork(nil, "mid", 0, nil)
	require.NoError(t, err)
	_, err = s.NiceFork(nil, "high", 5, nil)
	require.NoError(t, err)

	var order []int
	for i := 0; i < 3; i++ {
		pid, ok := s.RunOnce()
		require.True(t, ok)
		order = append(order, pid)
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

// TestQuantumPreservedUnlessExhausted exercises Open Question 1: a task
// that yields with ticks remaining keeps both its quantum and its virtual
// deadline; only once ticks_left reaches zero does dispatch renew either.
func TestQuantumPreservedUnlessExhausted(t *testing.T) {
	s := New(testTunables(), nil)

	// Tick only charges a RUNNING task, so the body takes its ticks itself
	// while it holds the CPU: none, then 2, then none, then 3, yielding after
	// each run.
	ticksPerRun := []int{0, 2, 0, 3}
	_, err := s.NiceFork(nil, "looper", 0, func(task *Task) {
		for _, n := range ticksPerRun {
			for i := 0; i < n; i++ {
				s.Tick()
			}
			s.Yield(task)
		}
	})
	require.NoError(t, err)

	pid, ok := s.RunOnce()
	require.True(t, ok)
	require.Equal(t, 1, pid)

	tk := s.taskByPID(pid)
	firstDeadline := tk.tcb.VirtualDeadline
	require.Equal(t, 5, tk.tcb.TicksLeft)

	_, ok = s.RunOnce()
	require.True(t, ok)
	assert.Equal(t, 3, tk.tcb.TicksLeft)

	_, ok = s.RunOnce()
	require.True(t, ok)
	assert.Equal(t, 3, tk.tcb.TicksLeft, "preserved: not reset to DefaultQuantum")
	assert.Equal(t, firstDeadline, tk.tcb.VirtualDeadline, "preserved: deadline unchanged")

	_, ok = s.RunOnce()
	require.True(t, ok)
	require.Equal(t, 0, tk.tcb.TicksLeft)

	_, ok = s.RunOnce()
	require.True(t, ok)
	assert.Equal(t, 5, tk.tcb.TicksLeft, "renewed: exhausted quantum reset to DefaultQuantum")
	assert.Greater(t, tk.tcb.VirtualDeadline, firstDeadline, "renewed: new deadline computed")
}

// TestSleepWakeup exercises the SLEEPING/RUNNABLE transition: a sleeping
// task is invisible to dispatch until a matching Wakeup call.
func TestSleepWakeup(t *testing.T) {
	s := New(testTunables(), nil)
	woke := false

	_, err := s.NiceFork(nil, "sleeper", 0, func(task *Task) {
		s.Sleep(task, 42)
		woke = true
	})
	require.NoError(t, err)

	pid, ok := s.RunOnce()
	require.True(t, ok)
	require.Equal(t, 1, pid)

	tk := s.taskByPID(pid)
	assert.Equal(t, types.StateSleeping, tk.tcb.State)

	_, ok = s.RunOnce()
	assert.False(t, ok, "sleeping task must not be dispatched")

	s.Wakeup(42)
	assert.Equal(t, types.StateRunnable, tk.tcb.State)

	_, ok = s.RunOnce()
	require.True(t, ok)
	assert.True(t, woke)
	assert.Equal(t, types.StateZombie, tk.tcb.State)
}

// TestKillIsCooperative exercises Open Question 3: Kill wakes a sleeping
// task immediately, and the task itself observes the kill once it is
// redispatched.
func TestKillIsCooperative(t *testing.T) {
	s := New(testTunables(), nil)
	observedKilled := false

	_, err := s.NiceFork(nil, "victim", 0, func(task *Task) {
		s.Sleep(task, 99)
		observedKilled = task.Killed()
	})
	require.NoError(t, err)

	pid, ok := s.RunOnce()
	require.True(t, ok)
	tk := s.taskByPID(pid)
	require.Equal(t, types.StateSleeping, tk.tcb.State)

	require.NoError(t, s.Kill(pid))
	assert.Equal(t, types.StateRunnable, tk.tcb.State, "kill wakes a sleeper immediately")

	_, ok = s.RunOnce()
	require.True(t, ok)
	assert.True(t, observedKilled)
	assert.Equal(t, types.StateZombie, tk.tcb.State)
}

func TestKillUnknownPID(t *testing.T) {
	s := New(testTunables(), nil)
	err := s.Kill(999)
	assert.ErrorIs(t, err, ErrUnknownPID)
}

// TestExitReparentsChildrenToInit exercises the exit/reparent rule: a
// task's children move to init's custody when it exits, regardless of
// whether it was itself waited on.
func TestExitReparentsChildrenToInit(t *testing.T) {
	s := New(testTunables(), nil)

	initTask, err := s.Boot("init", 0, nil)
	require.NoError(t, err)
	require.Equal(t, initPID, initTask.PID())

	parentPID, err := s.NiceFork(initTask, "parent", 0, nil)
	require.NoError(t, err)
	parentTask := s.taskByPID(parentPID)

	childPID, err := s.NiceFork(parentTask, "child", 0, nil)
	require.NoError(t, err)

	s.Exit(parentTask, 0)

	child := s.taskByPID(childPID)
	require.NotNil(t, child)
	assert.Equal(t, initPID, child.tcb.ParentPID)
	assert.Equal(t, types.StateZombie, parentTask.tcb.State)
}

// TestWaitReapsZombie exercises Wait: it returns the first zombie child's
// pid and frees its table slot entirely.
func TestWaitReapsZombie(t *testing.T) {
	s := New(testTunables(), nil)

	initTask, err := s.Boot("init", 0, nil)
	require.NoError(t, err)

	childPID, err := s.NiceFork(initTask, "child", 0, nil)
	require.NoError(t, err)

	_, ok := s.RunOnce() // nil body: dispatched once, then implicitly exits
	require.True(t, ok)
	require.Equal(t, types.StateZombie, s.taskByPID(childPID).tcb.State)

	reaped, err := s.Wait(initTask)
	require.NoError(t, err)
	assert.Equal(t, childPID, reaped)
	assert.Nil(t, s.taskByPID(childPID))
}

// TestReapSinkReceivesZombieTCB exercises SetReapSink: Wait reaping a
// zombie hands the sink a copy of the TCB at the instant the slot is freed,
// which pkg/audit relies on to persist scheduling history that would
// otherwise vanish with the freed slot.
func TestReapSinkReceivesZombieTCB(t *testing.T) {
	s := New(testTunables(), nil)

	var reaped types.TCB
	var sinkCalls int
	s.SetReapSink(func(tcb types.TCB) {
		sinkCalls++
		reaped = tcb
	})

	initTask, err := s.Boot("init", 0, nil)
	require.NoError(t, err)

	childPID, err := s.NiceFork(initTask, "child", 3, nil)
	require.NoError(t, err)

	_, ok := s.RunOnce()
	require.True(t, ok)

	_, err = s.Wait(initTask)
	require.NoError(t, err)

	assert.Equal(t, 1, sinkCalls)
	assert.Equal(t, childPID, reaped.PID)
	assert.Equal(t, "child", reaped.Name)
	assert.Equal(t, 3, reaped.Niceness)
}

func TestWaitNoChildren(t *testing.T) {
	s := New(testTunables(), nil)
	initTask, err := s.Boot("init", 0, nil)
	require.NoError(t, err)

	_, err = s.Wait(initTask)
	assert.ErrorIs(t, err, ErrNoChildren)
}

func TestNiceForkRejectsOutOfRangeNiceness(t *testing.T) {
	s := New(testTunables(), nil)
	_, err := s.NiceFork(nil, "bad", 100, nil)
	assert.ErrorIs(t, err, ErrBadNiceness)
}

func TestTableFullRejectsFork(t *testing.T) {
	tun := testTunables()
	tun.NProc = 1
	s := New(tun, nil)

	_, err := s.NiceFork(nil, "only", 0, nil)
	require.NoError(t, err)

	_, err = s.NiceFork(nil, "overflow", 0, nil)
	assert.ErrorIs(t, err, ErrTableFull)
}

// TestSchedlogLineFormat exercises the exact wire format from spec.md §6:
// "<tick>|<entry>[,<entry>]*", one entry per table-index up to the highest
// non-UNUSED slot. A trailing UNUSED slot must not appear at all.
func TestSchedlogLineFormat(t *testing.T) {
	tun := testTunables()
	tun.NProc = 2
	s := New(tun, nil)

	_, err := s.Boot("init", 0, nil)
	require.NoError(t, err)

	s.mu.Lock()
	line := s.formatLineLocked()
	s.mu.Unlock()

	assert.Equal(t, "0|[1]init:1:0(-1)(0)(0)", line)
}

// TestSchedlogLineEmbeddedUnusedSlot exercises the other half of the same
// rule: an UNUSED slot *before* the highest live slot still renders as a
// literal-dash entry, only trailing ones are dropped. The table is built
// directly rather than through dispatch so the expected line doesn't
// depend on the skiplist's randomized level assignment.
func TestSchedlogLineEmbeddedUnusedSlot(t *testing.T) {
	tun := testTunables()
	tun.NProc = 3
	s := New(tun, nil)

	s.tasks[0] = &Task{tcb: &types.TCB{
		PID: 1, Name: "init", State: types.StateEmbryo, MaxLevel: types.NoLevel,
	}}
	s.tasks[2] = &Task{tcb: &types.TCB{
		PID: 3, Name: "c", State: types.StateRunnable, MaxLevel: types.NoLevel,
		VirtualDeadline: 105, TicksLeft: 5,
	}}

	s.mu.Lock()
	line := s.formatLineLocked()
	s.mu.Unlock()

	assert.Equal(t, "0|[1]init:1:0(-1)(0)(0),[-]---:0:-(-)(-)(-),[3]c:3:0(-1)(105)(5)", line)
}

func TestUptimeAdvancesWithTick(t *testing.T) {
	s := New(testTunables(), nil)
	require.EqualValues(t, 0, s.Uptime())
	s.Tick()
	s.Tick()
	assert.EqualValues(t, 2, s.Uptime())
}
