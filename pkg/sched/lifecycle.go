package sched

import "github.com/bfsched/kernel/pkg/types"

// Boot creates the first task in a fresh Scheduler (conventionally pid 1,
// init's role as the reparent target for orphaned children). The task is
// left in StateEmbryo with no deadline or quantum: it is never inserted into
// the skiplist or dispatched, so body never runs.
func (s *Scheduler) Boot(name string, nice int, body func(t *Task)) (*Task, error) {
	return s.spawn(name, nice, 0, body)
}

// Fork is NiceFork with niceness 0 (spec.md §4.5: "Equivalent
// to nicefork(0)").
func (s *Scheduler) Fork(parent *Task, name string, body func(t *Task)) (int, error) {
	return s.NiceFork(parent, name, 0, body)
}

// NiceFork allocates a new task parented to parent, assigns it nice, and
// makes it RUNNABLE with a freshly computed virtual deadline. body is the
// child's entire execution: Go has no stack to duplicate the way a native
// fork() does, so the child is handed its own function rather than resuming
// the parent's call stack — the idiomatic green-thread-spawn analog (see
// DESIGN.md).
func (s *Scheduler) NiceFork(parent *Task, name string, nice int, body func(t *Task)) (int, error) {
	if !s.tunables.ValidNiceness(nice) {
		return 0, ErrBadNiceness
	}
	parentPID := 0
	if parent != nil {
		parentPID = parent.tcb.PID
	}
	child, err := s.spawn(name, nice, parentPID, body)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	child.tcb.VirtualDeadline = s.ticks + s.tunables.PrioRatio(nice)*int64(s.tunables.DefaultQuantum)
	child.tcb.TicksLeft = s.tunables.DefaultQuantum
	child.tcb.State = types.StateRunnable
	s.mu.Unlock()
	return child.tcb.PID, nil
}

// spawn allocates a table slot and starts the task's goroutine parked on
// its resume channel. The returned task is left in StateEmbryo; callers
// transition it to RUNNABLE once its deadline/quantum are set.
func (s *Scheduler) spawn(name string, nice int, parentPID int, body func(t *Task)) (*Task, error) {
	s.mu.Lock()
	idx := s.freeTableSlot()
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrTableFull
	}
	pid := s.nextPID
	s.nextPID++
	tcb := &types.TCB{
		PID:       pid,
		Name:      name,
		State:     types.StateEmbryo,
		Niceness:  nice,
		MaxLevel:  types.NoLevel,
		ParentPID: parentPID,
	}
	t := &Task{
		tcb:    tcb,
		resume: make(chan struct{}, 1),
		parked: make(chan struct{}, 1),
		body:   body,
	}
	s.tasks[idx] = t
	s.byPID[pid] = t
	s.mu.Unlock()

	go s.run(t)
	return t, nil
}

// run is the task goroutine's entry point: it waits to be dispatched once,
// runs body to completion, then implicitly exits if body returns without
// calling Exit itself.
func (s *Scheduler) run(t *Task) {
	<-t.resume
	if t.body != nil {
		t.body(t)
	}
	s.Exit(t, 0)
}

// Yield voluntarily gives up the CPU: the task becomes RUNNABLE again and
// will be reinserted into the skiplist on the next reconcile pass, at its
// existing virtual deadline, or at a renewed one if its quantum is exhausted
// (TicksLeft <= 0). It blocks until redispatched.
func (s *Scheduler) Yield(t *Task) {
	s.mu.Lock()
	t.tcb.State = types.StateRunnable
	s.mu.Unlock()
	t.parked <- struct{}{}
	<-t.resume
}

// Sleep blocks t on chanID until a matching Wakeup call. It returns once
// redispatched; callers should check t.Killed() immediately after return
// and unwind cooperatively if a kill arrived while sleeping (spec.md §4.6).
func (s *Scheduler) Sleep(t *Task, chanID uint64) {
	s.mu.Lock()
	t.tcb.State = types.StateSleeping
	t.tcb.Chan = chanID
	s.mu.Unlock()
	t.parked <- struct{}{}
	<-t.resume
}

// Wakeup makes every task sleeping on chanID RUNNABLE again.
func (s *Scheduler) Wakeup(chanID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakeupLocked(chanID)
}

func (s *Scheduler) wakeupLocked(chanID uint64) {
	for _, t := range s.tasks {
		if t != nil && t.tcb.State == types.StateSleeping && t.tcb.Chan == chanID {
			t.tcb.State = types.StateRunnable
		}
	}
}

// Exit reparents t's children to the init task, releases its collaborators
// (MemoryManager, FileCloser), marks it ZOMBIE, and wakes its parent and
// init in case either is blocked in Wait. A task that calls Exit should not
// expect any further code in its body to run meaningfully: nothing prevents
// it, but the task is already unreachable by the scheduler from that point
// on except as a zombie awaiting reap.
func (s *Scheduler) Exit(t *Task, status int) {
	s.mu.Lock()
	for _, c := range s.tasks {
		if c != nil && c.tcb.ParentPID == t.tcb.PID {
			c.tcb.ParentPID = initPID
		}
	}
	if s.files != nil {
		s.files.CloseAll(t.tcb.PID)
	}
	if s.mem != nil {
		s.mem.Release(t.tcb.PID)
	}
	t.tcb.State = types.StateZombie
	t.tcb.ExitTick = s.ticks
	t.tcb.MaxLevel = types.NoLevel
	s.wakeupLocked(uint64(t.tcb.ParentPID))
	s.wakeupLocked(uint64(initPID))
	s.mu.Unlock()

	t.parked <- struct{}{}
}

// Wait blocks t until one of its children becomes a zombie, reaps the first
// one found, and returns its pid. It returns ErrNoChildren immediately if t
// has no children at all, and also if t is killed while waiting.
func (s *Scheduler) Wait(t *Task) (childPID int, err error) {
	for {
		s.mu.Lock()
		hasChildren := false
		for _, c := range s.tasks {
			if c == nil || c.tcb.ParentPID != t.tcb.PID {
				continue
			}
			hasChildren = true
			if c.tcb.State == types.StateZombie {
				pid := c.tcb.PID
				s.freeTCBLocked(c)
				s.mu.Unlock()
				return pid, nil
			}
		}
		if !hasChildren || t.Killed() {
			s.mu.Unlock()
			return 0, ErrNoChildren
		}
		s.mu.Unlock()
		s.Sleep(t, uint64(t.tcb.PID))
	}
}

// Kill flags pid for cooperative termination. A SLEEPING task is made
// RUNNABLE immediately so it observes the kill at its next suspension
// point; a RUNNING task is left alone until it yields, sleeps, or exits on
// its own — Kill never preempts out of band (spec.md Design Notes, Open
// Question 3).
func (s *Scheduler) Kill(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byPID[pid]
	if !ok {
		return ErrUnknownPID
	}
	t.tcb.Killed = true
	t.killed.Store(true)
	if t.tcb.State == types.StateSleeping {
		t.tcb.State = types.StateRunnable
	}
	return nil
}

// GetPid returns t's process id.
func (s *Scheduler) GetPid(t *Task) int {
	return t.tcb.PID
}
