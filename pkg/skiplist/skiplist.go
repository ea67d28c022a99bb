// Package skiplist implements the fixed-capacity, index-linked doubly-linked
// skiplist that backs the scheduler's earliest-virtual-deadline ranking.
//
// Nodes live in a preallocated array rather than behind pointers: slot 0 is
// a permanent sentinel head, slots [1..NProc] hold at most NProc runnable
// tasks, and forward/backward links are array indices with -1 standing in
// for "no node" (NodeNone). This mirrors the original kernel's
// struct-array-plus-index design, which sidesteps both dynamic allocation
// and reference-cycle bookkeeping: see DESIGN.md for the grounding notes.
//
// None of the exported methods take a lock of their own — §5 of the
// scheduler spec requires every mutation to happen under the scheduler's
// single table lock, and fine-grained per-node locking is explicitly out of
// scope. Callers serialize access.
package skiplist

import (
	"errors"
	"fmt"

	"github.com/bfsched/kernel/internal/rng"
)

// NodeNone is the sentinel "no node" index used in forward/backward links.
const NodeNone = -1

// headIndex is the fixed slot of the permanent sentinel head.
const headIndex = 0

var (
	// ErrDuplicatePID is returned by Insert when a valid node for pid
	// already exists. This is an invariant guarantee, not a benign result:
	// the scheduler's reconcile pass always searches first, so in normal
	// operation this is unreachable (see spec.md §4.7).
	ErrDuplicatePID = errors.New("skiplist: duplicate pid")
	// ErrFull is returned by Insert when every slot in [1..NProc] is valid.
	// Benign: the caller simply retries next iteration.
	ErrFull = errors.New("skiplist: full")
	// ErrNotFound is returned by Delete when no node matches (value, pid).
	// Benign under concurrent state transitions.
	ErrNotFound = errors.New("skiplist: not found")
)

type node struct {
	valid    bool
	value    int64
	pid      int
	maxLevel int
	forward  []int
	backward []int
}

// Skiplist is the fixed-capacity skiplist described in spec.md §3.
type Skiplist struct {
	nproc    int
	maxLevel int
	chance   float64
	rand     *rng.Source

	nodes []node // len == nproc+1; nodes[0] is the head
	level int    // highest level any non-head node currently participates at
}

// New allocates a Skiplist with nproc+1 slots (slot 0 reserved for the
// sentinel head) and levels in [0, maxLevel-1]. rand drives random level
// selection on Insert; pass the scheduler's single process-wide generator
// so draws are deterministic across a boot.
func New(nproc, maxLevel int, chance float64, rand *rng.Source) *Skiplist {
	sl := &Skiplist{
		nproc:    nproc,
		maxLevel: maxLevel,
		chance:   chance,
		rand:     rand,
	}
	sl.Init()
	return sl
}

// Init (re)initializes the head and clears every other slot to free. Sets
// level to 0 (empty, but initialized), per spec.md §4.3.
func (sl *Skiplist) Init() {
	sl.nodes = make([]node, sl.nproc+1)
	for i := range sl.nodes {
		sl.nodes[i] = node{
			forward:  newLinkRow(sl.maxLevel),
			backward: newLinkRow(sl.maxLevel),
		}
	}
	sl.nodes[headIndex].valid = true
	sl.nodes[headIndex].value = -1
	sl.nodes[headIndex].pid = -1
	sl.level = 0
}

func newLinkRow(maxLevel int) []int {
	row := make([]int, maxLevel)
	for i := range row {
		row[i] = NodeNone
	}
	return row
}

// Level reports the highest level recorded by Insert since the last Init (0
// right after Init). Delete does not lower it.
func (sl *Skiplist) Level() int {
	return sl.level
}

// less implements the (value, pid) lexicographic ordering spec.md §4.3
// requires: ties at equal value are broken by insertion order (Insert moves
// past the equal-value run before splicing), so descent uses strict "<"
// against value alone — pid never participates in ordering comparisons,
// only in identity matching at the bottom-level equal-value run. Kept as a
// named predicate for clarity at call sites.
func (sl *Skiplist) less(candidateValue int64, value int64) bool {
	return candidateValue < value
}

// descend walks from the head downward from the current top level,
// recording in update[l] the rightmost node at level l whose successor's
// value is >= value. Returns update and the bottom-level successor index.
func (sl *Skiplist) descend(value int64) (update []int, successor int) {
	update = make([]int, sl.maxLevel)
	cur := headIndex
	for l := sl.level; l >= 0; l-- {
		for sl.nodes[cur].forward[l] != NodeNone && sl.less(sl.nodes[sl.nodes[cur].forward[l]].value, value) {
			cur = sl.nodes[cur].forward[l]
		}
		update[l] = cur
	}
	for l := sl.level + 1; l < sl.maxLevel; l++ {
		update[l] = headIndex
	}
	return update, sl.nodes[cur].forward[0]
}

// Insert places (value, pid) into the skiplist. See spec.md §4.3.
func (sl *Skiplist) Insert(value int64, pid int) error {
	update, successor := sl.descend(value)

	// Walk the bottom-level equal-value run looking for an existing pid.
	for idx := successor; idx != NodeNone && sl.nodes[idx].value == value; idx = sl.nodes[idx].forward[0] {
		if sl.nodes[idx].pid == pid {
			return ErrDuplicatePID
		}
	}
	// A duplicate pid could also already sit at a different value; scan all
	// valid slots defensively since the invariant (§3) forbids two entries
	// for the same pid regardless of value.
	for i := 1; i <= sl.nproc; i++ {
		if sl.nodes[i].valid && sl.nodes[i].pid == pid {
			return ErrDuplicatePID
		}
	}

	slot := sl.freeSlot()
	if slot == NodeNone {
		return ErrFull
	}

	// Move each level's predecessor past the run of equal values so the new
	// node lands after existing ties: FIFO among equal deadlines.
	for l := range update {
		for next := sl.nodes[update[l]].forward[l]; next != NodeNone && sl.nodes[next].value == value; next = sl.nodes[update[l]].forward[l] {
			update[l] = next
		}
	}

	newLevel := sl.rand.NextLevel(sl.maxLevel, sl.chance)
	if newLevel > sl.level {
		sl.level = newLevel
	}

	n := &sl.nodes[slot]
	n.valid = true
	n.value = value
	n.pid = pid
	n.maxLevel = newLevel
	for l := 0; l <= newLevel; l++ {
		n.forward[l] = sl.nodes[update[l]].forward[l]
		if n.forward[l] != NodeNone {
			sl.nodes[n.forward[l]].backward[l] = slot
		}
		sl.nodes[update[l]].forward[l] = slot
		n.backward[l] = update[l]
	}
	for l := newLevel + 1; l < sl.maxLevel; l++ {
		n.forward[l] = NodeNone
		n.backward[l] = NodeNone
	}
	return nil
}

// freeSlot returns the lowest-indexed free slot in [1, nproc], or NodeNone
// if every slot is valid.
func (sl *Skiplist) freeSlot() int {
	for i := 1; i <= sl.nproc; i++ {
		if !sl.nodes[i].valid {
			return i
		}
	}
	return NodeNone
}

// Search returns the node index holding (value, pid), or (NodeNone, false).
// Never mutates state. The bottom-level walk among equal-value entries is
// required to correctly disambiguate by pid — an earlier variant of the
// source returned on the first value match regardless of pid, which is
// wrong whenever two tasks share a deadline (spec.md §9).
func (sl *Skiplist) Search(value int64, pid int) (int, bool) {
	_, successor := sl.descend(value)
	for idx := successor; idx != NodeNone && sl.nodes[idx].value == value; idx = sl.nodes[idx].forward[0] {
		if sl.nodes[idx].pid == pid {
			return idx, true
		}
	}
	return NodeNone, false
}

// Delete removes the node holding (value, pid). level is intentionally not
// lowered afterward (spec.md §9): descent loops still terminate correctly
// against a stale, too-high level, at the cost of a few wasted comparisons
// at levels that have since emptied out.
func (sl *Skiplist) Delete(value int64, pid int) error {
	idx, ok := sl.Search(value, pid)
	if !ok {
		return ErrNotFound
	}
	n := &sl.nodes[idx]
	for l := 0; l <= n.maxLevel; l++ {
		if n.backward[l] != NodeNone {
			sl.nodes[n.backward[l]].forward[l] = n.forward[l]
		}
		if n.forward[l] != NodeNone {
			sl.nodes[n.forward[l]].backward[l] = n.backward[l]
		}
		n.forward[l] = NodeNone
		n.backward[l] = NodeNone
	}
	n.valid = false
	n.pid = 0
	n.value = 0
	n.maxLevel = 0
	return nil
}

// MaxLevelOf returns the participation level recorded for (value, pid)'s
// node, or types.NoLevel if the task is not currently present. Used by the
// scheduler for schedlog's (<maxlevel>) field.
func (sl *Skiplist) MaxLevelOf(value int64, pid int) int {
	idx, ok := sl.Search(value, pid)
	if !ok {
		return -1
	}
	return sl.nodes[idx].maxLevel
}

// Front returns the pid and node index at the head's level-0 successor —
// the task with the smallest value, earliest-inserted among equal values —
// or (0, NodeNone, false) if the skiplist is empty.
func (sl *Skiplist) Front() (pid int, idx int, ok bool) {
	h := sl.nodes[headIndex].forward[0]
	if h == NodeNone || !sl.nodes[h].valid {
		return 0, NodeNone, false
	}
	return sl.nodes[h].pid, h, true
}

// Walk calls visit for every valid node at level 0 in ascending order. It
// exists for tests and diagnostics (property 1 and 2 of spec.md §8); it
// does not mutate the list.
func (sl *Skiplist) Walk(visit func(value int64, pid int, maxLevel int)) {
	cur := sl.nodes[headIndex].forward[0]
	for cur != NodeNone {
		n := sl.nodes[cur]
		visit(n.value, n.pid, n.maxLevel)
		cur = n.forward[0]
	}
}

// Len returns the number of valid (non-head) nodes.
func (sl *Skiplist) Len() int {
	count := 0
	for i := 1; i <= sl.nproc; i++ {
		if sl.nodes[i].valid {
			count++
		}
	}
	return count
}

// String renders a one-line summary (level, length, capacity), used only by
// tests/diagnostics.
func (sl *Skiplist) String() string {
	return fmt.Sprintf("skiplist{level=%d len=%d cap=%d}", sl.level, sl.Len(), sl.nproc)
}
