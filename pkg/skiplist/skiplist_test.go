package skiplist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfsched/kernel/internal/rng"
)

const (
	testNProc    = 16
	testMaxLevel = 4
	testChance   = 0.25
	testSeed     = 62301983
)

func newTestList() *Skiplist {
	return New(testNProc, testMaxLevel, testChance, rng.New(testSeed))
}

func TestInsertSearchDeleteRoundTrip(t *testing.T) {
	sl := newTestList()

	require.NoError(t, sl.Insert(100, 7))
	idx, ok := sl.Search(100, 7)
	require.True(t, ok)
	assert.NotEqual(t, NodeNone, idx)

	require.NoError(t, sl.Delete(100, 7))
	_, ok = sl.Search(100, 7)
	assert.False(t, ok)
}

func TestDuplicatePIDRejected(t *testing.T) {
	sl := newTestList()

	require.NoError(t, sl.Insert(100, 1))
	err := sl.Insert(200, 1)
	assert.ErrorIs(t, err, ErrDuplicatePID)

	// Unchanged: the original entry is still there at its original value.
	_, ok := sl.Search(100, 1)
	assert.True(t, ok)
	_, ok = sl.Search(200, 1)
	assert.False(t, ok)
}

func TestDeleteNotFoundIsBenign(t *testing.T) {
	sl := newTestList()
	err := sl.Delete(42, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCapacityFull(t *testing.T) {
	sl := newTestList()
	for pid := 1; pid <= testNProc; pid++ {
		require.NoError(t, sl.Insert(int64(pid)*10, pid))
	}
	err := sl.Insert(99999, testNProc+1)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, testNProc, sl.Len())
}

func TestFIFOAmongTies(t *testing.T) {
	sl := newTestList()
	require.NoError(t, sl.Insert(500, 1))
	require.NoError(t, sl.Insert(500, 2))

	var pids []int
	sl.Walk(func(value int64, pid int, maxLevel int) {
		if value == 500 {
			pids = append(pids, pid)
		}
	})
	require.Len(t, pids, 2)
	assert.Equal(t, []int{1, 2}, pids)
}

func TestOrderingAcrossInsertsAndDeletes(t *testing.T) {
	sl := newTestList()
	values := []int64{50, 10, 30, 20, 40}
	for i, v := range values {
		require.NoError(t, sl.Insert(v, i+1))
	}
	require.NoError(t, sl.Delete(30, 3))

	var walked []int64
	sl.Walk(func(value int64, pid int, maxLevel int) {
		walked = append(walked, value)
	})
	assert.Equal(t, []int64{10, 20, 40, 50}, walked)
}

func TestBidirectionalCoherence(t *testing.T) {
	sl := newTestList()
	for i := 1; i <= 10; i++ {
		require.NoError(t, sl.Insert(int64(i)*7, i))
	}

	for i := 1; i <= sl.nproc; i++ {
		n := sl.nodes[i]
		if !n.valid {
			continue
		}
		for l := 0; l <= n.maxLevel; l++ {
			if n.forward[l] != NodeNone {
				assert.Equal(t, i, sl.nodes[n.forward[l]].backward[l],
					"node %d forward[%d] backward mismatch", i, l)
			}
		}
	}
}

func TestPIDUniqueness(t *testing.T) {
	sl := newTestList()
	seen := map[int]bool{}
	for i := 1; i <= 10; i++ {
		require.NoError(t, sl.Insert(int64(i)*3, i))
	}
	sl.Walk(func(value int64, pid int, maxLevel int) {
		assert.False(t, seen[pid], "duplicate pid %d", pid)
		seen[pid] = true
	})
	assert.Len(t, seen, 10)
}

func TestFrontIsMinimum(t *testing.T) {
	sl := newTestList()
	require.NoError(t, sl.Insert(30, 3))
	require.NoError(t, sl.Insert(10, 1))
	require.NoError(t, sl.Insert(20, 2))

	pid, _, ok := sl.Front()
	require.True(t, ok)
	assert.Equal(t, 1, pid)
}

func TestEmptyFront(t *testing.T) {
	sl := newTestList()
	_, idx, ok := sl.Front()
	assert.False(t, ok)
	assert.Equal(t, NodeNone, idx)
}

func TestRandomizedPropertySweep(t *testing.T) {
	sl := New(64, 4, 0.25, rng.New(1234))
	present := map[int]int64{}
	r := rng.New(9999)

	for round := 0; round < 500; round++ {
		op := r.Intn(3)
		switch {
		case op == 0 || len(present) == 0:
			pid := r.Intn(64) + 1
			if _, ok := present[pid]; ok {
				continue
			}
			value := int64(r.Intn(1000))
			if err := sl.Insert(value, pid); err == nil {
				present[pid] = value
			}
		default:
			for pid, value := range present {
				require.NoError(t, sl.Delete(value, pid))
				delete(present, pid)
				break
			}
		}

		var prevValue int64 = -1
		var prevPID = -1
		seen := map[int]bool{}
		sl.Walk(func(value int64, pid int, maxLevel int) {
			assert.False(t, seen[pid])
			seen[pid] = true
			if prevPID != -1 {
				assert.True(t, prevValue < value || (prevValue == value),
					"ordering violated: %d then %d", prevValue, value)
			}
			prevValue, prevPID = value, pid
		})
		assert.Len(t, seen, len(present))
	}
}
