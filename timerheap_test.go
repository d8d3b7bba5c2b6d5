package dew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerHeap_PopReadyInDeadlineOrder(t *testing.T) {
	h := newTimerHeap()
	var fired []int

	mk := func(when int64, tag int) *Timer {
		return &Timer{When: when, index: -1, F: func(*Timer, any) { fired = append(fired, tag) }}
	}
	h.add(mk(30, 3))
	h.add(mk(10, 1))
	h.add(mk(20, 2))

	ready := h.popReady(25)
	require.Len(t, ready, 2)
	for _, tm := range ready {
		tm.F(tm, tm.Arg)
	}
	assert.Equal(t, []int{1, 2}, fired)

	remaining := h.peek()
	require.NotNil(t, remaining)
	assert.Equal(t, int64(30), remaining.When)
}

func TestTimerHeap_RemoveByIdentity(t *testing.T) {
	h := newTimerHeap()
	a := &Timer{When: 10, index: -1}
	b := &Timer{When: 20, index: -1}
	h.add(a)
	h.add(b)

	h.remove(a)
	assert.Equal(t, 1, h.Len())
	assert.Same(t, b, h.peek())

	// Removing again is a no-op, not a panic.
	h.remove(a)
}

func TestTimerHeap_RepeatingTimerReArms(t *testing.T) {
	h := newTimerHeap()
	count := 0
	tm := &Timer{When: 100, Period: 50, index: -1, F: func(*Timer, any) { count++ }}
	h.add(tm)

	ready := h.popReady(100)
	require.Len(t, ready, 1)
	ready[0].F(ready[0], nil)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(150), h.peek().When)
}

func TestTimerHeap_Reschedule(t *testing.T) {
	h := newTimerHeap()
	a := &Timer{When: 100, index: -1}
	h.add(a)
	h.reschedule(a, 5)
	assert.Equal(t, int64(5), h.peek().When)
}
