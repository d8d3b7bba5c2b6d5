package dew

import "container/heap"

// TimerFunc is invoked when a timer fires. arg is the opaque value the timer
// was created with.
type TimerFunc func(t *Timer, arg any)

// Timer is a scheduled callback, one-shot or repeating.
type Timer struct {
	When   int64 // absolute deadline, nanoseconds (clock.now() domain)
	Period int64 // 0 = one-shot; otherwise re-armed When += Period on fire
	Leeway int64 // coalescing hint: firing may be delayed up to Leeway

	F   TimerFunc
	Arg any

	index int  // heap index, maintained by container/heap; -1 if not queued
	dead  bool // popReady drops a dead timer instead of returning it; remove() does not set it
}

// timerHeap is a binary min-heap keyed by Timer.When, generalized with
// heap.Fix/heap.Remove so an in-flight timer can be rescheduled or canceled
// by identity rather than only ever popped from the front — unlike a
// simpler fire-once-then-forget timer queue that only ever needs push/pop.
type timerHeap struct {
	items []*Timer
}

func newTimerHeap() *timerHeap {
	h := &timerHeap{}
	heap.Init(h)
	return h
}

func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool { return h.items[i].When < h.items[j].When }

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(h.items)
	h.items = append(h.items, t)
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	h.items = old[:n-1]
	return t
}

// add inserts t into the heap.
func (h *timerHeap) add(t *Timer) {
	heap.Push(h, t)
}

// remove takes t out of the heap if it's present, regardless of position.
func (h *timerHeap) remove(t *Timer) {
	if t.index < 0 || t.index >= len(h.items) || h.items[t.index] != t {
		return
	}
	heap.Remove(h, t.index)
}

// reschedule updates t.When and fixes heap position, re-adding it if it had
// been removed already.
func (h *timerHeap) reschedule(t *Timer, when int64) {
	t.When = when
	if t.index >= 0 && t.index < len(h.items) && h.items[t.index] == t {
		heap.Fix(h, t.index)
	} else {
		h.add(t)
	}
}

// peek returns the earliest timer without removing it.
func (h *timerHeap) peek() *Timer {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// popReady pops and returns every timer whose When <= now. Repeating timers
// are returned too, and are also re-armed (re-added at the new deadline so
// heap order stays correct).
func (h *timerHeap) popReady(now int64) []*Timer {
	var ready []*Timer
	for {
		t := h.peek()
		if t == nil || t.When > now {
			break
		}
		heap.Pop(h)
		if t.dead {
			continue
		}
		ready = append(ready, t)
		if t.Period > 0 {
			next := t.When + t.Period
			if next <= now {
				// Catch up without busy-looping on a long stall: anchor off
				// now rather than accumulating an unbounded backlog of
				// elapsed periods.
				next = now + t.Period
			}
			t.When = next
			h.add(t)
		}
	}
	return ready
}
