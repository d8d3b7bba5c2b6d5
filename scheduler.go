package dew

import (
	"context"
	"fmt"
	"sync"
)

// defaultInboxCap is the initial per-task inbox capacity.
const defaultInboxCap = 16

// maxInboxCap bounds inbox growth; a Send to a full inbox blocks the sender
// rather than growing forever.
const maxInboxCap = 4096

// Scheduler is a single-OS-thread cooperative run loop: one goroutine
// drives a run queue, a timer heap, and an I/O poller, moving tasks through
// the lifecycle in state.go — a runQueue + runnext fast path, an atomic
// lifecycle, and a notes bitset for cross-thread wakeups, generalized from
// "run arbitrary closures" to "run cooperative Task goroutines with their
// own inbox/suspend state".
type Scheduler struct {
	log Logger

	runQueue *fifo[TaskID]
	runnext  TaskID // fast-path slot, bypasses the FIFO for the common case

	tasks   map[TaskID]*Task
	ids     *idPool
	clock   *clock
	timers  *timerHeap
	poller  Poller
	notes   notes

	// everAllocated records every TaskID this scheduler has ever handed out
	// via Spawn, independent of s.tasks (which loses the id once reaped).
	// Await uses it to distinguish "belongs to this scheduler but already
	// dead" (fine, returns immediately) from "never existed here" (an
	// error — almost always a foreign scheduler's id).
	everAllocated map[TaskID]struct{}

	mu sync.Mutex // held by Spawn and reap while they update tasks/ids; notes are atomic and do not use it

	asyncCompletions *Ring[asyncResult]

	// external is the inbound ring a Worker's owner pushes cross-thread
	// messages onto, wire-encoded, for decode-and-delivery into root's
	// inbox.
	external *Ring[externalMessage]

	root    TaskID
	running bool
}

// externalMessage is one structurally-cloned cross-thread message in
// transit on the external ring: the payload crosses as wire-format bytes
// (see structclone.go), decoded back into a Go value only once it reaches
// the owning scheduler's thread.
type externalMessage struct {
	From TaskID
	Data []byte
}

// SchedulerOption configures a Scheduler at construction, following a
// functional-options convention.
type SchedulerOption func(*Scheduler)

// WithLogger installs a structured logger; the default writes to stderr at
// Info level (see defaultLogger).
func WithLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler constructs a Scheduler with its own poller and timer heap.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		log:              defaultLogger(),
		runQueue:         newFIFO[TaskID](64, 0),
		tasks:            make(map[TaskID]*Task),
		everAllocated:    make(map[TaskID]struct{}),
		ids:              newIDPool(),
		clock:            newClock(),
		timers:           newTimerHeap(),
		poller:           p,
		asyncCompletions: NewRing[asyncResult](256),
		external:         NewRing[externalMessage](64),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Running reports whether Run is currently driving this scheduler's loop.
func (s *Scheduler) Running() bool { return s.running }

// Spawn creates a new Task running fn as a child of parent (TaskID(0) means
// a root task), and enqueues it onto the run queue.
func (s *Scheduler) Spawn(parent TaskID, fn TaskFunc) (TaskID, error) {
	s.mu.Lock()
	id := TaskID(s.ids.alloc())
	ctx, cancel := context.WithCancelCause(context.Background())
	t := &Task{
		ID:       id,
		Status:   TaskReady,
		sched:    s,
		inbox:    newFIFO[Message](defaultInboxCap, maxInboxCap),
		fn:       fn,
		resumeCh: make(chan resumeMsg),
		yieldCh:  make(chan yieldMsg),
		cancel:   cancel,
		children: make(map[TaskID]*Task),
	}
	t.ctx = &Context{Context: ctx, task: t}
	if parent != 0 {
		if p, ok := s.tasks[parent]; ok {
			t.parent = p
			p.children[id] = t
		}
	}
	s.tasks[id] = t
	s.everAllocated[id] = struct{}{}
	s.mu.Unlock()

	go t.run()
	s.enqueue(id)
	return id, nil
}

// enqueue places id into the fast-path runnext slot if free, else the run
// queue FIFO — a runnext optimization that avoids a FIFO round-trip for
// the overwhelmingly common "immediately re-runnable" case.
func (s *Scheduler) enqueue(id TaskID) {
	if s.runnext == 0 {
		s.runnext = id
		return
	}
	s.runQueue.push(id)
}

func (s *Scheduler) dequeue() (TaskID, bool) {
	if s.runnext != 0 {
		id := s.runnext
		s.runnext = 0
		return id, true
	}
	return s.runQueue.pop()
}

// Run drives the scheduler loop until every task has reached TaskDead and
// been reaped, or ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running = true
	defer func() { s.running = false }()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		default:
		}

		s.clock.tick()
		s.runTimers()
		s.drainNotes()

		id, ok := s.dequeue()
		if !ok {
			if len(s.tasks) == 0 {
				return nil
			}
			if err := s.waitForWork(ctx); err != nil {
				s.logSchedulerError("poll", err)
				s.shutdown()
				return err
			}
			continue
		}

		t, ok := s.tasks[id]
		if !ok || t.Status == TaskDead {
			continue
		}

		y := t.resume()
		switch y.status {
		case TaskReady:
			s.enqueue(id)
		case TaskDead:
			s.reap(t)
		default:
			// WAIT_* states: the task stays out of the run queue until
			// something (timer fire, I/O event, message delivery, child
			// exit) re-enqueues it.
		}
	}
}

// waitForWork blocks in the poller until a timer, I/O event, or
// cross-thread note wakes the loop.
func (s *Scheduler) waitForWork(ctx context.Context) error {
	deadline := int64(NoDeadline)
	if next := s.timers.peek(); next != nil {
		deadline = next.When
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.poller.Interrupt()
		case <-done:
		}
	}()
	defer close(done)

	var leeway int64
	if next := s.timers.peek(); next != nil {
		leeway = next.Leeway
	}
	events, err := s.poller.Poll(deadline, leeway)
	if err != nil {
		return err
	}
	for _, r := range events {
		if t, ok := r.d.waiter.(*Task); ok {
			s.wake(t)
		}
	}
	return nil
}

// runTimers pops and fires every timer whose deadline has passed.
func (s *Scheduler) runTimers() {
	for _, tm := range s.timers.popReady(s.clock.now()) {
		if tm.F != nil {
			tm.F(tm, tm.Arg)
		}
	}
}

// drainNotes handles cross-thread signals set via notes.set (worker exits,
// async completions) by atomically taking and clearing the bitset, then
// acting on whichever bits were set.
func (s *Scheduler) drainNotes() {
	n := s.notes.take()
	if n == 0 {
		return
	}
	if n&NoteWExit != 0 {
		// A spawned worker exited; re-check every task parked on a Join so
		// the ones waiting on the worker that actually exited notice.
		for _, t := range s.tasks {
			if t.Status == TaskWaitWorker {
				s.wake(t)
			}
		}
	}
	if n&NoteAsyncWork != 0 {
		for {
			r, ok := s.asyncCompletions.TryRecv()
			if !ok {
				break
			}
			s.deliverAsyncResult(r)
		}
	}
	if n&NoteExternal != 0 {
		for {
			em, ok := s.external.TryRecv()
			if !ok {
				break
			}
			body, err := Decode(em.Data)
			if err != nil {
				s.logSchedulerError("decode external message", err)
				continue
			}
			if t, ok := s.tasks[s.root]; ok {
				if t.deliver(Message{From: em.From, Body: body}) {
					s.wake(t)
				}
			}
		}
	}
}

// soleRunnableNoTimers reports whether t is the only live task on this
// scheduler and no timer is pending — the condition under which an async
// submission may run inline on the calling goroutine instead of being
// handed to a worker thread, since there is no sibling work it could be
// starving.
func (s *Scheduler) soleRunnableNoTimers(t *Task) bool {
	return len(s.tasks) == 1 && s.timers.peek() == nil
}

// wake moves a parked task back onto the run queue.
func (s *Scheduler) wake(t *Task) {
	if t.Status == TaskDead || t.Status == TaskReady || t.Status == TaskRunning {
		return
	}
	t.Status = TaskReady
	s.enqueue(t.ID)
}

// Send delivers msg to dst's inbox, waking it if it was parked in
// TaskWaitRecv. Returns false if dst's inbox is full.
func (s *Scheduler) Send(dst TaskID, from TaskID, body any) bool {
	t, ok := s.tasks[dst]
	if !ok {
		return false
	}
	if !t.deliver(Message{From: from, Body: body}) {
		return false
	}
	s.wake(t)
	return true
}

// cancelTask cancels t's context and, if t is parked, drives it through one
// more resume/yield round-trip so parkAndYield observes ctx.Err() and
// returns rather than blocking forever on a resumeCh nobody will ever send
// on again. Every cancellation path (reap's orphaning of children,
// shutdown) must route through this rather than calling t.cancel directly,
// or a task parked on a timer/inbox/await/I/O wait at the moment of
// cancellation leaks its goroutine.
func (s *Scheduler) cancelTask(t *Task, cause error) {
	t.cancel(cause)
	s.wake(t)
}

// reap finalizes a DEAD task: releases its ID, detaches it from its
// parent/children, and wakes anything in WAIT_TASK on it.
func (s *Scheduler) reap(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t.ID)
	s.ids.free(int(t.ID))
	if t.parent != nil {
		delete(t.parent.children, t.ID)
	}
	// Parent-stops-children: collect surviving children under the lock,
	// then cancel+wake them once unlocked (wake touches the run queue,
	// which reap's own caller may already be iterating over).
	children := make([]*Task, 0, len(t.children))
	for _, c := range t.children {
		children = append(children, c)
	}
	s.mu.Unlock()

	cause := fmt.Errorf("parent task %d exited", t.ID)
	for _, c := range children {
		s.cancelTask(c, cause)
	}

	for id := range t.awaitedBy {
		if w, ok := s.tasks[id]; ok {
			s.wake(w)
		}
	}
}

// shutdown cancels every live task and runs them to completion so deferred
// cleanup executes, then closes the poller. Every canceled task is driven
// through cancelTask so parked goroutines (sleeping, awaiting, blocked on
// I/O) actually wake and observe ctx.Err() instead of leaking; any task
// that yields a non-DEAD status on this pass (e.g. it parks again on
// something else before returning) is re-woken so the loop keeps making
// progress until every task reaches DEAD.
func (s *Scheduler) shutdown() {
	for _, t := range s.tasks {
		s.cancelTask(t, context.Canceled)
	}
	for len(s.tasks) > 0 {
		id, ok := s.dequeue()
		if !ok {
			// Nothing runnable yet queued for this pass even though tasks
			// remain: every cancelTask call already enqueued its target, so
			// this only happens between resume() calls within this same
			// loop, never steady-state — spin once more.
			continue
		}
		t, ok := s.tasks[id]
		if !ok || t.Status == TaskDead {
			continue
		}
		y := t.resume()
		if y.status == TaskDead {
			s.reap(t)
		} else {
			// Still parked on something (timer, inbox, I/O) after
			// observing cancellation once; wake it again so it keeps
			// making progress toward DEAD instead of leaking.
			s.wake(t)
		}
	}
	if err := s.poller.Close(); err != nil {
		s.logSchedulerError("shutdown", err)
	}
}
