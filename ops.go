package dew

import (
	"context"
	"errors"
	"fmt"
)

// Sleep suspends the calling task for d, or until its context is canceled.
func (c *Context) Sleep(d Dur) error {
	t := c.task
	s := t.sched
	when := s.clock.deadline(d)
	tm := &Timer{When: when, index: -1}
	tm.F = func(*Timer, any) { s.wake(t) }
	s.timers.add(tm)
	t.timer = tm

	err := t.parkAndYield(TaskWaitIO, nil)
	s.timers.remove(tm)
	t.timer = nil
	return err
}

// AwaitOutcome classifies how an awaited task finished.
type AwaitOutcome int

const (
	AwaitError   AwaitOutcome = iota // target returned a non-nil error
	AwaitClean                       // target returned nil
	AwaitStopped                     // target was canceled (parent exit, shutdown)
)

// AwaitResult is what Await returns once the target reaches TaskDead.
type AwaitResult struct {
	How AwaitOutcome
	Err error // the target's returned/cancellation error, if any
}

// Await blocks the calling task until target has reached TaskDead, then
// reports how it finished. Awaiting self is an error (it can never
// resolve: the caller can't be resumed to observe its own death). Awaiting
// a task id this scheduler never allocated is an error — almost always a
// foreign scheduler's id, which must instead be awaited via the owning
// Worker's Join. Awaiting an already-dead (reaped) task returns
// immediately with AwaitClean and a nil Err, since its actual outcome was
// already discarded at reap time.
func (c *Context) Await(target TaskID) (AwaitResult, error) {
	t := c.task
	s := t.sched

	if target == t.ID {
		return AwaitResult{}, NewError("await", CodeInvalid, fmt.Errorf("task %d cannot await itself", target))
	}
	if _, ever := s.everAllocated[target]; !ever {
		return AwaitResult{}, NewError("await", CodeInvalid, fmt.Errorf("task %d does not belong to this scheduler", target))
	}

	tt, ok := s.tasks[target]
	if !ok {
		return AwaitResult{How: AwaitClean}, nil
	}
	if tt.awaitedBy == nil {
		tt.awaitedBy = make(map[TaskID]struct{})
	}
	tt.awaitedBy[t.ID] = struct{}{}
	if err := t.parkAndYield(TaskWaitTask, nil); err != nil {
		return AwaitResult{}, err
	}

	err := tt.err
	switch {
	case errors.Is(err, context.Canceled):
		return AwaitResult{How: AwaitStopped, Err: err}, nil
	case err != nil:
		return AwaitResult{How: AwaitError, Err: err}, nil
	default:
		return AwaitResult{How: AwaitClean}, nil
	}
}

// Send delivers body to dst's inbox from the calling task, waking dst if it
// was parked in WAIT_RECV. If dst's inbox is full, the calling task yields
// and retries, repeating until the message is delivered or ctx is done.
func (c *Context) Send(ctx context.Context, dst TaskID, body any) error {
	t := c.task
	s := t.sched
	for {
		if s.Send(dst, t.ID, body) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Yield(); err != nil {
			return err
		}
	}
}

// WaitIO suspends the calling task until fd becomes ready for events,
// returning the mask it registered for (events); which of those events
// actually fired is not recorded or returned.
func (c *Context) WaitIO(fd int, events PollEvent) (PollEvent, error) {
	t := c.task
	s := t.sched
	d, err := s.poller.Register(fd, events, t)
	if err != nil {
		return 0, err
	}
	t.ioDesc = d
	defer func() {
		_ = s.poller.Unregister(d)
		t.ioDesc = nil
	}()

	if err := t.parkAndYield(TaskWaitIO, nil); err != nil {
		return 0, err
	}
	return d.events, nil
}

// Spawn creates a child task under the caller.
func (c *Context) Spawn(fn TaskFunc) (TaskID, error) {
	return c.task.sched.Spawn(c.task.ID, fn)
}
