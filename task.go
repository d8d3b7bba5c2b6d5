package dew

import "context"

// TaskID is a dense, non-zero per-scheduler task identifier.
type TaskID uint32

// TaskFunc is the body of a task, run on its own goroutine. It receives a
// Context whose lifetime is bound to the task's cancellation.
type TaskFunc func(c *Context) error

// resumeMsg is sent to wake a parked task; yieldMsg is sent back when the
// task body yields control to the scheduler. Together they form the baton
// handoff: at most one side ever runs at a time, since Task.run only moves
// forward after receiving on resumeCh and the scheduler only moves forward
// after receiving on yieldCh.
type resumeMsg struct{}

type yieldMsg struct {
	status TaskStatus
	err    error
}

// Task is one cooperative unit of execution. Its body
// runs on a dedicated goroutine parked behind an unbuffered channel, so
// that "the task is suspended" is represented by "the goroutine is blocked
// receiving from resumeCh" rather than by manual stack-switching: native
// stackful coroutines via a goroutine-per-task substrate, chosen because Go
// has no portable user-level stack-switch primitive.
type Task struct {
	ID     TaskID
	Status TaskStatus

	sched    *Scheduler
	parent   *Task
	children map[TaskID]*Task

	inbox *fifo[Message]

	fn TaskFunc

	resumeCh chan resumeMsg
	yieldCh  chan yieldMsg

	ctx    *Context
	cancel context.CancelCauseFunc

	err       error
	awaitedBy map[TaskID]struct{} // tasks parked in WAIT_TASK on this one
	timer     *Timer              // active timeout/sleep timer, if any
	ioDesc    *Desc               // active I/O registration, if any

	asyncResult *asyncResult // result delivered by an AsyncPool, if any
}

// Err returns the error a completed task's body returned, if any.
func (t *Task) Err() error { return t.err }

// Message is one entry delivered into a task's inbox.
type Message struct {
	From TaskID
	Body any
}

// Context is the per-task handle passed to a TaskFunc, combining
// cancellation (via context.Context) with the blocking primitives a task
// body uses to cooperate with the scheduler: Yield, Sleep, Recv, Await.
type Context struct {
	context.Context
	task *Task
}

// Self returns the running task's ID.
func (c *Context) Self() TaskID { return c.task.ID }

// Yield suspends the calling task until the scheduler next resumes it
// (e.g. after one run-queue rotation), returning early with ctx.Err() if
// the task's context was canceled first.
func (c *Context) Yield() error {
	return c.task.parkAndYield(TaskReady, nil)
}

// Recv blocks until a message arrives in the task's inbox.
func (c *Context) Recv() (Message, error) {
	t := c.task
	if m, ok := t.inbox.pop(); ok {
		return m, nil
	}
	if err := t.parkAndYield(TaskWaitRecv, nil); err != nil {
		return Message{}, err
	}
	m, ok := t.inbox.pop()
	if !ok {
		// Woken with an empty inbox but not canceled (cancellation while
		// parked is returned by parkAndYield above): c.Err() is nil here,
		// so the caller gets a zero Message and a nil error.
		return Message{}, c.Err()
	}
	return m, nil
}

// parkAndYield records status and hands control back to the scheduler by
// sending on yieldCh, then blocks until the scheduler resumes this task via
// resumeCh. This is the single choke point every blocking Context method
// routes through.
func (t *Task) parkAndYield(status TaskStatus, err error) error {
	t.Status = status
	t.yieldCh <- yieldMsg{status: status, err: err}
	<-t.resumeCh
	if t.ctx.Err() != nil {
		return t.ctx.Err()
	}
	return nil
}

// run is the task's goroutine body: wait for the first resume, execute fn,
// then report completion and park forever (the scheduler reaps a DEAD task
// rather than racing to stop its goroutine out from under it).
func (t *Task) run() {
	<-t.resumeCh
	err := t.fn(t.ctx)
	t.Status = TaskDead
	t.err = err
	t.yieldCh <- yieldMsg{status: TaskDead, err: err}
}

// resume hands control to the task's goroutine and blocks until it yields
// back, returning what it yielded.
func (t *Task) resume() yieldMsg {
	t.Status = TaskRunning
	t.resumeCh <- resumeMsg{}
	return <-t.yieldCh
}

// deliver appends msg to the task's inbox, growing it if needed; returns
// false if the inbox is at its bound.
func (t *Task) deliver(msg Message) bool {
	return t.inbox.push(msg)
}
