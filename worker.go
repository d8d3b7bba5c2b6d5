package dew

import (
	"context"
	"runtime"
)

// WorkerFunc is the entry point run on a worker's dedicated scheduler, as
// its root task.
type WorkerFunc func(c *Context) error

// Worker is a user worker: its own OS thread hosting its own Scheduler,
// communicating with its owner only via structurally-cloned messages.
// Locking a goroutine to its OS thread gives it a dedicated run loop,
// generalized here from "one loop per long-lived service" to "one
// on-demand child loop per spawned Worker".
type Worker struct {
	status      *atomicWorkerStatus
	sched       *Scheduler
	owner       *Scheduler
	ownerTaskID TaskID

	done chan struct{}
	err  error
}

// SpawnWorker starts a new OS-thread-backed Scheduler running fn as its
// root task, and returns a handle the owner can Send to and wait on with
// Context.Join.
func SpawnWorker(owner *Scheduler, ownerTask TaskID, fn WorkerFunc, opts ...SchedulerOption) (*Worker, error) {
	w := &Worker{
		status:      newAtomicWorkerStatus(WorkerOpen),
		owner:       owner,
		ownerTaskID: ownerTask,
		done:        make(chan struct{}),
	}

	ready := make(chan error, 1)
	go w.run(fn, opts, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) run(fn WorkerFunc, opts []SchedulerOption, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s, err := NewScheduler(opts...)
	if err != nil {
		ready <- err
		return
	}
	w.sched = s
	w.status.TryTransition(WorkerOpen, WorkerReady)
	ready <- nil

	root, _ := s.Spawn(0, fn)
	s.root = root

	w.err = s.Run(context.Background())
	w.status.TryTransition(WorkerReady, WorkerClosed)
	close(w.done)

	// Tell the owner's loop a worker exited, so any task parked in
	// WAIT_WORKER on this handle gets re-enqueued on the next pass.
	w.owner.notes.set(NoteWExit)
	_ = w.owner.poller.Interrupt()
}

// Status reports the worker's current lifecycle state.
func (w *Worker) Status() WorkerStatus { return w.status.Load() }

// Send structurally clones body across the OS-thread boundary via the
// structclone wire format and delivers it to the worker's root task inbox,
// non-blocking unless the worker's submission ring is full.
func (w *Worker) Send(ctx context.Context, from TaskID, body any) error {
	data, err := Encode(body)
	if err != nil {
		return err
	}
	if err := w.sched.external.Send(ctx, externalMessage{From: from, Data: data}); err != nil {
		return err
	}
	w.sched.notes.set(NoteExternal)
	return w.sched.poller.Interrupt()
}

// Join blocks the calling task until the worker's scheduler exits. A
// NoteWExit wakeup is a broad signal (any worker might have exited), so
// this re-checks Closed() and parks again if it wasn't this worker.
func (c *Context) Join(w *Worker) error {
	for !w.Closed() {
		if err := c.task.parkAndYield(TaskWaitWorker, nil); err != nil {
			return err
		}
	}
	return w.err
}

// Closed reports whether the worker's run loop has exited.
func (w *Worker) Closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
