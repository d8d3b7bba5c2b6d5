package dew

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// AsyncFunc is a blocking operation offloaded to an async worker thread:
// unlike a user Worker, it has no script entry point or scheduler of its
// own — it's a one-shot blocking syscall (or cgo call) run off the main
// scheduler thread so the main loop's cooperative tasks aren't stalled
// behind it.
type AsyncFunc func() (any, error)

// asyncResult is one completed AsyncFunc, carried back to the owning
// Scheduler over its asyncCompletions Ring and matched to the waiting task
// by id.
type asyncResult struct {
	taskID TaskID
	value  any
	err    error
}

// asyncRequest is one pending AsyncFunc submission, carried on the pool's
// shared submission queue to whichever worker thread picks it up next.
type asyncRequest struct {
	taskID TaskID
	fn     AsyncFunc
}

// AsyncPool is a permanent pool of OS threads draining a shared submission
// queue, rate-limiting how fast it ramps new workers up to its cap.
// Uses go-catrate's sliding-window Limiter, repurposed here from its usual
// "calls per category" admission-control role to gate "new async-worker OS
// thread spawned per scheduler" — the same mechanism, applied to thread
// creation instead of request admission, so a task that fires off many
// short-lived async submissions back to back doesn't fork an unbounded
// number of OS threads. Once a worker is spawned it runs for the pool's
// lifetime, pulling requests off sq rather than being recreated per
// submission.
type AsyncPool struct {
	sched     *Scheduler
	spawnRate *catrate.Limiter
	sq        *Ring[asyncRequest]

	mu   sync.Mutex
	live int
	maxN int
}

// NewAsyncPool creates a pool that ramps up to maxThreads workers, at most
// one new one per spawnInterval.
func NewAsyncPool(sched *Scheduler, maxThreads int, spawnInterval time.Duration) *AsyncPool {
	if maxThreads <= 0 {
		maxThreads = runtime.NumCPU()
	}
	return &AsyncPool{
		sched:     sched,
		spawnRate: catrate.NewLimiter(map[time.Duration]int{spawnInterval: 1}),
		sq:        NewRing[asyncRequest](256),
		maxN:      maxThreads,
	}
}

// Submit runs fn asynchronously and resumes the caller (parked in
// TaskWaitAsync) with its result once complete. When the calling task is
// the only live task on its scheduler and no timer is pending, fn runs
// inline on the calling goroutine instead: there is no sibling work it
// could be starving, so paying for a worker-thread round trip buys
// nothing.
func (p *AsyncPool) Submit(c *Context, fn AsyncFunc) (any, error) {
	t := c.task
	s := t.sched

	if s.soleRunnableNoTimers(t) {
		return fn()
	}

	if err := p.sq.Send(c, asyncRequest{taskID: t.ID, fn: fn}); err != nil {
		return nil, err
	}
	p.ensureWorker()

	if err := t.parkAndYield(TaskWaitAsync, nil); err != nil {
		return nil, err
	}
	if t.asyncResult == nil {
		return nil, c.Err()
	}
	r := t.asyncResult
	t.asyncResult = nil
	return r.value, r.err
}

// ensureWorker spawns one more permanent worker if the pool is under its
// cap and the spawn rate limiter admits it; otherwise the submission
// already queued on sq waits for an existing worker to free up.
func (p *AsyncPool) ensureWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live >= p.maxN {
		return
	}
	if _, ok := p.spawnRate.Allow("spawn"); !ok {
		return
	}
	p.live++
	go p.workerLoop()
}

// workerLoop pins a dedicated OS thread and drains sq until it's closed.
func (p *AsyncPool) workerLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
	}()

	for {
		req, err := p.sq.Recv(context.Background())
		if err != nil {
			return
		}
		v, err := req.fn()
		if cloned, cerr := Clone(v); cerr == nil {
			v = cloned
		}
		p.complete(req.taskID, v, err)
	}
}

// complete hands a finished request's result back to the owning
// scheduler's thread over asyncCompletions, then interrupts its poller so
// it notices without waiting out whatever deadline it was blocked on.
func (p *AsyncPool) complete(taskID TaskID, v any, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.sched.asyncCompletions.Send(ctx, asyncResult{taskID: taskID, value: v, err: err})
	p.sched.notes.set(NoteAsyncWork)
	_ = p.sched.poller.Interrupt()
}

// Close shuts down the submission queue; every worker goroutine exits once
// it observes the closed ring, completing or dropping whatever it was
// mid-request on its next Recv.
func (p *AsyncPool) Close() {
	p.sq.Close()
}

// deliverAsyncResult routes a completed asyncResult to the task that's
// waiting on it and wakes it.
func (s *Scheduler) deliverAsyncResult(r asyncResult) {
	t, ok := s.tasks[r.taskID]
	if !ok {
		return
	}
	t.asyncResult = &r
	s.wake(t)
}
