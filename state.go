package dew

import "sync/atomic"

// TaskStatus is one of the states in the task lifecycle.
type TaskStatus uint32

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaitIO
	TaskWaitSend
	TaskWaitRecv
	TaskWaitTask
	TaskWaitWorker
	TaskWaitAsync
	TaskDead
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "READY"
	case TaskRunning:
		return "RUNNING"
	case TaskWaitIO:
		return "WAIT_IO"
	case TaskWaitSend:
		return "WAIT_SEND"
	case TaskWaitRecv:
		return "WAIT_RECV"
	case TaskWaitTask:
		return "WAIT_TASK"
	case TaskWaitWorker:
		return "WAIT_WORKER"
	case TaskWaitAsync:
		return "WAIT_ASYNC"
	case TaskDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Note bits set by a worker (or the owning thread's signal handler) to
// request attention from the owning scheduler.
type Note uint32

const (
	NoteWExit     Note = 1 << iota // a spawned worker's scheduler exited
	NoteAsyncWork                  // the async completion channel has entries
	NoteExternal                   // the external inbound ring has entries
)

// notes is a lock-free atomic bitset: a setter's store happens-before its
// poller interrupt, and the owning thread clears bits with a CAS loop that
// tolerates concurrent additions (picked up on the next loop iteration).
// Pure atomic value, no mutex; it is an ordinary Scheduler field, not
// padded onto a cache line of its own.
type notes struct {
	bits atomic.Uint32
}

// set ORs in b; safe to call from any goroutine (worker threads, signal
// handlers).
func (n *notes) set(b Note) {
	n.bits.Or(uint32(b))
}

// take atomically reads and clears the full bitset, returning what was set.
// Only the owning scheduler thread calls this.
func (n *notes) take() Note {
	for {
		old := n.bits.Load()
		if old == 0 {
			return 0
		}
		if n.bits.CompareAndSwap(old, 0) {
			return Note(old)
		}
	}
}

// WorkerStatus is the lifecycle of a spawned user worker.
type WorkerStatus uint32

const (
	WorkerOpen WorkerStatus = iota
	WorkerReady
	WorkerClosed
)

// atomicWorkerStatus is a minimal CAS-only state cell, a TryTransition
// pattern scoped to the three-value worker lifecycle rather than a larger
// loop lifecycle.
type atomicWorkerStatus struct {
	v atomic.Uint32
}

func newAtomicWorkerStatus(initial WorkerStatus) *atomicWorkerStatus {
	s := &atomicWorkerStatus{}
	s.v.Store(uint32(initial))
	return s
}

func (s *atomicWorkerStatus) Load() WorkerStatus {
	return WorkerStatus(s.v.Load())
}

func (s *atomicWorkerStatus) TryTransition(from, to WorkerStatus) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
