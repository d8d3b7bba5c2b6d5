package dew

import "sync"

// PollEvent is a readiness bitmask returned by Poller.Poll.
type PollEvent uint32

const (
	PollRead PollEvent = 1 << iota
	PollWrite
	PollError
	PollHangup
)

// Desc is a registered, edge-triggered I/O descriptor. Each registration
// gets a fresh seq from its descTable (cleared to 0 on unregister), so
// descTable.lookup(fd, seq) resolves only the registration that seq was
// issued for. The epoll and kqueue pollers map fired events back to a Desc
// by fd number alone (descTable.byFd) and do not check seq.
type Desc struct {
	FD     int
	seq    uint32
	events PollEvent // mask currently armed
	waiter any       // opaque: the task or worker blocked on this descriptor
}

// ready is one fired event, as returned by Poller.Poll.
type ready struct {
	d      *Desc
	events PollEvent
}

// Poller is the edge-triggered I/O readiness multiplexer. Platform-specific
// implementations (iopoll_linux.go: epoll; iopoll_darwin.go: kqueue) satisfy
// this interface, using an identical edge-triggered design on both
// platforms. Unlike a per-fd-callback-invoked-synchronously-inside-
// Poll design, this runtime batches all fired events and returns them to the
// caller (the Scheduler's run loop) as a single "ready descriptors" batch,
// avoiding re-entrant calls into scheduler state from inside the poller.
type Poller interface {
	// Register arms fd for events, returning a Desc handle.
	Register(fd int, events PollEvent, waiter any) (*Desc, error)
	// Rearm updates the armed event mask for d (edge-triggered pollers must
	// re-arm after each firing to keep receiving events for that mask).
	Rearm(d *Desc, events PollEvent) error
	// Unregister removes d from the poller and clears its seq to 0.
	Unregister(d *Desc) error
	// Poll blocks up to deadline (absolute ns, NoDeadline = forever) for at
	// least one ready descriptor and returns the batch. leeway is accepted
	// as a coalescing hint; the epoll and kqueue backends do not use it.
	// Interrupt unblocks a concurrent Poll call early.
	Poll(deadline int64, leeway int64) ([]ready, error)
	// Interrupt wakes a blocked Poll call from another goroutine/thread.
	Interrupt() error
	// Close releases the poller's OS resources.
	Close() error
}

// descTable is the shared seq-stamped fd->Desc registry used by both
// platform pollers: a generation counter avoids a second map lookup keyed
// by seq, since the Desc itself carries its own current seq, which lookup
// compares against the seq it is given. The pollers resolve fired events
// with byFd instead, since the kernel events they read carry only the fd.
type descTable struct {
	mu   sync.Mutex
	byFD map[int]*Desc
	next uint32
}

func newDescTable() *descTable {
	return &descTable{byFD: make(map[int]*Desc)}
}

func (t *descTable) register(fd int, events PollEvent, waiter any) *Desc {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	d := &Desc{FD: fd, seq: t.next, events: events, waiter: waiter}
	t.byFD[fd] = d
	return d
}

func (t *descTable) unregister(d *Desc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.byFD[d.FD]; ok && cur == d {
		delete(t.byFD, d.FD)
	}
	d.seq = 0
}

func (t *descTable) lookup(fd int, seq uint32) *Desc {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byFD[fd]
	if !ok || d.seq != seq {
		return nil
	}
	return d
}

// byFd returns the Desc currently registered for fd, or nil. Used by
// platform pollers whose fired-event struct carries only the fd, not a
// generation tag.
func (t *descTable) byFd(fd int) *Desc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byFD[fd]
}
