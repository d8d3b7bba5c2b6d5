package dew

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Ring is a bounded MPMC channel of opaque values, used for cross-thread
// transport (worker submission/completion queues, async worker SQ/CQ). It
// uses a two-phase begin/commit protocol on both ends: a writer claims a
// slot with an atomic fetch-add, copies its payload in without holding any
// lock across the copy, then publishes by spin-waiting for wTail to reach
// its claimed slot before advancing it — and symmetrically for the reader.
// The ring channel and the notes bitset (state.go) are the only lock-free
// shared data in this runtime; everything else is scheduler-local.
//
// Grounded on catrate's token-bucket use of golang.org/x/sync/
// semaphore.Weighted for admission control, applied here to gate slot
// acquisition on both the producer and consumer sides of a bounded ring
// instead of a rate limiter.
type Ring[T any] struct {
	buf  []T
	mask uint64

	wsem *semaphore.Weighted // slots free to write into
	rsem *semaphore.Weighted // slots ready to read

	wHead, wTail atomic.Uint64
	rHead, rTail atomic.Uint64

	closed atomic.Bool
}

// NewRing creates a Ring with the given power-of-two capacity.
func NewRing[T any](capacity int) *Ring[T] {
	cap64 := uint64(roundPow2(capacity))
	// Both semaphores get 2*cap of headroom held from the start (rsem also
	// holds every slot, since nothing is readable yet), so Close's bulk
	// Release of 2*cap never exceeds what is held.
	size := int64(cap64) * 3
	r := &Ring[T]{
		buf:  make([]T, cap64),
		mask: cap64 - 1,
		wsem: semaphore.NewWeighted(size),
		rsem: semaphore.NewWeighted(size),
	}
	r.wsem.TryAcquire(size - int64(cap64))
	r.rsem.TryAcquire(size)
	return r
}

// Close unblocks every pending Send/Recv with ErrRingClosed. Idempotent.
func (r *Ring[T]) Close() {
	if r.closed.CompareAndSwap(false, true) {
		// Release generously: any amount large enough to unblock every
		// blocked Acquire, since semaphore.Weighted has no broadcast-cancel
		// primitive of its own.
		r.wsem.Release(int64(len(r.buf)) * 2)
		r.rsem.Release(int64(len(r.buf)) * 2)
	}
}

// ErrRingClosed is returned by Send/Recv once the ring has been closed.
var ErrRingClosed = NewError("ring", CodeCanceled, nil)

// commitWrite claims slot, writes v, then spins until wTail catches up to
// slot before publishing wTail = slot+1. The spin only contends against
// other committing producers, never against readers (who wait on rsem).
func (r *Ring[T]) commitWrite(slot uint64, v T) {
	r.buf[slot&r.mask] = v
	for !r.wTail.CompareAndSwap(slot, slot+1) {
		runtime.Gosched()
	}
}

func (r *Ring[T]) commitRead(slot uint64) T {
	v := r.buf[slot&r.mask]
	var zero T
	r.buf[slot&r.mask] = zero
	for !r.rTail.CompareAndSwap(slot, slot+1) {
		runtime.Gosched()
	}
	return v
}

// Send blocks until a slot is free (or ctx is done / the ring is closed),
// writes v, and publishes it to readers.
func (r *Ring[T]) Send(ctx context.Context, v T) error {
	if r.closed.Load() {
		return ErrRingClosed
	}
	if err := r.wsem.Acquire(ctx, 1); err != nil {
		return err
	}
	if r.closed.Load() {
		return ErrRingClosed
	}
	slot := r.wHead.Add(1) - 1
	r.commitWrite(slot, v)
	r.rsem.Release(1)
	return nil
}

// TrySend attempts a non-blocking send; returns false if the ring is full.
func (r *Ring[T]) TrySend(v T) bool {
	if r.closed.Load() {
		return false
	}
	if !r.wsem.TryAcquire(1) {
		return false
	}
	slot := r.wHead.Add(1) - 1
	r.commitWrite(slot, v)
	r.rsem.Release(1)
	return true
}

// Recv blocks until a value is available (or ctx is done / the ring is
// closed and drained), removing and returning it.
func (r *Ring[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if err := r.rsem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	if r.closed.Load() {
		// Distinguish a genuine queued value from the bulk release Close
		// issues to unstick waiters: if wTail hasn't advanced past rHead,
		// nothing was actually published.
		if r.rHead.Load() >= r.wTail.Load() {
			return zero, ErrRingClosed
		}
	}
	slot := r.rHead.Add(1) - 1
	v := r.commitRead(slot)
	r.wsem.Release(1)
	return v, nil
}

// TryRecv attempts a non-blocking receive.
func (r *Ring[T]) TryRecv() (T, bool) {
	var zero T
	if !r.rsem.TryAcquire(1) {
		return zero, false
	}
	slot := r.rHead.Add(1) - 1
	v := r.commitRead(slot)
	r.wsem.Release(1)
	return v, true
}

// Len reports a snapshot count of published, unconsumed entries.
func (r *Ring[T]) Len() int {
	return int(r.wTail.Load() - r.rHead.Load())
}
