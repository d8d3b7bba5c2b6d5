//go:build darwin

package dew

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller over kqueue: EV_CLEAR gives edge-triggered
// semantics (the kqueue
// analogue of epoll's EPOLLET), and a dedicated EVFILT_USER event is used
// to interrupt a blocked kevent call instead of epoll's eventfd trick.
type kqueuePoller struct {
	kq        int
	descs     *descTable
	eventsBuf []unix.Kevent_t
}

const interruptIdent = 0xD0E0 // arbitrary EVFILT_USER identifier

func newPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, WrapErrno("kqueue", err.(syscall.Errno))
	}
	p := &kqueuePoller{kq: kq, descs: newDescTable(), eventsBuf: make([]unix.Kevent_t, 256)}

	reg := unix.Kevent_t{
		Ident:  interruptIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{reg}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, WrapErrno("kevent(add user)", err.(syscall.Errno))
	}
	return p, nil
}

func (p *kqueuePoller) Register(fd int, events PollEvent, waiter any) (*Desc, error) {
	d := p.descs.register(fd, events, waiter)
	changes := kqChanges(fd, events, unix.EV_ADD|unix.EV_CLEAR)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			p.descs.unregister(d)
			return nil, WrapErrno("kevent(add)", err.(syscall.Errno))
		}
	}
	return d, nil
}

func kqChanges(fd int, events PollEvent, flags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if events&PollRead != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&PollWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return changes
}

func (p *kqueuePoller) Rearm(d *Desc, events PollEvent) error {
	// Drop filters no longer wanted, add filters newly wanted.
	var dels []unix.Kevent_t
	if d.events&PollRead != 0 && events&PollRead == 0 {
		dels = append(dels, unix.Kevent_t{Ident: uint64(d.FD), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if d.events&PollWrite != 0 && events&PollWrite == 0 {
		dels = append(dels, unix.Kevent_t{Ident: uint64(d.FD), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if len(dels) > 0 {
		_, _ = unix.Kevent(p.kq, dels, nil, nil)
	}
	adds := kqChanges(d.FD, events&^d.events, unix.EV_ADD|unix.EV_CLEAR)
	d.events = events
	if len(adds) > 0 {
		if _, err := unix.Kevent(p.kq, adds, nil, nil); err != nil {
			return WrapErrno("kevent(rearm)", err.(syscall.Errno))
		}
	}
	return nil
}

func (p *kqueuePoller) Unregister(d *Desc) error {
	dels := kqChanges(d.FD, d.events, unix.EV_DELETE)
	if len(dels) > 0 {
		_, _ = unix.Kevent(p.kq, dels, nil, nil)
	}
	p.descs.unregister(d)
	return nil
}

func (p *kqueuePoller) Interrupt() error {
	trigger := unix.Kevent_t{
		Ident:  interruptIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{trigger}, nil, nil)
	if err != nil {
		return WrapErrno("kevent(trigger)", err.(syscall.Errno))
	}
	return nil
}

func (p *kqueuePoller) Poll(deadline int64, leeway int64) ([]ready, error) {
	var ts *unix.Timespec
	if deadline != NoDeadline {
		now := time.Now().UnixNano()
		d := deadline - now
		if d < 0 {
			d = 0
		}
		sec := d / int64(time.Second)
		nsec := d % int64(time.Second)
		ts = &unix.Timespec{Sec: sec, Nsec: nsec}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventsBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, WrapErrno("kevent(wait)", err.(syscall.Errno))
	}

	var out []ready
	for i := 0; i < n; i++ {
		ev := p.eventsBuf[i]
		if ev.Filter == unix.EVFILT_USER && ev.Ident == interruptIdent {
			continue
		}
		fd := int(ev.Ident)
		d := p.descs.byFd(fd)
		if d == nil {
			continue
		}
		var pe PollEvent
		switch ev.Filter {
		case unix.EVFILT_READ:
			pe = PollRead
		case unix.EVFILT_WRITE:
			pe = PollWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			pe |= PollHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			pe |= PollError
		}
		out = append(out, ready{d: d, events: pe})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
