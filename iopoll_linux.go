//go:build linux

package dew

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller over epoll: edge-triggered (EPOLLET)
// registration, an eventfd used
// purely to interrupt a blocked epoll_wait, and the shared descTable to map
// a fired fd number back to its current Desc (the Desc's seq is not
// checked).
type epollPoller struct {
	epfd      int
	evfd      int
	descs     *descTable
	eventsBuf []unix.EpollEvent
}

func newPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, WrapErrno("epoll_create1", err.(syscall.Errno))
	}
	evfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, WrapErrno("eventfd", err.(syscall.Errno))
	}
	p := &epollPoller{
		epfd:      epfd,
		evfd:      evfd,
		descs:     newDescTable(),
		eventsBuf: make([]unix.EpollEvent, 256),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, evfd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(evfd),
	}); err != nil {
		unix.Close(epfd)
		unix.Close(evfd)
		return nil, WrapErrno("epoll_ctl(evfd)", err.(syscall.Errno))
	}
	return p, nil
}

func toEpollEvents(e PollEvent) uint32 {
	var m uint32 = unix.EPOLLET
	if e&PollRead != 0 {
		m |= unix.EPOLLIN
	}
	if e&PollWrite != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func fromEpollEvents(m uint32) PollEvent {
	var e PollEvent
	if m&unix.EPOLLIN != 0 {
		e |= PollRead
	}
	if m&unix.EPOLLOUT != 0 {
		e |= PollWrite
	}
	if m&unix.EPOLLERR != 0 {
		e |= PollError
	}
	if m&unix.EPOLLHUP != 0 {
		e |= PollHangup
	}
	return e
}

func (p *epollPoller) Register(fd int, events PollEvent, waiter any) (*Desc, error) {
	d := p.descs.register(fd, events, waiter)
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.descs.unregister(d)
		return nil, WrapErrno("epoll_ctl(add)", err.(syscall.Errno))
	}
	return d, nil
}

func (p *epollPoller) Rearm(d *Desc, events PollEvent) error {
	d.events = events
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(d.FD)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, d.FD, &ev); err != nil {
		return WrapErrno("epoll_ctl(mod)", err.(syscall.Errno))
	}
	return nil
}

func (p *epollPoller) Unregister(d *Desc) error {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, d.FD, nil)
	p.descs.unregister(d)
	return nil
}

func (p *epollPoller) Interrupt() error {
	one := uint64(1)
	buf := (*(*[8]byte)(unsafe.Pointer(&one)))[:]
	_, err := unix.Write(p.evfd, buf)
	if err != nil && err != unix.EAGAIN {
		return WrapErrno("eventfd_write", err.(syscall.Errno))
	}
	return nil
}

func (p *epollPoller) Poll(deadline int64, leeway int64) ([]ready, error) {
	timeoutMS := -1
	if deadline != NoDeadline {
		now := time.Now().UnixNano()
		d := deadline - now
		if d < 0 {
			d = 0
		}
		timeoutMS = int(d / int64(time.Millisecond))
	}

	n, err := unix.EpollWait(p.epfd, p.eventsBuf, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, WrapErrno("epoll_wait", err.(syscall.Errno))
	}

	var out []ready
	for i := 0; i < n; i++ {
		ev := p.eventsBuf[i]
		fd := int(ev.Fd)
		if fd == p.evfd {
			var buf [8]byte
			_, _ = unix.Read(p.evfd, buf[:])
			continue
		}
		d := p.descs.byFd(fd)
		if d == nil {
			continue
		}
		out = append(out, ready{d: d, events: fromEpollEvents(ev.Events)})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	unix.Close(p.evfd)
	return unix.Close(p.epfd)
}

