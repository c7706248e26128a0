//go:build linux

package intr

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// poller is the wait primitive (Linux), an epoll instance watching an eventfd,
// written by raise, and a timerfd, the timer source.
type poller struct {
	events  [2]unix.EpollEvent
	buf     [8]byte
	epfd    int
	wakefd  int
	timerfd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	p := &poller{epfd: epfd, wakefd: wakefd, timerfd: -1}

	if err := p.watch(wakefd); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

func (p *poller) watch(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
}

// armTimer creates the timer source. It must be called at most once, from the
// delivery context.
func (p *poller) armTimer(initial, interval time.Duration) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return err
	}

	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(interval)),
		Value:    unix.NsecToTimespec(int64(initial)),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return err
	}

	if err := p.watch(fd); err != nil {
		_ = unix.Close(fd)
		return err
	}

	p.timerfd = fd
	return nil
}

// wait blocks until woken, or the timer expires, reporting the latter.
func (p *poller) wait() (tick bool, err error) {
	n, err := unix.EpollWait(p.epfd, p.events[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}

	for i := 0; i < n; i++ {
		switch int(p.events[i].Fd) {
		case p.wakefd:
			p.drain(p.wakefd)
		case p.timerfd:
			if p.drain(p.timerfd) != 0 {
				tick = true
			}
		}
	}

	return tick, nil
}

// drain reads the 8 byte counter from an eventfd or timerfd.
func (p *poller) drain(fd int) uint64 {
	if n, err := unix.Read(fd, p.buf[:]); err != nil || n != len(p.buf) {
		return 0
	}
	return binary.NativeEndian.Uint64(p.buf[:])
}

// wake interrupts wait. Safe to call from any goroutine, until close.
func (p *poller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(p.wakefd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN means the counter is saturated, so a wake is already pending
			return nil
		case unix.EINTR:
			continue
		default:
			return err
		}
	}
}

func (p *poller) close() error {
	var err error
	if p.timerfd >= 0 {
		err = unix.Close(p.timerfd)
		p.timerfd = -1
	}
	if e := unix.Close(p.wakefd); err == nil {
		err = e
	}
	if e := unix.Close(p.epfd); err == nil {
		err = e
	}
	return err
}
