//go:build !linux

package intr

import (
	"sync"
	"sync/atomic"
	"time"
)

// poller is the wait primitive (non-Linux), a single-slot channel, with a
// runtime timer as the timer source.
type poller struct {
	wakeCh chan struct{}
	timer  *time.Timer
	mu     sync.Mutex
	tick   atomic.Bool
	closed bool
}

func newPoller() (*poller, error) {
	return &poller{wakeCh: make(chan struct{}, 1)}, nil
}

// armTimer creates the timer source. It must be called at most once, from the
// delivery context.
func (p *poller) armTimer(initial, interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer = time.AfterFunc(initial, func() {
		p.tick.Store(true)
		_ = p.wake()
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.closed {
			p.timer.Reset(interval)
		}
	})
	return nil
}

// wait blocks until woken, or the timer expires, reporting the latter.
func (p *poller) wait() (bool, error) {
	<-p.wakeCh
	return p.tick.Swap(false), nil
}

// wake interrupts wait. Safe to call from any goroutine, until close.
func (p *poller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *poller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return nil
}
