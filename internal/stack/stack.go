// Package stack is a minimal simulated protocol stack, driven by the
// interrupt controller. Device interrupt handlers move received frames onto
// the stack's input queue and raise the soft irq, which drains it, and the
// timer tick runs the stack's periodic timers.
package stack

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-intr"
	"github.com/joeycumines/logiface"
)

var (
	// ErrAlreadyOpen is returned by Open, and AddDevice, after Open.
	ErrAlreadyOpen = errors.New("stack: already open")
	// ErrNotOpen is returned when transmitting before Open.
	ErrNotOpen = errors.New("stack: not open")
	// ErrDeviceExists is returned when adding a device with a duplicate name.
	ErrDeviceExists = errors.New("stack: device already exists")
	// ErrProtocolExists is returned when registering a protocol twice.
	ErrProtocolExists = errors.New("stack: protocol already registered")
	// ErrInvalidTimer is returned for a non-positive interval or nil func.
	ErrInvalidTimer = errors.New("stack: invalid timer")
)

// Controller is the subset of *intr.Controller used by the stack.
type Controller interface {
	RequestHandler(id intr.EventID, handler intr.Handler, flags intr.Flags, name string, dev any) error
	RaiseEvent(id intr.EventID) error
	RaiseSoftIRQ() error
}

// Frame is a unit of data received from a device.
type Frame struct {
	Device string
	Data   []byte
	Type   uint16
}

// ProtocolHandler processes a frame, on the delivery context.
type ProtocolHandler func(f Frame)

// Stats is a point-in-time copy of the stack's counters.
type Stats struct {
	Received  uint64
	Processed uint64
	Dropped   uint64
	TimerRuns uint64
	Queued    int
}

type timer struct {
	last     time.Time
	fn       func()
	name     string
	interval time.Duration
}

// Stack is the simulated protocol stack. Use New.
type Stack struct {
	log *logiface.Logger[logiface.Event]
	now func() time.Time

	mu        sync.Mutex
	ctrl      Controller
	opening   bool
	input     *queue.Queue
	protocols map[uint16]ProtocolHandler
	devices   []*Device
	timers    []*timer
	stats     Stats
}

// New returns a stack, which logs to log, if non-nil.
func New(log *logiface.Logger[logiface.Event]) *Stack {
	return &Stack{
		log:       log.Clone().Str(`component`, `stack`).Logger(),
		now:       time.Now,
		input:     queue.New(),
		protocols: make(map[uint16]ProtocolHandler),
	}
}

// ControllerOptions returns the options wiring the stack's soft irq and
// timer callbacks into a controller.
func (s *Stack) ControllerOptions() []intr.Option {
	return []intr.Option{
		intr.WithSoftIRQFunc(s.SoftIRQ),
		intr.WithTimerFunc(s.Tick),
	}
}

// RegisterProtocol registers the handler for frames of the given type.
func (s *Stack) RegisterProtocol(typ uint16, h ProtocolHandler) error {
	if h == nil {
		return fmt.Errorf("stack: nil handler for protocol 0x%04x", typ)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[typ]; ok {
		return fmt.Errorf("%w: 0x%04x", ErrProtocolExists, typ)
	}
	s.protocols[typ] = h
	s.log.Debug().
		Int(`type`, int(typ)).
		Log(`registered protocol`)
	return nil
}

// RegisterTimer registers fn to run, from Tick, every interval.
func (s *Stack) RegisterTimer(name string, interval time.Duration, fn func()) error {
	if interval <= 0 || fn == nil {
		return ErrInvalidTimer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, &timer{
		name:     name,
		interval: interval,
		fn:       fn,
		last:     s.now(),
	})
	s.log.Debug().
		Str(`name`, name).
		Dur(`interval`, interval).
		Log(`registered timer`)
	return nil
}

// AddDevice attaches d to the stack. It must be called before Open.
func (s *Stack) AddDevice(d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil || s.opening {
		return ErrAlreadyOpen
	}
	if d.stack != nil {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.name)
	}
	for _, v := range s.devices {
		if v.name == d.name {
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.name)
		}
	}
	d.stack = s
	s.devices = append(s.devices, d)
	return nil
}

// Devices returns the attached devices.
func (s *Stack) Devices() []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Device(nil), s.devices...)
}

// Open registers each device's interrupt handler with ctrl, which must not
// have been started yet. The stack is open only if every registration
// succeeds. Handlers registered before a failure stay bound to ctrl, which
// has no deregistration, so ctrl should be discarded, and Open retried with
// a new one.
func (s *Stack) Open(ctrl Controller) error {
	s.mu.Lock()
	if s.ctrl != nil || s.opening {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.opening = true
	devices := append([]*Device(nil), s.devices...)
	s.mu.Unlock()

	err := s.open(ctrl, devices)

	s.mu.Lock()
	s.opening = false
	if err == nil {
		s.ctrl = ctrl
	}
	s.mu.Unlock()

	return err
}

func (s *Stack) open(ctrl Controller, devices []*Device) error {
	for _, d := range devices {
		if err := ctrl.RequestHandler(d.irq, d, d.flags, d.name, d); err != nil {
			return fmt.Errorf("stack: device %s: %w", d.name, err)
		}
		s.log.Info().
			Str(`dev`, d.name).
			Stringer(`irq`, d.irq).
			Log(`device opened`)
	}
	return nil
}

func (s *Stack) controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// receive enqueues a frame received by a device, then raises the soft irq.
func (s *Stack) receive(f Frame) error {
	s.mu.Lock()
	ctrl := s.ctrl
	// only possible for a handler left bound by a failed Open
	if ctrl == nil {
		s.mu.Unlock()
		return ErrNotOpen
	}
	s.input.Add(f)
	s.stats.Received++
	s.mu.Unlock()

	s.log.Debug().
		Str(`dev`, f.Device).
		Int(`type`, int(f.Type)).
		Int(`len`, len(f.Data)).
		Log(`input`)

	return ctrl.RaiseSoftIRQ()
}

// SoftIRQ drains the input queue, dispatching each frame to its protocol.
func (s *Stack) SoftIRQ() {
	for {
		s.mu.Lock()
		if s.input.Length() == 0 {
			s.mu.Unlock()
			return
		}
		f := s.input.Remove().(Frame)
		h := s.protocols[f.Type]
		if h == nil {
			s.stats.Dropped++
		}
		s.mu.Unlock()

		if h == nil {
			s.log.Debug().
				Str(`dev`, f.Device).
				Int(`type`, int(f.Type)).
				Log(`unsupported protocol`)
			continue
		}

		h(f)

		s.mu.Lock()
		s.stats.Processed++
		s.mu.Unlock()
	}
}

// Tick runs every timer whose interval has elapsed.
func (s *Stack) Tick() {
	now := s.now()

	var due []*timer
	s.mu.Lock()
	for _, t := range s.timers {
		if now.Sub(t.last) >= t.interval {
			t.last = now
			due = append(due, t)
		}
	}
	s.stats.TimerRuns += uint64(len(due))
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// Stats returns a copy of the stack's counters.
func (s *Stack) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Queued = s.input.Length()
	return stats
}
