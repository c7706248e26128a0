package stack

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-intr"
)

// DeviceStats is a point-in-time copy of a device's counters.
type DeviceStats struct {
	Transmitted uint64
	Received    uint64
	Interrupts  uint64
}

// Device is a simulated network device, with an interrupt line. A dummy
// device discards transmitted frames, raising its irq as a transmit
// completion. A loopback device queues them, and its interrupt handler
// passes them up to the stack.
type Device struct {
	stack *Stack
	name  string

	mu    sync.Mutex
	txq   *queue.Queue
	stats DeviceStats

	irq      intr.EventID
	flags    intr.Flags
	loopback bool
}

// NewDummy returns a device that discards transmitted frames.
func NewDummy(name string, irq intr.EventID, flags intr.Flags) *Device {
	return &Device{name: name, irq: irq, flags: flags}
}

// NewLoopback returns a device that receives the frames it transmits.
func NewLoopback(name string, irq intr.EventID, flags intr.Flags) *Device {
	return &Device{name: name, irq: irq, flags: flags, loopback: true, txq: queue.New()}
}

// Name returns the device name, which is also its handler's binding name.
func (d *Device) Name() string { return d.name }

// IRQ returns the event id the device raises, and is registered for.
func (d *Device) IRQ() intr.EventID { return d.irq }

// Transmit sends a frame, then raises the device's irq.
func (d *Device) Transmit(typ uint16, data []byte) error {
	if d.stack == nil {
		return ErrNotOpen
	}
	ctrl := d.stack.controller()
	if ctrl == nil {
		return ErrNotOpen
	}

	d.mu.Lock()
	d.stats.Transmitted++
	if d.loopback {
		d.txq.Add(Frame{Device: d.name, Type: typ, Data: append([]byte(nil), data...)})
	}
	d.mu.Unlock()

	d.stack.log.Debug().
		Str(`dev`, d.name).
		Int(`type`, int(typ)).
		Int(`len`, len(data)).
		Log(`transmit`)

	return ctrl.RaiseEvent(d.irq)
}

// HandleIRQ implements intr.Handler. For a shared irq, it is invoked
// regardless of which device raised it, and finds nothing to do if its own
// queue is empty.
func (d *Device) HandleIRQ(id intr.EventID, dev any) error {
	d.mu.Lock()
	d.stats.Interrupts++
	var frames []Frame
	if d.loopback {
		for d.txq.Length() != 0 {
			frames = append(frames, d.txq.Remove().(Frame))
		}
		d.stats.Received += uint64(len(frames))
	}
	d.mu.Unlock()

	d.stack.log.Debug().
		Str(`dev`, d.name).
		Stringer(`irq`, id).
		Int(`frames`, len(frames)).
		Log(`irq`)

	for _, f := range frames {
		if err := d.stack.receive(f); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a copy of the device's counters.
func (d *Device) Stats() DeviceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
