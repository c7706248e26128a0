package intr

import (
	"sync/atomic"
)

// Stats is a point-in-time copy of a Controller's counters.
type Stats struct {
	// Raised counts ids accepted by RaiseEvent and RaiseSoftIRQ (including
	// coalesced raises). The terminate raised by Shutdown is not counted.
	Raised uint64
	// Coalesced counts raises, counted by Raised, of ids that were already
	// pending.
	Coalesced uint64
	// Unmapped counts raises of ids outside the event mapping, which are
	// discarded.
	Unmapped uint64
	// Delivered counts ids consumed by the delivery context.
	Delivered uint64
	// Dispatched counts handler invocations.
	Dispatched uint64
	// Dropped counts delivered ids with no binding.
	Dropped uint64
	// HandlerErrors counts handlers that returned an error or panicked.
	HandlerErrors uint64
	// Ticks counts timer callback invocations.
	Ticks uint64
	// SoftIRQs counts soft-irq callback invocations.
	SoftIRQs uint64
}

type stats struct {
	raised        atomic.Uint64
	coalesced     atomic.Uint64
	unmapped      atomic.Uint64
	delivered     atomic.Uint64
	dispatched    atomic.Uint64
	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
	ticks         atomic.Uint64
	softIRQs      atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Raised:        s.raised.Load(),
		Coalesced:     s.coalesced.Load(),
		Unmapped:      s.unmapped.Load(),
		Delivered:     s.delivered.Load(),
		Dispatched:    s.dispatched.Load(),
		Dropped:       s.dropped.Load(),
		HandlerErrors: s.handlerErrors.Load(),
		Ticks:         s.ticks.Load(),
		SoftIRQs:      s.softIRQs.Load(),
	}
}
