package intr

import (
	"math/bits"
	"sync/atomic"
)

// pendingSet holds the ids that have been raised, but not yet consumed by the
// delivery context. Raising an id that is already pending is a no-op, which
// matches the coalescing behavior of signal delivery.
type pendingSet struct {
	v atomic.Uint64
}

// add marks id as pending, returning false if it already was.
func (p *pendingSet) add(id EventID) bool {
	bit := uint64(1) << id
	return p.v.Or(bit)&bit == 0
}

// take removes and returns the lowest pending id within mask.
func (p *pendingSet) take(mask EventSet) (EventID, bool) {
	for {
		m := p.v.Load() & uint64(mask)
		if m == 0 {
			return 0, false
		}
		bit := m & -m
		if p.v.And(^bit)&bit != 0 {
			return EventID(bits.TrailingZeros64(bit)), true
		}
	}
}

// snapshot returns the pending ids, without consuming them.
func (p *pendingSet) snapshot() EventSet {
	return EventSet(p.v.Load())
}
