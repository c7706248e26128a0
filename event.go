package intr

import (
	"math/bits"
	"strconv"
	"strings"
)

// EventID identifies a device-style interrupt, or one of the reserved
// software events. Valid ids are in the range [1, MaxEventID).
type EventID uint32

const (
	// EventTerminate stops the delivery context.
	EventTerminate EventID = 1
	// EventSoftIRQ invokes the soft-irq (deferred work) callback.
	EventSoftIRQ EventID = 10
	// EventTimerTick invokes the timer callback.
	EventTimerTick EventID = 14
	// EventIRQBase is the conventional first device id.
	EventIRQBase EventID = 35
	// MaxEventID is the (exclusive) upper bound of valid ids.
	MaxEventID EventID = 64
)

// reservedEvents are never dispatched to bindings.
const reservedEvents = EventSet(1<<EventTerminate | 1<<EventSoftIRQ | 1<<EventTimerTick)

// Valid reports whether x is within [1, MaxEventID).
func (x EventID) Valid() bool { return x != 0 && x < MaxEventID }

// Reserved reports whether x is one of the reserved software events.
func (x EventID) Reserved() bool { return x.Valid() && reservedEvents.Has(x) }

// String implements fmt.Stringer.
func (x EventID) String() string {
	switch x {
	case EventTerminate:
		return "terminate"
	case EventSoftIRQ:
		return "softirq"
	case EventTimerTick:
		return "timer"
	default:
		return "irq" + strconv.FormatUint(uint64(x), 10)
	}
}

// EventSet is a set of event ids, one bit per id.
type EventSet uint64

// Has reports whether id is a member of the set.
func (s EventSet) Has(id EventID) bool {
	return id < MaxEventID && s&(1<<id) != 0
}

// With returns the set with id added. Out of range ids are ignored.
func (s EventSet) With(id EventID) EventSet {
	if id >= MaxEventID {
		return s
	}
	return s | 1<<id
}

// Len returns the number of ids in the set.
func (s EventSet) Len() int { return bits.OnesCount64(uint64(s)) }

// IDs returns the members of the set, in ascending order.
func (s EventSet) IDs() []EventID {
	ids := make([]EventID, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		ids = append(ids, EventID(bits.TrailingZeros64(v)))
	}
	return ids
}

// String implements fmt.Stringer.
func (s EventSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range s.IDs() {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	b.WriteByte('}')
	return b.String()
}

// Flags modifies the behavior of a Binding.
type Flags uint8

const (
	// FlagNone requires the binding to be the only one for its id.
	FlagNone Flags = 0
	// FlagShared allows multiple bindings for the same id, provided all of
	// them are shared.
	FlagShared Flags = 0x0001
)

// Shared reports whether FlagShared is set.
func (f Flags) Shared() bool { return f&FlagShared != 0 }
