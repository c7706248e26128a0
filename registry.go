package intr

import (
	"sync"
	"unicode/utf8"
)

// MaxNameLen is the maximum length, in bytes, of a binding's name. Longer
// names are truncated.
const MaxNameLen = 15

// Handler services an interrupt. A non-nil error indicates the handler
// failed, which is logged, but otherwise has no effect on delivery.
type Handler interface {
	HandleIRQ(id EventID, dev any) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(id EventID, dev any) error

// HandleIRQ implements Handler.
func (f HandlerFunc) HandleIRQ(id EventID, dev any) error { return f(id, dev) }

// Binding associates an event id with the handler that services it.
type Binding struct {
	Handler Handler
	Device  any
	Name    string
	ID      EventID
	Flags   Flags
}

// Registry accumulates bindings prior to Run. It is safe for concurrent use,
// but it may only be modified until it is sealed.
type Registry struct {
	// most recently registered first
	bindings []Binding
	mu       sync.Mutex
	events   EventSet
	sealed   bool
}

// NewRegistry returns an empty registry, with its event mapping seeded with
// the reserved ids.
func NewRegistry() *Registry {
	return &Registry{events: reservedEvents}
}

// Register adds a binding for id. It fails with ErrRegistrationConflict,
// without modifying the registry, if a binding for id exists and either it or
// the new binding is not FlagShared.
func (r *Registry) Register(id EventID, handler Handler, flags Flags, name string, dev any) error {
	switch {
	case !id.Valid():
		return ErrEventOutOfRange
	case id.Reserved():
		return ErrReservedEvent
	case handler == nil:
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}

	for _, b := range r.bindings {
		if b.ID == id && (!b.Flags.Shared() || !flags.Shared()) {
			return ErrRegistrationConflict
		}
	}

	r.bindings = append(r.bindings, Binding{})
	copy(r.bindings[1:], r.bindings)
	r.bindings[0] = Binding{
		Handler: handler,
		Device:  dev,
		Name:    truncateName(name),
		ID:      id,
		Flags:   flags,
	}
	r.events = r.events.With(id)

	return nil
}

// Bindings returns a copy of the registered bindings, in dispatch order.
func (r *Registry) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Binding(nil), r.bindings...)
}

// Events returns the current event mapping, including the reserved ids.
func (r *Registry) Events() EventSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// Seal freezes the registry, returning an immutable snapshot. It succeeds
// exactly once.
func (r *Registry) Seal() (*SealedRegistry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, ErrRegistrySealed
	}
	r.sealed = true

	s := &SealedRegistry{events: r.events, len: len(r.bindings)}
	for _, b := range r.bindings {
		s.byID[b.ID] = append(s.byID[b.ID], b)
	}
	return s, nil
}

// SealedRegistry is the read-only form of a Registry, used for dispatch.
type SealedRegistry struct {
	byID   [MaxEventID][]Binding
	len    int
	events EventSet
}

// Lookup returns the bindings for id, in dispatch order. The returned slice
// must not be modified.
func (s *SealedRegistry) Lookup(id EventID) []Binding {
	if s == nil || id >= MaxEventID {
		return nil
	}
	return s.byID[id]
}

// Events returns the frozen event mapping.
func (s *SealedRegistry) Events() EventSet {
	if s == nil {
		return 0
	}
	return s.events
}

// Len returns the number of bindings.
func (s *SealedRegistry) Len() int {
	if s == nil {
		return 0
	}
	return s.len
}

// truncateName limits name to MaxNameLen bytes, without splitting a rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	n := MaxNameLen
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}
