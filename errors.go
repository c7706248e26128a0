package intr

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrRegistrationConflict is returned when registering a binding for an id
	// that already has one, unless both are FlagShared.
	ErrRegistrationConflict = errors.New("intr: conflicts with already registered handlers")

	// ErrReservedEvent is returned when registering a handler for a reserved id.
	ErrReservedEvent = errors.New("intr: event id is reserved")

	// ErrEventOutOfRange is returned for ids outside [1, MaxEventID).
	ErrEventOutOfRange = errors.New("intr: event id out of range")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("intr: nil handler")

	// ErrRegistrySealed is returned when the registry is modified, or sealed,
	// after it has been sealed.
	ErrRegistrySealed = errors.New("intr: registry is sealed")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("intr: controller already started")

	// ErrReentrantRun is returned when Run is called from the delivery context.
	ErrReentrantRun = errors.New("intr: cannot call Run from the delivery context")

	// ErrNotRunning is returned when raising events without a delivery context.
	ErrNotRunning = errors.New("intr: delivery context is not running")

	// ErrContextCreate indicates the delivery context could not be created.
	ErrContextCreate = errors.New("intr: delivery context creation failed")

	// ErrRaise indicates the delivery context could not be woken.
	ErrRaise = errors.New("intr: raise failed")

	// ErrTimerSetup indicates the timer source could not be created.
	ErrTimerSetup = errors.New("intr: timer setup failed")

	// ErrWait indicates the blocking wait for events failed.
	ErrWait = errors.New("intr: wait failed")

	// ErrInvalidTimer is returned for non-positive timer durations.
	ErrInvalidTimer = errors.New("intr: invalid timer configuration")
)

// ContextError reports a failure of the delivery context, or of the
// underlying OS primitive used to wake it.
type ContextError struct {
	// Kind is one of the package sentinels, e.g. ErrWait.
	Kind error
	// Err is the underlying cause, typically a syscall error.
	Err error
	// Op is the operation that failed, e.g. "create", "wait", "timer", or
	// "raise".
	Op string
	// Event is set for "raise" failures.
	Event EventID
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	msg := "intr: " + e.Op
	if e.Event != 0 {
		msg += " " + e.Event.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns both the kind and the cause, for use with [errors.Is] and
// [errors.As].
func (e *ContextError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// HandlerPanicError wraps a value recovered from a panicking handler.
type HandlerPanicError struct {
	Value any
	Name  string
	Event EventID
}

// Error implements the error interface.
func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("intr: handler %q for %s panicked: %v", e.Name, e.Event, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *HandlerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
