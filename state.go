package intr

import (
	"sync/atomic"
)

// State is the lifecycle state of the delivery context.
//
// State Machine:
//
//	StateCreated → StateWaitingForStart      [Run()]
//	StateCreated → StateStopped              [Run() failed to create the context]
//	StateWaitingForStart → StateRunning      [timer source armed]
//	StateWaitingForStart → StateStopped      [timer setup failed]
//	StateRunning → StateTerminating          [terminate observed]
//	StateRunning → StateStopped              [wait failed]
//	StateTerminating → StateStopped          [context exited]
//	StateStopped → (terminal)
type State uint32

const (
	// StateCreated indicates no delivery context has been created.
	StateCreated State = iota
	// StateWaitingForStart indicates the context exists, but has not yet
	// armed its timer source.
	StateWaitingForStart
	// StateRunning indicates the context is dispatching events.
	StateRunning
	// StateTerminating indicates terminate was observed.
	StateTerminating
	// StateStopped indicates the context has exited, or was never created
	// because Run failed.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateWaitingForStart:
		return "WaitingForStart"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// stateMachine is a lock-free holder for State.
type stateMachine struct {
	v atomic.Uint32
}

func (s *stateMachine) Load() State {
	return State(s.v.Load())
}

// Store is for irreversible transitions (StateStopped) only.
func (s *stateMachine) Store(state State) {
	s.v.Store(uint32(state))
}

func (s *stateMachine) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
