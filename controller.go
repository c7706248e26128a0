// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package intr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// controllerTestHooks provides injection points for deterministic failure
// testing. A non-nil error from any hook is treated as a failure of the
// corresponding OS primitive.
type controllerTestHooks struct {
	PreCreate   func() error // Called before the wait primitive is created
	PreArmTimer func() error // Called before the timer source is armed
	PreWait     func() error // Called before each blocking wait
}

// Controller is the lifecycle controller for a single delivery context.
//
// A Controller is used in three phases, register (RequestHandler), Run, then
// Shutdown. RaiseEvent may be called at any time after Run returns.
type Controller struct {
	// Prevent copying
	_ [0]func()

	registry *Registry
	log      *logiface.Logger[logiface.Event]

	// nil if rate limiting is disabled
	errLimiter *catrate.Limiter

	timerFunc   func()
	softIRQFunc func()

	testHooks *controllerTestHooks

	// set by Run, under mu, read-only afterward
	sealed *SealedRegistry
	poller *poller
	events EventSet

	// closed by the delivery context once it can observe events
	ready chan struct{}
	// closed once the delivery context has stopped, or Run failed
	done chan struct{}
	// written prior to closing done
	err error

	// mu guards open, and serialises raise with closing the poller
	mu   sync.RWMutex
	open bool

	state   stateMachine
	pending pendingSet
	stats   stats

	goroutineID atomic.Uint64

	timerInitial  time.Duration
	timerInterval time.Duration
}

// New creates a Controller, with its event mapping seeded with the reserved
// ids. No delivery context exists until Run is called.
func New(opts ...Option) (*Controller, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	limiter, err := newErrorLimiter(cfg.handlerErrorRates)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		registry:      NewRegistry(),
		log:           cfg.logger.Clone().Str(`component`, `intr`).Logger(),
		errLimiter:    limiter,
		timerFunc:     cfg.timerFunc,
		softIRQFunc:   cfg.softIRQFunc,
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
		timerInitial:  cfg.timerInitial,
		timerInterval: cfg.timerInterval,
	}

	return c, nil
}

// RequestHandler registers handler for id, see Registry.Register. It must be
// called before Run, after which it fails with ErrRegistrySealed.
func (c *Controller) RequestHandler(id EventID, handler Handler, flags Flags, name string, dev any) error {
	c.log.Debug().
		Uint64(`irq`, uint64(id)).
		Int(`flags`, int(flags)).
		Str(`name`, name).
		Log(`request handler`)

	if err := c.registry.Register(id, handler, flags, name, dev); err != nil {
		c.log.Err().
			Err(err).
			Uint64(`irq`, uint64(id)).
			Str(`name`, name).
			Log(`request handler failed`)
		return err
	}

	c.log.Debug().
		Uint64(`irq`, uint64(id)).
		Str(`name`, truncateName(name)).
		Log(`registered`)

	return nil
}

// Run seals the registry, starts the delivery context, and blocks until it is
// ready to observe events, with its timer source armed, and State reporting
// StateRunning. On failure, no delivery context is left running, and the
// controller is stopped.
//
// A failure to arm the timer source happens on the delivery context, after
// it was created, so Run returns nil, and the failure is reported by Err,
// once Done is closed.
func (c *Controller) Run() error {
	if c.isDeliveryContext() {
		return ErrReentrantRun
	}

	if !c.state.TryTransition(StateCreated, StateWaitingForStart) {
		return ErrAlreadyRunning
	}

	sealed, err := c.registry.Seal()
	if err != nil {
		return c.abort(err)
	}

	if hook := c.testHooks; hook != nil && hook.PreCreate != nil {
		err = hook.PreCreate()
	}
	var p *poller
	if err == nil {
		p, err = newPoller()
	}
	if err != nil {
		return c.abort(&ContextError{Kind: ErrContextCreate, Op: `create`, Err: err})
	}

	c.mu.Lock()
	c.sealed = sealed
	c.poller = p
	c.events = sealed.Events()
	c.open = true
	c.mu.Unlock()

	go c.deliver()

	<-c.ready

	c.log.Debug().
		Stringer(`events`, c.events).
		Int(`handlers`, sealed.Len()).
		Log(`running`)

	return nil
}

// abort stops a controller that failed to start.
func (c *Controller) abort(err error) error {
	c.err = err
	c.state.Store(StateStopped)
	close(c.done)
	c.log.Err().
		Err(err).
		Log(`run failed`)
	return err
}

// RaiseEvent marks id as pending, waking the delivery context. It does not
// wait for the event to be dispatched. Ids outside the event mapping are
// discarded, and raising an id that is already pending has no effect.
func (c *Controller) RaiseEvent(id EventID) error {
	if !id.Valid() {
		return ErrEventOutOfRange
	}
	return c.raise(id, true)
}

// RaiseSoftIRQ is an alias for RaiseEvent(EventSoftIRQ).
func (c *Controller) RaiseSoftIRQ() error {
	return c.raise(EventSoftIRQ, true)
}

// raise marks id as pending, and wakes the delivery context. Only raises on
// behalf of callers are counted, see Stats.
func (c *Controller) raise(id EventID, counted bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.open {
		return ErrNotRunning
	}

	if !c.events.Has(id) {
		c.stats.unmapped.Add(1)
		c.log.Debug().
			Uint64(`irq`, uint64(id)).
			Log(`raise of unmapped event discarded`)
		return nil
	}

	if counted {
		c.stats.raised.Add(1)
	}

	if !c.pending.add(id) {
		if counted {
			c.stats.coalesced.Add(1)
		}
		return nil
	}

	if err := c.poller.wake(); err != nil {
		return &ContextError{Kind: ErrRaise, Op: `raise`, Event: id, Err: err}
	}

	return nil
}

// Shutdown raises EventTerminate, then blocks until the delivery context has
// stopped, or ctx is done. It is a no-op if Run was never called, and may be
// called more than once. Called from the delivery context (e.g. a handler),
// it requests termination without waiting.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.state.Load() == StateCreated {
		return nil
	}

	if err := c.raise(EventTerminate, false); err != nil && err != ErrNotRunning {
		return err
	}

	if c.isDeliveryContext() {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the delivery context has
// stopped, or Run has failed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the delivery context, or that caused Run
// to fail. It returns nil until Done is closed, and after a clean shutdown.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state.Load()
}

// Events returns the event mapping, which is frozen once Run is called.
func (c *Controller) Events() EventSet {
	c.mu.RLock()
	sealed := c.sealed
	c.mu.RUnlock()
	if sealed != nil {
		return sealed.Events()
	}
	return c.registry.Events()
}

// Bindings returns the registered bindings, in dispatch order.
func (c *Controller) Bindings() []Binding {
	return c.registry.Bindings()
}

// Stats returns a copy of the controller's counters.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

// isDeliveryContext checks if we're on the delivery goroutine.
func (c *Controller) isDeliveryContext() bool {
	id := c.goroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}
