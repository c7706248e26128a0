package intr

import (
	"runtime"
)

// deliver is the delivery context goroutine.
func (c *Controller) deliver() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.goroutineID.Store(getGoroutineID())
	defer c.goroutineID.Store(0)

	var err error
	defer func() { c.stop(err) }()

	c.log.Debug().Log(`start...`)

	err = c.armTimer()
	if err == nil {
		c.state.TryTransition(StateWaitingForStart, StateRunning)
	}

	// rendezvous with Run, which must also be released on failure
	close(c.ready)

	if err != nil {
		return
	}

	err = c.loop()
}

func (c *Controller) armTimer() error {
	var err error
	if hook := c.testHooks; hook != nil && hook.PreArmTimer != nil {
		err = hook.PreArmTimer()
	}
	if err == nil {
		err = c.poller.armTimer(c.timerInitial, c.timerInterval)
	}
	if err != nil {
		return &ContextError{Kind: ErrTimerSetup, Op: `timer`, Err: err}
	}
	return nil
}

// loop consumes exactly one event per iteration, until terminate, or an error.
func (c *Controller) loop() error {
	for {
		id, err := c.next()
		if err != nil {
			return err
		}

		c.stats.delivered.Add(1)

		switch id {
		case EventTerminate:
			c.state.TryTransition(StateRunning, StateTerminating)
			return nil

		case EventTimerTick:
			c.stats.ticks.Add(1)
			c.call(id, c.timerFunc)

		case EventSoftIRQ:
			c.stats.softIRQs.Add(1)
			c.call(id, c.softIRQFunc)

		default:
			c.dispatch(id)
		}
	}
}

// next blocks until an id within the event mapping is pending, and takes it.
func (c *Controller) next() (EventID, error) {
	for {
		if id, ok := c.pending.take(c.events); ok {
			return id, nil
		}

		var err error
		if hook := c.testHooks; hook != nil && hook.PreWait != nil {
			err = hook.PreWait()
		}

		var tick bool
		if err == nil {
			tick, err = c.poller.wait()
		}
		if err != nil {
			return 0, &ContextError{Kind: ErrWait, Op: `wait`, Err: err}
		}

		if tick {
			c.pending.add(EventTimerTick)
		}
	}
}

// dispatch invokes every binding for id, in registry order.
func (c *Controller) dispatch(id EventID) {
	bindings := c.sealed.Lookup(id)
	if len(bindings) == 0 {
		c.stats.dropped.Add(1)
		return
	}

	for i := range bindings {
		b := &bindings[i]

		c.log.Debug().
			Uint64(`irq`, uint64(b.ID)).
			Str(`name`, b.Name).
			Log(`dispatch`)

		c.stats.dispatched.Add(1)

		if err := c.invoke(b); err != nil {
			c.logHandlerError(b, err)
		}
	}
}

// invoke calls the handler, converting a panic to an error.
func (c *Controller) invoke(b *Binding) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r, Name: b.Name, Event: b.ID}
		}
	}()
	return b.Handler.HandleIRQ(b.ID, b.Device)
}

// call executes a software event callback with panic recovery.
func (c *Controller) call(id EventID, fn func()) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.stats.handlerErrors.Add(1)
			c.log.Err().
				Err(&HandlerPanicError{Value: r, Name: id.String(), Event: id}).
				Log(`callback panicked`)
		}
	}()

	fn()
}

// stop runs as the delivery context exits, err being nil only on terminate.
func (c *Controller) stop(err error) {
	c.mu.Lock()
	c.open = false
	closeErr := c.poller.close()
	c.err = err
	c.state.Store(StateStopped)
	c.mu.Unlock()

	if closeErr != nil {
		c.log.Warning().
			Err(closeErr).
			Log(`failed to close wait primitive`)
	}

	if err != nil {
		c.logFatal(err)
	} else {
		c.log.Debug().Log(`terminated`)
	}

	close(c.done)
}
