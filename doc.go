// Package intr emulates a hardware interrupt controller inside a user-space
// process, providing interrupt-style event delivery to a protocol stack that
// has no real hardware to drive it.
//
// # Architecture
//
// A [Controller] owns three things:
//   - a [Registry] of handler bindings, keyed by [EventID]
//   - an event source mapping ([EventSet]) of ids the delivery context waits on
//   - a single delivery goroutine, which blocks until an id becomes pending,
//     then dispatches it
//
// Three ids are reserved: [EventTerminate] stops the delivery goroutine,
// [EventTimerTick] is raised by a periodic timer source and invokes the
// callback configured by [WithTimerFunc], and [EventSoftIRQ] invokes the
// callback configured by [WithSoftIRQFunc]. Every other id is dispatched to
// each [Binding] registered for it.
//
// # Platform Support
//
// On Linux the delivery goroutine waits in epoll, on an eventfd (raised ids)
// and a timerfd (timer ticks). Other platforms use a channel and a runtime
// timer.
//
// # Thread Safety
//
//   - [Controller.RequestHandler] must complete before [Controller.Run], after
//     which the registry is sealed and registration fails with
//     [ErrRegistrySealed]
//   - [Controller.RaiseEvent] is safe to call from any goroutine, including
//     handlers
//   - handlers, and the timer and soft-irq callbacks, run serially on the
//     delivery goroutine, so a slow handler delays every other event
//
// # Delivery Semantics
//
// Pending ids are a set, not a queue: raising an id that is already pending
// has no further effect. When several ids are pending the lowest is delivered
// first, so [EventTerminate] always wins.
//
// # Usage
//
//	c, err := intr.New(
//	    intr.WithTimerFunc(stack.Tick),
//	    intr.WithSoftIRQFunc(stack.SoftIRQ),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := c.RequestHandler(intr.EventIRQBase, intr.HandlerFunc(isr), intr.FlagNone, "eth0", dev); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := c.Run(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Shutdown(context.Background())
//
//	_ = c.RaiseEvent(intr.EventIRQBase)
package intr
