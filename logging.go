package intr

import (
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewLogger returns a JSON logger writing to w, suitable for WithLogger.
// Events below level are discarded.
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// newErrorLimiter builds the handler failure rate limiter, converting the
// catrate panic on invalid rates to an error.
func newErrorLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			limiter = nil
			err = fmt.Errorf("intr: invalid handler error rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// logHandlerError logs a failed (or panicked) handler, subject to rate
// limiting per event id.
func (c *Controller) logHandlerError(b *Binding, err error) {
	c.stats.handlerErrors.Add(1)

	builder := c.log.Err()
	if !builder.Enabled() {
		return
	}

	next, ok := c.errLimiter.Allow(b.ID)
	if !ok {
		builder.Release()
		return
	}

	if !next.IsZero() {
		// this is the last one logged until then
		builder = builder.Time(`suppressed_until`, next)
	}

	builder.
		Err(err).
		Uint64(`irq`, uint64(b.ID)).
		Str(`name`, b.Name).
		Log(`handler failed`)
}

// logFatal logs an error that stopped the delivery context.
func (c *Controller) logFatal(err error) {
	c.log.Crit().
		Err(err).
		Log(`delivery context stopped`)
}
