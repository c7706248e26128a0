// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package intr

import (
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultTimerInitial is the delay before the first timer tick.
	DefaultTimerInitial = time.Millisecond
	// DefaultTimerInterval is the period between timer ticks.
	DefaultTimerInterval = time.Millisecond
)

// controllerOptions holds configuration options for Controller creation.
type controllerOptions struct {
	logger            *logiface.Logger[logiface.Event]
	timerFunc         func()
	softIRQFunc       func()
	handlerErrorRates map[time.Duration]int
	timerInitial      time.Duration
	timerInterval     time.Duration
}

// --- Controller Options ---

// Option configures a Controller instance.
type Option interface {
	applyController(*controllerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyControllerFunc func(*controllerOptions) error
}

func (o *optionImpl) applyController(opts *controllerOptions) error {
	return o.applyControllerFunc(opts)
}

// WithLogger sets the structured logger. By default, nothing is logged.
// See also NewLogger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *controllerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTimer configures the timer source, which raises EventTimerTick after
// initial, then every interval. Both must be positive.
func WithTimer(initial, interval time.Duration) Option {
	return &optionImpl{func(opts *controllerOptions) error {
		if initial <= 0 || interval <= 0 {
			return ErrInvalidTimer
		}
		opts.timerInitial = initial
		opts.timerInterval = interval
		return nil
	}}
}

// WithTimerFunc sets the callback invoked, on the delivery context, for each
// EventTimerTick.
func WithTimerFunc(fn func()) Option {
	return &optionImpl{func(opts *controllerOptions) error {
		opts.timerFunc = fn
		return nil
	}}
}

// WithSoftIRQFunc sets the callback invoked, on the delivery context, for each
// EventSoftIRQ.
func WithSoftIRQFunc(fn func()) Option {
	return &optionImpl{func(opts *controllerOptions) error {
		opts.softIRQFunc = fn
		return nil
	}}
}

// WithHandlerErrorRates sets the rate limits applied to logging handler
// failures, per event id, in the format accepted by catrate.NewLimiter.
// A nil or empty map disables rate limiting.
func WithHandlerErrorRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *controllerOptions) error {
		opts.handlerErrorRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to controllerOptions.
func resolveOptions(opts []Option) (*controllerOptions, error) {
	cfg := &controllerOptions{
		timerInitial:  DefaultTimerInitial,
		timerInterval: DefaultTimerInterval,
		handlerErrorRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyController(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
