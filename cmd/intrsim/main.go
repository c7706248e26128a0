// Command intrsim runs a simulated protocol stack on the interrupt controller,
// with devices transmitting frames at configured rates, then prints the
// controller and stack statistics.
//
// Run with: go run ./cmd/intrsim -config sim.yml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joeycumines/go-intr"
	"github.com/joeycumines/go-intr/internal/simconfig"
	"github.com/joeycumines/go-intr/internal/stack"
)

// protoIP is the frame type transmitted by the simulator.
const protoIP = 0x0800

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "intrsim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("intrsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "path to a YAML config file")
		duration   = fs.Duration("duration", 0, "override the simulation duration")
		logLevel   = fs.String("log-level", "", "override the log level (e.g. debug, info, err)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := simconfig.Default()
	if *configPath != "" {
		var err error
		if cfg, err = simconfig.Load(*configPath); err != nil {
			return err
		}
	}
	if *duration > 0 {
		cfg.Duration = simconfig.Duration(*duration)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	logger := intr.NewLogger(stderr, level)

	st := stack.New(logger)
	var processed int
	if err := st.RegisterProtocol(protoIP, func(stack.Frame) { processed++ }); err != nil {
		return err
	}
	if err := st.RegisterTimer("stats", 10*time.Millisecond, func() {
		logger.Debug().
			Int(`processed`, processed).
			Log(`stack timer`)
	}); err != nil {
		return err
	}

	opts := append(st.ControllerOptions(),
		intr.WithLogger(logger),
		intr.WithTimer(cfg.Timer.Initial.Duration(), cfg.Timer.Interval.Duration()),
	)
	if rates := cfg.Rates(); rates != nil {
		opts = append(opts, intr.WithHandlerErrorRates(rates))
	}
	c, err := intr.New(opts...)
	if err != nil {
		return err
	}

	for _, d := range cfg.Devices {
		var dev *stack.Device
		switch d.Kind {
		case simconfig.KindDummy:
			dev = stack.NewDummy(d.Name, intr.EventID(d.IRQ), d.Flags())
		default:
			dev = stack.NewLoopback(d.Name, intr.EventID(d.IRQ), d.Flags())
		}
		if err := st.AddDevice(dev); err != nil {
			return err
		}
	}
	if err := st.Open(c); err != nil {
		return err
	}

	if err := c.Run(); err != nil {
		return err
	}

	simCtx, cancel := context.WithTimeout(ctx, cfg.Duration.Duration())
	defer cancel()

	var wg sync.WaitGroup
	for i, dev := range st.Devices() {
		wg.Add(1)
		go func(dev *stack.Device, rate time.Duration) {
			defer wg.Done()
			transmit(simCtx, dev, rate)
		}(dev, cfg.Devices[i].Rate.Duration())
	}

	select {
	case <-simCtx.Done():
	case <-c.Done():
	}
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}

	printStats(stdout, c.Stats(), st)
	return nil
}

// transmit sends a frame every rate, until ctx is done.
func transmit(ctx context.Context, dev *stack.Device, rate time.Duration) {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := dev.Transmit(protoIP, fmt.Appendf(nil, "%s seq=%d", dev.Name(), seq)); err != nil {
			return
		}
	}
}

func printStats(w io.Writer, cs intr.Stats, st *stack.Stack) {
	fmt.Fprintf(w, "controller: raised=%d coalesced=%d unmapped=%d delivered=%d dispatched=%d dropped=%d handler_errors=%d ticks=%d softirqs=%d\n",
		cs.Raised, cs.Coalesced, cs.Unmapped, cs.Delivered, cs.Dispatched, cs.Dropped, cs.HandlerErrors, cs.Ticks, cs.SoftIRQs)
	ss := st.Stats()
	fmt.Fprintf(w, "stack: received=%d processed=%d dropped=%d timer_runs=%d queued=%d\n",
		ss.Received, ss.Processed, ss.Dropped, ss.TimerRuns, ss.Queued)
	for _, d := range st.Devices() {
		ds := d.Stats()
		fmt.Fprintf(w, "device %s (%s): transmitted=%d received=%d interrupts=%d\n",
			d.Name(), d.IRQ(), ds.Transmitted, ds.Received, ds.Interrupts)
	}
}
