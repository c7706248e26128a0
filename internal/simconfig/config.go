// Package simconfig loads the YAML configuration of the intrsim simulator.
package simconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-intr"
	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// Device kinds.
const (
	KindDummy    = "dummy"
	KindLoopback = "loopback"
)

// Defaults applied by Load and Parse.
const (
	DefaultDuration     = 100 * time.Millisecond
	DefaultTransmitRate = 5 * time.Millisecond
	DefaultLogLevel     = "info"
)

// Config is the simulator configuration.
type Config struct {
	// Duration is how long the simulation runs, before shutdown.
	Duration Duration `yaml:"duration"`
	// LogLevel is a syslog keyword, e.g. "debug", "info", or "err".
	LogLevel string   `yaml:"log_level"`
	Timer    Timer    `yaml:"timer"`
	Devices  []Device `yaml:"devices"`
	// HandlerErrorRates maps a window to the max logged handler failures,
	// per irq, within it.
	HandlerErrorRates map[Duration]int `yaml:"handler_error_rates"`
}

// Timer configures the periodic timer source.
type Timer struct {
	Initial  Duration `yaml:"initial"`
	Interval Duration `yaml:"interval"`
}

// Device configures a simulated device.
type Device struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	IRQ    uint32 `yaml:"irq"`
	Shared bool   `yaml:"shared"`
	// Rate is the period between frames transmitted by the simulator.
	Rate Duration `yaml:"rate"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given, a single
// loopback device.
func Default() *Config {
	cfg := &Config{
		Devices: []Device{{Name: "lo", Kind: KindLoopback, IRQ: uint32(intr.EventIRQBase)}},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses, defaults, and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Duration == 0 {
		c.Duration = Duration(DefaultDuration)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Timer.Initial == 0 {
		c.Timer.Initial = Duration(intr.DefaultTimerInitial)
	}
	if c.Timer.Interval == 0 {
		c.Timer.Interval = Duration(intr.DefaultTimerInterval)
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Kind == "" {
			d.Kind = KindLoopback
		}
		if d.Rate == 0 {
			d.Rate = Duration(DefaultTransmitRate)
		}
	}
}

// Validate checks the configuration, returning all problems found.
func (c *Config) Validate() error {
	var errs []error
	if c.Duration < 0 {
		errs = append(errs, errors.New("duration must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Timer.Initial < 0 || c.Timer.Interval < 0 {
		errs = append(errs, errors.New("timer durations must not be negative"))
	}
	names := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: name is required", i))
		} else if _, ok := names[d.Name]; ok {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name))
		}
		names[d.Name] = struct{}{}
		switch d.Kind {
		case KindDummy, KindLoopback:
		default:
			errs = append(errs, fmt.Errorf("devices[%d]: unknown kind %q", i, d.Kind))
		}
		if id := intr.EventID(d.IRQ); !id.Valid() || id.Reserved() {
			errs = append(errs, fmt.Errorf("devices[%d]: invalid irq %d", i, d.IRQ))
		}
		if d.Rate < 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: rate must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (logiface.Level, error) {
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		if l.String() == c.LogLevel {
			return l, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", c.LogLevel)
}

// Rates converts HandlerErrorRates, returning nil if unset.
func (c *Config) Rates() map[time.Duration]int {
	if len(c.HandlerErrorRates) == 0 {
		return nil
	}
	rates := make(map[time.Duration]int, len(c.HandlerErrorRates))
	for k, v := range c.HandlerErrorRates {
		rates[k.Duration()] = v
	}
	return rates
}

// Flags returns the flags to register the device with.
func (d Device) Flags() intr.Flags {
	if d.Shared {
		return intr.FlagShared
	}
	return intr.FlagNone
}
