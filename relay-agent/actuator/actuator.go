// Package actuator drives the relay output pin.
package actuator

import (
	"fmt"
	"time"
)

// Pin is a single binary output.
type Pin interface {
	Set(active bool) error
}

// Config configures the relay output.
type Config struct {
	GPIO int `yaml:"gpio" json:"gpio"`
	// PulseDuration holds the output asserted before releasing it. Zero
	// means the output stays asserted.
	PulseDuration time.Duration `yaml:"pulseDuration" json:"pulseDuration"`
}

func (c *Config) Validate() error {
	if c.GPIO < 0 {
		return fmt.Errorf("gpio('%v')", c.GPIO)
	}
	if c.PulseDuration < 0 {
		return fmt.Errorf("pulseDuration('%v')", c.PulseDuration)
	}
	return nil
}

// Relay actuates an output pin. Activation is a bounded synchronous side
// effect; a configured pulse runs to completion.
type Relay struct {
	pin   Pin
	pulse time.Duration
	sleep func(time.Duration)
}

// New creates a relay over the given pin.
func New(pin Pin, pulse time.Duration) *Relay {
	return &Relay{
		pin:   pin,
		pulse: pulse,
		sleep: time.Sleep,
	}
}

// Activate asserts the output. With a pulse duration configured it holds
// for that duration and releases; the release error wins over nothing, the
// assert error wins over everything.
func (r *Relay) Activate() error {
	if err := r.pin.Set(true); err != nil {
		return fmt.Errorf("cannot assert output: %w", err)
	}
	if r.pulse <= 0 {
		return nil
	}
	r.sleep(r.pulse)
	if err := r.pin.Set(false); err != nil {
		return fmt.Errorf("cannot release output: %w", err)
	}
	return nil
}
