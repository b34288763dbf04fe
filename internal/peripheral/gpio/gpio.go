// Package gpio provides the two digital inputs the doorbell samples each
// tick: the PIR motion output and the audio module's BUSY line.
//
// Two backends are supported. "gpiocdev" uses the Linux GPIO character
// device and lets the kernel apply active-low inversion. "rpio" maps the
// Raspberry Pi's BCM registers directly through /dev/gpiomem.
package gpio

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("gpio: unknown driver")

// Bias selects the internal pull resistor.
type Bias int

const (
	BiasNone Bias = iota
	BiasPullUp
	BiasPullDown
)

// Input is one polarity-corrected digital input.
type Input interface {
	Read() (bool, error)
	Close() error
}

// Pins holds the doorbell's inputs.
type Pins struct {
	Motion Input
	Busy   Input

	release func() error
}

// Open requests both inputs from the configured backend. The PIR output
// is active high with a pull-down; the BUSY line gets a pull-up and uses
// cfg.BusyActiveLow.
func Open(cfg config.GPIOConfig) (*Pins, error) {
	switch cfg.Driver {
	case "gpiocdev":
		return openCdev(cfg)
	case "rpio":
		return openRPIO(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Close releases both inputs and any backend state.
func (p *Pins) Close() error {
	var errs []error
	for _, in := range []Input{p.Motion, p.Busy} {
		if in == nil {
			continue
		}
		if err := in.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.release != nil {
		if err := p.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openCdev(cfg config.GPIOConfig) (*Pins, error) {
	motion, err := RequestInput(cfg.Chip, cfg.MotionPin, BiasPullDown, false)
	if err != nil {
		return nil, fmt.Errorf("motion pin %d: %w", cfg.MotionPin, err)
	}
	busy, err := RequestInput(cfg.Chip, cfg.BusyPin, BiasPullUp, cfg.BusyActiveLow)
	if err != nil {
		motion.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("busy pin %d: %w", cfg.BusyPin, err)
	}
	return &Pins{Motion: motion, Busy: busy}, nil
}

func openRPIO(cfg config.GPIOConfig) (*Pins, error) {
	if err := rpioOpen(); err != nil {
		return nil, fmt.Errorf("opening /dev/gpiomem: %w", err)
	}
	return &Pins{
		Motion:  NewRPIOInput(cfg.MotionPin, BiasPullDown, false),
		Busy:    NewRPIOInput(cfg.BusyPin, BiasPullUp, cfg.BusyActiveLow),
		release: rpioClose,
	}, nil
}
