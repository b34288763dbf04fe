// Package peripheral is the single surface between the controller and its
// hardware: the motion sensor, the playback-busy line and the audio module.
//
// Every audio command is followed by a settle delay because the serial MP3
// module drops commands that arrive too close together.
package peripheral

import (
	"context"
	"time"
)

// Sensor is a digital input already corrected for polarity: true means
// asserted (motion seen, clip playing).
type Sensor interface {
	Read() (bool, error)
}

// Module is an audio backend.
type Module interface {
	Reset() error
	Play(track int) error
	Stop() error
	SetVolume(volume int) error
	Close() error
}

// Logger is the logging surface the gateway needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config holds the gateway's timing.
type Config struct {
	// SettleDelay follows every module command.
	SettleDelay time.Duration

	// BootDelay follows a module reset.
	BootDelay time.Duration

	// ResetOnInit resets the module before the boot self test.
	ResetOnInit bool
}

// Gateway wraps the sensors and the audio module.
type Gateway struct {
	motion Sensor
	busy   Sensor
	module Module
	cfg    Config
	logger Logger

	sleep func(time.Duration)
}

// NewGateway builds a gateway. A nil logger discards output.
func NewGateway(motion, busy Sensor, module Module, cfg Config, logger Logger) (*Gateway, error) {
	if motion == nil || busy == nil {
		return nil, ErrNoSensor
	}
	if module == nil {
		return nil, ErrNoModule
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Gateway{
		motion: motion,
		busy:   busy,
		module: module,
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
	}, nil
}

// ReadMotion samples the motion sensor. A read error counts as no motion.
func (g *Gateway) ReadMotion() bool {
	v, err := g.motion.Read()
	if err != nil {
		g.logger.Warn("motion read failed", "error", err)
		return false
	}
	return v
}

// ReadPlaybackBusy samples the busy line. A read error counts as idle.
func (g *Gateway) ReadPlaybackBusy() bool {
	v, err := g.busy.Read()
	if err != nil {
		g.logger.Warn("busy read failed", "error", err)
		return false
	}
	return v
}

// Play starts track. The index is not range checked.
func (g *Gateway) Play(track int) error {
	defer g.settle()
	return g.module.Play(track)
}

// Stop halts playback.
func (g *Gateway) Stop() error {
	defer g.settle()
	return g.module.Stop()
}

// SetVolume sets the module volume. The value is not clamped.
func (g *Gateway) SetVolume(volume int) error {
	defer g.settle()
	return g.module.SetVolume(volume)
}

// Initialize runs the boot self test: optional reset and boot wait, the
// initial volume, then track 1 so a person at the panel hears the device
// come up. Failures are returned but leave the gateway usable.
func (g *Gateway) Initialize(ctx context.Context, volume int) error {
	if g.cfg.ResetOnInit {
		if err := g.module.Reset(); err != nil {
			return err
		}
		g.wait(ctx, g.cfg.BootDelay)
	}

	if err := g.SetVolume(volume); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.Play(1); err != nil {
		return err
	}

	g.logger.Info("audio module initialised", "volume", volume)
	return nil
}

// Close releases the audio module.
func (g *Gateway) Close() error {
	return g.module.Close()
}

func (g *Gateway) settle() {
	if g.cfg.SettleDelay > 0 {
		g.sleep(g.cfg.SettleDelay)
	}
}

func (g *Gateway) wait(ctx context.Context, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	g.sleep(d)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
