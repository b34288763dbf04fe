// Package doorbell runs the controller's main loop.
//
// A Device owns every component. Each Tick services the update channel,
// makes sure the messaging transport is connected (blocking while the broker
// is unreachable), drains inbound commands, samples the two input lines,
// steps the presence machine and applies its action, then sleeps for the
// tick interval. All device state is touched only from the goroutine that
// calls Run.
package doorbell

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-doorbell/internal/presence"
)

// Defaults for the loop.
const (
	DefaultTickInterval = 50 * time.Millisecond

	// defaultHealthEvery is how many ticks pass between loop health points,
	// roughly one minute at the default interval.
	defaultHealthEvery = 1200
)

// Transport is the messaging client as seen by the loop.
type Transport interface {
	EnsureConnected(ctx context.Context) error
	Poll() int
	Notify(message string)
}

// Peripherals is the gateway as seen by the loop.
type Peripherals interface {
	ReadMotion() bool
	ReadPlaybackBusy() bool
	Play(track int) error
}

// Updater applies a staged firmware image. restart is true when the process
// must exit to run it.
type Updater interface {
	Service(ctx context.Context) (restart bool, err error)
}

// Telemetry receives periodic loop health points.
type Telemetry interface {
	WriteLoopHealth(ticks uint64, lastTick time.Duration)
}

// Logger is the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures the loop.
type Config struct {
	// TickInterval is the sleep at the end of every tick.
	TickInterval time.Duration

	// HealthEvery is the number of ticks between telemetry points.
	HealthEvery uint64
}

// Deps are the components the device coordinates. Transport, Peripherals
// and Machine are required.
type Deps struct {
	Transport   Transport
	Peripherals Peripherals
	Machine     *presence.Machine
	Updater     Updater
	Telemetry   Telemetry
	Metrics     *Metrics
	Logger      Logger
}

// Device is the doorbell's single owner of runtime state.
type Device struct {
	cfg         Config
	transport   Transport
	peripherals Peripherals
	machine     *presence.Machine
	updater     Updater
	telemetry   Telemetry
	metrics     *Metrics
	logger      Logger

	ticks uint64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Device. A zero or negative TickInterval and a zero
// HealthEvery take the defaults.
func New(cfg Config, deps Deps) (*Device, error) {
	switch {
	case deps.Transport == nil:
		return nil, fmt.Errorf("%w: transport", ErrMissingDependency)
	case deps.Peripherals == nil:
		return nil, fmt.Errorf("%w: peripherals", ErrMissingDependency)
	case deps.Machine == nil:
		return nil, fmt.Errorf("%w: presence machine", ErrMissingDependency)
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.HealthEvery == 0 {
		cfg.HealthEvery = defaultHealthEvery
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	return &Device{
		cfg:         cfg,
		transport:   deps.Transport,
		peripherals: deps.Peripherals,
		machine:     deps.Machine,
		updater:     deps.Updater,
		telemetry:   deps.Telemetry,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

// Run ticks until ctx is done or an update requests a restart.
// It returns nil on cancellation and ErrRestart after an update.
func (d *Device) Run(ctx context.Context) error {
	d.logger.Info("main loop started", "tick_interval", d.cfg.TickInterval)
	for {
		if err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				d.logger.Info("main loop stopped", "ticks", d.ticks)
				return nil
			}
			return err
		}
	}
}

// Tick runs one iteration of the loop. It only returns an error when ctx
// is done or a restart is required.
func (d *Device) Tick(ctx context.Context) error {
	start := d.now()
	d.ticks++
	d.metrics.Ticks.Inc()

	if d.updater != nil {
		restart, err := d.updater.Service(ctx)
		if err != nil {
			d.logger.Warn("applying update failed", "error", err)
		}
		if restart {
			d.metrics.Updates.Inc()
			return ErrRestart
		}
	}

	if err := d.transport.EnsureConnected(ctx); err != nil {
		return err
	}

	// Commands received since the last tick run before the sensors are read.
	if n := d.transport.Poll(); n > 0 {
		d.logger.Debug("processed inbound commands", "count", n)
	}

	motion := d.peripherals.ReadMotion()
	busy := d.peripherals.ReadPlaybackBusy()

	action := d.machine.Step(motion, busy, d.now())
	if d.machine.State() == presence.PeopleDetected {
		d.metrics.Triggers.Inc()
		if action.Kind == presence.ActionNone {
			d.metrics.Dropped.Inc()
			d.logger.Debug("presence trigger dropped, playback busy")
		}
	}
	if action.Kind == presence.ActionStartPlayback {
		d.startPlayback(action.Track)
	}

	elapsed := d.now().Sub(start)
	d.metrics.TickDuration.Update(elapsed.Seconds())
	if d.telemetry != nil && d.ticks%d.cfg.HealthEvery == 0 {
		d.telemetry.WriteLoopHealth(d.ticks, elapsed)
	}

	return d.sleep(ctx, d.cfg.TickInterval)
}

// Ticks returns the number of ticks run so far.
func (d *Device) Ticks() uint64 {
	return d.ticks
}

// Metrics returns the device's metrics.
func (d *Device) Metrics() *Metrics {
	return d.metrics
}

func (d *Device) startPlayback(track int) {
	if err := d.peripherals.Play(track); err != nil {
		d.metrics.PlaybackErrors.Inc()
		d.logger.Warn("autonomous playback failed", "track", track, "error", err)
		return
	}
	d.metrics.Playbacks.Inc()
	d.logger.Info("presence playback started", "track", track)
	d.transport.Notify(fmt.Sprintf("Playing track %d", track))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
