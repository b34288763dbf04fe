package doorbell

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nerrad567/gray-logic-doorbell/internal/command"
)

// Metrics holds the controller's Prometheus counters. Each Metrics owns its
// own metrics.Set so tests and multiple devices do not collide.
type Metrics struct {
	set *metrics.Set

	Ticks          *metrics.Counter
	Triggers       *metrics.Counter
	Dropped        *metrics.Counter
	Playbacks      *metrics.Counter
	PlaybackErrors *metrics.Counter
	Updates        *metrics.Counter

	Connects        *metrics.Counter
	ConnectFailures *metrics.Counter
	Disconnects     *metrics.Counter

	TickDuration *metrics.Summary

	commands map[command.Kind]*metrics.Counter
	volume   atomic.Int64
}

// NewMetrics registers every doorbell metric in a fresh set.
func NewMetrics() *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:             set,
		Ticks:           set.NewCounter("doorbell_loop_ticks_total"),
		Triggers:        set.NewCounter("doorbell_presence_triggers_total"),
		Dropped:         set.NewCounter("doorbell_presence_dropped_total"),
		Playbacks:       set.NewCounter("doorbell_playback_started_total"),
		PlaybackErrors:  set.NewCounter("doorbell_playback_errors_total"),
		Updates:         set.NewCounter("doorbell_updates_applied_total"),
		Connects:        set.NewCounter("doorbell_mqtt_connects_total"),
		ConnectFailures: set.NewCounter("doorbell_mqtt_connect_failures_total"),
		Disconnects:     set.NewCounter("doorbell_mqtt_disconnects_total"),
		TickDuration:    set.NewSummary("doorbell_loop_tick_duration_seconds"),
		commands:        make(map[command.Kind]*metrics.Counter),
	}

	for _, kind := range []command.Kind{command.KindStop, command.KindPlay, command.KindVolume} {
		m.commands[kind] = set.NewCounter(fmt.Sprintf(`doorbell_commands_total{kind=%q}`, kind.String()))
	}
	set.NewGauge("doorbell_volume", func() float64 {
		return float64(m.volume.Load())
	})

	return m
}

// CommandExecuted counts one executed remote command.
func (m *Metrics) CommandExecuted(kind command.Kind) {
	if c, ok := m.commands[kind]; ok {
		c.Inc()
	}
}

// SetVolume records the current volume level.
func (m *Metrics) SetVolume(volume int) {
	m.volume.Store(int64(volume))
}

// Volume returns the last recorded volume level.
func (m *Metrics) Volume() int {
	return int(m.volume.Load())
}

// Gauge registers a gauge backed by f. f is called on every scrape from the
// HTTP goroutine and must be safe for concurrent use.
func (m *Metrics) Gauge(name string, f func() float64) {
	m.set.NewGauge(name, f)
}

// WritePrometheus writes every metric in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
