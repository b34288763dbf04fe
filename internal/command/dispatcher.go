// Package command turns inbound MQTT messages into player actions.
//
// The topic → command table is built once when the dispatcher is created, so
// per-message routing is a single map lookup. Malformed numbers degrade to 0
// and out-of-range values are passed to the player unchanged; nothing is
// reported back to the sender beyond the status lines.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-doorbell/internal/audit"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-doorbell/internal/settings"
)

// Kind identifies a remote command.
type Kind int

const (
	KindStop Kind = iota + 1
	KindPlay
	KindVolume
)

func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindPlay:
		return "play"
	case KindVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Player is the subset of the peripheral gateway commands act on.
type Player interface {
	Play(track int) error
	Stop() error
	SetVolume(volume int) error
}

// Notifier publishes status lines.
type Notifier interface {
	Notify(message string)
}

// Recorder persists executed commands. audit.SQLiteRepository satisfies it.
type Recorder interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Deps are the collaborators of a Dispatcher. Player and Settings are
// required; the rest may be nil.
type Deps struct {
	Player        Player
	Settings      settings.Store
	Notifier      Notifier
	Recorder      Recorder
	Logger        Logger
	DefaultVolume int

	// OnCommand is called after every executed command.
	OnCommand func(kind Kind)

	// OnVolume is called with the volume read back after a volume command.
	OnVolume func(volume int)
}

// Dispatcher routes messages by topic.
type Dispatcher struct {
	routes map[string]Kind
	deps   Deps
}

// NewDispatcher builds the routing table from the configured topics.
// Roles are registered in the order stop, play, volume; if two roles share
// a topic the first one keeps it.
func NewDispatcher(topics config.MQTTTopicsConfig, deps Deps) (*Dispatcher, error) {
	if deps.Player == nil {
		return nil, ErrNoPlayer
	}
	if deps.Settings == nil {
		return nil, ErrNoSettings
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	routes := make(map[string]Kind, 3)
	for _, r := range []struct {
		topic string
		kind  Kind
	}{
		{topics.Stop, KindStop},
		{topics.Play, KindPlay},
		{topics.Volume, KindVolume},
	} {
		if r.topic == "" {
			continue
		}
		if _, taken := routes[r.topic]; taken {
			continue
		}
		routes[r.topic] = r.kind
	}

	return &Dispatcher{routes: routes, deps: deps}, nil
}

// Route returns the command kind for topic.
func (d *Dispatcher) Route(topic string) (Kind, bool) {
	k, ok := d.routes[topic]
	return k, ok
}

// Dispatch executes the command addressed by topic. Unknown topics are
// ignored. Peripheral and storage failures are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, payload []byte) error {
	kind, ok := d.routes[topic]
	if !ok {
		d.deps.Logger.Debug("ignoring message on unrouted topic", "topic", topic)
		return nil
	}

	message := string(payload)
	d.deps.Logger.Info("message arrived", "topic", topic, "command", kind.String(), "payload", message)

	var value *int
	switch kind {
	case KindStop:
		if !d.stop(message) {
			return nil
		}
	case KindPlay:
		track := d.play(message)
		value = &track
	case KindVolume:
		v := d.volume(ctx, message)
		value = &v
	}

	d.record(ctx, topic, kind, message, value)
	if d.deps.OnCommand != nil {
		d.deps.OnCommand(kind)
	}
	return nil
}

// stop halts playback when the payload is "stop" in any case.
func (d *Dispatcher) stop(message string) bool {
	if !strings.EqualFold(message, "stop") {
		return false
	}
	if err := d.deps.Player.Stop(); err != nil {
		d.deps.Logger.Warn("stop failed", "error", err)
	}
	d.notify("Stopped play")
	return true
}

// play stops whatever is playing and starts the requested track.
func (d *Dispatcher) play(message string) int {
	track := ParseInt(message)

	if err := d.deps.Player.Stop(); err != nil {
		d.deps.Logger.Warn("stop before play failed", "error", err)
	}
	if err := d.deps.Player.Play(track); err != nil {
		d.deps.Logger.Warn("play failed", "track", track, "error", err)
	}
	d.notify("Playing track " + strconv.Itoa(track))
	return track
}

// volume applies, persists and reads back the requested volume.
func (d *Dispatcher) volume(ctx context.Context, message string) int {
	v := ParseInt(message)

	if err := d.deps.Player.SetVolume(v); err != nil {
		d.deps.Logger.Warn("set volume failed", "volume", v, "error", err)
	}
	d.notify("Volume set to " + strconv.Itoa(v))

	if err := d.deps.Settings.PutInt(ctx, settings.KeyVolume, v); err != nil {
		d.deps.Logger.Warn("persisting volume failed", "volume", v, "error", err)
	}
	stored, err := d.deps.Settings.GetInt(ctx, settings.KeyVolume, d.deps.DefaultVolume)
	if err != nil {
		d.deps.Logger.Warn("reading back volume failed", "error", err)
	}
	d.notify(fmt.Sprintf("Volume from settings: %d", stored))

	if d.deps.OnVolume != nil {
		d.deps.OnVolume(stored)
	}
	return v
}

func (d *Dispatcher) notify(message string) {
	if d.deps.Notifier != nil {
		d.deps.Notifier.Notify(message)
	}
}

func (d *Dispatcher) record(ctx context.Context, topic string, kind Kind, message string, value *int) {
	if d.deps.Recorder == nil {
		return
	}
	entry := &audit.Entry{
		Topic:   topic,
		Command: kind.String(),
		Payload: message,
		Value:   value,
	}
	if err := d.deps.Recorder.Create(ctx, entry); err != nil {
		d.deps.Logger.Warn("recording command failed", "command", kind.String(), "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
