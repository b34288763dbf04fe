// Package presence turns raw motion and busy samples into playback actions.
//
// The Machine is evaluated once per loop tick. A trigger needs motion and an
// elapsed cooldown; the resulting track is only started when the module is
// idle. A trigger that lands while a clip is playing is dropped, not queued.
package presence

import (
	"math/rand/v2"
	"time"
)

// PeopleMessage is published whenever a presence trigger fires.
const PeopleMessage = "People at the front door!"

// DefaultCooldown is the minimum time between two triggers.
const DefaultCooldown = 30 * time.Second

// DefaultCatalogSize is the number of tracks on the reference SD card.
const DefaultCatalogSize = 44

// State is the presence state for the current tick.
type State int

const (
	NoOne State = iota
	PeopleDetected
)

func (s State) String() string {
	if s == PeopleDetected {
		return "people_detected"
	}
	return "no_one"
}

// Playback is derived from the busy line every tick.
type Playback int

const (
	Idle Playback = iota
	Playing
)

func (p Playback) String() string {
	if p == Playing {
		return "playing"
	}
	return "idle"
}

// ActionKind says what the scheduler must do after a step.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionStartPlayback
)

// Action is the outcome of one Step.
type Action struct {
	Kind  ActionKind
	Track int
}

// Notifier receives human-readable status lines.
type Notifier interface {
	Notify(message string)
}

// TrackPicker returns a track index in [1, n].
type TrackPicker func(n int) int

// RandomPicker returns a uniform TrackPicker backed by r.
func RandomPicker(r *rand.Rand) TrackPicker {
	return func(n int) int {
		if n < 1 {
			return 1
		}
		return r.IntN(n) + 1
	}
}

// Config holds the machine's tunables.
type Config struct {
	Cooldown    time.Duration
	CatalogSize int
}

// Machine is the presence/playback state machine. It is not safe for
// concurrent use; the main loop owns it.
type Machine struct {
	cooldown time.Duration
	catalog  int
	pick     TrackPicker
	notifier Notifier

	lastTrigger time.Time
	triggered   bool

	state    State
	playback Playback
}

// New returns a machine in NoOne/Idle that has never triggered.
// A nil pick uses a time-seeded PCG source.
func New(cfg Config, notifier Notifier, pick TrackPicker) *Machine {
	if cfg.CatalogSize < 1 {
		cfg.CatalogSize = DefaultCatalogSize
	}
	if pick == nil {
		seed := uint64(time.Now().UnixNano())
		pick = RandomPicker(rand.New(rand.NewPCG(seed, seed>>17|1)))
	}
	return &Machine{
		cooldown: cfg.Cooldown,
		catalog:  cfg.CatalogSize,
		pick:     pick,
		notifier: notifier,
	}
}

// Step evaluates one tick. It never fails.
func (m *Machine) Step(motion, busy bool, now time.Time) Action {
	if motion && m.cooldownElapsed(now) {
		m.lastTrigger = now
		m.triggered = true
		m.state = PeopleDetected
		if m.notifier != nil {
			m.notifier.Notify(PeopleMessage)
		}
	} else {
		m.state = NoOne
	}

	if busy {
		m.playback = Playing
	} else {
		m.playback = Idle
	}

	if m.state == PeopleDetected && m.playback == Idle {
		return Action{Kind: ActionStartPlayback, Track: m.pick(m.catalog)}
	}
	return Action{Kind: ActionNone}
}

func (m *Machine) cooldownElapsed(now time.Time) bool {
	return !m.triggered || now.Sub(m.lastTrigger) >= m.cooldown
}

// State returns the presence state computed by the last Step.
func (m *Machine) State() State { return m.state }

// Playback returns the playback state computed by the last Step.
func (m *Machine) Playback() Playback { return m.playback }

// LastTrigger returns the time of the last trigger, and false if there has
// never been one.
func (m *Machine) LastTrigger() (time.Time, bool) {
	return m.lastTrigger, m.triggered
}
