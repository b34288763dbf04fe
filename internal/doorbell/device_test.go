package doorbell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-doorbell/internal/command"
	"github.com/nerrad567/gray-logic-doorbell/internal/presence"
)

// =============================================================================
// Fakes
// =============================================================================

// recorder collects the order in which the loop touches its components.
type recorder struct {
	events []string
}

func (r *recorder) add(e string) {
	r.events = append(r.events, e)
}

type fakeTransport struct {
	rec       *recorder
	ensureErr error
	onPoll    func()
	notes     []string
}

func (f *fakeTransport) EnsureConnected(context.Context) error {
	f.rec.add("ensure")
	return f.ensureErr
}

func (f *fakeTransport) Poll() int {
	f.rec.add("poll")
	if f.onPoll != nil {
		f.onPoll()
	}
	return 0
}

func (f *fakeTransport) Notify(message string) {
	f.notes = append(f.notes, message)
}

type fakePeripherals struct {
	rec     *recorder
	motion  bool
	busy    bool
	playErr error
	played  []int
}

func (f *fakePeripherals) ReadMotion() bool {
	f.rec.add("motion")
	return f.motion
}

func (f *fakePeripherals) ReadPlaybackBusy() bool {
	f.rec.add("busy")
	return f.busy
}

func (f *fakePeripherals) Play(track int) error {
	f.rec.add("play")
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, track)
	return nil
}

type fakeUpdater struct {
	rec     *recorder
	restart bool
	err     error
}

func (f *fakeUpdater) Service(context.Context) (bool, error) {
	f.rec.add("update")
	return f.restart, f.err
}

type fakeTelemetry struct {
	points []uint64
}

func (f *fakeTelemetry) WriteLoopHealth(ticks uint64, _ time.Duration) {
	f.points = append(f.points, ticks)
}

type harness struct {
	dev         *Device
	rec         *recorder
	transport   *fakeTransport
	peripherals *fakePeripherals
	clock       time.Time
	sleeps      []time.Duration
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()
	h := &harness{
		rec:   &recorder{},
		clock: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
	h.transport = &fakeTransport{rec: h.rec}
	h.peripherals = &fakePeripherals{rec: h.rec}

	deps.Transport = h.transport
	deps.Peripherals = h.peripherals
	if deps.Machine == nil {
		deps.Machine = presence.New(presence.Config{Cooldown: presence.DefaultCooldown, CatalogSize: 44}, h.transport,
			func(int) int { return 12 })
	}

	dev, err := New(Config{TickInterval: DefaultTickInterval}, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dev.now = func() time.Time { return h.clock }
	dev.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.dev = dev
	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.dev.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_MissingDependencies(t *testing.T) {
	rec := &recorder{}
	machine := presence.New(presence.Config{}, nil, nil)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no transport", Deps{Peripherals: &fakePeripherals{rec: rec}, Machine: machine}},
		{"no peripherals", Deps{Transport: &fakeTransport{rec: rec}, Machine: machine}},
		{"no machine", Deps{Transport: &fakeTransport{rec: rec}, Peripherals: &fakePeripherals{rec: rec}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{}, tt.deps); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("New() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

func TestNew_TickIntervalDefault(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"zero", 0, DefaultTickInterval},
		{"negative", -time.Millisecond, DefaultTickInterval},
		{"explicit", 20 * time.Millisecond, 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			dev, err := New(Config{TickInterval: tt.interval}, Deps{
				Transport:   &fakeTransport{rec: rec},
				Peripherals: &fakePeripherals{rec: rec},
				Machine:     presence.New(presence.Config{}, nil, nil),
			})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			var slept []time.Duration
			dev.sleep = func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			}
			if err := dev.Tick(context.Background()); err != nil {
				t.Fatalf("Tick() error = %v", err)
			}
			if len(slept) != 1 || slept[0] != tt.want {
				t.Errorf("sleeps = %v, want [%v]", slept, tt.want)
			}
		})
	}
}

// =============================================================================
// Tick Tests
// =============================================================================

func TestTick_Order(t *testing.T) {
	h := newHarness(t, Deps{})
	h.dev.updater = &fakeUpdater{rec: h.rec}
	h.peripherals.motion = true

	h.tick(t)

	want := []string{"update", "ensure", "poll", "motion", "busy", "play"}
	if strings.Join(h.rec.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", h.rec.events, want)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != DefaultTickInterval {
		t.Errorf("sleeps = %v, want [%v]", h.sleeps, DefaultTickInterval)
	}
}

func TestTick_NoMotionNoAction(t *testing.T) {
	h := newHarness(t, Deps{})

	h.tick(t)

	if len(h.peripherals.played) != 0 || len(h.transport.notes) != 0 {
		t.Errorf("played=%v notes=%v, want nothing", h.peripherals.played, h.transport.notes)
	}
}

func TestTick_CooldownScenario(t *testing.T) {
	h := newHarness(t, Deps{})
	h.peripherals.motion = true
	start := h.clock

	// t=0: trigger and play.
	h.tick(t)
	// t=10s: within cooldown.
	h.clock = start.Add(10 * time.Second)
	h.tick(t)
	// t=31s: cooldown elapsed.
	h.clock = start.Add(31 * time.Second)
	h.tick(t)

	if len(h.peripherals.played) != 2 {
		t.Fatalf("played = %v, want two playbacks", h.peripherals.played)
	}
	want := []string{
		presence.PeopleMessage, "Playing track 12",
		presence.PeopleMessage, "Playing track 12",
	}
	if strings.Join(h.transport.notes, "|") != strings.Join(want, "|") {
		t.Errorf("notes = %q, want %q", h.transport.notes, want)
	}
	if got := h.dev.Metrics().Triggers.Get(); got != 2 {
		t.Errorf("triggers = %d, want 2", got)
	}
}

func TestTick_TriggerWhilePlayingIsDropped(t *testing.T) {
	h := newHarness(t, Deps{})
	h.peripherals.motion = true
	h.peripherals.busy = true

	h.tick(t)

	if len(h.peripherals.played) != 0 {
		t.Errorf("played = %v while busy", h.peripherals.played)
	}
	if len(h.transport.notes) != 1 || h.transport.notes[0] != presence.PeopleMessage {
		t.Errorf("notes = %q, want only the presence message", h.transport.notes)
	}
	if got := h.dev.Metrics().Dropped.Get(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	// Not deferred: once idle, the next tick is still inside the cooldown.
	h.peripherals.busy = false
	h.clock = h.clock.Add(time.Second)
	h.tick(t)
	if len(h.peripherals.played) != 0 {
		t.Errorf("dropped trigger was replayed: %v", h.peripherals.played)
	}
}

func TestTick_CommandsRunBeforeSampling(t *testing.T) {
	h := newHarness(t, Deps{})

	// A stop command processed in Poll makes the module idle before the
	// busy line is read in the same tick.
	h.peripherals.busy = true
	h.peripherals.motion = true
	h.transport.onPoll = func() { h.peripherals.busy = false }

	h.tick(t)

	if len(h.peripherals.played) != 1 {
		t.Errorf("played = %v, want playback after inbound stop", h.peripherals.played)
	}
}

func TestTick_PlaybackError(t *testing.T) {
	h := newHarness(t, Deps{})
	h.peripherals.motion = true
	h.peripherals.playErr = errors.New("serial write failed")

	h.tick(t)

	for _, n := range h.transport.notes {
		if strings.HasPrefix(n, "Playing track") {
			t.Errorf("announced %q after failed playback", n)
		}
	}
	if got := h.dev.Metrics().PlaybackErrors.Get(); got != 1 {
		t.Errorf("playback errors = %d, want 1", got)
	}
}

func TestTick_EnsureConnectedCancelled(t *testing.T) {
	h := newHarness(t, Deps{})
	h.transport.ensureErr = context.Canceled

	if err := h.dev.Tick(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick() error = %v, want context.Canceled", err)
	}
	for _, e := range h.rec.events {
		if e == "poll" || e == "motion" {
			t.Errorf("tick continued after connect failure: %v", h.rec.events)
		}
	}
}

func TestTick_UpdateRestart(t *testing.T) {
	h := newHarness(t, Deps{})
	h.dev.updater = &fakeUpdater{rec: h.rec, restart: true}

	if err := h.dev.Tick(context.Background()); !errors.Is(err, ErrRestart) {
		t.Fatalf("Tick() error = %v, want ErrRestart", err)
	}
	if strings.Join(h.rec.events, ",") != "update" {
		t.Errorf("events = %v, want only update", h.rec.events)
	}
	if got := h.dev.Metrics().Updates.Get(); got != 1 {
		t.Errorf("updates = %d, want 1", got)
	}
}

func TestTick_UpdateErrorContinues(t *testing.T) {
	h := newHarness(t, Deps{})
	h.dev.updater = &fakeUpdater{rec: h.rec, err: errors.New("rename failed")}

	h.tick(t)

	if len(h.rec.events) < 2 || h.rec.events[1] != "ensure" {
		t.Errorf("events = %v, want loop to continue after update error", h.rec.events)
	}
}

func TestTick_LoopHealthTelemetry(t *testing.T) {
	tel := &fakeTelemetry{}
	h := newHarness(t, Deps{Telemetry: tel})
	h.dev.cfg.HealthEvery = 2

	for i := 0; i < 5; i++ {
		h.tick(t)
	}

	if len(tel.points) != 2 || tel.points[0] != 2 || tel.points[1] != 4 {
		t.Errorf("telemetry points = %v, want [2 4]", tel.points)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.dev.sleep = func(ctx context.Context, _ time.Duration) error {
		if h.dev.Ticks() == 3 {
			cancel()
		}
		return ctx.Err()
	}

	if err := h.dev.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
	if h.dev.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", h.dev.Ticks())
	}
}

func TestRun_ReturnsRestart(t *testing.T) {
	h := newHarness(t, Deps{})
	h.dev.updater = &fakeUpdater{rec: h.rec, restart: true}

	if err := h.dev.Run(context.Background()); !errors.Is(err, ErrRestart) {
		t.Errorf("Run() error = %v, want ErrRestart", err)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("sleepContext(0) error = %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext(1ms) error = %v", err)
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics_WritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.Ticks.Add(3)
	m.CommandExecuted(command.KindPlay)
	m.CommandExecuted(command.Kind(99))
	m.SetVolume(25)

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		"doorbell_loop_ticks_total 3",
		`doorbell_commands_total{kind="play"} 1`,
		`doorbell_commands_total{kind="stop"} 0`,
		"doorbell_volume 25",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if m.Volume() != 25 {
		t.Errorf("Volume() = %d, want 25", m.Volume())
	}
}

func TestMetrics_Gauge(t *testing.T) {
	m := NewMetrics()
	m.Gauge("doorbell_mqtt_connected", func() float64 { return 1 })

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "doorbell_mqtt_connected 1") {
		t.Errorf("gauge missing from output:\n%s", buf.String())
	}
}
