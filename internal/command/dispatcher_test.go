package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-doorbell/internal/audit"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-doorbell/internal/settings"
)

// fakePlayer records every call as a string.
type fakePlayer struct {
	calls []string
	err   error
}

func (p *fakePlayer) Play(track int) error {
	p.calls = append(p.calls, fmt.Sprintf("play %d", track))
	return p.err
}

func (p *fakePlayer) Stop() error {
	p.calls = append(p.calls, "stop")
	return p.err
}

func (p *fakePlayer) SetVolume(v int) error {
	p.calls = append(p.calls, fmt.Sprintf("volume %d", v))
	return p.err
}

// memStore is an in-memory settings.Store.
type memStore struct {
	values map[string]int
	putErr error
	getErr error
	puts   int
}

func newMemStore() *memStore { return &memStore{values: make(map[string]int)} }

func (s *memStore) GetInt(_ context.Context, key string, def int) (int, error) {
	if s.getErr != nil {
		return def, s.getErr
	}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *memStore) PutInt(_ context.Context, key string, value int) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.values[key] = value
	return nil
}

type notes struct{ lines []string }

func (n *notes) Notify(m string) { n.lines = append(n.lines, m) }

type fakeRecorder struct{ entries []audit.Entry }

func (r *fakeRecorder) Create(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, *e)
	return nil
}

var testTopics = config.MQTTTopicsConfig{
	Status: "doorbell/status",
	Play:   "doorbell/play",
	Volume: "doorbell/volume",
	Stop:   "doorbell/stop",
}

type harness struct {
	d        *Dispatcher
	player   *fakePlayer
	store    *memStore
	notes    *notes
	recorder *fakeRecorder
	kinds    []Kind
}

func newHarness(t *testing.T, topics config.MQTTTopicsConfig) *harness {
	t.Helper()
	h := &harness{
		player:   &fakePlayer{},
		store:    newMemStore(),
		notes:    &notes{},
		recorder: &fakeRecorder{},
	}
	d, err := NewDispatcher(topics, Deps{
		Player:        h.player,
		Settings:      h.store,
		Notifier:      h.notes,
		Recorder:      h.recorder,
		DefaultVolume: 17,
		OnCommand:     func(k Kind) { h.kinds = append(h.kinds, k) },
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	h.d = d
	return h
}

func (h *harness) send(t *testing.T, topic, payload string) {
	t.Helper()
	if err := h.d.Dispatch(context.Background(), topic, []byte(payload)); err != nil {
		t.Fatalf("Dispatch(%s, %q) error = %v", topic, payload, err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Stop Tests
// =============================================================================

func TestDispatch_Stop(t *testing.T) {
	tests := []struct {
		payload  string
		wantStop bool
	}{
		{"stop", true},
		{"STOP", true},
		{"Stop", true},
		{"sToP", true},
		{"pause", false},
		{"stop ", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.payload), func(t *testing.T) {
			h := newHarness(t, testTopics)
			h.send(t, "doorbell/stop", tt.payload)

			if tt.wantStop {
				if !equal(h.player.calls, []string{"stop"}) {
					t.Errorf("calls = %v, want [stop]", h.player.calls)
				}
				if !equal(h.notes.lines, []string{"Stopped play"}) {
					t.Errorf("notes = %v", h.notes.lines)
				}
				if len(h.recorder.entries) != 1 || h.recorder.entries[0].Value != nil {
					t.Errorf("audit = %+v", h.recorder.entries)
				}
				return
			}
			if len(h.player.calls) != 0 || len(h.notes.lines) != 0 || len(h.recorder.entries) != 0 {
				t.Errorf("ignored payload caused calls=%v notes=%v audit=%d",
					h.player.calls, h.notes.lines, len(h.recorder.entries))
			}
		})
	}
}

// =============================================================================
// Play Tests
// =============================================================================

func TestDispatch_Play(t *testing.T) {
	tests := []struct {
		payload   string
		wantCalls []string
		wantNote  string
	}{
		{"7", []string{"stop", "play 7"}, "Playing track 7"},
		{"abc", []string{"stop", "play 0"}, "Playing track 0"},
		{"12abc", []string{"stop", "play 12"}, "Playing track 12"},
		{"999", []string{"stop", "play 999"}, "Playing track 999"},
		{"-1", []string{"stop", "play -1"}, "Playing track -1"},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			h := newHarness(t, testTopics)
			h.send(t, "doorbell/play", tt.payload)

			if !equal(h.player.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", h.player.calls, tt.wantCalls)
			}
			if !equal(h.notes.lines, []string{tt.wantNote}) {
				t.Errorf("notes = %v, want [%s]", h.notes.lines, tt.wantNote)
			}
			if len(h.kinds) != 1 || h.kinds[0] != KindPlay {
				t.Errorf("OnCommand kinds = %v", h.kinds)
			}
		})
	}
}

func TestDispatch_PlayerErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t, testTopics)
	h.player.err = errors.New("serial write failed")

	h.send(t, "doorbell/play", "3")

	if !equal(h.player.calls, []string{"stop", "play 3"}) {
		t.Errorf("calls = %v", h.player.calls)
	}
	if !equal(h.notes.lines, []string{"Playing track 3"}) {
		t.Errorf("notes = %v", h.notes.lines)
	}
}

// =============================================================================
// Volume Tests
// =============================================================================

func TestDispatch_VolumeRoundTrip(t *testing.T) {
	h := newHarness(t, testTopics)
	var reported []int
	h.d.deps.OnVolume = func(v int) { reported = append(reported, v) }

	h.send(t, "doorbell/volume", "25")

	if !equal(h.player.calls, []string{"volume 25"}) {
		t.Errorf("calls = %v", h.player.calls)
	}
	wantNotes := []string{"Volume set to 25", "Volume from settings: 25"}
	if !equal(h.notes.lines, wantNotes) {
		t.Errorf("notes = %v, want %v", h.notes.lines, wantNotes)
	}
	if h.store.values[settings.KeyVolume] != 25 {
		t.Errorf("stored volume = %d, want 25", h.store.values[settings.KeyVolume])
	}
	if len(reported) != 1 || reported[0] != 25 {
		t.Errorf("OnVolume = %v", reported)
	}
	if e := h.recorder.entries; len(e) != 1 || e[0].Value == nil || *e[0].Value != 25 {
		t.Errorf("audit = %+v", e)
	}
}

func TestDispatch_VolumeNotClamped(t *testing.T) {
	h := newHarness(t, testTopics)
	h.send(t, "doorbell/volume", "99")

	if !equal(h.player.calls, []string{"volume 99"}) {
		t.Errorf("calls = %v, want out-of-range value passed through", h.player.calls)
	}
	if h.store.values[settings.KeyVolume] != 99 {
		t.Errorf("stored = %d", h.store.values[settings.KeyVolume])
	}
}

func TestDispatch_VolumeMalformedIsZero(t *testing.T) {
	h := newHarness(t, testTopics)
	h.send(t, "doorbell/volume", "loud")

	if !equal(h.player.calls, []string{"volume 0"}) {
		t.Errorf("calls = %v", h.player.calls)
	}
	if h.notes.lines[1] != "Volume from settings: 0" {
		t.Errorf("notes = %v", h.notes.lines)
	}
}

func TestDispatch_VolumePersistFailureReportsStoredValue(t *testing.T) {
	h := newHarness(t, testTopics)
	h.store.values[settings.KeyVolume] = 12
	h.store.putErr = errors.New("database is locked")

	h.send(t, "doorbell/volume", "20")

	wantNotes := []string{"Volume set to 20", "Volume from settings: 12"}
	if !equal(h.notes.lines, wantNotes) {
		t.Errorf("notes = %v, want %v", h.notes.lines, wantNotes)
	}
	if h.store.puts != 1 {
		t.Errorf("puts = %d", h.store.puts)
	}
}

func TestDispatch_VolumeReadFailureReportsDefault(t *testing.T) {
	h := newHarness(t, testTopics)
	h.store.getErr = errors.New("disk I/O error")

	h.send(t, "doorbell/volume", "20")

	if h.notes.lines[1] != "Volume from settings: 17" {
		t.Errorf("notes = %v", h.notes.lines)
	}
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestDispatch_UnknownTopicIgnored(t *testing.T) {
	h := newHarness(t, testTopics)
	h.send(t, "doorbell/status", "stop")
	h.send(t, "elsewhere", "7")

	if len(h.player.calls) != 0 || len(h.notes.lines) != 0 || len(h.kinds) != 0 {
		t.Errorf("unknown topic caused calls=%v notes=%v", h.player.calls, h.notes.lines)
	}
}

func TestNewDispatcher_DuplicateTopicFirstRoleWins(t *testing.T) {
	topics := config.MQTTTopicsConfig{Play: "cmd", Volume: "cmd", Stop: "doorbell/stop"}
	h := newHarness(t, topics)

	if k, ok := h.d.Route("cmd"); !ok || k != KindPlay {
		t.Errorf("Route(cmd) = %v, %v, want play", k, ok)
	}

	topics = config.MQTTTopicsConfig{Play: "cmd", Stop: "cmd"}
	h = newHarness(t, topics)
	if k, _ := h.d.Route("cmd"); k != KindStop {
		t.Errorf("Route(cmd) = %v, want stop", k)
	}
}

func TestNewDispatcher_RequiredDeps(t *testing.T) {
	if _, err := NewDispatcher(testTopics, Deps{Settings: newMemStore()}); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("error = %v, want ErrNoPlayer", err)
	}
	if _, err := NewDispatcher(testTopics, Deps{Player: &fakePlayer{}}); !errors.Is(err, ErrNoSettings) {
		t.Errorf("error = %v, want ErrNoSettings", err)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{KindStop: "stop", KindPlay: "play", KindVolume: "volume", Kind(0): "unknown"} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
