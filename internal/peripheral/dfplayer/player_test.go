package dfplayer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// recordingLogger keeps one "level msg" line per call.
type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprint(level, " ", msg, " ", fmt.Sprint(args...))))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }

// fakePort records writes and serves reads from a buffer.
type fakePort struct {
	written  bytes.Buffer
	toRead   bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) { return p.toRead.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		cmd   byte
		param uint16
		want  []byte
	}{
		{
			name:  "play track 1",
			cmd:   CmdPlayTrack,
			param: 1,
			want:  []byte{0x7E, 0xFF, 0x06, 0x03, 0x00, 0x00, 0x01, 0xFE, 0xF7, 0xEF},
		},
		{
			name:  "volume 17",
			cmd:   CmdVolume,
			param: 17,
			want:  []byte{0x7E, 0xFF, 0x06, 0x06, 0x00, 0x00, 0x11, 0xFE, 0xE4, 0xEF},
		},
		{
			name:  "stop",
			cmd:   CmdStop,
			param: 0,
			want:  []byte{0x7E, 0xFF, 0x06, 0x16, 0x00, 0x00, 0x00, 0xFE, 0xE5, 0xEF},
		},
		{
			name:  "reset",
			cmd:   CmdReset,
			param: 0,
			want:  []byte{0x7E, 0xFF, 0x06, 0x0C, 0x00, 0x00, 0x00, 0xFE, 0xEF, 0xEF},
		},
		{
			name:  "play track 300",
			cmd:   CmdPlayTrack,
			param: 300,
			want:  []byte{0x7E, 0xFF, 0x06, 0x03, 0x00, 0x01, 0x2C, 0xFE, 0xCB, 0xEF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.cmd, tt.param, false)
			if !bytes.Equal(got[:], tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	finished := Encode(NotifyTrackFinished, 7, false)
	f, err := Decode(finished[:])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Command != NotifyTrackFinished || f.Param != 7 || f.Feedback {
		t.Errorf("Decode() = %+v", f)
	}

	withFeedback := Encode(CmdVolume, 3, true)
	if f, _ := Decode(withFeedback[:]); !f.Feedback {
		t.Error("feedback flag lost")
	}

	if _, err := Decode(finished[:5]); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short frame error = %v", err)
	}

	bad := finished
	bad[9] = 0x00
	if _, err := Decode(bad[:]); !errors.Is(err, ErrBadFrame) {
		t.Errorf("bad end byte error = %v", err)
	}

	corrupt := finished
	corrupt[6] ^= 0x01
	if _, err := Decode(corrupt[:]); !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupt param error = %v", err)
	}
}

func TestPlayer_Commands(t *testing.T) {
	port := &fakePort{}
	p := New(port)

	steps := []struct {
		name string
		call func() error
		cmd  byte
		arg  uint16
	}{
		{"reset", p.Reset, CmdReset, 0},
		{"volume", func() error { return p.SetVolume(17) }, CmdVolume, 17},
		{"play", func() error { return p.Play(44) }, CmdPlayTrack, 44},
		{"stop", p.Stop, CmdStop, 0},
	}

	for _, s := range steps {
		port.written.Reset()
		if err := s.call(); err != nil {
			t.Fatalf("%s error = %v", s.name, err)
		}
		want := Encode(s.cmd, s.arg, false)
		if !bytes.Equal(port.written.Bytes(), want[:]) {
			t.Errorf("%s wrote % X, want % X", s.name, port.written.Bytes(), want)
		}
	}
}

func TestPlayer_WriteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("input/output error")}
	if err := New(port).Stop(); err == nil {
		t.Error("Stop() expected error")
	}
}

func TestPlayer_ReadFrame(t *testing.T) {
	port := &fakePort{}
	ready := Encode(NotifyInitialised, 2, false)
	port.toRead.Write(ready[:])

	f, err := New(port).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Command != NotifyInitialised || f.Param != 2 {
		t.Errorf("ReadFrame() = %+v", f)
	}

	if _, err := New(port).ReadFrame(); err == nil {
		t.Error("ReadFrame() on empty port expected error")
	}
}

func TestPlayer_ReadFrameResync(t *testing.T) {
	port := &fakePort{}
	finished := Encode(NotifyTrackFinished, 9, false)
	port.toRead.Write([]byte{0x00, 0x12, 0xEF})
	port.toRead.Write(finished[:])

	f, err := New(port).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Command != NotifyTrackFinished || f.Param != 9 {
		t.Errorf("ReadFrame() = %+v", f)
	}
}

func TestPlayer_Watch(t *testing.T) {
	port := &fakePort{}
	online := Encode(NotifyInitialised, 2, false)
	corrupt := Encode(NotifyTrackFinished, 3, false)
	corrupt[8] ^= 0xFF
	failed := Encode(NotifyError, 6, false)
	finished := Encode(NotifyTrackFinished, 7, false)
	for _, f := range [][frameSize]byte{online, corrupt, failed, finished} {
		port.toRead.Write(f[:])
	}

	logger := &recordingLogger{}
	New(port).Watch(logger) // returns at EOF

	want := []string{"INFO module online", "DEBUG discarding malformed frame", "WARN module reported error", "DEBUG track finished", "DEBUG module watch stopped"}
	if len(logger.lines) != len(want) {
		t.Fatalf("lines = %q, want %d entries", logger.lines, len(want))
	}
	for i, prefix := range want {
		if !strings.HasPrefix(logger.lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, logger.lines[i], prefix)
		}
	}
	if !strings.Contains(logger.lines[2], "track not found") {
		t.Errorf("error line = %q, want reason", logger.lines[2])
	}
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		code uint16
		want string
	}{
		{1, "module busy"},
		{6, "track not found"},
		{99, "unknown error 99"},
	}
	for _, tt := range tests {
		if got := ErrorReason(tt.code); got != tt.want {
			t.Errorf("ErrorReason(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestPlayer_Close(t *testing.T) {
	port := &fakePort{}
	if err := New(port).Close(); err != nil || !port.closed {
		t.Errorf("Close() err=%v closed=%v", err, port.closed)
	}
}
