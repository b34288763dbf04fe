// Package dfplayer drives a DFPlayer Mini class MP3 module over a UART.
//
// Only the four commands the doorbell needs are implemented. The module
// answers asynchronously; the BUSY pin, not the serial link, is the source
// of truth for whether a clip is playing.
package dfplayer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Logger is the logging surface Watch needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Player sends commands to the module.
type Player struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// Open opens the serial port at 8N1 and the given baud rate.
func Open(portName string, baud int) (*Player, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", portName, err)
	}
	return New(port), nil
}

// New wraps an already open port.
func New(port io.ReadWriteCloser) *Player {
	return &Player{port: port}
}

// Reset reboots the module. It needs about a second before it accepts
// further commands.
func (p *Player) Reset() error {
	return p.send(CmdReset, 0)
}

// Play starts a track by index. Values outside uint16 wrap; the module
// ignores indexes it has no file for.
func (p *Player) Play(track int) error {
	return p.send(CmdPlayTrack, uint16(track)) //nolint:gosec // Range is the module's concern
}

// Stop halts playback.
func (p *Player) Stop() error {
	return p.send(CmdStop, 0)
}

// SetVolume sets the output level. The module accepts 0-30.
func (p *Player) SetVolume(volume int) error {
	return p.send(CmdVolume, uint16(volume)) //nolint:gosec // Range is the module's concern
}

// Close closes the serial port.
func (p *Player) Close() error {
	return p.port.Close()
}

// ReadFrame blocks until one frame has been read from the module. Bytes
// before the next start byte are skipped so a partial frame cannot keep
// the reader out of step.
func (p *Player) ReadFrame() (Frame, error) {
	var buf [frameSize]byte
	for buf[0] != frameStart {
		if _, err := io.ReadFull(p.port, buf[:1]); err != nil {
			return Frame{}, fmt.Errorf("reading frame: %w", err)
		}
	}
	if _, err := io.ReadFull(p.port, buf[1:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame: %w", err)
	}
	return Decode(buf[:])
}

// Watch logs the notifications the module sends on its own until the port
// fails or is closed. Run it on its own goroutine; it only reads, so it
// does not contend with commands.
func (p *Player) Watch(logger Logger) {
	for {
		f, err := p.ReadFrame()
		switch {
		case errors.Is(err, ErrBadFrame), errors.Is(err, ErrChecksum):
			logger.Debug("discarding malformed frame", "error", err)
			continue
		case err != nil:
			logger.Debug("module watch stopped", "error", err)
			return
		}

		switch f.Command {
		case NotifyError:
			logger.Warn("module reported error", "code", f.Param, "reason", ErrorReason(f.Param))
		case NotifyInitialised:
			logger.Info("module online", "media", f.Param)
		case NotifyTrackFinished:
			logger.Debug("track finished", "track", f.Param)
		}
	}
}

func (p *Player) send(cmd byte, param uint16) error {
	frame := Encode(cmd, param, false)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.port.Write(frame[:]); err != nil {
		return fmt.Errorf("writing command %#02x: %w", cmd, err)
	}
	return nil
}
