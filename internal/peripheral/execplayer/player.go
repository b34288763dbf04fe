// Package execplayer plays clips from a directory with an external command
// line player. It is the audio backend for boards without a serial MP3
// module: the running process stands in for the module's BUSY line.
package execplayer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-doorbell/internal/process"
)

// ErrTrackNotFound is returned by Play when no file exists for the index.
var ErrTrackNotFound = errors.New("execplayer: track not found")

// Placeholders expanded in Config.Args on every Play.
const (
	PlaceholderTrack  = "{track}"
	PlaceholderVolume = "{volume}"
)

// Config configures the player.
type Config struct {
	// Binary is the player executable, e.g. /usr/bin/mpg123.
	Binary string

	// Args may contain {track} and {volume}. Without {track} the clip path
	// is appended as the last argument.
	Args []string

	// TrackDir holds clips named 0001.mp3, 0002.mp3, ... The player runs
	// with it as working directory.
	TrackDir string

	// OnClipFailed is called when a clip exits with an error. A clip cut
	// short by Stop is not a failure.
	OnClipFailed func(err error)
}

// Player implements the gateway's audio module and busy sensor.
type Player struct {
	cfg Config
	ctx context.Context
	mgr *process.Manager

	mu     sync.Mutex
	volume int
}

// New returns a player whose processes are bound to ctx.
func New(ctx context.Context, cfg Config, logger process.Logger) *Player {
	mgr := process.NewManager(process.Config{
		Name:    filepath.Base(cfg.Binary),
		Binary:  cfg.Binary,
		WorkDir: cfg.TrackDir,
		OnExit: func(err error) {
			if err != nil && cfg.OnClipFailed != nil {
				cfg.OnClipFailed(err)
			}
		},
	})
	if logger != nil {
		mgr.SetLogger(logger)
	}
	return &Player{cfg: cfg, ctx: ctx, mgr: mgr}
}

// TrackPath returns the clip file for a track index.
func (p *Player) TrackPath(track int) string {
	return filepath.Join(p.cfg.TrackDir, fmt.Sprintf("%04d.mp3", track))
}

// Reset stops any running clip.
func (p *Player) Reset() error {
	return p.mgr.Stop()
}

// Play starts track. A clip that is still running is stopped first.
func (p *Player) Play(track int) error {
	path := p.TrackPath(track)
	if track < 1 {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, track)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, path)
	}

	if err := p.mgr.Stop(); err != nil {
		return err
	}
	return p.mgr.Start(p.ctx, p.args(path)...)
}

// Stop halts playback.
func (p *Player) Stop() error {
	return p.mgr.Stop()
}

// SetVolume stores the level used for the next Play.
func (p *Player) SetVolume(volume int) error {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Volume returns the stored level.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Read reports whether a clip is playing. It satisfies the gateway's
// Sensor interface so the player can act as the busy line.
func (p *Player) Read() (bool, error) {
	return p.mgr.IsRunning(), nil
}

// Close stops any running clip.
func (p *Player) Close() error {
	return p.mgr.Stop()
}

// Stats returns the player process statistics for the health report.
func (p *Player) Stats() process.Stats {
	return p.mgr.Stats()
}

// args expands the placeholders for one run.
func (p *Player) args(path string) []string {
	volume := strconv.Itoa(p.Volume())

	out := make([]string, 0, len(p.cfg.Args)+1)
	hasTrack := false
	for _, a := range p.cfg.Args {
		if strings.Contains(a, PlaceholderTrack) {
			hasTrack = true
		}
		a = strings.ReplaceAll(a, PlaceholderTrack, path)
		a = strings.ReplaceAll(a, PlaceholderVolume, volume)
		out = append(out, a)
	}
	if !hasTrack {
		out = append(out, path)
	}
	return out
}
