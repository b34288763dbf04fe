// Package update serves the doorbell's small HTTP surface: the remote
// firmware update channel plus health, metrics and command-history
// endpoints.
//
// An upload is streamed to a staging file on the HTTP goroutine. The main
// loop picks it up through Service on its next tick, moves it into place and
// requests a restart; the HTTP side never touches device state.
//
//	srv, err := update.New(update.Deps{...})
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close(ctx)
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-doorbell/internal/audit"
	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-doorbell/internal/process"
)

// Request headers carrying the update identity.
const (
	HeaderHost   = "X-Doorbell-Host"
	HeaderSecret = "X-Doorbell-Secret"
	HeaderSHA256 = "X-Doorbell-Sha256"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	readHeaderTimeout       = 10 * time.Second

	// uploadTimeout bounds a whole request; images arrive over Wi-Fi.
	uploadTimeout = 5 * time.Minute

	installPermissions = 0o755
)

// Image is a staged firmware image.
type Image struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	ReceivedAt time.Time `json:"received_at"`
}

// Status is the health snapshot served on /health. The StatusFunc is called
// from HTTP goroutines and must only read concurrency-safe sources.
type Status struct {
	MQTT   string `json:"mqtt"`
	Volume int    `json:"volume"`
	Ticks  uint64 `json:"ticks"`

	// Player is set when clips are played by an external process.
	Player *process.Stats `json:"player,omitempty"`
}

// StatusFunc returns the current health snapshot.
type StatusFunc func() Status

// MetricsWriter writes Prometheus text.
type MetricsWriter interface {
	WritePrometheus(w io.Writer)
}

// CommandLister reads the command audit trail.
type CommandLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is a dependency probed by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Notifier publishes status lines.
type Notifier interface {
	Notify(message string)
}

// Logger is the logging interface used by the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the server's dependencies. Config and Hostname are required.
type Deps struct {
	Config   config.UpdateConfig
	Hostname string
	Version  string
	Logger   Logger
	Status   StatusFunc
	Metrics  MetricsWriter
	Commands CommandLister
	Notifier Notifier

	// Checks are probed by GET /health, keyed by the name reported.
	Checks map[string]HealthChecker
}

// Server is the update and health HTTP server.
type Server struct {
	cfg      config.UpdateConfig
	hostname string
	version  string
	verifier *Verifier
	logger   Logger
	status   StatusFunc
	metrics  MetricsWriter
	commands CommandLister
	notifier Notifier
	checks   map[string]HealthChecker

	started time.Time

	// pending hands a staged image to the loop goroutine.
	pending chan Image
	staging atomic.Bool

	// verifying admits one secret verification at a time.
	verifying chan struct{}

	server   *http.Server
	listener net.Listener
}

// New creates a server. When updates are enabled the shared secret and the
// staging path are required.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	s := &Server{
		cfg:      deps.Config,
		hostname: deps.Hostname,
		version:  deps.Version,
		logger:   deps.Logger,
		status:   deps.Status,
		metrics:  deps.Metrics,
		commands: deps.Commands,
		notifier: deps.Notifier,
		checks:   deps.Checks,
		started:  time.Now(),
		pending:  make(chan Image, 1),

		verifying: make(chan struct{}, 1),
	}

	if deps.Config.Enabled {
		if deps.Config.StagingPath == "" {
			return nil, ErrNoStagingPath
		}
		v, err := NewVerifier(deps.Config.Secret, deps.Config.SecretHash)
		if err != nil {
			return nil, err
		}
		s.verifier = v
	}

	return s, nil
}

// Start begins listening on the configured address.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       uploadTimeout,
		WriteTimeout:      uploadTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("update server error", "error", err)
		}
	}()

	s.logger.Info("update server listening", "address", ln.Addr().String(), "updates", s.cfg.Enabled)
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down update server: %w", err)
	}
	return nil
}

// Service is called by the main loop once per tick. If an image has been
// staged it is moved to the install path and restart is true.
func (s *Server) Service(_ context.Context) (restart bool, err error) {
	var img Image
	select {
	case img = <-s.pending:
	default:
		return false, nil
	}
	defer s.staging.Store(false)

	if s.cfg.InstallPath != "" {
		if err := install(img.Path, s.cfg.InstallPath); err != nil {
			return false, err
		}
	}

	s.logger.Info("update staged, restarting",
		"size", img.Size,
		"sha256", img.SHA256,
		"install_path", s.cfg.InstallPath,
	)
	if s.notifier != nil {
		s.notifier.Notify("Update received, restarting")
	}
	return true, nil
}

// install moves the staged image over the running binary.
func install(staged, target string) error {
	if err := os.Chmod(staged, installPermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	if err := os.Rename(staged, target); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
