package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// ErrAlreadyRunning is returned by Start while a process is still running.
var ErrAlreadyRunning = errors.New("process: already running")

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// defaultGracefulTimeout bounds the wait between SIGTERM and SIGKILL.
const defaultGracefulTimeout = 2 * time.Second

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed before the per-run arguments given to Start.
	Args []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnExit is called when a process exits. err is nil for a clean exit
	// and for an exit caused by Stop.
	OnExit func(err error)
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager runs at most one instance of a subprocess at a time.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	runs          int
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess with Config.Args followed by args.
// The process is killed if ctx is cancelled.
func (m *Manager) Start(ctx context.Context, args ...string) error {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.stopRequested = false
	m.mu.Unlock()

	argv := append(append([]string(nil), m.config.Args...), args...)
	m.logger.Debug("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", argv,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, argv...) //nolint:gosec // Binary comes from validated config

	// Own process group so we can signal all children on Stop.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.runs++
	m.done = done
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go m.captureOutput(&wg, "stdout", stdout)
	go m.captureOutput(&wg, "stderr", stderr)
	go m.wait(cmd, &wg, done)

	return nil
}

// captureOutput reads from the given reader and logs each chunk.
func (m *Manager) captureOutput(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()

	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.logger.Debug("process output",
				"name", m.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process and records how it ended.
func (m *Manager) wait(cmd *exec.Cmd, output *sync.WaitGroup, done chan struct{}) {
	defer close(done)

	// Pipes must be drained before Wait closes them.
	output.Wait()
	err := cmd.Wait()

	m.mu.Lock()
	stopRequested := m.stopRequested
	if err != nil && !stopRequested {
		m.status = StatusFailed
		m.lastError = err
	} else {
		m.status = StatusStopped
		err = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("process exited with error", "name", m.config.Name, "error", err)
	} else {
		m.logger.Debug("process exited", "name", m.config.Name, "stopped", stopRequested)
	}

	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

// Stop terminates the running process, if any, and waits for it to exit.
// It sends SIGTERM to the process group, then SIGKILL after GracefulTimeout.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Debug("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the whole group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if a process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// Stats returns statistics about the managed process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Runs      int           `json:"runs"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:   m.config.Name,
		Status: m.status,
		Runs:   m.runs,
	}

	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}

	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}

	return stats
}
