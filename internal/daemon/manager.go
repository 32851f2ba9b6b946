package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bashbuddy/internal/paths"
)

// Lifecycle errors surfaced to callers.
var (
	// ErrAlreadyRunning means Start found a live daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning means Stop found no live daemon.
	ErrNotRunning = errors.New("daemon is not running")
)

// StartupError reports a failed daemon start. Timeout means the process
// is alive but never answered ping; otherwise the process exited and
// Output carries its captured diagnostic output.
type StartupError struct {
	Timeout bool
	Output  string
}

func (e *StartupError) Error() string {
	if e.Timeout {
		return "daemon started but not responding (timeout)"
	}
	if e.Output != "" {
		return fmt.Sprintf("failed to start daemon: %s", e.Output)
	}
	return "failed to start daemon"
}

// DaemonState is the observable state reported by Status.
type DaemonState string

const (
	StateStopped      DaemonState = "stopped"
	StateRunning      DaemonState = "running"
	StateUnresponsive DaemonState = "unresponsive"
)

// StatusResult is the outcome of a Status check.
type StatusResult struct {
	State DaemonState
	PID   int
}

const (
	startPollAttempts = 10
	startPollInterval = 300 * time.Millisecond

	stopPollAttempts = 10
	stopPollInterval = 200 * time.Millisecond
)

// Manager controls the daemon process from the client side: spawn,
// terminate, probe, auto-recover. Every other command calls
// EnsureRunning before talking to the daemon.
type Manager struct {
	socketPath string
	pidPath    string
	errPath    string

	// spawnCommand overrides the daemon command line in tests. Empty
	// means "<current executable> daemon run".
	spawnCommand []string
}

// NewManager resolves runtime paths and returns a manager.
func NewManager() (*Manager, error) {
	socketPath, err := paths.SocketPath()
	if err != nil {
		return nil, err
	}
	pidPath, err := paths.PIDPath()
	if err != nil {
		return nil, err
	}
	dir, err := paths.RuntimeDir()
	if err != nil {
		return nil, err
	}
	return &Manager{
		socketPath: socketPath,
		pidPath:    pidPath,
		errPath:    filepath.Join(dir, "daemon.err"),
	}, nil
}

// Start spawns the daemon as a detached process and waits for it to
// answer ping. Fails with ErrAlreadyRunning if a live daemon is
// detected; returns a StartupError when the daemon dies during startup
// (with its stderr attached) or never becomes responsive.
func (m *Manager) Start() error {
	if running, _ := CheckPIDFile(m.pidPath); running {
		return ErrAlreadyRunning
	}

	argv := m.spawnCommand
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable path: %w", err)
		}
		argv = []string{exe, "daemon", "run"}
	}

	// Startup diagnostics go to a file so the child stays detached; the
	// file is read back only when startup fails.
	errFile, err := os.Create(m.errPath)
	if err != nil {
		return fmt.Errorf("create startup log: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv is the current executable
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = errFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = errFile.Close()
		return fmt.Errorf("start daemon process: %w", err)
	}
	pid := cmd.Process.Pid
	_ = errFile.Close()

	// Reap in the background: a signal-0 probe cannot tell a zombie
	// child from a live one, the exit channel can. The daemon outlives
	// this process and gets reparented to init when we exit.
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	// The daemon rewrites the marker itself once up; this one covers the
	// startup window.
	if err := WritePIDFile(m.pidPath, pid); err != nil {
		return err
	}

	client := NewClient(m.socketPath)
	for attempt := 0; attempt < startPollAttempts; attempt++ {
		time.Sleep(startPollInterval)

		select {
		case <-exited:
			_ = RemovePIDFile(m.pidPath)
			return &StartupError{Output: m.readStartupOutput()}
		default:
		}
		if client.Ping() {
			return nil
		}
	}

	select {
	case <-exited:
		_ = RemovePIDFile(m.pidPath)
		return &StartupError{Output: m.readStartupOutput()}
	default:
		return &StartupError{Timeout: true}
	}
}

// Stop terminates the daemon: SIGTERM, a ~2 s grace poll, then SIGKILL,
// then marker and socket cleanup.
func (m *Manager) Stop() error {
	running, pid := CheckPIDFile(m.pidPath)
	if !running {
		return ErrNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	for attempt := 0; attempt < stopPollAttempts; attempt++ {
		time.Sleep(stopPollInterval)
		if !processAlive(pid) {
			break
		}
	}

	if processAlive(pid) {
		_ = proc.Signal(syscall.SIGKILL)
		time.Sleep(500 * time.Millisecond)
	}

	if err := RemovePIDFile(m.pidPath); err != nil {
		return err
	}
	if err := os.Remove(m.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// Status probes the daemon: stopped, running (answers ping), or
// unresponsive (process exists but does not answer).
func (m *Manager) Status() StatusResult {
	running, pid := CheckPIDFile(m.pidPath)
	if !running {
		return StatusResult{State: StateStopped}
	}
	if NewClient(m.socketPath).Ping() {
		return StatusResult{State: StateRunning, PID: pid}
	}
	return StatusResult{State: StateUnresponsive, PID: pid}
}

// EnsureRunning is the idempotent availability guarantee: a responsive
// daemon is left alone, an unresponsive one is restarted, a missing one
// is started.
func (m *Manager) EnsureRunning() error {
	switch m.Status().State {
	case StateRunning:
		return nil
	case StateUnresponsive:
		if err := m.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}

	err := m.Start()
	if errors.Is(err, ErrAlreadyRunning) {
		// Raced with another starter; fine as long as that one answers.
		if NewClient(m.socketPath).Ping() {
			return nil
		}
	}
	return err
}

// Restart stops the daemon if it runs, then starts it.
func (m *Manager) Restart() error {
	if err := m.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return m.Start()
}

// SocketPath returns the socket path the manager probes.
func (m *Manager) SocketPath() string {
	return m.socketPath
}

func (m *Manager) readStartupOutput() string {
	data, err := os.ReadFile(m.errPath) //nolint:gosec // path from the runtime directory
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
