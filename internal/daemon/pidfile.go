package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// The PID marker is a plain-text decimal process id. It exists for
// liveness checks only; it is not a security boundary.

// WritePIDFile writes pid to path, creating the directory if needed.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the decimal pid stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from the runtime directory
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes the marker; a missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// CheckPIDFile reports whether the process named by the marker is alive.
// A missing, unreadable, or stale marker reads as not running; stale
// markers are cleaned up on the way out.
func CheckPIDFile(path string) (bool, int) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = RemovePIDFile(path)
		}
		return false, 0
	}

	if !processAlive(pid) {
		_ = RemovePIDFile(path)
		return false, 0
	}
	return true, pid
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}
