// Package paths resolves the per-user runtime directory and the files
// bashbuddy keeps inside it (socket, PID marker, lock, log, config).
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// envHome overrides the runtime directory location, mainly for tests.
const envHome = "BASHBUDDY_HOME"

// RuntimeDir returns the bashbuddy runtime directory, creating it if needed.
// Defaults to ~/.bashbuddy; BASHBUDDY_HOME overrides it.
func RuntimeDir() (string, error) {
	dir := os.Getenv(envHome)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".bashbuddy")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create runtime directory: %w", err)
	}
	return dir, nil
}

// SocketPath returns the path of the daemon's unix socket.
func SocketPath() (string, error) {
	return runtimeFile("daemon.sock")
}

// PIDPath returns the path of the daemon's PID marker file.
func PIDPath() (string, error) {
	return runtimeFile("daemon.pid")
}

// LockPath returns the path of the daemon's singleton lock file.
func LockPath() (string, error) {
	return runtimeFile("daemon.lock")
}

// LogPath returns the path of the daemon's log file.
func LogPath() (string, error) {
	return runtimeFile("daemon.log")
}

// ConfigPath returns the path of the optional YAML config file.
func ConfigPath() (string, error) {
	return runtimeFile("config.yaml")
}

func runtimeFile(name string) (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
