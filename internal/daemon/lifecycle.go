package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Lifecycle runs the server for the lifetime of the daemon process:
// singleton lock, PID marker, signal-driven shutdown, file cleanup.
type Lifecycle struct {
	server     *Server
	pidPath    string
	socketPath string
	lockPath   string
	logger     *zap.Logger
}

// NewLifecycle creates a lifecycle manager for server.
func NewLifecycle(server *Server, pidPath, socketPath, lockPath string, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		server:     server,
		pidPath:    pidPath,
		socketPath: socketPath,
		lockPath:   lockPath,
		logger:     logger,
	}
}

// Run starts the server and blocks until ctx is cancelled or a
// termination signal arrives, then tears everything down. The flock is a
// second singleton guard next to the PID liveness probe: the OS drops it
// even on SIGKILL, so a stale lock can never wedge a restart.
func (l *Lifecycle) Run(ctx context.Context) error {
	lock := flock.New(l.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("daemon lock %s held by another process", l.lockPath)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(l.lockPath)
	}()

	if err := WritePIDFile(l.pidPath, os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = RemovePIDFile(l.pidPath) }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := l.server.Start(ctx); err != nil {
		return err
	}
	l.logger.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.String("socket", l.socketPath))

	<-ctx.Done()

	l.logger.Info("shutting down")
	if err := l.server.Stop(); err != nil {
		l.logger.Error("server stop failed", zap.Error(err))
	}
	return nil
}
