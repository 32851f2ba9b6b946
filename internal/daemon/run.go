package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bashbuddy/internal/agent"
	"bashbuddy/internal/config"
	"bashbuddy/internal/logging"
	"bashbuddy/internal/paths"
	"bashbuddy/internal/session"
	"bashbuddy/internal/tools"
)

// Run assembles and runs the daemon in the foreground: config, logger,
// generation client, orchestrator, session, server, lifecycle. Errors
// returned here land on stderr, where the lifecycle manager's startup
// diagnostics capture them.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logPath, err := paths.LogPath()
	if err != nil {
		return err
	}
	socketPath, err := paths.SocketPath()
	if err != nil {
		return err
	}
	pidPath, err := paths.PIDPath()
	if err != nil {
		return err
	}
	lockPath, err := paths.LockPath()
	if err != nil {
		return err
	}

	logger, err := logging.New(logPath, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gen, err := agent.NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return fmt.Errorf("initialize generation client: %w", err)
	}
	logger.Info("generation client initialized", zap.String("model", cfg.Model))

	orch := agent.New(gen, tools.NewExecutor(), logger, cfg.GenerateTimeout)
	sess := session.New()

	server := NewServer(socketPath, cfg.MaxConnections, logger)
	RegisterHandlers(server, sess, orch, logger)

	return NewLifecycle(server, pidPath, socketPath, lockPath, logger).Run(ctx)
}
