// Package daemon implements the background process at the core of
// bashbuddy: the unix socket transport, the request handlers, the PID
// marker, the daemon-side lifecycle, and the client-side pieces (adapter
// and lifecycle manager) used to reach and control it.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"bashbuddy/internal/protocol"
)

const (
	// connReadTimeout bounds how long a connection may take to deliver a
	// complete request frame.
	connReadTimeout = 30 * time.Second

	// connWriteTimeout bounds writing the response frame.
	connWriteTimeout = 10 * time.Second

	// stopDrainTimeout bounds waiting for in-flight connections on Stop.
	stopDrainTimeout = 5 * time.Second
)

// Handler processes one decoded request and returns the response frame.
type Handler func(ctx context.Context, req *protocol.Request) protocol.Response

// Server accepts connections on a local unix socket, deframes one
// request per connection, dispatches it by command name, and writes one
// response frame. Concurrency is bounded by a counting semaphore so load
// cannot grow the handler count without bound.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]Handler
	sem        chan struct{}
	logger     *zap.Logger

	mu       sync.RWMutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server. maxConns caps concurrently handled
// connections.
func NewServer(socketPath string, maxConns int, logger *zap.Logger) *Server {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
		sem:        make(chan struct{}, maxConns),
		logger:     logger,
	}
}

// RegisterHandler registers a handler for a command name.
func (s *Server) RegisterHandler(command string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = h
}

// Start binds the socket and begins accepting connections. The accept
// loop stops when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	// The socket is the only access control on the IPC channel.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	go s.acceptLoop(ctx)
	s.logger.Info("server listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop closes the listener, waits briefly for in-flight connections, and
// removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopDrainTimeout):
		s.logger.Warn("timed out waiting for in-flight connections")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// removeStaleSocket clears a leftover socket file, refusing to clobber
// one that another live daemon is still answering on.
func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// acceptLoop accepts connections until shutdown. The semaphore is
// acquired here so the daemon stops accepting new work when saturated
// instead of spawning handlers without bound; accepted connections are
// always handled on their own goroutine, so slow asks never block ping.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown || ctx.Err() != nil {
				return
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves one request/response cycle. Whatever goes
// wrong, it attempts to write a well-formed error frame before closing.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.sem }()
	defer func() { _ = conn.Close() }()

	reqID := ulid.Make().String()
	logger := s.logger.With(zap.String("request_id", reqID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", zap.Any("panic", r))
			s.writeResponse(conn, logger, protocol.ErrorResponse("internal error"))
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(connReadTimeout))
	raw, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		logger.Warn("failed to read request", zap.Error(err))
		s.writeResponse(conn, logger, protocol.ErrorResponse("failed to read request: %v", err))
		return
	}

	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		logger.Warn("malformed request", zap.Error(err))
		s.writeResponse(conn, logger, protocol.ErrorResponse("%v", err))
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		s.writeResponse(conn, logger, protocol.ErrorResponse("Unknown command: %s", req.Command))
		return
	}

	logger.Debug("handling request", zap.String("command", req.Command))
	resp := handler(ctx, req)
	s.writeResponse(conn, logger, resp)
}

func (s *Server) writeResponse(conn net.Conn, logger *zap.Logger, resp protocol.Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	if err := protocol.WriteFrame(conn, resp); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}
