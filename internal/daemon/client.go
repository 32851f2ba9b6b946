package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"bashbuddy/internal/protocol"
)

// Transport error classification. All of these are transient: the caller
// recovers by re-running EnsureRunning.
var (
	// ErrDaemonNotRunning means the socket file does not exist.
	ErrDaemonNotRunning = errors.New("daemon is not running")

	// ErrConnectionRefused means the socket exists but nothing answers
	// on it (the daemon likely crashed).
	ErrConnectionRefused = errors.New("could not connect to daemon")

	// ErrTimeout means the request exceeded the client deadline. The
	// deadline is generous because the upstream service may rate-limit.
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionBroken means the connection dropped mid-exchange.
	ErrConnectionBroken = errors.New("connection to daemon broken")
)

const (
	dialTimeout = 2 * time.Second

	// DefaultRequestTimeout bounds one full request/response cycle.
	DefaultRequestTimeout = 60 * time.Second
)

// Client opens one connection per request, sends a single frame, and
// reads a single frame back.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: DefaultRequestTimeout}
}

// NewClientWithTimeout returns a client with a custom request timeout.
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Call performs one request/response cycle.
func (c *Client) Call(req protocol.Request) (*protocol.Response, error) {
	if _, err := os.Stat(c.socketPath); err != nil {
		return nil, fmt.Errorf("%w: socket %s not found", ErrDaemonNotRunning, c.socketPath)
	}

	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, classifyErr(err, "dial")
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := protocol.WriteFrame(conn, req); err != nil {
		return nil, classifyErr(err, "send request")
	}

	raw, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return nil, classifyErr(err, "read response")
	}

	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed response from daemon: %w", err)
	}
	return resp, nil
}

// Ping reports whether the daemon answers on the socket.
func (c *Client) Ping() bool {
	resp, err := NewClientWithTimeout(c.socketPath, 2*time.Second).Call(
		protocol.Request{Command: protocol.CommandPing})
	return err == nil && resp.Status == protocol.StatusOK
}

func classifyErr(err error, op string) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w during %s (API may be slow or rate limited)", ErrTimeout, op)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: connection refused", ErrConnectionRefused)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w during %s (daemon may have crashed)", ErrConnectionBroken, op)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w during %s", ErrTimeout, op)
	default:
		return fmt.Errorf("communication error during %s: %w", op, err)
	}
}
