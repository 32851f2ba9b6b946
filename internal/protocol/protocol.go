// Package protocol defines the request/response frames exchanged over
// the daemon's unix socket and the framing codec.
//
// A frame is one UTF-8 JSON object followed by a blank line ("\n\n").
// encoding/json escapes newlines inside string values, so the terminator
// can never appear inside a well-formed payload.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Commands understood by the daemon.
const (
	CommandAsk     = "ask"
	CommandReset   = "reset"
	CommandHistory = "history"
	CommandPing    = "ping"
	CommandStatus  = "status"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Terminator ends every frame.
const Terminator = "\n\n"

// MaxFrameSize bounds how many bytes a peer may send before the
// terminator. Frames beyond this are treated as malformed.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Turn is one entry of the conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ToolCall records one tool invocation made while answering a request.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Request is a client-to-daemon frame. Command is always set; the other
// fields are command-specific.
type Request struct {
	Command    string `json:"command"`
	Message    string `json:"message,omitempty"`
	ForceFresh bool   `json:"force_fresh,omitempty"`
}

// Response is a daemon-to-client frame. Status is always set; the other
// fields depend on the command and outcome.
type Response struct {
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	Command       string     `json:"command,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
	Cached        bool       `json:"cached,omitempty"`
	FunctionCalls []ToolCall `json:"function_calls,omitempty"`
	History       []Turn     `json:"history,omitempty"`
	Count         *int       `json:"count,omitempty"`
	PID           int        `json:"pid,omitempty"`
}

// ErrorResponse builds an error frame with a human-readable message.
func ErrorResponse(format string, args ...any) Response {
	return Response{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// WriteFrame serializes v as JSON and appends the frame terminator.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, Terminator...)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame accumulates bytes from r until the terminator is observed and
// returns exactly the bytes preceding it. A partial frame is never
// returned: if the stream ends before the terminator, the read error is
// reported instead.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := r.ReadBytes('\n')
		buf.Write(chunk)
		if idx := bytes.Index(buf.Bytes(), []byte(Terminator)); idx >= 0 {
			return buf.Bytes()[:idx], nil
		}
		if buf.Len() > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}
}

// DecodeRequest parses a raw frame into a Request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	return &req, nil
}

// DecodeResponse parses a raw frame into a Response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}
