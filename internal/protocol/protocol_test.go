package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	requests := []Request{
		{Command: CommandPing},
		{Command: CommandAsk, Message: "list files here"},
		{Command: CommandAsk, Message: "multi\nline\nquery", ForceFresh: true},
		{Command: CommandHistory},
	}

	for _, want := range requests {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, want); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}

		raw, err := ReadFrame(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		got, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}
		if !reflect.DeepEqual(*got, want) {
			t.Errorf("round trip mismatch: got %+v, want %+v", *got, want)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	count := 4
	want := Response{
		Status:      StatusOK,
		Command:     "ls -la",
		Explanation: "lists files, including hidden ones",
		Cached:      true,
		FunctionCalls: []ToolCall{
			{Name: "list_files", Args: map[string]any{"path": "."}},
		},
		History: []Turn{
			{Role: "user", Content: "list files"},
			{Role: "assistant", Content: "Command: ls\nExplanation: lists files"},
		},
		Count: &count,
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	raw, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	got, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", *got, want)
	}
}

// A frame split across many small writes must only be delivered once the
// terminator arrives.
func TestReadFramePartialDelivery(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := `{"command":"ask","message":"hello"}` + Terminator
	go func() {
		for _, b := range []byte(payload) {
			if _, err := client.Write([]byte{b}); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	done := make(chan struct{})
	var raw []byte
	var err error
	go func() {
		raw, err = ReadFrame(bufio.NewReader(server))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ReadFrame did not complete")
	}
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	req, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Message != "hello" {
		t.Errorf("expected message 'hello', got %q", req.Message)
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"command":"ping"}`))
	if _, err := ReadFrame(r); err == nil {
		t.Fatal("expected error for stream without terminator")
	} else if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF-derived error, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	huge := strings.Repeat("x", MaxFrameSize+2)
	r := bufio.NewReader(strings.NewReader(huge))
	if _, err := ReadFrame(r); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	if _, err := DecodeRequest([]byte("{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

// Newlines inside message strings are escaped by the JSON encoder, so the
// terminator never appears mid-frame.
func TestTerminatorNeverInsidePayload(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Command: CommandAsk, Message: "a\n\nb"}
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	body := buf.String()
	if got := strings.Count(body, Terminator); got != 1 {
		t.Errorf("expected exactly one terminator in encoded frame, found %d", got)
	}
}
