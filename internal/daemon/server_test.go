package daemon

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"bashbuddy/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	// Socket paths have a tight length limit on some platforms, so use a
	// short directory under the system temp root.
	dir, err := os.MkdirTemp("", "bb-sock")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "daemon.sock")
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := testSocketPath(t)
	srv := NewServer(socketPath, 4, zap.NewNop())
	srv.RegisterHandler(protocol.CommandPing, func(_ context.Context, _ *protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Message: "pong"}
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, socketPath
}

func TestServerPingOverSocket(t *testing.T) {
	_, socketPath := startTestServer(t)

	resp, err := NewClient(socketPath).Call(protocol.Request{Command: protocol.CommandPing})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Status != protocol.StatusOK || resp.Message != "pong" {
		t.Fatalf("got %+v, want ok/pong", resp)
	}
}

func TestServerMalformedRequestGetsErrorFrame(t *testing.T) {
	_, socketPath := startTestServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json\n\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
}

func TestServerUnknownCommand(t *testing.T) {
	_, socketPath := startTestServer(t)

	resp, err := NewClient(socketPath).Call(protocol.Request{Command: "frobnicate"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Status != protocol.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if !strings.Contains(resp.Message, "Unknown command") {
		t.Fatalf("message = %q, want unknown command", resp.Message)
	}
}

func TestServerStopRemovesSocket(t *testing.T) {
	srv, socketPath := startTestServer(t)

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatalf("socket still present after Stop: %v", err)
	}
}

func TestServerRefusesLiveSocket(t *testing.T) {
	_, socketPath := startTestServer(t)

	second := NewServer(socketPath, 4, zap.NewNop())
	err := second.Start(context.Background())
	if err == nil {
		_ = second.Stop()
		t.Fatal("second Start succeeded on a live socket")
	}
	if !strings.Contains(err.Error(), "in use") {
		t.Fatalf("err = %v, want in-use refusal", err)
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	socketPath := testSocketPath(t)
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srv := NewServer(socketPath, 4, zap.NewNop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start over stale socket: %v", err)
	}
	defer srv.Stop()

	if !NewClient(socketPath).Ping() {
		t.Fatal("daemon not answering after stale socket replacement")
	}
}

// A slow handler on one connection must not delay a ping on another.
func TestPingResponsiveDuringSlowRequest(t *testing.T) {
	srv, socketPath := startTestServer(t)

	release := make(chan struct{})
	srv.RegisterHandler(protocol.CommandAsk, func(_ context.Context, _ *protocol.Request) protocol.Response {
		<-release
		return protocol.Response{Status: protocol.StatusOK, Message: "done"}
	})

	askDone := make(chan error, 1)
	go func() {
		_, err := NewClient(socketPath).Call(protocol.Request{Command: protocol.CommandAsk, Message: "slow"})
		askDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !NewClient(socketPath).Ping() {
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("ping not answered while ask in flight")
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(release)
	if err := <-askDone; err != nil {
		t.Fatalf("slow ask failed: %v", err)
	}
}
