package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRuntimeDirOverride(t *testing.T) {
	tmpDir := t.TempDir()
	override := filepath.Join(tmpDir, "bbhome")
	t.Setenv("BASHBUDDY_HOME", override)

	dir, err := RuntimeDir()
	if err != nil {
		t.Fatalf("RuntimeDir failed: %v", err)
	}
	if dir != override {
		t.Errorf("expected %s, got %s", override, dir)
	}

	// Directory is created on first use
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("runtime dir was not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("runtime dir is not a directory")
	}
}

func TestRuntimeFiles(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("BASHBUDDY_HOME", tmpDir)

	cases := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"socket", SocketPath, "daemon.sock"},
		{"pid", PIDPath, "daemon.pid"},
		{"lock", LockPath, "daemon.lock"},
		{"log", LogPath, "daemon.log"},
		{"config", ConfigPath, "config.yaml"},
	}

	for _, tc := range cases {
		got, err := tc.fn()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != filepath.Join(tmpDir, tc.want) {
			t.Errorf("%s: expected %s under %s, got %s", tc.name, tc.want, tmpDir, got)
		}
	}
}
