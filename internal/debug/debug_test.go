package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShouldEnableFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		path    string
		want    bool
	}{
		{name: "disabled by default", enabled: "", path: "", want: false},
		{name: "enabled explicit", enabled: "1", path: "", want: true},
		{name: "enabled via path", enabled: "", path: "/tmp/scrybe.log", want: true},
		{name: "explicit off wins", enabled: "0", path: "/tmp/scrybe.log", want: false},
		{name: "unknown toggle without path", enabled: "maybe", path: "", want: false},
		{name: "unknown toggle with path", enabled: "maybe", path: "/tmp/scrybe.log", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvEnabled, tt.enabled)
			t.Setenv(EnvLogPath, tt.path)
			if got := ShouldEnableFromEnv(); got != tt.want {
				t.Fatalf("ShouldEnableFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitWritesHeaderAndLines(t *testing.T) {
	defer Close()

	logPath := filepath.Join(t.TempDir(), "forced.log")
	t.Setenv(EnvLogPath, logPath)

	gotPath, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if gotPath != logPath {
		t.Fatalf("Init() path = %q, want %q", gotPath, logPath)
	}
	if !Enabled() {
		t.Fatal("Enabled() = false after Init")
	}

	LogKV("test", "hello", "thread_id", "t1")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "=== SCRYBE DEBUG LOG ===") {
		t.Fatalf("missing header: %q", s)
	}
	if !strings.Contains(s, "hello thread_id=t1") {
		t.Fatalf("missing emitted debug line: %q", s)
	}
	if !strings.Contains(s, "=== DEBUG LOG CLOSED ===") {
		t.Fatalf("missing close marker: %q", s)
	}
}

func TestLogNoopWhenDisabled(t *testing.T) {
	Close()
	// Must not panic or create files.
	Log("test", "ignored")
	Logf("test", "ignored %d", 1)
	LogKV("test", "ignored", "k", "v")
	if Enabled() {
		t.Fatal("Enabled() = true without Init")
	}
	if Path() != "" {
		t.Fatalf("Path() = %q, want empty", Path())
	}
}
