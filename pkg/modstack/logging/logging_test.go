package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These tests share global logging state and must not run in parallel.

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "warning", want: LevelWarn},
		{input: "error", want: LevelError},
		{input: "", want: LevelInfo},
		{input: "verbose", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEarlyLoggerFollowsInit(t *testing.T) {
	early := Get("store")
	early.Info("dropped before init")

	path := filepath.Join(t.TempDir(), "modstack.log")
	if err := Init(Config{Level: "debug", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	early.Info("resolved", "path", "Actor/Pack/Lizal.bactorpack")
	Get("unpack").With("run", 7).Debug("folded")

	if err := Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "dropped before init") {
		t.Error("entries logged before Init must be discarded")
	}
	for _, want := range []string{"store", "resolved", "Actor/Pack/Lizal.bactorpack", "unpack", "run=7"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestComponentLevels(t *testing.T) {
	var buf bytes.Buffer
	consoleOutput = &buf
	t.Cleanup(func() { consoleOutput = os.Stderr })

	err := Init(Config{
		Level:        "info",
		ConsoleLevel: "warn",
		Components:   map[string]string{"cache": "error"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Get("layer").Info("not shown on console")
	Get("layer").Warn("layer api mismatch")

	if strings.Contains(buf.String(), "not shown") {
		t.Error("console must respect its own level")
	}
	if !strings.Contains(buf.String(), "layer api mismatch") {
		t.Errorf("console missing warning:\n%s", buf.String())
	}

	if err := Init(Config{Components: map[string]string{"x": "loud"}}); err == nil {
		t.Error("expected error for invalid component level")
	}
}

func TestRotatingWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modstack.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 64, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 4; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("want active file plus one backup, got %d entries", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(line)) {
		t.Errorf("active file size = %d, want %d", info.Size(), len(line))
	}

	if _, err := w.Write(line); err == nil {
		t.Error("Write after Close should fail")
	}
}
