package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", b, err)
	}
	return m
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello",
		Int("n", 3),
		Bool("ok", true),
		Duration("d", time.Second),
		Err(errors.New("boom")),
		Err(nil),
	)

	m := decodeLine(t, buf.Bytes())
	if m["message"] != "hello" || m["comp"] != "test" || m["err"] != "boom" {
		t.Fatalf("line = %v", m)
	}
	if m["n"] != float64(3) || m["ok"] != true {
		t.Fatalf("line = %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	log.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatalf("Enabled mismatch")
	}
	log.Warn("kept")
	if m := decodeLine(t, buf.Bytes()); m["level"] != "warn" {
		t.Fatalf("line = %v", m)
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()

	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
	zero.Info("no panic")
	if Nop().IsZero() {
		t.Fatalf("Nop should not report IsZero")
	}
}

func TestServiceFileSinkAndApply(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	log.Info("first")
	log.Debug("hidden")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("second")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d (%q), want 2", len(lines), b)
	}
	if m := decodeLine(t, []byte(lines[1])); m["message"] != "second" {
		t.Fatalf("second line = %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" WARNING ", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("ParseLevel(%q) = %v,%v", tc.in, got, ok)
		}
	}
}
