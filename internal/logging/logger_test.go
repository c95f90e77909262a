package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelWarn, Colored: false})
	l.output = &buf

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("expected debug/info filtered out, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warn/error present, got: %s", out)
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelDebug, Colored: false})
	l.output = &buf

	c := l.WithComponent("runner")
	c.output = &buf
	c.Info("step started")

	if !strings.Contains(buf.String(), "[runner]") {
		t.Errorf("expected component prefix, got: %s", buf.String())
	}
}

func TestLoggerFileSinkStripsColor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debug.log")

	l := New(&Config{Level: LevelDebug, Colored: true, FilePath: path})
	defer l.Close()

	l.Info("hello file sink")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "\033[") {
		t.Errorf("expected file sink to be free of ANSI codes, got: %q", string(data))
	}
	if !strings.Contains(string(data), "hello file sink") {
		t.Errorf("expected message in file sink, got: %q", string(data))
	}
}

func TestBootstrapEnablesDebugFileFromLogLevel(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDebug, "")

	Bootstrap(dir)
	defer Global().Close()

	if _, err := os.Stat(filepath.Join(dir, DebugLogFile)); err != nil {
		t.Errorf("expected debug log file to be created: %v", err)
	}
}

func TestBootstrapEnablesDebugFileFromDebugEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDebug, "1")

	Bootstrap(dir)
	defer Global().Close()

	if _, err := os.Stat(filepath.Join(dir, DebugLogFile)); err != nil {
		t.Errorf("expected debug log file to be created: %v", err)
	}
}

func TestDebugBootstrapEnabled(t *testing.T) {
	t.Setenv(EnvDebugBootstrap, "")
	if DebugBootstrapEnabled() {
		t.Error("expected disabled when unset")
	}
	t.Setenv(EnvDebugBootstrap, "1")
	if !DebugBootstrapEnabled() {
		t.Error("expected enabled when set to 1")
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct{ input, expected string }{
		{"\033[31mRed\033[0m", "Red"},
		{"\033[32mGreen\033[0m text", "Green text"},
		{"No colors", "No colors"},
	}
	for _, tt := range tests {
		if got := stripANSI(tt.input); got != tt.expected {
			t.Errorf("stripANSI(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
