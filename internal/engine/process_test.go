package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestProcessEngineStreamsStdoutLines(t *testing.T) {
	e := NewProcessEngine(Metadata{ID: "echo", Name: "echo"}, "printf", "")
	e.ArgsForRequest = func(req RunRequest) []string {
		return []string{"line one\nline two\n"}
	}

	var lines []string
	resp, err := e.Run(RunRequest{
		OnData: func(chunk string) { lines = append(lines, chunk) },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "line one" || lines[1] != "line two" {
		t.Errorf("expected two streamed lines, got %v", lines)
	}
	if !strings.Contains(resp.Stdout, "line one") {
		t.Errorf("expected Stdout to contain streamed output, got %q", resp.Stdout)
	}
}

func TestProcessEngineHonorsContextCancellation(t *testing.T) {
	e := NewProcessEngine(Metadata{ID: "sleep", Name: "sleep"}, "sleep", "")
	e.ArgsForRequest = func(req RunRequest) []string { return []string{"5"} }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Run(RunRequest{Ctx: ctx})
	if err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestProcessEngineTracksAndUntracksPID(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pids.txt")

	e := NewProcessEngine(Metadata{ID: "echo", Name: "echo"}, "printf", pidFile)
	e.ArgsForRequest = func(req RunRequest) []string { return []string{"hi\n"} }

	if _, err := e.Run(RunRequest{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("expected pid file to exist: %v", err)
	}
	if strings.TrimSpace(string(data)) != "" {
		t.Errorf("expected pid file emptied after process exit, got %q", data)
	}
}

func TestProcessEngineDefaultAuthIsTrue(t *testing.T) {
	e := NewProcessEngine(Metadata{ID: "echo", Name: "echo"}, "printf", "")
	ok, err := e.IsAuthenticated(context.Background())
	if err != nil || !ok {
		t.Errorf("expected default auth probe to report true/nil, got %v/%v", ok, err)
	}
}
