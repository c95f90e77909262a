package engine

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
)

// NewClaudeCode returns a ProcessEngine that drives the "claude" CLI in
// non-interactive mode, one child process per invocation.
func NewClaudeCode(agentsDir string) *ProcessEngine {
	e := NewProcessEngine(
		Metadata{ID: "claude-code", Name: "Claude Code", DefaultModel: "sonnet", DefaultModelReasoningEffort: "medium"},
		"claude",
		filepath.Join(agentsDir, "..", "run", "claude-code.pid"),
	)
	e.ArgsForRequest = func(req RunRequest) []string {
		args := []string{"-p", req.Prompt, "--output-format", "text"}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		if req.SessionID != "" {
			args = append(args, "--resume", req.SessionID)
		}
		return args
	}
	e.AuthProbe = func(ctx context.Context) (bool, error) {
		cmd := exec.CommandContext(ctx, "claude", "config", "get", "status")
		return cmd.Run() == nil, nil
	}
	return e
}

// claudeAgentsConfig mirrors the subset of claude-code's on-disk agent
// registry this program needs to keep current.
type claudeAgentsConfig struct {
	Agents []string `json:"agents"`
}

// SyncClaudeAgentsConfig writes additionalAgents to claude-code's
// agents-config.json: it creates agentsDir if missing and overwrites any
// existing file without reading it first.
func SyncClaudeAgentsConfig(agentsDir string, additionalAgents []string) error {
	if agentsDir == "" {
		return nil
	}
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		return err
	}
	cfg := claudeAgentsConfig{Agents: additionalAgents}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(agentsDir, "agents-config.json"), data, 0o644)
}
