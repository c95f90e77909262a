package engine

import (
	"context"
	"os/exec"
	"path/filepath"
)

// NewCodex returns a ProcessEngine wrapping the "codex" CLI's
// non-interactive exec mode.
func NewCodex(runDir string) *ProcessEngine {
	e := NewProcessEngine(
		Metadata{ID: "codex", Name: "Codex", DefaultModel: "gpt-5-codex", DefaultModelReasoningEffort: "medium"},
		"codex",
		filepath.Join(runDir, "codex.pid"),
	)
	e.ArgsForRequest = func(req RunRequest) []string {
		args := []string{"exec", "--json", req.Prompt}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		if req.ModelReasoningEffort != "" {
			args = append(args, "--reasoning-effort", req.ModelReasoningEffort)
		}
		if req.SessionID != "" {
			args = append(args, "--resume", req.SessionID)
		}
		return args
	}
	e.AuthProbe = func(ctx context.Context) (bool, error) {
		cmd := exec.CommandContext(ctx, "codex", "auth", "status")
		return cmd.Run() == nil, nil
	}
	return e
}
