package engine

import (
	"context"
	"net/http"
	"path/filepath"
	"time"
)

// NewOllamaAgent returns a ProcessEngine driving a local "ollama run"
// child process. Unlike the cloud-backed engines, authentication is a
// reachability probe against the local daemon rather than a credential
// check (grounded on the teacher's Ollama HTTP client, generalized from
// request-response to a lightweight health ping).
func NewOllamaAgent(runDir, endpoint string) *ProcessEngine {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:11434"
	}
	e := NewProcessEngine(
		Metadata{ID: "ollama-agent", Name: "Ollama", DefaultModel: "qwen2.5-coder:32b", DefaultModelReasoningEffort: ""},
		"ollama",
		filepath.Join(runDir, "ollama-agent.pid"),
	)
	e.ArgsForRequest = func(req RunRequest) []string {
		model := req.Model
		if model == "" {
			model = e.Metadata().DefaultModel
		}
		return []string{"run", model, req.Prompt}
	}
	client := &http.Client{Timeout: 2 * time.Second}
	e.AuthProbe = func(ctx context.Context) (bool, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/tags", nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return false, nil
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK, nil
	}
	return e
}
