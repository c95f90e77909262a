package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/engine"
	"github.com/cortexforge/agentflow/internal/monitoring"
	"github.com/cortexforge/agentflow/internal/workflow"
)

type fakeEngine struct {
	meta        engine.Metadata
	lastRequest engine.RunRequest
	stdout      string
	sessionID   string
}

func (f *fakeEngine) Metadata() engine.Metadata                 { return f.meta }
func (f *fakeEngine) IsAuthenticated(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeEngine) SyncConfig(additionalAgents []string) error { return nil }
func (f *fakeEngine) Run(req engine.RunRequest) (engine.RunResponse, error) {
	f.lastRequest = req
	if req.OnData != nil {
		req.OnData("chunk one")
	}
	if req.OnTelemetry != nil {
		req.OnTelemetry(engine.Telemetry{TokensUsed: 42, ReasoningTime: 1.1})
	}
	return engine.RunResponse{Stdout: f.stdout, SessionID: f.sessionID}, nil
}

func newTestExecutor(t *testing.T, fe *fakeEngine) *Executor {
	t.Helper()
	reg := engine.NewRegistry(nil)
	reg.Register(fe)
	b := bus.NewBus()
	mon := monitoring.New(b)
	return New(reg, mon, b)
}

func writePrompt(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	return path
}

func TestExecuteRunsPromptAndReturnsOutput(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePrompt(t, dir, "prompt.md", "hello {{projectName}}")

	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1", Name: "Eng One", DefaultModel: "model-a"}, stdout: "done"}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agent-a", PromptPaths: []string{promptPath}}

	res, err := ex.Execute(Request{
		Step:          step,
		StepIndex:     0,
		WorkflowID:    "wf-1",
		WorkingDir:    dir,
		Substitutions: map[string]string{"projectName": "Acme"},
		Ctx:           context.Background(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output != "done" {
		t.Errorf("expected output 'done', got %q", res.Output)
	}
	if res.EngineID != "eng-1" || res.Model != "model-a" {
		t.Errorf("expected resolved engine/model, got %+v", res)
	}
	if fe.lastRequest.Prompt != "hello Acme" {
		t.Errorf("expected substituted prompt, got %q", fe.lastRequest.Prompt)
	}
}

func TestExecuteUsesResumePromptWhenProvided(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1"}}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agent-a", PromptPaths: []string{"unused.md"}}

	_, err := ex.Execute(Request{
		Step:            step,
		WorkingDir:      dir,
		ResumePrompt:    "continue please",
		ResumeSessionID: "sess-1",
		Ctx:             context.Background(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if fe.lastRequest.Prompt != "continue please" {
		t.Errorf("expected resume prompt to bypass prompt files, got %q", fe.lastRequest.Prompt)
	}
	if fe.lastRequest.SessionID != "sess-1" {
		t.Errorf("expected resume session id to be forwarded, got %q", fe.lastRequest.SessionID)
	}
}

func TestExecuteEnsuresScaffoldForBuilderStep(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePrompt(t, dir, "p.md", "build it")
	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1"}}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agents-builder", PromptPaths: []string{promptPath}}

	_, err := ex.Execute(Request{Step: step, WorkingDir: dir, Ctx: context.Background()})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, d := range []string{filepath.Join(dir, ".codemachine", "agents"), filepath.Join(dir, ".codemachine", "plan")} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected scaffold dir %s to exist", d)
		}
	}
}

func TestExecuteSkipsScaffoldForNonBuilderStep(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePrompt(t, dir, "p.md", "plain step")
	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1"}}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agent-a", PromptPaths: []string{promptPath}}

	_, err := ex.Execute(Request{Step: step, WorkingDir: dir, Ctx: context.Background()})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".codemachine")); !os.IsNotExist(err) {
		t.Error("expected no scaffold dirs for a non-builder step")
	}
}

func TestExecuteLoadsAndFiltersChainedPrompts(t *testing.T) {
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgContent := `
id: agent-a
chainedPrompts:
  - label: gated
    content: "only if condition met"
    conditions: ["needs-tests"]
  - label: always
    content: "always queued"
`
	if err := os.WriteFile(filepath.Join(agentsDir, "agent-a.yaml"), []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("write agent config: %v", err)
	}
	promptPath := writePrompt(t, dir, "p.md", "go")

	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1"}}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agent-a", PromptPaths: []string{promptPath}}

	res, err := ex.Execute(Request{
		Step:               step,
		WorkingDir:         dir,
		AgentsDir:          agentsDir,
		SelectedConditions: map[string]bool{},
		Ctx:                context.Background(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.ChainedPrompts) != 1 || res.ChainedPrompts[0].Label != "always" {
		t.Errorf("expected only the ungated chained prompt, got %+v", res.ChainedPrompts)
	}
}

func TestExecuteRecordsTelemetryAndLog(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePrompt(t, dir, "p.md", "go")
	fe := &fakeEngine{meta: engine.Metadata{ID: "eng-1"}, stdout: "result"}
	ex := newTestExecutor(t, fe)

	step := &workflow.Step{Kind: workflow.StepKindModule, AgentID: "agent-a", PromptPaths: []string{promptPath}}

	res, err := ex.Execute(Request{Step: step, WorkingDir: dir, Ctx: context.Background()})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	s, ok := ex.Monitor.Get(res.MonitoringID)
	if !ok {
		t.Fatalf("expected stream to be registered")
	}
	if s.Log() != "chunk one" {
		t.Errorf("expected streamed chunk in log, got %q", s.Log())
	}
	tokens, reasoning := s.Telemetry()
	if tokens != 42 || reasoning != 1.1 {
		t.Errorf("expected forwarded telemetry, got tokens=%d reasoning=%f", tokens, reasoning)
	}
}
