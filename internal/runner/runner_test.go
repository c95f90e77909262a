package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexforge/agentflow/internal/behavior"
	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/control"
	"github.com/cortexforge/agentflow/internal/engine"
	"github.com/cortexforge/agentflow/internal/executor"
	"github.com/cortexforge/agentflow/internal/input"
	"github.com/cortexforge/agentflow/internal/monitoring"
	"github.com/cortexforge/agentflow/internal/stepindex"
	"github.com/cortexforge/agentflow/internal/workflow"
)

type scriptedEngine struct {
	meta    engine.Metadata
	outputs []string
	calls   int
}

func (f *scriptedEngine) Metadata() engine.Metadata                      { return f.meta }
func (f *scriptedEngine) IsAuthenticated(ctx context.Context) (bool, error) { return true, nil }
func (f *scriptedEngine) SyncConfig(additionalAgents []string) error     { return nil }
func (f *scriptedEngine) Run(req engine.RunRequest) (engine.RunResponse, error) {
	out := "ok"
	if f.calls < len(f.outputs) {
		out = f.outputs[f.calls]
	}
	f.calls++
	return engine.RunResponse{Stdout: out, SessionID: "sess-1"}, nil
}

func writePromptFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("do the task"), 0o644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}
	return path
}

func newTestRunner(t *testing.T, tmpl *workflow.Template, eng *scriptedEngine) (*Runner, *stepindex.Index) {
	t.Helper()
	dir := t.TempDir()
	reg := engine.NewRegistry(nil)
	reg.Register(eng)

	b := bus.NewBus()
	mon := monitoring.New(b)
	ex := executor.New(reg, mon, b)

	idx, err := stepindex.Open(filepath.Join(dir, "stepindex"))
	if err != nil {
		t.Fatalf("stepindex.Open failed: %v", err)
	}

	run := workflow.NewRunIndex()
	r := New(tmpl, run, idx, b, control.New(), ex, mon, reg)
	r.WorkingDir = dir
	return r, idx
}

func TestRunnerExecutesSequentialSteps(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")
	p2 := writePromptFile(t, dir, "p2.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true},
		{Kind: workflow.StepKindModule, AgentID: "agent-2", PromptPaths: []string{p2}, ExecuteOnce: true},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir

	var statuses []bus.Event
	r.Bus.On(bus.EventAgentStatus, func(e bus.Event) { statuses = append(statuses, e) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	completed, notCompleted := idx.CompletedAndNotCompleted(2)
	if len(completed) != 2 || len(notCompleted) != 0 {
		t.Errorf("expected both steps completed, got completed=%v notCompleted=%v", completed, notCompleted)
	}

	completedCount := 0
	for _, e := range statuses {
		if e.Status == bus.AgentStatusCompleted {
			completedCount++
		}
	}
	if completedCount != 2 {
		t.Errorf("expected 2 completed status events, got %d", completedCount)
	}
}

func TestRunnerSkipsStepOutsideSelectedTrack(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, Tracks: []string{"web"}},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir
	r.Run.SelectedTrackID = "cli"

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if eng.calls != 0 {
		t.Errorf("expected engine never invoked for an out-of-track step, got %d calls", eng.calls)
	}
	_, notCompleted := idx.CompletedAndNotCompleted(1)
	if len(notCompleted) != 1 {
		t.Errorf("expected the skipped step to remain not-completed, got %v", notCompleted)
	}
}

func TestRunnerStopSignalHaltsBeforeFirstStep(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, _ := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir
	r.Control.SendStop()

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if eng.calls != 0 {
		t.Errorf("expected no steps to run once stop is requested, got %d calls", eng.calls)
	}
}

func TestRunnerLoopRewindRepeatsPriorStep(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")
	p2 := writePromptFile(t, dir, "p2.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true},
		{
			Kind: workflow.StepKindModule, AgentID: "agent-2", PromptPaths: []string{p2}, ExecuteOnce: true,
			Behavior: workflow.Behavior{Kind: workflow.BehaviorLoop, MaxIterations: 2},
		},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}, outputs: []string{
		"step one output",
		"LOOP_REPEAT: true\nLOOP_STEPS_BACK: 1",
		"second pass, no repeat",
	}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if eng.calls != 4 {
		t.Errorf("expected step 1 then step 2, a rewind back to step 1, then step 2 again (4 total invocations), got %d", eng.calls)
	}
	completed, _ := idx.CompletedAndNotCompleted(2)
	if len(completed) != 2 {
		t.Errorf("expected both steps eventually completed, got %v", completed)
	}
}

func TestRunnerRunsFallbackBeforeRetryingNotCompletedStep(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{
			Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true,
			Fallback: &workflow.Fallback{AgentID: "fallback-agent"},
		},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir

	if err := idx.MarkStepStarted(0); err != nil {
		t.Fatalf("MarkStepStarted failed: %v", err)
	}

	var fallbackCalls int
	var fallbackAgentID string
	r.FallbackRun = func(ctx context.Context, agentID string, parentStep *workflow.Step, parentIndex int) error {
		fallbackCalls++
		fallbackAgentID = agentID
		return nil
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if fallbackCalls != 1 {
		t.Errorf("expected fallback to run exactly once for the not-completed step, got %d", fallbackCalls)
	}
	if fallbackAgentID != "fallback-agent" {
		t.Errorf("expected fallback agent %q, got %q", "fallback-agent", fallbackAgentID)
	}
	if eng.calls != 1 {
		t.Errorf("expected the original step to still run after a successful fallback, got %d calls", eng.calls)
	}
}

func TestRunnerFallbackFailureSkipsRetryAndLeavesStepNotCompleted(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{
			Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true,
			Fallback: &workflow.Fallback{AgentID: "fallback-agent"},
		},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir

	if err := idx.MarkStepStarted(0); err != nil {
		t.Fatalf("MarkStepStarted failed: %v", err)
	}

	fallbackErr := errors.New("fallback agent exploded")
	r.FallbackRun = func(ctx context.Context, agentID string, parentStep *workflow.Step, parentIndex int) error {
		return fallbackErr
	}

	err := r.Start(context.Background())
	var ffe *behavior.FallbackFailedError
	if !errors.As(err, &ffe) {
		t.Fatalf("expected a *behavior.FallbackFailedError, got %v", err)
	}
	if ffe.AgentID != "fallback-agent" {
		t.Errorf("expected failed fallback agent %q, got %q", "fallback-agent", ffe.AgentID)
	}
	if !errors.Is(err, fallbackErr) {
		t.Errorf("expected the error chain to unwrap to the original cause")
	}
	if eng.calls != 0 {
		t.Errorf("expected the original step to never run after a failed fallback, got %d calls", eng.calls)
	}

	_, notCompleted := idx.CompletedAndNotCompleted(1)
	if len(notCompleted) != 1 {
		t.Errorf("expected the step to remain not-completed after a failed fallback, got %v", notCompleted)
	}
}

// chainIndexRecorder is a fake input provider that records every
// PromptQueueIndex it is asked about, then skips, ending the chained
// prompt loop after one observation.
type chainIndexRecorder struct {
	seen []int
}

func (p *chainIndexRecorder) GetInput(ctx context.Context, ic input.Context) (workflow.Input, error) {
	p.seen = append(p.seen, ic.PromptQueueIndex)
	return workflow.Input{Kind: workflow.InputKindSkip}, nil
}

func TestRunnerResumesChainedPromptQueueAtSmallestUncompletedIndex(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir
	r.AgentsDir = filepath.Join(dir, "agents")

	agentCfg := `id: agent-1
chainedPrompts:
  - label: p1
    content: first chain
  - label: p2
    content: second chain
  - label: p3
    content: third chain
`
	if err := os.MkdirAll(r.AgentsDir, 0o755); err != nil {
		t.Fatalf("mkdir agents dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(r.AgentsDir, "agent-1.yaml"), []byte(agentCfg), 0o644); err != nil {
		t.Fatalf("write agent config: %v", err)
	}

	if err := idx.MarkStepStarted(0); err != nil {
		t.Fatalf("MarkStepStarted failed: %v", err)
	}
	if err := idx.InitStepSession(0, "sess-resume", 42); err != nil {
		t.Fatalf("InitStepSession failed: %v", err)
	}
	if err := idx.MarkChainCompleted(0, 0); err != nil {
		t.Fatalf("MarkChainCompleted failed: %v", err)
	}

	recorder := &chainIndexRecorder{}
	r.UserProvider = recorder

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Control.SendCheckpointContinue()
	}()

	done := make(chan error, 1)
	go func() { done <- r.Start(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not unblock after checkpoint continue signal")
	}

	if len(recorder.seen) == 0 {
		t.Fatal("expected the chained prompt loop to consult the input provider at least once")
	}
	if recorder.seen[0] != 1 {
		t.Errorf("expected the chain loop to resume at index 1 (chain 0 already completed), got %v", recorder.seen)
	}
	for _, i := range recorder.seen {
		if i == 0 {
			t.Errorf("expected chain 0 to never be re-fed on resume, saw indices %v", recorder.seen)
		}
	}
}

func TestRunnerCheckpointBlocksUntilContinueSignal(t *testing.T) {
	dir := t.TempDir()
	p1 := writePromptFile(t, dir, "p1.md")

	tmpl := &workflow.Template{Steps: []workflow.Step{
		{
			Kind: workflow.StepKindModule, AgentID: "agent-1", PromptPaths: []string{p1}, ExecuteOnce: true,
			Behavior: workflow.Behavior{Kind: workflow.BehaviorCheckpoint},
		},
	}}

	eng := &scriptedEngine{meta: engine.Metadata{ID: "eng-1"}}
	r, idx := newTestRunner(t, tmpl, eng)
	r.WorkingDir = dir

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Control.SendCheckpointContinue()
	}()

	done := make(chan error, 1)
	go func() { done <- r.Start(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not unblock after checkpoint continue signal")
	}

	completed, _ := idx.CompletedAndNotCompleted(1)
	if len(completed) != 1 {
		t.Errorf("expected the checkpointed step to complete after continue, got %v", completed)
	}
}
