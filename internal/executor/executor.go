// Package executor implements the Step Executor: it resolves an engine
// for one workflow step, loads and concatenates that step's prompt
// files, spawns the engine child process, and streams its output to the
// monitoring log writer while forwarding telemetry to the event bus as
// it arrives.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cortexforge/agentflow/internal/agentconfig"
	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/engine"
	"github.com/cortexforge/agentflow/internal/monitoring"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// DefaultTimeout bounds a single step invocation unless overridden.
const DefaultTimeout = 30 * time.Minute

// EnvAgentTimeout overrides DefaultTimeout, in milliseconds.
const EnvAgentTimeout = "CODEMACHINE_AGENT_TIMEOUT"

// timeoutFromEnv reads EnvAgentTimeout and returns the override it
// requests, or 0 if unset/invalid (meaning: use DefaultTimeout).
func timeoutFromEnv() time.Duration {
	v := os.Getenv(EnvAgentTimeout)
	if v == "" {
		return 0
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// scaffoldDirs are ensured to exist after a builder-flavored step
// completes, so a subsequent step can rely on them being present.
var scaffoldDirs = []string{
	filepath.Join(".codemachine", "agents"),
	filepath.Join(".codemachine", "plan"),
}

// Request carries everything one step invocation needs.
type Request struct {
	Step               *workflow.Step
	StepIndex          int
	WorkflowID         string
	WorkingDir         string
	AgentsDir          string
	Substitutions      map[string]string
	SelectedConditions map[string]bool

	// ResumeMonitoringID, if non-zero, reattaches to an existing log
	// stream instead of allocating a new one.
	ResumeMonitoringID int
	// ResumeSessionID, if non-empty, asks the engine to continue an
	// existing conversation.
	ResumeSessionID string
	// ResumePrompt, if non-empty, replaces the step's initial prompt
	// files with this single continuation turn.
	ResumePrompt string

	Ctx context.Context
}

// Result is what a step invocation produced.
type Result struct {
	Output         string
	MonitoringID   int
	SessionID      string
	EngineID       string
	Model          string
	ChainedPrompts []workflow.ChainedPrompt
}

// Executor runs steps against the engine registry.
type Executor struct {
	Registry *engine.Registry
	Monitor  *monitoring.Monitor
	Bus      *bus.Bus
	Timeout  time.Duration
}

// New returns an Executor with DefaultTimeout, or the CODEMACHINE_AGENT_TIMEOUT
// override (milliseconds) when it is set to a valid positive value.
func New(registry *engine.Registry, monitor *monitoring.Monitor, b *bus.Bus) *Executor {
	timeout := DefaultTimeout
	if override := timeoutFromEnv(); override > 0 {
		timeout = override
	}
	return &Executor{Registry: registry, Monitor: monitor, Bus: b, Timeout: timeout}
}

// Execute resolves an engine, builds the prompt, runs it, and returns
// its output alongside any chained prompts queued for this agent.
func (e *Executor) Execute(req Request) (Result, error) {
	parentCtx := req.Ctx
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	eng, err := e.Registry.Resolve(ctx, req.Step.Engine)
	if err != nil {
		return Result{}, fmt.Errorf("executor: resolve engine for step %d: %w", req.StepIndex, err)
	}

	prompt := req.ResumePrompt
	if prompt == "" {
		prompt, err = workflow.ConcatenatedPrompt(req.Step.PromptPaths, req.Substitutions)
		if err != nil {
			return Result{}, fmt.Errorf("executor: build prompt for step %d: %w", req.StepIndex, err)
		}
	}

	model := req.Step.Model
	if model == "" {
		model = eng.Metadata().DefaultModel
	}
	reasoningEffort := req.Step.ModelReasoningEffort
	if reasoningEffort == "" {
		reasoningEffort = eng.Metadata().DefaultModelReasoningEffort
	}

	var stream *monitoring.Stream
	if req.ResumeMonitoringID != 0 {
		stream = e.Monitor.Resume(req.WorkflowID, req.Step.AgentID, req.StepIndex, req.ResumeMonitoringID)
	} else {
		stream = e.Monitor.Register(req.WorkflowID, req.Step.AgentID, req.StepIndex)
	}
	e.Monitor.EmitEngineModel(stream, eng.Metadata().ID, model)

	runResp, err := eng.Run(engine.RunRequest{
		Prompt:               prompt,
		WorkingDir:           req.WorkingDir,
		Model:                model,
		ModelReasoningEffort: reasoningEffort,
		SessionID:            req.ResumeSessionID,
		OnData: func(chunk string) {
			e.Monitor.AppendChunk(stream.ID, chunk)
		},
		OnErrorData: func(chunk string) {
			e.Monitor.AppendChunk(stream.ID, "[stderr] "+chunk)
		},
		OnTelemetry: func(t engine.Telemetry) {
			e.Monitor.RecordTelemetry(stream, t.TokensUsed, t.ReasoningTime)
		},
		Ctx: ctx,
	})
	if err != nil {
		return Result{}, err
	}

	if err := e.ensureScaffold(req); err != nil {
		return Result{}, fmt.Errorf("executor: ensure scaffold for step %d: %w", req.StepIndex, err)
	}

	chained, err := e.loadChainedPrompts(req)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Output:         runResp.Stdout,
		MonitoringID:   stream.ID,
		SessionID:      runResp.SessionID,
		EngineID:       eng.Metadata().ID,
		Model:          model,
		ChainedPrompts: chained,
	}, nil
}

// isBuilderStep reports whether a step's scaffold directories must exist
// after it runs: the dedicated agents-builder step, or any step whose
// agent id names it a builder variant.
func isBuilderStep(step *workflow.Step) bool {
	return step.AgentID == "agents-builder" || strings.Contains(strings.ToLower(step.AgentID), "builder")
}

func (e *Executor) ensureScaffold(req Request) error {
	if !isBuilderStep(req.Step) {
		return nil
	}
	for _, d := range scaffoldDirs {
		if err := os.MkdirAll(filepath.Join(req.WorkingDir, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) loadChainedPrompts(req Request) ([]workflow.ChainedPrompt, error) {
	if req.AgentsDir == "" {
		return nil, nil
	}
	path := agentconfig.PathForAgent(req.AgentsDir, req.Step.AgentID)
	cfg, err := agentconfig.Load(path, req.Step.AgentID)
	if err != nil {
		return nil, fmt.Errorf("load agent config for %s: %w", req.Step.AgentID, err)
	}
	return workflow.FilterChainedPrompts(cfg.ChainedPrompts, req.SelectedConditions), nil
}
