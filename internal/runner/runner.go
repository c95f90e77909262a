// Package runner implements the Workflow Runner: the top-level loop that
// walks a template's in-scope steps, applying skip/loop/trigger/
// checkpoint behaviors between them and suspending at engine execution,
// input-provider calls, checkpoint waits, and pause waits.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/cortexforge/agentflow/internal/behavior"
	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/control"
	"github.com/cortexforge/agentflow/internal/engine"
	"github.com/cortexforge/agentflow/internal/executor"
	"github.com/cortexforge/agentflow/internal/input"
	"github.com/cortexforge/agentflow/internal/monitoring"
	"github.com/cortexforge/agentflow/internal/statemachine"
	"github.com/cortexforge/agentflow/internal/stepindex"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// errWorkflowStopped unwinds the main loop without being treated as an
// execution failure.
var errWorkflowStopped = errors.New("runner: workflow stopped")

// TriggerRunFunc executes a triggered auxiliary agent inline. The Runner
// calls it after a step's Trigger behavior fires; a nil TriggerRunFunc
// makes triggers a no-op.
type TriggerRunFunc func(ctx context.Context, agentID string, parentStep *workflow.Step, parentIndex int) error

// Runner owns one workflow run's mutable state and drives it to
// completion or a stop request.
type Runner struct {
	Template *workflow.Template
	Run      *workflow.RunIndex
	Index    *stepindex.Index
	Machine  *statemachine.Machine
	Bus      *bus.Bus
	Control  *control.Bus
	Executor *executor.Executor
	Monitor  *monitoring.Monitor
	Registry *engine.Registry
	Loops    *behavior.LoopCounter

	UserProvider       input.Provider
	ControllerProvider input.Provider
	TriggerRun         TriggerRunFunc
	// FallbackRun executes a step's fallback agent ahead of retrying a
	// step left over from a prior, interrupted run. Same shape as
	// TriggerRun: both load an auxiliary agent by id and run it inline
	// against the step's working directory.
	FallbackRun TriggerRunFunc

	WorkflowID string
	WorkingDir string
	AgentsDir  string

	// InitialAutoMode seeds ctx.AutoMode at Start, letting a caller (the
	// CLI's --auto flag) select autonomous mode before the first step
	// runs instead of only via a mode-change signal mid-run.
	InitialAutoMode bool

	ctx         workflow.Context
	activeLoop  *workflow.ActiveLoop
	shouldStop  bool
	moduleOrder []int
	notComplete map[int]bool
}

// New returns a Runner wired with its dependencies. Callers populate
// UserProvider/ControllerProvider/TriggerRun afterward as needed.
func New(tmpl *workflow.Template, run *workflow.RunIndex, idx *stepindex.Index, b *bus.Bus, ctrl *control.Bus, ex *executor.Executor, mon *monitoring.Monitor, reg *engine.Registry) *Runner {
	return &Runner{
		Template: tmpl,
		Run:      run,
		Index:    idx,
		Machine:  statemachine.New(),
		Bus:      b,
		Control:  ctrl,
		Executor: ex,
		Monitor:  mon,
		Registry: reg,
		Loops:    behavior.NewLoopCounter(),
	}
}

func (r *Runner) scopedModuleOrder() []int {
	var order []int
	for i := range r.Template.Steps {
		if r.Template.InScope(i, r.Run.SelectedTrackID, r.Run.SelectedConditions) {
			order = append(order, i)
		}
	}
	return order
}

func (r *Runner) substitutions() map[string]string {
	return map[string]string{"projectName": r.Run.ProjectName}
}

// Start runs the pre-population sequence and the main loop to
// completion, a stop request, or an unexpected error.
func (r *Runner) Start(ctx context.Context) error {
	r.Machine.Send(statemachine.Event{Kind: statemachine.EventStart})
	r.moduleOrder = r.scopedModuleOrder()
	r.ctx.TotalSteps = len(r.moduleOrder)
	r.ctx.AutoMode = r.InitialAutoMode

	completed, notCompleted := r.Index.CompletedAndNotCompleted(len(r.moduleOrder))
	r.Run.CompletedSteps = completed
	r.Run.NotCompletedSteps = notCompleted
	r.notComplete = make(map[int]bool, len(notCompleted))
	for _, i := range notCompleted {
		// Only a step a prior run actually started counts for fallback.
		if rec := r.Index.GetStepData(i); rec != nil && rec.StartedAt != nil {
			r.notComplete[i] = true
		}
	}

	started := bus.NewEvent(bus.EventWorkflowStarted)
	started.WorkflowID = r.WorkflowID
	started.ModuleCount = len(r.moduleOrder)
	r.Bus.Emit(started)

	r.prepopulate()

	err := r.mainLoop(ctx)

	if r.shouldStop {
		stopped := bus.NewEvent(bus.EventWorkflowStopped)
		stopped.WorkflowID = r.WorkflowID
		r.Bus.Emit(stopped)
		return nil
	}
	if err != nil {
		return err
	}

	r.Machine.Complete()
	status := bus.NewEvent(bus.EventWorkflowStatus)
	status.WorkflowID = r.WorkflowID
	status.Status = bus.AgentStatusCompleted
	r.Bus.Emit(status)
	return nil
}

// prepopulate emits one agent:added event per in-scope step (so a UI can
// render the full run before anything executes) and one separator:add per
// separator. agent:added.StepIndex uses the same module-order position
// ("pos") that every runtime agent:status event uses, not the raw
// template index, so the two event streams join on the same key even
// when separators or out-of-scope (track/condition-gated) steps exist.
func (r *Runner) prepopulate() {
	pos := 0
	for i, step := range r.Template.Steps {
		s := step
		if s.Kind == workflow.StepKindSeparator {
			ev := bus.NewEvent(bus.EventSeparatorAdd)
			ev.WorkflowID = r.WorkflowID
			ev.StepIndex = i
			ev.Message = s.Label
			r.Bus.Emit(ev)
			continue
		}
		if !r.Template.InScope(i, r.Run.SelectedTrackID, r.Run.SelectedConditions) {
			continue
		}
		ev := bus.NewEvent(bus.EventAgentAdded)
		ev.WorkflowID = r.WorkflowID
		ev.AgentID = s.AgentID
		ev.StepIndex = pos
		r.Bus.Emit(ev)
		pos++
	}
}

func (r *Runner) mainLoop(ctx context.Context) error {
	pos := r.Index.GetResumeStartIndex(len(r.moduleOrder))

	for pos < len(r.moduleOrder) {
		if r.consumeStopSignal() {
			r.shouldStop = true
		}
		if r.shouldStop {
			return nil
		}

		templateIdx := r.moduleOrder[pos]
		step := &r.Template.Steps[templateIdx]
		r.ctx.CurrentStepIndex = pos

		record := r.Index.GetStepData(pos)

		// The executeOnce skip honours only completions loaded at Start,
		// so a loop rewind re-executes steps completed during this run.
		skipRecord := record
		if record != nil && record.CompletedAt != nil {
			skipRecord = nil
			for _, done := range r.Run.CompletedSteps {
				if done == pos {
					skipRecord = record
				}
			}
		}
		skip := behavior.ShouldSkipStep(step, pos, skipRecord, r.activeLoop, r.Run.SelectedTrackID, r.Run.SelectedConditions)
		if skip.Skip {
			r.logSkip(step, pos, skip.Reason)
			pos++
			continue
		}

		r.setAgentStatus(step, pos, bus.AgentStatusRunning, "")
		if err := r.Index.MarkStepStarted(pos); err != nil {
			return fmt.Errorf("runner: mark step %d started: %w", pos, err)
		}

		eng, err := r.Registry.Resolve(ctx, step.Engine)
		if err != nil {
			return fmt.Errorf("runner: resolve engine for step %d: %w", pos, err)
		}
		step.Engine = eng.Metadata().ID

		nextPos, err := r.runStep(ctx, step, pos, record)
		if err != nil {
			if errors.Is(err, errWorkflowStopped) {
				r.shouldStop = true
				return nil
			}
			return err
		}
		pos = nextPos
	}
	return nil
}

func (r *Runner) consumeStopSignal() bool {
	select {
	case <-r.Control.Stop:
		return true
	default:
		return false
	}
}

type cancelReason int

const (
	reasonNone cancelReason = iota
	reasonPause
	reasonSkip
	reasonStop
	reasonModeChange
)

type cancelSignal struct {
	reason     cancelReason
	modeChange control.ModeChangeSignal
}

// watchCancellation starts a goroutine that cancels cancel() on the
// first control signal it observes, reporting which one via the
// returned channel. stop() must be called once the watched operation
// returns to release the goroutine.
func (r *Runner) watchCancellation(cancel context.CancelFunc) (reasonCh chan cancelSignal, stop func()) {
	reasonCh = make(chan cancelSignal, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-r.Control.Pause:
			reasonCh <- cancelSignal{reason: reasonPause}
			cancel()
		case <-r.Control.Skip:
			reasonCh <- cancelSignal{reason: reasonSkip}
			cancel()
		case <-r.Control.Stop:
			reasonCh <- cancelSignal{reason: reasonStop}
			cancel()
		case sig := <-r.Control.ModeChange:
			reasonCh <- cancelSignal{reason: reasonModeChange, modeChange: sig}
			cancel()
		case <-done:
		}
	}()
	return reasonCh, func() { close(done) }
}

// runStep executes step at position pos (or resumes it), applies
// trigger/checkpoint/loop behaviors, and returns the position to
// continue from.
func (r *Runner) runStep(ctx context.Context, step *workflow.Step, pos int, record *stepindex.Record) (int, error) {
	if r.notComplete[pos] {
		if decision := behavior.EvaluateFallback(step, true); decision.ShouldRunFallback && r.FallbackRun != nil {
			if err := r.FallbackRun(ctx, decision.AgentID, step, pos); err != nil {
				return pos, &behavior.FallbackFailedError{AgentID: decision.AgentID, Cause: err}
			}
		}
	}

	resumeMonitoringID := 0
	resumeSessionID := ""
	resumePrompt := ""

	if stepindex.IsResumable(record) {
		resumeMonitoringID = record.MonitoringID
		resumeSessionID = record.SessionID
		if info := r.Index.GetChainResumeInfo(); info.Found && info.StepIndex == pos {
			r.ctx.PromptQueueIndex = info.NextChainIndex
		}
		if r.ctx.AutoMode {
			if !r.ctx.ContinuationPromptSent {
				resumePrompt = "Please continue from where you left off."
				r.ctx.ContinuationPromptSent = true
			}
		} else {
			r.ctx.Paused = true
			r.emitInputState(step, pos, "awaiting manual resume of an interrupted step")
			<-r.Control.CheckpointContinue
			r.ctx.Paused = false
		}
	}

	stepCtx, cancel := context.WithCancel(ctx)
	reasonCh, stopWatch := r.watchCancellation(cancel)

	result, err := r.Executor.Execute(executor.Request{
		Step:               step,
		StepIndex:          pos,
		WorkflowID:         r.WorkflowID,
		WorkingDir:         r.WorkingDir,
		AgentsDir:          r.AgentsDir,
		Substitutions:      r.substitutions(),
		SelectedConditions: r.Run.SelectedConditions,
		ResumeMonitoringID: resumeMonitoringID,
		ResumeSessionID:    resumeSessionID,
		ResumePrompt:       resumePrompt,
		Ctx:                stepCtx,
	})
	stopWatch()

	if err != nil {
		select {
		case sig := <-reasonCh:
			return r.handleCancellation(ctx, step, pos, record, sig)
		default:
			return pos, fmt.Errorf("runner: step %d: %w", pos, err)
		}
	}

	return r.finishStep(ctx, step, pos, result)
}

func (r *Runner) handleCancellation(ctx context.Context, step *workflow.Step, pos int, record *stepindex.Record, sig cancelSignal) (int, error) {
	switch sig.reason {
	case reasonPause:
		r.setAgentStatus(step, pos, bus.AgentStatusAwaiting, "paused")
		r.emitInputState(step, pos, "awaiting input after pause")
		return pos, nil
	case reasonSkip:
		r.setAgentStatus(step, pos, bus.AgentStatusSkipped, "skipped by operator")
		return pos + 1, nil
	case reasonStop:
		r.setAgentStatus(step, pos, bus.AgentStatusStopped, "workflow stopped")
		return pos, errWorkflowStopped
	case reasonModeChange:
		r.ctx.AutoMode = sig.modeChange.AutonomousMode
		return r.runStep(ctx, step, pos, record)
	default:
		return pos, fmt.Errorf("runner: step %d: cancelled for unknown reason", pos)
	}
}

func (r *Runner) finishStep(ctx context.Context, step *workflow.Step, pos int, result executor.Result) (int, error) {
	if err := r.Index.InitStepSession(pos, result.SessionID, result.MonitoringID); err != nil {
		return pos, err
	}
	r.ctx.CurrentOutput = result.Output
	r.ctx.CurrentMonitoringID = result.MonitoringID
	r.ctx.ContinuationPromptSent = false

	if len(result.ChainedPrompts) > 0 {
		startIdx := r.ctx.PromptQueueIndex
		r.ctx.PromptQueueIndex = 0
		if startIdx > len(result.ChainedPrompts) {
			startIdx = len(result.ChainedPrompts)
		}
		out, sessionID, err := r.runChainedPromptLoop(ctx, step, pos, result, startIdx)
		if err != nil {
			return pos, err
		}
		result.Output = out
		result.SessionID = sessionID
		r.ctx.CurrentOutput = out
	}

	if trig := behavior.EvaluateTrigger(step, result.Output); trig.ShouldTrigger && r.TriggerRun != nil {
		if err := r.TriggerRun(ctx, trig.AgentID, step, pos); err != nil {
			return pos, fmt.Errorf("runner: triggered agent %s: %w", trig.AgentID, err)
		}
	}

	r.Index.RemoveFromNotCompleted(pos)
	if step.ExecuteOnce {
		if err := r.Index.MarkStepCompleted(pos); err != nil {
			return pos, err
		}
	}
	r.setAgentStatus(step, pos, bus.AgentStatusCompleted, "")

	if behavior.RequiresCheckpoint(step) {
		if r.awaitCheckpoint(step, pos) == behavior.CheckpointOutcomeQuit {
			return pos, errWorkflowStopped
		}
	}

	iteration := r.Loops.Increment(step.AgentID, pos)
	loopDecision := behavior.EvaluateLoop(step, pos, result.Output, iteration, step.Behavior.MaxIterations)
	if loopDecision.ShouldRepeat {
		r.activeLoop = &workflow.ActiveLoop{
			SourceAgent:   step.AgentID,
			BackSteps:     loopDecision.StepsBack,
			Iteration:     iteration,
			MaxIterations: step.Behavior.MaxIterations,
			SkipList:      loopDecision.SkipList,
			Reason:        loopDecision.Reason,
		}
		ev := bus.NewEvent(bus.EventLoopState)
		ev.WorkflowID = r.WorkflowID
		ev.AgentID = step.AgentID
		ev.StepIndex = pos
		ev.Reason = loopDecision.Reason
		r.Bus.Emit(ev)

		newPos := pos - loopDecision.StepsBack
		if newPos < 0 {
			newPos = 0
		}
		return newPos, nil
	}
	r.activeLoop = nil
	r.Loops.Reset(step.AgentID, pos)

	return pos + 1, nil
}

// runChainedPromptLoop feeds each applicable chained prompt starting at
// startIdx back into the same conversation, consulting the active input
// provider for the operator/controller turn that follows each one.
// startIdx is 0 on a fresh run; on crash recovery it is the smallest
// chain index not already recorded in the step's completedChains, so a
// resumed step is never re-fed a chain it already finished.
func (r *Runner) runChainedPromptLoop(ctx context.Context, step *workflow.Step, pos int, result executor.Result, startIdx int) (output, sessionID string, err error) {
	output = result.Output
	sessionID = result.SessionID

	for idx := startIdx; idx < len(result.ChainedPrompts); idx++ {
		cp := result.ChainedPrompts[idx]
		r.Machine.Send(statemachine.Event{Kind: statemachine.EventStepComplete, Output: output, MonitoringID: result.MonitoringID})

		provider := r.selectProvider()
		in, inErr := provider.GetInput(ctx, input.Context{
			StepOutput:       output,
			StepIndex:        pos,
			TotalSteps:       r.ctx.TotalSteps,
			PromptQueue:      result.ChainedPrompts,
			PromptQueueIndex: idx,
			WorkingDir:       r.WorkingDir,
		})
		if inErr != nil {
			return output, sessionID, inErr
		}

		switch in.Kind {
		case workflow.InputKindStop:
			return output, sessionID, errWorkflowStopped
		case workflow.InputKindSkip:
			r.Machine.Send(statemachine.Event{Kind: statemachine.EventSkip})
			return output, sessionID, nil
		case workflow.InputKindValue:
			r.Machine.Send(statemachine.Event{Kind: statemachine.EventInputReceived, Input: in.Value})
			res, execErr := r.Executor.Execute(executor.Request{
				Step:               step,
				StepIndex:          pos,
				WorkflowID:         r.WorkflowID,
				WorkingDir:         r.WorkingDir,
				AgentsDir:          r.AgentsDir,
				Substitutions:      r.substitutions(),
				SelectedConditions: r.Run.SelectedConditions,
				ResumeMonitoringID: result.MonitoringID,
				ResumeSessionID:    sessionID,
				ResumePrompt:       cp.Content + "\n\n" + in.Value,
				Ctx:                ctx,
			})
			if execErr != nil {
				return output, sessionID, execErr
			}
			output = res.Output
			sessionID = res.SessionID
			if err := r.Index.MarkChainCompleted(pos, idx); err != nil {
				return output, sessionID, err
			}
		}
	}
	return output, sessionID, nil
}

func (r *Runner) selectProvider() input.Provider {
	if r.ctx.Paused {
		return r.UserProvider
	}
	if r.ctx.AutoMode {
		return r.ControllerProvider
	}
	return r.UserProvider
}

func (r *Runner) awaitCheckpoint(step *workflow.Step, pos int) behavior.CheckpointOutcome {
	ev := bus.NewEvent(bus.EventCheckpointState)
	ev.WorkflowID = r.WorkflowID
	ev.AgentID = step.AgentID
	ev.StepIndex = pos
	ev.Reason = "awaiting checkpoint response"
	r.Bus.Emit(ev)

	select {
	case <-r.Control.CheckpointContinue:
		cont := bus.NewEvent(bus.EventCheckpointContinue)
		cont.WorkflowID = r.WorkflowID
		cont.AgentID = step.AgentID
		cont.StepIndex = pos
		r.Bus.Emit(cont)
		return behavior.CheckpointOutcomeContinue
	case <-r.Control.CheckpointQuit:
		quit := bus.NewEvent(bus.EventCheckpointQuit)
		quit.WorkflowID = r.WorkflowID
		quit.AgentID = step.AgentID
		quit.StepIndex = pos
		r.Bus.Emit(quit)
		return behavior.CheckpointOutcomeQuit
	}
}

func (r *Runner) setAgentStatus(step *workflow.Step, pos int, status bus.AgentStatus, reason string) {
	ev := bus.NewEvent(bus.EventAgentStatus)
	ev.WorkflowID = r.WorkflowID
	ev.AgentID = step.AgentID
	ev.StepIndex = pos
	ev.Status = status
	ev.Reason = reason
	r.Bus.Emit(ev)
}

func (r *Runner) emitInputState(step *workflow.Step, pos int, reason string) {
	ev := bus.NewEvent(bus.EventInputState)
	ev.WorkflowID = r.WorkflowID
	ev.AgentID = step.AgentID
	ev.StepIndex = pos
	ev.Reason = reason
	r.Bus.Emit(ev)
}

func (r *Runner) logSkip(step *workflow.Step, pos int, reason string) {
	r.setAgentStatus(step, pos, bus.AgentStatusSkipped, reason)
}
