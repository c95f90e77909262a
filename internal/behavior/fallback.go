package behavior

import "github.com/cortexforge/agentflow/internal/workflow"

// FallbackDecision reports whether a step's fallback agent should run
// before the original retry. This applies only to steps that were
// started but never completed in a prior run (the not-completed list).
type FallbackDecision struct {
	ShouldRunFallback bool
	AgentID           string
}

// EvaluateFallback decides whether to run a fallback agent ahead of
// retrying step, given whether that step is in the run's not-completed
// set.
func EvaluateFallback(step *workflow.Step, isNotCompleted bool) FallbackDecision {
	if !isNotCompleted || step.Fallback == nil {
		return FallbackDecision{}
	}
	return FallbackDecision{ShouldRunFallback: true, AgentID: step.Fallback.AgentID}
}

// FallbackFailedError signals that a fallback agent itself failed; per
// the error handling design, the original retry must be skipped and this
// error propagated so the step remains in the not-completed list for the
// next run.
type FallbackFailedError struct {
	AgentID string
	Cause   error
}

func (e *FallbackFailedError) Error() string {
	return "fallback agent " + e.AgentID + " failed: " + e.Cause.Error()
}

func (e *FallbackFailedError) Unwrap() error { return e.Cause }
