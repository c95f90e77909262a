package behavior

import (
	"fmt"

	"github.com/cortexforge/agentflow/internal/stepindex"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// SkipDecision is the result of shouldSkipStep.
type SkipDecision struct {
	Skip   bool
	Reason string
}

// ShouldSkipStep evaluates, before a step runs, whether it should be
// bypassed this pass: its executeOnce record is already complete, it is
// in the current ActiveLoop's skip list, its track doesn't match, or its
// conditions aren't all satisfied.
func ShouldSkipStep(step *workflow.Step, stepIndex int, record *stepindex.Record, active *workflow.ActiveLoop, selectedTrack string, selectedConditions map[string]bool) SkipDecision {
	if step.ExecuteOnce && record != nil && record.CompletedAt != nil {
		return SkipDecision{Skip: true, Reason: "executeOnce step already completed"}
	}

	if active != nil && active.SkipList[stepIndex] {
		return SkipDecision{Skip: true, Reason: fmt.Sprintf("step is in active loop skip list (%s)", active.Reason)}
	}

	if !step.TracksInSet(selectedTrack) {
		return SkipDecision{Skip: true, Reason: fmt.Sprintf("step requires track in %v, selected track is %q", step.Tracks, selectedTrack)}
	}

	if !step.ConditionsSatisfied(selectedConditions) {
		return SkipDecision{Skip: true, Reason: fmt.Sprintf("step requires conditions %v, not all satisfied", step.Conditions)}
	}

	return SkipDecision{Skip: false}
}
