package behavior

import "github.com/cortexforge/agentflow/internal/workflow"

// TriggerDecision is the result of evaluating a trigger{} behavior's output.
type TriggerDecision struct {
	ShouldTrigger bool
	AgentID       string
}

// EvaluateTrigger inspects output for a TRIGGER marker. The step's
// declared TriggerAgentID is used when the marker's value is empty or a
// boolean true ("true", "1", "yes"); any other value names a different
// agent explicitly (agent prompts may trigger one of several configured
// auxiliary agents).
func EvaluateTrigger(step *workflow.Step, output string) TriggerDecision {
	if step.Behavior.Kind != workflow.BehaviorTrigger {
		return TriggerDecision{}
	}

	m := parseMarkers(output)
	if !m.has(markerTrigger) {
		return TriggerDecision{}
	}

	agentID := m[markerTrigger]
	if m.bool(markerTrigger) {
		agentID = step.Behavior.TriggerAgentID
	}
	return TriggerDecision{ShouldTrigger: true, AgentID: agentID}
}
