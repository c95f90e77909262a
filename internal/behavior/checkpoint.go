package behavior

import "github.com/cortexforge/agentflow/internal/workflow"

// CheckpointOutcome is what the Runner does after a checkpoint{} step
// completes and the user (or controller) responds.
type CheckpointOutcome string

const (
	CheckpointOutcomeContinue CheckpointOutcome = "continue"
	CheckpointOutcomeQuit     CheckpointOutcome = "quit"
)

// RequiresCheckpoint reports whether step's declared behavior is
// checkpoint, meaning the Runner must block awaiting an explicit
// checkpoint:continue or checkpoint:quit signal before proceeding.
func RequiresCheckpoint(step *workflow.Step) bool {
	return step.Behavior.Kind == workflow.BehaviorCheckpoint
}
