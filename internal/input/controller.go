package input

import (
	"context"
	"fmt"

	"github.com/cortexforge/agentflow/internal/workflow"
)

// ControllerRunFunc drives the controller agent's configured step one more
// turn and returns its raw output. It is supplied by the runner as a thin
// closure over the Step Executor so this package does not need to depend
// on it directly.
type ControllerRunFunc func(ctx context.Context, stepOutput string) (string, error)

// ControllerProvider runs a designated controller agent to produce the
// next prompt automatically, rather than waiting on a human. Its output
// is fed back into the same conversation as the next user turn.
type ControllerProvider struct {
	AgentID string
	Run     ControllerRunFunc
}

// GetInput implements Provider.
func (p *ControllerProvider) GetInput(ctx context.Context, ic Context) (workflow.Input, error) {
	output, err := p.Run(ctx, ic.StepOutput)
	if err != nil {
		return workflow.Input{}, fmt.Errorf("controller agent %s: %w", p.AgentID, err)
	}

	if output == "" {
		return workflow.Input{Kind: workflow.InputKindSkip, Source: workflow.InputSourceController}, nil
	}
	return workflow.Input{Kind: workflow.InputKindValue, Value: output, Source: workflow.InputSourceController}, nil
}
