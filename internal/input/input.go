// Package input defines the two input providers a running workflow draws
// its next-step instruction from: a human operator (User) and a
// designated controller agent (Controller), both satisfying one Provider
// contract so the runner can switch between them without caring which is
// live.
package input

import (
	"context"

	"github.com/cortexforge/agentflow/internal/workflow"
)

// Context is what a Provider needs to decide the next input: the step
// that just completed, where it sits in the template, and the pending
// chained-prompt queue.
type Context struct {
	StepOutput       string
	StepIndex        int
	TotalSteps       int
	PromptQueue      []workflow.ChainedPrompt
	PromptQueueIndex int
	WorkingDir       string
}

// Provider is the one contract both input sources implement.
type Provider interface {
	GetInput(ctx context.Context, ic Context) (workflow.Input, error)
}
