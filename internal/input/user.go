package input

import (
	"context"

	"github.com/cortexforge/agentflow/internal/workflow"
)

// UISource delivers one line of operator-entered input per receive,
// blocking until one is available. The runner's UI layer (TUI, web
// frontend over the gateway) implements this by feeding a channel from
// whatever input widget it renders.
type UISource interface {
	Receive(ctx context.Context) (string, error)
}

// UserProvider blocks on a UI input stream and turns raw operator text
// into a workflow.Input, recognizing the two mode-switch sentinels
// inline rather than passing them through as literal prompts.
type UserProvider struct {
	Source UISource

	// OnModeChange is invoked when the operator sends a mode-switch
	// sentinel, so the runner can flip its autoMode flag; UserProvider
	// itself holds no runner state.
	OnModeChange func(autoMode bool)
}

// GetInput implements Provider.
func (p *UserProvider) GetInput(ctx context.Context, ic Context) (workflow.Input, error) {
	raw, err := p.Source.Receive(ctx)
	if err != nil {
		return workflow.Input{}, err
	}

	switch raw {
	case workflow.SwitchToManual:
		if p.OnModeChange != nil {
			p.OnModeChange(false)
		}
		return p.GetInput(ctx, ic)
	case workflow.SwitchToAuto:
		if p.OnModeChange != nil {
			p.OnModeChange(true)
		}
		return p.GetInput(ctx, ic)
	}

	if raw == "" {
		return workflow.Input{Kind: workflow.InputKindSkip, Source: workflow.InputSourceUser}, nil
	}
	return workflow.Input{Kind: workflow.InputKindValue, Value: raw, Source: workflow.InputSourceUser}, nil
}
