package input

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexforge/agentflow/internal/workflow"
)

type fakeUISource struct {
	values []string
	i      int
}

func (f *fakeUISource) Receive(ctx context.Context) (string, error) {
	if f.i >= len(f.values) {
		return "", errors.New("no more input")
	}
	v := f.values[f.i]
	f.i++
	return v, nil
}

func TestUserProviderReturnsValueInput(t *testing.T) {
	p := &UserProvider{Source: &fakeUISource{values: []string{"do the next thing"}}}

	got, err := p.GetInput(context.Background(), Context{})
	if err != nil {
		t.Fatalf("GetInput failed: %v", err)
	}
	if got.Kind != workflow.InputKindValue || got.Value != "do the next thing" || got.Source != workflow.InputSourceUser {
		t.Errorf("unexpected input: %+v", got)
	}
}

func TestUserProviderEmptyInputSkips(t *testing.T) {
	p := &UserProvider{Source: &fakeUISource{values: []string{""}}}

	got, err := p.GetInput(context.Background(), Context{})
	if err != nil {
		t.Fatalf("GetInput failed: %v", err)
	}
	if got.Kind != workflow.InputKindSkip {
		t.Errorf("expected skip kind for empty input, got %+v", got)
	}
}

func TestUserProviderHandlesModeSwitchSentinels(t *testing.T) {
	var modes []bool
	p := &UserProvider{
		Source:       &fakeUISource{values: []string{workflow.SwitchToAuto, "next step"}},
		OnModeChange: func(autoMode bool) { modes = append(modes, autoMode) },
	}

	got, err := p.GetInput(context.Background(), Context{})
	if err != nil {
		t.Fatalf("GetInput failed: %v", err)
	}
	if len(modes) != 1 || modes[0] != true {
		t.Errorf("expected one mode-change to auto, got %v", modes)
	}
	if got.Value != "next step" {
		t.Errorf("expected sentinel to be consumed and real input returned, got %+v", got)
	}
}

func TestControllerProviderRunsAgentAndReturnsControllerSource(t *testing.T) {
	p := &ControllerProvider{
		AgentID: "controller-1",
		Run: func(ctx context.Context, stepOutput string) (string, error) {
			return "continue with phase two", nil
		},
	}

	got, err := p.GetInput(context.Background(), Context{StepOutput: "phase one done"})
	if err != nil {
		t.Fatalf("GetInput failed: %v", err)
	}
	if got.Source != workflow.InputSourceController || got.Value != "continue with phase two" {
		t.Errorf("unexpected controller input: %+v", got)
	}
}

func TestControllerProviderPropagatesRunError(t *testing.T) {
	p := &ControllerProvider{
		AgentID: "controller-1",
		Run: func(ctx context.Context, stepOutput string) (string, error) {
			return "", errors.New("boom")
		},
	}

	_, err := p.GetInput(context.Background(), Context{})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
