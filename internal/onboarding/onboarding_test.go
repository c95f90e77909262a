package onboarding

import (
	"context"
	"testing"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/workflow"
)

func TestStartSkipsProjectNameWhenProvided(t *testing.T) {
	b := bus.NewBus()
	tmpl := &workflow.Template{}
	s := New(b, tmpl, "Acme Corp", nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Stage() != StageCompleted {
		t.Errorf("expected immediate completion with no tracks/groups/controller, got %s", s.Stage())
	}
	if s.Result().ProjectName != "Acme Corp" {
		t.Errorf("expected project name carried through, got %+v", s.Result())
	}
}

func TestFullFlowProjectTrackConditions(t *testing.T) {
	b := bus.NewBus()
	var events []bus.Event
	b.SubscribeAll(func(e bus.Event) { events = append(events, e) })

	tmpl := &workflow.Template{
		Tracks: &workflow.TracksQuestion{Question: "pick one", Options: []workflow.TrackOption{{ID: "web"}, {ID: "cli"}}},
		ConditionGroups: []workflow.ConditionGroup{
			{Question: "features?", MultiSelect: true, Options: []workflow.ConditionOption{{ID: "auth"}, {ID: "billing"}}},
		},
	}
	s := New(b, tmpl, "", nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Stage() != StageProjectName {
		t.Fatalf("expected project_name stage, got %s", s.Stage())
	}

	if err := s.SetProjectName("My Project"); err != nil {
		t.Fatalf("SetProjectName failed: %v", err)
	}
	if s.Stage() != StageTracks {
		t.Fatalf("expected tracks stage, got %s", s.Stage())
	}

	if err := s.SelectTrack("web"); err != nil {
		t.Fatalf("SelectTrack failed: %v", err)
	}
	if s.Stage() != StageConditionGroup {
		t.Fatalf("expected condition_group stage, got %s", s.Stage())
	}

	if err := s.ToggleCondition("auth", true); err != nil {
		t.Fatalf("ToggleCondition failed: %v", err)
	}
	if err := s.ConfirmSelections(); err != nil {
		t.Fatalf("ConfirmSelections failed: %v", err)
	}

	if s.Stage() != StageCompleted {
		t.Fatalf("expected completed stage, got %s", s.Stage())
	}
	res := s.Result()
	if res.ProjectName != "My Project" || res.TrackID != "web" {
		t.Errorf("unexpected result: %+v", res)
	}
	found := false
	for _, c := range res.Conditions {
		if c == "auth" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'auth' in committed conditions, got %v", res.Conditions)
	}

	var sawCompleted bool
	for _, e := range events {
		if e.Type == bus.EventOnboardCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Error("expected onboard:completed to be emitted")
	}
}

func TestChildGroupsQueuedAfterParentForChosenOption(t *testing.T) {
	b := bus.NewBus()
	tmpl := &workflow.Template{
		ConditionGroups: []workflow.ConditionGroup{
			{
				Question:    "type?",
				MultiSelect: false,
				Options:     []workflow.ConditionOption{{ID: "api"}, {ID: "ui"}},
				Children: map[string][]workflow.ConditionGroup{
					"api": {{Question: "auth style?", Options: []workflow.ConditionOption{{ID: "jwt"}}}},
				},
			},
		},
	}
	s := New(b, tmpl, "Proj", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Stage() != StageConditionGroup {
		t.Fatalf("expected condition_group stage, got %s", s.Stage())
	}

	if err := s.SelectCondition("api"); err != nil {
		t.Fatalf("SelectCondition failed: %v", err)
	}
	if s.Stage() != StageConditionChild {
		t.Fatalf("expected child group to be queued next, got %s", s.Stage())
	}

	if err := s.SelectCondition("jwt"); err != nil {
		t.Fatalf("SelectCondition for child failed: %v", err)
	}
	if s.Stage() != StageCompleted {
		t.Fatalf("expected completion after child group, got %s", s.Stage())
	}
}

func TestCancelEmitsCancelledFromAnyStage(t *testing.T) {
	b := bus.NewBus()
	var gotCancel bool
	b.On(bus.EventOnboardCancelled, func(e bus.Event) { gotCancel = true })

	tmpl := &workflow.Template{}
	s := New(b, tmpl, "", nil)
	s.Start()
	s.Cancel()

	if s.Stage() != StageCancelled {
		t.Errorf("expected cancelled stage, got %s", s.Stage())
	}
	if !gotCancel {
		t.Error("expected onboard:cancelled to be emitted")
	}
}

func TestControllerInitRunsDuringLaunching(t *testing.T) {
	b := bus.NewBus()
	tmpl := &workflow.Template{Controller: &workflow.Step{AgentID: "ctrl"}}

	called := false
	initFn := func(ctx context.Context, t *workflow.Template) (string, error) {
		called = true
		return "ctrl-agent-1", nil
	}
	s := New(b, tmpl, "Proj", initFn)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !called {
		t.Error("expected controller initializer to run")
	}
	if s.Result().ControllerAgentID != "ctrl-agent-1" {
		t.Errorf("expected controller agent id carried through, got %+v", s.Result())
	}
}
