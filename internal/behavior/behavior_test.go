package behavior

import (
	"testing"
	"time"

	"github.com/cortexforge/agentflow/internal/stepindex"
	"github.com/cortexforge/agentflow/internal/workflow"
)

func TestShouldSkipStepExecuteOnceCompleted(t *testing.T) {
	step := &workflow.Step{AgentID: "a", ExecuteOnce: true}
	completedAt := time.Now()
	record := &stepindex.Record{CompletedAt: &completedAt}

	d := ShouldSkipStep(step, 0, record, nil, "", nil)
	if !d.Skip {
		t.Fatal("expected skip for completed executeOnce step")
	}
}

func TestShouldSkipStepTrackMismatch(t *testing.T) {
	step := &workflow.Step{AgentID: "a", Tracks: []string{"large"}}
	d := ShouldSkipStep(step, 0, nil, nil, "small", nil)
	if !d.Skip {
		t.Fatal("expected skip on track mismatch")
	}
}

func TestShouldSkipStepConditionsUnmet(t *testing.T) {
	step := &workflow.Step{AgentID: "a", Conditions: []string{"needs-docker"}}
	d := ShouldSkipStep(step, 0, nil, nil, "", map[string]bool{})
	if !d.Skip {
		t.Fatal("expected skip when conditions unmet")
	}
}

func TestShouldSkipStepNoReasonToSkip(t *testing.T) {
	step := &workflow.Step{AgentID: "a"}
	d := ShouldSkipStep(step, 0, nil, nil, "", nil)
	if d.Skip {
		t.Fatalf("expected no skip, got reason %q", d.Reason)
	}
}

func TestShouldSkipStepInActiveLoopSkipList(t *testing.T) {
	step := &workflow.Step{AgentID: "a"}
	active := &workflow.ActiveLoop{SkipList: map[int]bool{3: true}}
	d := ShouldSkipStep(step, 3, nil, active, "", nil)
	if !d.Skip {
		t.Fatal("expected skip for step in active loop skip list")
	}
}

func TestEvaluateLoopRepeat(t *testing.T) {
	step := &workflow.Step{AgentID: "e", Behavior: workflow.Behavior{Kind: workflow.BehaviorLoop, MaxIterations: 2}}
	output := "work done\nLOOP_REPEAT: true\nLOOP_STEPS_BACK: 2\nLOOP_SKIP: 3\n"

	d := EvaluateLoop(step, 5, output, 1, 2)
	if !d.ShouldRepeat {
		t.Fatal("expected loop repeat")
	}
	if d.StepsBack != 2 {
		t.Errorf("expected stepsBack=2, got %d", d.StepsBack)
	}
	if !d.SkipList[3] {
		t.Error("expected skip list to contain 3")
	}
}

func TestEvaluateLoopExhausted(t *testing.T) {
	step := &workflow.Step{AgentID: "e", Behavior: workflow.Behavior{Kind: workflow.BehaviorLoop, MaxIterations: 2}}
	output := "LOOP_REPEAT: true\n"

	d := EvaluateLoop(step, 5, output, 3, 2)
	if d.ShouldRepeat {
		t.Fatal("expected loop to not repeat once iteration budget is exhausted")
	}
}

func TestLoopCounterIncrement(t *testing.T) {
	c := NewLoopCounter()
	if got := c.Increment("e", 5); got != 1 {
		t.Errorf("expected first increment to be 1, got %d", got)
	}
	if got := c.Increment("e", 5); got != 2 {
		t.Errorf("expected second increment to be 2, got %d", got)
	}
	if got := c.Increment("e", 6); got != 1 {
		t.Errorf("expected independent counter for a different step index, got %d", got)
	}
}

func TestEvaluateTriggerNotDeclared(t *testing.T) {
	step := &workflow.Step{AgentID: "a"}
	d := EvaluateTrigger(step, "TRIGGER: helper\n")
	if d.ShouldTrigger {
		t.Fatal("expected no trigger unless the step declares trigger behavior")
	}
}

func TestEvaluateTriggerDeclaredAndRequested(t *testing.T) {
	step := &workflow.Step{AgentID: "a", Behavior: workflow.Behavior{Kind: workflow.BehaviorTrigger, TriggerAgentID: "helper"}}
	d := EvaluateTrigger(step, "TRIGGER: true\n")
	if !d.ShouldTrigger || d.AgentID != "helper" {
		t.Fatalf("expected trigger of helper, got %+v", d)
	}
}

func TestEvaluateFallback(t *testing.T) {
	step := &workflow.Step{AgentID: "a", Fallback: &workflow.Fallback{AgentID: "rescue"}}

	d := EvaluateFallback(step, true)
	if !d.ShouldRunFallback || d.AgentID != "rescue" {
		t.Fatalf("expected fallback to rescue, got %+v", d)
	}

	d = EvaluateFallback(step, false)
	if d.ShouldRunFallback {
		t.Fatal("expected no fallback when step is not in the not-completed list")
	}
}

func TestRequiresCheckpoint(t *testing.T) {
	cp := &workflow.Step{Behavior: workflow.Behavior{Kind: workflow.BehaviorCheckpoint}}
	if !RequiresCheckpoint(cp) {
		t.Fatal("expected checkpoint behavior to require a checkpoint")
	}
	none := &workflow.Step{}
	if RequiresCheckpoint(none) {
		t.Fatal("expected no checkpoint requirement for a plain step")
	}
}
