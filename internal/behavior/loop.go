package behavior

import (
	"fmt"
	"sync"

	"github.com/cortexforge/agentflow/internal/workflow"
)

// LoopDecision is the result of evaluating a loop{} behavior's output.
type LoopDecision struct {
	ShouldRepeat bool
	StepsBack    int
	SkipList     map[int]bool
	Reason       string
}

// LoopCounter tracks per-loop-key iteration counts. A loop key is
// "agentId:stepIndex" so the same agent used at two different step
// positions gets independent counters. Encapsulated as its own
// component (per the source's global-mutable-map anti-pattern) and owned
// by the Runner.
type LoopCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewLoopCounter returns an empty counter.
func NewLoopCounter() *LoopCounter {
	return &LoopCounter{counts: make(map[string]int)}
}

func loopKey(agentID string, stepIndex int) string {
	return fmt.Sprintf("%s:%d", agentID, stepIndex)
}

// Increment bumps and returns the new count for (agentID, stepIndex).
func (c *LoopCounter) Increment(agentID string, stepIndex int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := loopKey(agentID, stepIndex)
	c.counts[key]++
	return c.counts[key]
}

// Count returns the current count without incrementing.
func (c *LoopCounter) Count(agentID string, stepIndex int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[loopKey(agentID, stepIndex)]
}

// Reset clears the counter for (agentID, stepIndex), e.g. when a fresh
// run starts.
func (c *LoopCounter) Reset(agentID string, stepIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, loopKey(agentID, stepIndex))
}

// EvaluateLoop inspects output for loop markers and decides whether to
// rewind. maxIterations comes from the step's loop behavior declaration;
// the decision is only honored by the caller while the loop key's
// iteration count is within budget (loop safety, testable property 10).
func EvaluateLoop(step *workflow.Step, stepIndex int, output string, iteration, maxIterations int) LoopDecision {
	if iteration > maxIterations {
		return LoopDecision{ShouldRepeat: false, Reason: "loop iteration budget exhausted"}
	}

	m := parseMarkers(output)
	if !m.bool(markerLoopRepeat) {
		return LoopDecision{ShouldRepeat: false}
	}

	stepsBack := m.int(markerLoopStepsBack, 1)
	skip := make(map[int]bool)
	for _, s := range m.intList(markerLoopSkip) {
		skip[s] = true
	}
	reason := m[markerLoopReason]
	if reason == "" {
		reason = fmt.Sprintf("agent %s requested loop repeat", step.AgentID)
	}

	return LoopDecision{
		ShouldRepeat: true,
		StepsBack:    stepsBack,
		SkipList:     skip,
		Reason:       reason,
	}
}
