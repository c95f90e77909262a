package workflow

import "github.com/google/uuid"

// RunIndex is the process-wide selection state for a workflow run: which
// track and conditions were chosen, the project name, the template path,
// and fast-lookup lists of completed/not-completed step indices derived
// from the step index's persisted records.
type RunIndex struct {
	RunID                string
	ProjectName          string
	TemplatePath         string
	SelectedTrackID      string
	SelectedConditions   map[string]bool
	CompletedSteps       []int
	NotCompletedSteps    []int
}

// NewRunIndex returns an empty RunIndex, identified by a fresh RunID, ready
// to be populated by the pre-flight/onboarding pipeline.
func NewRunIndex() *RunIndex {
	return &RunIndex{
		RunID:              uuid.New().String(),
		SelectedConditions: make(map[string]bool),
	}
}

// InputKind is the discriminator for a post-step input action.
type InputKind string

const (
	InputKindValue InputKind = "input"
	InputKindSkip  InputKind = "skip"
	InputKindStop  InputKind = "stop"
)

// InputSource names who produced an Input: a human via the UI, or the
// controller agent driving auto mode.
type InputSource string

const (
	InputSourceUser       InputSource = "user"
	InputSourceController InputSource = "controller"
)

// Input is what an Input Provider returns after a step completes.
type Input struct {
	Kind               InputKind
	Value              string
	ResumeMonitoringID int
	Source             InputSource
}

// Sentinel values a user-sourced Input.Value may carry to toggle the
// runner's autoMode flag instead of being treated as a literal prompt.
const (
	SwitchToManual = "__SWITCH_TO_MANUAL__"
	SwitchToAuto   = "__SWITCH_TO_AUTO__"
)

// Context is the State Machine Context: the mutable per-run state the
// Runner owns exclusively for the duration of one workflow run.
type Context struct {
	CurrentStepIndex      int
	TotalSteps            int
	CurrentOutput         string
	CurrentMonitoringID   int
	PromptQueue           []ChainedPrompt
	PromptQueueIndex      int
	AutoMode              bool
	Paused                bool
	ContinuationPromptSent bool
}

// ResetForRunning clears continuation-prompt-sent, per the State Machine
// invariant that it is reset on every transition into Running.
func (c *Context) ResetForRunning() {
	c.ContinuationPromptSent = false
}

// ActiveLoop describes an in-progress loop rewind: which step triggered
// it, how far back execution jumped, which step indices to skip on
// replay, and how many iterations have elapsed.
type ActiveLoop struct {
	SourceAgent   string
	BackSteps     int
	Iteration     int
	MaxIterations int
	SkipList      map[int]bool
	Reason        string
}

// Exhausted reports whether the loop has used up its iteration budget.
func (l *ActiveLoop) Exhausted() bool {
	return l != nil && l.Iteration > l.MaxIterations
}
