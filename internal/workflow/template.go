// Package workflow defines the declarative workflow template format: the
// ordered list of steps an orchestrator run executes, plus the optional
// track/condition-group gating that narrows which steps participate in a
// given run.
package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StepKind distinguishes an executable module step from a purely visual separator.
type StepKind string

const (
	StepKindModule    StepKind = "module"
	StepKindSeparator StepKind = "separator"
)

// BehaviorKind names the post-execution behavior a step's module declares.
type BehaviorKind string

const (
	BehaviorNone       BehaviorKind = ""
	BehaviorLoop       BehaviorKind = "loop"
	BehaviorTrigger    BehaviorKind = "trigger"
	BehaviorCheckpoint BehaviorKind = "checkpoint"
)

// Behavior is the optional `module.behavior` declaration on a step.
type Behavior struct {
	Kind BehaviorKind `yaml:"kind"`

	// MaxIterations applies when Kind == BehaviorLoop.
	MaxIterations int `yaml:"maxIterations,omitempty"`

	// TriggerAgentID applies when Kind == BehaviorTrigger.
	TriggerAgentID string `yaml:"triggerAgentId,omitempty"`
}

// Fallback names a secondary agent to run before retrying a step that was
// started but not completed in a prior run.
type Fallback struct {
	AgentID string `yaml:"agentId"`
}

// Step is one entry in a workflow template.
type Step struct {
	Kind StepKind `yaml:"kind"`

	// Separator label, meaningful only when Kind == StepKindSeparator.
	Label string `yaml:"label,omitempty"`

	// Module fields, meaningful only when Kind == StepKindModule.
	AgentID               string       `yaml:"agentId,omitempty"`
	AgentName             string       `yaml:"agentName,omitempty"`
	PromptPaths           []string     `yaml:"promptPaths,omitempty"`
	Engine                string       `yaml:"engine,omitempty"`
	Model                 string       `yaml:"model,omitempty"`
	ModelReasoningEffort  string       `yaml:"modelReasoningEffort,omitempty"`
	ExecuteOnce           bool         `yaml:"executeOnce,omitempty"`
	Tracks                []string     `yaml:"tracks,omitempty"`
	Conditions            []string     `yaml:"conditions,omitempty"`
	Behavior              Behavior     `yaml:"behavior,omitempty"`
	Fallback              *Fallback    `yaml:"fallback,omitempty"`
}

// TracksInSet reports whether the step participates when selectedTrack is active.
// An empty Tracks set means the step always participates.
func (s *Step) TracksInSet(selectedTrack string) bool {
	if len(s.Tracks) == 0 {
		return true
	}
	for _, t := range s.Tracks {
		if t == selectedTrack {
			return true
		}
	}
	return false
}

// ConditionsSatisfied reports whether every condition the step requires is
// present in selected.
func (s *Step) ConditionsSatisfied(selected map[string]bool) bool {
	for _, c := range s.Conditions {
		if !selected[c] {
			return false
		}
	}
	return true
}

// TrackOption is one selectable value in a Tracks question.
type TrackOption struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// TracksQuestion is the template-level track selector, asked once per run.
type TracksQuestion struct {
	Question string        `yaml:"question"`
	Options  []TrackOption `yaml:"options"`
}

// ConditionOption is one selectable value within a ConditionGroup.
type ConditionOption struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// ConditionGroup is one onboarding question offering a set of condition tags.
// A group may gate on a previously selected track, and may declare child
// groups keyed by the parent option id chosen.
type ConditionGroup struct {
	Question    string                     `yaml:"question"`
	MultiSelect bool                       `yaml:"multiSelect"`
	Options     []ConditionOption          `yaml:"options"`
	Children    map[string][]ConditionGroup `yaml:"children,omitempty"`
	Tracks      []string                   `yaml:"tracks,omitempty"`
}

// GatedForTrack reports whether this group should be asked for selectedTrack.
func (g *ConditionGroup) GatedForTrack(selectedTrack string) bool {
	if len(g.Tracks) == 0 {
		return true
	}
	for _, t := range g.Tracks {
		if t == selectedTrack {
			return true
		}
	}
	return false
}

// Template is a full workflow definition: the ordered steps plus optional
// onboarding gates (tracks, condition groups, controller).
type Template struct {
	Steps           []Step           `yaml:"steps"`
	Tracks          *TracksQuestion  `yaml:"tracks,omitempty"`
	ConditionGroups []ConditionGroup `yaml:"conditionGroups,omitempty"`
	Controller      *Step            `yaml:"controller,omitempty"`
	Specification   bool             `yaml:"specification,omitempty"`
}

// Load reads and parses a workflow template from a YAML file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a workflow template from raw YAML bytes.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return &t, nil
}

// Validate checks basic structural invariants of a loaded template.
func (t *Template) Validate() error {
	for i, s := range t.Steps {
		switch s.Kind {
		case StepKindModule:
			if s.AgentID == "" {
				return fmt.Errorf("step %d: module step missing agentId", i)
			}
			if len(s.PromptPaths) == 0 {
				return fmt.Errorf("step %d (%s): module step missing promptPaths", i, s.AgentID)
			}
			switch s.Behavior.Kind {
			case BehaviorNone, BehaviorLoop, BehaviorTrigger, BehaviorCheckpoint:
			default:
				return fmt.Errorf("step %d (%s): unknown behavior kind %q", i, s.AgentID, s.Behavior.Kind)
			}
			if s.Behavior.Kind == BehaviorLoop && s.Behavior.MaxIterations <= 0 {
				return fmt.Errorf("step %d (%s): loop behavior requires maxIterations > 0", i, s.AgentID)
			}
			if s.Behavior.Kind == BehaviorTrigger && s.Behavior.TriggerAgentID == "" {
				return fmt.Errorf("step %d (%s): trigger behavior requires triggerAgentId", i, s.AgentID)
			}
		case StepKindSeparator:
			// label-only, nothing to validate
		default:
			return fmt.Errorf("step %d: unknown step kind %q", i, s.Kind)
		}
	}
	return nil
}

// ModuleSteps returns the template indices of the steps of kind
// StepKindModule, in template order.
func (t *Template) ModuleSteps() []int {
	var idx []int
	for i, s := range t.Steps {
		if s.Kind == StepKindModule {
			idx = append(idx, i)
		}
	}
	return idx
}

// InScope reports whether step i participates in a run with the given
// selected track and condition set.
func (t *Template) InScope(i int, selectedTrack string, selectedConditions map[string]bool) bool {
	s := &t.Steps[i]
	if s.Kind != StepKindModule {
		return false
	}
	return s.TracksInSet(selectedTrack) && s.ConditionsSatisfied(selectedConditions)
}

// ConcatenatedPrompt reads and concatenates a step's prompt files in order,
// joined by a blank line, with basic template substitution of
// "{{projectName}}"-style placeholders supplied by the caller.
func ConcatenatedPrompt(paths []string, substitutions map[string]string) (string, error) {
	var parts []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("read prompt file %s: %w", p, err)
		}
		parts = append(parts, string(data))
	}
	prompt := strings.Join(parts, "\n\n")
	for key, val := range substitutions {
		prompt = strings.ReplaceAll(prompt, "{{"+key+"}}", val)
	}
	return prompt, nil
}
