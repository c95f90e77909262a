// Package onboarding drives the selection FSM that runs before a
// workflow's first step: collecting a project name, an optional track,
// and any condition groups the template declares, then (if the template
// names a controller) initializing it before the run launches.
package onboarding

import (
	"context"
	"fmt"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// Stage names one state in the onboarding FSM.
type Stage string

const (
	StageProjectName            Stage = "project_name"
	StageTracks                 Stage = "tracks"
	StageConditionGroup         Stage = "condition_group"
	StageConditionChild         Stage = "condition_child"
	StageControllerConversation Stage = "controller_conversation"
	StageLaunching               Stage = "launching"
	StageCompleted               Stage = "completed"
	StageCancelled               Stage = "cancelled"
)

// ControllerInitFunc initializes the template's controller agent,
// returning its agent id. This is the "controller init" external
// collaborator the onboarding service calls during StageLaunching.
type ControllerInitFunc func(ctx context.Context, tmpl *workflow.Template) (agentID string, err error)

// Result is what onboarding produces once StageCompleted is reached.
type Result struct {
	ProjectName       string
	TrackID           string
	Conditions        []string
	ControllerAgentID string
}

type queuedGroup struct {
	group   workflow.ConditionGroup
	isChild bool
}

// Service drives the onboarding FSM and emits one bus event per
// transition.
type Service struct {
	bus            *bus.Bus
	tmpl           *workflow.Template
	controllerInit ControllerInitFunc

	stage Stage

	projectName        string
	selectedTrack       string
	selectedConditions  map[string]bool
	controllerAgentID   string

	queue      []queuedGroup
	queueIndex int
	scratch    map[string]bool // accumulates a multi-select group's picks before confirm
}

// New returns a Service ready to Start. initialProjectName, if non-empty,
// causes the project-name stage to be skipped.
func New(b *bus.Bus, tmpl *workflow.Template, initialProjectName string, controllerInit ControllerInitFunc) *Service {
	s := &Service{
		bus:                b,
		tmpl:               tmpl,
		controllerInit:     controllerInit,
		projectName:        initialProjectName,
		selectedConditions: make(map[string]bool),
	}
	return s
}

func (s *Service) emit(t bus.EventType, mutate func(*bus.Event)) {
	ev := bus.NewEvent(t)
	if mutate != nil {
		mutate(&ev)
	}
	s.bus.Emit(ev)
}

// Start begins the FSM, skipping the project-name stage if already
// supplied, and emits onboard:step for whichever stage is entered first.
func (s *Service) Start() error {
	if s.projectName != "" {
		return s.enterPostProjectName()
	}
	s.stage = StageProjectName
	s.emit(bus.EventOnboardStep, func(e *bus.Event) { e.Reason = string(StageProjectName) })
	return nil
}

// Stage returns the current FSM stage.
func (s *Service) Stage() Stage { return s.stage }

// SetProjectName commits the project name and advances past that stage.
func (s *Service) SetProjectName(name string) error {
	if s.stage != StageProjectName {
		return fmt.Errorf("onboarding: not awaiting a project name (stage=%s)", s.stage)
	}
	s.projectName = name
	s.emit(bus.EventOnboardProjectName, func(e *bus.Event) { e.ProjectName = name })
	return s.enterPostProjectName()
}

func (s *Service) enterPostProjectName() error {
	if s.tmpl.Tracks != nil {
		s.stage = StageTracks
		s.emit(bus.EventOnboardStep, func(e *bus.Event) { e.Reason = string(StageTracks) })
		return nil
	}
	s.buildQueue()
	return s.advanceQueue()
}

// SelectTrack commits the single track selection and builds the
// condition-group queue gated for it.
func (s *Service) SelectTrack(trackID string) error {
	if s.stage != StageTracks {
		return fmt.Errorf("onboarding: not awaiting a track selection (stage=%s)", s.stage)
	}
	s.selectedTrack = trackID
	s.emit(bus.EventOnboardTrack, func(e *bus.Event) { e.TrackID = trackID })
	s.buildQueue()
	return s.advanceQueue()
}

func (s *Service) buildQueue() {
	for _, g := range s.tmpl.ConditionGroups {
		if g.GatedForTrack(s.selectedTrack) {
			s.queue = append(s.queue, queuedGroup{group: g})
		}
	}
}

// advanceQueue enters the next queued group, or moves past onboarding
// into the controller/launching stage once the queue is exhausted.
func (s *Service) advanceQueue() error {
	if s.queueIndex >= len(s.queue) {
		return s.enterLaunching()
	}
	s.scratch = make(map[string]bool)
	qg := s.queue[s.queueIndex]
	if qg.isChild {
		s.stage = StageConditionChild
	} else {
		s.stage = StageConditionGroup
	}
	s.emit(bus.EventOnboardStep, func(e *bus.Event) { e.Reason = string(s.stage) })
	return nil
}

// CurrentGroup returns the condition group the service is currently
// awaiting an answer for, so a UI can render its question and options
// without needing to re-derive the queue itself.
func (s *Service) CurrentGroup() (workflow.ConditionGroup, error) {
	return s.currentGroup()
}

func (s *Service) currentGroup() (workflow.ConditionGroup, error) {
	if (s.stage != StageConditionGroup && s.stage != StageConditionChild) || s.queueIndex >= len(s.queue) {
		return workflow.ConditionGroup{}, fmt.Errorf("onboarding: not awaiting a condition selection (stage=%s)", s.stage)
	}
	return s.queue[s.queueIndex].group, nil
}

// SelectCondition commits a single-select group's choice immediately.
func (s *Service) SelectCondition(optionID string) error {
	g, err := s.currentGroup()
	if err != nil {
		return err
	}
	if g.MultiSelect {
		return fmt.Errorf("onboarding: group is multi-select, use ToggleCondition + ConfirmSelections")
	}
	s.selectedConditions[optionID] = true
	s.emit(bus.EventOnboardCondition, func(e *bus.Event) { e.ConditionValue = optionID })
	return s.commitGroup([]string{optionID})
}

// ToggleCondition accumulates one option into a multi-select group's
// scratch set; call ConfirmSelections to commit.
func (s *Service) ToggleCondition(optionID string, selected bool) error {
	g, err := s.currentGroup()
	if err != nil {
		return err
	}
	if !g.MultiSelect {
		return fmt.Errorf("onboarding: group is single-select, use SelectCondition")
	}
	if selected {
		s.scratch[optionID] = true
	} else {
		delete(s.scratch, optionID)
	}
	return nil
}

// ConfirmSelections commits a multi-select group's accumulated scratch
// picks, in template option order.
func (s *Service) ConfirmSelections() error {
	g, err := s.currentGroup()
	if err != nil {
		return err
	}
	if !g.MultiSelect {
		return fmt.Errorf("onboarding: group is single-select, selections commit immediately")
	}
	var chosen []string
	for _, opt := range g.Options {
		if s.scratch[opt.ID] {
			chosen = append(chosen, opt.ID)
			s.selectedConditions[opt.ID] = true
		}
	}
	s.emit(bus.EventOnboardConditionsConfirmed, func(e *bus.Event) { e.Conditions = chosen })
	return s.commitGroup(chosen)
}

// commitGroup enqueues any child groups for the chosen options (in
// chosen order) immediately after the current group, then advances.
func (s *Service) commitGroup(chosen []string) error {
	g := s.queue[s.queueIndex].group
	var children []queuedGroup
	for _, optID := range chosen {
		for _, child := range g.Children[optID] {
			children = append(children, queuedGroup{group: child, isChild: true})
		}
	}
	if len(children) > 0 {
		rest := append([]queuedGroup{}, s.queue[s.queueIndex+1:]...)
		s.queue = append(s.queue[:s.queueIndex+1], append(children, rest...)...)
	}
	s.queueIndex++
	return s.advanceQueue()
}

func (s *Service) enterLaunching() error {
	if s.tmpl.Controller == nil {
		return s.complete()
	}
	s.stage = StageLaunching
	s.emit(bus.EventOnboardStep, func(e *bus.Event) { e.Reason = string(StageLaunching) })

	if s.controllerInit == nil {
		return fmt.Errorf("onboarding: template declares a controller but no controller initializer was configured")
	}
	s.emit(bus.EventOnboardLaunchingLog, func(e *bus.Event) { e.Message = "initializing controller agent" })

	agentID, err := s.controllerInit(context.Background(), s.tmpl)
	if err != nil {
		s.emit(bus.EventOnboardLaunchingLog, func(e *bus.Event) { e.Message = "controller initialization failed: " + err.Error(); e.Level = "error" })
		return fmt.Errorf("onboarding: controller init: %w", err)
	}
	s.controllerAgentID = agentID
	s.emit(bus.EventOnboardLaunchingLog, func(e *bus.Event) { e.Message = "controller agent ready" })
	return s.complete()
}

func (s *Service) complete() error {
	s.stage = StageCompleted
	conditions := make([]string, 0, len(s.selectedConditions))
	for c, on := range s.selectedConditions {
		if on {
			conditions = append(conditions, c)
		}
	}
	s.emit(bus.EventOnboardCompleted, func(e *bus.Event) {
		e.ProjectName = s.projectName
		e.TrackID = s.selectedTrack
		e.Conditions = conditions
		e.ControllerAgentID = s.controllerAgentID
	})
	return nil
}

// Result returns the final onboarding outcome. Valid once Stage() ==
// StageCompleted.
func (s *Service) Result() Result {
	conditions := make([]string, 0, len(s.selectedConditions))
	for c, on := range s.selectedConditions {
		if on {
			conditions = append(conditions, c)
		}
	}
	return Result{
		ProjectName:       s.projectName,
		TrackID:           s.selectedTrack,
		Conditions:        conditions,
		ControllerAgentID: s.controllerAgentID,
	}
}

// Cancel is permitted from any stage and emits onboard:cancelled.
func (s *Service) Cancel() {
	s.stage = StageCancelled
	s.emit(bus.EventOnboardCancelled, nil)
}
