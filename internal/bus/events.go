// Package bus provides the event bus that decouples workflow execution
// from whatever is observing it (a TUI, a web client, a test harness).
package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the discriminator tag carried by every Event.
type EventType string

// Event types emitted by the runner, state machine, behavior engine and
// onboarding service. This is the minimum stream surface any subscriber
// (TUI, websocket gateway, test) can rely on.
const (
	// Agent (step) lifecycle.
	EventAgentAdded     EventType = "agent:added"
	EventAgentStatus    EventType = "agent:status"
	EventAgentEngine    EventType = "agent:engine"
	EventAgentModel     EventType = "agent:model"
	EventAgentTelemetry EventType = "agent:telemetry"
	EventAgentReset     EventType = "agent:reset"

	// Workflow lifecycle.
	EventWorkflowStarted EventType = "workflow:started"
	EventWorkflowStopped EventType = "workflow:stopped"
	EventWorkflowStatus  EventType = "workflow:status"

	// Behavior engine state.
	EventCheckpointState    EventType = "checkpoint:state"
	EventCheckpointContinue EventType = "checkpoint:continue"
	EventCheckpointQuit     EventType = "checkpoint:quit"
	EventLoopState          EventType = "loop:state"

	// Input provider / steering state.
	EventInputState EventType = "input:state"

	// Log plumbing.
	EventSeparatorAdd    EventType = "separator:add"
	EventMonitoringRegister EventType = "monitoring:register"

	// Onboarding.
	EventOnboardStep               EventType = "onboard:step"
	EventOnboardProjectName        EventType = "onboard:project_name"
	EventOnboardTrack              EventType = "onboard:track"
	EventOnboardCondition          EventType = "onboard:condition"
	EventOnboardConditionsConfirmed EventType = "onboard:conditions_confirmed"
	EventOnboardCompleted          EventType = "onboard:completed"
	EventOnboardCancelled          EventType = "onboard:cancelled"
	EventOnboardLaunchingLog       EventType = "onboard:launching_log"
)

// AgentStatus is the lifecycle state of a single workflow step's agent.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusAwaiting  AgentStatus = "awaiting"
	AgentStatusDelegated AgentStatus = "delegated"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusSkipped   AgentStatus = "skipped"
	AgentStatusStopped   AgentStatus = "stopped"
)

// Event is a single item flowing through the bus. It is a flat envelope
// rather than a family of payload types: listeners switch on Type and
// read the fields relevant to that type. Fields not meaningful for a
// given Type are left zero.
type Event struct {
	// Core identification.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Workflow/agent scoping.
	WorkflowID string `json:"workflow_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	ParentID   string `json:"parent_id,omitempty"` // set for sub-agent/triggered-agent events
	StepIndex  int    `json:"step_index,omitempty"`

	// agent:status / workflow:status
	Status AgentStatus `json:"status,omitempty"`

	// agent:engine / agent:model
	Engine string `json:"engine,omitempty"`
	Model  string `json:"model,omitempty"`

	// agent:telemetry
	TokensUsed    int     `json:"tokens_used,omitempty"`
	ReasoningTime float64 `json:"reasoning_time,omitempty"`

	// workflow:started
	ModuleCount int `json:"module_count,omitempty"`

	// checkpoint:state / loop:state / input:state
	Reason string `json:"reason,omitempty"`

	// separator:add / message logs
	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty"`

	// monitoring:register
	MonitoringID string `json:"monitoring_id,omitempty"`

	// onboard:*
	ProjectName       string   `json:"project_name,omitempty"`
	TrackID           string   `json:"track_id,omitempty"`
	ConditionGroupID  string   `json:"condition_group_id,omitempty"`
	ConditionValue    string   `json:"condition_value,omitempty"`
	Conditions        []string `json:"conditions,omitempty"`
	ControllerAgentID string   `json:"controller_agent_id,omitempty"`

	// Free-form payload for anything not worth a dedicated field (e.g.
	// telemetry deltas from an engine-specific parser).
	Details map[string]any `json:"details,omitempty"`

	// Error information (agent:status=stopped, workflow:status=stopped with a failure).
	Error string `json:"error,omitempty"`
}

// generateEventID creates a unique event identifier.
func generateEventID() string {
	return fmt.Sprintf("evt_%s", uuid.New().String()[:8])
}

// NewEvent creates a new event of the given type with a fresh ID and timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}
