// Package statemachine implements the per-step finite state machine that
// the Workflow Runner drives: Idle -> Running -> Awaiting ->
// (Delegated|Running|Completed|Stopped).
package statemachine

import "sync"

// State is one of the step FSM's states.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateAwaiting  State = "awaiting"
	StateDelegated State = "delegated"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// EventKind is the discriminator for an FSM input.
type EventKind string

const (
	EventStart         EventKind = "START"
	EventStepComplete  EventKind = "STEP_COMPLETE"
	EventInputReceived EventKind = "INPUT_RECEIVED"
	EventResume        EventKind = "RESUME"
	EventSkip          EventKind = "SKIP"
	EventStop          EventKind = "STOP"
	EventStepError     EventKind = "STEP_ERROR"
	EventPause         EventKind = "PAUSE"
)

// Event is one FSM input, carrying whatever payload its kind needs.
type Event struct {
	Kind         EventKind
	Output       string
	MonitoringID int
	Input        string
	Err          error
}

// Machine is the per-run step FSM. It is not safe for concurrent use by
// more than one workflow run; the Runner owns exactly one Machine per run
// and calls are expected to come from a single logical thread of control,
// but Send is still mutex-guarded since suspension points (checkpoints,
// pauses) can interleave with signal-handler-driven events.
type Machine struct {
	mu     sync.Mutex
	state  State
	paused bool

	// OnTransition, if set, is invoked after every state change with the
	// old and new state. A PAUSE event, which only sets Paused, does not
	// invoke it.
	OnTransition func(from, to State, ev Event)
}

// New returns a Machine starting in StateIdle.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Paused reports whether a PAUSE event has been recorded since the last
// transition into Running.
func (m *Machine) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Machine) transition(to State, ev Event) {
	from := m.state
	m.state = to
	if to == StateRunning {
		m.paused = false
	}
	if m.OnTransition != nil {
		m.OnTransition(from, to, ev)
	}
}

// Send applies ev to the machine according to the transition table in
// the step FSM. Inputs not valid for the current state are ignored.
func (m *Machine) Send(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle:
		if ev.Kind == EventStart {
			m.transition(StateRunning, ev)
		}

	case StateRunning:
		switch ev.Kind {
		case EventStepComplete:
			m.transition(StateAwaiting, ev)
		case EventStepError:
			m.transition(StateStopped, ev)
		case EventPause:
			m.paused = true
		}

	case StateAwaiting:
		switch ev.Kind {
		case EventInputReceived:
			if ev.Input == "" {
				// Advancing the step pointer is the Runner's responsibility;
				// the FSM only records that execution should continue or
				// finish, which the Runner disambiguates via TotalSteps.
				m.transition(StateRunning, ev)
			} else {
				m.transition(StateDelegated, ev)
			}
		case EventSkip:
			m.transition(StateRunning, ev)
		case EventStop:
			m.transition(StateStopped, ev)
		case EventResume:
			m.transition(StateRunning, ev)
		}

	case StateDelegated:
		if ev.Kind == EventStepComplete {
			m.transition(StateAwaiting, ev)
		}

	case StateCompleted, StateStopped:
		// terminal; all inputs ignored
	}
}

// Complete forces the machine into StateCompleted. Used by the Runner
// once the last step has transitioned out of Awaiting with no more steps
// remaining.
func (m *Machine) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(StateCompleted, Event{Kind: EventStepComplete})
}
