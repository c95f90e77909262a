package statemachine

import "testing"

func TestIdleStartTransitionsToRunning(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	if m.State() != StateRunning {
		t.Fatalf("expected Running, got %s", m.State())
	}
}

func TestRunningStepCompleteTransitionsToAwaiting(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})
	if m.State() != StateAwaiting {
		t.Fatalf("expected Awaiting, got %s", m.State())
	}
}

func TestRunningStepErrorTransitionsToStopped(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepError})
	if m.State() != StateStopped {
		t.Fatalf("expected Stopped, got %s", m.State())
	}
}

func TestAwaitingEmptyInputAdvancesToRunning(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})
	m.Send(Event{Kind: EventInputReceived, Input: ""})
	if m.State() != StateRunning {
		t.Fatalf("expected Running, got %s", m.State())
	}
}

func TestAwaitingNonEmptyInputGoesDelegated(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})
	m.Send(Event{Kind: EventInputReceived, Input: "do more"})
	if m.State() != StateDelegated {
		t.Fatalf("expected Delegated, got %s", m.State())
	}
}

func TestDelegatedStepCompleteReturnsToAwaiting(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})
	m.Send(Event{Kind: EventInputReceived, Input: "do more"})
	m.Send(Event{Kind: EventStepComplete})
	if m.State() != StateAwaiting {
		t.Fatalf("expected Awaiting, got %s", m.State())
	}
}

func TestAwaitingStopTransitionsToStopped(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})
	m.Send(Event{Kind: EventStop})
	if m.State() != StateStopped {
		t.Fatalf("expected Stopped, got %s", m.State())
	}
}

func TestTerminalStatesIgnoreAllEvents(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepError})
	if m.State() != StateStopped {
		t.Fatalf("expected Stopped, got %s", m.State())
	}
	m.Send(Event{Kind: EventStart})
	if m.State() != StateStopped {
		t.Fatalf("expected Stopped to be terminal, got %s", m.State())
	}
}

func TestPauseSetsFlagWithoutChangingState(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventPause})
	if m.State() != StateRunning {
		t.Fatalf("expected state unchanged by PAUSE, got %s", m.State())
	}
	if !m.Paused() {
		t.Error("expected Paused() to be true after PAUSE")
	}
}

func TestPausedFlagResetsOnReentryToRunning(t *testing.T) {
	m := New()
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventPause})
	m.Send(Event{Kind: EventStepComplete})
	m.Send(Event{Kind: EventInputReceived, Input: ""})
	if m.Paused() {
		t.Error("expected Paused() to reset on re-entry into Running")
	}
}

func TestOnTransitionCallback(t *testing.T) {
	m := New()
	var transitions [][2]State
	m.OnTransition = func(from, to State, ev Event) {
		transitions = append(transitions, [2]State{from, to})
	}
	m.Send(Event{Kind: EventStart})
	m.Send(Event{Kind: EventStepComplete})

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0] != [2]State{StateIdle, StateRunning} {
		t.Errorf("unexpected first transition: %v", transitions[0])
	}
	if transitions[1] != [2]State{StateRunning, StateAwaiting} {
		t.Errorf("unexpected second transition: %v", transitions[1])
	}
}
