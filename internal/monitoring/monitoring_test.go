package monitoring

import (
	"testing"

	"github.com/cortexforge/agentflow/internal/bus"
)

func TestRegisterAssignsIncreasingIDs(t *testing.T) {
	b := bus.NewBus()
	m := New(b)

	s1 := m.Register("wf", "agent-a", 0)
	s2 := m.Register("wf", "agent-b", 1)

	if s1.ID != 1 || s2.ID != 2 {
		t.Errorf("expected sequential ids 1,2; got %d,%d", s1.ID, s2.ID)
	}
}

func TestRegisterEmitsMonitoringRegister(t *testing.T) {
	b := bus.NewBus()
	m := New(b)

	var got bus.Event
	b.On(bus.EventMonitoringRegister, func(ev bus.Event) { got = ev })

	m.Register("wf", "agent-a", 0)

	if got.Type != bus.EventMonitoringRegister || got.AgentID != "agent-a" {
		t.Errorf("expected monitoring:register for agent-a, got %+v", got)
	}
}

func TestAppendChunkAccumulatesLog(t *testing.T) {
	b := bus.NewBus()
	m := New(b)
	s := m.Register("wf", "agent-a", 0)

	m.AppendChunk(s.ID, "hello")
	m.AppendChunk(s.ID, "world")

	if log := s.Log(); log != "hello\nworld" {
		t.Errorf("expected joined log, got %q", log)
	}
}

func TestResumeReattachesExistingStream(t *testing.T) {
	b := bus.NewBus()
	m := New(b)

	s := m.Resume("wf", "agent-a", 3, 42)
	m.AppendChunk(42, "chunk")

	s2 := m.Resume("wf", "agent-a", 3, 42)
	if s2 != s {
		t.Error("expected Resume to return the same stream instance")
	}
	if s2.Log() != "chunk" {
		t.Errorf("expected resumed stream to retain appended log, got %q", s2.Log())
	}
}

func TestRecordTelemetryLastOneWins(t *testing.T) {
	b := bus.NewBus()
	m := New(b)
	s := m.Register("wf", "agent-a", 0)

	m.RecordTelemetry(s, 100, 1.5)
	m.RecordTelemetry(s, 250, 3.2)

	tokens, reasoning := s.Telemetry()
	if tokens != 250 || reasoning != 3.2 {
		t.Errorf("expected last telemetry update to win, got tokens=%d reasoning=%f", tokens, reasoning)
	}
}
