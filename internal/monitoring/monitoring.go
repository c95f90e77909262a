// Package monitoring assigns and owns per-step monitoring ids: the
// append-only log writer each engine invocation streams chunks into, and
// the telemetry counters the event bus reports as they arrive.
package monitoring

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cortexforge/agentflow/internal/bus"
)

// Stream is one step invocation's log and telemetry state.
type Stream struct {
	ID         int
	AgentID    string
	StepIndex  int
	WorkflowID string

	mu            sync.Mutex
	lines         []string
	tokensUsed    int
	reasoningTime float64
}

func (s *Stream) append(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, chunk)
}

// Log returns the accumulated chunks joined by newlines.
func (s *Stream) Log() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

// Telemetry returns the last-known token/reasoning-time totals.
func (s *Stream) Telemetry() (tokensUsed int, reasoningTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensUsed, s.reasoningTime
}

func (s *Stream) recordTelemetry(tokensUsed int, reasoningTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokensUsed = tokensUsed
	s.reasoningTime = reasoningTime
}

// Monitor assigns monotonically increasing monitoring ids and publishes
// every status/telemetry update it receives onto the event bus, so a
// websocket gateway or TUI observer never needs direct access to a Stream.
// Log chunks are kept in the Stream only; appending one emits no event.
type Monitor struct {
	bus *bus.Bus

	mu      sync.Mutex
	nextID  int
	streams map[int]*Stream
}

// New returns a Monitor that publishes onto b.
func New(b *bus.Bus) *Monitor {
	return &Monitor{bus: b, streams: make(map[int]*Stream)}
}

// Register allocates a fresh monitoring id for (agentID, stepIndex) and
// emits monitoring:register. Use Resume instead when continuing an
// existing step's session (its monitoring id is already known).
func (m *Monitor) Register(workflowID, agentID string, stepIndex int) *Stream {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	s := &Stream{ID: id, AgentID: agentID, StepIndex: stepIndex, WorkflowID: workflowID}
	m.streams[id] = s
	m.mu.Unlock()

	ev := bus.NewEvent(bus.EventMonitoringRegister)
	ev.WorkflowID = workflowID
	ev.AgentID = agentID
	ev.StepIndex = stepIndex
	ev.MonitoringID = strconv.Itoa(id)
	m.bus.Emit(ev)

	return s
}

// Resume reattaches to a monitoring id already persisted by the step
// index (crash-recovery / pause-resume path), so the next appended chunk
// extends the existing log rather than starting a new one.
func (m *Monitor) Resume(workflowID, agentID string, stepIndex, monitoringID int) *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[monitoringID]; ok {
		return s
	}
	s := &Stream{ID: monitoringID, AgentID: agentID, StepIndex: stepIndex, WorkflowID: workflowID}
	m.streams[monitoringID] = s
	if monitoringID > m.nextID {
		m.nextID = monitoringID
	}
	return s
}

// Get returns the stream for monitoringID, if registered.
func (m *Monitor) Get(monitoringID int) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[monitoringID]
	return s, ok
}

// AppendChunk writes chunk to the stream's log.
func (m *Monitor) AppendChunk(monitoringID int, chunk string) {
	if s, ok := m.Get(monitoringID); ok {
		s.append(chunk)
	}
}

// SetStatus emits agent:status for the given stream.
func (m *Monitor) SetStatus(s *Stream, status bus.AgentStatus, reason string) {
	ev := bus.NewEvent(bus.EventAgentStatus)
	ev.WorkflowID = s.WorkflowID
	ev.AgentID = s.AgentID
	ev.StepIndex = s.StepIndex
	ev.Status = status
	ev.Reason = reason
	m.bus.Emit(ev)
}

// RecordTelemetry stores the latest token/reasoning-time totals for the
// stream and forwards them to the event bus. Per the "last one wins"
// rule, callers must not re-derive telemetry from the final buffered
// output once this has been called.
func (m *Monitor) RecordTelemetry(s *Stream, tokensUsed int, reasoningTime float64) {
	s.recordTelemetry(tokensUsed, reasoningTime)

	ev := bus.NewEvent(bus.EventAgentTelemetry)
	ev.WorkflowID = s.WorkflowID
	ev.AgentID = s.AgentID
	ev.StepIndex = s.StepIndex
	ev.TokensUsed = tokensUsed
	ev.ReasoningTime = reasoningTime
	m.bus.Emit(ev)
}

// EmitEngineModel emits agent:engine and agent:model for the stream's step,
// used when the runner resolves (or falls back) to a concrete engine.
func (m *Monitor) EmitEngineModel(s *Stream, engineID, model string) {
	evEngine := bus.NewEvent(bus.EventAgentEngine)
	evEngine.WorkflowID = s.WorkflowID
	evEngine.AgentID = s.AgentID
	evEngine.StepIndex = s.StepIndex
	evEngine.Engine = engineID
	m.bus.Emit(evEngine)

	evModel := bus.NewEvent(bus.EventAgentModel)
	evModel.WorkflowID = s.WorkflowID
	evModel.AgentID = s.AgentID
	evModel.StepIndex = s.StepIndex
	evModel.Model = model
	m.bus.Emit(evModel)
}
