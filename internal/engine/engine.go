// Package engine defines the Engine contract (an external process that
// drives a language-model agent to completion) and the registry that
// resolves a step's requested engine id to a concrete, authenticated
// engine, with TTL-cached and coalesced authentication probes.
package engine

import "context"

// Metadata describes a registered engine's identity and defaults.
type Metadata struct {
	ID                          string
	Name                        string
	DefaultModel                string
	DefaultModelReasoningEffort string
}

// RunRequest carries everything an Engine needs to drive one invocation.
type RunRequest struct {
	Prompt               string
	WorkingDir           string
	Model                string
	ModelReasoningEffort string

	// SessionID, when non-empty, asks the engine to resume an existing
	// conversation rather than start a fresh one. Session ids are opaque
	// strings the engine itself assigns and understands.
	SessionID string

	OnData      func(chunk string)
	OnErrorData func(chunk string)
	OnTelemetry func(t Telemetry)

	// Ctx is cancelled to terminate the child process early (pause, skip,
	// stop, or mode-change).
	Ctx context.Context
}

// Telemetry is a streamed usage update forwarded to the event bus as it
// arrives; the last one received before the engine terminates is
// authoritative (final output is never re-parsed for telemetry).
type Telemetry struct {
	TokensUsed    int
	ReasoningTime float64
}

// RunResponse is an Engine invocation's result.
type RunResponse struct {
	Stdout    string
	SessionID string
}

// Engine is the external-process contract a registered engine implements.
type Engine interface {
	Metadata() Metadata

	// IsAuthenticated probes whether the engine is currently usable. This
	// can be expensive (10-30s); callers should go through AuthCache
	// rather than invoking it directly on a hot path.
	IsAuthenticated(ctx context.Context) (bool, error)

	// SyncConfig mirrors agent metadata the engine needs on disk (e.g. an
	// agents-config.json); additionalAgents is the set of agent ids
	// referenced anywhere in the active template.
	SyncConfig(additionalAgents []string) error

	Run(req RunRequest) (RunResponse, error)
}
