package engine

import (
	"context"
	"fmt"

	"github.com/cortexforge/agentflow/internal/logging"
)

// Registry enumerates registered engines in a deterministic (registration)
// order and resolves a step's requested engine to a concrete,
// authenticated one, falling back per the resolution rules in order:
// pinned-and-authenticated -> first-authenticated -> registered default.
type Registry struct {
	order     []string
	engines   map[string]Engine
	auth      *AuthCache
	defaultID string
}

// NewRegistry returns an empty registry using authCache for probes. If
// authCache is nil, a default-TTL cache is created.
func NewRegistry(authCache *AuthCache) *Registry {
	if authCache == nil {
		authCache = NewAuthCache(DefaultAuthTTL)
	}
	return &Registry{
		engines: make(map[string]Engine),
		auth:    authCache,
	}
}

// Register adds eng to the registry in call order. The first registered
// engine becomes the default unless SetDefault is called explicitly.
func (r *Registry) Register(eng Engine) {
	id := eng.Metadata().ID
	r.engines[id] = eng
	r.order = append(r.order, id)
	if r.defaultID == "" {
		r.defaultID = id
	}
}

// SetDefault names the engine id used when no pinned or authenticated
// engine can be resolved.
func (r *Registry) SetDefault(id string) {
	r.defaultID = id
}

// Get returns the engine registered under id, if any.
func (r *Registry) Get(id string) (Engine, bool) {
	e, ok := r.engines[id]
	return e, ok
}

// IDs returns registered engine ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AuthCache exposes the underlying cache so callers (e.g. a CLI "engines"
// command) can force invalidation.
func (r *Registry) AuthCache() *AuthCache {
	return r.auth
}

// Resolve implements the step.engine -> concrete Engine resolution chain.
// pinned is the step's requested engine id, or "" if the step did not
// pin one.
func (r *Registry) Resolve(ctx context.Context, pinned string) (Engine, error) {
	if pinned != "" {
		eng, ok := r.engines[pinned]
		if ok {
			authenticated, err := r.auth.IsAuthenticated(ctx, eng)
			if err == nil && authenticated {
				return eng, nil
			}
			logging.Global().WithComponent("engine").Warn("pinned engine %q is not authenticated, falling back", pinned)
		} else {
			logging.Global().WithComponent("engine").Warn("pinned engine %q is not registered, falling back", pinned)
		}
	}

	for _, id := range r.order {
		eng := r.engines[id]
		authenticated, err := r.auth.IsAuthenticated(ctx, eng)
		if err == nil && authenticated {
			return eng, nil
		}
	}

	if r.defaultID == "" {
		return nil, fmt.Errorf("engine: no engines registered")
	}
	eng, ok := r.engines[r.defaultID]
	if !ok {
		return nil, fmt.Errorf("engine: default engine %q is not registered", r.defaultID)
	}
	return eng, nil
}

// SyncConfig mirrors additionalAgents into every registered engine's
// on-disk configuration (agents-config.json and similar). Per-engine
// errors are collected but do not stop the sync from proceeding to the
// remaining engines.
func (r *Registry) SyncConfig(additionalAgents []string) error {
	var firstErr error
	for _, id := range r.order {
		if err := r.engines[id].SyncConfig(additionalAgents); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("engine %s: sync config: %w", id, err)
		}
	}
	return firstErr
}
