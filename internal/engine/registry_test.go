package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	id            string
	authenticated bool
	probeCalls    int32
}

func (f *fakeEngine) Metadata() Metadata { return Metadata{ID: f.id, Name: f.id} }

func (f *fakeEngine) IsAuthenticated(ctx context.Context) (bool, error) {
	atomic.AddInt32(&f.probeCalls, 1)
	return f.authenticated, nil
}

func (f *fakeEngine) SyncConfig(additionalAgents []string) error { return nil }

func (f *fakeEngine) Run(req RunRequest) (RunResponse, error) {
	return RunResponse{Stdout: "ok"}, nil
}

func TestResolvePinnedAuthenticated(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeEngine{id: "a", authenticated: true}
	b := &fakeEngine{id: "b", authenticated: true}
	r.Register(a)
	r.Register(b)

	got, err := r.Resolve(context.Background(), "b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Metadata().ID != "b" {
		t.Errorf("expected pinned engine b, got %s", got.Metadata().ID)
	}
}

func TestResolvePinnedUnauthenticatedFallsBackToFirstAuthenticated(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeEngine{id: "a", authenticated: true}
	b := &fakeEngine{id: "b", authenticated: false}
	r.Register(a)
	r.Register(b)

	got, err := r.Resolve(context.Background(), "b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Metadata().ID != "a" {
		t.Errorf("expected fallback to first authenticated engine a, got %s", got.Metadata().ID)
	}
}

func TestResolveNoneAuthenticatedFallsBackToDefault(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeEngine{id: "a", authenticated: false}
	b := &fakeEngine{id: "b", authenticated: false}
	r.Register(a) // first registered becomes default
	r.Register(b)

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Metadata().ID != "a" {
		t.Errorf("expected default engine a, got %s", got.Metadata().ID)
	}
}

func TestResolveUnpinnedPicksFirstAuthenticated(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeEngine{id: "a", authenticated: false}
	b := &fakeEngine{id: "b", authenticated: true}
	r.Register(a)
	r.Register(b)

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Metadata().ID != "b" {
		t.Errorf("expected first authenticated engine b, got %s", got.Metadata().ID)
	}
}

func TestAuthCacheMemoizesWithinTTL(t *testing.T) {
	c := NewAuthCache(time.Minute)
	e := &fakeEngine{id: "a", authenticated: true}

	for i := 0; i < 5; i++ {
		if _, err := c.IsAuthenticated(context.Background(), e); err != nil {
			t.Fatalf("IsAuthenticated failed: %v", err)
		}
	}

	if atomic.LoadInt32(&e.probeCalls) != 1 {
		t.Errorf("expected exactly 1 underlying probe within TTL, got %d", e.probeCalls)
	}
}

func TestAuthCacheInvalidateForcesReprobe(t *testing.T) {
	c := NewAuthCache(time.Minute)
	e := &fakeEngine{id: "a", authenticated: true}

	c.IsAuthenticated(context.Background(), e)
	c.Invalidate("a")
	c.IsAuthenticated(context.Background(), e)

	if atomic.LoadInt32(&e.probeCalls) != 2 {
		t.Errorf("expected 2 probes after invalidation, got %d", e.probeCalls)
	}
}
