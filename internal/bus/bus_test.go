package bus

import (
	"fmt"
	"sync/atomic"
	"testing"
)

func TestNewBus(t *testing.T) {
	b := NewBus()
	if b == nil {
		t.Fatal("NewBus returned nil")
	}
	defer b.Close()

	if b.SubscriptionsCount() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", b.SubscriptionsCount())
	}
}

func TestOnAndEmit(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var received atomic.Bool
	id := b.On(EventAgentStatus, func(e Event) {
		if e.Status == AgentStatusRunning {
			received.Store(true)
		}
	})
	if id == "" {
		t.Fatal("On returned empty subscription ID")
	}

	event := NewEvent(EventAgentStatus)
	event.Status = AgentStatusRunning
	if err := b.Emit(event); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if !received.Load() {
		t.Error("handler was not invoked for matching event type")
	}
}

func TestEmitDoesNotCrossDeliverTypes(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var calls int32
	b.On(EventAgentStatus, func(e Event) { atomic.AddInt32(&calls, 1) })

	b.Emit(NewEvent(EventWorkflowStarted))

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected 0 calls for non-matching type, got %d", calls)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var calls int32
	b.SubscribeAll(func(e Event) { atomic.AddInt32(&calls, 1) })

	b.Emit(NewEvent(EventWorkflowStarted))
	b.Emit(NewEvent(EventAgentStatus))
	b.Emit(NewEvent(EventOnboardStep))

	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected wildcard listener to see 3 events, got %d", calls)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var calls int32
	b.Once(EventLoopState, func(e Event) { atomic.AddInt32(&calls, 1) })

	b.Emit(NewEvent(EventLoopState))
	b.Emit(NewEvent(EventLoopState))
	b.Emit(NewEvent(EventLoopState))

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected once listener to fire exactly once, got %d", calls)
	}
	if b.SubscriptionsCount() != 0 {
		t.Errorf("expected once listener to be unsubscribed after firing, have %d subscriptions", b.SubscriptionsCount())
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var calls int32
	id := b.On(EventAgentStatus, func(e Event) { atomic.AddInt32(&calls, 1) })

	b.Emit(NewEvent(EventAgentStatus))
	if err := b.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	b.Emit(NewEvent(EventAgentStatus))

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 call before unsubscribe, got %d", calls)
	}
}

func TestUnsubscribeUnknownID(t *testing.T) {
	b := NewBus()
	defer b.Close()

	if err := b.Unsubscribe(SubscriptionID("does-not-exist")); err == nil {
		t.Error("expected error unsubscribing an unknown ID")
	}
}

// TestDispatchOrderIsSubscriptionOrder verifies emission is synchronous and
// that listeners run in the order they were registered.
func TestDispatchOrderIsSubscriptionOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.On(EventAgentStatus, func(e Event) { order = append(order, i) })
	}

	b.Emit(NewEvent(EventAgentStatus))

	for i, v := range order {
		if v != i {
			t.Fatalf("expected dispatch order %v, got %v", []int{0, 1, 2, 3, 4}, order)
		}
	}
}

// TestPanicInListenerIsIsolated ensures a panicking listener does not stop
// subsequent listeners from running and does not propagate to Emit's caller.
func TestPanicInListenerIsIsolated(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var secondCalled atomic.Bool
	b.On(EventAgentStatus, func(e Event) { panic("boom") })
	b.On(EventAgentStatus, func(e Event) { secondCalled.Store(true) })

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped Emit: %v", r)
			}
		}()
		if err := b.Emit(NewEvent(EventAgentStatus)); err != nil {
			t.Fatalf("Emit returned error: %v", err)
		}
	}()

	if !secondCalled.Load() {
		t.Error("second listener did not run after first listener panicked")
	}
}

// TestUnsubscribeDuringDispatch ensures a listener unsubscribing itself (or
// another listener) mid-dispatch doesn't panic or skip other listeners.
func TestUnsubscribeDuringDispatch(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var thirdCalled atomic.Bool
	var selfID SubscriptionID
	selfID = b.On(EventAgentStatus, func(e Event) {
		b.Unsubscribe(selfID)
	})
	b.On(EventAgentStatus, func(e Event) { thirdCalled.Store(true) })

	if err := b.Emit(NewEvent(EventAgentStatus)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if !thirdCalled.Load() {
		t.Error("listener registered after a self-unsubscribing listener was skipped")
	}
	if b.SubscriptionsCount() != 1 {
		t.Errorf("expected self-unsubscribed listener to be gone, have %d subscriptions", b.SubscriptionsCount())
	}
}

func TestRemoveAllListenersByType(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.On(EventAgentStatus, func(e Event) {})
	b.On(EventAgentStatus, func(e Event) {})
	b.On(EventWorkflowStarted, func(e Event) {})

	b.RemoveAllListeners(EventAgentStatus)

	if b.SubscriptionsCount() != 1 {
		t.Errorf("expected 1 remaining subscription, got %d", b.SubscriptionsCount())
	}
	if !b.HasSubscribers(EventWorkflowStarted) {
		t.Error("expected workflow:started listener to survive a targeted clear")
	}
	if b.HasSubscribers(EventAgentStatus) {
		t.Error("expected agent:status listeners to be gone")
	}
}

func TestRemoveAllListenersEverything(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.On(EventAgentStatus, func(e Event) {})
	b.SubscribeAll(func(e Event) {})

	b.RemoveAllListeners("")

	if b.SubscriptionsCount() != 0 {
		t.Errorf("expected 0 subscriptions after full clear, got %d", b.SubscriptionsCount())
	}
}

func TestHasSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	if b.HasSubscribers(EventAgentStatus) {
		t.Error("expected no subscribers on a fresh bus")
	}

	b.On(EventAgentStatus, func(e Event) {})
	if !b.HasSubscribers(EventAgentStatus) {
		t.Error("expected a subscriber after On")
	}

	b2 := NewBus()
	defer b2.Close()
	b2.SubscribeAll(func(e Event) {})
	if !b2.HasSubscribers(EventOnboardStep) {
		t.Error("expected wildcard subscriber to count for any type")
	}
}

func TestHistoryDisabledByDefault(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.Emit(NewEvent(EventWorkflowStarted))
	if len(b.GetHistory()) != 0 {
		t.Error("expected no history retained when history is disabled")
	}
}

func TestHistoryBoundedFIFO(t *testing.T) {
	b := NewBusWithConfig(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		e := NewEvent(EventWorkflowStatus)
		e.Reason = fmt.Sprintf("%d", i)
		b.Emit(e)
	}

	history := b.GetHistory()
	if len(history) != 3 {
		t.Fatalf("expected bounded history of 3, got %d", len(history))
	}
	if history[0].Reason != "2" || history[2].Reason != "4" {
		t.Errorf("expected oldest entries dropped, got reasons %q..%q", history[0].Reason, history[2].Reason)
	}
}

func TestGetHistoryByType(t *testing.T) {
	b := NewBusWithConfig(10)
	defer b.Close()

	b.Emit(NewEvent(EventAgentStatus))
	b.Emit(NewEvent(EventWorkflowStarted))
	b.Emit(NewEvent(EventAgentStatus))

	matched := b.GetHistoryByType(EventAgentStatus)
	if len(matched) != 2 {
		t.Errorf("expected 2 agent:status entries, got %d", len(matched))
	}
}

func TestClearHistory(t *testing.T) {
	b := NewBusWithConfig(10)
	defer b.Close()

	b.Emit(NewEvent(EventAgentStatus))
	b.ClearHistory()

	if len(b.GetHistory()) != 0 {
		t.Error("expected history to be empty after ClearHistory")
	}
}

func TestEmitAfterCloseFails(t *testing.T) {
	b := NewBus()
	b.Close()

	if err := b.Emit(NewEvent(EventAgentStatus)); err == nil {
		t.Error("expected Emit to fail after Close")
	}
}

func TestCloseTwiceErrors(t *testing.T) {
	b := NewBus()
	if err := b.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := b.Close(); err == nil {
		t.Error("expected second Close to error")
	}
}
