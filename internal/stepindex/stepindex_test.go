package stepindex

import "testing"

func TestMarkStepStartedIsIdempotent(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := idx.MarkStepStarted(0); err != nil {
		t.Fatalf("first MarkStepStarted failed: %v", err)
	}
	first := idx.GetStepData(0).StartedAt

	if err := idx.MarkStepStarted(0); err != nil {
		t.Fatalf("second MarkStepStarted failed: %v", err)
	}
	second := idx.GetStepData(0).StartedAt

	if !first.Equal(*second) {
		t.Errorf("expected StartedAt to be retained, got %v then %v", first, second)
	}
}

func TestMarkStepCompletedIsIdempotent(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)

	if err := idx.MarkStepCompleted(0); err != nil {
		t.Fatalf("first MarkStepCompleted failed: %v", err)
	}
	first := idx.GetStepData(0).CompletedAt

	if err := idx.MarkStepCompleted(0); err != nil {
		t.Fatalf("second MarkStepCompleted failed: %v", err)
	}
	second := idx.GetStepData(0).CompletedAt

	if !first.Equal(*second) {
		t.Errorf("expected CompletedAt to be retained across repeated calls")
	}
}

func TestMarkChainCompletedIsSortedAndDeduped(t *testing.T) {
	idx, _ := Open(t.TempDir())

	idx.MarkChainCompleted(1, 2)
	idx.MarkChainCompleted(1, 0)
	idx.MarkChainCompleted(1, 2)
	idx.MarkChainCompleted(1, 1)

	got := idx.GetStepData(1).CompletedChains
	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestIsResumable(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)

	if IsResumable(idx.GetStepData(0)) {
		t.Error("expected step without a session to be non-resumable")
	}

	idx.InitStepSession(0, "sess-1", 7)
	if !IsResumable(idx.GetStepData(0)) {
		t.Error("expected started step with a session and no completion to be resumable")
	}

	idx.MarkStepCompleted(0)
	if IsResumable(idx.GetStepData(0)) {
		t.Error("expected completed step to be non-resumable")
	}
}

func TestGetResumeStartIndex(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)
	idx.MarkStepCompleted(0)
	idx.MarkStepStarted(1)
	idx.MarkStepCompleted(1)
	// step 2 never started

	if got := idx.GetResumeStartIndex(5); got != 2 {
		t.Errorf("expected resume start index 2, got %d", got)
	}
}

func TestGetResumeStartIndexAllComplete(t *testing.T) {
	idx, _ := Open(t.TempDir())
	for i := 0; i < 3; i++ {
		idx.MarkStepStarted(i)
		idx.MarkStepCompleted(i)
	}

	if got := idx.GetResumeStartIndex(3); got != 3 {
		t.Errorf("expected resume start index 3 (all complete), got %d", got)
	}
}

func TestGetChainResumeInfo(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)
	idx.MarkStepCompleted(0)

	idx.MarkStepStarted(1)
	idx.InitStepSession(1, "sess-1", 3)
	idx.MarkChainCompleted(1, 0)

	info := idx.GetChainResumeInfo()
	if !info.Found {
		t.Fatal("expected a resumable chain to be found")
	}
	if info.StepIndex != 1 {
		t.Errorf("expected step index 1, got %d", info.StepIndex)
	}
	if info.MonitoringID != 3 {
		t.Errorf("expected monitoring id 3, got %d", info.MonitoringID)
	}
	if info.NextChainIndex != 1 {
		t.Errorf("expected next chain index 1, got %d", info.NextChainIndex)
	}
}

func TestGetChainResumeInfoNoneFound(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)
	idx.MarkStepCompleted(0)

	info := idx.GetChainResumeInfo()
	if info.Found {
		t.Error("expected no resumable chain")
	}
}

func TestReopenRoundTrips(t *testing.T) {
	dir := t.TempDir()

	idx, _ := Open(dir)
	idx.MarkStepStarted(0)
	idx.InitStepSession(0, "sess-1", 5)
	idx.MarkChainCompleted(0, 0)

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	r := reopened.GetStepData(0)
	if r == nil || r.SessionID != "sess-1" || r.MonitoringID != 5 {
		t.Fatalf("expected persisted record to round-trip, got %+v", r)
	}
	if len(r.CompletedChains) != 1 || r.CompletedChains[0] != 0 {
		t.Fatalf("expected completedChains [0], got %v", r.CompletedChains)
	}
}

func TestCompletedAndNotCompleted(t *testing.T) {
	idx, _ := Open(t.TempDir())
	idx.MarkStepStarted(0)
	idx.MarkStepCompleted(0)
	idx.MarkStepStarted(1)

	completed, notCompleted := idx.CompletedAndNotCompleted(3)
	if len(completed) != 1 || completed[0] != 0 {
		t.Errorf("expected completed=[0], got %v", completed)
	}
	if len(notCompleted) != 2 {
		t.Errorf("expected 2 not-completed steps, got %v", notCompleted)
	}
}
