package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendStopIsNonBlockingWhenFull(t *testing.T) {
	b := New()
	b.SendStop()
	b.SendStop() // must not block or panic even though the channel is full

	select {
	case <-b.Stop:
	default:
		t.Fatal("expected a pending stop signal")
	}
}

func TestSendInputDeliversPayload(t *testing.T) {
	b := New()
	b.SendInput(InputSignal{Prompt: "focus on x"})

	sig := <-b.Input
	assert.Equal(t, "focus on x", sig.Prompt)
}

func TestSendModeChange(t *testing.T) {
	b := New()
	b.SendModeChange(true)

	sig := <-b.ModeChange
	assert.True(t, sig.AutonomousMode)
}

func TestCheckpointSignals(t *testing.T) {
	b := New()
	b.SendCheckpointContinue()

	select {
	case <-b.CheckpointContinue:
	default:
		t.Fatal("expected checkpoint continue signal")
	}

	b.SendCheckpointQuit()
	select {
	case <-b.CheckpointQuit:
	default:
		t.Fatal("expected checkpoint quit signal")
	}
}
