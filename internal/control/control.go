// Package control provides the typed, in-process signal channels the
// Runner listens on: workflow:stop/pause/input/skip/mode-change and
// checkpoint:continue/quit. It replaces an ambient process-wide event
// emitter with a channel bundle that is constructed per run and injected
// into the Runner — no package-level mutable state.
package control

// InputSignal carries a steering input delivered via workflow:input.
type InputSignal struct {
	Prompt string
	Skip   bool
}

// ModeChangeSignal carries workflow:mode-change.
type ModeChangeSignal struct {
	AutonomousMode bool
}

// Bus is the bundle of channels the Runner selects on. Each field is a
// distinct signal type rather than one multiplexed channel, mirroring
// the event names in the external-interfaces surface.
type Bus struct {
	Stop               chan struct{}
	Pause              chan struct{}
	Input              chan InputSignal
	Skip               chan struct{}
	ModeChange         chan ModeChangeSignal
	CheckpointContinue chan struct{}
	CheckpointQuit     chan struct{}
}

// New allocates a fresh control Bus with modestly buffered channels so a
// sender never blocks on a Runner that is mid-suspension-point.
func New() *Bus {
	return &Bus{
		Stop:               make(chan struct{}, 1),
		Pause:               make(chan struct{}, 1),
		Input:               make(chan InputSignal, 1),
		Skip:                make(chan struct{}, 1),
		ModeChange:         make(chan ModeChangeSignal, 1),
		CheckpointContinue: make(chan struct{}, 1),
		CheckpointQuit:     make(chan struct{}, 1),
	}
}

// SendStop requests workflow stop, non-blocking if already pending.
func (b *Bus) SendStop() {
	select {
	case b.Stop <- struct{}{}:
	default:
	}
}

// SendPause requests a pause, non-blocking if already pending.
func (b *Bus) SendPause() {
	select {
	case b.Pause <- struct{}{}:
	default:
	}
}

// SendSkip requests the current step be skipped, non-blocking if already pending.
func (b *Bus) SendSkip() {
	select {
	case b.Skip <- struct{}{}:
	default:
	}
}

// SendInput delivers a steering input, non-blocking if a prior one is
// still unconsumed (the Runner only ever has one suspension point open
// at a time, so this should not drop meaningful input in practice).
func (b *Bus) SendInput(sig InputSignal) {
	select {
	case b.Input <- sig:
	default:
	}
}

// SendModeChange toggles autonomous mode.
func (b *Bus) SendModeChange(autonomous bool) {
	select {
	case b.ModeChange <- ModeChangeSignal{AutonomousMode: autonomous}:
	default:
	}
}

// SendCheckpointContinue resolves a pending checkpoint with "continue".
func (b *Bus) SendCheckpointContinue() {
	select {
	case b.CheckpointContinue <- struct{}{}:
	default:
	}
}

// SendCheckpointQuit resolves a pending checkpoint with "quit".
func (b *Bus) SendCheckpointQuit() {
	select {
	case b.CheckpointQuit <- struct{}{}:
	default:
	}
}
