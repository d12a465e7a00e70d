package system

import (
	"errors"
	"sync/atomic"
)

// ErrPaused is returned by every mutating entry point while the emergency
// switch is set.
var ErrPaused = errors.New("system: paused")

// Pause is the process-wide emergency switch. Mutating entry points call
// Guard before touching state.
type Pause struct {
	paused atomic.Bool
}

func NewPause() *Pause {
	return &Pause{}
}

// Set flips the switch. Callers must have passed an access-control check.
func (p *Pause) Set(paused bool) {
	p.paused.Store(paused)
}

// IsPaused reports the current state.
func (p *Pause) IsPaused() bool {
	return p.paused.Load()
}

// Guard returns ErrPaused when the switch is set, nil otherwise.
// A nil receiver never blocks: components constructed without a pause
// reference are treated as unpaused.
func (p *Pause) Guard() error {
	if p == nil {
		return nil
	}
	if p.paused.Load() {
		return ErrPaused
	}
	return nil
}
