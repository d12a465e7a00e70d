package liquidation

import (
	"errors"
	"sync/atomic"
)

// ErrReentrant is returned when a call re-enters the liquidation entry point
// while a liquidation is already in flight, including via notification hooks.
var ErrReentrant = errors.New("liquidation: reentrant call")

// Guard is the reentrancy-exclusion token around the liquidation entry
// point. Acquire at entry, release on every exit path.
type Guard struct {
	busy atomic.Bool
}

// Acquire claims the guard. Fails when a liquidation is already in flight.
func (g *Guard) Acquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	return nil
}

// Release frees the guard.
func (g *Guard) Release() {
	g.busy.Store(false)
}
