package liquidation

import (
	"errors"
	"fmt"
)

// ErrBadAllocation marks share configurations that do not sum to 10000 bps.
var ErrBadAllocation = errors.New("liquidation: allocation shares must sum to 10000 bps")

// Allocation configures how seized collateral is split among stakeholders,
// in basis points. The four shares must sum to exactly 10000.
type Allocation struct {
	PlatformBps   int64
	ReserveBps    int64
	LenderBps     int64
	LiquidatorBps int64
}

// Validate checks the bps-sum invariant and share positivity.
func (a Allocation) Validate() error {
	for _, bps := range []int64{a.PlatformBps, a.ReserveBps, a.LenderBps, a.LiquidatorBps} {
		if bps < 0 {
			return fmt.Errorf("%w: negative share", ErrBadAllocation)
		}
	}
	if sum := a.PlatformBps + a.ReserveBps + a.LenderBps + a.LiquidatorBps; sum != 10000 {
		return fmt.Errorf("%w: got %d", ErrBadAllocation, sum)
	}
	return nil
}

// Split divides a seized amount into integer shares. The three fixed shares
// round down; the rounding remainder goes to the liquidator, so the four
// shares always sum exactly to seized.
type Split struct {
	Platform   int64
	Reserve    int64
	Lender     int64
	Liquidator int64
}

func (a Allocation) Split(seized int64) Split {
	platform := seized * a.PlatformBps / 10000
	reserve := seized * a.ReserveBps / 10000
	lender := seized * a.LenderBps / 10000
	return Split{
		Platform:   platform,
		Reserve:    reserve,
		Lender:     lender,
		Liquidator: seized - platform - reserve - lender,
	}
}
