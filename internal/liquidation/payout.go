package liquidation

import (
	"sync"
)

// Share is one leg of a payout: an amount bound for a recipient address.
type Share struct {
	Recipient string
	Amount    int64
}

// Payout is the full distribution of one seizure. Distribute implementations
// must apply it atomically: either all four legs land or none do.
type Payout struct {
	Asset      string
	Platform   Share
	Reserve    Share
	Lender     Share
	Liquidator Share
}

// PayoutSink receives seized collateral distributions.
type PayoutSink interface {
	Distribute(p Payout) error
}

// MemorySink accumulates payouts in process. Used for tests and deployments
// where settlement happens downstream of the emitted PayoutSplit events.
type MemorySink struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // recipient -> asset -> amount
}

func NewMemorySink() *MemorySink {
	return &MemorySink{balances: make(map[string]map[string]int64)}
}

func (s *MemorySink) Distribute(p Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, leg := range []Share{p.Platform, p.Reserve, p.Lender, p.Liquidator} {
		if leg.Amount == 0 {
			continue
		}
		if s.balances[leg.Recipient] == nil {
			s.balances[leg.Recipient] = make(map[string]int64)
		}
		s.balances[leg.Recipient][p.Asset] += leg.Amount
	}
	return nil
}

// BalanceOf returns what a recipient has accumulated in an asset.
func (s *MemorySink) BalanceOf(recipient, asset string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[recipient][asset]
}
