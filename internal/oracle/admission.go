package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"LendCore/internal/system"
)

// Admission bounds for candidate prices.
const (
	MaxPriceDeviationBps = 1000 // 10% vs last accepted
	MinDecimals          = 6
	MaxDecimals          = 18
)

// PegConfig marks an asset as a stablecoin. Candidate prices are accepted
// only within ToleranceBps of ExpectedPrice.
type PegConfig struct {
	ExpectedPrice int64
	ToleranceBps  int64
}

// Book is the accepted-price store. Candidate prices pass the admission rule
// before they replace the last accepted quote; rejected candidates leave the
// book unchanged. Book implements Source for the gateway's read path.
type Book struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	pegs    map[string]PegConfig
	ceiling int64
	access  system.AccessController
	now     func() time.Time
}

// NewBook creates an empty price book. ceiling is the absolute reasonableness
// bound applied to every candidate.
func NewBook(ceiling int64, access system.AccessController) *Book {
	return &Book{
		quotes:  make(map[string]Quote),
		pegs:    make(map[string]PegConfig),
		ceiling: ceiling,
		access:  access,
		now:     time.Now,
	}
}

// SetPeg registers a stablecoin peg for an asset. Subsequent submissions for
// the asset are checked against the peg instead of the deviation rule.
func (b *Book) SetPeg(asset string, peg PegConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pegs[asset] = peg
}

// Submit runs the admission rule on a candidate price and, if it passes,
// stores it as the asset's accepted quote.
//
// Rejection order: authorization, positivity, decimals range, absolute
// ceiling, then peg or deviation. The first price for a non-pegged asset is
// always accepted.
func (b *Book) Submit(caller uuid.UUID, asset string, price int64, decimals uint32) error {
	if err := b.access.RequirePermission(system.ActionSubmitPrice, caller); err != nil {
		return err
	}
	if price <= 0 {
		return fmt.Errorf("%w: asset %s price %d", ErrNonPositivePrice, asset, price)
	}
	if decimals < MinDecimals || decimals > MaxDecimals {
		return fmt.Errorf("%w: asset %s has %d, want %d..%d",
			ErrDecimalsOutOfRange, asset, decimals, MinDecimals, MaxDecimals)
	}
	if price > b.ceiling {
		return fmt.Errorf("%w: asset %s price %d > %d", ErrPriceCeiling, asset, price, b.ceiling)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if peg, pegged := b.pegs[asset]; pegged {
		if !withinBps(price, peg.ExpectedPrice, peg.ToleranceBps) {
			return fmt.Errorf("%w: asset %s price %d vs peg %d (tolerance %d bps)",
				ErrPegDeviation, asset, price, peg.ExpectedPrice, peg.ToleranceBps)
		}
	} else if last, ok := b.quotes[asset]; ok {
		if !withinBps(price, last.Price, MaxPriceDeviationBps) {
			return fmt.Errorf("%w: asset %s price %d vs last %d",
				ErrPriceDeviation, asset, price, last.Price)
		}
	}

	b.quotes[asset] = Quote{Price: price, Decimals: decimals, Timestamp: b.now()}
	return nil
}

// Quote returns the last accepted price for the asset.
func (b *Book) Quote(asset string) (Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[asset]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return q, nil
}

// withinBps reports whether candidate lies within tolBps basis points of ref.
func withinBps(candidate, ref, tolBps int64) bool {
	diff := candidate - ref
	if diff < 0 {
		diff = -diff
	}
	limit, ok := mulDiv(ref, tolBps, 10000)
	if !ok {
		return false
	}
	return diff <= limit
}
