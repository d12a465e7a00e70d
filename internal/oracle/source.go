package oracle

import (
	"errors"
	"time"
)

// Quote is a single price observation for an asset.
type Quote struct {
	Price     int64
	Decimals  uint32
	Timestamp time.Time
}

// Source is the underlying price feed the gateway wraps. Quote returns the
// most recent observation for the asset or an error when none exists or the
// feed is unavailable.
type Source interface {
	Quote(asset string) (Quote, error)
}

var (
	ErrUnknownAsset       = errors.New("oracle: no price for asset")
	ErrPriceCeiling       = errors.New("oracle: price exceeds reasonableness ceiling")
	ErrPriceDeviation     = errors.New("oracle: price deviates too far from last accepted")
	ErrPegDeviation       = errors.New("oracle: price outside stablecoin peg tolerance")
	ErrDecimalsOutOfRange = errors.New("oracle: asset decimals outside supported range")
	ErrNonPositivePrice   = errors.New("oracle: price must be positive")
)

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(asset string) (Quote, error)

func (f SourceFunc) Quote(asset string) (Quote, error) { return f(asset) }
