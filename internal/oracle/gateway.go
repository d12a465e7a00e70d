package oracle

import (
	"time"

	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/observability"
)

// Degradation reasons attached to telemetry and the log.
const (
	ReasonSourceError = "source_error"
	ReasonStalePrice  = "stale_price"
	ReasonCeiling     = "ceiling_exceeded"
	ReasonOverflow    = "value_overflow"
)

// Gateway wraps a price source with the graceful-degradation policy. Reads
// never fail: when the source errors, is stale, or is implausible, the
// caller-supplied fallback is returned and the occurrence is logged.
type Gateway struct {
	source      Source
	maxAge      time.Duration
	ceiling     int64
	degradation *DegradationLog
	logger      zerolog.Logger
	metrics     *observability.Metrics
	notify      func(event.PriceDegradation)
	now         func() time.Time
	height      func() uint64
}

// NewGateway wraps source. maxAge bounds quote staleness, ceiling bounds
// plausible prices. notify receives degradation telemetry and may be nil,
// as may metrics.
func NewGateway(
	source Source,
	maxAge time.Duration,
	ceiling int64,
	degradation *DegradationLog,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	notify func(event.PriceDegradation),
) *Gateway {
	return &Gateway{
		source:      source,
		maxAge:      maxAge,
		ceiling:     ceiling,
		degradation: degradation,
		logger:      logger,
		metrics:     metrics,
		notify:      notify,
		now:         time.Now,
		height:      func() uint64 { return 0 },
	}
}

// PriceOf returns the current quote for the asset. valid is false when the
// source failed, the quote is stale, or the price is implausible; the caller
// decides whether to degrade.
func (g *Gateway) PriceOf(asset string) (price int64, ts time.Time, decimals uint32, valid bool) {
	q, err := g.source.Quote(asset)
	if err != nil {
		return 0, time.Time{}, 0, false
	}
	if g.maxAge > 0 && g.now().Sub(q.Timestamp) > g.maxAge {
		return q.Price, q.Timestamp, q.Decimals, false
	}
	if q.Price <= 0 || q.Price > g.ceiling {
		return q.Price, q.Timestamp, q.Decimals, false
	}
	return q.Price, q.Timestamp, q.Decimals, true
}

// ValueOf values amount units of asset. On any degradation it returns the
// caller-supplied fallback and records the occurrence; it never fails.
func (g *Gateway) ValueOf(asset string, amount, fallback int64) (value int64, usedFallback bool) {
	q, err := g.source.Quote(asset)
	switch {
	case err != nil:
		return g.degrade(asset, fallback, ReasonSourceError)
	case g.maxAge > 0 && g.now().Sub(q.Timestamp) > g.maxAge:
		return g.degrade(asset, fallback, ReasonStalePrice)
	case q.Price <= 0 || q.Price > g.ceiling:
		return g.degrade(asset, fallback, ReasonCeiling)
	}

	v, ok := scaleValue(amount, q.Price, q.Decimals)
	if !ok {
		return g.degrade(asset, fallback, ReasonOverflow)
	}
	if g.metrics != nil {
		g.metrics.ValuationRequests.WithLabelValues(asset, "fresh").Inc()
	}
	return v, false
}

func (g *Gateway) degrade(asset string, fallback int64, reason string) (int64, bool) {
	ts := g.now()
	h := g.height()

	g.degradation.Record(Degradation{
		Module:        "valuation",
		Asset:         asset,
		Reason:        reason,
		FallbackValue: fallback,
		UsedFallback:  true,
		Timestamp:     ts,
		Height:        h,
	})

	if g.metrics != nil {
		g.metrics.ValuationRequests.WithLabelValues(asset, "fallback").Inc()
		g.metrics.Degradations.WithLabelValues(asset, reason).Inc()
	}
	g.logger.Warn().
		Str("asset", asset).
		Str("reason", reason).
		Int64("fallback_value", fallback).
		Msg("valuation degraded")

	if g.notify != nil {
		g.notify(event.PriceDegradation{
			Module:        "valuation",
			Asset:         asset,
			Reason:        reason,
			FallbackValue: fallback,
			UsedFallback:  true,
			Timestamp:     ts.UnixNano(),
			BlockHeight:   h,
		})
	}
	return fallback, true
}
