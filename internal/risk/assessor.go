package risk

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/observability"
	"LendCore/internal/system"
)

// MaxHealthFactor is the sentinel for positions with zero debt. Such
// positions are never liquidatable.
const MaxHealthFactor = int64(math.MaxInt64)

// DefaultLiquidationThresholdBps is the governed eligibility bound: positions
// whose health factor drops below it become liquidatable. 11000 keeps a 10%
// buffer above exact collateralization.
const DefaultLiquidationThresholdBps = 11000

// Assessment is the derived risk view of a position. Never persisted.
type Assessment struct {
	Liquidatable bool
	RiskScore    int64 // 0..100
	HealthFactor int64 // basis points, MaxHealthFactor when debt is zero
	RiskLevel    uint8 // 0..4
	SafetyMargin int64 // basis points above the liquidation threshold
}

// Valuer is the valuation capability the assessor consumes.
type Valuer interface {
	ValueOf(asset string, amount, fallback int64) (value int64, usedFallback bool)
}

// Snapshot is one (asset, collateral, debt) row of a user's holdings.
type Snapshot struct {
	Asset      string
	Collateral int64
	Debt       int64
}

// PositionSource enumerates a user's holdings for valuation.
type PositionSource interface {
	PositionsOf(user uuid.UUID) []Snapshot
}

// HealthFactor returns collateralValue/debtValue in basis points.
// 10000 means exactly collateralized.
func HealthFactor(collateralValue, debtValue int64) int64 {
	if debtValue == 0 {
		return MaxHealthFactor
	}
	n := new(big.Int).Mul(big.NewInt(collateralValue), big.NewInt(10000))
	n.Quo(n, big.NewInt(debtValue))
	if !n.IsInt64() {
		return MaxHealthFactor
	}
	return n.Int64()
}

// RiskScore maps a position's shortfall to 0..100. Fully covered positions
// score 0; the score grows with the uncovered fraction of the debt.
func RiskScore(collateralValue, debtValue int64) int64 {
	if debtValue == 0 || collateralValue >= debtValue {
		return 0
	}
	score := (debtValue - collateralValue) * 100 / debtValue
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RiskLevel buckets a risk score into 0..4.
func RiskLevel(score int64) uint8 {
	switch {
	case score == 0:
		return 0
	case score <= 25:
		return 1
	case score <= 50:
		return 2
	case score <= 75:
		return 3
	default:
		return 4
	}
}

// Assessor computes risk assessments over valued holdings and owns the
// governed liquidation threshold and the health-factor cache.
type Assessor struct {
	valuer    Valuer
	positions PositionSource
	access    system.AccessController
	logger    zerolog.Logger
	metrics   *observability.Metrics

	mu        sync.RWMutex
	threshold int64
	hfCache   map[uuid.UUID]hfEntry
}

type hfEntry struct {
	value     int64
	updatedAt time.Time
}

// NewAssessor creates an assessor with the default threshold. metrics may
// be nil.
func NewAssessor(
	valuer Valuer,
	positions PositionSource,
	access system.AccessController,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Assessor {
	return &Assessor{
		valuer:    valuer,
		positions: positions,
		access:    access,
		logger:    logger,
		metrics:   metrics,
		threshold: DefaultLiquidationThresholdBps,
		hfCache:   make(map[uuid.UUID]hfEntry),
	}
}

// LiquidationThreshold returns the current governed threshold in bps.
func (a *Assessor) LiquidationThreshold() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threshold
}

// SetLiquidationThreshold updates the governed threshold. Callers need the
// risk.update_threshold permission.
func (a *Assessor) SetLiquidationThreshold(caller uuid.UUID, bps int64) error {
	if err := a.access.RequirePermission(system.ActionUpdateThreshold, caller); err != nil {
		return err
	}
	if bps < 10000 {
		return fmt.Errorf("risk: threshold %d below exact collateralization", bps)
	}
	a.mu.Lock()
	old := a.threshold
	a.threshold = bps
	a.mu.Unlock()
	a.logger.Info().Int64("old_bps", old).Int64("new_bps", bps).Msg("liquidation threshold updated")
	return nil
}

// Liquidatable reports eligibility from valued totals. The raw
// collateral-below-debt comparison is only a cheap pre-filter; the
// threshold comparison is canonical.
func (a *Assessor) Liquidatable(collateralValue, debtValue int64) bool {
	if debtValue == 0 {
		return false
	}
	if collateralValue < debtValue {
		return true
	}
	return HealthFactor(collateralValue, debtValue) < a.LiquidationThreshold()
}

// Assess values every holding of the user and derives the risk view.
// Valuation degradations fall back to the raw amount (par), so an outage
// neither hides nor manufactures a shortfall.
func (a *Assessor) Assess(user uuid.UUID) Assessment {
	var collateralValue, debtValue int64
	for _, s := range a.positions.PositionsOf(user) {
		if s.Collateral > 0 {
			v, _ := a.valuer.ValueOf(s.Asset, s.Collateral, s.Collateral)
			collateralValue += v
		}
		if s.Debt > 0 {
			v, _ := a.valuer.ValueOf(s.Asset, s.Debt, s.Debt)
			debtValue += v
		}
	}
	return a.AssessValues(collateralValue, debtValue)
}

// AssessValues derives the risk view from already-valued totals.
func (a *Assessor) AssessValues(collateralValue, debtValue int64) Assessment {
	hf := HealthFactor(collateralValue, debtValue)
	score := RiskScore(collateralValue, debtValue)
	level := RiskLevel(score)
	threshold := a.LiquidationThreshold()

	margin := int64(0)
	if hf != MaxHealthFactor {
		margin = hf - threshold
	}

	assessment := Assessment{
		Liquidatable: a.Liquidatable(collateralValue, debtValue),
		RiskScore:    score,
		HealthFactor: hf,
		RiskLevel:    level,
		SafetyMargin: margin,
	}
	if a.metrics != nil {
		a.metrics.RiskAssessments.WithLabelValues(fmt.Sprintf("%d", level)).Inc()
	}
	return assessment
}

// UpdateHealthFactorCache stores (value, now) for the user. Entries carry no
// expiry; callers judge staleness against the stored timestamp.
func (a *Assessor) UpdateHealthFactorCache(user uuid.UUID, value int64) {
	a.mu.Lock()
	a.hfCache[user] = hfEntry{value: value, updatedAt: time.Now()}
	n := len(a.hfCache)
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.HealthFactorCached.Set(float64(n))
	}
}

// CachedHealthFactor returns the cached value and its write time.
func (a *Assessor) CachedHealthFactor(user uuid.UUID) (value int64, updatedAt time.Time, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.hfCache[user]
	return e.value, e.updatedAt, ok
}

// ClearHealthFactorCache removes the user's entry.
func (a *Assessor) ClearHealthFactorCache(user uuid.UUID) {
	a.mu.Lock()
	delete(a.hfCache, user)
	n := len(a.hfCache)
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.HealthFactorCached.Set(float64(n))
	}
}
