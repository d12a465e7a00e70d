package liquidation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/observability"
	"LendCore/internal/risk"
	"LendCore/internal/system"
)

var (
	ErrZeroID          = errors.New("liquidation: zero id")
	ErrZeroAmount      = errors.New("liquidation: amount must be positive")
	ErrEmptyAsset      = errors.New("liquidation: empty asset")
	ErrNotLiquidatable = errors.New("liquidation: position not liquidatable")
	ErrNothingSeized   = errors.New("liquidation: no collateral to seize")
	ErrLengthMismatch  = errors.New("liquidation: batch arrays must have equal length")
)

// DefaultBonusRateBps is the liquidator incentive applied when the caller
// supplies no bonus hint.
const DefaultBonusRateBps = 500

// RiskModel is the eligibility capability the orchestrator consumes.
type RiskModel interface {
	Assess(user uuid.UUID) risk.Assessment
}

// Ledger is the accounting capability: seize and reduce for the forward
// path, restore for rollback. The restore methods must succeed even while
// the system is paused, or a pause flipped mid-liquidation strands the
// seizure.
type Ledger interface {
	SeizeCollateral(user uuid.UUID, asset string, amount int64) (int64, error)
	ReduceDebt(user uuid.UUID, asset string, amount int64) (int64, error)
	RestoreCollateral(user uuid.UUID, asset string, amount int64) error
	RestoreDebt(user uuid.UUID, asset string, amount int64) error
	CollateralOf(user uuid.UUID, asset string) int64
	DebtOf(user uuid.UUID, asset string) int64
}

// CachePusher is the best-effort read-cache propagation capability.
type CachePusher interface {
	PushAbsolute(user uuid.UUID, asset string, collateral, debt int64,
		requestID uuid.UUID, seq, nextVersion uint64) error
}

// EventPublisher receives telemetry envelopes. Best-effort.
type EventPublisher interface {
	Publish(e event.Envelope) error
}

// RewardNotifier receives fire-and-forget loan outcomes. Best-effort.
type RewardNotifier interface {
	OnLoanEvent(user uuid.UUID, amount, duration int64, outcome string) error
}

// Recipients overrides registry lookups for payout routing when set.
type Recipients struct {
	Platform string
	Reserve  string
	Lender   string
}

// Result is one entry's outcome in a batch liquidation.
type Result struct {
	Index int
	Bonus int64
	Err   error
}

// Orchestrator coordinates eligibility, seizure, debt reduction, bonus
// computation, payout routing, and best-effort propagation for single and
// batch liquidations under the reentrancy guard.
type Orchestrator struct {
	riskModel RiskModel
	ledger    Ledger
	payout    PayoutSink
	cache     CachePusher
	events    EventPublisher
	rewards   RewardNotifier
	registry  system.Registry
	access    system.AccessController
	pause     *system.Pause
	guard     Guard

	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
	seq     atomic.Uint64

	mu           sync.RWMutex
	bonusRateBps int64
	allocation   Allocation
	recipients   *Recipients
}

// NewOrchestrator wires the orchestrator. cache, events, and rewards may be
// nil; those steps are skipped. allocation must satisfy the bps-sum
// invariant.
func NewOrchestrator(
	riskModel RiskModel,
	ledg Ledger,
	payout PayoutSink,
	cache CachePusher,
	events EventPublisher,
	rewards RewardNotifier,
	registry system.Registry,
	access system.AccessController,
	pause *system.Pause,
	allocation Allocation,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) (*Orchestrator, error) {
	if err := allocation.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		riskModel:    riskModel,
		ledger:       ledg,
		payout:       payout,
		cache:        cache,
		events:       events,
		rewards:      rewards,
		registry:     registry,
		access:       access,
		pause:        pause,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
		bonusRateBps: DefaultBonusRateBps,
		allocation:   allocation,
	}, nil
}

// SetBonusRate updates the default liquidator incentive.
func (o *Orchestrator) SetBonusRate(caller uuid.UUID, bps int64) error {
	if err := o.access.RequirePermission(system.ActionUpdateAllocation, caller); err != nil {
		return err
	}
	if bps < 0 || bps > 10000 {
		return fmt.Errorf("liquidation: bonus rate %d out of range", bps)
	}
	o.mu.Lock()
	o.bonusRateBps = bps
	o.mu.Unlock()
	return nil
}

// SetAllocation replaces the payout share configuration.
func (o *Orchestrator) SetAllocation(caller uuid.UUID, a Allocation) error {
	if err := o.access.RequirePermission(system.ActionUpdateAllocation, caller); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.allocation = a
	o.mu.Unlock()
	return nil
}

// SetRecipients pins payout recipients, bypassing registry resolution.
func (o *Orchestrator) SetRecipients(caller uuid.UUID, r Recipients) error {
	if err := o.access.RequirePermission(system.ActionUpdateRecipients, caller); err != nil {
		return err
	}
	o.mu.Lock()
	o.recipients = &r
	o.mu.Unlock()
	return nil
}

// SetPaused flips the process-wide emergency switch.
func (o *Orchestrator) SetPaused(caller uuid.UUID, paused bool) error {
	if err := o.access.RequirePermission(system.ActionPause, caller); err != nil {
		return err
	}
	o.pause.Set(paused)
	o.logger.Warn().Bool("paused", paused).Msg("emergency pause switched")
	return nil
}

func (o *Orchestrator) resolveRecipients() (Recipients, error) {
	o.mu.RLock()
	pinned := o.recipients
	o.mu.RUnlock()
	if pinned != nil {
		return *pinned, nil
	}

	var r Recipients
	var err error
	if r.Platform, err = o.registry.Resolve(system.ModulePlatformTreasury); err != nil {
		return Recipients{}, err
	}
	if r.Reserve, err = o.registry.Resolve(system.ModuleReserveFund); err != nil {
		return Recipients{}, err
	}
	if r.Lender, err = o.registry.Resolve(system.ModuleLenderPool); err != nil {
		return Recipients{}, err
	}
	return r, nil
}

// Liquidate executes one liquidation and returns the bonus paid to the
// liquidator. The mandatory path (seize, debt reduction, payout) either
// fully commits or is entirely undone; cache pushes, event emission, and
// reward notification afterwards are best-effort and never roll it back.
func (o *Orchestrator) Liquidate(
	liquidator, target uuid.UUID,
	collateralAsset, debtAsset string,
	collateralAmount, debtAmount, bonusHint int64,
) (int64, error) {
	if err := o.pause.Guard(); err != nil {
		return 0, err
	}
	if liquidator == uuid.Nil || target == uuid.Nil {
		return 0, ErrZeroID
	}
	if collateralAsset == "" || debtAsset == "" {
		return 0, ErrEmptyAsset
	}
	if collateralAmount <= 0 || debtAmount <= 0 {
		return 0, fmt.Errorf("%w: collateral %d debt %d", ErrZeroAmount, collateralAmount, debtAmount)
	}

	if err := o.guard.Acquire(); err != nil {
		if o.metrics != nil {
			o.metrics.ReentrancyRejections.Inc()
		}
		return 0, err
	}
	defer o.guard.Release()

	start := o.now()
	bonus, err := o.liquidateLocked(liquidator, target,
		collateralAsset, debtAsset, collateralAmount, debtAmount, bonusHint)
	if o.metrics != nil {
		o.metrics.LiquidationDuration.Observe(o.now().Sub(start).Seconds())
		if err != nil {
			o.metrics.LiquidationsRejected.WithLabelValues(rejectReason(err)).Inc()
		}
	}
	return bonus, err
}

// liquidateLocked runs steps 2..6 with the guard held.
func (o *Orchestrator) liquidateLocked(
	liquidator, target uuid.UUID,
	collateralAsset, debtAsset string,
	collateralAmount, debtAmount, bonusHint int64,
) (int64, error) {
	// eligibility
	assessment := o.riskModel.Assess(target)
	if !assessment.Liquidatable {
		return 0, fmt.Errorf("%w: health factor %d", ErrNotLiquidatable, assessment.HealthFactor)
	}

	// recipients resolve before any mutation so a missing module binding
	// aborts cleanly
	recipients, err := o.resolveRecipients()
	if err != nil {
		return 0, fmt.Errorf("resolve payout recipients: %w", err)
	}

	// mandatory: seize collateral
	seized, err := o.ledger.SeizeCollateral(target, collateralAsset, collateralAmount)
	if err != nil {
		return 0, fmt.Errorf("seize collateral: %w", err)
	}
	if seized == 0 {
		return 0, ErrNothingSeized
	}

	// mandatory: reduce debt; failure undoes the seizure
	reduced, err := o.ledger.ReduceDebt(target, debtAsset, debtAmount)
	if err != nil {
		if undoErr := o.ledger.RestoreCollateral(target, collateralAsset, seized); undoErr != nil {
			o.logger.Error().Err(undoErr).
				Str("target", target.String()).
				Int64("seized", seized).
				Msg("seizure rollback failed")
		}
		return 0, fmt.Errorf("reduce debt: %w", err)
	}

	// bonus
	o.mu.RLock()
	rate := o.bonusRateBps
	alloc := o.allocation
	o.mu.RUnlock()
	bonus := bonusHint
	if bonus == 0 {
		bonus = debtAmount * rate / 10000
	}

	// mandatory: split and route the seized amount
	split := alloc.Split(seized)
	liquidationID := uuid.New()
	payout := Payout{
		Asset:      collateralAsset,
		Platform:   Share{Recipient: recipients.Platform, Amount: split.Platform},
		Reserve:    Share{Recipient: recipients.Reserve, Amount: split.Reserve},
		Lender:     Share{Recipient: recipients.Lender, Amount: split.Lender},
		Liquidator: Share{Recipient: liquidator.String(), Amount: split.Liquidator},
	}
	if err := o.payout.Distribute(payout); err != nil {
		if undoErr := o.ledger.RestoreCollateral(target, collateralAsset, seized); undoErr != nil {
			o.logger.Error().Err(undoErr).Msg("seizure rollback failed after payout error")
		}
		if undoErr := o.ledger.RestoreDebt(target, debtAsset, reduced); undoErr != nil {
			o.logger.Error().Err(undoErr).Msg("debt rollback failed after payout error")
		}
		return 0, fmt.Errorf("distribute payout: %w", err)
	}

	o.logger.Info().
		Str("liquidation_id", liquidationID.String()).
		Str("target", target.String()).
		Str("collateral_asset", collateralAsset).
		Str("debt_asset", debtAsset).
		Int64("seized", seized).
		Int64("debt_reduced", reduced).
		Int64("bonus", bonus).
		Msg("liquidation committed")
	if o.metrics != nil {
		o.metrics.LiquidationsExecuted.WithLabelValues(collateralAsset, debtAsset).Inc()
		o.metrics.LiquidationBonus.WithLabelValues(debtAsset).Add(float64(bonus))
	}

	// best-effort from here on
	o.propagate(liquidationID, liquidator, target, collateralAsset, debtAsset, seized, reduced, bonus, split)
	return bonus, nil
}

// propagate pushes the post-liquidation position to read caches and emits
// telemetry. Failures are recorded and swallowed.
func (o *Orchestrator) propagate(
	liquidationID, liquidator, target uuid.UUID,
	collateralAsset, debtAsset string,
	seized, reduced, bonus int64,
	split Split,
) {
	ts := o.now()

	if o.cache != nil {
		for _, asset := range dedupAssets(collateralAsset, debtAsset) {
			err := o.cache.PushAbsolute(target, asset,
				o.ledger.CollateralOf(target, asset),
				o.ledger.DebtOf(target, asset),
				liquidationID, o.seq.Add(1), 0)
			if err != nil {
				o.bestEffortFailure("cache_push", err)
			}
		}
	}

	if o.events != nil {
		o.emit(event.KindLiquidationExecuted, event.LiquidationExecuted{
			LiquidationID:    liquidationID,
			Liquidator:       liquidator,
			TargetUser:       target,
			CollateralAsset:  collateralAsset,
			DebtAsset:        debtAsset,
			CollateralSeized: seized,
			DebtReduced:      reduced,
			Bonus:            bonus,
			Timestamp:        ts.UnixNano(),
		}, ts)
		o.emit(event.KindPayoutSplit, event.PayoutSplit{
			LiquidationID:  liquidationID,
			Asset:          collateralAsset,
			Seized:         seized,
			PlatformShare:  split.Platform,
			ReserveShare:   split.Reserve,
			LenderShare:    split.Lender,
			LiquidatorTake: split.Liquidator,
			Timestamp:      ts.UnixNano(),
		}, ts)
	}

	if o.rewards != nil {
		if err := o.rewards.OnLoanEvent(target, reduced, 0, "liquidated"); err != nil {
			o.bestEffortFailure("reward_notify", err)
		}
	}
}

func (o *Orchestrator) emit(kind event.Kind, record any, ts time.Time) {
	env, err := event.Wrap(kind, record, ts)
	if err != nil {
		o.bestEffortFailure("event_marshal", err)
		return
	}
	if err := o.events.Publish(env); err != nil {
		o.bestEffortFailure("event_publish", err)
	}
}

func (o *Orchestrator) bestEffortFailure(step string, err error) {
	if o.metrics != nil {
		o.metrics.BestEffortFailures.WithLabelValues(step).Inc()
	}
	o.logger.Warn().Str("step", step).Err(err).Msg("best-effort step failed")
}

// BatchLiquidate applies Liquidate per entry with per-entry isolation: one
// entry's failure never aborts the others, and every entry's outcome is
// reported in the result vector.
func (o *Orchestrator) BatchLiquidate(
	liquidator uuid.UUID,
	targets []uuid.UUID,
	collateralAssets, debtAssets []string,
	collateralAmounts, debtAmounts, bonusHints []int64,
) ([]Result, error) {
	n := len(targets)
	if len(collateralAssets) != n || len(debtAssets) != n ||
		len(collateralAmounts) != n || len(debtAmounts) != n || len(bonusHints) != n {
		return nil, ErrLengthMismatch
	}

	batchID := uuid.New()
	results := make([]Result, n)
	succeeded := 0
	for i := 0; i < n; i++ {
		bonus, err := o.Liquidate(liquidator, targets[i],
			collateralAssets[i], debtAssets[i],
			collateralAmounts[i], debtAmounts[i], bonusHints[i])
		results[i] = Result{Index: i, Bonus: bonus, Err: err}
		outcome := "succeeded"
		if err != nil {
			outcome = "failed"
		} else {
			succeeded++
		}
		if o.metrics != nil {
			o.metrics.BatchEntriesProcessed.WithLabelValues(outcome).Inc()
		}
	}

	if o.events != nil {
		ts := o.now()
		o.emit(event.KindBatchLiquidationCompleted, event.BatchLiquidationCompleted{
			BatchID:   batchID,
			Requested: n,
			Succeeded: succeeded,
			Failed:    n - succeeded,
			Timestamp: ts.UnixNano(),
		}, ts)
	}
	o.logger.Info().
		Str("batch_id", batchID.String()).
		Int("requested", n).
		Int("succeeded", succeeded).
		Msg("batch liquidation completed")
	return results, nil
}

func dedupAssets(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrNothingSeized):
		return "nothing_seized"
	case errors.Is(err, ErrReentrant):
		return "reentrant"
	case errors.Is(err, system.ErrPaused):
		return "paused"
	default:
		return "mandatory_step"
	}
}
