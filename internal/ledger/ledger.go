package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/observability"
	"LendCore/internal/system"
)

var (
	ErrZeroUser               = errors.New("ledger: zero user id")
	ErrZeroAmount             = errors.New("ledger: amount must be positive")
	ErrInsufficientCollateral = errors.New("ledger: insufficient collateral")
	ErrNoDebt                 = errors.New("ledger: no debt to reduce")
)

// Position is the authoritative collateral/debt record for one (user, asset)
// pair. Version strictly increases on every accepted write.
type Position struct {
	User       uuid.UUID
	Asset      string
	Collateral int64
	Debt       int64
	Version    uint64
}

type key struct {
	user  uuid.UUID
	asset string
}

// Ledger is the authoritative accounting store. Every mutation validates
// first and applies under one lock, so callers never observe partial state.
// Collateral and debt for the same asset live in separate namespaces: a user
// may hold collateral in one asset and debt in another simultaneously.
type Ledger struct {
	mu              sync.RWMutex
	positions       map[key]*Position
	totalCollateral map[string]int64
	totalDebt       map[string]int64

	pause   *system.Pause
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates an empty ledger. pause and metrics may be nil.
func New(pause *system.Pause, logger zerolog.Logger, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		positions:       make(map[key]*Position),
		totalCollateral: make(map[string]int64),
		totalDebt:       make(map[string]int64),
		pause:           pause,
		logger:          logger,
		metrics:         metrics,
	}
}

func validate(user uuid.UUID, amount int64) error {
	if user == uuid.Nil {
		return ErrZeroUser
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrZeroAmount, amount)
	}
	return nil
}

// at returns the existing record for (user, asset) or nil. Callers hold l.mu.
func (l *Ledger) at(user uuid.UUID, asset string) *Position {
	return l.positions[key{user: user, asset: asset}]
}

// materialize returns the record for (user, asset), creating it for an
// accepted write. Rejected operations must never call this: a rejection
// leaves no phantom zero-value position behind. Callers hold l.mu.
func (l *Ledger) materialize(user uuid.UUID, asset string) *Position {
	k := key{user: user, asset: asset}
	p, ok := l.positions[k]
	if !ok {
		p = &Position{User: user, Asset: asset}
		l.positions[k] = p
	}
	return p
}

// CreditCollateral adds collateral to the position.
func (l *Ledger) CreditCollateral(user uuid.UUID, asset string, amount int64) error {
	if err := l.pause.Guard(); err != nil {
		return err
	}
	if err := validate(user, amount); err != nil {
		l.reject("credit_collateral", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.materialize(user, asset)
	p.Collateral += amount
	p.Version++
	l.totalCollateral[asset] += amount
	l.accepted("credit_collateral")
	return nil
}

// WithdrawCollateral removes collateral under the withdrawal policy: the
// full requested amount must be available or the call fails.
func (l *Ledger) WithdrawCollateral(user uuid.UUID, asset string, amount int64) error {
	if err := l.pause.Guard(); err != nil {
		return err
	}
	if err := validate(user, amount); err != nil {
		l.reject("withdraw_collateral", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.at(user, asset)
	if p == nil || amount > p.Collateral {
		var have int64
		if p != nil {
			have = p.Collateral
		}
		err := fmt.Errorf("%w: want %d, have %d", ErrInsufficientCollateral, amount, have)
		l.reject("withdraw_collateral", err)
		return err
	}
	p.Collateral -= amount
	p.Version++
	l.totalCollateral[asset] -= amount
	l.accepted("withdraw_collateral")
	return nil
}

// SeizeCollateral removes collateral under the seizure policy: the debit is
// clamped to the available balance and the amount actually removed is
// returned. A position with nothing to seize yields 0 without mutation.
func (l *Ledger) SeizeCollateral(user uuid.UUID, asset string, amount int64) (int64, error) {
	if err := l.pause.Guard(); err != nil {
		return 0, err
	}
	if err := validate(user, amount); err != nil {
		l.reject("seize_collateral", err)
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.at(user, asset)
	if p == nil {
		return 0, nil
	}
	actual := amount
	if actual > p.Collateral {
		actual = p.Collateral
	}
	if actual == 0 {
		return 0, nil
	}
	p.Collateral -= actual
	p.Version++
	l.totalCollateral[asset] -= actual
	l.accepted("seize_collateral")
	return actual, nil
}

// AddDebt increases the user's debt in the asset.
func (l *Ledger) AddDebt(user uuid.UUID, asset string, amount int64) error {
	if err := l.pause.Guard(); err != nil {
		return err
	}
	if err := validate(user, amount); err != nil {
		l.reject("add_debt", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.materialize(user, asset)
	p.Debt += amount
	p.Version++
	l.totalDebt[asset] += amount
	l.accepted("add_debt")
	return nil
}

// ReduceDebt lowers the user's debt, clamped to what is owed, and returns
// the amount actually reduced. Reducing a position with no debt is an error.
func (l *Ledger) ReduceDebt(user uuid.UUID, asset string, amount int64) (int64, error) {
	if err := l.pause.Guard(); err != nil {
		return 0, err
	}
	if err := validate(user, amount); err != nil {
		l.reject("reduce_debt", err)
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.at(user, asset)
	if p == nil || p.Debt == 0 {
		l.reject("reduce_debt", ErrNoDebt)
		return 0, fmt.Errorf("%w: user %s asset %s", ErrNoDebt, user, asset)
	}
	actual := amount
	if actual > p.Debt {
		actual = p.Debt
	}
	p.Debt -= actual
	p.Version++
	l.totalDebt[asset] -= actual
	l.accepted("reduce_debt")
	return actual, nil
}

// RestoreCollateral re-credits collateral seized by a liquidation whose later
// mandatory step failed. Compensation repairs internal state rather than
// accepting new input, so it bypasses the pause guard: an emergency pause set
// mid-liquidation must not strand the seizure.
func (l *Ledger) RestoreCollateral(user uuid.UUID, asset string, amount int64) error {
	if err := validate(user, amount); err != nil {
		l.reject("restore_collateral", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.materialize(user, asset)
	p.Collateral += amount
	p.Version++
	l.totalCollateral[asset] += amount
	l.accepted("restore_collateral")
	return nil
}

// RestoreDebt re-adds debt undone by a liquidation whose payout failed.
// Bypasses the pause guard for the same reason as RestoreCollateral.
func (l *Ledger) RestoreDebt(user uuid.UUID, asset string, amount int64) error {
	if err := validate(user, amount); err != nil {
		l.reject("restore_debt", err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.materialize(user, asset)
	p.Debt += amount
	p.Version++
	l.totalDebt[asset] += amount
	l.accepted("restore_debt")
	return nil
}

// CollateralOf returns the collateral balance for (user, asset).
func (l *Ledger) CollateralOf(user uuid.UUID, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.positions[key{user: user, asset: asset}]; ok {
		return p.Collateral
	}
	return 0
}

// DebtOf returns the debt balance for (user, asset).
func (l *Ledger) DebtOf(user uuid.UUID, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.positions[key{user: user, asset: asset}]; ok {
		return p.Debt
	}
	return 0
}

// VersionOf returns the position's write counter.
func (l *Ledger) VersionOf(user uuid.UUID, asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.positions[key{user: user, asset: asset}]; ok {
		return p.Version
	}
	return 0
}

// TotalCollateralOf returns the ledger-wide collateral in the asset.
func (l *Ledger) TotalCollateralOf(asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalCollateral[asset]
}

// TotalDebtOf returns the ledger-wide debt in the asset.
func (l *Ledger) TotalDebtOf(asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalDebt[asset]
}

// PositionsOf returns copies of all positions the user holds.
func (l *Ledger) PositionsOf(user uuid.UUID) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for k, p := range l.positions {
		if k.user == user {
			out = append(out, *p)
		}
	}
	return out
}

func (l *Ledger) accepted(op string) {
	if l.metrics != nil {
		l.metrics.LedgerMutations.WithLabelValues(op).Inc()
	}
}

func (l *Ledger) reject(op string, err error) {
	if l.metrics != nil {
		reason := "validation"
		switch {
		case errors.Is(err, ErrInsufficientCollateral):
			reason = "insufficient_collateral"
		case errors.Is(err, ErrNoDebt):
			reason = "no_debt"
		}
		l.metrics.LedgerRejects.WithLabelValues(op, reason).Inc()
	}
	l.logger.Debug().Str("op", op).Err(err).Msg("ledger mutation rejected")
}
