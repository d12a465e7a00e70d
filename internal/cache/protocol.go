package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/observability"
	"LendCore/internal/system"
)

var (
	// ErrStalePush marks a push that lost a version race. An expected
	// outcome, not a fault: callers re-read the current version and retry.
	ErrStalePush = errors.New("cache: stale push")

	// ErrUnderflow marks a delta whose magnitude exceeds the cached balance.
	ErrUnderflow = errors.New("cache: delta underflows balance")

	// ErrOverflow marks a delta that would wrap the cached balance past
	// the int64 range.
	ErrOverflow = errors.New("cache: delta overflows balance")

	ErrNegativeAmount = errors.New("cache: negative amount")
)

// Snapshot is the cached read view of one (user, asset) position.
type Snapshot struct {
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

// Protocol is the optimistic-versioning push protocol keeping read caches
// consistent. Admission is purely version-based: an accepted push must carry
// an effective version strictly greater than the stored one. requestID and
// seq ride along for downstream consumers and never influence admission.
type Protocol struct {
	mu      sync.Mutex
	entries map[key]Snapshot

	pause   *system.Pause
	logger  zerolog.Logger
	metrics *observability.Metrics
	notify  func(event.PositionCacheUpdated)
	now     func() time.Time
}

// New creates an empty cache. pause, metrics, and notify may be nil.
func New(
	pause *system.Pause,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	notify func(event.PositionCacheUpdated),
) *Protocol {
	return &Protocol{
		entries: make(map[key]Snapshot),
		pause:   pause,
		logger:  logger,
		metrics: metrics,
		notify:  notify,
		now:     time.Now,
	}
}

// CurrentVersion returns the stored version for (user, asset), 0 when the
// pair has never been pushed.
func (p *Protocol) CurrentVersion(user uuid.UUID, asset string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[key{user: user, asset: asset}].Version
}

// Get returns the cached snapshot.
func (p *Protocol) Get(user uuid.UUID, asset string) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.entries[key{user: user, asset: asset}]
	return s, ok
}

// PushAbsolute replaces the cached snapshot with authoritative amounts.
// nextVersion 0 asks the cache to assign currentVersion+1; a non-zero
// nextVersion must be strictly greater than the stored version.
func (p *Protocol) PushAbsolute(
	user uuid.UUID, asset string,
	collateral, debt int64,
	requestID uuid.UUID, seq, nextVersion uint64,
) error {
	if err := p.pause.Guard(); err != nil {
		return err
	}
	if collateral < 0 || debt < 0 {
		p.count("absolute", "invalid")
		return fmt.Errorf("%w: collateral %d debt %d", ErrNegativeAmount, collateral, debt)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{user: user, asset: asset}
	current := p.entries[k]
	effective, err := p.admit(current.Version, nextVersion)
	if err != nil {
		p.count("absolute", "stale")
		return err
	}

	p.commit(k, Snapshot{
		User: user, Asset: asset,
		Collateral: collateral, Debt: debt,
		Version: effective,
	}, requestID, seq)
	p.count("absolute", "accepted")
	return nil
}

// PushDelta applies signed deltas to the cached amounts under the same
// version admission rule as PushAbsolute.
func (p *Protocol) PushDelta(
	user uuid.UUID, asset string,
	collateralDelta, debtDelta int64,
	requestID uuid.UUID, seq, nextVersion uint64,
) error {
	if err := p.pause.Guard(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{user: user, asset: asset}
	current := p.entries[k]
	effective, err := p.admit(current.Version, nextVersion)
	if err != nil {
		p.count("delta", "stale")
		return err
	}

	newCollateral := current.Collateral + collateralDelta
	newDebt := current.Debt + debtDelta
	// cached amounts are non-negative, so a positive delta that lowers the
	// sum can only mean int64 wraparound
	if (collateralDelta > 0 && newCollateral < current.Collateral) ||
		(debtDelta > 0 && newDebt < current.Debt) {
		p.count("delta", "overflow")
		return fmt.Errorf("%w: collateral %d%+d, debt %d%+d",
			ErrOverflow, current.Collateral, collateralDelta, current.Debt, debtDelta)
	}
	if newCollateral < 0 || newDebt < 0 {
		if p.metrics != nil {
			p.metrics.CacheUnderflows.Inc()
		}
		p.count("delta", "underflow")
		return fmt.Errorf("%w: collateral %d%+d, debt %d%+d",
			ErrUnderflow, current.Collateral, collateralDelta, current.Debt, debtDelta)
	}

	p.commit(k, Snapshot{
		User: user, Asset: asset,
		Collateral: newCollateral, Debt: newDebt,
		Version: effective,
	}, requestID, seq)
	p.count("delta", "accepted")
	return nil
}

// admit resolves the effective version and enforces strict monotonicity.
// Callers hold p.mu.
func (p *Protocol) admit(current, next uint64) (uint64, error) {
	effective := next
	if effective == 0 {
		effective = current + 1
	}
	if effective <= current {
		if p.metrics != nil {
			p.metrics.CacheStaleRejects.Inc()
		}
		return 0, fmt.Errorf("%w: version %d <= current %d", ErrStalePush, effective, current)
	}
	return effective, nil
}

// commit stores the snapshot and emits the update notification. Callers
// hold p.mu.
func (p *Protocol) commit(k key, s Snapshot, requestID uuid.UUID, seq uint64) {
	p.entries[k] = s
	p.logger.Debug().
		Str("user", s.User.String()).
		Str("asset", s.Asset).
		Uint64("version", s.Version).
		Msg("cache snapshot admitted")

	if p.notify != nil {
		p.notify(event.PositionCacheUpdated{
			User:       s.User,
			Asset:      s.Asset,
			Collateral: s.Collateral,
			Debt:       s.Debt,
			Version:    s.Version,
			RequestID:  requestID,
			Seq:        seq,
			Timestamp:  p.now().UnixNano(),
		})
	}
}

func (p *Protocol) count(mode, result string) {
	if p.metrics != nil {
		p.metrics.CachePushes.WithLabelValues(mode, result).Inc()
	}
}
