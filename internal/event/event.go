package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates event payloads on the telemetry channel.
type Kind int32

const (
	KindUnknown Kind = iota
	KindLiquidationExecuted
	KindBatchLiquidationCompleted
	KindPayoutSplit
	KindPriceDegradation
	KindPositionCacheUpdated
	KindLoanOutcome
)

func (k Kind) String() string {
	switch k {
	case KindLiquidationExecuted:
		return "LiquidationExecuted"
	case KindBatchLiquidationCompleted:
		return "BatchLiquidationCompleted"
	case KindPayoutSplit:
		return "PayoutSplit"
	case KindPriceDegradation:
		return "PriceDegradation"
	case KindPositionCacheUpdated:
		return "PositionCacheUpdated"
	case KindLoanOutcome:
		return "LoanOutcome"
	default:
		return "Unknown"
	}
}

// Envelope wraps every record handed to the telemetry sink. Consumers decode
// Payload according to Kind.
type Envelope struct {
	Kind      Kind      `json:"kind"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Wrap marshals a typed record into an Envelope.
func Wrap(kind Kind, record any, ts time.Time) (Envelope, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: data, Timestamp: ts}, nil
}

// LiquidationExecuted records a completed single liquidation. Ephemeral:
// exists only for emission and downstream aggregation, not a ledger entity.
type LiquidationExecuted struct {
	LiquidationID    uuid.UUID `json:"liquidation_id"`
	Liquidator       uuid.UUID `json:"liquidator"`
	TargetUser       uuid.UUID `json:"target_user"`
	CollateralAsset  string    `json:"collateral_asset"`
	DebtAsset        string    `json:"debt_asset"`
	CollateralSeized int64     `json:"collateral_seized"`
	DebtReduced      int64     `json:"debt_reduced"`
	Bonus            int64     `json:"bonus"`
	Timestamp        int64     `json:"timestamp"`
}

// BatchLiquidationCompleted summarizes a batch sweep.
type BatchLiquidationCompleted struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Requested int       `json:"requested"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Timestamp int64     `json:"timestamp"`
}

// PayoutSplit records how a seized amount was divided among stakeholders.
type PayoutSplit struct {
	LiquidationID  uuid.UUID `json:"liquidation_id"`
	Asset          string    `json:"asset"`
	Seized         int64     `json:"seized"`
	PlatformShare  int64     `json:"platform_share"`
	ReserveShare   int64     `json:"reserve_share"`
	LenderShare    int64     `json:"lender_share"`
	LiquidatorTake int64     `json:"liquidator_take"`
	Timestamp      int64     `json:"timestamp"`
}

// PriceDegradation records one graceful-degradation occurrence.
type PriceDegradation struct {
	Module        string `json:"module"`
	Asset         string `json:"asset"`
	Reason        string `json:"reason"`
	FallbackValue int64  `json:"fallback_value"`
	UsedFallback  bool   `json:"used_fallback"`
	Timestamp     int64  `json:"timestamp"`
	BlockHeight   uint64 `json:"block_height"`
}

// PositionCacheUpdated notifies downstream read caches of an accepted push.
type PositionCacheUpdated struct {
	User       uuid.UUID `json:"user"`
	Asset      string    `json:"asset"`
	Collateral int64     `json:"collateral"`
	Debt       int64     `json:"debt"`
	Version    uint64    `json:"version"`
	RequestID  uuid.UUID `json:"request_id"`
	Seq        uint64    `json:"seq"`
	Timestamp  int64     `json:"timestamp"`
}

// LoanOutcome is the fire-and-forget record handed to the reward system.
type LoanOutcome struct {
	User     uuid.UUID `json:"user"`
	Amount   int64     `json:"amount"`
	Duration int64     `json:"duration"`
	Outcome  string    `json:"outcome"`
}
