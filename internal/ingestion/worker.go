package ingestion

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/observability"
)

// LiquidationRequest is the JSON body keepers publish to the requests
// subject. RequestID makes redeliveries idempotent.
type LiquidationRequest struct {
	RequestID        uuid.UUID `json:"request_id"`
	Liquidator       uuid.UUID `json:"liquidator"`
	Target           uuid.UUID `json:"target"`
	CollateralAsset  string    `json:"collateral_asset"`
	DebtAsset        string    `json:"debt_asset"`
	CollateralAmount int64     `json:"collateral_amount"`
	DebtAmount       int64     `json:"debt_amount"`
	BonusHint        int64     `json:"bonus_hint"`
}

func parseRequest(data []byte) (LiquidationRequest, error) {
	var req LiquidationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return LiquidationRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if req.RequestID == uuid.Nil {
		return LiquidationRequest{}, fmt.Errorf("request missing request_id")
	}
	return req, nil
}

// Executor is the liquidation entry point the worker drives.
type Executor interface {
	Liquidate(liquidator, target uuid.UUID, collateralAsset, debtAsset string,
		collateralAmount, debtAmount, bonusHint int64) (int64, error)
}

// Worker drains RawRequests, deduplicates by request_id, and executes them.
// Requests that fail execution are still ACKed: liquidation failures are
// terminal outcomes (not liquidatable, nothing to seize), not transient
// broker conditions, so redelivery would only repeat the rejection.
type Worker struct {
	in      <-chan RawRequest
	exec    Executor
	dedup   *requestLRU
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewWorker(in <-chan RawRequest, exec Executor, dedupCapacity int,
	logger zerolog.Logger, metrics *observability.Metrics) *Worker {
	if dedupCapacity <= 0 {
		dedupCapacity = 10_000
	}
	return &Worker{
		in:      in,
		exec:    exec,
		dedup:   newRequestLRU(dedupCapacity),
		logger:  logger,
		metrics: metrics,
	}
}

// Run processes requests until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-w.in:
			if !ok {
				return nil
			}
			w.handle(raw)
		}
	}
}

func (w *Worker) handle(raw RawRequest) {
	req, err := parseRequest(raw.Data)
	if err != nil {
		// poison message: redelivery cannot fix it
		w.logger.Error().Str("subject", raw.Subject).Err(err).Msg("dropping malformed request")
		w.count("malformed")
		raw.AckFunc()
		return
	}

	if w.dedup.contains(req.RequestID.String()) {
		if w.metrics != nil {
			w.metrics.RequestsDuplicated.Inc()
		}
		raw.AckFunc()
		return
	}

	bonus, err := w.exec.Liquidate(req.Liquidator, req.Target,
		req.CollateralAsset, req.DebtAsset,
		req.CollateralAmount, req.DebtAmount, req.BonusHint)
	if err != nil {
		w.logger.Warn().
			Str("request_id", req.RequestID.String()).
			Str("target", req.Target.String()).
			Err(err).
			Msg("liquidation request rejected")
		w.count("rejected")
	} else {
		w.logger.Info().
			Str("request_id", req.RequestID.String()).
			Int64("bonus", bonus).
			Msg("liquidation request executed")
		w.count("executed")
	}

	w.dedup.add(req.RequestID.String())
	raw.AckFunc()
}

func (w *Worker) count(result string) {
	if w.metrics != nil {
		w.metrics.RequestsIngested.WithLabelValues(result).Inc()
	}
}

// requestLRU deduplicates request ids.
// Not thread-safe: only accessed from the single worker goroutine.
type requestLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newRequestLRU(capacity int) *requestLRU {
	return &requestLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *requestLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *requestLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.cache[key] = l.order.PushFront(key)
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
	}
}
