package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/observability"
)

// Worker projects accepted cache updates into the Postgres read model.
// Updates arrive on a non-blocking channel: a full channel drops the update
// rather than stalling the liquidation path, and the row is repaired by the
// next accepted push for the same (user, asset) because writes are guarded
// by the position version.
type Worker struct {
	db      *sql.DB
	in      <-chan event.PositionCacheUpdated
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewWorker(db *sql.DB, in <-chan event.PositionCacheUpdated,
	logger zerolog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{db: db, in: in, logger: logger, metrics: metrics}
}

// NotifyFunc returns a cache notification hook that enqueues updates without
// blocking. Drops are counted, never retried here.
func NotifyFunc(ch chan<- event.PositionCacheUpdated, metrics *observability.Metrics) func(event.PositionCacheUpdated) {
	return func(u event.PositionCacheUpdated) {
		select {
		case ch <- u:
		default:
			if metrics != nil {
				metrics.ProjectionDrops.Inc()
			}
		}
	}
}

// Run drains updates until ctx is canceled. Write failures are logged and
// skipped; the read model is eventually consistent.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-w.in:
			if !ok {
				return nil
			}
			if err := w.apply(ctx, u); err != nil {
				if w.metrics != nil {
					w.metrics.ProjectionErrors.Inc()
				}
				w.logger.Warn().
					Str("user", u.User.String()).
					Str("asset", u.Asset).
					Uint64("version", u.Version).
					Err(err).
					Msg("projection update failed")
				continue
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdates.WithLabelValues("positions").Inc()
				w.metrics.ProjectionLastVer.Set(float64(u.Version))
			}
		}
	}
}

// apply upserts the position row and advances the watermark in one
// transaction. The version guard makes replays and reordered deliveries
// harmless: only strictly newer snapshots overwrite.
func (w *Worker) apply(ctx context.Context, u event.PositionCacheUpdated) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions (user_id, asset, collateral, debt, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, asset) DO UPDATE
		SET collateral = EXCLUDED.collateral,
		    debt       = EXCLUDED.debt,
		    version    = EXCLUDED.version,
		    updated_at = NOW()
		WHERE projections.positions.version < EXCLUDED.version
	`, u.User, u.Asset, u.Collateral, u.Debt, u.Version); err != nil {
		return fmt.Errorf("positions upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_seq, updated_at)
		VALUES ('positions', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE
		SET last_seq = GREATEST(projections.watermark.last_seq, $1), updated_at = NOW()
	`, u.Seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}
