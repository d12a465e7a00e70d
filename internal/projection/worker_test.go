package projection_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/persistence"
	"LendCore/internal/projection"
	"LendCore/internal/testutil"
)

func TestNotifyFuncDropsWhenFull(t *testing.T) {
	ch := make(chan event.PositionCacheUpdated, 1)
	notify := projection.NotifyFunc(ch, nil)

	notify(event.PositionCacheUpdated{Version: 1})
	notify(event.PositionCacheUpdated{Version: 2}) // full channel, dropped

	if len(ch) != 1 {
		t.Fatalf("queued = %d, want 1", len(ch))
	}
	if got := (<-ch).Version; got != 1 {
		t.Errorf("queued version = %d, want the first update", got)
	}
}

func TestWorkerVersionGuard(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := uuid.New()
	in := make(chan event.PositionCacheUpdated, 2)
	in <- event.PositionCacheUpdated{
		User: user, Asset: "ETH", Collateral: 100, Debt: 50, Version: 3, Seq: 10,
	}
	// older snapshot delivered out of order must not overwrite
	in <- event.PositionCacheUpdated{
		User: user, Asset: "ETH", Collateral: 1, Debt: 1, Version: 2, Seq: 11,
	}
	close(in)

	w := projection.NewWorker(db, in, zerolog.Nop(), nil)
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var collateral int64
	var version uint64
	err := db.QueryRowContext(ctx, `
		SELECT collateral, version FROM projections.positions
		WHERE user_id = $1 AND asset = 'ETH'
	`, user).Scan(&collateral, &version)
	if err != nil {
		t.Fatalf("read row: %v", err)
	}
	if collateral != 100 || version != 3 {
		t.Errorf("row = collateral %d version %d, want 100/3", collateral, version)
	}

	// watermark keeps the highest seq even when the row write is a no-op
	var seq uint64
	err = db.QueryRowContext(ctx, `
		SELECT last_seq FROM projections.watermark WHERE worker_id = 'positions'
	`).Scan(&seq)
	if err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if seq != 11 {
		t.Errorf("watermark = %d, want 11", seq)
	}
}
