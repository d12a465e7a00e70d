package cache_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/cache"
	"LendCore/internal/event"
	"LendCore/internal/system"
)

func newCache(notify func(event.PositionCacheUpdated)) *cache.Protocol {
	return cache.New(nil, zerolog.Nop(), nil, notify)
}

func TestVersionResolution(t *testing.T) {
	p := newCache(nil)
	user := uuid.New()

	// seed to version 5
	for i := 0; i < 5; i++ {
		if err := p.PushAbsolute(user, "ETH", 100, 50, uuid.New(), uint64(i), 0); err != nil {
			t.Fatalf("seed push %d: %v", i, err)
		}
	}
	if v := p.CurrentVersion(user, "ETH"); v != 5 {
		t.Fatalf("seed version = %d", v)
	}

	// nextVersion=0 assigns current+1
	if err := p.PushAbsolute(user, "ETH", 110, 50, uuid.New(), 10, 0); err != nil {
		t.Fatalf("auto-version push: %v", err)
	}
	if v := p.CurrentVersion(user, "ETH"); v != 6 {
		t.Errorf("version = %d, want 6", v)
	}

	// explicit nextVersion=7 accepted
	if err := p.PushAbsolute(user, "ETH", 120, 50, uuid.New(), 11, 7); err != nil {
		t.Fatalf("explicit-version push: %v", err)
	}
	if v := p.CurrentVersion(user, "ETH"); v != 7 {
		t.Errorf("version = %d, want 7", v)
	}

	// replaying nextVersion=6 is stale and leaves state unchanged
	err := p.PushAbsolute(user, "ETH", 999, 999, uuid.New(), 12, 6)
	if !errors.Is(err, cache.ErrStalePush) {
		t.Fatalf("want ErrStalePush, got %v", err)
	}
	snap, _ := p.Get(user, "ETH")
	if snap.Version != 7 || snap.Collateral != 120 {
		t.Errorf("stale push mutated state: %+v", snap)
	}
}

func TestReplaySameNextVersion(t *testing.T) {
	p := newCache(nil)
	user := uuid.New()
	req := uuid.New()

	if err := p.PushAbsolute(user, "ETH", 100, 40, req, 1, 3); err != nil {
		t.Fatalf("first application: %v", err)
	}
	after, _ := p.Get(user, "ETH")

	// exact replay is stale, and the stored snapshot is identical to the
	// state after the first application
	err := p.PushAbsolute(user, "ETH", 100, 40, req, 1, 3)
	if !errors.Is(err, cache.ErrStalePush) {
		t.Fatalf("replay: want ErrStalePush, got %v", err)
	}
	replayed, _ := p.Get(user, "ETH")
	if replayed != after {
		t.Errorf("replay changed snapshot: %+v vs %+v", replayed, after)
	}
}

func TestPushDelta(t *testing.T) {
	p := newCache(nil)
	user := uuid.New()

	if err := p.PushAbsolute(user, "ETH", 100, 50, uuid.New(), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.PushDelta(user, "ETH", -30, 10, uuid.New(), 2, 0); err != nil {
		t.Fatalf("delta: %v", err)
	}

	snap, _ := p.Get(user, "ETH")
	if snap.Collateral != 70 || snap.Debt != 60 || snap.Version != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	// underflow rejected without mutation
	err := p.PushDelta(user, "ETH", -71, 0, uuid.New(), 3, 0)
	if !errors.Is(err, cache.ErrUnderflow) {
		t.Fatalf("want ErrUnderflow, got %v", err)
	}
	snap, _ = p.Get(user, "ETH")
	if snap.Collateral != 70 || snap.Version != 2 {
		t.Errorf("underflow mutated state: %+v", snap)
	}
}

func TestPushDeltaOverflowRejected(t *testing.T) {
	p := newCache(nil)
	user := uuid.New()

	if err := p.PushAbsolute(user, "ETH", 1, 1, uuid.New(), 1, 0); err != nil {
		t.Fatal(err)
	}

	err := p.PushDelta(user, "ETH", math.MaxInt64, 0, uuid.New(), 2, 0)
	if !errors.Is(err, cache.ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
	err = p.PushDelta(user, "ETH", 0, math.MaxInt64, uuid.New(), 3, 0)
	if !errors.Is(err, cache.ErrOverflow) {
		t.Fatalf("debt wrap: want ErrOverflow, got %v", err)
	}

	snap, _ := p.Get(user, "ETH")
	if snap.Collateral != 1 || snap.Debt != 1 || snap.Version != 1 {
		t.Errorf("overflowing delta mutated state: %+v", snap)
	}
}

func TestNotificationCarriesHints(t *testing.T) {
	var got []event.PositionCacheUpdated
	p := newCache(func(n event.PositionCacheUpdated) { got = append(got, n) })

	user := uuid.New()
	req := uuid.New()
	if err := p.PushAbsolute(user, "ETH", 10, 5, req, 42, 0); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("notifications = %d", len(got))
	}
	n := got[0]
	if n.RequestID != req || n.Seq != 42 || n.Version != 1 {
		t.Errorf("notification = %+v", n)
	}
	if n.Collateral != 10 || n.Debt != 5 {
		t.Errorf("notification amounts = %+v", n)
	}

	// rejected pushes emit nothing
	_ = p.PushAbsolute(user, "ETH", 11, 5, uuid.New(), 43, 1)
	if len(got) != 1 {
		t.Errorf("stale push emitted a notification")
	}
}

func TestNegativeAbsoluteRejected(t *testing.T) {
	p := newCache(nil)
	err := p.PushAbsolute(uuid.New(), "ETH", -1, 0, uuid.New(), 1, 0)
	if !errors.Is(err, cache.ErrNegativeAmount) {
		t.Errorf("want ErrNegativeAmount, got %v", err)
	}
}

func TestPauseGuardsPushes(t *testing.T) {
	pause := system.NewPause()
	p := cache.New(pause, zerolog.Nop(), nil, nil)
	pause.Set(true)

	err := p.PushAbsolute(uuid.New(), "ETH", 1, 0, uuid.New(), 1, 0)
	if !errors.Is(err, system.ErrPaused) {
		t.Errorf("push while paused: %v", err)
	}
}
