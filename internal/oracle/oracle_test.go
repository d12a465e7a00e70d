package oracle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/oracle"
	"LendCore/internal/system"
)

var testLogger = zerolog.Nop()

func newBook(t *testing.T) (*oracle.Book, uuid.UUID) {
	t.Helper()
	return oracle.NewBook(1_000_000_000_000, system.AllowAll{}), uuid.New()
}

func TestSubmitFirstPriceAccepted(t *testing.T) {
	book, caller := newBook(t)

	if err := book.Submit(caller, "ETH", 2_000_000_000, 9); err != nil {
		t.Fatalf("first price should always be accepted: %v", err)
	}
	q, err := book.Quote("ETH")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Price != 2_000_000_000 || q.Decimals != 9 {
		t.Errorf("stored quote = %+v", q)
	}
}

func TestSubmitDeviationRule(t *testing.T) {
	book, caller := newBook(t)

	if err := book.Submit(caller, "ETH", 10_000_000, 6); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 10% band around 10_000_000 is [9_000_000, 11_000_000]
	if err := book.Submit(caller, "ETH", 11_000_000, 6); err != nil {
		t.Errorf("price at the deviation boundary should pass: %v", err)
	}
	err := book.Submit(caller, "ETH", 12_200_000, 6)
	if !errors.Is(err, oracle.ErrPriceDeviation) {
		t.Errorf("want ErrPriceDeviation, got %v", err)
	}

	// rejected candidate must not replace the accepted quote
	q, _ := book.Quote("ETH")
	if q.Price != 11_000_000 {
		t.Errorf("accepted quote changed after rejection: %d", q.Price)
	}
}

func TestSubmitCeilingAndDecimals(t *testing.T) {
	book, caller := newBook(t)

	err := book.Submit(caller, "ETH", 2_000_000_000_000, 9)
	if !errors.Is(err, oracle.ErrPriceCeiling) {
		t.Errorf("want ErrPriceCeiling, got %v", err)
	}

	err = book.Submit(caller, "ETH", 1_000, 5)
	if !errors.Is(err, oracle.ErrDecimalsOutOfRange) {
		t.Errorf("decimals 5: want ErrDecimalsOutOfRange, got %v", err)
	}
	err = book.Submit(caller, "ETH", 1_000, 19)
	if !errors.Is(err, oracle.ErrDecimalsOutOfRange) {
		t.Errorf("decimals 19: want ErrDecimalsOutOfRange, got %v", err)
	}
	if err := book.Submit(caller, "ETH", 1_000, 6); err != nil {
		t.Errorf("decimals 6 should be accepted: %v", err)
	}
	if err := book.Submit(caller, "WBTC", 1_000, 18); err != nil {
		t.Errorf("decimals 18 should be accepted: %v", err)
	}
}

func TestSubmitStablecoinPeg(t *testing.T) {
	book, caller := newBook(t)
	book.SetPeg("USDC", oracle.PegConfig{ExpectedPrice: 1_000_000, ToleranceBps: 100})

	if err := book.Submit(caller, "USDC", 1_005_000, 6); err != nil {
		t.Errorf("within 1%% of peg: %v", err)
	}
	err := book.Submit(caller, "USDC", 1_020_000, 6)
	if !errors.Is(err, oracle.ErrPegDeviation) {
		t.Errorf("want ErrPegDeviation, got %v", err)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	ac := system.NewStaticAccessController()
	book := oracle.NewBook(1_000_000, ac)

	err := book.Submit(uuid.New(), "ETH", 1_000, 6)
	if !errors.Is(err, system.ErrUnauthorized) {
		t.Errorf("want ErrUnauthorized, got %v", err)
	}

	keeper := uuid.New()
	ac.Grant(system.ActionSubmitPrice, keeper)
	if err := book.Submit(keeper, "ETH", 1_000, 6); err != nil {
		t.Errorf("granted caller rejected: %v", err)
	}
}

func TestValueOfFresh(t *testing.T) {
	src := oracle.SourceFunc(func(asset string) (oracle.Quote, error) {
		return oracle.Quote{Price: 2_000_000, Decimals: 6, Timestamp: time.Now()}, nil
	})
	log := oracle.NewDegradationLog(16)
	gw := oracle.NewGateway(src, time.Minute, 1_000_000_000, log, testLogger, nil, nil)

	// 10 units at price 2.0 (6 decimals) = 20
	v, degraded := gw.ValueOf("ETH", 10, 999)
	if degraded {
		t.Fatal("fresh quote should not degrade")
	}
	if v != 20 {
		t.Errorf("value = %d, want 20", v)
	}
	if log.Stats().Total != 0 {
		t.Errorf("unexpected degradations: %d", log.Stats().Total)
	}
}

func TestValueOfFallbackOnSourceError(t *testing.T) {
	src := oracle.SourceFunc(func(asset string) (oracle.Quote, error) {
		return oracle.Quote{}, errors.New("feed down")
	})
	log := oracle.NewDegradationLog(16)

	var notified []event.PriceDegradation
	gw := oracle.NewGateway(src, time.Minute, 1_000_000_000, log, testLogger, nil,
		func(d event.PriceDegradation) { notified = append(notified, d) })

	v, degraded := gw.ValueOf("X", 10, 777)
	if !degraded {
		t.Fatal("expected degraded read")
	}
	if v != 777 {
		t.Errorf("fallback value = %d, want 777", v)
	}

	events := log.Recent(10)
	if len(events) != 1 {
		t.Fatalf("degradation events = %d, want 1", len(events))
	}
	if !events[0].UsedFallback || events[0].Reason != oracle.ReasonSourceError {
		t.Errorf("event = %+v", events[0])
	}
	if len(notified) != 1 || notified[0].FallbackValue != 777 || !notified[0].UsedFallback {
		t.Errorf("telemetry = %+v", notified)
	}
}

func TestValueOfStaleQuoteDegrades(t *testing.T) {
	src := oracle.SourceFunc(func(asset string) (oracle.Quote, error) {
		return oracle.Quote{Price: 1_000_000, Decimals: 6, Timestamp: time.Now().Add(-time.Hour)}, nil
	})
	log := oracle.NewDegradationLog(16)
	gw := oracle.NewGateway(src, time.Minute, 1_000_000_000, log, testLogger, nil, nil)

	v, degraded := gw.ValueOf("ETH", 5, 42)
	if !degraded || v != 42 {
		t.Errorf("stale quote: value=%d degraded=%v, want 42/true", v, degraded)
	}
	if got := log.Stats().LastReason; got != oracle.ReasonStalePrice {
		t.Errorf("reason = %s", got)
	}

	_, _, _, valid := gw.PriceOf("ETH")
	if valid {
		t.Error("PriceOf should report stale quote invalid")
	}
}

func TestDegradationLogBoundedNewestFirst(t *testing.T) {
	log := oracle.NewDegradationLog(3)
	for i := 1; i <= 5; i++ {
		log.Record(oracle.Degradation{
			Asset:         "ETH",
			Reason:        oracle.ReasonSourceError,
			FallbackValue: int64(i * 100),
			UsedFallback:  true,
			Timestamp:     time.Now(),
		})
	}

	events := log.Recent(10)
	if len(events) != 3 {
		t.Fatalf("retained = %d, want 3", len(events))
	}
	if events[0].FallbackValue != 500 || events[2].FallbackValue != 300 {
		t.Errorf("not newest-first: %+v", events)
	}

	stats := log.Stats()
	if stats.Total != 5 {
		t.Errorf("stats.Total = %d, want 5 (counts past retention)", stats.Total)
	}
	if stats.CumulativeFallback != 1500 || stats.AverageFallback != 300 {
		t.Errorf("fallback stats = %+v", stats)
	}
}
