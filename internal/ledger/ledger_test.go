package ledger_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendCore/internal/ledger"
	"LendCore/internal/system"
)

func newLedger() *ledger.Ledger {
	return ledger.New(nil, zerolog.Nop(), nil)
}

func TestCreditAndWithdraw(t *testing.T) {
	l := newLedger()
	user := uuid.New()

	if err := l.CreditCollateral(user, "ETH", 1_000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := l.CollateralOf(user, "ETH"); got != 1_000 {
		t.Errorf("collateral = %d", got)
	}
	if got := l.TotalCollateralOf("ETH"); got != 1_000 {
		t.Errorf("total = %d", got)
	}
	if got := l.VersionOf(user, "ETH"); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}

	if err := l.WithdrawCollateral(user, "ETH", 400); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.CollateralOf(user, "ETH"); got != 600 {
		t.Errorf("collateral after withdraw = %d", got)
	}
	if got := l.VersionOf(user, "ETH"); got != 2 {
		t.Errorf("version = %d, want 2", got)
	}
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	l := newLedger()
	user := uuid.New()
	if err := l.CreditCollateral(user, "ETH", 100); err != nil {
		t.Fatal(err)
	}

	err := l.WithdrawCollateral(user, "ETH", 101)
	if !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Fatalf("want ErrInsufficientCollateral, got %v", err)
	}

	// rejected write leaves no partial state
	if got := l.CollateralOf(user, "ETH"); got != 100 {
		t.Errorf("collateral = %d, want 100", got)
	}
	if got := l.VersionOf(user, "ETH"); got != 1 {
		t.Errorf("version bumped on rejected write: %d", got)
	}
}

func TestSeizeClampsToBalance(t *testing.T) {
	l := newLedger()
	user := uuid.New()
	if err := l.CreditCollateral(user, "ETH", 100); err != nil {
		t.Fatal(err)
	}

	actual, err := l.SeizeCollateral(user, "ETH", 250)
	if err != nil {
		t.Fatalf("seize: %v", err)
	}
	if actual != 100 {
		t.Errorf("seized = %d, want clamp to 100", actual)
	}
	if got := l.CollateralOf(user, "ETH"); got != 0 {
		t.Errorf("collateral = %d, want 0", got)
	}

	// nothing left: seize is a no-op, not an error
	actual, err = l.SeizeCollateral(user, "ETH", 10)
	if err != nil || actual != 0 {
		t.Errorf("seize on empty = (%d, %v), want (0, nil)", actual, err)
	}
	if got := l.VersionOf(user, "ETH"); got != 2 {
		t.Errorf("empty seize must not bump version: %d", got)
	}
}

func TestDebtLifecycle(t *testing.T) {
	l := newLedger()
	user := uuid.New()

	if _, err := l.ReduceDebt(user, "USDC", 10); !errors.Is(err, ledger.ErrNoDebt) {
		t.Fatalf("want ErrNoDebt, got %v", err)
	}

	if err := l.AddDebt(user, "USDC", 500); err != nil {
		t.Fatal(err)
	}
	if got := l.TotalDebtOf("USDC"); got != 500 {
		t.Errorf("total debt = %d", got)
	}

	actual, err := l.ReduceDebt(user, "USDC", 800)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if actual != 500 {
		t.Errorf("reduced = %d, want clamp to 500", actual)
	}
	if got := l.DebtOf(user, "USDC"); got != 0 {
		t.Errorf("debt = %d", got)
	}
}

func TestSeparateNamespaces(t *testing.T) {
	l := newLedger()
	user := uuid.New()

	if err := l.CreditCollateral(user, "ETH", 100); err != nil {
		t.Fatal(err)
	}
	if err := l.AddDebt(user, "ETH", 70); err != nil {
		t.Fatal(err)
	}

	if l.CollateralOf(user, "ETH") != 100 || l.DebtOf(user, "ETH") != 70 {
		t.Errorf("collateral/debt mixed: %d/%d",
			l.CollateralOf(user, "ETH"), l.DebtOf(user, "ETH"))
	}

	snaps := l.PositionsOf(user)
	if len(snaps) != 1 || snaps[0].Collateral != 100 || snaps[0].Debt != 70 {
		t.Errorf("positions = %+v", snaps)
	}
}

func TestValidation(t *testing.T) {
	l := newLedger()
	user := uuid.New()

	if err := l.CreditCollateral(uuid.Nil, "ETH", 10); !errors.Is(err, ledger.ErrZeroUser) {
		t.Errorf("nil user: %v", err)
	}
	if err := l.CreditCollateral(user, "ETH", 0); !errors.Is(err, ledger.ErrZeroAmount) {
		t.Errorf("zero amount: %v", err)
	}
	if err := l.AddDebt(user, "ETH", -5); !errors.Is(err, ledger.ErrZeroAmount) {
		t.Errorf("negative amount: %v", err)
	}
}

func TestRejectedOpsLeaveNoPhantomPosition(t *testing.T) {
	l := newLedger()
	user := uuid.New()

	if _, err := l.ReduceDebt(user, "USDC", 10); !errors.Is(err, ledger.ErrNoDebt) {
		t.Fatalf("want ErrNoDebt, got %v", err)
	}
	if err := l.WithdrawCollateral(user, "ETH", 10); !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Fatalf("want ErrInsufficientCollateral, got %v", err)
	}
	if actual, err := l.SeizeCollateral(user, "WBTC", 10); err != nil || actual != 0 {
		t.Fatalf("seize on unknown position = (%d, %v), want (0, nil)", actual, err)
	}

	if snaps := l.PositionsOf(user); len(snaps) != 0 {
		t.Errorf("rejected operations created positions: %+v", snaps)
	}
}

func TestRestoreBypassesPause(t *testing.T) {
	pause := system.NewPause()
	l := ledger.New(pause, zerolog.Nop(), nil)
	user := uuid.New()

	if err := l.CreditCollateral(user, "ETH", 1_000); err != nil {
		t.Fatal(err)
	}
	if err := l.AddDebt(user, "USDC", 800); err != nil {
		t.Fatal(err)
	}
	seized, err := l.SeizeCollateral(user, "ETH", 1_000)
	if err != nil || seized != 1_000 {
		t.Fatalf("seize = (%d, %v)", seized, err)
	}
	reduced, err := l.ReduceDebt(user, "USDC", 800)
	if err != nil || reduced != 800 {
		t.Fatalf("reduce = (%d, %v)", reduced, err)
	}

	pause.Set(true)
	if err := l.RestoreCollateral(user, "ETH", seized); err != nil {
		t.Fatalf("RestoreCollateral while paused: %v", err)
	}
	if err := l.RestoreDebt(user, "USDC", reduced); err != nil {
		t.Fatalf("RestoreDebt while paused: %v", err)
	}

	if got := l.CollateralOf(user, "ETH"); got != 1_000 {
		t.Errorf("collateral = %d, want 1000", got)
	}
	if got := l.DebtOf(user, "USDC"); got != 800 {
		t.Errorf("debt = %d, want 800", got)
	}
	if got := l.TotalCollateralOf("ETH"); got != 1_000 {
		t.Errorf("total collateral = %d, want 1000", got)
	}
}

func TestPauseGuardsMutations(t *testing.T) {
	pause := system.NewPause()
	l := ledger.New(pause, zerolog.Nop(), nil)
	user := uuid.New()

	if err := l.CreditCollateral(user, "ETH", 100); err != nil {
		t.Fatal(err)
	}

	pause.Set(true)
	if err := l.CreditCollateral(user, "ETH", 1); !errors.Is(err, system.ErrPaused) {
		t.Errorf("credit while paused: %v", err)
	}
	if _, err := l.SeizeCollateral(user, "ETH", 1); !errors.Is(err, system.ErrPaused) {
		t.Errorf("seize while paused: %v", err)
	}

	pause.Set(false)
	if err := l.WithdrawCollateral(user, "ETH", 50); err != nil {
		t.Errorf("withdraw after unpause: %v", err)
	}
}
