package accesskey_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"StakeVault/internal/accesskey"
	"StakeVault/internal/event"
	"StakeVault/internal/testutil"
	"StakeVault/internal/token"
	"StakeVault/internal/vault"
)

const day = 24 * time.Hour

var testStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ledger   *token.InMemoryLedger
	clock    *testutil.Clock
	rec      *testutil.Recorder
	vault    *vault.Vault
	registry *accesskey.Registry
	admin    uuid.UUID
	treasury uuid.UUID
	alice    uuid.UUID
	bob      uuid.UUID
}

type fixtureOpts struct {
	feePerSecond  int64
	liquidatorPct int64
	sweepPct      int64
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	f := &fixture{
		clock:    testutil.NewClock(testStart),
		rec:      testutil.NewRecorder(),
		admin:    uuid.New(),
		treasury: uuid.New(),
		alice:    uuid.New(),
		bob:      uuid.New(),
	}
	f.ledger = token.NewInMemoryLedger(f.admin)
	f.vault = vault.New(vault.Config{
		Ledger:   f.ledger,
		Account:  uuid.New(),
		Admin:    f.admin,
		Now:      f.clock.Now,
		Recorder: f.rec,
	})

	var err error
	f.registry, err = accesskey.New(accesskey.Config{
		Ledger:                         f.ledger,
		Account:                        uuid.New(),
		Admin:                          f.admin,
		Treasury:                       f.treasury,
		Vault:                          f.vault,
		InitialFeePerSecond:            opts.feePerSecond,
		InitialLiquidatorRewardPercent: opts.liquidatorPct,
		InitialSweepPercent:            opts.sweepPct,
		Now:                            f.clock.Now,
		Recorder:                       f.rec,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if err := f.registry.ApproveCollateral(1_000_000_000); err != nil {
		t.Fatalf("approve collateral: %v", err)
	}
	for _, holder := range []uuid.UUID{f.alice, f.bob} {
		if err := f.ledger.Issue(f.admin, holder, 1_000_000); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if err := f.ledger.Approve(holder, f.registry.Account(), 1_000_000); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	return f
}

// ============================================================================
// Test: Mint
// ============================================================================

func TestMint_SequentialIDsFromZero(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	id0, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	id1, err := f.registry.Mint(f.bob, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if id0 != 0 || id1 != 1 {
		t.Errorf("ids: got %d, %d, want 0, 1", id0, id1)
	}
}

func TestMint_StakesCollateralIntoVault(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if _, err := f.registry.Mint(f.alice, 1000); err != nil {
		t.Fatal(err)
	}
	if got := f.vault.AssetBalance(); got != 1000 {
		t.Errorf("vault balance: got %d, want 1000", got)
	}
	if got := f.vault.SharesOf(f.registry.Account()); got != 1000 {
		t.Errorf("registry shares: got %d, want 1000", got)
	}
	if got := f.ledger.BalanceOf(f.registry.Account()); got != 0 {
		t.Errorf("registry unstaked balance: got %d, want 0", got)
	}
}

func TestMint_RejectsZeroAmount(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if _, err := f.registry.Mint(f.alice, 0); !errors.Is(err, accesskey.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestMint_FailsWithoutHolderApproval(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	stranger := uuid.New()
	if err := f.ledger.Issue(f.admin, stranger, 1000); err != nil {
		t.Fatal(err)
	}

	if _, err := f.registry.Mint(stranger, 1000); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("got %v, want ErrInsufficientAllowance", err)
	}
	if got := f.registry.LiveCount(); got != 0 {
		t.Errorf("live keys after failed mint: got %d, want 0", got)
	}
}

func TestMint_RecordsEvent(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := f.rec.Last(event.KeyMinted)
	if !ok {
		t.Fatal("no key_minted event")
	}
	p := e.Payload.(event.KeyMintedPayload)
	if p.TokenID != id || p.Owner != f.alice || p.Collateral != 1000 {
		t.Errorf("payload: %+v", p)
	}
}

// ============================================================================
// Test: fee accrual
// ============================================================================

func TestFees_AccrueAtCurrentRate(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 2})

	id, err := f.registry.Mint(f.alice, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(100 * time.Second)
	fees, err := f.registry.FeesAccumulated(id)
	if err != nil {
		t.Fatal(err)
	}
	if fees != 200 {
		t.Errorf("got %d, want 200", fees)
	}
}

func TestFees_RateChangeOnlyAffectsLaterTime(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	id, err := f.registry.Mint(f.alice, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(100 * time.Second)
	if err := f.registry.SetFee(f.admin, 10); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(50 * time.Second)

	fees, err := f.registry.FeesAccumulated(id)
	if err != nil {
		t.Fatal(err)
	}
	// 100s at 1/sec, then 50s at 10/sec
	if fees != 100+500 {
		t.Errorf("got %d, want 600", fees)
	}
}

func TestFees_ClampedAtCollateralCeiling(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 100})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(7 * day)
	fees, err := f.registry.FeesAccumulated(id)
	if err != nil {
		t.Fatal(err)
	}
	if fees != 1000 {
		t.Errorf("got %d, want clamp at 1000", fees)
	}
}

func TestFees_MultiSegmentIntegral(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	id, err := f.registry.Mint(f.alice, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(10 * time.Second)
	if err := f.registry.SetFee(f.admin, 5); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)
	if err := f.registry.SetFee(f.admin, 0); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(1000 * time.Second)
	if err := f.registry.SetFee(f.admin, 3); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)

	fees, err := f.registry.FeesAccumulated(id)
	if err != nil {
		t.Fatal(err)
	}
	// 10*1 + 10*5 + 1000*0 + 10*3
	if fees != 90 {
		t.Errorf("got %d, want 90", fees)
	}
}

func TestSetFee_AdminOnlyAndNonNegative(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	if err := f.registry.SetFee(f.alice, 5); !errors.Is(err, accesskey.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
	if err := f.registry.SetFee(f.admin, -1); !errors.Is(err, accesskey.ErrInvalidRate) {
		t.Errorf("got %v, want ErrInvalidRate", err)
	}
	if err := f.registry.SetFee(f.admin, 5); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.Fee(); got != 5 {
		t.Errorf("Fee: got %d, want 5", got)
	}
}

// ============================================================================
// Test: AddCollateral
// ============================================================================

func TestAddCollateral_RaisesCeilingWithoutResettingClock(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	id, err := f.registry.Mint(f.alice, 100)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(60 * time.Second)
	if err := f.registry.AddCollateral(f.alice, id, 400); err != nil {
		t.Fatal(err)
	}

	// Already-accrued 60 units remain owed; the ceiling is now 500.
	fees, err := f.registry.FeesAccumulated(id)
	if err != nil {
		t.Fatal(err)
	}
	if fees != 60 {
		t.Errorf("fees after top-up: got %d, want 60", fees)
	}

	ok, err := f.registry.IsLiquidateable(id)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("key liquidateable right after top-up")
	}
}

func TestAddCollateral_OwnerOnly(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	id, err := f.registry.Mint(f.alice, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.AddCollateral(f.bob, id, 100); !errors.Is(err, accesskey.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

// ============================================================================
// Test: IsLiquidateable
// ============================================================================

func TestIsLiquidateable_FlipsAtCeiling(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	id, err := f.registry.Mint(f.alice, 100)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := f.registry.IsLiquidateable(id)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("liquidateable immediately after mint")
	}

	f.clock.Advance(99 * time.Second)
	if ok, _ := f.registry.IsLiquidateable(id); ok {
		t.Error("liquidateable one second early")
	}

	f.clock.Advance(time.Second)
	if ok, _ := f.registry.IsLiquidateable(id); !ok {
		t.Error("not liquidateable at the ceiling")
	}
}

// ============================================================================
// Test: Burn
// ============================================================================

func TestBurn_OwnerOnly(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Burn(f.bob, id); !errors.Is(err, accesskey.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestBurn_RemovesKeyAndForfeitsCollateral(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	aliceBefore := f.ledger.BalanceOf(f.alice)
	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Burn(f.alice, id); err != nil {
		t.Fatal(err)
	}

	if got := f.registry.LiveCount(); got != 0 {
		t.Errorf("live keys: got %d, want 0", got)
	}
	if _, err := f.registry.FeesAccumulated(id); !errors.Is(err, accesskey.ErrUnknownToken) {
		t.Errorf("fees on burned key: got %v, want ErrUnknownToken", err)
	}
	// Collateral is forfeited to the registry's sweepable balance, not
	// refunded to the owner.
	if got := f.ledger.BalanceOf(f.alice); got != aliceBefore-1000 {
		t.Errorf("owner balance: got %d, want %d", got, aliceBefore-1000)
	}
	if got := f.ledger.BalanceOf(f.registry.Account()); got != 1000 {
		t.Errorf("registry balance: got %d, want 1000", got)
	}
}

func TestBurn_TokenIDsNeverReused(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	id0, err := f.registry.Mint(f.alice, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Burn(f.alice, id0); err != nil {
		t.Fatal(err)
	}
	id1, err := f.registry.Mint(f.alice, 100)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id0+1 {
		t.Errorf("got %d, want %d", id1, id0+1)
	}
}

// ============================================================================
// Test: Liquidate
// ============================================================================

func TestLiquidate_FailsWhileSolvent(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 1})

	id, err := f.registry.Mint(f.alice, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Liquidate(f.bob, id); !errors.Is(err, accesskey.ErrNotInsolvent) {
		t.Errorf("got %v, want ErrNotInsolvent", err)
	}
}

func TestLiquidate_PayoutSplitSumsToCollateral(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		feePerSecond:  100,
		liquidatorPct: 5,
		sweepPct:      50,
	})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(7 * day) // 100/sec for a week, far past the 1000 ceiling

	bobBefore := f.ledger.BalanceOf(f.bob)
	vaultBefore := f.vault.AssetBalance()

	if err := f.registry.Liquidate(f.bob, id); err != nil {
		t.Fatal(err)
	}

	reward := f.ledger.BalanceOf(f.bob) - bobBefore
	treasury := f.ledger.BalanceOf(f.treasury)
	// The unstake drained the vault's 1000, then the vault share came back.
	vaultGain := f.vault.AssetBalance() - (vaultBefore - 1000)

	if reward != 50 {
		t.Errorf("liquidator reward: got %d, want 50", reward)
	}
	if vaultGain != 475 {
		t.Errorf("vault share: got %d, want 475", vaultGain)
	}
	if treasury != 475 {
		t.Errorf("treasury share: got %d, want 475", treasury)
	}
	if reward+vaultGain+treasury != 1000 {
		t.Errorf("split does not sum to collateral: %d+%d+%d", reward, vaultGain, treasury)
	}
	if got := f.registry.LiveCount(); got != 0 {
		t.Errorf("live keys: got %d, want 0", got)
	}
}

func TestLiquidate_AnyoneMayCall(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 100, liquidatorPct: 5, sweepPct: 50})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(day)

	stranger := uuid.New()
	if err := f.registry.Liquidate(stranger, id); err != nil {
		t.Errorf("stranger liquidation: %v", err)
	}
	if got := f.ledger.BalanceOf(stranger); got != 50 {
		t.Errorf("stranger reward: got %d, want 50", got)
	}
}

func TestLiquidate_RecordsBurnedAndLiquidatedEvents(t *testing.T) {
	f := newFixture(t, fixtureOpts{feePerSecond: 100, liquidatorPct: 5, sweepPct: 50})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(day)
	if err := f.registry.Liquidate(f.bob, id); err != nil {
		t.Fatal(err)
	}

	if n := f.rec.Count(event.KeyBurned); n != 1 {
		t.Errorf("key_burned events: got %d, want 1", n)
	}
	e, ok := f.rec.Last(event.KeyLiquidated)
	if !ok {
		t.Fatal("no key_liquidated event")
	}
	p := e.Payload.(event.KeyLiquidatedPayload)
	if p.Liquidator != f.bob || p.LiquidatorShare != 50 || p.Collateral != 1000 {
		t.Errorf("payload: %+v", p)
	}
	if p.LiquidatorShare+p.VaultShare+p.TreasuryShare != p.Collateral {
		t.Errorf("event split does not sum: %+v", p)
	}
}

// ============================================================================
// Test: Sweep
// ============================================================================

func TestSweep_ZeroWhileKeysLive(t *testing.T) {
	f := newFixture(t, fixtureOpts{sweepPct: 50})

	if _, err := f.registry.Mint(f.alice, 1000); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		amount, err := f.registry.Sweep()
		if err != nil {
			t.Fatal(err)
		}
		if amount != 0 {
			t.Errorf("sweep with live key: got %d, want 0", amount)
		}
	}
	e, ok := f.rec.Last(event.Swept)
	if !ok {
		t.Fatal("no swept event")
	}
	if p := e.Payload.(event.SweptPayload); p.Amount != 0 {
		t.Errorf("zero-amount event expected, got %+v", p)
	}
}

func TestSweep_DistributesForfeitedBalanceOnceBooksEmpty(t *testing.T) {
	f := newFixture(t, fixtureOpts{sweepPct: 60})

	id, err := f.registry.Mint(f.alice, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Burn(f.alice, id); err != nil {
		t.Fatal(err)
	}

	vaultBefore := f.vault.AssetBalance()
	amount, err := f.registry.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if amount != 1000 {
		t.Errorf("swept: got %d, want 1000", amount)
	}
	if got := f.vault.AssetBalance() - vaultBefore; got != 600 {
		t.Errorf("vault share: got %d, want 600", got)
	}
	if got := f.ledger.BalanceOf(f.treasury); got != 400 {
		t.Errorf("treasury share: got %d, want 400", got)
	}
	if got := f.ledger.BalanceOf(f.registry.Account()); got != 0 {
		t.Errorf("registry residual: got %d, want 0", got)
	}
}

// ============================================================================
// Test: percent setters
// ============================================================================

func TestPercentSetters_ValidateRangeAndAdmin(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if err := f.registry.SetSweepPercent(f.alice, 50); !errors.Is(err, accesskey.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
	if err := f.registry.SetSweepPercent(f.admin, 101); !errors.Is(err, accesskey.ErrInvalidPercent) {
		t.Errorf("got %v, want ErrInvalidPercent", err)
	}
	if err := f.registry.SetLiquidatorRewardPercent(f.admin, -1); !errors.Is(err, accesskey.ErrInvalidPercent) {
		t.Errorf("got %v, want ErrInvalidPercent", err)
	}

	if err := f.registry.SetSweepPercent(f.admin, 75); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.SweepPercent(); got != 75 {
		t.Errorf("SweepPercent: got %d, want 75", got)
	}
	if err := f.registry.SetLiquidatorRewardPercent(f.admin, 10); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.LiquidatorRewardPercent(); got != 10 {
		t.Errorf("LiquidatorRewardPercent: got %d, want 10", got)
	}
	if f.rec.Count(event.SweepPercentChanged) != 1 || f.rec.Count(event.LiquidatorRewardPercentChanged) != 1 {
		t.Error("missing percent change events")
	}
}
