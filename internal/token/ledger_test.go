package token_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"StakeVault/internal/token"
)

// ============================================================================
// Test: Issue / admin gating
// ============================================================================

func TestIssue_AdminOnly(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)

	if err := l.Issue(uuid.New(), uuid.New(), 100); !errors.Is(err, token.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}

	to := uuid.New()
	if err := l.Issue(admin, to, 100); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := l.BalanceOf(to); got != 100 {
		t.Errorf("BalanceOf: got %d, want 100", got)
	}
	if got := l.TotalIssued(); got != 100 {
		t.Errorf("TotalIssued: got %d, want 100", got)
	}
}

// ============================================================================
// Test: Transfer
// ============================================================================

func TestTransfer_MovesBalance(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	a, b := uuid.New(), uuid.New()
	if err := l.Issue(admin, a, 100); err != nil {
		t.Fatal(err)
	}

	if err := l.Transfer(a, b, 60); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if l.BalanceOf(a) != 40 || l.BalanceOf(b) != 60 {
		t.Errorf("balances: a=%d b=%d", l.BalanceOf(a), l.BalanceOf(b))
	}
}

func TestTransfer_RejectsOverdraw(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	a, b := uuid.New(), uuid.New()
	if err := l.Issue(admin, a, 50); err != nil {
		t.Fatal(err)
	}

	if err := l.Transfer(a, b, 51); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf(a); got != 50 {
		t.Errorf("failed transfer mutated balance: %d", got)
	}
}

func TestTransfer_RejectsNonPositiveAmount(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	a, b := uuid.New(), uuid.New()

	if err := l.Transfer(a, b, 0); !errors.Is(err, token.ErrInvalidAmount) {
		t.Errorf("zero: got %v, want ErrInvalidAmount", err)
	}
	if err := l.Transfer(a, b, -5); !errors.Is(err, token.ErrInvalidAmount) {
		t.Errorf("negative: got %v, want ErrInvalidAmount", err)
	}
}

// ============================================================================
// Test: Pause
// ============================================================================

func TestPause_BlocksTransfersUntilResume(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	a, b := uuid.New(), uuid.New()
	if err := l.Issue(admin, a, 100); err != nil {
		t.Fatal(err)
	}

	if err := l.Pause(a); !errors.Is(err, token.ErrNotAdmin) {
		t.Errorf("non-admin pause: got %v, want ErrNotAdmin", err)
	}
	if err := l.Pause(admin); err != nil {
		t.Fatal(err)
	}
	if err := l.Transfer(a, b, 10); !errors.Is(err, token.ErrPaused) {
		t.Errorf("got %v, want ErrPaused", err)
	}

	if err := l.Resume(admin); err != nil {
		t.Fatal(err)
	}
	if err := l.Transfer(a, b, 10); err != nil {
		t.Errorf("transfer after resume: %v", err)
	}
}

// ============================================================================
// Test: Approve / TransferFrom
// ============================================================================

func TestTransferFrom_ConsumesAllowance(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	owner, spender, dest := uuid.New(), uuid.New(), uuid.New()
	if err := l.Issue(admin, owner, 100); err != nil {
		t.Fatal(err)
	}
	if err := l.Approve(owner, spender, 80); err != nil {
		t.Fatal(err)
	}

	if err := l.TransferFrom(spender, owner, dest, 60); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := l.Allowance(owner, spender); got != 20 {
		t.Errorf("allowance: got %d, want 20", got)
	}
	if got := l.BalanceOf(dest); got != 60 {
		t.Errorf("dest balance: got %d, want 60", got)
	}

	if err := l.TransferFrom(spender, owner, dest, 30); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("over-allowance: got %v, want ErrInsufficientAllowance", err)
	}
}

func TestTransferFrom_FailedTransferKeepsAllowance(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	owner, spender, dest := uuid.New(), uuid.New(), uuid.New()
	if err := l.Approve(owner, spender, 50); err != nil {
		t.Fatal(err)
	}

	// Owner has no balance: the transfer fails, the allowance stays.
	if err := l.TransferFrom(spender, owner, dest, 50); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := l.Allowance(owner, spender); got != 50 {
		t.Errorf("allowance after failed transfer: got %d, want 50", got)
	}
}

// ============================================================================
// Test: conservation
// ============================================================================

func TestConservation_BalancesSumToIssued(t *testing.T) {
	admin := uuid.New()
	l := token.NewInMemoryLedger(admin)
	accounts := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	for i, acct := range accounts {
		if err := l.Issue(admin, acct, int64(1000*(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Transfer(accounts[2], accounts[0], 777); err != nil {
		t.Fatal(err)
	}
	if err := l.Approve(accounts[0], accounts[1], 500); err != nil {
		t.Fatal(err)
	}
	if err := l.TransferFrom(accounts[1], accounts[0], accounts[2], 500); err != nil {
		t.Fatal(err)
	}

	var sum int64
	for _, acct := range accounts {
		sum += l.BalanceOf(acct)
	}
	if sum != l.TotalIssued() {
		t.Errorf("sum=%d, issued=%d", sum, l.TotalIssued())
	}
}
