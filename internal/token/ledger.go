package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ledger is the fungible asset store every value movement goes through.
// The vault, the emission scheduler, and the credit-line registry only
// touch balances via this interface.
type Ledger interface {
	Transfer(from, to uuid.UUID, amount int64) error
	Approve(owner, spender uuid.UUID, amount int64) error
	TransferFrom(spender, from, to uuid.UUID, amount int64) error
	BalanceOf(account uuid.UUID) int64
	Allowance(owner, spender uuid.UUID) int64
}

var (
	ErrPaused                = errors.New("ledger is paused")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotAdmin              = errors.New("caller is not the admin")
)

type allowanceKey struct {
	Owner   uuid.UUID
	Spender uuid.UUID
}

// InMemoryLedger backs the engine in-process. A transfer either fully
// succeeds or returns an error with no balance mutated.
type InMemoryLedger struct {
	mu         sync.Mutex
	admin      uuid.UUID
	paused     bool
	balances   map[uuid.UUID]int64
	allowances map[allowanceKey]int64
	issued     int64
}

func NewInMemoryLedger(admin uuid.UUID) *InMemoryLedger {
	return &InMemoryLedger{
		admin:      admin,
		balances:   make(map[uuid.UUID]int64),
		allowances: make(map[allowanceKey]int64),
	}
}

// Issue mints new asset units to an account. Admin only.
func (l *InMemoryLedger) Issue(caller, to uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.balances[to] += amount
	l.issued += amount
	return nil
}

// Pause blocks all transfers until Resume. Admin only.
func (l *InMemoryLedger) Pause(caller uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}
	l.paused = true
	return nil
}

func (l *InMemoryLedger) Resume(caller uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return ErrNotAdmin
	}
	l.paused = false
	return nil
}

func (l *InMemoryLedger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

func (l *InMemoryLedger) Transfer(from, to uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

func (l *InMemoryLedger) Approve(owner, spender uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < 0 {
		return ErrInvalidAmount
	}
	l.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount
	return nil
}

// TransferFrom moves amount from the owner to the destination on the
// spender's authority. The allowance is checked and decremented before
// the balance moves, so a failed transfer leaves the allowance intact.
func (l *InMemoryLedger) TransferFrom(spender, from, to uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return ErrInvalidAmount
	}

	key := allowanceKey{Owner: from, Spender: spender}
	allowed := l.allowances[key]
	if allowed < amount {
		return fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientAllowance, allowed, amount)
	}

	if err := l.transfer(from, to, amount); err != nil {
		return err
	}

	l.allowances[key] = allowed - amount
	return nil
}

func (l *InMemoryLedger) BalanceOf(account uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *InMemoryLedger) Allowance(owner, spender uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey{Owner: owner, Spender: spender}]
}

// TotalIssued returns the sum of all Issue calls. Balances across all
// accounts always add up to this value (conservation check).
func (l *InMemoryLedger) TotalIssued() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued
}

func (l *InMemoryLedger) transfer(from, to uuid.UUID, amount int64) error {
	if l.paused {
		return ErrPaused
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance := l.balances[from]
	if balance < amount {
		return fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientBalance, balance, amount)
	}

	l.balances[from] = balance - amount
	l.balances[to] += amount
	return nil
}
