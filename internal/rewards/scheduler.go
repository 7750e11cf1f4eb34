package rewards

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StakeVault/internal/event"
	svmath "StakeVault/internal/math"
	"StakeVault/internal/observability"
	"StakeVault/internal/token"
)

var (
	ErrNotAdmin         = errors.New("caller is not the scheduler admin")
	ErrAlreadyStarted   = errors.New("emission already started")
	ErrNotStarted       = errors.New("emission has not started")
	ErrEndTimeNotFuture = errors.New("end time is not in the future")
)

// Scheduler releases its account's asset balance to the vault linearly
// between start and end time. The emitted amount is always recomputed
// against the current balance, so topping the pool up mid-schedule
// stretches the new total over the remaining window.
type Scheduler struct {
	mu sync.Mutex

	ledger       token.Ledger
	account      uuid.UUID
	admin        uuid.UUID
	vaultAccount uuid.UUID

	started     bool
	endTime     time.Time
	lastEmitted time.Time

	now     func() time.Time
	rec     event.Recorder
	metrics *observability.Metrics
	log     zerolog.Logger
}

type Config struct {
	Ledger       token.Ledger
	Account      uuid.UUID
	Admin        uuid.UUID
	VaultAccount uuid.UUID
	Now          func() time.Time
	Recorder     event.Recorder
	Metrics      *observability.Metrics
}

func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		ledger:       cfg.Ledger,
		account:      cfg.Account,
		admin:        cfg.Admin,
		vaultAccount: cfg.VaultAccount,
		now:          cfg.Now,
		rec:          cfg.Recorder,
		metrics:      cfg.Metrics,
		log:          observability.NewLogger("rewards"),
	}
}

// Account returns the scheduler's ledger account, the pool that funds
// emissions.
func (s *Scheduler) Account() uuid.UUID {
	return s.account
}

func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// Start begins emission. Admin only, once, and the end time must be in
// the future.
func (s *Scheduler) Start(caller uuid.UUID, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.admin {
		return ErrNotAdmin
	}
	if s.started {
		return ErrAlreadyStarted
	}
	now := s.now()
	if !endTime.After(now) {
		return ErrEndTimeNotFuture
	}

	s.started = true
	s.endTime = endTime
	s.lastEmitted = now

	s.rec.Record(event.RewardsStarted, now, event.RewardsStartedPayload{
		EndTime: endTime,
	})
	s.log.Info().Time("end_time", endTime).Msg("emission started")
	return nil
}

// UnissuedRewards returns the amount that would be released right now.
// Zero before start.
func (s *Scheduler) UnissuedRewards() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return 0
	}
	return s.unissued()
}

// IssueRewards transfers all accrued rewards to the vault account.
// Anyone may call it: releasing rewards only ever raises the share
// price, never lowers it.
func (s *Scheduler) IssueRewards() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue()
}

// SetEndTime reschedules the emission end. Accrued rewards are flushed
// first so the remaining balance spreads over the new window. Admin
// only, and the new end must be in the future.
func (s *Scheduler) SetEndTime(caller uuid.UUID, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.admin {
		return ErrNotAdmin
	}
	if !s.started {
		return ErrNotStarted
	}
	now := s.now()
	if !endTime.After(now) {
		return ErrEndTimeNotFuture
	}

	if _, err := s.issue(); err != nil {
		return fmt.Errorf("flush before reschedule: %w", err)
	}

	s.endTime = endTime
	s.rec.Record(event.EndTimeSet, now, event.EndTimeSetPayload{
		EndTime: endTime,
	})
	s.log.Info().Time("end_time", endTime).Msg("emission rescheduled")
	return nil
}

// unissued assumes s.mu is held.
func (s *Scheduler) unissued() int64 {
	balance := s.ledger.BalanceOf(s.account)
	if balance == 0 {
		return 0
	}

	// A lastEmitted at or past endTime means the schedule is spent:
	// whatever landed in the pool since is releasable in full.
	duration := s.endTime.Sub(s.lastEmitted)
	if duration <= 0 {
		return balance
	}

	now := s.now()
	cap := now
	if cap.After(s.endTime) {
		cap = s.endTime
	}

	elapsed := cap.Sub(s.lastEmitted)
	if elapsed <= 0 {
		return 0
	}

	return svmath.MulDivFloor(balance, int64(elapsed), int64(duration))
}

// issue assumes s.mu is held. lastEmitted only advances when something
// was actually released, matching the event stream: one RewardsIssued
// event per non-zero release.
func (s *Scheduler) issue() (int64, error) {
	if !s.started {
		return 0, ErrNotStarted
	}

	amount := s.unissued()
	if amount == 0 {
		return 0, nil
	}

	if err := s.ledger.Transfer(s.account, s.vaultAccount, amount); err != nil {
		return 0, fmt.Errorf("emission transfer: %w", err)
	}

	now := s.now()
	s.lastEmitted = now
	s.rec.Record(event.RewardsIssued, now, event.RewardsIssuedPayload{
		Amount: amount,
	})
	if s.metrics != nil {
		s.metrics.RewardsIssuedTotal.Add(float64(amount))
		s.metrics.RewardsPoolBalance.Set(float64(s.ledger.BalanceOf(s.account)))
	}
	return amount, nil
}
