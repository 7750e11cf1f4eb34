package query

import (
	"context"
	"errors"
	"fmt"

	"StakeVault/internal/accesskey"
	"StakeVault/internal/persistence"
	"StakeVault/internal/rewards"
	"StakeVault/internal/token"
	"StakeVault/internal/vault"

	"github.com/google/uuid"
)

// ErrKeyNotFound is returned when a token ID has no live key.
var ErrKeyNotFound = errors.New("key not found")

// Service answers read-only queries. Pool, key, and fee state come
// straight from the in-memory components; the event history comes from
// the Postgres event log.
type Service struct {
	ledger    token.Ledger
	vault     *vault.Vault
	scheduler *rewards.Scheduler
	registry  *accesskey.Registry
	events    *persistence.EventLogWriter
}

func NewService(
	ledger token.Ledger,
	v *vault.Vault,
	scheduler *rewards.Scheduler,
	registry *accesskey.Registry,
	events *persistence.EventLogWriter,
) *Service {
	return &Service{
		ledger:    ledger,
		vault:     v,
		scheduler: scheduler,
		registry:  registry,
		events:    events,
	}
}

// VaultStatus returns the vault's pool totals and share price proxy.
func (s *Service) VaultStatus() VaultStatus {
	return VaultStatus{
		Account:               s.vault.Account(),
		TotalShares:           s.vault.TotalShares(),
		AssetBalance:          s.vault.AssetBalance(),
		ValuePerMillionShares: s.vault.ShareValue(1_000_000),
	}
}

// HolderStatus returns one holder's shares and their current asset value.
func (s *Service) HolderStatus(holder uuid.UUID) HolderStatus {
	return HolderStatus{
		Holder:     holder,
		Shares:     s.vault.SharesOf(holder),
		AssetValue: s.vault.BalanceInAsset(holder),
	}
}

// RewardsStatus returns the emission schedule and remaining pool.
func (s *Service) RewardsStatus() RewardsStatus {
	return RewardsStatus{
		Account:     s.scheduler.Account(),
		Started:     s.scheduler.Started(),
		EndTime:     s.scheduler.EndTime(),
		PoolBalance: s.ledger.BalanceOf(s.scheduler.Account()),
		Unissued:    s.scheduler.UnissuedRewards(),
	}
}

// GetKey returns a live key with its accrued fees and solvency flag.
func (s *Service) GetKey(tokenID uint64) (KeyInfo, error) {
	pos, ok := s.registry.Get(tokenID)
	if !ok {
		return KeyInfo{}, fmt.Errorf("%w: %d", ErrKeyNotFound, tokenID)
	}

	fees, err := s.registry.FeesAccumulated(tokenID)
	if err != nil {
		return KeyInfo{}, err
	}
	liq, err := s.registry.IsLiquidateable(tokenID)
	if err != nil {
		return KeyInfo{}, err
	}

	return KeyInfo{
		TokenID:         pos.TokenID,
		Owner:           pos.Owner,
		CollateralValue: pos.CollateralValue,
		FeesAccrued:     fees,
		Liquidateable:   liq,
		ReferenceTime:   pos.ReferenceTimestamp,
	}, nil
}

// ListKeys returns every live key. Keys that disappear between the list
// and per-key reads are skipped rather than erroring the whole response.
func (s *Service) ListKeys() []KeyInfo {
	positions := s.registry.List()
	out := make([]KeyInfo, 0, len(positions))
	for _, pos := range positions {
		info, err := s.GetKey(pos.TokenID)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// FeeStatus returns the global fee and split configuration.
func (s *Service) FeeStatus() FeeStatus {
	return FeeStatus{
		RatePerSecond:           s.registry.Fee(),
		SweepPercent:            s.registry.SweepPercent(),
		LiquidatorRewardPercent: s.registry.LiquidatorRewardPercent(),
		LiveKeys:                s.registry.LiveCount(),
	}
}

// RecentEvents returns the newest events from the log, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]RecentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]RecentEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, RecentEvent{
			Seq:       r.Seq,
			EventType: r.EventType,
			Payload:   r.Payload,
			At:        r.At,
		})
	}
	return out, nil
}
