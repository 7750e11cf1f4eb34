package accesskey

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StakeVault/internal/event"
	"StakeVault/internal/observability"
	"StakeVault/internal/token"
	"StakeVault/internal/vault"
)

var (
	ErrNotAdmin       = errors.New("caller is not the registry admin")
	ErrNotOwner       = errors.New("caller does not own this key")
	ErrUnknownToken   = errors.New("unknown token id")
	ErrNotInsolvent   = errors.New("key is not insolvent")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidRate    = errors.New("rate must be non-negative")
	ErrInvalidPercent = errors.New("percent must be between 0 and 100")
)

// Registry mints collateral-backed access keys. Collateral is staked
// into the vault for the life of the key; fee debt accrues against the
// global rate history until it reaches the key's collateral ceiling,
// at which point anyone may liquidate.
type Registry struct {
	mu sync.Mutex

	ledger   token.Ledger
	account  uuid.UUID
	admin    uuid.UUID
	treasury uuid.UUID
	vault    *vault.Vault

	fees      *feeHistory
	positions map[uint64]*Position
	nextID    uint64

	sweepPercent            int64
	liquidatorRewardPercent int64

	now     func() time.Time
	rec     event.Recorder
	metrics *observability.Metrics
	log     zerolog.Logger
}

type Config struct {
	Ledger   token.Ledger
	Account  uuid.UUID
	Admin    uuid.UUID
	Treasury uuid.UUID
	Vault    *vault.Vault

	InitialFeePerSecond            int64
	InitialLiquidatorRewardPercent int64
	InitialSweepPercent            int64

	Now      func() time.Time
	Recorder event.Recorder
	Metrics  *observability.Metrics
}

func New(cfg Config) (*Registry, error) {
	if cfg.InitialFeePerSecond < 0 {
		return nil, ErrInvalidRate
	}
	if !validPercent(cfg.InitialLiquidatorRewardPercent) || !validPercent(cfg.InitialSweepPercent) {
		return nil, ErrInvalidPercent
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		ledger:                  cfg.Ledger,
		account:                 cfg.Account,
		admin:                   cfg.Admin,
		treasury:                cfg.Treasury,
		vault:                   cfg.Vault,
		fees:                    newFeeHistory(cfg.InitialFeePerSecond, cfg.Now()),
		positions:               make(map[uint64]*Position),
		sweepPercent:            cfg.InitialSweepPercent,
		liquidatorRewardPercent: cfg.InitialLiquidatorRewardPercent,
		now:                     cfg.Now,
		rec:                     cfg.Recorder,
		metrics:                 cfg.Metrics,
		log:                     observability.NewLogger("accesskey"),
	}, nil
}

func validPercent(p int64) bool {
	return p >= 0 && p <= 100
}

// Account returns the registry's ledger account. Forfeited collateral
// and liquidation dust accumulate here until swept.
func (r *Registry) Account() uuid.UUID {
	return r.account
}

// Fee returns the current global fee rate per second.
func (r *Registry) Fee() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fees.currentRate()
}

// SetFee appends a new global rate effective now. Admin only. Fees
// already accrued under the old rate are unaffected.
func (r *Registry) SetFee(caller uuid.UUID, rate int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return ErrNotAdmin
	}
	if rate < 0 {
		return ErrInvalidRate
	}

	now := r.now()
	if err := r.fees.append(rate, now); err != nil {
		return err
	}

	r.rec.Record(event.FeeChanged, now, event.FeeChangedPayload{
		RatePerSecond: rate,
		EffectiveFrom: now,
	})
	if r.metrics != nil {
		r.metrics.FeeRatePerSecond.Set(float64(rate))
	}
	r.log.Info().Int64("rate_per_second", rate).Msg("fee rate changed")
	return nil
}

// FeesAccumulated returns the key's accrued fee debt, clamped at its
// collateral ceiling.
func (r *Registry) FeesAccumulated(tokenID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenID]
	if !ok {
		return 0, ErrUnknownToken
	}
	return r.fees.accruedCapped(pos.ReferenceTimestamp, r.now(), pos.CollateralValue), nil
}

// IsLiquidateable reports whether the key's debt has reached its
// collateral ceiling.
func (r *Registry) IsLiquidateable(tokenID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isLiquidateable(tokenID)
}

// isLiquidateable assumes r.mu is held.
func (r *Registry) isLiquidateable(tokenID uint64) (bool, error) {
	pos, ok := r.positions[tokenID]
	if !ok {
		return false, ErrUnknownToken
	}
	accrued := r.fees.accruedCapped(pos.ReferenceTimestamp, r.now(), pos.CollateralValue)
	return accrued >= pos.CollateralValue, nil
}

// ApproveCollateral raises the vault's allowance on the registry's own
// account so Mint and AddCollateral can stake pulled collateral. Must
// be called with a cumulative amount covering upcoming mints.
func (r *Registry) ApproveCollateral(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return r.ledger.Approve(r.account, r.vault.Account(), amount)
}

// Mint pulls amount collateral from the caller, stakes it into the
// vault, and creates a new key with the next sequential id. The caller
// must have approved the registry's account for at least amount.
func (r *Registry) Mint(caller uuid.UUID, amount int64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	if err := r.stakeFrom(caller, amount); err != nil {
		return 0, err
	}

	now := r.now()
	id := r.nextID
	r.nextID++
	r.positions[id] = &Position{
		TokenID:            id,
		Owner:              caller,
		CollateralValue:    amount,
		ReferenceTimestamp: now,
	}

	r.rec.Record(event.KeyMinted, now, event.KeyMintedPayload{
		TokenID:    id,
		Owner:      caller,
		Collateral: amount,
	})
	if r.metrics != nil {
		r.metrics.KeysMinted.Inc()
		r.metrics.KeysLive.Set(float64(len(r.positions)))
	}
	return id, nil
}

// AddCollateral pulls and stakes additional collateral for an existing
// key, raising its debt ceiling. Owner only. The settlement reference
// is not reset: debt accrued so far simply gains headroom.
func (r *Registry) AddCollateral(caller uuid.UUID, tokenID uint64, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenID]
	if !ok {
		return ErrUnknownToken
	}
	if pos.Owner != caller {
		return ErrNotOwner
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if err := r.stakeFrom(caller, amount); err != nil {
		return err
	}
	pos.CollateralValue += amount

	r.rec.Record(event.CollateralAdded, r.now(), event.CollateralAddedPayload{
		TokenID: tokenID,
		Amount:  amount,
	})
	return nil
}

// Burn removes the caller's key. The escrowed collateral is not
// refunded: it is unstaked into the registry's account and becomes
// part of the sweepable balance.
func (r *Registry) Burn(caller uuid.UUID, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenID]
	if !ok {
		return ErrUnknownToken
	}
	if pos.Owner != caller {
		return ErrNotOwner
	}

	// Remove from the live set before any value moves.
	delete(r.positions, tokenID)

	forfeited, err := r.unstake(pos.CollateralValue)
	if err != nil {
		r.positions[tokenID] = pos
		return fmt.Errorf("unstake on burn: %w", err)
	}

	r.rec.Record(event.KeyBurned, r.now(), event.KeyBurnedPayload{
		TokenID:   tokenID,
		Owner:     pos.Owner,
		Forfeited: forfeited,
	})
	if r.metrics != nil {
		r.metrics.KeysBurned.Inc()
		r.metrics.KeysLive.Set(float64(len(r.positions)))
	}
	return nil
}

// Liquidate settles an insolvent key. Anyone may call. The caller is
// paid collateral * liquidatorRewardPercent / 100; the remainder is
// split between the vault and the treasury by sweepPercent. The three
// payouts sum exactly to the key's collateral value; rounding dust
// from the unstake stays in the registry's account until swept.
func (r *Registry) Liquidate(caller uuid.UUID, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenID]
	if !ok {
		return ErrUnknownToken
	}
	insolvent, err := r.isLiquidateable(tokenID)
	if err != nil {
		return err
	}
	if !insolvent {
		return ErrNotInsolvent
	}

	// Remove from the live set before any value moves.
	delete(r.positions, tokenID)

	if _, err := r.unstake(pos.CollateralValue); err != nil {
		r.positions[tokenID] = pos
		return fmt.Errorf("unstake on liquidation: %w", err)
	}

	cmk := pos.CollateralValue
	reward := cmk * r.liquidatorRewardPercent / 100
	remainder := cmk - reward
	vaultShare := remainder * r.sweepPercent / 100
	treasuryShare := remainder - vaultShare

	if reward > 0 {
		if err := r.ledger.Transfer(r.account, caller, reward); err != nil {
			return fmt.Errorf("liquidator payout: %w", err)
		}
	}
	if vaultShare > 0 {
		if err := r.ledger.Transfer(r.account, r.vault.Account(), vaultShare); err != nil {
			return fmt.Errorf("vault payout: %w", err)
		}
	}
	if treasuryShare > 0 {
		if err := r.ledger.Transfer(r.account, r.treasury, treasuryShare); err != nil {
			return fmt.Errorf("treasury payout: %w", err)
		}
	}

	now := r.now()
	r.rec.Record(event.KeyBurned, now, event.KeyBurnedPayload{
		TokenID: tokenID,
		Owner:   pos.Owner,
	})
	r.rec.Record(event.KeyLiquidated, now, event.KeyLiquidatedPayload{
		TokenID:         tokenID,
		Owner:           pos.Owner,
		Liquidator:      caller,
		Collateral:      cmk,
		LiquidatorShare: reward,
		VaultShare:      vaultShare,
		TreasuryShare:   treasuryShare,
	})
	if r.metrics != nil {
		r.metrics.KeysLiquidated.Inc()
		r.metrics.KeysLive.Set(float64(len(r.positions)))
	}
	r.log.Info().
		Uint64("token_id", tokenID).
		Str("liquidator", caller.String()).
		Int64("reward", reward).
		Msg("key liquidated")
	return nil
}

// Sweep distributes the registry's unstaked balance between the vault
// and the treasury by sweepPercent. Only runs when no keys are live:
// collateral still backing open keys is never redistributed. With live
// keys a zero-amount event is recorded and nothing moves.
func (r *Registry) Sweep() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.positions) > 0 {
		r.rec.Record(event.Swept, now, event.SweptPayload{})
		return 0, nil
	}

	balance := r.ledger.BalanceOf(r.account)
	if balance == 0 {
		r.rec.Record(event.Swept, now, event.SweptPayload{})
		return 0, nil
	}

	vaultShare := balance * r.sweepPercent / 100
	treasuryShare := balance - vaultShare

	if vaultShare > 0 {
		if err := r.ledger.Transfer(r.account, r.vault.Account(), vaultShare); err != nil {
			return 0, fmt.Errorf("sweep to vault: %w", err)
		}
	}
	if treasuryShare > 0 {
		if err := r.ledger.Transfer(r.account, r.treasury, treasuryShare); err != nil {
			return 0, fmt.Errorf("sweep to treasury: %w", err)
		}
	}

	r.rec.Record(event.Swept, now, event.SweptPayload{
		Amount:        balance,
		VaultShare:    vaultShare,
		TreasuryShare: treasuryShare,
	})
	if r.metrics != nil {
		r.metrics.SweepAmountTotal.Add(float64(balance))
	}
	return balance, nil
}

func (r *Registry) SweepPercent() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepPercent
}

func (r *Registry) LiquidatorRewardPercent() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liquidatorRewardPercent
}

// SetSweepPercent changes the vault's cut of liquidation remainders and
// sweeps. Admin only.
func (r *Registry) SetSweepPercent(caller uuid.UUID, p int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return ErrNotAdmin
	}
	if !validPercent(p) {
		return ErrInvalidPercent
	}
	r.sweepPercent = p
	r.rec.Record(event.SweepPercentChanged, r.now(), event.SweepPercentChangedPayload{
		Percent: p,
	})
	return nil
}

// SetLiquidatorRewardPercent changes the liquidator's cut. Admin only.
func (r *Registry) SetLiquidatorRewardPercent(caller uuid.UUID, p int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return ErrNotAdmin
	}
	if !validPercent(p) {
		return ErrInvalidPercent
	}
	r.liquidatorRewardPercent = p
	r.rec.Record(event.LiquidatorRewardPercentChanged, r.now(), event.LiquidatorRewardPercentChangedPayload{
		Percent: p,
	})
	return nil
}

// LiveCount returns the number of open keys.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// Get returns a copy of one live position.
func (r *Registry) Get(tokenID uint64) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[tokenID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// List returns copies of all live positions ordered by token id.
func (r *Registry) List() []Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// stakeFrom pulls amount from the holder into the registry's account
// and stakes it in the vault. The pull is rolled back if the stake
// fails so the operation has no partial effect. Assumes r.mu is held.
func (r *Registry) stakeFrom(holder uuid.UUID, amount int64) error {
	if err := r.ledger.TransferFrom(r.account, holder, r.account, amount); err != nil {
		return fmt.Errorf("collateral pull: %w", err)
	}
	if _, err := r.vault.CreateShare(r.account, amount); err != nil {
		if rbErr := r.ledger.Transfer(r.account, holder, amount); rbErr != nil {
			r.log.Error().Err(rbErr).Msg("collateral rollback failed")
		}
		return fmt.Errorf("collateral stake: %w", err)
	}
	return nil
}

// unstake redeems enough vault shares to recover at least amount asset
// units into the registry's account, capped at the shares actually
// held. Returns the asset received. Assumes r.mu is held.
func (r *Registry) unstake(amount int64) (int64, error) {
	shares := r.vault.SharesForAsset(amount)
	if held := r.vault.SharesOf(r.account); shares > held {
		shares = held
	}
	if shares == 0 {
		return 0, nil
	}
	asset, err := r.vault.RemoveShare(r.account, shares)
	if err != nil {
		return 0, err
	}
	return asset, nil
}
