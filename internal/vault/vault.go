package vault

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

// DefaultPullInterval is the minimum gap between reward pulls triggered
// by share entry/exit.
const DefaultPullInterval = 24 * time.Hour

var (
	ErrNotAdmin           = errors.New("caller is not the vault admin")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidShares      = errors.New("shares must be positive")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrAmountTooSmall     = errors.New("amount too small for current share price")
)

// RewardsSource is the emission scheduler as seen by the vault: an
// account that can be asked to release whatever rewards have accrued.
type RewardsSource interface {
	Account() uuid.UUID
	IssueRewards() (int64, error)
}

// Vault is the proportional share pool. Holders deposit asset units and
// receive shares priced at the pool's current asset-per-share ratio.
// Asset transferred to the vault's account outside CreateShare (reward
// pulls, direct donations, liquidation proceeds) raises the value of
// every outstanding share.
type Vault struct {
	mu sync.Mutex

	ledger  token.Ledger
	account uuid.UUID
	admin   uuid.UUID

	rewards      RewardsSource
	pullInterval time.Duration
	lastPull     time.Time

	totalShares int64
	holdings    map[uuid.UUID]int64

	now     func() time.Time
	rec     event.Recorder
	metrics *observability.Metrics
	log     zerolog.Logger
}

type Config struct {
	Ledger       token.Ledger
	Account      uuid.UUID
	Admin        uuid.UUID
	PullInterval time.Duration
	Now          func() time.Time
	Recorder     event.Recorder
	Metrics      *observability.Metrics
}

func New(cfg Config) *Vault {
	if cfg.PullInterval <= 0 {
		cfg.PullInterval = DefaultPullInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Vault{
		ledger:       cfg.Ledger,
		account:      cfg.Account,
		admin:        cfg.Admin,
		pullInterval: cfg.PullInterval,
		holdings:     make(map[uuid.UUID]int64),
		now:          cfg.Now,
		rec:          cfg.Recorder,
		metrics:      cfg.Metrics,
		log:          observability.NewLogger("vault"),
	}
}

// Account returns the vault's ledger account. Transfers into it raise
// the share price for all holders.
func (v *Vault) Account() uuid.UUID {
	return v.account
}

// SetRewardsPool attaches the emission scheduler. Admin only.
func (v *Vault) SetRewardsPool(caller uuid.UUID, source RewardsSource) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.admin {
		return ErrNotAdmin
	}

	v.rewards = source
	v.rec.Record(event.RewardsPoolSet, v.now(), event.RewardsPoolSetPayload{
		Pool: source.Account(),
	})
	v.log.Info().Str("pool", source.Account().String()).Msg("rewards pool attached")
	return nil
}

// AssetBalance returns the asset units held by the vault account.
func (v *Vault) AssetBalance() int64 {
	return v.ledger.BalanceOf(v.account)
}

// TotalShares returns shares outstanding across all holders.
func (v *Vault) TotalShares() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalShares
}

// SharesOf returns the holder's share balance.
func (v *Vault) SharesOf(holder uuid.UUID) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holdings[holder]
}

// ShareValue converts a share count to asset units at the current pool
// ratio, rounding down. An empty pool values shares 1:1.
func (v *Vault) ShareValue(shares int64) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shareValue(shares)
}

// BalanceInAsset returns the asset value of the holder's shares.
func (v *Vault) BalanceInAsset(holder uuid.UUID) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shareValue(v.holdings[holder])
}

// SharesForAsset converts an asset amount to the share count needed to
// redeem at least that amount, rounding up. An empty pool converts 1:1.
func (v *Vault) SharesForAsset(amount int64) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.ledger.BalanceOf(v.account)
	if v.totalShares == 0 || balance == 0 {
		return amount
	}
	return svmath.MulDivCeil(amount, v.totalShares, balance)
}

// CreateShare deposits amount asset units from the holder and mints
// shares at the pool ratio in force after any pending reward pull but
// before the deposit lands. The holder must have approved the vault's
// account for at least amount.
func (v *Vault) CreateShare(holder uuid.UUID, amount int64) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	v.pullRewards()

	balance := v.ledger.BalanceOf(v.account)
	var shares int64
	if v.totalShares == 0 || balance == 0 {
		shares = amount
	} else {
		shares = svmath.MulDivFloor(amount, v.totalShares, balance)
	}
	if shares == 0 {
		return 0, ErrAmountTooSmall
	}

	if err := v.ledger.TransferFrom(v.account, holder, v.account, amount); err != nil {
		return 0, fmt.Errorf("deposit transfer: %w", err)
	}

	v.totalShares += shares
	v.holdings[holder] += shares

	at := v.now()
	v.rec.Record(event.SharesCreated, at, event.SharesCreatedPayload{
		Account: holder,
		Asset:   amount,
		Shares:  shares,
	})
	v.updateGauges()
	return shares, nil
}

// RemoveShare burns shares from the holder and pays out their asset
// value at the pool ratio in force after any pending reward pull.
func (v *Vault) RemoveShare(holder uuid.UUID, shares int64) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if shares <= 0 {
		return 0, ErrInvalidShares
	}
	held := v.holdings[holder]
	if held < shares {
		return 0, fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientShares, held, shares)
	}

	v.pullRewards()

	asset := v.shareValue(shares)
	if asset > 0 {
		if err := v.ledger.Transfer(v.account, holder, asset); err != nil {
			return 0, fmt.Errorf("payout transfer: %w", err)
		}
	}

	v.totalShares -= shares
	if held == shares {
		delete(v.holdings, holder)
	} else {
		v.holdings[holder] = held - shares
	}

	at := v.now()
	v.rec.Record(event.SharesRemoved, at, event.SharesRemovedPayload{
		Account: holder,
		Shares:  shares,
		Asset:   asset,
	})
	v.updateGauges()
	return asset, nil
}

// shareValue assumes v.mu is held.
func (v *Vault) shareValue(shares int64) int64 {
	if v.totalShares == 0 {
		return shares
	}
	balance := v.ledger.BalanceOf(v.account)
	return svmath.MulDivFloor(shares, balance, v.totalShares)
}

// pullRewards asks the scheduler to release accrued rewards, at most
// once per pull interval. Failures are logged and swallowed: entry and
// exit must not be blocked by the scheduler. lastPull advances whether
// or not any amount was issued. Assumes v.mu is held.
func (v *Vault) pullRewards() {
	if v.rewards == nil {
		return
	}

	now := v.now()
	if !v.lastPull.IsZero() && now.Sub(v.lastPull) < v.pullInterval {
		return
	}
	v.lastPull = now

	amount, err := v.rewards.IssueRewards()
	if err != nil {
		v.log.Warn().Err(err).Msg("rewards pull failed")
		if v.metrics != nil {
			v.metrics.VaultPullErrors.Inc()
		}
		return
	}
	if v.metrics != nil {
		v.metrics.VaultPulls.Inc()
	}
	if amount > 0 {
		v.log.Debug().Int64("amount", amount).Msg("rewards pulled")
	}
}

func (v *Vault) updateGauges() {
	if v.metrics == nil {
		return
	}
	v.metrics.VaultShares.Set(float64(v.totalShares))
	v.metrics.VaultUnderlying.Set(float64(v.ledger.BalanceOf(v.account)))
}
