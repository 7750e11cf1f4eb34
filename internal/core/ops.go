package core

import (
	"time"

	"github.com/google/uuid"
)

// Op is a state-changing command accepted by the processor. Every op type
// carries the full set of fields needed to apply it; the processor never
// consults external input while applying.
type Op interface {
	// Name returns the wire name of the operation (snake_case).
	Name() string
}

// --- Vault ops ---

// CreateShareOp stakes asset units into the vault for the holder.
type CreateShareOp struct {
	Holder uuid.UUID
	Amount int64
}

func (CreateShareOp) Name() string { return "create_share" }

// RemoveShareOp redeems shares back into asset units for the holder.
type RemoveShareOp struct {
	Holder uuid.UUID
	Shares int64
}

func (RemoveShareOp) Name() string { return "remove_share" }

// SetRewardsPoolOp attaches the emission scheduler as the vault's
// rewards source. Admin only.
type SetRewardsPoolOp struct {
	Caller uuid.UUID
}

func (SetRewardsPoolOp) Name() string { return "set_rewards_pool" }

// --- Rewards ops ---

// StartRewardsOp opens the emission window. Admin only.
type StartRewardsOp struct {
	Caller  uuid.UUID
	EndTime time.Time
}

func (StartRewardsOp) Name() string { return "start_rewards" }

// SetEndTimeOp moves the emission end time. Flushes accrued rewards first.
type SetEndTimeOp struct {
	Caller  uuid.UUID
	EndTime time.Time
}

func (SetEndTimeOp) Name() string { return "set_end_time" }

// IssueRewardsOp releases accrued rewards to the vault. Permissionless.
type IssueRewardsOp struct{}

func (IssueRewardsOp) Name() string { return "issue_rewards" }

// --- Access key ops ---

// SetFeeOp changes the global per-second fee rate. Admin only.
type SetFeeOp struct {
	Caller        uuid.UUID
	RatePerSecond int64
}

func (SetFeeOp) Name() string { return "set_fee" }

// ApproveCollateralOp raises the registry's standing allowance toward
// the vault account.
type ApproveCollateralOp struct {
	Amount int64
}

func (ApproveCollateralOp) Name() string { return "approve_collateral" }

// MintKeyOp mints a new access key backed by the caller's collateral.
type MintKeyOp struct {
	Caller uuid.UUID
	Amount int64
}

func (MintKeyOp) Name() string { return "mint_key" }

// AddCollateralOp tops up an existing key's collateral. Owner only.
type AddCollateralOp struct {
	Caller  uuid.UUID
	TokenID uint64
	Amount  int64
}

func (AddCollateralOp) Name() string { return "add_collateral" }

// BurnKeyOp retires a key, forfeiting its collateral. Owner only.
type BurnKeyOp struct {
	Caller  uuid.UUID
	TokenID uint64
}

func (BurnKeyOp) Name() string { return "burn_key" }

// LiquidateKeyOp liquidates an insolvent key. Anyone may call.
type LiquidateKeyOp struct {
	Caller  uuid.UUID
	TokenID uint64
}

func (LiquidateKeyOp) Name() string { return "liquidate_key" }

// SweepOp distributes forfeited collateral between vault and treasury.
type SweepOp struct{}

func (SweepOp) Name() string { return "sweep" }

// SetSweepPercentOp changes the vault's cut of swept collateral. Admin only.
type SetSweepPercentOp struct {
	Caller  uuid.UUID
	Percent int64
}

func (SetSweepPercentOp) Name() string { return "set_sweep_percent" }

// SetLiquidatorRewardPercentOp changes the liquidator's cut. Admin only.
type SetLiquidatorRewardPercentOp struct {
	Caller  uuid.UUID
	Percent int64
}

func (SetLiquidatorRewardPercentOp) Name() string { return "set_liquidator_reward_percent" }

// --- Token ops ---

// IssueTokensOp mints new asset units to an account. Admin only.
type IssueTokensOp struct {
	Caller uuid.UUID
	To     uuid.UUID
	Amount int64
}

func (IssueTokensOp) Name() string { return "issue_tokens" }

// TransferOp moves asset units between accounts.
type TransferOp struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount int64
}

func (TransferOp) Name() string { return "transfer" }

// ApproveOp grants spender an allowance over owner's balance.
type ApproveOp struct {
	Owner   uuid.UUID
	Spender uuid.UUID
	Amount  int64
}

func (ApproveOp) Name() string { return "approve" }

// PauseTokenOp halts all ledger transfers. Admin only.
type PauseTokenOp struct {
	Caller uuid.UUID
}

func (PauseTokenOp) Name() string { return "pause_token" }

// ResumeTokenOp lifts a pause. Admin only.
type ResumeTokenOp struct {
	Caller uuid.UUID
}

func (ResumeTokenOp) Name() string { return "resume_token" }
