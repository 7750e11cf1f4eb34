package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VaultStatus is the vault's share pool state for API queries.
type VaultStatus struct {
	Account      uuid.UUID `json:"account"`
	TotalShares  int64     `json:"total_shares"`
	AssetBalance int64     `json:"asset_balance"`

	// Asset value of one million shares, a readable proxy for share price.
	ValuePerMillionShares int64 `json:"value_per_million_shares"`
}

// HolderStatus is a single holder's position in the vault.
type HolderStatus struct {
	Holder     uuid.UUID `json:"holder"`
	Shares     int64     `json:"shares"`
	AssetValue int64     `json:"asset_value"`
}

// RewardsStatus is the emission scheduler's state.
type RewardsStatus struct {
	Account     uuid.UUID `json:"account"`
	Started     bool      `json:"started"`
	EndTime     time.Time `json:"end_time,omitzero"`
	PoolBalance int64     `json:"pool_balance"`
	Unissued    int64     `json:"unissued"`
}

// KeyInfo is a live access key plus its derived fee state.
type KeyInfo struct {
	TokenID         uint64    `json:"token_id"`
	Owner           uuid.UUID `json:"owner"`
	CollateralValue int64     `json:"collateral_value"`
	FeesAccrued     int64     `json:"fees_accrued"`
	Liquidateable   bool      `json:"liquidateable"`
	ReferenceTime   time.Time `json:"reference_time"`
}

// FeeStatus is the registry's global fee and split configuration.
type FeeStatus struct {
	RatePerSecond           int64 `json:"rate_per_second"`
	SweepPercent            int64 `json:"sweep_percent"`
	LiquidatorRewardPercent int64 `json:"liquidator_reward_percent"`
	LiveKeys                int   `json:"live_keys"`
}

// RecentEvent is a row from the event log, payload left as raw JSON.
type RecentEvent struct {
	Seq       uint64          `json:"seq"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}
