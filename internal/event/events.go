package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what state transition an event records.
type EventType int

const (
	SharesCreated EventType = iota
	SharesRemoved
	RewardsPoolSet
	RewardsStarted
	RewardsIssued
	EndTimeSet
	FeeChanged
	KeyMinted
	CollateralAdded
	KeyBurned
	KeyLiquidated
	Swept
	SweepPercentChanged
	LiquidatorRewardPercentChanged
)

func (t EventType) String() string {
	switch t {
	case SharesCreated:
		return "shares_created"
	case SharesRemoved:
		return "shares_removed"
	case RewardsPoolSet:
		return "rewards_pool_set"
	case RewardsStarted:
		return "rewards_started"
	case RewardsIssued:
		return "rewards_issued"
	case EndTimeSet:
		return "end_time_set"
	case FeeChanged:
		return "fee_changed"
	case KeyMinted:
		return "key_minted"
	case CollateralAdded:
		return "collateral_added"
	case KeyBurned:
		return "key_burned"
	case KeyLiquidated:
		return "key_liquidated"
	case Swept:
		return "swept"
	case SweepPercentChanged:
		return "sweep_percent_changed"
	case LiquidatorRewardPercentChanged:
		return "liquidator_reward_percent_changed"
	default:
		return "unknown"
	}
}

// Event is a single entry in the append-only log. Payload holds one of
// the typed payload structs below and marshals to the event_log table's
// payload column.
type Event struct {
	Seq     uint64      `json:"seq"`
	Type    EventType   `json:"-"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

type SharesCreatedPayload struct {
	Account uuid.UUID `json:"account"`
	Asset   int64     `json:"asset"`
	Shares  int64     `json:"shares"`
}

type SharesRemovedPayload struct {
	Account uuid.UUID `json:"account"`
	Shares  int64     `json:"shares"`
	Asset   int64     `json:"asset"`
}

type RewardsPoolSetPayload struct {
	Pool uuid.UUID `json:"pool"`
}

type RewardsStartedPayload struct {
	EndTime time.Time `json:"end_time"`
}

type RewardsIssuedPayload struct {
	Amount int64 `json:"amount"`
}

type EndTimeSetPayload struct {
	EndTime time.Time `json:"end_time"`
}

type FeeChangedPayload struct {
	RatePerSecond int64     `json:"rate_per_second"`
	EffectiveFrom time.Time `json:"effective_from"`
}

type KeyMintedPayload struct {
	TokenID    uint64    `json:"token_id"`
	Owner      uuid.UUID `json:"owner"`
	Collateral int64     `json:"collateral"`
}

type CollateralAddedPayload struct {
	TokenID uint64 `json:"token_id"`
	Amount  int64  `json:"amount"`
}

type KeyBurnedPayload struct {
	TokenID   uint64    `json:"token_id"`
	Owner     uuid.UUID `json:"owner"`
	Forfeited int64     `json:"forfeited"`
}

type KeyLiquidatedPayload struct {
	TokenID         uint64    `json:"token_id"`
	Owner           uuid.UUID `json:"owner"`
	Liquidator      uuid.UUID `json:"liquidator"`
	Collateral      int64     `json:"collateral"`
	LiquidatorShare int64     `json:"liquidator_share"`
	VaultShare      int64     `json:"vault_share"`
	TreasuryShare   int64     `json:"treasury_share"`
}

type SweptPayload struct {
	Amount        int64 `json:"amount"`
	VaultShare    int64 `json:"vault_share"`
	TreasuryShare int64 `json:"treasury_share"`
}

type SweepPercentChangedPayload struct {
	Percent int64 `json:"percent"`
}

type LiquidatorRewardPercentChangedPayload struct {
	Percent int64 `json:"percent"`
}

// Recorder is what the core components emit through. The production
// implementation is *Log; tests use a spy.
type Recorder interface {
	Record(t EventType, at time.Time, payload interface{})
}
