package accesskey

import (
	"time"

	"github.com/google/uuid"
)

// Position is one live access key: a collateral-backed record whose fee
// debt accrues against the global rate history. CollateralValue is both
// the staked amount and the debt ceiling. ReferenceTimestamp marks the
// point up to which fees are considered settled.
type Position struct {
	TokenID            uint64
	Owner              uuid.UUID
	CollateralValue    int64
	ReferenceTimestamp time.Time
}
