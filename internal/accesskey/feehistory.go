package accesskey

import (
	"errors"
	"math/big"
	"sort"
	"time"
)

var ErrFeeNotMonotonic = errors.New("fee change predates last entry")

type feeChange struct {
	ratePerSecond int64
	effectiveFrom time.Time
}

// feeHistory is the global append-only rate log. Entries are strictly
// increasing in effectiveFrom; a second change within the same second
// overwrites the last entry instead of appending a zero-length segment.
// Accrual for a position is the integral of this step function over its
// settlement window, computed at read time.
type feeHistory struct {
	changes []feeChange
}

func newFeeHistory(initialRate int64, at time.Time) *feeHistory {
	return &feeHistory{
		changes: []feeChange{{ratePerSecond: initialRate, effectiveFrom: at}},
	}
}

func (h *feeHistory) currentRate() int64 {
	return h.changes[len(h.changes)-1].ratePerSecond
}

func (h *feeHistory) append(rate int64, at time.Time) error {
	last := h.changes[len(h.changes)-1]
	if at.Before(last.effectiveFrom) {
		return ErrFeeNotMonotonic
	}
	if at.Equal(last.effectiveFrom) {
		h.changes[len(h.changes)-1].ratePerSecond = rate
		return nil
	}
	h.changes = append(h.changes, feeChange{ratePerSecond: rate, effectiveFrom: at})
	return nil
}

// accruedCapped integrates rate over [from, to], returning at most cap.
// Segments before the first entry contribute nothing (the history is
// seeded at construction, so a position's window always starts at or
// after the first entry in practice).
func (h *feeHistory) accruedCapped(from, to time.Time, cap int64) int64 {
	if !to.After(from) || cap <= 0 {
		return 0
	}

	// First change whose effectiveFrom is after the window start; the
	// entry before it carries the rate in force at `from`.
	idx := sort.Search(len(h.changes), func(i int) bool {
		return h.changes[i].effectiveFrom.After(from)
	})
	if idx > 0 {
		idx--
	}

	total := new(big.Int)
	capBig := big.NewInt(cap)

	for i := idx; i < len(h.changes); i++ {
		segStart := h.changes[i].effectiveFrom
		if segStart.Before(from) {
			segStart = from
		}
		segEnd := to
		if i+1 < len(h.changes) && h.changes[i+1].effectiveFrom.Before(to) {
			segEnd = h.changes[i+1].effectiveFrom
		}
		if !segEnd.After(segStart) {
			continue
		}

		seconds := int64(segEnd.Sub(segStart) / time.Second)
		seg := new(big.Int).Mul(
			big.NewInt(h.changes[i].ratePerSecond),
			big.NewInt(seconds),
		)
		total.Add(total, seg)
		if total.Cmp(capBig) >= 0 {
			return cap
		}
	}

	return total.Int64()
}
