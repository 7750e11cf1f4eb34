package math

import (
	"math/big"
	"sync"
)

// Share-pool conversions multiply two int64 amounts before dividing, so
// the intermediate product can exceed 64 bits. All of them go through
// big.Int with an explicit rounding direction.

var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// MulDivFloor computes floor(a * b / denom). denom must be positive.
// Used for share-to-asset valuation: rounding down keeps the pool from
// paying out more than it holds.
func MulDivFloor(a, b, denom int64) int64 {
	num := getInt()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getInt()
	quo.Div(num, big.NewInt(denom))
	result := quo.Int64()

	putInt(num)
	putInt(quo)
	return result
}

// MulDivCeil computes ceil(a * b / denom). denom must be positive.
// Used when converting an asset amount back to shares to unstake: the
// round-up guarantees the resulting shares are worth at least the
// requested amount.
func MulDivCeil(a, b, denom int64) int64 {
	num := getInt()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getInt()
	rem := getInt()
	quo.DivMod(num, big.NewInt(denom), rem)

	result := quo.Int64()
	if rem.Sign() != 0 {
		result++
	}

	putInt(num)
	putInt(quo)
	putInt(rem)
	return result
}
