// Package dpmath contains checked arithmetic used by the consensus core.
//
// Every function reports overflow or underflow through a boolean
// instead of wrapping, so that callers can reject the operation.
package dpmath

import (
	"math"
	"math/bits"
)

// AddUint64 returns a+b and whether the addition did not overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubUint64 returns a-b and whether the subtraction did not underflow.
func SubUint64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MulUint64 returns a*b and whether the multiplication did not overflow.
func MulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// IncUint64 is AddUint64(a, 1).
func IncUint64(a uint64) (uint64, bool) {
	return AddUint64(a, 1)
}

// InOrderRange reports whether order lies in [1, n].
// It is false for every order when n is not positive.
func InOrderRange(order int32, n int) bool {
	return n > 0 && order >= 1 && int64(order) <= int64(n)
}

// OrderCount converts a validator count to an int32 order bound,
// reporting false if the count cannot be represented.
func OrderCount(n int) (int32, bool) {
	if n < 0 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}
