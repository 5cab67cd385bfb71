package consensus

import "fmt"

// AddUint64 returns a+b, or an error if the addition would overflow uint64.
// Spec §7 reserves panics for invariant violations (e.g. a precondition the
// caller already should have enforced); ordinary balance/stake arithmetic
// that can legitimately see attacker-influenced operands returns an error
// instead, the same discipline the teacher applies to value-conservation
// arithmetic.
func AddUint64(a, b uint64) (uint64, error) {
	if b > (^uint64(0) - a) {
		return 0, fmt.Errorf("consensus: uint64 addition overflow")
	}
	return a + b, nil
}

// SubUint64 returns a-b, or an error if b > a.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("consensus: uint64 subtraction underflow")
	}
	return a - b, nil
}

// SaturatingAddUint64 adds a and b, clamping to math.MaxUint64 on overflow
// instead of erroring. Used for accounting fields where clamping is
// acceptable (the quantity is already bounded well below 2^64 in practice)
// and a panic would be disproportionate.
func SaturatingAddUint64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// SaturatingSubUint64 subtracts b from a, clamping to 0 instead of
// underflowing.
func SaturatingSubUint64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
