// Package txrange implements the adaptive transaction-range controller
// (spec §4.7, C7). It is not wired into the bundle admission pipeline by
// any caller in this module: the runtime carries TxRangeState per domain
// and this package can recompute it, but nothing currently invokes
// CalculateTxRange from consensus.ValidateBundle's checks. See
// SPEC_FULL.md §E for the rationale.
package txrange

import (
	"math/big"

	"go.domainledger.dev/node/consensus"
)

var sampleSpace = new(big.Int).Lsh(big.NewInt(1), 256)

func toBig(v [32]byte) *big.Int { return new(big.Int).SetBytes(v[:]) }

func fromBig(v *big.Int) [32]byte {
	var out [32]byte
	b := v.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// CalculateTxRange implements the AIMD adjustment rule (spec §4.7, §8 P7):
// new = clamp(cur * actual / expected, cur/4, cur*4). It returns cur
// unchanged when either actual or expected is zero, and never lets the
// result escape the 256-bit sample space.
func CalculateTxRange(cur [32]byte, actual, expected uint64) [32]byte {
	if actual == 0 || expected == 0 {
		return cur
	}

	curBig := toBig(cur)
	if curBig.Sign() == 0 {
		curBig = big.NewInt(1)
	}

	next := new(big.Int).Mul(curBig, new(big.Int).SetUint64(actual))
	next.Div(next, new(big.Int).SetUint64(expected))

	upperBound := new(big.Int).Mul(curBig, big.NewInt(4))
	lowerBound := new(big.Int).Div(curBig, big.NewInt(4))

	if next.Cmp(upperBound) > 0 {
		next = upperBound
	}
	if next.Cmp(lowerBound) < 0 {
		next = lowerBound
	}
	if next.Cmp(sampleSpace) >= 0 {
		next = new(big.Int).Sub(sampleSpace, big.NewInt(1))
	}
	return fromBig(next)
}

// Adjust recomputes a domain's TxRangeState at the end of an interval,
// using the interval's observed bundle count against a configured target
// rate, and resets the interval counters (spec §4.7).
func Adjust(state consensus.TxRangeState, targetBundlesPerBlock uint64) consensus.TxRangeState {
	if state.IntervalBlocks == 0 {
		return state
	}
	expected := targetBundlesPerBlock * state.IntervalBlocks
	return consensus.TxRangeState{
		TxRange:         CalculateTxRange(state.TxRange, state.IntervalBundles, expected),
		IntervalBlocks:  0,
		IntervalBundles: 0,
	}
}

// InRange reports whether a VRF output falls inside [0, TxRange), the
// sharding test a bundle's election proof would be checked against if this
// controller's output were consumed by bundle admission (spec §4.7).
func InRange(output [32]byte, state consensus.TxRangeState) bool {
	return toBig(output).Cmp(toBig(state.TxRange)) < 0
}
