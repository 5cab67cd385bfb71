package crypto

import (
	"golang.org/x/crypto/sha3"

	"go.domainledger.dev/node/consensus"
)

// PotVerifier checks the proof-of-time freshness witness bundles embed
// (spec §4.2 check 7). Proof of time is a sequential, unparallelizable
// iterated hash chain: PotOutput must equal sha3-256 applied Iterations
// times to BlockHashProducedAfter. Checking this is cheap (one hash chain);
// producing it from scratch requires doing the work sequentially, which is
// what makes the bundle slot number trustworthy without a synchronized
// clock.
type PotVerifier struct {
	Iterations uint32
}

// NewPotVerifier returns a verifier configured with the network's PoT
// iteration count, a consensus-wide constant analogous to BundleLongevity.
func NewPotVerifier(iterations uint32) PotVerifier {
	return PotVerifier{Iterations: iterations}
}

// VerifyProofOfTime recomputes the iterated hash chain and compares it
// against the claimed output.
func (v PotVerifier) VerifyProofOfTime(pot consensus.ProofOfTime) bool {
	got := iteratedHash(pot.BlockHashProducedAfter, v.Iterations)
	return got == pot.PotOutput
}

func iteratedHash(seed [32]byte, iterations uint32) [32]byte {
	out := seed
	for i := uint32(0); i < iterations; i++ {
		out = sha3.Sum256(out[:])
	}
	return out
}
