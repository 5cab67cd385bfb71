package crypto

import (
	"crypto/ed25519"
	"math/big"

	"golang.org/x/crypto/sha3"

	"go.domainledger.dev/node/consensus"
)

// ConsensusVerifier adapts the ed25519 and sha3 primitives into the narrow
// verification interfaces consensus.ValidateBundle depends on
// (SignatureVerifier, VrfVerifier); proof of time is checked by the separate
// PotVerifier type in pot.go. Consensus itself stays
// free of any crypto library import, the same layering the teacher uses
// between node/provider_default.go and consensus/.
type ConsensusVerifier struct{}

// VerifyBundleSignature verifies an ed25519 signature over a bundle
// header's preimage hash (spec §4.2 check 2). Bundle signatures are
// ed25519.
func (ConsensusVerifier) VerifyBundleSignature(signer consensus.PublicKey, hash [32]byte, sig [64]byte) bool {
	return ed25519.Verify(signer[:], hash[:], sig[:])
}

// VerifyVrfProof checks an EdDSA-based verifiable-random-function proof:
// proof is a plain ed25519 signature by signer over alpha, and output is
// defined as sha3-256(proof). Because ed25519 signatures are deterministic,
// output is a pseudorandom function of (signer, alpha) that nobody but the
// holder of signer's private key could have produced, and anyone can check
// it without access to that key (spec §4.2 check 8).
func (ConsensusVerifier) VerifyVrfProof(signer consensus.PublicKey, alpha []byte, output [32]byte, proof [64]byte) bool {
	if !ed25519.Verify(signer[:], alpha, proof[:]) {
		return false
	}
	h := sha3.Sum256(proof[:])
	return h == output
}

// BelowThreshold implements the VRF-weighted election test (spec §4.2
// check 8): an operator wins the slot iff output, interpreted as a uniform
// draw over [0, 2^256), falls below the sample space scaled by
// (operatorStake/totalStake)*(num/den).
func (ConsensusVerifier) BelowThreshold(output [32]byte, operatorStake, totalStake uint64, slotProbability [2]uint64) bool {
	if totalStake == 0 || slotProbability[1] == 0 {
		return false
	}
	sample := new(big.Int).SetBytes(output[:])

	sampleSpace := new(big.Int).Lsh(big.NewInt(1), 256)
	threshold := new(big.Int).Mul(sampleSpace, big.NewInt(0).SetUint64(operatorStake))
	threshold.Mul(threshold, new(big.Int).SetUint64(slotProbability[0]))
	threshold.Div(threshold, new(big.Int).SetUint64(totalStake))
	threshold.Div(threshold, new(big.Int).SetUint64(slotProbability[1]))

	return sample.Cmp(threshold) < 0
}
