package consensus

import "fmt"

// BundleErrorCode enumerates every way validate_bundle can reject a bundle
// (spec §4.2).
type BundleErrorCode string

const (
	BundleErrInvalidOperatorId              BundleErrorCode = "INVALID_OPERATOR_ID"
	BundleErrBadOperator                    BundleErrorCode = "BAD_OPERATOR"
	BundleErrBadBundleSignature             BundleErrorCode = "BAD_BUNDLE_SIGNATURE"
	BundleErrDuplicatedBundle               BundleErrorCode = "DUPLICATED_BUNDLE"
	BundleErrBundleTooLarge                 BundleErrorCode = "BUNDLE_TOO_LARGE"
	BundleErrBundleTooHeavy                 BundleErrorCode = "BUNDLE_TOO_HEAVY"
	BundleErrInvalidExtrinsicRoot           BundleErrorCode = "INVALID_EXTRINSIC_ROOT"
	BundleErrSlotInTheFuture                BundleErrorCode = "SLOT_IN_THE_FUTURE"
	BundleErrSlotInThePast                  BundleErrorCode = "SLOT_IN_THE_PAST"
	BundleErrInvalidProofOfTime             BundleErrorCode = "INVALID_PROOF_OF_TIME"
	BundleErrInvalidDomainId                BundleErrorCode = "INVALID_DOMAIN_ID"
	BundleErrBadVrfSignature                BundleErrorCode = "BAD_VRF_SIGNATURE"
	BundleErrThresholdUnsatisfied           BundleErrorCode = "THRESHOLD_UNSATISFIED"
	BundleErrUnableToCalculateBundleLimit   BundleErrorCode = "UNABLE_TO_CALCULATE_BUNDLE_LIMIT"
	BundleErrReceipt                        BundleErrorCode = "RECEIPT"
)

// BundleError is the C2 error union. When Code == BundleErrReceipt, Receipt
// carries the underlying block-tree classification failure (spec §4.2,
// "embedded receipt is classified using the same rules as C1").
type BundleError struct {
	Code    BundleErrorCode
	Msg     string
	Receipt *BlockTreeError
}

func (e *BundleError) Error() string {
	if e.Receipt != nil {
		return fmt.Sprintf("bundle: %s: %s: %s", e.Code, e.Msg, e.Receipt.Error())
	}
	return fmt.Sprintf("bundle: %s: %s", e.Code, e.Msg)
}

func bundleErr(code BundleErrorCode, msg string) *BundleError {
	return &BundleError{Code: code, Msg: msg}
}

func bundleReceiptErr(underlying *BlockTreeError) *BundleError {
	return &BundleError{Code: BundleErrReceipt, Msg: "embedded receipt rejected", Receipt: underlying}
}

// OperatorLookup resolves operator records for bundle admission (spec §4.2
// check 1). Implemented by the staking ledger; consensus stays storage-free
// and depends only on this narrow interface.
type OperatorLookup interface {
	Operator(id OperatorId) (Operator, bool)
}

// SignatureVerifier verifies the bundle-header signature over its preimage
// hash (spec §4.2 check 2, §9 anti-replay note).
type SignatureVerifier interface {
	VerifyBundleSignature(signer PublicKey, hash [32]byte, sig [64]byte) bool
}

// DuplicateBundleChecker is the anti-replay table keyed by
// BundleHeaderPreimageHash (spec §4.2 check 3, §9).
type DuplicateBundleChecker interface {
	InboxedBundleAuthor(preimageHash [32]byte) (OperatorId, bool)
}

// VrfVerifier checks the proof-of-election VRF output and its weighted
// threshold (spec §4.2 check 8).
type VrfVerifier interface {
	VerifyVrfProof(signer PublicKey, alpha []byte, output [32]byte, proof [64]byte) bool
	BelowThreshold(output [32]byte, operatorStake, totalStake uint64, slotProbability [2]uint64) bool
}

// PotVerifier checks the proof-of-time freshness witness (spec §4.2 check 7).
type PotVerifier interface {
	VerifyProofOfTime(pot ProofOfTime) bool
}

// BundleLimits bounds a single bundle (spec §4.2 checks 4a/4b). Weight units
// are opaque to consensus; the runtime config supplies both bounds.
type BundleLimits struct {
	MaxBundleSize   uint64
	MaxBundleWeight uint64
	BundleWeight    func(OpaqueBundle) (uint64, error)
}

// BundleValidationDeps bundles every external collaborator validate_bundle
// needs, mirroring the dependency-injected Config/Provider pattern the
// teacher uses for chain validation.
type BundleValidationDeps struct {
	Operators  OperatorLookup
	Signatures SignatureVerifier
	Duplicates DuplicateBundleChecker
	Vrf        VrfVerifier
	Pot        PotVerifier
	BlockTree  *BlockTree
	Limits     BundleLimits

	CurrentSlot     uint64
	BundleLongevity uint64 // max slots a bundle may lag behind CurrentSlot
	TotalStake      uint64
	SlotProbability [2]uint64
}

// ValidateBundle runs the ordered admission pipeline of spec §4.2. Checks
// are stateless-before-stateful and fail fast on the first violation, in the
// exact order: operator lookup/status, signature, anti-replay, size/weight,
// extrinsics root, slot freshness, proof of time, VRF threshold, embedded
// receipt classification.
func ValidateBundle(b OpaqueBundle, mode ValidationMode, deps BundleValidationDeps) error {
	h := b.SealedHeader

	// 1. operator lookup / status
	op, ok := deps.Operators.Operator(h.ProofOfElection.OperatorId)
	if !ok {
		return bundleErr(BundleErrInvalidOperatorId, "operator not found")
	}
	if op.Status != OperatorRegistered {
		return bundleErr(BundleErrBadOperator, "operator is not in Registered status")
	}
	if op.CurrentDomainId != h.ProofOfElection.DomainId {
		return bundleErr(BundleErrInvalidDomainId, "operator not assigned to this domain")
	}

	// 2. signature over the preimage hash, never the signed hash
	preimage := BundleHeaderPreimageHash(h)
	if !deps.Signatures.VerifyBundleSignature(op.SigningKey, preimage, h.Signature) {
		return bundleErr(BundleErrBadBundleSignature, "signature does not verify over preimage hash")
	}

	// 3. anti-replay: the preimage hash must not already be inboxed
	if _, found := deps.Duplicates.InboxedBundleAuthor(preimage); found {
		return bundleErr(BundleErrDuplicatedBundle, "bundle preimage already inboxed")
	}

	// 4. size / weight bounds
	if deps.Limits.MaxBundleSize != 0 && h.BundleSize > deps.Limits.MaxBundleSize {
		return bundleErr(BundleErrBundleTooLarge, "bundle exceeds max size")
	}
	if deps.Limits.BundleWeight != nil {
		w, err := deps.Limits.BundleWeight(b)
		if err != nil {
			return bundleErr(BundleErrUnableToCalculateBundleLimit, err.Error())
		}
		if deps.Limits.MaxBundleWeight != 0 && w > deps.Limits.MaxBundleWeight {
			return bundleErr(BundleErrBundleTooHeavy, "bundle exceeds max weight")
		}
	}

	// 5. extrinsics root recomputation
	root, err := ComputeExtrinsicsRoot(b.EncodedExtrinsics)
	if err != nil {
		return bundleErr(BundleErrInvalidExtrinsicRoot, err.Error())
	}
	if root != h.ExtrinsicsRoot {
		return bundleErr(BundleErrInvalidExtrinsicRoot, "recomputed root mismatch")
	}

	// 6. slot freshness vs BundleLongevity
	if h.SlotNumber > deps.CurrentSlot {
		return bundleErr(BundleErrSlotInTheFuture, "bundle slot ahead of current slot")
	}
	if deps.BundleLongevity != 0 && deps.CurrentSlot-h.SlotNumber > deps.BundleLongevity {
		return bundleErr(BundleErrSlotInThePast, "bundle slot older than BundleLongevity")
	}

	// 7. proof of time
	if !deps.Pot.VerifyProofOfTime(h.ProofOfTime) {
		return bundleErr(BundleErrInvalidProofOfTime, "proof of time does not verify")
	}

	// 8. VRF-weighted election threshold
	alpha := vrfAlpha(h.ProofOfElection.DomainId, h.ProofOfElection.SlotNumber, h.ProofOfTime.PotOutput)
	if !deps.Vrf.VerifyVrfProof(op.SigningKey, alpha, h.ProofOfElection.VrfOutput, h.ProofOfElection.VrfProof) {
		return bundleErr(BundleErrBadVrfSignature, "vrf proof does not verify")
	}
	if !deps.Vrf.BelowThreshold(h.ProofOfElection.VrfOutput, op.CurrentTotalStake, deps.TotalStake, deps.SlotProbability) {
		return bundleErr(BundleErrThresholdUnsatisfied, "vrf output above election threshold")
	}

	// 9. embedded receipt, classified with the same rules as C1
	if deps.BlockTree != nil {
		if _, err := deps.BlockTree.Classify(h.Receipt); err != nil {
			if bte, ok := err.(*BlockTreeError); ok {
				return bundleReceiptErr(bte)
			}
			return bundleErr(BundleErrReceipt, err.Error())
		}
	}

	return nil
}

// vrfAlpha is the VRF input message: domain, slot and the PoT output tie the
// election to a specific, unpredictable-in-advance point in the chain
// (spec §4.2 check 8).
func vrfAlpha(domain DomainId, slot uint64, potOutput [32]byte) []byte {
	out := make([]byte, 0, 48)
	out = appendU64(out, uint64(domain))
	out = appendU64(out, slot)
	out = append(out, potOutput[:]...)
	return out
}
