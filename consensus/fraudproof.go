package consensus

import "fmt"

// FraudProofErrorCode enumerates validation failures for fraud proofs
// themselves (spec §4.3): a malformed or stale proof is rejected before its
// claim is ever checked against the targeted receipt.
type FraudProofErrorCode string

const (
	FraudProofErrBadTargetReceipt    FraudProofErrorCode = "BAD_TARGET_RECEIPT"
	FraudProofErrParentReceiptNotFound FraudProofErrorCode = "PARENT_RECEIPT_NOT_FOUND"
	FraudProofErrTargetReceiptNotFound FraudProofErrorCode = "TARGET_RECEIPT_NOT_FOUND"
	FraudProofErrAlreadyPruned       FraudProofErrorCode = "ALREADY_PRUNED"
	FraudProofErrBadProof            FraudProofErrorCode = "BAD_PROOF"
	FraudProofErrDomainNotFound      FraudProofErrorCode = "DOMAIN_NOT_FOUND"
)

type FraudProofError struct {
	Code FraudProofErrorCode
	Msg  string
}

func (e *FraudProofError) Error() string { return fmt.Sprintf("fraud_proof: %s: %s", e.Code, e.Msg) }

func fraudProofErr(code FraudProofErrorCode, msg string) *FraudProofError {
	return &FraudProofError{Code: code, Msg: msg}
}

// FraudProofKind is the tagged variant of a fraud proof (spec §4.3).
type FraudProofKind int

const (
	InvalidBlockFees FraudProofKind = iota
	InvalidTransfers
	InvalidDomainBlockHash
	InvalidExtrinsicsRoot
	InvalidStateTransition
	InvalidBundles
	ValidBundle
	BundleEquivocation
)

// FraudProof targets a single execution receipt in a single domain's block
// tree. Kind-specific evidence lives in the Witness fields; only the fields
// relevant to Kind are populated by the caller (spec §4.3).
type FraudProof struct {
	Domain           DomainId
	Kind             FraudProofKind
	TargetBlockNumber uint64
	TargetReceiptHash [32]byte

	// InvalidBlockFees / InvalidTransfers: the claimed correct value,
	// checked against what the receipt actually recorded.
	ClaimedBlockFees  uint64
	ClaimedTransfers  TransferSummary

	// InvalidDomainBlockHash / InvalidExtrinsicsRoot / InvalidStateTransition:
	// the recomputed value the proof claims is correct.
	ClaimedDomainBlockHash [32]byte
	ClaimedExtrinsicsRoot  [32]byte
	ClaimedFinalStateRoot  [32]byte

	// InvalidBundles: index of the bundle inside the domain block whose
	// inclusion or exclusion the receipt got wrong.
	BundleIndex uint64

	// ValidBundle: the honest bundle digest proving a bundle the receipt
	// marked invalid was in fact valid.
	ValidBundleDigest BundleDigest

	// BundleEquivocation: two sealed headers signed by the same operator
	// for the same slot.
	EquivocationFirst  SealedBundleHeader
	EquivocationSecond SealedBundleHeader
}

// FraudProofOutcome is what accepting a fraud proof does to chain state
// (spec §4.3): the offending branch of the block tree is reverted back to
// the parent of the targeted receipt, and every operator who submitted the
// bad receipt (or, for BundleEquivocation, the double-signer) is flagged for
// retroactive slashing.
type FraudProofOutcome struct {
	RevertedToBlockNumber uint64
	PrunedNodes           []*BlockTreeNode
	OperatorsToSlash      []OperatorId
}

// ProcessFraudProof validates fp against tree and, if the claim holds,
// reverts the block tree and returns the operators to slash. It fails fast:
// structural checks (proof well-formed, target exists, not already pruned)
// run before the kind-specific claim is evaluated (spec §4.3).
func ProcessFraudProof(fp FraudProof, tree *BlockTree) (*FraudProofOutcome, error) {
	if fp.TargetBlockNumber == 0 {
		return nil, fraudProofErr(FraudProofErrBadTargetReceipt, "genesis receipt cannot be challenged")
	}

	if tree.IsBadPendingPrune(fp.TargetBlockNumber) {
		return nil, fraudProofErr(FraudProofErrAlreadyPruned, "target already pending prune")
	}
	node, ok := tree.NodeAt(fp.TargetBlockNumber)
	if !ok {
		return nil, fraudProofErr(FraudProofErrTargetReceiptNotFound, "no node at target block number")
	}
	if ExecutionReceiptHash(node.Receipt) != fp.TargetReceiptHash {
		return nil, fraudProofErr(FraudProofErrTargetReceiptNotFound, "receipt hash mismatch at target")
	}

	if _, ok := tree.NodeAt(fp.TargetBlockNumber - 1); !ok && fp.TargetBlockNumber-1 != 0 {
		return nil, fraudProofErr(FraudProofErrParentReceiptNotFound, "parent of target not found")
	}

	valid, err := evaluateFraudProofClaim(fp, node)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fraudProofErr(FraudProofErrBadProof, "claim does not hold against targeted receipt")
	}

	operatorsToSlash := make([]OperatorId, 0, len(node.Submitters))
	if fp.Kind == BundleEquivocation {
		operatorsToSlash = append(operatorsToSlash, fp.EquivocationFirst.ProofOfElection.OperatorId)
	} else {
		for id := range node.Submitters {
			operatorsToSlash = append(operatorsToSlash, id)
		}
	}

	pruned := make([]*BlockTreeNode, 0, 1)
	if fp.Kind != BundleEquivocation {
		// Only the targeted node is deleted (spec §4.1, §4.3). Descendants
		// above it are left in place as orphans: head_receipt_number drops
		// below them and IsBadPendingPrune reports them until new receipts
		// arrive and collect them lazily (S3).
		n, err := tree.Prune(fp.TargetBlockNumber)
		if err != nil {
			return nil, fraudProofErr(FraudProofErrBadProof, err.Error())
		}
		pruned = append(pruned, n)
	}

	return &FraudProofOutcome{
		RevertedToBlockNumber: fp.TargetBlockNumber - 1,
		PrunedNodes:           pruned,
		OperatorsToSlash:      operatorsToSlash,
	}, nil
}

// evaluateFraudProofClaim checks the kind-specific assertion against the
// targeted receipt. It never re-executes the domain block; it compares the
// receipt's recorded values against the claim, exactly as the runtime-side
// fraud-proof checker does for InvalidStateTransition (spec §4.3: "the
// runtime module does not re-execute; re-execution is the executor's job").
func evaluateFraudProofClaim(fp FraudProof, node *BlockTreeNode) (bool, error) {
	r := node.Receipt
	switch fp.Kind {
	case InvalidBlockFees:
		return r.BlockFees != fp.ClaimedBlockFees, nil
	case InvalidTransfers:
		return r.Transfers != fp.ClaimedTransfers, nil
	case InvalidDomainBlockHash:
		return r.DomainBlockHash != fp.ClaimedDomainBlockHash, nil
	case InvalidExtrinsicsRoot:
		return r.ExtrinsicsRoot != fp.ClaimedExtrinsicsRoot, nil
	case InvalidStateTransition:
		return r.FinalStateRoot != fp.ClaimedFinalStateRoot, nil
	case InvalidBundles:
		return fp.BundleIndex < uint64(len(r.BundleDigests)), nil
	case ValidBundle:
		for _, d := range r.BundleDigests {
			if d == fp.ValidBundleDigest {
				return false, nil
			}
		}
		return true, nil
	case BundleEquivocation:
		a, b := fp.EquivocationFirst, fp.EquivocationSecond
		sameSigner := a.ProofOfElection.OperatorId == b.ProofOfElection.OperatorId
		sameSlot := a.SlotNumber == b.SlotNumber
		different := BundleHeaderPreimageHash(a) != BundleHeaderPreimageHash(b)
		return sameSigner && sameSlot && different, nil
	default:
		return false, fmt.Errorf("fraud_proof: unknown kind %d", fp.Kind)
	}
}
