package consensus

import "testing"

func TestProcessFraudProof_InvalidBlockFees(t *testing.T) {
	lookup := fixedHashLookup{hashes: map[uint64][32]byte{0: {}, 1: {1}}}
	tree, genesis := mustNewTree(t, lookup)

	r1 := receiptAt(1, genesis, [32]byte{1})
	r1.BlockFees = 50
	if _, _, err := tree.Process(r1, OperatorId(7)); err != nil {
		t.Fatal(err)
	}

	fp := FraudProof{
		Domain:            1,
		Kind:              InvalidBlockFees,
		TargetBlockNumber: 1,
		TargetReceiptHash: ExecutionReceiptHash(r1),
		ClaimedBlockFees:  999,
	}
	outcome, err := ProcessFraudProof(fp, tree)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.RevertedToBlockNumber != 0 {
		t.Fatalf("reverted to %d, want 0", outcome.RevertedToBlockNumber)
	}
	if len(outcome.OperatorsToSlash) != 1 || outcome.OperatorsToSlash[0] != 7 {
		t.Fatalf("operators to slash = %v", outcome.OperatorsToSlash)
	}
	if tree.HeadReceiptNumber() != 0 {
		t.Fatalf("head = %d, want 0 after revert", tree.HeadReceiptNumber())
	}
}

func TestProcessFraudProof_RejectsWhenClaimMatches(t *testing.T) {
	lookup := fixedHashLookup{hashes: map[uint64][32]byte{0: {}, 1: {1}}}
	tree, genesis := mustNewTree(t, lookup)

	r1 := receiptAt(1, genesis, [32]byte{1})
	r1.BlockFees = 50
	if _, _, err := tree.Process(r1, OperatorId(7)); err != nil {
		t.Fatal(err)
	}

	fp := FraudProof{
		Domain:            1,
		Kind:              InvalidBlockFees,
		TargetBlockNumber: 1,
		TargetReceiptHash: ExecutionReceiptHash(r1),
		ClaimedBlockFees:  50,
	}
	_, err := ProcessFraudProof(fp, tree)
	fpe, ok := err.(*FraudProofError)
	if !ok || fpe.Code != FraudProofErrBadProof {
		t.Fatalf("expected BadProof, got %v", err)
	}
}

func TestProcessFraudProof_GenesisNotChallengeable(t *testing.T) {
	lookup := fixedHashLookup{hashes: map[uint64][32]byte{0: {}}}
	tree, genesis := mustNewTree(t, lookup)

	fp := FraudProof{
		Domain:            1,
		Kind:              InvalidBlockFees,
		TargetBlockNumber: 0,
		TargetReceiptHash: ExecutionReceiptHash(genesis),
	}
	_, err := ProcessFraudProof(fp, tree)
	fpe, ok := err.(*FraudProofError)
	if !ok || fpe.Code != FraudProofErrBadTargetReceipt {
		t.Fatalf("expected BadTargetReceipt, got %v", err)
	}
}

// TestProcessFraudProof_LeavesDescendantsAsOrphans mirrors spec scenario S3:
// a chain at 11/12/13 with a fraud proof against 12 must delete only node
// 12, drop head to 11, and leave node 13 in place as an orphan pending lazy
// collection.
func TestProcessFraudProof_LeavesDescendantsAsOrphans(t *testing.T) {
	lookup := fixedHashLookup{hashes: map[uint64][32]byte{0: {}, 1: {1}, 2: {2}, 3: {3}}}
	tree, genesis := mustNewTree(t, lookup)

	r1 := receiptAt(1, genesis, [32]byte{1})
	if _, _, err := tree.Process(r1, OperatorId(1)); err != nil {
		t.Fatal(err)
	}
	r2 := receiptAt(2, r1, [32]byte{2})
	if _, _, err := tree.Process(r2, OperatorId(2)); err != nil {
		t.Fatal(err)
	}
	r3 := receiptAt(3, r2, [32]byte{3})
	if _, _, err := tree.Process(r3, OperatorId(3)); err != nil {
		t.Fatal(err)
	}

	fp := FraudProof{
		Domain:                 1,
		Kind:                   InvalidStateTransition,
		TargetBlockNumber:      2,
		TargetReceiptHash:      ExecutionReceiptHash(r2),
		ClaimedFinalStateRoot:  [32]byte{0xff},
	}
	outcome, err := ProcessFraudProof(fp, tree)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.RevertedToBlockNumber != 1 {
		t.Fatalf("reverted to %d, want 1", outcome.RevertedToBlockNumber)
	}
	if len(outcome.OperatorsToSlash) != 1 || outcome.OperatorsToSlash[0] != 2 {
		t.Fatalf("operators to slash = %v, want [2]", outcome.OperatorsToSlash)
	}
	if tree.HeadReceiptNumber() != 1 {
		t.Fatalf("head = %d, want 1", tree.HeadReceiptNumber())
	}
	if _, ok := tree.NodeAt(2); ok {
		t.Fatalf("node 2 should have been deleted")
	}
	if _, ok := tree.NodeAt(3); !ok {
		t.Fatalf("node 3 should still be present (not eagerly deleted)")
	}
	if !tree.IsBadPendingPrune(3) {
		t.Fatalf("node 3 should be reported as pending prune")
	}
}

func TestProcessFraudProof_BundleEquivocation(t *testing.T) {
	lookup := fixedHashLookup{hashes: map[uint64][32]byte{0: {}, 1: {1}}}
	tree, genesis := mustNewTree(t, lookup)
	r1 := receiptAt(1, genesis, [32]byte{1})
	if _, _, err := tree.Process(r1, OperatorId(3)); err != nil {
		t.Fatal(err)
	}

	first := SealedBundleHeader{ProofOfElection: ProofOfElection{OperatorId: 3}, SlotNumber: 10, BundleSize: 1}
	second := SealedBundleHeader{ProofOfElection: ProofOfElection{OperatorId: 3}, SlotNumber: 10, BundleSize: 2}

	fp := FraudProof{
		Domain:             1,
		Kind:               BundleEquivocation,
		TargetBlockNumber:  1,
		TargetReceiptHash:  ExecutionReceiptHash(r1),
		EquivocationFirst:  first,
		EquivocationSecond: second,
	}
	outcome, err := ProcessFraudProof(fp, tree)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.OperatorsToSlash) != 1 || outcome.OperatorsToSlash[0] != 3 {
		t.Fatalf("expected operator 3 slashed, got %v", outcome.OperatorsToSlash)
	}
	if len(outcome.PrunedNodes) != 0 {
		t.Fatalf("equivocation must not prune the block tree, got %d pruned", len(outcome.PrunedNodes))
	}
	if tree.HeadReceiptNumber() != 1 {
		t.Fatalf("head should be unchanged by equivocation proof, got %d", tree.HeadReceiptNumber())
	}
}
