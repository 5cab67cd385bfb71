package runtime

import (
	"testing"

	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"
)

type alwaysSig struct{ ok bool }

func (a alwaysSig) VerifyBundleSignature(_ consensus.PublicKey, _ [32]byte, _ [64]byte) bool {
	return a.ok
}

type alwaysVrf struct{}

func (alwaysVrf) VerifyVrfProof(_ consensus.PublicKey, _ []byte, _ [32]byte, _ [64]byte) bool {
	return true
}
func (alwaysVrf) BelowThreshold(_ [32]byte, _, _ uint64, _ [2]uint64) bool { return true }

type alwaysPot struct{}

func (alwaysPot) VerifyProofOfTime(_ consensus.ProofOfTime) bool { return true }

// mustState builds an empty aggregate with confirmation depth zero and a
// one-block epoch, so SubmitBundle's NewHead path confirms and transitions
// the epoch inline without needing several rounds of setup (mirrors S5).
func mustState(t *testing.T) *State {
	t.Helper()
	ledger, err := staking.NewLedger(staking.Config{MinOperatorStake: 10, MaxNominators: 8})
	if err != nil {
		t.Fatal(err)
	}
	fund := storagefund.NewFund(storagefund.Config{ChargePerByte: 1, ProtocolShareNumerator: 1, ProtocolShareDenominator: 10})
	params := DefaultParams()
	params.ConfirmationDepth = 0
	params.StakeEpochDuration = 1
	return NewState(ledger, fund, params)
}

func mustDomain(t *testing.T, s *State) (consensus.DomainId, consensus.OperatorId, consensus.PublicKey) {
	t.Helper()
	rt := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)
	domain, err := s.InstantiateDomain(consensus.AccountId{9}, rt)
	if err != nil {
		t.Fatal(err)
	}
	signingKey := consensus.PublicKey{7}
	opID, err := s.RegisterOperator(consensus.AccountId{9}, domain, signingKey, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	return domain, opID, signingKey
}

func signedBundle(t *testing.T, s *State, domain consensus.DomainId, op consensus.OperatorId, signingKey consensus.PublicKey) consensus.OpaqueBundle {
	t.Helper()
	genesis, ok := s.BlockTrees[domain].NodeAt(0)
	if !ok {
		t.Fatal("no genesis node")
	}
	s.ConsensusBlockHash[domain][1] = [32]byte{0xAB}

	extrinsics := [][]byte{{1, 2, 3}}
	root, err := consensus.ComputeExtrinsicsRoot(extrinsics)
	if err != nil {
		t.Fatal(err)
	}
	receipt := consensus.ExecutionReceipt{
		ConsensusBlockNumber:         1,
		ConsensusBlockHash:           [32]byte{0xAB},
		DomainBlockNumber:            1,
		ParentDomainBlockReceiptHash: consensus.ExecutionReceiptHash(genesis.Receipt),
		ExtrinsicsRoot:               root,
	}
	h := consensus.SealedBundleHeader{
		ProofOfElection: consensus.ProofOfElection{DomainId: domain, SlotNumber: 10, OperatorId: op},
		ProofOfTime:     consensus.ProofOfTime{SlotNumber: 10},
		SlotNumber:      10,
		ExtrinsicsRoot:  root,
		BundleSize:      3,
		Receipt:         receipt,
	}
	return consensus.OpaqueBundle{SealedHeader: h, EncodedExtrinsics: extrinsics}
}

func TestSubmitBundle_ConfirmsAndTransitionsEpoch(t *testing.T) {
	s := mustState(t)
	domain, op, signingKey := mustDomain(t, s)
	bundle := signedBundle(t, s, domain, op, signingKey)

	evt, err := s.SubmitBundle(domain, bundle, 10, 1, alwaysSig{ok: true}, alwaysVrf{}, alwaysPot{}, consensus.BundleLimits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.BlockNumber != 1 {
		t.Fatalf("BlockNumber = %d, want 1", evt.BlockNumber)
	}
	tree := s.BlockTrees[domain]
	if tree.HeadReceiptNumber() != 1 {
		t.Fatalf("head = %d, want 1", tree.HeadReceiptNumber())
	}
	if s.LatestConfirmedDomainBlock[domain] != 1 {
		t.Fatalf("latest confirmed = %d, want 1", s.LatestConfirmedDomainBlock[domain])
	}
	if _, ok := s.LastEpochStakingDistribution[domain]; !ok {
		t.Fatal("expected an epoch transition to have recorded a staking distribution")
	}
}

func TestSubmitBundle_ConfirmationDistributesRewardsAndRefundsStorageFee(t *testing.T) {
	s := mustState(t)
	domain, op, signingKey := mustDomain(t, s)

	// A bundle charged against an earlier (unmodeled) block, still escrowed,
	// becomes refundable once a receipt naming it confirms.
	priorBundleHash := [32]byte{0xEE}
	if _, err := s.Fund.ChargeForBundle(op, priorBundleHash, 40); err != nil {
		t.Fatal(err)
	}
	balanceBefore := s.Fund.Balance(op)

	genesis, ok := s.BlockTrees[domain].NodeAt(0)
	if !ok {
		t.Fatal("no genesis node")
	}
	s.ConsensusBlockHash[domain][1] = [32]byte{0xAB}

	extrinsics := [][]byte{{1, 2, 3}}
	root, err := consensus.ComputeExtrinsicsRoot(extrinsics)
	if err != nil {
		t.Fatal(err)
	}
	receipt := consensus.ExecutionReceipt{
		ConsensusBlockNumber:         1,
		ConsensusBlockHash:           [32]byte{0xAB},
		DomainBlockNumber:            1,
		ParentDomainBlockReceiptHash: consensus.ExecutionReceiptHash(genesis.Receipt),
		ExtrinsicsRoot:               root,
		BlockFees:                    99,
		BundleDigests:                []consensus.BundleDigest{{BundleHeaderHash: priorBundleHash}},
	}
	h := consensus.SealedBundleHeader{
		ProofOfElection: consensus.ProofOfElection{DomainId: domain, SlotNumber: 10, OperatorId: op},
		ProofOfTime:     consensus.ProofOfTime{SlotNumber: 10},
		SlotNumber:      10,
		ExtrinsicsRoot:  root,
		BundleSize:      3,
		Receipt:         receipt,
	}
	bundle := consensus.OpaqueBundle{SealedHeader: h, EncodedExtrinsics: extrinsics}

	opBefore, _ := s.Ledger.Operator(op)
	stakeBefore := opBefore.CurrentTotalStake

	if _, serr := s.SubmitBundle(domain, bundle, 10, 1, alwaysSig{ok: true}, alwaysVrf{}, alwaysPot{}, consensus.BundleLimits{}); serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}

	// ConfirmationDepth is 0 so block 1 confirms inline; op is the sole
	// submitter, so the whole 99-unit reward lands on it with no tax
	// (mustDomain registers a zero NominationTax).
	opAfter, _ := s.Ledger.Operator(op)
	if want := stakeBefore + 99; opAfter.CurrentTotalStake != want {
		t.Fatalf("CurrentTotalStake = %d, want %d (stake + full reward)", opAfter.CurrentTotalStake, want)
	}

	// This submission's own 3-byte charge is never refunded (its digest
	// isn't in the confirmed receipt's BundleDigests); priorBundleHash's
	// 40-unit escrow is, minus the fund's 1/10 protocol cut.
	if want := balanceBefore - 3 + 36; s.Fund.Balance(op) != want {
		t.Fatalf("Fund balance = %d, want %d", s.Fund.Balance(op), want)
	}

	var rewarded bool
	for _, e := range s.Events {
		if r, ok := e.(OperatorRewarded); ok && r.Operator == op && r.Amount == 99 {
			rewarded = true
		}
	}
	if !rewarded {
		t.Fatal("expected an OperatorRewarded event for the sole submitter")
	}
}

func TestSubmitBundle_BadSignatureRejected(t *testing.T) {
	s := mustState(t)
	domain, op, signingKey := mustDomain(t, s)
	bundle := signedBundle(t, s, domain, op, signingKey)

	_, err := s.SubmitBundle(domain, bundle, 10, 1, alwaysSig{ok: false}, alwaysVrf{}, alwaysPot{}, consensus.BundleLimits{})
	if err == nil {
		t.Fatal("expected a rejection for a bad signature")
	}
	if err.Subsystem != SubsystemBlockTree {
		t.Fatalf("subsystem = %v, want SubsystemBlockTree", err.Subsystem)
	}
}

func TestSubmitBundle_UnknownDomainRejected(t *testing.T) {
	s := mustState(t)
	bundle := consensus.OpaqueBundle{}
	_, err := s.SubmitBundle(99, bundle, 10, 1, alwaysSig{ok: true}, alwaysVrf{}, alwaysPot{}, consensus.BundleLimits{})
	if err == nil {
		t.Fatal("expected an error for an unknown domain")
	}
}

func TestSubmitFraudProof_SlashesAndLowersHead(t *testing.T) {
	s := mustState(t)
	domain, op, signingKey := mustDomain(t, s)
	bundle := signedBundle(t, s, domain, op, signingKey)
	if _, err := s.SubmitBundle(domain, bundle, 10, 1, alwaysSig{ok: true}, alwaysVrf{}, alwaysPot{}, consensus.BundleLimits{}); err != nil {
		t.Fatal(err)
	}

	tree := s.BlockTrees[domain]
	targetNode, ok := tree.NodeAt(1)
	if !ok {
		t.Fatal("expected node 1 to exist")
	}
	fp := consensus.FraudProof{
		Domain:                domain,
		Kind:                  consensus.InvalidStateTransition,
		TargetBlockNumber:     1,
		TargetReceiptHash:     consensus.ExecutionReceiptHash(targetNode.Receipt),
		ClaimedFinalStateRoot: [32]byte{0xFF},
	}
	if err := s.SubmitFraudProof(domain, fp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.HeadReceiptNumber() != 0 {
		t.Fatalf("head = %d, want 0", tree.HeadReceiptNumber())
	}
	if len(s.PendingSlashes[domain]) != 1 || s.PendingSlashes[domain][0].Operator != op {
		t.Fatalf("pending slashes = %v, want operator %d slashed", s.PendingSlashes[domain], op)
	}
}

func TestRegisterOperator_CreditsFundAndTracksNextOperators(t *testing.T) {
	s := mustState(t)
	rt := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)
	domain, err := s.InstantiateDomain(consensus.AccountId{1}, rt)
	if err != nil {
		t.Fatal(err)
	}
	opID, err := s.RegisterOperator(consensus.AccountId{1}, domain, consensus.PublicKey{2}, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Fund.Balance(opID) != 100 {
		t.Fatalf("fund balance = %d, want 100", s.Fund.Balance(opID))
	}
	if _, ok := s.stakingSummary(domain).NextOperators[opID]; !ok {
		t.Fatal("expected operator queued into NextOperators")
	}
}

func TestInstantiateDomain_PermissionedRejectsUnlisted(t *testing.T) {
	s := mustState(t)
	rt := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)
	s.SetPermissionedActionAllowedBy("instantiate_domain", []consensus.AccountId{{1}})

	if _, err := s.InstantiateDomain(consensus.AccountId{2}, rt); err == nil {
		t.Fatal("expected account not on allow-list to be rejected")
	}
	if _, err := s.InstantiateDomain(consensus.AccountId{1}, rt); err != nil {
		t.Fatalf("unexpected error for allow-listed account: %v", err)
	}
}

func TestUpgradeDomainRuntime_AppliesOnInitialize(t *testing.T) {
	s := mustState(t)
	rt := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)

	if err := s.UpgradeDomainRuntime(rt, 50, [32]byte{2}, 2); err != nil {
		t.Fatal(err)
	}
	if s.RuntimeRegistry[rt].Version != 1 {
		t.Fatalf("version should not change before on-initialize, got %d", s.RuntimeRegistry[rt].Version)
	}
	s.OnInitialize(50)
	if s.RuntimeRegistry[rt].Version != 2 {
		t.Fatalf("version = %d, want 2", s.RuntimeRegistry[rt].Version)
	}
	if len(s.ScheduledRuntimeUpgrades[50]) != 0 {
		t.Fatal("scheduled upgrade queue should be drained after on-initialize")
	}
}

func TestForceStakingEpochTransition_RotatesOperators(t *testing.T) {
	s := mustState(t)
	domain, op, _ := mustDomain(t, s)

	if err := s.ForceStakingEpochTransition(domain); err != nil {
		t.Fatal(err)
	}
	summary := s.stakingSummary(domain)
	if _, ok := summary.CurrentOperators[op]; !ok {
		t.Fatalf("expected operator %d rotated into CurrentOperators", op)
	}
}

func TestRegisterDomainRuntime_AllocatesEVMChainIdOnlyForEVM(t *testing.T) {
	s := mustState(t)
	first := s.NextEVMChainId

	evmRT := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)
	if got := s.RuntimeRegistry[evmRT].EVMChainId; got != first {
		t.Fatalf("evm chain id = %d, want %d", got, first)
	}
	if s.NextEVMChainId != first+1 {
		t.Fatalf("NextEVMChainId = %d, want %d", s.NextEVMChainId, first+1)
	}

	otherRT := s.RegisterDomainRuntime("wasm", [32]byte{2}, 1)
	if got := s.RuntimeRegistry[otherRT].EVMChainId; got != 0 {
		t.Fatalf("non-evm runtime should get no chain id, got %d", got)
	}
	if s.NextEVMChainId != first+1 {
		t.Fatalf("NextEVMChainId should not advance for a non-evm runtime, got %d", s.NextEVMChainId)
	}
}

func TestRequestOperatorSwitch_AppliesOnTargetDomainAtNextEpoch(t *testing.T) {
	s := mustState(t)
	domain1, op, _ := mustDomain(t, s)

	rt2 := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{9}, 1)
	domain2, err := s.InstantiateDomain(consensus.AccountId{9}, rt2)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RequestOperatorSwitch(op, domain2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending := s.PendingOperatorSwitches[domain1]
	if len(pending) != 1 || pending[0] != op {
		t.Fatalf("PendingOperatorSwitches[domain1] = %v, want [%d]", pending, op)
	}

	if err := s.ForceStakingEpochTransition(domain1); err != nil {
		t.Fatal(err)
	}

	ledgerOp, ok := s.Ledger.Operator(op)
	if !ok {
		t.Fatal("operator disappeared")
	}
	if ledgerOp.CurrentDomainId != domain2 {
		t.Fatalf("CurrentDomainId = %d, want %d", ledgerOp.CurrentDomainId, domain2)
	}
	if ledgerOp.PendingSwitchTo != nil {
		t.Fatalf("expected PendingSwitchTo cleared, got %v", *ledgerOp.PendingSwitchTo)
	}
	if _, ok := s.stakingSummary(domain1).CurrentOperators[op]; ok {
		t.Fatal("switched operator should not remain in the source domain's CurrentOperators")
	}
	if _, ok := s.stakingSummary(domain2).NextOperators[op]; !ok {
		t.Fatal("switched operator should be queued into the target domain's NextOperators")
	}
}

func TestCancelOperatorSwitch_OperatorStaysInSourceDomain(t *testing.T) {
	s := mustState(t)
	domain1, op, _ := mustDomain(t, s)

	rt2 := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{9}, 1)
	domain2, err := s.InstantiateDomain(consensus.AccountId{9}, rt2)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RequestOperatorSwitch(op, domain2); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelOperatorSwitch(op); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.PendingOperatorSwitches[domain1]) != 0 {
		t.Fatalf("expected pending switch cleared, got %v", s.PendingOperatorSwitches[domain1])
	}

	if err := s.ForceStakingEpochTransition(domain1); err != nil {
		t.Fatal(err)
	}
	ledgerOp, _ := s.Ledger.Operator(op)
	if ledgerOp.CurrentDomainId != domain1 {
		t.Fatalf("CurrentDomainId = %d, want unchanged %d", ledgerOp.CurrentDomainId, domain1)
	}
	if _, ok := s.stakingSummary(domain1).CurrentOperators[op]; !ok {
		t.Fatal("operator should remain in source domain's CurrentOperators after cancelling")
	}
}

func TestRequestOperatorSwitch_UnknownOperatorRejected(t *testing.T) {
	s := mustState(t)
	rt := s.RegisterDomainRuntime(RuntimeTypeEVM, [32]byte{1}, 1)
	domain, err := s.InstantiateDomain(consensus.AccountId{1}, rt)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RequestOperatorSwitch(9999, domain); err == nil {
		t.Fatal("expected an error for an unknown operator")
	}
}
