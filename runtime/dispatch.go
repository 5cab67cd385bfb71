package runtime

import (
	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/txrange"
)

// dupChecker adapts State's InboxedBundleAuthor table to
// consensus.DuplicateBundleChecker; a plain method can't share the field's
// name on the same receiver.
type dupChecker struct{ s *State }

func (d dupChecker) InboxedBundleAuthor(preimage [32]byte) (consensus.OperatorId, bool) {
	id, ok := d.s.InboxedBundleAuthor[preimage]
	return id, ok
}

func (s *State) stakingSummary(domain consensus.DomainId) *consensus.StakingSummary {
	sum, ok := s.DomainStakingSummary[domain]
	if !ok {
		sum = &consensus.StakingSummary{
			CurrentOperators: map[consensus.OperatorId]uint64{},
			NextOperators:    map[consensus.OperatorId]struct{}{},
		}
		s.DomainStakingSummary[domain] = sum
	}
	return sum
}

// SubmitBundle is dispatch index 0. It validates the bundle through
// consensus.ValidateBundle, charges the storage fee, appends to the
// execution inbox and block tree, and records the sealed header's preimage
// hash as the anti-replay key (spec §6, §4.2).
func (s *State) SubmitBundle(
	domain consensus.DomainId,
	bundle consensus.OpaqueBundle,
	currentSlot, currentConsensusBlock uint64,
	sigVerifier consensus.SignatureVerifier,
	vrf consensus.VrfVerifier,
	pot consensus.PotVerifier,
	limits consensus.BundleLimits,
) (*BundleStored, *Error) {
	tree, ok := s.BlockTrees[domain]
	if !ok {
		return nil, errOf(SubsystemBlockTree, string(consensus.ErrUnknownDomain), "domain has no block tree")
	}

	h := bundle.SealedHeader
	preimage := consensus.BundleHeaderPreimageHash(h)

	deps := consensus.BundleValidationDeps{
		Operators:       s.Ledger,
		Signatures:      sigVerifier,
		Duplicates:      dupChecker{s},
		Vrf:             vrf,
		Pot:             pot,
		BlockTree:       tree,
		Limits:          limits,
		CurrentSlot:     currentSlot,
		BundleLongevity: s.BundleLongevity,
		TotalStake:      s.TotalStake,
		SlotProbability: s.SlotProbability,
	}
	if err := consensus.ValidateBundle(bundle, consensus.PreDispatch, deps); err != nil {
		return nil, wrap(SubsystemBlockTree, err)
	}

	charged, ferr := s.Fund.ChargeForBundle(h.ProofOfElection.OperatorId, preimage, h.BundleSize)
	if ferr != nil {
		return nil, wrap(SubsystemBundleStorageFund, ferr)
	}
	s.emit(StorageFeeDeposited{Operator: h.ProofOfElection.OperatorId, Amount: charged})

	kind, confirmed, rerr := tree.Process(h.Receipt, h.ProofOfElection.OperatorId)
	if rerr != nil {
		return nil, wrap(SubsystemBlockTree, rerr)
	}

	s.InboxedBundleAuthor[preimage] = h.ProofOfElection.OperatorId
	key := inboxKey{Domain: domain, DomainBlockNumber: h.Receipt.DomainBlockNumber, ConsensusBlockNumber: currentConsensusBlock}
	s.ExecutionInbox[key] = append(s.ExecutionInbox[key], consensus.BundleDigest{
		BundleHeaderHash: preimage,
		ExtrinsicsRoot:   h.ExtrinsicsRoot,
		Size:             h.BundleSize,
	})
	s.SuccessfulBundles[domain] = append(s.SuccessfulBundles[domain], preimage)

	if kind == consensus.ReceiptNewHead {
		s.HeadDomainNumber[domain] = tree.HeadReceiptNumber()
		if confirmed != nil {
			s.LatestConfirmedDomainBlock[domain] = confirmed.DomainBlockNumber
			s.settleConfirmation(domain, confirmed)
			if err := s.maybeTransitionEpoch(domain); err != nil {
				return nil, err
			}
		}
	}

	evt := &BundleStored{Domain: domain, BlockNumber: h.Receipt.DomainBlockNumber, BundleHash: preimage}
	s.emit(*evt)
	return evt, nil
}

// settleConfirmation applies the two effects a confirmed domain block
// triggers on its own, independent of whether this confirmation also happens
// to land on an epoch boundary (spec §4.5 step 1, §4.6): the confirmed
// block's BlockFees share accrues into PendingRewards for the next epoch
// transition to distribute, and every bundle folded into the confirmed
// receipt has its storage-fee escrow released back to its operator.
func (s *State) settleConfirmation(domain consensus.DomainId, confirmed *consensus.ConfirmedInfo) {
	if len(confirmed.Rewards) > 0 {
		pending, ok := s.PendingRewards[domain]
		if !ok {
			pending = map[consensus.OperatorId]uint64{}
			s.PendingRewards[domain] = pending
		}
		for id, amount := range confirmed.Rewards {
			pending[id] += amount
		}
	}
	for _, digest := range confirmed.BundleHashes {
		// Refund error means the hash was never charged (genesis-style
		// synthetic receipts, or a hash this state never saw submitted) or
		// was already refunded; neither is a failure worth surfacing here.
		_, _, _ = s.Fund.RefundOnConfirmation(digest.BundleHeaderHash)
	}
}

// maybeTransitionEpoch checks whether the domain's epoch duration has
// elapsed since the last transition and, if so, runs the epoch engine
// (spec §4.5, S5: "submit a bundle that causes confirmation" triggers the
// transition inline, not on a separate block).
func (s *State) maybeTransitionEpoch(domain consensus.DomainId) *Error {
	if s.StakeEpochDuration == 0 {
		return nil
	}
	confirmed := s.LatestConfirmedDomainBlock[domain]
	if confirmed == 0 || confirmed%s.StakeEpochDuration != 0 {
		return nil
	}
	return s.forceEpochTransition(domain)
}

func (s *State) forceEpochTransition(domain consensus.DomainId) *Error {
	summary := s.stakingSummary(domain)

	dist := make(map[consensus.OperatorId]uint64, len(summary.CurrentOperators))
	for id, stake := range summary.CurrentOperators {
		dist[id] = stake
	}
	s.LastEpochStakingDistribution[domain] = dist

	var slashed []consensus.OperatorId
	reasons := map[consensus.OperatorId]SlashReason{}
	for _, entry := range s.PendingSlashes[domain] {
		slashed = append(slashed, entry.Operator)
		reasons[entry.Operator] = entry.Reason
	}
	delete(s.PendingSlashes, domain)

	candidates := make([]consensus.OperatorId, 0, len(summary.NextOperators))
	for id := range summary.NextOperators {
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		for id := range summary.CurrentOperators {
			candidates = append(candidates, id)
		}
	}

	// An operator with a pending cross-domain switch leaves this domain's
	// rotation here and is queued into the target domain's next_operators
	// instead, never re-entering this domain's current_operators (spec
	// §4.4: "moved to the new domain's next_operators on the next
	// transition, not immediately").
	nextOperators := candidates[:0]
	for _, id := range candidates {
		op, ok := s.Ledger.Operator(id)
		if ok && op.PendingSwitchTo != nil {
			target := *op.PendingSwitchTo
			s.Ledger.ApplySwitch(id, target)
			s.stakingSummary(target).NextOperators[id] = struct{}{}
			continue
		}
		nextOperators = append(nextOperators, id)
	}

	rewards := s.PendingRewards[domain]
	delete(s.PendingRewards, domain)

	engine := &staking.EpochEngine{Ledger: s.Ledger}
	completed, err := engine.TransitionEpoch(domain, summary, rewards, slashed, nextOperators)
	if err != nil {
		return wrap(SubsystemStakingEpoch, err)
	}

	for _, id := range slashed {
		s.emit(OperatorSlashedEvent{Operator: id, Reason: reasons[id]})
	}
	for id, amount := range completed.RewardedOperators {
		s.emit(OperatorRewarded{Operator: id, Amount: amount})
		if tax := completed.Taxes[id]; tax > 0 {
			s.emit(OperatorTaxCollected{Operator: id, Amount: tax})
		}
	}
	s.emit(DomainEpochCompletedEvent{Domain: domain, EpochIndex: completed.CompletedEpoch})
	return nil
}

// SubmitFraudProof is dispatch index 1.
func (s *State) SubmitFraudProof(domain consensus.DomainId, fp consensus.FraudProof) *Error {
	tree, ok := s.BlockTrees[domain]
	if !ok {
		return errOf(SubsystemBlockTree, string(consensus.ErrUnknownDomain), "domain has no block tree")
	}
	outcome, err := consensus.ProcessFraudProof(fp, tree)
	if err != nil {
		return wrap(SubsystemFraudProof, err)
	}

	reason := SlashBadExecutionReceipt
	if fp.Kind == consensus.BundleEquivocation {
		reason = SlashBundleEquivocation
	} else if fp.Kind == consensus.InvalidBundles {
		reason = SlashInvalidBundle
	}
	for _, id := range outcome.OperatorsToSlash {
		s.PendingSlashes[domain] = append(s.PendingSlashes[domain], SlashEntry{Operator: id, Reason: reason})
	}
	s.HeadDomainNumber[domain] = tree.HeadReceiptNumber()
	s.SuccessfulFraudProofs[domain] = append(s.SuccessfulFraudProofs[domain], fp.TargetReceiptHash)

	var newHead *uint64
	if fp.Kind != consensus.BundleEquivocation {
		h := tree.HeadReceiptNumber()
		newHead = &h
	}
	s.emit(FraudProofProcessed{Domain: domain, NewHeadReceiptNumber: newHead})
	return nil
}

// RegisterDomainRuntime is dispatch index 2 (root only; the caller is
// responsible for the root check before invoking this method).
func (s *State) RegisterDomainRuntime(runtimeType string, codeHash [32]byte, version uint32) consensus.RuntimeId {
	s.NextRuntimeId++
	id := s.NextRuntimeId
	entry := RuntimeRegistryEntry{RuntimeType: runtimeType, CodeHash: codeHash, Version: version}
	if runtimeType == RuntimeTypeEVM {
		entry.EVMChainId = s.NextEVMChainId
		s.NextEVMChainId++
	}
	s.RuntimeRegistry[id] = entry
	s.emit(DomainRuntimeCreated{RuntimeId: id})
	return id
}

// UpgradeDomainRuntime is dispatch index 3 (root only). The upgrade is
// queued for application in on-initialize of atBlock, never applied inline
// (spec §9, "cyclic runtime-registry upgrades").
func (s *State) UpgradeDomainRuntime(runtimeId consensus.RuntimeId, atBlock uint64, newCodeHash [32]byte, newVersion uint32) *Error {
	if _, ok := s.RuntimeRegistry[runtimeId]; !ok {
		return errOf(SubsystemRuntimeRegistry, "UNKNOWN_RUNTIME", "no such runtime id")
	}
	s.ScheduledRuntimeUpgrades[atBlock] = append(s.ScheduledRuntimeUpgrades[atBlock], ScheduledUpgrade{
		RuntimeId: runtimeId, NewCodeHash: newCodeHash, NewVersion: newVersion,
	})
	s.emit(DomainRuntimeUpgradeScheduled{RuntimeId: runtimeId, AtBlock: atBlock})
	return nil
}

// OnInitialize applies any runtime upgrades scheduled for blockNumber
// (spec §5, §9).
func (s *State) OnInitialize(blockNumber uint64) {
	for _, up := range s.ScheduledRuntimeUpgrades[blockNumber] {
		entry := s.RuntimeRegistry[up.RuntimeId]
		entry.CodeHash = up.NewCodeHash
		entry.Version = up.NewVersion
		s.RuntimeRegistry[up.RuntimeId] = entry
		s.emit(DomainRuntimeUpgraded{RuntimeId: up.RuntimeId})
	}
	delete(s.ScheduledRuntimeUpgrades, blockNumber)
}

// RegisterOperator is dispatch index 4.
func (s *State) RegisterOperator(owner consensus.AccountId, domain consensus.DomainId, signingKey consensus.PublicKey, stake uint64, tax consensus.NominationTax) (consensus.OperatorId, *Error) {
	summary := s.stakingSummary(domain)
	id, err := s.Ledger.RegisterOperator(domain, signingKey, stake, tax, summary.CurrentEpochIndex)
	if err != nil {
		return 0, wrap(SubsystemStaking, err)
	}
	s.NextOperatorId = id
	s.OperatorIdOwner[id] = owner
	s.OperatorSigningKey[signingKey] = id
	s.Fund.Credit(id, stake)
	summary.NextOperators[id] = struct{}{}
	s.emit(OperatorRegisteredEvent{Operator: id, Domain: domain})
	return id, nil
}

// NominateOperator is dispatch index 5.
func (s *State) NominateOperator(operator consensus.OperatorId, nominator consensus.AccountId, amount uint64) *Error {
	op, ok := s.Ledger.Operator(operator)
	if !ok {
		return errOf(SubsystemStaking, "OPERATOR_NOT_FOUND", "unknown operator")
	}
	summary := s.stakingSummary(op.CurrentDomainId)
	if err := s.Ledger.Nominate(operator, nominator, amount, summary.CurrentEpochIndex); err != nil {
		return wrap(SubsystemStaking, err)
	}
	s.Fund.Credit(operator, amount)
	s.emit(OperatorNominated{Operator: operator, Nominator: nominator, Amount: amount})
	return nil
}

// RequestOperatorSwitch queues operator for a move to newDomain at the next
// transition of its current domain's epoch (spec §4.4 operator-switch
// protocol; original_source's switch_domain). Not part of the indexed
// dispatch surface in spec §6 — index 7 is explicitly retired rather than
// reused for it, so this is invoked the same way an internal runtime hook
// would be, not a numbered extrinsic.
func (s *State) RequestOperatorSwitch(operator consensus.OperatorId, newDomain consensus.DomainId) *Error {
	if err := s.Ledger.RequestSwitch(operator, newDomain); err != nil {
		return wrap(SubsystemStaking, err)
	}
	op, _ := s.Ledger.Operator(operator)
	s.PendingOperatorSwitches[op.CurrentDomainId] = append(s.PendingOperatorSwitches[op.CurrentDomainId], operator)
	s.emit(OperatorSwitchedDomain{Operator: operator, To: newDomain})
	return nil
}

// CancelOperatorSwitch withdraws a previously-requested switch before it
// applies (original_source's clear_pending_switch).
func (s *State) CancelOperatorSwitch(operator consensus.OperatorId) *Error {
	if err := s.Ledger.CancelSwitch(operator); err != nil {
		return wrap(SubsystemStaking, err)
	}
	op, _ := s.Ledger.Operator(operator)
	pending := s.PendingOperatorSwitches[op.CurrentDomainId]
	for i, id := range pending {
		if id == operator {
			s.PendingOperatorSwitches[op.CurrentDomainId] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	return nil
}

// InstantiateDomain is dispatch index 6 (permissioned: gated by
// PermissionedActionAllowedBy["instantiate_domain"]).
func (s *State) InstantiateDomain(owner consensus.AccountId, runtimeId consensus.RuntimeId) (consensus.DomainId, *Error) {
	if !s.actionAllowed("instantiate_domain", owner) {
		return 0, errOf(SubsystemPermissionedAction, "NOT_ALLOWED", "account is not permitted to instantiate domains")
	}
	if _, ok := s.RuntimeRegistry[runtimeId]; !ok {
		return 0, errOf(SubsystemRuntimeRegistry, "UNKNOWN_RUNTIME", "no such runtime id")
	}
	s.NextDomainId++
	id := s.NextDomainId
	s.DomainRegistry[id] = DomainRegistryEntry{RuntimeId: runtimeId, Owner: owner}
	s.ConsensusBlockHash[id] = map[uint64][32]byte{0: {}}
	genesis := consensus.ExecutionReceipt{DomainBlockNumber: 0}
	s.BlockTrees[id] = consensus.NewBlockTree(id, genesis, s.PruningDepth, s)
	s.DomainTxRangeState[id] = consensus.TxRangeState{}
	s.emit(DomainInstantiated{Domain: id})
	return id, nil
}

func (s *State) actionAllowed(action string, account consensus.AccountId) bool {
	allowed, restricted := s.PermissionedActionAllowedBy[action]
	if !restricted {
		return true
	}
	for _, a := range allowed {
		if a == account {
			return true
		}
	}
	return false
}

// DeregisterOperator is dispatch index 8.
func (s *State) DeregisterOperator(operator consensus.OperatorId) *Error {
	op, ok := s.Ledger.Operator(operator)
	if !ok {
		return errOf(SubsystemStaking, "OPERATOR_NOT_FOUND", "unknown operator")
	}
	summary := s.stakingSummary(op.CurrentDomainId)
	if err := s.Ledger.Deregister(operator, summary.CurrentEpochIndex); err != nil {
		return wrap(SubsystemStaking, err)
	}
	delete(summary.NextOperators, operator)
	s.emit(OperatorDeregistered{Operator: operator})
	return nil
}

// WithdrawStake is dispatch index 9.
func (s *State) WithdrawStake(operator consensus.OperatorId, nominator consensus.AccountId, shares uint64, currentDomainBN uint64) *Error {
	op, ok := s.Ledger.Operator(operator)
	if !ok {
		return errOf(SubsystemStaking, "OPERATOR_NOT_FOUND", "unknown operator")
	}
	summary := s.stakingSummary(op.CurrentDomainId)
	if err := s.Ledger.Withdraw(operator, nominator, shares, summary.CurrentEpochIndex, currentDomainBN); err != nil {
		return wrap(SubsystemStaking, err)
	}
	s.emit(WithdrewStake{Operator: operator, Nominator: nominator})
	return nil
}

// UnlockFunds is dispatch index 10.
func (s *State) UnlockFunds(operator consensus.OperatorId, nominator consensus.AccountId, currentDomainBN uint64) *Error {
	amount, err := s.Ledger.UnlockFunds(operator, nominator, currentDomainBN)
	if err != nil {
		return wrap(SubsystemStaking, err)
	}
	s.emit(FundsUnlocked{Operator: operator, Nominator: nominator, Amount: amount})
	return nil
}

// UnlockOperator is dispatch index 11.
func (s *State) UnlockOperator(operator consensus.OperatorId, currentDomainBN, unlockAtDomainBN uint64) *Error {
	_, err := s.Ledger.UnlockOperator(operator, currentDomainBN, unlockAtDomainBN)
	if err != nil {
		return wrap(SubsystemStaking, err)
	}
	s.emit(OperatorUnlocked{Operator: operator})
	return nil
}

// UpdateDomainOperatorAllowList is dispatch index 12.
func (s *State) UpdateDomainOperatorAllowList(domain consensus.DomainId, allow []consensus.PublicKey) *Error {
	if s.Ledger == nil {
		return errOf(SubsystemDomainRegistry, "NO_LEDGER", "staking ledger not configured")
	}
	s.Ledger.SetAllowList(domain, allow)
	s.emit(DomainOperatorAllowListUpdated{Domain: domain})
	return nil
}

// ForceStakingEpochTransition is dispatch index 13 (root only).
func (s *State) ForceStakingEpochTransition(domain consensus.DomainId) *Error {
	if err := s.forceEpochTransition(domain); err != nil {
		return err
	}
	s.emit(ForceDomainEpochTransition{Domain: domain})
	return nil
}

// AdjustTxRange recomputes domain's DomainTxRangeState via the AIMD
// controller in package txrange. Deliberately not called from SubmitBundle
// or OnInitialize; it exists so the controller is directly exercisable
// without inventing call-site semantics the source does not specify.
func (s *State) AdjustTxRange(domain consensus.DomainId, targetBundlesPerBlock uint64) {
	s.DomainTxRangeState[domain] = txrange.Adjust(s.DomainTxRangeState[domain], targetBundlesPerBlock)
}

// SetPermissionedActionAllowedBy is dispatch index 14 (root only).
func (s *State) SetPermissionedActionAllowedBy(action string, allowed []consensus.AccountId) {
	s.PermissionedActionAllowedBy[action] = allowed
}
