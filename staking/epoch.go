package staking

import "go.domainledger.dev/node/consensus"

// DomainEpochCompleted summarizes one epoch transition (spec §4.5); the
// runtime reports it as a DomainEpochCompletedEvent. The runtime records
// the newly confirmed domain block before the transition runs.
type DomainEpochCompleted struct {
	Domain          consensus.DomainId
	CompletedEpoch  consensus.EpochIndex
	TreasurySweep   uint64
	SettledDeposits int
	SettledWithdrawals int
	RotatedOperators []consensus.OperatorId
	// RewardedOperators and Taxes report exactly what DistributeReward
	// applied this transition (only operators actually credited, not the
	// caller's full candidate set), so the runtime package can emit
	// OperatorRewarded/OperatorTaxCollected without recomputing eligibility.
	RewardedOperators map[consensus.OperatorId]uint64
	Taxes             map[consensus.OperatorId]uint64
}

// EpochEngine drives C5: reward distribution, slashed-fund sweep, share
// price freezing, pending deposit/withdrawal settlement and the
// next_operators -> current_operators rotation. It operates on a single
// Ledger; the runtime package is responsible for calling it once per domain
// whenever a confirmed domain block number is a multiple of
// StakeEpochDuration.
type EpochEngine struct {
	Ledger *Ledger
}

// Price returns an operator's current stake-per-share ratio. A freshly
// registered operator with no settled shares prices 1:1.
func (e *EpochEngine) Price(operator consensus.OperatorId) SharePrice {
	op, ok := e.Ledger.operators[operator]
	if !ok || op.CurrentTotalShares == 0 {
		return SharePrice{StakeNumerator: 1, ShareDenominator: 1}
	}
	return SharePrice{StakeNumerator: op.CurrentTotalStake, ShareDenominator: op.CurrentTotalShares}
}

// DistributeReward credits reward to operator: the operator's own tax cut is
// minted as new shares at the pre-reward price, and the remainder is added
// straight to CurrentTotalStake with no share minting, which raises the
// price for every existing shareholder pro rata (spec §4.5). Returns the tax
// portion actually minted, so the caller can report it (OperatorTaxCollected)
// alongside the full reward (OperatorRewarded).
func (e *EpochEngine) DistributeReward(operator consensus.OperatorId, reward uint64) (uint64, error) {
	op, ok := e.Ledger.operators[operator]
	if !ok {
		return 0, errOf(ErrOperatorNotFound, "unknown operator")
	}
	if reward == 0 {
		return 0, nil
	}
	price := e.Price(operator)
	tax, shared := op.NominationTax.Apply(reward)

	if tax > 0 {
		selfKey := NominatorKey{Operator: operator, Nominator: consensus.AccountId(op.SigningKey)}
		d, ok := e.Ledger.deposits[selfKey]
		if !ok {
			d = &consensus.Deposit{}
			e.Ledger.deposits[selfKey] = d
			e.Ledger.nominators[operator][selfKey.Nominator] = struct{}{}
		}
		mintedShares := price.SharesFor(tax)
		d.KnownShares += mintedShares
		op.CurrentTotalShares += mintedShares
		op.CurrentTotalStake += tax
	}
	op.CurrentTotalStake += shared
	return tax, nil
}

// SweepSlashed slashes each operator through Ledger.Slash, which marks it
// slashed and zeroes its stake, and returns the total zeroed amount for the
// caller to fold into TreasurySweep (spec §4.3, §4.5).
func (e *EpochEngine) SweepSlashed(operators []consensus.OperatorId) (uint64, error) {
	var total uint64
	for _, id := range operators {
		amount, err := e.Ledger.Slash(id)
		if err != nil {
			return total, err
		}
		total += amount
	}
	return total, nil
}

// settlePendingDeposits converts every deposit pending at or before epoch
// into shares at operator's frozen price, for every nominator of operator.
func (e *EpochEngine) settlePendingDeposits(operator consensus.OperatorId, epoch consensus.EpochIndex, price SharePrice) int {
	settled := 0
	for nominator := range e.Ledger.nominators[operator] {
		key := NominatorKey{Operator: operator, Nominator: nominator}
		d, ok := e.Ledger.deposits[key]
		if !ok || d.PendingAmount == 0 || d.PendingAtEpoch > epoch {
			continue
		}
		minted := price.SharesFor(d.PendingAmount)
		d.KnownShares += minted
		if op := e.Ledger.operators[operator]; op != nil {
			op.CurrentTotalStake += d.PendingAmount
			op.CurrentTotalShares += minted
		}
		d.PendingAmount = 0
		settled++
	}
	return settled
}

// settlePendingWithdrawals converts every withdrawal pending at or before
// epoch into a settled balance at operator's frozen price.
func (e *EpochEngine) settlePendingWithdrawals(operator consensus.OperatorId, epoch consensus.EpochIndex, price SharePrice) int {
	settled := 0
	for nominator := range e.Ledger.nominators[operator] {
		key := NominatorKey{Operator: operator, Nominator: nominator}
		w, ok := e.Ledger.withdrawals[key]
		if !ok || w.PendingShares == 0 || w.PendingAtEpoch > epoch {
			continue
		}
		w.KnownAmount += price.StakeFor(w.PendingShares)
		op := e.Ledger.operators[operator]
		if op != nil {
			amount := price.StakeFor(w.PendingShares)
			op.CurrentTotalStake = saturatingSub(op.CurrentTotalStake, amount)
			op.CurrentTotalShares = saturatingSub(op.CurrentTotalShares, w.PendingShares)
		}
		w.PendingShares = 0
		settled++
	}
	return settled
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// TransitionEpoch runs one full epoch transition for domain (spec §4.5):
// sweep slashed stakes, distribute rewards, freeze each active operator's
// share price, settle pending deposits/withdrawals against that frozen
// price, and rotate next_operators into current_operators.
func (e *EpochEngine) TransitionEpoch(
	domain consensus.DomainId,
	summary *consensus.StakingSummary,
	rewards map[consensus.OperatorId]uint64,
	slashed []consensus.OperatorId,
	nextOperators []consensus.OperatorId,
) (*DomainEpochCompleted, error) {
	treasurySweep, err := e.SweepSlashed(slashed)
	if err != nil {
		return nil, err
	}

	settledDeposits, settledWithdrawals := 0, 0
	rewarded := map[consensus.OperatorId]uint64{}
	taxes := map[consensus.OperatorId]uint64{}
	// Rewarded operators outside CurrentOperators are credited here; the
	// loop below credits current ones before freezing their price.
	for id, reward := range rewards {
		op, ok := e.Ledger.operators[id]
		if _, current := summary.CurrentOperators[id]; current || !ok || reward == 0 || op.Status == consensus.OperatorSlashed {
			continue
		}
		tax, err := e.DistributeReward(id, reward)
		if err != nil {
			return nil, err
		}
		rewarded[id] = reward
		taxes[id] = tax
	}
	for id := range summary.CurrentOperators {
		op, ok := e.Ledger.operators[id]
		if !ok || op.Status == consensus.OperatorSlashed {
			continue
		}
		if reward, ok := rewards[id]; ok && reward > 0 {
			tax, err := e.DistributeReward(id, reward)
			if err != nil {
				return nil, err
			}
			rewarded[id] = reward
			taxes[id] = tax
		}

		price := e.Price(id)
		e.Ledger.CacheSharePrice(id, summary.CurrentEpochIndex, price)
		settledDeposits += e.settlePendingDeposits(id, summary.CurrentEpochIndex, price)
		settledWithdrawals += e.settlePendingWithdrawals(id, summary.CurrentEpochIndex, price)
		op.PendingDeposit = 0
	}

	summary.CurrentEpochIndex++
	summary.CurrentOperators = map[consensus.OperatorId]uint64{}
	for _, id := range nextOperators {
		op, ok := e.Ledger.operators[id]
		if !ok {
			continue
		}
		summary.CurrentOperators[id] = op.CurrentTotalStake
		if op.PendingSwitchTo != nil {
			op.CurrentDomainId = *op.PendingSwitchTo
			op.PendingSwitchTo = nil
		}
	}
	summary.NextOperators = map[consensus.OperatorId]struct{}{}

	return &DomainEpochCompleted{
		Domain:             domain,
		CompletedEpoch:     summary.CurrentEpochIndex - 1,
		TreasurySweep:      treasurySweep,
		SettledDeposits:    settledDeposits,
		SettledWithdrawals: settledWithdrawals,
		RotatedOperators:   nextOperators,
		RewardedOperators:  rewarded,
		Taxes:              taxes,
	}, nil
}
