package staking

import (
	lru "github.com/hashicorp/golang-lru"

	"go.domainledger.dev/node/consensus"
)

// Config bounds the staking ledger's admission rules (spec §4.4). Grounded
// on original_source's MinNominatorStake / OperatorAllowList constants,
// generalized into per-ledger configuration rather than chain constants.
type Config struct {
	MinOperatorStake  uint64
	MinNominatorStake uint64
	MaxNominators     uint32
	MaxNominationTax  consensus.NominationTax
	WithdrawalLockDomainBlocks uint64

	// OperatorAllowList restricts which signing keys may register an
	// operator for a domain. A nil entry for a domain means unrestricted.
	OperatorAllowList map[consensus.DomainId][]consensus.PublicKey

	SharePriceCacheSize int
}

// NominatorKey identifies a single nominator's position with one operator.
type NominatorKey struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
}

// SharePrice is an operator's stake-per-share ratio frozen at a settled
// epoch (spec §4.5: "share price is frozen once per epoch"). Deposits and
// withdrawals pending at that epoch convert against this exact ratio, never
// against the live, possibly-already-diluted current ratio.
type SharePrice struct {
	StakeNumerator  uint64
	ShareDenominator uint64
}

// SharesFor converts a balance into shares at this price.
func (p SharePrice) SharesFor(balance uint64) uint64 {
	if p.StakeNumerator == 0 {
		return balance
	}
	return balance * p.ShareDenominator / p.StakeNumerator
}

// StakeFor converts shares into a balance at this price.
func (p SharePrice) StakeFor(shares uint64) uint64 {
	if p.ShareDenominator == 0 {
		return 0
	}
	return shares * p.StakeNumerator / p.ShareDenominator
}

// Ledger is the staking subsystem's in-memory aggregate (C4/C5). Persistence
// is the caller's concern, the same separation the teacher draws between
// node/store (bbolt) and consensus (pure logic): Ledger never touches disk
// directly.
type Ledger struct {
	cfg Config

	operators   map[consensus.OperatorId]*consensus.Operator
	deposits    map[NominatorKey]*consensus.Deposit
	withdrawals map[NominatorKey]*consensus.Withdrawal
	nominators  map[consensus.OperatorId]map[consensus.AccountId]struct{}

	// sharePrices caches OperatorEpochSharePrice lookups keyed by
	// (operator, epoch); it is a pure cache, never the source of truth,
	// the same role lru.ARCCache plays for DPoS snapshot/signature
	// recovery.
	sharePrices *lru.ARCCache

	nextOperatorId consensus.OperatorId
}

type sharePriceKey struct {
	Operator consensus.OperatorId
	Epoch    consensus.EpochIndex
}

// NewLedger constructs an empty staking ledger.
func NewLedger(cfg Config) (*Ledger, error) {
	size := cfg.SharePriceCacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		cfg:         cfg,
		operators:   map[consensus.OperatorId]*consensus.Operator{},
		deposits:    map[NominatorKey]*consensus.Deposit{},
		withdrawals: map[NominatorKey]*consensus.Withdrawal{},
		nominators:  map[consensus.OperatorId]map[consensus.AccountId]struct{}{},
		sharePrices: cache,
	}, nil
}

func (l *Ledger) Operator(id consensus.OperatorId) (consensus.Operator, bool) {
	op, ok := l.operators[id]
	if !ok {
		return consensus.Operator{}, false
	}
	return *op, true
}

// SetAllowList replaces the registration allow-list for domain. A nil or
// empty list restores unrestricted registration (spec §6,
// update_domain_operator_allow_list).
func (l *Ledger) SetAllowList(domain consensus.DomainId, allow []consensus.PublicKey) {
	if l.cfg.OperatorAllowList == nil {
		l.cfg.OperatorAllowList = map[consensus.DomainId][]consensus.PublicKey{}
	}
	if len(allow) == 0 {
		delete(l.cfg.OperatorAllowList, domain)
		return
	}
	l.cfg.OperatorAllowList[domain] = allow
}

func (l *Ledger) allowedToRegister(domain consensus.DomainId, signingKey consensus.PublicKey) bool {
	allow, restricted := l.cfg.OperatorAllowList[domain]
	if !restricted {
		return true
	}
	for _, k := range allow {
		if k == signingKey {
			return true
		}
	}
	return false
}

// RegisterOperator creates a new Operator record and returns its allocated
// id (spec §4.4 register_operator). The initial stake is recorded as a
// pending deposit: it only becomes CurrentTotalStake/CurrentTotalShares once
// the next epoch transition settles it, the same pending-until-next-epoch
// rule that governs nominations.
func (l *Ledger) RegisterOperator(domain consensus.DomainId, signingKey consensus.PublicKey, stake uint64, tax consensus.NominationTax, epoch consensus.EpochIndex) (consensus.OperatorId, error) {
	if stake < l.cfg.MinOperatorStake {
		return 0, errOf(ErrMinimumOperatorStake, "stake below MinOperatorStake")
	}
	if !tax.Valid() || (l.cfg.MaxNominationTax != 0 && tax > l.cfg.MaxNominationTax) {
		return 0, errOf(ErrInvalidNominationTax, "nomination tax out of bounds")
	}
	if !l.allowedToRegister(domain, signingKey) {
		return 0, errOf(ErrNotAllowedToNominate, "signing key not in domain operator allow list")
	}

	l.nextOperatorId++
	id := l.nextOperatorId
	l.operators[id] = &consensus.Operator{
		SigningKey:      signingKey,
		CurrentDomainId: domain,
		NominationTax:   tax,
		Status:          consensus.OperatorRegistered,
		PendingDeposit:  stake,
	}
	selfAccount := pubkeyAsAccount(signingKey)
	l.nominators[id] = map[consensus.AccountId]struct{}{selfAccount: {}}
	l.deposits[NominatorKey{Operator: id, Nominator: selfAccount}] = &consensus.Deposit{
		PendingAmount:  stake,
		PendingAtEpoch: epoch,
	}
	return id, nil
}

func pubkeyAsAccount(k consensus.PublicKey) consensus.AccountId {
	return consensus.AccountId(k)
}

// Nominate adds to an operator's pending deposit on behalf of nominator
// (spec §4.4 nominate). New nominators are bounded by MaxNominators; an
// existing nominator topping up never counts against the bound.
func (l *Ledger) Nominate(operator consensus.OperatorId, nominator consensus.AccountId, amount uint64, epoch consensus.EpochIndex) error {
	op, ok := l.operators[operator]
	if !ok {
		return errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.Status != consensus.OperatorRegistered {
		return errOf(ErrOperatorNotRegistered, "operator not accepting nominations")
	}
	if amount < l.cfg.MinNominatorStake {
		return errOf(ErrMinimumNominatorStake, "amount below MinNominatorStake")
	}

	key := NominatorKey{Operator: operator, Nominator: nominator}
	if _, exists := l.deposits[key]; !exists {
		if l.cfg.MaxNominators != 0 && uint32(len(l.nominators[operator])) >= l.cfg.MaxNominators {
			return errOf(ErrMaxNominatorsReached, "operator has reached MaxNominators")
		}
		l.deposits[key] = &consensus.Deposit{}
		l.nominators[operator][nominator] = struct{}{}
	}

	d := l.deposits[key]
	d.PendingAmount += amount
	d.PendingAtEpoch = epoch
	op.PendingDeposit += amount
	return nil
}

// RequestSwitch records an operator's intent to move to newDomain at the
// next epoch transition of its *current* domain (spec §4.4 "operator-switch
// protocol"). The move itself does not happen here: the runtime layer
// applies it during forceEpochTransition, once per epoch, per domain.
func (l *Ledger) RequestSwitch(operator consensus.OperatorId, newDomain consensus.DomainId) error {
	op, ok := l.operators[operator]
	if !ok {
		return errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.Status != consensus.OperatorRegistered {
		return errOf(ErrOperatorNotRegistered, "operator is not registered")
	}
	if op.CurrentDomainId == newDomain {
		return errOf(ErrAlreadyInDomain, "already assigned to that domain")
	}
	op.PendingSwitchTo = &newDomain
	return nil
}

// CancelSwitch clears a pending domain-switch request before it applies
// (original_source's clear_pending_switch behavior, also invoked implicitly
// by Deregister below).
func (l *Ledger) CancelSwitch(operator consensus.OperatorId) error {
	op, ok := l.operators[operator]
	if !ok {
		return errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.PendingSwitchTo == nil {
		return errOf(ErrNoPendingSwitch, "no pending switch to cancel")
	}
	op.PendingSwitchTo = nil
	return nil
}

// ApplySwitch moves operator to newDomain and clears the pending request.
// Called once, by the runtime's epoch-transition handler, when rotating the
// source domain's operator set (spec §4.4: "moved to the new domain's
// next_operators on the next transition, not immediately").
func (l *Ledger) ApplySwitch(operator consensus.OperatorId, newDomain consensus.DomainId) {
	if op, ok := l.operators[operator]; ok {
		op.CurrentDomainId = newDomain
		op.PendingSwitchTo = nil
	}
}

// Deregister transitions an operator out of Registered status. A
// deregistered operator stops being eligible for election. The epoch of
// deregistration is recorded in DeregisteredAt; UnlockOperator takes the
// unlock block number from its caller (spec §4.4 deregister).
func (l *Ledger) Deregister(operator consensus.OperatorId, epoch consensus.EpochIndex) error {
	op, ok := l.operators[operator]
	if !ok {
		return errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.Status != consensus.OperatorRegistered {
		return errOf(ErrOperatorNotRegistered, "operator is not registered")
	}
	op.Status = consensus.OperatorDeregisteredStatus
	op.DeregisteredAt = epoch
	// A deregistering operator never reaches its pending target domain
	// (original_source's clear_pending_switch_on_deregistration).
	op.PendingSwitchTo = nil
	return nil
}

// Withdraw burns shares into a pending Withdrawal record, to be converted to
// a balance at the next settled share price (spec §4.4 withdraw).
func (l *Ledger) Withdraw(operator consensus.OperatorId, nominator consensus.AccountId, shares uint64, epoch consensus.EpochIndex, currentDomainBN uint64) error {
	dkey := NominatorKey{Operator: operator, Nominator: nominator}
	d, ok := l.deposits[dkey]
	if !ok || d.KnownShares < shares {
		return errOf(ErrInsufficientShares, "nominator does not hold that many shares")
	}
	d.KnownShares -= shares

	w, ok := l.withdrawals[dkey]
	if !ok {
		w = &consensus.Withdrawal{}
		l.withdrawals[dkey] = w
	}
	w.PendingShares += shares
	w.PendingAtEpoch = epoch
	w.UnlockAtDomainBN = currentDomainBN + l.cfg.WithdrawalLockDomainBlocks
	return nil
}

// UnlockFunds releases a settled withdrawal once its lock has elapsed,
// returning the balance due (spec §4.4 unlock_funds).
func (l *Ledger) UnlockFunds(operator consensus.OperatorId, nominator consensus.AccountId, currentDomainBN uint64) (uint64, error) {
	key := NominatorKey{Operator: operator, Nominator: nominator}
	w, ok := l.withdrawals[key]
	if !ok || w.KnownAmount == 0 {
		return 0, errOf(ErrNothingToWithdraw, "no settled withdrawal for this nominator")
	}
	if currentDomainBN < w.UnlockAtDomainBN {
		return 0, errOf(ErrWithdrawalNotUnlocked, "withdrawal lock has not elapsed")
	}
	amount := w.KnownAmount
	delete(l.withdrawals, key)
	return amount, nil
}

// UnlockOperator releases a deregistered-and-slash-free operator's own
// stake once the withdrawal lock has elapsed (spec §4.4 unlock_operator)
// and deletes the operator record.
func (l *Ledger) UnlockOperator(operator consensus.OperatorId, currentDomainBN uint64, unlockAtDomainBN uint64) (uint64, error) {
	op, ok := l.operators[operator]
	if !ok {
		return 0, errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.Status != consensus.OperatorDeregisteredStatus {
		return 0, errOf(ErrOperatorNotRegistered, "operator has not been deregistered")
	}
	if currentDomainBN < unlockAtDomainBN {
		return 0, errOf(ErrWithdrawalNotUnlocked, "operator withdrawal lock has not elapsed")
	}
	amount := op.CurrentTotalStake
	op.CurrentTotalStake = 0
	op.CurrentTotalShares = 0
	delete(l.operators, operator)
	return amount, nil
}

// Slash marks an operator slashed and zeroes its stake; the zeroed amount is
// returned for the caller (the epoch engine, on a fraud-proof outcome) to
// sweep to the treasury (spec §4.3, §4.5).
func (l *Ledger) Slash(operator consensus.OperatorId) (uint64, error) {
	op, ok := l.operators[operator]
	if !ok {
		return 0, errOf(ErrOperatorNotFound, "unknown operator")
	}
	if op.Status == consensus.OperatorSlashed {
		return 0, errOf(ErrOperatorAlreadySlashed, "operator already slashed")
	}
	amount := op.CurrentTotalStake
	op.Status = consensus.OperatorSlashed
	op.CurrentTotalStake = 0
	op.CurrentTotalShares = 0
	return amount, nil
}

// CacheSharePrice records the price an operator's epoch settled at, for
// reuse by later queries against that same epoch (e.g. explorers replaying
// historical deposits). It is advisory: callers must never read from the
// cache as the source of truth for a not-yet-settled epoch.
func (l *Ledger) CacheSharePrice(operator consensus.OperatorId, epoch consensus.EpochIndex, price SharePrice) {
	l.sharePrices.Add(sharePriceKey{Operator: operator, Epoch: epoch}, price)
}

func (l *Ledger) CachedSharePrice(operator consensus.OperatorId, epoch consensus.EpochIndex) (SharePrice, bool) {
	v, ok := l.sharePrices.Get(sharePriceKey{Operator: operator, Epoch: epoch})
	if !ok {
		return SharePrice{}, false
	}
	return v.(SharePrice), true
}

// DepositEntry and WithdrawalEntry flatten the (operator, nominator)-keyed
// tables into a JSON-friendly shape for Snapshot/Restore. Struct map keys
// don't round-trip through encoding/json, so persistence works against
// these slices rather than the live maps directly (spec §9, "rebuild
// iteration views on demand").
type DepositEntry struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
	Deposit   consensus.Deposit
}

type WithdrawalEntry struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
	Withdrawal consensus.Withdrawal
}

// Snapshot is the serializable form of the ledger's full state.
type Snapshot struct {
	NextOperatorId consensus.OperatorId
	Operators      map[consensus.OperatorId]consensus.Operator
	Deposits       []DepositEntry
	Withdrawals    []WithdrawalEntry
}

// Snapshot captures the ledger for persistence (runtime/store).
func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{
		NextOperatorId: l.nextOperatorId,
		Operators:      make(map[consensus.OperatorId]consensus.Operator, len(l.operators)),
	}
	for id, op := range l.operators {
		snap.Operators[id] = *op
	}
	for k, d := range l.deposits {
		snap.Deposits = append(snap.Deposits, DepositEntry{Operator: k.Operator, Nominator: k.Nominator, Deposit: *d})
	}
	for k, w := range l.withdrawals {
		snap.Withdrawals = append(snap.Withdrawals, WithdrawalEntry{Operator: k.Operator, Nominator: k.Nominator, Withdrawal: *w})
	}
	return snap
}

// Restore replaces the ledger's contents with a previously captured
// Snapshot (runtime/store load path).
func (l *Ledger) Restore(snap Snapshot) {
	l.nextOperatorId = snap.NextOperatorId
	l.operators = make(map[consensus.OperatorId]*consensus.Operator, len(snap.Operators))
	l.nominators = make(map[consensus.OperatorId]map[consensus.AccountId]struct{}, len(snap.Operators))
	for id, op := range snap.Operators {
		v := op
		l.operators[id] = &v
		l.nominators[id] = map[consensus.AccountId]struct{}{}
	}
	l.deposits = make(map[NominatorKey]*consensus.Deposit, len(snap.Deposits))
	for _, e := range snap.Deposits {
		v := e.Deposit
		l.deposits[NominatorKey{Operator: e.Operator, Nominator: e.Nominator}] = &v
		if l.nominators[e.Operator] == nil {
			l.nominators[e.Operator] = map[consensus.AccountId]struct{}{}
		}
		l.nominators[e.Operator][e.Nominator] = struct{}{}
	}
	l.withdrawals = make(map[NominatorKey]*consensus.Withdrawal, len(snap.Withdrawals))
	for _, e := range snap.Withdrawals {
		v := e.Withdrawal
		l.withdrawals[NominatorKey{Operator: e.Operator, Nominator: e.Nominator}] = &v
	}
}
