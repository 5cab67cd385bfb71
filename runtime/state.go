// Package runtime assembles the pure consensus/, staking/, storagefund/
// and crypto/ packages into the single dispatch surface a domain-control
// module exposes to a host chain: one State record per spec §9's design
// note ("model these as an explicit State record: one field per table"),
// and one method per active extrinsic in spec §6.
package runtime

import (
	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"
)

// RuntimeRegistryEntry is RuntimeRegistry[RuntimeId] (spec §6).
type RuntimeRegistryEntry struct {
	RuntimeType string
	CodeHash    [32]byte
	Version     uint32
	// EVMChainId is allocated from NextEVMChainId when RuntimeType is
	// "evm" (original_source/crates/pallet-domains: EVM runtimes get a
	// chain id, other runtime types do not). Zero for non-EVM runtimes.
	EVMChainId consensus.EVMChainId
}

// RuntimeTypeEVM is the RuntimeType value that triggers EVM chain id
// allocation in RegisterDomainRuntime.
const RuntimeTypeEVM = "evm"

// ScheduledUpgrade is a RuntimeId queued for application at a future
// consensus block (spec §9, "cyclic runtime-registry upgrades").
type ScheduledUpgrade struct {
	RuntimeId consensus.RuntimeId
	NewCodeHash [32]byte
	NewVersion  uint32
}

// DomainRegistryEntry is DomainRegistry[DomainId] (spec §6).
type DomainRegistryEntry struct {
	RuntimeId       consensus.RuntimeId
	Owner           consensus.AccountId
	InstantiatedAt  uint64
}

// SlashEntry records an operator pending retroactive slashing and why
// (spec events: OperatorSlashed{reason}).
type SlashEntry struct {
	Operator consensus.OperatorId
	Reason   SlashReason
}

type SlashReason int

const (
	SlashInvalidBundle SlashReason = iota
	SlashBadExecutionReceipt
	SlashBundleEquivocation
)

// Currency is the narrow balance collaborator the runtime depends on
// (spec §6 "Collaborators the core relies on").
type Currency interface {
	Balance(account consensus.AccountId) uint64
	Hold(account consensus.AccountId, holdID string, amount uint64) error
	Release(account consensus.AccountId, holdID string, amount uint64) error
}

// Randomness supplies domain-separated seeded randomness for extrinsic
// shuffling (spec §6).
type Randomness interface {
	Seed(domainSeparator string) [32]byte
}

// BlockSlot is the consensus-chain slot bookkeeping collaborator (spec §6).
type BlockSlot interface {
	FutureSlot(block uint64) uint64
	SlotProducedAfter(slot uint64) uint64
}

// StorageFee supplies the live per-byte storage fee (spec §6).
type StorageFee interface {
	CurrentPerByteFee() uint64
}

// DomainsTransfersTracker is the cross-domain transfer accounting hook
// (spec §6).
type DomainsTransfersTracker interface {
	RecordTransfer(domain consensus.DomainId, summary consensus.TransferSummary)
}

// DomainBundleSubmitted is the post-hook invoked once per domain per block
// that produced at least one accepted bundle (spec §6).
type DomainBundleSubmitted interface {
	OnBundleSubmitted(domain consensus.DomainId, blockNumber uint64)
}

// State is the full persisted-state aggregate (spec §6, §9).
type State struct {
	NextRuntimeId   consensus.RuntimeId
	NextEVMChainId  consensus.EVMChainId
	NextOperatorId  consensus.OperatorId
	NextDomainId    consensus.DomainId

	RuntimeRegistry          map[consensus.RuntimeId]RuntimeRegistryEntry
	ScheduledRuntimeUpgrades map[uint64][]ScheduledUpgrade

	OperatorIdOwner    map[consensus.OperatorId]consensus.AccountId
	OperatorSigningKey map[consensus.PublicKey]consensus.OperatorId

	DomainStakingSummary map[consensus.DomainId]*consensus.StakingSummary
	PendingOperatorSwitches map[consensus.DomainId][]consensus.OperatorId

	PendingSlashes               map[consensus.DomainId][]SlashEntry
	PendingStakingOperationCount map[consensus.DomainId]uint64
	// PendingRewards accumulates each operator's share of confirmed domain
	// blocks' BlockFees between epoch transitions (spec §4.5 step 1's reward
	// source); forceEpochTransition drains it into staking.EpochEngine.
	// TransitionEpoch's rewards argument and clears it, the same
	// accumulate-then-drain shape PendingSlashes already uses.
	PendingRewards map[consensus.DomainId]map[consensus.OperatorId]uint64

	DomainRegistry map[consensus.DomainId]DomainRegistryEntry

	BlockTrees          map[consensus.DomainId]*consensus.BlockTree
	HeadReceiptExtended map[consensus.DomainId]bool
	ConsensusBlockHash  map[consensus.DomainId]map[uint64][32]byte

	ExecutionInbox      map[inboxKey][]consensus.BundleDigest
	InboxedBundleAuthor map[[32]byte]consensus.OperatorId

	HeadDomainNumber              map[consensus.DomainId]uint64
	LastEpochStakingDistribution  map[consensus.DomainId]map[consensus.OperatorId]uint64
	LatestConfirmedDomainBlock    map[consensus.DomainId]uint64
	LatestSubmittedER             map[latestERKey]uint64

	PermissionedActionAllowedBy map[string][]consensus.AccountId

	DomainTxRangeState map[consensus.DomainId]consensus.TxRangeState

	SuccessfulBundles      map[consensus.DomainId][][32]byte
	SuccessfulFraudProofs  map[consensus.DomainId][][32]byte

	Ledger *staking.Ledger
	Fund   *storagefund.Fund

	StakeEpochDuration uint64
	PruningDepth       uint64
	BundleLongevity    uint64
	TotalStake         uint64
	SlotProbability    [2]uint64

	Events []Event
}

type inboxKey struct {
	Domain               consensus.DomainId
	DomainBlockNumber    uint64
	ConsensusBlockNumber uint64
}

type latestERKey struct {
	Domain   consensus.DomainId
	Operator consensus.OperatorId
}

// ConsensusBlockHashAt implements consensus.ConsensusHashLookup over State's
// own ConsensusBlockHash table, the adapter each domain's *BlockTree is
// constructed with.
func (s *State) ConsensusBlockHashAt(domain consensus.DomainId, n uint64) ([32]byte, bool) {
	h, ok := s.ConsensusBlockHash[domain][n]
	return h, ok
}

// NewState constructs an empty aggregate from validated protocol
// parameters. NextEVMChainId starts at 490000 per spec §6.
func NewState(ledger *staking.Ledger, fund *storagefund.Fund, params Params) *State {
	return &State{
		NextEVMChainId: 490000,

		PruningDepth:    params.ConfirmationDepth,
		StakeEpochDuration: params.StakeEpochDuration,
		BundleLongevity: params.BundleLongevity,
		SlotProbability: [2]uint64{params.SlotProbabilityNumerator, params.SlotProbabilityDenominator},

		RuntimeRegistry:          map[consensus.RuntimeId]RuntimeRegistryEntry{},
		ScheduledRuntimeUpgrades: map[uint64][]ScheduledUpgrade{},

		OperatorIdOwner:    map[consensus.OperatorId]consensus.AccountId{},
		OperatorSigningKey: map[consensus.PublicKey]consensus.OperatorId{},

		DomainStakingSummary:    map[consensus.DomainId]*consensus.StakingSummary{},
		PendingOperatorSwitches: map[consensus.DomainId][]consensus.OperatorId{},

		PendingSlashes:               map[consensus.DomainId][]SlashEntry{},
		PendingStakingOperationCount: map[consensus.DomainId]uint64{},
		PendingRewards:               map[consensus.DomainId]map[consensus.OperatorId]uint64{},

		DomainRegistry: map[consensus.DomainId]DomainRegistryEntry{},

		BlockTrees:          map[consensus.DomainId]*consensus.BlockTree{},
		HeadReceiptExtended: map[consensus.DomainId]bool{},
		ConsensusBlockHash:  map[consensus.DomainId]map[uint64][32]byte{},

		ExecutionInbox:      map[inboxKey][]consensus.BundleDigest{},
		InboxedBundleAuthor: map[[32]byte]consensus.OperatorId{},

		HeadDomainNumber:             map[consensus.DomainId]uint64{},
		LastEpochStakingDistribution: map[consensus.DomainId]map[consensus.OperatorId]uint64{},
		LatestConfirmedDomainBlock:   map[consensus.DomainId]uint64{},
		LatestSubmittedER:            map[latestERKey]uint64{},

		PermissionedActionAllowedBy: map[string][]consensus.AccountId{},

		DomainTxRangeState: map[consensus.DomainId]consensus.TxRangeState{},

		SuccessfulBundles:     map[consensus.DomainId][][32]byte{},
		SuccessfulFraudProofs: map[consensus.DomainId][][32]byte{},

		Ledger: ledger,
		Fund:   fund,
	}
}

func (s *State) emit(e Event) { s.Events = append(s.Events, e) }

// SetExecutionInbox and SetLatestSubmittedER let runtime/store rebuild
// these keyed-struct tables without exporting inboxKey/latestERKey.
func (s *State) SetExecutionInbox(domain consensus.DomainId, domainBlockNumber, consensusBlockNumber uint64, digests []consensus.BundleDigest) {
	s.ExecutionInbox[inboxKey{Domain: domain, DomainBlockNumber: domainBlockNumber, ConsensusBlockNumber: consensusBlockNumber}] = digests
}

func (s *State) SetLatestSubmittedER(domain consensus.DomainId, operator consensus.OperatorId, number uint64) {
	s.LatestSubmittedER[latestERKey{Domain: domain, Operator: operator}] = number
}
