package consensus

// Identifiers. Dense, monotonically allocated by side counters owned by the
// runtime package (NextDomainId / NextOperatorId / NextRuntimeId).
type (
	DomainId   uint64
	OperatorId uint64
	RuntimeId  uint64
	EVMChainId uint64
	EpochIndex uint64
	AccountId  [32]byte
	PublicKey  [32]byte
)

// OperatorStatus is the lifecycle state of an Operator record (§3).
type OperatorStatus int

const (
	OperatorRegistered OperatorStatus = iota
	OperatorDeregisteredStatus
	OperatorSlashed
	OperatorPendingSlash
)

func (s OperatorStatus) String() string {
	switch s {
	case OperatorRegistered:
		return "Registered"
	case OperatorDeregisteredStatus:
		return "Deregistered"
	case OperatorSlashed:
		return "Slashed"
	case OperatorPendingSlash:
		return "PendingSlash"
	default:
		return "Unknown"
	}
}

// NominationTax is a rational in [0,1) expressed as parts-per-million, the
// same fixed-point-fraction discipline the teacher uses for CompactSize
// lengths and fee rates: a small integer type with an explicit canonical
// encoding rather than a floating-point field.
type NominationTax uint32

const NominationTaxDenominator NominationTax = 1_000_000

// Valid reports whether the tax is in [0,1).
func (t NominationTax) Valid() bool { return t < NominationTaxDenominator }

// Apply splits amount into (taxPortion, remainder) per this tax rate.
func (t NominationTax) Apply(amount uint64) (taxPortion uint64, remainder uint64) {
	taxPortion = amount * uint64(t) / uint64(NominationTaxDenominator)
	return taxPortion, amount - taxPortion
}

// Operator is the staking ledger's record for a bundle producer (§3, §4.4).
// Owned exclusively by the staking ledger; referenced elsewhere only by
// OperatorId.
type Operator struct {
	SigningKey        PublicKey
	CurrentDomainId   DomainId
	CurrentTotalStake uint64
	CurrentTotalShares uint64
	PendingDeposit    uint64 // aggregate pending deposit awaiting next epoch's price
	NominationTax     NominationTax
	Status            OperatorStatus
	DeregisteredAt    EpochIndex // valid only when Status == Deregistered
	PendingSwitchTo   *DomainId  // set by switch-domain request, applied at next epoch
}

// Deposit is a per-(operator,nominator) record (§3).
type Deposit struct {
	KnownShares uint64 // shares owned as of the last settled epoch
	PendingAmount uint64 // balance deposited this epoch, not yet converted to shares
	PendingAtEpoch EpochIndex
}

// Withdrawal is a per-(operator,nominator) record (§3).
type Withdrawal struct {
	KnownAmount      uint64 // balance already converted at a settled epoch price
	PendingShares    uint64 // shares burned this epoch, not yet converted to balance
	PendingAtEpoch   EpochIndex
	UnlockAtDomainBN uint64 // domain block number at which the lock expires
}

// ExecutionReceipt attests to a single domain block (§3). Uniquely
// identified by its structural hash, ExecutionReceiptHash.
type ExecutionReceipt struct {
	ConsensusBlockNumber           uint64
	ConsensusBlockHash             [32]byte
	DomainBlockNumber              uint64
	DomainBlockHash                [32]byte
	ParentDomainBlockReceiptHash   [32]byte
	ExtrinsicsRoot                 [32]byte
	InherentExtrinsicsRoot         [32]byte
	FinalStateRoot                 [32]byte
	ExecutionTrace                 [][32]byte
	BlockFees                      uint64
	Transfers                      TransferSummary
	BundleDigests                  []BundleDigest
}

// TransferSummary is the minimal cross-domain transfer accounting the core
// needs to reconcile InvalidTransfers fraud proofs (§4.3); the ledger detail
// itself lives with DomainsTransfersTracker (§6), an external collaborator.
type TransferSummary struct {
	TransfersIn    uint64
	TransfersOut   uint64
	RejectedTransfersIn uint64
	TransferFees   uint64
}

// BlockTreeNode is the stored form of an ExecutionReceipt (§3).
type BlockTreeNode struct {
	Receipt     ExecutionReceipt
	Submitters  map[OperatorId]struct{}
}

// BundleDigest is appended to the execution inbox on bundle acceptance (§3).
type BundleDigest struct {
	BundleHeaderHash [32]byte
	ExtrinsicsRoot   [32]byte
	Size             uint64
}

// StakingSummary is per-domain, per-epoch bookkeeping (§3).
type StakingSummary struct {
	CurrentEpochIndex  EpochIndex
	CurrentTotalStake  uint64
	CurrentOperators   map[OperatorId]uint64 // operator -> stake, snapshotted at epoch start
	NextOperators      map[OperatorId]struct{}
}

// TxRangeState is the per-domain adaptive sharding range (§3, C7).
type TxRangeState struct {
	TxRange         [32]byte // 256-bit unsigned integer, big-endian
	IntervalBlocks  uint64
	IntervalBundles uint64
}

// Proof of election carries the VRF output+proof used for bundle check 8.
type ProofOfElection struct {
	DomainId     DomainId
	SlotNumber   uint64
	VrfOutput    [32]byte
	VrfProof     [64]byte
	OperatorId   OperatorId
}

// ProofOfTime is the sequential-VDF freshness witness for bundle check 7.
type ProofOfTime struct {
	SlotNumber          uint64
	PotOutput           [32]byte
	BlockHashProducedAfter [32]byte
}

// SealedBundleHeader is the wire form of a bundle header plus its signature.
// The signature covers BundleHeaderPreimageHash, never a hash of
// BundleHeaderSignedBytes — see encode.go.
type SealedBundleHeader struct {
	ProofOfElection ProofOfElection
	ProofOfTime     ProofOfTime
	SlotNumber      uint64
	ExtrinsicsRoot  [32]byte
	Receipt         ExecutionReceipt
	BundleSize      uint64
	EncodedExtrinsicsLen []uint64 // per-extrinsic encoded length, for weight accounting
	Signature       [64]byte
}

// OpaqueBundle is the dispatch-surface payload for submit_bundle (§6, call 0).
type OpaqueBundle struct {
	SealedHeader      SealedBundleHeader
	EncodedExtrinsics [][]byte
}

// ValidationMode distinguishes PreDispatch (on-chain, executed inside the
// block) from MempoolAdmission (gossip-time, speculative) per §4.2.
type ValidationMode int

const (
	PreDispatch ValidationMode = iota
	MempoolAdmission
)
