package consensus

import lru "github.com/hashicorp/golang-lru"

// consensusHashCacheSize bounds the per-tree cache of classified-but-not-
// yet-finalized consensus-block-hash lookups (Classify calls
// ConsensusBlockHashAt on every receipt, including ones that never reach a
// node). A fixed size avoids a constructor that can fail.
const consensusHashCacheSize = 512

// ReceiptType is the outcome of classifying an incoming ExecutionReceipt
// against the current block-tree head (spec §4.1).
type ReceiptType int

const (
	ReceiptStale ReceiptType = iota
	ReceiptInFuture
	ReceiptUnknownParent
	ReceiptBuiltOnUnknownConsensusBlock
	ReceiptUnavailableConsensusBlockHash
	ReceiptNewBranch
	ReceiptCurrentHead
	ReceiptNewHead
)

// ConsensusHashLookup resolves the consensus-chain block hash recorded for a
// domain at a given consensus block number. This is the "host record" spec
// §4.1 refers to for BuiltOnUnknownConsensusBlock / UnavailableConsensusBlockHash.
type ConsensusHashLookup interface {
	ConsensusBlockHashAt(domain DomainId, consensusBlockNumber uint64) (hash [32]byte, ok bool)
}

// ConfirmedInfo is emitted when a block-tree node crosses the confirmation
// threshold (head - K) on NewHead acceptance (spec §4.1).
type ConfirmedInfo struct {
	DomainBlockNumber     uint64
	OperatorIds           []OperatorId
	InvalidBundleAuthors  []OperatorId
	Rewards               map[OperatorId]uint64
	TotalStorageFee       uint64
	PaidBundleStorageFees map[OperatorId]uint64
	// BundleHashes lists the BundleHeaderHash of every bundle digest folded
	// into the confirmed receipt, for the caller to settle storage-fee
	// escrow against (storagefund.Fund.RefundOnConfirmation keys on exactly
	// this hash). BlockTree has no Fund reference of its own (§C1 stays
	// storage-free), so it only reports which hashes confirmed; the actual
	// refund and the resulting PaidBundleStorageFees/TotalStorageFee totals
	// are the caller's job.
	BundleHashes []BundleDigest
}

// BlockTree is the per-domain DAG of execution receipts (C1). It owns every
// BlockTreeNode exclusively; callers reference nodes only via domain block
// number or receipt hash (§3 ownership rule).
type BlockTree struct {
	domain DomainId

	// nodesByNumber holds exactly one canonical node per block number once
	// pruning has run to completion (invariant P2); during the window
	// between a fraud-proof prune and the arrival of replacement receipts
	// it may hold stale orphan entries above the (lowered) head, which
	// IsBadPendingPrune reports on.
	nodesByNumber map[uint64]*BlockTreeNode
	nodesByHash   map[[32]byte]*BlockTreeNode

	headReceiptNumber   uint64
	confirmedNumber     uint64 // latest_confirmed_block_number
	pruningDepth        uint64 // K

	consensusHashes ConsensusHashLookup

	// hashCache caches ConsensusBlockHashAt results by consensus block
	// number. A hash recorded at a height is never rewritten by the host
	// chain, so entries need no invalidation, only bounded retention (same
	// role lru.ARCCache plays for staking's OperatorEpochSharePrice cache).
	hashCache *lru.ARCCache
}

// NewBlockTree constructs a tree seeded with the immutable, unchallengeable
// genesis receipt (spec invariant 5). pruningDepth is K.
func NewBlockTree(domain DomainId, genesis ExecutionReceipt, pruningDepth uint64, lookup ConsensusHashLookup) *BlockTree {
	h := ExecutionReceiptHash(genesis)
	node := &BlockTreeNode{Receipt: genesis, Submitters: map[OperatorId]struct{}{}}
	cache, _ := lru.NewARC(consensusHashCacheSize)
	return &BlockTree{
		domain:          domain,
		nodesByNumber:   map[uint64]*BlockTreeNode{0: node},
		nodesByHash:     map[[32]byte]*BlockTreeNode{h: node},
		headReceiptNumber: 0,
		confirmedNumber: 0,
		pruningDepth:    pruningDepth,
		consensusHashes: lookup,
		hashCache:       cache,
	}
}

// consensusHashAt is ConsensusBlockHashAt with a bounded cache in front of
// it, since Classify calls it once per incoming receipt regardless of
// whether that receipt ever gets stored in the tree.
func (t *BlockTree) consensusHashAt(n uint64) ([32]byte, bool) {
	if v, ok := t.hashCache.Get(n); ok {
		return v.([32]byte), true
	}
	hash, ok := t.consensusHashes.ConsensusBlockHashAt(t.domain, n)
	if ok {
		t.hashCache.Add(n, hash)
	}
	return hash, ok
}

func (t *BlockTree) HeadReceiptNumber() uint64 { return t.headReceiptNumber }
func (t *BlockTree) LatestConfirmed() uint64   { return t.confirmedNumber }

// NodeAt returns the node stored at a given domain block number, if any.
func (t *BlockTree) NodeAt(bn uint64) (*BlockTreeNode, bool) {
	n, ok := t.nodesByNumber[bn]
	return n, ok
}

// NodeByHash returns the node with the given receipt hash, if any.
func (t *BlockTree) NodeByHash(hash [32]byte) (*BlockTreeNode, bool) {
	n, ok := t.nodesByHash[hash]
	return n, ok
}

// IsBadPendingPrune reports whether block number n is an orphan left behind
// by a head-lowering prune and not yet garbage collected (spec §4.1).
func (t *BlockTree) IsBadPendingPrune(n uint64) bool {
	if n <= t.headReceiptNumber {
		return false
	}
	_, exists := t.nodesByNumber[n]
	return exists
}

// Classify determines how receipt r relates to the current head, without
// mutating the tree (spec §4.1).
func (t *BlockTree) Classify(r ExecutionReceipt) (ReceiptType, error) {
	if r.DomainBlockNumber <= t.confirmedNumber && !(r.DomainBlockNumber == 0) {
		return ReceiptStale, blockTreeErr(ErrStale, "domain_block_number <= latest_confirmed")
	}
	if r.DomainBlockNumber > t.headReceiptNumber+1 {
		return ReceiptInFuture, blockTreeErr(ErrInFuture, "domain_block_number > head+1")
	}

	if hash, ok := t.consensusHashAt(r.ConsensusBlockNumber); ok {
		if hash != r.ConsensusBlockHash {
			return ReceiptBuiltOnUnknownConsensusBlock, blockTreeErr(ErrBuiltOnUnknownConsensusBlock, "consensus hash mismatch")
		}
	} else {
		return ReceiptUnavailableConsensusBlockHash, blockTreeErr(ErrUnavailableConsensusBlockHash, "no consensus hash recorded at that height")
	}

	if existing, ok := t.nodesByNumber[r.DomainBlockNumber]; ok {
		rh := ExecutionReceiptHash(r)
		eh := ExecutionReceiptHash(existing.Receipt)
		if rh == eh {
			if r.DomainBlockNumber == t.headReceiptNumber {
				return ReceiptCurrentHead, nil
			}
			// Same hash but not at head: treat as a duplicate vote on a
			// non-head node, still informative but not a new branch.
			return ReceiptCurrentHead, nil
		}
		if r.DomainBlockNumber == t.headReceiptNumber {
			return ReceiptNewBranch, blockTreeErr(ErrNewBranchReceipt, "differing receipt at head height")
		}
	}

	if r.DomainBlockNumber == t.headReceiptNumber+1 {
		parent, ok := t.nodesByNumber[t.headReceiptNumber]
		if !ok {
			return ReceiptUnknownParent, blockTreeErr(ErrUnknownParent, "no node at current head")
		}
		if ExecutionReceiptHash(parent.Receipt) != r.ParentDomainBlockReceiptHash {
			return ReceiptUnknownParent, blockTreeErr(ErrUnknownParent, "parent hash mismatch")
		}
		return ReceiptNewHead, nil
	}

	return ReceiptUnknownParent, blockTreeErr(ErrUnknownParent, "parent not found in tree")
}

// Process classifies and, if acceptable, applies receipt r submitted by
// operator op (spec §4.1). It returns the classification, an optional
// ConfirmedInfo when a node crosses the confirmation window, and an error
// for any rejecting classification (Stale/InFuture/UnknownParent/
// BuiltOnUnknownConsensusBlock/UnavailableConsensusBlockHash/NewBranch).
func (t *BlockTree) Process(r ExecutionReceipt, op OperatorId) (ReceiptType, *ConfirmedInfo, error) {
	kind, err := t.Classify(r)
	if err != nil {
		return kind, nil, err
	}

	switch kind {
	case ReceiptCurrentHead:
		if existing, ok := t.nodesByNumber[r.DomainBlockNumber]; ok {
			existing.Submitters[op] = struct{}{}
		}
		return kind, nil, nil

	case ReceiptNewHead:
		hash := ExecutionReceiptHash(r)
		node := &BlockTreeNode{Receipt: r, Submitters: map[OperatorId]struct{}{op: {}}}
		t.nodesByNumber[r.DomainBlockNumber] = node
		t.nodesByHash[hash] = node
		t.headReceiptNumber = r.DomainBlockNumber

		confirmed := t.advanceConfirmation()
		return kind, confirmed, nil

	default:
		return kind, nil, err
	}
}

// advanceConfirmation checks whether head-K has just become confirmable and,
// if so, marks it confirmed and emits ConfirmedInfo (spec §4.1). The
// confirmed node stays in the tree; no consensus-block-hash or
// execution-inbox entry is deleted on confirmation.
func (t *BlockTree) advanceConfirmation() *ConfirmedInfo {
	if t.headReceiptNumber < t.pruningDepth {
		return nil
	}
	target := t.headReceiptNumber - t.pruningDepth
	if target <= t.confirmedNumber {
		return nil
	}
	node, ok := t.nodesByNumber[target]
	if !ok {
		return nil
	}
	ops := make([]OperatorId, 0, len(node.Submitters))
	for id := range node.Submitters {
		ops = append(ops, id)
	}
	t.confirmedNumber = target

	// BlockFees is split evenly across every operator who submitted the
	// confirmed receipt (spec §4.5 step 1's reward source), with any
	// indivisible remainder going to no one rather than inventing a
	// tie-break the source does not specify.
	var rewards map[OperatorId]uint64
	if node.Receipt.BlockFees > 0 && len(ops) > 0 {
		share := node.Receipt.BlockFees / uint64(len(ops))
		if share > 0 {
			rewards = make(map[OperatorId]uint64, len(ops))
			for _, id := range ops {
				rewards[id] = share
			}
		}
	}

	return &ConfirmedInfo{
		DomainBlockNumber: target,
		OperatorIds:       ops,
		Rewards:           rewards,
		BundleHashes:      node.Receipt.BundleDigests,
	}
}

// Prune removes the node at (domain, bn), lowers the head if bn <= current
// head, and returns the removed node's operator set. Used both
// opportunistically (§4.1, replacing a same-height bad node) and explicitly
// on fraud-proof acceptance (§4.3). Genesis (bn == 0) can never be pruned
// (invariant 4, 5).
func (t *BlockTree) Prune(bn uint64) (*BlockTreeNode, error) {
	if bn == 0 {
		return nil, blockTreeErr(ErrGenesisReceiptImmutable, "genesis cannot be pruned")
	}
	node, ok := t.nodesByNumber[bn]
	if !ok {
		return nil, blockTreeErr(ErrNodeNotFound, "no node at that block number")
	}
	delete(t.nodesByNumber, bn)
	delete(t.nodesByHash, ExecutionReceiptHash(node.Receipt))

	if bn <= t.headReceiptNumber {
		t.headReceiptNumber = bn - 1
		if t.confirmedNumber > t.headReceiptNumber {
			// Never let confirmed exceed head (invariant 1).
			t.confirmedNumber = t.headReceiptNumber
		}
	}
	return node, nil
}

// NodeSnapshot flattens a BlockTreeNode for persistence: Submitters is a set
// in memory but a slice on the wire (runtime/store).
type NodeSnapshot struct {
	DomainBlockNumber uint64
	Receipt           ExecutionReceipt
	Submitters        []OperatorId
}

// Snapshot captures every node the tree currently holds plus head/confirmed
// bookkeeping. consensusHashes is not part of the snapshot: it is supplied
// fresh by the caller on Restore, the same as NewBlockTree's lookup argument.
type Snapshot struct {
	Domain            DomainId
	HeadReceiptNumber uint64
	ConfirmedNumber   uint64
	PruningDepth      uint64
	Nodes             []NodeSnapshot
}

func (t *BlockTree) Snapshot() Snapshot {
	snap := Snapshot{
		Domain:            t.domain,
		HeadReceiptNumber: t.headReceiptNumber,
		ConfirmedNumber:   t.confirmedNumber,
		PruningDepth:      t.pruningDepth,
	}
	for bn, node := range t.nodesByNumber {
		ops := make([]OperatorId, 0, len(node.Submitters))
		for id := range node.Submitters {
			ops = append(ops, id)
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{DomainBlockNumber: bn, Receipt: node.Receipt, Submitters: ops})
	}
	return snap
}

// RestoreBlockTree rebuilds a tree from a Snapshot, wired against lookup for
// future Classify/Process calls (runtime/store load path).
func RestoreBlockTree(snap Snapshot, lookup ConsensusHashLookup) *BlockTree {
	cache, _ := lru.NewARC(consensusHashCacheSize)
	t := &BlockTree{
		domain:            snap.Domain,
		nodesByNumber:     make(map[uint64]*BlockTreeNode, len(snap.Nodes)),
		nodesByHash:       make(map[[32]byte]*BlockTreeNode, len(snap.Nodes)),
		headReceiptNumber: snap.HeadReceiptNumber,
		confirmedNumber:   snap.ConfirmedNumber,
		pruningDepth:      snap.PruningDepth,
		consensusHashes:   lookup,
		hashCache:         cache,
	}
	for _, n := range snap.Nodes {
		submitters := make(map[OperatorId]struct{}, len(n.Submitters))
		for _, id := range n.Submitters {
			submitters[id] = struct{}{}
		}
		node := &BlockTreeNode{Receipt: n.Receipt, Submitters: submitters}
		t.nodesByNumber[n.DomainBlockNumber] = node
		t.nodesByHash[ExecutionReceiptHash(n.Receipt)] = node
	}
	return t
}
