package consensus

import "encoding/binary"

// Canonical, hand-rolled little-endian + CompactSize-length-prefixed
// encoding, unchanged in spirit from the teacher's BlockHeaderBytes /
// TxOutputBytes / WitnessBytes helpers: every variable-length field is
// prefixed with its CompactSize-encoded length, every fixed field is
// little-endian, and the whole thing is hashed with sha3-256.
//
// This is the "bitwise canonical-encoding contract" spec §9 calls for: the
// pre-image hash (ExecutionReceiptBytes / BundleHeaderPreimageBytes)
// and the signed hash must be computed from the same field order the wire
// decoder expects, or a divergent implementation would accept bundles this
// one rejects (or vice versa).

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendBytesWithLen(dst []byte, b []byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

// ExecutionReceiptBytes serializes an ExecutionReceipt into its canonical
// byte representation, used to compute its structural hash (§3, "a
// receipt is uniquely identified by its structural hash"). Fraud-proof
// claims compare the receipt's fields directly and do not use these bytes.
func ExecutionReceiptBytes(r ExecutionReceipt) []byte {
	out := make([]byte, 0, 256+32*len(r.ExecutionTrace)+64*len(r.BundleDigests))
	out = appendU64(out, r.ConsensusBlockNumber)
	out = append(out, r.ConsensusBlockHash[:]...)
	out = appendU64(out, r.DomainBlockNumber)
	out = append(out, r.DomainBlockHash[:]...)
	out = append(out, r.ParentDomainBlockReceiptHash[:]...)
	out = append(out, r.ExtrinsicsRoot[:]...)
	out = append(out, r.InherentExtrinsicsRoot[:]...)
	out = append(out, r.FinalStateRoot[:]...)

	out = AppendCompactSize(out, uint64(len(r.ExecutionTrace)))
	for _, root := range r.ExecutionTrace {
		out = append(out, root[:]...)
	}

	out = appendU64(out, r.BlockFees)
	out = appendU64(out, r.Transfers.TransfersIn)
	out = appendU64(out, r.Transfers.TransfersOut)
	out = appendU64(out, r.Transfers.RejectedTransfersIn)
	out = appendU64(out, r.Transfers.TransferFees)

	out = AppendCompactSize(out, uint64(len(r.BundleDigests)))
	for _, d := range r.BundleDigests {
		out = append(out, d.BundleHeaderHash[:]...)
		out = append(out, d.ExtrinsicsRoot[:]...)
		out = appendU64(out, d.Size)
	}
	return out
}

// ExecutionReceiptHash returns the structural hash identifying r.
func ExecutionReceiptHash(r ExecutionReceipt) [32]byte {
	return sha3_256(ExecutionReceiptBytes(r))
}

// BundleHeaderPreimageBytes serializes a SealedBundleHeader excluding its
// signature field. The signature covers this preimage's hash, never a hash
// of BundleHeaderSignedBytes —
// spec §4.2 check 2 and §9 call this out as load-bearing: a malicious
// operator who rotates keys cannot re-sign an already-inboxed bundle and
// have it key a *different* InboxedBundleAuthor entry, because the
// preimage (and therefore the anti-replay key) never changes under
// re-signing.
func BundleHeaderPreimageBytes(h SealedBundleHeader) []byte {
	out := make([]byte, 0, 256)
	out = appendU64(out, uint64(h.ProofOfElection.DomainId))
	out = appendU64(out, h.ProofOfElection.SlotNumber)
	out = append(out, h.ProofOfElection.VrfOutput[:]...)
	out = append(out, h.ProofOfElection.VrfProof[:]...)
	out = appendU64(out, uint64(h.ProofOfElection.OperatorId))

	out = appendU64(out, h.ProofOfTime.SlotNumber)
	out = append(out, h.ProofOfTime.PotOutput[:]...)
	out = append(out, h.ProofOfTime.BlockHashProducedAfter[:]...)

	out = appendU64(out, h.SlotNumber)
	out = append(out, h.ExtrinsicsRoot[:]...)
	out = append(out, ExecutionReceiptHash(h.Receipt)[:]...)
	out = appendU64(out, h.BundleSize)

	out = AppendCompactSize(out, uint64(len(h.EncodedExtrinsicsLen)))
	for _, n := range h.EncodedExtrinsicsLen {
		out = appendU64(out, n)
	}
	return out
}

// BundleHeaderPreimageHash is the hash the signature covers and the key
// under which InboxedBundleAuthor indexes accepted bundles (spec §4.2 check
// 2-3, §9).
func BundleHeaderPreimageHash(h SealedBundleHeader) [32]byte {
	return sha3_256(BundleHeaderPreimageBytes(h))
}

// BundleHeaderSignedBytes is the preimage plus the signature, used only to
// compute a distinct "signed hash" for wire/gossip deduplication — this
// hash must NEVER be used as the InboxedBundleAuthor key (see
// BundleHeaderPreimageHash doc).
func BundleHeaderSignedBytes(h SealedBundleHeader) []byte {
	out := appendBytesWithLen(nil, BundleHeaderPreimageBytes(h))
	return append(out, h.Signature[:]...)
}

// EncodeExtrinsicsForRoot canonically encodes each extrinsic with a
// length prefix and hashes it into a leaf id, mirroring the domain
// header's ordered-trie hashing with binary-state version (spec §4.2
// check 5). The caller supplies the already-encoded extrinsic bytes.
func EncodeExtrinsicsForRoot(extrinsics [][]byte) [][32]byte {
	leaves := make([][32]byte, len(extrinsics))
	for i, e := range extrinsics {
		leaves[i] = sha3_256(appendBytesWithLen(nil, e))
	}
	return leaves
}

// ComputeExtrinsicsRoot recomputes the extrinsics root from raw extrinsic
// bytes, used by bundle validation check 5.
func ComputeExtrinsicsRoot(extrinsics [][]byte) ([32]byte, error) {
	if len(extrinsics) == 0 {
		var zero [32]byte
		return zero, nil
	}
	return MerkleRootLeaves(EncodeExtrinsicsForRoot(extrinsics))
}
