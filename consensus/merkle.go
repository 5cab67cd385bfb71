package consensus

import "fmt"

// MerkleRootLeaves computes the ordered-trie hash of a bundle's extrinsic
// leaves for extrinsics-root verification (bundle check 5). The tagged
// leaf/node hashing scheme (domain-separating leaves from internal nodes, and
// carrying an odd trailing node forward unchanged rather than duplicating it)
// is unchanged from the teacher's transaction-id Merkle root.
func MerkleRootLeaves(leaves [][32]byte) ([32]byte, error) {
	return merkleRootTagged(leaves, 0x00, 0x01)
}

func merkleRootTagged(ids [][32]byte, leafTag byte, nodeTag byte) ([32]byte, error) {
	var zero [32]byte
	if len(ids) == 0 {
		return zero, fmt.Errorf("merkle: empty leaf list")
	}

	level := make([][32]byte, 0, len(ids))
	var leafPreimage [1 + 32]byte
	leafPreimage[0] = leafTag
	for _, id := range ids {
		copy(leafPreimage[1:], id[:])
		level = append(level, sha3_256(leafPreimage[:]))
	}

	var nodePreimage [1 + 32 + 32]byte
	nodePreimage[0] = nodeTag
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				// Odd promotion rule: carry forward unchanged.
				next = append(next, level[i])
				i++
				continue
			}
			copy(nodePreimage[1:33], level[i][:])
			copy(nodePreimage[33:], level[i+1][:])
			next = append(next, sha3_256(nodePreimage[:]))
			i += 2
		}
		level = next
	}

	return level[0], nil
}
