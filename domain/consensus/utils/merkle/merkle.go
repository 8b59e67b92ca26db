package merkle

import (
	"math"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/hashes"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// nextPowerOfTwo returns the next highest power of two from a given number if
// it is not already a power of two. This is a helper function used during the
// calculation of a merkle tree.
func nextPowerOfTwo(n int) int {
	// Return the number if it's already a power of 2.
	if n&(n-1) == 0 {
		return n
	}

	// Figure out and return the next power of two.
	exponent := uint(math.Log2(float64(n))) + 1
	return 1 << exponent // 2^exponent
}

// hashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation. This is a helper
// function used to aid in the generation of a merkle tree.
func hashMerkleBranches(left, right *externalapi.DomainHash) externalapi.DomainHash {
	w := hashes.NewMerkleBranchHashWriter()
	w.InfallibleWrite(left[:])
	w.InfallibleWrite(right[:])
	return w.Finalize()
}

// CalculateEntriesRoot returns the merkle root of checkpoint entries. The
// leaves are the hashes of the serialized entries, in block order.
func CalculateEntriesRoot(entries []*externalapi.CheckpointEntry) externalapi.DomainHash {
	leaves := make([]externalapi.DomainHash, len(entries))
	for i, entry := range entries {
		w := hashes.NewMerkleBranchHashWriter()
		mustSerialize(serialization.SerializeCheckpointEntry(w, entry))
		leaves[i] = w.Finalize()
	}
	return merkleRoot(leaves)
}

// CalculateRewardsRoot returns the merkle root of block rewards.
func CalculateRewardsRoot(rewards []*externalapi.Reward) externalapi.DomainHash {
	leaves := make([]externalapi.DomainHash, len(rewards))
	for i, reward := range rewards {
		w := hashes.NewMerkleBranchHashWriter()
		mustSerialize(serialization.SerializeReward(w, reward))
		leaves[i] = w.Finalize()
	}
	return merkleRoot(leaves)
}

// merkleRoot creates a merkle tree from the leaves and returns its root.
// An empty set of leaves has the zero hash as root.
//
// The tree is stored in a linear array: the leaves first, then the next
// level up, with the root last. Missing right nodes are treated as empty
// (nil) and a parent with only a left child hashes the left child with
// itself.
func merkleRoot(leaves []externalapi.DomainHash) externalapi.DomainHash {
	if len(leaves) == 0 {
		return externalapi.ZeroHash
	}

	nextPoT := nextPowerOfTwo(len(leaves))
	arraySize := nextPoT*2 - 1
	merkles := make([]*externalapi.DomainHash, arraySize)
	for i := range leaves {
		merkles[i] = &leaves[i]
	}

	// Start the array offset after the last leaf and adjusted to the
	// next power of two.
	offset := nextPoT
	for i := 0; i < arraySize-1; i += 2 {
		switch {
		// When there is no left child node, the parent is nil too.
		case merkles[i] == nil:
			merkles[offset] = nil

		// When there is no right child, the parent is generated by
		// hashing the concatenation of the left child with itself.
		case merkles[i+1] == nil:
			newHash := hashMerkleBranches(merkles[i], merkles[i])
			merkles[offset] = &newHash

		// The normal case sets the parent node to the hash
		// of the concatentation of the left and right children.
		default:
			newHash := hashMerkleBranches(merkles[i], merkles[i+1])
			merkles[offset] = &newHash
		}
		offset++
	}

	return *merkles[len(merkles)-1]
}

func mustSerialize(err error) {
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
}
