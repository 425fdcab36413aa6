package merklevalidator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProcessProof reconstructs the merkle root bottom-up from a leaf and its
// inclusion proof. At level i the sibling order follows bit i of the leaf
// index: a zero bit keeps the running hash as the left child.
func ProcessProof(proof []common.Hash, leaf common.Hash, index uint64) common.Hash {
	current := leaf
	for i, node := range proof {
		var buf [64]byte
		if (index>>uint(i))&1 == 0 {
			copy(buf[:32], current.Bytes())
			copy(buf[32:], node.Bytes())
		} else {
			copy(buf[:32], node.Bytes())
			copy(buf[32:], current.Bytes())
		}
		current = crypto.Keccak256Hash(buf[:])
	}
	return current
}

// VerifyProof reports whether the (leaf, index, proof) triple reconstructs
// the committed root.
func VerifyProof(proof []common.Hash, leaf common.Hash, index uint64, root common.Hash) bool {
	return ProcessProof(proof, leaf, index) == root
}
