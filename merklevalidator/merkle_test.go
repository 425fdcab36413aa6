package merklevalidator

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree constructs a complete binary merkle tree over the leaves (padded
// with zero hashes to a power of two) and returns the root plus one
// inclusion proof per original leaf.
func buildTree(t *testing.T, leaves []common.Hash) (common.Hash, [][]common.Hash) {
	t.Helper()

	size := 1
	for size < len(leaves) {
		size *= 2
	}
	level := make([]common.Hash, size)
	copy(level, leaves)

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			var buf [64]byte
			copy(buf[:32], level[2*i].Bytes())
			copy(buf[32:], level[2*i+1].Bytes())
			next[i] = crypto.Keccak256Hash(buf[:])
		}
		levels = append(levels, next)
		level = next
	}

	proofs := make([][]common.Hash, len(leaves))
	for i := range leaves {
		idx := i
		for _, lvl := range levels[:len(levels)-1] {
			proofs[i] = append(proofs[i], lvl[idx^1])
			idx >>= 1
		}
	}
	return levels[len(levels)-1][0], proofs
}

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = crypto.Keccak256Hash([]byte(fmt.Sprintf("secret-%d", i)))
	}
	return leaves
}

func TestVerifyProof(t *testing.T) {
	leaves := testLeaves(6)
	root, proofs := buildTree(t, leaves)

	t.Run("every leaf verifies at its own index", func(t *testing.T) {
		for i, leaf := range leaves {
			assert.True(t, VerifyProof(proofs[i], leaf, uint64(i), root), "leaf %d", i)
		}
	})

	t.Run("wrong index fails", func(t *testing.T) {
		assert.False(t, VerifyProof(proofs[2], leaves[2], 3, root))
	})

	t.Run("wrong leaf fails", func(t *testing.T) {
		assert.False(t, VerifyProof(proofs[2], leaves[3], 2, root))
	})

	t.Run("wrong root fails", func(t *testing.T) {
		assert.False(t, VerifyProof(proofs[0], leaves[0], 0, crypto.Keccak256Hash([]byte("not the root"))))
	})
}

func TestProcessProofEmpty(t *testing.T) {
	leaf := crypto.Keccak256Hash([]byte("only"))
	require.Equal(t, leaf, ProcessProof(nil, leaf, 0))
}
