package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationData records, per (order hash, merkle root) key, the last
// validated leaf and the next expected partial-fill index. Index is
// monotonically increasing per key and gates admission of the next fill.
type ValidationData struct {
	Leaf  common.Hash
	Index uint64
}

// TakerData is the decoded per-fill payload a taker supplies for a
// merkle-gated partial fill: the index of the claimed leaf, the secret hash
// forming the leaf, and the inclusion proof.
type TakerData struct {
	Index      uint64
	SecretHash common.Hash
	Proof      []common.Hash
}

// ExtraData is the decoded order extension carried alongside a fill. For
// single-fill orders HashlockInfo is the hashlock itself; for multi-fill
// orders it is the merkle root of the pre-committed secret leaves and
// PartsAmount is the number of equal parts the order splits into.
type ExtraData struct {
	HashlockInfo  common.Hash
	PartsAmount   uint64
	SafetyDeposit *big.Int
	Timelocks     Timelocks
}
