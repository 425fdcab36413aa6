package wire

import (
	"encoding/binary"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Taker data layout is bit-exact for cross-implementation compatibility:
// 8-byte little-endian index, 32-byte secret hash, then a flat run of
// 32-byte proof nodes.
const (
	takerDataIndexSize  = 8
	takerDataSecretSize = 32
	takerDataProofNode  = 32
	takerDataMinSize    = takerDataIndexSize + takerDataSecretSize
)

// EncodeTakerData serializes the taker's merkle payload.
func EncodeTakerData(td *types.TakerData) []byte {
	out := make([]byte, takerDataMinSize+len(td.Proof)*takerDataProofNode)
	binary.LittleEndian.PutUint64(out[:takerDataIndexSize], td.Index)
	copy(out[takerDataIndexSize:takerDataMinSize], td.SecretHash.Bytes())
	for i, node := range td.Proof {
		copy(out[takerDataMinSize+i*takerDataProofNode:], node.Bytes())
	}
	return out
}

// DecodeTakerData parses the taker's merkle payload. A buffer shorter than
// the fixed header or with a ragged proof tail fails with
// ErrInvalidExtraData.
func DecodeTakerData(data []byte) (*types.TakerData, error) {
	if len(data) < takerDataMinSize {
		return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "truncated taker data")
	}
	if (len(data)-takerDataMinSize)%takerDataProofNode != 0 {
		return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "ragged proof tail")
	}

	td := &types.TakerData{
		Index:      binary.LittleEndian.Uint64(data[:takerDataIndexSize]),
		SecretHash: common.BytesToHash(data[takerDataIndexSize:takerDataMinSize]),
	}

	proofData := data[takerDataMinSize:]
	td.Proof = make([]common.Hash, 0, len(proofData)/takerDataProofNode)
	for off := 0; off < len(proofData); off += takerDataProofNode {
		td.Proof = append(td.Proof, common.BytesToHash(proofData[off:off+takerDataProofNode]))
	}

	return td, nil
}
