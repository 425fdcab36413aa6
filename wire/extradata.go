// Package wire encodes and decodes the byte payloads that cross the
// protocol boundary: the order extension ("extra data") carried with a fill
// and the taker's merkle payload. Records are decoded once, at the boundary,
// with explicit errors for truncated or unknown input.
package wire

import (
	"bytes"
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"
)

// ExtraDataVersion tags the current extra-data record layout. Decoders
// reject unknown versions instead of guessing at offsets.
const ExtraDataVersion byte = 1

// EncodeExtraData serializes an extra-data record: version tag, 32-byte
// hashlock-or-root, parts count, safety deposit and the timelocks.
func EncodeExtraData(extra *types.ExtraData) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)

	if err := enc.WriteByte(ExtraDataVersion); err != nil {
		return nil, errors.Wrap(err, "failed to encode extra data version")
	}
	if err := enc.WriteBytes(extra.HashlockInfo.Bytes(), false); err != nil {
		return nil, errors.Wrap(err, "failed to encode hashlock info")
	}
	if err := enc.WriteUint64(extra.PartsAmount, bin.LE); err != nil {
		return nil, errors.Wrap(err, "failed to encode parts amount")
	}
	deposit := extra.SafetyDeposit
	if deposit == nil {
		deposit = new(big.Int)
	}
	depositWord := bin.Uint128{
		Lo: deposit.Uint64(),
		Hi: new(big.Int).Rsh(deposit, 64).Uint64(),
	}
	if err := enc.WriteUint128(depositWord, bin.LE); err != nil {
		return nil, errors.Wrap(err, "failed to encode safety deposit")
	}
	for _, v := range timelockWords(extra.Timelocks) {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return nil, errors.Wrap(err, "failed to encode timelocks")
		}
	}

	return buf.Bytes(), nil
}

// DecodeExtraData parses a versioned extra-data record. Truncated buffers
// and unknown versions fail with ErrInvalidExtraData.
func DecodeExtraData(data []byte) (*types.ExtraData, error) {
	dec := bin.NewBinDecoder(data)

	version, err := dec.ReadByte()
	if err != nil {
		return nil, commonerrors.ErrInvalidExtraData
	}
	if version != ExtraDataVersion {
		return nil, errors.Wrapf(commonerrors.ErrInvalidExtraData, "unknown extra data version %d", version)
	}

	hashlockInfo, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "truncated hashlock info")
	}
	partsAmount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "truncated parts amount")
	}
	depositWord, err := dec.ReadUint128(bin.LE)
	if err != nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "truncated safety deposit")
	}

	var words [8]uint64
	for i := range words {
		words[i], err = dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, errors.Wrap(commonerrors.ErrInvalidExtraData, "truncated timelocks")
		}
	}

	deposit := new(big.Int).SetUint64(depositWord.Hi)
	deposit.Lsh(deposit, 64)
	deposit.Or(deposit, new(big.Int).SetUint64(depositWord.Lo))

	return &types.ExtraData{
		HashlockInfo:  common.BytesToHash(hashlockInfo),
		PartsAmount:   partsAmount,
		SafetyDeposit: deposit,
		Timelocks: types.Timelocks{
			DeployedAt:            words[0],
			SrcWithdrawal:         words[1],
			SrcPublicWithdrawal:   words[2],
			SrcCancellation:       words[3],
			SrcPublicCancellation: words[4],
			DstWithdrawal:         words[5],
			DstPublicWithdrawal:   words[6],
			DstCancellation:       words[7],
		},
	}, nil
}

func timelockWords(t types.Timelocks) [8]uint64 {
	return [8]uint64{
		t.DeployedAt,
		t.SrcWithdrawal, t.SrcPublicWithdrawal, t.SrcCancellation, t.SrcPublicCancellation,
		t.DstWithdrawal, t.DstPublicWithdrawal, t.DstCancellation,
	}
}
