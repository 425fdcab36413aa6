package hashutil

import (
	"encoding/binary"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed type hashes. The type strings pin the field layout so that
// off-chain signers and both ledgers agree on every order hash.
var (
	// OrderTypeHash commits to the order struct layout.
	OrderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(uint64 salt,account maker,account receiver,account makerAsset,account takerAsset,uint256 makingAmount,uint256 takingAmount,uint64 expiration,bytes32 makerTraits)",
	))

	// MakerTraitsTypeHash commits to the maker traits layout.
	MakerTraitsTypeHash = crypto.Keccak256Hash([]byte(
		"MakerTraits(bool useBitInvalidator,bool useEpochManager,bool hasExtension,uint64 nonceOrEpoch,uint64 series)",
	))
)

// HashBytes returns the Keccak-256 digest of a byte buffer.
func HashBytes(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}

// HashSecret returns the hashlock commitment for a 32-byte secret. Both legs
// of a swap must use this exact function or the revealed secret will not
// unlock the counterparty escrow.
func HashSecret(secret [32]byte) common.Hash {
	return crypto.Keccak256Hash(secret[:])
}

// HashMakerTraits hashes the maker traits into the order hash preimage.
func HashMakerTraits(traits types.MakerTraits) common.Hash {
	buf := make([]byte, 0, 32+3+16)
	buf = append(buf, MakerTraitsTypeHash.Bytes()...)
	buf = append(buf, boolByte(traits.UseBitInvalidator), boolByte(traits.UseEpochManager), boolByte(traits.HasExtension))
	buf = appendUint64(buf, traits.NonceOrEpoch)
	buf = appendUint64(buf, traits.Series)
	return crypto.Keccak256Hash(buf)
}

// HashOrder computes the canonical order hash under a domain separator.
// Layout: 0x19 0x01 prefix, domain separator, then the keccak of the packed
// order struct. Account identifiers are hashed before packing so the
// encoding stays fixed-width regardless of identifier length.
func HashOrder(order *types.Order, domainSeparator common.Hash) common.Hash {
	buf := make([]byte, 0, 32*9)
	buf = append(buf, OrderTypeHash.Bytes()...)
	buf = appendUint64(buf, order.Salt)
	buf = append(buf, crypto.Keccak256(order.Maker.Bytes())...)
	buf = append(buf, crypto.Keccak256(order.Receiver.Bytes())...)
	buf = append(buf, crypto.Keccak256(order.MakerAsset.Bytes())...)
	buf = append(buf, crypto.Keccak256(order.TakerAsset.Bytes())...)
	buf = append(buf, common.LeftPadBytes(order.MakingAmount.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(order.TakingAmount.Bytes(), 32)...)
	buf = appendUint64(buf, order.Expiration)
	buf = append(buf, HashMakerTraits(order.MakerTraits).Bytes()...)
	structHash := crypto.Keccak256(buf)

	preimage := make([]byte, 0, 2+32+32)
	preimage = append(preimage, 0x19, 0x01)
	preimage = append(preimage, domainSeparator.Bytes()...)
	preimage = append(preimage, structHash...)
	return crypto.Keccak256Hash(preimage)
}

// ValidationKey derives the storage key for merkle validation progress from
// the order hash and the committed root.
func ValidationKey(orderHash, root common.Hash) common.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, orderHash.Bytes()...)
	buf = append(buf, root.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// EscrowSalt derives the deterministic identity of an escrow leg from its
// immutables. Two identical immutables always address the same escrow.
func EscrowSalt(im *types.Immutables) common.Hash {
	buf := make([]byte, 0, 32*8+8*8)
	buf = append(buf, im.OrderHash.Bytes()...)
	buf = append(buf, im.Hashlock.Bytes()...)
	buf = append(buf, crypto.Keccak256(im.Maker.Bytes())...)
	buf = append(buf, crypto.Keccak256(im.Taker.Bytes())...)
	buf = append(buf, crypto.Keccak256(im.Token.Bytes())...)
	buf = append(buf, common.LeftPadBytes(im.Amount.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(im.SafetyDeposit.Bytes(), 32)...)
	tl := im.Timelocks
	for _, v := range []uint64{
		tl.DeployedAt,
		tl.SrcWithdrawal, tl.SrcPublicWithdrawal, tl.SrcCancellation, tl.SrcPublicCancellation,
		tl.DstWithdrawal, tl.DstPublicWithdrawal, tl.DstCancellation,
	} {
		buf = appendUint64(buf, v)
	}
	return crypto.Keccak256Hash(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
