package types

import "math/big"

// MakerTraits carries the per-order flags the maker committed to when
// signing. The flags select the invalidation strategy and, for bit
// invalidation, the slot the order belongs to.
type MakerTraits struct {
	UseBitInvalidator bool
	UseEpochManager   bool
	HasExtension      bool
	NonceOrEpoch      uint64
	Series            uint64
}

// InvalidatorSlot returns the 256-order slot this order's nonce maps to.
func (mt MakerTraits) InvalidatorSlot() uint64 {
	return mt.NonceOrEpoch >> 8
}

// AllowMultipleFills reports whether the order may be filled in several
// chunks. Bit-invalidated orders are single-shot: one fill or one mass
// cancellation closes them entirely.
func (mt MakerTraits) AllowMultipleFills() bool {
	return !mt.UseBitInvalidator
}

// Order is a signed limit order created off-chain by the maker and submitted
// by a relayer. Cancellation is a state flag held by the invalidation engine,
// never a deletion.
type Order struct {
	Salt         uint64
	Maker        Identity
	Receiver     Identity
	MakerAsset   Identity
	TakerAsset   Identity
	MakingAmount *big.Int
	TakingAmount *big.Int
	// Expiration is a unix timestamp after which the order may no longer
	// be filled. Zero means the order never expires.
	Expiration  uint64
	MakerTraits MakerTraits
}

// Validate checks that the order amounts and parties are structurally sound.
func (o *Order) Validate() bool {
	return o.MakingAmount != nil && o.MakingAmount.Sign() > 0 &&
		o.TakingAmount != nil && o.TakingAmount.Sign() > 0 &&
		!o.Maker.IsZero() && !o.Receiver.IsZero() &&
		!o.MakerAsset.IsZero() && !o.TakerAsset.IsZero()
}
