package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Clock provides ledger-consensus time.
type Clock interface {
	// Now returns the current consensus timestamp in unix seconds.
	Now() uint64
}

// Ledger provides the host chain's token-transfer primitive. Transfers are
// fire-and-forget: a transfer that cannot be covered by the sender's balance
// must fail the whole enclosing call, never move a partial amount.
type Ledger interface {
	// Transfer moves amount of asset from one account to another.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - asset: the asset identifier (NativeAsset for the chain's native token).
	// - from: the funding account.
	// - to: the receiving account.
	// - amount: the amount to move.
	//
	// Returns:
	// - error: an error if the sender's balance cannot cover the amount.
	Transfer(ctx context.Context, asset Identity, from, to Identity, amount *big.Int) error
}

// AccessController gates the public withdraw/cancel variants.
type AccessController interface {
	// HoldsAccessCredential reports whether the caller holds the credential
	// required to execute public operations on behalf of absent parties.
	HoldsAccessCredential(caller Identity) bool
}

// SignatureVerifier validates a maker's signature over an order hash.
// Integrators supply a scheme matching their host ledger's account model;
// ledger/evm ships an ECDSA recovery scheme.
type SignatureVerifier interface {
	// Verify returns an error if signature is not a valid signature of
	// orderHash by maker.
	Verify(orderHash common.Hash, signature []byte, maker Identity) error
}

// BitInvalidatorStore persists per-maker bit-invalidation slots.
type BitInvalidatorStore interface {
	// BitInvalidator returns the maker's slot record, or nil if the maker
	// has never invalidated a slot.
	BitInvalidator(ctx context.Context, maker Identity) (*BitInvalidatorData, error)

	// PutBitInvalidator stores the maker's slot record.
	PutBitInvalidator(ctx context.Context, maker Identity, data *BitInvalidatorData) error
}

// RemainingStore persists per-(maker, order hash) remaining fillable amounts.
// Absence of an entry means the order is fully open, which is semantically
// distinct from an entry holding zero.
type RemainingStore interface {
	// Remaining returns the stored invalidator for the order, or nil if the
	// order has never been touched.
	Remaining(ctx context.Context, maker Identity, orderHash common.Hash) (*RemainingInvalidator, error)

	// PutRemaining stores the invalidator for the order.
	PutRemaining(ctx context.Context, maker Identity, orderHash common.Hash, inv *RemainingInvalidator) error
}

// ValidationStore persists merkle validation progress keyed by the
// keccak(order hash, root) validation key.
type ValidationStore interface {
	// Validation returns the stored validation data for the key, or nil if
	// no fill has been validated under it.
	Validation(ctx context.Context, key common.Hash) (*ValidationData, error)

	// PutValidation stores validation data for the key.
	PutValidation(ctx context.Context, key common.Hash, data *ValidationData) error
}
