package types

// Identity is an opaque, comparable account identifier on a host ledger.
// Both escrow legs use the same representation even when the underlying
// chains derive addresses differently.
type Identity string

// NativeAsset is the reserved asset identifier for the host chain's native
// token. Transfers of NativeAsset settle directly instead of going through
// a token contract.
const NativeAsset Identity = "native"

// Bytes returns the byte-serializable representation used inside hashing.
func (i Identity) Bytes() []byte {
	return []byte(i)
}

func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return len(i) == 0
}
