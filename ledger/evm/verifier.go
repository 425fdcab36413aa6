package evm

import (
	"fmt"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Verifier checks maker signatures by ECDSA public-key recovery. It accepts
// signatures produced by Signer.Sign: the 32-byte order hash signed under
// the personal-message prefix, with V encoded as 27/28.
type Verifier struct{}

// NewVerifier creates a recovery-based signature verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify returns an error unless signature is a valid signature of
// orderHash by the maker's address.
func (v *Verifier) Verify(orderHash common.Hash, signature []byte, maker types.Identity) error {
	if len(signature) != crypto.SignatureLength {
		return errors.Errorf("invalid signature length %d", len(signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(orderHash), orderHash.Bytes())))

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return errors.Wrap(err, "failed to recover public key")
	}

	if crypto.PubkeyToAddress(*pubKey) != common.HexToAddress(string(maker)) {
		return errors.New("recovered signer does not match maker")
	}

	return nil
}
