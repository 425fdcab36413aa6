package types

import (
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Immutables is the complete, content-addressed description of one escrow
// leg. Two legs of the same swap share OrderHash and Hashlock but differ in
// maker, taker, token and amount. The struct is built once by the factory,
// passed by value into every escrow call and never mutated; all mutable
// state lives in the invalidator stores and on-ledger balances.
type Immutables struct {
	OrderHash     common.Hash
	Hashlock      common.Hash
	Maker         Identity
	Taker         Identity
	Token         Identity
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     Timelocks
}

// Validate checks the structural invariants of the immutables. A zero swap
// amount is reported with its own sentinel so callers can distinguish it
// from other malformed inputs.
func (im *Immutables) Validate() error {
	if im.Amount == nil || im.Amount.Sign() <= 0 {
		return commonerrors.ErrSwapWithZeroAmount
	}
	if im.SafetyDeposit == nil || im.SafetyDeposit.Sign() < 0 {
		return commonerrors.ErrInvalidImmutables
	}
	if im.Maker.IsZero() || im.Taker.IsZero() || im.Token.IsZero() {
		return commonerrors.ErrInvalidImmutables
	}
	return nil
}
