// Package merklevalidator verifies claimed (secret, index) pairs against a
// committed merkle root and enforces strictly increasing, contiguous fill
// ordering across repeated partial fills of the same order. A maker commits
// off-chain to N secrets, hashes them into leaves and publishes the root;
// each partial fill then unlocks exactly one new leaf.
package merklevalidator

import (
	"context"
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/hashutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Validator validates merkle-gated partial fills against an injected
// validation store keyed by keccak(order hash, root).
type Validator struct {
	store  types.ValidationStore
	logger *logrus.Logger
}

// New creates a merkle validator.
//
// Parameters:
// - store: the validation-progress store.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Validator: the new validator instance.
func New(store types.ValidationStore, logger *logrus.Logger) *Validator {
	return &Validator{
		store:  store,
		logger: logger,
	}
}

// TakerInteraction verifies the taker's inclusion proof for the claimed
// (secret hash, index) pair and records it as the last validated leaf,
// advancing the index expectation for the next fill. Fails closed when the
// reconstructed root mismatches.
func (v *Validator) TakerInteraction(ctx context.Context, orderHash, root common.Hash, td *types.TakerData) error {
	if !VerifyProof(td.Proof, td.SecretHash, td.Index, root) {
		return commonerrors.ErrInvalidProof
	}

	key := hashutil.ValidationKey(orderHash, root)
	data := &types.ValidationData{
		Leaf:  td.SecretHash,
		Index: td.Index + 1,
	}
	if err := v.store.PutValidation(ctx, key, data); err != nil {
		return errors.Wrap(err, "failed to store validation data")
	}

	v.logger.WithFields(logrus.Fields{
		"orderHash": orderHash.Hex(),
		"index":     td.Index,
	}).Info("Merkle proof validated")
	return nil
}

// LastValidated returns the stored validation progress for the
// (order hash, root) pair, or nil if no proof has been validated yet.
func (v *Validator) LastValidated(ctx context.Context, orderHash, root common.Hash) (*types.ValidationData, error) {
	return v.store.Validation(ctx, hashutil.ValidationKey(orderHash, root))
}

// CheckPartialFill admits or rejects a fill of fillAmount against the order's
// committed secret schedule and returns the hashlock the resulting escrow leg
// must use (the last validated leaf).
//
// The fill's position is calculatedIndex = ceil(filledAfter * parts / total)
// - 1, where filledAfter includes this fill. The supplied (and previously
// proof-checked) index must then be:
//   - calculatedIndex + 2 when the fill exactly completes the order (the
//     "one past last part" sentinel reserved for the final top-up);
//   - calculatedIndex + 1 otherwise, and for non-first fills the fill must
//     additionally cross into a new leaf's chunk, or no new secret may be
//     consumed.
func (v *Validator) CheckPartialFill(
	ctx context.Context,
	orderHash, root common.Hash,
	partsAmount uint64,
	orderMakingAmount, remainingBefore, fillAmount *big.Int,
) (common.Hash, error) {
	if partsAmount < 2 {
		return common.Hash{}, commonerrors.ErrInvalidSecretsAmount
	}
	if fillAmount == nil || fillAmount.Sign() <= 0 {
		return common.Hash{}, commonerrors.ErrInvalidPartialFill
	}

	validated, err := v.LastValidated(ctx, orderHash, root)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to load validation data")
	}
	if validated == nil || validated.Index == 0 {
		// No proof has been presented for this fill.
		return common.Hash{}, commonerrors.ErrInvalidPartialFill
	}
	suppliedIndex := validated.Index - 1

	filledAfter := new(big.Int).Sub(orderMakingAmount, remainingBefore)
	filledAfter.Add(filledAfter, fillAmount)
	calculatedIndex := ceilIndex(filledAfter, partsAmount, orderMakingAmount)

	switch {
	case remainingBefore.Cmp(fillAmount) == 0:
		// Fill completes the order: the final top-up consumes the sentinel
		// leaf one past the last part.
		if suppliedIndex != calculatedIndex+2 {
			return common.Hash{}, commonerrors.ErrInvalidPartialFill
		}
	case remainingBefore.Cmp(orderMakingAmount) != 0:
		// Not the first fill: reject fills that stay inside the chunk the
		// previous fill already unlocked.
		filledBefore := new(big.Int).Sub(orderMakingAmount, remainingBefore)
		prevCalculatedIndex := ceilIndex(filledBefore, partsAmount, orderMakingAmount)
		if prevCalculatedIndex == calculatedIndex || suppliedIndex != calculatedIndex+1 {
			return common.Hash{}, commonerrors.ErrInvalidPartialFill
		}
	default:
		if suppliedIndex != calculatedIndex+1 {
			return common.Hash{}, commonerrors.ErrInvalidPartialFill
		}
	}

	return validated.Leaf, nil
}

// ceilIndex computes ceil(filled * parts / total) - 1 with integer ceiling
// division.
func ceilIndex(filled *big.Int, parts uint64, total *big.Int) uint64 {
	num := new(big.Int).Mul(filled, new(big.Int).SetUint64(parts))
	num.Add(num, new(big.Int).Sub(total, big.NewInt(1)))
	num.Div(num, total)
	return num.Uint64() - 1
}
