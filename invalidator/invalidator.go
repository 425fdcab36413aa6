// Package invalidator implements the two order-invalidation strategies of
// the limit-order layer: a bit-mask "mass invalidate" strategy for orders
// that never partially fill, and a remaining-amount strategy for orders that
// do. Strategy selection is per-order via MakerTraits.
package invalidator

import (
	"context"
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine applies invalidation state transitions against injected stores, so
// the same logic runs over the in-memory stores in tests and the Postgres
// stores in a deployment.
type Engine struct {
	bits      types.BitInvalidatorStore
	remaining types.RemainingStore
	logger    *logrus.Logger
}

// New creates an invalidation engine.
//
// Parameters:
// - bits: the per-maker bit-invalidation store.
// - remaining: the per-order remaining-amount store.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Engine: the new engine instance.
func New(bits types.BitInvalidatorStore, remaining types.RemainingStore, logger *logrus.Logger) *Engine {
	return &Engine{
		bits:      bits,
		remaining: remaining,
		logger:    logger,
	}
}

// CancelOrder invalidates a single order on behalf of its maker. For
// bit-invalidated orders this marks the whole 256-order slot the nonce maps
// to; for partial-fill orders it zeroes the remaining amount directly.
func (e *Engine) CancelOrder(ctx context.Context, maker types.Identity, traits types.MakerTraits, orderHash common.Hash) error {
	if traits.UseBitInvalidator {
		data, err := e.bits.BitInvalidator(ctx, maker)
		if err != nil {
			return errors.Wrap(err, "failed to load bit invalidator")
		}
		if data == nil {
			data = types.NewBitInvalidatorData()
		}
		slot := data.MassInvalidate(traits.NonceOrEpoch)
		if err := e.bits.PutBitInvalidator(ctx, maker, data); err != nil {
			return errors.Wrap(err, "failed to store bit invalidator")
		}

		e.logger.WithFields(logrus.Fields{
			"maker": maker,
			"slot":  slot,
		}).Info("Bit invalidator slot marked")
		return nil
	}

	if err := e.remaining.PutRemaining(ctx, maker, orderHash, types.FullyFilled()); err != nil {
		return errors.Wrap(err, "failed to store remaining invalidator")
	}

	e.logger.WithFields(logrus.Fields{
		"maker":     maker,
		"orderHash": orderHash.Hex(),
	}).Info("Order cancelled")
	return nil
}

// CancelOrders invalidates a batch of orders. The traits and hash slices
// must pair up element-wise; a length mismatch is a hard caller error.
func (e *Engine) CancelOrders(ctx context.Context, maker types.Identity, traits []types.MakerTraits, orderHashes []common.Hash) error {
	if len(traits) != len(orderHashes) {
		return commonerrors.ErrMismatchArraysLengths
	}
	for i := range traits {
		if err := e.CancelOrder(ctx, maker, traits[i], orderHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// IsOrderInvalidated reports whether the order can no longer be filled.
// Bit-invalidated orders check slot membership. Remaining-amount orders are
// invalidated only once an entry exists and holds zero: an order that was
// never touched is fully open, not invalidated.
func (e *Engine) IsOrderInvalidated(ctx context.Context, order *types.Order, orderHash common.Hash) (bool, error) {
	if order.MakerTraits.UseBitInvalidator {
		data, err := e.bits.BitInvalidator(ctx, order.Maker)
		if err != nil {
			return false, errors.Wrap(err, "failed to load bit invalidator")
		}
		return data.CheckSlot(order.MakerTraits.InvalidatorSlot()), nil
	}

	inv, err := e.remaining.Remaining(ctx, order.Maker, orderHash)
	if err != nil {
		return false, errors.Wrap(err, "failed to load remaining invalidator")
	}
	return inv != nil && inv.IsExhausted(), nil
}

// IsSlotInvalidated reports whether a maker's 256-order slot has been
// marked.
func (e *Engine) IsSlotInvalidated(ctx context.Context, maker types.Identity, slot uint64) (bool, error) {
	data, err := e.bits.BitInvalidator(ctx, maker)
	if err != nil {
		return false, errors.Wrap(err, "failed to load bit invalidator")
	}
	return data.CheckSlot(slot), nil
}

// RemainingFor returns the amount of the order still open to fills. An order
// with no stored entry is fully open and reports its full making amount.
func (e *Engine) RemainingFor(ctx context.Context, order *types.Order, orderHash common.Hash) (*big.Int, error) {
	inv, err := e.remaining.Remaining(ctx, order.Maker, orderHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load remaining invalidator")
	}
	if inv == nil {
		return new(big.Int).Set(order.MakingAmount), nil
	}
	return inv.Remaining(), nil
}

// RecordFill debits a fill from the order's remaining amount. Bit-invalidated
// orders instead consume their slot entirely: a single fill closes them.
func (e *Engine) RecordFill(ctx context.Context, order *types.Order, orderHash common.Hash, makingAmountFilled *big.Int) error {
	if order.MakerTraits.UseBitInvalidator {
		return e.CancelOrder(ctx, order.Maker, order.MakerTraits, orderHash)
	}

	remaining, err := e.RemainingFor(ctx, order, orderHash)
	if err != nil {
		return err
	}
	if remaining.Sign() == 0 {
		return commonerrors.ErrInvalidatedOrder
	}
	if makingAmountFilled.Cmp(remaining) > 0 {
		return commonerrors.ErrInvalidPartialFill
	}

	newRemaining := new(big.Int).Sub(remaining, makingAmountFilled)
	if err := e.remaining.PutRemaining(ctx, order.Maker, orderHash, types.NewRemainingInvalidator(newRemaining)); err != nil {
		return errors.Wrap(err, "failed to store remaining invalidator")
	}

	e.logger.WithFields(logrus.Fields{
		"maker":     order.Maker,
		"orderHash": orderHash.Hex(),
		"filled":    makingAmountFilled.String(),
		"remaining": newRemaining.String(),
	}).Debug("Order fill recorded")
	return nil
}
