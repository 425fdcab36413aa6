// Package orderproto processes signed limit orders: fills them against the
// maker's and taker's ledger balances and routes cancellations through the
// order-invalidation engine.
package orderproto

import (
	"context"
	"math/big"
	"sync"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/hashutil"
	"github.com/ClipFinance/fusion-lib/invalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds the protocol-wide parameters.
//
// Fields:
// - DomainSeparator: the domain committed into every order hash.
type Config struct {
	DomainSeparator common.Hash
}

// Protocol is the limit-order mixin. One call runs at a time per deployed
// instance; correctness across calls rests on the invalidation engine, not
// on the mutex, which only guards the administrative pause flag.
type Protocol struct {
	config   Config
	engine   *invalidator.Engine
	verifier types.SignatureVerifier
	ledger   types.Ledger
	clock    types.Clock
	logger   *logrus.Logger

	paused      bool
	pausedMutex sync.RWMutex
}

// New creates a limit-order protocol instance.
//
// Parameters:
// - config: the protocol-wide parameters.
// - engine: the order-invalidation engine.
// - verifier: the maker-signature verification scheme.
// - ledger: the host chain's transfer primitive.
// - clock: ledger-consensus time.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Protocol: the new protocol instance.
func New(
	config Config,
	engine *invalidator.Engine,
	verifier types.SignatureVerifier,
	ledger types.Ledger,
	clock types.Clock,
	logger *logrus.Logger,
) *Protocol {
	return &Protocol{
		config:   config,
		engine:   engine,
		verifier: verifier,
		ledger:   ledger,
		clock:    clock,
		logger:   logger,
	}
}

// HashOrder returns the canonical hash of an order under the protocol's
// domain separator.
func (p *Protocol) HashOrder(order *types.Order) common.Hash {
	return hashutil.HashOrder(order, p.config.DomainSeparator)
}

// FillOrder fills a signed order for takingAmount of the taker asset and
// returns the making amount transferred to the taker. A rejected fill makes
// no observable change: the fill is checked against the order's remaining
// amount before any transfer and debited only once both transfers succeed.
func (p *Protocol) FillOrder(
	ctx context.Context,
	order *types.Order,
	signature []byte,
	taker types.Identity,
	takingAmount *big.Int,
) (*big.Int, error) {
	if p.IsPaused() {
		return nil, commonerrors.ErrContractPaused
	}
	if !order.Validate() {
		return nil, commonerrors.ErrInvalidOrder
	}
	if takingAmount == nil || takingAmount.Sign() <= 0 || takingAmount.Cmp(order.TakingAmount) > 0 {
		return nil, commonerrors.ErrInvalidOrder
	}

	orderHash := p.HashOrder(order)

	invalidated, err := p.engine.IsOrderInvalidated(ctx, order, orderHash)
	if err != nil {
		return nil, err
	}
	if invalidated {
		return nil, commonerrors.ErrInvalidatedOrder
	}

	if err := p.verifier.Verify(orderHash, signature, order.Maker); err != nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidSignature, err.Error())
	}

	if order.Expiration != 0 && p.clock.Now() >= order.Expiration {
		return nil, commonerrors.ErrOrderExpired
	}

	// Linear proportion of the order's quoted rate.
	makingAmount := new(big.Int).Mul(order.MakingAmount, takingAmount)
	makingAmount.Div(makingAmount, order.TakingAmount)
	if makingAmount.Sign() == 0 {
		return nil, commonerrors.ErrSwapWithZeroAmount
	}

	// The fill must fit the order's remaining capacity before anything
	// moves; the debit itself is persisted only after both transfers land,
	// so a failed transfer leaves the order's capacity untouched.
	if !order.MakerTraits.UseBitInvalidator {
		remaining, err := p.engine.RemainingFor(ctx, order, orderHash)
		if err != nil {
			return nil, err
		}
		if remaining.Sign() == 0 {
			return nil, commonerrors.ErrInvalidatedOrder
		}
		if makingAmount.Cmp(remaining) > 0 {
			return nil, commonerrors.ErrInvalidPartialFill
		}
	}

	if err := p.ledger.Transfer(ctx, order.TakerAsset, taker, order.Receiver, takingAmount); err != nil {
		return nil, errors.Wrap(err, "failed to transfer taker asset")
	}
	if err := p.ledger.Transfer(ctx, order.MakerAsset, order.Maker, taker, makingAmount); err != nil {
		if refundErr := p.ledger.Transfer(ctx, order.TakerAsset, order.Receiver, taker, takingAmount); refundErr != nil {
			p.logger.WithError(refundErr).Error("Failed to return taker asset after maker leg failure")
		}
		return nil, errors.Wrap(err, "failed to transfer maker asset")
	}

	if err := p.engine.RecordFill(ctx, order, orderHash, makingAmount); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"orderHash":    orderHash.Hex(),
		"makingAmount": makingAmount.String(),
		"takingAmount": takingAmount.String(),
	}).Info("Order filled")

	return makingAmount, nil
}

// CancelOrder invalidates one of the maker's orders.
func (p *Protocol) CancelOrder(ctx context.Context, maker types.Identity, traits types.MakerTraits, orderHash common.Hash) error {
	return p.engine.CancelOrder(ctx, maker, traits, orderHash)
}

// CancelOrders invalidates a batch of the maker's orders. The traits and
// hash slices must pair up element-wise.
func (p *Protocol) CancelOrders(ctx context.Context, maker types.Identity, traits []types.MakerTraits, orderHashes []common.Hash) error {
	return p.engine.CancelOrders(ctx, maker, traits, orderHashes)
}

// BitInvalidatorForOrder reports whether the maker's slot has been
// invalidated.
func (p *Protocol) BitInvalidatorForOrder(ctx context.Context, maker types.Identity, slot uint64) (bool, error) {
	data, err := p.engine.IsSlotInvalidated(ctx, maker, slot)
	if err != nil {
		return false, err
	}
	return data, nil
}

// RemainingInvalidatorForOrder returns the unfilled amount of an order.
func (p *Protocol) RemainingInvalidatorForOrder(ctx context.Context, order *types.Order, orderHash common.Hash) (*big.Int, error) {
	return p.engine.RemainingFor(ctx, order, orderHash)
}

// Pause stops order filling. Cancellations stay available so makers can
// still invalidate orders while paused.
func (p *Protocol) Pause() {
	p.pausedMutex.Lock()
	p.paused = true
	p.pausedMutex.Unlock()
	p.logger.Info("Order protocol paused")
}

// Unpause resumes order filling.
func (p *Protocol) Unpause() {
	p.pausedMutex.Lock()
	p.paused = false
	p.pausedMutex.Unlock()
	p.logger.Info("Order protocol unpaused")
}

// IsPaused reports whether order filling is paused.
func (p *Protocol) IsPaused() bool {
	p.pausedMutex.RLock()
	defer p.pausedMutex.RUnlock()
	return p.paused
}
