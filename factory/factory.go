// Package factory derives the canonical immutables of an escrow leg from an
// order and a fill, resolves the hashlock the leg must use, and addresses
// escrow instances deterministically by the salt of their immutables.
package factory

import (
	"context"
	"fmt"
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/escrow"
	"github.com/ClipFinance/fusion-lib/hashutil"
	"github.com/ClipFinance/fusion-lib/merklevalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds the factory parameters shared by every escrow it creates.
//
// Fields:
// - RescueDelaySrc: rescue delay applied to source legs, in seconds.
// - RescueDelayDst: rescue delay applied to destination legs, in seconds.
type Config struct {
	RescueDelaySrc uint64
	RescueDelayDst uint64
}

// Factory creates and addresses escrow legs.
type Factory struct {
	config    Config
	validator *merklevalidator.Validator
	ledger    types.Ledger
	clock     types.Clock
	access    types.AccessController
	logger    *logrus.Logger
}

// New creates an escrow factory.
//
// Parameters:
// - config: the factory parameters.
// - validator: the merkle validator resolving hashlocks for multi-fill orders.
// - ledger: the host chain's transfer primitive.
// - clock: ledger-consensus time.
// - access: the credential check passed through to created escrows.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Factory: the new factory instance.
func New(
	config Config,
	validator *merklevalidator.Validator,
	ledger types.Ledger,
	clock types.Clock,
	access types.AccessController,
	logger *logrus.Logger,
) *Factory {
	return &Factory{
		config:    config,
		validator: validator,
		ledger:    ledger,
		clock:     clock,
		access:    access,
		logger:    logger,
	}
}

// DeriveImmutables builds the canonical immutables of an escrow leg from an
// order, the resolved hashlock and the fill parameters. Pure: it never
// touches stores or the ledger.
func DeriveImmutables(
	order *types.Order,
	orderHash common.Hash,
	hashlock common.Hash,
	taker types.Identity,
	makingAmount *big.Int,
	safetyDeposit *big.Int,
	timelocks types.Timelocks,
) *types.Immutables {
	return &types.Immutables{
		OrderHash:     orderHash,
		Hashlock:      hashlock,
		Maker:         order.Maker,
		Taker:         taker,
		Token:         order.MakerAsset,
		Amount:        new(big.Int).Set(makingAmount),
		SafetyDeposit: new(big.Int).Set(safetyDeposit),
		Timelocks:     timelocks,
	}
}

// AddressOfEscrow returns the deterministic account identity of the escrow
// leg addressed by the given immutables. Identical immutables always map to
// the same account.
func AddressOfEscrow(leg escrow.Leg, im *types.Immutables) types.Identity {
	salt := hashutil.EscrowSalt(im)
	return types.Identity(fmt.Sprintf("escrow-%s-%s", leg, salt.Hex()))
}

// ResolveHashlock determines the hashlock an escrow leg created for this fill
// must use. Single-fill orders take the hashlock info directly; multi-fill
// orders treat it as a merkle root and require a previously validated leaf
// admitted for exactly this fill's position.
func (f *Factory) ResolveHashlock(
	ctx context.Context,
	order *types.Order,
	orderHash common.Hash,
	extra *types.ExtraData,
	makingAmount, remainingMakingAmount *big.Int,
) (common.Hash, error) {
	if !order.MakerTraits.AllowMultipleFills() {
		return extra.HashlockInfo, nil
	}
	return f.validator.CheckPartialFill(
		ctx,
		orderHash,
		extra.HashlockInfo,
		extra.PartsAmount,
		order.MakingAmount,
		remainingMakingAmount,
		makingAmount,
	)
}

// CreateSrcEscrow runs the post-interaction flow for a source-chain fill:
// resolve the hashlock, anchor the timelocks at the current consensus time,
// derive the immutables and fund the escrow account with the maker's asset
// and the taker's safety deposit.
//
// Returns the immutables addressing the leg and the escrow instance bound to
// its funded account.
func (f *Factory) CreateSrcEscrow(
	ctx context.Context,
	order *types.Order,
	orderHash common.Hash,
	taker types.Identity,
	makingAmount, remainingMakingAmount *big.Int,
	extra *types.ExtraData,
) (*types.Immutables, *escrow.Escrow, error) {
	if !order.Validate() {
		return nil, nil, commonerrors.ErrInvalidOrder
	}

	hashlock, err := f.ResolveHashlock(ctx, order, orderHash, extra, makingAmount, remainingMakingAmount)
	if err != nil {
		return nil, nil, err
	}

	timelocks := extra.Timelocks.WithDeployedAt(f.clock.Now())
	if err := timelocks.Validate(); err != nil {
		return nil, nil, err
	}

	im := DeriveImmutables(order, orderHash, hashlock, taker, makingAmount, extra.SafetyDeposit, timelocks)
	if err := im.Validate(); err != nil {
		return nil, nil, err
	}

	account := AddressOfEscrow(escrow.LegSrc, im)
	if err := f.ledger.Transfer(ctx, im.Token, order.Maker, account, im.Amount); err != nil {
		return nil, nil, errors.Wrap(err, "failed to fund source escrow")
	}
	if err := f.ledger.Transfer(ctx, types.NativeAsset, taker, account, im.SafetyDeposit); err != nil {
		if refundErr := f.ledger.Transfer(ctx, im.Token, account, order.Maker, im.Amount); refundErr != nil {
			f.logger.WithError(refundErr).Error("Failed to return maker funding after deposit collection failure")
		}
		return nil, nil, errors.Wrap(err, "failed to collect safety deposit")
	}

	f.logger.WithFields(logrus.Fields{
		"orderHash": orderHash.Hex(),
		"taker":     taker,
		"account":   account,
		"amount":    im.Amount.String(),
	}).Info("Source escrow created")

	return im, f.newEscrow(escrow.LegSrc, account), nil
}

// CreateDstEscrow creates the destination-chain leg of a swap, funded by the
// taker. The destination cancellation deadline must not exceed the source
// cancellation deadline, or the responder could cancel the destination leg
// while the initiator is still locked on the source leg.
func (f *Factory) CreateDstEscrow(
	ctx context.Context,
	caller types.Identity,
	dstImmutables *types.Immutables,
	srcCancellationTimestamp uint64,
) (*types.Immutables, *escrow.Escrow, error) {
	im := *dstImmutables
	im.Timelocks = im.Timelocks.WithDeployedAt(f.clock.Now())

	if err := im.Validate(); err != nil {
		return nil, nil, err
	}
	if err := im.Timelocks.Validate(); err != nil {
		return nil, nil, err
	}
	if im.Timelocks.Get(types.StageDstCancellation) > srcCancellationTimestamp {
		return nil, nil, commonerrors.ErrInvalidCreationTime
	}

	account := AddressOfEscrow(escrow.LegDst, &im)
	if err := f.ledger.Transfer(ctx, im.Token, caller, account, im.Amount); err != nil {
		return nil, nil, errors.Wrap(err, "failed to fund destination escrow")
	}
	if err := f.ledger.Transfer(ctx, types.NativeAsset, caller, account, im.SafetyDeposit); err != nil {
		if refundErr := f.ledger.Transfer(ctx, im.Token, account, caller, im.Amount); refundErr != nil {
			f.logger.WithError(refundErr).Error("Failed to return caller funding after deposit collection failure")
		}
		return nil, nil, errors.Wrap(err, "failed to collect safety deposit")
	}

	f.logger.WithFields(logrus.Fields{
		"orderHash": im.OrderHash.Hex(),
		"taker":     im.Taker,
		"account":   account,
		"amount":    im.Amount.String(),
	}).Info("Destination escrow created")

	return &im, f.newEscrow(escrow.LegDst, account), nil
}

func (f *Factory) newEscrow(leg escrow.Leg, account types.Identity) *escrow.Escrow {
	rescueDelay := f.config.RescueDelaySrc
	if leg == escrow.LegDst {
		rescueDelay = f.config.RescueDelayDst
	}
	return escrow.New(
		leg,
		escrow.Config{Account: account, RescueDelay: rescueDelay},
		f.ledger,
		f.clock,
		f.access,
		f.logger,
	)
}
