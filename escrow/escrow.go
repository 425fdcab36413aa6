package escrow

import (
	"context"
	"math/big"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/hashutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Leg selects which side of the swap an escrow instance guards. The two legs
// run the same state machine; they differ only in which timelock stages apply
// and where a withdrawal pays out.
type Leg uint8

const (
	// LegSrc is the source-chain leg holding the maker's asset.
	LegSrc Leg = iota
	// LegDst is the destination-chain leg holding the taker's asset.
	LegDst
)

func (l Leg) String() string {
	if l == LegSrc {
		return "src"
	}
	return "dst"
}

// Config holds the per-instance parameters of an escrow leg.
//
// Fields:
// - Account: the ledger account holding the escrowed funds.
// - RescueDelay: seconds after deployment before stuck deposits may be rescued.
type Config struct {
	Account     types.Identity
	RescueDelay uint64
}

// Escrow is one leg of a cross-chain atomic swap. Its state is implicit,
// derived from consensus time and ledger balances: there is no stored status
// flag, and a terminal transition is terminal only because it drains the
// escrow account.
type Escrow struct {
	leg    Leg
	config Config
	ledger types.Ledger
	clock  types.Clock
	access types.AccessController
	logger *logrus.Logger
}

// New creates an escrow leg bound to its collaborators.
//
// Parameters:
// - leg: which side of the swap this instance guards.
// - config: the per-instance escrow parameters.
// - ledger: the host chain's transfer primitive.
// - clock: ledger-consensus time.
// - access: the credential check gating public operations.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Escrow: the new escrow instance.
func New(
	leg Leg,
	config Config,
	ledger types.Ledger,
	clock types.Clock,
	access types.AccessController,
	logger *logrus.Logger,
) *Escrow {
	return &Escrow{
		leg:    leg,
		config: config,
		ledger: ledger,
		clock:  clock,
		access: access,
		logger: logger,
	}
}

// Withdraw releases the escrowed amount to the counterparty in exchange for
// the secret. Only the taker may call it, only inside the withdrawal window,
// and only with the secret matching the hashlock. The safety deposit goes to
// the caller.
//
// On the source leg the amount pays out to the taker; on the destination leg
// it pays out to the maker.
func (e *Escrow) Withdraw(ctx context.Context, caller types.Identity, secret [32]byte, im *types.Immutables) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if caller != im.Taker {
		return commonerrors.ErrInvalidCaller
	}
	if err := e.checkWindow(im, e.withdrawalStage(), true); err != nil {
		return err
	}
	target := im.Maker
	if e.leg == LegSrc {
		target = caller
	}
	return e.executeWithdrawal(ctx, caller, secret, target, im)
}

// WithdrawTo releases the escrowed amount to an explicit target instead of
// the taker. Source leg only; otherwise identical to Withdraw.
func (e *Escrow) WithdrawTo(ctx context.Context, caller types.Identity, secret [32]byte, target types.Identity, im *types.Immutables) error {
	if e.leg != LegSrc {
		return errors.Wrap(commonerrors.ErrAccessDenied, "withdraw to target is a source leg operation")
	}
	if err := im.Validate(); err != nil {
		return err
	}
	if caller != im.Taker {
		return commonerrors.ErrInvalidCaller
	}
	if err := e.checkWindow(im, e.withdrawalStage(), true); err != nil {
		return err
	}
	return e.executeWithdrawal(ctx, caller, secret, target, im)
}

// PublicWithdraw lets any access-credential holder force settlement once the
// public withdrawal window opens. The amount pays out exactly as a regular
// withdrawal would; the safety deposit pays the caller for executing it.
func (e *Escrow) PublicWithdraw(ctx context.Context, caller types.Identity, secret [32]byte, im *types.Immutables) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if !e.access.HoldsAccessCredential(caller) {
		return commonerrors.ErrInvalidCaller
	}
	if err := e.checkWindow(im, e.publicWithdrawalStage(), true); err != nil {
		return err
	}
	target := im.Maker
	if e.leg == LegSrc {
		target = im.Taker
	}
	return e.executeWithdrawal(ctx, caller, secret, target, im)
}

// Cancel refunds the escrowed amount to the maker after the cancellation
// window opens. Only the taker may call it. The safety deposit goes to the
// caller.
func (e *Escrow) Cancel(ctx context.Context, caller types.Identity, im *types.Immutables) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if caller != im.Taker {
		return commonerrors.ErrInvalidCaller
	}
	if err := e.checkWindow(im, e.cancellationStage(), false); err != nil {
		return err
	}
	return e.executeCancellation(ctx, caller, im)
}

// PublicCancel lets any access-credential holder force a refund once the
// public cancellation window opens. Source leg only: the destination leg has
// no public cancellation stage.
func (e *Escrow) PublicCancel(ctx context.Context, caller types.Identity, im *types.Immutables) error {
	if e.leg != LegSrc {
		return errors.Wrap(commonerrors.ErrAccessDenied, "public cancel is a source leg operation")
	}
	if err := im.Validate(); err != nil {
		return err
	}
	if !e.access.HoldsAccessCredential(caller) {
		return commonerrors.ErrInvalidCaller
	}
	if err := e.checkWindow(im, types.StageSrcPublicCancellation, false); err != nil {
		return err
	}
	return e.executeCancellation(ctx, caller, im)
}

// RescueFunds transfers stuck deposits out of the escrow account to the
// taker. It is decoupled from the swap's hashlock and timelock windows: the
// only gates are the taker identity and the rescue delay.
func (e *Escrow) RescueFunds(ctx context.Context, caller types.Identity, token types.Identity, amount *big.Int, im *types.Immutables) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if caller != im.Taker {
		return commonerrors.ErrInvalidCaller
	}
	if e.clock.Now() < im.Timelocks.RescueStart(e.config.RescueDelay) {
		return commonerrors.ErrTimelockNotReached
	}

	if err := e.ledger.Transfer(ctx, token, e.config.Account, im.Taker, amount); err != nil {
		return errors.Wrap(err, "failed to rescue funds")
	}

	e.logger.WithFields(logrus.Fields{
		"leg":    e.leg.String(),
		"token":  token,
		"amount": amount.String(),
	}).Info("Escrow funds rescued")

	return nil
}

// withdrawalStage returns the stage opening the private withdrawal window.
func (e *Escrow) withdrawalStage() types.Stage {
	if e.leg == LegSrc {
		return types.StageSrcWithdrawal
	}
	return types.StageDstWithdrawal
}

// publicWithdrawalStage returns the stage opening the public withdrawal window.
func (e *Escrow) publicWithdrawalStage() types.Stage {
	if e.leg == LegSrc {
		return types.StageSrcPublicWithdrawal
	}
	return types.StageDstPublicWithdrawal
}

// cancellationStage returns the stage opening cancellation and closing
// withdrawal.
func (e *Escrow) cancellationStage() types.Stage {
	if e.leg == LegSrc {
		return types.StageSrcCancellation
	}
	return types.StageDstCancellation
}

// checkWindow verifies that consensus time has entered the window opened by
// start. Withdrawal windows additionally close when the leg's cancellation
// stage begins.
func (e *Escrow) checkWindow(im *types.Immutables, start types.Stage, closesAtCancellation bool) error {
	now := e.clock.Now()
	if now < im.Timelocks.Get(start) {
		return commonerrors.ErrTimelockNotReached
	}
	if closesAtCancellation && now >= im.Timelocks.Get(e.cancellationStage()) {
		return commonerrors.ErrTimelockExpired
	}
	return nil
}

func (e *Escrow) executeWithdrawal(ctx context.Context, caller types.Identity, secret [32]byte, target types.Identity, im *types.Immutables) error {
	if hashutil.HashSecret(secret) != im.Hashlock {
		return commonerrors.ErrInvalidSecret
	}

	if err := e.ledger.Transfer(ctx, im.Token, e.config.Account, target, im.Amount); err != nil {
		return errors.Wrap(err, "failed to transfer escrowed amount")
	}

	// A failed deposit leg must not leave the amount leg settled.
	if err := e.ledger.Transfer(ctx, types.NativeAsset, e.config.Account, caller, im.SafetyDeposit); err != nil {
		if refundErr := e.ledger.Transfer(ctx, im.Token, target, e.config.Account, im.Amount); refundErr != nil {
			e.logger.WithError(refundErr).Error("Failed to return escrowed amount after deposit transfer failure")
		}
		return errors.Wrap(err, "failed to transfer safety deposit")
	}

	e.logger.WithFields(logrus.Fields{
		"leg":       e.leg.String(),
		"orderHash": im.OrderHash.Hex(),
		"target":    target,
		"amount":    im.Amount.String(),
	}).Info("Escrow withdrawal successful")

	return nil
}

func (e *Escrow) executeCancellation(ctx context.Context, caller types.Identity, im *types.Immutables) error {
	if err := e.ledger.Transfer(ctx, im.Token, e.config.Account, im.Maker, im.Amount); err != nil {
		return errors.Wrap(err, "failed to refund escrowed amount")
	}

	if err := e.ledger.Transfer(ctx, types.NativeAsset, e.config.Account, caller, im.SafetyDeposit); err != nil {
		if refundErr := e.ledger.Transfer(ctx, im.Token, im.Maker, e.config.Account, im.Amount); refundErr != nil {
			e.logger.WithError(refundErr).Error("Failed to return escrowed amount after deposit transfer failure")
		}
		return errors.Wrap(err, "failed to transfer safety deposit")
	}

	e.logger.WithFields(logrus.Fields{
		"leg":       e.leg.String(),
		"orderHash": im.OrderHash.Hex(),
		"maker":     im.Maker,
		"amount":    im.Amount.String(),
	}).Info("Escrow cancellation successful")

	return nil
}
