// Package solana settles protocol payouts on Solana. Native value moves as
// system-program transfers, SPL tokens as token-program transfers between
// associated token accounts.
package solana

import (
	"context"
	"math/big"
	"sync"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/connectionmonitor"
	sol "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// defaultComputeUnits is used when transaction simulation fails.
	defaultComputeUnits = 200_000
	// computeUnitBuffer is the percentage applied to simulated compute units.
	computeUnitBuffer = 120
)

// Config holds the Solana ledger configuration.
type Config struct {
	Name        string // Chain name, for logging.
	RpcUrl      string // RPC endpoint.
	PrivateKey  string // Base58-encoded payout key.
	PriorityFee uint64 // Compute unit price in micro-lamports.
}

// Ledger implements types.Ledger over Solana.
type Ledger struct {
	config Config
	logger *logrus.Logger

	clientMutex sync.RWMutex
	client      *rpc.Client

	signer sol.PrivateKey

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor
}

// NewLedger creates a Solana ledger bound to the configured RPC endpoint
// and payout key.
//
// Parameters:
// - ctx: the context for the connection monitor's lifetime.
// - config: the ledger configuration.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Ledger: the new ledger instance.
// - error: an error if the payout key cannot be parsed.
func NewLedger(ctx context.Context, config Config, logger *logrus.Logger) (*Ledger, error) {
	signer, err := sol.PrivateKeyFromBase58(config.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	ledger := &Ledger{
		config: config,
		logger: logger,
		client: rpc.New(config.RpcUrl),
		signer: signer,
	}

	if err := ledger.initMonitor(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	return ledger, nil
}

// Transfer sends amount of asset to the recipient. Transfers settle from
// the relayer's payout account, so from must be the signer's public key.
//
// Parameters:
// - ctx: the context for managing the request.
// - asset: NativeAsset or the SPL token mint address.
// - from: the sending identity; must match the payout signer.
// - to: the recipient public key.
// - amount: the amount to transfer in base units.
//
// Returns:
// - error: an error if the transfer cannot be built, signed or sent.
func (l *Ledger) Transfer(ctx context.Context, asset types.Identity, from, to types.Identity, amount *big.Int) error {
	signerPubKey := l.signer.PublicKey()
	if string(from) != signerPubKey.String() {
		return errors.Errorf("transfer source %s is not the payout account", from)
	}
	if !amount.IsUint64() {
		return errors.Errorf("amount %s does not fit base units", amount)
	}

	recipient, err := sol.PublicKeyFromBase58(string(to))
	if err != nil {
		return errors.Wrap(err, "failed to parse recipient")
	}

	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	if client == nil {
		return errors.New("client not initialized")
	}

	latestBlockhashResult, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return errors.Wrap(err, "failed to get latest blockhash")
	}
	latestBlockhash := latestBlockhashResult.Value.Blockhash

	var basicInstructions []sol.Instruction
	if asset == types.NativeAsset {
		basicInstructions, err = l.createNativeTransferInstructions(recipient, amount.Uint64())
	} else {
		basicInstructions, err = l.createTokenTransferInstructions(ctx, asset, recipient, amount.Uint64())
	}
	if err != nil {
		return errors.Wrap(err, "failed to create instructions")
	}

	instructions, err := l.withComputeBudget(ctx, basicInstructions, latestBlockhash)
	if err != nil {
		return err
	}

	sig, err := l.sendTransaction(ctx, instructions, latestBlockhash)
	if err != nil {
		return errors.Wrap(err, "failed to send transaction")
	}

	l.logger.WithFields(logrus.Fields{
		"chain":  l.config.Name,
		"sig":    sig.String(),
		"to":     to,
		"asset":  asset,
		"amount": amount.String(),
	}).Info("Payout transaction sent")
	return nil
}

// Close stops the connection monitor and releases the RPC client.
func (l *Ledger) Close() {
	l.monitorMutex.Lock()
	if l.monitor != nil {
		l.monitor.Stop()
	}
	l.monitorMutex.Unlock()

	l.clientMutex.Lock()
	l.client = nil
	l.clientMutex.Unlock()
}

func (l *Ledger) createNativeTransferInstructions(recipient sol.PublicKey, lamports uint64) ([]sol.Instruction, error) {
	instruction, err := system.NewTransferInstruction(
		lamports,
		l.signer.PublicKey(),
		recipient,
	).ValidateAndBuild()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transfer instruction")
	}

	return []sol.Instruction{instruction}, nil
}

func (l *Ledger) createTokenTransferInstructions(ctx context.Context, asset types.Identity, recipient sol.PublicKey, amount uint64) ([]sol.Instruction, error) {
	mint, err := sol.PublicKeyFromBase58(string(asset))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token mint")
	}
	signerPubKey := l.signer.PublicKey()

	basicInstructions := make([]sol.Instruction, 0)

	// Check ATA and create if needed
	createATAInstruction, err := l.checkAndCreateATAInstructionIfNotExist(ctx, signerPubKey, mint, recipient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check and create ATA instruction")
	}
	if createATAInstruction != nil {
		basicInstructions = append(basicInstructions, createATAInstruction)
	}

	sourceATA, err := getAssociatedTokenAddress(mint, signerPubKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address for signer")
	}
	destATA, err := getAssociatedTokenAddress(mint, recipient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address for recipient")
	}

	basicInstructions = append(basicInstructions, createTokenTransferInstruction(
		sourceATA,
		destATA,
		signerPubKey,
		amount,
	))

	return basicInstructions, nil
}

// checkAndCreateATAInstructionIfNotExist returns the instruction to create an
// associated token account if it doesn't exist.
func (l *Ledger) checkAndCreateATAInstructionIfNotExist(
	ctx context.Context,
	payer sol.PublicKey,
	mint sol.PublicKey,
	owner sol.PublicKey,
) (sol.Instruction, error) {
	addr, err := getAssociatedTokenAddress(mint, owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address")
	}

	acc, err := l.client.GetAccountInfo(ctx, addr)
	if err != nil && err.Error() != "not found" { // skip not found error
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if acc == nil {
		return createAssociatedTokenAccountInstruction(
			payer,
			addr,
			owner,
			mint,
			sol.SPLAssociatedTokenAccountProgramID,
			sol.TokenProgramID,
		), nil
	}

	return nil, nil
}

// withComputeBudget prefixes the instructions with compute unit limit and
// priority fee instructions, sizing the limit by simulation.
func (l *Ledger) withComputeBudget(ctx context.Context, basicInstructions []sol.Instruction, latestBlockhash sol.Hash) ([]sol.Instruction, error) {
	computeUnits, err := simulateTransaction(ctx, l.client, l.signer, basicInstructions, latestBlockhash)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to simulate transaction, using default compute units")
		computeUnits = defaultComputeUnits
	}
	computeUnits = (computeUnits * computeUnitBuffer) / 100

	instructions := make([]sol.Instruction, 0, len(basicInstructions)+2)

	setComputeUnitLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(uint32(computeUnits)).ValidateAndBuild()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create compute unit limit instruction")
	}
	instructions = append(instructions, setComputeUnitLimitIx)

	if l.config.PriorityFee > 0 {
		setPriorityFeeIx, err := computebudget.NewSetComputeUnitPriceInstruction(l.config.PriorityFee).ValidateAndBuild()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create priority fee instruction")
		}
		instructions = append(instructions, setPriorityFeeIx)
	}

	return append(instructions, basicInstructions...), nil
}

// sendTransaction sends a transaction with multiple instructions.
func (l *Ledger) sendTransaction(
	ctx context.Context,
	instructions []sol.Instruction,
	recentBlockHash sol.Hash,
) (sol.Signature, error) {
	tx, err := sol.NewTransaction(
		instructions,
		recentBlockHash,
		sol.TransactionPayer(l.signer.PublicKey()),
	)
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to create transaction")
	}

	_, err = tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if l.signer.PublicKey().Equals(key) {
			return &l.signer
		}

		return nil
	})
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to send transaction")
	}

	return sig, nil
}
