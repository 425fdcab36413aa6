// Package evm settles protocol payouts on an EVM chain. The ledger signs
// and sends transfers from the relayer's payout key: native value moves as
// plain value transfers, everything else as ERC-20 transfer calls.
package evm

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TxTypeLegacy represents the legacy transaction type.
	TxTypeLegacy = 0
	// TxTypeEIP1559 represents the EIP-1559 transaction type.
	TxTypeEIP1559 = 2
)

// transferABI is the ERC-20 fragment the ledger needs.
const transferABI = `[{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

// Config holds the EVM ledger configuration.
type Config struct {
	Name       string // Chain name, for logging.
	RpcUrl     string // RPC endpoint.
	ChainID    uint64 // Chain ID for transaction signing.
	TxType     int    // TxTypeLegacy or TxTypeEIP1559.
	PrivateKey string // Hex-encoded payout key.
}

// Ledger implements types.Ledger over an EVM chain.
type Ledger struct {
	config Config
	logger *logrus.Logger

	clientMutex sync.RWMutex
	client      *ethclient.Client

	signerMutex sync.RWMutex
	signer      Signer

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor
}

// NewLedger creates an EVM ledger bound to the configured RPC endpoint and
// payout key.
//
// Parameters:
// - ctx: the context for the connection monitor's lifetime.
// - config: the ledger configuration.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Ledger: the new ledger instance.
// - error: an error if the client or signer cannot be created.
func NewLedger(ctx context.Context, config Config, logger *logrus.Logger) (*Ledger, error) {
	client, err := ethclient.Dial(config.RpcUrl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	privKey, err := crypto.HexToECDSA(config.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	signer, err := NewSigner(privKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}

	ledger := &Ledger{
		config: config,
		logger: logger,
		client: client,
		signer: signer,
	}

	if err := ledger.initMonitor(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	return ledger, nil
}

// Close stops the connection monitor and releases the RPC client.
func (l *Ledger) Close() {
	l.monitorMutex.Lock()
	if l.monitor != nil {
		l.monitor.Stop()
	}
	l.monitorMutex.Unlock()

	l.clientMutex.Lock()
	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
	l.clientMutex.Unlock()
}

// Transfer sends amount of asset to the recipient. Transfers settle from
// the relayer's payout account, so from must be the signer's address.
//
// Parameters:
// - ctx: the context for managing the request.
// - asset: NativeAsset or the ERC-20 contract address.
// - from: the sending identity; must match the payout signer.
// - to: the recipient address.
// - amount: the amount to transfer.
//
// Returns:
// - error: an error if the transfer cannot be signed or sent.
func (l *Ledger) Transfer(ctx context.Context, asset types.Identity, from, to types.Identity, amount *big.Int) error {
	l.signerMutex.RLock()
	signer := l.signer
	l.signerMutex.RUnlock()

	if signer == nil {
		return errors.New("signer not initialized")
	}
	if common.HexToAddress(string(from)) != signer.Address() {
		return errors.Errorf("transfer source %s is not the payout account", from)
	}

	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	if client == nil {
		return errors.New("client not initialized")
	}

	nonce, err := client.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return errors.Wrap(err, "failed to get nonce")
	}

	var tx *ethtypes.Transaction
	if asset == types.NativeAsset {
		tx, err = l.prepareTransaction(ctx, nonce, string(to), amount, nil)
	} else {
		tx, err = l.prepareTokenTransfer(ctx, nonce, string(asset), string(to), amount)
	}
	if err != nil {
		return err
	}

	signedTx, err := l.signAndSendTransaction(ctx, tx)
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"chain":  l.config.Name,
		"hash":   signedTx.Hash().Hex(),
		"to":     to,
		"asset":  asset,
		"amount": amount.String(),
	}).Info("Payout transaction sent")
	return nil
}

// prepareTokenTransfer packs an ERC-20 transfer call to the token contract.
func (l *Ledger) prepareTokenTransfer(ctx context.Context, nonce uint64, token, recipient string, amount *big.Int) (*ethtypes.Transaction, error) {
	tokenAbi, err := abi.JSON(strings.NewReader(transferABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}

	data, err := tokenAbi.Pack("transfer", common.HexToAddress(recipient), amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack transfer data")
	}

	return l.prepareTransaction(ctx, nonce, token, big.NewInt(0), data)
}

// prepareTransaction prepares a transaction with the given parameters.
//
// Parameters:
// - ctx: the context for managing the request.
// - nonce: the nonce for the transaction.
// - toAddress: the recipient address of the transaction.
// - value: the amount of Ether to send with the transaction.
// - data: the input data for the transaction.
//
// Returns:
// - *ethtypes.Transaction: the prepared transaction.
// - error: an error if the gas estimation or gas price retrieval fails.
func (l *Ledger) prepareTransaction(ctx context.Context, nonce uint64, toAddress string, value *big.Int, data []byte) (*ethtypes.Transaction, error) {
	estimatedGas, err := l.estimateGas(ctx, toAddress, value, data)
	if err != nil {
		l.logger.WithField("chain", l.config.Name).WithError(err).Warn("Failed to estimate gas")
		return nil, errors.Wrap(err, "failed to estimate gas")
	}

	gasLimit := uint64(float64(estimatedGas) * 1.1)

	to := common.HexToAddress(toAddress)

	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	if client == nil {
		return nil, errors.New("client not initialized")
	}

	if l.config.TxType == TxTypeEIP1559 {
		gasPriceData, err := l.getEIP1559GasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get EIP-1559 gas price")
		}

		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:    big.NewInt(0).SetUint64(l.config.ChainID),
			Nonce:      nonce,
			GasFeeCap:  gasPriceData.MaxFeePerGas,
			GasTipCap:  gasPriceData.MaxPriorityFeePerGas,
			Gas:        gasLimit,
			To:         &to,
			Value:      value,
			Data:       data,
			AccessList: nil,
		}), nil
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}

	gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(150))
	gasPrice = new(big.Int).Div(gasPrice, big.NewInt(100))

	return ethtypes.NewTransaction(
		nonce,
		to,
		value,
		gasLimit,
		gasPrice,
		data,
	), nil
}

// estimateGas estimates the gas required for a transaction from the payout
// account.
func (l *Ledger) estimateGas(ctx context.Context, toAddress string, value *big.Int, data []byte) (uint64, error) {
	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	l.signerMutex.RLock()
	signer := l.signer
	l.signerMutex.RUnlock()

	if client == nil || signer == nil {
		return 0, errors.New("client or signer not initialized")
	}

	to := common.HexToAddress(toAddress)
	msg := ethereum.CallMsg{
		From:     signer.Address(),
		To:       &to,
		Value:    value,
		GasPrice: nil,
		Data:     data,
	}

	return client.EstimateGas(ctx, msg)
}

// GasPriceData represents the gas price data for EIP-1559 transactions.
type GasPriceData struct {
	MaxFeePerGas         *big.Int // The maximum fee per gas.
	MaxPriorityFeePerGas *big.Int // The maximum priority fee per gas.
}

// getEIP1559GasPrice retrieves the gas price data for EIP-1559 transactions.
func (l *Ledger) getEIP1559GasPrice(ctx context.Context) (*GasPriceData, error) {
	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	if client == nil {
		return nil, errors.New("client not initialized")
	}

	suggestedTip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		l.logger.WithError(err).Error("Failed to get suggested gas tip")
		suggestedTip = big.NewInt(1)
	}

	if suggestedTip.Cmp(big.NewInt(0)) == 0 {
		suggestedTip = big.NewInt(1)
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		l.logger.WithField("chain", l.config.Name).WithError(err).Warn("Failed to get header by number")
		return nil, errors.Wrap(err, "failed to get header by number")
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		l.logger.WithField("chain", l.config.Name).Warn("Base fee is nil")
		return nil, errors.New("base fee is nil")
	}

	baseFeeBuf := new(big.Int).Mul(baseFee, big.NewInt(130))
	baseFeeBuf = baseFeeBuf.Div(baseFeeBuf, big.NewInt(100))
	maxFeePerGas := new(big.Int).Add(baseFeeBuf, suggestedTip)

	if maxFeePerGas.Cmp(suggestedTip) <= 0 {
		maxFeePerGas = new(big.Int).Add(suggestedTip, baseFee)
	}

	return &GasPriceData{
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: suggestedTip,
	}, nil
}

// signAndSendTransaction signs and sends the prepared transaction.
func (l *Ledger) signAndSendTransaction(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	l.clientMutex.RLock()
	client := l.client
	l.clientMutex.RUnlock()

	l.signerMutex.RLock()
	signer := l.signer
	l.signerMutex.RUnlock()

	if client == nil || signer == nil {
		return nil, errors.New("client or signer not initialized")
	}

	chainID := big.NewInt(0).SetUint64(l.config.ChainID)

	signedTx, err := signer.SignTx(tx, chainID)
	if err != nil {
		l.logger.WithError(err).Error("Failed to sign transaction")
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		l.logger.WithError(err).Error("Failed to send transaction")
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	return signedTx, nil
}
