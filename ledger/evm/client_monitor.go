package evm

import (
	"context"

	"github.com/ClipFinance/fusion-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// evmConnectionManager implements connectionmonitor.BlockchainClient for
// the payout ledger's RPC client.
type evmConnectionManager struct {
	ledger *Ledger
}

// initMonitor starts the connection monitor for the ledger's RPC client.
func (l *Ledger) initMonitor(ctx context.Context) error {
	l.monitorMutex.Lock()
	defer l.monitorMutex.Unlock()

	connectionManager := &evmConnectionManager{ledger: l}
	l.monitor = connectionmonitor.NewConnectionMonitor(connectionManager, l.logger, l.config.Name)
	return l.monitor.Start(ctx)
}

// CheckConnection checks the connection by retrieving the current block
// number.
func (m *evmConnectionManager) CheckConnection(ctx context.Context) error {
	m.ledger.clientMutex.RLock()
	client := m.ledger.client
	m.ledger.clientMutex.RUnlock()

	if client == nil {
		return errors.New("client not initialized")
	}

	_, err := client.BlockNumber(ctx)
	return err
}

// Reconnect re-establishes the connection with a fresh client.
func (m *evmConnectionManager) Reconnect(_ context.Context) error {
	m.ledger.clientMutex.Lock()
	defer m.ledger.clientMutex.Unlock()

	if m.ledger.client != nil {
		m.ledger.client.Close()
	}

	client, err := ethclient.Dial(m.ledger.config.RpcUrl)
	if err != nil {
		return err
	}

	m.ledger.client = client
	return nil
}
