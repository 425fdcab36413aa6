package solana

import (
	"context"

	"github.com/ClipFinance/fusion-lib/connectionmonitor"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// solanaConnectionManager implements connectionmonitor.BlockchainClient for
// the payout ledger's RPC client.
type solanaConnectionManager struct {
	ledger *Ledger
}

// initMonitor starts the connection monitor for the ledger's RPC client.
func (l *Ledger) initMonitor(ctx context.Context) error {
	l.monitorMutex.Lock()
	defer l.monitorMutex.Unlock()

	connectionManager := &solanaConnectionManager{ledger: l}
	l.monitor = connectionmonitor.NewConnectionMonitor(connectionManager, l.logger, l.config.Name)
	return l.monitor.Start(ctx)
}

// CheckConnection checks the connection via the node health endpoint.
func (m *solanaConnectionManager) CheckConnection(ctx context.Context) error {
	m.ledger.clientMutex.RLock()
	client := m.ledger.client
	m.ledger.clientMutex.RUnlock()

	if client == nil {
		return errors.New("client not initialized")
	}

	_, err := client.GetHealth(ctx)
	return err
}

// Reconnect re-establishes the connection with a fresh client.
func (m *solanaConnectionManager) Reconnect(_ context.Context) error {
	m.ledger.clientMutex.Lock()
	defer m.ledger.clientMutex.Unlock()

	m.ledger.client = rpc.New(m.ledger.config.RpcUrl)
	return nil
}
