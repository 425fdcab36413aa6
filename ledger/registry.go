package ledger

import (
	"context"
	"sync"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/ledger/evm"
	"github.com/ClipFinance/fusion-lib/ledger/solana"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ledger kinds with built-in constructors.
const (
	KindEVM    = "evm"
	KindSolana = "solana"
)

// Settings describes one settlement chain. Fields beyond Kind, Name and
// RpcUrl apply only to the kinds that use them.
type Settings struct {
	Kind        string // KindEVM or KindSolana.
	Name        string // Chain name, used as the registry key.
	RpcUrl      string // RPC endpoint.
	PrivateKey  string // Payout key in the kind's native encoding.
	ChainID     uint64 // EVM chain ID.
	TxType      int    // EVM transaction type.
	PriorityFee uint64 // Solana compute unit price.
}

// Constructor builds a ledger for one settlement chain.
type Constructor func(ctx context.Context, settings Settings, logger *logrus.Logger) (types.Ledger, error)

// Registry holds the live ledgers of a multi-chain deployment, keyed by
// chain name, and the constructors used to create them.
type Registry struct {
	logger *logrus.Logger

	constructors      map[string]Constructor
	constructorsMutex sync.RWMutex

	ledgers      map[string]types.Ledger
	ledgersMutex sync.RWMutex
}

// NewRegistry creates a ledger registry with the built-in EVM and Solana
// constructors registered.
func NewRegistry(logger *logrus.Logger) *Registry {
	r := &Registry{
		logger:       logger,
		constructors: make(map[string]Constructor),
		ledgers:      make(map[string]types.Ledger),
	}

	r.RegisterConstructor(KindEVM, func(ctx context.Context, settings Settings, logger *logrus.Logger) (types.Ledger, error) {
		return evm.NewLedger(ctx, evm.Config{
			Name:       settings.Name,
			RpcUrl:     settings.RpcUrl,
			ChainID:    settings.ChainID,
			TxType:     settings.TxType,
			PrivateKey: settings.PrivateKey,
		}, logger)
	})

	r.RegisterConstructor(KindSolana, func(ctx context.Context, settings Settings, logger *logrus.Logger) (types.Ledger, error) {
		return solana.NewLedger(ctx, solana.Config{
			Name:        settings.Name,
			RpcUrl:      settings.RpcUrl,
			PrivateKey:  settings.PrivateKey,
			PriorityFee: settings.PriorityFee,
		}, logger)
	})

	return r
}

// RegisterConstructor registers a ledger constructor for a kind, replacing
// any existing one.
func (r *Registry) RegisterConstructor(kind string, constructor Constructor) {
	r.constructorsMutex.Lock()
	defer r.constructorsMutex.Unlock()

	r.constructors[kind] = constructor
}

// Add creates a ledger from the settings and registers it under the chain
// name.
func (r *Registry) Add(ctx context.Context, settings Settings) error {
	r.constructorsMutex.RLock()
	constructor, exists := r.constructors[settings.Kind]
	r.constructorsMutex.RUnlock()

	if !exists {
		return errors.Errorf("unknown ledger kind %q", settings.Kind)
	}

	ledger, err := constructor(ctx, settings, r.logger)
	if err != nil {
		return errors.Wrapf(err, "failed to create ledger for chain %s", settings.Name)
	}

	r.ledgersMutex.Lock()
	r.ledgers[settings.Name] = ledger
	r.ledgersMutex.Unlock()

	return nil
}

// Get returns the ledger registered under the chain name, or nil.
func (r *Registry) Get(name string) types.Ledger {
	r.ledgersMutex.RLock()
	ledger := r.ledgers[name]
	r.ledgersMutex.RUnlock()
	return ledger
}

// Remove deregisters the chain's ledger and closes it if it supports
// closing.
func (r *Registry) Remove(name string) {
	r.ledgersMutex.Lock()
	ledger := r.ledgers[name]
	delete(r.ledgers, name)
	r.ledgersMutex.Unlock()

	if closer, ok := ledger.(interface{ Close() }); ok {
		closer.Close()
	}
}
