// Package storage provides the persistent-map implementations behind the
// invalidation and merkle-validation engines: an in-memory set for tests and
// simulation, and a Postgres-backed set for deployments.
package storage

import (
	"context"
	"sync"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
)

type remainingKey struct {
	maker     types.Identity
	orderHash common.Hash
}

// Memory is an in-memory implementation of the three protocol stores. Each
// map is keyed so that concurrent orders from different makers never
// contend; the mutexes only make the maps safe, they carry no protocol
// ordering semantics.
type Memory struct {
	bits       map[types.Identity]*types.BitInvalidatorData
	bitsMutex  sync.RWMutex
	remaining  map[remainingKey]*types.RemainingInvalidator
	remMutex   sync.RWMutex
	validation map[common.Hash]*types.ValidationData
	validMutex sync.RWMutex
}

// NewMemory creates an empty in-memory store set.
func NewMemory() *Memory {
	return &Memory{
		bits:       make(map[types.Identity]*types.BitInvalidatorData),
		remaining:  make(map[remainingKey]*types.RemainingInvalidator),
		validation: make(map[common.Hash]*types.ValidationData),
	}
}

// BitInvalidator returns the maker's slot record, or nil if absent.
func (m *Memory) BitInvalidator(_ context.Context, maker types.Identity) (*types.BitInvalidatorData, error) {
	m.bitsMutex.RLock()
	defer m.bitsMutex.RUnlock()
	return m.bits[maker], nil
}

// PutBitInvalidator stores the maker's slot record.
func (m *Memory) PutBitInvalidator(_ context.Context, maker types.Identity, data *types.BitInvalidatorData) error {
	m.bitsMutex.Lock()
	m.bits[maker] = data
	m.bitsMutex.Unlock()
	return nil
}

// Remaining returns the order's remaining invalidator, or nil if the order
// has never been touched.
func (m *Memory) Remaining(_ context.Context, maker types.Identity, orderHash common.Hash) (*types.RemainingInvalidator, error) {
	m.remMutex.RLock()
	defer m.remMutex.RUnlock()
	return m.remaining[remainingKey{maker, orderHash}], nil
}

// PutRemaining stores the order's remaining invalidator.
func (m *Memory) PutRemaining(_ context.Context, maker types.Identity, orderHash common.Hash, inv *types.RemainingInvalidator) error {
	m.remMutex.Lock()
	m.remaining[remainingKey{maker, orderHash}] = inv
	m.remMutex.Unlock()
	return nil
}

// Validation returns the stored validation data for the key, or nil.
func (m *Memory) Validation(_ context.Context, key common.Hash) (*types.ValidationData, error) {
	m.validMutex.RLock()
	defer m.validMutex.RUnlock()
	return m.validation[key], nil
}

// PutValidation stores validation data for the key.
func (m *Memory) PutValidation(_ context.Context, key common.Hash, data *types.ValidationData) error {
	m.validMutex.Lock()
	m.validation[key] = data
	m.validMutex.Unlock()
	return nil
}
