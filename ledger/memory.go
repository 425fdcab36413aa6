// Package ledger provides the balance-backed Ledger implementations the
// protocol settles against: an in-memory ledger for tests and simulation,
// and chain-backed adapters under ledger/evm and ledger/solana.
package ledger

import (
	"context"
	"math/big"
	"sync"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type balanceKey struct {
	holder types.Identity
	asset  types.Identity
}

// Memory is an in-memory ledger. Every account starts at zero; balances are
// credited with Mint. A transfer that would overdraw the sender fails
// without touching either balance, which is what makes drained escrow
// accounts unable to pay twice.
type Memory struct {
	balances map[balanceKey]*big.Int
	mutex    sync.Mutex
	logger   *logrus.Logger
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(logger *logrus.Logger) *Memory {
	return &Memory{
		balances: make(map[balanceKey]*big.Int),
		logger:   logger,
	}
}

// Mint credits the holder's balance of the asset.
func (m *Memory) Mint(holder types.Identity, asset types.Identity, amount *big.Int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := balanceKey{holder, asset}
	balance, ok := m.balances[key]
	if !ok {
		balance = new(big.Int)
		m.balances[key] = balance
	}
	balance.Add(balance, amount)
}

// BalanceOf returns the holder's balance of the asset.
func (m *Memory) BalanceOf(holder types.Identity, asset types.Identity) *big.Int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	balance, ok := m.balances[balanceKey{holder, asset}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// Transfer moves amount of asset from one holder to another. Overdrawing
// the sender fails with ErrInsufficientBalance and changes nothing.
func (m *Memory) Transfer(_ context.Context, asset types.Identity, from, to types.Identity, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(commonerrors.ErrInsufficientBalance, "negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	fromKey := balanceKey{from, asset}
	fromBalance, ok := m.balances[fromKey]
	if !ok || fromBalance.Cmp(amount) < 0 {
		return errors.Wrapf(commonerrors.ErrInsufficientBalance, "account %s, asset %s", from, asset)
	}

	toKey := balanceKey{to, asset}
	toBalance, ok := m.balances[toKey]
	if !ok {
		toBalance = new(big.Int)
		m.balances[toKey] = toBalance
	}

	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)

	m.logger.WithFields(logrus.Fields{
		"asset":  asset,
		"from":   from,
		"to":     to,
		"amount": amount.String(),
	}).Debug("Ledger transfer applied")
	return nil
}
