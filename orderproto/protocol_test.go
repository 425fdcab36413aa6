package orderproto

import (
	"context"
	"math/big"
	"testing"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/invalidator"
	"github.com/ClipFinance/fusion-lib/ledger"
	"github.com/ClipFinance/fusion-lib/ledger/evm"
	"github.com/ClipFinance/fusion-lib/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taker = types.Identity("bob")

type stubClock struct{ now uint64 }

func (c *stubClock) Now() uint64 { return c.now }

type fixture struct {
	protocol *Protocol
	ledger   *ledger.Memory
	clock    *stubClock
	signer   evm.Signer
	maker    types.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := evm.NewSigner(key)
	require.NoError(t, err)

	mem := ledger.NewMemory(logger)
	clock := &stubClock{now: 1000}
	store := storage.NewMemory()

	return &fixture{
		protocol: New(
			Config{DomainSeparator: crypto.Keccak256Hash([]byte("fusion-test"))},
			invalidator.New(store, store, logger),
			evm.NewVerifier(),
			mem,
			clock,
			logger,
		),
		ledger: mem,
		clock:  clock,
		signer: signer,
		maker:  types.Identity(signer.Address().Hex()),
	}
}

func (f *fixture) order() *types.Order {
	return &types.Order{
		Salt:         1,
		Maker:        f.maker,
		Receiver:     f.maker,
		MakerAsset:   "token-a",
		TakerAsset:   "token-b",
		MakingAmount: big.NewInt(100),
		TakingAmount: big.NewInt(200),
	}
}

// sign produces the maker's signature over the order hash.
func (f *fixture) sign(t *testing.T, order *types.Order) []byte {
	t.Helper()
	sig, err := f.signer.Sign(f.protocol.HashOrder(order).Bytes())
	require.NoError(t, err)
	return sig
}

// fund credits both parties with enough balance for a full fill.
func (f *fixture) fund(order *types.Order) {
	f.ledger.Mint(order.Maker, order.MakerAsset, order.MakingAmount)
	f.ledger.Mint(taker, order.TakerAsset, order.TakingAmount)
}

func TestFillOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("partial fill transfers both legs", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)

		makingAmount, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(25), makingAmount)

		assert.Equal(t, big.NewInt(50), f.ledger.BalanceOf(order.Receiver, order.TakerAsset))
		assert.Equal(t, big.NewInt(25), f.ledger.BalanceOf(taker, order.MakerAsset))

		remaining, err := f.protocol.RemainingInvalidatorForOrder(ctx, order, f.protocol.HashOrder(order))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(75), remaining)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)

		sig := f.sign(t, order)
		sig[0] ^= 0xff

		_, err := f.protocol.FillOrder(ctx, order, sig, taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrInvalidSignature)
	})

	t.Run("signature from another key", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)

		otherKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		other, err := evm.NewSigner(otherKey)
		require.NoError(t, err)
		sig, err := other.Sign(f.protocol.HashOrder(order).Bytes())
		require.NoError(t, err)

		_, err = f.protocol.FillOrder(ctx, order, sig, taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrInvalidSignature)
	})

	t.Run("expired order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		order.Expiration = 1000
		f.fund(order)

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrOrderExpired)
	})

	t.Run("taking amount above the order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(201))
		require.ErrorIs(t, err, commonerrors.ErrInvalidOrder)
	})

	t.Run("fill rounding to zero making amount", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		order.MakingAmount = big.NewInt(1)
		f.fund(order)

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrSwapWithZeroAmount)
	})

	t.Run("paused protocol rejects fills", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)

		f.protocol.Pause()
		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrContractPaused)

		f.protocol.Unpause()
		_, err = f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.NoError(t, err)
	})

	t.Run("unfunded taker leaves the order untouched", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.ledger.Mint(order.Maker, order.MakerAsset, order.MakingAmount)

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(40))
		require.ErrorIs(t, err, commonerrors.ErrInsufficientBalance)

		remaining, err := f.protocol.RemainingInvalidatorForOrder(ctx, order, f.protocol.HashOrder(order))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(100), remaining)
		assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(order.Maker, order.MakerAsset))
	})

	t.Run("unfunded maker refunds the taker leg", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.ledger.Mint(taker, order.TakerAsset, order.TakingAmount)

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(40))
		require.ErrorIs(t, err, commonerrors.ErrInsufficientBalance)

		assert.Equal(t, big.NewInt(200), f.ledger.BalanceOf(taker, order.TakerAsset))
		assert.Equal(t, int64(0), f.ledger.BalanceOf(order.Receiver, order.TakerAsset).Int64())

		remaining, err := f.protocol.RemainingInvalidatorForOrder(ctx, order, f.protocol.HashOrder(order))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(100), remaining)
	})

	t.Run("cancelled order cannot be filled", func(t *testing.T) {
		f := newFixture(t)
		order := f.order()
		f.fund(order)
		orderHash := f.protocol.HashOrder(order)

		require.NoError(t, f.protocol.CancelOrder(ctx, order.Maker, order.MakerTraits, orderHash))

		_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(50))
		require.ErrorIs(t, err, commonerrors.ErrInvalidatedOrder)
	})
}

func TestFillOrderBitInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order()
	order.MakerTraits = types.MakerTraits{UseBitInvalidator: true, NonceOrEpoch: 300}
	f.fund(order)

	// A single fill consumes the whole order.
	_, err := f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(200))
	require.NoError(t, err)

	marked, err := f.protocol.BitInvalidatorForOrder(ctx, order.Maker, order.MakerTraits.InvalidatorSlot())
	require.NoError(t, err)
	assert.True(t, marked)

	_, err = f.protocol.FillOrder(ctx, order, f.sign(t, order), taker, big.NewInt(1))
	require.ErrorIs(t, err, commonerrors.ErrInvalidatedOrder)
}

func TestCancelOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.protocol.CancelOrders(ctx, f.maker, []types.MakerTraits{{}}, nil)
	require.ErrorIs(t, err, commonerrors.ErrMismatchArraysLengths)
}
