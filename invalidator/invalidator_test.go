package invalidator

import (
	"context"
	"math/big"
	"testing"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maker = types.Identity("alice")

func newEngine(t *testing.T) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := storage.NewMemory()
	return New(store, store, logger)
}

func bitOrder(nonce uint64) *types.Order {
	return &types.Order{
		Salt:         1,
		Maker:        maker,
		Receiver:     maker,
		MakerAsset:   "token-a",
		TakerAsset:   "token-b",
		MakingAmount: big.NewInt(100),
		TakingAmount: big.NewInt(100),
		MakerTraits:  types.MakerTraits{UseBitInvalidator: true, NonceOrEpoch: nonce},
	}
}

func remainingOrder() *types.Order {
	order := bitOrder(0)
	order.MakerTraits = types.MakerTraits{}
	return order
}

func TestCancelOrderBitStrategy(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	orderHash := crypto.Keccak256Hash([]byte("order-bit"))

	require.NoError(t, engine.CancelOrder(ctx, maker, bitOrder(300).MakerTraits, orderHash))

	t.Run("whole slot is closed", func(t *testing.T) {
		// Every nonce sharing slot 1 (256..511) is invalidated with it.
		for _, nonce := range []uint64{256, 300, 511} {
			invalidated, err := engine.IsOrderInvalidated(ctx, bitOrder(nonce), orderHash)
			require.NoError(t, err)
			assert.True(t, invalidated, "nonce %d", nonce)
		}
	})

	t.Run("neighbouring slots stay open", func(t *testing.T) {
		for _, nonce := range []uint64{255, 512} {
			invalidated, err := engine.IsOrderInvalidated(ctx, bitOrder(nonce), orderHash)
			require.NoError(t, err)
			assert.False(t, invalidated, "nonce %d", nonce)
		}
	})
}

func TestCancelOrderRemainingStrategy(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	order := remainingOrder()
	orderHash := crypto.Keccak256Hash([]byte("order-rem"))

	t.Run("untouched order is open, not invalidated", func(t *testing.T) {
		invalidated, err := engine.IsOrderInvalidated(ctx, order, orderHash)
		require.NoError(t, err)
		assert.False(t, invalidated)

		remaining, err := engine.RemainingFor(ctx, order, orderHash)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(100), remaining)
	})

	t.Run("cancellation stores a zero entry", func(t *testing.T) {
		require.NoError(t, engine.CancelOrder(ctx, maker, order.MakerTraits, orderHash))

		invalidated, err := engine.IsOrderInvalidated(ctx, order, orderHash)
		require.NoError(t, err)
		assert.True(t, invalidated)

		remaining, err := engine.RemainingFor(ctx, order, orderHash)
		require.NoError(t, err)
		assert.Equal(t, int64(0), remaining.Int64())
	})
}

func TestCancelOrders(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)

	t.Run("length mismatch", func(t *testing.T) {
		err := engine.CancelOrders(ctx, maker,
			[]types.MakerTraits{{}},
			nil,
		)
		require.ErrorIs(t, err, commonerrors.ErrMismatchArraysLengths)
	})

	t.Run("cancels each order", func(t *testing.T) {
		hashes := []common.Hash{
			crypto.Keccak256Hash([]byte("batch-1")),
			crypto.Keccak256Hash([]byte("batch-2")),
		}
		traits := []types.MakerTraits{{}, {UseBitInvalidator: true, NonceOrEpoch: 42}}

		require.NoError(t, engine.CancelOrders(ctx, maker, traits, hashes))

		invalidated, err := engine.IsOrderInvalidated(ctx, remainingOrder(), hashes[0])
		require.NoError(t, err)
		assert.True(t, invalidated)

		invalidated, err = engine.IsOrderInvalidated(ctx, bitOrder(42), hashes[1])
		require.NoError(t, err)
		assert.True(t, invalidated)
	})
}

func TestRecordFill(t *testing.T) {
	ctx := context.Background()

	t.Run("remaining decreases monotonically", func(t *testing.T) {
		engine := newEngine(t)
		order := remainingOrder()
		orderHash := crypto.Keccak256Hash([]byte("order-fills"))

		require.NoError(t, engine.RecordFill(ctx, order, orderHash, big.NewInt(30)))
		remaining, err := engine.RemainingFor(ctx, order, orderHash)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(70), remaining)

		require.NoError(t, engine.RecordFill(ctx, order, orderHash, big.NewInt(70)))
		remaining, err = engine.RemainingFor(ctx, order, orderHash)
		require.NoError(t, err)
		assert.Equal(t, int64(0), remaining.Int64())
	})

	t.Run("exhausted order rejects further fills", func(t *testing.T) {
		engine := newEngine(t)
		order := remainingOrder()
		orderHash := crypto.Keccak256Hash([]byte("order-exhausted"))

		require.NoError(t, engine.RecordFill(ctx, order, orderHash, big.NewInt(100)))

		err := engine.RecordFill(ctx, order, orderHash, big.NewInt(1))
		require.ErrorIs(t, err, commonerrors.ErrInvalidatedOrder)
	})

	t.Run("overfill rejected", func(t *testing.T) {
		engine := newEngine(t)
		order := remainingOrder()
		orderHash := crypto.Keccak256Hash([]byte("order-overfill"))

		require.NoError(t, engine.RecordFill(ctx, order, orderHash, big.NewInt(90)))

		err := engine.RecordFill(ctx, order, orderHash, big.NewInt(11))
		require.ErrorIs(t, err, commonerrors.ErrInvalidPartialFill)
	})

	t.Run("bit order is closed by its first fill", func(t *testing.T) {
		engine := newEngine(t)
		order := bitOrder(5)
		orderHash := crypto.Keccak256Hash([]byte("order-single"))

		require.NoError(t, engine.RecordFill(ctx, order, orderHash, big.NewInt(100)))

		invalidated, err := engine.IsOrderInvalidated(ctx, order, orderHash)
		require.NoError(t, err)
		assert.True(t, invalidated)
	})
}

func TestIsSlotInvalidated(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)

	marked, err := engine.IsSlotInvalidated(ctx, maker, 2)
	require.NoError(t, err)
	assert.False(t, marked)

	require.NoError(t, engine.CancelOrder(ctx, maker, types.MakerTraits{UseBitInvalidator: true, NonceOrEpoch: 600}, common.Hash{}))

	marked, err = engine.IsSlotInvalidated(ctx, maker, 2)
	require.NoError(t, err)
	assert.True(t, marked)
}
