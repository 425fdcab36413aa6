package factory

import (
	"context"
	"math/big"
	"testing"

	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ClipFinance/fusion-lib/escrow"
	"github.com/ClipFinance/fusion-lib/hashutil"
	"github.com/ClipFinance/fusion-lib/ledger"
	"github.com/ClipFinance/fusion-lib/merklevalidator"
	"github.com/ClipFinance/fusion-lib/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	maker = types.Identity("alice")
	taker = types.Identity("bob")
)

type stubClock struct{ now uint64 }

func (c *stubClock) Now() uint64 { return c.now }

type openAccess struct{}

func (openAccess) HoldsAccessCredential(types.Identity) bool { return true }

type fixture struct {
	factory *Factory
	ledger  *ledger.Memory
	clock   *stubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	mem := ledger.NewMemory(logger)
	clock := &stubClock{now: 1000}
	validator := merklevalidator.New(storage.NewMemory(), logger)

	return &fixture{
		factory: New(
			Config{RescueDelaySrc: 86400, RescueDelayDst: 86400},
			validator,
			mem,
			clock,
			openAccess{},
			logger,
		),
		ledger: mem,
		clock:  clock,
	}
}

func singleFillOrder() *types.Order {
	return &types.Order{
		Salt:         7,
		Maker:        maker,
		Receiver:     maker,
		MakerAsset:   "token-a",
		TakerAsset:   "token-b",
		MakingAmount: big.NewInt(100),
		TakingAmount: big.NewInt(200),
		MakerTraits:  types.MakerTraits{UseBitInvalidator: true},
	}
}

func extraFor(secret [32]byte) *types.ExtraData {
	return &types.ExtraData{
		HashlockInfo:  hashutil.HashSecret(secret),
		PartsAmount:   0,
		SafetyDeposit: big.NewInt(5),
		Timelocks: types.Timelocks{
			SrcWithdrawal:         100,
			SrcPublicWithdrawal:   200,
			SrcCancellation:       300,
			SrcPublicCancellation: 400,
			DstWithdrawal:         50,
			DstPublicWithdrawal:   150,
			DstCancellation:       250,
		},
	}
}

func TestCreateSrcEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("funds the escrow and anchors the timelocks", func(t *testing.T) {
		f := newFixture(t)
		order := singleFillOrder()
		orderHash := crypto.Keccak256Hash([]byte("src-order"))
		var secret [32]byte
		secret[0] = 0xaa
		extra := extraFor(secret)

		f.ledger.Mint(maker, order.MakerAsset, big.NewInt(100))
		f.ledger.Mint(taker, types.NativeAsset, big.NewInt(5))

		im, esc, err := f.factory.CreateSrcEscrow(ctx, order, orderHash, taker, big.NewInt(100), big.NewInt(100), extra)
		require.NoError(t, err)
		require.NotNil(t, esc)

		assert.Equal(t, uint64(1000), im.Timelocks.DeployedAt)
		assert.Equal(t, extra.HashlockInfo, im.Hashlock)

		account := AddressOfEscrow(escrow.LegSrc, im)
		assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(account, order.MakerAsset))
		assert.Equal(t, big.NewInt(5), f.ledger.BalanceOf(account, types.NativeAsset))
		assert.Equal(t, int64(0), f.ledger.BalanceOf(maker, order.MakerAsset).Int64())

		// The created escrow can settle the swap end to end.
		f.clock.now = 1100
		require.NoError(t, esc.Withdraw(ctx, taker, secret, im))
		assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(taker, order.MakerAsset))
	})

	t.Run("invalid order", func(t *testing.T) {
		f := newFixture(t)
		order := singleFillOrder()
		order.MakingAmount = big.NewInt(0)

		_, _, err := f.factory.CreateSrcEscrow(ctx, order, crypto.Keccak256Hash([]byte("x")), taker, big.NewInt(1), big.NewInt(1), extraFor([32]byte{}))
		require.ErrorIs(t, err, commonerrors.ErrInvalidOrder)
	})

	t.Run("unordered timelocks", func(t *testing.T) {
		f := newFixture(t)
		extra := extraFor([32]byte{})
		extra.Timelocks.SrcCancellation = extra.Timelocks.SrcWithdrawal

		_, _, err := f.factory.CreateSrcEscrow(ctx, singleFillOrder(), crypto.Keccak256Hash([]byte("x")), taker, big.NewInt(100), big.NewInt(100), extra)
		require.ErrorIs(t, err, commonerrors.ErrInvalidImmutables)
	})

	t.Run("unfunded maker", func(t *testing.T) {
		f := newFixture(t)

		_, _, err := f.factory.CreateSrcEscrow(ctx, singleFillOrder(), crypto.Keccak256Hash([]byte("x")), taker, big.NewInt(100), big.NewInt(100), extraFor([32]byte{}))
		require.ErrorIs(t, err, commonerrors.ErrInsufficientBalance)
	})

	t.Run("missing safety deposit returns the maker funding", func(t *testing.T) {
		f := newFixture(t)
		order := singleFillOrder()
		f.ledger.Mint(maker, order.MakerAsset, big.NewInt(100))

		_, _, err := f.factory.CreateSrcEscrow(ctx, order, crypto.Keccak256Hash([]byte("x")), taker, big.NewInt(100), big.NewInt(100), extraFor([32]byte{}))
		require.ErrorIs(t, err, commonerrors.ErrInsufficientBalance)
		assert.Equal(t, big.NewInt(100), f.ledger.BalanceOf(maker, order.MakerAsset))
	})

	t.Run("multi-fill order requires a validated proof", func(t *testing.T) {
		f := newFixture(t)
		order := singleFillOrder()
		order.MakerTraits = types.MakerTraits{} // multiple fills allowed
		extra := extraFor([32]byte{})
		extra.PartsAmount = 4

		_, _, err := f.factory.CreateSrcEscrow(ctx, order, crypto.Keccak256Hash([]byte("x")), taker, big.NewInt(25), big.NewInt(100), extra)
		require.ErrorIs(t, err, commonerrors.ErrInvalidPartialFill)
	})
}

func TestCreateDstEscrow(t *testing.T) {
	ctx := context.Background()

	dstImmutables := func() *types.Immutables {
		return &types.Immutables{
			OrderHash:     crypto.Keccak256Hash([]byte("dst-order")),
			Hashlock:      crypto.Keccak256Hash([]byte("hashlock")),
			Maker:         maker,
			Taker:         taker,
			Token:         "token-b",
			Amount:        big.NewInt(200),
			SafetyDeposit: big.NewInt(5),
			Timelocks: types.Timelocks{
				SrcWithdrawal:         100,
				SrcPublicWithdrawal:   200,
				SrcCancellation:       300,
				SrcPublicCancellation: 400,
				DstWithdrawal:         50,
				DstPublicWithdrawal:   150,
				DstCancellation:       250,
			},
		}
	}

	t.Run("funds the leg from the caller", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Mint(taker, "token-b", big.NewInt(200))
		f.ledger.Mint(taker, types.NativeAsset, big.NewInt(5))

		im, esc, err := f.factory.CreateDstEscrow(ctx, taker, dstImmutables(), 1300)
		require.NoError(t, err)
		require.NotNil(t, esc)
		assert.Equal(t, uint64(1000), im.Timelocks.DeployedAt)

		account := AddressOfEscrow(escrow.LegDst, im)
		assert.Equal(t, big.NewInt(200), f.ledger.BalanceOf(account, types.Identity("token-b")))
		assert.Equal(t, big.NewInt(5), f.ledger.BalanceOf(account, types.NativeAsset))
	})

	t.Run("dst cancellation must not outlive src cancellation", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Mint(taker, "token-b", big.NewInt(200))

		// Dst cancellation lands at 1250; a src deadline before that is
		// unsafe for the maker.
		_, _, err := f.factory.CreateDstEscrow(ctx, taker, dstImmutables(), 1249)
		require.ErrorIs(t, err, commonerrors.ErrInvalidCreationTime)
	})

	t.Run("missing safety deposit returns the caller funding", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Mint(taker, "token-b", big.NewInt(200))

		_, _, err := f.factory.CreateDstEscrow(ctx, taker, dstImmutables(), 1300)
		require.ErrorIs(t, err, commonerrors.ErrInsufficientBalance)
		assert.Equal(t, big.NewInt(200), f.ledger.BalanceOf(taker, types.Identity("token-b")))
	})

	t.Run("zero amount", func(t *testing.T) {
		f := newFixture(t)
		im := dstImmutables()
		im.Amount = big.NewInt(0)

		_, _, err := f.factory.CreateDstEscrow(ctx, taker, im, 1300)
		require.ErrorIs(t, err, commonerrors.ErrSwapWithZeroAmount)
	})
}

func TestAddressOfEscrow(t *testing.T) {
	im := &types.Immutables{
		OrderHash:     crypto.Keccak256Hash([]byte("order")),
		Hashlock:      crypto.Keccak256Hash([]byte("lock")),
		Maker:         maker,
		Taker:         taker,
		Token:         "token-a",
		Amount:        big.NewInt(1),
		SafetyDeposit: big.NewInt(1),
	}

	assert.Equal(t, AddressOfEscrow(escrow.LegSrc, im), AddressOfEscrow(escrow.LegSrc, im))
	assert.NotEqual(t, AddressOfEscrow(escrow.LegSrc, im), AddressOfEscrow(escrow.LegDst, im))

	other := *im
	other.Amount = big.NewInt(2)
	assert.NotEqual(t, AddressOfEscrow(escrow.LegSrc, im), AddressOfEscrow(escrow.LegSrc, &other))
}
