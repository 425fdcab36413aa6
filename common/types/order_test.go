package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakerTraitsInvalidatorSlot(t *testing.T) {
	assert.Equal(t, uint64(0), MakerTraits{NonceOrEpoch: 0}.InvalidatorSlot())
	assert.Equal(t, uint64(0), MakerTraits{NonceOrEpoch: 255}.InvalidatorSlot())
	assert.Equal(t, uint64(1), MakerTraits{NonceOrEpoch: 256}.InvalidatorSlot())
	assert.Equal(t, uint64(3), MakerTraits{NonceOrEpoch: 1000}.InvalidatorSlot())
}

func TestMakerTraitsAllowMultipleFills(t *testing.T) {
	assert.True(t, MakerTraits{}.AllowMultipleFills())
	assert.False(t, MakerTraits{UseBitInvalidator: true}.AllowMultipleFills())
}

func TestOrderValidate(t *testing.T) {
	valid := func() *Order {
		return &Order{
			Salt:         1,
			Maker:        "alice",
			Receiver:     "alice",
			MakerAsset:   "token-a",
			TakerAsset:   "token-b",
			MakingAmount: big.NewInt(100),
			TakingAmount: big.NewInt(200),
		}
	}

	t.Run("well formed", func(t *testing.T) {
		assert.True(t, valid().Validate())
	})

	t.Run("zero making amount", func(t *testing.T) {
		order := valid()
		order.MakingAmount = big.NewInt(0)
		assert.False(t, order.Validate())
	})

	t.Run("nil taking amount", func(t *testing.T) {
		order := valid()
		order.TakingAmount = nil
		assert.False(t, order.Validate())
	})

	t.Run("empty maker", func(t *testing.T) {
		order := valid()
		order.Maker = ""
		assert.False(t, order.Validate())
	})
}

func TestBitInvalidatorData(t *testing.T) {
	t.Run("nil record has no slots", func(t *testing.T) {
		var data *BitInvalidatorData
		assert.False(t, data.CheckSlot(0))
	})

	t.Run("mass invalidate marks whole slot", func(t *testing.T) {
		data := NewBitInvalidatorData()

		slot := data.MassInvalidate(777)

		require.Equal(t, uint64(3), slot)
		assert.True(t, data.CheckSlot(3))
		assert.False(t, data.CheckSlot(2))
	})
}

func TestRemainingInvalidator(t *testing.T) {
	t.Run("tracks remaining amount", func(t *testing.T) {
		inv := NewRemainingInvalidator(big.NewInt(40))

		assert.Equal(t, big.NewInt(40), inv.Remaining())
		assert.False(t, inv.IsExhausted())
	})

	t.Run("fully filled is exhausted", func(t *testing.T) {
		inv := FullyFilled()

		assert.True(t, inv.IsExhausted())
		assert.Equal(t, int64(0), inv.Remaining().Int64())
	})

	t.Run("copies its input", func(t *testing.T) {
		amount := big.NewInt(10)
		inv := NewRemainingInvalidator(amount)
		amount.SetInt64(99)

		assert.Equal(t, big.NewInt(10), inv.Remaining())
	})
}
