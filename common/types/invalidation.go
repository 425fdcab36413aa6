package types

import "math/big"

// BitInvalidatorData is the per-maker record of invalidated 256-order slots.
// Marking a slot invalidates every order whose nonce maps to it; slots are
// never un-marked.
type BitInvalidatorData struct {
	Slots map[uint64]struct{}
}

// NewBitInvalidatorData returns an empty per-maker record.
func NewBitInvalidatorData() *BitInvalidatorData {
	return &BitInvalidatorData{Slots: make(map[uint64]struct{})}
}

// CheckSlot reports whether the slot has been invalidated.
func (d *BitInvalidatorData) CheckSlot(slot uint64) bool {
	if d == nil || d.Slots == nil {
		return false
	}
	_, ok := d.Slots[slot]
	return ok
}

// MassInvalidate marks the slot the nonce maps to, closing all orders that
// share it, and returns the slot index.
func (d *BitInvalidatorData) MassInvalidate(nonceOrEpoch uint64) uint64 {
	slot := nonceOrEpoch >> 8
	if d.Slots == nil {
		d.Slots = make(map[uint64]struct{})
	}
	d.Slots[slot] = struct{}{}
	return slot
}

// RemainingInvalidator tracks the unfilled amount of a partial-fill-capable
// order. The stored value only decreases; zero is terminal. An order with no
// stored entry is fully open, which is why store lookups must distinguish
// "absent" from "present with zero".
type RemainingInvalidator struct {
	remaining *big.Int
}

// NewRemainingInvalidator records the given remaining amount.
func NewRemainingInvalidator(remaining *big.Int) *RemainingInvalidator {
	return &RemainingInvalidator{remaining: new(big.Int).Set(remaining)}
}

// FullyFilled returns an invalidator with nothing left to fill. Used both
// when a fill exhausts the order and for direct cancellation.
func FullyFilled() *RemainingInvalidator {
	return &RemainingInvalidator{remaining: new(big.Int)}
}

// Remaining returns the unfilled amount.
func (r *RemainingInvalidator) Remaining() *big.Int {
	return new(big.Int).Set(r.remaining)
}

// IsExhausted reports whether nothing is left to fill.
func (r *RemainingInvalidator) IsExhausted() bool {
	return r.remaining.Sign() == 0
}
