package types

import (
	commonerrors "github.com/ClipFinance/fusion-lib/common/errors"
)

// Stage identifies one timelock window boundary of an escrow leg.
type Stage uint8

const (
	StageSrcWithdrawal Stage = iota
	StageSrcPublicWithdrawal
	StageSrcCancellation
	StageSrcPublicCancellation
	StageDstWithdrawal
	StageDstPublicWithdrawal
	StageDstCancellation
)

func (s Stage) String() string {
	switch s {
	case StageSrcWithdrawal:
		return "SrcWithdrawal"
	case StageSrcPublicWithdrawal:
		return "SrcPublicWithdrawal"
	case StageSrcCancellation:
		return "SrcCancellation"
	case StageSrcPublicCancellation:
		return "SrcPublicCancellation"
	case StageDstWithdrawal:
		return "DstWithdrawal"
	case StageDstPublicWithdrawal:
		return "DstPublicWithdrawal"
	case StageDstCancellation:
		return "DstCancellation"
	}
	return "Unknown"
}

// Timelocks encodes the seven stage offsets of a swap relative to the leg's
// deployment timestamp. All values are unix seconds; offsets are relative,
// DeployedAt is absolute. DeployedAt is written exactly once, when the leg is
// created, and never changes afterwards.
type Timelocks struct {
	DeployedAt            uint64 `json:"deployedAt"`
	SrcWithdrawal         uint64 `json:"srcWithdrawal"`
	SrcPublicWithdrawal   uint64 `json:"srcPublicWithdrawal"`
	SrcCancellation       uint64 `json:"srcCancellation"`
	SrcPublicCancellation uint64 `json:"srcPublicCancellation"`
	DstWithdrawal         uint64 `json:"dstWithdrawal"`
	DstPublicWithdrawal   uint64 `json:"dstPublicWithdrawal"`
	DstCancellation       uint64 `json:"dstCancellation"`
}

// offset returns the relative offset for a stage.
func (t Timelocks) offset(stage Stage) uint64 {
	switch stage {
	case StageSrcWithdrawal:
		return t.SrcWithdrawal
	case StageSrcPublicWithdrawal:
		return t.SrcPublicWithdrawal
	case StageSrcCancellation:
		return t.SrcCancellation
	case StageSrcPublicCancellation:
		return t.SrcPublicCancellation
	case StageDstWithdrawal:
		return t.DstWithdrawal
	case StageDstPublicWithdrawal:
		return t.DstPublicWithdrawal
	case StageDstCancellation:
		return t.DstCancellation
	}
	return 0
}

// Get returns the absolute timestamp at which the given stage starts.
func (t Timelocks) Get(stage Stage) uint64 {
	return t.DeployedAt + t.offset(stage)
}

// RescueStart returns the absolute timestamp after which stuck deposits may
// be rescued from the escrow.
func (t Timelocks) RescueStart(rescueDelay uint64) uint64 {
	return t.DeployedAt + rescueDelay
}

// WithDeployedAt returns a copy of the timelocks anchored at the given
// deployment timestamp. Callers must only anchor a leg once.
func (t Timelocks) WithDeployedAt(deployedAt uint64) Timelocks {
	t.DeployedAt = deployedAt
	return t
}

// Validate checks the monotonic stage ordering required for a well-formed
// swap: the source chain must open withdrawal before public withdrawal,
// before cancellation, before public cancellation; the destination chain
// must open withdrawal before public withdrawal, before cancellation.
func (t Timelocks) Validate() error {
	if !(t.SrcWithdrawal < t.SrcPublicWithdrawal &&
		t.SrcPublicWithdrawal < t.SrcCancellation &&
		t.SrcCancellation < t.SrcPublicCancellation) {
		return commonerrors.ErrInvalidImmutables
	}
	if !(t.DstWithdrawal < t.DstPublicWithdrawal &&
		t.DstPublicWithdrawal < t.DstCancellation) {
		return commonerrors.ErrInvalidImmutables
	}
	return nil
}
