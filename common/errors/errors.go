package errors

import "github.com/pkg/errors"

var (
	ErrInvalidCaller         = errors.New("caller is not allowed to perform this operation")
	ErrTimelockNotReached    = errors.New("timelock stage not reached")
	ErrTimelockExpired       = errors.New("timelock stage expired")
	ErrInvalidSecret         = errors.New("secret does not match hashlock")
	ErrInvalidImmutables     = errors.New("invalid immutables")
	ErrSwapWithZeroAmount    = errors.New("swap with zero amount")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrInvalidatedOrder      = errors.New("order invalidated")
	ErrInvalidPartialFill    = errors.New("invalid partial fill")
	ErrInvalidProof          = errors.New("invalid merkle proof")
	ErrInvalidSecretsAmount  = errors.New("invalid secrets amount")
	ErrMismatchArraysLengths = errors.New("mismatch arrays lengths")
	ErrInvalidExtraData      = errors.New("invalid extra data")
	ErrInvalidSignature      = errors.New("invalid order signature")
	ErrOrderExpired          = errors.New("order expired")
	ErrContractPaused        = errors.New("contract paused")
	ErrAccessDenied          = errors.New("access denied")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidCreationTime   = errors.New("invalid creation time")
)
