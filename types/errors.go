package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error codespace for every bridge rejection.
const Codespace = "bridge"

// access rejections
var (
	ErrUnauthorized = errorsmod.Register(Codespace, 2, "caller is not authorized")
)

// validation rejections
var (
	ErrPaused            = errorsmod.Register(Codespace, 3, "bridge is not running")
	ErrAmountTooLow      = errorsmod.Register(Codespace, 4, "not enough tokens")
	ErrAmountTooHigh     = errorsmod.Register(Codespace, 5, "too much tokens requested")
	ErrInvalidTarget     = errorsmod.Register(Codespace, 6, "wrong choice of blockchain")
	ErrInvalidSwapLegs   = errorsmod.Register(Codespace, 7, "invalid swap legs")
	ErrWrongToken        = errorsmod.Register(Codespace, 8, "wrong token")
	ErrAlreadyProcessed  = errorsmod.Register(Codespace, 9, "transaction already processed")
	ErrInFlight          = errorsmod.Register(Codespace, 10, "operation already in flight")
	ErrInvalidPayload    = errorsmod.Register(Codespace, 11, "invalid payload")
	ErrInvalidFeeRate    = errorsmod.Register(Codespace, 12, "fee rate must be below 1000000 ppm")
	ErrInvalidBounds     = errorsmod.Register(Codespace, 13, "invalid amount bounds")
	ErrChainExists       = errorsmod.Register(Codespace, 14, "blockchain already enabled")
	ErrChainNotFound     = errorsmod.Register(Codespace, 15, "blockchain not found")
	ErrNothingToWithdraw = errorsmod.Register(Codespace, 16, "nothing to withdraw")
	ErrInvalidAmount     = errorsmod.Register(Codespace, 17, "invalid amount")
	ErrUnreconciled      = errorsmod.Register(Codespace, 19, "payout outcome unknown, awaiting reconciliation")
	ErrNothingToSettle   = errorsmod.Register(Codespace, 20, "nothing awaiting reconciliation")
)

// ErrInternal marks a broken invariant. The invocation that hits it is aborted
// and none of its writes are committed.
var ErrInternal = errorsmod.Register(Codespace, 18, "internal invariant violation")

// IsAccessError reports whether err is a role check rejection.
func IsAccessError(err error) bool {
	return errorsmod.IsOf(err, ErrUnauthorized)
}

// IsValidationError reports whether err rejected a request before any custody change.
func IsValidationError(err error) bool {
	return errorsmod.IsOf(err,
		ErrPaused,
		ErrAmountTooLow,
		ErrAmountTooHigh,
		ErrInvalidTarget,
		ErrInvalidSwapLegs,
		ErrWrongToken,
		ErrAlreadyProcessed,
		ErrInFlight,
		ErrInvalidPayload,
		ErrInvalidFeeRate,
		ErrInvalidBounds,
		ErrChainExists,
		ErrChainNotFound,
		ErrNothingToWithdraw,
		ErrInvalidAmount,
		ErrUnreconciled,
		ErrNothingToSettle,
	)
}
