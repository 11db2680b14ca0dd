package types

import (
	"context"

	"cosmossdk.io/math"
)

// Ledger is the fungible token ledger the bridge holds custody on.
type Ledger interface {
	// Transfer moves amount of token from sender to receiver.
	Transfer(ctx context.Context, token, sender, receiver string, amount math.Uint) error

	// TransferCall moves amount of token to receiver and hands msg to the
	// receiver's OnTransfer hook. Whatever the receiver reports unused is
	// returned to sender. It fails when the receiver rejects the deposit.
	TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (used math.Uint, err error)
}

// Router is the DEX router holding pooled liquidity and per-account deposits.
type Router interface {
	// Swap executes legs against account's router deposits and returns the
	// output of the final leg.
	Swap(ctx context.Context, account string, legs []SwapLeg) (math.Uint, error)

	// Withdraw pays amount of token out of account's router deposit back to account.
	Withdraw(ctx context.Context, account, token string, amount math.Uint) error
}

// Receiver accepts tokens sent with TransferCall.
type Receiver interface {
	OnTransfer(ctx context.Context, token, sender string, amount math.Uint, msg string) (unused math.Uint, err error)
}
