package bridge

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

// amountInBounds checks min <= amount <= max.
func amountInBounds(settings types.Settings, amount math.Uint) error {
	if err := types.CheckAmount(amount); err != nil {
		return err
	}
	if amount.LT(settings.MinAmount) {
		return errorsmod.Wrapf(types.ErrAmountTooLow, "%s < %s", amount, settings.MinAmount)
	}
	if amount.GT(settings.MaxAmount) {
		return errorsmod.Wrapf(types.ErrAmountTooHigh, "%s > %s", amount, settings.MaxAmount)
	}
	return nil
}

// chainTargetValid checks the target blockchain is enabled, is not this
// blockchain, and that the path starts at its registered relay address.
func chainTargetValid(tx *store.Tx, settings types.Settings, params *types.SwapToParams) error {
	if params == nil {
		return errorsmod.Wrap(types.ErrInvalidPayload, "swap_to_params is required")
	}
	if params.Blockchain == settings.ChainID {
		return errorsmod.Wrapf(types.ErrInvalidTarget, "blockchain %d is this blockchain", params.Blockchain)
	}
	enabled, err := tx.IsEnabled(params.Blockchain)
	if err != nil {
		return internalError(err)
	}
	if !enabled {
		return errorsmod.Wrapf(types.ErrInvalidTarget, "blockchain %d is not enabled", params.Blockchain)
	}
	if params.NewAddress == "" {
		return errorsmod.Wrap(types.ErrInvalidTarget, "new address must not be empty")
	}
	if len(params.SecondPath) == 0 {
		return errorsmod.Wrap(types.ErrInvalidTarget, "second path must not be empty")
	}
	relay, ok, err := tx.RelayAddress(params.Blockchain)
	if err != nil {
		return internalError(err)
	}
	if !ok || params.SecondPath[0] != relay {
		return errorsmod.Wrapf(types.ErrInvalidTarget, "the first address in second path must be the relay address of blockchain %d", params.Blockchain)
	}
	return nil
}

// swapLegsValid checks an outbound swap route: it must start at the deposited
// token with an explicit amount and end at the transfer token with a minimum
// output inside the bounds. It returns that minimum output.
func swapLegsValid(settings types.Settings, tokenIn string, legs []types.SwapLeg) (math.Uint, error) {
	if len(legs) == 0 {
		return math.Uint{}, errorsmod.Wrap(types.ErrInvalidSwapLegs, "swap actions must not be empty")
	}
	if legs[0].TokenIn != tokenIn {
		return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "first swap action takes %s, deposit is %s", legs[0].TokenIn, tokenIn)
	}
	for i, leg := range legs {
		if leg.TokenIn == "" || leg.TokenOut == "" {
			return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "swap action %d is missing a token", i)
		}
		if err := types.CheckAmount(leg.MinAmountOut); err != nil {
			return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "swap action %d: %s", i, err)
		}
		if leg.AmountIn != nil {
			if err := types.CheckAmount(*leg.AmountIn); err != nil {
				return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "swap action %d: %s", i, err)
			}
		}
		if i > 0 && leg.AmountIn == nil && leg.TokenIn != legs[i-1].TokenOut {
			return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "swap action %d takes %s, previous gives %s", i, leg.TokenIn, legs[i-1].TokenOut)
		}
	}

	last := legs[len(legs)-1]
	if err := tokenIdentity(settings, last.TokenOut, true); err != nil {
		return math.Uint{}, errorsmod.Wrapf(types.ErrInvalidSwapLegs, "last swap action must give %s", settings.TransferToken)
	}
	if err := amountInBounds(settings, last.MinAmountOut); err != nil {
		return math.Uint{}, err
	}
	return last.MinAmountOut, nil
}

// tokenIdentity checks token against the transfer token, expecting equality
// or inequality.
func tokenIdentity(settings types.Settings, token string, expectTransferToken bool) error {
	if (token == settings.TransferToken) == expectTransferToken {
		return nil
	}
	if expectTransferToken {
		return errorsmod.Wrapf(types.ErrWrongToken, "%s is not the transfer token", token)
	}
	return errorsmod.Wrapf(types.ErrWrongToken, "%s is the transfer token", token)
}

// notReplayed checks hash has never been settled and is not awaiting
// reconciliation of an earlier payout.
func notReplayed(tx *store.Tx, hash string) error {
	processed, err := tx.IsProcessed(hash)
	if err != nil {
		return internalError(err)
	}
	if processed {
		return errorsmod.Wrapf(types.ErrAlreadyProcessed, "%s", hash)
	}
	_, pending, err := tx.PendingFee(hash)
	if err != nil {
		return internalError(err)
	}
	if pending {
		return errorsmod.Wrapf(types.ErrUnreconciled, "%s", hash)
	}
	return nil
}
