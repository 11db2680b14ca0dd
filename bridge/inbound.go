package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

const entrySettlement = "swap_tokens_to_user_with_fee"

// SwapTokensToUserWithFee pays out value that was deposited on another
// blockchain, minus the bridge fee. With a swap message the fee-deducted
// amount is first swapped on the router and amount_out_min of token_out is
// paid instead. The tx hash is marked processed only once the payout succeeds.
func (b *Bridge) SwapTokensToUserWithFee(
	ctx context.Context,
	caller string,
	params types.SwapFromParams,
	swap *types.ExecuteSwap,
) (string, *scheduler.Receipt, error) {
	var sagaID string
	rc, err := b.rt.Invoke(ctx, entrySettlement, func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		settings, err := b.loadSettings(tx)
		if err != nil {
			return nil, err
		}
		if caller != settings.Relayer {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the relayer", caller)
		}
		if !settings.Running {
			return nil, types.ErrPaused
		}
		if err := params.Validate(); err != nil {
			return nil, err
		}
		if err := amountInBounds(settings, params.AmountWithFee); err != nil {
			return nil, err
		}
		if err := notReplayed(tx, params.OriginalTxHash); err != nil {
			return nil, err
		}
		if _, ok := b.inFlight[params.OriginalTxHash]; ok {
			return nil, errorsmod.Wrapf(types.ErrInFlight, "settlement of %s", params.OriginalTxHash)
		}

		feeRate, err := feeRateFor(tx, settings, params.SourceChain)
		if err != nil {
			return nil, err
		}
		afterFee, fee := types.SplitFee(params.AmountWithFee, feeRate)

		var payout *scheduler.Promise
		if swap != nil {
			payout, err = b.swapPayout(settings, params, *swap, afterFee)
			if err != nil {
				return nil, err
			}
		} else {
			payout = scheduler.Call("ft_transfer", func(ctx context.Context) (any, error) {
				return nil, b.ledger.Transfer(ctx, settings.TransferToken, settings.Account, params.NewAddress, afterFee)
			})
		}

		saga := b.newSaga(types.Inbound, caller, settings.TransferToken, params.AmountWithFee)
		saga.TxHash = params.OriginalTxHash
		saga.NewAddress = params.NewAddress
		saga.AfterFee = &afterFee
		saga.Fee = &fee
		b.sagas.Store(saga)
		b.inFlight[params.OriginalTxHash] = struct{}{}
		sagaID = saga.ID

		b.logger.Info("SwapFromOtherBlockchain",
			"saga", saga.ID,
			"tx_hash", params.OriginalTxHash,
			"new_address", params.NewAddress,
			"token_out", params.TokenOut,
			"amount_with_fee", params.AmountWithFee,
			"amount_after_fee", afterFee,
			"fee_rate", feeRate,
			"swap", swap != nil,
		)

		return payout.ThenContinue("finalize_settlement", b.finalizeSettlement(saga.ID, params.OriginalTxHash, fee)), nil
	})
	if err != nil {
		b.logger.Debug("Rejected settlement", "tx_hash", params.OriginalTxHash, "caller", caller, "err", err)
		b.metrics.IncRejection(entrySettlement, err)
		return "", nil, err
	}
	return sagaID, rc, nil
}

// swapPayout routes the fee-deducted amount through the router and pays
// amount_out_min of token_out to the user. Only the first action's amount is
// rewritten; action order is kept.
func (b *Bridge) swapPayout(settings types.Settings, params types.SwapFromParams, swap types.ExecuteSwap, afterFee math.Uint) (*scheduler.Promise, error) {
	if len(swap.Actions) == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidSwapLegs, "swap actions must not be empty")
	}
	if err := tokenIdentity(settings, swap.Actions[0].TokenIn, true); err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidSwapLegs, err.Error())
	}
	msg, err := json.Marshal(swap.WithFirstAmount(afterFee))
	if err != nil {
		return nil, internalError(err)
	}

	return scheduler.Call("ft_transfer_call", func(ctx context.Context) (any, error) {
		used, err := b.ledger.TransferCall(ctx, settings.TransferToken, settings.Account, settings.Router, afterFee, string(msg))
		if err != nil {
			return nil, err
		}
		// anything the router hands back means the swap did not run in full
		if used.LT(afterFee) {
			return used, fmt.Errorf("router used %s of %s %s", used, afterFee, settings.TransferToken)
		}
		return used, nil
	}).Then("ft_transfer", func(ctx context.Context) (any, error) {
		return nil, b.ledger.Transfer(ctx, params.TokenOut, settings.Account, params.NewAddress, params.AmountOutMin)
	}), nil
}

// finalizeSettlement marks the hash processed and accrues the fee when the
// payout succeeded. The fee is accrued here rather than on entry, so a failed
// payout changes nothing and the relayer can resubmit. A payout whose outcome
// is unknown blocks the hash until it is reconciled.
func (b *Bridge) finalizeSettlement(sagaID, hash string, fee math.Uint) scheduler.Continuation {
	return func(ctx context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
		defer delete(b.inFlight, hash)

		res, err := scheduler.Single(results)
		if err != nil {
			return nil, internalError(err)
		}

		switch res.Outcome {
		case scheduler.Succeeded:
		case scheduler.Expired:
			tx := b.store.Begin()
			if err := tx.MarkPending(hash, fee); err != nil {
				return nil, internalError(err)
			}
			if err := tx.Commit(); err != nil {
				return nil, internalError(err)
			}
			b.logger.Error("Settlement payout outcome unknown, tx hash held for reconciliation", "saga", sagaID, "tx_hash", hash, "err", res.Err)
			b.metrics.IncSettlement(types.Stalled)
			return nil, b.advance(sagaID, types.Stalled, res.Err)
		default:
			b.logger.Info("Settlement payout failed, tx hash left unprocessed", "saga", sagaID, "tx_hash", hash, "err", res.Err)
			b.metrics.IncSettlement(types.Failed)
			return nil, b.advance(sagaID, types.Failed, res.Err)
		}

		tx := b.store.Begin()
		if err := notReplayed(tx, hash); err != nil {
			return nil, internalError(err)
		}
		settings, err := b.settle(tx, hash, fee)
		if err != nil {
			return nil, err
		}

		b.logger.Info("Settlement complete", "saga", sagaID, "tx_hash", hash, "fee", fee, "accumulated_fee", settings.AccumulatedFee)
		b.metrics.IncSettlement(types.Settled)
		b.refreshFeeGauge()
		return nil, b.advance(sagaID, types.Settled, nil)
	}
}

// settle marks hash processed, accrues fee and commits tx.
func (b *Bridge) settle(tx *store.Tx, hash string, fee math.Uint) (types.Settings, error) {
	settings, err := b.loadSettings(tx)
	if err != nil {
		return settings, err
	}
	tx.MarkProcessed(hash)
	settings.AccumulatedFee = settings.AccumulatedFee.Add(fee)
	if err := tx.SetSettings(settings); err != nil {
		return settings, internalError(err)
	}
	if err := tx.Commit(); err != nil {
		return settings, internalError(err)
	}
	return settings, nil
}
