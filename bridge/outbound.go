package bridge

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/types"
)

const entryOnTransfer = "ft_on_transfer"

// DepositResult is the accepted outcome of a deposit into the bridge.
type DepositResult struct {
	SagaID  string
	Unused  math.Uint
	Receipt *scheduler.Receipt
}

// OnTransfer is the token ledger's transfer hook. A rejected deposit returns
// an error and the ledger sends the tokens back.
func (b *Bridge) OnTransfer(ctx context.Context, token, sender string, amount math.Uint, msg string) (math.Uint, error) {
	res, err := b.FtOnTransfer(ctx, token, sender, amount, msg)
	if err != nil {
		return math.ZeroUint(), err
	}
	return res.Unused, nil
}

// FtOnTransfer accepts a deposit of token heading to another blockchain. A
// deposit of any other token is swapped into the transfer token first; a
// transfer token deposit is forwarded as is.
func (b *Bridge) FtOnTransfer(ctx context.Context, token, sender string, amount math.Uint, msg string) (DepositResult, error) {
	var sagaID string
	rc, err := b.rt.Invoke(ctx, entryOnTransfer, func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		settings, err := b.loadSettings(tx)
		if err != nil {
			return nil, err
		}
		if !settings.Running {
			return nil, types.ErrPaused
		}
		if err := types.CheckAmount(amount); err != nil {
			return nil, err
		}
		if amount.IsZero() {
			return nil, errorsmod.Wrap(types.ErrInvalidAmount, "deposit must be positive")
		}

		m, err := types.ParseTokenReceiverMessage(msg)
		if err != nil {
			return nil, err
		}
		if err := chainTargetValid(tx, settings, m.SwapToParams); err != nil {
			return nil, err
		}

		switch m.Type {
		case types.MsgSwapTokensToOther:
			if err := tokenIdentity(settings, token, false); err != nil {
				return nil, err
			}
			minOut, err := swapLegsValid(settings, token, m.SwapActions)
			if err != nil {
				return nil, err
			}
			legs := types.ExecuteSwap{Actions: m.SwapActions}.WithFirstAmount(amount).Actions

			saga := b.newSaga(types.Outbound, sender, token, amount)
			saga.MinAmountOut = &minOut
			saga.Target = m.SwapToParams
			if err := saga.Advance(types.RoutedToSwap); err != nil {
				return nil, internalError(err)
			}
			b.sagas.Store(saga)
			sagaID = saga.ID

			b.logger.Info("Routing deposit to swap",
				"saga", saga.ID,
				"sender", sender,
				"token", token,
				"amount", amount,
				"min_amount_out", minOut,
				"blockchain", m.SwapToParams.Blockchain,
			)

			return scheduler.Call("ft_transfer_call", func(ctx context.Context) (any, error) {
				return b.ledger.TransferCall(ctx, token, settings.Account, settings.Router, amount, "")
			}).ThenContinue("after_deposit", b.afterRouterDeposit(saga.ID, settings, legs)), nil

		case types.MsgSwapTransferTokensToOther:
			if err := tokenIdentity(settings, token, true); err != nil {
				return nil, err
			}
			if err := amountInBounds(settings, amount); err != nil {
				return nil, err
			}

			saga := b.newSaga(types.Outbound, sender, token, amount)
			saga.Target = m.SwapToParams
			if err := saga.Advance(types.Forwarded); err != nil {
				return nil, internalError(err)
			}
			b.sagas.Store(saga)
			sagaID = saga.ID

			b.logger.Info("SwapToOtherBlockchain",
				"saga", saga.ID,
				"sender", sender,
				"amount", amount,
				"blockchain", m.SwapToParams.Blockchain,
				"new_address", m.SwapToParams.NewAddress,
				"second_path", m.SwapToParams.SecondPath,
				"swap_to_crypto", m.SwapToParams.SwapToCrypto,
			)
			b.metrics.IncOutbound("forwarded")
			return nil, nil
		}
		return nil, internalError(errorsmod.Wrapf(types.ErrInvalidPayload, "unhandled message type %q", m.Type))
	})
	if err != nil {
		b.logger.Debug("Rejected deposit", "token", token, "sender", sender, "amount", amount, "err", err)
		b.metrics.IncRejection(entryOnTransfer, err)
		return DepositResult{}, err
	}
	return DepositResult{SagaID: sagaID, Unused: math.ZeroUint(), Receipt: rc}, nil
}

// afterRouterDeposit swaps once the deposit reached the router. If the
// deposit itself failed the tokens are still held by the bridge and are
// sent straight back. A deposit that may or may not have reached the router
// is neither swapped nor refunded.
func (b *Bridge) afterRouterDeposit(sagaID string, settings types.Settings, legs []types.SwapLeg) scheduler.Continuation {
	return func(ctx context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
		res, err := scheduler.Single(results)
		if err != nil {
			return nil, internalError(err)
		}
		saga, ok := b.sagas.Load(sagaID)
		if !ok {
			return nil, errorsmod.Wrapf(types.ErrInternal, "saga %s is not tracked", sagaID)
		}

		if res.Outcome == scheduler.Expired {
			return nil, b.stall(sagaID, "deposit", res.Err)
		}
		if res.Outcome != scheduler.Succeeded {
			b.logger.Info("Swap failed", "saga", sagaID, "step", "deposit", "err", res.Err)
			if err := b.advance(sagaID, types.SwapFailed, res.Err); err != nil {
				return nil, err
			}
			return scheduler.Call("ft_transfer_refund", func(ctx context.Context) (any, error) {
				return nil, b.ledger.Transfer(ctx, saga.Token, settings.Account, saga.Sender, saga.Amount)
			}).ThenContinue("record_refund", b.recordOutcome(sagaID, types.Refunded)), nil
		}

		return scheduler.Call("swap", func(ctx context.Context) (any, error) {
			return b.router.Swap(ctx, settings.Account, legs)
		}).ThenContinue("complete_swap", b.completeSwap(sagaID, settings)), nil
	}
}

// completeSwap withdraws the swapped transfer token on success. On failure it
// withdraws the deposited token and returns it to the sender.
func (b *Bridge) completeSwap(sagaID string, settings types.Settings) scheduler.Continuation {
	return func(ctx context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
		res, err := scheduler.Single(results)
		if err != nil {
			return nil, internalError(err)
		}
		saga, ok := b.sagas.Load(sagaID)
		if !ok || saga.MinAmountOut == nil {
			return nil, errorsmod.Wrapf(types.ErrInternal, "saga %s is not tracked", sagaID)
		}

		if res.Outcome == scheduler.Succeeded {
			if err := b.advance(sagaID, types.SwapSucceeded, nil); err != nil {
				return nil, err
			}
			minOut := *saga.MinAmountOut
			b.logger.Info("SwapToOtherBlockchain",
				"saga", sagaID,
				"sender", saga.Sender,
				"token_in", saga.Token,
				"amount_in", saga.Amount,
				"amount_out", res.Value,
				"min_amount_out", minOut,
				"blockchain", saga.Target.Blockchain,
				"new_address", saga.Target.NewAddress,
				"second_path", saga.Target.SecondPath,
				"swap_to_crypto", saga.Target.SwapToCrypto,
			)
			return scheduler.Call("withdraw", func(ctx context.Context) (any, error) {
				return nil, b.router.Withdraw(ctx, settings.Account, settings.TransferToken, minOut)
			}).ThenContinue("record_withdraw", b.recordOutcome(sagaID, types.WithdrawnOutward)), nil
		}

		if res.Outcome == scheduler.Expired {
			return nil, b.stall(sagaID, "swap", res.Err)
		}
		b.logger.Info("Swap failed", "saga", sagaID, "step", "swap", "err", res.Err)
		if err := b.advance(sagaID, types.SwapFailed, res.Err); err != nil {
			return nil, err
		}
		return scheduler.Call("withdraw_refund", func(ctx context.Context) (any, error) {
			return nil, b.router.Withdraw(ctx, settings.Account, saga.Token, saga.Amount)
		}).Then("ft_transfer_refund", func(ctx context.Context) (any, error) {
			return nil, b.ledger.Transfer(ctx, saga.Token, settings.Account, saga.Sender, saga.Amount)
		}).ThenContinue("record_refund", b.recordOutcome(sagaID, types.Refunded)), nil
	}
}

// recordOutcome closes an outbound saga. A failed withdraw or refund leaves
// the saga stalled with the custody still held by the router or the bridge.
func (b *Bridge) recordOutcome(sagaID, status string) scheduler.Continuation {
	return func(ctx context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
		res, err := scheduler.Single(results)
		if err != nil {
			return nil, internalError(err)
		}
		if res.Outcome != scheduler.Succeeded {
			b.logger.Error("Outbound saga stalled", "saga", sagaID, "wanted", status, "err", res.Err)
			b.metrics.IncOutbound(types.Stalled)
			return nil, b.advance(sagaID, types.Stalled, res.Err)
		}
		b.logger.Info("Outbound saga complete", "saga", sagaID, "status", status)
		b.metrics.IncOutbound(status)
		return nil, b.advance(sagaID, status, nil)
	}
}

// stall parks an outbound saga whose step outcome is unknown. Custody is
// wherever the expired call left it, so no compensation is attempted.
func (b *Bridge) stall(sagaID, step string, cause error) error {
	b.logger.Error("Outbound saga stalled, outcome unknown", "saga", sagaID, "step", step, "err", cause)
	b.metrics.IncOutbound(types.Stalled)
	return b.advance(sagaID, types.Stalled, cause)
}
