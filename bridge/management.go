package bridge

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

type role func(types.Settings, string) bool

var (
	ownerOnly       role = types.Settings.IsOwner
	ownerOrManager  role = types.Settings.IsOwnerOrManager
	errEmptyAccount      = errorsmod.Wrap(types.ErrInvalidPayload, "account must not be empty")
)

// update runs a guarded setter on the exclusive loop and commits its writes.
func (b *Bridge) update(ctx context.Context, name, caller string, allowed role, fn func(tx *store.Tx, s *types.Settings) error) error {
	_, err := b.rt.Invoke(ctx, name, func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		settings, err := b.loadSettings(tx)
		if err != nil {
			return nil, err
		}
		if !allowed(settings, caller) {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s may not call %s", caller, name)
		}
		if err := fn(tx, &settings); err != nil {
			return nil, err
		}
		if err := tx.SetSettings(settings); err != nil {
			return nil, internalError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, internalError(err)
		}
		return nil, nil
	})
	if err != nil {
		b.logger.Debug("Rejected admin call", "op", name, "caller", caller, "err", err)
		b.metrics.IncRejection(name, err)
		return err
	}
	b.logger.Info("Configuration updated", "op", name, "caller", caller)
	return nil
}

func (b *Bridge) setAccount(ctx context.Context, name, caller, account string, field func(*types.Settings) *string) error {
	return b.update(ctx, name, caller, ownerOnly, func(_ *store.Tx, s *types.Settings) error {
		if account == "" {
			return errEmptyAccount
		}
		*field(s) = account
		return nil
	})
}

func (b *Bridge) SetOwner(ctx context.Context, caller, owner string) error {
	return b.setAccount(ctx, "set_owner", caller, owner, func(s *types.Settings) *string { return &s.Owner })
}

func (b *Bridge) SetManager(ctx context.Context, caller, manager string) error {
	return b.setAccount(ctx, "set_manager", caller, manager, func(s *types.Settings) *string { return &s.Manager })
}

func (b *Bridge) SetRelayer(ctx context.Context, caller, relayer string) error {
	return b.setAccount(ctx, "set_relayer", caller, relayer, func(s *types.Settings) *string { return &s.Relayer })
}

func (b *Bridge) SetTransferToken(ctx context.Context, caller, token string) error {
	return b.setAccount(ctx, "set_transfer_token", caller, token, func(s *types.Settings) *string { return &s.TransferToken })
}

func (b *Bridge) SetRouter(ctx context.Context, caller, router string) error {
	return b.setAccount(ctx, "set_blockchain_router", caller, router, func(s *types.Settings) *string { return &s.Router })
}

// SetBlockchainID changes the id of this blockchain. It may not collide with an enabled target.
func (b *Bridge) SetBlockchainID(ctx context.Context, caller string, id uint64) error {
	return b.update(ctx, "set_num_of_this_blockchain", caller, ownerOnly, func(tx *store.Tx, s *types.Settings) error {
		enabled, err := tx.IsEnabled(id)
		if err != nil {
			return internalError(err)
		}
		if enabled {
			return errorsmod.Wrapf(types.ErrInvalidTarget, "blockchain %d is an enabled target", id)
		}
		s.ChainID = id
		return nil
	})
}

func (b *Bridge) SetMinAmount(ctx context.Context, caller string, amount math.Uint) error {
	return b.update(ctx, "set_min_token_amount", caller, ownerOrManager, func(_ *store.Tx, s *types.Settings) error {
		if err := types.CheckAmount(amount); err != nil {
			return err
		}
		if amount.GT(s.MaxAmount) {
			return errorsmod.Wrapf(types.ErrInvalidBounds, "min %s > max %s", amount, s.MaxAmount)
		}
		s.MinAmount = amount
		return nil
	})
}

func (b *Bridge) SetMaxAmount(ctx context.Context, caller string, amount math.Uint) error {
	return b.update(ctx, "set_max_token_amount", caller, ownerOrManager, func(_ *store.Tx, s *types.Settings) error {
		if err := types.CheckAmount(amount); err != nil {
			return err
		}
		if amount.LT(s.MinAmount) {
			return errorsmod.Wrapf(types.ErrInvalidBounds, "max %s < min %s", amount, s.MinAmount)
		}
		s.MaxAmount = amount
		return nil
	})
}

func (b *Bridge) SetRunning(ctx context.Context, caller string, running bool) error {
	return b.update(ctx, "set_is_running", caller, ownerOrManager, func(_ *store.Tx, s *types.Settings) error {
		s.Running = running
		return nil
	})
}

func (b *Bridge) SetDefaultFeeRate(ctx context.Context, caller string, rate uint32) error {
	return b.update(ctx, "set_default_fee_rate", caller, ownerOrManager, func(_ *store.Tx, s *types.Settings) error {
		if rate >= types.FeeDenominator {
			return errorsmod.Wrapf(types.ErrInvalidFeeRate, "%d", rate)
		}
		s.DefaultFeeRate = rate
		return nil
	})
}

// AddTargetChain enables swaps toward blockchain id.
func (b *Bridge) AddTargetChain(ctx context.Context, caller string, id uint64) error {
	return b.update(ctx, "add_other_blockchain", caller, ownerOnly, func(tx *store.Tx, s *types.Settings) error {
		if id == s.ChainID {
			return errorsmod.Wrapf(types.ErrInvalidTarget, "blockchain %d is this blockchain", id)
		}
		enabled, err := tx.IsEnabled(id)
		if err != nil {
			return internalError(err)
		}
		if enabled {
			return errorsmod.Wrapf(types.ErrChainExists, "%d", id)
		}
		tx.SetEnabled(id, true)
		return nil
	})
}

// RemoveTargetChain disables swaps toward blockchain id. Its relay address and
// fee rate are kept.
func (b *Bridge) RemoveTargetChain(ctx context.Context, caller string, id uint64) error {
	return b.update(ctx, "remove_other_blockchain", caller, ownerOnly, func(tx *store.Tx, _ *types.Settings) error {
		enabled, err := tx.IsEnabled(id)
		if err != nil {
			return internalError(err)
		}
		if !enabled {
			return errorsmod.Wrapf(types.ErrChainNotFound, "%d", id)
		}
		tx.SetEnabled(id, false)
		return nil
	})
}

func (b *Bridge) SetRelayAddress(ctx context.Context, caller string, id uint64, address string) error {
	return b.update(ctx, "set_rubic_address_of_blockchain", caller, ownerOrManager, func(tx *store.Tx, _ *types.Settings) error {
		if address == "" {
			return errorsmod.Wrap(types.ErrInvalidTarget, "relay address must not be empty")
		}
		tx.SetRelayAddress(id, address)
		return nil
	})
}

func (b *Bridge) SetFeeRate(ctx context.Context, caller string, id uint64, rate uint32) error {
	return b.update(ctx, "set_fee_amount_of_blockchain", caller, ownerOrManager, func(tx *store.Tx, _ *types.Settings) error {
		if rate >= types.FeeDenominator {
			return errorsmod.Wrapf(types.ErrInvalidFeeRate, "%d", rate)
		}
		tx.SetFeeRate(id, rate)
		return nil
	})
}

// CollectFee pays the withdrawable fee to the owner. The paid amount is
// recorded as withdrawn only after the transfer succeeds.
func (b *Bridge) CollectFee(ctx context.Context, caller string) (*scheduler.Receipt, error) {
	const name = "collect_token_fee"
	rc, err := b.rt.Invoke(ctx, name, func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		settings, err := b.loadSettings(tx)
		if err != nil {
			return nil, err
		}
		if !settings.IsOwner(caller) {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s may not call %s", caller, name)
		}
		if b.collecting {
			return nil, errorsmod.Wrap(types.ErrInFlight, "fee collection")
		}
		amount := settings.WithdrawableFee()
		if amount.IsZero() {
			return nil, types.ErrNothingToWithdraw
		}
		b.collecting = true

		b.logger.Info("Collecting fee", "owner", settings.Owner, "amount", amount)
		return scheduler.Call("ft_transfer", func(ctx context.Context) (any, error) {
			return nil, b.ledger.Transfer(ctx, settings.TransferToken, settings.Account, settings.Owner, amount)
		}).ThenContinue("record_fee_collection", b.recordFeeCollection(amount)), nil
	})
	if err != nil {
		b.metrics.IncRejection(name, err)
		return nil, err
	}
	return rc, nil
}

// recordFeeCollection records a confirmed payout. When the payout outcome is
// unknown, collection stays blocked until ReconcileFeeCollection.
func (b *Bridge) recordFeeCollection(amount math.Uint) scheduler.Continuation {
	return func(ctx context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
		res, err := scheduler.Single(results)
		if err != nil {
			b.collecting = false
			return nil, internalError(err)
		}
		switch res.Outcome {
		case scheduler.Succeeded:
		case scheduler.Expired:
			b.logger.Error("Fee collection outcome unknown, collection held for reconciliation", "amount", amount, "err", res.Err)
			b.pendingCollection = &amount
			return nil, nil
		default:
			b.collecting = false
			b.logger.Error("Fee collection failed", "amount", amount, "err", res.Err)
			return nil, nil
		}

		b.collecting = false
		return nil, b.recordWithdrawn(amount)
	}
}

func (b *Bridge) recordWithdrawn(amount math.Uint) error {
	tx := b.store.Begin()
	settings, err := b.loadSettings(tx)
	if err != nil {
		return err
	}
	settings.WithdrawnFee = settings.WithdrawnFee.Add(amount)
	if settings.WithdrawnFee.GT(settings.AccumulatedFee) {
		return errorsmod.Wrapf(types.ErrInternal, "withdrawn fee %s exceeds accumulated %s", settings.WithdrawnFee, settings.AccumulatedFee)
	}
	if err := tx.SetSettings(settings); err != nil {
		return internalError(err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(err)
	}
	b.logger.Info("Fee collected", "amount", amount, "withdrawn_fee", settings.WithdrawnFee)
	b.refreshFeeGauge()
	return nil
}

// PoolBalancing moves amount of the transfer token from the bridge to the owner.
func (b *Bridge) PoolBalancing(ctx context.Context, caller string, amount math.Uint) (*scheduler.Receipt, error) {
	const name = "pool_balancing"
	rc, err := b.rt.Invoke(ctx, name, func(context.Context) (*scheduler.Promise, error) {
		settings, err := b.loadSettings(b.store.Begin())
		if err != nil {
			return nil, err
		}
		if !settings.IsOwner(caller) {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s may not call %s", caller, name)
		}
		if err := types.CheckAmount(amount); err != nil {
			return nil, err
		}
		if amount.IsZero() {
			return nil, errorsmod.Wrap(types.ErrInvalidAmount, "amount must be positive")
		}

		b.logger.Info("Rebalancing pool", "owner", settings.Owner, "amount", amount)
		return scheduler.Call("ft_transfer", func(ctx context.Context) (any, error) {
			return nil, b.ledger.Transfer(ctx, settings.TransferToken, settings.Account, settings.Owner, amount)
		}).ThenContinue("record_pool_balancing", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
			res, err := scheduler.Single(results)
			if err != nil {
				return nil, internalError(err)
			}
			switch res.Outcome {
			case scheduler.Expired:
				b.logger.Error("Pool balancing outcome unknown", "amount", amount, "err", res.Err)
			case scheduler.Failed:
				b.logger.Error("Pool balancing failed", "amount", amount, "err", res.Err)
			}
			return nil, nil
		}), nil
	})
	if err != nil {
		b.metrics.IncRejection(name, err)
		return nil, err
	}
	return rc, nil
}
