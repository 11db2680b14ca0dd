package bridge

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/types"
)

// ReconcileSettlement resolves a settlement whose payout outcome is unknown.
// paid records whether the user actually received the payout: if so the hash
// is marked processed and the held fee accrues, otherwise the hash is released
// for the relayer to resubmit.
func (b *Bridge) ReconcileSettlement(ctx context.Context, caller, hash string, paid bool) error {
	const name = "reconcile_settlement"
	_, err := b.rt.Invoke(ctx, name, func(context.Context) (*scheduler.Promise, error) {
		tx := b.store.Begin()
		settings, err := b.loadSettings(tx)
		if err != nil {
			return nil, err
		}
		if !settings.IsOwnerOrManager(caller) {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s may not call %s", caller, name)
		}
		fee, ok, err := tx.PendingFee(hash)
		if err != nil {
			return nil, internalError(err)
		}
		if !ok {
			return nil, errorsmod.Wrapf(types.ErrNothingToSettle, "%s", hash)
		}

		tx.ClearPending(hash)
		status := types.Failed
		if paid {
			if _, err := b.settle(tx, hash, fee); err != nil {
				return nil, err
			}
			status = types.Settled
			b.refreshFeeGauge()
		} else if err := tx.Commit(); err != nil {
			return nil, internalError(err)
		}

		for _, saga := range b.sagas.FindByTxHash(hash) {
			if saga.Status != types.Stalled {
				continue
			}
			if err := b.advance(saga.ID, status, nil); err != nil {
				return nil, err
			}
		}
		b.logger.Info("Settlement reconciled", "tx_hash", hash, "paid", paid, "fee", fee, "caller", caller)
		b.metrics.IncSettlement(status)
		return nil, nil
	})
	if err != nil {
		b.metrics.IncRejection(name, err)
		return err
	}
	return nil
}

// ReconcileFeeCollection resolves a fee payout whose outcome is unknown and
// unblocks collection. paid records whether the owner received it.
func (b *Bridge) ReconcileFeeCollection(ctx context.Context, caller string, paid bool) error {
	const name = "reconcile_fee_collection"
	_, err := b.rt.Invoke(ctx, name, func(context.Context) (*scheduler.Promise, error) {
		settings, err := b.loadSettings(b.store.Begin())
		if err != nil {
			return nil, err
		}
		if !settings.IsOwner(caller) {
			return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s may not call %s", caller, name)
		}
		if b.pendingCollection == nil {
			return nil, errorsmod.Wrap(types.ErrNothingToSettle, "fee collection")
		}
		amount := *b.pendingCollection
		if paid {
			if err := b.recordWithdrawn(amount); err != nil {
				return nil, err
			}
		}
		b.pendingCollection = nil
		b.collecting = false
		b.logger.Info("Fee collection reconciled", "amount", amount, "paid", paid)
		return nil, nil
	})
	if err != nil {
		b.metrics.IncRejection(name, err)
		return err
	}
	return nil
}

// PendingSettlements lists the tx hashes awaiting reconciliation.
func (b *Bridge) PendingSettlements() ([]string, error) {
	hashes, err := b.store.Begin().PendingHashes()
	if err != nil {
		return nil, internalError(err)
	}
	return hashes, nil
}

// PruneSagas drops terminal sagas not updated within retention.
func (b *Bridge) PruneSagas(retention time.Duration) int {
	n := b.sagas.Prune(time.Now().Add(-retention))
	if n > 0 {
		b.logger.Debug("Pruned sagas", "count", n)
	}
	return n
}
