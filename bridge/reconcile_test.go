package bridge_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/mock"
	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/types"
)

const callTimeout = 100 * time.Millisecond

// slowLedger outlives the call timeout while slow is set, then commits anyway.
type slowLedger struct {
	*mock.Ledger
	slow atomic.Bool
	fail atomic.Bool
}

func (s *slowLedger) wait() {
	if s.slow.Load() {
		time.Sleep(3 * callTimeout)
	}
}

func (s *slowLedger) Transfer(ctx context.Context, token, sender, receiver string, amount math.Uint) error {
	s.wait()
	if s.fail.Load() {
		return errors.New("transfer lost")
	}
	return s.Ledger.Transfer(ctx, token, sender, receiver, amount)
}

func (s *slowLedger) TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (math.Uint, error) {
	s.wait()
	return s.Ledger.TransferCall(ctx, token, sender, receiver, amount, msg)
}

func newSlowHarness(t *testing.T) (*harness, *slowLedger) {
	var sl *slowLedger
	h := newHarnessWithTimeout(t, func(l *mock.Ledger) types.Ledger {
		sl = &slowLedger{Ledger: l}
		return sl
	}, callTimeout)
	sl.slow.Store(true)
	return h, sl
}

func TestLatePayoutBlocksResubmission(t *testing.T) {
	h, _ := newSlowHarness(t)

	saga := h.settle(t, settlement("0x77", 1_000_000), nil)
	require.Equal(t, types.Stalled, saga.Status)
	require.Contains(t, saga.Err, scheduler.ErrCallExpired.Error())

	processed, err := h.bridge.IsProcessed("0x77")
	require.NoError(t, err)
	require.False(t, processed)

	_, _, err = h.bridge.SwapTokensToUserWithFee(h.ctx, relayer, settlement("0x77", 1_000_000), nil)
	require.ErrorIs(t, err, types.ErrUnreconciled)

	// the expired transfer still lands
	require.Eventually(t, func() bool {
		return h.ledger.Balance(usdc, alice).String() == "998000"
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := h.bridge.PendingSettlements()
	require.NoError(t, err)
	require.Equal(t, []string{"0x77"}, pending)

	err = h.bridge.ReconcileSettlement(h.ctx, relayer, "0x77", true)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, h.bridge.ReconcileSettlement(h.ctx, manager, "0x77", true))

	processed, err = h.bridge.IsProcessed("0x77")
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, "2000", h.settings(t).AccumulatedFee.String())

	reconciled, ok := h.bridge.Saga(saga.ID)
	require.True(t, ok)
	require.Equal(t, types.Settled, reconciled.Status)

	_, _, err = h.bridge.SwapTokensToUserWithFee(h.ctx, relayer, settlement("0x77", 1_000_000), nil)
	require.ErrorIs(t, err, types.ErrAlreadyProcessed)
	require.Equal(t, "998000", h.ledger.Balance(usdc, alice).String())

	err = h.bridge.ReconcileSettlement(h.ctx, manager, "0x77", true)
	require.ErrorIs(t, err, types.ErrNothingToSettle)
}

func TestUnpaidReconciliationReleasesHash(t *testing.T) {
	h, sl := newSlowHarness(t)
	sl.fail.Store(true)

	saga := h.settle(t, settlement("0x78", 1_000_000), nil)
	require.Equal(t, types.Stalled, saga.Status)

	require.NoError(t, h.bridge.ReconcileSettlement(h.ctx, owner, "0x78", false))
	reconciled, _ := h.bridge.Saga(saga.ID)
	require.Equal(t, types.Failed, reconciled.Status)
	require.True(t, h.settings(t).AccumulatedFee.IsZero())

	pending, err := h.bridge.PendingSettlements()
	require.NoError(t, err)
	require.Empty(t, pending)

	// the relayer may now resubmit
	sl.slow.Store(false)
	sl.fail.Store(false)
	retry := h.settle(t, settlement("0x78", 1_000_000), nil)
	require.Equal(t, types.Settled, retry.Status)
	require.Equal(t, "998000", h.ledger.Balance(usdc, alice).String())
	require.Len(t, h.bridge.SagasByTxHash("0x78"), 2)
}

func TestExpiredFeeCollectionHoldsCollection(t *testing.T) {
	h, sl := newSlowHarness(t)
	sl.slow.Store(false)
	h.settle(t, settlement("0x01", 1_000_000), nil)

	sl.slow.Store(true)
	rc, err := h.bridge.CollectFee(h.ctx, owner)
	require.NoError(t, err)
	res, err := rc.Wait(h.ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.Succeeded, res.Outcome)

	_, err = h.bridge.CollectFee(h.ctx, owner)
	require.ErrorIs(t, err, types.ErrInFlight)
	require.Eventually(t, func() bool {
		return h.ledger.Balance(usdc, owner).String() == "2000"
	}, 2*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, h.bridge.ReconcileFeeCollection(h.ctx, manager, true), types.ErrUnauthorized)
	require.NoError(t, h.bridge.ReconcileFeeCollection(h.ctx, owner, true))
	require.Equal(t, "2000", h.settings(t).WithdrawnFee.String())

	_, err = h.bridge.CollectFee(h.ctx, owner)
	require.ErrorIs(t, err, types.ErrNothingToWithdraw)
	require.ErrorIs(t, h.bridge.ReconcileFeeCollection(h.ctx, owner, true), types.ErrNothingToSettle)
}

func TestExpiredRouterDepositStalls(t *testing.T) {
	h, _ := newSlowHarness(t)

	saga := h.deposit(t, wnear, 100, swapMsg(t, wnearToUSDC(150), target()))
	require.Equal(t, types.Stalled, saga.Status)
	require.Contains(t, saga.Err, scheduler.ErrCallExpired.Error())

	// no refund is paid for a deposit that still reaches the router
	require.Eventually(t, func() bool {
		return h.router.Deposit(bridgeAcct, wnear).String() == "100"
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, h.ledger.Balance(wnear, alice).IsZero())
}

// gatedCallLedger holds every transfer call until the gate is closed.
type gatedCallLedger struct {
	*mock.Ledger
	gate chan struct{}
}

func (g *gatedCallLedger) TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (math.Uint, error) {
	<-g.gate
	return g.Ledger.TransferCall(ctx, token, sender, receiver, amount, msg)
}

func TestShutdownCompletesOutboundSwap(t *testing.T) {
	gate := make(chan struct{})
	h := newHarnessWithLedger(t, func(l *mock.Ledger) types.Ledger {
		return &gatedCallLedger{Ledger: l, gate: gate}
	})

	// the pool only yields 200, so the swap fails and the deposit is refunded
	h.ledger.Mint(wnear, bridgeAcct, math.NewUint(100))
	res, err := h.bridge.FtOnTransfer(h.ctx, wnear, alice, math.NewUint(100), swapMsg(t, wnearToUSDC(250), target()))
	require.NoError(t, err)

	h.stop()
	require.Eventually(t, func() bool {
		_, err := h.bridge.FtOnTransfer(h.ctx, usdc, alice, math.NewUint(500), transferMsg(t, target()))
		return errors.Is(err, scheduler.ErrStopped)
	}, time.Second, 5*time.Millisecond)

	close(gate)
	_, err = res.Receipt.Wait(h.ctx)
	require.NoError(t, err)

	saga, ok := h.bridge.Saga(res.SagaID)
	require.True(t, ok)
	require.Equal(t, types.Refunded, saga.Status)
	require.Equal(t, "100", h.ledger.Balance(wnear, alice).String())
	require.True(t, h.router.Deposit(bridgeAcct, wnear).IsZero())

	select {
	case <-h.rt.Stopped():
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop after draining")
	}
}

func TestPruneSagas(t *testing.T) {
	h := newHarness(t)

	settled := h.settle(t, settlement("0x01", 1_000_000), nil)
	require.Equal(t, 0, h.bridge.PruneSagas(time.Hour))
	require.Equal(t, 1, h.bridge.PruneSagas(0))

	_, ok := h.bridge.Saga(settled.ID)
	require.False(t, ok)
	// the processed set is kept
	processed, err := h.bridge.IsProcessed("0x01")
	require.NoError(t, err)
	require.True(t, processed)
}
