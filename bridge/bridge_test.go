package bridge_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/bridge"
	"github.com/strangelove-ventures/swap-bridge/mock"
	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/store"
	"github.com/strangelove-ventures/swap-bridge/types"
)

const (
	owner      = "owner.near"
	manager    = "manager.near"
	relayer    = "relayer.near"
	bridgeAcct = "bridge.near"
	routerAcct = "router.near"
	alice      = "alice.near"

	usdc  = "usdc.near"
	wnear = "wnear.near"

	thisChain    uint64 = 1
	enabledChain uint64 = 7
	otherChain   uint64 = 3
)

var liquidity = math.NewUint(1_000_000_000)

type harness struct {
	ctx    context.Context
	bridge *bridge.Bridge
	ledger *mock.Ledger
	router *mock.Router
	rt     *scheduler.Runtime

	// stop begins runtime shutdown
	stop context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithLedger(t, nil)
}

// newHarnessWithLedger lets a test wrap the in-process ledger the bridge calls.
func newHarnessWithLedger(t *testing.T, wrap func(*mock.Ledger) types.Ledger) *harness {
	return newHarnessWithTimeout(t, wrap, time.Second)
}

func newHarnessWithTimeout(t *testing.T, wrap func(*mock.Ledger) types.Ledger, callTimeout time.Duration) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runCtx, stop := context.WithCancel(ctx)

	logger := log.NewNopLogger()
	rt := scheduler.NewRuntime(logger, callTimeout)
	go rt.Run(runCtx)

	l := mock.NewLedger()
	r := mock.NewRouter(l, routerAcct)
	r.AddPool(1, mock.Pool{TokenIn: wnear, TokenOut: usdc, Num: 2, Den: 1})
	r.AddPool(2, mock.Pool{TokenIn: usdc, TokenOut: wnear, Num: 1, Den: 2})
	l.Mint(usdc, routerAcct, liquidity)
	l.Mint(wnear, routerAcct, liquidity)
	l.Mint(usdc, bridgeAcct, liquidity)

	var ledger types.Ledger = l
	if wrap != nil {
		ledger = wrap(l)
	}

	b := bridge.New(logger, store.New(dbm.NewMemDB()), ledger, r, rt, nil)
	l.Register(bridgeAcct, b)

	written, err := b.Init(ctx, types.Settings{
		Account:        bridgeAcct,
		Owner:          owner,
		Manager:        manager,
		Relayer:        relayer,
		TransferToken:  usdc,
		Router:         routerAcct,
		ChainID:        thisChain,
		MinAmount:      math.NewUint(10),
		MaxAmount:      liquidity,
		Running:        true,
		AccumulatedFee: math.ZeroUint(),
		WithdrawnFee:   math.ZeroUint(),
	}, []types.ChainEntry{
		{ID: enabledChain, RelayAddress: "R", FeeRate: 2_000, HasFeeRate: true, Enabled: true},
		{ID: otherChain, RelayAddress: "Q"},
	})
	require.NoError(t, err)
	require.True(t, written)

	return &harness{ctx: ctx, bridge: b, ledger: l, router: r, rt: rt, stop: stop}
}

func amt(n uint64) *math.Uint {
	u := math.NewUint(n)
	return &u
}

func settlement(hash string, amount uint64) types.SwapFromParams {
	source := enabledChain
	return types.SwapFromParams{
		NewAddress:     alice,
		TokenOut:       usdc,
		AmountWithFee:  math.NewUint(amount),
		AmountOutMin:   math.NewUint(0),
		OriginalTxHash: hash,
		SourceChain:    &source,
	}
}

func target() types.SwapToParams {
	return types.SwapToParams{
		SecondPath:   []string{"R", "X"},
		MinAmountOut: "1",
		Blockchain:   enabledChain,
		NewAddress:   "0xabc",
		Signature:    "swapExactTokensForTokens",
	}
}

func swapMsg(t *testing.T, legs []types.SwapLeg, to types.SwapToParams) string {
	bz, err := json.Marshal(types.TokenReceiverMessage{Type: types.MsgSwapTokensToOther, SwapActions: legs, SwapToParams: &to})
	require.NoError(t, err)
	return string(bz)
}

func transferMsg(t *testing.T, to types.SwapToParams) string {
	bz, err := json.Marshal(types.TokenReceiverMessage{Type: types.MsgSwapTransferTokensToOther, SwapToParams: &to})
	require.NoError(t, err)
	return string(bz)
}

func (h *harness) settle(t *testing.T, params types.SwapFromParams, swap *types.ExecuteSwap) types.SagaState {
	id, rc, err := h.bridge.SwapTokensToUserWithFee(h.ctx, relayer, params, swap)
	require.NoError(t, err)
	_, err = rc.Wait(h.ctx)
	require.NoError(t, err)

	saga, ok := h.bridge.Saga(id)
	require.True(t, ok)
	return saga
}

// deposit credits the bridge as the ledger would, then runs the transfer hook.
func (h *harness) deposit(t *testing.T, token string, amount uint64, msg string) types.SagaState {
	h.ledger.Mint(token, bridgeAcct, math.NewUint(amount))
	res, err := h.bridge.FtOnTransfer(h.ctx, token, alice, math.NewUint(amount), msg)
	require.NoError(t, err)
	require.True(t, res.Unused.IsZero())
	_, err = res.Receipt.Wait(h.ctx)
	require.NoError(t, err)

	saga, ok := h.bridge.Saga(res.SagaID)
	require.True(t, ok)
	return saga
}

func (h *harness) settings(t *testing.T) types.Settings {
	s, err := h.bridge.Settings()
	require.NoError(t, err)
	return s
}

func TestInitKeepsPersistedSettings(t *testing.T) {
	h := newHarness(t)

	written, err := h.bridge.Init(h.ctx, types.Settings{Owner: "someone.else"}, nil)
	require.NoError(t, err)
	require.False(t, written)
	require.Equal(t, owner, h.settings(t).Owner)
	require.Equal(t, 1, h.bridge.GetVersion())
}

func TestInitRejectsInvalidGenesis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := scheduler.NewRuntime(log.NewNopLogger(), time.Second)
	go rt.Run(ctx)
	b := bridge.New(log.NewNopLogger(), store.New(dbm.NewMemDB()), mock.NewLedger(), nil, rt, nil)

	genesis := types.Settings{
		ChainID:        1,
		MinAmount:      math.NewUint(10),
		MaxAmount:      math.NewUint(100),
		AccumulatedFee: math.ZeroUint(),
		WithdrawnFee:   math.ZeroUint(),
	}

	_, err := b.Init(ctx, genesis, []types.ChainEntry{{ID: 1, RelayAddress: "R", Enabled: true}})
	require.ErrorIs(t, err, types.ErrInvalidTarget)

	_, err = b.Init(ctx, genesis, []types.ChainEntry{{ID: 2, FeeRate: 1_000_000, HasFeeRate: true}})
	require.ErrorIs(t, err, types.ErrInvalidFeeRate)

	bad := genesis
	bad.MinAmount = math.NewUint(101)
	_, err = b.Init(ctx, bad, nil)
	require.ErrorIs(t, err, types.ErrInvalidBounds)
}
