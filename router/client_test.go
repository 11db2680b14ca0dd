package router_test

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/mock"
	"github.com/strangelove-ventures/swap-bridge/router"
	"github.com/strangelove-ventures/swap-bridge/types"
)

func TestSwapAndWithdrawOverRPC(t *testing.T) {
	ctx := context.Background()

	l := mock.NewLedger()
	r := mock.NewRouter(l, "router.near")
	r.AddPool(1, mock.Pool{TokenIn: "wnear.near", TokenOut: "usdc.near", Num: 2, Den: 1})
	l.Mint("usdc.near", "router.near", math.NewUint(1_000))
	l.Mint("wnear.near", "bridge.near", math.NewUint(100))

	_, err := l.TransferCall(ctx, "wnear.near", "bridge.near", "router.near", math.NewUint(100), "")
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(router.Namespace, router.NewService(r)))
	c := router.NewClient(rpc.DialInProc(server))
	defer server.Stop()
	defer c.Close()

	amountIn := math.NewUint(100)
	legs := []types.SwapLeg{{PoolID: 1, TokenIn: "wnear.near", AmountIn: &amountIn, TokenOut: "usdc.near", MinAmountOut: math.NewUint(300)}}

	// slippage is reported and leaves deposits untouched
	_, err = c.Swap(ctx, "bridge.near", legs)
	require.Error(t, err)
	require.Contains(t, err.Error(), mock.ErrSlippage.Error())
	require.Equal(t, "100", r.Deposit("bridge.near", "wnear.near").String())

	legs[0].MinAmountOut = math.NewUint(150)
	out, err := c.Swap(ctx, "bridge.near", legs)
	require.NoError(t, err)
	require.Equal(t, "200", out.String())

	require.NoError(t, c.Withdraw(ctx, "bridge.near", "usdc.near", math.NewUint(150)))
	require.Equal(t, "150", l.Balance("usdc.near", "bridge.near").String())
	require.Equal(t, "50", r.Deposit("bridge.near", "usdc.near").String())

	require.Error(t, c.Withdraw(ctx, "bridge.near", "usdc.near", math.NewUint(51)))
}
