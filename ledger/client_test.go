package ledger_test

import (
	"context"
	"errors"
	"testing"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/ledger"
	"github.com/strangelove-ventures/swap-bridge/mock"
)

type halfReceiver struct{}

func (halfReceiver) OnTransfer(_ context.Context, _, _ string, amount math.Uint, msg string) (math.Uint, error) {
	if msg == "reject" {
		return math.ZeroUint(), errors.New("deposit rejected")
	}
	return amount.QuoUint64(2), nil
}

func newClient(t *testing.T) (*ledger.Client, *mock.Ledger) {
	l := mock.NewLedger()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(ledger.Namespace, ledger.NewService(l)))

	c := ledger.NewClient(rpc.DialInProc(server))
	t.Cleanup(func() {
		c.Close()
		server.Stop()
	})
	return c, l
}

func TestTransferOverRPC(t *testing.T) {
	ctx := context.Background()
	c, l := newClient(t)
	l.Mint("usdc.near", "bridge.near", math.NewUint(100))

	require.NoError(t, c.Transfer(ctx, "usdc.near", "bridge.near", "alice.near", math.NewUint(40)))
	require.Equal(t, "40", l.Balance("usdc.near", "alice.near").String())
	require.Equal(t, "60", l.Balance("usdc.near", "bridge.near").String())

	err := c.Transfer(ctx, "usdc.near", "bridge.near", "alice.near", math.NewUint(61))
	require.Error(t, err)
	require.Contains(t, err.Error(), mock.ErrInsufficientBalance.Error())
	require.Equal(t, "60", l.Balance("usdc.near", "bridge.near").String())
}

func TestTransferCallOverRPC(t *testing.T) {
	ctx := context.Background()
	c, l := newClient(t)
	l.Register("router.near", halfReceiver{})
	l.Mint("wnear.near", "bridge.near", math.NewUint(100))

	used, err := c.TransferCall(ctx, "wnear.near", "bridge.near", "router.near", math.NewUint(100), "")
	require.NoError(t, err)
	require.Equal(t, "50", used.String())
	require.Equal(t, "50", l.Balance("wnear.near", "bridge.near").String())

	_, err = c.TransferCall(ctx, "wnear.near", "bridge.near", "router.near", math.NewUint(50), "reject")
	require.Error(t, err)
	require.Contains(t, err.Error(), "deposit rejected")
	require.Equal(t, "50", l.Balance("wnear.near", "bridge.near").String())
}
