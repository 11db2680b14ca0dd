package ledger

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/strangelove-ventures/swap-bridge/types"
)

var _ types.Ledger = (*Client)(nil)

// Client talks to a remote token ledger over JSON-RPC.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the ledger endpoint. http(s), ws(s) and ipc endpoints are supported.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to ledger at %s: %w", endpoint, err)
	}
	return NewClient(c), nil
}

func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Transfer(ctx context.Context, token, sender, receiver string, amount math.Uint) error {
	if err := c.rpc.CallContext(ctx, nil, Namespace+"_transfer", token, sender, receiver, amount); err != nil {
		return fmt.Errorf("ft_transfer of %s %s to %s: %w", amount, token, receiver, err)
	}
	return nil
}

func (c *Client) TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (math.Uint, error) {
	var used math.Uint
	if err := c.rpc.CallContext(ctx, &used, Namespace+"_transferCall", token, sender, receiver, amount, msg); err != nil {
		return math.ZeroUint(), fmt.Errorf("ft_transfer_call of %s %s to %s: %w", amount, token, receiver, err)
	}
	if used.IsNil() {
		return math.ZeroUint(), nil
	}
	return used, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
