package router

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/strangelove-ventures/swap-bridge/types"
)

var _ types.Router = (*Client)(nil)

// Client talks to a remote DEX router over JSON-RPC.
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to router at %s: %w", endpoint, err)
	}
	return NewClient(c), nil
}

func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

// Swap executes legs against the router deposits of account and returns the
// output amount of the last leg.
func (c *Client) Swap(ctx context.Context, account string, legs []types.SwapLeg) (math.Uint, error) {
	var out math.Uint
	if err := c.rpc.CallContext(ctx, &out, Namespace+"_swap", account, legs); err != nil {
		return math.ZeroUint(), fmt.Errorf("swap for %s: %w", account, err)
	}
	if out.IsNil() {
		return math.ZeroUint(), fmt.Errorf("swap for %s: router returned no amount", account)
	}
	return out, nil
}

func (c *Client) Withdraw(ctx context.Context, account, token string, amount math.Uint) error {
	if err := c.rpc.CallContext(ctx, nil, Namespace+"_withdraw", account, token, amount); err != nil {
		return fmt.Errorf("withdraw of %s %s for %s: %w", amount, token, account, err)
	}
	return nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
