package router

import (
	"context"

	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/types"
)

const Namespace = "router"

// Service exposes a types.Router as JSON-RPC methods.
type Service struct {
	router types.Router
}

func NewService(r types.Router) *Service {
	return &Service{router: r}
}

func (s *Service) Swap(ctx context.Context, account string, legs []types.SwapLeg) (math.Uint, error) {
	return s.router.Swap(ctx, account, legs)
}

func (s *Service) Withdraw(ctx context.Context, account, token string, amount math.Uint) error {
	return s.router.Withdraw(ctx, account, token, amount)
}
