package ledger

import (
	"context"

	"cosmossdk.io/math"

	"github.com/strangelove-ventures/swap-bridge/types"
)

// Namespace prefixes every ledger method name.
const Namespace = "ledger"

// Service exposes a types.Ledger as JSON-RPC methods. Register it with
// rpc.Server.RegisterName(Namespace, svc).
type Service struct {
	ledger types.Ledger
}

func NewService(l types.Ledger) *Service {
	return &Service{ledger: l}
}

func (s *Service) Transfer(ctx context.Context, token, sender, receiver string, amount math.Uint) error {
	return s.ledger.Transfer(ctx, token, sender, receiver, amount)
}

func (s *Service) TransferCall(ctx context.Context, token, sender, receiver string, amount math.Uint, msg string) (math.Uint, error) {
	return s.ledger.TransferCall(ctx, token, sender, receiver, amount, msg)
}
