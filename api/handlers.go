package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
	"github.com/strangelove-ventures/swap-bridge/types"
)

type settlementRequest struct {
	Params types.SwapFromParams `json:"params"`
	// Msg is an optional router payload. When present the settlement is paid
	// out through a swap.
	Msg *string `json:"msg,omitempty"`
}

type depositRequest struct {
	SenderID string    `json:"sender_id"`
	Amount   math.Uint `json:"amount"`
	Msg      string    `json:"msg"`
}

type depositResponse struct {
	SagaID string    `json:"saga_id"`
	Unused math.Uint `json:"unused"`
}

type adminRequest struct {
	Account      string     `json:"account,omitempty"`
	Address      string     `json:"address,omitempty"`
	BlockchainID *uint64    `json:"blockchain_id,omitempty"`
	Amount       *math.Uint `json:"amount,omitempty"`
	FeeRate      *uint32    `json:"fee_rate,omitempty"`
	Running      *bool      `json:"is_running,omitempty"`
	TxHash       string     `json:"original_tx_hash,omitempty"`
	Paid         *bool      `json:"paid,omitempty"`
}

type chainResponse struct {
	types.ChainEntry
	EffectiveFeeRate uint32          `json:"effective_fee_rate"`
	FeePercent       decimal.Decimal `json:"fee_percent"`
}

type txResponse struct {
	Hash      string            `json:"hash"`
	Processed bool              `json:"processed"`
	Sagas     []types.SagaState `json:"sagas"`
}

func caller(c *gin.Context) string {
	return c.GetHeader(HeaderCaller)
}

// wait blocks on rc when the request asks for it with ?wait=true.
func wait(c *gin.Context, rc *scheduler.Receipt) (bool, error) {
	if c.Query("wait") != "true" || rc == nil {
		return false, nil
	}
	_, err := rc.Wait(c.Request.Context())
	return true, err
}

func (s *Server) postSettlement(c *gin.Context) {
	var req settlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	var swap *types.ExecuteSwap
	if req.Msg != nil {
		var err error
		if swap, err = types.ParseExecuteSwap(*req.Msg); err != nil {
			s.abort(c, err)
			return
		}
	}

	id, rc, err := s.bridge.SwapTokensToUserWithFee(c.Request.Context(), caller(c), req.Params, swap)
	if err != nil {
		s.abort(c, err)
		return
	}
	s.respondSaga(c, id, rc)
}

// postFtOnTransfer is the transfer hook a remote ledger calls. The calling
// token contract identifies itself in the caller header.
func (s *Server) postFtOnTransfer(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.bridge.FtOnTransfer(c.Request.Context(), caller(c), req.SenderID, req.Amount, req.Msg)
	if err != nil {
		s.abort(c, err)
		return
	}
	if _, err := wait(c, res.Receipt); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, depositResponse{SagaID: res.SagaID, Unused: res.Unused})
}

func (s *Server) respondSaga(c *gin.Context, id string, rc *scheduler.Receipt) {
	waited, err := wait(c, rc)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !waited {
		c.JSON(http.StatusAccepted, gin.H{"saga_id": id})
		return
	}
	saga, _ := s.bridge.Saga(id)
	c.JSON(http.StatusOK, saga)
}

type adminHandler func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error)

func (s *Server) adminHandlers() map[string]adminHandler {
	b := s.bridge
	account := func(set func(context.Context, string, string) error) adminHandler {
		return func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			return nil, set(ctx, caller, req.Account)
		}
	}
	chain := func(set func(context.Context, string, uint64) error) adminHandler {
		return func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.BlockchainID == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "blockchain_id is required")
			}
			return nil, set(ctx, caller, *req.BlockchainID)
		}
	}
	amount := func(set func(context.Context, string, math.Uint) error) adminHandler {
		return func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.Amount == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "amount is required")
			}
			return nil, set(ctx, caller, *req.Amount)
		}
	}

	return map[string]adminHandler{
		"set_owner":                  account(b.SetOwner),
		"set_manager":                account(b.SetManager),
		"set_relayer":                account(b.SetRelayer),
		"set_transfer_token":         account(b.SetTransferToken),
		"set_blockchain_router":      account(b.SetRouter),
		"set_num_of_this_blockchain": chain(b.SetBlockchainID),
		"add_other_blockchain":       chain(b.AddTargetChain),
		"remove_other_blockchain":    chain(b.RemoveTargetChain),
		"set_min_token_amount":       amount(b.SetMinAmount),
		"set_max_token_amount":       amount(b.SetMaxAmount),
		"set_is_running": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.Running == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "is_running is required")
			}
			return nil, b.SetRunning(ctx, caller, *req.Running)
		},
		"set_default_fee_rate": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.FeeRate == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "fee_rate is required")
			}
			return nil, b.SetDefaultFeeRate(ctx, caller, *req.FeeRate)
		},
		"set_rubic_address_of_blockchain": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.BlockchainID == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "blockchain_id is required")
			}
			return nil, b.SetRelayAddress(ctx, caller, *req.BlockchainID, req.Address)
		},
		"set_fee_amount_of_blockchain": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.BlockchainID == nil || req.FeeRate == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "blockchain_id and fee_rate are required")
			}
			return nil, b.SetFeeRate(ctx, caller, *req.BlockchainID, *req.FeeRate)
		},
		"collect_token_fee": func(ctx context.Context, caller string, _ adminRequest) (*scheduler.Receipt, error) {
			return b.CollectFee(ctx, caller)
		},
		"reconcile_settlement": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.TxHash == "" || req.Paid == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "original_tx_hash and paid are required")
			}
			return nil, b.ReconcileSettlement(ctx, caller, req.TxHash, *req.Paid)
		},
		"reconcile_fee_collection": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.Paid == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "paid is required")
			}
			return nil, b.ReconcileFeeCollection(ctx, caller, *req.Paid)
		},
		"pool_balancing": func(ctx context.Context, caller string, req adminRequest) (*scheduler.Receipt, error) {
			if req.Amount == nil {
				return nil, errorsmod.Wrap(types.ErrInvalidPayload, "amount is required")
			}
			return b.PoolBalancing(ctx, caller, *req.Amount)
		},
	}
}

func (s *Server) postAdmin(c *gin.Context) {
	setter := c.Param("setter")
	handle, ok := s.adminHandlers()[setter]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Message: "unknown setter " + setter})
		return
	}

	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(c, err)
		return
	}

	rc, err := handle(c.Request.Context(), caller(c), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	if rc == nil {
		c.JSON(http.StatusOK, gin.H{"op": setter})
		return
	}
	if _, err := wait(c, rc); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"op": setter})
}

func (s *Server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gin.H{"version": s.bridge.GetVersion()})
}

func (s *Server) getConfig(c *gin.Context) {
	settings, err := s.bridge.Settings()
	if err != nil {
		s.abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, settings)
}

// getPending lists settlements whose payout outcome awaits reconciliation.
func (s *Server) getPending(c *gin.Context) {
	hashes, err := s.bridge.PendingSettlements()
	if err != nil {
		s.abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"pending": hashes})
}

func (s *Server) getChains(c *gin.Context) {
	ids, err := s.bridge.EnabledChains()
	if err != nil {
		s.abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"enabled": ids})
}

func (s *Server) getChain(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	entry, err := s.bridge.Chain(id)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !entry.Enabled && !entry.HasFeeRate && entry.RelayAddress == "" {
		s.abort(c, errorsmod.Wrapf(types.ErrChainNotFound, "%d", id))
		return
	}

	rate, err := s.bridge.FeeRate(id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, chainResponse{
		ChainEntry:       entry,
		EffectiveFeeRate: rate,
		// ppm to percent
		FeePercent: decimal.NewFromInt(int64(rate)).Shift(-4),
	})
}

func (s *Server) getTxByHash(c *gin.Context) {
	hash := c.Param("hash")

	processed, err := s.bridge.IsProcessed(hash)
	if err != nil {
		s.abort(c, err)
		return
	}
	sagas := s.bridge.SagasByTxHash(hash)
	if !processed && len(sagas) == 0 {
		c.IndentedJSON(http.StatusNotFound, errorResponse{Message: "transaction not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, txResponse{Hash: hash, Processed: processed, Sagas: sagas})
}

func (s *Server) getSaga(c *gin.Context) {
	saga, ok := s.bridge.Saga(c.Param("id"))
	if !ok {
		c.IndentedJSON(http.StatusNotFound, errorResponse{Message: "saga not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, saga)
}
