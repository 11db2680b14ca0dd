package types

import (
	"bytes"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// Token receiver message kinds, carried in the "type" field of the deposit payload.
const (
	MsgSwapTokensToOther         = "swap_tokens_to_other"
	MsgSwapTransferTokensToOther = "swap_transfer_tokens_to_other"
)

// SwapFromParams is a relayed settlement of value deposited on another blockchain.
type SwapFromParams struct {
	NewAddress     string    `json:"new_address"`
	TokenOut       string    `json:"token_out"`
	AmountWithFee  math.Uint `json:"amount_in_with_fee"`
	AmountOutMin   math.Uint `json:"amount_out_min"`
	OriginalTxHash string    `json:"original_tx_hash"`
	// SourceChain selects the per-chain fee rate. The default rate applies when unset.
	SourceChain *uint64 `json:"source_blockchain,omitempty"`
}

func (p SwapFromParams) Validate() error {
	if p.NewAddress == "" {
		return errorsmod.Wrap(ErrInvalidPayload, "new address must not be empty")
	}
	if p.TokenOut == "" {
		return errorsmod.Wrap(ErrInvalidPayload, "token out must not be empty")
	}
	if p.OriginalTxHash == "" {
		return errorsmod.Wrap(ErrInvalidPayload, "original tx hash must not be empty")
	}
	if err := CheckAmount(p.AmountWithFee); err != nil {
		return errorsmod.Wrap(err, "amount_in_with_fee")
	}
	if err := CheckAmount(p.AmountOutMin); err != nil {
		return errorsmod.Wrap(err, "amount_out_min")
	}
	return nil
}

// SwapLeg is a single pool hop on the DEX router. A nil AmountIn consumes the
// output of the previous leg.
type SwapLeg struct {
	PoolID       uint64     `json:"pool_id"`
	TokenIn      string     `json:"token_in"`
	AmountIn     *math.Uint `json:"amount_in,omitempty"`
	TokenOut     string     `json:"token_out"`
	MinAmountOut math.Uint  `json:"min_amount_out"`
}

// ExecuteSwap is the router's transfer-with-payload message.
type ExecuteSwap struct {
	ReferralID *string   `json:"referral_id,omitempty"`
	Force      uint8     `json:"force"`
	Actions    []SwapLeg `json:"actions"`
}

// WithFirstAmount returns a copy whose first leg consumes exactly amount.
// Leg order is preserved.
func (m ExecuteSwap) WithFirstAmount(amount math.Uint) ExecuteSwap {
	actions := make([]SwapLeg, len(m.Actions))
	copy(actions, m.Actions)
	if len(actions) > 0 {
		a := amount
		actions[0].AmountIn = &a
	}
	m.Actions = actions
	return m
}

// ParseExecuteSwap decodes a router payload.
func ParseExecuteSwap(msg string) (*ExecuteSwap, error) {
	var m ExecuteSwap
	if err := decodeStrict(msg, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SwapToParams describes where value goes on the target blockchain.
type SwapToParams struct {
	// SecondPath is the token path on the target blockchain. It must start at the
	// relay address registered for Blockchain.
	SecondPath   []string `json:"second_path"`
	MinAmountOut string   `json:"min_amount_out"`
	Blockchain   uint64   `json:"blockchain"`
	NewAddress   string   `json:"new_address"`
	SwapToCrypto bool     `json:"swap_to_crypto"`
	Signature    string   `json:"signature"`
}

// TokenReceiverMessage is the payload attached to a deposit into the bridge.
type TokenReceiverMessage struct {
	Type         string        `json:"type"`
	SwapActions  []SwapLeg     `json:"swap_actions,omitempty"`
	SwapToParams *SwapToParams `json:"swap_to_params"`
}

// ParseTokenReceiverMessage decodes a deposit payload and checks its shape.
func ParseTokenReceiverMessage(msg string) (*TokenReceiverMessage, error) {
	var m TokenReceiverMessage
	if err := decodeStrict(msg, &m); err != nil {
		return nil, err
	}
	if m.SwapToParams == nil {
		return nil, errorsmod.Wrap(ErrInvalidPayload, "swap_to_params is required")
	}
	switch m.Type {
	case MsgSwapTokensToOther:
		if len(m.SwapActions) == 0 {
			return nil, errorsmod.Wrap(ErrInvalidSwapLegs, "swap_actions must not be empty")
		}
	case MsgSwapTransferTokensToOther:
		if len(m.SwapActions) != 0 {
			return nil, errorsmod.Wrap(ErrInvalidPayload, "swap_actions are not accepted for a direct transfer")
		}
	case "":
		return nil, errorsmod.Wrap(ErrInvalidPayload, "message type is required")
	default:
		return nil, errorsmod.Wrapf(ErrInvalidPayload, "unknown message type %q", m.Type)
	}
	return &m, nil
}

func decodeStrict(msg string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(msg)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errorsmod.Wrapf(ErrInvalidPayload, "malformed message: %s", err)
	}
	return nil
}
