package types

import (
	"cosmossdk.io/math"
)

// Settings is the singleton configuration record of the bridge.
type Settings struct {
	// Account is the bridge's own account on the token ledger.
	Account        string    `json:"account"`
	Owner          string    `json:"owner"`
	Manager        string    `json:"manager"`
	Relayer        string    `json:"relayer"`
	TransferToken  string    `json:"transfer_token"`
	Router         string    `json:"router"`
	ChainID        uint64    `json:"blockchain_id"`
	MinAmount      math.Uint `json:"min_token_amount"`
	MaxAmount      math.Uint `json:"max_token_amount"`
	DefaultFeeRate uint32    `json:"default_fee_rate"`
	Running        bool      `json:"is_running"`
	AccumulatedFee math.Uint `json:"acc_token_fee"`
	WithdrawnFee   math.Uint `json:"withdrawn_token_fee"`
}

// WithdrawableFee is the accrued fee not yet paid out to the owner.
func (s Settings) WithdrawableFee() math.Uint {
	return s.AccumulatedFee.Sub(s.WithdrawnFee)
}

// IsOwner reports whether account holds the owner role.
func (s Settings) IsOwner(account string) bool {
	return account != "" && account == s.Owner
}

// IsOwnerOrManager reports whether account holds the owner or manager role.
func (s Settings) IsOwnerOrManager(account string) bool {
	return account != "" && (account == s.Owner || account == s.Manager)
}

// ChainEntry is the registry record of one target blockchain.
type ChainEntry struct {
	ID           uint64 `json:"blockchain"`
	RelayAddress string `json:"relay_address"`
	FeeRate      uint32 `json:"fee_rate"`
	HasFeeRate   bool   `json:"has_fee_rate"`
	Enabled      bool   `json:"enabled"`
}
