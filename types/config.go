package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

const (
	// CollaboratorsMemory runs the token ledger and DEX router in process.
	CollaboratorsMemory = "memory"
	// CollaboratorsRPC talks to remote JSON-RPC ledger and router endpoints.
	CollaboratorsRPC = "rpc"
)

type Config struct {
	Bridge        BridgeConfig           `yaml:"bridge"`
	Chains        map[uint64]ChainConfig `yaml:"chains"`
	Collaborators CollaboratorsConfig    `yaml:"collaborators"`
	Storage       StorageConfig          `yaml:"storage"`
	Api           ApiConfig              `yaml:"api"`
}

// BridgeConfig holds the genesis settings. Once the store is initialized the
// persisted settings win and these values are ignored.
type BridgeConfig struct {
	Account        string `yaml:"account"`
	Owner          string `yaml:"owner"`
	Manager        string `yaml:"manager"`
	Relayer        string `yaml:"relayer"`
	TransferToken  string `yaml:"transfer-token"`
	Router         string `yaml:"router"`
	ChainID        uint64 `yaml:"chain-id"`
	MinAmount      string `yaml:"min-amount"`
	MaxAmount      string `yaml:"max-amount"`
	DefaultFeeRate uint32 `yaml:"default-fee-rate"`
	Running        bool   `yaml:"running"`
}

type ChainConfig struct {
	RelayAddress string `yaml:"relay-address"`
	FeeRate      uint32 `yaml:"fee-rate"`
	Enabled      bool   `yaml:"enabled"`
}

type CollaboratorsConfig struct {
	Mode      string `yaml:"mode"`
	LedgerRPC string `yaml:"ledger-rpc"`
	RouterRPC string `yaml:"router-rpc"`
	// seconds
	CallTimeout int `yaml:"call-timeout"`
	// in-process ledger balances minted at startup, token -> account -> amount
	Genesis map[string]map[string]string `yaml:"genesis"`
	// in-process router pools by pool id
	Pools map[uint64]PoolConfig `yaml:"pools"`
}

// PoolConfig is a fixed-rate pool of the in-process router: every
// amount-in of TokenIn yields amount-in * Num / Den of TokenOut.
type PoolConfig struct {
	TokenIn  string `yaml:"token-in"`
	TokenOut string `yaml:"token-out"`
	Num      uint64 `yaml:"num"`
	Den      uint64 `yaml:"den"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// seconds a finished saga stays readable, 0 means DefaultSagaRetention
	SagaRetention int `yaml:"saga-retention"`
}

const DefaultSagaRetention = 24 * time.Hour

// Retention is how long finished sagas are kept in memory.
func (c StorageConfig) Retention() time.Duration {
	if c.SagaRetention == 0 {
		return DefaultSagaRetention
	}
	return time.Duration(c.SagaRetention) * time.Second
}

type ApiConfig struct {
	ListenAddr     string   `yaml:"listen-addr"`
	TrustedProxies []string `yaml:"trusted-proxies"`
}

// Settings converts the bridge section into the persisted settings record.
func (c BridgeConfig) Settings() (Settings, error) {
	minAmount, err := ParseAmount(c.MinAmount)
	if err != nil {
		return Settings{}, fmt.Errorf("min-amount: %w", err)
	}
	maxAmount, err := ParseAmount(c.MaxAmount)
	if err != nil {
		return Settings{}, fmt.Errorf("max-amount: %w", err)
	}
	return Settings{
		Account:        c.Account,
		Owner:          c.Owner,
		Manager:        c.Manager,
		Relayer:        c.Relayer,
		TransferToken:  c.TransferToken,
		Router:         c.Router,
		ChainID:        c.ChainID,
		MinAmount:      minAmount,
		MaxAmount:      maxAmount,
		DefaultFeeRate: c.DefaultFeeRate,
		Running:        c.Running,
		AccumulatedFee: math.ZeroUint(),
		WithdrawnFee:   math.ZeroUint(),
	}, nil
}

// Entries converts the chains section into registry entries.
func (c Config) Entries() []ChainEntry {
	entries := make([]ChainEntry, 0, len(c.Chains))
	for id, cc := range c.Chains {
		entries = append(entries, ChainEntry{
			ID:           id,
			RelayAddress: cc.RelayAddress,
			FeeRate:      cc.FeeRate,
			HasFeeRate:   true,
			Enabled:      cc.Enabled,
		})
	}
	return entries
}
