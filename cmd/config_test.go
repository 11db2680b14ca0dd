package cmd_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/cmd"
	"github.com/strangelove-ventures/swap-bridge/types"
)

const sampleConfig = "../config/sample-config.yaml"

func TestConfig(t *testing.T) {
	file, err := cmd.ParseConfig(sampleConfig)
	require.NoError(t, err, "Error parsing config")
	require.NoError(t, cmd.ValidateConfig(file))

	require.Equal(t, "usdc.near", file.Bridge.TransferToken)
	require.Equal(t, uint64(1), file.Bridge.ChainID)
	require.Equal(t, types.CollaboratorsMemory, file.Collaborators.Mode)

	chain, ok := file.Chains[7]
	require.True(t, ok)
	require.True(t, chain.Enabled)
	require.Equal(t, uint32(2000), chain.FeeRate)
	require.False(t, file.Chains[3].Enabled)

	settings, err := file.Bridge.Settings()
	require.NoError(t, err)
	require.Equal(t, "10", settings.MinAmount.String())
	require.True(t, settings.AccumulatedFee.IsZero())

	require.Len(t, file.Entries(), 3)
	require.Equal(t, uint64(2), file.Collaborators.Pools[1].Num)
	require.Equal(t, time.Hour, file.Storage.Retention())
}

func TestValidateConfig(t *testing.T) {
	tests := map[string]func(*types.Config){
		"min above max":         func(c *types.Config) { c.Bridge.MinAmount = "2000000000000" },
		"bad amount":            func(c *types.Config) { c.Bridge.MaxAmount = "lots" },
		"default fee rate":      func(c *types.Config) { c.Bridge.DefaultFeeRate = 1_000_000 },
		"missing relayer":       func(c *types.Config) { c.Bridge.Relayer = "" },
		"chain fee rate":        func(c *types.Config) { c.Chains[3] = types.ChainConfig{FeeRate: 1_000_000} },
		"this chain as target":  func(c *types.Config) { c.Chains[1] = types.ChainConfig{RelayAddress: "x", Enabled: true} },
		"missing relay address": func(c *types.Config) { c.Chains[9] = types.ChainConfig{Enabled: true} },
		"unknown mode":          func(c *types.Config) { c.Collaborators.Mode = "grpc" },
		"rpc without endpoints": func(c *types.Config) { c.Collaborators.Mode = types.CollaboratorsRPC },
		"bad genesis balance":   func(c *types.Config) { c.Collaborators.Genesis["usdc.near"]["x"] = "-1" },
		"unknown backend":       func(c *types.Config) { c.Storage.Backend = "rocksdb" },
		"negative retention":    func(c *types.Config) { c.Storage.SagaRetention = -1 },
		"missing listen addr":   func(c *types.Config) { c.Api.ListenAddr = "" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			file, err := cmd.ParseConfig(sampleConfig)
			require.NoError(t, err)
			mutate(file)
			require.Error(t, cmd.ValidateConfig(file))
		})
	}
}

func TestApplyEnv(t *testing.T) {
	file, err := cmd.ParseConfig(sampleConfig)
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BRIDGE_LEDGER_RPC=http://ledger:8545\nBRIDGE_ROUTER_RPC=http://router:8545\n"), 0o600))

	// the process environment wins over the file
	t.Setenv("BRIDGE_LEDGER_RPC", "")
	t.Setenv("BRIDGE_ROUTER_RPC", "ws://router:8546")

	require.NoError(t, cmd.ApplyEnv(file, envFile))
	require.Equal(t, "http://ledger:8545", file.Collaborators.LedgerRPC)
	require.Equal(t, "ws://router:8546", file.Collaborators.RouterRPC)

	file.Collaborators.Mode = types.CollaboratorsRPC
	require.NoError(t, cmd.ValidateConfig(file))

	// a missing file is not an error
	require.NoError(t, cmd.ApplyEnv(file, filepath.Join(t.TempDir(), "missing.env")))
}
