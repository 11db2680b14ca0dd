package cmd

import (
	"fmt"
	"os"

	"cosmossdk.io/log"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/rs/zerolog"

	"github.com/strangelove-ventures/swap-bridge/types"
)

// appState is the modifiable state of the application.
type AppState struct {
	Config *types.Config

	ConfigPath string

	// EnvPath is an optional dotenv file overriding collaborator endpoints.
	EnvPath string

	Debug bool

	LogLevel string

	Logger log.Logger
}

func NewAppState() *AppState {
	return &AppState{}
}

// InitAppState checks if a logger and config are present. If not, it adds them to the AppState
func (a *AppState) InitAppState() {
	if a.Logger == nil {
		a.InitLogger()
	}
	if a.Config == nil {
		a.loadConfigFile()
	}
}

func (a *AppState) InitLogger() {
	// info level is default
	level := zerolog.InfoLevel
	switch a.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// a.Debug overrides a.loglevel
	if a.Debug {
		level = zerolog.DebugLevel
	}
	a.Logger = log.NewLogger(os.Stdout, log.LevelOption(level))
}

// loadConfigFile loads a configuration into the AppState. It uses the AppState ConfigPath
// to determine file path to config.
func (a *AppState) loadConfigFile() {
	if a.Logger == nil {
		a.InitLogger()
	}
	config, err := ParseConfig(a.ConfigPath)
	if err != nil {
		a.Logger.Error("Unable to parse config file", "location", a.ConfigPath, "err", err)
		os.Exit(1)
	}
	a.Logger.Info("Successfully parsed config file", "location", a.ConfigPath)

	if err := ApplyEnv(config, a.EnvPath); err != nil {
		a.Logger.Error("Unable to load env file", "location", a.EnvPath, "err", err)
		os.Exit(1)
	}
	a.Config = config

	if err := ValidateConfig(a.Config); err != nil {
		a.Logger.Error("Invalid config", "err", err)
		os.Exit(1)
	}
}

// ValidateConfig checks a Config for any invalid settings.
func ValidateConfig(cfg *types.Config) error {
	settings, err := cfg.Bridge.Settings()
	if err != nil {
		return err
	}
	if err := validateBridge(cfg.Bridge, settings); err != nil {
		return err
	}

	for id, chain := range cfg.Chains {
		if err := validateChain(id, chain, cfg.Bridge.ChainID); err != nil {
			return err
		}
	}

	if err := validateCollaborators(cfg.Collaborators); err != nil {
		return err
	}

	switch dbm.BackendType(cfg.Storage.Backend) {
	case "", dbm.MemDBBackend:
	case dbm.GoLevelDBBackend:
		if cfg.Storage.Dir == "" {
			return fmt.Errorf("storage dir must be set for the %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.SagaRetention < 0 {
		return fmt.Errorf("saga-retention must not be negative (saga-retention: %d)", cfg.Storage.SagaRetention)
	}

	if cfg.Api.ListenAddr == "" {
		return fmt.Errorf("api listen-addr must be set in the config")
	}
	return nil
}

func validateBridge(bc types.BridgeConfig, settings types.Settings) error {
	accounts := map[string]string{
		"account":        bc.Account,
		"owner":          bc.Owner,
		"manager":        bc.Manager,
		"relayer":        bc.Relayer,
		"transfer-token": bc.TransferToken,
		"router":         bc.Router,
	}
	for field, account := range accounts {
		if account == "" {
			return fmt.Errorf("bridge %s must be set in the config", field)
		}
	}

	if settings.MinAmount.GT(settings.MaxAmount) {
		return fmt.Errorf("bridge min-amount (%s) must not exceed max-amount (%s)", settings.MinAmount, settings.MaxAmount)
	}
	if bc.DefaultFeeRate >= types.FeeDenominator {
		return fmt.Errorf("bridge default-fee-rate must be below %d (default-fee-rate: %d)", types.FeeDenominator, bc.DefaultFeeRate)
	}
	return nil
}

// validateChain ensures the target chain is configured correctly
func validateChain(id uint64, chain types.ChainConfig, thisChain uint64) error {
	if chain.FeeRate >= types.FeeDenominator {
		return fmt.Errorf("fee-rate must be below %d (chain: %d) (fee-rate: %d)", types.FeeDenominator, id, chain.FeeRate)
	}
	if !chain.Enabled {
		return nil
	}
	if id == thisChain {
		return fmt.Errorf("this blockchain cannot be an enabled target (chain: %d)", id)
	}
	if chain.RelayAddress == "" {
		return fmt.Errorf("relay-address must be set for enabled chains (chain: %d)", id)
	}
	return nil
}

func validateCollaborators(cc types.CollaboratorsConfig) error {
	switch cc.Mode {
	case types.CollaboratorsMemory:
		for token, balances := range cc.Genesis {
			for account, amount := range balances {
				if _, err := types.ParseAmount(amount); err != nil {
					return fmt.Errorf("genesis balance of %s for %s: %w", token, account, err)
				}
			}
		}
		for id, pool := range cc.Pools {
			if pool.TokenIn == "" || pool.TokenOut == "" || pool.Den == 0 {
				return fmt.Errorf("pool %d needs token-in, token-out and a non-zero den", id)
			}
		}
	case types.CollaboratorsRPC:
		if cc.LedgerRPC == "" || cc.RouterRPC == "" {
			return fmt.Errorf("ledger-rpc and router-rpc must be set in rpc mode")
		}
	default:
		return fmt.Errorf("collaborators mode must be %q or %q (mode: %q)", types.CollaboratorsMemory, types.CollaboratorsRPC, cc.Mode)
	}

	if cc.CallTimeout < 0 {
		return fmt.Errorf("call-timeout must not be negative (call-timeout: %d)", cc.CallTimeout)
	}
	return nil
}
