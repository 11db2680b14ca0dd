package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strangelove-ventures/swap-bridge/types"
)

const (
	defaultEnvPath = ".env"

	envLedgerRPC = "BRIDGE_LEDGER_RPC"
	envRouterRPC = "BRIDGE_ROUTER_RPC"
)

// Command for printing current configuration
func configShowCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "showConfig",
		Aliases: []string{"sc"},
		Short:   "Prints current configuration. By default it prints in yaml",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.InitAppState()
			return nil
		},
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s showConfig --config %s
$ %s sc --json`, appName, defaultConfigPath, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}

			var out []byte
			if jsn {
				out, err = json.Marshal(a.Config)
			} else {
				out, err = yaml.Marshal(a.Config)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	addJsonFlag(cmd)
	return cmd
}

// ParseConfig parses the app config file
func ParseConfig(file string) (*types.Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides collaborator endpoints from the process environment and
// then from the dotenv file at path, if present. The process environment wins.
// An empty path reads .env from the working directory.
func ApplyEnv(cfg *types.Config, path string) error {
	if path == "" {
		path = defaultEnvPath
	}
	env, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return env[key]
	}
	if v := lookup(envLedgerRPC); v != "" {
		cfg.Collaborators.LedgerRPC = v
	}
	if v := lookup(envRouterRPC); v != "" {
		cfg.Collaborators.RouterRPC = v
	}
	return nil
}
