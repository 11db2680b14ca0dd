package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const appName = "swap-bridge"

var defaultConfigPath = "./config.yaml"

// NewRootCmd builds the command tree around a fresh AppState.
func NewRootCmd() *cobra.Command {
	a := NewAppState()

	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "A cross-chain swap bridge with fee-collecting settlement",
		SilenceUsage: true,
	}
	addAppPersistantFlags(rootCmd, a)

	rootCmd.AddCommand(
		startCmd(a),
		configShowCmd(a),
		versionCmd(),
	)
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
