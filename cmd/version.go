package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strangelove-ventures/swap-bridge/bridge"
)

var (
	// Version defines the application version (defined at compile time)
	Version = ""
	Commit  = ""
	Dirty   = ""
)

type versionInfo struct {
	Version      string `json:"version" yaml:"version"`
	Commit       string `json:"commit" yaml:"commit"`
	StateVersion int    `json:"state_version" yaml:"state_version"`
	Go           string `json:"go" yaml:"go"`
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version info",
		RunE:  getVersionCmd,
	}
	return addJsonFlag(cmd)
}

func getVersionCmd(cmd *cobra.Command, args []string) error {
	jsn, err := cmd.Flags().GetBool(flagJSON)
	if err != nil {
		return err
	}

	commit := Commit
	if Dirty != "" && Dirty != "0" {
		commit += " (dirty)"
	}

	verInfo := versionInfo{
		Version:      Version,
		Commit:       commit,
		StateVersion: bridge.Version,
		Go:           fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}

	var bz []byte
	if jsn {
		bz, err = json.Marshal(&verInfo)
	} else {
		bz, err = yaml.Marshal(&verInfo)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return nil
}
