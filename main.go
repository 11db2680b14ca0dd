package main

import "github.com/strangelove-ventures/swap-bridge/cmd"

func main() {
	cmd.Execute()
}
