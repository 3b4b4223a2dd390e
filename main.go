package main

import (
	"os"

	"eodl/cmd"
	"eodl/config"
)

func main() {
	config.LoadDotEnv()
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
