package main

import (
	"fmt"
	"os"

	"github.com/annel0/spawnkeeper/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spawnctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
