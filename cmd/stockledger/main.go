// Command stockledger records warehouse stock movements and reconciles
// inter-site transfers.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stockledger/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stockledger: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
