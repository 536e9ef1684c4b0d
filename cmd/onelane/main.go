// Command onelane runs the one-lane bridge controller and its vehicles.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/onelane/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
