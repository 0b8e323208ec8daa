package main

import (
	"fmt"
	"os"

	"github.com/odyssey-erp/revrec/cmd/revctl/cli"
)

func main() {
	cmd := cli.NewRootCommand(cli.DefaultOpener)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "revctl:", err)
		os.Exit(cli.ExitCode(err))
	}
}
