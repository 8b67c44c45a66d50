// Command rtd serves, validates and inspects real-time data feeds.
package main

import (
	"fmt"
	"os"

	"github.com/xll-gen/rtd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
