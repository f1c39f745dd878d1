// Command duet runs and inspects earbud topology scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/duet/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
