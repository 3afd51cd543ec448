// Command showclock runs and inspects frame-accurate show timeline clocks.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/showclock/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
