// Command shaderhunt is the offline tooling for the shader replacement engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shaderhunt/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shaderhunt: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
