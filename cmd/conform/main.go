// Command conform replays Quint model traces against implementations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/conform/internal/ballotdriver"
	"github.com/roach88/conform/internal/cli"
	"github.com/roach88/conform/internal/harness"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := cli.NewRootCommand(drivers())
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// drivers registers the built-in drivers. Embedders of the library build
// their own registry and root command.
func drivers() *harness.Registry {
	reg := harness.NewRegistry()
	reg.MustRegister("ballot", ballotdriver.New)
	reg.MustRegister("ballot-buggy", ballotdriver.NewBuggy)
	return reg
}
