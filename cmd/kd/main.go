// Command kd is the kingdom CLI: a thin cobra dispatch layer over the
// internal orchestration packages (branch, council, ticket, peasant,
// agentloop). It resolves the repository root from the current working
// directory fresh on every invocation — no process-wide config or
// council singleton is kept (spec §9 "no global singletons").
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
