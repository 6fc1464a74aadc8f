package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/agentloop"
	"github.com/jbohnslav/kingdom/internal/branch"
)

var workAgent string

var workCmd = &cobra.Command{
	Use:     "work <ticket>",
	GroupID: "work",
	Short:   "Run the AgentLoop harness against a ticket until it closes or blocks",
	Long: `Drive one ticket through its AgentLoop iterations in the current
process: build a prompt from design.md, the ticket body, its worklog, and
any new king messages; issue one adapter call; close the ticket on a
COMPLETE response or append it and continue. This is what "kd peasant start"
spawns detached; run it directly for a foreground, synchronous iteration
(useful in "hand" mode or for debugging a stuck worker).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		normalized, err := currentOrFlag("", lc.Current())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(root)
		if err != nil {
			return err
		}
		h := agentloop.New(root, normalized, args[0], workAgent, cfg, agent.DefaultRegistry())
		if err := h.Run(context.Background()); err != nil {
			return err
		}
		printResult(fmt.Sprintf("ticket %s closed", args[0]), map[string]string{"ticket": args[0]})
		return nil
	},
}

func init() {
	workCmd.Flags().StringVar(&workAgent, "agent", "claude", "backend driving this ticket: claude, codex, or cursor")
}
