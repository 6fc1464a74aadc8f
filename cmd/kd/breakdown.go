package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/store"
)

var breakdownBranchFlag string

var breakdownCmd = &cobra.Command{
	Use:     "breakdown",
	GroupID: "lifecycle",
	Short:   "Print a ticket-breakdown prompt for the approved design",
	Long: `Render design.md into a prompt asking an agent to break the design into
tickets. This command only prints the prompt to stdout; it never invokes an
agent or parses a response — the operator pastes it into whatever council
member or external tool they choose, and files the resulting tickets with
"tk create" themselves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		normalized, err := currentOrFlag(breakdownBranchFlag, lc.Current())
		if err != nil {
			return err
		}
		st, err := lc.Load(normalized)
		if err != nil {
			return err
		}
		if !st.DesignApproved {
			return fmt.Errorf("design for %s is not approved; run `kd design approve` first", normalized)
		}
		design, err := store.ReadText(lc.DesignPath(normalized))
		if err != nil {
			return err
		}
		prompt := buildBreakdownPrompt(normalized, design)
		printResult(prompt, map[string]string{"branch": normalized, "prompt": prompt})
		return nil
	},
}

func buildBreakdownPrompt(normalized, design string) string {
	return fmt.Sprintf(`Break the following approved design for branch %q into a set of
independent, dependency-ordered tickets. For each ticket, give a short
title, a one-paragraph description, acceptance criteria, and any ticket
it depends on by id. Do not write code; only produce the ticket list.

# Design

%s`, normalized, design)
}

func init() {
	breakdownCmd.Flags().StringVar(&breakdownBranchFlag, "branch", "", "branch to operate on (default: current branch)")
}
