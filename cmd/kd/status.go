package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/peasant"
)

var statusBranchFlag string

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "lifecycle",
	Short:   "Summarize a branch: design-approved, ticket counts, peasant sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		normalized, err := currentOrFlag(statusBranchFlag, lc.Current())
		if err != nil {
			return err
		}
		report, err := lc.Status(normalized)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(root)
		if err != nil {
			return err
		}
		sup := peasant.New(root, normalized, cfg, auditLog(root))
		sessions, err := sup.Status()
		if err != nil {
			return err
		}

		type view struct {
			Branch         string                `json:"branch"`
			DesignApproved bool                  `json:"design_approved"`
			TicketCounts   map[string]int        `json:"ticket_counts"`
			Peasants       []peasant.StatusEntry `json:"peasants"`
		}
		counts := map[string]int{}
		for status, n := range report.TicketCounts {
			counts[string(status)] = n
		}
		v := view{
			Branch:         normalized,
			DesignApproved: report.State.DesignApproved,
			TicketCounts:   counts,
			Peasants:       sessions,
		}

		human := fmt.Sprintf("branch %s: design_approved=%v tickets=%v peasants=%d",
			v.Branch, v.DesignApproved, v.TicketCounts, len(v.Peasants))
		printResult(human, v)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusBranchFlag, "branch", "", "branch to report on (default: current branch)")
}
