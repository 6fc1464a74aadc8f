package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/ticket"
)

var migrateApply bool

var migrateCmd = &cobra.Command{
	Use:     "migrate ticket-ids",
	GroupID: "tickets",
	Short:   "Rewrite legacy kin-* ticket ids to bare 4-hex ids",
	Long: `Scan every ticket, including done branches, for a legacy "kin-"-
prefixed id. Dry-run by default: prints the rename plan without touching
anything. Pass --apply to execute it. Aborts before changing anything if
any renamed id would collide with an existing ticket file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "ticket-ids" {
			return fmt.Errorf("unknown migrate target %q (want ticket-ids)", args[0])
		}
		root, err := repoRoot()
		if err != nil {
			return err
		}
		ts := ticket.New(root)
		plan, err := ts.PlanMigration()
		if err != nil {
			return err
		}

		if len(plan.Renames) == 0 {
			printResult("no legacy ticket ids found", plan)
			return nil
		}

		var human strings.Builder
		for oldPath, newID := range plan.Renames {
			fmt.Fprintf(&human, "%s -> %s\n", oldPath, newID)
		}
		for path, refs := range plan.Referrers {
			fmt.Fprintf(&human, "%s references: %s\n", path, strings.Join(refs, ", "))
		}

		if !migrateApply {
			human.WriteString("(dry run; pass --apply to execute)\n")
			printResult(strings.TrimRight(human.String(), "\n"), plan)
			return nil
		}

		if err := ts.ApplyMigration(plan); err != nil {
			return err
		}
		human.WriteString("applied.\n")
		printResult(strings.TrimRight(human.String(), "\n"), plan)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateApply, "apply", false, "execute the migration instead of just printing the plan")
}
