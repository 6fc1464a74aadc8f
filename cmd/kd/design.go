package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/store"
)

var designBranchFlag string

var designCmd = &cobra.Command{
	Use:     "design [show|approve]",
	GroupID: "lifecycle",
	Short:   "Show or approve a branch's design.md",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		normalized, err := currentOrFlag(designBranchFlag, lc.Current())
		if err != nil {
			return err
		}

		sub := "show"
		if len(args) == 1 {
			sub = args[0]
		}

		switch sub {
		case "show":
			text, err := store.ReadText(lc.DesignPath(normalized))
			if err != nil {
				return err
			}
			printResult(text, map[string]string{"branch": normalized, "design": text})
			return nil
		case "approve":
			if err := lc.ApproveDesign(normalized); err != nil {
				return err
			}
			printResult(fmt.Sprintf("design for %s approved", normalized), map[string]string{"branch": normalized})
			return nil
		default:
			return fmt.Errorf("unknown design subcommand %q (want show or approve)", sub)
		}
	},
}

func init() {
	designCmd.Flags().StringVar(&designBranchFlag, "branch", "", "branch to operate on (default: current branch)")
}
