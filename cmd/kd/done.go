package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
)

var (
	doneBranchFlag string
	doneForce      bool
)

var doneCmd = &cobra.Command{
	Use:     "done",
	GroupID: "lifecycle",
	Short:   "Mark a branch done",
	Long: `Set the branch's status to done and clear its session pointer, removing
its worktrees. No file moves, no git commits, no ticket relocations happen.
Refuses (nonzero exit) if any ticket is still open or in_progress unless
--force is passed. Re-running done on an already-done branch succeeds as a
no-op (spec §9 open question (b)).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		normalized, err := currentOrFlag(doneBranchFlag, lc.Current())
		if err != nil {
			return err
		}
		if err := lc.Done(normalized, doneForce); err != nil {
			return err
		}
		printResult(fmt.Sprintf("branch %s done", normalized), map[string]string{"branch": normalized})
		return nil
	},
}

func init() {
	doneCmd.Flags().StringVar(&doneBranchFlag, "branch", "", "branch to close out (default: current branch)")
	doneCmd.Flags().BoolVar(&doneForce, "force", false, "close even if open tickets remain")
}
