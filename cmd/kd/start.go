package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
)

var startCmd = &cobra.Command{
	Use:     "start <branch>",
	GroupID: "lifecycle",
	Short:   "Start (or resume) a branch workstream",
	Args:    cobra.ExactArgs(1),
	Long: `Compute the branch's normalized_name, lay out its .kd/branches/<n>/
directory (tickets/, threads/, worktrees/, sessions/), and record it as the
repository's current branch. Re-running start on an existing branch is a
no-op that returns its current state (spec §8 idempotence law).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		if err := lc.Init(); err != nil {
			return err
		}
		st, err := lc.Start(args[0])
		if err != nil {
			return err
		}
		if err := lc.SetCurrent(st.NormalizedName); err != nil {
			return err
		}
		printResult(fmt.Sprintf("branch %q ready at .kd/branches/%s/", st.Name, st.NormalizedName), st)
		return nil
	},
}
