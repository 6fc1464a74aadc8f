package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "lifecycle",
	Short:   "Initialize the .kd/ skeleton in the current repository",
	Long: `Create .kd/ (backlog/, branches/, config.json) in the repository
rooted at the current working directory. Idempotent: running it again on an
already-initialized repo leaves the tree unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		if err := lc.Init(); err != nil {
			return err
		}
		printResult(fmt.Sprintf("initialized .kd/ in %s", root), map[string]string{"root": root})
		return nil
	},
}
