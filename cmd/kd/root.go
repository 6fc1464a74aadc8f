package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/auditlog"
	"github.com/jbohnslav/kingdom/internal/config"
	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

var (
	jsonOutput bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "kd",
	Short:         "Kingdom: a repository-local workflow engine for multi-agent feature development",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "lifecycle", Title: "Branch lifecycle:"},
		&cobra.Group{ID: "council", Title: "Council:"},
		&cobra.Group{ID: "tickets", Title: "Tickets:"},
		&cobra.Group{ID: "work", Title: "Execution:"},
	)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(designCmd)
	rootCmd.AddCommand(breakdownCmd)
	rootCmd.AddCommand(councilCmd)
	rootCmd.AddCommand(tkCmd)
	rootCmd.AddCommand(peasantCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(migrateCmd)
}

// repoRoot resolves R from the current working directory, per spec §9:
// every command does this fresh rather than caching it anywhere.
func repoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "getwd")
	}
	return kdgit.FindRoot(wd), nil
}

func kdConfigPath(root string) string {
	return filepath.Join(root, ".kd", "config.json")
}

func loadConfig(root string) (*config.Config, error) {
	return config.Load(kdConfigPath(root))
}

func auditLog(root string) *auditlog.Log {
	return auditlog.New(filepath.Join(root, ".kd"))
}

// currentOrFlag resolves the branch a command should operate against:
// an explicit --branch flag wins, otherwise the repo's current-branch
// pointer (set by `kd start`). A command with neither fails loudly
// rather than guessing.
func currentOrFlag(explicit, current string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if current != "" {
		return current, nil
	}
	return "", kderrors.New(kderrors.NotFound, "no current branch; pass --branch or run `kd start <branch>` first")
}

func printResult(human string, v any) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Println(human)
}

