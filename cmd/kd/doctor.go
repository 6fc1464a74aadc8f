package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/kdgit"
)

// checkResult is one doctor check's outcome: pass, warn, or fail.
type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "lifecycle",
	Short:   "Run repo-local health checks",
	Long: `Check that R is a git repository, the .kd/ skeleton is intact, the
config validates, and no orphan tmp files or dangling worktrees remain.
Each check reports pass, warn, or fail; doctor exits nonzero if any check
fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot()
		if err != nil {
			return err
		}
		results := runDoctorChecks(root)

		failed := false
		var human strings.Builder
		for _, r := range results {
			if r.Status == "fail" {
				failed = true
			}
			fmt.Fprintf(&human, "[%s] %s", r.Status, r.Name)
			if r.Detail != "" {
				fmt.Fprintf(&human, ": %s", r.Detail)
			}
			human.WriteString("\n")
		}
		printResult(strings.TrimRight(human.String(), "\n"), results)
		if failed {
			os.Exit(1)
		}
		return nil
	},
}

func runDoctorChecks(root string) []checkResult {
	var out []checkResult

	repo := kdgit.New(root)
	if repo.IsRepo() {
		out = append(out, checkResult{Name: "git repository", Status: "pass"})
	} else {
		out = append(out, checkResult{Name: "git repository", Status: "fail", Detail: root + " is not a git repository"})
	}

	kdDir := filepath.Join(root, ".kd")
	out = append(out, dirCheck("kd skeleton", kdDir))
	out = append(out, dirCheck("backlog tickets", filepath.Join(kdDir, "backlog", "tickets")))
	out = append(out, dirCheck("branches dir", filepath.Join(kdDir, "branches")))

	if _, err := loadConfig(root); err != nil {
		out = append(out, checkResult{Name: "config", Status: "fail", Detail: err.Error()})
	} else {
		out = append(out, checkResult{Name: "config", Status: "pass"})
	}

	out = append(out, orphanTmpCheck(kdDir))
	out = append(out, danglingWorktreeCheck(root, kdDir))

	return out
}

func dirCheck(name, path string) checkResult {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return checkResult{Name: name, Status: "warn", Detail: path + " missing (run `kd init`)"}
	}
	return checkResult{Name: name, Status: "pass"}
}

// orphanTmpCheck walks .kd looking for leftover *.tmp files from an
// interrupted atomic write: they are harmless (the next write replaces
// them) but worth surfacing since they accumulate silently otherwise.
func orphanTmpCheck(kdDir string) checkResult {
	var orphans []string
	_ = filepath.Walk(kdDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".tmp") {
			orphans = append(orphans, path)
		}
		return nil
	})
	if len(orphans) == 0 {
		return checkResult{Name: "orphan tmp files", Status: "pass"}
	}
	return checkResult{Name: "orphan tmp files", Status: "warn", Detail: fmt.Sprintf("%d found, e.g. %s", len(orphans), orphans[0])}
}

// danglingWorktreeCheck flags a branch worktree directory whose git
// worktree registration has disappeared (e.g. the user ran `git
// worktree remove` by hand without going through `kd peasant clean`).
func danglingWorktreeCheck(root, kdDir string) checkResult {
	lc := branch.New(root)
	branches, err := lc.List(true)
	if err != nil {
		return checkResult{Name: "dangling worktrees", Status: "warn", Detail: err.Error()}
	}
	repo := kdgit.New(root)
	registered := repo.ListWorktrees()

	var dangling []string
	for _, b := range branches {
		wtDir := lc.WorktreesDir(b.NormalizedName)
		entries, err := os.ReadDir(wtDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(wtDir, e.Name())
			if !registered[path] {
				dangling = append(dangling, path)
			}
		}
	}
	if len(dangling) == 0 {
		return checkResult{Name: "dangling worktrees", Status: "pass"}
	}
	return checkResult{Name: "dangling worktrees", Status: "warn", Detail: strings.Join(dangling, ", ")}
}
