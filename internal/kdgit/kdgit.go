// Package kdgit wraps the handful of git subprocess invocations kingdom
// needs: worktree lifecycle for peasants and a history-preserving move
// for relocating ticket files between branches. Grounded on the
// teacher's internal/git/worktree.go worktree-add/prune/remove dance
// and madhatter5501-Factory's git/worktree.go branch-exists probe.
package kdgit

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// Repo is a handle to the git repository rooted at Path.
type Repo struct {
	Path string
}

func New(path string) *Repo { return &Repo{Path: path} }

func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...) // #nosec G204 -- args are kingdom-constructed, not user input
	cmd.Dir = r.Path
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), kderrors.Wrap(kderrors.NonZeroExit, err, "git %v: %s", args, out.String())
	}
	return out.String(), nil
}

// IsRepo reports whether Path sits inside a git working tree.
func (r *Repo) IsRepo() bool {
	_, err := r.run("rev-parse", "--is-inside-work-tree")
	return err == nil
}

// FindRoot walks upward from start looking for a directory containing
// .kd (a repository already initialized by kingdom) or, failing that,
// a real .git directory (so `kd init` has somewhere sensible to act
// on). A linked worktree's .git is a *file* pointing back at the main
// repository's .git/worktrees/<name>, not a directory; FindRoot does
// not stop there, since peasant worktrees live under R's own .kd/, and
// the commands spawned inside them (kd work) need R, not the worktree
// path, to find .kd. It returns start unchanged if neither marker is
// found anywhere above it, so callers performing `kd init` on a bare
// directory still have a root.
func FindRoot(start string) string {
	dir := start
	for {
		if stat(filepath.Join(dir, ".kd")) || isDir(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func stat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// BranchExists reports whether a local or remote-tracking branch named
// name exists.
func (r *Repo) BranchExists(name string) bool {
	if _, err := r.run("show-ref", "--verify", "--quiet", "refs/heads/"+name); err == nil {
		return true
	}
	_, err := r.run("show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name)
	return err == nil
}

// AddWorktree creates a git worktree at worktreePath checked out onto
// branch, creating branch if it does not already exist.
func (r *Repo) AddWorktree(worktreePath, branch string) error {
	if r.BranchExists(branch) {
		_, err := r.run("worktree", "add", worktreePath, branch)
		return err
	}
	_, err := r.run("worktree", "add", "-b", branch, worktreePath)
	return err
}

// RemoveWorktree force-removes a worktree and prunes stale entries.
func (r *Repo) RemoveWorktree(worktreePath string) error {
	_, _ = r.run("worktree", "remove", "--force", worktreePath)
	_, err := r.run("worktree", "prune")
	return err
}

// Mv renames src to dst using git's move primitive so history follows
// the file. Callers fall back to a plain os.Rename when IsRepo is
// false (spec §4.7 TicketStore.move).
func (r *Repo) Mv(src, dst string) error {
	relSrc, err := filepath.Rel(r.Path, src)
	if err != nil {
		relSrc = src
	}
	relDst, err := filepath.Rel(r.Path, dst)
	if err != nil {
		relDst = dst
	}
	_, err = r.run("mv", relSrc, relDst)
	return err
}

// Pull fast-forwards the current branch from its upstream, used by
// peasant sync to keep a worktree current without risking a merge
// commit the worker didn't ask for.
func (r *Repo) Pull() error {
	_, err := r.run("pull", "--ff-only")
	return err
}

// Add stages the given repo-relative paths.
func (r *Repo) Add(paths ...string) error {
	args := append([]string{"add"}, paths...)
	_, err := r.run(args...)
	return err
}

// ListWorktrees returns the set of worktree paths git currently has
// registered for this repository, keyed for O(1) membership checks
// (used by `kd doctor` to spot a branch worktree directory left behind
// after its git registration vanished).
func (r *Repo) ListWorktrees() map[string]bool {
	out := map[string]bool{}
	raw, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return out
	}
	for _, line := range strings.Split(raw, "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			out[path] = true
		}
	}
	return out
}

// Commit creates a commit with message over currently staged changes.
// Returns nil (no-op) if there is nothing staged.
func (r *Repo) Commit(message string) error {
	out, err := r.run("diff", "--cached", "--name-only")
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace([]byte(out))) == 0 {
		return nil
	}
	_, err = r.run("commit", "-m", message)
	return err
}
