// Package branch implements BranchLifecycle (spec §4.10): .kd/
// skeleton init, per-branch directory layout, branch-state transitions
// recorded purely by a status field (never a file move), and
// done-branch filtering for listing commands.
package branch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
	"github.com/jbohnslav/kingdom/internal/ticket"
)

// Lifecycle operates on the branches rooted at one repository R.
type Lifecycle struct {
	Root    string
	Tickets *ticket.Store
}

func New(root string) *Lifecycle {
	return &Lifecycle{Root: root, Tickets: ticket.New(root)}
}

func (l *Lifecycle) kdDir() string { return filepath.Join(l.Root, ".kd") }

// Dir returns a branch's root directory given its normalized name.
func (l *Lifecycle) Dir(normalized string) string {
	return filepath.Join(l.kdDir(), "branches", normalized)
}

func (l *Lifecycle) statePath(normalized string) string {
	return filepath.Join(l.Dir(normalized), "state.json")
}

// DesignPath returns the path to a branch's design.md.
func (l *Lifecycle) DesignPath(normalized string) string {
	return filepath.Join(l.Dir(normalized), "design.md")
}

// ThreadsDir returns a branch's threads/ directory.
func (l *Lifecycle) ThreadsDir(normalized string) string {
	return filepath.Join(l.Dir(normalized), "threads")
}

// WorktreesDir returns a branch's worktrees/ directory.
func (l *Lifecycle) WorktreesDir(normalized string) string {
	return filepath.Join(l.Dir(normalized), "worktrees")
}

// SessionsDir returns a branch's sessions/ directory.
func (l *Lifecycle) SessionsDir(normalized string) string {
	return filepath.Join(l.Dir(normalized), "sessions")
}

// PeasantsDir returns a branch's peasants/ directory, where
// PeasantSession records are kept (<ticket>.json), alongside each
// peasant's captured log (<ticket>.log) and its agent-loop session
// file (<ticket>-session.json).
func (l *Lifecycle) PeasantsDir(normalized string) string {
	return filepath.Join(l.Dir(normalized), "peasants")
}

// Init creates the .kd/ skeleton if absent. Idempotent: re-running it
// on an already-initialized repo leaves the tree unchanged.
func (l *Lifecycle) Init() error {
	dirs := []string{
		l.kdDir(),
		filepath.Join(l.kdDir(), "backlog", "tickets"),
		filepath.Join(l.kdDir(), "branches"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return kderrors.Wrap(kderrors.IO, err, "mkdir %s", d)
		}
	}
	cfgPath := filepath.Join(l.kdDir(), "config.json")
	if !store.Exists(cfgPath) {
		if err := store.WriteText(cfgPath, "{}\n"); err != nil {
			return err
		}
	}
	return nil
}

// Start creates a branch's directory layout and state.json, computing
// normalized_name via Normalize (fails loudly on an empty slug rather
// than writing under the branches root). Re-invoking Start on an
// existing branch is a no-op that returns its current state unchanged
// (spec §8 idempotence law).
func (l *Lifecycle) Start(name string) (*State, error) {
	normalized, err := Normalize(name)
	if err != nil {
		return nil, err
	}

	if store.Exists(l.statePath(normalized)) {
		return l.Load(normalized)
	}

	dir := l.Dir(normalized)
	for _, sub := range []string{"tickets", "threads", "worktrees", "sessions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, kderrors.Wrap(kderrors.IO, err, "mkdir %s", sub)
		}
	}

	designPath := l.DesignPath(normalized)
	if !store.Exists(designPath) {
		if err := store.WriteText(designPath, "# Design\n"); err != nil {
			return nil, err
		}
	}

	st := &State{
		Name:           name,
		NormalizedName: normalized,
		Status:         StatusActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.WriteJSON(l.statePath(normalized), st); err != nil {
		return nil, err
	}
	return st, nil
}

// Load reads a branch's state.json.
func (l *Lifecycle) Load(normalized string) (*State, error) {
	var st State
	if err := store.ReadJSON(l.statePath(normalized), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (l *Lifecycle) save(st *State) error {
	return store.WriteJSON(l.statePath(st.NormalizedName), st)
}

// List returns every branch's state, excluding done branches unless
// includeDone is set (spec §4.10: listing commands filter done by
// default).
func (l *Lifecycle) List(includeDone bool) ([]*State, error) {
	entries, err := os.ReadDir(filepath.Join(l.kdDir(), "branches"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list branches")
	}
	var out []*State
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := l.Load(e.Name())
		if err != nil {
			continue
		}
		if !includeDone && st.Status == StatusDone {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// ApproveDesign marks a branch's design as approved.
func (l *Lifecycle) ApproveDesign(normalized string) error {
	st, err := l.Load(normalized)
	if err != nil {
		return err
	}
	st.DesignApproved = true
	return l.save(st)
}

// SetSession records (or clears, with "") the active peasant session
// pointer on a branch's state.
func (l *Lifecycle) SetSession(normalized, session string) error {
	st, err := l.Load(normalized)
	if err != nil {
		return err
	}
	st.Session = session
	return l.save(st)
}

// StatusReport is the summary produced by Status: design-approval,
// ticket counts by status. Peasant session liveness is layered on top
// by the CLI, which also has the peasant package in scope.
type StatusReport struct {
	State        *State
	TicketCounts map[ticket.Status]int
}

// Status summarizes a branch: design-approved, ticket counts by status.
func (l *Lifecycle) Status(normalized string) (*StatusReport, error) {
	st, err := l.Load(normalized)
	if err != nil {
		return nil, err
	}
	tickets, err := l.Tickets.ListBranch(normalized)
	if err != nil {
		return nil, err
	}
	counts := map[ticket.Status]int{}
	for _, t := range tickets {
		counts[t.Status]++
	}
	return &StatusReport{State: st, TicketCounts: counts}, nil
}

// currentPath is the repo-wide pointer to the branch the CLI operates
// on when a command omits an explicit --branch flag. It is a thin
// convenience on top of the git branch itself (which a user may not
// have checked out in R when driving a peasant from a worktree), kept
// as a single text file rather than a json document since it carries
// exactly one scalar.
func (l *Lifecycle) currentPath() string { return filepath.Join(l.kdDir(), "current") }

// SetCurrent records normalized as the repo's current branch pointer.
func (l *Lifecycle) SetCurrent(normalized string) error {
	return store.WriteText(l.currentPath(), normalized+"\n")
}

// Current reads the repo's current branch pointer. Returns "" if unset.
func (l *Lifecycle) Current() string {
	raw, err := store.ReadText(l.currentPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(raw)
}

// Done marks a branch done: sets status/done_at, clears the session
// pointer, and removes its worktrees. No file moves, no git commits, no
// ticket relocations. Refuses if any ticket is still open/in_progress
// unless force is set. Re-invoking Done on an already-done branch is a
// no-op success (spec §9 open question (b): done idempotence resolved
// as success-no-op, consistent with Start's idempotence).
func (l *Lifecycle) Done(normalized string, force bool) error {
	st, err := l.Load(normalized)
	if err != nil {
		return err
	}
	if st.Status == StatusDone {
		return nil
	}

	tickets, err := l.Tickets.ListBranch(normalized)
	if err != nil {
		return err
	}
	if !force {
		for _, t := range tickets {
			if t.Status != ticket.StatusClosed {
				return kderrors.New(kderrors.Conflict, "branch %s has open tickets; pass --force", normalized)
			}
		}
	}

	repo := kdgit.New(l.Root)
	worktreesDir := l.WorktreesDir(normalized)
	if entries, rdErr := os.ReadDir(worktreesDir); rdErr == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = repo.RemoveWorktree(filepath.Join(worktreesDir, e.Name()))
			}
		}
	}

	now := time.Now().UTC()
	st.Status = StatusDone
	st.DoneAt = &now
	st.Session = ""
	return l.save(st)
}
