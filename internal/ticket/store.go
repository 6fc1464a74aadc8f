package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
)

// Store implements CRUD and graph queries over tickets rooted at a
// repository's .kd directory (spec §4.7).
type Store struct {
	Root string // repository root R
}

func New(root string) *Store { return &Store{Root: root} }

func (s *Store) kdDir() string       { return filepath.Join(s.Root, ".kd") }
func (s *Store) backlogDir() string  { return filepath.Join(s.kdDir(), "backlog", "tickets") }
func (s *Store) branchesDir() string { return filepath.Join(s.kdDir(), "branches") }

func (s *Store) branchTicketsDir(normalized string) string {
	return filepath.Join(s.branchesDir(), normalized, "tickets")
}

// branchMeta is the subset of branch state.json this package needs to
// decide whether a branch is done, without importing the branch
// package (which itself depends on ticket for status/ready-set
// reporting).
type branchMeta struct {
	Status string `json:"status"`
}

func (s *Store) isBranchDone(normalized string) bool {
	var meta branchMeta
	path := filepath.Join(s.branchesDir(), normalized, "state.json")
	if err := store.ReadJSON(path, &meta); err != nil {
		return false
	}
	return meta.Status == "done"
}

// branchDirs lists normalized branch names that have a tickets/ dir,
// optionally including ones whose state is "done".
func (s *Store) branchDirs(includeDone bool) ([]string, error) {
	entries, err := os.ReadDir(s.branchesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list %s", s.branchesDir())
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !includeDone && s.isBranchDone(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// GenerateID mints a 4-hex-character ticket id via crypto/rand and
// checks for collisions against every ticket file in backlog and every
// branch (including done ones — ids must be globally unique), retrying
// until a free id is found. No other directory (such as an archive) is
// searched.
func (s *Store) GenerateID() (string, error) {
	existing, err := s.allTicketIDs()
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < 64; attempt++ {
		buf := make([]byte, 2)
		if _, err := rand.Read(buf); err != nil {
			return "", kderrors.Wrap(kderrors.IO, err, "generate ticket id")
		}
		id := hex.EncodeToString(buf)
		if !existing[id] {
			return id, nil
		}
	}
	return "", kderrors.New(kderrors.Conflict, "could not find a free ticket id after 64 attempts")
}

func (s *Store) allTicketIDs() (map[string]bool, error) {
	ids := map[string]bool{}
	paths, err := s.allTicketPaths(true)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		ids[strings.TrimSuffix(filepath.Base(p), ".md")] = true
	}
	return ids, nil
}

func (s *Store) allTicketPaths(includeDone bool) ([]string, error) {
	var paths []string
	add := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return kderrors.Wrap(kderrors.IO, err, "list %s", dir)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
		return nil
	}
	if err := add(s.backlogDir()); err != nil {
		return nil, err
	}
	branches, err := s.branchDirs(includeDone)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		if err := add(s.branchTicketsDir(b)); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// Create writes a new ticket into the backlog.
func (s *Store) Create(title, description string, typ Type, priority int) (*Ticket, error) {
	id, err := s.GenerateID()
	if err != nil {
		return nil, err
	}
	t := &Ticket{
		ID:          id,
		Status:      StatusOpen,
		Type:        typ,
		Priority:    priority,
		Deps:        []string{},
		Links:       []string{},
		CreatedAt:   time.Now().UTC(),
		Title:       title,
		Description: description,
	}
	t.Path = filepath.Join(s.backlogDir(), id+".md")
	if err := store.WriteText(t.Path, t.Encode()); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads and decodes the ticket at path.
func (s *Store) Load(path string) (*Ticket, error) {
	raw, err := store.ReadText(path)
	if err != nil {
		return nil, err
	}
	t, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	t.Path = path
	return t, nil
}

// Save re-encodes and atomically rewrites a ticket at its current Path.
func (s *Store) Save(t *Ticket) error {
	if t.Path == "" {
		return kderrors.New(kderrors.IO, "ticket %s has no path", t.ID)
	}
	return store.WriteText(t.Path, t.Encode())
}

// Find resolves a short-id prefix against tickets in the backlog and
// non-done branches. Exactly one match succeeds; zero is NotFound;
// more than one is Ambiguous. Pass includeDone=true to also search
// done branches (spec §4.7 "callers wanting them must opt in").
func (s *Store) Find(prefix string, includeDone bool) (*Ticket, error) {
	paths, err := s.allTicketPaths(includeDone)
	if err != nil {
		return nil, err
	}
	var matches []*Ticket
	for _, p := range paths {
		id := strings.TrimSuffix(filepath.Base(p), ".md")
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		t, err := s.Load(p)
		if err != nil {
			continue
		}
		matches = append(matches, t)
	}
	switch len(matches) {
	case 0:
		return nil, kderrors.New(kderrors.NotFound, "no ticket matching %q", prefix)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, kderrors.New(kderrors.Ambiguous, "%q matches multiple tickets: %s", prefix, strings.Join(ids, ", "))
	}
}

// Close marks a ticket closed.
func (s *Store) Close(t *Ticket) error {
	t.Status = StatusClosed
	return s.Save(t)
}

// Reopen marks a ticket open.
func (s *Store) Reopen(t *Ticket) error {
	t.Status = StatusOpen
	return s.Save(t)
}

// Start marks a ticket in_progress.
func (s *Store) Start(t *Ticket) error {
	if t.Status == StatusClosed {
		return kderrors.New(kderrors.Conflict, "ticket %s is closed", t.ID)
	}
	t.Status = StatusInProgress
	return s.Save(t)
}

// AddDep appends depID to t.Deps if not already present, preserving
// every prior entry (spec invariant: append never overwrites).
func (s *Store) AddDep(t *Ticket, depID string) error {
	if HasDep(t.Deps, depID) {
		return nil
	}
	t.Deps = append(t.Deps, depID)
	return s.Save(t)
}

// RemoveDep removes depID from t.Deps if present, leaving every other
// entry's order untouched.
func (s *Store) RemoveDep(t *Ticket, depID string) error {
	if !HasDep(t.Deps, depID) {
		return nil
	}
	out := make([]string, 0, len(t.Deps)-1)
	for _, d := range t.Deps {
		if d != depID {
			out = append(out, d)
		}
	}
	t.Deps = out
	return s.Save(t)
}

// Assign sets the assignee field (§4.7a).
func (s *Store) Assign(t *Ticket, assignee string) error {
	if t.Assignee == assignee {
		return nil
	}
	t.Assignee = assignee
	return s.Save(t)
}

// Unassign clears the assignee field (§4.7a).
func (s *Store) Unassign(t *Ticket) error {
	if t.Assignee == "" {
		return nil
	}
	t.Assignee = ""
	return s.Save(t)
}

// Move relocates a ticket's file into targetBranch's tickets/
// directory, preserving its id, using git mv when inside a git work
// tree and falling back to a plain rename otherwise.
func (s *Store) Move(t *Ticket, targetNormalizedBranch string) error {
	destDir := s.branchTicketsDir(targetNormalizedBranch)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "mkdir %s", destDir)
	}
	dest := filepath.Join(destDir, t.ID+".md")

	repo := kdgit.New(s.Root)
	var moveErr error
	if repo.IsRepo() {
		moveErr = repo.Mv(t.Path, dest)
	}
	if !repo.IsRepo() || moveErr != nil {
		moveErr = os.Rename(t.Path, dest)
	}
	if moveErr != nil {
		return kderrors.Wrap(kderrors.IO, moveErr, "move ticket %s to %s", t.ID, targetNormalizedBranch)
	}
	t.Path = dest
	return nil
}

// ListBranch returns every ticket filed under a branch's tickets/ dir.
func (s *Store) ListBranch(normalized string) ([]*Ticket, error) {
	dir := s.branchTicketsDir(normalized)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list %s", dir)
	}
	var out []*Ticket
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		t, err := s.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListBacklog returns every ticket in the backlog.
func (s *Store) ListBacklog() ([]*Ticket, error) {
	entries, err := os.ReadDir(s.backlogDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list %s", s.backlogDir())
	}
	var out []*Ticket
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		t, err := s.Load(filepath.Join(s.backlogDir(), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PullFromBacklog moves a backlog ticket into the given branch.
func (s *Store) PullFromBacklog(t *Ticket, normalized string) error {
	if filepath.Dir(t.Path) != s.backlogDir() {
		return nil // already attached to a branch
	}
	return s.Move(t, normalized)
}

func (s *Store) fmtPath(normalized, id string) string {
	return filepath.Join(s.branchTicketsDir(normalized), fmt.Sprintf("%s.md", id))
}
