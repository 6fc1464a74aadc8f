package ticket

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

const legacyPrefix = "kin-"

// MigrationPlan describes the rewrites a legacy-id migration would
// perform: old path -> new bare-hex id, plus every other ticket whose
// frontmatter deps reference an old id and need rewriting (links are
// not scanned).
type MigrationPlan struct {
	Renames   map[string]string // old path -> new id
	Referrers map[string][]string // path -> old ids referenced, needing rewrite
}

// PlanMigration scans every ticket (including done branches) for legacy
// "kin-"-prefixed ids, computing the rename plan. It detects filename
// collisions with the target bare-hex name upfront: if any collision
// exists it returns no plan and a Conflict error naming the colliding
// file, per spec §4.7's "abort if any" requirement.
func (s *Store) PlanMigration() (*MigrationPlan, error) {
	paths, err := s.allTicketPaths(true)
	if err != nil {
		return nil, err
	}

	plan := &MigrationPlan{Renames: map[string]string{}, Referrers: map[string][]string{}}
	existingByDir := map[string]map[string]bool{}

	for _, p := range paths {
		dir := filepath.Dir(p)
		if existingByDir[dir] == nil {
			entries, _ := os.ReadDir(dir)
			set := map[string]bool{}
			for _, e := range entries {
				set[e.Name()] = true
			}
			existingByDir[dir] = set
		}
		base := filepath.Base(p)
		id := strings.TrimSuffix(base, ".md")
		if !strings.HasPrefix(id, legacyPrefix) {
			continue
		}
		newID := strings.TrimPrefix(id, legacyPrefix)
		newBase := newID + ".md"
		if existingByDir[dir][newBase] {
			return nil, kderrors.New(kderrors.Conflict,
				"migration collision: %s already exists alongside %s", filepath.Join(dir, newBase), base)
		}
		plan.Renames[p] = newID
	}

	for _, p := range paths {
		t, err := s.Load(p)
		if err != nil {
			continue
		}
		var refs []string
		for _, d := range t.Deps {
			if strings.HasPrefix(d, legacyPrefix) {
				refs = append(refs, d)
			}
		}
		if len(refs) > 0 {
			plan.Referrers[p] = refs
		}
	}

	return plan, nil
}

// ApplyMigration executes a previously computed plan: renames files
// (via git mv when available), rewrites the frontmatter `id` field in
// each renamed ticket, and rewrites any `deps` entries referencing old
// ids in every ticket (`links` are left untouched). Zero changes are applied if PlanMigration
// would have returned a collision error (callers must call
// PlanMigration first and check for an error before calling Apply).
func (s *Store) ApplyMigration(plan *MigrationPlan) error {
	repo := kdgit.New(s.Root)
	useGit := repo.IsRepo()

	renamed := map[string]string{} // old id -> new id
	for oldPath, newID := range plan.Renames {
		oldID := strings.TrimSuffix(filepath.Base(oldPath), ".md")
		renamed[legacyPrefix+strings.TrimPrefix(oldID, legacyPrefix)] = newID

		newPath := filepath.Join(filepath.Dir(oldPath), newID+".md")
		var err error
		if useGit {
			err = repo.Mv(oldPath, newPath)
		}
		if !useGit || err != nil {
			err = os.Rename(oldPath, newPath)
		}
		if err != nil {
			return kderrors.Wrap(kderrors.IO, err, "rename %s", oldPath)
		}

		t, err := s.Load(newPath)
		if err != nil {
			return err
		}
		t.ID = newID
		t.Deps = rewriteIDs(t.Deps, renamed)
		if err := s.Save(t); err != nil {
			return err
		}
	}

	paths, err := s.allTicketPaths(true)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, wasRenamed := plan.Renames[p]; wasRenamed {
			continue
		}
		t, err := s.Load(p)
		if err != nil {
			return err
		}
		rewritten := rewriteIDs(t.Deps, renamed)
		changed := false
		for i := range rewritten {
			if i >= len(t.Deps) || rewritten[i] != t.Deps[i] {
				changed = true
				break
			}
		}
		if changed {
			t.Deps = rewritten
			if err := s.Save(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func rewriteIDs(ids []string, renamed map[string]string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if newID, ok := renamed[id]; ok {
			out[i] = newID
		} else {
			out[i] = id
		}
	}
	return out
}
