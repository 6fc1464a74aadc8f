package ticket

import (
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// Graph is the dependency-closure view over one branch's tickets plus
// whatever else their deps resolve to (which may live in other
// branches or the backlog).
type Graph struct {
	store      *Store
	byID       map[string]*Ticket
	normalized string
}

// LoadGraph loads the branch's own tickets plus every ticket
// transitively referenced by their deps, resolved across the whole
// repo (backlog + every branch, done included — a dep can point at a
// closed ticket anywhere).
func (s *Store) LoadGraph(normalized string) (*Graph, error) {
	own, err := s.ListBranch(normalized)
	if err != nil {
		return nil, err
	}
	g := &Graph{store: s, byID: map[string]*Ticket{}, normalized: normalized}
	for _, t := range own {
		g.byID[t.ID] = t
	}

	// Resolve dep closure lazily via Find so deps into other branches
	// or the backlog still classify correctly.
	seen := map[string]bool{}
	var queue []string
	for _, t := range own {
		queue = append(queue, t.Deps...)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] || g.byID[id] != nil {
			continue
		}
		seen[id] = true
		dep, err := s.Find(id, true)
		if err != nil {
			continue // unresolved dep; Ready/Blocked treat it as not-closed
		}
		g.byID[dep.ID] = dep
		queue = append(queue, dep.Deps...)
	}
	return g, nil
}

// resolved reports whether id is known in the graph and, if so, its
// closed-ness.
func (g *Graph) resolved(id string) (closed bool, known bool) {
	t, ok := g.byID[id]
	if !ok {
		return false, false
	}
	return t.Status == StatusClosed, true
}

// Blocked reports whether t has any dep that does not resolve to a
// closed ticket (spec §3: unresolved deps count as blocking).
func (g *Graph) Blocked(t *Ticket) bool {
	for _, dep := range t.Deps {
		closed, known := g.resolved(dep)
		if !known || !closed {
			return true
		}
	}
	return false
}

// Ready lists branch tickets with status open whose every dep resolves
// to a closed ticket.
func (s *Store) Ready(normalized string) ([]*Ticket, error) {
	g, err := s.LoadGraph(normalized)
	if err != nil {
		return nil, err
	}
	var ready []*Ticket
	for _, t := range g.byID {
		if t.Status != StatusOpen {
			continue
		}
		// only consider tickets that actually belong to this branch
		if _, isOwn := g.ownSet()[t.ID]; !isOwn {
			continue
		}
		if !g.Blocked(t) {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

func (g *Graph) ownSet() map[string]bool {
	own, _ := g.store.ListBranch(g.normalized)
	set := make(map[string]bool, len(own))
	for _, t := range own {
		set[t.ID] = true
	}
	return set
}

// CycleCheck scans the deps graph restricted to open tickets within the
// branch for cycles. A cycle through any closed ticket is permitted and
// not reported (spec §3 invariant iii).
func (s *Store) CycleCheck(normalized string) ([][]string, error) {
	tickets, err := s.ListBranch(normalized)
	if err != nil {
		return nil, err
	}
	byID := map[string]*Ticket{}
	for _, t := range tickets {
		if t.Status != StatusClosed {
			byID[t.ID] = t
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var cycles [][]string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		t, ok := byID[id]
		if !ok {
			return
		}
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range t.Deps {
			depT, known := byID[dep]
			if !known {
				continue // closed or external dep: not part of the open-ticket cycle graph
			}
			_ = depT
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				cycle := cyclePath(stack, dep)
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for id := range byID {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles, nil
}

func cyclePath(stack []string, start string) []string {
	for i, v := range stack {
		if v == start {
			out := append([]string{}, stack[i:]...)
			return append(out, start)
		}
	}
	return []string{start}
}

// AddDepChecked wraps AddDep with a cycle check over the branch's open
// tickets, refusing the dependency if it would introduce one.
func (s *Store) AddDepChecked(normalized string, t *Ticket, depID string) error {
	if HasDep(t.Deps, depID) {
		return nil
	}
	// speculatively add and persist (CycleCheck reads from disk), check,
	// revert on cycle
	t.Deps = append(t.Deps, depID)
	if err := s.Save(t); err != nil {
		t.Deps = t.Deps[:len(t.Deps)-1]
		return err
	}
	cycles, err := s.CycleCheck(normalized)
	if err == nil && len(cycles) == 0 {
		return nil
	}
	t.Deps = t.Deps[:len(t.Deps)-1]
	if saveErr := s.Save(t); saveErr != nil {
		return saveErr
	}
	if err != nil {
		return err
	}
	return kderrors.New(kderrors.Cycle, "adding dep %s to %s would create a cycle: %v", depID, t.ID, cycles[0])
}
