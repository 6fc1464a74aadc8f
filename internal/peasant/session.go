package peasant

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
)

// Mode selects how a peasant's working directory is obtained.
type Mode string

const (
	// ModeWorktree gives the peasant its own git worktree, isolated from
	// R and every other peasant.
	ModeWorktree Mode = "worktree"
	// ModeHand runs the peasant directly against R. At most one hand
	// session may be alive across the whole repository at a time.
	ModeHand Mode = "hand"
)

// Session is one peasant's persisted record (spec §4.8 PeasantSession):
// name ("peasant-<ticket>" or "hand-<ticket>"), the ticket it is
// working, the agent backend driving it, its working directory, its
// work thread, and the pid of its detached AgentLoop process.
type Session struct {
	Name         string    `json:"name"`
	TicketID     string    `json:"ticket_id"`
	Agent        string    `json:"agent"`
	WorktreePath string    `json:"worktree_path"`
	ThreadID     string    `json:"thread_id"`
	Pid          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
}

func sessionName(ticketID string, mode Mode) string {
	if mode == ModeHand {
		return "hand-" + ticketID
	}
	return "peasant-" + ticketID
}

func (s *Supervisor) sessionPath(ticketID string) string {
	return filepath.Join(s.Branch.PeasantsDir(s.Normalized), ticketID+".json")
}

func (s *Supervisor) loadSession(ticketID string) (*Session, error) {
	var sess Session
	if err := store.ReadJSON(s.sessionPath(ticketID), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Supervisor) saveSession(sess *Session) error {
	return store.WriteJSON(s.sessionPath(sess.TicketID), sess)
}

func (s *Supervisor) deleteSession(ticketID string) error {
	path := s.sessionPath(ticketID)
	if !store.Exists(path) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "remove session %s", path)
	}
	return nil
}

// isAlive probes a pid for liveness via signal 0: delivering no actual
// signal, just checking whether the kernel would let us (spec §4.8
// status: "probe liveness via signal-0 to its pid").
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// anyHandAlive scans every branch's peasants directory for a live hand
// session, since hand mode's single-active-session rule is scoped to
// the whole repository (R is shared across branches), not to one
// branch. excludeTicket lets a ticket's own prior hand session, if it
// somehow lingered, be ignored when re-entering hand mode for itself.
func (s *Supervisor) anyHandAlive(excludeTicket string) (*Session, bool) {
	branches, err := s.Branch.List(true)
	if err != nil {
		return nil, false
	}
	for _, b := range branches {
		dir := s.Branch.PeasantsDir(b.NormalizedName)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			var sess Session
			if err := store.ReadJSON(filepath.Join(dir, e.Name()), &sess); err != nil {
				continue
			}
			if !strings.HasPrefix(sess.Name, "hand-") || sess.TicketID == excludeTicket {
				continue
			}
			if isAlive(sess.Pid) {
				return &sess, true
			}
		}
	}
	return nil, false
}
