// Package peasant implements the Peasant supervisor (spec §4.8): it
// starts a detached AgentLoop subprocess against one ticket, either in
// its own git worktree or directly against R ("hand" mode, at most one
// at a time repository-wide), tracks it via a persisted Session record,
// and exposes status/stop/clean/sync/review/msg over that record.
// Grounded on the teacher's cmd/bd/daemon_autostart.go detached-spawn
// shape (devnull-style stdio redirection onto a real file descriptor,
// Start then an unwaited background cmd.Wait()) and cmd/bd/reset.go's
// os.FindProcess-based liveness probe.
package peasant

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jbohnslav/kingdom/internal/auditlog"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/config"
	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/procenv"
	"github.com/jbohnslav/kingdom/internal/store"
	"github.com/jbohnslav/kingdom/internal/thread"
	"github.com/jbohnslav/kingdom/internal/ticket"
)

// Supervisor operates peasants for one branch.
type Supervisor struct {
	Root       string
	Normalized string
	Cfg        *config.Config
	Branch     *branch.Lifecycle
	Tickets    *ticket.Store
	Threads    *thread.Store
	Audit      *auditlog.Log
}

func New(root, normalized string, cfg *config.Config, audit *auditlog.Log) *Supervisor {
	br := branch.New(root)
	return &Supervisor{
		Root:       root,
		Normalized: normalized,
		Cfg:        cfg,
		Branch:     br,
		Tickets:    ticket.New(root),
		Threads:    thread.New(br.Dir(normalized)),
		Audit:      audit,
	}
}

// Start resolves ticketID, (optionally) pulls it from the backlog,
// obtains a working directory for mode, seeds or resumes its work
// thread, and spawns a detached AgentLoop subprocess against it (spec
// §4.8 start). A closed ticket refuses outright. Hand mode refuses if
// another hand session is alive anywhere in the repository.
func (s *Supervisor) Start(ticketID string, mode Mode, agentName string, autoPull bool) (*Session, error) {
	t, err := s.Tickets.Find(ticketID, false)
	if err != nil {
		return nil, err
	}
	if t.Status == ticket.StatusClosed {
		return nil, kderrors.New(kderrors.Conflict, "ticket %s is closed", t.ID)
	}

	if autoPull {
		if err := s.Tickets.PullFromBacklog(t, s.Normalized); err != nil {
			return nil, err
		}
	}

	workDir, err := s.resolveWorkDir(t, mode)
	if err != nil {
		return nil, err
	}

	threadID := t.ID + "-work"
	if err := s.seedWorkThread(threadID, agentName, t); err != nil {
		return nil, err
	}

	pid, err := s.spawn(t, workDir, agentName)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Name:         sessionName(t.ID, mode),
		TicketID:     t.ID,
		Agent:        agentName,
		WorktreePath: workDir,
		ThreadID:     threadID,
		Pid:          pid,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.saveSession(sess); err != nil {
		return nil, err
	}
	if s.Audit != nil {
		_ = s.Audit.PeasantSpawned(t.ID, fmt.Sprintf("mode=%s pid=%d", mode, pid))
	}
	return sess, nil
}

func (s *Supervisor) resolveWorkDir(t *ticket.Ticket, mode Mode) (string, error) {
	switch mode {
	case ModeWorktree:
		workDir := filepath.Join(s.Branch.WorktreesDir(s.Normalized), t.ID)
		if !store.DirExists(workDir) {
			repo := kdgit.New(s.Root)
			if err := repo.AddWorktree(workDir, "kd/"+t.ID); err != nil {
				return "", kderrors.Wrap(kderrors.IO, err, "create worktree for %s", t.ID)
			}
		}
		return workDir, nil
	case ModeHand:
		if other, alive := s.anyHandAlive(t.ID); alive {
			return "", kderrors.New(kderrors.Conflict, "hand session %s already active (pid %d)", other.Name, other.Pid)
		}
		return s.Root, nil
	default:
		return "", kderrors.New(kderrors.InvalidConfig, "unknown peasant mode %q", mode)
	}
}

// seedWorkThread creates the ticket's work thread if absent, and seeds
// it with the ticket's own body as the first king message when it is
// otherwise empty, so an AgentLoop iteration always has something to
// read (spec §4.8, §4.9 prompt construction).
func (s *Supervisor) seedWorkThread(threadID, agentName string, t *ticket.Ticket) error {
	if !s.Threads.Exists(threadID) {
		if err := s.Threads.CreateThread(threadID, []string{agentName}, "work"); err != nil {
			return err
		}
	}
	msgs, err := s.Threads.List(threadID)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		return nil
	}
	_, err = s.Threads.Append(threadID, "king", agentName, t.Encode(), false, false)
	return err
}

// spawn starts a detached `kd work <ticket>` subprocess in workDir,
// capturing its stdout/stderr to a real log file (rotated ahead of
// time if oversized) so the process can keep writing after this one
// exits, then returns without waiting for it.
func (s *Supervisor) spawn(t *ticket.Ticket, workDir, agentName string) (int, error) {
	binPath, err := os.Executable()
	if err != nil {
		binPath = os.Args[0]
	}

	logPath := filepath.Join(s.Branch.PeasantsDir(s.Normalized), t.ID+".log")
	rotateIfNeeded(logPath)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 -- path is kingdom-constructed
	if err != nil {
		return 0, kderrors.Wrap(kderrors.IO, err, "open peasant log %s", logPath)
	}
	defer logFile.Close()

	args := []string{"work", t.ID}
	if agentName != "" {
		args = append(args, "--agent", agentName)
	}
	cmd := exec.Command(binPath, args...) // #nosec G204 -- binPath is our own executable, args are kingdom-constructed
	cmd.Dir = workDir
	cmd.Env = procenv.Sanitized()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, kderrors.Wrap(kderrors.IO, err, "spawn peasant for %s", t.ID)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Status reports every recorded session for this branch with a
// liveness probe layered on top (spec §4.8 status).
type StatusEntry struct {
	Session *Session
	Alive   bool
}

func (s *Supervisor) Status() ([]StatusEntry, error) {
	dir := s.Branch.PeasantsDir(s.Normalized)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list %s", dir)
	}
	var out []StatusEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var sess Session
		if err := store.ReadJSON(filepath.Join(dir, e.Name()), &sess); err != nil {
			continue
		}
		out = append(out, StatusEntry{Session: &sess, Alive: isAlive(sess.Pid)})
	}
	return out, nil
}

// Stop sends SIGTERM to a ticket's peasant process, if alive. It does
// not clear the session record; Clean does.
func (s *Supervisor) Stop(ticketID string) error {
	sess, err := s.loadSession(ticketID)
	if err != nil {
		return err
	}
	if sess.Pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(sess.Pid)
	if err != nil {
		return nil
	}
	_ = proc.Signal(syscall.SIGTERM)
	if s.Audit != nil {
		_ = s.Audit.PeasantExited(ticketID, "stopped", nil)
	}
	return nil
}

// Clean removes a ticket's worktree (worktree mode only; hand mode
// operates against R itself, which is never removed) and deletes its
// session record.
func (s *Supervisor) Clean(ticketID string) error {
	sess, err := s.loadSession(ticketID)
	if err != nil {
		return err
	}
	if sess.WorktreePath != s.Root && strings.HasPrefix(sess.Name, "peasant-") {
		repo := kdgit.New(s.Root)
		if err := repo.RemoveWorktree(sess.WorktreePath); err != nil {
			return kderrors.Wrap(kderrors.IO, err, "remove worktree %s", sess.WorktreePath)
		}
	}
	return s.deleteSession(ticketID)
}

// Sync fast-forwards a worktree-mode peasant's branch against its
// upstream. A no-op for hand-mode sessions, which already sit on R.
func (s *Supervisor) Sync(ticketID string) error {
	sess, err := s.loadSession(ticketID)
	if err != nil {
		return err
	}
	if sess.WorktreePath == "" || sess.WorktreePath == s.Root {
		return nil
	}
	repo := kdgit.New(sess.WorktreePath)
	return repo.Pull()
}

// Review re-spawns a ticket's peasant against its existing session
// record: a plain review just returns the current session, while
// --reject (reject=true) restarts the AgentLoop against the same
// working directory so it can act on king feedback left via Msg. It
// fails loudly, rather than silently falling back to a fresh worktree,
// if the recorded working directory has disappeared (spec §4.8 review).
func (s *Supervisor) Review(ticketID string, reject bool) (*Session, error) {
	sess, err := s.loadSession(ticketID)
	if err != nil {
		return nil, err
	}
	if !reject {
		return sess, nil
	}
	if sess.WorktreePath != s.Root && !store.DirExists(sess.WorktreePath) {
		return nil, kderrors.New(kderrors.NotFound, "worktree for %s has disappeared", ticketID)
	}

	t, err := s.Tickets.Find(ticketID, false)
	if err != nil {
		return nil, err
	}
	pid, err := s.spawn(t, sess.WorktreePath, sess.Agent)
	if err != nil {
		return nil, err
	}
	sess.Pid = pid
	sess.StartedAt = time.Now().UTC()
	if err := s.saveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Msg appends a king-to-peasant message on a ticket's work thread
// (spec §4.8 msg), read by the next AgentLoop iteration.
func (s *Supervisor) Msg(ticketID, body string) error {
	sess, err := s.loadSession(ticketID)
	if err != nil {
		return err
	}
	_, err = s.Threads.Append(sess.ThreadID, "king", sess.Agent, body, false, false)
	return err
}
