package council

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
)

// Session is one member's long-lived resume token, persisted at
// sessions/<member>.json under the branch (spec §3 AgentSession).
type Session struct {
	Member    string    `json:"member"`
	SessionID string    `json:"session_id"`
	Pid       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Council) sessionPath(member string) string {
	return filepath.Join(c.Branch.SessionsDir(c.Normalized), member+".json")
}

func (c *Council) loadSession(member string) *Session {
	var s Session
	if err := store.ReadJSON(c.sessionPath(member), &s); err != nil {
		return nil
	}
	return &s
}

// saveSession replaces (never appends to) the member's session record.
func (c *Council) saveSession(member, sessionID string) error {
	now := time.Now().UTC()
	s := c.loadSession(member)
	if s == nil {
		s = &Session{Member: member, CreatedAt: now}
	}
	s.SessionID = sessionID
	s.UpdatedAt = now
	return store.WriteJSON(c.sessionPath(member), s)
}

// ResetSessions deletes the session files for the given members (all
// configured members if empty). Threads are untouched (spec §4.6 reset).
func (c *Council) ResetSessions(members []string) error {
	if len(members) == 0 {
		members = c.Cfg.MemberNames()
	}
	for _, m := range members {
		path := c.sessionPath(m)
		if !store.Exists(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return kderrors.Wrap(kderrors.IO, err, "reset session %s", m)
		}
	}
	return nil
}
