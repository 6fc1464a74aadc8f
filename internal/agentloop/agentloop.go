// Package agentloop implements the AgentLoop harness (spec §4.9): the
// sequential, single-ticket iteration loop a Peasant subprocess runs.
// Each iteration builds a prompt from the branch design, the ticket
// body, a worklog tail, and any new king messages, makes exactly one
// non-retriable adapter call (the loop itself is the retry layer, not
// agent.Query's internal policy), and either closes the ticket on a
// COMPLETE sentinel or appends the response and continues. Grounded on
// council.queryToThread's query-then-append shape, reused here for a
// single actor instead of a fan-out.
package agentloop

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/config"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
	"github.com/jbohnslav/kingdom/internal/thread"
	"github.com/jbohnslav/kingdom/internal/ticket"
)

const (
	defaultMaxIterations = 20
	worklogTailLines     = 10
)

var completeLine = regexp.MustCompile(`(?m)^\s*COMPLETE\s*$`)

// Harness drives one ticket's AgentLoop.
type Harness struct {
	Root          string
	Normalized    string
	TicketID      string
	Agent         string // backend name: claude, codex, cursor, ...
	Cfg           *config.Config
	Registry      agent.Registry
	Branch        *branch.Lifecycle
	Tickets       *ticket.Store
	Threads       *thread.Store
	MaxIterations int
}

func New(root, normalized, ticketID, agentName string, cfg *config.Config, reg agent.Registry) *Harness {
	br := branch.New(root)
	return &Harness{
		Root:          root,
		Normalized:    normalized,
		TicketID:      ticketID,
		Agent:         agentName,
		Cfg:           cfg,
		Registry:      reg,
		Branch:        br,
		Tickets:       ticket.New(root),
		Threads:       thread.New(br.Dir(normalized)),
		MaxIterations: defaultMaxIterations,
	}
}

func (h *Harness) threadID() string { return h.TicketID + "-work" }

func (h *Harness) timeout() time.Duration {
	if h.Cfg.Council.Timeout > 0 {
		return h.Cfg.Council.Timeout
	}
	return 300 * time.Second
}

func (h *Harness) extraPrompt() string {
	if ac, ok := h.Cfg.Agents[h.Agent]; ok {
		return ac.Prompts["work"]
	}
	return ""
}

// Run iterates until the ticket closes (nil), the bounded max is hit
// (a Conflict error: the ticket is blocked, per spec §4.9 step 5), or
// an unrecoverable store error occurs.
func (h *Harness) Run(ctx context.Context) error {
	tid := h.threadID()
	afterSeq := 0

	for iter := 0; iter < h.MaxIterations; iter++ {
		t, err := h.Tickets.Find(h.TicketID, false)
		if err != nil {
			return err
		}
		if t.Status == ticket.StatusClosed {
			return nil
		}

		msgs, err := h.Threads.List(tid)
		if err != nil {
			return err
		}

		prompt := h.buildPrompt(t, msgs, afterSeq)
		if len(msgs) > 0 {
			afterSeq = msgs[len(msgs)-1].Sequence
		}

		sessionID := h.loadSessionID()
		streamPath := h.Threads.StreamPath(tid, h.Agent)
		result := agent.Query(ctx, h.Registry, agent.QueryParams{
			Backend:     h.Agent,
			Prompt:      prompt,
			ExtraPrompt: h.extraPrompt(),
			Timeout:     h.timeout(),
			SessionID:   sessionID,
			StreamPath:  streamPath,
			MaxRetries:  0,
		})

		if result.SessionID != "" {
			_ = h.saveSessionID(result.SessionID)
		}

		if result.Err != nil {
			body := thread.ErrorSentinel(string(result.Err.Kind), result.Err.Detail)
			if _, err := h.Threads.Append(tid, h.Agent, "king", body, true, false); err != nil {
				return err
			}
			continue
		}

		if completeLine.MatchString(result.Text) {
			if _, err := h.Threads.Append(tid, h.Agent, "king", result.Text, false, true); err != nil {
				return err
			}
			return h.Tickets.Close(t)
		}

		body := result.Text
		if strings.TrimSpace(body) == "" {
			body = thread.EmptySentinel(h.Agent)
		}
		if _, err := h.Threads.Append(tid, h.Agent, "king", body, false, false); err != nil {
			return err
		}
	}

	return kderrors.New(kderrors.Conflict, "ticket %s blocked: exhausted %d AgentLoop iterations", h.TicketID, h.MaxIterations)
}

// buildPrompt assembles design.md, the ticket body, a worklog tail,
// and every king message posted since the previous iteration (spec
// §4.9 step 1).
func (h *Harness) buildPrompt(t *ticket.Ticket, msgs []thread.Message, afterSeq int) string {
	var b strings.Builder

	if design, err := store.ReadText(h.Branch.DesignPath(h.Normalized)); err == nil && strings.TrimSpace(design) != "" {
		b.WriteString("# Design\n\n")
		b.WriteString(design)
		b.WriteString("\n\n")
	}

	b.WriteString("# Ticket\n\n")
	b.WriteString(t.Encode())

	if len(t.Worklog) > 0 {
		tail := t.Worklog
		if len(tail) > worklogTailLines {
			tail = tail[len(tail)-worklogTailLines:]
		}
		b.WriteString("\n## Recent worklog\n\n")
		for _, w := range tail {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	var fresh []thread.Message
	for _, m := range msgs {
		if m.Sequence > afterSeq && m.From == "king" {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) > 0 {
		b.WriteString("\n## New messages from the king\n\n")
		for _, m := range fresh {
			fmt.Fprintf(&b, "%s\n\n", m.Body)
		}
	}

	return b.String()
}

func (h *Harness) sessionPath() string {
	return filepath.Join(h.Branch.PeasantsDir(h.Normalized), h.TicketID+"-session.json")
}

type sessionFile struct {
	SessionID string `json:"session_id"`
}

func (h *Harness) loadSessionID() string {
	var s sessionFile
	if err := store.ReadJSON(h.sessionPath(), &s); err != nil {
		return ""
	}
	return s.SessionID
}

func (h *Harness) saveSessionID(id string) error {
	return store.WriteJSON(h.sessionPath(), sessionFile{SessionID: id})
}
