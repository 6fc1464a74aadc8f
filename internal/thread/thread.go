// Package thread implements ThreadStore (spec §4.5): an append-only,
// strictly sequenced message log per thread, one markdown file per
// message, serialized through a per-thread advisory lock.
package thread

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/frontmatter"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/lockfile"
	"github.com/jbohnslav/kingdom/internal/store"
)

// Meta is a thread's metadata document (thread.json).
type Meta struct {
	Members   []string  `json:"members"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one thread envelope.
type Message struct {
	Sequence  int
	From      string
	To        string
	Timestamp time.Time
	Error     bool
	Completed bool
	Body      string
}

var keyOrder = []string{"from", "to", "timestamp", "sequence", "error", "completed"}

// Store operates on threads rooted at a branch's threads/ directory.
type Store struct {
	BranchDir string // .../.kd/branches/<normalized>
}

func New(branchDir string) *Store { return &Store{BranchDir: branchDir} }

func (s *Store) threadDir(id string) string { return filepath.Join(s.BranchDir, "threads", id) }
func (s *Store) metaPath(id string) string  { return filepath.Join(s.threadDir(id), "thread.json") }

// Dir returns a thread's directory, for callers (council) that need to
// place sibling artifacts like stream files.
func (s *Store) Dir(id string) string { return s.threadDir(id) }

// StreamPath returns the ephemeral NDJSON stream file path for one
// member's in-flight query against a thread (spec §3 StreamFile).
func (s *Store) StreamPath(id, member string) string {
	return filepath.Join(s.threadDir(id), ".stream-"+member+".jsonl")
}

// CreateThread mints a thread directory with the given id kind and
// member list. Callers choose the id (e.g. "council-<4hex>" or
// "<ticket-id>-work").
func (s *Store) CreateThread(id string, members []string, kind string) error {
	meta := Meta{Members: members, Kind: kind, CreatedAt: time.Now().UTC()}
	return store.WriteJSON(s.metaPath(id), &meta)
}

// Exists reports whether a thread directory (with thread.json) is present.
func (s *Store) Exists(id string) bool {
	return store.Exists(s.metaPath(id))
}

// Meta loads a thread's metadata.
func (s *Store) Meta(id string) (*Meta, error) {
	var m Meta
	if err := store.ReadJSON(s.metaPath(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns every message in a thread, strictly ordered by the
// numeric filename prefix. Duplicate sequence numbers are a Parse
// error (spec invariant 1: no gaps, no duplicates).
func (s *Store) List(id string) ([]Message, error) {
	dir := s.threadDir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kderrors.New(kderrors.NotFound, "thread %s", id)
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "list %s", dir)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasSuffix(n, ".md") && len(n) > 5 && isDigits(n[:4]) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	seen := map[int]bool{}
	msgs := make([]Message, 0, len(names))
	for _, n := range names {
		seq, _ := strconv.Atoi(n[:4])
		if seen[seq] {
			return nil, kderrors.New(kderrors.Parse, "thread %s has duplicate sequence %04d", id, seq)
		}
		seen[seq] = true
		raw, err := store.ReadText(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		m, err := decodeMessage(raw)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NextSequence returns max(existing sequence)+1, or 1 if empty. Must be
// called while holding the thread's lock when the result is used to
// write (Append does this internally); exported so callers can preview
// the next sequence number.
func (s *Store) NextSequence(id string) (int, error) {
	msgs, err := s.List(id)
	if err != nil {
		if kderrors.Is(err, kderrors.NotFound) {
			return 1, nil
		}
		return 0, err
	}
	max := 0
	for _, m := range msgs {
		if m.Sequence > max {
			max = m.Sequence
		}
	}
	return max + 1, nil
}

// Append writes a new message to the thread, resolving its sequence
// number under the thread's advisory lock so concurrent appenders
// (parallel council members finishing at once) never collide. It
// returns the message as actually persisted (sequence assigned).
func (s *Store) Append(id, from, to, body string, isError, completed bool) (Message, error) {
	dir := s.threadDir(id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Message{}, kderrors.Wrap(kderrors.IO, err, "mkdir %s", dir)
	}

	lock, err := lockfile.Acquire(dir)
	if err != nil {
		return Message{}, err
	}
	defer lock.Release()

	seq, err := s.NextSequence(id)
	if err != nil {
		return Message{}, err
	}

	m := Message{
		Sequence:  seq,
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
		Error:     isError,
		Completed: completed,
		Body:      body,
	}
	filename := fmt.Sprintf("%04d-%s.md", seq, from)
	if err := store.WriteText(filepath.Join(dir, filename), encodeMessage(m)); err != nil {
		return Message{}, err
	}
	return m, nil
}

func encodeMessage(m Message) string {
	fields := map[string]frontmatter.Value{
		"from":      m.From,
		"to":        m.To,
		"timestamp": m.Timestamp.UTC().Format(time.RFC3339),
		"sequence":  int64(m.Sequence),
	}
	if m.Error {
		fields["error"] = true
	}
	if m.Completed {
		fields["completed"] = true
	}
	return frontmatter.Emit(fields, keyOrder, m.Body)
}

func decodeMessage(raw string) (Message, error) {
	doc, err := frontmatter.Parse(raw)
	if err != nil {
		return Message{}, kderrors.Wrap(kderrors.Parse, err, "decode thread message")
	}
	var m Message
	m.From, _ = doc.Fields["from"].(string)
	m.To, _ = doc.Fields["to"].(string)
	if s, ok := doc.Fields["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			m.Timestamp = ts
		}
	}
	if n, ok := doc.Fields["sequence"].(int64); ok {
		m.Sequence = int(n)
	}
	if b, ok := doc.Fields["error"].(bool); ok {
		m.Error = b
	}
	if b, ok := doc.Fields["completed"].(bool); ok {
		m.Completed = b
	}
	m.Body = doc.Body
	return m, nil
}

// ErrorSentinel renders the canonical error-marker body (spec §6.5).
func ErrorSentinel(kind, detail string) string {
	return fmt.Sprintf("*Error: %s: %s*", kind, detail)
}

// EmptySentinel renders the canonical empty-response marker (spec §6.5).
func EmptySentinel(member string) string {
	return fmt.Sprintf("*Empty response from %s*", member)
}

// IsErrorBody reports whether body is the canonical error sentinel form.
func IsErrorBody(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "*Error:")
}
