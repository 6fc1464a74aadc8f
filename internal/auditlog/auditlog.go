// Package auditlog records a durable, append-only trail of council
// queries and peasant spawns to .kd/audit.jsonl, grounded on the
// teacher's internal/audit package. It is a diagnostic record, not a
// source of truth: nothing in kingdom reads it back to make decisions.
package auditlog

import (
	"time"

	"github.com/gofrs/flock"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/store"
)

// FileName is the audit log's path relative to the repo's .kd directory.
const FileName = "audit.jsonl"

// Entry is one audit record. Kind identifies the event
// ("council_query", "peasant_spawn", "peasant_exit", ...); the
// remaining fields are populated as applicable and omitted otherwise.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Kind      string    `json:"kind"`
	ThreadID  string    `json:"thread_id,omitempty"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Log appends entries under a single repo's .kd/audit.jsonl.
type Log struct {
	path string
}

func New(kdRoot string) *Log {
	return &Log{path: kdRoot + "/" + FileName}
}

// Append writes one entry. A flock-guarded critical section serializes
// concurrent writers (multiple council members or peasants finishing at
// once) so lines never interleave mid-write; the write itself is a
// plain append, not tmp+rename, since this is a growing log rather than
// a replace-whole-file artifact.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	fl := flock.New(l.path + ".lock")
	if err := fl.Lock(); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "lock audit log")
	}
	defer fl.Unlock() // #nosec G104 -- best-effort unlock

	return store.AppendJSONLine(l.path, e)
}

// QuerySucceeded records a successful council/agent query.
func (l *Log) QuerySucceeded(actor, threadID, detail string) error {
	return l.Append(Entry{Actor: actor, Kind: "council_query", ThreadID: threadID, Detail: detail})
}

// QueryFailed records a failed council/agent query.
func (l *Log) QueryFailed(actor, threadID string, cause error) error {
	return l.Append(Entry{Actor: actor, Kind: "council_query", ThreadID: threadID, Error: cause.Error()})
}

// PeasantSpawned records a peasant worker's start.
func (l *Log) PeasantSpawned(ticketID, detail string) error {
	return l.Append(Entry{Actor: "peasant", Kind: "peasant_spawn", TicketID: ticketID, Detail: detail})
}

// PeasantExited records a peasant worker's termination.
func (l *Log) PeasantExited(ticketID, detail string, cause error) error {
	e := Entry{Actor: "peasant", Kind: "peasant_exit", TicketID: ticketID, Detail: detail}
	if cause != nil {
		e.Error = cause.Error()
	}
	return l.Append(e)
}
