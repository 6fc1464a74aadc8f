package auditlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuerySucceededAndFailedAppendEntries(t *testing.T) {
	root := t.TempDir()
	l := New(root)

	if err := l.QuerySucceeded("alice", "council-aaaa", "looked good"); err != nil {
		t.Fatalf("QuerySucceeded: %v", err)
	}
	if err := l.QueryFailed("bob", "council-bbbb", errors.New("timed out")); err != nil {
		t.Fatalf("QueryFailed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", len(lines), raw)
	}

	var first Entry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first entry: %v", err)
	}
	if first.Actor != "alice" || first.Kind != "council_query" || first.Error != "" {
		t.Errorf("first entry = %+v", first)
	}

	var second Entry
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second entry: %v", err)
	}
	if second.Error != "timed out" {
		t.Errorf("second.Error = %q, want %q", second.Error, "timed out")
	}
}

func TestPeasantSpawnedAndExited(t *testing.T) {
	root := t.TempDir()
	l := New(root)

	if err := l.PeasantSpawned("abcd", "worktree created"); err != nil {
		t.Fatalf("PeasantSpawned: %v", err)
	}
	if err := l.PeasantExited("abcd", "finished", nil); err != nil {
		t.Fatalf("PeasantExited: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lines))
	}
	var spawn Entry
	if err := json.Unmarshal([]byte(lines[0]), &spawn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if spawn.Kind != "peasant_spawn" || spawn.TicketID != "abcd" {
		t.Errorf("spawn entry = %+v", spawn)
	}
}
