package thread

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateExistsMeta(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if s.Exists("council-aaaa") {
		t.Fatal("Exists should be false before CreateThread")
	}
	if err := s.CreateThread("council-aaaa", []string{"alice", "bob"}, "council"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if !s.Exists("council-aaaa") {
		t.Fatal("Exists should be true after CreateThread")
	}
	m, err := s.Meta("council-aaaa")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if len(m.Members) != 2 || m.Kind != "council" {
		t.Errorf("Meta = %+v, want members=[alice bob] kind=council", m)
	}
}

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.CreateThread("t1", []string{"alice"}, "work"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	m1, err := s.Append("t1", "king", "alice", "first", false, false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	m2, err := s.Append("t1", "alice", "king", "second", false, false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m1.Sequence != 1 || m2.Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", m1.Sequence, m2.Sequence)
	}

	msgs, err := s.List("t1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("List = %d messages, want 2", len(msgs))
	}
	if msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Errorf("List bodies = %q, %q", msgs[0].Body, msgs[1].Body)
	}
}

func TestListDetectsDuplicateSequence(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.CreateThread("t1", []string{"alice"}, "work"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := s.Append("t1", "alice", "king", "one", false, false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Simulate a second member racing to the same sequence number under
	// a different filename (the lock normally prevents this).
	dup := encodeMessage(Message{Sequence: 1, From: "bob", To: "king", Body: "two"})
	if err := os.WriteFile(filepath.Join(s.threadDir("t1"), "0001-bob.md"), []byte(dup), 0o640); err != nil {
		t.Fatalf("write dup: %v", err)
	}
	if _, err := s.List("t1"); err == nil {
		t.Fatal("expected List to fail on a duplicate sequence number")
	}
}

func TestErrorAndEmptySentinels(t *testing.T) {
	errBody := ErrorSentinel("Timeout", "agent took too long")
	if !IsErrorBody(errBody) {
		t.Errorf("IsErrorBody(%q) = false, want true", errBody)
	}
	emptyBody := EmptySentinel("alice")
	if IsErrorBody(emptyBody) {
		t.Errorf("IsErrorBody(%q) = true, want false", emptyBody)
	}
}

func TestAppendRoundTripsErrorAndCompletedFlags(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.CreateThread("t1", []string{"alice"}, "work"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := s.Append("t1", "alice", "king", ErrorSentinel("Parse", "bad json"), true, false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append("t1", "alice", "king", "COMPLETE", false, true); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := s.List("t1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !msgs[0].Error {
		t.Error("expected first message Error=true")
	}
	if !msgs[1].Completed {
		t.Error("expected second message Completed=true")
	}
}

func TestListUnknownThreadIsNotFound(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if _, err := s.List("nope"); err == nil {
		t.Fatal("expected an error listing a nonexistent thread")
	}
}

func TestNextSequenceStartsAtOne(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.CreateThread("t1", []string{"alice"}, "work"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	seq, err := s.NextSequence("t1")
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if seq != 1 {
		t.Errorf("NextSequence = %d, want 1", seq)
	}
}
