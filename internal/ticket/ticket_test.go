package ticket

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t1 := &Ticket{
		ID:          "0817",
		Status:      StatusOpen,
		Type:        TypeFeature,
		Priority:    2,
		Deps:        []string{"abcd"},
		Links:       []string{"https://example.com/issue/1"},
		Assignee:    "alice",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Title:       "Do the thing",
		Description: "Some longer explanation.",
		Criteria:    []string{"it works", "it is tested"},
		Worklog:     []string{"started", "made progress"},
	}

	raw := t1.Encode()
	t2, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if t2.ID != t1.ID {
		t.Errorf("ID = %q, want %q", t2.ID, t1.ID)
	}
	if t2.Status != t1.Status {
		t.Errorf("Status = %q, want %q", t2.Status, t1.Status)
	}
	if t2.Priority != t1.Priority {
		t.Errorf("Priority = %d, want %d", t2.Priority, t1.Priority)
	}
	if len(t2.Deps) != 1 || t2.Deps[0] != "abcd" {
		t.Errorf("Deps = %v, want [abcd]", t2.Deps)
	}
	if t2.Assignee != "alice" {
		t.Errorf("Assignee = %q, want alice", t2.Assignee)
	}
	if t2.Title != t1.Title {
		t.Errorf("Title = %q, want %q", t2.Title, t1.Title)
	}
	if len(t2.Criteria) != 2 {
		t.Errorf("Criteria = %v, want 2 entries", t2.Criteria)
	}
	if len(t2.Worklog) != 2 {
		t.Errorf("Worklog = %v, want 2 entries", t2.Worklog)
	}
}

func TestLeadingZeroIDRoundTrips(t *testing.T) {
	t1 := &Ticket{ID: "0042", Status: StatusOpen, Type: TypeTask, Title: "x"}
	raw := t1.Encode()
	t2, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if t2.ID != "0042" {
		t.Errorf("ID = %q, want %q (leading zero must survive)", t2.ID, "0042")
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0817", true},
		{"abcd", true},
		{"ABCD", false},
		{"12345", false},
		{"12", false},
		{"gggg", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestHasDep(t *testing.T) {
	deps := []string{"aaaa", "bbbb"}
	if !HasDep(deps, "aaaa") {
		t.Error("expected aaaa to be present")
	}
	if HasDep(deps, "cccc") {
		t.Error("expected cccc to be absent")
	}
}

func TestAddDepPreservesPriorDeps(t *testing.T) {
	s, _ := newTestStore(t)
	t1 := &Ticket{ID: "0001", Type: TypeTask, Title: "t", Deps: []string{"aaaa"}}
	t1.Path = s.backlogDir() + "/0001.md"
	if err := s.AddDep(t1, "bbbb"); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	if len(t1.Deps) != 2 || t1.Deps[0] != "aaaa" || t1.Deps[1] != "bbbb" {
		t.Errorf("Deps = %v, want [aaaa bbbb]", t1.Deps)
	}
}
